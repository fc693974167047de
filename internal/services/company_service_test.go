package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/covecrm/covecrm/internal/models"
	apperrors "github.com/covecrm/covecrm/pkg/errors"
)

func newCompanyService(t *testing.T, db *gorm.DB) *CompanyService {
	t.Helper()
	svc, err := NewCompanyService(db, newAudit(t, db))
	require.NoError(t, err)
	return svc
}

func TestCompanyCreateAndGet(t *testing.T) {
	db := openServiceDB(t)
	svc := newCompanyService(t, db)
	user := seedUser(t, db, "alice@example.com")

	company, err := svc.Create(context.Background(), user.ID, CompanyInput{
		Name:         "Acme Fisheries",
		CompanyType:  "wholesale",
		City:         "Bergen",
		ContactEmail: "Buyer@Acme.example",
	})
	require.NoError(t, err)
	require.Equal(t, models.CompanyStatusProspect, company.Status)
	require.Equal(t, "buyer@acme.example", company.ContactEmail)

	loaded, err := svc.Get(context.Background(), company.ID)
	require.NoError(t, err)
	require.Equal(t, "Acme Fisheries", loaded.Name)

	requireActivity(t, db, ActionCompanyCreated)
}

func TestCompanyCreateValidation(t *testing.T) {
	db := openServiceDB(t)
	svc := newCompanyService(t, db)

	_, err := svc.Create(context.Background(), "", CompanyInput{Name: "   "})
	require.Error(t, err)

	_, err = svc.Create(context.Background(), "", CompanyInput{Name: "Acme", Status: "bogus"})
	require.Error(t, err)
}

func TestCompanyListFilters(t *testing.T) {
	db := openServiceDB(t)
	svc := newCompanyService(t, db)

	_, err := svc.Create(context.Background(), "", CompanyInput{Name: "Acme Fisheries", City: "Bergen", Status: models.CompanyStatusActive})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), "", CompanyInput{Name: "Nordic Timber", City: "Oslo", Status: models.CompanyStatusActive})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), "", CompanyInput{Name: "Fjord Tours", City: "Bergen"})
	require.NoError(t, err)

	companies, total, err := svc.List(context.Background(), CompanyListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, companies, 3)

	_, total, err = svc.List(context.Background(), CompanyListOptions{
		Filters: CompanyFilters{City: "Bergen"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)

	_, total, err = svc.List(context.Background(), CompanyListOptions{
		Filters: CompanyFilters{Status: models.CompanyStatusActive},
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)

	companies, total, err = svc.List(context.Background(), CompanyListOptions{
		Filters: CompanyFilters{Search: "timber"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "Nordic Timber", companies[0].Name)

	// Pagination.
	companies, total, err = svc.List(context.Background(), CompanyListOptions{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, companies, 1)
}

func TestCompanyUpdateStatus(t *testing.T) {
	db := openServiceDB(t)
	svc := newCompanyService(t, db)

	company, err := svc.Create(context.Background(), "", CompanyInput{Name: "Acme"})
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(context.Background(), "", company.ID, models.CompanyStatusConverted)
	require.NoError(t, err)
	require.Equal(t, models.CompanyStatusConverted, updated.Status)

	_, err = svc.UpdateStatus(context.Background(), "", company.ID, "bogus")
	require.Error(t, err)
}

func TestCompanyDeleteCascades(t *testing.T) {
	db := openServiceDB(t)
	svc := newCompanyService(t, db)
	user := seedUser(t, db, "alice@example.com")

	company, err := svc.Create(context.Background(), user.ID, CompanyInput{Name: "Acme"})
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.Staff{CompanyID: company.ID, Name: "Jo"}).Error)

	require.NoError(t, svc.Delete(context.Background(), user.ID, company.ID))

	_, err = svc.Get(context.Background(), company.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	var staffCount int64
	require.NoError(t, db.Model(&models.Staff{}).Count(&staffCount).Error)
	require.Zero(t, staffCount)
}

func TestCompanyBulkDelete(t *testing.T) {
	db := openServiceDB(t)
	svc := newCompanyService(t, db)

	first, err := svc.Create(context.Background(), "", CompanyInput{Name: "One"})
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), "", CompanyInput{Name: "Two"})
	require.NoError(t, err)

	removed, err := svc.BulkDelete(context.Background(), "", []string{first.ID, second.ID, "missing", first.ID})
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	_, err = svc.BulkDelete(context.Background(), "", nil)
	require.Error(t, err)
}

func TestCompanyTypesAndCities(t *testing.T) {
	db := openServiceDB(t)
	svc := newCompanyService(t, db)

	_, err := svc.Create(context.Background(), "", CompanyInput{Name: "One", CompanyType: "retail", City: "Oslo"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), "", CompanyInput{Name: "Two", CompanyType: "wholesale", City: "Bergen"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), "", CompanyInput{Name: "Three", CompanyType: "retail"})
	require.NoError(t, err)

	types, err := svc.Types(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"retail", "wholesale"}, types)

	cities, err := svc.Cities(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Bergen", "Oslo"}, cities)
}
