package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	apperrors "github.com/covecrm/covecrm/pkg/errors"
)

func newStaffService(t *testing.T, db *gorm.DB) (*StaffService, *CompanyService) {
	t.Helper()

	companies := newCompanyService(t, db)
	svc, err := NewStaffService(db, newAudit(t, db))
	require.NoError(t, err)
	return svc, companies
}

func TestStaffCreateAndList(t *testing.T) {
	db := openServiceDB(t)
	svc, companies := newStaffService(t, db)

	company, err := companies.Create(context.Background(), "", CompanyInput{Name: "Acme"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), "", StaffInput{
		CompanyID: company.ID,
		Name:      "Jo Berg",
		Position:  "Buyer",
		Email:     "Jo@Acme.example",
	})
	require.NoError(t, err)

	primary, err := svc.Create(context.Background(), "", StaffInput{
		CompanyID: company.ID,
		Name:      "Ada Strand",
		IsPrimary: true,
	})
	require.NoError(t, err)

	staff, err := svc.ListByCompany(context.Background(), company.ID)
	require.NoError(t, err)
	require.Len(t, staff, 2)
	require.Equal(t, primary.ID, staff[0].ID)
	require.Equal(t, "jo@acme.example", staff[1].Email)
}

func TestStaffCreateUnknownCompany(t *testing.T) {
	db := openServiceDB(t)
	svc, _ := newStaffService(t, db)

	_, err := svc.Create(context.Background(), "", StaffInput{CompanyID: "missing", Name: "Jo"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStaffPrimaryIsExclusive(t *testing.T) {
	db := openServiceDB(t)
	svc, companies := newStaffService(t, db)

	company, err := companies.Create(context.Background(), "", CompanyInput{Name: "Acme"})
	require.NoError(t, err)

	first, err := svc.Create(context.Background(), "", StaffInput{CompanyID: company.ID, Name: "Jo", IsPrimary: true})
	require.NoError(t, err)

	second, err := svc.Create(context.Background(), "", StaffInput{CompanyID: company.ID, Name: "Ada", IsPrimary: true})
	require.NoError(t, err)

	reloaded, err := svc.Get(context.Background(), first.ID)
	require.NoError(t, err)
	require.False(t, reloaded.IsPrimary)

	reloaded, err = svc.Get(context.Background(), second.ID)
	require.NoError(t, err)
	require.True(t, reloaded.IsPrimary)
}

func TestStaffUpdateAndDelete(t *testing.T) {
	db := openServiceDB(t)
	svc, companies := newStaffService(t, db)

	company, err := companies.Create(context.Background(), "", CompanyInput{Name: "Acme"})
	require.NoError(t, err)

	staff, err := svc.Create(context.Background(), "", StaffInput{CompanyID: company.ID, Name: "Jo"})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), "", staff.ID, StaffInput{
		CompanyID: company.ID,
		Name:      "Jo Berg",
		Position:  "Manager",
	})
	require.NoError(t, err)
	require.Equal(t, "Jo Berg", updated.Name)
	require.Equal(t, "Manager", updated.Position)

	require.NoError(t, svc.Delete(context.Background(), "", staff.ID))
	_, err = svc.Get(context.Background(), staff.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
