package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/covecrm/covecrm/internal/models"
	apperrors "github.com/covecrm/covecrm/pkg/errors"
)

// CompanyInput carries the writable company fields.
type CompanyInput struct {
	Name         string
	CompanyType  string
	Status       string
	ContactName  string
	ContactEmail string
	ContactPhone string
	Address      string
	City         string
	Website      string
	Notes        string
	AssignedToID *string
}

// CompanyFilters narrows company listings.
type CompanyFilters struct {
	Search      string
	Status      string
	City        string
	CompanyType string
	AssignedTo  string
}

// CompanyListOptions controls pagination and filtering.
type CompanyListOptions struct {
	Page     int
	PageSize int
	Filters  CompanyFilters
}

var companyStatuses = []string{
	models.CompanyStatusActive,
	models.CompanyStatusInactive,
	models.CompanyStatusProspect,
	models.CompanyStatusConverted,
}

// CompanyService manages the company pipeline.
type CompanyService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewCompanyService constructs a CompanyService.
func NewCompanyService(db *gorm.DB, audit *AuditService) (*CompanyService, error) {
	if db == nil {
		return nil, errors.New("company service: db is required")
	}
	if audit == nil {
		return nil, errors.New("company service: audit service is required")
	}
	return &CompanyService{db: db, audit: audit}, nil
}

// Create inserts a new company.
func (s *CompanyService) Create(ctx context.Context, actorID string, input CompanyInput) (*models.Company, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidation("company name is required")
	}

	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = models.CompanyStatusProspect
	}
	if !validCompanyStatus(status) {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown company status %q", status))
	}

	company := &models.Company{
		Name:         name,
		CompanyType:  strings.TrimSpace(input.CompanyType),
		Status:       status,
		ContactName:  strings.TrimSpace(input.ContactName),
		ContactEmail: normaliseEmail(input.ContactEmail),
		ContactPhone: strings.TrimSpace(input.ContactPhone),
		Address:      strings.TrimSpace(input.Address),
		City:         strings.TrimSpace(input.City),
		Website:      strings.TrimSpace(input.Website),
		Notes:        input.Notes,
		AssignedToID: input.AssignedToID,
	}

	if err := s.db.WithContext(ctx).Create(company).Error; err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	s.recordActivity(ctx, actorID, ActionCompanyCreated, company.ID,
		fmt.Sprintf("Company %s created", company.Name))

	return company, nil
}

// Get loads a single company with its follow-ups.
func (s *CompanyService) Get(ctx context.Context, id string) (*models.Company, error) {
	ctx = ensureContext(ctx)

	var company models.Company
	err := s.db.WithContext(ctx).
		Preload("AssignedTo").
		Preload("FollowUps", func(db *gorm.DB) *gorm.DB {
			return db.Order("due_at DESC")
		}).
		Take(&company, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return &company, nil
}

// List returns companies matching the filters, newest first.
func (s *CompanyService) List(ctx context.Context, opts CompanyListOptions) ([]models.Company, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 100 {
		perPage = 25
	}

	query := s.db.WithContext(ctx).Model(&models.Company{})
	query = applyCompanyFilters(query, opts.Filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.ErrInternalServer.WithInternal(err)
	}

	var companies []models.Company
	if err := query.
		Preload("AssignedTo").
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&companies).Error; err != nil {
		return nil, 0, apperrors.ErrInternalServer.WithInternal(err)
	}

	return companies, total, nil
}

// Update applies the writable fields to an existing company.
func (s *CompanyService) Update(ctx context.Context, actorID, id string, input CompanyInput) (*models.Company, error) {
	ctx = ensureContext(ctx)

	company, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidation("company name is required")
	}

	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = company.Status
	}
	if !validCompanyStatus(status) {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown company status %q", status))
	}

	updates := map[string]any{
		"name":           name,
		"company_type":   strings.TrimSpace(input.CompanyType),
		"status":         status,
		"contact_name":   strings.TrimSpace(input.ContactName),
		"contact_email":  normaliseEmail(input.ContactEmail),
		"contact_phone":  strings.TrimSpace(input.ContactPhone),
		"address":        strings.TrimSpace(input.Address),
		"city":           strings.TrimSpace(input.City),
		"website":        strings.TrimSpace(input.Website),
		"notes":          input.Notes,
		"assigned_to_id": input.AssignedToID,
	}

	if err := s.db.WithContext(ctx).Model(company).Updates(updates).Error; err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	s.recordActivity(ctx, actorID, ActionCompanyUpdated, company.ID,
		fmt.Sprintf("Company %s updated", name))

	return s.Get(ctx, id)
}

// UpdateStatus moves a company through the pipeline.
func (s *CompanyService) UpdateStatus(ctx context.Context, actorID, id, status string) (*models.Company, error) {
	ctx = ensureContext(ctx)

	status = strings.TrimSpace(status)
	if !validCompanyStatus(status) {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown company status %q", status))
	}

	company, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(company).Update("status", status).Error; err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	company.Status = status

	s.recordActivity(ctx, actorID, ActionCompanyUpdated, company.ID,
		fmt.Sprintf("Company %s moved to %s", company.Name, status))

	return company, nil
}

// Delete removes a company and its dependents.
func (s *CompanyService) Delete(ctx context.Context, actorID, id string) error {
	ctx = ensureContext(ctx)

	company, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("company_id = ?", id).Delete(&models.FollowUp{}).Error; err != nil {
			return err
		}
		if err := tx.Where("company_id = ?", id).Delete(&models.Staff{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Company{}, "id = ?", id).Error
	})
	if err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}

	s.recordActivity(ctx, actorID, ActionCompanyDeleted, id,
		fmt.Sprintf("Company %s deleted", company.Name))

	return nil
}

// BulkDelete removes several companies at once and reports how many went away.
func (s *CompanyService) BulkDelete(ctx context.Context, actorID string, ids []string) (int64, error) {
	ctx = ensureContext(ctx)

	ids = normaliseIDs(ids)
	if len(ids) == 0 {
		return 0, apperrors.NewValidation("no company ids supplied")
	}

	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("company_id IN ?", ids).Delete(&models.FollowUp{}).Error; err != nil {
			return err
		}
		if err := tx.Where("company_id IN ?", ids).Delete(&models.Staff{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", ids).Delete(&models.Company{})
		removed = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, apperrors.ErrInternalServer.WithInternal(err)
	}

	s.recordActivity(ctx, actorID, ActionCompanyDeleted, "",
		fmt.Sprintf("%d companies deleted", removed))

	return removed, nil
}

// Types returns the distinct company types in use.
func (s *CompanyService) Types(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "company_type")
}

// Cities returns the distinct cities in use.
func (s *CompanyService) Cities(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "city")
}

// TouchLastContacted stamps the company after a completed follow-up.
func (s *CompanyService) TouchLastContacted(ctx context.Context, id string, at time.Time) error {
	ctx = ensureContext(ctx)
	return s.db.WithContext(ctx).Model(&models.Company{}).
		Where("id = ?", id).
		Update("last_contacted_at", &at).Error
}

func (s *CompanyService) distinct(ctx context.Context, column string) ([]string, error) {
	ctx = ensureContext(ctx)

	var values []string
	err := s.db.WithContext(ctx).Model(&models.Company{}).
		Where(column+" <> ''").
		Distinct(column).
		Order(column + " ASC").
		Pluck(column, &values).Error
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return values, nil
}

func (s *CompanyService) recordActivity(ctx context.Context, actorID, action, subjectID, description string) {
	entry := AuditEntry{
		Action:      action,
		SubjectType: "company",
		SubjectID:   subjectID,
		Description: description,
	}
	if strings.TrimSpace(actorID) != "" {
		entry.UserID = &actorID
	}
	_ = s.audit.Record(ctx, entry)
}

func applyCompanyFilters(query *gorm.DB, filters CompanyFilters) *gorm.DB {
	if search := strings.TrimSpace(filters.Search); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("name LIKE ? OR contact_name LIKE ? OR contact_email LIKE ?", pattern, pattern, pattern)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.City != "" {
		query = query.Where("city = ?", filters.City)
	}
	if filters.CompanyType != "" {
		query = query.Where("company_type = ?", filters.CompanyType)
	}
	if filters.AssignedTo != "" {
		query = query.Where("assigned_to_id = ?", filters.AssignedTo)
	}
	return query
}

func validCompanyStatus(status string) bool {
	for _, known := range companyStatuses {
		if status == known {
			return true
		}
	}
	return false
}
