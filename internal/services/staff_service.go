package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/covecrm/covecrm/internal/models"
	apperrors "github.com/covecrm/covecrm/pkg/errors"
)

// StaffInput carries the writable staff-contact fields.
type StaffInput struct {
	CompanyID string
	Name      string
	Position  string
	Email     string
	Phone     string
	Notes     string
	IsPrimary bool
}

// StaffService manages contact people attached to companies.
type StaffService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewStaffService constructs a StaffService.
func NewStaffService(db *gorm.DB, audit *AuditService) (*StaffService, error) {
	if db == nil {
		return nil, errors.New("staff service: db is required")
	}
	if audit == nil {
		return nil, errors.New("staff service: audit service is required")
	}
	return &StaffService{db: db, audit: audit}, nil
}

// Create adds a contact person to a company. Marking a contact primary
// demotes the previous primary in the same transaction.
func (s *StaffService) Create(ctx context.Context, actorID string, input StaffInput) (*models.Staff, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(input.CompanyID) == "" {
		return nil, apperrors.NewValidation("company id is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidation("staff name is required")
	}

	var company models.Company
	err := s.db.WithContext(ctx).Take(&company, "id = ?", input.CompanyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	staff := &models.Staff{
		CompanyID: input.CompanyID,
		Name:      name,
		Position:  strings.TrimSpace(input.Position),
		Email:     normaliseEmail(input.Email),
		Phone:     strings.TrimSpace(input.Phone),
		Notes:     input.Notes,
		IsPrimary: input.IsPrimary,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if staff.IsPrimary {
			if err := demotePrimary(tx, input.CompanyID); err != nil {
				return err
			}
		}
		return tx.Create(staff).Error
	})
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	s.recordActivity(ctx, actorID, ActionStaffCreated, staff.ID,
		fmt.Sprintf("Contact %s added to %s", staff.Name, company.Name))

	return staff, nil
}

// Get loads a single contact.
func (s *StaffService) Get(ctx context.Context, id string) (*models.Staff, error) {
	ctx = ensureContext(ctx)

	var staff models.Staff
	err := s.db.WithContext(ctx).Preload("Company").Take(&staff, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return &staff, nil
}

// ListByCompany returns all contacts of a company, primary first.
func (s *StaffService) ListByCompany(ctx context.Context, companyID string) ([]models.Staff, error) {
	ctx = ensureContext(ctx)

	var staff []models.Staff
	err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("is_primary DESC, name ASC").
		Find(&staff).Error
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return staff, nil
}

// Update edits a contact.
func (s *StaffService) Update(ctx context.Context, actorID, id string, input StaffInput) (*models.Staff, error) {
	ctx = ensureContext(ctx)

	staff, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidation("staff name is required")
	}

	updates := map[string]any{
		"name":       name,
		"position":   strings.TrimSpace(input.Position),
		"email":      normaliseEmail(input.Email),
		"phone":      strings.TrimSpace(input.Phone),
		"notes":      input.Notes,
		"is_primary": input.IsPrimary,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if input.IsPrimary && !staff.IsPrimary {
			if err := demotePrimary(tx, staff.CompanyID); err != nil {
				return err
			}
		}
		return tx.Model(&models.Staff{}).Where("id = ?", id).Updates(updates).Error
	})
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	s.recordActivity(ctx, actorID, ActionStaffUpdated, id,
		fmt.Sprintf("Contact %s updated", name))

	return s.Get(ctx, id)
}

// Delete removes a contact.
func (s *StaffService) Delete(ctx context.Context, actorID, id string) error {
	ctx = ensureContext(ctx)

	staff, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&models.Staff{}, "id = ?", id).Error; err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}

	s.recordActivity(ctx, actorID, ActionStaffDeleted, id,
		fmt.Sprintf("Contact %s removed", staff.Name))
	return nil
}

func demotePrimary(tx *gorm.DB, companyID string) error {
	return tx.Model(&models.Staff{}).
		Where("company_id = ? AND is_primary = ?", companyID, true).
		Update("is_primary", false).Error
}

func (s *StaffService) recordActivity(ctx context.Context, actorID, action, subjectID, description string) {
	entry := AuditEntry{
		Action:      action,
		SubjectType: "staff",
		SubjectID:   subjectID,
		Description: description,
	}
	if strings.TrimSpace(actorID) != "" {
		entry.UserID = &actorID
	}
	_ = s.audit.Record(ctx, entry)
}
