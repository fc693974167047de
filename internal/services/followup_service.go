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

// FollowUpInput carries the writable follow-up fields.
type FollowUpInput struct {
	CompanyID string
	DueAt     time.Time
	Notes     string
}

// FollowUpFilters narrows follow-up listings.
type FollowUpFilters struct {
	CompanyID string
	UserID    string
	Status    string
	DueBefore *time.Time
	DueAfter  *time.Time
}

// FollowUpListOptions controls pagination and filtering.
type FollowUpListOptions struct {
	Page     int
	PageSize int
	Filters  FollowUpFilters
}

// FollowUpService schedules and resolves company touchpoints.
type FollowUpService struct {
	db        *gorm.DB
	companies *CompanyService
	audit     *AuditService
	now       func() time.Time
}

// NewFollowUpService constructs a FollowUpService.
func NewFollowUpService(db *gorm.DB, companies *CompanyService, audit *AuditService) (*FollowUpService, error) {
	if db == nil {
		return nil, errors.New("followup service: db is required")
	}
	if companies == nil {
		return nil, errors.New("followup service: company service is required")
	}
	if audit == nil {
		return nil, errors.New("followup service: audit service is required")
	}
	return &FollowUpService{db: db, companies: companies, audit: audit, now: time.Now}, nil
}

// WithClock overrides the service clock, primarily for tests.
func (s *FollowUpService) WithClock(clock func() time.Time) *FollowUpService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Create schedules a follow-up for a company, owned by the acting user.
func (s *FollowUpService) Create(ctx context.Context, actorID string, input FollowUpInput) (*models.FollowUp, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(actorID) == "" {
		return nil, apperrors.ErrUnauthorized
	}
	if strings.TrimSpace(input.CompanyID) == "" {
		return nil, apperrors.NewValidation("company id is required")
	}
	if input.DueAt.IsZero() {
		return nil, apperrors.NewValidation("due date is required")
	}

	if _, err := s.companies.Get(ctx, input.CompanyID); err != nil {
		return nil, err
	}

	followUp := &models.FollowUp{
		CompanyID: input.CompanyID,
		UserID:    actorID,
		DueAt:     input.DueAt,
		Status:    models.FollowUpStatusPending,
		Notes:     input.Notes,
	}

	if err := s.db.WithContext(ctx).Create(followUp).Error; err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	s.recordActivity(ctx, actorID, ActionFollowUpCreated, followUp.ID,
		fmt.Sprintf("Follow-up scheduled for %s", input.DueAt.Format("2006-01-02")))

	return followUp, nil
}

// Get loads one follow-up with its company and owner.
func (s *FollowUpService) Get(ctx context.Context, id string) (*models.FollowUp, error) {
	ctx = ensureContext(ctx)

	var followUp models.FollowUp
	err := s.db.WithContext(ctx).
		Preload("Company").
		Preload("User").
		Take(&followUp, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return &followUp, nil
}

// List returns follow-ups matching the filters, soonest due first.
func (s *FollowUpService) List(ctx context.Context, opts FollowUpListOptions) ([]models.FollowUp, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 100 {
		perPage = 25
	}

	query := s.db.WithContext(ctx).Model(&models.FollowUp{})
	query = applyFollowUpFilters(query, opts.Filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.ErrInternalServer.WithInternal(err)
	}

	var followUps []models.FollowUp
	if err := query.
		Preload("Company").
		Preload("User").
		Order("due_at ASC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&followUps).Error; err != nil {
		return nil, 0, apperrors.ErrInternalServer.WithInternal(err)
	}

	return followUps, total, nil
}

// Update edits the schedule or notes of a pending follow-up.
func (s *FollowUpService) Update(ctx context.Context, actorID, id string, input FollowUpInput) (*models.FollowUp, error) {
	ctx = ensureContext(ctx)

	followUp, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"notes": input.Notes}
	if !input.DueAt.IsZero() {
		updates["due_at"] = input.DueAt
	}

	if err := s.db.WithContext(ctx).Model(followUp).Updates(updates).Error; err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	s.recordActivity(ctx, actorID, ActionFollowUpUpdated, followUp.ID, "Follow-up updated")

	return s.Get(ctx, id)
}

// Complete marks a follow-up done and stamps the company's last contact time.
func (s *FollowUpService) Complete(ctx context.Context, actorID, id string) (*models.FollowUp, error) {
	return s.transition(ctx, actorID, id, models.FollowUpStatusCompleted)
}

// Cancel marks a follow-up cancelled.
func (s *FollowUpService) Cancel(ctx context.Context, actorID, id string) (*models.FollowUp, error) {
	return s.transition(ctx, actorID, id, models.FollowUpStatusCancelled)
}

// Delete removes a follow-up.
func (s *FollowUpService) Delete(ctx context.Context, actorID, id string) error {
	ctx = ensureContext(ctx)

	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&models.FollowUp{}, "id = ?", id).Error; err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}

	s.recordActivity(ctx, actorID, ActionFollowUpDeleted, id, "Follow-up deleted")
	return nil
}

// DueToday returns the acting user's follow-ups due on the given day.
func (s *FollowUpService) DueToday(ctx context.Context, userID string, day time.Time) ([]models.FollowUp, error) {
	ctx = ensureContext(ctx)

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	var followUps []models.FollowUp
	query := s.db.WithContext(ctx).
		Preload("Company").
		Where("status = ?", models.FollowUpStatusPending).
		Where("due_at >= ? AND due_at < ?", start, end)
	if strings.TrimSpace(userID) != "" {
		query = query.Where("user_id = ?", userID)
	}

	if err := query.Order("due_at ASC").Find(&followUps).Error; err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return followUps, nil
}

func (s *FollowUpService) transition(ctx context.Context, actorID, id, status string) (*models.FollowUp, error) {
	ctx = ensureContext(ctx)

	followUp, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if followUp.Status != models.FollowUpStatusPending {
		return nil, apperrors.NewBadRequest("follow-up is already resolved")
	}

	now := s.now()
	updates := map[string]any{"status": status}
	if status == models.FollowUpStatusCompleted {
		updates["completed_at"] = &now
	}

	if err := s.db.WithContext(ctx).Model(followUp).Updates(updates).Error; err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	if status == models.FollowUpStatusCompleted {
		if err := s.companies.TouchLastContacted(ctx, followUp.CompanyID, now); err != nil {
			return nil, apperrors.ErrInternalServer.WithInternal(err)
		}
	}

	s.recordActivity(ctx, actorID, ActionFollowUpUpdated, followUp.ID,
		fmt.Sprintf("Follow-up marked %s", status))

	return s.Get(ctx, id)
}

func (s *FollowUpService) recordActivity(ctx context.Context, actorID, action, subjectID, description string) {
	entry := AuditEntry{
		Action:      action,
		SubjectType: "follow_up",
		SubjectID:   subjectID,
		Description: description,
	}
	if strings.TrimSpace(actorID) != "" {
		entry.UserID = &actorID
	}
	_ = s.audit.Record(ctx, entry)
}

func applyFollowUpFilters(query *gorm.DB, filters FollowUpFilters) *gorm.DB {
	if filters.CompanyID != "" {
		query = query.Where("company_id = ?", filters.CompanyID)
	}
	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.DueBefore != nil {
		query = query.Where("due_at < ?", *filters.DueBefore)
	}
	if filters.DueAfter != nil {
		query = query.Where("due_at >= ?", *filters.DueAfter)
	}
	return query
}
