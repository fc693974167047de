package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/covecrm/covecrm/internal/models"
)

// Audit actions recorded by the authentication and CRM flows.
const (
	ActionLogin             = "login"
	ActionTwoFactorEnabled  = "2fa_enabled"
	ActionTwoFactorDisabled = "2fa_disabled"
	ActionDisableRequested  = "2fa_disable_requested"
	ActionDisabledViaEmail  = "2fa_disabled_via_email"
	ActionBackupOTPSent     = "backup_otp_sent"
	ActionEmailOTPVerified  = "email_otp_verified"
	ActionCompanyCreated    = "company_created"
	ActionCompanyUpdated    = "company_updated"
	ActionCompanyDeleted    = "company_deleted"
	ActionFollowUpCreated   = "follow_up_created"
	ActionFollowUpUpdated   = "follow_up_updated"
	ActionFollowUpDeleted   = "follow_up_deleted"
	ActionStaffCreated      = "staff_created"
	ActionStaffUpdated      = "staff_updated"
	ActionStaffDeleted      = "staff_deleted"
	ActionDailyReportSent   = "daily_report_sent"
)

// AuditEntry captures a single activity event to persist.
type AuditEntry struct {
	UserID      *string
	Action      string
	SubjectType string
	SubjectID   string
	Description string
	Properties  map[string]any
	IPAddress   string
	UserAgent   string
}

// AuditFilters encapsulates optional filters when querying activity logs.
type AuditFilters struct {
	UserID string
	Action string
	Since  *time.Time
	Until  *time.Time
}

// AuditListOptions controls pagination and filtering for activity queries.
type AuditListOptions struct {
	Page     int
	PageSize int
	Filters  AuditFilters
}

// AuditService persists and retrieves activity log entries.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db}, nil
}

// Record stores an activity entry, marshalling properties into JSON form.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(entry.Action) == "" {
		return errors.New("audit service: action is required")
	}

	log := models.ActivityLog{
		Action:      strings.TrimSpace(entry.Action),
		SubjectType: strings.TrimSpace(entry.SubjectType),
		SubjectID:   strings.TrimSpace(entry.SubjectID),
		Description: strings.TrimSpace(entry.Description),
		IPAddress:   strings.TrimSpace(entry.IPAddress),
		UserAgent:   strings.TrimSpace(entry.UserAgent),
	}

	if entry.Properties != nil {
		encoded, err := json.Marshal(entry.Properties)
		if err != nil {
			return fmt.Errorf("audit service: marshal properties: %w", err)
		}
		log.Properties = encoded
	}

	if entry.UserID != nil && strings.TrimSpace(*entry.UserID) != "" {
		id := strings.TrimSpace(*entry.UserID)
		log.UserID = &id
	}

	return s.db.WithContext(ctx).Create(&log).Error
}

// List returns paginated activity logs ordered by creation time descending.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.ActivityLog, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	var (
		results []models.ActivityLog
		total   int64
	)

	query := s.db.WithContext(ctx).Model(&models.ActivityLog{})
	query = applyAuditFilters(query, opts.Filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count logs: %w", err)
	}

	if err := query.
		Preload("User").
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: list logs: %w", err)
	}

	return results, total, nil
}

// ListBetween returns all activity in a closed time range, oldest first.
// Used by the daily report job.
func (s *AuditService) ListBetween(ctx context.Context, since, until time.Time) ([]models.ActivityLog, error) {
	ctx = ensureContext(ctx)

	var logs []models.ActivityLog
	if err := s.db.WithContext(ctx).
		Preload("User").
		Where("created_at >= ? AND created_at < ?", since, until).
		Order("created_at ASC").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("audit service: list between: %w", err)
	}
	return logs, nil
}

// CleanupOlderThan removes activity logs older than the supplied retention window (in days).
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)

	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.ActivityLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup logs: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func applyAuditFilters(query *gorm.DB, filters AuditFilters) *gorm.DB {
	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("created_at <= ?", *filters.Until)
	}
	return query
}
