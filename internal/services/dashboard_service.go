package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/covecrm/covecrm/internal/models"
	apperrors "github.com/covecrm/covecrm/pkg/errors"
)

// DashboardSummary aggregates the landing-page counters.
type DashboardSummary struct {
	TotalCompanies    int64             `json:"total_companies"`
	CompaniesByStatus map[string]int64  `json:"companies_by_status"`
	FollowUpsToday    []models.FollowUp `json:"follow_ups_today"`
	OverdueFollowUps  int64             `json:"overdue_follow_ups"`
	ActivityToday     int64             `json:"activity_today"`
}

// DashboardService computes aggregate counters for the landing page.
type DashboardService struct {
	db        *gorm.DB
	followUps *FollowUpService
	now       func() time.Time
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(db *gorm.DB, followUps *FollowUpService) (*DashboardService, error) {
	if db == nil {
		return nil, errors.New("dashboard service: db is required")
	}
	if followUps == nil {
		return nil, errors.New("dashboard service: followup service is required")
	}
	return &DashboardService{db: db, followUps: followUps, now: time.Now}, nil
}

// WithClock overrides the service clock, primarily for tests.
func (s *DashboardService) WithClock(clock func() time.Time) *DashboardService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Summary builds the dashboard for the acting user.
func (s *DashboardService) Summary(ctx context.Context, userID string) (*DashboardSummary, error) {
	ctx = ensureContext(ctx)
	now := s.now()

	summary := &DashboardSummary{
		CompaniesByStatus: make(map[string]int64, len(companyStatuses)),
	}

	if err := s.db.WithContext(ctx).Model(&models.Company{}).Count(&summary.TotalCompanies).Error; err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	type statusCount struct {
		Status string
		Count  int64
	}
	var counts []statusCount
	if err := s.db.WithContext(ctx).Model(&models.Company{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&counts).Error; err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	for _, row := range counts {
		summary.CompaniesByStatus[row.Status] = row.Count
	}

	followUps, err := s.followUps.DueToday(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	summary.FollowUpsToday = followUps

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if err := s.db.WithContext(ctx).Model(&models.FollowUp{}).
		Where("status = ? AND due_at < ?", models.FollowUpStatusPending, startOfDay).
		Count(&summary.OverdueFollowUps).Error; err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	if err := s.db.WithContext(ctx).Model(&models.ActivityLog{}).
		Where("created_at >= ?", startOfDay).
		Count(&summary.ActivityToday).Error; err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	return summary, nil
}
