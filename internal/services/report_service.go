package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/covecrm/covecrm/internal/models"
	apperrors "github.com/covecrm/covecrm/pkg/errors"
	"github.com/covecrm/covecrm/pkg/mail"
)

// ReportService renders and delivers the daily activity digest.
type ReportService struct {
	audit  *AuditService
	users  *UserService
	mailer mail.Mailer
	now    func() time.Time
}

// NewReportService constructs a ReportService.
func NewReportService(audit *AuditService, users *UserService, mailer mail.Mailer) (*ReportService, error) {
	if audit == nil {
		return nil, errors.New("report service: audit service is required")
	}
	if users == nil {
		return nil, errors.New("report service: user service is required")
	}
	if mailer == nil {
		return nil, errors.New("report service: mailer is required")
	}
	return &ReportService{audit: audit, users: users, mailer: mailer, now: time.Now}, nil
}

// WithClock overrides the service clock, primarily for tests.
func (s *ReportService) WithClock(clock func() time.Time) *ReportService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// SendDaily emails yesterday's activity summary to the first administrator
// and returns the number of entries covered.
func (s *ReportService) SendDaily(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)

	now := s.now()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	start := end.AddDate(0, 0, -1)

	logs, err := s.audit.ListBetween(ctx, start, end)
	if err != nil {
		return 0, apperrors.ErrInternalServer.WithInternal(err)
	}

	recipient, err := s.users.FirstAdminEmail(ctx)
	if err != nil {
		return 0, err
	}

	body := renderDailyReport(start, logs)
	msg := mail.Message{
		To:      []string{recipient},
		Subject: fmt.Sprintf("CoveCRM daily activity report for %s", start.Format("2006-01-02")),
		Body:    body,
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		return 0, apperrors.ErrMailDelivery.WithInternal(err)
	}

	if err := s.audit.Record(ctx, AuditEntry{
		Action:      ActionDailyReportSent,
		Description: fmt.Sprintf("Daily report for %s sent (%d entries)", start.Format("2006-01-02"), len(logs)),
		Properties:  map[string]any{"entries": len(logs)},
	}); err != nil {
		return len(logs), nil
	}

	return len(logs), nil
}

func renderDailyReport(day time.Time, logs []models.ActivityLog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Activity report for %s\n", day.Format("Monday, 2 January 2006"))
	fmt.Fprintf(&b, "Total entries: %d\n\n", len(logs))

	if len(logs) == 0 {
		b.WriteString("No activity was recorded.\n")
		return b.String()
	}

	byAction := make(map[string]int)
	for _, log := range logs {
		byAction[log.Action]++
	}
	b.WriteString("By action:\n")
	for _, log := range logs {
		if count, ok := byAction[log.Action]; ok {
			fmt.Fprintf(&b, "  %-24s %d\n", log.Action, count)
			delete(byAction, log.Action)
		}
	}

	b.WriteString("\nTimeline:\n")
	for _, log := range logs {
		who := "system"
		if log.User != nil {
			who = log.User.Name
		}
		description := log.Description
		if description == "" {
			description = log.Action
		}
		fmt.Fprintf(&b, "  %s  %-16s %s\n", log.CreatedAt.Format("15:04"), who, description)
	}

	return b.String()
}
