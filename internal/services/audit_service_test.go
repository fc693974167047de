package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/covecrm/covecrm/internal/models"
)

func TestAuditRecordAndList(t *testing.T) {
	db := openServiceDB(t)
	audit := newAudit(t, db)
	user := seedUser(t, db, "alice@example.com")

	require.NoError(t, audit.Record(context.Background(), AuditEntry{
		UserID:      &user.ID,
		Action:      ActionLogin,
		Description: "Alice logged in",
		Properties:  map[string]any{"ip_class": "internal"},
		IPAddress:   "10.0.0.1",
		UserAgent:   "go-test",
	}))
	require.NoError(t, audit.Record(context.Background(), AuditEntry{
		Action:      ActionDailyReportSent,
		Description: "report sent",
	}))

	logs, total, err := audit.List(context.Background(), AuditListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, logs, 2)

	// Filtered by user.
	logs, total, err = audit.List(context.Background(), AuditListOptions{
		Filters: AuditFilters{UserID: user.ID},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, ActionLogin, logs[0].Action)
	require.NotNil(t, logs[0].User)
	require.Equal(t, "alice@example.com", logs[0].User.Email)

	// Filtered by action.
	_, total, err = audit.List(context.Background(), AuditListOptions{
		Filters: AuditFilters{Action: ActionDailyReportSent},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
}

func TestAuditRecordRequiresAction(t *testing.T) {
	db := openServiceDB(t)
	audit := newAudit(t, db)

	require.Error(t, audit.Record(context.Background(), AuditEntry{Description: "missing action"}))
}

func TestAuditListBetween(t *testing.T) {
	db := openServiceDB(t)
	audit := newAudit(t, db)

	old := models.ActivityLog{Action: ActionLogin, CreatedAt: time.Now().AddDate(0, 0, -3)}
	require.NoError(t, db.Create(&old).Error)
	recent := models.ActivityLog{Action: ActionLogin, CreatedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, db.Create(&recent).Error)

	since := time.Now().AddDate(0, 0, -1)
	logs, err := audit.ListBetween(context.Background(), since, time.Now())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, recent.ID, logs[0].ID)
}

func TestAuditCleanupOlderThan(t *testing.T) {
	db := openServiceDB(t)
	audit := newAudit(t, db)

	old := models.ActivityLog{Action: ActionLogin, CreatedAt: time.Now().AddDate(0, 0, -90)}
	require.NoError(t, db.Create(&old).Error)
	recent := models.ActivityLog{Action: ActionLogin, CreatedAt: time.Now()}
	require.NoError(t, db.Create(&recent).Error)

	removed, err := audit.CleanupOlderThan(context.Background(), 30)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	_, err = audit.CleanupOlderThan(context.Background(), 0)
	require.Error(t, err)
}
