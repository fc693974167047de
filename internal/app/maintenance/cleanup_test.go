package maintenance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/covecrm/covecrm/internal/auth"
	testutil "github.com/covecrm/covecrm/internal/database/testutil"
	"github.com/covecrm/covecrm/internal/models"
	"github.com/covecrm/covecrm/internal/services"
	"github.com/covecrm/covecrm/pkg/crypto"
	"github.com/covecrm/covecrm/pkg/mail"
)

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "cleanup-secret",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, iauth.SessionConfig{
		RefreshTokenTTL: time.Hour,
		RefreshLength:   16,
	})
	require.NoError(t, err)

	admin := seedUser(t, db, "cleanup-admin@example.com", models.AdminRoleID)

	_, expiredSession, err := sessionSvc.CreateSession(admin.ID, iauth.SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Session{}).Where("id = ?", expiredSession.ID).
		Update("expires_at", time.Now().Add(-2*time.Hour)).Error)

	_, activeSession, err := sessionSvc.CreateSession(admin.ID, iauth.SessionMetadata{})
	require.NoError(t, err)

	_, revokedSession, err := sessionSvc.CreateSession(admin.ID, iauth.SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, sessionSvc.RevokeSession(revokedSession.ID))

	// One entry older than the retention window, one from yesterday so the
	// daily report has something to summarise.
	require.NoError(t, auditSvc.Record(context.Background(), services.AuditEntry{
		Action:      services.ActionCompanyCreated,
		Description: "Created company Stale Ltd",
	}))
	var stale models.ActivityLog
	require.NoError(t, db.First(&stale).Error)
	require.NoError(t, db.Model(&stale).Update("created_at", time.Now().AddDate(0, 0, -10)).Error)

	require.NoError(t, auditSvc.Record(context.Background(), services.AuditEntry{
		Action:      services.ActionCompanyCreated,
		Description: "Created company Fresh GmbH",
	}))
	var fresh models.ActivityLog
	require.NoError(t, db.Where("description = ?", "Created company Fresh GmbH").First(&fresh).Error)
	require.NoError(t, db.Model(&fresh).Update("created_at", time.Now().Add(-24*time.Hour)).Error)

	usersSvc, err := services.NewUserService(db)
	require.NoError(t, err)

	mailer := &countingMailer{}
	reportSvc, err := services.NewReportService(auditSvc, usersSvc, mailer)
	require.NoError(t, err)

	c := NewCleaner(sessionSvc, auditSvc, reportSvc,
		WithAuditRetentionDays(7),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)

	require.NoError(t, c.RunOnce(context.Background()))

	assertGone := func(id string) {
		var s models.Session
		err := db.First(&s, "id = ?", id).Error
		require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	}

	assertGone(expiredSession.ID)
	assertGone(revokedSession.ID)

	var remaining models.Session
	require.NoError(t, db.First(&remaining, "id = ?", activeSession.ID).Error)

	var staleCount int64
	require.NoError(t, db.Model(&models.ActivityLog{}).
		Where("description = ?", "Created company Stale Ltd").Count(&staleCount).Error)
	require.Equal(t, int64(0), staleCount)

	require.Equal(t, 1, mailer.count())
}

func TestCleanerStartSkipsNilDependencies(t *testing.T) {
	c := NewCleaner(nil, nil, nil)
	require.NoError(t, c.Start())
	<-c.Stop().Done()
}

func seedUser(t *testing.T, db *gorm.DB, email string, roleIDs ...string) *models.User {
	t.Helper()

	hash, err := crypto.HashPassword("Password123!")
	require.NoError(t, err)

	user := &models.User{
		Name:     "User " + email,
		Email:    email,
		Password: hash,
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)

	for _, roleID := range roleIDs {
		var role models.Role
		require.NoError(t, db.Take(&role, "id = ?", roleID).Error)
		require.NoError(t, db.Model(user).Association("Roles").Append(&role))
	}
	return user
}

type countingMailer struct {
	mu   sync.Mutex
	sent int
}

func (m *countingMailer) Send(_ context.Context, _ mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent++
	return nil
}

func (m *countingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}
