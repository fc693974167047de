package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/covecrm/covecrm/internal/auth"
	"github.com/covecrm/covecrm/internal/auth/twofactor"
	"github.com/covecrm/covecrm/internal/cache"
	"github.com/covecrm/covecrm/internal/database/testutil"
	"github.com/covecrm/covecrm/internal/models"
	"github.com/covecrm/covecrm/pkg/crypto"
	"github.com/covecrm/covecrm/pkg/mail"
)

const testPassword = "correct-horse-battery"

// recordingMailer captures outgoing messages and can be told to fail.
type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	failNext bool
}

func (m *recordingMailer) Send(ctx context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNext {
		m.failNext = false
		return errors.New("smtp unreachable")
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

func newAudit(t *testing.T, db *gorm.DB) *AuditService {
	t.Helper()
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	return audit
}

func newEnforcement(t *testing.T, db *gorm.DB) *EnforcementPolicy {
	t.Helper()
	policy, err := NewEnforcementPolicy(db)
	require.NoError(t, err)
	return policy
}

func newSessions(t *testing.T, db *gorm.DB) *auth.SessionService {
	t.Helper()
	jwtService, err := auth.NewJWTService(auth.JWTConfig{Secret: "test-secret", Issuer: "covecrm"})
	require.NoError(t, err)
	sessions, err := auth.NewSessionService(db, jwtService, auth.SessionConfig{})
	require.NoError(t, err)
	return sessions
}

func seedUser(t *testing.T, db *gorm.DB, email string, roleIDs ...string) *models.User {
	t.Helper()

	hash, err := crypto.HashPassword(testPassword)
	require.NoError(t, err)

	user := &models.User{Name: "User " + email, Email: email, Password: hash, IsActive: true}
	require.NoError(t, db.Create(user).Error)

	for _, roleID := range roleIDs {
		var role models.Role
		require.NoError(t, db.Take(&role, "id = ?", roleID).Error)
		require.NoError(t, db.Model(user).Association("Roles").Append(&role))
	}

	loaded := &models.User{}
	require.NoError(t, db.Preload("Roles").Take(loaded, "id = ?", user.ID).Error)
	return loaded
}

// enableTwoFactor provisions and enables a factor directly in the database,
// returning the secret.
func enableTwoFactor(t *testing.T, db *gorm.DB, userID string, engine *twofactor.Engine) string {
	t.Helper()

	key, err := engine.GenerateSecret("test@example.com")
	require.NoError(t, err)

	secret := key.Secret()
	now := time.Now()
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]any{
		"two_factor_secret":     &secret,
		"two_factor_enabled":    true,
		"two_factor_enabled_at": &now,
	}).Error)
	return secret
}

func newCacheStore(t *testing.T, db *gorm.DB) cache.Store {
	t.Helper()
	return cache.NewDatabaseStore(db)
}

func openServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithSeedData())
}

func requireActivity(t *testing.T, db *gorm.DB, action string) models.ActivityLog {
	t.Helper()

	var log models.ActivityLog
	require.NoError(t, db.Take(&log, "action = ?", action).Error)
	return log
}
