package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/covecrm/covecrm/internal/auth"
	"github.com/covecrm/covecrm/internal/database/testutil"
	"github.com/covecrm/covecrm/internal/models"
	"github.com/covecrm/covecrm/pkg/crypto"
)

func newSessionService(t *testing.T, db *gorm.DB) *auth.SessionService {
	t.Helper()

	jwtService, err := auth.NewJWTService(auth.JWTConfig{Secret: "test-secret", Issuer: "covecrm"})
	require.NoError(t, err)

	svc, err := auth.NewSessionService(db, jwtService, auth.SessionConfig{})
	require.NoError(t, err)
	return svc
}

func createUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hash, err := crypto.HashPassword("password-123")
	require.NoError(t, err)

	user := &models.User{Name: "Test User", Email: email, Password: hash, IsActive: true}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestCreateSessionIssuesTokenPair(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	svc := newSessionService(t, db)
	user := createUser(t, db, "alice@example.com")

	pair, session, err := svc.CreateSession(user.ID, auth.SessionMetadata{IPAddress: "10.0.0.1", UserAgent: "go-test"})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, user.ID, session.UserID)
	require.Equal(t, "10.0.0.1", session.IPAddress)
	require.True(t, session.ExpiresAt.After(time.Now()))
}

func TestRefreshSessionRotatesToken(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	svc := newSessionService(t, db)
	user := createUser(t, db, "alice@example.com")

	pair, _, err := svc.CreateSession(user.ID, auth.SessionMetadata{})
	require.NoError(t, err)

	rotated, session, err := svc.RefreshSession(pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	require.Equal(t, user.ID, session.UserID)

	// The old token is no longer usable.
	_, _, err = svc.RefreshSession(pair.RefreshToken)
	require.ErrorIs(t, err, auth.ErrSessionNotFound)
}

func TestRevokeSession(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	svc := newSessionService(t, db)
	user := createUser(t, db, "alice@example.com")

	pair, session, err := svc.CreateSession(user.ID, auth.SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeSession(session.ID))

	_, _, err = svc.RefreshSession(pair.RefreshToken)
	require.ErrorIs(t, err, auth.ErrSessionRevoked)

	require.ErrorIs(t, svc.RevokeSession(session.ID), auth.ErrSessionNotFound)
}

func TestRevokeUserSessions(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	svc := newSessionService(t, db)
	user := createUser(t, db, "alice@example.com")

	first, _, err := svc.CreateSession(user.ID, auth.SessionMetadata{})
	require.NoError(t, err)
	second, _, err := svc.CreateSession(user.ID, auth.SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeUserSessions(user.ID))

	_, _, err = svc.RefreshSession(first.RefreshToken)
	require.ErrorIs(t, err, auth.ErrSessionRevoked)
	_, _, err = svc.RefreshSession(second.RefreshToken)
	require.ErrorIs(t, err, auth.ErrSessionRevoked)
}

func TestCleanupExpired(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	svc := newSessionService(t, db)
	user := createUser(t, db, "alice@example.com")

	_, session, err := svc.CreateSession(user.ID, auth.SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Session{}).
		Where("id = ?", session.ID).
		Update("expires_at", time.Now().Add(-time.Hour)).Error)

	removed, err := svc.CleanupExpired(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var count int64
	require.NoError(t, db.Model(&models.Session{}).Count(&count).Error)
	require.Zero(t, count)
}
