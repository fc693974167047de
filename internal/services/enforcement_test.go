package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/covecrm/covecrm/internal/auth/twofactor"
	"github.com/covecrm/covecrm/internal/models"
)

func TestEnforcementDisabledByDefault(t *testing.T) {
	db := openServiceDB(t)
	policy := newEnforcement(t, db)

	state, err := policy.Resolve(context.Background())
	require.NoError(t, err)
	require.False(t, state.Enforced)
	require.Empty(t, state.FallbackSecret)
}

func TestEnforcementIgnoresNonAdmins(t *testing.T) {
	db := openServiceDB(t)
	policy := newEnforcement(t, db)
	engine := twofactor.NewEngine()

	user := seedUser(t, db, "bob@example.com")
	enableTwoFactor(t, db, user.ID, engine)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("two_factor_enforced_globally", true).Error)

	state, err := policy.Resolve(context.Background())
	require.NoError(t, err)
	require.False(t, state.Enforced)
}

func TestEnforcementCachesUntilInvalidated(t *testing.T) {
	db := openServiceDB(t)
	policy := newEnforcement(t, db)
	engine := twofactor.NewEngine()

	state, err := policy.Resolve(context.Background())
	require.NoError(t, err)
	require.False(t, state.Enforced)

	admin := seedUser(t, db, "admin@example.com", models.AdminRoleID)
	secret := enableTwoFactor(t, db, admin.ID, engine)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", admin.ID).
		Update("two_factor_enforced_globally", true).Error)

	// Still the cached answer.
	state, err = policy.Resolve(context.Background())
	require.NoError(t, err)
	require.False(t, state.Enforced)

	policy.Invalidate()

	state, err = policy.Resolve(context.Background())
	require.NoError(t, err)
	require.True(t, state.Enforced)
	require.Equal(t, secret, state.FallbackSecret)
	require.Equal(t, admin.ID, state.EnforcedBy)
}

func TestEnforcementCacheAgesOut(t *testing.T) {
	db := openServiceDB(t)
	engine := twofactor.NewEngine()

	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	policy := newEnforcement(t, db).WithClock(func() time.Time { return now })

	state, err := policy.Resolve(context.Background())
	require.NoError(t, err)
	require.False(t, state.Enforced)

	// A write this instance never hears about, e.g. on another replica.
	admin := seedUser(t, db, "admin@example.com", models.AdminRoleID)
	secret := enableTwoFactor(t, db, admin.ID, engine)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", admin.ID).
		Update("two_factor_enforced_globally", true).Error)

	// Within the TTL the stale answer is served.
	now = now.Add(29 * time.Second)
	state, err = policy.Resolve(context.Background())
	require.NoError(t, err)
	require.False(t, state.Enforced)

	// Past the TTL the entry is recomputed without any Invalidate call.
	now = now.Add(2 * time.Second)
	state, err = policy.Resolve(context.Background())
	require.NoError(t, err)
	require.True(t, state.Enforced)
	require.Equal(t, secret, state.FallbackSecret)
}

func TestEnforcementWithoutUsableSecret(t *testing.T) {
	db := openServiceDB(t)
	policy := newEnforcement(t, db)

	admin := seedUser(t, db, "admin@example.com", models.AdminRoleID)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", admin.ID).
		Update("two_factor_enforced_globally", true).Error)

	state, err := policy.Resolve(context.Background())
	require.NoError(t, err)
	require.True(t, state.Enforced)
	require.Empty(t, state.FallbackSecret)
}
