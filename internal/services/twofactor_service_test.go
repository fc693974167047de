package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/covecrm/covecrm/internal/auth/twofactor"
	"github.com/covecrm/covecrm/internal/models"
	apperrors "github.com/covecrm/covecrm/pkg/errors"
)

func newTwoFactorService(t *testing.T, db *gorm.DB, engine *twofactor.Engine) (*TwoFactorService, *EnforcementPolicy) {
	t.Helper()

	enforcement := newEnforcement(t, db)
	svc, err := NewTwoFactorService(db, engine, enforcement, newAudit(t, db))
	require.NoError(t, err)
	return svc, enforcement
}

func TestGenerateStoresPendingSecret(t *testing.T) {
	db := openServiceDB(t)
	engine := twofactor.NewEngine()
	svc, _ := newTwoFactorService(t, db, engine)
	user := seedUser(t, db, "alice@example.com")

	setup, err := svc.Generate(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, setup.Secret)
	require.Contains(t, setup.ProvisioningURI, "otpauth://totp/")
	require.Contains(t, setup.QRCodeSVG, "<svg ")

	status, err := svc.Status(context.Background(), user.ID)
	require.NoError(t, err)
	require.False(t, status.Enabled)
	require.True(t, status.PendingSecret)

	// A second call replaces the pending secret.
	again, err := svc.Generate(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotEqual(t, setup.Secret, again.Secret)
}

func TestEnableRequiresSecretAndValidOTP(t *testing.T) {
	db := openServiceDB(t)
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	engine := twofactor.NewEngine(twofactor.WithClock(func() time.Time { return now }))
	svc, _ := newTwoFactorService(t, db, engine)
	user := seedUser(t, db, "alice@example.com")

	require.ErrorIs(t, svc.Enable(context.Background(), user.ID, "123456"), apperrors.ErrMissingTwoFactorSecret)

	setup, err := svc.Generate(context.Background(), user.ID)
	require.NoError(t, err)

	require.ErrorIs(t, svc.Enable(context.Background(), user.ID, "000000"), apperrors.ErrInvalidOTP)

	code, err := engine.CurrentCode(setup.Secret)
	require.NoError(t, err)
	require.NoError(t, svc.Enable(context.Background(), user.ID, code))

	status, err := svc.Status(context.Background(), user.ID)
	require.NoError(t, err)
	require.True(t, status.Enabled)
	require.NotNil(t, status.EnabledAt)

	requireActivity(t, db, ActionTwoFactorEnabled)
}

func TestDisableClearsAllColumns(t *testing.T) {
	db := openServiceDB(t)
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	engine := twofactor.NewEngine(twofactor.WithClock(func() time.Time { return now }))
	svc, _ := newTwoFactorService(t, db, engine)
	user := seedUser(t, db, "alice@example.com", models.AdminRoleID)
	secret := enableTwoFactor(t, db, user.ID, engine)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("two_factor_enforced_globally", true).Error)

	require.ErrorIs(t, svc.Disable(context.Background(), user.ID, "000000"), apperrors.ErrInvalidOTP)

	code, err := engine.CurrentCode(secret)
	require.NoError(t, err)
	require.NoError(t, svc.Disable(context.Background(), user.ID, code))

	var reloaded models.User
	require.NoError(t, db.Take(&reloaded, "id = ?", user.ID).Error)
	require.Nil(t, reloaded.TwoFactorSecret)
	require.False(t, reloaded.TwoFactorEnabled)
	require.Nil(t, reloaded.TwoFactorEnabledAt)
	require.False(t, reloaded.TwoFactorEnforcedGlobally)

	requireActivity(t, db, ActionTwoFactorDisabled)
}

func TestEnableAfterDisableNeedsFreshSecret(t *testing.T) {
	db := openServiceDB(t)
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	engine := twofactor.NewEngine(twofactor.WithClock(func() time.Time { return now }))
	svc, _ := newTwoFactorService(t, db, engine)
	user := seedUser(t, db, "alice@example.com")
	secret := enableTwoFactor(t, db, user.ID, engine)

	staleCode, err := engine.CurrentCode(secret)
	require.NoError(t, err)
	require.NoError(t, svc.Disable(context.Background(), user.ID, staleCode))

	// Disable cleared the secret, so the old code cannot re-enable; a new
	// Generate round is required first.
	require.ErrorIs(t, svc.Enable(context.Background(), user.ID, staleCode), apperrors.ErrMissingTwoFactorSecret)

	setup, err := svc.Generate(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotEqual(t, secret, setup.Secret)

	code, err := engine.CurrentCode(setup.Secret)
	require.NoError(t, err)
	require.NoError(t, svc.Enable(context.Background(), user.ID, code))
}

func TestDisableWhenNotEnabled(t *testing.T) {
	db := openServiceDB(t)
	engine := twofactor.NewEngine()
	svc, _ := newTwoFactorService(t, db, engine)
	user := seedUser(t, db, "alice@example.com")

	require.ErrorIs(t, svc.Disable(context.Background(), user.ID, "123456"), apperrors.ErrTwoFactorNotEnabled)
}

func TestForceDisableIsIdempotent(t *testing.T) {
	db := openServiceDB(t)
	engine := twofactor.NewEngine()
	svc, _ := newTwoFactorService(t, db, engine)
	user := seedUser(t, db, "alice@example.com")
	enableTwoFactor(t, db, user.ID, engine)

	require.NoError(t, svc.ForceDisable(context.Background(), user.ID))
	require.NoError(t, svc.ForceDisable(context.Background(), user.ID))

	var reloaded models.User
	require.NoError(t, db.Take(&reloaded, "id = ?", user.ID).Error)
	require.False(t, reloaded.TwoFactorEnabled)
}

func TestSetGlobalEnforcement(t *testing.T) {
	db := openServiceDB(t)
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	engine := twofactor.NewEngine(twofactor.WithClock(func() time.Time { return now }))
	svc, enforcement := newTwoFactorService(t, db, engine)

	admin := seedUser(t, db, "admin@example.com", models.AdminRoleID)
	regular := seedUser(t, db, "bob@example.com")

	// Non-admins cannot enforce.
	require.ErrorIs(t, svc.SetGlobalEnforcement(context.Background(), regular.ID, true), apperrors.ErrForbidden)

	// An admin without an enabled factor cannot switch enforcement on.
	require.ErrorIs(t, svc.SetGlobalEnforcement(context.Background(), admin.ID, true), apperrors.ErrTwoFactorNotEnabled)

	enableTwoFactor(t, db, admin.ID, engine)
	require.NoError(t, svc.SetGlobalEnforcement(context.Background(), admin.ID, true))

	state, err := enforcement.Resolve(context.Background())
	require.NoError(t, err)
	require.True(t, state.Enforced)
	require.Equal(t, admin.ID, state.EnforcedBy)
	require.NotEmpty(t, state.FallbackSecret)

	// Switching off is always allowed and refreshes the cache.
	require.NoError(t, svc.SetGlobalEnforcement(context.Background(), admin.ID, false))
	state, err = enforcement.Resolve(context.Background())
	require.NoError(t, err)
	require.False(t, state.Enforced)
}
