package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/covecrm/covecrm/internal/auth/twofactor"
	"github.com/covecrm/covecrm/internal/models"
	apperrors "github.com/covecrm/covecrm/pkg/errors"
)

// TwoFactorSetup is returned by Generate so the client can render the
// enrolment screen.
type TwoFactorSetup struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRCodeSVG       string `json:"qr_code_svg"`
}

// TwoFactorStatus reports the state of a user's second factor.
type TwoFactorStatus struct {
	Enabled          bool       `json:"enabled"`
	EnabledAt        *time.Time `json:"enabled_at"`
	PendingSecret    bool       `json:"pending_secret"`
	EnforcedGlobally bool       `json:"enforced_globally"`
	GloballyEnforced bool       `json:"globally_enforced"`
}

// TwoFactorService manages the per-user two-factor lifecycle.
type TwoFactorService struct {
	db          *gorm.DB
	engine      *twofactor.Engine
	enforcement *EnforcementPolicy
	audit       *AuditService
	now         func() time.Time
}

// NewTwoFactorService constructs a TwoFactorService.
func NewTwoFactorService(db *gorm.DB, engine *twofactor.Engine, enforcement *EnforcementPolicy, audit *AuditService) (*TwoFactorService, error) {
	if db == nil {
		return nil, errors.New("twofactor service: db is required")
	}
	if engine == nil {
		return nil, errors.New("twofactor service: engine is required")
	}
	if enforcement == nil {
		return nil, errors.New("twofactor service: enforcement policy is required")
	}
	if audit == nil {
		return nil, errors.New("twofactor service: audit service is required")
	}

	return &TwoFactorService{
		db:          db,
		engine:      engine,
		enforcement: enforcement,
		audit:       audit,
		now:         time.Now,
	}, nil
}

// WithClock overrides the service clock, primarily for tests.
func (s *TwoFactorService) WithClock(clock func() time.Time) *TwoFactorService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Generate provisions a fresh secret for the user and stores it in the
// pending (not yet enabled) state. Calling it again replaces the pending
// secret; an already enabled factor is left untouched until Enable confirms
// the new secret.
func (s *TwoFactorService) Generate(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	ctx = ensureContext(ctx)

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	key, err := s.engine.GenerateSecret(user.Email)
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	secret := key.Secret()
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("two_factor_secret", &secret).Error; err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	svg, err := s.engine.QRCodeSVG(key.String())
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	return &TwoFactorSetup{
		Secret:          secret,
		ProvisioningURI: key.String(),
		QRCodeSVG:       svg,
	}, nil
}

// Enable confirms the pending secret with a live OTP and switches the factor
// on.
func (s *TwoFactorService) Enable(ctx context.Context, userID, otp string) error {
	ctx = ensureContext(ctx)

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}

	if user.TwoFactorSecret == nil || *user.TwoFactorSecret == "" {
		return apperrors.ErrMissingTwoFactorSecret
	}

	if !s.engine.Verify(*user.TwoFactorSecret, otp) {
		return apperrors.ErrInvalidOTP
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"two_factor_enabled":    true,
			"two_factor_enabled_at": &now,
		}).Error; err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}

	return s.audit.Record(ctx, AuditEntry{
		UserID:      &user.ID,
		Action:      ActionTwoFactorEnabled,
		Description: fmt.Sprintf("%s enabled two-factor authentication", user.Name),
	})
}

// Disable verifies a live OTP and clears the factor. All two-factor columns
// are reset in a single statement so a crash cannot leave a torn state.
func (s *TwoFactorService) Disable(ctx context.Context, userID, otp string) error {
	ctx = ensureContext(ctx)

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}

	if !user.HasTwoFactorEnabled() {
		return apperrors.ErrTwoFactorNotEnabled
	}

	if !s.engine.Verify(*user.TwoFactorSecret, otp) {
		return apperrors.ErrInvalidOTP
	}

	if err := s.clearTwoFactor(ctx, user.ID); err != nil {
		return err
	}

	return s.audit.Record(ctx, AuditEntry{
		UserID:      &user.ID,
		Action:      ActionTwoFactorDisabled,
		Description: fmt.Sprintf("%s disabled two-factor authentication", user.Name),
	})
}

// ForceDisable clears a user's factor without an OTP. It backs the signed
// disable-link flow and is idempotent: disabling an already disabled factor
// succeeds silently.
func (s *TwoFactorService) ForceDisable(ctx context.Context, userID string) error {
	ctx = ensureContext(ctx)

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}

	if !user.HasTwoFactorEnabled() && user.TwoFactorSecret == nil {
		return nil
	}

	return s.clearTwoFactor(ctx, user.ID)
}

// Status reports the user's two-factor state together with the global policy.
func (s *TwoFactorService) Status(ctx context.Context, userID string) (*TwoFactorStatus, error) {
	ctx = ensureContext(ctx)

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	policy, err := s.enforcement.Resolve(ctx)
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	return &TwoFactorStatus{
		Enabled:          user.HasTwoFactorEnabled(),
		EnabledAt:        user.TwoFactorEnabledAt,
		PendingSecret:    !user.TwoFactorEnabled && user.TwoFactorSecret != nil,
		EnforcedGlobally: user.TwoFactorEnforcedGlobally,
		GloballyEnforced: policy.Enforced,
	}, nil
}

// SetGlobalEnforcement flips the calling administrator's enforcement flag.
// Switching it on requires the administrator's own factor to be enabled, so
// the fallback secret always exists at the moment enforcement begins.
func (s *TwoFactorService) SetGlobalEnforcement(ctx context.Context, adminID string, enforce bool) error {
	ctx = ensureContext(ctx)

	user, err := s.loadUser(ctx, adminID)
	if err != nil {
		return err
	}

	if !user.HasRole(models.AdminRoleID) {
		return apperrors.ErrForbidden
	}

	if enforce && !user.HasTwoFactorEnabled() {
		return apperrors.ErrTwoFactorNotEnabled
	}

	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("two_factor_enforced_globally", enforce).Error; err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}

	s.enforcement.Invalidate()
	return nil
}

func (s *TwoFactorService) clearTwoFactor(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"two_factor_secret":            nil,
			"two_factor_enabled":           false,
			"two_factor_enabled_at":        nil,
			"two_factor_enforced_globally": false,
		}).Error
	if err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}

	// The user may have been the enforcing administrator.
	s.enforcement.Invalidate()
	return nil
}

func (s *TwoFactorService) loadUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Preload("Roles").Take(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return &user, nil
}
