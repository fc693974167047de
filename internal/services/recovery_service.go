package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/covecrm/covecrm/internal/auth/twofactor"
	"github.com/covecrm/covecrm/internal/cache"
	"github.com/covecrm/covecrm/internal/models"
	apperrors "github.com/covecrm/covecrm/pkg/errors"
	"github.com/covecrm/covecrm/pkg/logger"
	"github.com/covecrm/covecrm/pkg/mail"
	"github.com/covecrm/covecrm/pkg/metrics"
)

// Rate-limit cache key prefixes, one window per user per purpose.
const (
	otpEmailKeyPrefix    = "otp_email:"
	disableLinkKeyPrefix = "disable_link:"
)

// RecoveryConfig tunes the backup channel.
type RecoveryConfig struct {
	// RateLimit is the number of emails allowed per user per window.
	RateLimit int64
	// RateWindow is the rolling window the limit applies to.
	RateWindow time.Duration
	// BackupEmailOverride redirects all recovery mail to a fixed address when
	// set. Meant for staging environments.
	BackupEmailOverride string
}

// RecoveryService delivers one-time codes and signed disable links over the
// email backup channel for users locked out of their authenticator.
type RecoveryService struct {
	db        *gorm.DB
	engine    *twofactor.Engine
	signer    *twofactor.LinkSigner
	store     cache.Store
	mailer    mail.Mailer
	audit     *AuditService
	twoFactor *TwoFactorService

	limit          int64
	window         time.Duration
	backupOverride string
}

// NewRecoveryService constructs a RecoveryService.
func NewRecoveryService(db *gorm.DB, engine *twofactor.Engine, signer *twofactor.LinkSigner, store cache.Store, mailer mail.Mailer, audit *AuditService, twoFactor *TwoFactorService, cfg RecoveryConfig) (*RecoveryService, error) {
	if db == nil {
		return nil, errors.New("recovery service: db is required")
	}
	if engine == nil {
		return nil, errors.New("recovery service: engine is required")
	}
	if signer == nil {
		return nil, errors.New("recovery service: link signer is required")
	}
	if store == nil {
		return nil, errors.New("recovery service: cache store is required")
	}
	if mailer == nil {
		return nil, errors.New("recovery service: mailer is required")
	}
	if audit == nil {
		return nil, errors.New("recovery service: audit service is required")
	}
	if twoFactor == nil {
		return nil, errors.New("recovery service: twofactor service is required")
	}

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 3
	}
	window := cfg.RateWindow
	if window <= 0 {
		window = time.Hour
	}

	return &RecoveryService{
		db:             db,
		engine:         engine,
		signer:         signer,
		store:          store,
		mailer:         mailer,
		audit:          audit,
		twoFactor:      twoFactor,
		limit:          limit,
		window:         window,
		backupOverride: strings.TrimSpace(cfg.BackupEmailOverride),
	}, nil
}

// RequestCode emails the current one-time code to the user's backup address
// and returns the masked address the client may display.
func (s *RecoveryService) RequestCode(ctx context.Context, email, ip, userAgent string) (string, error) {
	ctx = ensureContext(ctx)

	user, err := s.findUser(ctx, email)
	if err != nil {
		return "", err
	}

	secret, err := s.resolveSecret(ctx, user)
	if err != nil {
		return "", err
	}

	if err := s.consumeQuota(ctx, otpEmailKeyPrefix+user.ID); err != nil {
		return "", err
	}

	code, err := s.engine.CurrentCode(secret)
	if err != nil {
		s.refundQuota(ctx, otpEmailKeyPrefix+user.ID)
		return "", apperrors.ErrInternalServer.WithInternal(err)
	}

	target := s.backupAddress(user)
	msg := mail.Message{
		To:      []string{target},
		Subject: "Your CoveCRM login code",
		Body: fmt.Sprintf("Hello %s,\n\nYour one-time login code is: %s\n\n"+
			"It is valid for a short time only. If you did not request this code, you can ignore this email.\n",
			user.Name, code),
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		// The quota was consumed up front; give it back since nothing left.
		s.refundQuota(ctx, otpEmailKeyPrefix+user.ID)
		metrics.OTPEmails.WithLabelValues("backup_otp", "failure").Inc()
		return "", apperrors.ErrMailDelivery.WithInternal(err)
	}

	metrics.OTPEmails.WithLabelValues("backup_otp", "success").Inc()

	masked := MaskEmail(target)
	if err := s.audit.Record(ctx, AuditEntry{
		UserID:      &user.ID,
		Action:      ActionBackupOTPSent,
		Description: fmt.Sprintf("Backup OTP sent to %s", masked),
		Properties:  map[string]any{"masked_email": masked},
		IPAddress:   ip,
		UserAgent:   userAgent,
	}); err != nil {
		logger.Logger().Warn("record backup otp activity", zap.Error(err), zap.String("user_id", user.ID))
	}

	return masked, nil
}

// VerifyCode checks a code delivered over the backup channel. It performs no
// session issuance; the client resubmits credentials through login.
func (s *RecoveryService) VerifyCode(ctx context.Context, email, otp string) error {
	ctx = ensureContext(ctx)

	user, err := s.findUser(ctx, email)
	if err != nil {
		return err
	}

	secret, err := s.resolveSecret(ctx, user)
	if err != nil {
		return err
	}

	if !s.engine.Verify(secret, otp) {
		return apperrors.ErrInvalidOTP
	}

	if err := s.audit.Record(ctx, AuditEntry{
		UserID:      &user.ID,
		Action:      ActionEmailOTPVerified,
		Description: fmt.Sprintf("%s verified an emailed OTP", user.Name),
	}); err != nil {
		logger.Logger().Warn("record otp verification activity", zap.Error(err), zap.String("user_id", user.ID))
	}

	return nil
}

// RequestDisableLink emails a signed, time-limited link that disables the
// caller's two-factor settings when followed. The caller is already
// authenticated; only the confirmation step works without a session.
func (s *RecoveryService) RequestDisableLink(ctx context.Context, userID, ip, userAgent string) (string, error) {
	ctx = ensureContext(ctx)

	user, err := s.findUserByID(ctx, userID)
	if err != nil {
		return "", err
	}

	if !user.HasTwoFactorEnabled() {
		return "", apperrors.ErrTwoFactorNotEnabled
	}

	if err := s.consumeQuota(ctx, disableLinkKeyPrefix+user.ID); err != nil {
		return "", err
	}

	link, err := s.signer.Sign(user.ID)
	if err != nil {
		s.refundQuota(ctx, disableLinkKeyPrefix+user.ID)
		return "", apperrors.ErrInternalServer.WithInternal(err)
	}

	target := s.backupAddress(user)
	msg := mail.Message{
		To:      []string{target},
		Subject: "Disable two-factor authentication on your CoveCRM account",
		Body: fmt.Sprintf("Hello %s,\n\nSomeone requested to disable two-factor authentication on your account.\n\n"+
			"To confirm, open this link within one hour:\n\n%s\n\n"+
			"If this was not you, ignore this email; your settings will not change.\n",
			user.Name, link.URL),
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		s.refundQuota(ctx, disableLinkKeyPrefix+user.ID)
		metrics.OTPEmails.WithLabelValues("disable_link", "failure").Inc()
		return "", apperrors.ErrMailDelivery.WithInternal(err)
	}

	metrics.OTPEmails.WithLabelValues("disable_link", "success").Inc()

	masked := MaskEmail(target)
	if err := s.audit.Record(ctx, AuditEntry{
		UserID:      &user.ID,
		Action:      ActionDisableRequested,
		Description: fmt.Sprintf("Two-factor disable link sent to %s", masked),
		Properties:  map[string]any{"masked_email": masked},
		IPAddress:   ip,
		UserAgent:   userAgent,
	}); err != nil {
		logger.Logger().Warn("record disable request activity", zap.Error(err), zap.String("user_id", user.ID))
	}

	return masked, nil
}

// ConfirmDisableLink validates a presented disable link and clears the user's
// two-factor settings. The operation is idempotent: a second click on the same
// valid link succeeds without changing anything.
func (s *RecoveryService) ConfirmDisableLink(ctx context.Context, userID string, expires int64, signature, ip, userAgent string) error {
	ctx = ensureContext(ctx)

	if err := s.signer.Verify(userID, expires, signature); err != nil {
		return apperrors.ErrInvalidOrExpiredLink
	}

	if err := s.twoFactor.ForceDisable(ctx, userID); err != nil {
		return err
	}

	if err := s.audit.Record(ctx, AuditEntry{
		UserID:      &userID,
		Action:      ActionDisabledViaEmail,
		Description: "Two-factor authentication disabled via emailed link",
		IPAddress:   ip,
		UserAgent:   userAgent,
	}); err != nil {
		logger.Logger().Warn("record disable confirmation activity", zap.Error(err), zap.String("user_id", userID))
	}

	return nil
}

func (s *RecoveryService) findUserByID(ctx context.Context, id string) (*models.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.ErrNotFound
	}

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return &user, nil
}

func (s *RecoveryService) findUser(ctx context.Context, email string) (*models.User, error) {
	email = normaliseEmail(email)
	if email == "" {
		return nil, apperrors.ErrNotFound
	}

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return &user, nil
}

// resolveSecret mirrors the login-time resolution: a personal secret first,
// the enforcing administrator's secret as fallback.
func (s *RecoveryService) resolveSecret(ctx context.Context, user *models.User) (string, error) {
	if user.HasTwoFactorEnabled() {
		return *user.TwoFactorSecret, nil
	}

	policy, err := s.twoFactor.enforcement.Resolve(ctx)
	if err != nil {
		return "", apperrors.ErrInternalServer.WithInternal(err)
	}

	if policy.Enforced && policy.FallbackSecret != "" {
		return policy.FallbackSecret, nil
	}

	return "", apperrors.ErrTwoFactorNotEnabled
}

func (s *RecoveryService) consumeQuota(ctx context.Context, key string) error {
	count, _, err := s.store.IncrementWithTTL(ctx, key, s.window)
	if err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}
	if count > s.limit {
		return apperrors.ErrRateLimited
	}
	return nil
}

func (s *RecoveryService) refundQuota(ctx context.Context, key string) {
	if _, err := s.store.Decrement(ctx, key); err != nil {
		logger.Logger().Warn("refund rate-limit quota", zap.Error(err), zap.String("key", key))
	}
}

func (s *RecoveryService) backupAddress(user *models.User) string {
	if s.backupOverride != "" {
		return s.backupOverride
	}
	return user.Email
}

// MaskEmail hides most of the local part: ab***@example.com.
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}

	local, domain := email[:at], email[at:]
	visible := 2
	if len(local) < visible {
		visible = len(local)
	}
	return local[:visible] + "***" + domain
}
