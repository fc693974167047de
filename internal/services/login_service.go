package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/covecrm/covecrm/internal/auth"
	"github.com/covecrm/covecrm/internal/auth/twofactor"
	"github.com/covecrm/covecrm/internal/models"
	"github.com/covecrm/covecrm/pkg/crypto"
	apperrors "github.com/covecrm/covecrm/pkg/errors"
	"github.com/covecrm/covecrm/pkg/logger"
	"github.com/covecrm/covecrm/pkg/metrics"
)

// LoginInput carries one login attempt. The flow is stateless: a client that
// is told two-factor is required resubmits the same credentials plus the OTP.
type LoginInput struct {
	Email     string
	Password  string
	OTP       string
	IPAddress string
	UserAgent string
}

// LoginResult is the outcome of a successful state-machine run. Either
// RequiresTwoFactor is set and the tokens are empty, or tokens are present.
type LoginResult struct {
	RequiresTwoFactor bool
	Tokens            auth.TokenPair
	Session           *models.Session
	User              *models.User
}

// LoginService drives the login state machine: credentials, two-factor
// resolution, verification, session issuance.
type LoginService struct {
	db          *gorm.DB
	engine      *twofactor.Engine
	sessions    *auth.SessionService
	enforcement *EnforcementPolicy
	audit       *AuditService
	now         func() time.Time
}

// NewLoginService constructs a LoginService.
func NewLoginService(db *gorm.DB, engine *twofactor.Engine, sessions *auth.SessionService, enforcement *EnforcementPolicy, audit *AuditService) (*LoginService, error) {
	if db == nil {
		return nil, errors.New("login service: db is required")
	}
	if engine == nil {
		return nil, errors.New("login service: twofactor engine is required")
	}
	if sessions == nil {
		return nil, errors.New("login service: session service is required")
	}
	if enforcement == nil {
		return nil, errors.New("login service: enforcement policy is required")
	}
	if audit == nil {
		return nil, errors.New("login service: audit service is required")
	}

	return &LoginService{
		db:          db,
		engine:      engine,
		sessions:    sessions,
		enforcement: enforcement,
		audit:       audit,
		now:         time.Now,
	}, nil
}

// WithClock overrides the service clock, primarily for tests.
func (s *LoginService) WithClock(clock func() time.Time) *LoginService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Login runs the full state machine for one attempt.
func (s *LoginService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	ctx = ensureContext(ctx)

	email := normaliseEmail(input.Email)
	password := input.Password
	otp := strings.TrimSpace(input.OTP)

	if email == "" || password == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).Preload("Roles").Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Burn a comparison so unknown accounts take as long as bad passwords.
		crypto.VerifyPassword("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy", password)
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	if !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	if !user.IsActive {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	secret, required, err := s.resolveTwoFactor(ctx, &user)
	if err != nil {
		return nil, err
	}

	if required {
		if otp == "" {
			return &LoginResult{RequiresTwoFactor: true, User: &user}, nil
		}
		if len(otp) != twofactor.Digits || !s.engine.Verify(secret, otp) {
			metrics.AuthAttempts.WithLabelValues("failure").Inc()
			return nil, apperrors.ErrInvalidOTP
		}
	}

	return s.issueSession(ctx, &user, input)
}

// resolveTwoFactor decides whether the attempt must present an OTP and which
// secret verifies it. Personal secrets win; otherwise the globally enforcing
// administrator's secret is the fallback. Enforcement without any usable
// secret is a server-side misconfiguration, never a bypass.
func (s *LoginService) resolveTwoFactor(ctx context.Context, user *models.User) (secret string, required bool, err error) {
	if user.HasTwoFactorEnabled() {
		return *user.TwoFactorSecret, true, nil
	}

	state, err := s.enforcement.Resolve(ctx)
	if err != nil {
		return "", false, apperrors.ErrInternalServer.WithInternal(err)
	}

	if !state.Enforced {
		return "", false, nil
	}

	if state.FallbackSecret == "" {
		logger.Logger().Error("two-factor enforced globally but no administrator secret is available",
			zap.String("user_id", user.ID))
		return "", false, apperrors.ErrTwoFactorMisconfigured
	}

	return state.FallbackSecret, true, nil
}

func (s *LoginService) issueSession(ctx context.Context, user *models.User, input LoginInput) (*LoginResult, error) {
	tokens, session, err := s.sessions.CreateSession(user.ID, auth.SessionMetadata{
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
	})
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"last_login_at": &now,
			"last_login_ip": strings.TrimSpace(input.IPAddress),
		}).Error; err != nil {
		logger.Logger().Warn("record last login", zap.Error(err), zap.String("user_id", user.ID))
	}
	user.LastLoginAt = &now
	user.LastLoginIP = strings.TrimSpace(input.IPAddress)

	if err := s.audit.Record(ctx, AuditEntry{
		UserID:      &user.ID,
		Action:      ActionLogin,
		Description: fmt.Sprintf("%s logged in", user.Name),
		IPAddress:   input.IPAddress,
		UserAgent:   input.UserAgent,
	}); err != nil {
		logger.Logger().Warn("record login activity", zap.Error(err), zap.String("user_id", user.ID))
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()

	return &LoginResult{
		Tokens:  tokens,
		Session: session,
		User:    user,
	}, nil
}

// Logout revokes the supplied session.
func (s *LoginService) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.RevokeSession(sessionID); err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) {
			return apperrors.ErrNotFound
		}
		return apperrors.ErrInternalServer.WithInternal(err)
	}
	return nil
}
