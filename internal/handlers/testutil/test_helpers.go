package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/covecrm/covecrm/internal/api"
	iauth "github.com/covecrm/covecrm/internal/auth"
	"github.com/covecrm/covecrm/internal/auth/twofactor"
	"github.com/covecrm/covecrm/internal/cache"
	sharedtestutil "github.com/covecrm/covecrm/internal/database/testutil"
	"github.com/covecrm/covecrm/internal/models"
	"github.com/covecrm/covecrm/internal/services"
	"github.com/covecrm/covecrm/pkg/crypto"
	"github.com/covecrm/covecrm/pkg/mail"
	"github.com/covecrm/covecrm/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database
// for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	JWT    *iauth.JWTService
	Engine *twofactor.Engine
	Signer *twofactor.LinkSigner
	Mailer *RecordingMailer
}

// RecordingMailer captures outgoing messages instead of delivering them.
type RecordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	FailNext bool
}

func (m *RecordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNext {
		m.FailNext = false
		return mail.ErrSMTPDisabled
	}
	m.messages = append(m.messages, msg)
	return nil
}

// Sent returns a copy of all captured messages.
func (m *RecordingMailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

// NewEnv provisions a fresh handler test environment with migrations and seed
// data applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "test-suite-super-secret-key-32-bytes!!",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, iauth.SessionConfig{
		RefreshTokenTTL: 24 * time.Hour,
		RefreshLength:   48,
	})
	require.NoError(t, err)

	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)

	enforcement, err := services.NewEnforcementPolicy(db)
	require.NoError(t, err)

	engine := twofactor.NewEngine()

	signer, err := twofactor.NewLinkSigner(twofactor.LinkSignerConfig{
		Secret:  "test-link-secret",
		BaseURL: "http://localhost:8000",
		TTL:     time.Hour,
	})
	require.NoError(t, err)

	mailer := &RecordingMailer{}
	store := cache.NewDatabaseStore(db)

	loginSvc, err := services.NewLoginService(db, engine, sessionSvc, enforcement, auditSvc)
	require.NoError(t, err)

	twoFactorSvc, err := services.NewTwoFactorService(db, engine, enforcement, auditSvc)
	require.NoError(t, err)

	recoverySvc, err := services.NewRecoveryService(db, engine, signer, store, mailer, auditSvc, twoFactorSvc, services.RecoveryConfig{})
	require.NoError(t, err)

	companySvc, err := services.NewCompanyService(db, auditSvc)
	require.NoError(t, err)

	followUpSvc, err := services.NewFollowUpService(db, companySvc, auditSvc)
	require.NoError(t, err)

	staffSvc, err := services.NewStaffService(db, auditSvc)
	require.NoError(t, err)

	dashboardSvc, err := services.NewDashboardService(db, followUpSvc)
	require.NoError(t, err)

	userSvc, err := services.NewUserService(db)
	require.NoError(t, err)

	reportSvc, err := services.NewReportService(auditSvc, userSvc, mailer)
	require.NoError(t, err)

	router, err := api.NewRouter(api.Deps{
		DB:        db,
		JWT:       jwtSvc,
		Sessions:  sessionSvc,
		Login:     loginSvc,
		TwoFactor: twoFactorSvc,
		Recovery:  recoverySvc,
		Companies: companySvc,
		FollowUps: followUpSvc,
		Staff:     staffSvc,
		Dashboard: dashboardSvc,
		Users:     userSvc,
		Audit:     auditSvc,
		Reports:   reportSvc,
	})
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
		Engine: engine,
		Signer: signer,
		Mailer: mailer,
	}
}

// CreateUser inserts an active user with the supplied password and roles.
func (e *Env) CreateUser(password string, roleIDs ...string) *models.User {
	e.T.Helper()

	email := "user-" + uuid.NewString() + "@example.com"
	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	user := &models.User{
		Name:     "Test " + email,
		Email:    email,
		Password: hashed,
		IsActive: true,
	}
	require.NoError(e.T, e.DB.Create(user).Error)

	for _, roleID := range roleIDs {
		var role models.Role
		require.NoError(e.T, e.DB.Take(&role, "id = ?", roleID).Error)
		require.NoError(e.T, e.DB.Model(user).Association("Roles").Append(&role))
	}

	loaded := &models.User{}
	require.NoError(e.T, e.DB.Preload("Roles").Take(loaded, "id = ?", user.ID).Error)
	return loaded
}

// CreateAdminUser inserts an active user carrying the admin role.
func (e *Env) CreateAdminUser(password string) *models.User {
	e.T.Helper()
	return e.CreateUser(password, models.AdminRoleID)
}

// EnableTwoFactor provisions and activates a factor for the user directly in
// the database, returning the secret.
func (e *Env) EnableTwoFactor(userID string) string {
	e.T.Helper()

	key, err := e.Engine.GenerateSecret("handler-test@example.com")
	require.NoError(e.T, err)

	secret := key.Secret()
	now := time.Now()
	require.NoError(e.T, e.DB.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]any{
		"two_factor_secret":     &secret,
		"two_factor_enabled":    true,
		"two_factor_enabled_at": &now,
	}).Error)
	return secret
}

// TokenPair mirrors the token payload returned from auth endpoints.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// UserPayload captures the subset of user fields returned from auth endpoints.
type UserPayload struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Email            string   `json:"email"`
	IsActive         bool     `json:"is_active"`
	TwoFactorEnabled bool     `json:"two_factor_enabled"`
	Roles            []string `json:"roles"`
}

// LoginResult bundles the JSON response from POST /api/login.
type LoginResult struct {
	Tokens TokenPair   `json:"tokens"`
	User   UserPayload `json:"user"`
}

// Login authenticates with email and password, optionally supplying an OTP,
// and returns the issued tokens.
func (e *Env) Login(email, password, otp string) LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"email":    email,
		"password": password,
	}
	if otp != "" {
		payload["otp"] = otp
	}

	w := e.Request(http.MethodPost, "/api/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Tokens.AccessToken)
	require.NotEmpty(e.T, result.Tokens.RefreshToken)
	require.Equal(e.T, email, result.User.Email)

	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON
// encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
