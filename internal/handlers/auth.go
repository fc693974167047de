package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/covecrm/covecrm/internal/auth"
	"github.com/covecrm/covecrm/internal/models"
	"github.com/covecrm/covecrm/internal/services"
	"github.com/covecrm/covecrm/pkg/errors"
	"github.com/covecrm/covecrm/pkg/response"
)

// AuthHandler manages the login flow (login/refresh/logout/me).
type AuthHandler struct {
	db       *gorm.DB
	login    *services.LoginService
	sessions *iauth.SessionService
}

func NewAuthHandler(db *gorm.DB, login *services.LoginService, sessions *iauth.SessionService) *AuthHandler {
	return &AuthHandler{db: db, login: login, sessions: sessions}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	OTP      string `json:"otp"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// POST /api/login
//
// The flow is stateless: when the response carries requires_two_factor the
// client resubmits the same credentials together with the otp field.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.login.Login(requestContext(c), services.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		OTP:       req.OTP,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.RequiresTwoFactor {
		// The email is echoed so the client can prompt for the code; the
		// password never is.
		response.Success(c, http.StatusOK, gin.H{
			"requires_two_factor": true,
			"email":               result.User.Email,
		})
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"tokens": tokenResponse{
			AccessToken:  result.Tokens.AccessToken,
			RefreshToken: result.Tokens.RefreshToken,
		},
		"user": userPayload(result.User),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// POST /api/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		response.Error(c, errors.NewBadRequest("refresh token is required"))
		return
	}

	pair, _, err := h.sessions.RefreshSession(req.RefreshToken)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// POST /api/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	sid := currentSessionID(c)
	if sid == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.login.Logout(requestContext(c), sid); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /api/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var user models.User
	if err := h.db.Preload("Roles").Take(&user, "id = ?", userID).Error; err != nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, userPayload(&user))
}

func userPayload(user *models.User) gin.H {
	roles := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		roles = append(roles, role.ID)
	}

	return gin.H{
		"id":                 user.ID,
		"name":               user.Name,
		"email":              user.Email,
		"is_active":          user.IsActive,
		"two_factor_enabled": user.HasTwoFactorEnabled(),
		"roles":              roles,
		"last_login_at":      user.LastLoginAt,
	}
}
