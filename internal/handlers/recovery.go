package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/covecrm/covecrm/internal/auth"
	"github.com/covecrm/covecrm/internal/services"
	"github.com/covecrm/covecrm/pkg/errors"
	"github.com/covecrm/covecrm/pkg/response"
)

// RecoveryHandler serves the email backup channel: one-time codes for users
// locked out of their authenticator and signed disable links. Only the
// disable-link request requires a session; the rest works pre-login.
type RecoveryHandler struct {
	recovery *services.RecoveryService
	sessions *iauth.SessionService
}

func NewRecoveryHandler(recovery *services.RecoveryService, sessions *iauth.SessionService) *RecoveryHandler {
	return &RecoveryHandler{recovery: recovery, sessions: sessions}
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/2fa/backup-otp/send
func (h *RecoveryHandler) SendBackupOTP(c *gin.Context) {
	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	masked, err := h.recovery.RequestCode(requestContext(c), req.Email, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sent_to": masked})
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6"`
}

// POST /api/2fa/backup-otp/verify
func (h *RecoveryHandler) VerifyBackupOTP(c *gin.Context) {
	var req verifyOTPRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.recovery.VerifyCode(requestContext(c), req.Email, req.OTP); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"verified": true})
}

// POST /api/2fa/disable-request (authenticated)
func (h *RecoveryHandler) RequestDisable(c *gin.Context) {
	masked, err := h.recovery.RequestDisableLink(requestContext(c), currentUserID(c), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sent_to": masked})
}

// GET /api/2fa/disable-confirm?user=<id>&expires=<unix>&signature=<hex>
//
// The link arrives by email so the endpoint is unauthenticated; the HMAC
// signature is the proof. Every live session of the user is revoked because
// the account just lost a factor.
func (h *RecoveryHandler) ConfirmDisable(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user"))
	signature := strings.TrimSpace(c.Query("signature"))
	expires, err := strconv.ParseInt(strings.TrimSpace(c.Query("expires")), 10, 64)
	if userID == "" || signature == "" || err != nil {
		response.Error(c, errors.ErrInvalidOrExpiredLink)
		return
	}

	if err := h.recovery.ConfirmDisableLink(requestContext(c), userID, expires, signature, c.ClientIP(), c.Request.UserAgent()); err != nil {
		response.Error(c, err)
		return
	}

	_ = h.sessions.RevokeUserSessions(userID)

	response.Success(c, http.StatusOK, gin.H{"disabled": true})
}
