package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/covecrm/covecrm/internal/services"
	"github.com/covecrm/covecrm/pkg/errors"
	"github.com/covecrm/covecrm/pkg/response"
)

// TwoFactorHandler manages the authenticated two-factor lifecycle.
type TwoFactorHandler struct {
	twoFactor *services.TwoFactorService
}

func NewTwoFactorHandler(twoFactor *services.TwoFactorService) *TwoFactorHandler {
	return &TwoFactorHandler{twoFactor: twoFactor}
}

// POST /api/2fa/generate
func (h *TwoFactorHandler) Generate(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	setup, err := h.twoFactor.Generate(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, setup)
}

type otpRequest struct {
	OTP string `json:"otp" validate:"required,len=6"`
}

// POST /api/2fa/enable
func (h *TwoFactorHandler) Enable(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req otpRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.twoFactor.Enable(requestContext(c), userID, req.OTP); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"enabled": true})
}

// POST /api/2fa/disable
func (h *TwoFactorHandler) Disable(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req otpRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.twoFactor.Disable(requestContext(c), userID, req.OTP); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"enabled": false})
}

// GET /api/2fa/status
func (h *TwoFactorHandler) Status(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	status, err := h.twoFactor.Status(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, status)
}

type enforceRequest struct {
	Enforced *bool `json:"enforced" validate:"required"`
}

// POST /api/2fa/enforce (admin only)
func (h *TwoFactorHandler) Enforce(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req enforceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.twoFactor.SetGlobalEnforcement(requestContext(c), userID, *req.Enforced); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"enforced": *req.Enforced})
}
