package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/covecrm/covecrm/internal/services"
	"github.com/covecrm/covecrm/pkg/response"
)

// FollowUpHandler exposes follow-up scheduling and resolution.
type FollowUpHandler struct {
	followUps *services.FollowUpService
}

func NewFollowUpHandler(followUps *services.FollowUpService) *FollowUpHandler {
	return &FollowUpHandler{followUps: followUps}
}

type followUpRequest struct {
	CompanyID string    `json:"company_id" validate:"required"`
	DueAt     time.Time `json:"due_at" validate:"required"`
	Notes     string    `json:"notes"`
}

// GET /api/follow-ups
func (h *FollowUpHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 25)

	filters := services.FollowUpFilters{
		CompanyID: c.Query("company_id"),
		UserID:    c.Query("user_id"),
		Status:    c.Query("status"),
	}
	if mine := c.Query("mine"); mine == "true" || mine == "1" {
		filters.UserID = currentUserID(c)
	}

	followUps, total, err := h.followUps.List(requestContext(c), services.FollowUpListOptions{
		Page:     page,
		PageSize: perPage,
		Filters:  filters,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, followUps, response.PageMeta(page, perPage, total))
}

// GET /api/follow-ups/today
func (h *FollowUpHandler) DueToday(c *gin.Context) {
	followUps, err := h.followUps.DueToday(requestContext(c), currentUserID(c), time.Now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, followUps)
}

// GET /api/follow-ups/:id
func (h *FollowUpHandler) Get(c *gin.Context) {
	followUp, err := h.followUps.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, followUp)
}

// POST /api/follow-ups
func (h *FollowUpHandler) Create(c *gin.Context) {
	var req followUpRequest
	if !bindAndValidate(c, &req) {
		return
	}

	followUp, err := h.followUps.Create(requestContext(c), currentUserID(c), services.FollowUpInput{
		CompanyID: req.CompanyID,
		DueAt:     req.DueAt,
		Notes:     req.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, followUp)
}

type followUpUpdateRequest struct {
	DueAt time.Time `json:"due_at"`
	Notes string    `json:"notes"`
}

// PUT /api/follow-ups/:id
func (h *FollowUpHandler) Update(c *gin.Context) {
	var req followUpUpdateRequest
	if !bindAndValidate(c, &req) {
		return
	}

	followUp, err := h.followUps.Update(requestContext(c), currentUserID(c), c.Param("id"), services.FollowUpInput{
		DueAt: req.DueAt,
		Notes: req.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, followUp)
}

// POST /api/follow-ups/:id/complete
func (h *FollowUpHandler) Complete(c *gin.Context) {
	followUp, err := h.followUps.Complete(requestContext(c), currentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, followUp)
}

// POST /api/follow-ups/:id/cancel
func (h *FollowUpHandler) Cancel(c *gin.Context) {
	followUp, err := h.followUps.Cancel(requestContext(c), currentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, followUp)
}

// DELETE /api/follow-ups/:id
func (h *FollowUpHandler) Delete(c *gin.Context) {
	if err := h.followUps.Delete(requestContext(c), currentUserID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
