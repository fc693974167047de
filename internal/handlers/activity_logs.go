package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/covecrm/covecrm/internal/services"
	"github.com/covecrm/covecrm/pkg/response"
)

// ActivityLogHandler exposes the audit trail and the daily report trigger.
type ActivityLogHandler struct {
	audit   *services.AuditService
	reports *services.ReportService
}

func NewActivityLogHandler(audit *services.AuditService, reports *services.ReportService) *ActivityLogHandler {
	return &ActivityLogHandler{audit: audit, reports: reports}
}

// GET /api/activity-logs (admin only)
func (h *ActivityLogHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 50)

	logs, total, err := h.audit.List(requestContext(c), services.AuditListOptions{
		Page:     page,
		PageSize: perPage,
		Filters: services.AuditFilters{
			UserID: c.Query("user_id"),
			Action: c.Query("action"),
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, logs, response.PageMeta(page, perPage, total))
}

// POST /api/activity-logs/send-report (admin only)
func (h *ActivityLogHandler) SendReport(c *gin.Context) {
	entries, err := h.reports.SendDaily(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"entries": entries})
}
