package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/covecrm/covecrm/internal/services"
	"github.com/covecrm/covecrm/pkg/response"
)

// DashboardHandler serves the landing-page counters.
type DashboardHandler struct {
	dashboard *services.DashboardService
}

func NewDashboardHandler(dashboard *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// GET /api/dashboard
func (h *DashboardHandler) Summary(c *gin.Context) {
	summary, err := h.dashboard.Summary(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, summary)
}
