package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/covecrm/covecrm/internal/services"
	"github.com/covecrm/covecrm/pkg/response"
)

// StaffHandler exposes the contact people attached to companies.
type StaffHandler struct {
	staff *services.StaffService
}

func NewStaffHandler(staff *services.StaffService) *StaffHandler {
	return &StaffHandler{staff: staff}
}

type staffRequest struct {
	CompanyID string `json:"company_id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Position  string `json:"position"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone"`
	Notes     string `json:"notes"`
	IsPrimary bool   `json:"is_primary"`
}

func (r staffRequest) toInput() services.StaffInput {
	return services.StaffInput{
		CompanyID: r.CompanyID,
		Name:      r.Name,
		Position:  r.Position,
		Email:     r.Email,
		Phone:     r.Phone,
		Notes:     r.Notes,
		IsPrimary: r.IsPrimary,
	}
}

// GET /api/companies/:id/staff
func (h *StaffHandler) ListByCompany(c *gin.Context) {
	staff, err := h.staff.ListByCompany(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, staff)
}

// GET /api/staff/:id
func (h *StaffHandler) Get(c *gin.Context) {
	staff, err := h.staff.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, staff)
}

// POST /api/staff
func (h *StaffHandler) Create(c *gin.Context) {
	var req staffRequest
	if !bindAndValidate(c, &req) {
		return
	}

	staff, err := h.staff.Create(requestContext(c), currentUserID(c), req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, staff)
}

// PUT /api/staff/:id
func (h *StaffHandler) Update(c *gin.Context) {
	var req staffRequest
	if !bindAndValidate(c, &req) {
		return
	}

	staff, err := h.staff.Update(requestContext(c), currentUserID(c), c.Param("id"), req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, staff)
}

// DELETE /api/staff/:id
func (h *StaffHandler) Delete(c *gin.Context) {
	if err := h.staff.Delete(requestContext(c), currentUserID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
