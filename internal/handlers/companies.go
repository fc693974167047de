package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/covecrm/covecrm/internal/services"
	"github.com/covecrm/covecrm/pkg/response"
)

// CompanyHandler exposes the company pipeline.
type CompanyHandler struct {
	companies *services.CompanyService
}

func NewCompanyHandler(companies *services.CompanyService) *CompanyHandler {
	return &CompanyHandler{companies: companies}
}

type companyRequest struct {
	Name         string  `json:"name" validate:"required"`
	CompanyType  string  `json:"company_type"`
	Status       string  `json:"status"`
	ContactName  string  `json:"contact_name"`
	ContactEmail string  `json:"contact_email" validate:"omitempty,email"`
	ContactPhone string  `json:"contact_phone"`
	Address      string  `json:"address"`
	City         string  `json:"city"`
	Website      string  `json:"website"`
	Notes        string  `json:"notes"`
	AssignedToID *string `json:"assigned_to_id"`
}

func (r companyRequest) toInput() services.CompanyInput {
	return services.CompanyInput{
		Name:         r.Name,
		CompanyType:  r.CompanyType,
		Status:       r.Status,
		ContactName:  r.ContactName,
		ContactEmail: r.ContactEmail,
		ContactPhone: r.ContactPhone,
		Address:      r.Address,
		City:         r.City,
		Website:      r.Website,
		Notes:        r.Notes,
		AssignedToID: r.AssignedToID,
	}
}

// GET /api/companies
func (h *CompanyHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 25)

	companies, total, err := h.companies.List(requestContext(c), services.CompanyListOptions{
		Page:     page,
		PageSize: perPage,
		Filters: services.CompanyFilters{
			Search:      c.Query("search"),
			Status:      c.Query("status"),
			City:        c.Query("city"),
			CompanyType: c.Query("type"),
			AssignedTo:  c.Query("assigned_to"),
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, companies, response.PageMeta(page, perPage, total))
}

// GET /api/companies/:id
func (h *CompanyHandler) Get(c *gin.Context) {
	company, err := h.companies.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, company)
}

// POST /api/companies
func (h *CompanyHandler) Create(c *gin.Context) {
	var req companyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	company, err := h.companies.Create(requestContext(c), currentUserID(c), req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, company)
}

// PUT /api/companies/:id
func (h *CompanyHandler) Update(c *gin.Context) {
	var req companyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	company, err := h.companies.Update(requestContext(c), currentUserID(c), c.Param("id"), req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, company)
}

type companyStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// PATCH /api/companies/:id/status
func (h *CompanyHandler) UpdateStatus(c *gin.Context) {
	var req companyStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	company, err := h.companies.UpdateStatus(requestContext(c), currentUserID(c), c.Param("id"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, company)
}

// DELETE /api/companies/:id
func (h *CompanyHandler) Delete(c *gin.Context) {
	if err := h.companies.Delete(requestContext(c), currentUserID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

// POST /api/companies/bulk-delete
func (h *CompanyHandler) BulkDelete(c *gin.Context) {
	var req bulkDeleteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	removed, err := h.companies.BulkDelete(requestContext(c), currentUserID(c), req.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": removed})
}

// GET /api/companies/types
func (h *CompanyHandler) Types(c *gin.Context) {
	types, err := h.companies.Types(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, types)
}

// GET /api/companies/cities
func (h *CompanyHandler) Cities(c *gin.Context) {
	cities, err := h.companies.Cities(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, cities)
}
