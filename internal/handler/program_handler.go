package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ministrylabs/attendance-api/internal/models"
	"github.com/ministrylabs/attendance-api/internal/service"
	appErrors "github.com/ministrylabs/attendance-api/pkg/errors"
	"github.com/ministrylabs/attendance-api/pkg/response"
)

// ProgramHandler exposes program endpoints.
type ProgramHandler struct {
	programs *service.ProgramService
}

// NewProgramHandler constructs ProgramHandler.
func NewProgramHandler(programs *service.ProgramService) *ProgramHandler {
	return &ProgramHandler{programs: programs}
}

// List godoc
// @Summary List programs in a department
// @Tags Programs
// @Produce json
// @Security BearerAuth
// @Param department_id query string true "Department ID"
// @Param include_inactive query bool false "Include soft-deleted programs"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /programs [get]
func (h *ProgramHandler) List(c *gin.Context) {
	var filter models.ProgramFilter
	filter.DepartmentID = c.Query("department_id")
	filter.IncludeInactive = c.Query("include_inactive") == "true"
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	programs, pagination, err := h.programs.List(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, programs, pagination)
}

// Get godoc
// @Summary Get program
// @Tags Programs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Program ID"
// @Success 200 {object} response.Envelope
// @Router /programs/{id} [get]
func (h *ProgramHandler) Get(c *gin.Context) {
	program, err := h.programs.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, program, nil)
}

// Create godoc
// @Summary Create program
// @Tags Programs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateProgramRequest true "Program payload"
// @Success 201 {object} response.Envelope
// @Router /programs [post]
func (h *ProgramHandler) Create(c *gin.Context) {
	var req service.CreateProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	program, err := h.programs.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, program)
}

// Update godoc
// @Summary Update program
// @Tags Programs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Program ID"
// @Param payload body service.UpdateProgramRequest true "Program payload"
// @Success 200 {object} response.Envelope
// @Router /programs/{id} [patch]
func (h *ProgramHandler) Update(c *gin.Context) {
	var req service.UpdateProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	program, err := h.programs.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, program, nil)
}

// Delete godoc
// @Summary Soft-delete program
// @Tags Programs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Program ID"
// @Success 204
// @Router /programs/{id} [delete]
func (h *ProgramHandler) Delete(c *gin.Context) {
	if err := h.programs.SoftDelete(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
