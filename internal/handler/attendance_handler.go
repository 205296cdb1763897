package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ministrylabs/attendance-api/internal/models"
	"github.com/ministrylabs/attendance-api/internal/service"
	appErrors "github.com/ministrylabs/attendance-api/pkg/errors"
	"github.com/ministrylabs/attendance-api/pkg/response"
)

// AttendanceHandler exposes session and record endpoints.
type AttendanceHandler struct {
	attendance    *service.AttendanceService
	exportEnabled bool
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService, exportEnabled bool) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, exportEnabled: exportEnabled}
}

// CreateManual godoc
// @Summary Create a manual session seeded from the department roster
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.ManualSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /attendance/sessions/manual [post]
func (h *AttendanceHandler) CreateManual(c *gin.Context) {
	var req service.ManualSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.attendance.CreateManualSession(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// CreateBatch godoc
// @Summary Create a program session with pre-marked records
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.BatchSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /attendance/sessions/batch [post]
func (h *AttendanceHandler) CreateBatch(c *gin.Context) {
	var req service.BatchSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.attendance.CreateBatchSession(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Collect godoc
// @Summary Mark one student within a session
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param payload body service.CollectRequest true "Record payload"
// @Success 200 {object} response.Envelope
// @Router /attendance/sessions/{id}/collect [post]
func (h *AttendanceHandler) Collect(c *gin.Context) {
	var req service.CollectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.attendance.Collect(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// AddRecord godoc
// @Summary Register a late arrival on a session
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param payload body service.AddRecordRequest true "Record payload"
// @Success 200 {object} response.Envelope
// @Router /attendance/sessions/{id}/records [post]
func (h *AttendanceHandler) AddRecord(c *gin.Context) {
	var req service.AddRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.attendance.AddRecord(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// List godoc
// @Summary List sessions visible to the caller
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param department_id query string false "Filter by department"
// @Param program_id query string false "Filter by program"
// @Param category query string false "Filter by target category"
// @Param type query string false "Filter by session type"
// @Param include_inactive query bool false "Include soft-deleted sessions"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance/sessions [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	var filter models.SessionFilter
	filter.ProgramID = c.Query("program_id")
	filter.IncludeInactive = c.Query("include_inactive") == "true"
	if raw := c.Query("category"); raw != "" {
		category, err := models.NormalizeCategory(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
			return
		}
		filter.Category = &category
	}
	if raw := c.Query("type"); raw != "" {
		t := models.ProgramType(raw)
		if !t.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown session type"))
			return
		}
		filter.Type = &t
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	sessions, pagination, err := h.attendance.ListSessions(c.Request.Context(), claimsFromContext(c), filter, c.Query("department_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// Get godoc
// @Summary Get a session with its records
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/sessions/{id} [get]
func (h *AttendanceHandler) Get(c *gin.Context) {
	session, err := h.attendance.GetSession(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Update godoc
// @Summary Update session fields
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param payload body service.UpdateSessionRequest true "Session payload"
// @Success 200 {object} response.Envelope
// @Router /attendance/sessions/{id} [patch]
func (h *AttendanceHandler) Update(c *gin.Context) {
	var req service.UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.attendance.UpdateSession(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Delete godoc
// @Summary Soft-delete a session
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 204
// @Router /attendance/sessions/{id} [delete]
func (h *AttendanceHandler) Delete(c *gin.Context) {
	if err := h.attendance.SoftDeleteSession(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// EligibleStudents godoc
// @Summary List students a manual session would include
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param department_id query string true "Department ID"
// @Param category query string true "Target category"
// @Success 200 {object} response.Envelope
// @Router /attendance/eligible-students [get]
func (h *AttendanceHandler) EligibleStudents(c *gin.Context) {
	students, err := h.attendance.EligibleStudents(c.Request.Context(), claimsFromContext(c), c.Query("department_id"), c.Query("category"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}

// Export godoc
// @Summary Export a session's records as CSV or PDF
// @Tags Attendance
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /attendance/sessions/{id}/export [get]
func (h *AttendanceHandler) Export(c *gin.Context) {
	if !h.exportEnabled {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	format := strings.ToLower(c.DefaultQuery("format", "csv"))
	payload, filename, err := h.attendance.ExportSession(c.Request.Context(), claimsFromContext(c), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	contentType := "text/csv"
	if format == "pdf" {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, payload)
}
