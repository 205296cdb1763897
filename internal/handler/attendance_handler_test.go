package handler

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/ministrylabs/attendance-api/internal/middleware"
	"github.com/ministrylabs/attendance-api/internal/models"
	"github.com/ministrylabs/attendance-api/internal/service"
)

// exportSessionRepo serves a single session with a fixed record set.
type exportSessionRepo struct {
	session models.AttendanceSession
	details []models.AttendanceRecordDetail
}

func (r *exportSessionRepo) CreateSessionWithRecords(ctx context.Context, session *models.AttendanceSession, records []models.AttendanceRecord) error {
	return nil
}

func (r *exportSessionRepo) FindSessionByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	if id == r.session.ID {
		copy := r.session
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *exportSessionRepo) FindActiveSession(ctx context.Context, programID string, date time.Time, category models.StudentCategory) (*models.AttendanceSession, error) {
	return nil, sql.ErrNoRows
}

func (r *exportSessionRepo) ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.AttendanceSession, int, error) {
	return nil, 0, nil
}

func (r *exportSessionRepo) UpdateSession(ctx context.Context, session *models.AttendanceSession) error {
	return nil
}

func (r *exportSessionRepo) SoftDeleteSession(ctx context.Context, id string) error { return nil }

func (r *exportSessionRepo) ListRecords(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	return nil, nil
}

func (r *exportSessionRepo) ListRecordDetails(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error) {
	return r.details, nil
}

func (r *exportSessionRepo) UpsertRecord(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	return record, nil
}

func newExportFixture() *AttendanceHandler {
	repo := &exportSessionRepo{
		session: models.AttendanceSession{
			ID: "sess-1", DepartmentID: "d1", Active: true,
			Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), TargetCategory: models.CategoryYouth,
		},
		details: []models.AttendanceRecordDetail{
			{AttendanceRecord: models.AttendanceRecord{Status: models.AttendanceStatusPresent}, StudentName: "One"},
		},
	}
	svc := service.NewAttendanceService(repo, nil, nil, nil, service.NewAccessService(nil, nil), nil, time.Minute, nil, nil, nil)
	return NewAttendanceHandler(svc, true)
}

func TestAttendanceHandlerCreateManualMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAttendanceHandler(nil, true)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/attendance/sessions/manual", strings.NewReader(`not-json`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.CreateManual(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttendanceHandlerCreateBatchMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAttendanceHandler(nil, true)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/attendance/sessions/batch", strings.NewReader(`{`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.CreateBatch(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttendanceHandlerListRejectsUnknownCategory(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAttendanceHandler(nil, true)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/attendance/sessions?category=TODDLER", nil)

	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttendanceHandlerListRejectsUnknownType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAttendanceHandler(nil, true)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/attendance/sessions?type=PARTY", nil)

	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttendanceHandlerExportDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAttendanceHandler(nil, false)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/attendance/sessions/s1/export", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}

	handler.Export(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAttendanceHandlerExportDefaultsToCSV(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newExportFixture()

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/attendance/sessions/sess-1/export", nil)
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "root", Role: models.RoleSuperAdmin})

	handler.Export(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attendance-2026-03-01-youth.csv")
}

func TestAttendanceHandlerExportFormatCaseInsensitive(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newExportFixture()

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/attendance/sessions/sess-1/export?format=PDF", nil)
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "root", Role: models.RoleSuperAdmin})

	handler.Export(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attendance-2026-03-01-youth.pdf")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
}

func TestAttendanceHandlerCollectMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAttendanceHandler(nil, true)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/attendance/sessions/s1/collect", strings.NewReader(`[]`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "s1"}}

	handler.Collect(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
