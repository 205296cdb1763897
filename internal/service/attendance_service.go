package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ministrylabs/attendance-api/internal/models"
	"github.com/ministrylabs/attendance-api/internal/repository"
	appErrors "github.com/ministrylabs/attendance-api/pkg/errors"
	"github.com/ministrylabs/attendance-api/pkg/export"
)

type attendanceRepository interface {
	CreateSessionWithRecords(ctx context.Context, session *models.AttendanceSession, records []models.AttendanceRecord) error
	FindSessionByID(ctx context.Context, id string) (*models.AttendanceSession, error)
	FindActiveSession(ctx context.Context, programID string, date time.Time, category models.StudentCategory) (*models.AttendanceSession, error)
	ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.AttendanceSession, int, error)
	UpdateSession(ctx context.Context, session *models.AttendanceSession) error
	SoftDeleteSession(ctx context.Context, id string) error
	ListRecords(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error)
	ListRecordDetails(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error)
	UpsertRecord(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
}

type attendanceStudentReader interface {
	ListByDepartmentCategory(ctx context.Context, departmentID string, category models.StudentCategory) ([]models.StudentSummary, error)
}

type attendanceProgramReader interface {
	FindByID(ctx context.Context, id string) (*models.Program, error)
}

type attendanceDepartmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Department, error)
}

type sessionListCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

const sessionListKeyPrefix = "attendance:sessions:"

// ManualOverride lets the caller pre-mark a student while creating a manual
// session. Students without an override start as ABSENT.
type ManualOverride struct {
	StudentID string  `json:"student_id" validate:"required"`
	Present   bool    `json:"present"`
	Notes     *string `json:"notes,omitempty"`
}

// ManualSessionRequest creates a session seeded from the department roster.
type ManualSessionRequest struct {
	Date         time.Time        `json:"date" validate:"required"`
	DepartmentID string           `json:"department_id" validate:"required"`
	Category     string           `json:"category" validate:"required"`
	Type         *string          `json:"type,omitempty" validate:"omitempty,oneof=REGULAR EVENT"`
	Overrides    []ManualOverride `json:"overrides,omitempty" validate:"dive"`
}

// BatchRecord is one pre-marked entry in a batch session.
type BatchRecord struct {
	StudentID string  `json:"student_id" validate:"required"`
	Status    string  `json:"status" validate:"required"`
	Notes     *string `json:"notes,omitempty"`
}

// BatchSessionRequest creates a program session from caller-supplied records.
// Department and type come from the program row, not the payload.
type BatchSessionRequest struct {
	ProgramID string        `json:"program_id" validate:"required"`
	Date      time.Time     `json:"date" validate:"required"`
	Category  string        `json:"category" validate:"required"`
	Records   []BatchRecord `json:"records" validate:"required,min=1,dive"`
}

// CollectRequest marks one student within an existing session.
type CollectRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	Status    string  `json:"status" validate:"required"`
	Notes     *string `json:"notes,omitempty"`
}

// AddRecordRequest registers a late arrival on an existing session.
type AddRecordRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	Present   bool    `json:"present"`
	Notes     *string `json:"notes,omitempty"`
}

// UpdateSessionRequest holds the partial payload for updating sessions.
type UpdateSessionRequest struct {
	Date     *time.Time `json:"date,omitempty"`
	Category *string    `json:"category,omitempty"`
	Type     *string    `json:"type,omitempty" validate:"omitempty,oneof=REGULAR EVENT"`
}

// AttendanceService implements session and record reconciliation. Every
// operation gates on the department that owns the data, and every write
// invalidates the session listing cache.
type AttendanceService struct {
	repo        attendanceRepository
	students    attendanceStudentReader
	programs    attendanceProgramReader
	departments attendanceDepartmentReader
	access      *AccessService
	cache       sessionListCache
	cacheTTL    time.Duration
	metrics     *MetricsService
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(
	repo attendanceRepository,
	students attendanceStudentReader,
	programs attendanceProgramReader,
	departments attendanceDepartmentReader,
	access *AccessService,
	cache sessionListCache,
	cacheTTL time.Duration,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &AttendanceService{
		repo:        repo,
		students:    students,
		programs:    programs,
		departments: departments,
		access:      access,
		cache:       cache,
		cacheTTL:    cacheTTL,
		metrics:     metrics,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		validator:   validate,
		logger:      logger,
	}
}

// CreateManualSession creates a session for a department roster. Every
// eligible student gets a record: PRESENT or ABSENT from the caller's
// overrides, ABSENT otherwise.
func (s *AttendanceService) CreateManualSession(ctx context.Context, claims *models.JWTClaims, req ManualSessionRequest) (*models.SessionWithRecords, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}

	category, err := models.NormalizeCategory(req.Category)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	// access gate first so unauthorized callers cannot learn which
	// departments exist
	if err := s.access.CheckDepartment(ctx, claims, req.DepartmentID); err != nil {
		return nil, err
	}

	if _, err := s.departments.FindByID(ctx, req.DepartmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}

	roster, err := s.students.ListByDepartmentCategory(ctx, req.DepartmentID, category)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load eligible students")
	}

	overrides := make(map[string]ManualOverride, len(req.Overrides))
	for _, o := range req.Overrides {
		overrides[o.StudentID] = o
	}

	records := make([]models.AttendanceRecord, 0, len(roster))
	for _, student := range roster {
		record := models.AttendanceRecord{StudentID: student.ID, Status: models.AttendanceStatusAbsent}
		if o, ok := overrides[student.ID]; ok {
			if o.Present {
				record.Status = models.AttendanceStatusPresent
			}
			record.Remarks = o.Notes
		}
		records = append(records, record)
	}

	session := &models.AttendanceSession{
		Date:           req.Date,
		DepartmentID:   req.DepartmentID,
		TargetCategory: category,
	}
	if req.Type != nil {
		t := models.ProgramType(*req.Type)
		session.Type = &t
	}
	if claims != nil {
		session.CreatedBy = &claims.UserID
	}

	if err := s.repo.CreateSessionWithRecords(ctx, session, records); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an active session already exists for this date and category")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}

	s.metrics.ObserveSessionCreated("manual")
	s.invalidateListCache(ctx)
	return &models.SessionWithRecords{AttendanceSession: *session, Records: records}, nil
}

// CreateBatchSession creates a session under a program with caller-supplied
// records only. The program row decides department and type; a second active
// session for the same (program, date, category) conflicts.
func (s *AttendanceService) CreateBatchSession(ctx context.Context, claims *models.JWTClaims, req BatchSessionRequest) (*models.SessionWithRecords, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}

	category, err := models.NormalizeCategory(req.Category)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	program, err := s.programs.FindByID(ctx, req.ProgramID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}

	if err := s.access.CheckDepartment(ctx, claims, program.DepartmentID); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindActiveSession(ctx, program.ID, req.Date, category); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an active session already exists for this program, date and category")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing sessions")
	}

	records := make([]models.AttendanceRecord, 0, len(req.Records))
	for _, entry := range req.Records {
		status := models.NormalizeStatus(entry.Status)
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown attendance status %q", entry.Status))
		}
		records = append(records, models.AttendanceRecord{
			StudentID: entry.StudentID,
			Status:    status,
			Remarks:   entry.Notes,
		})
	}

	programType := program.Type
	session := &models.AttendanceSession{
		Date:           req.Date,
		DepartmentID:   program.DepartmentID,
		ProgramID:      &program.ID,
		Type:           &programType,
		TargetCategory: category,
	}
	if claims != nil {
		session.CreatedBy = &claims.UserID
	}

	if err := s.repo.CreateSessionWithRecords(ctx, session, records); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an active session already exists for this program, date and category")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}

	s.metrics.ObserveSessionCreated("batch")
	s.invalidateListCache(ctx)
	return &models.SessionWithRecords{AttendanceSession: *session, Records: records}, nil
}

// Collect marks one student inside a session. Replaying the same marking is
// idempotent: the record converges instead of duplicating.
func (s *AttendanceService) Collect(ctx context.Context, claims *models.JWTClaims, sessionID string, req CollectRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid record payload")
	}

	status := models.NormalizeStatus(req.Status)
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown attendance status %q", req.Status))
	}

	session, err := s.writableSession(ctx, claims, sessionID)
	if err != nil {
		return nil, err
	}

	record, err := s.repo.UpsertRecord(ctx, &models.AttendanceRecord{
		SessionID: session.ID,
		StudentID: req.StudentID,
		Status:    status,
		Remarks:   req.Notes,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	s.metrics.ObserveRecordMarked()
	return record, nil
}

// AddRecord registers a late arrival with the same upsert semantics as
// Collect.
func (s *AttendanceService) AddRecord(ctx context.Context, claims *models.JWTClaims, sessionID string, req AddRecordRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid record payload")
	}

	session, err := s.writableSession(ctx, claims, sessionID)
	if err != nil {
		return nil, err
	}

	status := models.AttendanceStatusAbsent
	if req.Present {
		status = models.AttendanceStatusPresent
	}

	record, err := s.repo.UpsertRecord(ctx, &models.AttendanceRecord{
		SessionID: session.ID,
		StudentID: req.StudentID,
		Status:    status,
		Remarks:   req.Notes,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	s.metrics.ObserveRecordMarked()
	return record, nil
}

// ListSessions returns sessions within the caller's department scope.
// Soft-deleted sessions are hidden unless explicitly requested. Results are
// cached per filter and invalidated on every session write.
func (s *AttendanceService) ListSessions(ctx context.Context, claims *models.JWTClaims, filter models.SessionFilter, explicitDepartmentID string) ([]models.AttendanceSession, *models.Pagination, error) {
	ids, all, err := s.access.ScopeDepartments(ctx, claims, explicitDepartmentID)
	if err != nil {
		return nil, nil, err
	}
	filter.DepartmentIDs = ids
	filter.AllDepartments = all

	type cachedList struct {
		Sessions   []models.AttendanceSession `json:"sessions"`
		Pagination models.Pagination          `json:"pagination"`
	}

	key := s.listCacheKey(filter)
	if s.cache != nil {
		var cached cachedList
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.ObserveCacheLookup(true)
			return cached.Sessions, &cached.Pagination, nil
		}
		s.metrics.ObserveCacheLookup(false)
	}

	sessions, total, err := s.repo.ListSessions(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := models.Pagination{Page: page, PageSize: size, TotalCount: total}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, cachedList{Sessions: sessions, Pagination: pagination}, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache session list", zap.Error(err))
		}
	}
	return sessions, &pagination, nil
}

// GetSession returns one session with its records eagerly loaded.
func (s *AttendanceService) GetSession(ctx context.Context, claims *models.JWTClaims, id string) (*models.SessionWithRecords, error) {
	session, err := s.findSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.CheckDepartment(ctx, claims, session.DepartmentID); err != nil {
		return nil, err
	}

	records, err := s.repo.ListRecords(ctx, session.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session records")
	}
	return &models.SessionWithRecords{AttendanceSession: *session, Records: records}, nil
}

// UpdateSession applies the supplied fields only. Records are untouched.
func (s *AttendanceService) UpdateSession(ctx context.Context, claims *models.JWTClaims, id string, req UpdateSessionRequest) (*models.AttendanceSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}

	session, err := s.writableSession(ctx, claims, id)
	if err != nil {
		return nil, err
	}

	if req.Date != nil {
		session.Date = *req.Date
	}
	if req.Category != nil {
		category, err := models.NormalizeCategory(*req.Category)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		session.TargetCategory = category
	}
	if req.Type != nil {
		t := models.ProgramType(*req.Type)
		session.Type = &t
	}

	if err := s.repo.UpdateSession(ctx, session); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an active session already exists for this program, date and category")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}

	s.invalidateListCache(ctx)
	return session, nil
}

// SoftDeleteSession marks a session inactive. Its records are preserved and
// the natural key frees up for a replacement. There is no undelete.
func (s *AttendanceService) SoftDeleteSession(ctx context.Context, claims *models.JWTClaims, id string) error {
	session, err := s.findSession(ctx, id)
	if err != nil {
		return err
	}
	if err := s.access.CheckDepartment(ctx, claims, session.DepartmentID); err != nil {
		return err
	}

	if err := s.repo.SoftDeleteSession(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}

	s.invalidateListCache(ctx)
	return nil
}

// EligibleStudents returns the roster a manual session for the department
// and category would seed.
func (s *AttendanceService) EligibleStudents(ctx context.Context, claims *models.JWTClaims, departmentID, rawCategory string) ([]models.StudentSummary, error) {
	category, err := models.NormalizeCategory(rawCategory)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if err := s.access.CheckDepartment(ctx, claims, departmentID); err != nil {
		return nil, err
	}

	roster, err := s.students.ListByDepartmentCategory(ctx, departmentID, category)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load eligible students")
	}
	return roster, nil
}

// ExportSession renders a session's records as CSV or PDF.
func (s *AttendanceService) ExportSession(ctx context.Context, claims *models.JWTClaims, id, format string) ([]byte, string, error) {
	session, err := s.findSession(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if err := s.access.CheckDepartment(ctx, claims, session.DepartmentID); err != nil {
		return nil, "", err
	}

	details, err := s.repo.ListRecordDetails(ctx, session.ID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session records")
	}

	data := export.Dataset{Headers: []string{"Student", "Status", "Remarks"}}
	for _, d := range details {
		remarks := ""
		if d.Remarks != nil {
			remarks = *d.Remarks
		}
		data.Rows = append(data.Rows, map[string]string{
			"Student": d.StudentName,
			"Status":  string(d.Status),
			"Remarks": remarks,
		})
	}

	name := fmt.Sprintf("attendance-%s-%s", session.Date.Format("2006-01-02"), strings.ToLower(string(session.TargetCategory)))
	switch strings.ToLower(format) {
	case "csv", "":
		payload, err := s.csv.Render(data)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
		}
		s.metrics.ObserveExport("csv")
		return payload, name + ".csv", nil
	case "pdf":
		title := fmt.Sprintf("Attendance %s (%s)", session.Date.Format("2006-01-02"), session.TargetCategory)
		payload, err := s.pdf.Render(data, title)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
		}
		s.metrics.ObserveExport("pdf")
		return payload, name + ".pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func (s *AttendanceService) findSession(ctx context.Context, id string) (*models.AttendanceSession, error) {
	session, err := s.repo.FindSessionByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// writableSession loads a session, gates on its department and refuses
// writes against soft-deleted sessions.
func (s *AttendanceService) writableSession(ctx context.Context, claims *models.JWTClaims, id string) (*models.AttendanceSession, error) {
	session, err := s.findSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.CheckDepartment(ctx, claims, session.DepartmentID); err != nil {
		return nil, err
	}
	if !session.Active {
		return nil, appErrors.Clone(appErrors.ErrConflict, "session is inactive")
	}
	return session, nil
}

func (s *AttendanceService) listCacheKey(filter models.SessionFilter) string {
	category := ""
	if filter.Category != nil {
		category = string(*filter.Category)
	}
	sessionType := ""
	if filter.Type != nil {
		sessionType = string(*filter.Type)
	}
	scope := "all"
	if !filter.AllDepartments {
		scope = strings.Join(filter.DepartmentIDs, ",")
	}
	return fmt.Sprintf("%s%s|%s|%s|%s|%t|%d|%d|%s|%s",
		sessionListKeyPrefix, scope, filter.ProgramID, category, sessionType,
		filter.IncludeInactive, filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
}

func (s *AttendanceService) invalidateListCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, sessionListKeyPrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate session list cache", zap.Error(err))
	}
}
