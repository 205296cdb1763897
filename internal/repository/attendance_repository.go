package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ministrylabs/attendance-api/internal/models"
)

// AttendanceRepository provides database access for attendance sessions and
// their records. Session creation and record seeding happen in a single
// transaction so a session is never observable without its roster.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository creates a new instance of AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// CreateSessionWithRecords inserts a session together with its initial
// records. The partial unique index on (program_id, date, target_category)
// for active sessions surfaces duplicate creation as a unique violation.
func (r *AttendanceRepository) CreateSessionWithRecords(ctx context.Context, session *models.AttendanceSession, records []models.AttendanceRecord) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	session.Active = true

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create session: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	const sessionQuery = `INSERT INTO attendance_sessions (id, date, department_id, program_id, type, target_category, is_active, created_by, created_at, updated_at) VALUES (:id, :date, :department_id, :program_id, :type, :target_category, :is_active, :created_by, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, sessionQuery, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	const recordQuery = `INSERT INTO attendance_records (id, session_id, student_id, status, remarks, created_at, updated_at) VALUES (:id, :session_id, :student_id, :status, :remarks, :created_at, :updated_at)`
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		records[i].SessionID = session.ID
		records[i].CreatedAt = now
		records[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, recordQuery, &records[i]); err != nil {
			return fmt.Errorf("create session record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create session: %w", err)
	}
	committed = true
	return nil
}

// FindSessionByID returns a session by identifier, active or not.
func (r *AttendanceRepository) FindSessionByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	const query = `SELECT id, date, department_id, program_id, type, target_category, is_active, created_by, created_at, updated_at FROM attendance_sessions WHERE id = $1 LIMIT 1`
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session by id: %w", err)
	}
	return &session, nil
}

// FindActiveSession returns the active session matching the natural key, or
// sql.ErrNoRows. Used both as the duplicate pre-check and as the collect
// target lookup.
func (r *AttendanceRepository) FindActiveSession(ctx context.Context, programID string, date time.Time, category models.StudentCategory) (*models.AttendanceSession, error) {
	const query = `SELECT id, date, department_id, program_id, type, target_category, is_active, created_by, created_at, updated_at FROM attendance_sessions WHERE program_id = $1 AND date = $2 AND target_category = $3 AND is_active = TRUE LIMIT 1`
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, query, programID, date, category); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active session: %w", err)
	}
	return &session, nil
}

// ListSessions returns sessions based on filters with total count. The
// department scope in the filter is mandatory for non-admin callers.
func (r *AttendanceRepository) ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.AttendanceSession, int, error) {
	if !filter.AllDepartments && len(filter.DepartmentIDs) == 0 {
		return []models.AttendanceSession{}, 0, nil
	}

	baseQuery := `FROM attendance_sessions WHERE 1=1`
	var conditions []string
	var args []interface{}

	if !filter.AllDepartments {
		placeholders := make([]string, 0, len(filter.DepartmentIDs))
		for _, id := range filter.DepartmentIDs {
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)+1))
			args = append(args, id)
		}
		conditions = append(conditions, fmt.Sprintf("department_id IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filter.ProgramID != "" {
		conditions = append(conditions, fmt.Sprintf("program_id = $%d", len(args)+1))
		args = append(args, filter.ProgramID)
	}
	if filter.Category != nil {
		conditions = append(conditions, fmt.Sprintf("target_category = $%d", len(args)+1))
		args = append(args, *filter.Category)
	}
	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, *filter.Type)
	}
	if !filter.IncludeInactive {
		conditions = append(conditions, "is_active = TRUE")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "date"
	}
	allowedSorts := map[string]bool{
		"date":       true,
		"created_at": true,
		"updated_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "date"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT id, date, department_id, program_id, type, target_category, is_active, created_by, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d", baseQuery, sortBy, sortOrder, pageSize, offset)

	var sessions []models.AttendanceSession
	if err := r.db.SelectContext(ctx, &sessions, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	return sessions, total, nil
}

// UpdateSession updates a session's date, target category and type.
func (r *AttendanceRepository) UpdateSession(ctx context.Context, session *models.AttendanceSession) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE attendance_sessions SET date = :date, target_category = :target_category, type = :type, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// SoftDeleteSession marks a session inactive. Records stay queryable and the
// natural key slot frees up for a replacement session.
func (r *AttendanceRepository) SoftDeleteSession(ctx context.Context, id string) error {
	const query = `UPDATE attendance_sessions SET is_active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("soft delete session: %w", err)
	}
	return nil
}

// ListRecords returns all records of a session.
func (r *AttendanceRepository) ListRecords(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	const query = `SELECT id, session_id, student_id, status, remarks, created_at, updated_at FROM attendance_records WHERE session_id = $1 ORDER BY created_at ASC`
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session records: %w", err)
	}
	return records, nil
}

// ListRecordDetails returns a session's records joined with student names,
// ordered for reports.
func (r *AttendanceRepository) ListRecordDetails(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error) {
	const query = `SELECT ar.id, ar.session_id, ar.student_id, ar.status, ar.remarks, ar.created_at, ar.updated_at, s.name AS student_name FROM attendance_records ar JOIN students s ON s.id = ar.student_id WHERE ar.session_id = $1 ORDER BY s.name ASC`
	var details []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &details, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session record details: %w", err)
	}
	return details, nil
}

// UpsertRecord inserts or updates the record for a (session, student) pair
// and returns the resulting row. Replaying the same marking converges on the
// same state instead of failing or duplicating.
func (r *AttendanceRepository) UpsertRecord(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	const query = `INSERT INTO attendance_records (id, session_id, student_id, status, remarks, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (session_id, student_id)
		DO UPDATE SET status = EXCLUDED.status, remarks = EXCLUDED.remarks, updated_at = EXCLUDED.updated_at
		RETURNING id, session_id, student_id, status, remarks, created_at, updated_at`

	var result models.AttendanceRecord
	if err := r.db.GetContext(ctx, &result, query, record.ID, record.SessionID, record.StudentID, record.Status, record.Remarks, now); err != nil {
		return nil, fmt.Errorf("upsert record: %w", err)
	}
	return &result, nil
}
