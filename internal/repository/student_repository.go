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

// StudentRepository provides database access for students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository creates a new instance of StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now

	const query = `INSERT INTO students (id, name, age, sex, church, category, department_id, profile, created_by, created_at, updated_at) VALUES (:id, :name, :age, :sex, :church, :category, :department_id, :profile, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// FindByID returns a student by identifier.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, name, age, sex, church, category, department_id, profile, created_by, created_at, updated_at FROM students WHERE id = $1 LIMIT 1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student by id: %w", err)
	}
	return &student, nil
}

// List returns student summaries based on filters with total count. The
// department scope in the filter is mandatory for non-admin callers: an
// empty scope without AllDepartments yields no rows rather than all rows.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentSummary, int, error) {
	if !filter.AllDepartments && len(filter.DepartmentIDs) == 0 {
		return []models.StudentSummary{}, 0, nil
	}

	baseQuery := `FROM students WHERE 1=1`
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
	if filter.Category != nil {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, *filter.Category)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
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

	listQuery := fmt.Sprintf("SELECT id, name, age, sex, category, department_id %s ORDER BY name ASC LIMIT %d OFFSET %d", baseQuery, pageSize, offset)

	var students []models.StudentSummary
	if err := r.db.SelectContext(ctx, &students, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}

	return students, total, nil
}

// ListByDepartmentCategory returns the roster of one department filtered to a
// category. This is the eligibility query behind session creation.
func (r *StudentRepository) ListByDepartmentCategory(ctx context.Context, departmentID string, category models.StudentCategory) ([]models.StudentSummary, error) {
	const query = `SELECT id, name, age, sex, category, department_id FROM students WHERE department_id = $1 AND category = $2 ORDER BY name ASC`
	var students []models.StudentSummary
	if err := r.db.SelectContext(ctx, &students, query, departmentID, category); err != nil {
		return nil, fmt.Errorf("list students by category: %w", err)
	}
	return students, nil
}

// Update updates a student's mutable fields.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET name = :name, age = :age, sex = :sex, church = :church, category = :category, department_id = :department_id, profile = :profile, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Delete removes a student and their attendance records.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete student: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM attendance_records WHERE student_id = $1`, id); err != nil {
		return fmt.Errorf("delete student records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete student: %w", err)
	}
	committed = true
	return nil
}
