package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ministrylabs/attendance-api/internal/models"
)

// DepartmentRepository provides database access for departments.
type DepartmentRepository struct {
	db *sqlx.DB
}

// NewDepartmentRepository creates a new instance of DepartmentRepository.
func NewDepartmentRepository(db *sqlx.DB) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

// Create inserts a new department. Name uniqueness is enforced by the
// database; callers translate the violation into a conflict.
func (r *DepartmentRepository) Create(ctx context.Context, dept *models.Department) error {
	if dept.ID == "" {
		dept.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if dept.CreatedAt.IsZero() {
		dept.CreatedAt = now
	}
	dept.UpdatedAt = now

	const query = `INSERT INTO departments (id, name, description, created_at, updated_at) VALUES (:id, :name, :description, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, dept); err != nil {
		return fmt.Errorf("create department: %w", err)
	}
	return nil
}

// FindByID returns a department by identifier.
func (r *DepartmentRepository) FindByID(ctx context.Context, id string) (*models.Department, error) {
	const query = `SELECT id, name, description, created_at, updated_at FROM departments WHERE id = $1 LIMIT 1`
	var dept models.Department
	if err := r.db.GetContext(ctx, &dept, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find department by id: %w", err)
	}
	return &dept, nil
}

// ExistsByName reports whether a department with the given name exists,
// optionally excluding one id for rename checks.
func (r *DepartmentRepository) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM departments WHERE LOWER(name) = LOWER($1) AND id <> $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, name, excludeID); err != nil {
		return false, fmt.Errorf("check department name: %w", err)
	}
	return count > 0, nil
}

// List returns all departments ordered by name.
func (r *DepartmentRepository) List(ctx context.Context) ([]models.Department, error) {
	const query = `SELECT id, name, description, created_at, updated_at FROM departments ORDER BY name ASC`
	var depts []models.Department
	if err := r.db.SelectContext(ctx, &depts, query); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return depts, nil
}

// ListByIDs returns the departments matching the given ids.
func (r *DepartmentRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Department, error) {
	if len(ids) == 0 {
		return []models.Department{}, nil
	}
	query, args, err := sqlx.In(`SELECT id, name, description, created_at, updated_at FROM departments WHERE id IN (?) ORDER BY name ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("build department query: %w", err)
	}
	query = r.db.Rebind(query)
	var depts []models.Department
	if err := r.db.SelectContext(ctx, &depts, query, args...); err != nil {
		return nil, fmt.Errorf("list departments by ids: %w", err)
	}
	return depts, nil
}

// Update updates a department's name and description.
func (r *DepartmentRepository) Update(ctx context.Context, dept *models.Department) error {
	dept.UpdatedAt = time.Now().UTC()
	const query = `UPDATE departments SET name = :name, description = :description, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, dept); err != nil {
		return fmt.Errorf("update department: %w", err)
	}
	return nil
}

// CountDependents returns how many students and programs still reference the
// department. Deletion is refused while either count is non-zero.
func (r *DepartmentRepository) CountDependents(ctx context.Context, id string) (students int, programs int, err error) {
	if err = r.db.GetContext(ctx, &students, `SELECT COUNT(*) FROM students WHERE department_id = $1`, id); err != nil {
		return 0, 0, fmt.Errorf("count department students: %w", err)
	}
	if err = r.db.GetContext(ctx, &programs, `SELECT COUNT(*) FROM programs WHERE department_id = $1`, id); err != nil {
		return 0, 0, fmt.Errorf("count department programs: %w", err)
	}
	return students, programs, nil
}

// Delete removes a department and its user assignments.
func (r *DepartmentRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete department: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_departments WHERE department_id = $1`, id); err != nil {
		return fmt.Errorf("delete department assignments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM departments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete department: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete department: %w", err)
	}
	committed = true
	return nil
}
