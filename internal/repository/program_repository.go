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

// ProgramRepository provides database access for programs.
type ProgramRepository struct {
	db *sqlx.DB
}

// NewProgramRepository creates a new instance of ProgramRepository.
func NewProgramRepository(db *sqlx.DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

// Create inserts a new program.
func (r *ProgramRepository) Create(ctx context.Context, program *models.Program) error {
	if program.ID == "" {
		program.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if program.CreatedAt.IsZero() {
		program.CreatedAt = now
	}
	program.UpdatedAt = now

	const query = `INSERT INTO programs (id, name, department_id, type, description, is_active, created_by, created_at, updated_at) VALUES (:id, :name, :department_id, :type, :description, :is_active, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, program); err != nil {
		return fmt.Errorf("create program: %w", err)
	}
	return nil
}

// FindByID returns a program by identifier, active or not.
func (r *ProgramRepository) FindByID(ctx context.Context, id string) (*models.Program, error) {
	const query = `SELECT id, name, department_id, type, description, is_active, created_by, created_at, updated_at FROM programs WHERE id = $1 LIMIT 1`
	var program models.Program
	if err := r.db.GetContext(ctx, &program, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find program by id: %w", err)
	}
	return &program, nil
}

// List returns programs based on filters with total count.
func (r *ProgramRepository) List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error) {
	baseQuery := `FROM programs WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if !filter.IncludeInactive {
		conditions = append(conditions, "is_active = TRUE")
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

	listQuery := fmt.Sprintf("SELECT id, name, department_id, type, description, is_active, created_by, created_at, updated_at %s ORDER BY name ASC LIMIT %d OFFSET %d", baseQuery, pageSize, offset)

	var programs []models.Program
	if err := r.db.SelectContext(ctx, &programs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list programs: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count programs: %w", err)
	}

	return programs, total, nil
}

// Update updates a program's mutable fields.
func (r *ProgramRepository) Update(ctx context.Context, program *models.Program) error {
	program.UpdatedAt = time.Now().UTC()
	const query = `UPDATE programs SET name = :name, type = :type, description = :description, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, program); err != nil {
		return fmt.Errorf("update program: %w", err)
	}
	return nil
}

// SoftDelete marks a program inactive. Historical sessions keep the row as a
// valid parent.
func (r *ProgramRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE programs SET is_active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("soft delete program: %w", err)
	}
	return nil
}
