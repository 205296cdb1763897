package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ministrylabs/attendance-api/internal/models"
	"github.com/ministrylabs/attendance-api/internal/repository"
	appErrors "github.com/ministrylabs/attendance-api/pkg/errors"
)

type departmentRepository interface {
	Create(ctx context.Context, dept *models.Department) error
	FindByID(ctx context.Context, id string) (*models.Department, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	List(ctx context.Context) ([]models.Department, error)
	Update(ctx context.Context, dept *models.Department) error
	CountDependents(ctx context.Context, id string) (int, int, error)
	Delete(ctx context.Context, id string) error
}

// CreateDepartmentRequest holds payload for creating departments.
type CreateDepartmentRequest struct {
	Name        string  `json:"name" validate:"required,min=2,max=100"`
	Description *string `json:"description,omitempty"`
}

// UpdateDepartmentRequest holds payload for updating departments.
type UpdateDepartmentRequest struct {
	Name        string  `json:"name" validate:"required,min=2,max=100"`
	Description *string `json:"description,omitempty"`
}

// DepartmentService handles department use-cases.
type DepartmentService struct {
	repo      departmentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDepartmentService constructs the department service.
func NewDepartmentService(repo departmentRepository, validate *validator.Validate, logger *zap.Logger) *DepartmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DepartmentService{repo: repo, validator: validate, logger: logger}
}

// Create creates a department. Duplicate names conflict, checked up front
// and backed by the unique index for concurrent creators.
func (s *DepartmentService) Create(ctx context.Context, req CreateDepartmentRequest) (*models.Department, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}

	exists, err := s.repo.ExistsByName(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check department name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("department %q already exists", req.Name))
	}

	dept := &models.Department{Name: req.Name, Description: req.Description}
	if err := s.repo.Create(ctx, dept); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("department %q already exists", req.Name))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create department")
	}
	return dept, nil
}

// List returns all departments.
func (s *DepartmentService) List(ctx context.Context) ([]models.Department, error) {
	depts, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}
	return depts, nil
}

// Get returns one department.
func (s *DepartmentService) Get(ctx context.Context, id string) (*models.Department, error) {
	dept, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	return dept, nil
}

// Update renames a department.
func (s *DepartmentService) Update(ctx context.Context, id string, req UpdateDepartmentRequest) (*models.Department, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}

	dept, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByName(ctx, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check department name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("department %q already exists", req.Name))
	}

	dept.Name = req.Name
	dept.Description = req.Description
	if err := s.repo.Update(ctx, dept); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("department %q already exists", req.Name))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update department")
	}
	return dept, nil
}

// Delete removes a department. Refused while students or programs still
// reference it.
func (s *DepartmentService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	students, programs, err := s.repo.CountDependents(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check department usage")
	}
	if students > 0 || programs > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "department still has students or programs")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete department")
	}
	return nil
}
