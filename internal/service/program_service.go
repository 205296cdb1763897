package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ministrylabs/attendance-api/internal/models"
	appErrors "github.com/ministrylabs/attendance-api/pkg/errors"
)

type programRepository interface {
	Create(ctx context.Context, program *models.Program) error
	FindByID(ctx context.Context, id string) (*models.Program, error)
	List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error)
	Update(ctx context.Context, program *models.Program) error
	SoftDelete(ctx context.Context, id string) error
}

type programDepartmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Department, error)
}

// CreateProgramRequest holds payload for creating programs.
type CreateProgramRequest struct {
	Name         string  `json:"name" validate:"required,min=2,max=150"`
	DepartmentID string  `json:"department_id" validate:"required"`
	Type         string  `json:"type" validate:"required,oneof=REGULAR EVENT"`
	Description  *string `json:"description,omitempty"`
}

// UpdateProgramRequest holds the partial payload for updating programs.
// Nil fields are left untouched.
type UpdateProgramRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=2,max=150"`
	Type        *string `json:"type,omitempty" validate:"omitempty,oneof=REGULAR EVENT"`
	Description *string `json:"description,omitempty"`
	Active      *bool   `json:"is_active,omitempty"`
}

// ProgramService handles program lifecycle use-cases. Department access is
// enforced on every operation, reads included.
type ProgramService struct {
	repo        programRepository
	departments programDepartmentReader
	access      *AccessService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewProgramService constructs the program service.
func NewProgramService(repo programRepository, departments programDepartmentReader, access *AccessService, validate *validator.Validate, logger *zap.Logger) *ProgramService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgramService{repo: repo, departments: departments, access: access, validator: validate, logger: logger}
}

// Create creates a program inside a department the caller can access.
func (s *ProgramService) Create(ctx context.Context, claims *models.JWTClaims, req CreateProgramRequest) (*models.Program, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid program payload")
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

	program := &models.Program{
		Name:         req.Name,
		DepartmentID: req.DepartmentID,
		Type:         models.ProgramType(req.Type),
		Description:  req.Description,
		Active:       true,
	}
	if claims != nil {
		program.CreatedBy = &claims.UserID
	}
	if err := s.repo.Create(ctx, program); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create program")
	}
	return program, nil
}

// List returns the programs of one department. The department filter is
// required so the access check has a subject.
func (s *ProgramService) List(ctx context.Context, claims *models.JWTClaims, filter models.ProgramFilter) ([]models.Program, *models.Pagination, error) {
	if filter.DepartmentID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "department_id is required")
	}
	if err := s.access.CheckDepartment(ctx, claims, filter.DepartmentID); err != nil {
		return nil, nil, err
	}

	programs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list programs")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return programs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one program after gating on its department.
func (s *ProgramService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.Program, error) {
	program, err := s.findProgram(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.CheckDepartment(ctx, claims, program.DepartmentID); err != nil {
		return nil, err
	}
	return program, nil
}

// Update applies the supplied fields only.
func (s *ProgramService) Update(ctx context.Context, claims *models.JWTClaims, id string, req UpdateProgramRequest) (*models.Program, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid program payload")
	}

	program, err := s.findProgram(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.CheckDepartment(ctx, claims, program.DepartmentID); err != nil {
		return nil, err
	}

	if req.Name != nil {
		program.Name = *req.Name
	}
	if req.Type != nil {
		program.Type = models.ProgramType(*req.Type)
	}
	if req.Description != nil {
		program.Description = req.Description
	}
	if req.Active != nil {
		program.Active = *req.Active
	}

	if err := s.repo.Update(ctx, program); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update program")
	}
	return program, nil
}

// SoftDelete marks a program inactive. Its historical sessions remain.
func (s *ProgramService) SoftDelete(ctx context.Context, claims *models.JWTClaims, id string) error {
	program, err := s.findProgram(ctx, id)
	if err != nil {
		return err
	}
	if err := s.access.CheckDepartment(ctx, claims, program.DepartmentID); err != nil {
		return err
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete program")
	}
	return nil
}

func (s *ProgramService) findProgram(ctx context.Context, id string) (*models.Program, error) {
	program, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	return program, nil
}
