package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ministrylabs/attendance-api/internal/models"
	appErrors "github.com/ministrylabs/attendance-api/pkg/errors"
)

type studentRepository interface {
	Create(ctx context.Context, student *models.Student) error
	FindByID(ctx context.Context, id string) (*models.Student, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentSummary, int, error)
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

type studentDepartmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Department, error)
}

// CreateStudentRequest holds payload for registering students. The profile
// variant matching Category is mandatory.
type CreateStudentRequest struct {
	Name         string                 `json:"name" validate:"required,min=2,max=150"`
	Age          int                    `json:"age" validate:"required,gte=1,lte=120"`
	Sex          string                 `json:"sex" validate:"required,oneof=M F"`
	Church       *string                `json:"church,omitempty"`
	Category     string                 `json:"category" validate:"required"`
	DepartmentID string                 `json:"department_id" validate:"required"`
	Profile      *models.StudentProfile `json:"profile" validate:"required"`
}

// UpdateStudentRequest holds the partial payload for updating students.
type UpdateStudentRequest struct {
	Name         *string                `json:"name,omitempty" validate:"omitempty,min=2,max=150"`
	Age          *int                   `json:"age,omitempty" validate:"omitempty,gte=1,lte=120"`
	Sex          *string                `json:"sex,omitempty" validate:"omitempty,oneof=M F"`
	Church       *string                `json:"church,omitempty"`
	Category     *string                `json:"category,omitempty"`
	DepartmentID *string                `json:"department_id,omitempty"`
	Profile      *models.StudentProfile `json:"profile,omitempty"`
}

// StudentService handles student registry use-cases.
type StudentService struct {
	repo        studentRepository
	departments studentDepartmentReader
	access      *AccessService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, departments studentDepartmentReader, access *AccessService, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, departments: departments, access: access, validator: validate, logger: logger}
}

// Create registers a student. The category is normalized at the boundary and
// the matching profile variant must be present and valid.
func (s *StudentService) Create(ctx context.Context, claims *models.JWTClaims, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	category, err := models.NormalizeCategory(req.Category)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	if missing := req.Profile.MissingVariant(category); missing != "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("missing required %s", missing))
	}
	if err := s.validateProfile(req.Profile, category); err != nil {
		return nil, err
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

	student := &models.Student{
		Name:         req.Name,
		Age:          req.Age,
		Sex:          req.Sex,
		Church:       req.Church,
		Category:     category,
		DepartmentID: req.DepartmentID,
		Profile:      req.Profile,
	}
	if claims != nil {
		student.CreatedBy = &claims.UserID
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// List returns student summaries within the caller's department scope.
func (s *StudentService) List(ctx context.Context, claims *models.JWTClaims, filter models.StudentFilter, explicitDepartmentID string) ([]models.StudentSummary, *models.Pagination, error) {
	ids, all, err := s.access.ScopeDepartments(ctx, claims, explicitDepartmentID)
	if err != nil {
		return nil, nil, err
	}
	filter.DepartmentIDs = ids
	filter.AllDepartments = all

	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns the full student detail after gating on the department.
func (s *StudentService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.Student, error) {
	student, err := s.findStudent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.CheckDepartment(ctx, claims, student.DepartmentID); err != nil {
		return nil, err
	}
	return student, nil
}

// Update applies the supplied fields. Moving a student to another department
// re-gates against the destination, and a category change re-checks the
// profile invariant.
func (s *StudentService) Update(ctx context.Context, claims *models.JWTClaims, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student, err := s.findStudent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.CheckDepartment(ctx, claims, student.DepartmentID); err != nil {
		return nil, err
	}

	if req.DepartmentID != nil && *req.DepartmentID != student.DepartmentID {
		if err := s.access.CheckDepartment(ctx, claims, *req.DepartmentID); err != nil {
			return nil, err
		}
		if _, err := s.departments.FindByID(ctx, *req.DepartmentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
		}
		student.DepartmentID = *req.DepartmentID
	}

	if req.Name != nil {
		student.Name = *req.Name
	}
	if req.Age != nil {
		student.Age = *req.Age
	}
	if req.Sex != nil {
		student.Sex = *req.Sex
	}
	if req.Church != nil {
		student.Church = req.Church
	}
	if req.Category != nil {
		category, err := models.NormalizeCategory(*req.Category)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		student.Category = category
	}
	if req.Profile != nil {
		student.Profile = req.Profile
	}

	if missing := student.Profile.MissingVariant(student.Category); missing != "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("missing required %s", missing))
	}
	if err := s.validateProfile(student.Profile, student.Category); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// Delete removes a student permanently. Super admin only.
func (s *StudentService) Delete(ctx context.Context, claims *models.JWTClaims, id string) error {
	if claims == nil || claims.Role != models.RoleSuperAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only super admins may delete students")
	}
	if _, err := s.findStudent(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	return nil
}

func (s *StudentService) findStudent(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *StudentService) validateProfile(profile *models.StudentProfile, category models.StudentCategory) error {
	var err error
	switch category {
	case models.CategoryChildren:
		err = s.validator.Struct(profile.Child)
	case models.CategoryAdolescent:
		err = s.validator.Struct(profile.Adolescent)
	case models.CategoryYouth:
		err = s.validator.Struct(profile.Youth)
	case models.CategoryAdult:
		err = s.validator.Struct(profile.Adult)
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student profile")
	}
	return nil
}
