package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ministrylabs/attendance-api/internal/models"
	"github.com/ministrylabs/attendance-api/internal/repository"
	appErrors "github.com/ministrylabs/attendance-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	ListDepartmentIDs(ctx context.Context, userID string) ([]string, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Create(ctx context.Context, user *models.User, departmentIDs []string) error
	Update(ctx context.Context, user *models.User, departmentIDs []string) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type userDepartmentReader interface {
	ListByIDs(ctx context.Context, ids []string) ([]models.Department, error)
}

// CreateUserRequest holds payload for creating users.
type CreateUserRequest struct {
	Email         string   `json:"email" validate:"required,email"`
	Password      string   `json:"password" validate:"required,min=6"`
	FullName      string   `json:"full_name" validate:"required,min=2,max=150"`
	Role          string   `json:"role" validate:"required,oneof=SUPER_ADMIN ADMIN MANAGER"`
	DepartmentIDs []string `json:"department_ids,omitempty"`
}

// UpdateUserRequest holds the partial payload for updating users. A non-nil
// DepartmentIDs replaces the assignment set.
type UpdateUserRequest struct {
	FullName      *string  `json:"full_name,omitempty" validate:"omitempty,min=2,max=150"`
	Role          *string  `json:"role,omitempty" validate:"omitempty,oneof=SUPER_ADMIN ADMIN MANAGER"`
	Active        *bool    `json:"active,omitempty"`
	DepartmentIDs []string `json:"department_ids,omitempty"`
}

// CreateAdminRequest creates an ADMIN bound to exactly one department.
type CreateAdminRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=6"`
	FullName     string `json:"full_name" validate:"required,min=2,max=150"`
	DepartmentID string `json:"department_id" validate:"required"`
}

// CreateManagerRequest creates a MANAGER inside one department.
type CreateManagerRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=6"`
	FullName     string `json:"full_name" validate:"required,min=2,max=150"`
	DepartmentID string `json:"department_id" validate:"required"`
}

// UserService handles user administration use-cases.
type UserService struct {
	repo        userRepository
	departments userDepartmentReader
	access      *AccessService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewUserService constructs the user service.
func NewUserService(repo userRepository, departments userDepartmentReader, access *AccessService, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, departments: departments, access: access, validator: validate, logger: logger}
}

// Me returns the authenticated user together with their assignments.
func (s *UserService) Me(ctx context.Context, claims *models.JWTClaims) (*models.UserWithDepartments, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	return s.Get(ctx, claims.UserID)
}

// Get returns one user with department assignments.
func (s *UserService) Get(ctx context.Context, id string) (*models.UserWithDepartments, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	deptIDs, err := s.repo.ListDepartmentIDs(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department assignments")
	}
	return &models.UserWithDepartments{User: *user, DepartmentIDs: deptIDs}, nil
}

// List returns users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return users, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Create creates a user with an optional set of department assignments.
func (s *UserService) Create(ctx context.Context, actor *models.JWTClaims, req CreateUserRequest) (*models.UserWithDepartments, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	return s.createUser(ctx, actor, req.Email, req.Password, req.FullName, models.UserRole(req.Role), req.DepartmentIDs)
}

// CreateAdmin creates an ADMIN bound to exactly one department.
func (s *UserService) CreateAdmin(ctx context.Context, actor *models.JWTClaims, req CreateAdminRequest) (*models.UserWithDepartments, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	return s.createUser(ctx, actor, req.Email, req.Password, req.FullName, models.RoleAdmin, []string{req.DepartmentID})
}

// CreateManager creates a MANAGER inside a department the actor can access.
func (s *UserService) CreateManager(ctx context.Context, actor *models.JWTClaims, req CreateManagerRequest) (*models.UserWithDepartments, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	if err := s.access.CheckDepartment(ctx, actor, req.DepartmentID); err != nil {
		return nil, err
	}
	return s.createUser(ctx, actor, req.Email, req.Password, req.FullName, models.RoleManager, []string{req.DepartmentID})
}

// Update applies the supplied fields and optionally replaces the department
// assignment set in the same transaction.
func (s *UserService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdateUserRequest) (*models.UserWithDepartments, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	user := existing.User

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Role != nil {
		user.Role = models.UserRole(*req.Role)
	}
	if req.Active != nil {
		user.Active = *req.Active
	}
	if req.DepartmentIDs != nil {
		if err := s.checkDepartmentsExist(ctx, req.DepartmentIDs); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, &user, req.DepartmentIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.audit(ctx, actor, models.AuditActionUpdate, user.ID)
	return s.Get(ctx, id)
}

// Delete removes a user and their assignments permanently.
func (s *UserService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	if actor != nil && actor.UserID == id {
		return appErrors.Clone(appErrors.ErrConflict, "cannot delete your own account")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	s.audit(ctx, actor, models.AuditActionDelete, id)
	return nil
}

func (s *UserService) createUser(ctx context.Context, actor *models.JWTClaims, email, password, fullName string, role models.UserRole, departmentIDs []string) (*models.UserWithDepartments, error) {
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("email %q is already registered", email))
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	if err := s.checkDepartmentsExist(ctx, departmentIDs); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
		Role:         role,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user, departmentIDs); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("email %q is already registered", email))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.audit(ctx, actor, models.AuditActionCreate, user.ID)
	return &models.UserWithDepartments{User: *user, DepartmentIDs: departmentIDs}, nil
}

func (s *UserService) checkDepartmentsExist(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	depts, err := s.departments.ListByIDs(ctx, ids)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load departments")
	}
	if len(depts) != len(ids) {
		return appErrors.Clone(appErrors.ErrNotFound, "one or more departments do not exist")
	}
	return nil
}

func (s *UserService) audit(ctx context.Context, actor *models.JWTClaims, action, resourceID string) {
	log := &models.AuditLog{Action: action, Resource: "users", ResourceID: &resourceID}
	if actor != nil {
		log.UserID = &actor.UserID
	}
	if err := s.repo.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record user audit log", zap.Error(err))
	}
}
