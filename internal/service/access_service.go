package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/ministrylabs/attendance-api/internal/models"
	appErrors "github.com/ministrylabs/attendance-api/pkg/errors"
)

type departmentAssignmentReader interface {
	ListDepartmentIDs(ctx context.Context, userID string) ([]string, error)
}

// AccessService is the department visibility gate. Every service touching
// department-scoped data calls it on both read and write paths, so a caller
// outside a department can neither mutate nor observe its data.
type AccessService struct {
	users  departmentAssignmentReader
	logger *zap.Logger
}

// NewAccessService constructs the access service.
func NewAccessService(users departmentAssignmentReader, logger *zap.Logger) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{users: users, logger: logger}
}

// CheckDepartment returns nil when the principal may act on the department.
// Super admins always pass. Admins and managers pass only for departments in
// their assigned set.
func (s *AccessService) CheckDepartment(ctx context.Context, claims *models.JWTClaims, departmentID string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if claims.Role == models.RoleSuperAdmin {
		return nil
	}
	if claims.Role != models.RoleAdmin && claims.Role != models.RoleManager {
		return appErrors.Clone(appErrors.ErrForbidden, "no department access")
	}

	assigned, err := s.users.ListDepartmentIDs(ctx, claims.UserID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department access")
	}
	for _, id := range assigned {
		if id == departmentID {
			return nil
		}
	}
	s.logger.Debug("department access denied",
		zap.String("user_id", claims.UserID),
		zap.String("department_id", departmentID))
	return appErrors.Clone(appErrors.ErrForbidden, "no access to this department")
}

// ScopeDepartments resolves the department visibility for list queries.
// Super admins see everything unless they filter to one department. Everyone
// else is implicitly limited to their assigned set; asking for a department
// outside it is Forbidden rather than silently empty, and an empty assigned
// set yields an empty scope that repositories translate to zero rows.
func (s *AccessService) ScopeDepartments(ctx context.Context, claims *models.JWTClaims, explicitID string) ([]string, bool, error) {
	if claims == nil {
		return nil, false, appErrors.ErrUnauthorized
	}
	if claims.Role == models.RoleSuperAdmin {
		if explicitID != "" {
			return []string{explicitID}, false, nil
		}
		return nil, true, nil
	}
	if claims.Role != models.RoleAdmin && claims.Role != models.RoleManager {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "no department access")
	}

	assigned, err := s.users.ListDepartmentIDs(ctx, claims.UserID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department access")
	}
	if explicitID != "" {
		for _, id := range assigned {
			if id == explicitID {
				return []string{explicitID}, false, nil
			}
		}
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "no access to this department")
	}
	return assigned, false, nil
}
