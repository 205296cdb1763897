package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministrylabs/attendance-api/internal/models"
	appErrors "github.com/ministrylabs/attendance-api/pkg/errors"
)

type mockDepartmentRepo struct {
	departments map[string]models.Department
	names       map[string]string
	students    int
	programs    int
	deleted     []string
}

func newMockDepartmentRepo() *mockDepartmentRepo {
	return &mockDepartmentRepo{departments: map[string]models.Department{}, names: map[string]string{}}
}

func (m *mockDepartmentRepo) Create(ctx context.Context, dept *models.Department) error {
	if dept.ID == "" {
		dept.ID = "generated"
	}
	m.departments[dept.ID] = *dept
	m.names[dept.Name] = dept.ID
	return nil
}

func (m *mockDepartmentRepo) FindByID(ctx context.Context, id string) (*models.Department, error) {
	if d, ok := m.departments[id]; ok {
		return &d, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockDepartmentRepo) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	if id, ok := m.names[name]; ok {
		return excludeID == "" || id != excludeID, nil
	}
	return false, nil
}

func (m *mockDepartmentRepo) List(ctx context.Context) ([]models.Department, error) {
	out := make([]models.Department, 0, len(m.departments))
	for _, d := range m.departments {
		out = append(out, d)
	}
	return out, nil
}

func (m *mockDepartmentRepo) Update(ctx context.Context, dept *models.Department) error {
	m.departments[dept.ID] = *dept
	return nil
}

func (m *mockDepartmentRepo) CountDependents(ctx context.Context, id string) (int, int, error) {
	return m.students, m.programs, nil
}

func (m *mockDepartmentRepo) Delete(ctx context.Context, id string) error {
	delete(m.departments, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func TestDepartmentCreateDuplicateNameConflicts(t *testing.T) {
	repo := newMockDepartmentRepo()
	svc := NewDepartmentService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateDepartmentRequest{Name: "Sunday School"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateDepartmentRequest{Name: "Sunday School"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestDepartmentUpdateKeepOwnNameAllowed(t *testing.T) {
	repo := newMockDepartmentRepo()
	svc := NewDepartmentService(repo, nil, nil)

	dept, err := svc.Create(context.Background(), CreateDepartmentRequest{Name: "Sunday School"})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), dept.ID, UpdateDepartmentRequest{Name: "Sunday School"})
	require.NoError(t, err)
	assert.Equal(t, "Sunday School", updated.Name)
}

func TestDepartmentGetNotFound(t *testing.T) {
	svc := NewDepartmentService(newMockDepartmentRepo(), nil, nil)
	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDepartmentDeleteWithDependentsConflicts(t *testing.T) {
	repo := newMockDepartmentRepo()
	svc := NewDepartmentService(repo, nil, nil)

	dept, err := svc.Create(context.Background(), CreateDepartmentRequest{Name: "Youth"})
	require.NoError(t, err)

	repo.students = 2
	err = svc.Delete(context.Background(), dept.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	repo.students = 0
	require.NoError(t, svc.Delete(context.Background(), dept.ID))
	assert.Contains(t, repo.deleted, dept.ID)
}
