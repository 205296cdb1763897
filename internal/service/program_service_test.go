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

type mockProgramRepo struct {
	programs   map[string]models.Program
	lastFilter models.ProgramFilter
}

func newMockProgramRepo() *mockProgramRepo {
	return &mockProgramRepo{programs: map[string]models.Program{}}
}

func (m *mockProgramRepo) Create(ctx context.Context, program *models.Program) error {
	if program.ID == "" {
		program.ID = "generated"
	}
	m.programs[program.ID] = *program
	return nil
}

func (m *mockProgramRepo) FindByID(ctx context.Context, id string) (*models.Program, error) {
	if p, ok := m.programs[id]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockProgramRepo) List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error) {
	m.lastFilter = filter
	out := make([]models.Program, 0, len(m.programs))
	for _, p := range m.programs {
		if !filter.IncludeInactive && !p.Active {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *mockProgramRepo) Update(ctx context.Context, program *models.Program) error {
	m.programs[program.ID] = *program
	return nil
}

func (m *mockProgramRepo) SoftDelete(ctx context.Context, id string) error {
	p := m.programs[id]
	p.Active = false
	m.programs[id] = p
	return nil
}

func newProgramFixture() (*mockProgramRepo, *ProgramService) {
	repo := newMockProgramRepo()
	depts := &mockDepartmentReader{departments: map[string]models.Department{
		"d1": {ID: "d1"}, "d2": {ID: "d2"},
	}}
	access := NewAccessService(&mockAssignmentReader{assignments: map[string][]string{"admin1": {"d1"}}}, nil)
	return repo, NewProgramService(repo, depts, access, nil, nil)
}

func TestProgramCreateGatesOnDepartment(t *testing.T) {
	_, svc := newProgramFixture()

	program, err := svc.Create(context.Background(), adminClaims("admin1"), CreateProgramRequest{
		Name: "Bible Study", DepartmentID: "d1", Type: "REGULAR",
	})
	require.NoError(t, err)
	assert.True(t, program.Active)

	_, err = svc.Create(context.Background(), adminClaims("admin1"), CreateProgramRequest{
		Name: "Bible Study", DepartmentID: "d2", Type: "REGULAR",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestProgramListRequiresDepartment(t *testing.T) {
	_, svc := newProgramFixture()
	_, _, err := svc.List(context.Background(), adminClaims("admin1"), models.ProgramFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestProgramSoftDeleteHidesFromDefaultList(t *testing.T) {
	repo, svc := newProgramFixture()

	program, err := svc.Create(context.Background(), adminClaims("admin1"), CreateProgramRequest{
		Name: "Bible Study", DepartmentID: "d1", Type: "REGULAR",
	})
	require.NoError(t, err)

	require.NoError(t, svc.SoftDelete(context.Background(), adminClaims("admin1"), program.ID))

	programs, _, err := svc.List(context.Background(), adminClaims("admin1"), models.ProgramFilter{DepartmentID: "d1"})
	require.NoError(t, err)
	assert.Empty(t, programs)

	programs, _, err = svc.List(context.Background(), adminClaims("admin1"), models.ProgramFilter{DepartmentID: "d1", IncludeInactive: true})
	require.NoError(t, err)
	require.Len(t, programs, 1)
	assert.False(t, programs[0].Active)
	assert.False(t, repo.programs[program.ID].Active)
}
