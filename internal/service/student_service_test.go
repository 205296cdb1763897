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

type mockStudentRepo struct {
	students   map[string]models.Student
	lastFilter models.StudentFilter
	deleted    []string
}

func newMockStudentRepo() *mockStudentRepo {
	return &mockStudentRepo{students: map[string]models.Student{}}
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = "generated"
	}
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentSummary, int, error) {
	m.lastFilter = filter
	if !filter.AllDepartments && len(filter.DepartmentIDs) == 0 {
		return nil, 0, nil
	}
	out := make([]models.StudentSummary, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, models.StudentSummary{ID: s.ID, Name: s.Name, Category: s.Category, DepartmentID: s.DepartmentID})
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Delete(ctx context.Context, id string) error {
	delete(m.students, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type studentFixture struct {
	repo  *mockStudentRepo
	depts *mockDepartmentReader
	svc   *StudentService
}

func newStudentFixture() *studentFixture {
	repo := newMockStudentRepo()
	depts := &mockDepartmentReader{departments: map[string]models.Department{
		"d1": {ID: "d1", Name: "Sunday School"},
		"d2": {ID: "d2", Name: "Youth Meeting"},
	}}
	access := NewAccessService(&mockAssignmentReader{assignments: map[string][]string{"admin1": {"d1"}}}, nil)
	svc := NewStudentService(repo, depts, access, nil, nil)
	return &studentFixture{repo: repo, depts: depts, svc: svc}
}

func childRequest() CreateStudentRequest {
	return CreateStudentRequest{
		Name:         "Young Student",
		Age:          9,
		Sex:          "F",
		Category:     "children",
		DepartmentID: "d1",
		Profile: &models.StudentProfile{
			Child: &models.ChildProfile{ParentName: "Parent", ParentPhone: "0100000000"},
		},
	}
}

func TestStudentCreateNormalizesCategory(t *testing.T) {
	f := newStudentFixture()
	student, err := f.svc.Create(context.Background(), adminClaims("admin1"), childRequest())
	require.NoError(t, err)
	assert.Equal(t, models.CategoryChildren, student.Category)
}

func TestStudentCreateMissingProfileVariant(t *testing.T) {
	f := newStudentFixture()
	req := childRequest()
	req.Profile = &models.StudentProfile{
		Adult: &models.AdultProfile{Phone: "0100", EducationLevel: "ILLITERATE"},
	}

	_, err := f.svc.Create(context.Background(), adminClaims("admin1"), req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "profile.child")
}

func TestStudentCreateInvalidProfileFields(t *testing.T) {
	f := newStudentFixture()
	req := childRequest()
	req.Profile = &models.StudentProfile{Child: &models.ChildProfile{ParentName: "Parent"}}

	_, err := f.svc.Create(context.Background(), adminClaims("admin1"), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentCreateUnknownDepartment(t *testing.T) {
	f := newStudentFixture()
	req := childRequest()
	req.DepartmentID = "nope"

	_, err := f.svc.Create(context.Background(), superAdminClaims(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentCreateForeignDepartmentForbidden(t *testing.T) {
	f := newStudentFixture()
	req := childRequest()
	req.DepartmentID = "d2"

	_, err := f.svc.Create(context.Background(), adminClaims("admin1"), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestStudentCreateUnassignedCallerCannotDetectMissingDepartment(t *testing.T) {
	f := newStudentFixture()
	req := childRequest()
	req.DepartmentID = "nope"

	// an unassigned caller must see Forbidden, not NotFound
	_, err := f.svc.Create(context.Background(), adminClaims("admin1"), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestStudentUpdateCategoryRechecksProfile(t *testing.T) {
	f := newStudentFixture()
	student, err := f.svc.Create(context.Background(), adminClaims("admin1"), childRequest())
	require.NoError(t, err)

	category := "ADULT"
	_, err = f.svc.Update(context.Background(), adminClaims("admin1"), student.ID, UpdateStudentRequest{Category: &category})
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Message, "profile.adult")

	_, err = f.svc.Update(context.Background(), adminClaims("admin1"), student.ID, UpdateStudentRequest{
		Category: &category,
		Profile: &models.StudentProfile{
			Adult: &models.AdultProfile{Phone: "0100", EducationLevel: "HIGHER_EDUCATION"},
		},
	})
	require.NoError(t, err)
}

func TestStudentUpdateDepartmentMoveRegates(t *testing.T) {
	f := newStudentFixture()
	student, err := f.svc.Create(context.Background(), adminClaims("admin1"), childRequest())
	require.NoError(t, err)

	dest := "d2"
	_, err = f.svc.Update(context.Background(), adminClaims("admin1"), student.ID, UpdateStudentRequest{DepartmentID: &dest})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	moved, err := f.svc.Update(context.Background(), superAdminClaims(), student.ID, UpdateStudentRequest{DepartmentID: &dest})
	require.NoError(t, err)
	assert.Equal(t, "d2", moved.DepartmentID)
}

func TestStudentListUsesVisibilityScope(t *testing.T) {
	f := newStudentFixture()
	_, err := f.svc.Create(context.Background(), adminClaims("admin1"), childRequest())
	require.NoError(t, err)

	_, _, err = f.svc.List(context.Background(), adminClaims("admin1"), models.StudentFilter{}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, f.repo.lastFilter.DepartmentIDs)
	assert.False(t, f.repo.lastFilter.AllDepartments)

	_, _, err = f.svc.List(context.Background(), superAdminClaims(), models.StudentFilter{}, "")
	require.NoError(t, err)
	assert.True(t, f.repo.lastFilter.AllDepartments)
}

func TestStudentDeleteSuperAdminOnly(t *testing.T) {
	f := newStudentFixture()
	student, err := f.svc.Create(context.Background(), adminClaims("admin1"), childRequest())
	require.NoError(t, err)

	err = f.svc.Delete(context.Background(), adminClaims("admin1"), student.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, f.svc.Delete(context.Background(), superAdminClaims(), student.ID))
	assert.Contains(t, f.repo.deleted, student.ID)
}
