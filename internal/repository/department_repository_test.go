package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministrylabs/attendance-api/internal/models"
)

func newDepartmentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestDepartmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newDepartmentMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	mock.ExpectExec("INSERT INTO departments").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	dept := &models.Department{Name: "Sunday School"}
	err := repo.Create(context.Background(), dept)
	require.NoError(t, err)
	assert.NotEmpty(t, dept.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepartmentRepositoryCreateUniqueViolation(t *testing.T) {
	db, mock, cleanup := newDepartmentMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	mock.ExpectExec("INSERT INTO departments").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "departments_name_key"})

	err := repo.Create(context.Background(), &models.Department{Name: "Sunday School"})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepartmentRepositoryList(t *testing.T) {
	db, mock, cleanup := newDepartmentMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}).
		AddRow("d1", "Sunday School", nil, time.Now(), time.Now()).
		AddRow("d2", "Youth Meeting", nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, description, created_at, updated_at FROM departments ORDER BY name ASC")).
		WillReturnRows(rows)

	depts, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, depts, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepartmentRepositoryCountDependents(t *testing.T) {
	db, mock, cleanup := newDepartmentMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE department_id = $1")).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM programs WHERE department_id = $1")).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, programs, err := repo.CountDependents(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, 3, students)
	assert.Equal(t, 1, programs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepartmentRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newDepartmentMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM user_departments WHERE department_id = $1")).
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM departments WHERE id = $1")).
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), "d1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
