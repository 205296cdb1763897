package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministrylabs/attendance-api/internal/models"
)

func newAttendanceMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAttendanceRepositoryCreateSessionWithRecords(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO attendance_sessions").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	for i := 0; i < 2; i++ {
		mock.ExpectExec("INSERT INTO attendance_records").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	programID := "p1"
	session := &models.AttendanceSession{
		Date:           time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		DepartmentID:   "d1",
		ProgramID:      &programID,
		TargetCategory: models.CategoryYouth,
	}
	records := []models.AttendanceRecord{
		{StudentID: "s1", Status: models.AttendanceStatusAbsent},
		{StudentID: "s2", Status: models.AttendanceStatusAbsent},
	}

	err := repo.CreateSessionWithRecords(context.Background(), session, records)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.True(t, session.Active)
	for _, rec := range records {
		assert.Equal(t, session.ID, rec.SessionID)
		assert.NotEmpty(t, rec.ID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCreateSessionRollsBackOnRecordError(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO attendance_sessions").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO attendance_records").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	session := &models.AttendanceSession{
		Date:           time.Now().UTC(),
		DepartmentID:   "d1",
		TargetCategory: models.CategoryAdult,
	}
	records := []models.AttendanceRecord{{StudentID: "s1", Status: models.AttendanceStatusAbsent}}

	err := repo.CreateSessionWithRecords(context.Background(), session, records)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryFindActiveSessionNotFound(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM attendance_sessions").
		WithArgs("p1", sqlmock.AnyArg(), models.CategoryYouth).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActiveSession(context.Background(), "p1", time.Now().UTC(), models.CategoryYouth)
	assert.Equal(t, sql.ErrNoRows, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListSessionsScoped(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	rows := sqlmock.NewRows([]string{"id", "date", "department_id", "program_id", "type", "target_category", "is_active", "created_by", "created_at", "updated_at"}).
		AddRow("a1", time.Now(), "d1", "p1", "REGULAR", "YOUTH", true, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, date, department_id, program_id, type, target_category, is_active, created_by, created_at, updated_at FROM attendance_sessions WHERE 1=1 AND department_id IN ($1) AND is_active = TRUE ORDER BY date DESC LIMIT 20 OFFSET 0")).
		WithArgs("d1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance_sessions WHERE 1=1 AND department_id IN ($1) AND is_active = TRUE")).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	sessions, total, err := repo.ListSessions(context.Background(), models.SessionFilter{DepartmentIDs: []string{"d1"}})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListSessionsEmptyScope(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	sessions, total, err := repo.ListSessions(context.Background(), models.SessionFilter{})
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.Equal(t, 0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryUpsertRecord(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	rows := sqlmock.NewRows([]string{"id", "session_id", "student_id", "status", "remarks", "created_at", "updated_at"}).
		AddRow("r1", "a1", "s1", "PRESENT", nil, time.Now(), time.Now())
	mock.ExpectQuery("INSERT INTO attendance_records").
		WithArgs(sqlmock.AnyArg(), "a1", "s1", models.AttendanceStatusPresent, nil, sqlmock.AnyArg()).
		WillReturnRows(rows)

	record, err := repo.UpsertRecord(context.Background(), &models.AttendanceRecord{
		SessionID: "a1",
		StudentID: "s1",
		Status:    models.AttendanceStatusPresent,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusPresent, record.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositorySoftDeleteSession(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_sessions SET is_active = FALSE, updated_at = $2 WHERE id = $1")).
		WithArgs("a1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SoftDeleteSession(context.Background(), "a1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
