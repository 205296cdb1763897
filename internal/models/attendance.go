package models

import (
	"strings"
	"time"
)

// AttendanceStatus represents the outcome stored on an attendance record.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusExcused AttendanceStatus = "EXCUSED"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// NormalizeStatus maps any accepted spelling onto the canonical form.
func NormalizeStatus(raw string) AttendanceStatus {
	return AttendanceStatus(strings.ToUpper(strings.TrimSpace(raw)))
}

// AttendanceSession is one attendance-taking event for a department (and
// optionally a program) on a given date, scoped to one student category.
// Sessions are soft-deleted: is_active=false hides them from default listings
// while their records stay queryable.
type AttendanceSession struct {
	ID             string          `db:"id" json:"id"`
	Date           time.Time       `db:"date" json:"date"`
	DepartmentID   string          `db:"department_id" json:"department_id"`
	ProgramID      *string         `db:"program_id" json:"program_id,omitempty"`
	Type           *ProgramType    `db:"type" json:"type,omitempty"`
	TargetCategory StudentCategory `db:"target_category" json:"target_category"`
	Active         bool            `db:"is_active" json:"is_active"`
	CreatedBy      *string         `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// AttendanceRecord is one student's outcome within a session. At most one
// record exists per (session, student) pair, enforced by a unique index.
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	SessionID string           `db:"session_id" json:"session_id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Status    AttendanceStatus `db:"status" json:"status"`
	Remarks   *string          `db:"remarks" json:"remarks,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceRecordDetail joins the record with student metadata for reports.
type AttendanceRecordDetail struct {
	AttendanceRecord
	StudentName string `db:"student_name" json:"student_name"`
}

// SessionWithRecords is the eager-loaded session shape.
type SessionWithRecords struct {
	AttendanceSession
	Records []AttendanceRecord `json:"records"`
}

// SessionFilter scopes session listing queries. DepartmentIDs carries the
// caller's visibility scope the same way StudentFilter does.
type SessionFilter struct {
	ProgramID       string
	DepartmentIDs   []string
	AllDepartments  bool
	Category        *StudentCategory
	Type            *ProgramType
	IncludeInactive bool
	Page            int
	PageSize        int
	SortBy          string
	SortOrder       string
}
