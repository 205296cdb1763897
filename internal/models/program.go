package models

import "time"

// ProgramType distinguishes recurring programs from one-off events.
type ProgramType string

const (
	ProgramTypeRegular ProgramType = "REGULAR"
	ProgramTypeEvent   ProgramType = "EVENT"
)

// Valid returns true when the type is a supported value.
func (t ProgramType) Valid() bool {
	switch t {
	case ProgramTypeRegular, ProgramTypeEvent:
		return true
	default:
		return false
	}
}

// Program is a named activity container within a department under which
// attendance sessions are taken. Soft-deleted via the active flag so that
// historical sessions keep a valid parent.
type Program struct {
	ID           string      `db:"id" json:"id"`
	Name         string      `db:"name" json:"name"`
	DepartmentID string      `db:"department_id" json:"department_id"`
	Type         ProgramType `db:"type" json:"type"`
	Description  *string     `db:"description" json:"description,omitempty"`
	Active       bool        `db:"is_active" json:"is_active"`
	CreatedBy    *string     `db:"created_by" json:"created_by,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// ProgramFilter scopes program listing queries.
type ProgramFilter struct {
	DepartmentID    string
	IncludeInactive bool
	Page            int
	PageSize        int
}
