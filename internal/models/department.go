package models

import "time"

// Department is the top-level organizational scoping unit. Programs,
// students and user assignments all hang off a department.
type Department struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// UserDepartment is a row of the user ↔ department junction table.
type UserDepartment struct {
	UserID       string `db:"user_id" json:"user_id"`
	DepartmentID string `db:"department_id" json:"department_id"`
}
