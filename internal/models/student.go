package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// StudentCategory is the cohort discriminator that determines which profile
// variant applies and which attendance sessions a student is eligible for.
type StudentCategory string

const (
	CategoryChildren   StudentCategory = "CHILDREN"
	CategoryAdolescent StudentCategory = "ADOLESCENT"
	CategoryYouth      StudentCategory = "YOUTH"
	CategoryAdult      StudentCategory = "ADULT"
)

// Valid returns true when the category is a supported value.
func (c StudentCategory) Valid() bool {
	switch c {
	case CategoryChildren, CategoryAdolescent, CategoryYouth, CategoryAdult:
		return true
	default:
		return false
	}
}

// NormalizeCategory maps any accepted spelling of a category onto its
// canonical uppercase form. Every boundary that accepts a category value
// goes through this so storage only ever sees one representation.
func NormalizeCategory(raw string) (StudentCategory, error) {
	cat := StudentCategory(strings.ToUpper(strings.TrimSpace(raw)))
	if !cat.Valid() {
		return "", fmt.Errorf("unknown student category %q", raw)
	}
	return cat, nil
}

// ChildProfile is required for CHILDREN students.
type ChildProfile struct {
	ParentName  string  `json:"parent_name" validate:"required"`
	ParentPhone string  `json:"parent_phone" validate:"required"`
	School      *string `json:"school,omitempty"`
}

// AdolescentProfile is required for ADOLESCENT students.
type AdolescentProfile struct {
	GuardianName   string  `json:"guardian_name" validate:"required"`
	Phone          *string `json:"phone,omitempty"`
	EducationLevel string  `json:"education_level" validate:"required,oneof=ELEMENTARY HIGH_SCHOOL PREPARATORY HIGHER_EDUCATION ILLITERATE"`
}

// YouthProfile is required for YOUTH students.
type YouthProfile struct {
	Phone          string  `json:"phone" validate:"required"`
	EducationLevel string  `json:"education_level" validate:"required,oneof=ELEMENTARY HIGH_SCHOOL PREPARATORY HIGHER_EDUCATION ILLITERATE"`
	Occupation     *string `json:"occupation,omitempty"`
}

// AdultProfile is required for ADULT students.
type AdultProfile struct {
	Phone            string  `json:"phone" validate:"required"`
	MaritalStatus    *string `json:"marital_status,omitempty" validate:"omitempty,oneof=SINGLE MARRIED DIVORCED WIDOWED MONK"`
	EducationLevel   string  `json:"education_level" validate:"required,oneof=ELEMENTARY HIGH_SCHOOL PREPARATORY HIGHER_EDUCATION ILLITERATE"`
	Occupation       *string `json:"occupation,omitempty"`
	ChurchAttendance *string `json:"church_attendance,omitempty" validate:"omitempty,oneof=DAILY WEEKLY MONTHLY OCCASIONALLY NEVER"`
}

// StudentProfile is the category-discriminated profile payload. Exactly one
// variant is expected to be set, matching the student's category. Persisted
// as a single JSONB column.
type StudentProfile struct {
	Child      *ChildProfile      `json:"child,omitempty"`
	Adolescent *AdolescentProfile `json:"adolescent,omitempty"`
	Youth      *YouthProfile      `json:"youth,omitempty"`
	Adult      *AdultProfile      `json:"adult,omitempty"`
}

// MissingVariant returns the JSON path of the variant required for the
// category when it is absent, or "" when the profile satisfies it.
func (p *StudentProfile) MissingVariant(cat StudentCategory) string {
	switch cat {
	case CategoryChildren:
		if p == nil || p.Child == nil {
			return "profile.child"
		}
	case CategoryAdolescent:
		if p == nil || p.Adolescent == nil {
			return "profile.adolescent"
		}
	case CategoryYouth:
		if p == nil || p.Youth == nil {
			return "profile.youth"
		}
	case CategoryAdult:
		if p == nil || p.Adult == nil {
			return "profile.adult"
		}
	}
	return ""
}

// Value implements driver.Valuer for JSONB storage.
func (p *StudentProfile) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner for JSONB storage.
func (p *StudentProfile) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("unsupported profile scan type %T", src)
	}
}

// Student belongs to exactly one department and carries a category-typed
// profile.
type Student struct {
	ID           string          `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Age          int             `db:"age" json:"age"`
	Sex          string          `db:"sex" json:"sex"`
	Church       *string         `db:"church" json:"church,omitempty"`
	Category     StudentCategory `db:"category" json:"category"`
	DepartmentID string          `db:"department_id" json:"department_id"`
	Profile      *StudentProfile `db:"profile" json:"profile,omitempty"`
	CreatedBy    *string         `db:"created_by" json:"created_by,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// StudentSummary is the lightweight listing shape used by rosters and the
// attendance checklist UI.
type StudentSummary struct {
	ID           string          `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Age          int             `db:"age" json:"age"`
	Sex          string          `db:"sex" json:"sex"`
	Category     StudentCategory `db:"category" json:"category"`
	DepartmentID string          `db:"department_id" json:"department_id"`
}

// StudentFilter scopes student listing queries. DepartmentIDs carries the
// caller's visibility scope; empty plus AllDepartments=false means no rows.
type StudentFilter struct {
	DepartmentIDs  []string
	AllDepartments bool
	Category       *StudentCategory
	Search         string
	Page           int
	PageSize       int
}
