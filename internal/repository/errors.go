package repository

import (
	"errors"

	"github.com/lib/pq"
)

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation. Services translate these into Conflict responses, which turns
// the check-then-act races on session and record natural keys into a
// rejected second writer instead of silent duplication.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
