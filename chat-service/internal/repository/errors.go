package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// isUniqueViolation recognises unique constraint errors from the postgres,
// mysql and sqlite drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	errStr := err.Error()
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "SQLSTATE 23505") {
		return true
	}
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// MySQL
	return strings.Contains(errStr, "Duplicate entry")
}
