// SPDX-License-Identifier: Apache-2.0

// Package pgerr classifies constraint-violation errors by their
// database-level name, independent of which driver returned them, so the
// Step Applier can report a specific constraint kind instead of a raw
// driver error string.
package pgerr

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

const (
	CheckViolation      = "check_violation"
	ForeignKeyViolation = "foreign_key_violation"
	NotNullViolation    = "not_null_violation"
	UniqueViolation     = "unique_violation"
)

// mysqlViolations maps MySQL error numbers to the same violation names
// Postgres's SQLSTATE condition names use, so callers classify both
// dialects' errors identically.
var mysqlViolations = map[uint16]string{
	1048: NotNullViolation,
	1062: UniqueViolation,
	1452: ForeignKeyViolation,
	3819: CheckViolation,
}

// Classify returns the constraint-violation name for err, or "" if err is
// not a recognized constraint violation (including when it is nil, or from
// SQLite, which reports constraint failures as plain strings with no stable
// error-code taxonomy to classify).
func Classify(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch name := pqErr.Code.Name(); name {
		case CheckViolation, ForeignKeyViolation, NotNullViolation, UniqueViolation:
			return name
		}
		return ""
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return mysqlViolations[myErr.Number]
	}
	return ""
}
