// Package sqlerr specifically handles database driver errors.
//
// It parses cryptic error codes from the database driver and converts them
// into user-friendly messages (e.g. converting a "foreign key violation"
// into a "Bad Request" error).
package sqlerr

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Code classifies Postgres errors into the categories the application cares
// about.
type Code int

const (
	// Other covers everything not explicitly mapped.
	Other Code = iota
	ForeignKeyViolation
	UniqueViolation
	NotNullViolation
	CheckViolation
)

// Severity mirrors the Postgres error severity field.
type Severity int

const (
	SeverityError Severity = iota
	SeverityFatal
	SeverityPanic
	SeverityWarning
)

// Error is the application-level representation of a Postgres error. It
// keeps the original SQLSTATE and constraint metadata so callers can build
// precise client-facing messages.
type Error struct {
	Code           Code
	Severity       Severity
	DatabaseCode   string
	Message        string
	SchemaName     string
	TableName      string
	ColumnName     string
	DataTypeName   string
	ConstraintName string

	driverErr *pgconn.PgError
}

func (e *Error) Error() string {
	return fmt.Sprintf("database error %s: %s", e.DatabaseCode, e.Message)
}

// Unwrap exposes the original driver error for errors.As chains.
func (e *Error) Unwrap() error {
	return e.driverErr
}

// MapCode maps a SQLSTATE string onto our Code enum.
func MapCode(sqlstate string) Code {
	switch sqlstate {
	case "23503":
		return ForeignKeyViolation
	case "23505":
		return UniqueViolation
	case "23502":
		return NotNullViolation
	case "23514":
		return CheckViolation
	default:
		return Other
	}
}

// MapSeverity maps the Postgres severity string onto our Severity enum.
func MapSeverity(severity string) Severity {
	switch severity {
	case "FATAL":
		return SeverityFatal
	case "PANIC":
		return SeverityPanic
	case "WARNING":
		return SeverityWarning
	default:
		return SeverityError
	}
}
