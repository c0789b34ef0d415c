package database

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the repositories react to.
const (
	CodeGroupingError   = "42803"
	CodeUndefinedColumn = "42703"
	CodeUndefinedTable  = "42P01"
	CodeUniqueViolation = "23505"
)

// SQLState returns the SQLSTATE of err, or "" when err is not a server error.
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given SQLSTATE.
func IsCode(err error, code string) bool {
	return err != nil && SQLState(err) == code
}

// Mentions reports whether a server error's message, detail or table name
// refers to name.
func Mentions(err error, name string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.TableName == name ||
		strings.Contains(pgErr.Message, name) ||
		strings.Contains(pgErr.Detail, name)
}
