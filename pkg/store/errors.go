package store

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"
)

// CodeUniqueViolation is the Postgres SQLSTATE for unique_violation. PostgREST
// passes it through unchanged.
const CodeUniqueViolation = "23505"

// Error is a database error reported by either backend.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Code != "" {
		fmt.Fprintf(&b, "%s: ", e.Code)
	}
	b.WriteString(e.Message)
	if e.Details != "" {
		fmt.Fprintf(&b, " (%s)", e.Details)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " [http %d]", e.Status)
	}
	return b.String()
}

func IsUniqueViolation(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == CodeUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == CodeUniqueViolation
	}
	return false
}

func fromPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &Error{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Details: pgErr.Detail,
			Hint:    pgErr.Hint,
		}
	}
	return err
}
