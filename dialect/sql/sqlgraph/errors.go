// Package sqlgraph classifies driver errors raised while the persistence
// engine executes its statements.
package sqlgraph

import (
	"errors"
	"strings"
)

// ConstraintKind identifies the kind of a violated constraint.
type ConstraintKind string

// Constraint kinds reported by ConstraintKindOf.
const (
	Unique     ConstraintKind = "unique"
	ForeignKey ConstraintKind = "foreign key"
	Check      ConstraintKind = "check"
)

// errorCoder is an interface for database errors that provide error codes.
type errorCoder interface {
	Code() string
}

// errorNumberer is an interface for database errors that provide numeric error codes.
type errorNumberer interface {
	Number() uint16
}

// sqlStateError is an interface for errors that provide SQLSTATE codes.
// Implemented by: pq.Error, pgx, and some MySQL drivers.
type sqlStateError interface {
	SQLState() string
}

// matcher describes how each driver reports one constraint kind.
type matcher struct {
	kind     ConstraintKind
	sqlState string   // PostgreSQL SQLSTATE (Class 23).
	numbers  []uint16 // MySQL error numbers.
	texts    []string // Fallback substrings (MySQL, Postgres, SQLite).
}

var matchers = []matcher{
	{
		kind:     Unique,
		sqlState: "23505",
		numbers:  []uint16{1062},
		texts:    []string{"Error 1062", "violates unique constraint", "UNIQUE constraint failed"},
	},
	{
		kind:     ForeignKey,
		sqlState: "23503",
		// 1451: cannot delete or update a parent row, 1452: cannot add or update a child row.
		numbers: []uint16{1451, 1452},
		texts:   []string{"Error 1451", "Error 1452", "violates foreign key constraint", "FOREIGN KEY constraint failed"},
	},
	{
		kind:     Check,
		sqlState: "23514",
		numbers:  []uint16{3819},
		texts:    []string{"Error 3819", "violates check constraint", "CHECK constraint failed"},
	},
}

// ConstraintKindOf reports the kind of constraint violated by err, if any.
func ConstraintKindOf(err error) (ConstraintKind, bool) {
	if err == nil {
		return "", false
	}
	for _, m := range matchers {
		if m.match(err) {
			return m.kind, true
		}
	}
	return "", false
}

func (m matcher) match(err error) bool {
	if e, ok := asError[sqlStateError](err); ok && e.SQLState() == m.sqlState {
		return true
	}
	if e, ok := asError[errorCoder](err); ok && e.Code() == m.sqlState {
		return true
	}
	if e, ok := asError[errorNumberer](err); ok {
		for _, n := range m.numbers {
			if e.Number() == n {
				return true
			}
		}
	}
	// Fallback to string matching for drivers that don't implement interfaces.
	return containsAny(err.Error(), m.texts...)
}

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	_, ok := ConstraintKindOf(err)
	return ok
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
func IsUniqueConstraintError(err error) bool {
	k, ok := ConstraintKindOf(err)
	return ok && k == Unique
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
func IsForeignKeyConstraintError(err error) bool {
	k, ok := ConstraintKindOf(err)
	return ok && k == ForeignKey
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool {
	k, ok := ConstraintKindOf(err)
	return ok && k == Check
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
