package orm

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors. Every typed error below matches its sentinel
// with errors.Is.
var (
	// ErrTxStarted is returned when a transaction is started on a runner
	// that already has one active.
	ErrTxStarted = errors.New("orm: cannot start a transaction within a transaction")

	// ErrTxNotStarted is returned when a transaction is committed or rolled
	// back on a runner that has none active.
	ErrTxNotStarted = errors.New("orm: transaction not started")

	ErrMissingIdentifier = errors.New("orm: missing identifier")
	ErrUnresolvableCycle = errors.New("orm: unresolvable dependency cycle")
	ErrCascadeNotAllowed = errors.New("orm: cascade not allowed")
	ErrColumnNotFound    = errors.New("orm: column not found")
	ErrQueryFailed       = errors.New("orm: query failed")
	ErrOptimisticLock    = errors.New("orm: optimistic lock version mismatch")
)

// MissingIdentifierError is returned when a change that needs the primary
// key of its row (update, remove) has none.
type MissingIdentifierError struct {
	Entity string
	Op     Op
	Column string // First primary key column without a value.
}

// Error returns the error string.
func (e *MissingIdentifierError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("orm: %s %s: missing identifier (column %q)", e.Op, e.Entity, e.Column)
	}
	return fmt.Sprintf("orm: %s %s: missing identifier", e.Op, e.Entity)
}

// Is reports whether the target error matches ErrMissingIdentifier.
func (e *MissingIdentifierError) Is(err error) bool { return err == ErrMissingIdentifier }

// IsMissingIdentifier returns true if the error is a MissingIdentifierError.
func IsMissingIdentifier(err error) bool {
	return err != nil && errors.Is(err, ErrMissingIdentifier)
}

// UnresolvableCycleError is returned by the orderer when subjects depend on
// each other through required (non-nullable) foreign keys only.
type UnresolvableCycleError struct {
	// Path lists the entity names along the cycle, in dependency order.
	Path []string
}

// Error returns the error string.
func (e *UnresolvableCycleError) Error() string {
	return fmt.Sprintf("orm: unresolvable dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// Is reports whether the target error matches ErrUnresolvableCycle.
func (e *UnresolvableCycleError) Is(err error) bool { return err == ErrUnresolvableCycle }

// IsUnresolvableCycle returns true if the error is an UnresolvableCycleError.
func IsUnresolvableCycle(err error) bool {
	return err != nil && errors.Is(err, ErrUnresolvableCycle)
}

// CascadeNotAllowedError is returned when a relation changed but the change
// cannot propagate: the relation lacks the cascade permission and the
// related entity has no identifier of its own.
type CascadeNotAllowedError struct {
	Entity   string // Entity owning the relation.
	Relation string
	Target   string // Related entity type.
	Op       Op     // Operation that would have been required.
}

// Error returns the error string.
func (e *CascadeNotAllowedError) Error() string {
	return fmt.Sprintf("orm: cascade %s not allowed on %s.%s (target %s has no identifier)", e.Op, e.Entity, e.Relation, e.Target)
}

// Is reports whether the target error matches ErrCascadeNotAllowed.
func (e *CascadeNotAllowedError) Is(err error) bool { return err == ErrCascadeNotAllowed }

// IsCascadeNotAllowed returns true if the error is a CascadeNotAllowedError.
func IsCascadeNotAllowed(err error) bool {
	return err != nil && errors.Is(err, ErrCascadeNotAllowed)
}

// ColumnNotFoundError is returned when a property path of a partial save
// does not map to a column of the entity.
type ColumnNotFoundError struct {
	Entity string
	Path   string
}

// Error returns the error string.
func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("orm: no column for property path %q in %s", e.Path, e.Entity)
}

// Is reports whether the target error matches ErrColumnNotFound.
func (e *ColumnNotFoundError) Is(err error) bool { return err == ErrColumnNotFound }

// IsColumnNotFound returns true if the error is a ColumnNotFoundError.
func IsColumnNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrColumnNotFound)
}

// QueryFailedError wraps a statement failure with the statement and the
// change it was executing.
type QueryFailedError struct {
	Entity string // Entity type or junction table.
	Op     Op     // OpNone for loads.
	Query  string
	Args   []any
	Err    error
}

// Error returns the error string.
func (e *QueryFailedError) Error() string {
	if e.Op == OpNone {
		return fmt.Sprintf("orm: load %s: query failed: %v", e.Entity, e.Err)
	}
	return fmt.Sprintf("orm: %s %s: query failed: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryFailedError) Unwrap() error { return e.Err }

// Is reports whether the target error matches ErrQueryFailed.
func (e *QueryFailedError) Is(err error) bool { return err == ErrQueryFailed }

// IsQueryFailed returns true if the error is a QueryFailedError.
func IsQueryFailed(err error) bool {
	return err != nil && errors.Is(err, ErrQueryFailed)
}

// OptimisticLockError is returned when the version of an entity does not
// match the version stored in the database.
type OptimisticLockError struct {
	Entity   string
	Expected any
	Actual   any // nil when unknown (the update matched no row).
}

// Error returns the error string.
func (e *OptimisticLockError) Error() string {
	if e.Actual != nil {
		return fmt.Sprintf("orm: %s: expected version %v, found %v", e.Entity, e.Expected, e.Actual)
	}
	return fmt.Sprintf("orm: %s: version %v is no longer current", e.Entity, e.Expected)
}

// Is reports whether the target error matches ErrOptimisticLock.
func (e *OptimisticLockError) Is(err error) bool { return err == ErrOptimisticLock }

// IsOptimisticLock returns true if the error is an OptimisticLockError.
func IsOptimisticLock(err error) bool {
	return err != nil && errors.Is(err, ErrOptimisticLock)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("orm: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("orm: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// suppressedError carries secondary errors next to the primary one. Only
// the primary error takes part in errors.Is/As matching.
type suppressedError struct {
	error
	suppressed []error
}

func (e *suppressedError) Unwrap() error { return e.error }

// WithSuppressed attaches secondary errors to err without changing its
// message or identity. Nil secondary errors are dropped.
func WithSuppressed(err error, suppressed ...error) error {
	if err == nil {
		return nil
	}
	var filtered []error
	for _, s := range suppressed {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		return err
	}
	if se, ok := err.(*suppressedError); ok {
		se.suppressed = append(se.suppressed, filtered...)
		return se
	}
	return &suppressedError{error: err, suppressed: filtered}
}

// Suppressed returns the secondary errors attached to err, if any.
func Suppressed(err error) []error {
	var se *suppressedError
	if errors.As(err, &se) {
		return se.suppressed
	}
	return nil
}
