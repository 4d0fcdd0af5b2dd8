package orm

import "context"

// Op represents the operation kind assigned to a pending change.
type Op uint8

// Operation kinds. Exactly one is assigned to every change.
const (
	OpNone Op = iota
	OpInsert
	OpUpdate
	OpRemove
	OpSoftRemove
	OpRecover
)

var opNames = [...]string{
	OpNone:       "none",
	OpInsert:     "insert",
	OpUpdate:     "update",
	OpRemove:     "remove",
	OpSoftRemove: "soft-remove",
	OpRecover:    "recover",
}

// String returns the operation name.
func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "unknown"
}

// Is reports whether op is one of the given operations.
func (op Op) Is(ops ...Op) bool {
	for _, o := range ops {
		if op == o {
			return true
		}
	}
	return false
}

// Writes reports whether the operation issues a statement against the entity table.
func (op Op) Writes() bool { return op != OpNone }

// Change is the read-only view of a classified pending change handed to
// policies and listeners.
type Change interface {
	// EntityName returns the entity type tag.
	EntityName() string
	// Op returns the assigned operation.
	Op() Op
	// Entity returns the live entity instance.
	Entity() any
	// Changed returns the column names whose values will be written.
	Changed() []string
	// Value returns the value a column will hold once the change executed.
	Value(column string) (any, bool)
}

// Policy decides whether a change may be executed.
type Policy interface {
	EvalChange(context.Context, Change) error
}

// PolicyFunc is an adapter to allow the use of ordinary functions as Policy.
type PolicyFunc func(context.Context, Change) error

// EvalChange calls f(ctx, c).
func (f PolicyFunc) EvalChange(ctx context.Context, c Change) error {
	return f(ctx, c)
}
