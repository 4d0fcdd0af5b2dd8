package persist

import (
	"log/slog"
	"time"

	"github.com/syssam/orm"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger steps and rollback failures are reported to.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.log = logger
	}
}

// WithPolicy sets the policy every classified change is evaluated against
// before any statement executes.
func WithPolicy(p orm.Policy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithConcurrency bounds the number of concurrent loads issued outside a
// transaction. Values below 2 load sequentially.
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		m.workers = n
	}
}

// WithClock sets the clock timestamps are taken from.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.clock = now
	}
}

// SaveOptions are the options of one save or remove call.
type SaveOptions struct {
	// Transaction wraps the call in a transaction unless the manager is
	// bound to one already.
	Transaction bool
	// Reload writes generated dates and versions back into the entities.
	// Generated identifiers are always written back.
	Reload bool
	// Chunk splits the roots into batches of this size. Batches run in
	// sequence within the one transaction.
	Chunk int
	// Fields restricts the update of the roots to these property paths.
	Fields []string
	// Listeners enables the entity lifecycle hooks.
	Listeners bool
	// Target names the entity of the roots explicitly.
	Target string
}

// SaveOption configures a call.
type SaveOption func(*SaveOptions)

func defaultSaveOptions() SaveOptions {
	return SaveOptions{Transaction: true, Reload: true, Listeners: true}
}

// WithoutTransaction runs the statements of the call without a transaction.
func WithoutTransaction() SaveOption {
	return func(o *SaveOptions) {
		o.Transaction = false
	}
}

// WithoutReload leaves generated dates and versions out of the entities.
func WithoutReload() SaveOption {
	return func(o *SaveOptions) {
		o.Reload = false
	}
}

// WithChunk splits large root lists into batches of n entities.
func WithChunk(n int) SaveOption {
	return func(o *SaveOptions) {
		o.Chunk = n
	}
}

// WithFields restricts the update of the roots to the given property
// paths: a field, a column, a relation or relation.field.
func WithFields(paths ...string) SaveOption {
	return func(o *SaveOptions) {
		o.Fields = append(o.Fields, paths...)
	}
}

// WithoutListeners disables the entity lifecycle hooks.
func WithoutListeners() SaveOption {
	return func(o *SaveOptions) {
		o.Listeners = false
	}
}

// WithTarget names the entity of the roots, bypassing type resolution.
func WithTarget(entity string) SaveOption {
	return func(o *SaveOptions) {
		o.Target = entity
	}
}
