package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/syssam/orm"
	"github.com/syssam/orm/dialect"
	"github.com/syssam/orm/metadata"
	"github.com/syssam/orm/privacy"
)

// Lifecycle hooks. Entities implement the ones they need. Before-hooks run
// once the call is classified; update change sets are recomputed after
// them. After-hooks run once the transaction committed, or right after the
// statements when the manager is bound to a caller's transaction.
type (
	BeforeInsert interface{ BeforeInsert(context.Context) error }
	BeforeUpdate interface{ BeforeUpdate(context.Context) error }
	BeforeRemove interface{ BeforeRemove(context.Context) error }
	AfterInsert  interface{ AfterInsert(context.Context) error }
	AfterUpdate  interface{ AfterUpdate(context.Context) error }
	AfterRemove  interface{ AfterRemove(context.Context) error }
)

// Manager saves and removes entity graphs.
type Manager struct {
	drv     dialect.Driver
	reg     *metadata.Registry
	log     *slog.Logger
	policy  orm.Policy
	workers int
	clock   func() time.Time
	// runner is set on managers bound to a transaction.
	runner *QueryRunner
}

// NewManager returns a manager issuing statements through drv for the
// entities of a built registry.
func NewManager(drv dialect.Driver, reg *metadata.Registry, opts ...Option) *Manager {
	m := &Manager{
		drv:     drv,
		reg:     reg,
		log:     slog.Default(),
		workers: 4,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the metadata registry.
func (m *Manager) Registry() *metadata.Registry { return m.reg }

// Save inserts or updates the given entity, or slice of entities, and
// every related entity reachable through relations cascading insert or
// update.
func (m *Manager) Save(ctx context.Context, entity any, opts ...SaveOption) error {
	return m.run(ctx, ModePersist, entity, opts)
}

// Remove deletes the given entities and the related entities reachable
// through relations cascading remove.
func (m *Manager) Remove(ctx context.Context, entity any, opts ...SaveOption) error {
	return m.run(ctx, ModeRemove, entity, opts)
}

// SoftRemove sets the delete date of the given entities.
func (m *Manager) SoftRemove(ctx context.Context, entity any, opts ...SaveOption) error {
	return m.run(ctx, ModeSoftRemove, entity, opts)
}

// Recover clears the delete date of soft-removed entities.
func (m *Manager) Recover(ctx context.Context, entity any, opts ...SaveOption) error {
	return m.run(ctx, ModeRecover, entity, opts)
}

// Transaction runs fn with a manager bound to a new transaction. The
// transaction is rolled back if fn fails or panics and committed
// otherwise. Calls on a manager already bound participate in its
// transaction.
func (m *Manager) Transaction(ctx context.Context, fn func(context.Context, *Manager) error) (err error) {
	if m.runner != nil {
		return fn(ctx, m)
	}
	r := NewQueryRunner(m.drv)
	if err := r.StartTransaction(ctx); err != nil {
		return err
	}
	tm := *m
	tm.runner = r
	defer func() {
		if v := recover(); v != nil {
			_ = r.RollbackTransaction()
			panic(v)
		}
	}()
	if err := fn(ctx, &tm); err != nil {
		if rerr := r.RollbackTransaction(); rerr != nil {
			m.log.ErrorContext(ctx, "persist: rolling back transaction", "error", rerr)
			err = orm.WithSuppressed(err, &orm.RollbackError{Err: rerr})
		}
		return err
	}
	if err := r.CommitTransaction(); err != nil {
		return fmt.Errorf("persist: committing transaction: %w", err)
	}
	return nil
}

// call is the state of one Save, Remove, SoftRemove or Recover.
type call struct {
	*Manager
	mode    Mode
	opts    SaveOptions
	runner  *QueryRunner
	journal *journal
	// external is set when the statements run in a caller's transaction.
	external bool
	// started is set once the call opened its own transaction.
	started bool
	done    []*Subject
}

func (m *Manager) run(ctx context.Context, mode Mode, entity any, opts []SaveOption) error {
	if !m.reg.Built() {
		return errors.New("persist: metadata registry is not built")
	}
	c := &call{Manager: m, mode: mode, opts: defaultSaveOptions(), journal: &journal{}}
	for _, opt := range opts {
		opt(&c.opts)
	}
	roots, err := flatten(entity)
	if err != nil || len(roots) == 0 {
		return err
	}
	c.runner, c.external = m.runner, m.runner != nil
	if !c.external {
		c.runner = NewQueryRunner(m.drv)
	}
	if err := c.execute(ctx, chunks(roots, c.opts.Chunk)); err != nil {
		return err
	}
	return c.after(ctx)
}

// execute runs every chunk. On failure an own transaction is rolled back,
// and the entities are restored when the statements were undone or are
// about to be undone by the caller.
func (c *call) execute(ctx context.Context, chunks [][]any) (err error) {
	defer func() {
		if err == nil {
			return
		}
		switch {
		case c.started:
			if c.runner.IsTransactionActive() {
				if rerr := c.runner.RollbackTransaction(); rerr != nil {
					c.log.ErrorContext(ctx, "persist: rolling back transaction", "mode", c.mode, "error", rerr)
					err = orm.WithSuppressed(err, &orm.RollbackError{Err: rerr})
				}
			}
			c.journal.restore()
		case c.external:
			c.journal.restore()
		}
	}()
	for _, roots := range chunks {
		if err := c.chunk(ctx, roots); err != nil {
			return err
		}
	}
	if c.started {
		if err := c.runner.CommitTransaction(); err != nil {
			return fmt.Errorf("persist: committing transaction: %w", err)
		}
	}
	return nil
}

func (c *call) chunk(ctx context.Context, roots []any) error {
	g, err := BuildGraph(c.reg, c.mode, roots, c.opts.Target)
	if err != nil {
		return err
	}
	if err := c.restrict(g); err != nil {
		return err
	}
	g.reindex()
	ld := &loader{runner: c.runner, workers: c.workers}
	if err := ld.loadRows(ctx, g); err != nil {
		return err
	}
	if c.mode == ModePersist {
		if err := ld.loadRelations(ctx, g); err != nil {
			return err
		}
		g.diffRelations()
	}
	if err := g.classify(); err != nil {
		return err
	}
	if c.opts.Listeners {
		if err := c.before(ctx, g); err != nil {
			return err
		}
		if err := g.reclassify(); err != nil {
			return err
		}
	}
	if err := c.authorize(ctx, g); err != nil {
		return err
	}
	batches, err := Order(g)
	if err != nil {
		return err
	}
	x := &executor{
		runner:  c.runner,
		log:     c.log,
		clock:   c.clock,
		reload:  c.opts.Reload,
		journal: c.journal,
		begin:   c.begin,
	}
	if err := x.execute(ctx, batches); err != nil {
		return err
	}
	c.log.DebugContext(ctx, "persist: chunk executed", "mode", c.mode, "subjects", len(g.subjects), "batches", len(batches))
	for _, s := range g.subjects {
		if s.op.Writes() && s.entity != nil {
			c.done = append(c.done, s)
		}
	}
	return nil
}

// begin opens the transaction of the call before its first statement.
func (c *call) begin(ctx context.Context) error {
	if !c.opts.Transaction || c.external || c.started {
		return nil
	}
	if err := c.runner.StartTransaction(ctx); err != nil {
		return err
	}
	c.started = true
	return nil
}

// restrict applies the property paths of a partial save to the roots.
func (c *call) restrict(g *Graph) error {
	if len(c.opts.Fields) == 0 || g.mode != ModePersist {
		return nil
	}
	resolved := make(map[*metadata.EntityMetadata]map[string]bool)
	for _, s := range g.subjects {
		if !s.root {
			continue
		}
		cols, ok := resolved[s.meta]
		if !ok {
			var err error
			if cols, err = resolveFields(s.meta, c.opts.Fields); err != nil {
				return err
			}
			resolved[s.meta] = cols
		}
		s.fields = cols
	}
	return nil
}

func (c *call) authorize(ctx context.Context, g *Graph) error {
	if c.policy == nil {
		return nil
	}
	for _, s := range g.subjects {
		if !s.op.Writes() {
			continue
		}
		if decision := c.policy.EvalChange(ctx, s); privacy.Denied(decision) {
			return decision
		}
	}
	return nil
}

func (c *call) before(ctx context.Context, g *Graph) error {
	for _, s := range g.subjects {
		if s.entity == nil {
			continue
		}
		var err error
		switch s.op {
		case orm.OpInsert:
			if h, ok := s.entity.(BeforeInsert); ok {
				err = h.BeforeInsert(ctx)
			}
		case orm.OpUpdate, orm.OpRecover:
			if h, ok := s.entity.(BeforeUpdate); ok {
				err = h.BeforeUpdate(ctx)
			}
		case orm.OpRemove, orm.OpSoftRemove:
			if h, ok := s.entity.(BeforeRemove); ok {
				err = h.BeforeRemove(ctx)
			}
		}
		if err != nil {
			return fmt.Errorf("persist: %s %s: %w", s.op, s.meta.Name, err)
		}
	}
	return nil
}

func (c *call) after(ctx context.Context) error {
	if !c.opts.Listeners {
		return nil
	}
	for _, s := range c.done {
		var err error
		switch s.op {
		case orm.OpInsert:
			if h, ok := s.entity.(AfterInsert); ok {
				err = h.AfterInsert(ctx)
			}
		case orm.OpUpdate, orm.OpRecover:
			if h, ok := s.entity.(AfterUpdate); ok {
				err = h.AfterUpdate(ctx)
			}
		case orm.OpRemove, orm.OpSoftRemove:
			if h, ok := s.entity.(AfterRemove); ok {
				err = h.AfterRemove(ctx)
			}
		}
		if err != nil {
			return fmt.Errorf("persist: %s %s: %w", s.op, s.meta.Name, err)
		}
	}
	return nil
}

// flatten returns the roots of a call: the entity itself, or the elements
// of a slice or array of entities.
func flatten(entity any) ([]any, error) {
	if entity == nil {
		return nil, errors.New("persist: nil entity")
	}
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{entity}, nil
	}
	roots := make([]any, rv.Len())
	for i := range roots {
		roots[i] = rv.Index(i).Interface()
	}
	return roots, nil
}

func chunks(roots []any, size int) [][]any {
	if size <= 0 || size >= len(roots) {
		return [][]any{roots}
	}
	var out [][]any
	for len(roots) > size {
		out = append(out, roots[:size:size])
		roots = roots[size:]
	}
	return append(out, roots)
}
