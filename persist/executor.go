package persist

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/orm"
	"github.com/syssam/orm/dialect"
	"github.com/syssam/orm/dialect/sql"
	"github.com/syssam/orm/dialect/sql/sqlgraph"
	"github.com/syssam/orm/metadata"
)

// journal records every value written into live entities so a failed
// call can hand them back exactly as given.
type journal struct {
	entries []journalEntry
}

type journalEntry struct {
	col    *metadata.Column
	entity any
	old    any
}

// set writes v into the entity column and records the previous value.
func (j *journal) set(c *metadata.Column, e, v any) error {
	if e == nil || c.Accessor == nil {
		return nil
	}
	old := c.Accessor.Get(e)
	if err := c.Set(e, v); err != nil {
		return err
	}
	j.entries = append(j.entries, journalEntry{col: c, entity: e, old: old})
	return nil
}

// restore replays the journal in reverse.
func (j *journal) restore() {
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		_ = e.col.Set(e.entity, e.old)
	}
	j.entries = nil
}

// executor runs ordered steps against a runner.
type executor struct {
	runner  *QueryRunner
	log     *slog.Logger
	clock   func() time.Time
	reload  bool
	journal *journal
	// begin is called before every statement. It starts the transaction
	// of the call on first use.
	begin func(context.Context) error
}

func (x *executor) execute(ctx context.Context, batches [][]Step) error {
	for _, batch := range batches {
		for _, st := range batch {
			x.log.DebugContext(ctx, "persist: executing step", "step", st.String())
			if err := x.step(ctx, st); err != nil {
				return err
			}
		}
	}
	return nil
}

func (x *executor) step(ctx context.Context, st Step) error {
	switch st.Kind {
	case StepRelationUpdate:
		return x.relationUpdate(ctx, st.Update)
	case StepNullify:
		return x.nullify(ctx, st.Update)
	case StepJunction:
		return x.junction(ctx, st.Junction)
	}
	s := st.Subject
	switch s.op {
	case orm.OpInsert:
		return x.insert(ctx, s)
	case orm.OpUpdate:
		return x.update(ctx, s)
	case orm.OpRemove:
		return x.remove(ctx, s)
	case orm.OpSoftRemove, orm.OpRecover:
		return x.softRemove(ctx, s)
	}
	return nil
}

func (x *executor) builder() *sql.DialectBuilder { return sql.Dialect(x.runner.Dialect()) }

func (x *executor) insert(ctx context.Context, s *Subject) error {
	var (
		m         = s.meta
		now       = x.clock()
		ins       = x.builder().Insert(m.Table)
		written   = make(map[string]any, len(m.Columns))
		assigned  = make(map[*metadata.Column]any)
		generated []*metadata.Column
	)
	for _, c := range m.Columns {
		v, ok := s.valueOf(c)
		empty := !ok || metadata.IsEmpty(v)
		switch {
		case c.Generation.DatabaseAssigned() && empty:
			generated = append(generated, c)
			continue
		case c.Generation == metadata.UUID && empty:
			v = uuid.New()
			assigned[c] = v
		case (c.CreateDate || c.UpdateDate) && empty:
			v = now
			assigned[c] = v
		case c.Version && empty:
			v = int64(1)
			assigned[c] = v
		case !ok:
			continue
		}
		ins.Set(c.Name, v)
		written[c.Name] = v
	}
	returning := x.runner.Dialect() == dialect.Postgres && len(generated) > 0
	if returning {
		names := make([]string, len(generated))
		for i, c := range generated {
			names[i] = c.Name
		}
		ins.Returning(names...)
	}
	query, args := ins.Query()
	if returning {
		rows, err := x.query(ctx, query, args)
		if err != nil {
			return x.fail(m.Name, orm.OpInsert, query, args, err)
		}
		if len(rows) > 0 {
			for _, c := range generated {
				written[c.Name] = rows[0][c.Name]
			}
		}
	} else {
		res, err := x.exec(ctx, query, args)
		if err != nil {
			return x.fail(m.Name, orm.OpInsert, query, args, err)
		}
		if len(generated) > 0 {
			id, err := res.LastInsertId()
			if err != nil {
				return x.fail(m.Name, orm.OpInsert, query, args, err)
			}
			written[lastInsertColumn(generated).Name] = id
		}
	}
	for _, c := range generated {
		if v, ok := written[c.Name]; ok {
			if err := x.journal.set(c, s.entity, v); err != nil {
				return err
			}
		}
	}
	for c, v := range assigned {
		if c.Primary || x.reload {
			if err := x.journal.set(c, s.entity, v); err != nil {
				return err
			}
		}
	}
	if err := x.writeLinks(s, nil); err != nil {
		return err
	}
	id := make(metadata.Identifier, len(m.PrimaryColumns()))
	for _, c := range m.PrimaryColumns() {
		if v := metadata.Normalize(written[c.Name]); v != nil {
			id[c.Name] = v
		}
	}
	s.id, s.row = id, written
	return nil
}

// lastInsertColumn returns the generated column LastInsertId reports,
// the primary one if any.
func lastInsertColumn(cs []*metadata.Column) *metadata.Column {
	for _, c := range cs {
		if c.Primary {
			return c
		}
	}
	return cs[0]
}

// writeLinks writes resolved join column values into entity fields that
// map them, when the values are reloaded.
func (x *executor) writeLinks(s *Subject, only map[string]any) error {
	if !x.reload || s.entity == nil {
		return nil
	}
	for _, l := range s.links {
		if l.deferred {
			continue
		}
		for _, fk := range l.rel.ForeignKeys() {
			if fk.Accessor == nil {
				continue
			}
			if _, ok := only[fk.Name]; only != nil && !ok {
				continue
			}
			v, ok := s.valueOf(fk)
			if !ok || metadata.Equal(fk.Accessor.Get(s.entity), v) {
				continue
			}
			if err := x.journal.set(fk, s.entity, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (x *executor) update(ctx context.Context, s *Subject) error {
	m := s.meta
	upd := x.builder().Update(m.Table)
	set := make(map[string]any, len(s.changes))
	for _, c := range m.Columns {
		v, ok := s.changes[c.Name]
		if !ok {
			continue
		}
		if rel := c.Relation(); rel != nil {
			if l, ok := s.links[rel]; ok {
				if l.deferred {
					continue
				}
				v, _ = s.valueOf(c)
			}
		}
		upd.Set(c.Name, v)
		set[c.Name] = v
	}
	if uc := m.UpdateDateColumn(); uc != nil && !s.orphan {
		now := x.clock()
		upd.Set(uc.Name, now)
		set[uc.Name] = now
	}
	if upd.Empty() {
		return nil
	}
	upd.Where(sql.ColumnsEQ(m.PrimaryNames(), m.Values(s.id)))
	vc := m.VersionColumn()
	_, locked := s.changes[versionName(vc)]
	if locked {
		upd.Where(sql.EQ(vc.Name, s.lockVersion))
	}
	query, args := upd.Query()
	res, err := x.exec(ctx, query, args)
	if err != nil {
		return x.fail(m.Name, orm.OpUpdate, query, args, err)
	}
	if locked {
		n, err := res.RowsAffected()
		if err != nil {
			return x.fail(m.Name, orm.OpUpdate, query, args, err)
		}
		if n == 0 {
			return &orm.OptimisticLockError{Entity: m.Name, Expected: s.lockVersion}
		}
	}
	if x.reload && s.entity != nil {
		for _, c := range []*metadata.Column{vc, m.UpdateDateColumn()} {
			if v, ok := set[versionName(c)]; ok {
				if err := x.journal.set(c, s.entity, v); err != nil {
					return err
				}
			}
		}
	}
	if err := x.writeLinks(s, set); err != nil {
		return err
	}
	if s.row != nil {
		s.row = maps.Clone(s.row)
		maps.Copy(s.row, set)
	}
	return nil
}

func versionName(c *metadata.Column) string {
	if c == nil {
		return ""
	}
	return c.Name
}

func (x *executor) remove(ctx context.Context, s *Subject) error {
	m := s.meta
	query, args := x.builder().Delete(m.Table).
		Where(sql.ColumnsEQ(m.PrimaryNames(), m.Values(s.id))).
		Query()
	if _, err := x.exec(ctx, query, args); err != nil {
		return x.fail(m.Name, orm.OpRemove, query, args, err)
	}
	return nil
}

// softRemove sets or clears the delete date of a soft-remove or recover.
func (x *executor) softRemove(ctx context.Context, s *Subject) error {
	m := s.meta
	dc := m.DeleteDateColumn()
	var v any
	if s.op == orm.OpSoftRemove {
		v = x.clock()
	}
	upd := x.builder().Update(m.Table).Set(dc.Name, v)
	if uc := m.UpdateDateColumn(); uc != nil && v != nil {
		upd.Set(uc.Name, v)
	}
	query, args := upd.Where(sql.ColumnsEQ(m.PrimaryNames(), m.Values(s.id))).Query()
	if _, err := x.exec(ctx, query, args); err != nil {
		return x.fail(m.Name, s.op, query, args, err)
	}
	if !x.reload {
		return nil
	}
	if err := x.journal.set(dc, s.entity, v); err != nil {
		return err
	}
	if uc := m.UpdateDateColumn(); uc != nil && v != nil {
		return x.journal.set(uc, s.entity, v)
	}
	return nil
}

// relationUpdate writes the join columns of a link deferred by the
// orderer, now that its target was inserted.
func (x *executor) relationUpdate(ctx context.Context, u *RelationUpdate) error {
	s := u.Subject
	l := s.links[u.Relation]
	l.deferred = false
	id := l.identifier()
	if id == nil {
		return &orm.MissingIdentifierError{Entity: u.Target.meta.Name, Op: orm.OpUpdate, Column: u.Target.missingPrimary()}
	}
	upd := x.builder().Update(s.meta.Table)
	set := make(map[string]any)
	for _, fk := range u.Relation.ForeignKeys() {
		v := id[fk.Referenced().Name]
		upd.Set(fk.Name, v)
		set[fk.Name] = v
	}
	query, args := upd.Where(sql.ColumnsEQ(s.meta.PrimaryNames(), s.meta.Values(s.id))).Query()
	if _, err := x.exec(ctx, query, args); err != nil {
		return x.fail(s.meta.Name, orm.OpUpdate, query, args, err)
	}
	return x.writeLinks(s, set)
}

// nullify clears the join columns of a relation before a delete.
func (x *executor) nullify(ctx context.Context, u *RelationUpdate) error {
	s := u.Subject
	upd := x.builder().Update(s.meta.Table)
	for _, fk := range u.Relation.ForeignKeys() {
		upd.SetNull(fk.Name)
	}
	query, args := upd.Where(sql.ColumnsEQ(s.meta.PrimaryNames(), s.meta.Values(s.id))).Query()
	if _, err := x.exec(ctx, query, args); err != nil {
		return x.fail(s.meta.Name, orm.OpUpdate, query, args, err)
	}
	return nil
}

func (x *executor) junction(ctx context.Context, j *JunctionOp) error {
	if j.Clear {
		return x.clear(ctx, j)
	}
	owner, inverse := j.ownerIdentifier(), j.inverseIdentifier()
	if owner == nil || inverse == nil {
		return &orm.MissingIdentifierError{Entity: j.Junction.Table, Op: j.op()}
	}
	var (
		names  = append(j.Junction.OwnerNames(), j.Junction.InverseNames()...)
		values = append(junctionValues(j.Junction.OwnerColumns, owner), junctionValues(j.Junction.InverseColumns, inverse)...)
	)
	var query string
	var args []any
	if j.Remove {
		query, args = x.builder().Delete(j.Junction.Table).Where(sql.ColumnsEQ(names, values)).Query()
	} else {
		query, args = x.builder().Insert(j.Junction.Table).Columns(names...).Values(values...).Query()
	}
	if _, err := x.exec(ctx, query, args); err != nil {
		return x.fail(j.Junction.Table, j.op(), query, args, err)
	}
	return nil
}

// clear deletes every junction row of an endpoint that is deleted.
func (x *executor) clear(ctx context.Context, j *JunctionOp) error {
	s, cols := j.Owner, j.Junction.OwnerColumns
	if s == nil {
		s, cols = j.Inverse, j.Junction.InverseColumns
	}
	if s.op != orm.OpRemove {
		return nil
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	query, args := x.builder().Delete(j.Junction.Table).
		Where(sql.ColumnsEQ(names, junctionValues(cols, s.id))).
		Query()
	if _, err := x.exec(ctx, query, args); err != nil {
		return x.fail(j.Junction.Table, orm.OpRemove, query, args, err)
	}
	return nil
}

func junctionValues(cols []*metadata.JunctionColumn, id metadata.Identifier) []any {
	values := make([]any, len(cols))
	for i, c := range cols {
		values[i] = id[c.Referenced.Name]
	}
	return values
}

func (x *executor) exec(ctx context.Context, query string, args []any) (sql.Result, error) {
	if err := x.begin(ctx); err != nil {
		return nil, err
	}
	return x.runner.Exec(ctx, query, args)
}

func (x *executor) query(ctx context.Context, query string, args []any) ([]map[string]any, error) {
	if err := x.begin(ctx); err != nil {
		return nil, err
	}
	return x.runner.Query(ctx, query, args)
}

// fail wraps a statement error with the change it executed. Constraint
// violations are additionally reported as orm.ConstraintError.
func (x *executor) fail(entity string, op orm.Op, query string, args []any, err error) error {
	qfe := &orm.QueryFailedError{Entity: entity, Op: op, Query: query, Args: args, Err: err}
	if sqlgraph.IsConstraintError(err) {
		return orm.NewConstraintError(err.Error(), qfe)
	}
	return qfe
}
