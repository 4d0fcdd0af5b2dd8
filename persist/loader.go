package persist

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/syssam/orm"
	"github.com/syssam/orm/dialect/sql"
	"github.com/syssam/orm/metadata"
)

// loader reads the stored state a graph is classified against: subject
// rows, one-to-many children and junction memberships.
type loader struct {
	runner  *QueryRunner
	workers int
}

// run executes the tasks. They fan out over a bounded errgroup only when
// no transaction is active on the runner.
func (l *loader) run(ctx context.Context, tasks []func(context.Context) error) error {
	if l.workers <= 1 || len(tasks) < 2 || l.runner.IsTransactionActive() {
		for _, t := range tasks {
			if err := t(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(l.workers)
	for _, t := range tasks {
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return t(ctx)
			}
		})
	}
	return eg.Wait()
}

// loadRows loads the stored row of every subject with a known identifier,
// one statement per entity type.
func (l *loader) loadRows(ctx context.Context, g *Graph) error {
	var (
		order  []*metadata.EntityMetadata
		groups = make(map[*metadata.EntityMetadata][]*Subject)
	)
	for _, s := range g.subjects {
		if s.orphan || !s.known() || s.row != nil {
			continue
		}
		if _, ok := groups[s.meta]; !ok {
			order = append(order, s.meta)
		}
		groups[s.meta] = append(groups[s.meta], s)
	}
	tasks := make([]func(context.Context) error, 0, len(order))
	for _, m := range order {
		subjects := groups[m]
		tasks = append(tasks, func(ctx context.Context) error {
			ids := make([]metadata.Identifier, len(subjects))
			for i, s := range subjects {
				ids[i] = s.id
			}
			query, args := sql.Dialect(l.runner.Dialect()).
				Select().
				From(m.Table).
				Where(identifiersPredicate(m.PrimaryNames(), ids)).
				Query()
			rows, err := l.runner.Query(ctx, query, args)
			if err != nil {
				return &orm.QueryFailedError{Entity: m.Name, Query: query, Args: args, Err: err}
			}
			byKey := make(map[string]map[string]any, len(rows))
			for _, row := range rows {
				if id, ok := m.IdentifierFromRow(row); ok {
					byKey[m.Key(id)] = row
				}
			}
			for _, s := range subjects {
				s.row = byKey[s.key()]
			}
			return nil
		})
	}
	return l.run(ctx, tasks)
}

// loadRelations loads the children of one-to-many relations and the
// junction memberships of many-to-many relations declared by stored
// subjects.
func (l *loader) loadRelations(ctx context.Context, g *Graph) error {
	var tasks []func(context.Context) error
	for _, p := range g.pushes {
		if p.subject.row == nil || p.rel.Orphan == metadata.OrphanDisable {
			continue
		}
		tasks = append(tasks, func(ctx context.Context) error {
			return l.loadChildren(ctx, p)
		})
	}
	for _, p := range g.many {
		if p.subject.row == nil {
			continue
		}
		tasks = append(tasks, func(ctx context.Context) error {
			return l.loadMembers(ctx, p)
		})
	}
	return l.run(ctx, tasks)
}

func (l *loader) loadChildren(ctx context.Context, p *push) error {
	inv, tm := p.rel.Inverse(), p.rel.TargetMetadata()
	fks := inv.ForeignKeys()
	names := make([]string, len(fks))
	values := make([]any, len(fks))
	for i, fk := range fks {
		v, _ := p.subject.valueOf(fk.Referenced())
		names[i], values[i] = fk.Name, metadata.Normalize(v)
	}
	query, args := sql.Dialect(l.runner.Dialect()).
		Select(tm.PrimaryNames()...).
		From(tm.Table).
		Where(sql.ColumnsEQ(names, values)).
		Query()
	rows, err := l.runner.Query(ctx, query, args)
	if err != nil {
		return &orm.QueryFailedError{Entity: tm.Name, Query: query, Args: args, Err: err}
	}
	for _, row := range rows {
		if id, ok := tm.IdentifierFromRow(row); ok {
			p.existing = append(p.existing, id)
		}
	}
	return nil
}

func (l *loader) loadMembers(ctx context.Context, p *push) error {
	j := p.rel.Junction()
	self, other := j.OwnerColumns, j.InverseColumns
	if !p.rel.OwnsJunction() {
		self, other = other, self
	}
	names := make([]string, len(self))
	values := make([]any, len(self))
	for i, c := range self {
		v, _ := p.subject.valueOf(c.Referenced)
		names[i], values[i] = c.Name, metadata.Normalize(v)
	}
	selected := make([]string, len(other))
	for i, c := range other {
		selected[i] = c.Name
	}
	query, args := sql.Dialect(l.runner.Dialect()).
		Select(selected...).
		From(j.Table).
		Where(sql.ColumnsEQ(names, values)).
		Query()
	rows, err := l.runner.Query(ctx, query, args)
	if err != nil {
		return &orm.QueryFailedError{Entity: j.Table, Query: query, Args: args, Err: err}
	}
	for _, row := range rows {
		id := make(metadata.Identifier, len(other))
		for _, c := range other {
			id[c.Referenced.Name] = metadata.Normalize(row[c.Name])
		}
		p.existing = append(p.existing, id)
	}
	return nil
}

// identifiersPredicate matches rows by primary key: an IN list for single
// keys, a disjunction of conjunctions for composite ones.
func identifiersPredicate(columns []string, ids []metadata.Identifier) *sql.Predicate {
	if len(columns) == 1 {
		values := make([]any, len(ids))
		for i, id := range ids {
			values[i] = id[columns[0]]
		}
		return sql.In(columns[0], values...)
	}
	preds := make([]*sql.Predicate, len(ids))
	for i, id := range ids {
		values := make([]any, len(columns))
		for j, c := range columns {
			values[j] = id[c]
		}
		preds[i] = sql.ColumnsEQ(columns, values)
	}
	return sql.Or(preds...)
}
