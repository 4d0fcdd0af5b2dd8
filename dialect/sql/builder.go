package sql

import (
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/syssam/orm/dialect"
)

// Querier wraps the basic Query method that is implemented
// by the different builders in this file.
type Querier interface {
	// Query returns the query representation of the element
	// and its arguments (if any).
	Query() (string, []any)
}

// Builder is the base query builder. It renders identifiers and
// placeholders according to its dialect.
type Builder struct {
	sb      *strings.Builder
	dialect string
	args    []any
	total   int // total number of parameters in query tree.
}

// Quote quotes the given identifier with the characters based
// on the configured dialect. Dotted identifiers are quoted per part.
func (b *Builder) Quote(ident string) string {
	if strings.Contains(ident, ".") {
		parts := strings.Split(ident, ".")
		for i := range parts {
			parts[i] = b.Quote(parts[i])
		}
		return strings.Join(parts, ".")
	}
	switch b.dialect {
	case dialect.Postgres:
		return pq.QuoteIdentifier(ident)
	case dialect.MySQL:
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
}

// Ident appends the given string as a quoted identifier.
func (b *Builder) Ident(s string) *Builder {
	b.WriteString(b.Quote(s))
	return b
}

// IdentComma appends the given identifiers separated by commas.
func (b *Builder) IdentComma(s ...string) *Builder {
	for i := range s {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(s[i])
	}
	return b
}

// WriteString writes the given string to the builder.
func (b *Builder) WriteString(s string) *Builder {
	if b.sb == nil {
		b.sb = &strings.Builder{}
	}
	b.sb.WriteString(s)
	return b
}

// Arg appends an input argument to the builder.
func (b *Builder) Arg(a any) *Builder {
	b.total++
	b.args = append(b.args, a)
	if b.dialect == dialect.Postgres {
		b.WriteString("$" + strconv.Itoa(b.total))
	} else {
		b.WriteString("?")
	}
	return b
}

// Args appends a list of arguments separated by commas.
func (b *Builder) Args(a ...any) *Builder {
	for i := range a {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Arg(a[i])
	}
	return b
}

// String returns the accumulated string.
func (b *Builder) String() string {
	if b.sb == nil {
		return ""
	}
	return b.sb.String()
}

// Query implements the Querier interface.
func (b *Builder) Query() (string, []any) {
	return b.String(), b.args
}

// Dialect returns the dialect of the builder.
func (b *Builder) Dialect() string { return b.dialect }

// DialectBuilder prefixes all root builders with the given dialect.
type DialectBuilder struct {
	dialect string
}

// Dialect creates a new DialectBuilder with the given dialect name.
func Dialect(name string) *DialectBuilder {
	return &DialectBuilder{name}
}

// Insert creates an InsertBuilder for the configured dialect.
//
//	Dialect(dialect.Postgres).
//		Insert("users").Columns("age").Values(1)
func (d *DialectBuilder) Insert(table string) *InsertBuilder {
	return &InsertBuilder{Builder: Builder{dialect: d.dialect}, table: table}
}

// Update creates an UpdateBuilder for the configured dialect.
func (d *DialectBuilder) Update(table string) *UpdateBuilder {
	return &UpdateBuilder{Builder: Builder{dialect: d.dialect}, table: table}
}

// Delete creates a DeleteBuilder for the configured dialect.
func (d *DialectBuilder) Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{Builder: Builder{dialect: d.dialect}, table: table}
}

// Select creates a Selector for the configured dialect.
func (d *DialectBuilder) Select(columns ...string) *Selector {
	return &Selector{Builder: Builder{dialect: d.dialect}, columns: columns}
}

// InsertBuilder is a builder for `INSERT INTO` statement.
type InsertBuilder struct {
	Builder
	table     string
	columns   []string
	values    [][]any
	returning []string
}

// Columns sets the columns of the insert statement.
func (i *InsertBuilder) Columns(columns ...string) *InsertBuilder {
	i.columns = append(i.columns, columns...)
	return i
}

// Values appends a value tuple for the insert statement.
func (i *InsertBuilder) Values(values ...any) *InsertBuilder {
	i.values = append(i.values, values)
	return i
}

// Set is a syntactic sugar API for inserting only one row.
func (i *InsertBuilder) Set(column string, v any) *InsertBuilder {
	i.columns = append(i.columns, column)
	if len(i.values) == 0 {
		i.values = append(i.values, []any{v})
	} else {
		i.values[0] = append(i.values[0], v)
	}
	return i
}

// Returning adds the `RETURNING` clause to the insert statement.
// It is rendered only by dialects that support it.
func (i *InsertBuilder) Returning(columns ...string) *InsertBuilder {
	i.returning = columns
	return i
}

// Query returns query representation of an `INSERT INTO` statement.
func (i *InsertBuilder) Query() (string, []any) {
	b := &Builder{dialect: i.dialect}
	b.WriteString("INSERT INTO ").Ident(i.table)
	if len(i.columns) == 0 {
		if i.dialect == dialect.MySQL {
			b.WriteString(" VALUES ()")
		} else {
			b.WriteString(" DEFAULT VALUES")
		}
	} else {
		b.WriteString(" (").IdentComma(i.columns...).WriteString(") VALUES ")
		for j, v := range i.values {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(").Args(v...).WriteString(")")
		}
	}
	if len(i.returning) > 0 && dialect.SupportsReturning(i.dialect) {
		b.WriteString(" RETURNING ").IdentComma(i.returning...)
	}
	return b.Query()
}

// UpdateBuilder is a builder for `UPDATE` statement.
type UpdateBuilder struct {
	Builder
	table   string
	columns []string
	values  []any
	where   *Predicate
}

// Set sets a column to a given value.
func (u *UpdateBuilder) Set(column string, v any) *UpdateBuilder {
	u.columns = append(u.columns, column)
	u.values = append(u.values, v)
	return u
}

// SetNull sets a column as null value.
func (u *UpdateBuilder) SetNull(column string) *UpdateBuilder {
	return u.Set(column, nil)
}

// Where adds a where predicate for update statement. Multiple calls are
// joined with AND.
func (u *UpdateBuilder) Where(p *Predicate) *UpdateBuilder {
	u.where = andPredicates(u.where, p)
	return u
}

// Empty reports whether this builder does not contain update changes.
func (u *UpdateBuilder) Empty() bool {
	return len(u.columns) == 0
}

// Query returns query representation of an `UPDATE` statement.
func (u *UpdateBuilder) Query() (string, []any) {
	b := &Builder{dialect: u.dialect}
	b.WriteString("UPDATE ").Ident(u.table).WriteString(" SET ")
	for i, c := range u.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c).WriteString(" = ")
		if u.values[i] == nil {
			b.WriteString("NULL")
		} else {
			b.Arg(u.values[i])
		}
	}
	if u.where != nil {
		b.WriteString(" WHERE ")
		u.where.render(b)
	}
	return b.Query()
}

// DeleteBuilder is a builder for `DELETE` statement.
type DeleteBuilder struct {
	Builder
	table string
	where *Predicate
}

// Where appends a where predicate to the `DELETE` statement.
func (d *DeleteBuilder) Where(p *Predicate) *DeleteBuilder {
	d.where = andPredicates(d.where, p)
	return d
}

// Query returns query representation of a `DELETE` statement.
func (d *DeleteBuilder) Query() (string, []any) {
	b := &Builder{dialect: d.dialect}
	b.WriteString("DELETE FROM ").Ident(d.table)
	if d.where != nil {
		b.WriteString(" WHERE ")
		d.where.render(b)
	}
	return b.Query()
}

// Selector is a builder for the `SELECT` statement.
type Selector struct {
	Builder
	columns []string
	from    string
	where   *Predicate
	order   []string
}

// From sets the source table of the selector.
func (s *Selector) From(table string) *Selector {
	s.from = table
	return s
}

// Where sets or appends the given predicate to the statement.
func (s *Selector) Where(p *Predicate) *Selector {
	s.where = andPredicates(s.where, p)
	return s
}

// OrderBy appends the given columns to the `ORDER BY` clause (ascending).
func (s *Selector) OrderBy(columns ...string) *Selector {
	s.order = append(s.order, columns...)
	return s
}

// Query returns query representation of a `SELECT` statement.
func (s *Selector) Query() (string, []any) {
	b := &Builder{dialect: s.dialect}
	b.WriteString("SELECT ")
	if len(s.columns) == 0 {
		b.WriteString("*")
	} else {
		b.IdentComma(s.columns...)
	}
	b.WriteString(" FROM ").Ident(s.from)
	if s.where != nil {
		b.WriteString(" WHERE ")
		s.where.render(b)
	}
	if len(s.order) > 0 {
		b.WriteString(" ORDER BY ").IdentComma(s.order...)
	}
	return b.Query()
}

// Predicate is a where predicate.
type Predicate struct {
	fns []func(*Builder)
}

func (p *Predicate) render(b *Builder) {
	for _, f := range p.fns {
		f(b)
	}
}

// P creates a new predicate.
//
//	P(func(b *Builder) {
//		b.Ident("name").WriteString(" = ").Arg("a8m")
//	})
func P(fns ...func(*Builder)) *Predicate {
	return &Predicate{fns: fns}
}

// EQ returns a "=" predicate. A nil value renders as IS NULL.
func EQ(col string, value any) *Predicate {
	if value == nil {
		return IsNull(col)
	}
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" = ").Arg(value)
	})
}

// IsNull returns the `IS NULL` predicate.
func IsNull(col string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" IS NULL")
	})
}

// In returns the `IN` predicate.
func In(col string, args ...any) *Predicate {
	if len(args) == 0 {
		return False()
	}
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" IN (").Args(args...).WriteString(")")
	})
}

// False appends the FALSE keyword to the predicate.
func False() *Predicate {
	return P(func(b *Builder) {
		b.WriteString("FALSE")
	})
}

// And combines all given predicates with AND between them.
func And(preds ...*Predicate) *Predicate {
	return join(" AND ", preds)
}

// Or combines all given predicates with OR between them.
func Or(preds ...*Predicate) *Predicate {
	return join(" OR ", preds)
}

func join(op string, preds []*Predicate) *Predicate {
	var ps []*Predicate
	for _, p := range preds {
		if p != nil {
			ps = append(ps, p)
		}
	}
	if len(ps) == 1 {
		return ps[0]
	}
	return P(func(b *Builder) {
		b.WriteString("(")
		for i, p := range ps {
			if i > 0 {
				b.WriteString(op)
			}
			p.render(b)
		}
		b.WriteString(")")
	})
}

func andPredicates(a, b *Predicate) *Predicate {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return And(a, b)
}

// ColumnsEQ returns the conjunction of EQ predicates over the given
// column/value pairs in column order. It is used for composite keys.
func ColumnsEQ(columns []string, values []any) *Predicate {
	preds := make([]*Predicate, len(columns))
	for i := range columns {
		preds[i] = EQ(columns[i], values[i])
	}
	return And(preds...)
}
