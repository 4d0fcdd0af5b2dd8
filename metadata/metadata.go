// Package metadata describes entity types to the persistence engine:
// their tables, columns, relations and primary keys.
//
// Metadata is registered once in a Registry, resolved by Registry.Build and
// read-only afterwards. It may be shared by concurrent persistence calls.
package metadata

import (
	"reflect"
	"strings"
)

// Generation is the strategy a column value is generated with.
type Generation uint8

// Generation strategies.
const (
	GenerationNone Generation = iota
	// Increment columns are assigned by the database (auto increment, serial).
	Increment
	// UUID columns are assigned a random UUID before insert.
	UUID
	// RowID columns mirror the row id of the database (SQLite rowid).
	RowID
)

// String returns the strategy name.
func (g Generation) String() string {
	switch g {
	case Increment:
		return "increment"
	case UUID:
		return "uuid"
	case RowID:
		return "rowid"
	default:
		return "none"
	}
}

// DatabaseAssigned reports whether the value is only known after insert.
func (g Generation) DatabaseAssigned() bool {
	return g == Increment || g == RowID
}

// Column describes one column of an entity table.
type Column struct {
	// Name is the database column name.
	Name string
	// Field is the property path used by partial saves. Defaults to Name.
	Field      string
	Nullable   bool
	Unique     bool
	Primary    bool
	Generation Generation
	// Special columns maintained by the engine.
	Version    bool
	CreateDate bool
	UpdateDate bool
	DeleteDate bool
	// Accessor reads and writes the column value on entity instances.
	// Join columns synthesized for relations have none.
	Accessor Accessor

	entity     *EntityMetadata
	relation   *Relation
	referenced *Column
}

// Entity returns the entity the column belongs to.
func (c *Column) Entity() *EntityMetadata { return c.entity }

// Relation returns the owning relation if the column is a join column.
func (c *Column) Relation() *Relation { return c.relation }

// Referenced returns the column of the related entity a join column points at.
func (c *Column) Referenced() *Column { return c.referenced }

// Generated reports whether the column has a generation strategy.
func (c *Column) Generated() bool { return c.Generation != GenerationNone }

// Get returns the column value of the entity. ok is false if the column
// has no accessor.
func (c *Column) Get(e any) (v any, ok bool) {
	if c.Accessor == nil {
		return nil, false
	}
	return c.Accessor.Get(e), true
}

// Set writes v into the entity. Columns without accessor ignore it.
func (c *Column) Set(e, v any) error {
	if c.Accessor == nil {
		return nil
	}
	return c.Accessor.Set(e, v)
}

// EntityMetadata describes one entity type.
type EntityMetadata struct {
	// Name is the type tag of the entity.
	Name string
	// Table defaults to the snake-cased plural of Name.
	Table string
	// Type is the Go type of typed entity instances (a pointer type).
	// Record based entities leave it nil and are resolved by name.
	Type      reflect.Type
	Columns   []*Column
	Relations []*Relation

	primary    []*Column
	columns    map[string]*Column
	fields     map[string]*Column
	relations  map[string]*Relation
	version    *Column
	createDate *Column
	updateDate *Column
	deleteDate *Column
}

// PrimaryColumns returns the primary key columns in declaration order.
func (m *EntityMetadata) PrimaryColumns() []*Column { return m.primary }

// Column returns the column with the given database name.
func (m *EntityMetadata) Column(name string) (*Column, bool) {
	c, ok := m.columns[name]
	return c, ok
}

// ColumnByField returns the column with the given property path.
func (m *EntityMetadata) ColumnByField(field string) (*Column, bool) {
	c, ok := m.fields[field]
	return c, ok
}

// Relation returns the relation with the given name.
func (m *EntityMetadata) Relation(name string) (*Relation, bool) {
	r, ok := m.relations[name]
	return r, ok
}

// VersionColumn returns the optimistic lock column, if any.
func (m *EntityMetadata) VersionColumn() *Column { return m.version }

// CreateDateColumn returns the creation timestamp column, if any.
func (m *EntityMetadata) CreateDateColumn() *Column { return m.createDate }

// UpdateDateColumn returns the update timestamp column, if any.
func (m *EntityMetadata) UpdateDateColumn() *Column { return m.updateDate }

// DeleteDateColumn returns the soft-delete timestamp column, if any.
func (m *EntityMetadata) DeleteDateColumn() *Column { return m.deleteDate }

// HasGeneratedPrimary reports whether a primary column is database or
// engine generated.
func (m *EntityMetadata) HasGeneratedPrimary() bool {
	for _, c := range m.primary {
		if c.Generated() {
			return true
		}
	}
	return false
}

// Identifier returns the primary key values of e. complete is false if
// any primary column has no value.
func (m *EntityMetadata) Identifier(e any) (id Identifier, complete bool) {
	id = make(Identifier, len(m.primary))
	complete = true
	for _, c := range m.primary {
		v, ok := c.Get(e)
		if !ok || IsEmpty(v) {
			complete = false
			continue
		}
		id[c.Name] = Normalize(v)
	}
	return id, complete
}

// IdentifierFromRow extracts the primary key from a loaded row.
func (m *EntityMetadata) IdentifierFromRow(row map[string]any) (Identifier, bool) {
	id := make(Identifier, len(m.primary))
	for _, c := range m.primary {
		v := Normalize(row[c.Name])
		if v == nil {
			return nil, false
		}
		id[c.Name] = v
	}
	return id, true
}

// Key returns a stable string for the identifier, usable as map key.
func (m *EntityMetadata) Key(id Identifier) string {
	var sb strings.Builder
	sb.WriteString(m.Name)
	for _, c := range m.primary {
		sb.WriteByte('|')
		sb.WriteString(keyString(id[c.Name]))
	}
	return sb.String()
}

// Values returns the identifier values in primary column order.
func (m *EntityMetadata) Values(id Identifier) []any {
	vs := make([]any, len(m.primary))
	for i, c := range m.primary {
		vs[i] = id[c.Name]
	}
	return vs
}

// PrimaryNames returns the primary column names.
func (m *EntityMetadata) PrimaryNames() []string {
	names := make([]string, len(m.primary))
	for i, c := range m.primary {
		names[i] = c.Name
	}
	return names
}

// Identifier maps primary key column names to their values.
type Identifier map[string]any

// Equal compares two identifiers component-wise.
func (id Identifier) Equal(other Identifier) bool {
	if len(id) != len(other) {
		return false
	}
	for k, v := range id {
		w, ok := other[k]
		if !ok || !Equal(v, w) {
			return false
		}
	}
	return true
}
