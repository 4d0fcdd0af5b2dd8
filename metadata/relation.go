package metadata

import "strings"

// RelationKind is the cardinality of a relation.
type RelationKind uint8

// Relation kinds.
const (
	OneToOne RelationKind = iota + 1
	OneToMany
	ManyToOne
	ManyToMany
)

var kindNames = map[RelationKind]string{
	OneToOne:   "one-to-one",
	OneToMany:  "one-to-many",
	ManyToOne:  "many-to-one",
	ManyToMany: "many-to-many",
}

// String returns the kind name.
func (k RelationKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseRelationKind parses a kind name as returned by String.
func ParseRelationKind(s string) (RelationKind, bool) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return k, true
		}
	}
	return 0, false
}

// Cascade is a set of operations a change to an entity propagates through
// a relation.
type Cascade uint8

// Cascade flags.
const (
	CascadeInsert Cascade = 1 << iota
	CascadeUpdate
	CascadeRemove
	CascadeSoftRemove
	CascadeRecover

	CascadeAll = CascadeInsert | CascadeUpdate | CascadeRemove | CascadeSoftRemove | CascadeRecover
)

// Has reports whether all flags of f are set.
func (c Cascade) Has(f Cascade) bool { return c&f == f }

// Any reports whether at least one flag of f is set.
func (c Cascade) Any(f Cascade) bool { return c&f != 0 }

var cascadeNames = map[string]Cascade{
	"insert":      CascadeInsert,
	"update":      CascadeUpdate,
	"remove":      CascadeRemove,
	"soft-remove": CascadeSoftRemove,
	"recover":     CascadeRecover,
	"all":         CascadeAll,
}

// ParseCascade parses cascade flag names ("insert", "update", "remove",
// "soft-remove", "recover", "all").
func ParseCascade(names ...string) (Cascade, bool) {
	var c Cascade
	for _, n := range names {
		f, ok := cascadeNames[strings.ToLower(n)]
		if !ok {
			return 0, false
		}
		c |= f
	}
	return c, true
}

// OrphanAction is applied to rows removed from a one-to-many relation.
type OrphanAction uint8

// Orphan actions.
const (
	// OrphanNullify clears the foreign key of the orphaned row.
	OrphanNullify OrphanAction = iota
	// OrphanDelete deletes the orphaned row.
	OrphanDelete
	// OrphanDisable leaves the orphaned row untouched.
	OrphanDisable
)

// JoinColumn maps a foreign key column to the column it references.
type JoinColumn struct {
	Name       string
	Referenced string
}

// JoinTable describes the junction table of a many-to-many relation.
type JoinTable struct {
	Name string
	// JoinColumns reference the owner side, InverseJoinColumns the target.
	JoinColumns        []JoinColumn
	InverseJoinColumns []JoinColumn
}

// Relation describes a relation from one entity to another.
type Relation struct {
	Name   string
	Kind   RelationKind
	Target string
	// Owner marks the owning side of a one-to-one relation. Many-to-one
	// relations always own their join columns; many-to-many relations own
	// the junction table when they declare JoinTable.
	Owner       bool
	InverseSide string
	Cascade     Cascade
	// Nullable marks the join columns as nullable.
	Nullable    bool
	JoinColumns []JoinColumn
	JoinTable   *JoinTable
	Orphan      OrphanAction
	Accessor    RelationAccessor

	entity   *EntityMetadata
	target   *EntityMetadata
	inverse  *Relation
	fks      []*Column
	junction *Junction
}

// Entity returns the entity declaring the relation.
func (r *Relation) Entity() *EntityMetadata { return r.entity }

// TargetMetadata returns the related entity.
func (r *Relation) TargetMetadata() *EntityMetadata { return r.target }

// Inverse returns the relation on the other side, if declared.
func (r *Relation) Inverse() *Relation { return r.inverse }

// Owning reports whether the join columns live on this entity's table.
func (r *Relation) Owning() bool {
	return r.Kind == ManyToOne || (r.Kind == OneToOne && r.Owner)
}

// ToMany reports whether the relation holds a list.
func (r *Relation) ToMany() bool {
	return r.Kind == OneToMany || r.Kind == ManyToMany
}

// ForeignKeys returns the join columns of an owning relation.
func (r *Relation) ForeignKeys() []*Column { return r.fks }

// Junction returns the junction table of a many-to-many relation.
func (r *Relation) Junction() *Junction { return r.junction }

// OwnsJunction reports whether this side declares the junction table.
func (r *Relation) OwnsJunction() bool {
	return r.Kind == ManyToMany && r.junction != nil && r.junction.Owner == r
}

// Related returns the related entities of e. ok is false when the
// relation is not set on the instance.
func (r *Relation) Related(e any) ([]any, bool) {
	if r.Accessor == nil {
		return nil, false
	}
	return r.Accessor.Get(e)
}

// Junction is a resolved junction table. Columns are oriented from the
// owner side of the relation.
type Junction struct {
	Table          string
	Owner          *Relation
	OwnerColumns   []*JunctionColumn
	InverseColumns []*JunctionColumn
}

// JunctionColumn is a junction table column and the entity column it references.
type JunctionColumn struct {
	Name       string
	Referenced *Column
}

// junctionNames returns the column names.
func junctionNames(cs []*JunctionColumn) []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return names
}

// OwnerNames returns the junction columns referencing the owner side.
func (j *Junction) OwnerNames() []string { return junctionNames(j.OwnerColumns) }

// InverseNames returns the junction columns referencing the inverse side.
func (j *Junction) InverseNames() []string { return junctionNames(j.InverseColumns) }
