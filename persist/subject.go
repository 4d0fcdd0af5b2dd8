package persist

import (
	"maps"

	"github.com/syssam/orm"
	"github.com/syssam/orm/metadata"
)

// Subject is the pending change of one entity instance within a single
// save or remove call. It implements orm.Change.
type Subject struct {
	meta *metadata.EntityMetadata
	// entity is the live instance. It is nil for rows the call affects
	// without an instance, such as orphaned children.
	entity any
	// row is the stored row, nil if none exists.
	row map[string]any
	// id holds the primary key values known so far.
	id metadata.Identifier
	op orm.Op
	// changes maps the columns written by an update to their values.
	changes map[string]any
	// updates are foreign keys written after another subject's insert.
	updates []*RelationUpdate

	index int
	root  bool
	// via is the relation the subject was first reached through.
	via *metadata.Relation
	// cascade permissions the subject was discovered with.
	canInsert bool
	canUpdate bool
	// relationOnly subjects were reached through an inverse relation
	// without cascade; only their join columns are written.
	relationOnly bool
	// orphan subjects are rows removed from a one-to-many relation.
	orphan bool
	links  map[*metadata.Relation]*link
	// pending holds a classification error found while linking.
	pending error
	// lockVersion is the stored version an update is conditioned on.
	lockVersion any
	// fields restricts the update change set of a partial save.
	fields map[string]bool
}

// link is the value of an owning relation: another subject of the graph
// or the identifier of a row outside of it.
type link struct {
	rel    *metadata.Relation
	target *Subject
	id     metadata.Identifier
	// own marks links read from the entity itself, which win over links
	// pushed from the inverse side.
	own bool
	// clear writes NULL join columns.
	clear bool
	// deferred links are written by a later relation update.
	deferred bool
}

// RelationUpdate sets the join columns of a subject once the related
// subject has an identifier.
type RelationUpdate struct {
	Subject  *Subject
	Relation *metadata.Relation
	Target   *Subject
}

func newSubject(m *metadata.EntityMetadata, e any) *Subject {
	s := &Subject{meta: m, entity: e, links: make(map[*metadata.Relation]*link)}
	s.refreshIdentifier()
	return s
}

// Metadata returns the entity metadata.
func (s *Subject) Metadata() *metadata.EntityMetadata { return s.meta }

// EntityName implements orm.Change.
func (s *Subject) EntityName() string { return s.meta.Name }

// Entity implements orm.Change.
func (s *Subject) Entity() any { return s.entity }

// Op implements orm.Change.
func (s *Subject) Op() orm.Op { return s.op }

// DatabaseRow returns the stored row, nil if none was found.
func (s *Subject) DatabaseRow() map[string]any { return s.row }

// Identifier returns the known primary key values.
func (s *Subject) Identifier() metadata.Identifier { return maps.Clone(s.id) }

// ChangeSet returns the columns an update writes.
func (s *Subject) ChangeSet() map[string]any { return maps.Clone(s.changes) }

// RelationUpdates returns the foreign keys written after other inserts.
func (s *Subject) RelationUpdates() []*RelationUpdate { return s.updates }

// Changed implements orm.Change.
func (s *Subject) Changed() []string {
	var names []string
	for _, c := range s.meta.Columns {
		if s.op == orm.OpInsert {
			if v, ok := s.valueOf(c); ok && v != nil {
				names = append(names, c.Name)
			}
		} else if _, ok := s.changes[c.Name]; ok {
			names = append(names, c.Name)
		}
	}
	return names
}

// Value implements orm.Change.
func (s *Subject) Value(column string) (any, bool) {
	c, ok := s.meta.Column(column)
	if !ok {
		return nil, false
	}
	if v, ok := s.changes[column]; ok && v != nil {
		return v, true
	}
	return s.valueOf(c)
}

// valueOf returns the value the column will hold: the resolved link for
// join columns, the entity value otherwise, the stored value as fallback.
func (s *Subject) valueOf(c *metadata.Column) (any, bool) {
	if rel := c.Relation(); rel != nil {
		if l, ok := s.links[rel]; ok {
			if l.clear || l.deferred {
				return nil, true
			}
			if id := l.identifier(); id != nil {
				v, ok := id[c.Referenced().Name]
				return v, ok
			}
			return nil, false
		}
	}
	if s.entity != nil {
		if v, ok := c.Get(s.entity); ok {
			return v, true
		}
	}
	if s.row != nil {
		v, ok := s.row[c.Name]
		return v, ok
	}
	return nil, false
}

// identifier returns the identifier of the linked row, nil while unknown.
func (l *link) identifier() metadata.Identifier {
	if l.target == nil {
		return l.id
	}
	if l.target.known() {
		return l.target.id
	}
	return nil
}

// waitsOn reports whether the link resolves only after target's insert.
func (l *link) waitsOn() *Subject {
	if l.target != nil && !l.clear && l.target.op == orm.OpInsert {
		return l.target
	}
	return nil
}

// known reports whether all primary key values are known.
func (s *Subject) known() bool {
	return len(s.id) == len(s.meta.PrimaryColumns())
}

// refreshIdentifier reads the primary key from the entity and the links
// of primary join columns.
func (s *Subject) refreshIdentifier() {
	id := make(metadata.Identifier, len(s.meta.PrimaryColumns()))
	for _, c := range s.meta.PrimaryColumns() {
		v, ok := s.valueOf(c)
		if ok && !metadata.IsEmpty(v) {
			id[c.Name] = metadata.Normalize(v)
		}
	}
	s.id = id
}

func (s *Subject) key() string { return s.meta.Key(s.id) }

// missingPrimary returns the first primary column without a value.
func (s *Subject) missingPrimary() string {
	for _, c := range s.meta.PrimaryColumns() {
		if _, ok := s.id[c.Name]; !ok {
			return c.Name
		}
	}
	return ""
}

var _ orm.Change = (*Subject)(nil)
