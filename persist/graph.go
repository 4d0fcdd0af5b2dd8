package persist

import (
	"fmt"
	"reflect"

	"github.com/syssam/orm"
	"github.com/syssam/orm/metadata"
)

// Mode is the kind of call a graph is built for.
type Mode uint8

// Graph modes.
const (
	ModePersist Mode = iota
	ModeRemove
	ModeSoftRemove
	ModeRecover
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeRemove:
		return "remove"
	case ModeSoftRemove:
		return "soft-remove"
	case ModeRecover:
		return "recover"
	default:
		return "persist"
	}
}

// op returns the operation fixed for every subject of a removal mode.
func (m Mode) op() orm.Op {
	switch m {
	case ModeRemove:
		return orm.OpRemove
	case ModeSoftRemove:
		return orm.OpSoftRemove
	case ModeRecover:
		return orm.OpRecover
	default:
		return orm.OpNone
	}
}

// cascades reports whether the relation propagates changes in this mode.
func (m Mode) cascades(rel *metadata.Relation) bool {
	switch m {
	case ModeRemove:
		return rel.Cascade.Has(metadata.CascadeRemove)
	case ModeSoftRemove:
		return rel.Cascade.Has(metadata.CascadeSoftRemove)
	case ModeRecover:
		return rel.Cascade.Has(metadata.CascadeRecover)
	default:
		return rel.Cascade.Any(metadata.CascadeInsert | metadata.CascadeUpdate)
	}
}

// JunctionOp is a single-row insert or delete in a junction table.
// Endpoints are oriented from the owner side of the relation; an endpoint
// outside the graph is given by its identifier.
type JunctionOp struct {
	Junction  *metadata.Junction
	Remove    bool
	Owner     *Subject
	OwnerID   metadata.Identifier
	Inverse   *Subject
	InverseID metadata.Identifier
	// Clear deletes every row of the one endpoint set, which is being removed.
	Clear bool
}

func (j *JunctionOp) op() orm.Op {
	if j.Remove {
		return orm.OpRemove
	}
	return orm.OpInsert
}

// ownerIdentifier returns the owner endpoint identifier, nil while unknown.
func (j *JunctionOp) ownerIdentifier() metadata.Identifier {
	return endpointIdentifier(j.Owner, j.OwnerID)
}

// inverseIdentifier returns the inverse endpoint identifier, nil while unknown.
func (j *JunctionOp) inverseIdentifier() metadata.Identifier {
	return endpointIdentifier(j.Inverse, j.InverseID)
}

func endpointIdentifier(s *Subject, id metadata.Identifier) metadata.Identifier {
	if s == nil {
		return id
	}
	if s.known() {
		return s.id
	}
	return nil
}

// Graph is the set of subjects of one call together with the junction
// operations between them. Subjects are kept in discovery order.
type Graph struct {
	mode      Mode
	reg       *metadata.Registry
	subjects  []*Subject
	junctions []*JunctionOp
	byEntity  map[any]*Subject
	byKey     map[string]*Subject
	// inverse lists and many-to-many sets diffed against the database.
	pushes []*push
	many   []*push
	// refs are relations without cascade, resolved once every root and
	// everything cascading from them is in the graph.
	refs []*reference
}

// reference is the related set of a relation that does not cascade.
type reference struct {
	subject *Subject
	rel     *metadata.Relation
	related []any
}

// push is the related set an entity declares through a to-many or
// inverse relation.
type push struct {
	subject *Subject
	rel     *metadata.Relation
	ends    []endpoint
	// existing identifiers loaded from the database.
	existing []metadata.Identifier
}

type endpoint struct {
	subject *Subject
	id      metadata.Identifier
}

func (e endpoint) identifier() metadata.Identifier { return endpointIdentifier(e.subject, e.id) }

// Subjects returns the subjects in discovery order.
func (g *Graph) Subjects() []*Subject { return g.subjects }

// Junctions returns the junction operations.
func (g *Graph) Junctions() []*JunctionOp { return g.junctions }

// Mode returns the mode the graph was built for.
func (g *Graph) Mode() Mode { return g.mode }

// BuildGraph discovers the subjects reachable from the roots through
// relations cascading in the given mode. Roots are resolved through the
// registry unless target names their entity explicitly.
func BuildGraph(reg *metadata.Registry, mode Mode, roots []any, target string) (*Graph, error) {
	g := &Graph{
		mode:     mode,
		reg:      reg,
		byEntity: make(map[any]*Subject),
		byKey:    make(map[string]*Subject),
	}
	for _, e := range roots {
		if err := checkEntity(e); err != nil {
			return nil, err
		}
		m, err := g.resolve(e, target)
		if err != nil {
			return nil, err
		}
		if _, err := g.visit(e, m, true, true, true, nil); err != nil {
			return nil, err
		}
	}
	if mode == ModePersist {
		g.resolveReferences()
	} else {
		g.linkRemoved()
	}
	return g, nil
}

func (g *Graph) resolve(e any, target string) (*metadata.EntityMetadata, error) {
	if target == "" {
		return g.reg.Resolve(e)
	}
	m, ok := g.reg.Lookup(target)
	if !ok {
		return nil, fmt.Errorf("%w: %q", metadata.ErrUnknownEntity, target)
	}
	return m, nil
}

func checkEntity(e any) error {
	rv := reflect.ValueOf(e)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("persist: entity %T must be a non-nil pointer", e)
	}
	return nil
}

func (g *Graph) add(s *Subject) {
	s.index = len(g.subjects)
	g.subjects = append(g.subjects, s)
	if s.entity != nil {
		g.byEntity[s.entity] = s
	}
	if s.known() {
		if _, ok := g.byKey[s.key()]; !ok {
			g.byKey[s.key()] = s
		}
	}
}

// reindex refreshes the identifiers taken from links once the graph is
// complete and indexes the subjects by identifier.
func (g *Graph) reindex() {
	for _, s := range g.subjects {
		if s.orphan {
			continue
		}
		s.refreshIdentifier()
		if s.known() {
			if _, ok := g.byKey[s.key()]; !ok {
				g.byKey[s.key()] = s
			}
		}
	}
}

// lookup returns the subject of an entity instance, by identity first and
// by identifier second.
func (g *Graph) lookup(e any, m *metadata.EntityMetadata) *Subject {
	if s, ok := g.byEntity[e]; ok {
		return s
	}
	if id, complete := m.Identifier(e); complete {
		if s, ok := g.byKey[m.Key(id)]; ok && s.meta == m {
			g.byEntity[e] = s
			return s
		}
	}
	return nil
}

// visit returns the subject of e, creating and walking it on first
// discovery. The first instance of an identifier wins.
func (g *Graph) visit(e any, m *metadata.EntityMetadata, insert, update, root bool, via *metadata.Relation) (*Subject, error) {
	if s := g.lookup(e, m); s != nil {
		s.canInsert = s.canInsert || insert
		s.canUpdate = s.canUpdate || update
		s.root = s.root || root
		return s, nil
	}
	s := newSubject(m, e)
	s.canInsert, s.canUpdate, s.root, s.via = insert, update, root, via
	if g.mode != ModePersist {
		s.op = g.mode.op()
	}
	g.add(s)
	return s, g.walk(s)
}

// walk visits the relations of s that cascade in the graph mode. In
// persist mode the other relations are kept for resolveReferences.
func (g *Graph) walk(s *Subject) error {
	for _, rel := range s.meta.Relations {
		related, ok := rel.Related(s.entity)
		if !ok {
			continue
		}
		if g.mode != ModePersist {
			if !g.mode.cascades(rel) {
				continue
			}
			for _, r := range related {
				if err := checkEntity(r); err != nil {
					return err
				}
				if _, err := g.visit(r, rel.TargetMetadata(), false, false, false, rel); err != nil {
					return err
				}
			}
			continue
		}
		for _, r := range related {
			if err := checkEntity(r); err != nil {
				return err
			}
		}
		if !g.mode.cascades(rel) {
			g.refs = append(g.refs, &reference{subject: s, rel: rel, related: related})
			continue
		}
		ends := make([]endpoint, 0, len(related))
		for _, r := range related {
			sub, err := g.visit(r, rel.TargetMetadata(), rel.Cascade.Has(metadata.CascadeInsert), rel.Cascade.Has(metadata.CascadeUpdate), false, rel)
			if err != nil {
				return err
			}
			ends = append(ends, endpoint{subject: sub})
		}
		g.attach(s, rel, ends)
	}
	return nil
}

// attach records the resolved related set of a persist-mode relation.
func (g *Graph) attach(s *Subject, rel *metadata.Relation, ends []endpoint) {
	switch {
	case rel.Owning():
		if len(ends) > 0 {
			s.links[rel] = &link{rel: rel, target: ends[0].subject, id: ends[0].id, own: true}
		}
	case rel.Kind == metadata.ManyToMany:
		g.many = append(g.many, &push{subject: s, rel: rel, ends: ends})
	default:
		inv := rel.Inverse()
		for _, end := range ends {
			if end.subject != nil {
				end.subject.pushLink(inv, s)
			}
		}
		g.pushes = append(g.pushes, &push{subject: s, rel: rel, ends: ends})
	}
}

// resolveReferences links the relations that do not cascade. A related
// entity is taken from the graph when the call saves it too, and is
// referenced by identifier otherwise.
func (g *Graph) resolveReferences() {
	for _, ref := range g.refs {
		ends := make([]endpoint, 0, len(ref.related))
		for _, r := range ref.related {
			if end, ok := g.reference(ref.subject, ref.rel, r); ok {
				ends = append(ends, end)
			}
		}
		g.attach(ref.subject, ref.rel, ends)
	}
	g.refs = nil
}

func (g *Graph) reference(s *Subject, rel *metadata.Relation, r any) (endpoint, bool) {
	tm := rel.TargetMetadata()
	if sub := g.lookup(r, tm); sub != nil {
		return endpoint{subject: sub}, true
	}
	id, complete := tm.Identifier(r)
	if !complete {
		if s.pending == nil {
			s.pending = &orm.CascadeNotAllowedError{Entity: s.meta.Name, Relation: rel.Name, Target: tm.Name, Op: orm.OpInsert}
		}
		return endpoint{}, false
	}
	if !rel.Owning() && rel.Kind != metadata.ManyToMany {
		// The join columns live on the related row: write them through a
		// subject limited to its relation.
		sub := newSubject(tm, r)
		sub.relationOnly, sub.via = true, rel
		g.add(sub)
		return endpoint{subject: sub}, true
	}
	return endpoint{id: id}, true
}

// pushLink sets the owning relation of s from its inverse side unless the
// entity declares the relation itself.
func (s *Subject) pushLink(rel *metadata.Relation, parent *Subject) {
	if l, ok := s.links[rel]; ok && l.own {
		return
	}
	s.links[rel] = &link{rel: rel, target: parent}
}

// linkRemoved records the relations between subjects of a removal graph
// for ordering, and clears the junction rows of removed subjects.
func (g *Graph) linkRemoved() {
	for _, s := range g.subjects {
		for _, rel := range s.meta.Relations {
			related, ok := rel.Related(s.entity)
			if !ok {
				continue
			}
			for _, r := range related {
				sub := g.lookup(r, rel.TargetMetadata())
				if sub == nil {
					continue
				}
				switch {
				case rel.Owning():
					s.pushLink(rel, sub)
					s.links[rel].own = true
				case rel.Kind != metadata.ManyToMany:
					sub.pushLink(rel.Inverse(), s)
				}
			}
		}
	}
	if g.mode == ModeRemove {
		for _, s := range g.subjects {
			g.clearJunctions(s)
		}
	}
}

// clearJunctions removes every junction row referencing s, on both sides
// of every many-to-many relation targeting its entity.
func (g *Graph) clearJunctions(s *Subject) {
	for _, m := range g.reg.Entities() {
		for _, rel := range m.Relations {
			if !rel.OwnsJunction() {
				continue
			}
			if rel.Entity() == s.meta {
				g.junctions = append(g.junctions, &JunctionOp{Junction: rel.Junction(), Remove: true, Clear: true, Owner: s})
			}
			if rel.TargetMetadata() == s.meta {
				g.junctions = append(g.junctions, &JunctionOp{Junction: rel.Junction(), Remove: true, Clear: true, Inverse: s})
			}
		}
	}
}
