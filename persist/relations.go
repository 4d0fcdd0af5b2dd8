package persist

import (
	"fmt"

	"github.com/syssam/orm"
	"github.com/syssam/orm/metadata"
)

// diffRelations compares the related sets declared by the entities with
// the loaded ones. Many-to-many differences become junction operations,
// children dropped from one-to-many relations become orphan subjects.
func (g *Graph) diffRelations() {
	for _, p := range g.many {
		g.diffMembers(p)
	}
	for _, p := range g.pushes {
		if p.subject.row == nil || p.rel.Orphan == metadata.OrphanDisable {
			continue
		}
		g.diffChildren(p)
	}
}

func (g *Graph) diffMembers(p *push) {
	tm := p.rel.TargetMetadata()
	existing := make(map[string]bool, len(p.existing))
	for _, id := range p.existing {
		existing[tm.Key(id)] = true
	}
	desired := make(map[string]bool, len(p.ends))
	for _, end := range p.ends {
		id := end.identifier()
		if id != nil {
			k := tm.Key(id)
			desired[k] = true
			if existing[k] {
				continue
			}
		}
		g.addJunction(p, end, false)
	}
	for _, id := range p.existing {
		if !desired[tm.Key(id)] {
			g.addJunction(p, endpoint{id: id}, true)
		}
	}
}

// addJunction records a junction row change between the subject of p and
// an endpoint, skipping pairs recorded from the other side already.
func (g *Graph) addJunction(p *push, end endpoint, remove bool) {
	op := &JunctionOp{Junction: p.rel.Junction(), Remove: remove}
	if p.rel.OwnsJunction() {
		op.Owner = p.subject
		op.Inverse, op.InverseID = end.subject, end.id
	} else {
		op.Inverse = p.subject
		op.Owner, op.OwnerID = end.subject, end.id
	}
	for _, o := range g.junctions {
		if o.sameRow(op) {
			return
		}
	}
	g.junctions = append(g.junctions, op)
}

func (j *JunctionOp) sameRow(o *JunctionOp) bool {
	return j.Junction == o.Junction && j.Remove == o.Remove && j.Clear == o.Clear &&
		sameEndpoint(j.Owner, j.OwnerID, o.Owner, o.OwnerID) &&
		sameEndpoint(j.Inverse, j.InverseID, o.Inverse, o.InverseID)
}

func sameEndpoint(a *Subject, aid metadata.Identifier, b *Subject, bid metadata.Identifier) bool {
	if a != nil || b != nil {
		return a == b
	}
	return aid.Equal(bid)
}

func (g *Graph) diffChildren(p *push) {
	tm := p.rel.TargetMetadata()
	desired := make(map[string]bool, len(p.ends))
	for _, end := range p.ends {
		if id := end.identifier(); id != nil {
			desired[tm.Key(id)] = true
		}
	}
	for _, id := range p.existing {
		k := tm.Key(id)
		if desired[k] {
			continue
		}
		if _, ok := g.byKey[k]; ok {
			// The child is saved with this call, possibly with a new parent.
			continue
		}
		g.addOrphan(p.rel, tm, id)
	}
}

// addOrphan adds a subject for a child row no longer related to its
// parent, nullifying its join columns or deleting it.
func (g *Graph) addOrphan(rel *metadata.Relation, tm *metadata.EntityMetadata, id metadata.Identifier) {
	s := newSubject(tm, nil)
	s.row = make(map[string]any, len(id))
	for k, v := range id {
		s.row[k] = v
	}
	s.id = id
	s.orphan = true
	switch rel.Orphan {
	case metadata.OrphanDelete:
		s.op = orm.OpRemove
		g.clearJunctions(s)
	default:
		s.op = orm.OpUpdate
		s.changes = make(map[string]any)
		for _, fk := range rel.Inverse().ForeignKeys() {
			s.changes[fk.Name] = nil
		}
	}
	g.add(s)
}

// String returns a short description of the operation for logs.
func (j *JunctionOp) String() string {
	switch {
	case j.Clear:
		return fmt.Sprintf("clear %s", j.Junction.Table)
	case j.Remove:
		return fmt.Sprintf("remove %s row", j.Junction.Table)
	default:
		return fmt.Sprintf("add %s row", j.Junction.Table)
	}
}
