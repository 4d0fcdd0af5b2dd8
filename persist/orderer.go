package persist

import (
	"fmt"
	"slices"

	"github.com/syssam/orm"
	"github.com/syssam/orm/metadata"
)

// StepKind is the kind of an executable step.
type StepKind uint8

// Step kinds.
const (
	// StepSubject executes the operation of a subject.
	StepSubject StepKind = iota
	// StepRelationUpdate writes join columns deferred to break a cycle.
	StepRelationUpdate
	// StepNullify clears join columns before the rows they reference are deleted.
	StepNullify
	// StepJunction inserts or deletes junction rows.
	StepJunction
)

// Step is one executable unit of an ordered graph.
type Step struct {
	Kind     StepKind
	Subject  *Subject
	Update   *RelationUpdate
	Junction *JunctionOp
}

// String returns a short description of the step for logs.
func (s Step) String() string {
	switch s.Kind {
	case StepRelationUpdate:
		return fmt.Sprintf("update %s.%s", s.Update.Subject.meta.Name, s.Update.Relation.Name)
	case StepNullify:
		return fmt.Sprintf("nullify %s.%s", s.Update.Subject.meta.Name, s.Update.Relation.Name)
	case StepJunction:
		return s.Junction.String()
	default:
		return fmt.Sprintf("%s %s", s.Subject.op, s.Subject.meta.Name)
	}
}

// edge records that prev executes before next because of link l, owned
// by the subject holding the join columns.
type edge struct {
	prev, next *Subject
	owner      *Subject
	l          *link
	broken     bool
}

// Order partitions the steps of a classified graph into batches. Batches
// run in sequence; the steps of a batch have no ordering constraint
// between them and keep discovery order.
func Order(g *Graph) ([][]Step, error) {
	switch g.mode {
	case ModePersist:
		return orderPersist(g)
	case ModeRemove:
		return orderRemove(g)
	default:
		var batch []Step
		for _, s := range g.subjects {
			if s.op.Writes() {
				batch = append(batch, Step{Kind: StepSubject, Subject: s})
			}
		}
		return appendBatch(nil, batch), nil
	}
}

func orderPersist(g *Graph) ([][]Step, error) {
	var (
		first []Step
		nodes []*Subject
	)
	for _, j := range g.junctions {
		if j.Remove {
			first = append(first, Step{Kind: StepJunction, Junction: j})
		}
	}
	for _, s := range g.subjects {
		switch {
		case !s.op.Writes():
		case s.orphan:
			first = append(first, Step{Kind: StepSubject, Subject: s})
		default:
			nodes = append(nodes, s)
		}
	}
	deps := make(map[*Subject][]*edge)
	for _, s := range nodes {
		for _, rel := range s.meta.Relations {
			l, ok := s.links[rel]
			if !ok || l.deferred {
				continue
			}
			t := l.waitsOn()
			if t == nil || (t == s && s.known()) {
				continue
			}
			deps[s] = append(deps[s], &edge{prev: t, next: s, owner: s, l: l})
		}
	}
	batches, broken, err := kahn(nodes, deps)
	if err != nil {
		return nil, err
	}
	var updates []Step
	for _, e := range broken {
		e.l.deferred = true
		u := &RelationUpdate{Subject: e.owner, Relation: e.l.rel, Target: e.l.target}
		e.owner.updates = append(e.owner.updates, u)
		updates = append(updates, Step{Kind: StepRelationUpdate, Update: u})
	}
	var adds []Step
	for _, j := range g.junctions {
		if !j.Remove {
			adds = append(adds, Step{Kind: StepJunction, Junction: j})
		}
	}
	out := appendBatch(nil, first)
	out = append(out, batches...)
	out = appendBatch(out, updates)
	return appendBatch(out, adds), nil
}

// orderRemove deletes dependents before the rows they reference. Junction
// rows go first; links of cycles are nullified before any delete.
func orderRemove(g *Graph) ([][]Step, error) {
	var (
		first []Step
		nodes []*Subject
		in    = make(map[*Subject]bool)
	)
	for _, j := range g.junctions {
		if j.endpointRemoved() {
			first = append(first, Step{Kind: StepJunction, Junction: j})
		}
	}
	for _, s := range g.subjects {
		if s.op.Writes() {
			nodes = append(nodes, s)
			in[s] = true
		}
	}
	deps := make(map[*Subject][]*edge)
	for _, s := range nodes {
		for _, rel := range s.meta.Relations {
			l, ok := s.links[rel]
			if !ok || l.target == nil || l.target == s || !in[l.target] {
				continue
			}
			deps[l.target] = append(deps[l.target], &edge{prev: s, next: l.target, owner: s, l: l})
		}
	}
	batches, broken, err := kahn(nodes, deps)
	if err != nil {
		return nil, err
	}
	var nullify []Step
	for _, e := range broken {
		e.l.deferred = true
		nullify = append(nullify, Step{Kind: StepNullify, Update: &RelationUpdate{Subject: e.owner, Relation: e.l.rel}})
	}
	out := appendBatch(nil, first)
	out = appendBatch(out, nullify)
	return append(out, batches...), nil
}

// endpointRemoved reports whether a junction operation belongs to a
// subject that is actually deleted.
func (j *JunctionOp) endpointRemoved() bool {
	if !j.Clear {
		return true
	}
	for _, s := range []*Subject{j.Owner, j.Inverse} {
		if s != nil && s.op != orm.OpRemove {
			return false
		}
	}
	return true
}

// kahn groups nodes into batches whose dependencies all ran in earlier
// batches. When no node is ready the dependency cycle found is broken at
// a nullable link; the broken edges are returned.
func kahn(nodes []*Subject, deps map[*Subject][]*edge) ([][]Step, []*edge, error) {
	var (
		batches [][]Step
		broken  []*edge
		done    = make(map[*Subject]bool, len(nodes))
	)
	ready := func(s *Subject) bool {
		for _, e := range deps[s] {
			if !e.broken && !done[e.prev] {
				return false
			}
		}
		return true
	}
	for len(done) < len(nodes) {
		var batch []*Subject
		for _, s := range nodes {
			if !done[s] && ready(s) {
				batch = append(batch, s)
			}
		}
		if len(batch) == 0 {
			e, err := breakCycle(nodes, deps, done)
			if err != nil {
				return nil, nil, err
			}
			e.broken = true
			broken = append(broken, e)
			continue
		}
		steps := make([]Step, len(batch))
		for i, s := range batch {
			done[s] = true
			steps[i] = Step{Kind: StepSubject, Subject: s}
		}
		batches = append(batches, steps)
	}
	return batches, broken, nil
}

// breakCycle walks unresolved dependencies from the first pending node
// until a node repeats, and returns the first edge of that cycle whose
// join columns are nullable.
func breakCycle(nodes []*Subject, deps map[*Subject][]*edge, done map[*Subject]bool) (*edge, error) {
	var cur *Subject
	for _, s := range nodes {
		if !done[s] {
			cur = s
			break
		}
	}
	var (
		path  []*Subject
		edges []*edge
		seen  = make(map[*Subject]int)
	)
	for {
		if i, ok := seen[cur]; ok {
			path, edges = path[i:], edges[i:]
			break
		}
		seen[cur] = len(path)
		path = append(path, cur)
		var next *edge
		for _, e := range deps[cur] {
			if !e.broken && !done[e.prev] {
				next = e
				break
			}
		}
		edges = append(edges, next)
		cur = next.prev
	}
	for _, e := range edges {
		if nullable(e.l.rel) {
			return e, nil
		}
	}
	names := make([]string, 0, len(path)+1)
	for _, s := range slices.Backward(path) {
		names = append(names, s.meta.Name)
	}
	names = append(names, names[0])
	return nil, &orm.UnresolvableCycleError{Path: names}
}

// nullable reports whether all join columns of the relation accept NULL.
func nullable(rel *metadata.Relation) bool {
	fks := rel.ForeignKeys()
	if len(fks) == 0 {
		return false
	}
	for _, fk := range fks {
		if !fk.Nullable || fk.Primary {
			return false
		}
	}
	return true
}

func appendBatch(batches [][]Step, batch []Step) [][]Step {
	if len(batch) == 0 {
		return batches
	}
	return append(batches, batch)
}
