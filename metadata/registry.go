package metadata

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrUnknownEntity is returned when no metadata is registered for an entity.
var ErrUnknownEntity = errors.New("metadata: unknown entity")

// Registry maps entity type tags to their metadata. Entities are
// registered during initialization, resolved once by Build and read-only
// afterwards.
type Registry struct {
	entities []*EntityMetadata
	byName   map[string]*EntityMetadata
	byType   map[reflect.Type]*EntityMetadata
	built    bool
	result   *ValidationResult
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*EntityMetadata),
		byType: make(map[reflect.Type]*EntityMetadata),
	}
}

// Register adds entity metadata to the registry.
func (r *Registry) Register(ms ...*EntityMetadata) error {
	if r.built {
		return errors.New("metadata: register after build")
	}
	for _, m := range ms {
		if m.Name == "" {
			return errors.New("metadata: entity without name")
		}
		if _, ok := r.byName[m.Name]; ok {
			return fmt.Errorf("metadata: entity %q registered twice", m.Name)
		}
		if m.Type != nil {
			if m.Type.Kind() != reflect.Pointer {
				return fmt.Errorf("metadata: entity %q: type %s is not a pointer", m.Name, m.Type)
			}
			if _, ok := r.byType[m.Type]; ok {
				return fmt.Errorf("metadata: type %s registered twice", m.Type)
			}
			r.byType[m.Type] = m
		}
		r.byName[m.Name] = m
		r.entities = append(r.entities, m)
	}
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(ms ...*EntityMetadata) *Registry {
	if err := r.Register(ms...); err != nil {
		panic(err)
	}
	return r
}

// Build resolves relation targets, inverse sides, join columns and
// junction tables and validates the result. It may be called once.
func (r *Registry) Build() error {
	if r.built {
		return errors.New("metadata: registry already built")
	}
	res := &ValidationResult{}
	for _, m := range r.entities {
		indexColumns(m, res)
	}
	for _, m := range r.entities {
		for _, rel := range m.Relations {
			r.resolveTarget(m, rel, res)
		}
	}
	if res.HasErrors() {
		r.result = res
		return res.Err()
	}
	for _, m := range r.entities {
		for _, rel := range m.Relations {
			resolveInverse(rel, res)
		}
	}
	for _, m := range r.entities {
		for _, rel := range m.Relations {
			if rel.Owning() {
				resolveJoinColumns(rel, res)
			}
		}
	}
	for _, m := range r.entities {
		for _, rel := range m.Relations {
			switch {
			case rel.Kind == ManyToMany:
				resolveJunction(rel, res)
			case rel.Kind == OneToMany && (rel.inverse == nil || rel.inverse.Kind != ManyToOne):
				res.errorf(m.Name, rel.Name, "one-to-many relation requires a many-to-one inverse side")
			case rel.Kind == OneToOne && !rel.Owner && (rel.inverse == nil || !rel.inverse.Owner):
				res.errorf(m.Name, rel.Name, "inverse one-to-one relation requires an owning inverse side")
			}
		}
	}
	for _, m := range r.entities {
		indexColumns(m, nil)
		validate(m, res)
	}
	r.result = res
	if err := res.Err(); err != nil {
		return err
	}
	r.built = true
	return nil
}

// MustBuild is like Build but panics on error.
func (r *Registry) MustBuild() *Registry {
	if err := r.Build(); err != nil {
		panic(err)
	}
	return r
}

// Validation returns the result of the last Build.
func (r *Registry) Validation() *ValidationResult { return r.result }

// Built reports whether Build succeeded.
func (r *Registry) Built() bool { return r.built }

// Entities returns the registered entities in registration order.
func (r *Registry) Entities() []*EntityMetadata { return r.entities }

// Lookup returns the metadata registered under the type tag.
func (r *Registry) Lookup(name string) (*EntityMetadata, bool) {
	m, ok := r.byName[name]
	return m, ok
}

// Resolve returns the metadata of an entity instance. Entities implementing
// Named are resolved by their tag, others by their Go type.
func (r *Registry) Resolve(e any) (*EntityMetadata, error) {
	if n, ok := e.(Named); ok {
		if m, ok := r.byName[n.EntityName()]; ok {
			return m, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, n.EntityName())
	}
	if m, ok := r.byType[reflect.TypeOf(e)]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownEntity, e)
}

// indexColumns fills the lookup tables of an entity. It runs again after
// join columns were synthesized, when res is nil.
func indexColumns(m *EntityMetadata, res *ValidationResult) {
	if m.Table == "" {
		m.Table = TableName(m.Name)
	}
	m.primary = m.primary[:0]
	m.columns = make(map[string]*Column, len(m.Columns))
	m.fields = make(map[string]*Column, len(m.Columns))
	m.relations = make(map[string]*Relation, len(m.Relations))
	m.version, m.createDate, m.updateDate, m.deleteDate = nil, nil, nil, nil
	for _, c := range m.Columns {
		c.entity = m
		if c.Field == "" {
			c.Field = c.Name
		}
		if _, ok := m.columns[c.Name]; ok && res != nil {
			res.errorf(m.Name, c.Name, "duplicate column")
		}
		m.columns[c.Name] = c
		m.fields[c.Field] = c
		if c.Primary {
			m.primary = append(m.primary, c)
		}
		switch {
		case c.Version:
			m.version = c
		case c.CreateDate:
			m.createDate = c
		case c.UpdateDate:
			m.updateDate = c
		case c.DeleteDate:
			m.deleteDate = c
		}
	}
	for _, rel := range m.Relations {
		rel.entity = m
		if _, ok := m.relations[rel.Name]; ok && res != nil {
			res.errorf(m.Name, rel.Name, "duplicate relation")
		}
		m.relations[rel.Name] = rel
	}
}

func (r *Registry) resolveTarget(m *EntityMetadata, rel *Relation, res *ValidationResult) {
	if rel.Kind < OneToOne || rel.Kind > ManyToMany {
		res.errorf(m.Name, rel.Name, "unknown relation kind %d", rel.Kind)
		return
	}
	t, ok := r.byName[rel.Target]
	if !ok {
		res.errorf(m.Name, rel.Name, "unknown target entity %q", rel.Target)
		return
	}
	rel.target = t
}

var inverseKind = map[RelationKind]RelationKind{
	OneToOne:   OneToOne,
	OneToMany:  ManyToOne,
	ManyToOne:  OneToMany,
	ManyToMany: ManyToMany,
}

func resolveInverse(rel *Relation, res *ValidationResult) {
	if rel.InverseSide == "" || rel.inverse != nil {
		return
	}
	inv, ok := rel.target.relations[rel.InverseSide]
	switch {
	case !ok:
		res.errorf(rel.entity.Name, rel.Name, "unknown inverse side %s.%s", rel.target.Name, rel.InverseSide)
		return
	case inv.target != rel.entity:
		res.errorf(rel.entity.Name, rel.Name, "inverse side %s.%s targets %s", rel.target.Name, inv.Name, inv.Target)
		return
	case inverseKind[rel.Kind] != inv.Kind:
		res.errorf(rel.entity.Name, rel.Name, "inverse side %s.%s is %s", rel.target.Name, inv.Name, inv.Kind)
		return
	case inv.InverseSide != "" && inv.InverseSide != rel.Name:
		res.errorf(rel.entity.Name, rel.Name, "inverse side %s.%s points at %s", rel.target.Name, inv.Name, inv.InverseSide)
		return
	case rel.Kind == OneToOne && rel.Owner == inv.Owner:
		res.errorf(rel.entity.Name, rel.Name, "exactly one side of a one-to-one relation must own it")
		return
	}
	rel.inverse, inv.inverse = inv, rel
}

func resolveJoinColumns(rel *Relation, res *ValidationResult) {
	m, t := rel.entity, rel.target
	jcs := rel.JoinColumns
	if len(jcs) == 0 {
		for _, pk := range t.primary {
			jcs = append(jcs, JoinColumn{Name: JoinColumnName(rel.Name, pk.Name), Referenced: pk.Name})
		}
		rel.JoinColumns = jcs
	}
	rel.fks = rel.fks[:0]
	for _, jc := range jcs {
		ref, ok := t.columns[jc.Referenced]
		if !ok {
			res.errorf(m.Name, rel.Name, "join column %s references unknown column %s.%s", jc.Name, t.Name, jc.Referenced)
			continue
		}
		c, ok := m.columns[jc.Name]
		if !ok {
			c = &Column{Name: jc.Name, Nullable: rel.Nullable, entity: m}
			m.Columns = append(m.Columns, c)
			m.columns[c.Name] = c
		}
		if c.relation != nil && c.relation != rel {
			res.errorf(m.Name, jc.Name, "join column shared by %s and %s", c.relation.Name, rel.Name)
			continue
		}
		c.relation, c.referenced = rel, ref
		rel.fks = append(rel.fks, c)
	}
}

func resolveJunction(rel *Relation, res *ValidationResult) {
	if rel.junction != nil {
		return
	}
	inv := rel.inverse
	owner := rel
	switch {
	case rel.JoinTable != nil:
		if inv != nil && inv.JoinTable != nil {
			res.errorf(rel.entity.Name, rel.Name, "both sides of the many-to-many relation declare a join table")
			return
		}
	case inv != nil && inv.JoinTable != nil:
		owner = inv
	}
	jt := owner.JoinTable
	if jt == nil {
		jt = &JoinTable{}
	}
	j := &Junction{Table: jt.Name, Owner: owner}
	if j.Table == "" {
		j.Table = JunctionTableName(owner.entity.Name, owner.Name)
	}
	src, dst := owner.entity, owner.target
	j.OwnerColumns = junctionColumns(jt.JoinColumns, src, src.Name, res, owner)
	j.InverseColumns = junctionColumns(jt.InverseJoinColumns, dst, singular(owner.Name), res, owner)
	owner.junction = j
	if inv != nil {
		inv.junction = j
	}
}

func junctionColumns(jcs []JoinColumn, m *EntityMetadata, prefix string, res *ValidationResult, rel *Relation) []*JunctionColumn {
	if len(jcs) == 0 {
		for _, pk := range m.primary {
			jcs = append(jcs, JoinColumn{Name: JoinColumnName(prefix, pk.Name), Referenced: pk.Name})
		}
	}
	out := make([]*JunctionColumn, 0, len(jcs))
	for _, jc := range jcs {
		ref, ok := m.columns[jc.Referenced]
		if !ok {
			res.errorf(rel.entity.Name, rel.Name, "junction column %s references unknown column %s.%s", jc.Name, m.Name, jc.Referenced)
			continue
		}
		if !ref.Primary {
			res.errorf(rel.entity.Name, rel.Name, "junction column %s must reference a primary column of %s", jc.Name, m.Name)
			continue
		}
		out = append(out, &JunctionColumn{Name: jc.Name, Referenced: ref})
	}
	return out
}
