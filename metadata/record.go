package metadata

import (
	"fmt"
	"maps"
)

// Named is implemented by entities that carry their type tag. It takes
// precedence over Go type lookup in Registry.Resolve.
type Named interface {
	EntityName() string
}

// Record is a map-backed entity. It is used with metadata declared as
// configuration (see ParseYAML), where no Go struct exists.
type Record struct {
	name      string
	values    map[string]any
	relations map[string]any
}

// NewRecord returns a record of the given entity holding a copy of values.
func NewRecord(entity string, values map[string]any) *Record {
	r := &Record{name: entity, values: make(map[string]any, len(values)), relations: make(map[string]any)}
	maps.Copy(r.values, values)
	return r
}

// EntityName implements Named.
func (r *Record) EntityName() string { return r.name }

// Get returns the value of a field.
func (r *Record) Get(field string) any { return r.values[field] }

// Set sets the value of a field.
func (r *Record) Set(field string, v any) *Record {
	r.values[field] = v
	return r
}

// Values returns a copy of the field values.
func (r *Record) Values() map[string]any { return maps.Clone(r.values) }

// SetOne sets a to-one relation. A nil record clears it.
func (r *Record) SetOne(relation string, related *Record) *Record {
	if related == nil {
		delete(r.relations, relation)
		return r
	}
	r.relations[relation] = related
	return r
}

// SetMany sets a to-many relation. A non-nil empty slice clears the stored
// relation on save.
func (r *Record) SetMany(relation string, related ...*Record) *Record {
	if related == nil {
		related = []*Record{}
	}
	r.relations[relation] = related
	return r
}

// One returns the related record of a to-one relation.
func (r *Record) One(relation string) *Record {
	rec, _ := r.relations[relation].(*Record)
	return rec
}

// Many returns the related records of a to-many relation.
func (r *Record) Many(relation string) []*Record {
	recs, _ := r.relations[relation].([]*Record)
	return recs
}

// RecordField returns an accessor for a record field.
func RecordField(field string) Accessor { return recordField(field) }

type recordField string

func (f recordField) Get(e any) any {
	r, ok := e.(*Record)
	if !ok || r == nil {
		return nil
	}
	return r.values[string(f)]
}

func (f recordField) Set(e, v any) error {
	r, ok := e.(*Record)
	if !ok || r == nil {
		return errNotRecord(e)
	}
	r.values[string(f)] = v
	return nil
}

// RecordRelation returns an accessor for a record relation.
func RecordRelation(name string) RelationAccessor { return recordRelation(name) }

type recordRelation string

func (n recordRelation) Get(e any) ([]any, bool) {
	r, ok := e.(*Record)
	if !ok || r == nil {
		return nil, false
	}
	switch v := r.relations[string(n)].(type) {
	case *Record:
		return []any{v}, true
	case []*Record:
		out := make([]any, 0, len(v))
		for _, rec := range v {
			if rec != nil {
				out = append(out, rec)
			}
		}
		return out, true
	}
	return nil, false
}

func errNotRecord(e any) error {
	return fmt.Errorf("metadata: record accessor used with %T", e)
}
