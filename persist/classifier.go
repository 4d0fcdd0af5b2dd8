package persist

import (
	"fmt"
	"strings"

	"github.com/syssam/orm"
	"github.com/syssam/orm/metadata"
)

// classify assigns the operation of every subject of the graph from the
// loaded rows. New subjects are classified first so that update diffs see
// which links wait on an insert. Orphans come classified from the
// relation diff.
func (g *Graph) classify() error {
	if g.mode != ModePersist {
		for _, s := range g.subjects {
			if s.orphan {
				continue
			}
			if err := s.classifyRemoval(g.mode); err != nil {
				return err
			}
		}
		return nil
	}
	for _, s := range g.subjects {
		if s.orphan {
			continue
		}
		if s.pending != nil {
			return s.pending
		}
		if s.stored() {
			continue
		}
		if col, ok := s.insertable(); !ok {
			return &orm.MissingIdentifierError{Entity: s.meta.Name, Op: orm.OpInsert, Column: col}
		}
		if err := s.classifyInsert(); err != nil {
			return err
		}
	}
	return g.reclassify()
}

// reclassify recomputes the change sets of stored persist-mode subjects.
// It runs again once before-listeners had a chance to modify entities.
func (g *Graph) reclassify() error {
	if g.mode != ModePersist {
		return nil
	}
	for _, s := range g.subjects {
		if s.orphan || !s.stored() {
			continue
		}
		if err := s.classifyUpdate(); err != nil {
			return err
		}
	}
	return nil
}

// stored reports whether the subject has a loaded row.
func (s *Subject) stored() bool { return s.known() && s.row != nil }

func (s *Subject) classifyInsert() error {
	if !s.root && !s.canInsert {
		e := &orm.CascadeNotAllowedError{Target: s.meta.Name, Op: orm.OpInsert}
		if s.via != nil {
			e.Entity, e.Relation = s.via.Entity().Name, s.via.Name
		}
		return e
	}
	s.op, s.changes, s.lockVersion = orm.OpInsert, nil, nil
	return nil
}

// insertable reports whether every primary key value missing from a new
// subject is assigned on insert, by generation or from a related subject.
func (s *Subject) insertable() (string, bool) {
	for _, c := range s.meta.PrimaryColumns() {
		if _, ok := s.id[c.Name]; ok || c.Generated() {
			continue
		}
		if rel := c.Relation(); rel != nil {
			if _, ok := s.links[rel]; ok {
				continue
			}
		}
		return c.Name, false
	}
	return "", true
}

func (s *Subject) classifyUpdate() error {
	full := (s.root || s.canUpdate) && !s.relationOnly
	changes := make(map[string]any)
	for _, c := range s.meta.Columns {
		if skipDiff(c) {
			continue
		}
		if s.fields != nil && !s.fields[c.Name] {
			continue
		}
		if rel := c.Relation(); rel != nil {
			if l, ok := s.links[rel]; ok {
				if l.waitsOn() != nil {
					// Resolved once the target was inserted.
					changes[c.Name] = nil
					continue
				}
				if v, _ := s.valueOf(c); !metadata.Equal(v, s.row[c.Name]) {
					changes[c.Name] = metadata.Normalize(v)
				}
				continue
			}
		}
		if !full || c.Accessor == nil {
			continue
		}
		if v, _ := c.Get(s.entity); !metadata.Equal(v, s.row[c.Name]) {
			changes[c.Name] = v
		}
	}
	if vc := s.meta.VersionColumn(); vc != nil {
		stored := s.row[vc.Name]
		if v, ok := vc.Get(s.entity); ok && !metadata.IsEmpty(v) && !metadata.Equal(v, stored) {
			return &orm.OptimisticLockError{Entity: s.meta.Name, Expected: metadata.Normalize(v), Actual: metadata.Normalize(stored)}
		}
		if len(changes) > 0 {
			s.lockVersion = metadata.Normalize(stored)
			changes[vc.Name] = nextVersion(stored)
		}
	}
	if len(changes) == 0 {
		s.op, s.changes = orm.OpNone, nil
		return nil
	}
	s.op, s.changes = orm.OpUpdate, changes
	return nil
}

// skipDiff reports whether a column never takes part in update diffs.
func skipDiff(c *metadata.Column) bool {
	return c.Primary || c.Generated() || c.Version || c.CreateDate || c.UpdateDate || c.DeleteDate
}

func nextVersion(stored any) int64 {
	n, _ := metadata.Normalize(stored).(int64)
	return n + 1
}

func (s *Subject) classifyRemoval(mode Mode) error {
	if !s.known() {
		return &orm.MissingIdentifierError{Entity: s.meta.Name, Op: s.op, Column: s.missingPrimary()}
	}
	if s.row == nil {
		s.op = orm.OpNone
		return nil
	}
	if mode == ModeRemove {
		return nil
	}
	dc := s.meta.DeleteDateColumn()
	if dc == nil {
		return fmt.Errorf("persist: %s %s: entity has no delete date column", s.op, s.meta.Name)
	}
	deleted := metadata.Normalize(s.row[dc.Name]) != nil
	if (mode == ModeSoftRemove) == deleted {
		s.op = orm.OpNone
	}
	return nil
}

// resolveFields maps the property paths of a partial save to column names.
// A path is a field, a column, a relation or a relation.field pair naming
// one of the columns its join columns reference.
func resolveFields(m *metadata.EntityMetadata, paths []string) (map[string]bool, error) {
	cols := make(map[string]bool, len(paths))
	for _, p := range paths {
		if c, ok := m.ColumnByField(p); ok {
			cols[c.Name] = true
			continue
		}
		if c, ok := m.Column(p); ok {
			cols[c.Name] = true
			continue
		}
		name, field, nested := strings.Cut(p, ".")
		rel, ok := m.Relation(name)
		if !ok || !rel.Owning() {
			return nil, &orm.ColumnNotFoundError{Entity: m.Name, Path: p}
		}
		found := false
		for _, fk := range rel.ForeignKeys() {
			ref := fk.Referenced()
			if !nested || ref.Field == field || ref.Name == field {
				cols[fk.Name], found = true, true
			}
		}
		if !found {
			return nil, &orm.ColumnNotFoundError{Entity: m.Name, Path: p}
		}
	}
	return cols, nil
}
