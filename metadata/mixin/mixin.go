// Package mixin provides reusable column sets for entity metadata.
//
// A mixin is a struct embedded in an entity type together with the column
// descriptors that map its fields:
//
//	type User struct {
//	    mixin.UUID
//	    mixin.Time
//	    Name string
//	}
//
//	users := &metadata.EntityMetadata{
//	    Name:    "User",
//	    Type:    metadata.TypeOf[User](),
//	    Columns: mixin.Columns(mixin.UUID{}, mixin.Time{}, nameColumn),
//	}
//
// Available mixins:
//   - UUID: id primary key holding a UUID generated before insert
//   - CreateTime: created_at timestamp set on insert
//   - UpdateTime: updated_at timestamp set on insert and update
//   - Time: combines CreateTime and UpdateTime
//   - SoftDelete: deleted_at timestamp set by soft removes
//   - Version: optimistic lock counter
//   - TimeSoftDelete: combines Time and SoftDelete
//
// Record entities have no struct to embed; ForRecords rebinds mixin
// columns to record fields.
package mixin

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/orm/metadata"
)

// Mixin is a reusable set of columns.
type Mixin interface {
	Columns() []*metadata.Column
}

// Columns flattens mixins and single columns into one column list.
func Columns(parts ...any) []*metadata.Column {
	var cs []*metadata.Column
	for _, p := range parts {
		switch p := p.(type) {
		case Mixin:
			cs = append(cs, p.Columns()...)
		case *metadata.Column:
			cs = append(cs, p)
		case []*metadata.Column:
			cs = append(cs, p...)
		default:
			panic(fmt.Sprintf("mixin: unexpected column part %T", p))
		}
	}
	return cs
}

// ForRecords returns copies of the columns reading and writing Record
// fields named after Column.Field.
func ForRecords(cs []*metadata.Column) []*metadata.Column {
	out := make([]*metadata.Column, len(cs))
	for i, c := range cs {
		cp := *c
		cp.Accessor = metadata.RecordField(c.Field)
		out[i] = &cp
	}
	return out
}

// UUID adds an ID primary key holding a UUID assigned before insert.
type UUID struct {
	ID uuid.UUID
}

func (m *UUID) uuidMixin() *UUID { return m }

// Columns of the UUID mixin.
func (UUID) Columns() []*metadata.Column {
	return []*metadata.Column{{
		Name:       "id",
		Field:      "ID",
		Primary:    true,
		Generation: metadata.UUID,
		Accessor:   field(func(h interface{ uuidMixin() *UUID }) *uuid.UUID { return &h.uuidMixin().ID }),
	}}
}

// CreateTime adds the created_at column, set when the entity is inserted.
type CreateTime struct {
	CreatedAt time.Time
}

func (m *CreateTime) createTime() *CreateTime { return m }

// Columns of the create time mixin.
func (CreateTime) Columns() []*metadata.Column {
	return []*metadata.Column{{
		Name:       "created_at",
		Field:      "CreatedAt",
		CreateDate: true,
		Accessor:   field(func(h interface{ createTime() *CreateTime }) *time.Time { return &h.createTime().CreatedAt }),
	}}
}

// UpdateTime adds the updated_at column, set on every insert and update.
type UpdateTime struct {
	UpdatedAt time.Time
}

func (m *UpdateTime) updateTime() *UpdateTime { return m }

// Columns of the update time mixin.
func (UpdateTime) Columns() []*metadata.Column {
	return []*metadata.Column{{
		Name:       "updated_at",
		Field:      "UpdatedAt",
		UpdateDate: true,
		Accessor:   field(func(h interface{ updateTime() *UpdateTime }) *time.Time { return &h.updateTime().UpdatedAt }),
	}}
}

// Time composes CreateTime and UpdateTime.
type Time struct {
	CreateTime
	UpdateTime
}

// Columns of the time mixin.
func (Time) Columns() []*metadata.Column {
	return append(CreateTime{}.Columns(), UpdateTime{}.Columns()...)
}

// SoftDelete adds the nullable deleted_at column. Soft removes set it,
// recovers clear it.
type SoftDelete struct {
	DeletedAt *time.Time
}

func (m *SoftDelete) softDelete() *SoftDelete { return m }

// Columns of the soft delete mixin.
func (SoftDelete) Columns() []*metadata.Column {
	return []*metadata.Column{{
		Name:       "deleted_at",
		Field:      "DeletedAt",
		Nullable:   true,
		DeleteDate: true,
		Accessor:   field(func(h interface{ softDelete() *SoftDelete }) **time.Time { return &h.softDelete().DeletedAt }),
	}}
}

// Deleted reports whether the entity is soft deleted.
func (m SoftDelete) Deleted() bool { return m.DeletedAt != nil }

// Version adds an optimistic lock counter. Updates require the stored
// version to match and increment it.
type Version struct {
	Version int64
}

func (m *Version) versionMixin() *Version { return m }

// Columns of the version mixin.
func (Version) Columns() []*metadata.Column {
	return []*metadata.Column{{
		Name:     "version",
		Field:    "Version",
		Version:  true,
		Accessor: field(func(h interface{ versionMixin() *Version }) *int64 { return &h.versionMixin().Version }),
	}}
}

// TimeSoftDelete composes Time and SoftDelete.
type TimeSoftDelete struct {
	Time
	SoftDelete
}

// Columns of the time soft delete mixin.
func (TimeSoftDelete) Columns() []*metadata.Column {
	return append(Time{}.Columns(), SoftDelete{}.Columns()...)
}

var (
	_ Mixin = UUID{}
	_ Mixin = Time{}
	_ Mixin = TimeSoftDelete{}
	_ Mixin = Version{}
)

// field returns an accessor reaching a mixin field through the method the
// embedding entity promotes.
func field[H any, V any](ptr func(H) *V) metadata.Accessor {
	return accessor[H, V]{ptr: ptr}
}

type accessor[H any, V any] struct {
	ptr func(H) *V
}

func (a accessor[H, V]) Get(e any) any {
	h, ok := e.(H)
	if !ok || isNil(e) {
		return nil
	}
	return *a.ptr(h)
}

func (a accessor[H, V]) Set(e, v any) error {
	h, ok := e.(H)
	if !ok || isNil(e) {
		return fmt.Errorf("mixin: %T does not embed the mixin", e)
	}
	rv, err := metadata.Convert(v, reflect.TypeFor[V]())
	if err != nil {
		return err
	}
	*a.ptr(h) = rv.Interface().(V)
	return nil
}

func isNil(e any) bool {
	rv := reflect.ValueOf(e)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
