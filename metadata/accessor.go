package metadata

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Accessor reads and writes one column value on entity instances.
type Accessor interface {
	Get(e any) any
	Set(e, v any) error
}

// RelationAccessor reads the related entities of a relation. ok is false
// when the relation is not set on the instance (nil pointer or nil slice),
// which leaves the stored relation untouched.
type RelationAccessor interface {
	Get(e any) (related []any, ok bool)
}

// TypeOf returns the type tag typed entities of T are resolved by.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeFor[*T]()
}

// Field returns an accessor for the struct field ptr points at.
//
//	metadata.Field(func(u *User) *int64 { return &u.ID })
func Field[T, V any](ptr func(*T) *V) Accessor {
	return fieldAccessor[T, V]{ptr: ptr}
}

type fieldAccessor[T, V any] struct {
	ptr func(*T) *V
}

func (a fieldAccessor[T, V]) Get(e any) any {
	t, ok := e.(*T)
	if !ok || t == nil {
		return nil
	}
	return *a.ptr(t)
}

func (a fieldAccessor[T, V]) Set(e, v any) error {
	t, ok := e.(*T)
	if !ok || t == nil {
		return fmt.Errorf("metadata: accessor for %T used with %T", (*T)(nil), e)
	}
	rv, err := Convert(v, reflect.TypeFor[V]())
	if err != nil {
		return err
	}
	*a.ptr(t) = rv.Interface().(V)
	return nil
}

// One returns an accessor for a to-one relation field.
//
//	metadata.One(func(p *Post) **User { return &p.Author })
func One[T, R any](ptr func(*T) **R) RelationAccessor {
	return oneAccessor[T, R]{ptr: ptr}
}

type oneAccessor[T, R any] struct {
	ptr func(*T) **R
}

func (a oneAccessor[T, R]) Get(e any) ([]any, bool) {
	t, ok := e.(*T)
	if !ok || t == nil {
		return nil, false
	}
	r := *a.ptr(t)
	if r == nil {
		return nil, false
	}
	return []any{r}, true
}

// Many returns an accessor for a to-many relation field. A nil slice
// leaves the relation untouched, an empty slice clears it.
//
//	metadata.Many(func(u *User) *[]*Post { return &u.Posts })
func Many[T, R any](ptr func(*T) *[]*R) RelationAccessor {
	return manyAccessor[T, R]{ptr: ptr}
}

type manyAccessor[T, R any] struct {
	ptr func(*T) *[]*R
}

func (a manyAccessor[T, R]) Get(e any) ([]any, bool) {
	t, ok := e.(*T)
	if !ok || t == nil {
		return nil, false
	}
	rs := *a.ptr(t)
	if rs == nil {
		return nil, false
	}
	out := make([]any, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, true
}

var (
	scannerType  = reflect.TypeFor[sql.Scanner]()
	stringerType = reflect.TypeFor[fmt.Stringer]()
	timeType     = reflect.TypeFor[time.Time]()
	uuidType     = reflect.TypeFor[uuid.UUID]()
)

// Convert converts a value produced by a driver or the engine (int64
// ids, []byte strings, generated UUIDs, timestamps) to the target type.
func Convert(v any, target reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(target), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type() == target {
		return rv, nil
	}
	if target.Kind() == reflect.Pointer {
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return reflect.Zero(target), nil
		}
		elem, err := Convert(v, target.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(target.Elem())
		p.Elem().Set(elem)
		return p, nil
	}
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Zero(target), nil
		}
		return Convert(rv.Elem().Interface(), target)
	}
	switch {
	case target == uuidType:
		switch x := v.(type) {
		case string:
			u, err := uuid.Parse(x)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("metadata: convert %q to uuid: %w", x, err)
			}
			return reflect.ValueOf(u), nil
		case []byte:
			u, err := uuid.ParseBytes(x)
			if err != nil {
				u, err = uuid.FromBytes(x)
			}
			if err != nil {
				return reflect.Value{}, fmt.Errorf("metadata: convert bytes to uuid: %w", err)
			}
			return reflect.ValueOf(u), nil
		}
	case target.Kind() == reflect.String:
		switch {
		case rv.Kind() == reflect.String:
			return rv.Convert(target), nil
		case rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8:
			return reflect.ValueOf(string(rv.Bytes())).Convert(target), nil
		case rv.Type().Implements(stringerType):
			return reflect.ValueOf(v.(fmt.Stringer).String()).Convert(target), nil
		case rv.CanInt():
			return reflect.ValueOf(strconv.FormatInt(rv.Int(), 10)).Convert(target), nil
		}
	case target == timeType:
		if s, ok := v.(string); ok {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("metadata: convert %q to time: %w", s, err)
			}
			return reflect.ValueOf(t), nil
		}
	case isNumeric(target.Kind()):
		if s, ok := asString(rv); ok {
			return parseNumber(s, target)
		}
	}
	if reflect.PointerTo(target).Implements(scannerType) {
		p := reflect.New(target)
		if err := p.Interface().(sql.Scanner).Scan(v); err != nil {
			return reflect.Value{}, fmt.Errorf("metadata: scan %T into %s: %w", v, target, err)
		}
		return p.Elem(), nil
	}
	if rv.Type().ConvertibleTo(target) {
		return rv.Convert(target), nil
	}
	return reflect.Value{}, fmt.Errorf("metadata: cannot convert %T to %s", v, target)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func asString(rv reflect.Value) (string, bool) {
	switch {
	case rv.Kind() == reflect.String:
		return rv.String(), true
	case rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8:
		return string(rv.Bytes()), true
	}
	return "", false
}

func parseNumber(s string, target reflect.Type) (reflect.Value, error) {
	p := reflect.New(target).Elem()
	switch {
	case p.CanInt():
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("metadata: convert %q to %s: %w", s, target, err)
		}
		p.SetInt(n)
	case p.CanUint():
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("metadata: convert %q to %s: %w", s, target, err)
		}
		p.SetUint(n)
	default:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("metadata: convert %q to %s: %w", s, target, err)
		}
		p.SetFloat(n)
	}
	return p, nil
}
