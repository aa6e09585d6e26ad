package tree

import (
	"fmt"
	"reflect"
	"sort"
)

// Freeze converts value into immutable nodes. Maps with string keys become
// *Object, slices and arrays become *List (except []byte), nodes are returned
// as they are and any other value is kept as a scalar. Reference cycles in
// the input are reproduced as cycles between the resulting nodes.
//
// Engine wrappers (Unwrapper) are resolved before conversion.
func Freeze(value any) (any, error) {
	f := freezer{seen: map[refKey]Container{}}
	return f.freeze(reflect.ValueOf(value))
}

// FreezeObject freezes value and requires the result to be an *Object.
func FreezeObject(value any) (*Object, error) {
	if value == nil {
		return EmptyObject(), nil
	}
	frozen, err := Freeze(value)
	if err != nil {
		return nil, err
	}
	obj, ok := frozen.(*Object)
	if !ok {
		return nil, fmt.Errorf("tree: expected an object, got %T", value)
	}
	return obj, nil
}

// MustFreeze is Freeze for static literals; it panics on error.
func MustFreeze(value any) any {
	out, err := Freeze(value)
	if err != nil {
		panic(err)
	}
	return out
}

type refKey struct {
	typ reflect.Type
	ptr uintptr
	n   int
}

type freezer struct {
	seen map[refKey]Container
}

func (f *freezer) freeze(v reflect.Value) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}

	if v.CanInterface() {
		switch typed := v.Interface().(type) {
		case *Object:
			return typed, nil
		case *List:
			return typed, nil
		case Unwrapper:
			return typed.Unwrap(), nil
		}
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return f.freeze(v.Elem())
	case reflect.Map:
		if v.IsNil() {
			return nil, nil
		}
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("tree: map keys must be strings, got %s", v.Type().Key())
		}
		key := refKey{typ: v.Type(), ptr: v.Pointer()}
		if existing, ok := f.seen[key]; ok {
			return existing, nil
		}
		b := EditObject(nil)
		f.seen[key] = b.Ref()

		names := make([]string, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			names = append(names, iter.Key().String())
		}
		sort.Strings(names)
		for _, name := range names {
			child, err := f.freeze(v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key())))
			if err != nil {
				return nil, fmt.Errorf("tree: freeze %q: %w", name, err)
			}
			b.Set(name, child)
		}
		return b.Build(), nil
	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Interface(), nil
		}
		key := refKey{typ: v.Type(), ptr: v.Pointer(), n: v.Len()}
		if existing, ok := f.seen[key]; ok {
			return existing, nil
		}
		return f.freezeSequence(v, &key)
	case reflect.Array:
		return f.freezeSequence(v, nil)
	default:
		return v.Interface(), nil
	}
}

func (f *freezer) freezeSequence(v reflect.Value, key *refKey) (any, error) {
	b := EditList(nil)
	if key != nil {
		f.seen[*key] = b.Ref()
	}
	for i := 0; i < v.Len(); i++ {
		child, err := f.freeze(v.Index(i))
		if err != nil {
			return nil, fmt.Errorf("tree: freeze [%d]: %w", i, err)
		}
		b.Append(child)
	}
	return b.Build(), nil
}
