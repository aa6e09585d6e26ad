package tree

import "reflect"

// Export converts nodes into plain Go values: *Object becomes map[string]any
// and *List becomes []any. Engine wrappers are resolved first. Cycles in the
// node graph are reproduced in the output (a map that contains itself), so
// callers serializing the result must not assume acyclicity.
func Export(value any) any {
	e := exporter{objects: map[*Object]map[string]any{}, lists: map[*List][]any{}}
	return e.export(value)
}

// ExportObject exports o as a map.
func ExportObject(o *Object) map[string]any {
	if o == nil {
		return nil
	}
	out, _ := Export(o).(map[string]any)
	return out
}

type exporter struct {
	objects map[*Object]map[string]any
	lists   map[*List][]any
}

func (e *exporter) export(value any) any {
	switch typed := value.(type) {
	case *Object:
		if typed == nil {
			return nil
		}
		if out, ok := e.objects[typed]; ok {
			return out
		}
		out := make(map[string]any, typed.Len())
		e.objects[typed] = out
		for _, key := range typed.keys {
			out[key] = e.export(typed.fields[key])
		}
		return out
	case *List:
		if typed == nil {
			return nil
		}
		if out, ok := e.lists[typed]; ok {
			return out
		}
		out := make([]any, len(typed.items))
		e.lists[typed] = out
		for i, item := range typed.items {
			out[i] = e.export(item)
		}
		return out
	case Unwrapper:
		return e.export(typed.Unwrap())
	default:
		return value
	}
}

// Undraft replaces every Unwrapper reachable from value with the node it
// resolves to. Plain maps, slices and pointed-to structs are updated in
// place; a visited set guards against cycles, so Undraft terminates on any
// graph and applying it twice yields the same result as applying it once.
func Undraft(value any) any {
	u := undrafter{visited: map[refKey]struct{}{}}
	return u.undraft(value)
}

type undrafter struct {
	visited map[refKey]struct{}
}

func (u *undrafter) undraft(value any) any {
	if value == nil {
		return nil
	}
	switch typed := value.(type) {
	case Unwrapper:
		return typed.Unwrap()
	case *Object, *List:
		return value
	}
	u.walk(reflect.ValueOf(value))
	return value
}

func (u *undrafter) walk(v reflect.Value) {
	switch v.Kind() {
	case reflect.Interface:
		if !v.IsNil() {
			u.walk(v.Elem())
		}
	case reflect.Pointer:
		if v.IsNil() {
			return
		}
		key := refKey{typ: v.Type(), ptr: v.Pointer()}
		if _, ok := u.visited[key]; ok {
			return
		}
		u.visited[key] = struct{}{}
		if v.Elem().Kind() == reflect.Struct {
			u.walkStruct(v.Elem())
		}
	case reflect.Map:
		if v.IsNil() {
			return
		}
		key := refKey{typ: v.Type(), ptr: v.Pointer()}
		if _, ok := u.visited[key]; ok {
			return
		}
		u.visited[key] = struct{}{}
		iter := v.MapRange()
		type update struct{ key, value reflect.Value }
		var updates []update
		for iter.Next() {
			if next, changed := u.replace(iter.Value()); changed {
				updates = append(updates, update{key: iter.Key(), value: next})
			}
		}
		for _, up := range updates {
			v.SetMapIndex(up.key, up.value)
		}
	case reflect.Slice:
		if v.IsNil() {
			return
		}
		key := refKey{typ: v.Type(), ptr: v.Pointer(), n: v.Len()}
		if _, ok := u.visited[key]; ok {
			return
		}
		u.visited[key] = struct{}{}
		for i := 0; i < v.Len(); i++ {
			if next, changed := u.replace(v.Index(i)); changed && v.Index(i).CanSet() {
				v.Index(i).Set(next)
			}
		}
	}
}

func (u *undrafter) walkStruct(v reflect.Value) {
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}
		if next, changed := u.replace(field); changed {
			field.Set(next)
		}
	}
}

// replace resolves an Unwrapper stored in slot, or recurses into it. It
// reports whether slot must be overwritten.
func (u *undrafter) replace(slot reflect.Value) (reflect.Value, bool) {
	if !slot.IsValid() || !slot.CanInterface() {
		return slot, false
	}
	if slot.Kind() == reflect.Interface && slot.IsNil() {
		return slot, false
	}
	if w, ok := slot.Interface().(Unwrapper); ok {
		resolved := reflect.ValueOf(w.Unwrap())
		if !resolved.IsValid() || !resolved.Type().AssignableTo(slot.Type()) {
			return slot, false
		}
		return resolved, true
	}
	u.walk(slot)
	return slot, false
}
