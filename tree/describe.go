package tree

import "fmt"

// FieldDescriptor describes a leaf path and the Go type found there.
type FieldDescriptor struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// Describe flattens value into leaf descriptors ordered by key order. Empty
// containers produce a single descriptor; lists are described by their first
// element. Cycles are reported once with type "cycle".
func Describe(value any) []FieldDescriptor {
	d := describer{active: map[Container]struct{}{}}
	fields := d.describe(value, "")
	if fields == nil {
		return []FieldDescriptor{}
	}
	return fields
}

type describer struct {
	active map[Container]struct{}
}

func (d *describer) describe(value any, prefix string) []FieldDescriptor {
	if w, ok := value.(Unwrapper); ok {
		value = w.Unwrap()
	}
	if value == nil {
		return nil
	}

	switch typed := value.(type) {
	case *Object:
		if _, ok := d.active[typed]; ok {
			return []FieldDescriptor{{Path: prefix, Type: "cycle"}}
		}
		if typed.Len() == 0 {
			return []FieldDescriptor{{Path: prefix, Type: "object"}}
		}
		d.active[typed] = struct{}{}
		defer delete(d.active, typed)
		var fields []FieldDescriptor
		for _, key := range typed.keys {
			fields = append(fields, d.describe(typed.fields[key], JoinPath(prefix, key))...)
		}
		return fields
	case *List:
		elementType := "any"
		if typed.Len() > 0 {
			elementType = typeName(typed.At(0))
		}
		return []FieldDescriptor{{Path: prefix, Type: "[]" + elementType}}
	default:
		if prefix == "" {
			return nil
		}
		return []FieldDescriptor{{Path: prefix, Type: typeName(typed)}}
	}
}

func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "nil"
	case *Object:
		return "object"
	case *List:
		return "list"
	default:
		return fmt.Sprintf("%T", value)
	}
}
