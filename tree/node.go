package tree

import (
	"slices"
	"strconv"
)

// Kind identifies a container shape.
type Kind uint8

const (
	// KindObject is a string keyed record.
	KindObject Kind = iota + 1
	// KindList is an ordered sequence addressed by decimal index keys.
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Container is the read accessor implemented by nodes, tracked views and
// draft nodes. List keys are decimal indices ("0", "1", ...).
type Container interface {
	Kind() Kind
	Get(key string) any
	Has(key string) bool
	Keys() []string
	Len() int
}

// Mutable is a Container that accepts writes. Set and Delete report whether
// the write was accepted; writes to sealed keys are rejected.
type Mutable interface {
	Container
	Set(key string, value any) bool
	Delete(key string) bool
}

// Unwrapper is implemented by engine wrappers (tracked views, draft nodes)
// that resolve to an underlying node.
type Unwrapper interface {
	Unwrap() Container
}

// Object is an immutable string keyed record.
type Object struct {
	keys   []string
	fields map[string]any
	sealed map[string]struct{}
}

// EmptyObject returns a new object with no fields.
func EmptyObject() *Object {
	return &Object{fields: map[string]any{}}
}

func (o *Object) Kind() Kind { return KindObject }

// Get returns the value stored at key or nil.
func (o *Object) Get(key string) any {
	if o == nil {
		return nil
	}
	return o.fields[key]
}

func (o *Object) Has(key string) bool {
	if o == nil {
		return false
	}
	_, ok := o.fields[key]
	return ok
}

// Keys returns the field names in insertion order. The slice is a copy.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return slices.Clone(o.keys)
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Sealed reports whether key is non-writable.
func (o *Object) Sealed(key string) bool {
	if o == nil || o.sealed == nil {
		return false
	}
	_, ok := o.sealed[key]
	return ok
}

// Seal returns a copy of o whose named keys reject draft writes and deletes.
// Sealing a key also makes the subtree below it readonly inside drafts.
func (o *Object) Seal(keys ...string) *Object {
	b := EditObject(o)
	for _, key := range keys {
		if b.obj.sealed == nil {
			b.obj.sealed = map[string]struct{}{}
		}
		b.obj.sealed[key] = struct{}{}
	}
	return b.Build()
}

// List is an immutable ordered sequence.
type List struct {
	items []any
}

// EmptyList returns a new list with no elements.
func EmptyList() *List {
	return &List{}
}

func (l *List) Kind() Kind { return KindList }

// At returns the element at index i or nil when out of range.
func (l *List) At(i int) any {
	if l == nil || i < 0 || i >= len(l.items) {
		return nil
	}
	return l.items[i]
}

func (l *List) Get(key string) any {
	i, ok := ParseIndex(key)
	if !ok {
		return nil
	}
	return l.At(i)
}

func (l *List) Has(key string) bool {
	i, ok := ParseIndex(key)
	return ok && l != nil && i < len(l.items)
}

func (l *List) Keys() []string {
	return IndexKeys(l.Len())
}

func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.items)
}

// ParseIndex converts a list key into an index. Negative or malformed keys
// are rejected.
func ParseIndex(key string) (int, bool) {
	if key == "" || (len(key) > 1 && key[0] == '0') {
		return 0, false
	}
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// IndexKeys returns the keys "0".."n-1".
func IndexKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = strconv.Itoa(i)
	}
	return keys
}

// ObjectBuilder assembles a new *Object. The object pointer is allocated up
// front so that cyclic graphs can reference it before Build.
type ObjectBuilder struct {
	obj  *Object
	done bool
}

// EditObject starts a shallow copy of base. A nil base starts an empty object.
func EditObject(base *Object) *ObjectBuilder {
	obj := &Object{fields: map[string]any{}}
	if base != nil {
		obj.keys = slices.Clone(base.keys)
		obj.fields = make(map[string]any, len(base.fields))
		for key, value := range base.fields {
			obj.fields[key] = value
		}
		if len(base.sealed) > 0 {
			obj.sealed = make(map[string]struct{}, len(base.sealed))
			for key := range base.sealed {
				obj.sealed[key] = struct{}{}
			}
		}
	}
	return &ObjectBuilder{obj: obj}
}

// Ref returns the object being built.
func (b *ObjectBuilder) Ref() *Object {
	return b.obj
}

// Set stores value at key, appending the key when new.
func (b *ObjectBuilder) Set(key string, value any) *ObjectBuilder {
	if b.done {
		return b
	}
	if _, ok := b.obj.fields[key]; !ok {
		b.obj.keys = append(b.obj.keys, key)
	}
	b.obj.fields[key] = value
	return b
}

// Delete removes key.
func (b *ObjectBuilder) Delete(key string) *ObjectBuilder {
	if b.done {
		return b
	}
	if _, ok := b.obj.fields[key]; !ok {
		return b
	}
	delete(b.obj.fields, key)
	if i := slices.Index(b.obj.keys, key); i >= 0 {
		b.obj.keys = slices.Delete(b.obj.keys, i, i+1)
	}
	return b
}

// Build finishes the object. Further Set/Delete calls are ignored.
func (b *ObjectBuilder) Build() *Object {
	b.done = true
	return b.obj
}

// ListBuilder assembles a new *List.
type ListBuilder struct {
	list *List
	done bool
}

// EditList starts a shallow copy of base.
func EditList(base *List) *ListBuilder {
	list := &List{}
	if base != nil {
		list.items = slices.Clone(base.items)
	}
	return &ListBuilder{list: list}
}

func (b *ListBuilder) Ref() *List {
	return b.list
}

// Set stores value at index i, growing the list with nils when needed.
func (b *ListBuilder) Set(i int, value any) *ListBuilder {
	if b.done || i < 0 {
		return b
	}
	if i >= len(b.list.items) {
		b.list.items = append(b.list.items, make([]any, i+1-len(b.list.items))...)
	}
	b.list.items[i] = value
	return b
}

// Append adds values at the end.
func (b *ListBuilder) Append(values ...any) *ListBuilder {
	if b.done {
		return b
	}
	b.list.items = append(b.list.items, values...)
	return b
}

// Truncate resizes the list to n elements, padding with nils.
func (b *ListBuilder) Truncate(n int) *ListBuilder {
	if b.done || n < 0 {
		return b
	}
	if n <= len(b.list.items) {
		b.list.items = b.list.items[:n:n]
		return b
	}
	b.list.items = append(b.list.items, make([]any, n-len(b.list.items))...)
	return b
}

func (b *ListBuilder) Build() *List {
	b.done = true
	return b.list
}
