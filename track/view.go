package track

import "github.com/goliatone/go-store/tree"

// View is a read-intercepting wrapper around a node. Child containers read
// through a view are returned as views sharing the same AccessMap.
type View struct {
	target tree.Container
	am     *AccessMap
}

var _ tree.Container = (*View)(nil)
var _ tree.Unwrapper = (*View)(nil)

func (v *View) Kind() tree.Kind {
	return v.target.Kind()
}

// Get records a read of key and returns the value, wrapping containers.
func (v *View) Get(key string) any {
	v.am.record(v.target, func(r *Record) { r.read(key) })
	value := v.target.Get(key)
	if child, ok := Raw(value).(tree.Container); ok {
		return v.am.wrap(child)
	}
	return value
}

// Has records an existence check.
func (v *View) Has(key string) bool {
	v.am.record(v.target, func(r *Record) { r.check(key) })
	return v.target.Has(key)
}

// Keys records a full key enumeration.
func (v *View) Keys() []string {
	v.am.record(v.target, func(r *Record) { r.keys = true })
	return v.target.Keys()
}

// Len records a length introspection.
func (v *View) Len() int {
	v.am.record(v.target, func(r *Record) { r.size = true })
	return v.target.Len()
}

// Unwrap returns the underlying node and marks it as escaped.
func (v *View) Unwrap() tree.Container {
	v.am.record(v.target, func(r *Record) { r.whole = true })
	return v.target
}

// AccessMap returns the map the view records into.
func (v *View) AccessMap() *AccessMap {
	return v.am
}
