package draft

import (
	"strconv"

	"github.com/goliatone/go-store/tree"
)

// Node is the mutable view of one node inside a draft. Nodes are stable:
// reaching the same target twice yields the same *Node.
type Node struct {
	d        *Draft
	target   tree.Container
	readonly bool
}

var (
	_ tree.Mutable   = (*Node)(nil)
	_ tree.Unwrapper = (*Node)(nil)
)

// Draft returns the draft that owns n.
func (n *Node) Draft() *Draft { return n.d }

// Target returns the snapshot node n writes against.
func (n *Node) Target() tree.Container { return n.target }

// Readonly reports whether n sits below a sealed key.
func (n *Node) Readonly() bool { return n.readonly }

func (n *Node) Kind() tree.Kind { return n.target.Kind() }

// Get resolves key, returning child nodes for containers.
func (n *Node) Get(key string) any {
	d := n.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		value, ok := n.committed().(tree.Container)
		if !ok {
			return nil
		}
		return value.Get(key)
	}

	value, ok := d.lookup(n.target, key)
	if !ok {
		return nil
	}
	switch v := value.(type) {
	case *Node:
		return v
	case tree.Container:
		return d.node(v, n.readonly || d.sealed(n.target, key))
	default:
		return value
	}
}

func (n *Node) Has(key string) bool {
	d := n.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		value, ok := n.committed().(tree.Container)
		return ok && value.Has(key)
	}
	_, ok := d.lookup(n.target, key)
	return ok
}

func (n *Node) Keys() []string {
	d := n.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		if value, ok := n.committed().(tree.Container); ok {
			return value.Keys()
		}
		return nil
	}
	return n.keys()
}

func (n *Node) keys() []string {
	rec := n.d.records[n.target]
	if n.target.Kind() == tree.KindList {
		if rec == nil {
			return tree.IndexKeys(n.target.Len())
		}
		return tree.IndexKeys(rec.length)
	}
	base := n.target.Keys()
	if rec == nil {
		return base
	}
	out := make([]string, 0, len(base)+len(rec.order))
	for _, key := range base {
		if o, ok := rec.ops[key]; ok && o.remove {
			continue
		}
		out = append(out, key)
	}
	for _, key := range rec.order {
		if n.target.Has(key) {
			continue
		}
		if o := rec.ops[key]; !o.remove {
			out = append(out, key)
		}
	}
	return out
}

func (n *Node) Len() int {
	d := n.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		if value, ok := n.committed().(tree.Container); ok {
			return value.Len()
		}
		return 0
	}
	if rec := d.records[n.target]; rec != nil && n.target.Kind() == tree.KindList {
		return rec.length
	}
	if d.records[n.target] == nil {
		return n.target.Len()
	}
	return len(n.keys())
}

// Set records a pending write. Plain Go values are frozen; nodes of the same
// draft are stored by reference and resolved at commit. It returns false when
// the write is rejected: the key is sealed, the index is invalid, or the
// value cannot be frozen.
func (n *Node) Set(key string, value any) bool {
	return n.d.write(n, key, value, false)
}

// Delete records a pending removal. On lists it leaves a nil hole and keeps
// the length.
func (n *Node) Delete(key string) bool {
	return n.d.write(n, key, nil, true)
}

// Append writes values after the current end of a list.
func (n *Node) Append(values ...any) bool {
	if n.Kind() != tree.KindList {
		return false
	}
	for _, value := range values {
		if !n.Set(strconv.Itoa(n.Len()), value) {
			return false
		}
	}
	return true
}

// SetLen truncates or extends a list. New slots read as nil.
func (n *Node) SetLen(length int) bool {
	return n.d.setLen(n, length)
}

// Unwrap returns the materialized node: the committed copy after Commit, a
// preview of the pending state before.
func (n *Node) Unwrap() tree.Container {
	value, _ := n.d.Resolve(n).(tree.Container)
	return value
}

// committed maps n to its node in the committed root. Callers hold d.mu.
func (n *Node) committed() any {
	return n.d.materialize(n.target, n.d.memo)
}
