package store

import (
	"github.com/goliatone/go-store/tree"
)

// Snapshot is one published state of a store: an immutable root, a version
// that grows with every publish, and lazily evaluated computeds. Two
// snapshots are the same state iff they are the same pointer.
//
// Reads through a Snapshot are not tracked.
type Snapshot struct {
	store   *Store
	id      string
	version uint64
	root    *tree.Object
	pending bool
}

var _ View = (*Snapshot)(nil)

// ID returns the snapshot's unique identifier. Snapshots previewing an open
// batch have no ID.
func (s *Snapshot) ID() string { return s.id }

// Version returns the publish counter value the snapshot was created with.
func (s *Snapshot) Version() uint64 { return s.version }

// Root returns the immutable state root.
func (s *Snapshot) Root() *tree.Object { return s.root }

// Pending reports whether the snapshot previews an open batch.
func (s *Snapshot) Pending() bool { return s.pending }

func (s *Snapshot) Kind() tree.Kind { return tree.KindObject }
func (s *Snapshot) Get(key string) any { return s.root.Get(key) }
func (s *Snapshot) Has(key string) bool { return s.root.Has(key) }
func (s *Snapshot) Keys() []string { return s.root.Keys() }
func (s *Snapshot) Len() int { return s.root.Len() }
func (s *Snapshot) Unwrap() tree.Container { return s.root }

// Computed returns the value of the named computed for this snapshot,
// reusing the cached value when its dependencies did not change.
func (s *Snapshot) Computed(name string) (any, error) {
	return s.store.computed(name, s, nil, nil)
}

// Lookup resolves a dotted path such as "user.tags.0".
func (s *Snapshot) Lookup(path string) (any, bool) {
	return tree.Lookup(s.root, path)
}

// Export converts the state into plain maps and slices.
func (s *Snapshot) Export() map[string]any {
	return tree.ExportObject(s.root)
}

// Describe lists the leaf paths of the state with their Go types.
func (s *Snapshot) Describe() []tree.FieldDescriptor {
	return tree.Describe(s.root)
}

// Diff lists the top-level keys whose value differs from prev, removed
// keys included, in sorted order. A nil prev yields every key.
func (s *Snapshot) Diff(prev *Snapshot) []string {
	if prev == nil {
		return s.root.Keys()
	}
	return changedKeys(prev, s)
}
