package store

import (
	"context"
	"slices"

	"github.com/goliatone/go-store/tree"
)

// Tx is an action's handle on its batch.
type Tx struct {
	store *Store
	batch *batch
	ctx   context.Context
}

// Context returns the context carrying the batch. Passing it to the store's
// methods joins the batch instead of opening a new one.
func (tx *Tx) Context() context.Context { return tx.ctx }

// Store returns the store the batch belongs to.
func (tx *Tx) Store() *Store { return tx.store }

// State returns the mutable root. While the batch is open, writes are
// pending until the outermost call returns. Once it closed, the returned
// node reads the live state and every write is published on its own.
func (tx *Tx) State() tree.Mutable {
	if !tx.batch.draft.Closed() {
		return tx.batch.draft.Root()
	}
	return &liveNode{store: tx.store}
}

// Snapshot returns the state including the batch's pending writes. Its
// computeds see those writes. After the batch closed it is the store's
// current snapshot.
func (tx *Tx) Snapshot() *Snapshot {
	if tx.batch.draft.Closed() {
		return tx.store.Get()
	}
	current := tx.store.Get()
	root, ok := tx.batch.draft.Preview().(*tree.Object)
	if !ok || root == current.root {
		return current
	}
	return &Snapshot{store: tx.store, version: current.version, root: root, pending: true}
}

// Computed reads a computed against the pending state.
func (tx *Tx) Computed(name string) (any, error) {
	return tx.Snapshot().Computed(name)
}

// Dispatch runs another action inside the same batch.
func (tx *Tx) Dispatch(name string, args ...any) (any, error) {
	return tx.store.Dispatch(tx.ctx, name, args...)
}

// Set replaces the whole state within the batch. Nodes obtained from State
// before the call no longer affect the result.
func (tx *Tx) Set(state any) error {
	return tx.store.Set(tx.ctx, state)
}

// Patch writes the top-level keys of values within the batch.
func (tx *Tx) Patch(values map[string]any) error {
	return tx.store.Patch(tx.ctx, values)
}

// liveNode addresses a container of the store's current state by path.
// Reads follow the latest snapshot; writes are published one by one.
type liveNode struct {
	store *Store
	path  []string
}

var (
	_ tree.Mutable   = (*liveNode)(nil)
	_ tree.Unwrapper = (*liveNode)(nil)
)

func (n *liveNode) resolve() tree.Container {
	var current tree.Container = n.store.Get().root
	for _, segment := range n.path {
		child, ok := current.Get(segment).(tree.Container)
		if !ok {
			return nil
		}
		current = child
	}
	return current
}

func (n *liveNode) Kind() tree.Kind {
	if c := n.resolve(); c != nil {
		return c.Kind()
	}
	return tree.KindObject
}

func (n *liveNode) Get(key string) any {
	c := n.resolve()
	if c == nil {
		return nil
	}
	value := c.Get(key)
	if _, ok := value.(tree.Container); ok {
		return &liveNode{store: n.store, path: append(slices.Clone(n.path), key)}
	}
	return value
}

func (n *liveNode) Has(key string) bool {
	c := n.resolve()
	return c != nil && c.Has(key)
}

func (n *liveNode) Keys() []string {
	if c := n.resolve(); c != nil {
		return c.Keys()
	}
	return nil
}

func (n *liveNode) Len() int {
	if c := n.resolve(); c != nil {
		return c.Len()
	}
	return 0
}

func (n *liveNode) Set(key string, value any) bool {
	return n.store.writeThrough(n.path, key, value, false)
}

func (n *liveNode) Delete(key string) bool {
	return n.store.writeThrough(n.path, key, nil, true)
}

func (n *liveNode) Unwrap() tree.Container {
	return n.resolve()
}
