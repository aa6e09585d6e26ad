package store

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/goliatone/go-store/tree"
)

// Set replaces the whole state. Inside a batch (ctx from an action) the
// replacement becomes part of the batch.
func (s *Store) Set(ctx context.Context, state any) error {
	root, err := freezeState(state)
	if err != nil {
		return err
	}
	_, err = s.run(ctx, "set", "", func(_ context.Context, tx *Tx) (any, error) {
		tx.batch.draft.Replace(root)
		return nil, nil
	})
	return err
}

// SetFunc replaces the state with the value fn derives from the previous
// one. Inside a batch, prev includes the batch's pending writes.
func (s *Store) SetFunc(ctx context.Context, fn func(prev *Snapshot) any) error {
	if fn == nil {
		return notCallable("SetFunc", "updater")
	}
	_, err := s.run(ctx, "set", "", func(_ context.Context, tx *Tx) (any, error) {
		root, err := freezeState(fn(tx.Snapshot()))
		if err != nil {
			return nil, err
		}
		tx.batch.draft.Replace(root)
		return nil, nil
	})
	return err
}

// Patch writes each top-level key of values, leaving other keys and every
// untouched subtree shared with the previous state. Writes to sealed keys
// are ignored.
func (s *Store) Patch(ctx context.Context, values map[string]any) error {
	_, err := s.run(ctx, "patch", "", func(_ context.Context, tx *Tx) (any, error) {
		return nil, patch(tx.State(), values)
	})
	return err
}

// PatchFunc patches the state with the values fn derives from the previous
// state.
func (s *Store) PatchFunc(ctx context.Context, fn func(prev *Snapshot) map[string]any) error {
	if fn == nil {
		return notCallable("PatchFunc", "updater")
	}
	_, err := s.run(ctx, "patch", "", func(_ context.Context, tx *Tx) (any, error) {
		return nil, patch(tx.State(), fn(tx.Snapshot()))
	})
	return err
}

// Update runs fn against the mutable root within a batch. Writes made
// before fn returns an error are still published.
func (s *Store) Update(ctx context.Context, fn func(state tree.Mutable) error) error {
	if fn == nil {
		return notCallable("Update", "updater")
	}
	_, err := s.run(ctx, "update", "", func(_ context.Context, tx *Tx) (any, error) {
		return nil, fn(tx.State())
	})
	return err
}

func patch(root tree.Mutable, values map[string]any) error {
	for _, key := range slices.Sorted(maps.Keys(values)) {
		value := values[key]
		if !tree.IsContainer(value) {
			frozen, err := tree.Freeze(value)
			if err != nil {
				return fmt.Errorf("%w: key %q: %v", ErrInvalidState, key, err)
			}
			value = frozen
		}
		root.Set(key, value)
	}
	return nil
}
