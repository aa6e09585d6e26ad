package store

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/goliatone/go-store/tree"
)

// Merge layers values over the current state. A nested map merges into the
// object already stored under its key, key by key; any other value, or a
// map landing on a non-object, replaces what was there. Keys values does
// not mention keep their current value and stay shared.
func (s *Store) Merge(ctx context.Context, values map[string]any) error {
	_, err := s.run(ctx, "merge", "", func(_ context.Context, tx *Tx) (any, error) {
		return nil, mergeInto(tx.State(), values, nil, map[uintptr]struct{}{})
	})
	return err
}

func mergeInto(dst tree.Mutable, values map[string]any, path []string, active map[uintptr]struct{}) error {
	ptr := reflect.ValueOf(values).Pointer()
	active[ptr] = struct{}{}
	defer delete(active, ptr)

	for _, key := range slices.Sorted(maps.Keys(values)) {
		value := values[key]
		if nested, ok := value.(map[string]any); ok && nested != nil {
			_, cyclic := active[reflect.ValueOf(nested).Pointer()]
			child, isNode := dst.Get(key).(tree.Mutable)
			if !cyclic && isNode && child.Kind() == tree.KindObject {
				if err := mergeInto(child, nested, append(path, key), active); err != nil {
					return err
				}
				continue
			}
		}
		frozen, err := tree.Freeze(value)
		if err != nil {
			return fmt.Errorf("%w: key %q: %v", ErrInvalidState, strings.Join(append(path, key), "."), err)
		}
		dst.Set(key, frozen)
	}
	return nil
}
