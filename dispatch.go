package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Dispatch runs the named action. Called with a context that carries an
// open batch of this store (the ctx an action received, or tx.Context()),
// the action joins that batch; otherwise it opens one, and everything it
// writes, including writes of nested dispatches, is published as a single
// snapshot when it returns.
//
// When the action fails, the writes it made before failing are published
// and the error is returned as an *ActionError. When it panics, the writes
// are published and the panic continues.
//
// The result of the outermost dispatch is undrafted: draft nodes in it are
// replaced by the committed nodes.
//
// Batches are serialized. Calling Dispatch or a setter from inside an action
// with a context that does not carry the open batch waits for that batch,
// which cannot finish first: the call returns ErrWriteLockWait once its
// context is done, and never returns when the context has no deadline.
func (s *Store) Dispatch(ctx context.Context, name string, args ...any) (any, error) {
	action, ok := s.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	outer := s.openBatch(ctx) == nil

	result, err := s.run(ctx, "action", name, func(ctx context.Context, tx *Tx) (any, error) {
		value, err := action(ctx, tx, args...)
		if err != nil {
			return value, &ActionError{Action: name, Err: err}
		}
		return value, nil
	})

	if outer {
		s.metrics.action(name, err)
		var actionErr *ActionError
		if errors.As(err, &actionErr) && actionErr.Action == name {
			s.logger.Warn("action failed", "action", name, "error", actionErr.Err)
			s.emitActionFailed(ctx, name, s.Get(), actionErr.Err)
		}
	}
	return result, err
}

// Actions lists the registered action names.
func (s *Store) Actions() []string {
	return slices.Sorted(maps.Keys(s.actions))
}

// Computeds lists the declared computed names.
func (s *Store) Computeds() []string {
	return slices.Sorted(maps.Keys(s.computeds))
}
