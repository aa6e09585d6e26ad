package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-store/draft"
	"github.com/goliatone/go-store/tree"
)

type batchKey struct{}

// batch is the unit of atomic publication: one draft over the snapshot that
// was current when the outermost call started.
type batch struct {
	store *Store
	draft *draft.Draft
	prev  *Snapshot
	tx    *Tx
}

type batchFunc func(ctx context.Context, tx *Tx) (any, error)

// openBatch returns the batch of s carried by ctx, if it is still open.
func (s *Store) openBatch(ctx context.Context) *batch {
	if ctx == nil {
		return nil
	}
	b, _ := ctx.Value(batchKey{}).(*batch)
	if b == nil || b.store != s || b.draft.Closed() {
		return nil
	}
	return b
}

// run executes fn inside a batch. A ctx carrying an open batch of s joins
// it; otherwise a new batch is opened under the write lock, committed when
// fn returns (also on error or panic) and published if the state changed.
// Subscribers are notified after the write lock is released. A panic in fn
// is re-raised after notification.
//
// Waiting for the write lock ends with ctx. A call made from inside a batch
// with a context that does not carry it waits for its own batch to finish,
// so it only returns once ctx is done.
func (s *Store) run(ctx context.Context, source, action string, fn batchFunc) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b := s.openBatch(ctx); b != nil {
		return fn(ctx, b.tx)
	}

	select {
	case s.writeSem <- struct{}{}:
	default:
		select {
		case s.writeSem <- struct{}{}:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrWriteLockWait, source, ctx.Err())
		}
	}
	prev := s.Get()
	b := &batch{store: s, prev: prev}
	b.draft = draft.New(prev.root,
		draft.WithFallback(s.writeThrough),
		draft.WithLogger(s.logger),
	)
	bctx := context.WithValue(ctx, batchKey{}, b)
	b.tx = &Tx{store: s, batch: b, ctx: bctx}

	out := invoke(bctx, b.tx, fn)

	next, changed, commitErr := b.draft.Commit()
	if commitErr != nil {
		s.logger.Error("batch commit failed", "source", source, "action", action, "error", commitErr)
	} else if changed {
		if root, ok := next.(*tree.Object); ok {
			s.publishLocked(ctx, root, source, action)
		}
	}
	<-s.writeSem

	notifyErr := s.drain(ctx)
	if out.panicked {
		panic(out.recovered)
	}
	var result any
	if commitErr == nil {
		result = tree.Undraft(out.result)
	}
	return result, joinErrors(out.err, commitErr, notifyErr)
}

type outcome struct {
	result    any
	err       error
	panicked  bool
	recovered any
}

func invoke(ctx context.Context, tx *Tx, fn batchFunc) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out.panicked, out.recovered = true, r
		}
	}()
	out.result, out.err = fn(ctx, tx)
	return out
}

// writeThrough publishes a single write addressed by path. It serves writes
// made through draft nodes after their batch closed.
func (s *Store) writeThrough(path []string, key string, value any, remove bool) bool {
	applied := false
	_, err := s.run(context.Background(), "write-through", "", func(_ context.Context, tx *Tx) (any, error) {
		node := tx.batch.draft.Root()
		for _, segment := range path {
			child, ok := node.Get(segment).(*draft.Node)
			if !ok {
				return nil, nil
			}
			node = child
		}
		if remove {
			applied = node.Delete(key)
		} else {
			applied = node.Set(key, value)
		}
		return nil, nil
	})
	if err != nil {
		s.logger.Warn("write-through notification failed", "path", path, "key", key, "error", err)
	}
	s.logger.Debug("write-through", "path", path, "key", key, "remove", remove, "applied", applied)
	return applied
}

func joinErrors(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return errors.Join(nonNil...)
	}
}
