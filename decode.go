package store

import (
	"fmt"

	"github.com/goliatone/go-store/internal/hydrate"
	"github.com/goliatone/go-store/tree"
)

// DecodeOption configures Decode and DecodeStrict.
type DecodeOption[T any] func(*decodeConfig[T])

type decodeConfig[T any] struct {
	snap *Snapshot
	path string
	opts []hydrate.Option[T]
}

// DecodeAt decodes the value at a dotted path instead of the whole state.
// A path that does not resolve is an error.
func DecodeAt[T any](path string) DecodeOption[T] {
	return func(c *decodeConfig[T]) { c.path = path }
}

// DecodeUseNumber keeps numbers held in interface values as json.Number.
func DecodeUseNumber[T any]() DecodeOption[T] {
	return func(c *decodeConfig[T]) { c.opts = append(c.opts, hydrate.UseNumber[T]()) }
}

// DecodeTransform rewrites the exported value before it is decoded. fn
// receives a private copy and may change it in place; a nil result keeps
// the value it was given.
func DecodeTransform[T any](fn func(value any) (any, error)) DecodeOption[T] {
	return func(c *decodeConfig[T]) {
		if fn == nil {
			return
		}
		c.opts = append(c.opts, hydrate.WithTransform[T](func(_ hydrate.Source, value any) (any, error) {
			return fn(value)
		}))
	}
}

// DecodeCheck validates or completes the decoded value. Checks run in the
// order they were given; the first error fails the decode.
func DecodeCheck[T any](fn func(snap *Snapshot, out *T) error) DecodeOption[T] {
	return func(c *decodeConfig[T]) {
		if fn == nil {
			return
		}
		c.opts = append(c.opts, hydrate.WithCheck[T](func(_ hydrate.Source, out *T) error {
			return fn(c.snap, out)
		}))
	}
}

// Decode converts the state of snap into T through its JSON form. Numbers
// decode into whatever numeric type T declares.
func Decode[T any](snap *Snapshot, opts ...DecodeOption[T]) (T, error) {
	return decode(snap, false, opts)
}

// DecodeStrict is Decode that fails when the state holds keys T does not
// declare.
func DecodeStrict[T any](snap *Snapshot, opts ...DecodeOption[T]) (T, error) {
	return decode(snap, true, opts)
}

func decode[T any](snap *Snapshot, strict bool, opts []DecodeOption[T]) (T, error) {
	var zero T
	if snap == nil {
		return zero, fmt.Errorf("%w: nil snapshot", ErrInvalidState)
	}

	cfg := &decodeConfig[T]{snap: snap}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if strict {
		cfg.opts = append(cfg.opts, hydrate.Strict[T]())
	}

	src := hydrate.Source{SnapshotID: snap.id, Version: snap.version, Path: cfg.path}
	if snap.store != nil {
		src.Store = snap.store.Name()
	}

	var value any = snap.Export()
	if cfg.path != "" {
		found, ok := snap.Lookup(cfg.path)
		if !ok {
			return zero, fmt.Errorf("store: decode %s: path not found", src)
		}
		value = tree.Export(found)
	}
	return hydrate.New(cfg.opts...).Decode(src, value)
}
