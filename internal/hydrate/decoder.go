// Package hydrate turns exported store state into typed Go values.
package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Source names the snapshot, and the path inside it, a value was exported
// from. It labels every error the decoder returns.
type Source struct {
	Store      string
	SnapshotID string
	Version    uint64
	Path       string
}

func (s Source) String() string {
	label := s.SnapshotID
	if s.Store != "" {
		label = s.Store + "@" + label
	}
	if s.Path != "" {
		label += ":" + s.Path
	}
	return label
}

// Transform rewrites the exported value before it is decoded, for example
// to rename keys or expand shorthand. The value is owned by the decoder.
type Transform func(src Source, value any) (any, error)

// Check validates or completes the decoded value.
type Check[T any] func(src Source, out *T) error

// Option configures a Decoder.
type Option[T any] func(*Decoder[T])

// Decoder converts exported state into T through its JSON form.
type Decoder[T any] struct {
	transforms []Transform
	checks     []Check[T]
	strict     bool
	useNumber  bool
}

// Strict rejects object keys T does not declare.
func Strict[T any]() Option[T] {
	return func(d *Decoder[T]) { d.strict = true }
}

// UseNumber decodes numbers held in interface values as json.Number.
func UseNumber[T any]() Option[T] {
	return func(d *Decoder[T]) { d.useNumber = true }
}

// WithTransform appends fn to the transforms run before decoding.
func WithTransform[T any](fn Transform) Option[T] {
	return func(d *Decoder[T]) {
		if fn != nil {
			d.transforms = append(d.transforms, fn)
		}
	}
}

// WithCheck appends fn to the checks run after decoding.
func WithCheck[T any](fn Check[T]) Option[T] {
	return func(d *Decoder[T]) {
		if fn != nil {
			d.checks = append(d.checks, fn)
		}
	}
}

func New[T any](opts ...Option[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode runs the transforms over value, decodes the result into T and
// runs the checks on it. value must be plain exported data: maps, slices
// and scalars.
func (d *Decoder[T]) Decode(src Source, value any) (T, error) {
	var zero T
	if value == nil {
		return zero, fmt.Errorf("hydrate: nothing to decode at %s", src)
	}

	for i, transform := range d.transforms {
		next, err := transform(src, value)
		if err != nil {
			return zero, fmt.Errorf("hydrate: transform %d at %s: %w", i, src, err)
		}
		if next != nil {
			value = next
		}
	}

	buffer, err := json.Marshal(value)
	if err != nil {
		return zero, fmt.Errorf("hydrate: encode %s: %w", src, err)
	}
	decoder := json.NewDecoder(bytes.NewReader(buffer))
	if d.strict {
		decoder.DisallowUnknownFields()
	}
	if d.useNumber {
		decoder.UseNumber()
	}
	var out T
	if err := decoder.Decode(&out); err != nil {
		return zero, fmt.Errorf("hydrate: decode %s: %w", src, err)
	}

	for _, check := range d.checks {
		if err := check(src, &out); err != nil {
			return zero, fmt.Errorf("hydrate: check at %s: %w", src, err)
		}
	}
	return out, nil
}
