package draft

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/goliatone/go-store/track"
	"github.com/goliatone/go-store/tree"
)

// ErrClosed is returned when committing a draft twice.
var ErrClosed = errors.New("draft: already committed")

// ErrCommitFailed wraps a failure while materializing the new root. Nothing
// from the failed draft should be published.
var ErrCommitFailed = errors.New("draft: commit failed")

// Fallback receives writes made through nodes of a closed draft. path is the
// key path from the root to the written node.
type Fallback func(path []string, key string, value any, remove bool) bool

// Option configures a Draft.
type Option func(*Draft)

// WithFallback forwards writes made after Commit to fn.
func WithFallback(fn Fallback) Option {
	return func(d *Draft) {
		d.fallback = fn
	}
}

// WithLogger sets the logger used for rejected writes.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Draft) {
		if logger != nil {
			d.logger = logger
		}
	}
}

type op struct {
	remove bool
	value  any
}

type record struct {
	ops    map[string]op
	order  []string
	length int
	cut    int
	dirty  bool
}

type edge struct {
	parent tree.Container
	key    string
}

type nodeKey struct {
	target   tree.Container
	readonly bool
}

// Draft accumulates pending writes against one snapshot root.
type Draft struct {
	mu       sync.Mutex
	origin   tree.Container
	base     tree.Container
	records  map[tree.Container]*record
	nodes    map[nodeKey]*Node
	parents  map[tree.Container][]edge
	indexed  map[tree.Container]struct{}
	pending  []tree.Container
	writes   int
	replaced bool

	preview       tree.Container
	previewMemo   map[tree.Container]tree.Container
	previewWrites int

	closed bool
	result tree.Container
	memo   map[tree.Container]tree.Container

	fallback Fallback
	logger   *slog.Logger
}

// New starts a draft over root.
func New(root tree.Container, opts ...Option) *Draft {
	d := &Draft{
		origin:        root,
		base:          root,
		records:       map[tree.Container]*record{},
		nodes:         map[nodeKey]*Node{},
		parents:       map[tree.Container][]edge{},
		indexed:       map[tree.Container]struct{}{},
		previewWrites: -1,
		logger:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Root returns the mutable node for the draft root.
func (d *Draft) Root() *Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.node(d.base, false)
}

// Base returns the root the draft currently writes against.
func (d *Draft) Base() tree.Container {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.base
}

// Writes returns the number of accepted writes.
func (d *Draft) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

// Closed reports whether the draft has been committed.
func (d *Draft) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Replace discards pending operations and makes root the new base.
func (d *Draft) Replace(root tree.Container) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.base = root
	d.records = map[tree.Container]*record{}
	d.nodes = map[nodeKey]*Node{}
	d.parents = map[tree.Container][]edge{}
	d.indexed = map[tree.Container]struct{}{}
	d.pending = nil
	d.replaced = true
	d.writes++
	return true
}

// Commit materializes the new root and closes the draft. The boolean reports
// whether the result differs from the root the draft started from.
func (d *Draft) Commit() (root tree.Container, changed bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return d.result, false, ErrClosed
	}

	defer func() {
		if r := recover(); r != nil {
			d.closed = true
			d.result = d.origin
			root, changed = d.origin, false
			err = fmt.Errorf("%w: %v", ErrCommitFailed, r)
		}
	}()

	memo := map[tree.Container]tree.Container{}
	out, _ := d.materialize(d.base, memo).(tree.Container)
	d.memo = memo
	d.result = out
	d.closed = true
	return out, !tree.Same(out, d.origin), nil
}

// Preview materializes the pending state without closing the draft. The
// result is cached until the next accepted write.
func (d *Draft) Preview() tree.Container {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return d.result
	}
	root, _ := d.previewLocked()
	return root
}

func (d *Draft) previewLocked() (tree.Container, map[tree.Container]tree.Container) {
	if d.previewWrites == d.writes && d.previewMemo != nil {
		return d.preview, d.previewMemo
	}
	memo := map[tree.Container]tree.Container{}
	d.preview, _ = d.materialize(d.base, memo).(tree.Container)
	d.previewMemo = memo
	d.previewWrites = d.writes
	return d.preview, memo
}

// Resolve maps a draft node to its materialized node: the committed copy
// after Commit, a preview before. Other values are returned unchanged.
func (d *Draft) Resolve(value any) any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolveLocked(value)
}

func (d *Draft) resolveLocked(value any) any {
	if d.closed {
		return d.materialize(value, d.memo)
	}
	_, memo := d.previewLocked()
	return d.materialize(value, memo)
}

func (d *Draft) node(target tree.Container, readonly bool) *Node {
	key := nodeKey{target: target, readonly: readonly}
	if n, ok := d.nodes[key]; ok {
		return n
	}
	n := &Node{d: d, target: target, readonly: readonly}
	d.nodes[key] = n
	return n
}

func (d *Draft) record(target tree.Container) *record {
	rec, ok := d.records[target]
	if !ok {
		rec = &record{length: target.Len(), cut: target.Len()}
		d.records[target] = rec
	}
	return rec
}

// lookup resolves key on target, pending operations first.
func (d *Draft) lookup(target tree.Container, key string) (any, bool) {
	if rec := d.records[target]; rec != nil {
		if o, ok := rec.ops[key]; ok {
			if o.remove {
				return nil, false
			}
			return o.value, true
		}
		if target.Kind() == tree.KindList {
			i, ok := tree.ParseIndex(key)
			if !ok || i >= rec.length {
				return nil, false
			}
			if i >= rec.cut || i >= target.Len() {
				return nil, true
			}
		}
	}
	if !target.Has(key) {
		return nil, false
	}
	return target.Get(key), true
}

func (d *Draft) link(child, parent tree.Container, key string) {
	for _, e := range d.parents[child] {
		if e.parent == parent && e.key == key {
			return
		}
	}
	d.parents[child] = append(d.parents[child], edge{parent: parent, key: key})
}

// index records the back-references of the base tree and of every container
// written since the last call. Each container is walked once per draft.
func (d *Draft) index() {
	stack := append([]tree.Container{d.base}, d.pending...)
	d.pending = nil
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := d.indexed[c]; ok {
			continue
		}
		d.indexed[c] = struct{}{}
		for _, key := range c.Keys() {
			child, ok := c.Get(key).(tree.Container)
			if !ok {
				continue
			}
			d.link(child, c, key)
			stack = append(stack, child)
		}
	}
}

// linked reports whether parent[key] still refers to child.
func (d *Draft) linked(e edge, child tree.Container) bool {
	value, ok := d.lookup(e.parent, e.key)
	if !ok {
		return false
	}
	if n, isNode := value.(*Node); isNode {
		return n.target == child
	}
	c, isContainer := value.(tree.Container)
	return isContainer && c == child
}

func (d *Draft) markDirty(target tree.Container) {
	rec := d.record(target)
	if rec.dirty {
		return
	}
	rec.dirty = true
	for _, e := range d.parents[target] {
		if d.linked(e, target) {
			d.markDirty(e.parent)
		}
	}
}

func (d *Draft) sealed(target tree.Container, key string) bool {
	obj, ok := target.(*tree.Object)
	return ok && obj.Sealed(key)
}

// normalize converts a value written into the draft into something the
// draft can store: nodes of this draft by reference, tracked views by their
// target, everything else frozen.
func (d *Draft) normalize(value any) (any, error) {
	switch v := value.(type) {
	case *Node:
		if v.d == d {
			return v, nil
		}
		return v.Unwrap(), nil
	case *track.View:
		return track.Raw(v), nil
	}
	return tree.Freeze(value)
}

func (d *Draft) write(n *Node, key string, value any, remove bool) bool {
	var normalized any
	if !remove {
		v, err := d.normalize(value)
		if err != nil {
			d.logger.Debug("draft write rejected", "key", key, "error", err)
			return false
		}
		normalized = v
	}

	d.mu.Lock()
	if d.closed {
		d.index()
		path, ok := d.pathOf(n.target, map[tree.Container]struct{}{})
		fallback := d.fallback
		d.mu.Unlock()
		if !ok || fallback == nil {
			return false
		}
		return fallback(path, key, normalized, remove)
	}
	defer d.mu.Unlock()

	if n.readonly || d.sealed(n.target, key) {
		d.logger.Debug("draft write rejected", "key", key, "reason", "sealed")
		return false
	}

	target := n.target
	isList := target.Kind() == tree.KindList
	index := 0
	if isList {
		i, ok := tree.ParseIndex(key)
		if !ok {
			d.logger.Debug("draft write rejected", "key", key, "reason", "invalid index")
			return false
		}
		index = i
	}

	current, exists := d.lookup(target, key)
	if remove {
		if !exists {
			return true
		}
	} else if exists && sameRef(current, normalized) {
		return true
	}

	rec := d.record(target)
	if rec.ops == nil {
		rec.ops = map[string]op{}
	}
	if _, ok := rec.ops[key]; !ok {
		rec.order = append(rec.order, key)
	}
	rec.ops[key] = op{remove: remove, value: normalized}
	if isList && !remove && index >= rec.length {
		rec.length = index + 1
	}
	switch v := normalized.(type) {
	case *Node:
		d.link(v.target, target, key)
	case tree.Container:
		d.link(v, target, key)
		d.pending = append(d.pending, v)
	}
	d.writes++
	d.index()
	d.markDirty(target)
	return true
}

func (d *Draft) setLen(n *Node, length int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || n.readonly || length < 0 || n.target.Kind() != tree.KindList {
		return false
	}
	rec := d.record(n.target)
	if rec.length == length {
		return true
	}
	rec.length = length
	if length < rec.cut {
		rec.cut = length
	}
	for key := range rec.ops {
		if i, ok := tree.ParseIndex(key); ok && i >= length {
			delete(rec.ops, key)
		}
	}
	d.writes++
	d.index()
	d.markDirty(n.target)
	return true
}

func (d *Draft) pathOf(target tree.Container, seen map[tree.Container]struct{}) ([]string, bool) {
	if target == d.base {
		return []string{}, true
	}
	if _, ok := seen[target]; ok {
		return nil, false
	}
	seen[target] = struct{}{}
	for _, e := range d.parents[target] {
		if !d.linked(e, target) {
			continue
		}
		if path, ok := d.pathOf(e.parent, seen); ok {
			return append(path, e.key), true
		}
	}
	return nil, false
}

// materialize returns the committed form of value. Clean nodes are returned
// as they are; dirty nodes are copied once per memo, the copy being
// registered before its children are built so cycles close onto it.
func (d *Draft) materialize(value any, memo map[tree.Container]tree.Container) any {
	switch v := value.(type) {
	case *Node:
		return d.materialize(v.target, memo)
	case *tree.Object:
		if out, ok := memo[v]; ok {
			return out
		}
		rec := d.records[v]
		if rec == nil || !rec.dirty {
			return v
		}
		b := tree.EditObject(v)
		memo[v] = b.Ref()
		for _, key := range v.Keys() {
			if o, ok := rec.ops[key]; ok {
				if o.remove {
					b.Delete(key)
				} else {
					b.Set(key, d.materialize(o.value, memo))
				}
				continue
			}
			if child, ok := v.Get(key).(tree.Container); ok {
				b.Set(key, d.materialize(child, memo))
			}
		}
		for _, key := range rec.order {
			if v.Has(key) {
				continue
			}
			if o := rec.ops[key]; !o.remove {
				b.Set(key, d.materialize(o.value, memo))
			}
		}
		return b.Build()
	case *tree.List:
		if out, ok := memo[v]; ok {
			return out
		}
		rec := d.records[v]
		if rec == nil || !rec.dirty {
			return v
		}
		b := tree.EditList(v)
		memo[v] = b.Ref()
		b.Truncate(rec.cut)
		b.Truncate(rec.length)
		for i := 0; i < rec.length; i++ {
			if o, ok := rec.ops[strconv.Itoa(i)]; ok {
				if o.remove {
					b.Set(i, nil)
				} else {
					b.Set(i, d.materialize(o.value, memo))
				}
				continue
			}
			if i >= rec.cut {
				continue
			}
			if child, ok := v.At(i).(tree.Container); ok {
				b.Set(i, d.materialize(child, memo))
			}
		}
		return b.Build()
	default:
		return value
	}
}

func sameRef(current, next any) bool {
	if n, ok := current.(*Node); ok {
		current = n.target
	}
	if n, ok := next.(*Node); ok {
		next = n.target
	}
	return tree.Same(current, next)
}
