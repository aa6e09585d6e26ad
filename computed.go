package store

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-store/track"
	"github.com/goliatone/go-store/tree"
)

type computedDef struct {
	name   string
	engine string
	expr   string
	fn     ComputeFunc
}

type computedEntry struct {
	root    *tree.Object
	am      *track.AccessMap
	value   any
	version uint64
}

// computedCache keeps the latest entry per computed name. Entries are never
// evicted; a newer snapshot's entry is never replaced by an older one.
type computedCache struct {
	mu      sync.Mutex
	entries map[string]*computedEntry
}

func newComputedCache() *computedCache {
	return &computedCache{entries: map[string]*computedEntry{}}
}

func (c *computedCache) lookup(name string) *computedEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[name]
}

func (c *computedCache) promote(name string, entry *computedEntry, pending bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.entries[name]
	if cur != nil && (cur.version > entry.version || (cur.version == entry.version && pending)) {
		return false
	}
	c.entries[name] = entry
	return true
}

// frame is one computed on the evaluation stack of a single read.
type frame struct {
	name   string
	parent *frame
}

func (f *frame) contains(name string) bool {
	for cur := f; cur != nil; cur = cur.parent {
		if cur.name == name {
			return true
		}
	}
	return false
}

func (f *frame) chain(name string) string {
	names := []string{name}
	for cur := f; cur != nil; cur = cur.parent {
		names = append(names, cur.name)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, " -> ")
}

// computedView is the tracked view handed to a computed. Nested Computed
// calls replay the inner computed's accesses into this view.
type computedView struct {
	*track.View
	snap  *Snapshot
	frame *frame
}

func (v *computedView) Computed(name string) (any, error) {
	return v.snap.store.computed(name, v.snap, v.View, v.frame)
}

func (v *computedView) raw() tree.Container {
	c, _ := track.Raw(v.View).(tree.Container)
	return c
}

// computed returns the value of name for snap. A cached entry is reused when
// snap's root is the entry's root, or when nothing the entry read changed
// between the two. into, when set, inherits the computed's dependencies.
func (s *Store) computed(name string, snap *Snapshot, into *track.View, parent *frame) (any, error) {
	def, ok := s.computeds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownComputed, name)
	}
	if parent.contains(name) {
		return nil, fmt.Errorf("%w: %s", ErrComputedCycle, parent.chain(name))
	}

	start := time.Now()
	if entry := s.cache.lookup(name); entry != nil {
		if entry.root == snap.root || !track.Changed(entry.root, snap.root, entry.am) {
			track.Replay(entry.root, entry.am, into)
			s.metrics.computed(name, "hit")
			s.cfg.evalLogger.LogEvaluation(EvaluatorLogEvent{
				Name:     def.name,
				Engine:   def.engineName(),
				Expr:     def.expr,
				Duration: time.Since(start),
				Cached:   true,
			})
			return entry.value, nil
		}
	}

	am := track.NewAccessMap()
	view := &computedView{
		View:  track.Wrap(snap.root, am),
		snap:  snap,
		frame: &frame{name: name, parent: parent},
	}
	value, err := def.fn(view)
	err = wrapEvaluationError(def.name, def.engine, def.expr, err)
	s.cfg.evalLogger.LogEvaluation(EvaluatorLogEvent{
		Name:     def.name,
		Engine:   def.engineName(),
		Expr:     def.expr,
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		s.metrics.computed(name, "error")
		return nil, err
	}
	s.metrics.computed(name, "miss")

	value = tree.Undraft(value)
	track.Replay(snap.root, am, into)
	s.cache.promote(name, &computedEntry{
		root:    snap.root,
		am:      am,
		value:   value,
		version: snap.version,
	}, snap.pending)
	return value, nil
}

func (d computedDef) engineName() string {
	if d.engine == "" {
		return "func"
	}
	return d.engine
}
