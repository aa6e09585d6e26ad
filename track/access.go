package track

import (
	"sync"

	"github.com/goliatone/go-store/tree"
)

// Record lists the operations performed against one node.
type Record struct {
	reads   []string
	readSet map[string]struct{}
	has     []string
	hasSet  map[string]struct{}
	keys    bool
	size    bool
	whole   bool
}

func (r *Record) read(key string) {
	if r.readSet == nil {
		r.readSet = map[string]struct{}{}
	}
	if _, ok := r.readSet[key]; ok {
		return
	}
	r.readSet[key] = struct{}{}
	r.reads = append(r.reads, key)
}

func (r *Record) check(key string) {
	if r.hasSet == nil {
		r.hasSet = map[string]struct{}{}
	}
	if _, ok := r.hasSet[key]; ok {
		return
	}
	r.hasSet[key] = struct{}{}
	r.has = append(r.has, key)
}

// Reads returns the keys read by value, in first-read order.
func (r *Record) Reads() []string {
	return append([]string(nil), r.reads...)
}

// Whole reports whether the node escaped the computation.
func (r *Record) Whole() bool {
	return r.whole
}

func (r *Record) empty() bool {
	return len(r.reads) == 0 && len(r.has) == 0 && !r.keys && !r.size
}

// AccessMap is the per-evaluation record of reads, keyed by node identity.
// It is safe for concurrent use, although a single evaluation normally owns
// it exclusively.
type AccessMap struct {
	mu      sync.Mutex
	records map[tree.Container]*Record
	views   map[tree.Container]*View
}

// NewAccessMap returns an empty access map.
func NewAccessMap() *AccessMap {
	return &AccessMap{
		records: map[tree.Container]*Record{},
		views:   map[tree.Container]*View{},
	}
}

// Wrap returns a tracked view over root recording into am.
func Wrap(root tree.Container, am *AccessMap) *View {
	if am == nil {
		am = NewAccessMap()
	}
	target, _ := Raw(root).(tree.Container)
	return am.wrap(target)
}

// Lookup returns the record kept for node, or nil.
func (am *AccessMap) Lookup(node tree.Container) *Record {
	if am == nil {
		return nil
	}
	am.mu.Lock()
	defer am.mu.Unlock()
	return am.records[node]
}

// Len returns the number of nodes with recorded operations.
func (am *AccessMap) Len() int {
	if am == nil {
		return 0
	}
	am.mu.Lock()
	defer am.mu.Unlock()
	return len(am.records)
}

func (am *AccessMap) wrap(target tree.Container) *View {
	am.mu.Lock()
	defer am.mu.Unlock()
	if view, ok := am.views[target]; ok {
		return view
	}
	view := &View{target: target, am: am}
	am.views[target] = view
	return view
}

func (am *AccessMap) record(target tree.Container, fn func(*Record)) {
	am.mu.Lock()
	defer am.mu.Unlock()
	rec, ok := am.records[target]
	if !ok {
		rec = &Record{}
		am.records[target] = rec
	}
	fn(rec)
}

// Raw strips tracked views, returning the underlying node. Other values are
// returned unchanged. Raw does not mark the node as escaped.
func Raw(value any) any {
	if view, ok := value.(*View); ok && view != nil {
		return view.target
	}
	return value
}
