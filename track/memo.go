package track

import (
	"sync"

	"github.com/goliatone/go-store/tree"
)

// Memo caches the last result of a selector together with the state it ran
// against and the accesses it made. It holds a single entry.
type Memo struct {
	mu    sync.Mutex
	state tree.Container
	am    *AccessMap
	value any
	valid bool
}

// Select returns the memoized value when nothing the selector read changed
// between the cached state and state; otherwise it runs fn against a fresh
// tracked view and caches the result. The boolean reports whether fn ran.
//
// Values returned by fn are undrafted, so a view handed back by the selector
// becomes its node and is marked whole.
func (m *Memo) Select(state tree.Container, fn func(*View) any) (any, bool) {
	m.mu.Lock()
	if m.valid && !Changed(m.state, state, m.am) {
		value := m.value
		m.mu.Unlock()
		return value, false
	}
	m.mu.Unlock()

	am := NewAccessMap()
	value := tree.Undraft(fn(Wrap(state, am)))

	m.mu.Lock()
	m.state, m.am, m.value, m.valid = Raw(state).(tree.Container), am, value, true
	m.mu.Unlock()
	return value, true
}

// Peek returns the cached value without evaluating.
func (m *Memo) Peek() (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, m.valid
}

// Reset drops the cached entry.
func (m *Memo) Reset() {
	m.mu.Lock()
	m.state, m.am, m.value, m.valid = nil, nil, nil, false
	m.mu.Unlock()
}
