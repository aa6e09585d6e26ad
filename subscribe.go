package store

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-store/track"
	"github.com/goliatone/go-store/tree"
)

type listener struct {
	id     uint64
	kind   string
	key    any
	run    func(publication)
	active atomic.Bool
}

// deliver runs the listener, turning a panic into an error so the rest of
// the round still runs.
func (l *listener) deliver(pub publication) (err error) {
	if !l.active.Load() {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s #%d: %v", ErrSubscriberPanic, l.kind, l.id, r)
		}
	}()
	l.run(pub)
	return nil
}

// listenerRegistry keeps listeners in registration order.
type listenerRegistry struct {
	mu     sync.Mutex
	nextID uint64
	items  []*listener
}

func (r *listenerRegistry) add(l *listener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.key != nil {
		for _, existing := range r.items {
			if existing.key == l.key {
				return r.remover(existing)
			}
		}
	}
	r.nextID++
	l.id = r.nextID
	l.active.Store(true)
	r.items = append(r.items, l)
	return r.remover(l)
}

func (r *listenerRegistry) remover(l *listener) func() {
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		l.active.Store(false)
		for i, item := range r.items {
			if item == l {
				r.items = append(r.items[:i:i], r.items[i+1:]...)
				return
			}
		}
	}
}

func (r *listenerRegistry) active() []*listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*listener(nil), r.items...)
}

// Len returns the number of registered subscribers, selectors and watchers.
func (s *Store) Len() int {
	s.listeners.mu.Lock()
	defer s.listeners.mu.Unlock()
	return len(s.listeners.items)
}

// Subscribe calls sub after every publish with the new and previous
// snapshots. Subscribing the same comparable subscriber twice registers it
// once. The returned function unsubscribes; calling it more than once is a
// no-op.
func (s *Store) Subscribe(sub Subscriber) (func(), error) {
	if isNilSubscriber(sub) {
		return nil, notCallable("Subscribe", "subscriber")
	}
	l := &listener{
		kind: "subscriber",
		run: func(pub publication) {
			sub.OnPublish(pub.next, pub.prev)
		},
	}
	if reflect.TypeOf(sub).Comparable() {
		l.key = sub
	}
	return s.listeners.add(l), nil
}

func isNilSubscriber(sub Subscriber) bool {
	if sub == nil {
		return true
	}
	if fn, ok := sub.(SubscriberFunc); ok && fn == nil {
		return true
	}
	v := reflect.ValueOf(sub)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// SubscribeSelect calls fn when the value picked by sel changes identity.
// The selector is memoized: it only runs again when something it read
// changed.
func (s *Store) SubscribeSelect(sel Selector, fn func(next, prev any)) (func(), error) {
	if sel == nil {
		return nil, notCallable("SubscribeSelect", "selector")
	}
	if fn == nil {
		return nil, notCallable("SubscribeSelect", "callback")
	}

	var (
		mu      sync.Mutex
		memo    track.Memo
		last    any
		version uint64
	)
	pick := func(snap *Snapshot) any {
		value, _ := memo.Select(snap.root, func(view *track.View) any {
			return sel(&computedView{View: view, snap: snap})
		})
		return value
	}

	l := &listener{
		kind: "selector",
		run: func(pub publication) {
			mu.Lock()
			if pub.next.version <= version {
				mu.Unlock()
				return
			}
			version = pub.next.version
			next := pick(pub.next)
			if tree.Same(next, last) {
				mu.Unlock()
				return
			}
			prev := last
			last = next
			mu.Unlock()
			fn(next, prev)
		},
	}

	// Registered before the baseline is read: publications older than the
	// baseline are skipped, newer ones reach the listener.
	mu.Lock()
	unsubscribe := s.listeners.add(l)
	current := s.Get()
	last, version = pick(current), current.version
	mu.Unlock()
	return unsubscribe, nil
}

// Watch runs fn immediately, recording what it reads from state, then again
// after each publish that changed something it read. prev is the snapshot
// before that publish; reads through prev are not tracked.
func (s *Store) Watch(fn WatchFunc) (func(), error) {
	if fn == nil {
		return nil, notCallable("Watch", "watcher")
	}

	w := &watcher{fn: fn}
	unwatch := s.listeners.add(&listener{
		kind: "watcher",
		run:  w.publish,
	})
	if err := w.first(s); err != nil {
		unwatch()
		return nil, err
	}
	return unwatch, nil
}

type watcher struct {
	mu      sync.Mutex
	fn      WatchFunc
	root    *tree.Object
	am      *track.AccessMap
	version uint64
	ready   bool
}

// first runs fn against the current snapshot, then again until no publish
// that landed meanwhile touched what it read. fn runs without w.mu so it may
// write to the store; publications delivered before the watcher is ready
// are covered by the re-check.
func (w *watcher) first(s *Store) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: watcher: %v", ErrSubscriberPanic, r)
		}
	}()
	snap := s.Get()
	w.run(snap, snap)
	for {
		w.mu.Lock()
		latest := s.Get()
		if !w.stale(latest) {
			w.ready = true
			w.mu.Unlock()
			return nil
		}
		w.mu.Unlock()
		prev := snap
		snap = latest
		w.run(snap, prev)
	}
}

func (w *watcher) publish(pub publication) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.ready || !w.stale(pub.next) {
		return
	}
	w.run(pub.next, pub.prev)
}

// stale reports whether snap is newer than the last run and changed
// something the watcher read.
func (w *watcher) stale(snap *Snapshot) bool {
	return snap.version > w.version && track.Changed(w.root, snap.root, w.am)
}

func (w *watcher) run(next, prev *Snapshot) {
	am := track.NewAccessMap()
	w.root, w.am, w.version = next.root, am, next.version
	w.fn(&computedView{View: track.Wrap(next.root, am), snap: next}, prev)
}
