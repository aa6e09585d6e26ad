package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-store/pkg/activity"
	"github.com/goliatone/go-store/tree"
)

// Store holds one immutable state tree and publishes a new snapshot for
// every batch of writes that changes it. A Store is safe for concurrent use:
// batches are serialized, reads never block on writers for longer than a
// pointer swap.
type Store struct {
	cfg       storeConfig
	logger    *slog.Logger
	computeds map[string]computedDef
	actions   map[string]Action
	cache     *computedCache
	metrics   *storeMetrics
	emitter   *activity.Emitter

	// writeSem serializes batches; a send acquires it.
	writeSem chan struct{}

	stateMu sync.RWMutex
	current *Snapshot
	initial *Snapshot
	version uint64

	listeners listenerRegistry
	queue     notifyQueue
}

type publication struct {
	next   *Snapshot
	prev   *Snapshot
	source string
	action string
	actor  activity.Actor
}

// New creates a store holding initial, which must freeze to an object: a
// map with string keys, a struct (converted through its JSON form), a
// *tree.Object or another store's *Snapshot.
func New(initial any, opts ...Option) (*Store, error) {
	cfg := applyOptions(opts)
	if err := errors.Join(cfg.optionErrs...); err != nil {
		return nil, err
	}
	root, err := freezeState(initial)
	if err != nil {
		return nil, err
	}

	metrics, err := newStoreMetrics(cfg.name, cfg.registerer)
	if err != nil {
		return nil, fmt.Errorf("store: register metrics: %w", err)
	}

	s := &Store{
		cfg:       cfg,
		logger:    cfg.logger.With("store", cfg.name),
		computeds: map[string]computedDef{},
		actions:   map[string]Action{},
		cache:     newComputedCache(),
		metrics:   metrics,
		emitter:   activity.NewEmitter(cfg.name, activity.DefaultChannel, cfg.activityHooks),
		writeSem:  make(chan struct{}, 1),
	}

	for _, decl := range cfg.actions {
		if decl.fn == nil {
			return nil, notCallable("WithAction", fmt.Sprintf("action %q", decl.name))
		}
		if _, exists := s.actions[decl.name]; exists {
			return nil, fmt.Errorf("%w: action %q", ErrDuplicateName, decl.name)
		}
		s.actions[decl.name] = decl.fn
	}

	evaluators := map[string]Evaluator{}
	for _, decl := range cfg.computeds {
		if _, exists := s.computeds[decl.name]; exists {
			return nil, fmt.Errorf("%w: computed %q", ErrDuplicateName, decl.name)
		}
		def, err := s.declare(decl, evaluators)
		if err != nil {
			return nil, err
		}
		s.computeds[decl.name] = def
	}

	snap := &Snapshot{store: s, id: uuid.NewString(), root: root}
	s.current, s.initial = snap, snap
	return s, nil
}

func (s *Store) declare(decl computedDecl, evaluators map[string]Evaluator) (computedDef, error) {
	if decl.fn != nil {
		return computedDef{name: decl.name, fn: decl.fn}, nil
	}
	if decl.expr == "" {
		return computedDef{}, notCallable("WithComputed", fmt.Sprintf("computed %q", decl.name))
	}

	evaluator, ok := evaluators[decl.engine]
	if !ok {
		evaluator = s.evaluatorFor(decl.engine)
		evaluators[decl.engine] = evaluator
	}
	engine := decl.engine
	if engine == "" {
		engine = evaluatorEngineName(evaluator)
	}
	if evaluator == nil {
		return computedDef{}, fmt.Errorf("%w: computed %q needs the %s engine", ErrNoEvaluator, decl.name, engine)
	}

	rule, err := evaluator.Compile(decl.expr)
	if err != nil {
		return computedDef{}, wrapEvaluationError(decl.name, engine, decl.expr, err)
	}
	metadata := s.cfg.metadata
	return computedDef{
		name:   decl.name,
		engine: engine,
		expr:   decl.expr,
		fn: func(state View) (any, error) {
			return rule.Evaluate(RuleContext{State: state, Metadata: maps.Clone(metadata)})
		},
	}, nil
}

// Name returns the store's name.
func (s *Store) Name() string { return s.cfg.name }

// Get returns the current snapshot.
func (s *Store) Get() *Snapshot {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.current
}

// GetInitialState returns the snapshot the store was created with.
func (s *Store) GetInitialState() *Snapshot {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.initial
}

// publishLocked installs root as the current state. Callers hold writeSem.
func (s *Store) publishLocked(ctx context.Context, root *tree.Object, source, action string) {
	s.stateMu.Lock()
	prev := s.current
	s.version++
	next := &Snapshot{store: s, id: uuid.NewString(), version: s.version, root: root}
	s.current = next
	s.stateMu.Unlock()

	s.metrics.published(source)
	s.logger.Debug("snapshot published",
		"version", next.version,
		"snapshot_id", next.id,
		"source", source,
		"action", action,
	)
	actor, _ := activity.ActorFrom(ctx)
	s.queue.push(publication{next: next, prev: prev, source: source, action: action, actor: actor})
}

// notifyQueue delivers publications in publish order. Whoever finds the
// queue idle drains it, including publications made by subscribers while
// draining.
type notifyQueue struct {
	mu       sync.Mutex
	pending  []publication
	draining bool
}

func (q *notifyQueue) push(pub publication) {
	q.mu.Lock()
	q.pending = append(q.pending, pub)
	q.mu.Unlock()
}

func (q *notifyQueue) next() (publication, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		q.draining = false
		return publication{}, false
	}
	pub := q.pending[0]
	q.pending = q.pending[1:]
	return pub, true
}

func (q *notifyQueue) claim() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.draining || len(q.pending) == 0 {
		return false
	}
	q.draining = true
	return true
}

func (s *Store) drain(ctx context.Context) error {
	if !s.queue.claim() {
		return nil
	}
	var errs []error
	for {
		pub, ok := s.queue.next()
		if !ok {
			return errors.Join(errs...)
		}
		if err := s.notify(ctx, pub); err != nil {
			errs = append(errs, err)
		}
	}
}

func (s *Store) notify(ctx context.Context, pub publication) error {
	start := time.Now()
	var errs []error
	for _, l := range s.listeners.active() {
		if err := l.deliver(pub); err != nil {
			s.metrics.subscriberPanic()
			s.logger.Error("subscriber panicked", "listener", l.kind, "version", pub.next.version, "error", err)
			errs = append(errs, err)
		}
	}
	s.metrics.notified(time.Since(start))
	s.emitPublished(ctx, pub)
	return errors.Join(errs...)
}

// freezeState converts a caller-supplied state into a root object.
func freezeState(value any) (*tree.Object, error) {
	switch v := value.(type) {
	case nil:
		return nil, fmt.Errorf("%w: got nil", ErrInvalidState)
	case *Snapshot:
		return v.root, nil
	case tree.Container, tree.Unwrapper:
	default:
		if !isStruct(value) {
			break
		}
		buffer, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		var payload map[string]any
		if err := json.Unmarshal(buffer, &payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		value = payload
	}
	root, err := tree.FreezeObject(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return root, nil
}

func isStruct(value any) bool {
	t := reflect.TypeOf(value)
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

// changedKeys lists top-level keys whose value differs between prev and
// next, including removed keys.
func changedKeys(prev, next *Snapshot) []string {
	var keys []string
	for _, key := range next.root.Keys() {
		if !prev.root.Has(key) || !tree.Same(prev.root.Get(key), next.root.Get(key)) {
			keys = append(keys, key)
		}
	}
	for _, key := range prev.root.Keys() {
		if !next.root.Has(key) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}
