package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-store/tree"
)

type runCounter struct {
	mu   sync.Mutex
	runs map[string]int
}

func (c *runCounter) hit(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runs == nil {
		c.runs = map[string]int{}
	}
	c.runs[name]++
}

func (c *runCounter) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs[name]
}

func cartState() map[string]any {
	return map[string]any{
		"owner":    "ada",
		"discount": 0,
		"items": []any{
			map[string]any{"id": "a-1", "qty": 2, "price": 3},
			map[string]any{"id": "b-2", "qty": 1, "price": 5},
		},
		"user": map[string]any{"name": "ada", "age": 36},
	}
}

func patchState(t *testing.T, st *Store, values map[string]any) {
	t.Helper()
	require.NoError(t, st.Patch(context.Background(), values))
}

func TestComputedCachesUntilDependencyChanges(t *testing.T) {
	var counter runCounter
	st, err := New(cartState(), WithComputed("name", func(state View) (any, error) {
		counter.hit("name")
		user := state.Get("user").(tree.Container)
		return user.Get("name"), nil
	}))
	require.NoError(t, err)

	for range 3 {
		value, err := st.Get().Computed("name")
		require.NoError(t, err)
		assert.Equal(t, "ada", value)
	}
	assert.Equal(t, 1, counter.get("name"))

	patchState(t, st, map[string]any{"owner": "grace"})
	require.NoError(t, st.Update(context.Background(), func(state tree.Mutable) error {
		state.Get("user").(tree.Mutable).Set("age", 37)
		return nil
	}))
	_, err = st.Get().Computed("name")
	require.NoError(t, err)
	assert.Equal(t, 1, counter.get("name"), "unread paths do not invalidate")

	require.NoError(t, st.Update(context.Background(), func(state tree.Mutable) error {
		state.Get("user").(tree.Mutable).Set("name", "grace")
		return nil
	}))
	value, err := st.Get().Computed("name")
	require.NoError(t, err)
	assert.Equal(t, "grace", value)
	assert.Equal(t, 2, counter.get("name"))
}

func TestNestedComputedsInheritDependencies(t *testing.T) {
	var counter runCounter
	st, err := New(map[string]any{"count": 1, "label": "x"},
		WithComputed("doubled", func(state View) (any, error) {
			counter.hit("doubled")
			return state.Get("count").(int) * 2, nil
		}),
		WithComputed("quadrupled", func(state View) (any, error) {
			counter.hit("quadrupled")
			doubled, err := state.Computed("doubled")
			if err != nil {
				return nil, err
			}
			return doubled.(int) * 2, nil
		}),
	)
	require.NoError(t, err)

	value, err := st.Get().Computed("quadrupled")
	require.NoError(t, err)
	assert.Equal(t, 4, value)

	patchState(t, st, map[string]any{"label": "y"})
	_, err = st.Get().Computed("quadrupled")
	require.NoError(t, err)
	assert.Equal(t, 1, counter.get("quadrupled"))
	assert.Equal(t, 1, counter.get("doubled"))

	patchState(t, st, map[string]any{"count": 3})
	value, err = st.Get().Computed("quadrupled")
	require.NoError(t, err)
	assert.Equal(t, 12, value)
	assert.Equal(t, 2, counter.get("quadrupled"))
	assert.Equal(t, 2, counter.get("doubled"))

	trace, err := st.Get().Explain("quadrupled")
	require.NoError(t, err)
	assert.Equal(t, []string{"count"}, trace.Paths)
}

func TestComputedCycle(t *testing.T) {
	st, err := New(map[string]any{},
		WithComputed("a", func(state View) (any, error) { return state.Computed("b") }),
		WithComputed("b", func(state View) (any, error) { return state.Computed("a") }),
	)
	require.NoError(t, err)

	_, err = st.Get().Computed("a")
	require.ErrorIs(t, err, ErrComputedCycle)
	assert.Contains(t, err.Error(), "a -> b -> a")

	_, err = st.Get().Computed("missing")
	assert.ErrorIs(t, err, ErrUnknownComputed)
}

func TestComputedErrorsAreNotCached(t *testing.T) {
	var counter runCounter
	boom := errors.New("not yet")
	st, err := New(map[string]any{"count": 1}, WithComputed("flaky", func(state View) (any, error) {
		counter.hit("flaky")
		state.Get("count")
		if counter.get("flaky") == 1 {
			return nil, boom
		}
		return "ok", nil
	}))
	require.NoError(t, err)

	_, err = st.Get().Computed("flaky")
	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "flaky", evalErr.Name)
	assert.ErrorIs(t, err, boom)

	value, err := st.Get().Computed("flaky")
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 2, counter.get("flaky"))
}

func TestOlderSnapshotDoesNotReplaceNewerEntry(t *testing.T) {
	var counter runCounter
	st, err := New(map[string]any{"count": 1}, WithComputed("count", func(state View) (any, error) {
		counter.hit("count")
		return state.Get("count"), nil
	}))
	require.NoError(t, err)
	older := st.Get()
	patchState(t, st, map[string]any{"count": 2})
	newer := st.Get()

	value, err := newer.Computed("count")
	require.NoError(t, err)
	assert.Equal(t, 2, value)

	value, err = older.Computed("count")
	require.NoError(t, err)
	assert.Equal(t, 1, value)

	value, err = newer.Computed("count")
	require.NoError(t, err)
	assert.Equal(t, 2, value)
	assert.Equal(t, 2, counter.get("count"))
}

func TestExplainReportsPaths(t *testing.T) {
	st, err := New(cartState(),
		WithComputed("summary", func(state View) (any, error) {
			user := state.Get("user").(tree.Container)
			items := state.Get("items").(tree.Container)
			return fmt.Sprintf("%v:%d:%v", user.Get("name"), items.Len(), state.Has("coupon")), nil
		}),
		WithExprComputed("subtotal", "sum(items, .qty * .price) - discount"),
		WithExprComputed("city", "user.address?.city"),
		WithCELComputed("is_ada", `owner == "ada"`),
	)
	require.NoError(t, err)
	snap := st.Get()

	cases := map[string][]string{
		"summary":  {"coupon?", "user.name", "items.#"},
		"subtotal": {"discount", "items.**"},
		"city":     {"user.address"},
		"is_ada":   {"owner"},
	}
	for name, want := range cases {
		t.Run(name, func(t *testing.T) {
			trace, err := snap.Explain(name)
			require.NoError(t, err)
			assert.Equal(t, name, trace.Name)
			assert.Equal(t, snap.ID(), trace.SnapshotID)
			assert.Equal(t, want, trace.Paths)
		})
	}

	_, err = snap.Explain("missing")
	assert.ErrorIs(t, err, ErrUnknownComputed)
}

func TestTraceJSONRoundTrip(t *testing.T) {
	trace := Trace{Name: "subtotal", SnapshotID: "s-1", Version: 3, Paths: []string{"items.**"}}
	payload, err := trace.ToJSON()
	require.NoError(t, err)

	decoded, err := TraceFromJSON(payload)
	require.NoError(t, err)
	assert.Equal(t, trace, decoded)
}

func TestExpressionComputeds(t *testing.T) {
	registry := NewFunctionRegistry()
	require.NoError(t, registry.Register("shout", func(args ...any) (any, error) {
		return fmt.Sprintf("%v!", args[0]), nil
	}))

	st, err := New(cartState(),
		WithFunctionRegistry(registry),
		WithMetadata(map[string]any{"currency": "EUR"}),
		WithExprComputed("count", "len(items)"),
		WithExprComputed("subtotal", "sum(items, .qty * .price)"),
		WithExprComputed("greeting", "shout(owner)"),
		WithExprComputed("via_call", `call("shout", user.name)`),
		WithExprComputed("currency", "metadata.currency"),
		WithCELComputed("is_ada", `owner == "ada"`),
		WithCELComputed("cel_greeting", `call("shout", owner)`),
		WithRuleComputed("default_engine", "discount + 1"),
	)
	require.NoError(t, err)
	snap := st.Get()

	want := map[string]any{
		"count":          2,
		"subtotal":       11,
		"greeting":       "ada!",
		"via_call":       "ada!",
		"currency":       "EUR",
		"is_ada":         true,
		"cel_greeting":   "ada!",
		"default_engine": 1,
	}
	for name, expected := range want {
		value, err := snap.Computed(name)
		require.NoError(t, err, name)
		assert.EqualValues(t, expected, value, name)
	}
}

func TestExpressionComputedRecomputesOnChange(t *testing.T) {
	var events []EvaluatorLogEvent
	st, err := New(cartState(),
		WithExprComputed("subtotal", "sum(items, .qty * .price)"),
		WithEvaluatorLogger(EvaluatorLoggerFunc(func(event EvaluatorLogEvent) {
			events = append(events, event)
		})),
	)
	require.NoError(t, err)

	value, err := st.Get().Computed("subtotal")
	require.NoError(t, err)
	assert.EqualValues(t, 11, value)

	patchState(t, st, map[string]any{"owner": "grace"})
	_, err = st.Get().Computed("subtotal")
	require.NoError(t, err)

	require.NoError(t, st.Update(context.Background(), func(state tree.Mutable) error {
		items := state.Get("items").(tree.Mutable)
		items.Get("0").(tree.Mutable).Set("qty", 4)
		return nil
	}))
	value, err = st.Get().Computed("subtotal")
	require.NoError(t, err)
	assert.EqualValues(t, 17, value)

	require.Len(t, events, 3)
	assert.False(t, events[0].Cached)
	assert.True(t, events[1].Cached)
	assert.False(t, events[2].Cached)
	for _, event := range events {
		assert.Equal(t, "subtotal", event.Name)
		assert.Equal(t, "expr", event.Engine)
	}
}

func TestExpressionCompileErrors(t *testing.T) {
	_, err := New(map[string]any{}, WithExprComputed("bad", "1 +"))
	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "bad", evalErr.Name)
	assert.Equal(t, "expr", evalErr.Engine)

	_, err = New(map[string]any{}, WithCELComputed("bad", "owner =="))
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "cel", evalErr.Engine)

	_, err = New(map[string]any{}, WithCustomFunction("dup", func(...any) (any, error) { return nil, nil }),
		WithCustomFunction("DUP", func(...any) (any, error) { return nil, nil }))
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestSnapshotEvaluate(t *testing.T) {
	st, err := New(cartState())
	require.NoError(t, err)

	value, err := st.Get().Evaluate("user.age + 1")
	require.NoError(t, err)
	assert.EqualValues(t, 37, value)

	_, err = st.Get().Evaluate("")
	assert.Error(t, err)

	cel, err := New(cartState(), WithEvaluator(NewCELEvaluator()))
	require.NoError(t, err)
	value, err = cel.Get().Evaluate(`user.name + "!"`)
	require.NoError(t, err)
	assert.Equal(t, "ada!", value)
}

func TestProgramCacheSharedAcrossComputeds(t *testing.T) {
	cache := &countingCache{ProgramCache: NewProgramCache()}
	_, err := New(map[string]any{"a": 1},
		WithProgramCache(cache),
		WithExprComputed("one", "a + 1"),
		WithExprComputed("two", "a + 1"),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 2, cache.gets)
}

type countingCache struct {
	ProgramCache
	gets, sets int
}

func (c *countingCache) Get(key string) (any, bool) {
	c.gets++
	return c.ProgramCache.Get(key)
}

func (c *countingCache) Set(key string, value any) {
	c.sets++
	c.ProgramCache.Set(key, value)
}
