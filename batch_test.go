package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-store/tree"
)

func publishCounter(t *testing.T, st *Store) *int {
	t.Helper()
	var n int
	_, err := st.Subscribe(SubscriberFunc(func(*Snapshot, *Snapshot) { n++ }))
	require.NoError(t, err)
	return &n
}

func TestDispatchWithActionContextJoinsBatch(t *testing.T) {
	var st *Store
	st = counterStore(t, WithAction("viaContext", func(ctx context.Context, tx *Tx, _ ...any) (any, error) {
		for range 3 {
			if _, err := st.Dispatch(ctx, "increment"); err != nil {
				return nil, err
			}
		}
		require.NoError(t, st.Patch(tx.Context(), map[string]any{"label": "three"}))
		assert.Equal(t, 0, st.Get().Get("count"), "nothing is visible before the batch closes")
		return nil, nil
	}))
	publishes := publishCounter(t, st)

	_, err := st.Dispatch(context.Background(), "viaContext")
	require.NoError(t, err)

	assert.Equal(t, 1, *publishes)
	assert.Equal(t, 3, st.Get().Get("count"))
	assert.Equal(t, "three", st.Get().Get("label"))
}

func TestTxSetReplacesPendingState(t *testing.T) {
	st := counterStore(t, WithAction("reset", func(_ context.Context, tx *Tx, _ ...any) (any, error) {
		stale := tx.State()
		stale.Set("count", 99)
		if err := tx.Set(map[string]any{"count": 100}); err != nil {
			return nil, err
		}
		stale.Set("count", 42)
		assert.Equal(t, 100, tx.State().Get("count"))
		tx.State().Set("fresh", true)
		return nil, nil
	}))

	_, err := st.Dispatch(context.Background(), "reset")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": 100, "fresh": true}, st.Get().Export())
}

func TestNestedActionFailure(t *testing.T) {
	boom := errors.New("boom")
	st := counterStore(t,
		WithAction("fail", func(_ context.Context, tx *Tx, _ ...any) (any, error) {
			tx.State().Set("failed", true)
			return nil, boom
		}),
		WithAction("outer", func(_ context.Context, tx *Tx, _ ...any) (any, error) {
			if _, err := tx.Dispatch("increment"); err != nil {
				return nil, err
			}
			return tx.Dispatch("fail")
		}),
	)
	publishes := publishCounter(t, st)

	_, err := st.Dispatch(context.Background(), "outer")
	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, "outer", actionErr.Action)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 1, *publishes)
	assert.Equal(t, 1, st.Get().Get("count"))
	assert.Equal(t, true, st.Get().Get("failed"))
}

func TestPanicPublishesThenPropagates(t *testing.T) {
	st := counterStore(t, WithAction("explode", func(_ context.Context, tx *Tx, _ ...any) (any, error) {
		tx.State().Set("count", 5)
		panic("kaboom")
	}))
	publishes := publishCounter(t, st)

	assert.PanicsWithValue(t, "kaboom", func() {
		_, _ = st.Dispatch(context.Background(), "explode")
	})
	assert.Equal(t, 1, *publishes)
	assert.Equal(t, 5, st.Get().Get("count"))

	// the store is still usable
	_, err := st.Dispatch(context.Background(), "increment")
	require.NoError(t, err)
	assert.Equal(t, 6, st.Get().Get("count"))
}

func TestWritesAfterBatchClosePublishIndividually(t *testing.T) {
	var (
		leaked tree.Mutable
		kept   *Tx
	)
	st := counterStore(t, WithAction("leak", func(_ context.Context, tx *Tx, _ ...any) (any, error) {
		leaked = tx.State()
		kept = tx
		return nil, nil
	}))
	publishes := publishCounter(t, st)

	_, err := st.Dispatch(context.Background(), "leak")
	require.NoError(t, err)
	assert.Zero(t, *publishes)

	assert.True(t, leaked.Set("count", 9))
	assert.Equal(t, 1, *publishes)
	assert.Equal(t, 9, st.Get().Get("count"))

	live := kept.State()
	assert.Equal(t, 9, live.Get("count"))
	assert.True(t, live.Set("count", 10))
	assert.Equal(t, 2, *publishes)
	assert.Equal(t, 10, live.Get("count"), "live nodes follow the current snapshot")
	assert.Same(t, st.Get(), kept.Snapshot())
}

func TestLeakedWritesFromGoroutine(t *testing.T) {
	var leaked tree.Mutable
	st := counterStore(t, WithAction("leak", func(_ context.Context, tx *Tx, _ ...any) (any, error) {
		leaked = tx.State().Get("other").(tree.Mutable)
		return nil, nil
	}))

	_, err := st.Dispatch(context.Background(), "leak")
	require.NoError(t, err)

	done := make(chan bool)
	go func() { done <- leaked.Set("x", 2) }()
	assert.True(t, <-done)

	x, _ := st.Get().Lookup("other.x")
	assert.Equal(t, 2, x)
}

func TestTxSnapshotSeesPendingWrites(t *testing.T) {
	runs := 0
	st, err := New(map[string]any{"count": 0},
		WithComputed("doubled", func(state View) (any, error) {
			runs++
			return state.Get("count").(int) * 2, nil
		}),
		WithAction("set", func(_ context.Context, tx *Tx, args ...any) (any, error) {
			tx.State().Set("count", args[0])
			snap := tx.Snapshot()
			assert.True(t, snap.Pending())
			assert.Empty(t, snap.ID())
			assert.Equal(t, 0, tx.Store().Get().Get("count"))
			return tx.Computed("doubled")
		}),
	)
	require.NoError(t, err)

	result, err := st.Dispatch(context.Background(), "set", 5)
	require.NoError(t, err)
	assert.Equal(t, 10, result)

	doubled, err := st.Get().Computed("doubled")
	require.NoError(t, err)
	assert.Equal(t, 10, doubled)
	assert.Equal(t, 1, runs, "the published snapshot reuses the pending value")
}

func TestDispatchResultIsUndrafted(t *testing.T) {
	st := counterStore(t, WithAction("touch", func(_ context.Context, tx *Tx, _ ...any) (any, error) {
		other := tx.State().Get("other").(tree.Mutable)
		other.Set("x", 5)
		return map[string]any{"other": other}, nil
	}))

	result, err := st.Dispatch(context.Background(), "touch")
	require.NoError(t, err)

	out := result.(map[string]any)
	assert.Same(t, st.Get().Get("other"), out["other"])
}

func TestConcurrentDispatches(t *testing.T) {
	st := counterStore(t)
	publishes := 0
	var mu sync.Mutex
	_, err := st.Subscribe(SubscriberFunc(func(*Snapshot, *Snapshot) {
		mu.Lock()
		publishes++
		mu.Unlock()
	}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Dispatch(context.Background(), "increment")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, st.Get().Get("count"))
	assert.Equal(t, uint64(50), st.Get().Version())
	mu.Lock()
	assert.Equal(t, 50, publishes)
	mu.Unlock()
}

func TestWritesThroughMovedNodeAfterClose(t *testing.T) {
	var leaked tree.Mutable
	st, err := New(map[string]any{"a": map[string]any{"v": 1}},
		WithAction("move", func(_ context.Context, tx *Tx, _ ...any) (any, error) {
			root := tx.State()
			leaked = root.Get("a").(tree.Mutable)
			root.Set("b", leaked)
			root.Delete("a")
			return nil, nil
		}),
	)
	require.NoError(t, err)
	publishes := publishCounter(t, st)

	_, err = st.Dispatch(context.Background(), "move")
	require.NoError(t, err)
	require.Equal(t, 1, *publishes)

	assert.True(t, leaked.Set("v", 2))
	assert.Equal(t, 2, *publishes)
	assert.Equal(t, map[string]any{"b": map[string]any{"v": 2}}, st.Get().Export())
}

func TestDispatchResultKeepsCycles(t *testing.T) {
	st, err := New(map[string]any{"a": map[string]any{"v": 1}},
		WithAction("link", func(_ context.Context, tx *Tx, _ ...any) (any, error) {
			a := tx.State().Get("a").(tree.Mutable)
			a.Set("b", map[string]any{})
			a.Get("b").(tree.Mutable).Set("a", a)
			return a, nil
		}),
	)
	require.NoError(t, err)

	result, err := st.Dispatch(context.Background(), "link")
	require.NoError(t, err)

	v, ok := result.(*tree.Object)
	require.True(t, ok, "got %T", result)
	b := v.Get("b").(*tree.Object)
	assert.Same(t, v, b.Get("a"))
	assert.Same(t, st.Get().Get("a"), v)

	once := tree.Undraft(v)
	assert.Same(t, v, once)
	assert.Same(t, once, tree.Undraft(once))
}

func TestForeignContextInsideActionStopsWaiting(t *testing.T) {
	var inner error
	st := counterStore(t, WithAction("detached", func(_ context.Context, tx *Tx, _ ...any) (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		inner = tx.Store().Patch(ctx, map[string]any{"label": "late"})
		tx.State().Set("count", 1)
		return nil, nil
	}))

	_, err := st.Dispatch(context.Background(), "detached")
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrWriteLockWait)
	assert.ErrorIs(t, inner, context.DeadlineExceeded)
	assert.Equal(t, 1, st.Get().Get("count"))
}
