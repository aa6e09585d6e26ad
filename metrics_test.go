package store

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCountStoreActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	st := counterStore(t,
		WithMetrics(reg),
		WithAction("fail", func(context.Context, *Tx, ...any) (any, error) {
			return nil, errors.New("nope")
		}),
	)
	_, err := st.Subscribe(SubscriberFunc(func(*Snapshot, *Snapshot) { panic("subscriber") }))
	require.NoError(t, err)

	_, err = st.Dispatch(context.Background(), "incrementTwice")
	require.ErrorIs(t, err, ErrSubscriberPanic)
	_, err = st.Dispatch(context.Background(), "fail")
	require.Error(t, err)
	require.ErrorIs(t, st.Patch(context.Background(), map[string]any{"count": 5}), ErrSubscriberPanic)

	for range 2 {
		_, err = st.Get().Computed("doubled")
		require.NoError(t, err)
	}

	m := st.metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishes.WithLabelValues("counter", "action")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishes.WithLabelValues("counter", "patch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("counter", "incrementTwice", "ok")),
		"nested dispatches are not counted")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.actions.WithLabelValues("counter", "increment", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("counter", "fail", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.computeds.WithLabelValues("counter", "doubled", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.computeds.WithLabelValues("counter", "doubled", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.subscriberPanics.WithLabelValues("counter")))

	count, err := testutil.GatherAndCount(reg, "store_notify_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetricsShareRegistererAcrossStores(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := counterStore(t, WithMetrics(reg), WithName("first"))
	second := counterStore(t, WithMetrics(reg), WithName("second"))
	assert.Same(t, first.metrics.publishes, second.metrics.publishes)

	_, err := first.Dispatch(context.Background(), "increment")
	require.NoError(t, err)
	_, err = second.Dispatch(context.Background(), "increment")
	require.NoError(t, err)
	_, err = second.Dispatch(context.Background(), "increment")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(first.metrics.publishes.WithLabelValues("first", "action")))
	assert.Equal(t, 2.0, testutil.ToFloat64(first.metrics.publishes.WithLabelValues("second", "action")))
	assert.Equal(t, 2, testutil.CollectAndCount(first.metrics.publishes))
}

func TestMetricsRejectConflictingCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{
		Name: "store_publishes_total",
		Help: "conflicting",
	}))

	_, err := New(map[string]any{}, WithMetrics(reg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register metrics")
}

func TestMetricsDisabledByDefault(t *testing.T) {
	st := counterStore(t)
	assert.Nil(t, st.metrics)
	_, err := st.Dispatch(context.Background(), "increment")
	require.NoError(t, err)
}
