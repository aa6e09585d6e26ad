package store

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WithMetrics registers the store's collectors on reg. Stores sharing a
// registerer share collectors and are told apart by the "store" label.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(cfg *storeConfig) {
		cfg.registerer = reg
	}
}

type storeMetrics struct {
	name             string
	publishes        *prometheus.CounterVec
	actions          *prometheus.CounterVec
	computeds        *prometheus.CounterVec
	subscriberPanics *prometheus.CounterVec
	notifyDuration   *prometheus.HistogramVec
}

func newStoreMetrics(name string, reg prometheus.Registerer) (*storeMetrics, error) {
	if reg == nil {
		return nil, nil
	}
	m := &storeMetrics{name: name}

	publishes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_publishes_total",
		Help: "Total snapshots published by source",
	}, []string{"store", "source"})
	actions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_actions_total",
		Help: "Total outermost action dispatches by result",
	}, []string{"store", "action", "result"})
	computeds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_computed_reads_total",
		Help: "Total computed reads by result (hit, miss, error)",
	}, []string{"store", "computed", "result"})
	subscriberPanics := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_subscriber_panics_total",
		Help: "Total subscriber and watcher panics recovered during notification",
	}, []string{"store"})
	notifyDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_notify_duration_seconds",
		Help:    "Time spent notifying subscribers of one snapshot",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, []string{"store"})

	var err error
	if m.publishes, err = register(reg, publishes); err != nil {
		return nil, err
	}
	if m.actions, err = register(reg, actions); err != nil {
		return nil, err
	}
	if m.computeds, err = register(reg, computeds); err != nil {
		return nil, err
	}
	if m.subscriberPanics, err = register(reg, subscriberPanics); err != nil {
		return nil, err
	}
	if m.notifyDuration, err = register(reg, notifyDuration); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing the collector already registered under
// the same descriptor.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

func (m *storeMetrics) published(source string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(m.name, source).Inc()
}

func (m *storeMetrics) action(name string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.actions.WithLabelValues(m.name, name, result).Inc()
}

func (m *storeMetrics) computed(name, result string) {
	if m == nil {
		return
	}
	m.computeds.WithLabelValues(m.name, name, result).Inc()
}

func (m *storeMetrics) subscriberPanic() {
	if m == nil {
		return
	}
	m.subscriberPanics.WithLabelValues(m.name).Inc()
}

func (m *storeMetrics) notified(d time.Duration) {
	if m == nil {
		return
	}
	m.notifyDuration.WithLabelValues(m.name).Observe(d.Seconds())
}
