package store

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the store's Prometheus collectors. They are always
// created; registration only happens when a Registerer is supplied.
type metrics struct {
	transactions    *prometheus.CounterVec
	commitDuration  *prometheus.HistogramVec
	mutations       *prometheus.CounterVec
	undoRedo        *prometheus.CounterVec
	rebuildDuration prometheus.Histogram
	openTxns        prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinstore",
			Name:      "transactions_total",
			Help:      "Closed transactions by mode and outcome.",
		}, []string{"mode", "outcome"}),
		commitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kinstore",
			Name:      "commit_duration_seconds",
			Help:      "Time from Begin to a successful Commit.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"mode"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinstore",
			Name:      "mutations_total",
			Help:      "Record puts and deletes by kind.",
		}, []string{"kind", "op"}),
		undoRedo: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinstore",
			Name:      "undo_operations_total",
			Help:      "Applied undo and redo frames.",
		}, []string{"op"}),
		rebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kinstore",
			Name:      "rebuild_duration_seconds",
			Help:      "Duration of full secondary-structure rebuilds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		openTxns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kinstore",
			Name:      "open_transactions",
			Help:      "Transactions currently open (0 or 1).",
		}),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.transactions, err = register(reg, m.transactions); err != nil {
		return nil, err
	}
	if m.commitDuration, err = register(reg, m.commitDuration); err != nil {
		return nil, err
	}
	if m.mutations, err = register(reg, m.mutations); err != nil {
		return nil, err
	}
	if m.undoRedo, err = register(reg, m.undoRedo); err != nil {
		return nil, err
	}
	if m.rebuildDuration, err = register(reg, m.rebuildDuration); err != nil {
		return nil, err
	}
	if m.openTxns, err = register(reg, m.openTxns); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg. A store reopened against the same registry adopts
// the collector registered by its predecessor.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}
