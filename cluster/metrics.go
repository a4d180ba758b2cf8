package cluster

import (
	"github.com/brimdata/docpipe/dperr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	dispatched prometheus.Counter
	retries    prometheus.Counter
	failures   *prometheus.CounterVec
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	factory := promauto.With(registerer)
	return &metrics{
		dispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "docpipe_merge_dispatch_total",
			Help: "Number of partition requests sent by the merge coordinator.",
		}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "docpipe_merge_retries_total",
			Help: "Number of dispatches retried after stale routing.",
		}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docpipe_merge_failures_total",
			Help: "Number of distributed queries that failed, by error kind.",
		}, []string{"kind"}),
	}
}

func (m *metrics) fail(err error) {
	m.failures.WithLabelValues(dperr.KindOf(err).String()).Inc()
}
