package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "harvester"

// Metrics holds the harvester Prometheus collectors.
type Metrics struct {
	ProxyStatus     *prometheus.GaugeVec
	CircuitState    *prometheus.GaugeVec
	FetchTotal      *prometheus.CounterVec
	FetchLatency    *prometheus.HistogramVec
	ExtractionTotal *prometheus.CounterVec
	ItemsTotal      *prometheus.CounterVec
	DLQEnqueued     *prometheus.CounterVec
	BatchesTotal    prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics registers the collectors with reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProxyStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "proxy_status",
			Help:      "1 for the current status of each proxy, 0 otherwise",
		}, []string{"proxy", "status"}),
		CircuitState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "1 for the current state of each circuit breaker, 0 otherwise",
		}, []string{"circuit", "state"}),
		FetchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Fetch attempts by source and outcome",
		}, []string{"source", "outcome"}),
		FetchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_latency_seconds",
			Help:      "Latency of fetch attempts",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		ExtractionTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_total",
			Help:      "Extractions by method",
		}, []string{"method"}),
		ItemsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Items finished by outcome (accepted, rejected, dead_lettered, requeued)",
		}, []string{"outcome"}),
		DLQEnqueued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dlq_enqueued_total",
			Help:      "Items written to the dead-letter queue",
		}, []string{"source", "error_code"}),
		BatchesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Completed batches",
		}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// PrometheusSink translates events into metric updates.
type PrometheusSink struct {
	m *Metrics
}

// NewPrometheusSink creates a sink backed by m.
func NewPrometheusSink(m *Metrics) *PrometheusSink {
	return &PrometheusSink{m: m}
}

var (
	proxyStatuses = []string{"healthy", "cooldown", "testing"}
	circuitStates = []string{"closed", "open", "half-open"}
	batchOutcomes = []string{"accepted", "rejected", "dead_lettered", "requeued"}
)

// Emit updates the collectors for e.
func (s *PrometheusSink) Emit(e Event) {
	switch e.Kind {
	case KindProxyHealth:
		setOneHot(s.m.ProxyStatus, e.Name, str(e.Fields["to"]), proxyStatuses)
	case KindCircuitState:
		setOneHot(s.m.CircuitState, e.Name, str(e.Fields["to"]), circuitStates)
	case KindFetch:
		s.m.FetchTotal.WithLabelValues(e.Name, str(e.Fields["outcome"])).Inc()
		if secs, ok := e.Fields["latency_seconds"].(float64); ok {
			s.m.FetchLatency.WithLabelValues(e.Name).Observe(secs)
		}
	case KindExtraction:
		s.m.ExtractionTotal.WithLabelValues(str(e.Fields["method"])).Inc()
	case KindDeadLettered:
		s.m.DLQEnqueued.WithLabelValues(e.Name, str(e.Fields["error_code"])).Inc()
	case KindBatchCompleted:
		s.m.BatchesTotal.Inc()
		for _, outcome := range batchOutcomes {
			if n, ok := e.Fields[outcome].(int); ok && n > 0 {
				s.m.ItemsTotal.WithLabelValues(outcome).Add(float64(n))
			}
		}
	case KindItemStored:
	}
}

func setOneHot(g *prometheus.GaugeVec, name, current string, all []string) {
	for _, v := range all {
		val := 0.0
		if v == current {
			val = 1
		}
		g.WithLabelValues(name, v).Set(val)
	}
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
