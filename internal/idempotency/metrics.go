package idempotency

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Decisions recorded in idempotency_decisions_total.
const (
	DecisionPassthrough  = "passthrough"
	DecisionKeyMissing   = "key_missing"
	DecisionReplayed     = "replayed"
	DecisionBodyMismatch = "body_mismatch"
	DecisionConflict     = "conflict"
	DecisionDegraded     = "degraded"
	DecisionExecuted     = "executed"
)

// Cache write results recorded in idempotency_cache_writes_total.
const (
	WriteStored  = "stored"
	WriteSkipped = "skipped"
	WriteFailed  = "failed"
)

type Metrics struct {
	decisions *prometheus.CounterVec
	writes    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics creates the coordinator collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_decisions_total",
			Help: "Coordinator decisions by key prefix.",
		}, []string{"prefix", "decision"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_cache_writes_total",
			Help: "Outcome write-backs by result.",
		}, []string{"prefix", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idempotency_operation_duration_seconds",
			Help:    "Duration of protected operations run under the idempotency lock.",
			Buckets: prometheus.DefBuckets,
		}, []string{"prefix"}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.writes, m.duration)
	}
	return m
}

func (m *Metrics) decision(prefix, decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(prefix, decision).Inc()
}

func (m *Metrics) write(prefix, result string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(prefix, result).Inc()
}

func (m *Metrics) observe(prefix string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(prefix).Observe(elapsed.Seconds())
}

// DecisionCounter exposes a single decision series, mainly for tests.
func (m *Metrics) DecisionCounter(prefix, decision string) prometheus.Counter {
	return m.decisions.WithLabelValues(prefix, decision)
}

// WriteCounter exposes a single cache write series, mainly for tests.
func (m *Metrics) WriteCounter(prefix, result string) prometheus.Counter {
	return m.writes.WithLabelValues(prefix, result)
}
