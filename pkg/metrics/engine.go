package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics holds the memory engine collectors. All methods are safe on a nil receiver.
type EngineMetrics struct {
	Upserts            *prometheus.CounterVec
	Deletes            *prometheus.CounterVec
	Searches           *prometheus.CounterVec
	IndexSize          *prometheus.GaugeVec
	EmbeddingLatency   *prometheus.HistogramVec
	EmbeddingFailures  *prometheus.CounterVec
	Rollovers          *prometheus.CounterVec
	KBCandidates       prometheus.Histogram
	KBSelected         prometheus.Histogram
	TurnContextLatency prometheus.Histogram
}

func newEngineMetrics() *EngineMetrics {
	return &EngineMetrics{
		Upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "vector_upserts_total",
			Help:      "Vector upserts by namespace and result",
		}, []string{"namespace", "result"}),
		Deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "vector_deletes_total",
			Help:      "Vector deletes by namespace and result",
		}, []string{"namespace", "result"}),
		Searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "vector_searches_total",
			Help:      "Vector searches by namespace and result",
		}, []string{"namespace", "result"}),
		IndexSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "vector_index_entries",
			Help:      "Entries in each namespace index after the last write",
		}, []string{"namespace"}),
		EmbeddingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding provider call duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"provider"}),
		EmbeddingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "embedding_failures_total",
			Help:      "Embedding calls that degraded to no result, by provider and kind",
		}, []string{"provider", "kind"}),
		Rollovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "rollovers_total",
			Help:      "Conversation rollovers by reason",
		}, []string{"reason"}),
		KBCandidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "kb_prefilter_candidates",
			Help:      "Knowledge base entries passing the keyword prefilter per retrieval",
			Buckets:   []float64{0, 1, 2, 4, 6, 10, 20, 50},
		}),
		KBSelected: prometheus.NewHistogram(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "kb_selected_entries",
			Help:      "Knowledge base entries included in context per retrieval",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 10},
		}),
		TurnContextLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "turn_context_duration_seconds",
			Help:      "Time to assemble one turn's memory context",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
	}
}

func (e *EngineMetrics) register(reg prometheus.Registerer) {
	reg.MustRegister(
		e.Upserts, e.Deletes, e.Searches, e.IndexSize,
		e.EmbeddingLatency, e.EmbeddingFailures, e.Rollovers,
		e.KBCandidates, e.KBSelected, e.TurnContextLatency,
	)
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

// ObserveUpsert records one upsert outcome.
func (e *EngineMetrics) ObserveUpsert(namespace string, ok bool) {
	if e == nil {
		return
	}
	e.Upserts.WithLabelValues(namespace, result(ok)).Inc()
}

// ObserveDelete records one delete outcome.
func (e *EngineMetrics) ObserveDelete(namespace string, ok bool) {
	if e == nil {
		return
	}
	e.Deletes.WithLabelValues(namespace, result(ok)).Inc()
}

// ObserveSearch records one search outcome.
func (e *EngineMetrics) ObserveSearch(namespace string, ok bool) {
	if e == nil {
		return
	}
	e.Searches.WithLabelValues(namespace, result(ok)).Inc()
}

// SetIndexSize records the entry count of a namespace index.
func (e *EngineMetrics) SetIndexSize(namespace string, n int) {
	if e == nil {
		return
	}
	e.IndexSize.WithLabelValues(namespace).Set(float64(n))
}

// ObserveEmbedding records an embedding call. kind is empty on success.
func (e *EngineMetrics) ObserveEmbedding(provider string, took time.Duration, kind string) {
	if e == nil {
		return
	}
	e.EmbeddingLatency.WithLabelValues(provider).Observe(took.Seconds())
	if kind != "" {
		e.EmbeddingFailures.WithLabelValues(provider, kind).Inc()
	}
}

// ObserveRollover records a rollover with its reason.
func (e *EngineMetrics) ObserveRollover(reason string) {
	if e == nil {
		return
	}
	e.Rollovers.WithLabelValues(reason).Inc()
}

// ObserveKnowledgeBase records prefilter and selection sizes.
func (e *EngineMetrics) ObserveKnowledgeBase(candidates, selected int) {
	if e == nil {
		return
	}
	e.KBCandidates.Observe(float64(candidates))
	e.KBSelected.Observe(float64(selected))
}

// ObserveTurnContext records how long a turn's fan-out took.
func (e *EngineMetrics) ObserveTurnContext(took time.Duration) {
	if e == nil {
		return
	}
	e.TurnContextLatency.Observe(took.Seconds())
}
