package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	retrievalLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_retrieval_latency_ms",
		Help:    "Latency of knowledge-base retrieval in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1500, 3000, 6000},
	})

	retrievalResults = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_retrieval_results",
		Help:    "Number of passages returned per retrieval",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 12, 20},
	})

	cacheEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_retrieval_cache_total",
		Help: "Retrieval cache events (hit/miss)",
	}, []string{"event"})

	generatorSelected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_generator_selected_total",
		Help: "Which response generator handled a message",
	}, []string{"generator"})

	llmLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_llm_latency_ms",
		Help:    "Latency of language model calls in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
	})

	chatErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_errors_total",
		Help: "Processed-message errors by classified kind",
	}, []string{"kind"})

	activeConversations = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_active_conversations",
		Help: "Conversations currently held by the registry",
	})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(retrievalLatency, retrievalResults, cacheEvents,
			generatorSelected, llmLatency, chatErrors, activeConversations)
	})
}

// ObserveRetrieval records latency and result count for one retrieval.
func ObserveRetrieval(start time.Time, results int) {
	ensureRegistered()
	retrievalLatency.Observe(float64(time.Since(start).Milliseconds()))
	retrievalResults.Observe(float64(results))
}

// IncCache records a retrieval cache hit or miss.
func IncCache(event string) {
	ensureRegistered()
	cacheEvents.WithLabelValues(event).Inc()
}

// IncGenerator records which generator answered a message.
func IncGenerator(name string) {
	ensureRegistered()
	generatorSelected.WithLabelValues(name).Inc()
}

// ObserveLLM records the latency of one model call.
func ObserveLLM(start time.Time) {
	ensureRegistered()
	llmLatency.Observe(float64(time.Since(start).Milliseconds()))
}

// IncError counts a classified processing error.
func IncError(kind string) {
	ensureRegistered()
	chatErrors.WithLabelValues(kind).Inc()
}

// SetActiveConversations reports the registry size.
func SetActiveConversations(n int) {
	ensureRegistered()
	activeConversations.Set(float64(n))
}

// Collectors exposes all collectors for registration with a custom registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		retrievalLatency, retrievalResults, cacheEvents,
		generatorSelected, llmLatency, chatErrors, activeConversations,
	}
}
