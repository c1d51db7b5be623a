package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiTokensIn,
		aiCallsLatencyMs,
		aiFailuresTotal,
	)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Sum of prompt (input) tokens per model, counted client-side.",
		},
		[]string{"model"},
	)

	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "Completion call latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 30000},
		},
		[]string{"model", "success"},
	)

	aiFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_failures_total",
			Help: "Failed completion calls by failure kind.",
		},
		[]string{"kind"}, // network_error, unauthorized, malformed_response, provider_error, ...
	)
)

func ObserveCompletion(model string, latencyMs int64, success bool) {
	aiCallsLatencyMs.WithLabelValues(norm(model), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func AddPromptTokens(model string, n int) {
	if n > 0 {
		aiTokensIn.WithLabelValues(norm(model)).Add(float64(n))
	}
}

func IncAIFailure(kind string) {
	aiFailuresTotal.WithLabelValues(norm(kind)).Inc()
}
