package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(chatSubmissionsTotal, chatTurnsTotal, chatSessionsActive, chatSessionLookups)
}

var (
	chatSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_submissions_total",
			Help: "Question submissions by outcome.",
		},
		[]string{"result"}, // accepted, rejected_in_flight, rejected_empty, busy, replied, failed, discarded
	)

	chatTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Snippets appended to transcripts, by role.",
		},
		[]string{"role"},
	)

	chatSessionLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_session_lookups_total",
			Help: "Registry lookups; a miss opens and mounts a new session.",
		},
		[]string{"result"}, // hit, miss
	)

	chatSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sessions_active",
			Help: "Chat sessions currently held by the registry.",
		},
	)
)

func IncSubmission(result string) {
	chatSubmissionsTotal.WithLabelValues(norm(result)).Inc()
}

func IncTurn(role string) {
	chatTurnsTotal.WithLabelValues(norm(role)).Inc()
}

func SetActiveSessions(n int) {
	chatSessionsActive.Set(float64(n))
}

func IncSessionLookup(hit bool) {
	if hit {
		chatSessionLookups.WithLabelValues("hit").Inc()
		return
	}
	chatSessionLookups.WithLabelValues("miss").Inc()
}
