package ops

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blackbird_tool_calls_total",
		Help: "Total MCP tool calls by tool name and outcome.",
	}, []string{"tool", "outcome"})

	apiAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blackbird_api_attempts_total",
		Help: "Total outbound Compass HTTP attempts by response status (0 = transport failure).",
	}, []string{"status"})

	apiRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blackbird_api_retries_total",
		Help: "Total backoff retries against the Compass API.",
	})

	apiAttemptDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "blackbird_api_attempt_duration_seconds",
		Help:    "Duration of individual Compass HTTP attempts in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	tokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blackbird_token_refreshes_total",
		Help: "Total authentication handshakes by result.",
	}, []string{"result"})
)

// RecordToolCall records the outcome of one MCP tool invocation.
func RecordToolCall(tool string, isErr bool) {
	outcome := "ok"
	if isErr {
		outcome = "error"
	}
	toolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

// RecordAttempt records one outbound HTTP attempt.
func RecordAttempt(status int, d time.Duration) {
	apiAttemptsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	apiAttemptDuration.Observe(d.Seconds())
}

// RecordRetry records one backoff retry.
func RecordRetry() {
	apiRetriesTotal.Inc()
}

// RecordTokenRefresh records one authentication handshake result.
func RecordTokenRefresh(success bool) {
	if success {
		tokenRefreshesTotal.WithLabelValues("success").Inc()
	} else {
		tokenRefreshesTotal.WithLabelValues("failure").Inc()
	}
}
