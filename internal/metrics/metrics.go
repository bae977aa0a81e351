// Package metrics exposes the worker/dispatcher/orchestrator counters and
// histograms served on the A2A server's /metrics endpoint (§6.6
// a2a.metrics_enabled), grounded on the Metrics/promauto pattern used across
// the retrieved example pack (haasonsaas-nexus's
// internal/observability/metrics.go, kadirpekel-hector's
// pkg/observability/metrics.go): registered once at startup via promauto,
// updated by package-level functions so callers never hold a *Metrics
// reference through unrelated layers of plumbing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "familyassistant_queue_tasks_total",
			Help: "Total number of queue tasks processed by task type and outcome",
		},
		[]string{"task_type", "outcome"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "familyassistant_queue_task_duration_seconds",
			Help:    "Duration of queue task handler execution in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"task_type"},
	)

	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "familyassistant_orchestrator_turns_total",
			Help: "Total number of orchestrator turns run by outcome",
		},
		[]string{"outcome"},
	)

	turnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "familyassistant_orchestrator_turn_duration_seconds",
			Help:    "Duration of a full orchestrator turn (all tool-loop iterations) in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	toolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "familyassistant_tool_calls_total",
			Help: "Total number of tool calls by tool name and outcome",
		},
		[]string{"tool_name", "outcome"},
	)

	toolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "familyassistant_tool_call_duration_seconds",
			Help:    "Duration of a single tool call in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"tool_name"},
	)

	eventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "familyassistant_events_dispatched_total",
			Help: "Total number of events dispatched by source",
		},
		[]string{"source"},
	)
)

// RecordTask records a completed queue task handler run (§4.1).
func RecordTask(taskType, outcome string, duration time.Duration) {
	tasksProcessed.WithLabelValues(taskType, outcome).Inc()
	taskDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}

// RecordTurn records a completed orchestrator turn (§6.4).
func RecordTurn(outcome string, duration time.Duration) {
	turnsTotal.WithLabelValues(outcome).Inc()
	turnDuration.Observe(duration.Seconds())
}

// RecordToolCall records a single tool execution within a turn's tool loop.
func RecordToolCall(toolName, outcome string, duration time.Duration) {
	toolCalls.WithLabelValues(toolName, outcome).Inc()
	toolCallDuration.WithLabelValues(toolName).Observe(duration.Seconds())
}

// RecordEvent records one event handed to the dispatcher's fan-out (§4.8).
func RecordEvent(source string) {
	eventsDispatched.WithLabelValues(source).Inc()
}

// Handler serves the default Prometheus registry's collectors, including
// every metric above plus the Go/process collectors promauto registers
// alongside them.
func Handler() http.Handler {
	return promhttp.Handler()
}
