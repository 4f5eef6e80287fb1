package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the assistant service. All
// collectors register against the default registry, served at /metrics.
type Metrics struct {
	// TurnCounter counts assistant turns by role and final outcome.
	// Labels: role, outcome (done|error|timeout)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures full turn latency in seconds.
	// Labels: role
	TurnDuration *prometheus.HistogramVec

	// ModelRequestDuration measures model API call latency in seconds.
	// Labels: provider, model
	ModelRequestDuration *prometheus.HistogramVec

	// ModelRequestCounter counts model requests.
	// Labels: provider, model, status (success|error)
	ModelRequestCounter *prometheus.CounterVec

	// TokensUsed tracks token consumption.
	// Labels: model, type (input|output|cache_read|cache_write)
	TokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool dispatches.
	// Labels: tool, kind (read|write|delegate), status (success|error|denied)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool
	ToolExecutionDuration *prometheus.HistogramVec

	// PendingActions gauges currently open write confirmations.
	PendingActions prometheus.Gauge

	// PendingOutcomes counts resolved confirmations.
	// Labels: outcome (confirmed|rejected|expired)
	PendingOutcomes *prometheus.CounterVec

	// SubAgentRuns counts delegated sub-agent runs.
	// Labels: agent, status (success|error)
	SubAgentRuns *prometheus.CounterVec

	// ActiveStreams gauges open SSE connections.
	ActiveStreams prometheus.Gauge

	// RateLimited counts requests rejected by the per-user limiter.
	// Labels: scope (chat|delegation)
	RateLimited *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP request latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors. Call once at startup;
// promauto panics on duplicate registration.
func NewMetrics() *Metrics {
	return &Metrics{
		TurnCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_turns_total",
				Help: "Assistant turns by role and outcome",
			},
			[]string{"role", "outcome"},
		),

		TurnDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "concierge_turn_duration_seconds",
				Help:    "Full assistant turn latency",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
			},
			[]string{"role"},
		),

		ModelRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "concierge_model_request_duration_seconds",
				Help:    "Model API request latency",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		ModelRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_model_requests_total",
				Help: "Model requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		TokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_tokens_total",
				Help: "Tokens consumed by model and type",
			},
			[]string{"model", "type"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_tool_executions_total",
				Help: "Tool dispatches by tool, kind, and status",
			},
			[]string{"tool", "kind", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "concierge_tool_execution_duration_seconds",
				Help:    "Tool execution latency",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool"},
		),

		PendingActions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "concierge_pending_actions",
				Help: "Write confirmations currently awaiting a decision",
			},
		),

		PendingOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_pending_outcomes_total",
				Help: "Resolved write confirmations by outcome",
			},
			[]string{"outcome"},
		),

		SubAgentRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_subagent_runs_total",
				Help: "Delegated sub-agent runs by agent and status",
			},
			[]string{"agent", "status"},
		),

		ActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "concierge_active_streams",
				Help: "Open SSE response streams",
			},
		),

		RateLimited: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_rate_limited_total",
				Help: "Requests rejected by the per-user rate limiter",
			},
			[]string{"scope"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "concierge_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),
	}
}
