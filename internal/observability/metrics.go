package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the bot's Prometheus metrics.
//
// A nil *Metrics is valid and records nothing, so components can take an
// optional metrics dependency without guarding every call site.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(reg)
//	metrics.EventReceived("handled")
type Metrics struct {
	// Events counts inbound chat events.
	// Labels: outcome (handled|ignored|failed)
	Events *prometheus.CounterVec

	// RepliesSent counts outbound replies.
	// Labels: format (plain|expandable|error)
	RepliesSent *prometheus.CounterVec

	// EventDuration measures the time from receipt to reply in seconds.
	EventDuration prometheus.Histogram

	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ToolServers counts MCP server lifecycle operations.
	// Labels: server, operation (connect|cleanup), status (success|error)
	ToolServers *prometheus.CounterVec

	// Conversations is the number of conversations held in memory.
	Conversations prometheus.Gauge

	// ErrorCounter tracks errors by component and type.
	// Labels: component (router|agent|channel|tool), error_type
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg.
// A nil reg falls back to prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpbot_events_total",
				Help: "Total number of inbound chat events by outcome",
			},
			[]string{"outcome"},
		),

		RepliesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpbot_replies_total",
				Help: "Total number of replies sent by format",
			},
			[]string{"format"},
		),

		EventDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mcpbot_event_duration_seconds",
				Help:    "Time from receiving an event to sending its reply",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),

		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpbot_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpbot_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpbot_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpbot_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpbot_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		ToolServers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpbot_tool_server_operations_total",
				Help: "MCP server connect and cleanup attempts by status",
			},
			[]string{"server", "operation", "status"},
		),

		Conversations: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mcpbot_conversations",
				Help: "Number of conversations held in memory",
			},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpbot_errors_total",
				Help: "Total number of errors by component and type",
			},
			[]string{"component", "error_type"},
		),
	}
}

// EventReceived counts an inbound event with its outcome.
func (m *Metrics) EventReceived(outcome string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(outcome).Inc()
}

// ReplySent counts an outbound reply and observes the event latency.
func (m *Metrics) ReplySent(format string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RepliesSent.WithLabelValues(format).Inc()
	m.EventDuration.Observe(durationSeconds)
}

// RecordLLMRequest records metrics for an LLM API request.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records metrics for a tool execution.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordToolServer records the result of connecting or cleaning up an MCP server.
func (m *Metrics) RecordToolServer(server, operation string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ToolServers.WithLabelValues(server, operation, status).Inc()
}

// SetConversations sets the in-memory conversation gauge.
func (m *Metrics) SetConversations(n int) {
	if m == nil {
		return
	}
	m.Conversations.Set(float64(n))
}

// RecordError increments the error counter for a component and error type.
func (m *Metrics) RecordError(component, errorType string) {
	if m == nil {
		return
	}
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}
