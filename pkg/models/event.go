// Package models provides domain types for the Concierge assistant core.
package models

import (
	"time"
)

// StreamEvent is the unified event model for one assistant turn. Every
// component that produces output during a turn (controller, delegator,
// artifact extractor) writes typed events into a single outward stream;
// the transport layer (SSE, tests) drains it.
//
// Design principles:
//   - Single Type discriminator with optional payload pointers
//   - Monotonic Sequence for ordering guarantees across goroutines
//   - Exactly one payload is non-nil for a given Type
type StreamEvent struct {
	// Type identifies the kind of event.
	Type StreamEventType `json:"type"`

	// Time is when the event occurred.
	Time time.Time `json:"time"`

	// Sequence is monotonic within a turn.
	Sequence uint64 `json:"seq"`

	// ConversationID identifies the conversation the turn belongs to.
	ConversationID string `json:"conversation_id,omitempty"`

	Start    *MessageStartPayload   `json:"start,omitempty"`
	Token    *TokenPayload          `json:"token,omitempty"`
	Tool     *ToolPayload           `json:"tool,omitempty"`
	Pending  *PendingActionPayload  `json:"pending,omitempty"`
	SubAgent *SubAgentEvent         `json:"sub_agent,omitempty"`
	Artifact *Artifact              `json:"artifact,omitempty"`
	Cost     *CostSummaryPayload    `json:"cost,omitempty"`
	Done     *DonePayload           `json:"done,omitempty"`
	Error    *ErrorPayload          `json:"error,omitempty"`
}

// StreamEventType identifies the kind of stream event.
type StreamEventType string

const (
	// Turn lifecycle
	EventMessageStart StreamEventType = "message_start"
	EventDone         StreamEventType = "done"
	EventError        StreamEventType = "error"

	// Model streaming
	EventToken StreamEventType = "token"

	// Tool execution
	EventToolStart  StreamEventType = "tool_start"
	EventToolResult StreamEventType = "tool_result"
	EventToolError  StreamEventType = "tool_error"

	// Confirmation gate
	EventPendingAction         StreamEventType = "pending_action"
	EventPendingActionResolved StreamEventType = "pending_action_resolved"

	// Delegated work
	EventSubAgent StreamEventType = "sub_agent_event"

	// Rich content
	EventArtifact StreamEventType = "artifact"

	// Accounting
	EventCostSummary StreamEventType = "cost_summary"
)

// MessageStartPayload opens a turn and tells the client which model serves it.
type MessageStartPayload struct {
	MessageID   string `json:"message_id"`
	Model       string `json:"model"`
	ModelReason string `json:"model_reason,omitempty"`
}

// TokenPayload carries incremental assistant text.
type TokenPayload struct {
	Text string `json:"text"`
}

// ToolPayload describes a tool invocation lifecycle step. For tool_start
// events only Name and CallID are set; tool_result and tool_error events
// additionally carry the outcome.
type ToolPayload struct {
	CallID string `json:"call_id,omitempty"`
	Name   string `json:"name"`

	// For tool_result / tool_error events:
	Elapsed time.Duration `json:"elapsed,omitempty"`
	Error   string        `json:"error,omitempty"`
	Code    string        `json:"code,omitempty"`
}

// PendingActionPayload announces a created or resolved pending action.
type PendingActionPayload struct {
	ID          string         `json:"id"`
	Tool        string         `json:"tool"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`

	// Outcome is set on pending_action_resolved events:
	// "confirmed", "rejected", or "expired".
	Outcome string `json:"outcome,omitempty"`
}

// CostSummaryPayload reports final token usage and cost for the turn.
type CostSummaryPayload struct {
	Usage        Usage   `json:"usage"`
	CostEstimate string  `json:"cost_estimate"`
	CacheHitRate float64 `json:"cache_hit_rate"`
	Model        string  `json:"model"`
}

// DonePayload closes a successful turn.
type DonePayload struct {
	MessageID string   `json:"message_id,omitempty"`
	ToolsUsed []string `json:"tools_used,omitempty"`
}

// ErrorPayload standardizes errors reaching the client. Every error is a
// structured event, never a raw panic or connection drop.
type ErrorPayload struct {
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Err is the original error (runtime only, not serialized).
	Err error `json:"-"`
}
