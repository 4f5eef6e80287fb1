package models

import (
	"time"
)

// ActionStatus is the lifecycle state of a pending action.
// Transitions: pending → confirmed | rejected | expired (terminal).
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionConfirmed ActionStatus = "confirmed"
	ActionRejected  ActionStatus = "rejected"
	ActionExpired   ActionStatus = "expired"
)

// Terminal reports whether the status is a terminal state.
func (s ActionStatus) Terminal() bool {
	return s == ActionConfirmed || s == ActionRejected || s == ActionExpired
}

// PendingAction is a proposed write-tool invocation awaiting human
// confirmation. At most one may be open per conversation; unresolved
// actions expire after their TTL and can never be confirmed afterwards.
type PendingAction struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	ConversationID string         `json:"conversation_id"`
	Tool           string         `json:"tool_name"`
	Description    string         `json:"description,omitempty"`
	Parameters     map[string]any `json:"parameters"`
	Status         ActionStatus   `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	ExpiresAt      time.Time      `json:"expires_at"`
	ResolvedAt     time.Time      `json:"resolved_at,omitempty"`
}

// Expired reports whether the action's TTL has elapsed at the given time.
// Only meaningful for actions still in the pending state.
func (a *PendingAction) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}
