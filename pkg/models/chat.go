package models

import (
	"time"
)

// Role identifies a staff role. Tool access and model entitlement are
// resolved per role at the access-control boundary.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleKitchen Role = "kitchen"
	RoleBar     Role = "bar"
	RoleWaiter  Role = "waiter"
	RoleDJ      Role = "dj"
)

// Valid reports whether the role is one of the known staff roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOwner, RoleManager, RoleKitchen, RoleBar, RoleWaiter, RoleDJ:
		return true
	}
	return false
}

// ChatMessage is one turn's message within a conversation. Immutable once
// persisted, except that the trailing assistant message is built up in
// memory while its stream is still open.
type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"` // "user" or "assistant"
	Content        string    `json:"content"`
	ToolsUsed      []string  `json:"tools_used,omitempty"`
	ActiveTools    []string  `json:"active_tools,omitempty"`
	ModelUsed      string    `json:"model_used,omitempty"`
	PendingAction  string    `json:"pending_action_id,omitempty"`
	Usage          *Usage    `json:"token_usage,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Conversation is an ordered sequence of ChatMessages owned by one account.
type Conversation struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title,omitempty"`
	Pinned        bool      `json:"pinned"`
	MessageCount  int       `json:"message_count"`
	TotalTokens   int64     `json:"total_tokens"`
	EstimatedCost float64   `json:"estimated_cost_usd"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Usage records token counts for a request or a whole turn. Providers may
// omit any of these on early stream termination; missing counts are zero.
type Usage struct {
	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	CacheReadTokens  int64 `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int64 `json:"cache_write_tokens,omitempty"`
}

// Total returns the total token count.
func (u *Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheWriteTokens
}

// Add accumulates another usage record into this one.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheWriteTokens += other.CacheWriteTokens
}

// ModelSelection records which model serves a turn and why. Derived once
// per turn by the model router; not persisted beyond the turn's metadata.
type ModelSelection struct {
	Model    string `json:"model"`
	Reason   string `json:"reason"`
	Override bool   `json:"is_override"`
}
