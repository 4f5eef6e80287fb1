package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStreamEventType_Constants(t *testing.T) {
	tests := []struct {
		constant StreamEventType
		expected string
	}{
		{EventMessageStart, "message_start"},
		{EventToken, "token"},
		{EventToolStart, "tool_start"},
		{EventToolResult, "tool_result"},
		{EventToolError, "tool_error"},
		{EventPendingAction, "pending_action"},
		{EventPendingActionResolved, "pending_action_resolved"},
		{EventSubAgent, "sub_agent_event"},
		{EventArtifact, "artifact"},
		{EventCostSummary, "cost_summary"},
		{EventDone, "done"},
		{EventError, "error"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestStreamEvent_JSONRoundTrip(t *testing.T) {
	ev := StreamEvent{
		Type:           EventToken,
		Time:           time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
		Sequence:       7,
		ConversationID: "conv-1",
		Token:          &TokenPayload{Text: "hola"},
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got StreamEvent
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != EventToken || got.Sequence != 7 {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if got.Token == nil || got.Token.Text != "hola" {
		t.Errorf("token payload = %+v, want text %q", got.Token, "hola")
	}
	if got.Tool != nil || got.Error != nil || got.Artifact != nil {
		t.Error("unexpected payloads set after round trip")
	}
}

func TestErrorPayload_ErrNotSerialized(t *testing.T) {
	data, err := json.Marshal(ErrorPayload{Message: "boom", Code: "upstream_error"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["Err"]; ok {
		t.Error("Err field must not be serialized")
	}
}

func TestSubAgentEvent_Terminal(t *testing.T) {
	ok := true
	tests := []struct {
		name string
		ev   SubAgentEvent
		want bool
	}{
		{"progress", SubAgentEvent{Agent: AgentWebResearcher, Step: "searching"}, false},
		{"success", SubAgentEvent{Agent: AgentWebResearcher, Success: &ok}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.Terminal(); got != tt.want {
				t.Errorf("Terminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestActionStatus_Terminal(t *testing.T) {
	if ActionPending.Terminal() {
		t.Error("pending must not be terminal")
	}
	for _, s := range []ActionStatus{ActionConfirmed, ActionRejected, ActionExpired} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}
