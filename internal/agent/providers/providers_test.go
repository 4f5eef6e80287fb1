package providers

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/grandcafe/concierge/internal/agent"
)

func TestNewAnthropicSource(t *testing.T) {
	if _, err := NewAnthropicSource(AnthropicConfig{}); err == nil {
		t.Error("empty API key accepted")
	}

	source, err := NewAnthropicSource(AnthropicConfig{APIKey: "sk-ant-test"})
	if err != nil {
		t.Fatalf("NewAnthropicSource: %v", err)
	}
	if source.maxRetries != 3 || source.retryDelay != time.Second || source.maxTokens != 4096 {
		t.Errorf("defaults not applied: %+v", source)
	}
	if source.Name() != "anthropic" {
		t.Errorf("Name() = %q", source.Name())
	}
}

func TestNewOpenAISource(t *testing.T) {
	if _, err := NewOpenAISource(OpenAIConfig{}); err == nil {
		t.Error("empty API key accepted")
	}
	source, err := NewOpenAISource(OpenAIConfig{APIKey: "sk-test", BaseURL: "http://localhost:8080/v1"})
	if err != nil {
		t.Fatalf("NewOpenAISource: %v", err)
	}
	if source.Name() != "openai" {
		t.Errorf("Name() = %q", source.Name())
	}
}

func TestConvertMessages(t *testing.T) {
	messages, err := convertMessages([]agent.Message{
		{Role: "user", Content: "how many covers tonight?"},
		{
			Role:    "assistant",
			Content: "Let me check.",
			ToolCalls: []agent.ToolCall{
				{ID: "call-1", Name: "get_reservations", Input: []byte(`{"date":"2026-09-01"}`)},
			},
		},
		{
			Role: "user",
			ToolResults: []agent.ToolResult{
				{ToolCallID: "call-1", Content: "14 reservations"},
			},
		},
		{Role: "user"}, // empty, dropped
	})
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(messages))
	}
	if messages[1].Role != "assistant" {
		t.Errorf("message 1 role = %v", messages[1].Role)
	}
	// Text plus tool use on the assistant message.
	if len(messages[1].Content) != 2 {
		t.Errorf("assistant content blocks = %d, want 2", len(messages[1].Content))
	}
}

func TestConvertMessagesRejectsBadToolInput(t *testing.T) {
	_, err := convertMessages([]agent.Message{
		{Role: "assistant", ToolCalls: []agent.ToolCall{
			{ID: "call-1", Name: "get_events", Input: []byte(`{broken`)},
		}},
	})
	if err == nil {
		t.Error("malformed tool input accepted")
	}
}

func TestConvertTools(t *testing.T) {
	tools, err := convertTools([]agent.ToolSpec{
		{
			Name:        "get_stock_levels",
			Description: "Current stock by item",
			InputSchema: []byte(`{"type":"object","properties":{"category":{"type":"string"}}}`),
		},
	})
	if err != nil {
		t.Fatalf("convertTools: %v", err)
	}
	if len(tools) != 1 || tools[0].OfTool == nil {
		t.Fatalf("tools = %+v", tools)
	}
	if tools[0].OfTool.Name != "get_stock_levels" {
		t.Errorf("tool name = %q", tools[0].OfTool.Name)
	}

	if _, err := convertTools([]agent.ToolSpec{
		{Name: "broken", InputSchema: []byte(`not json`)},
	}); err == nil {
		t.Error("invalid schema accepted")
	}
}

func TestConvertToOpenAIMessages(t *testing.T) {
	messages := convertToOpenAIMessages([]agent.Message{
		{Role: "user", Content: "hello"},
		{
			Role: "assistant",
			ToolCalls: []agent.ToolCall{
				{ID: "call-1", Name: "get_events", Input: []byte(`{}`)},
			},
		},
		{
			Role: "user",
			ToolResults: []agent.ToolResult{
				{ToolCallID: "call-1", Content: "2 events this week"},
			},
		},
	}, "you are helpful")

	if len(messages) != 4 {
		t.Fatalf("got %d messages, want system + user + assistant + tool", len(messages))
	}
	if messages[0].Role != openai.ChatMessageRoleSystem || messages[0].Content != "you are helpful" {
		t.Errorf("system message = %+v", messages[0])
	}
	if len(messages[2].ToolCalls) != 1 || messages[2].ToolCalls[0].Function.Name != "get_events" {
		t.Errorf("assistant tool calls = %+v", messages[2].ToolCalls)
	}
	if messages[3].Role != openai.ChatMessageRoleTool || messages[3].ToolCallID != "call-1" {
		t.Errorf("tool message = %+v", messages[3])
	}
}

func TestConvertToOpenAITools(t *testing.T) {
	tools := convertToOpenAITools([]agent.ToolSpec{
		{Name: "query_sales", Description: "Sales for a period", InputSchema: []byte(`{"type":"object"}`)},
	})
	if len(tools) != 1 {
		t.Fatalf("tools = %+v", tools)
	}
	if tools[0].Type != openai.ToolTypeFunction || tools[0].Function.Name != "query_sales" {
		t.Errorf("tool = %+v", tools[0])
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := &ProviderError{
		Provider:   "anthropic",
		StatusCode: 429,
		Code:       "rate_limit_error",
		Message:    "too many requests",
		RequestID:  "req-123",
	}
	got := err.Error()
	for _, want := range []string{"anthropic", "429", "rate_limit_error", "too many requests", "req-123"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
}

func TestProviderErrorRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  *ProviderError
		want bool
	}{
		{"rate limited", &ProviderError{StatusCode: 429}, true},
		{"server error", &ProviderError{StatusCode: 503}, true},
		{"overloaded", &ProviderError{Code: "overloaded_error"}, true},
		{"bad auth", &ProviderError{StatusCode: 401}, false},
		{"bad request", &ProviderError{StatusCode: 400}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryableFallsBackToMessage(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("connection reset by peer"), true},
		{errors.New("request timeout"), true},
		{fmt.Errorf("wrapped: %w", &ProviderError{StatusCode: 500}), true},
		{errors.New("invalid api key"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := retryable(tt.err); got != tt.want {
			t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestWrapErrorPreservesWrapped(t *testing.T) {
	source := &AnthropicSource{}
	original := &ProviderError{Provider: "anthropic", StatusCode: 500}
	if got := source.wrapError(original); got != original {
		t.Errorf("wrapError rewrapped an already wrapped error")
	}
	if source.wrapError(nil) != nil {
		t.Error("wrapError(nil) != nil")
	}

	plain := errors.New("boom")
	wrapped := source.wrapError(plain)
	var providerErr *ProviderError
	if !errors.As(wrapped, &providerErr) {
		t.Fatalf("wrapError did not produce a ProviderError: %v", wrapped)
	}
	if !errors.Is(wrapped, plain) {
		t.Error("wrapped error lost its cause")
	}
}

func TestWrapOpenAIAPIError(t *testing.T) {
	source := &OpenAISource{}
	apiErr := &openai.APIError{
		HTTPStatusCode: 429,
		Message:        "rate limit reached",
		Code:           "rate_limit_exceeded",
	}
	wrapped := source.wrapError(fmt.Errorf("request failed: %w", apiErr))

	var providerErr *ProviderError
	if !errors.As(wrapped, &providerErr) {
		t.Fatalf("not a ProviderError: %v", wrapped)
	}
	if providerErr.StatusCode != 429 || providerErr.Code != "rate_limit_exceeded" {
		t.Errorf("providerErr = %+v", providerErr)
	}
	if !providerErr.Retryable() {
		t.Error("429 not retryable")
	}
}
