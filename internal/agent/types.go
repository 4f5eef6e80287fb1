// Package agent implements the streaming session controller: one model
// turn from user message to terminal event, including tool dispatch, the
// write confirmation gate, and sub-agent delegation.
package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/grandcafe/concierge/pkg/models"
)

// StreamSource is the model backend. Implementations stream one completion
// and must be safe for concurrent use; each Stream call owns its channel
// and closes it when the completion ends.
type StreamSource interface {
	// Stream starts a completion and returns its chunk stream.
	Stream(ctx context.Context, req *Request) (<-chan Chunk, error)

	// Name identifies the backend ("anthropic", "openai") for metrics.
	Name() string
}

// Request is one model call within a turn.
type Request struct {
	// Model is the full model identifier chosen by the router.
	Model string `json:"model"`

	// System sets the assistant's behavior; sent separately from messages.
	System string `json:"system,omitempty"`

	// Messages is the conversation so far, oldest first.
	Messages []Message `json:"messages"`

	// Tools the model may call this turn.
	Tools []ToolSpec `json:"tools,omitempty"`

	// MaxTokens caps the response length; 0 means the source's default.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// Message is a single conversation entry in provider-neutral form.
// Role is "user" or "assistant"; tool results ride on user messages.
type Message struct {
	Role        string       `json:"role"`
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// ToolCall is the model requesting one tool execution.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is what a tool call produced, fed back to the model.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// ToolSpec advertises one tool to the model.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Chunk is one unit of a streaming completion. Text chunks arrive
// incrementally; a ToolCall arrives complete; the final chunk has Done set
// and carries usage.
type Chunk struct {
	Text     string
	ToolCall *ToolCall
	Done     bool
	Usage    *models.Usage
	Error    error
}

// ToolExecutor runs read tools and confirmed write tools against the
// business backend.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, params json.RawMessage) (string, error)
}

// Complete runs a non-streaming completion over a StreamSource by draining
// its chunks. Sub-agent runners and title generation use this.
func Complete(ctx context.Context, source StreamSource, model, system, prompt string) (string, models.Usage, error) {
	chunks, err := source.Stream(ctx, &Request{
		Model:    model,
		System:   system,
		Messages: []Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", models.Usage{}, err
	}

	var text strings.Builder
	var usage models.Usage
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", usage, chunk.Error
		}
		text.WriteString(chunk.Text)
		if chunk.Usage != nil {
			usage.Add(chunk.Usage)
		}
	}
	return text.String(), usage, nil
}

// Completer adapts a StreamSource to the single-shot completion interface
// the sub-agent runners take.
type Completer struct {
	Source StreamSource
}

func (c Completer) Complete(ctx context.Context, model, system, prompt string) (string, models.Usage, error) {
	return Complete(ctx, c.Source, model, system, prompt)
}
