package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/grandcafe/concierge/internal/agent"
	"github.com/grandcafe/concierge/pkg/models"
)

// maxEmptyStreamEvents bounds consecutive events that produce no output
// before the stream is treated as malformed.
const maxEmptyStreamEvents = 300

// AnthropicSource streams completions from the Anthropic Messages API.
// Safe for concurrent use; each Stream call owns an independent goroutine.
type AnthropicSource struct {
	client     anthropic.Client
	maxRetries int
	retryDelay time.Duration
	maxTokens  int
}

// AnthropicConfig configures the Anthropic adapter. Only APIKey is
// required.
type AnthropicConfig struct {
	APIKey string

	// BaseURL overrides the API endpoint, for proxies.
	BaseURL string

	// MaxRetries caps retry attempts on transient failures. Default 3.
	MaxRetries int

	// RetryDelay is the backoff base; attempt n waits RetryDelay * 2^n.
	// Default 1s.
	RetryDelay time.Duration

	// MaxTokens caps response length when the request leaves it unset.
	// Default 4096.
	MaxTokens int
}

func NewAnthropicSource(config AnthropicConfig) (*AnthropicSource, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicSource{
		client:     anthropic.NewClient(options...),
		maxRetries: config.MaxRetries,
		retryDelay: config.RetryDelay,
		maxTokens:  config.MaxTokens,
	}, nil
}

func (s *AnthropicSource) Name() string { return "anthropic" }

// Stream starts one completion. Transient failures before the first event
// are retried with exponential backoff; streaming errors arrive as a chunk
// with Error set. The returned channel closes when the completion ends.
func (s *AnthropicSource) Stream(ctx context.Context, req *agent.Request) (<-chan agent.Chunk, error) {
	params, err := s.buildParams(req)
	if err != nil {
		return nil, err
	}

	chunks := make(chan agent.Chunk)
	go func() {
		defer close(chunks)

		var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		for attempt := 0; attempt <= s.maxRetries; attempt++ {
			stream = s.client.Messages.NewStreaming(ctx, params)
			err = stream.Err()
			if err == nil {
				break
			}

			wrapped := s.wrapError(err)
			if !retryable(wrapped) || attempt == s.maxRetries {
				chunks <- agent.Chunk{Error: wrapped}
				return
			}

			backoff := s.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				chunks <- agent.Chunk{Error: ctx.Err()}
				return
			case <-time.After(backoff):
			}
		}

		s.processStream(stream, chunks)
	}()
	return chunks, nil
}

func (s *AnthropicSource) buildParams(req *agent.Request) (anthropic.MessageNewParams, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.maxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}

	// System goes in its own field, not the message list.
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: req.System},
		}
	}

	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: convert tools: %w", err)
		}
		params.Tools = tools
	}
	return params, nil
}

// processStream turns Anthropic SSE events into chunks. Tool calls arrive
// split across events: a content_block_start carries the ID and name,
// input_json_delta events carry argument fragments, and content_block_stop
// seals the call.
func (s *AnthropicSource) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- agent.Chunk) {
	var currentToolCall *agent.ToolCall
	var currentToolInput strings.Builder
	var usage models.Usage
	emptyEvents := 0

	for stream.Next() {
		event := stream.Current()
		processed := false

		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			usage.InputTokens = start.Message.Usage.InputTokens
			usage.CacheReadTokens = start.Message.Usage.CacheReadInputTokens
			usage.CacheWriteTokens = start.Message.Usage.CacheCreationInputTokens
			processed = true

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentToolCall = &agent.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentToolInput.Reset()
				processed = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					chunks <- agent.Chunk{Text: delta.Text}
					processed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentToolInput.WriteString(delta.PartialJSON)
					processed = true
				}
			}

		case "content_block_stop":
			if currentToolCall != nil {
				input := currentToolInput.String()
				if input == "" {
					input = "{}"
				}
				currentToolCall.Input = json.RawMessage(input)
				chunks <- agent.Chunk{ToolCall: currentToolCall}
				currentToolCall = nil
				processed = true
			}

		case "message_delta":
			messageDelta := event.AsMessageDelta()
			if messageDelta.Usage.OutputTokens > 0 {
				usage.OutputTokens = messageDelta.Usage.OutputTokens
			}
			processed = true

		case "message_stop":
			u := usage
			chunks <- agent.Chunk{Done: true, Usage: &u}
			return

		case "error":
			chunks <- agent.Chunk{Error: s.wrapError(errors.New("anthropic stream error"))}
			return
		}

		if processed {
			emptyEvents = 0
			continue
		}
		emptyEvents++
		if emptyEvents >= maxEmptyStreamEvents {
			chunks <- agent.Chunk{Error: s.wrapError(
				fmt.Errorf("malformed stream: %d consecutive empty events", emptyEvents))}
			return
		}
	}

	if err := stream.Err(); err != nil {
		chunks <- agent.Chunk{Error: s.wrapError(err)}
	}
}

// convertMessages maps neutral messages onto Anthropic content blocks.
// Tool results ride on user messages; tool calls on assistant messages.
func convertMessages(messages []agent.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion

		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, toolResult := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(
				toolResult.ToolCallID,
				toolResult.Content,
				toolResult.IsError,
			))
		}
		for _, toolCall := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal(toolCall.Input, &input); err != nil {
				return nil, fmt.Errorf("invalid tool call input for %s: %w", toolCall.Name, err)
			}
			content = append(content, anthropic.NewToolUseBlock(toolCall.ID, input, toolCall.Name))
		}
		if len(content) == 0 {
			continue
		}

		if msg.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func convertTools(tools []agent.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", tool.Name, err)
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid schema for %s: missing tool definition", tool.Name)
		}
		if tool.Description != "" {
			toolParam.OfTool.Description = anthropic.String(tool.Description)
		}
		result = append(result, toolParam)
	}
	return result, nil
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func (s *AnthropicSource) wrapError(err error) error {
	if err == nil {
		return nil
	}
	var existing *ProviderError
	if errors.As(err, &existing) {
		return err
	}

	providerErr := &ProviderError{Provider: "anthropic", Err: err, Message: err.Error()}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		providerErr.StatusCode = apiErr.StatusCode
		providerErr.RequestID = apiErr.RequestID
		if raw := apiErr.RawJSON(); raw != "" {
			var payload anthropicErrorPayload
			if json.Unmarshal([]byte(raw), &payload) == nil {
				if payload.Error.Message != "" {
					providerErr.Message = payload.Error.Message
				}
				providerErr.Code = payload.Error.Type
				if payload.RequestID != "" {
					providerErr.RequestID = payload.RequestID
				}
			}
		}
	}
	return providerErr
}

// retryable covers transient failures beyond what ProviderError encodes:
// timeouts and connection-level errors that never got an HTTP status.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) && providerErr.Retryable() {
		return true
	}

	msg := err.Error()
	for _, marker := range []string{
		"rate_limit", "429", "too many requests",
		"500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "no such host",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
