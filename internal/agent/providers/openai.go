package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/grandcafe/concierge/internal/agent"
	"github.com/grandcafe/concierge/pkg/models"
)

// OpenAISource streams completions from OpenAI-compatible chat APIs. It
// exists for gateways and local models that speak the OpenAI protocol;
// the Anthropic adapter is the primary path.
//
// Protocol differences handled here rather than in the controller:
//   - the system prompt is a leading message, not a separate field
//   - tool call arguments stream as fragments keyed by index
//   - each tool result is its own "tool" role message
type OpenAISource struct {
	client     *openai.Client
	maxRetries int
	retryDelay time.Duration
}

type OpenAIConfig struct {
	APIKey string

	// BaseURL points the client at a compatible gateway or local server.
	BaseURL string

	MaxRetries int
	RetryDelay time.Duration
}

func NewOpenAISource(config OpenAIConfig) (*OpenAISource, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if strings.TrimSpace(config.BaseURL) != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAISource{
		client:     openai.NewClientWithConfig(clientConfig),
		maxRetries: config.MaxRetries,
		retryDelay: config.RetryDelay,
	}, nil
}

func (s *OpenAISource) Name() string { return "openai" }

func (s *OpenAISource) Stream(ctx context.Context, req *agent.Request) (<-chan agent.Chunk, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: convertToOpenAIMessages(req.Messages, req.System),
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToOpenAITools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.retryDelay * time.Duration(attempt)):
			}
		}
		stream, lastErr = s.client.CreateChatCompletionStream(ctx, chatReq)
		if lastErr == nil {
			break
		}
		if !retryable(lastErr) {
			return nil, s.wrapError(lastErr)
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("openai: max retries exceeded: %w", s.wrapError(lastErr))
	}

	chunks := make(chan agent.Chunk)
	go s.processStream(ctx, stream, chunks)
	return chunks, nil
}

func (s *OpenAISource) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- agent.Chunk) {
	defer close(chunks)
	defer stream.Close()

	// Arguments stream as fragments; the index keys parallel calls.
	toolCalls := make(map[int]*agent.ToolCall)
	var usage models.Usage

	flushToolCalls := func() {
		for _, tc := range toolCalls {
			if tc.ID != "" && tc.Name != "" {
				if len(tc.Input) == 0 {
					tc.Input = json.RawMessage("{}")
				}
				chunks <- agent.Chunk{ToolCall: tc}
			}
		}
		toolCalls = make(map[int]*agent.ToolCall)
	}

	for {
		select {
		case <-ctx.Done():
			chunks <- agent.Chunk{Error: ctx.Err(), Done: true}
			return
		default:
		}

		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				flushToolCalls()
				u := usage
				chunks <- agent.Chunk{Done: true, Usage: &u}
				return
			}
			chunks <- agent.Chunk{Error: s.wrapError(err), Done: true}
			return
		}

		// The usage-only final chunk has no choices.
		if response.Usage != nil {
			usage.InputTokens = int64(response.Usage.PromptTokens)
			usage.OutputTokens = int64(response.Usage.CompletionTokens)
		}
		if len(response.Choices) == 0 {
			continue
		}

		delta := response.Choices[0].Delta
		if delta.Content != "" {
			chunks <- agent.Chunk{Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if toolCalls[index] == nil {
				toolCalls[index] = &agent.ToolCall{}
			}
			if tc.ID != "" {
				toolCalls[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[index].Input = append(toolCalls[index].Input, tc.Function.Arguments...)
			}
		}

		if response.Choices[0].FinishReason == "tool_calls" {
			flushToolCalls()
		}
	}
}

func convertToOpenAIMessages(messages []agent.Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		// Tool results become standalone "tool" messages.
		for _, tr := range msg.ToolResults {
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: tr.ToolCallID,
				Content:    tr.Content,
			})
		}

		if msg.Content == "" && len(msg.ToolCalls) == 0 {
			continue
		}
		converted := openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
		for _, tc := range msg.ToolCalls {
			converted.ToolCalls = append(converted.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Input),
				},
			})
		}
		result = append(result, converted)
	}
	return result
}

func convertToOpenAITools(tools []agent.ToolSpec) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}
	return result
}

func (s *OpenAISource) wrapError(err error) error {
	if err == nil {
		return nil
	}
	var existing *ProviderError
	if errors.As(err, &existing) {
		return err
	}

	providerErr := &ProviderError{Provider: "openai", Err: err, Message: err.Error()}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		providerErr.StatusCode = apiErr.HTTPStatusCode
		providerErr.Message = apiErr.Message
		if code, ok := apiErr.Code.(string); ok {
			providerErr.Code = code
		}
	}
	return providerErr
}
