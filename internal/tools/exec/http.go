// Package exec executes tools against the restaurant backend over HTTP.
// Read tools run immediately; write tools arrive here only after the user
// confirmed the pending action.
package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/grandcafe/concierge/internal/observability"
)

const (
	defaultTimeout  = 20 * time.Second
	maxResponseSize = 4 << 20
)

// ErrBackendUnavailable marks connection-level failures so callers can
// tell them apart from tool-level rejections.
var ErrBackendUnavailable = errors.New("tool backend unavailable")

// HTTPExecutor posts tool invocations to the backend's internal tool API:
// POST {base}/internal/tools/{name} with the parameters as the JSON body.
type HTTPExecutor struct {
	baseURL string
	token   string
	client  *http.Client
	log     *observability.Logger
}

type HTTPConfig struct {
	// BaseURL is the backend root, e.g. "http://backend:3000".
	BaseURL string

	// Token authenticates service-to-service calls.
	Token string

	// Timeout bounds a single tool call. Default 20s.
	Timeout time.Duration

	Logger *observability.Logger
}

func NewHTTPExecutor(config HTTPConfig) (*HTTPExecutor, error) {
	if config.BaseURL == "" {
		return nil, errors.New("exec: backend base URL is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	log := config.Logger
	if log == nil {
		log = observability.NewLogger(observability.LogConfig{Level: "error"})
	}
	return &HTTPExecutor{
		baseURL: config.BaseURL,
		token:   config.Token,
		client:  &http.Client{Timeout: config.Timeout},
		log:     log,
	}, nil
}

// toolResponse is the backend's envelope for tool invocations.
type toolResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func (e *HTTPExecutor) Execute(ctx context.Context, name string, params json.RawMessage) (string, error) {
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	url := fmt.Sprintf("%s/internal/tools/%s", e.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(params))
	if err != nil {
		return "", fmt.Errorf("exec: build request for %s: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	started := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Warn(ctx, "tool backend request failed", "tool", name, "error", err)
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("exec: read response for %s: %w", name, err)
	}

	e.log.Debug(ctx, "tool executed",
		"tool", name, "status", resp.StatusCode, "elapsed", time.Since(started))

	var envelope toolResponse
	if jsonErr := json.Unmarshal(body, &envelope); jsonErr != nil {
		envelope = toolResponse{}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := envelope.Error
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("exec: %s failed (status %d): %s", name, resp.StatusCode, message)
	}
	if envelope.Error != "" {
		return "", fmt.Errorf("exec: %s rejected: %s", name, envelope.Error)
	}

	if len(envelope.Result) > 0 {
		// Results may be any JSON value; strings are unwrapped for the model.
		var asString string
		if json.Unmarshal(envelope.Result, &asString) == nil {
			return asString, nil
		}
		return string(envelope.Result), nil
	}
	return string(body), nil
}
