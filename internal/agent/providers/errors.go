// Package providers adapts model backends to the agent.StreamSource
// interface. The Anthropic adapter is the primary path; the OpenAI adapter
// exists for compatible gateways and local models.
package providers

import (
	"fmt"
	"net/http"
	"strings"
)

// ProviderError carries enough backend detail to decide on retries and to
// log a useful failure without leaking raw API responses to clients.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	RequestID  string
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s request failed", e.Provider)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, " (request %s)", e.RequestID)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient: rate limits, server
// errors, and overload signals. Auth and validation failures are not.
func (e *ProviderError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	case e.Code == "overloaded_error":
		return true
	}
	return false
}
