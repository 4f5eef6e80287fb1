package exec

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/grandcafe/concierge/internal/observability"
)

func newExecutor(t *testing.T, backend http.HandlerFunc) (*HTTPExecutor, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	executor, err := NewHTTPExecutor(HTTPConfig{
		BaseURL: server.URL,
		Token:   "service-token",
		Logger:  observability.NewLogger(observability.LogConfig{Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("NewHTTPExecutor: %v", err)
	}
	return executor, server
}

func TestExecute_PostsToolAndUnwrapsResult(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	executor, _ := newExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"result": "14 reservations tonight"})
	})

	result, err := executor.Execute(context.Background(), "get_reservations",
		json.RawMessage(`{"date":"2026-09-01"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != "14 reservations tonight" {
		t.Errorf("result = %q", result)
	}
	if gotPath != "/internal/tools/get_reservations" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer service-token" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody["date"] != "2026-09-01" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestExecute_StructuredResultPassedThrough(t *testing.T) {
	executor, _ := newExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"total": 1240.50, "currency": "EUR"},
		})
	})

	result, err := executor.Execute(context.Background(), "query_sales", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(result), &decoded); err != nil {
		t.Fatalf("result is not JSON: %q", result)
	}
	if decoded["currency"] != "EUR" {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestExecute_EmptyParamsSendObject(t *testing.T) {
	var raw []byte
	executor, _ := newExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ = io.ReadAll(r.Body)
		json.NewEncoder(w).Encode(map[string]any{"result": "ok"})
	})

	if _, err := executor.Execute(context.Background(), "get_events", nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if string(raw) != "{}" {
		t.Errorf("body = %q, want empty object", raw)
	}
}

func TestExecute_BackendErrorEnvelope(t *testing.T) {
	executor, _ := newExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{"error": "table 12 is already assigned"})
	})

	_, err := executor.Execute(context.Background(), "assign_table", json.RawMessage(`{}`))
	if err == nil || !strings.Contains(err.Error(), "table 12 is already assigned") {
		t.Errorf("err = %v, want backend message", err)
	}
}

func TestExecute_RejectedDespite200(t *testing.T) {
	executor, _ := newExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error": "coupon expired"})
	})

	_, err := executor.Execute(context.Background(), "validate_coupon", json.RawMessage(`{}`))
	if err == nil || !strings.Contains(err.Error(), "coupon expired") {
		t.Errorf("err = %v", err)
	}
}

func TestExecute_ConnectionFailure(t *testing.T) {
	executor, server := newExecutor(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := executor.Execute(context.Background(), "get_events", nil)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("err = %v, want ErrBackendUnavailable", err)
	}
}

func TestNewHTTPExecutor_RequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPExecutor(HTTPConfig{}); err == nil {
		t.Error("empty base URL accepted")
	}
}
