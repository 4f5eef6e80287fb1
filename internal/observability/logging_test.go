package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf, Format: "json"})

	ctx := context.Background()
	logger.Info(ctx, "provider configured",
		"detail", "api_key=sk-ant-"+strings.Repeat("a", 100),
	)

	out := buf.String()
	if strings.Contains(out, "sk-ant-") {
		t.Errorf("API key leaked into log output: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("expected redaction marker in output: %s", out)
	}
}

func TestLogger_RedactsSensitiveMapKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf, Format: "json"})

	logger.Info(context.Background(), "tool call",
		"params", map[string]any{
			"guest_name":  "Marta",
			"guest_phone": "+34 600 000 000",
		},
	)

	out := buf.String()
	if strings.Contains(out, "+34 600 000 000") {
		t.Errorf("guest phone leaked: %s", out)
	}
	if !strings.Contains(out, "Marta") {
		t.Errorf("non-sensitive value dropped: %s", out)
	}
}

func TestLogger_IncludesContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf, Format: "json"})

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithConversationID(ctx, "conv-1")
	ctx = WithRole(ctx, "manager")
	logger.Info(ctx, "turn started")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	for key, want := range map[string]string{
		"request_id":      "req-1",
		"conversation_id": "conv-1",
		"role":            "manager",
	} {
		if record[key] != want {
			t.Errorf("record[%s] = %v, want %s", key, record[key], want)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf, Format: "json", Level: "warn"})

	logger.Debug(context.Background(), "noise")
	logger.Info(context.Background(), "still noise")
	if buf.Len() != 0 {
		t.Errorf("below-threshold records written: %s", buf.String())
	}

	logger.Warn(context.Background(), "signal")
	if buf.Len() == 0 {
		t.Error("warn record dropped")
	}
}
