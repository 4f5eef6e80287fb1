package modelrouter

import (
	"strings"
	"testing"

	"github.com/grandcafe/concierge/pkg/models"
)

func TestSelectModel(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		role     models.Role
		override string
		want     string
		wantOverride bool
	}{
		{
			name:    "routine lookup routes fast",
			message: "what reservations do we have tonight?",
			role:    models.RoleWaiter,
			want:    ModelFast,
		},
		{
			name:    "analysis keyword routes deep",
			message: "analyze last month's sales against July",
			role:    models.RoleManager,
			want:    ModelDeep,
		},
		{
			name:    "long message routes deep",
			message: strings.Repeat("cover counts and kitchen prep notes ", 30),
			role:    models.RoleKitchen,
			want:    ModelDeep,
		},
		{
			name:     "manager override wins",
			message:  "quick question",
			role:     models.RoleManager,
			override: "sonnet",
			want:     ModelDeep,
			wantOverride: true,
		},
		{
			name:     "full model name override",
			message:  "quick question",
			role:     models.RoleOwner,
			override: ModelFast,
			want:     ModelFast,
			wantOverride: true,
		},
		{
			name:     "waiter cannot override",
			message:  "quick question",
			role:     models.RoleWaiter,
			override: "sonnet",
			want:     ModelFast,
		},
		{
			name:     "unknown override falls back",
			message:  "quick question",
			role:     models.RoleAdmin,
			override: "claude-opus-experimental",
			want:     ModelFast,
		},
		{
			name:    "keyword must sit on word boundary",
			message: "update the taxi pickup note",
			role:    models.RoleManager,
			want:    ModelFast,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := SelectModel(tt.message, tt.role, tt.override)
			if sel.Model != tt.want {
				t.Errorf("model = %s, want %s (reason: %s)", sel.Model, tt.want, sel.Reason)
			}
			if sel.Override != tt.wantOverride {
				t.Errorf("override flag = %v, want %v", sel.Override, tt.wantOverride)
			}
			if sel.Reason == "" {
				t.Error("selection carries no reason")
			}
		})
	}
}

func TestSelectModel_Deterministic(t *testing.T) {
	msg := "compare this week's covers with the forecast"
	first := SelectModel(msg, models.RoleManager, "")
	for i := 0; i < 10; i++ {
		if got := SelectModel(msg, models.RoleManager, ""); got != first {
			t.Fatalf("selection changed between calls: %+v vs %+v", got, first)
		}
	}
}

func TestFallbackPairsTheTiers(t *testing.T) {
	if got, ok := Fallback(ModelDeep); !ok || got != ModelFast {
		t.Errorf("Fallback(deep) = %q, %v", got, ok)
	}
	if got, ok := Fallback(ModelFast); !ok || got != ModelDeep {
		t.Errorf("Fallback(fast) = %q, %v", got, ok)
	}
	if _, ok := Fallback("claude-opus-experimental"); ok {
		t.Error("unknown model has a fallback")
	}
}

func TestSelectModel_FallbackReasonMentionsOverride(t *testing.T) {
	sel := SelectModel("hello", models.RoleWaiter, "sonnet")
	if !strings.Contains(sel.Reason, "not permitted") {
		t.Errorf("reason %q does not explain the ignored override", sel.Reason)
	}

	sel = SelectModel("hello", models.RoleAdmin, "gpt-12")
	if !strings.Contains(sel.Reason, "gpt-12") {
		t.Errorf("reason %q does not name the unknown override", sel.Reason)
	}
}
