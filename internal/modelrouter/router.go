// Package modelrouter picks which model serves a turn. Routing is a pure
// function of the message text, the caller's role, and an optional
// override, so repeated requests route identically.
package modelrouter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/grandcafe/concierge/pkg/models"
)

// Model identifiers for the two routing tiers.
const (
	// ModelFast handles routine lookups and short operational questions.
	ModelFast = "claude-haiku-4-5-20251001"

	// ModelDeep handles analysis, planning, and generation work.
	ModelDeep = "claude-sonnet-4-5-20250929"
)

// longMessageThreshold is the rune count past which a message routes to
// the deep model regardless of keywords.
const longMessageThreshold = 600

// deepKeywords route to the deep model when present in the message.
// Matching is case-insensitive on word boundaries via Fields.
var deepKeywords = []string{
	"analyze", "analysis", "compare", "comparison", "trend", "forecast",
	"predict", "optimize", "plan", "strategy", "report", "summary",
	"schedule", "rota", "compliance", "audit", "tax", "declaration",
	"campaign", "marketing", "newsletter", "profit", "margin", "budget",
	"why", "explain", "recommend", "suggest improvements",
}

// overrideAliases maps accepted override names to model identifiers.
var overrideAliases = map[string]string{
	"haiku":    ModelFast,
	"sonnet":   ModelDeep,
	ModelFast:  ModelFast,
	ModelDeep:  ModelDeep,
}

// overrideRoles may force a specific model.
var overrideRoles = map[models.Role]bool{
	models.RoleAdmin:   true,
	models.RoleOwner:   true,
	models.RoleManager: true,
}

// SelectModel chooses the model for a turn. An explicit override wins when
// the role is entitled to it and the name is recognized; otherwise the
// selection falls back to the heuristic and the reason records why.
func SelectModel(message string, role models.Role, override string) models.ModelSelection {
	if override != "" {
		model, known := overrideAliases[strings.ToLower(strings.TrimSpace(override))]
		switch {
		case !known:
			sel := heuristic(message)
			sel.Reason = fmt.Sprintf("unknown model override %q ignored; %s", override, sel.Reason)
			return sel
		case !overrideRoles[role]:
			sel := heuristic(message)
			sel.Reason = fmt.Sprintf("model override not permitted for role %s; %s", role, sel.Reason)
			return sel
		default:
			return models.ModelSelection{Model: model, Reason: "explicit override", Override: true}
		}
	}
	return heuristic(message)
}

// Fallback returns the other routing tier for when the preferred model
// is unavailable. ok is false for models outside the two tiers.
func Fallback(model string) (fallback string, ok bool) {
	switch model {
	case ModelDeep:
		return ModelFast, true
	case ModelFast:
		return ModelDeep, true
	default:
		return "", false
	}
}

func heuristic(message string) models.ModelSelection {
	if utf8.RuneCountInString(message) > longMessageThreshold {
		return models.ModelSelection{
			Model:  ModelDeep,
			Reason: "long message",
		}
	}

	lower := strings.ToLower(message)
	for _, kw := range deepKeywords {
		if containsWord(lower, kw) {
			return models.ModelSelection{
				Model:  ModelDeep,
				Reason: "matched keyword " + kw,
			}
		}
	}

	return models.ModelSelection{
		Model:  ModelFast,
		Reason: "routine request",
	}
}

// containsWord reports whether the phrase appears in s on word boundaries.
// Multi-word keywords match as substrings.
func containsWord(s, phrase string) bool {
	if strings.ContainsRune(phrase, ' ') {
		return strings.Contains(s, phrase)
	}
	for _, word := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if word == phrase {
			return true
		}
	}
	return false
}
