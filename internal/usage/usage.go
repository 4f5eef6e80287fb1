// Package usage estimates request cost from token counts and tracks
// per-user and per-model totals.
package usage

import (
	"fmt"
	"sync"
	"time"

	"github.com/grandcafe/concierge/pkg/models"
)

// Pricing is a model's price per million tokens, split by token type.
type Pricing struct {
	Input      float64 `json:"input" yaml:"input"`
	Output     float64 `json:"output" yaml:"output"`
	CacheRead  float64 `json:"cache_read" yaml:"cache_read"`
	CacheWrite float64 `json:"cache_write" yaml:"cache_write"`
}

// modelPricing covers the models the router can select. Unknown models
// fall back to the most expensive entry so estimates never understate.
var modelPricing = map[string]Pricing{
	"claude-haiku-4-5-20251001": {
		Input: 1.00, Output: 5.00, CacheRead: 0.10, CacheWrite: 1.25,
	},
	"claude-sonnet-4-5-20250929": {
		Input: 3.00, Output: 15.00, CacheRead: 0.30, CacheWrite: 3.75,
	},
}

var fallbackPricing = modelPricing["claude-sonnet-4-5-20250929"]

// PricingFor returns the pricing for a model, falling back to the most
// expensive known model for unrecognized names.
func PricingFor(model string) Pricing {
	if p, ok := modelPricing[model]; ok {
		return p
	}
	return fallbackPricing
}

// Estimate returns the dollar cost of the usage under this pricing.
func (p Pricing) Estimate(u models.Usage) float64 {
	total := float64(u.InputTokens)*p.Input +
		float64(u.OutputTokens)*p.Output +
		float64(u.CacheReadTokens)*p.CacheRead +
		float64(u.CacheWriteTokens)*p.CacheWrite
	return total / 1_000_000
}

// CalculateCost estimates the dollar cost of one request.
func CalculateCost(model string, u models.Usage) float64 {
	return PricingFor(model).Estimate(u)
}

// CacheHitRate returns the percentage of prompt tokens served from cache.
// Zero usage yields zero rather than NaN.
func CacheHitRate(u models.Usage) float64 {
	prompt := u.InputTokens + u.CacheReadTokens
	if prompt == 0 {
		return 0
	}
	return float64(u.CacheReadTokens) / float64(prompt) * 100
}

// FormatCost renders a dollar amount for display. Sub-cent amounts show
// as "<$0.01" so short turns don't display as free.
func FormatCost(cost float64) string {
	if cost <= 0 {
		return "$0.00"
	}
	if cost < 0.01 {
		return "<$0.01"
	}
	return fmt.Sprintf("$%.2f", cost)
}

// Record is one request's usage for tracking.
type Record struct {
	Model          string       `json:"model"`
	UserID         string       `json:"user_id,omitempty"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Usage          models.Usage `json:"usage"`
	Cost           float64      `json:"cost"`
	Timestamp      time.Time    `json:"timestamp"`
}

// Tracker accumulates usage across requests, keyed by model and by user.
// Records are pruned by age and count so memory stays bounded.
type Tracker struct {
	mu       sync.RWMutex
	records  []Record
	byModel  map[string]*models.Usage
	byUser   map[string]*models.Usage
	maxAge   time.Duration
	maxCount int
}

// TrackerConfig bounds the tracker's record history.
type TrackerConfig struct {
	MaxAge   time.Duration
	MaxCount int
}

// NewTracker creates a tracker. Non-positive bounds get defaults of 24h
// and 10000 records.
func NewTracker(config TrackerConfig) *Tracker {
	if config.MaxAge <= 0 {
		config.MaxAge = 24 * time.Hour
	}
	if config.MaxCount <= 0 {
		config.MaxCount = 10000
	}
	return &Tracker{
		byModel:  make(map[string]*models.Usage),
		byUser:   make(map[string]*models.Usage),
		maxAge:   config.MaxAge,
		maxCount: config.MaxCount,
	}
}

// Record adds a usage record, computing its cost if unset.
func (t *Tracker) Record(r Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	if r.Cost == 0 {
		r.Cost = CalculateCost(r.Model, r.Usage)
	}
	t.records = append(t.records, r)

	if t.byModel[r.Model] == nil {
		t.byModel[r.Model] = &models.Usage{}
	}
	t.byModel[r.Model].Add(&r.Usage)

	if r.UserID != "" {
		if t.byUser[r.UserID] == nil {
			t.byUser[r.UserID] = &models.Usage{}
		}
		t.byUser[r.UserID].Add(&r.Usage)
	}

	t.prune()
}

// prune drops records past maxAge and beyond maxCount. Callers hold the
// lock.
func (t *Tracker) prune() {
	cutoff := time.Now().Add(-t.maxAge)
	start := 0
	for i, r := range t.records {
		if r.Timestamp.After(cutoff) {
			start = i
			break
		}
		start = i + 1
	}
	if start > 0 {
		t.records = t.records[start:]
	}
	if len(t.records) > t.maxCount {
		t.records = t.records[len(t.records)-t.maxCount:]
	}
}

// ModelTotals returns accumulated usage for a model, or zero usage.
func (t *Tracker) ModelTotals(model string) models.Usage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if u := t.byModel[model]; u != nil {
		return *u
	}
	return models.Usage{}
}

// UserTotals returns accumulated usage for a user, or zero usage.
func (t *Tracker) UserTotals(userID string) models.Usage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if u := t.byUser[userID]; u != nil {
		return *u
	}
	return models.Usage{}
}

// Recent returns up to limit of the most recent records, newest last.
func (t *Tracker) Recent(limit int) []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if limit <= 0 || limit > len(t.records) {
		limit = len(t.records)
	}
	out := make([]Record, limit)
	copy(out, t.records[len(t.records)-limit:])
	return out
}
