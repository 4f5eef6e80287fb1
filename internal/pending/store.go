// Package pending holds write-tool confirmations awaiting a user decision.
//
// A pending action is created when the model requests a write tool, and is
// resolved exactly once: confirmed, rejected, or expired. Expiry is lazy
// (checked on access) plus a background sweep, and resolution is atomic so
// a confirm racing the sweep has exactly one winner.
package pending

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/grandcafe/concierge/pkg/models"
)

// DefaultTTL is how long a pending action stays confirmable.
const DefaultTTL = 5 * time.Minute

var (
	ErrNotFound        = errors.New("pending action not found")
	ErrAlreadyResolved = errors.New("pending action already resolved")
	ErrExpired         = errors.New("pending action expired")

	// ErrActionOpen rejects a second pending write while the conversation
	// already has one awaiting a decision.
	ErrActionOpen = errors.New("conversation already has an open pending action")
)

// Store persists pending actions.
type Store interface {
	// Create stores a new pending action. It fails with ErrActionOpen if
	// the conversation already has an unresolved, unexpired action.
	Create(ctx context.Context, action models.PendingAction) error

	// Get returns the action by id, transitioning it to expired first if
	// its TTL has lapsed.
	Get(ctx context.Context, id string) (models.PendingAction, error)

	// Resolve moves a pending action to confirmed or rejected. Exactly one
	// resolution wins: later attempts get ErrAlreadyResolved, and attempts
	// after the TTL get ErrExpired.
	Resolve(ctx context.Context, id string, outcome models.ActionStatus) (models.PendingAction, error)

	// Open returns the conversation's unresolved action, if any.
	Open(ctx context.Context, conversationID string) (models.PendingAction, bool, error)

	// Sweep expires every lapsed pending action and returns how many it
	// transitioned.
	Sweep(ctx context.Context) (int, error)
}

// MemoryStore is an in-memory Store guarded by a mutex. It is the default
// for single-process deployments and for tests.
type MemoryStore struct {
	mu      sync.Mutex
	actions map[string]models.PendingAction

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		actions: make(map[string]models.PendingAction),
		now:     time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, action models.PendingAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, existing := range s.actions {
		if existing.ConversationID != action.ConversationID {
			continue
		}
		if existing.Status == models.ActionPending && !existing.Expired(now) {
			return ErrActionOpen
		}
	}
	s.actions[action.ID] = action
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.actions[id]
	if !ok {
		return models.PendingAction{}, ErrNotFound
	}
	return s.expireLocked(action), nil
}

func (s *MemoryStore) Resolve(_ context.Context, id string, outcome models.ActionStatus) (models.PendingAction, error) {
	if outcome != models.ActionConfirmed && outcome != models.ActionRejected {
		return models.PendingAction{}, errors.New("pending: resolve outcome must be confirmed or rejected")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	action, ok := s.actions[id]
	if !ok {
		return models.PendingAction{}, ErrNotFound
	}
	action = s.expireLocked(action)
	switch action.Status {
	case models.ActionExpired:
		return action, ErrExpired
	case models.ActionConfirmed, models.ActionRejected:
		return action, ErrAlreadyResolved
	}

	action.Status = outcome
	action.ResolvedAt = s.now()
	s.actions[id] = action
	return action, nil
}

func (s *MemoryStore) Open(_ context.Context, conversationID string) (models.PendingAction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Deterministic pick if the map ever holds more than one, though
	// Create prevents that for live actions.
	ids := make([]string, 0, len(s.actions))
	for id := range s.actions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		action := s.expireLocked(s.actions[id])
		if action.ConversationID == conversationID && action.Status == models.ActionPending {
			return action, true, nil
		}
	}
	return models.PendingAction{}, false, nil
}

func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for _, action := range s.actions {
		if action.Status == models.ActionPending && action.Expired(s.now()) {
			s.expireLocked(action)
			swept++
		}
	}
	return swept, nil
}

// expireLocked transitions a lapsed pending action to expired and persists
// the change. Callers must hold the mutex.
func (s *MemoryStore) expireLocked(action models.PendingAction) models.PendingAction {
	if action.Status == models.ActionPending && action.Expired(s.now()) {
		action.Status = models.ActionExpired
		action.ResolvedAt = s.now()
		s.actions[action.ID] = action
	}
	return action
}
