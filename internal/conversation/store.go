// Package conversation stores chat history and conversation metadata.
// The memory store backs tests and single-process runs; the sqlite store
// survives restarts.
package conversation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcafe/concierge/internal/usage"
	"github.com/grandcafe/concierge/pkg/models"
)

// ErrNotFound is returned for lookups of unknown conversations.
var ErrNotFound = errors.New("conversation not found")

// titleMaxLen bounds auto-generated conversation titles.
const titleMaxLen = 60

// Store persists conversations and their messages. Appending a message
// keeps the parent conversation's counters current: message count, token
// totals, estimated cost, and last-activity time.
type Store interface {
	// Ensure returns the conversation, creating it for userID if absent.
	Ensure(ctx context.Context, id, userID string) (models.Conversation, error)

	Get(ctx context.Context, id string) (models.Conversation, error)

	// List returns the user's conversations, pinned first, then most
	// recently active.
	List(ctx context.Context, userID string) ([]models.Conversation, error)

	// Delete removes a conversation and its messages.
	Delete(ctx context.Context, id string) error

	SetPinned(ctx context.Context, id string, pinned bool) error
	SetTitle(ctx context.Context, id, title string) error

	// History returns the newest limit messages in chronological order;
	// limit <= 0 returns everything.
	History(ctx context.Context, conversationID string, limit int) ([]models.ChatMessage, error)

	Append(ctx context.Context, msg models.ChatMessage) error
}

// deriveTitle turns the first user message into a conversation title.
// Truncation counts runes and cuts on a space so multi-byte text is
// never split mid-rune.
func deriveTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	runes := []rune(title)
	if len(runes) > titleMaxLen {
		head := string(runes[:titleMaxLen])
		cut := strings.LastIndex(head, " ")
		if cut < titleMaxLen/2 {
			cut = len(head)
		}
		title = head[:cut] + "…"
	}
	return title
}

// messageCost estimates the dollar cost of one message from its usage.
func messageCost(msg models.ChatMessage) float64 {
	if msg.Usage == nil {
		return 0
	}
	return usage.CalculateCost(msg.ModelUsed, *msg.Usage)
}

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]models.Conversation
	messages      map[string][]models.ChatMessage
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string][]models.ChatMessage),
		now:           time.Now,
	}
}

func (s *MemoryStore) Ensure(_ context.Context, id, userID string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[id]; ok {
		return conv, nil
	}
	now := s.now()
	conv := models.Conversation{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[id] = conv
	return conv, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return models.Conversation{}, ErrNotFound
	}
	return conv, nil
}

func (s *MemoryStore) List(_ context.Context, userID string) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Conversation
	for _, conv := range s.conversations {
		if conv.UserID == userID {
			out = append(out, conv)
		}
	}
	sortConversations(out)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) SetPinned(_ context.Context, id string, pinned bool) error {
	return s.update(id, func(conv *models.Conversation) {
		conv.Pinned = pinned
	})
}

func (s *MemoryStore) SetTitle(_ context.Context, id, title string) error {
	return s.update(id, func(conv *models.Conversation) {
		conv.Title = title
	})
}

func (s *MemoryStore) update(id string, apply func(*models.Conversation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	apply(&conv)
	conv.UpdatedAt = s.now()
	s.conversations[id] = conv
	return nil
}

func (s *MemoryStore) History(_ context.Context, conversationID string, limit int) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]models.ChatMessage(nil), msgs...), nil
}

func (s *MemoryStore) Append(_ context.Context, msg models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		conv = models.Conversation{ID: msg.ConversationID, CreatedAt: s.now()}
	}

	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)

	conv.MessageCount++
	if msg.Usage != nil {
		conv.TotalTokens += msg.Usage.Total()
	}
	conv.EstimatedCost += messageCost(msg)
	conv.LastMessageAt = msg.CreatedAt
	conv.UpdatedAt = s.now()
	if conv.Title == "" && msg.Role == "user" {
		conv.Title = deriveTitle(msg.Content)
	}
	s.conversations[msg.ConversationID] = conv
	return nil
}

func sortConversations(conversations []models.Conversation) {
	sort.Slice(conversations, func(i, j int) bool {
		if conversations[i].Pinned != conversations[j].Pinned {
			return conversations[i].Pinned
		}
		if !conversations[i].LastMessageAt.Equal(conversations[j].LastMessageAt) {
			return conversations[i].LastMessageAt.After(conversations[j].LastMessageAt)
		}
		return conversations[i].ID < conversations[j].ID
	})
}
