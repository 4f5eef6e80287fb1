package gateway

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/grandcafe/concierge/internal/agent"
	"github.com/grandcafe/concierge/internal/conversation"
	"github.com/grandcafe/concierge/internal/observability"
	"github.com/grandcafe/concierge/internal/pending"
	"github.com/grandcafe/concierge/internal/ratelimit"
	"github.com/grandcafe/concierge/internal/usage"
	"github.com/grandcafe/concierge/pkg/models"
)

// identity is the authenticated caller. The upstream app gateway has
// already verified the session; it forwards who the user is via headers.
type identity struct {
	userID string
	role   models.Role
}

type identityHandler func(w http.ResponseWriter, r *http.Request, user identity)

func (s *Server) withIdentity(next identityHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing X-User-ID header")
			return
		}
		role := models.Role(r.Header.Get("X-User-Role"))
		if !role.Valid() {
			writeError(w, http.StatusForbidden, "unknown_role", "missing or unknown X-User-Role header")
			return
		}

		ctx := observability.WithUserID(r.Context(), userID)
		ctx = observability.WithRole(ctx, string(role))
		next(w, r.WithContext(ctx), identity{userID: userID, role: role})
	}
}

type chatStreamRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`

	// Model optionally overrides the router's choice.
	Model string `json:"model,omitempty"`

	// ConfirmAction / RejectAction carry a pending action ID to resolve
	// instead of running a turn. The response is plain JSON, not SSE.
	ConfirmAction string `json:"confirm_action,omitempty"`
	RejectAction  string `json:"reject_action,omitempty"`
}

// handleChatStream runs one assistant turn and streams its events back
// over SSE. The response stays open until the turn's terminal event.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request, user identity) {
	var req chatStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	if req.ConfirmAction != "" || req.RejectAction != "" {
		s.resolveInline(w, r, user, req)
		return
	}

	if !s.allow(w, s.chatLimit, ratelimit.ScopeChat, user.userID) {
		return
	}

	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}
	ctx := observability.WithConversationID(r.Context(), req.ConversationID)

	conv, err := s.conversations.Ensure(ctx, req.ConversationID, user.userID)
	if err != nil {
		s.log.Error(ctx, "ensure conversation", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not open conversation")
		return
	}
	if conv.UserID != user.userID {
		writeError(w, http.StatusForbidden, "forbidden", "conversation belongs to a different user")
		return
	}

	events, err := s.controller.RunTurn(ctx, agent.TurnRequest{
		ConversationID: req.ConversationID,
		UserID:         user.userID,
		Role:           user.role,
		Message:        req.Message,
		ModelOverride:  req.Model,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	s.streamSSE(w, r, events)
}

// streamSSE writes the turn's events in SSE framing: the event name is
// the stream event type, the data line its JSON encoding.
func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, events <-chan models.StreamEvent) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if s.metrics != nil {
		s.metrics.ActiveStreams.Inc()
		defer s.metrics.ActiveStreams.Dec()
	}

	for {
		select {
		case <-r.Context().Done():
			// The turn keeps running and its output lands in history.
			// Keep consuming events so the producer never blocks on a
			// full buffer and can reach persistence.
			go func() {
				for range events {
				}
			}()
			return
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.log.Error(r.Context(), "encode stream event", "error", err)
				continue
			}
			_, _ = w.Write([]byte("event: " + string(ev.Type) + "\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(data)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

// resolveInline handles the confirm_action / reject_action form of the
// chat endpoint, which clients use to answer a confirmation card.
func (s *Server) resolveInline(w http.ResponseWriter, r *http.Request, user identity, req chatStreamRequest) {
	if req.ConfirmAction != "" && req.RejectAction != "" {
		writeError(w, http.StatusBadRequest, "bad_request", "confirm_action and reject_action are mutually exclusive")
		return
	}

	actionID := req.ConfirmAction
	outcome := models.ActionConfirmed
	if req.RejectAction != "" {
		actionID = req.RejectAction
		outcome = models.ActionRejected
	}

	result, err := s.controller.ResolveAction(r.Context(), agent.ResolveRequest{
		ActionID: actionID,
		UserID:   user.userID,
		Outcome:  outcome,
	})
	if err != nil {
		s.writeResolveError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveActionResponse{Event: result.Event, Output: result.Output})
}

type resolveActionRequest struct {
	Outcome string `json:"outcome"`
}

type resolveActionResponse struct {
	Event  models.StreamEvent `json:"event"`
	Output string             `json:"output,omitempty"`
}

// handleResolveAction confirms or rejects a parked write action.
func (s *Server) handleResolveAction(w http.ResponseWriter, r *http.Request, user identity) {
	var req resolveActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	outcome := models.ActionStatus(req.Outcome)
	if outcome != models.ActionConfirmed && outcome != models.ActionRejected {
		writeError(w, http.StatusBadRequest, "bad_request", `outcome must be "confirmed" or "rejected"`)
		return
	}

	result, err := s.controller.ResolveAction(r.Context(), agent.ResolveRequest{
		ActionID: r.PathValue("id"),
		UserID:   user.userID,
		Outcome:  outcome,
	})
	if err != nil {
		s.writeResolveError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resolveActionResponse{
		Event:  result.Event,
		Output: result.Output,
	})
}

func (s *Server) writeResolveError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pending.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "no such pending action")
	case errors.Is(err, agent.ErrNotOwner):
		writeError(w, http.StatusForbidden, "forbidden", "pending action belongs to a different user")
	case errors.Is(err, pending.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "already_resolved", "pending action was already resolved")
	case errors.Is(err, pending.ErrExpired):
		writeError(w, http.StatusGone, "expired", "pending action expired before it was resolved")
	default:
		s.log.Error(r.Context(), "resolve action", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

type usageResponse struct {
	UserID      string       `json:"user_id"`
	Usage       models.Usage `json:"usage"`
	TotalTokens int64        `json:"total_tokens"`
	Spend       string       `json:"spend"`
}

// handleUsage reports the caller's accumulated token usage and spend
// over the tracker's retention window.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request, user identity) {
	if s.usage == nil {
		writeError(w, http.StatusNotFound, "not_found", "usage tracking is disabled")
		return
	}

	totals := s.usage.UserTotals(user.userID)
	var spend float64
	for _, rec := range s.usage.Recent(0) {
		if rec.UserID == user.userID {
			spend += rec.Cost
		}
	}
	writeJSON(w, http.StatusOK, usageResponse{
		UserID:      user.userID,
		Usage:       totals,
		TotalTokens: totals.Total(),
		Spend:       usage.FormatCost(spend),
	})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request, user identity) {
	conversations, err := s.conversations.List(r.Context(), user.userID)
	if err != nil {
		s.log.Error(r.Context(), "list conversations", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not list conversations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request, user identity) {
	conv, ok := s.ownedConversation(w, r, user)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleConversationMessages(w http.ResponseWriter, r *http.Request, user identity) {
	conv, ok := s.ownedConversation(w, r, user)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	messages, err := s.conversations.History(r.Context(), conv.ID, limit)
	if err != nil {
		s.log.Error(r.Context(), "conversation history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not load messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// handleOpenAction reports the conversation's unresolved pending action.
// 404 means none is open (resolved or expired), so the client can drop a
// stale confirmation card.
func (s *Server) handleOpenAction(w http.ResponseWriter, r *http.Request, user identity) {
	conv, ok := s.ownedConversation(w, r, user)
	if !ok {
		return
	}
	action, err := s.controller.OpenAction(r.Context(), conv.ID)
	if err != nil {
		s.log.Error(r.Context(), "open action lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not load pending action")
		return
	}
	if action == nil {
		writeError(w, http.StatusNotFound, "not_found", "no open pending action")
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request, user identity) {
	conv, ok := s.ownedConversation(w, r, user)
	if !ok {
		return
	}
	if err := s.conversations.Delete(r.Context(), conv.ID); err != nil {
		s.log.Error(r.Context(), "delete conversation", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateConversationRequest struct {
	Pinned *bool   `json:"pinned,omitempty"`
	Title  *string `json:"title,omitempty"`
}

func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request, user identity) {
	conv, ok := s.ownedConversation(w, r, user)
	if !ok {
		return
	}

	var req updateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.Pinned == nil && req.Title == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "nothing to update")
		return
	}

	if req.Pinned != nil {
		if err := s.conversations.SetPinned(r.Context(), conv.ID, *req.Pinned); err != nil {
			s.log.Error(r.Context(), "pin conversation", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "could not update conversation")
			return
		}
	}
	if req.Title != nil {
		if err := s.conversations.SetTitle(r.Context(), conv.ID, *req.Title); err != nil {
			s.log.Error(r.Context(), "retitle conversation", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "could not update conversation")
			return
		}
	}

	updated, err := s.conversations.Get(r.Context(), conv.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "could not reload conversation")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// ownedConversation loads the path conversation and enforces ownership.
// Not-found and not-owned are both reported as 404 so IDs cannot be
// probed across users.
func (s *Server) ownedConversation(w http.ResponseWriter, r *http.Request, user identity) (models.Conversation, bool) {
	conv, err := s.conversations.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no such conversation")
		} else {
			s.log.Error(r.Context(), "load conversation", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "could not load conversation")
		}
		return models.Conversation{}, false
	}
	if conv.UserID != user.userID {
		writeError(w, http.StatusNotFound, "not_found", "no such conversation")
		return models.Conversation{}, false
	}
	return conv, true
}

// allow enforces one scope's per-user limit, answering 429 with a
// Retry-After header when the budget is spent.
func (s *Server) allow(w http.ResponseWriter, limiter *ratelimit.Limiter, scope, userID string) bool {
	if limiter == nil || limiter.Allow(userID) {
		return true
	}
	if s.metrics != nil {
		s.metrics.RateLimited.WithLabelValues(scope).Inc()
	}
	wait := limiter.WaitTime(userID)
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, slow down")
	return false
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newRequestID() string {
	return uuid.NewString()
}
