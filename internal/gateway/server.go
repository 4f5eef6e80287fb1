// Package gateway exposes the concierge over HTTP: an SSE chat stream,
// pending-action resolution, and conversation management.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grandcafe/concierge/internal/agent"
	"github.com/grandcafe/concierge/internal/conversation"
	"github.com/grandcafe/concierge/internal/observability"
	"github.com/grandcafe/concierge/internal/ratelimit"
	"github.com/grandcafe/concierge/internal/usage"
)

// Server is the HTTP front of the concierge.
type Server struct {
	controller    *agent.Controller
	conversations conversation.Store
	chatLimit     *ratelimit.Limiter
	usage         *usage.Tracker
	log           *observability.Logger
	metrics       *observability.Metrics

	httpServer *http.Server
	addr       string
}

type Config struct {
	Host string
	Port int

	Controller    *agent.Controller
	Conversations conversation.Store

	// ChatLimit guards the chat endpoint per user. Delegation has its own
	// limit inside the delegator, since the model triggers it mid-turn.
	ChatLimit *ratelimit.Limiter

	// Usage backs the usage endpoint; nil disables it.
	Usage *usage.Tracker

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

func NewServer(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = observability.NewLogger(observability.LogConfig{Level: "error"})
	}
	return &Server{
		controller:    cfg.Controller,
		conversations: cfg.Conversations,
		chatLimit:     cfg.ChatLimit,
		usage:         cfg.Usage,
		log:           log,
		metrics:       cfg.Metrics,
		addr:          fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
}

// Handler builds the route table. Exposed separately so tests can drive
// the server through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /v1/chat/stream", s.withIdentity(s.handleChatStream))
	mux.HandleFunc("POST /v1/actions/{id}/resolve", s.withIdentity(s.handleResolveAction))

	mux.HandleFunc("GET /v1/usage", s.withIdentity(s.handleUsage))

	mux.HandleFunc("GET /v1/conversations", s.withIdentity(s.handleListConversations))
	mux.HandleFunc("GET /v1/conversations/{id}", s.withIdentity(s.handleGetConversation))
	mux.HandleFunc("GET /v1/conversations/{id}/messages", s.withIdentity(s.handleConversationMessages))
	mux.HandleFunc("GET /v1/conversations/{id}/actions/open", s.withIdentity(s.handleOpenAction))
	mux.HandleFunc("DELETE /v1/conversations/{id}", s.withIdentity(s.handleDeleteConversation))
	mux.HandleFunc("PATCH /v1/conversations/{id}", s.withIdentity(s.handleUpdateConversation))

	return s.instrument(mux)
}

// Start begins serving and returns once the listener is bound.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", s.addr, err)
	}

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(context.Background(), "http server error", "error", err)
		}
	}()

	s.log.Info(context.Background(), "gateway listening", "addr", s.addr)
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// instrument wraps the mux with request logging and latency metrics.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		ctx := observability.WithRequestID(r.Context(), newRequestID())
		next.ServeHTTP(recorder, r.WithContext(ctx))

		elapsed := time.Since(started)
		if s.metrics != nil {
			s.metrics.HTTPRequestDuration.
				WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(recorder.status)).
				Observe(elapsed.Seconds())
		}
		s.log.Info(ctx, "http request",
			"method", r.Method, "path", r.URL.Path,
			"status", recorder.status, "elapsed", elapsed)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush passes streaming flushes through to the underlying writer.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
