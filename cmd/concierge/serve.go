package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/grandcafe/concierge/internal/agent"
	"github.com/grandcafe/concierge/internal/agent/providers"
	"github.com/grandcafe/concierge/internal/config"
	"github.com/grandcafe/concierge/internal/conversation"
	"github.com/grandcafe/concierge/internal/gateway"
	"github.com/grandcafe/concierge/internal/observability"
	"github.com/grandcafe/concierge/internal/pending"
	"github.com/grandcafe/concierge/internal/ratelimit"
	"github.com/grandcafe/concierge/internal/subagent"
	"github.com/grandcafe/concierge/internal/tools"
	"github.com/grandcafe/concierge/internal/tools/exec"
	"github.com/grandcafe/concierge/internal/tools/validation"
	"github.com/grandcafe/concierge/internal/usage"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the concierge HTTP server",
		Long: `Start the assistant service: the SSE chat gateway, the write
confirmation store, the sub-agent delegator, and the pending action
sweeper. Shuts down gracefully on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file (defaults and environment when empty)")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	log := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()

	traceEndpoint := ""
	if cfg.Tracing.Enabled {
		traceEndpoint = cfg.Tracing.Endpoint
	}
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "concierge",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       traceEndpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})

	log.Info(ctx, "starting concierge",
		"version", version,
		"commit", commit,
		"provider", cfg.Models.Provider,
		"storage", storageLabel(cfg.Storage.Path))

	pendingStore, conversations, closeStores, err := openStores(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer closeStores()

	source, err := buildSource(cfg)
	if err != nil {
		return err
	}

	executor, err := exec.NewHTTPExecutor(exec.HTTPConfig{
		BaseURL: cfg.Backend.BaseURL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.Backend.Timeout,
		Logger:  log,
	})
	if err != nil {
		return err
	}

	delegator := subagent.NewDelegator(
		subagent.NewLLMRunners(agent.Completer{Source: source}),
		cfg.Models.DelegationTimeout, log, metrics)
	delegator.SetLimiter(ratelimit.NewLimiter(cfg.Limits.Delegation))

	tracker := usage.NewTracker(usage.TrackerConfig{})

	controller := agent.NewController(agent.Config{
		Source:     source,
		Registry:   tools.DefaultRegistry(),
		Validator:  validation.NewValidator(),
		Pending:    pendingStore,
		Delegator:  delegator,
		Executor:   executor,
		History:    conversations,
		Logger:     log,
		Metrics:    metrics,
		Tracer:     tracer,
		TurnBudget: cfg.Models.TurnBudget,
		Usage:      tracker,
	})

	sweeper := pending.NewSweeper(pendingStore, log)
	if err := sweeper.Start(cfg.Storage.SweepInterval); err != nil {
		return err
	}
	defer sweeper.Stop()

	server := gateway.NewServer(gateway.Config{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		Controller:    controller,
		Conversations: conversations,
		ChatLimit:     ratelimit.NewLimiter(cfg.Limits.Chat),
		Usage:         tracker,
		Logger:        log,
		Metrics:       metrics,
	})
	if err := server.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown", "error", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "tracer shutdown", "error", err)
	}
	return nil
}

// openStores returns the pending and conversation stores: sqlite-backed
// when a path is configured, in-memory otherwise.
func openStores(path string) (pending.Store, conversation.Store, func(), error) {
	if path == "" {
		return pending.NewMemoryStore(), conversation.NewMemoryStore(), func() {}, nil
	}

	pendingStore, err := pending.OpenSQLite(path)
	if err != nil {
		return nil, nil, nil, err
	}
	conversations, err := conversation.OpenSQLite(path)
	if err != nil {
		pendingStore.Close()
		return nil, nil, nil, err
	}
	closeAll := func() {
		conversations.Close()
		pendingStore.Close()
	}
	return pendingStore, conversations, closeAll, nil
}

func buildSource(cfg *config.Config) (agent.StreamSource, error) {
	switch cfg.Models.Provider {
	case "openai":
		return providers.NewOpenAISource(providers.OpenAIConfig{
			APIKey:     cfg.Models.APIKey,
			BaseURL:    cfg.Models.BaseURL,
			MaxRetries: cfg.Models.MaxRetries,
			RetryDelay: cfg.Models.RetryDelay,
		})
	case "anthropic":
		return providers.NewAnthropicSource(providers.AnthropicConfig{
			APIKey:     cfg.Models.APIKey,
			BaseURL:    cfg.Models.BaseURL,
			MaxRetries: cfg.Models.MaxRetries,
			RetryDelay: cfg.Models.RetryDelay,
		})
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Models.Provider)
	}
}

func storageLabel(path string) string {
	if path == "" {
		return "memory"
	}
	return path
}
