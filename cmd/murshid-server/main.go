// murshid-server runs the agricultural advisory service: the coordinator,
// the agent registry, and the HTTP API in one process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haql-ai/murshid/internal/advisory"
	"github.com/haql-ai/murshid/internal/agents"
	"github.com/haql-ai/murshid/internal/config"
	"github.com/haql-ai/murshid/internal/consensus"
	"github.com/haql-ai/murshid/internal/coordinator"
	"github.com/haql-ai/murshid/internal/knowledge"
	"github.com/haql-ai/murshid/internal/llm"
	"github.com/haql-ai/murshid/internal/observability"
	"github.com/haql-ai/murshid/internal/registry"
	"github.com/haql-ai/murshid/internal/server"
	"github.com/haql-ai/murshid/internal/session"
)

// sysexits-style codes: 64 for unusable configuration, 69 for a service
// that failed to come up.
const (
	exitOK          = 0
	exitUsage       = 64
	exitUnavailable = 69
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "murshid-server",
		Short:         "Bilingual multi-agent agricultural advisory service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "murshid-server:", err)
		if ee, ok := err.(*exitError); ok {
			os.Exit(ee.code)
		}
		os.Exit(exitUnavailable)
	}
	os.Exit(exitOK)
}

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return &exitError{code: exitUsage, err: err}
	}

	logger := observability.NewLogger(observability.LogConfig{Level: cfg.LogLevel, Format: "json"})
	logger.Info("starting murshid-server",
		"version", version,
		"listen_addr", cfg.ListenAddr,
		"model", cfg.LMCModel,
		"api_key", observability.SanitizeAPIKey(cfg.LMCAPIKey))

	metrics, err := observability.NewMetricsCollector(observability.MetricsConfig{
		Enabled:        cfg.MetricsEnabled,
		PrometheusPort: cfg.MetricsPort,
	})
	if err != nil {
		return &exitError{code: exitUnavailable, err: fmt.Errorf("metrics: %w", err)}
	}

	tracer, err := observability.NewTracerProvider(observability.TracingConfig{
		Enabled:      cfg.TracingEnabled,
		OTLPEndpoint: cfg.OTLPEndpoint,
		ServiceName:  "murshid",
	})
	if err != nil {
		return &exitError{code: exitUnavailable, err: fmt.Errorf("tracing: %w", err)}
	}

	// Registry store: Redis when configured, in-process otherwise.
	var store registry.Store
	var redisSessions session.Store
	if cfg.RegistryStoreURL != "" {
		client, err := registry.ConnectRedis(cfg.RegistryStoreURL)
		if err != nil {
			return &exitError{code: exitUnavailable, err: fmt.Errorf("registry store: %w", err)}
		}
		store = registry.NewRedisStore(client, cfg.RegistryKeyPrefix, cfg.AgentTTL)
		redisSessions = session.NewRedisStore(client, cfg.RegistryKeyPrefix)
	} else {
		store = registry.NewMemoryStore(cfg.AgentTTL, 0)
	}
	reg := registry.New(store, registry.Options{CacheTTL: cfg.RegistryCacheTTL}, logger, metrics)
	defer func() { _ = reg.Close() }()

	var client llm.Client
	if cfg.LMCEndpoint != "" {
		client = llm.NewOpenAIClient(llm.Config{
			BaseURL: cfg.LMCEndpoint,
			APIKey:  cfg.LMCAPIKey,
			Model:   cfg.LMCModel,
		}, logger, metrics)
	} else {
		logger.Warn("no model endpoint configured, running with keyword analysis and fallback synthesis")
	}

	var retriever *knowledge.Retriever
	if client != nil {
		retriever, err = knowledge.NewRetriever(knowledge.Config{PersistPath: cfg.KREndpoint}, client.Embed)
		if err != nil {
			return &exitError{code: exitUnavailable, err: fmt.Errorf("knowledge store: %w", err)}
		}
	}

	var engineOpts []consensus.Option
	if cfg.ExpertiseWeightsFile != "" {
		weights, err := config.LoadExpertiseWeights(cfg.ExpertiseWeightsFile)
		if err != nil {
			return &exitError{code: exitUsage, err: fmt.Errorf("expertise weights: %w", err)}
		}
		engineOpts = append(engineOpts, consensus.WithExpertiseWeights(weights))
	}
	engine := consensus.New(engineOpts...)

	var sessions session.Store
	if redisSessions != nil {
		sessions = redisSessions
	} else {
		sessions = session.NewMemoryStore()
	}

	dialer := agents.NewRoutingDialer(
		localFleet(client, retriever, logger),
		func(card advisory.AgentCard) agents.Expert {
			return agents.NewHTTPExpert(card, cfg.APIKey, cfg.EADeadline)
		},
	)

	coord := coordinator.New(reg, dialer, client, engine, sessions, coordinator.Options{
		AgentDeadline:   cfg.EADeadline,
		OverallDeadline: cfg.CoordinatorDeadline,
		MaxParallel:     cfg.MaxParallelAgents,
		MaxInflight:     cfg.MaxInflightAgents,
	}, logger, metrics, tracer)

	if err := bootstrapFleet(ctx, reg, client != nil); err != nil {
		return &exitError{code: exitUnavailable, err: fmt.Errorf("bootstrap fleet: %w", err)}
	}
	if client != nil {
		go keepFleetAlive(ctx, reg, cfg.AgentTTL/3)
	}

	srv := server.New(coord, reg, server.Config{
		ListenAddr: cfg.ListenAddr,
		APIKey:     cfg.APIKey,
	}, logger, metrics)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			return &exitError{code: exitUnavailable, err: err}
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	_ = metrics.Shutdown(shutdownCtx)
	_ = tracer.Shutdown(shutdownCtx)
	logger.Info("murshid-server stopped")
	return nil
}
