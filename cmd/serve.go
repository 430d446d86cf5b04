package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rumbo-ai/rumbo/internal/agent"
	"github.com/rumbo-ai/rumbo/internal/classify"
	"github.com/rumbo-ai/rumbo/internal/config"
	"github.com/rumbo-ai/rumbo/internal/contextbuild"
	"github.com/rumbo-ai/rumbo/internal/httpapi"
	"github.com/rumbo-ai/rumbo/internal/i18n"
	"github.com/rumbo-ai/rumbo/internal/memory"
	"github.com/rumbo-ai/rumbo/internal/metrics"
	"github.com/rumbo-ai/rumbo/internal/pipeline"
	"github.com/rumbo-ai/rumbo/internal/providers"
	"github.com/rumbo-ai/rumbo/internal/router"
	"github.com/rumbo-ai/rumbo/internal/store"
	"github.com/rumbo-ai/rumbo/internal/store/pg"
	"github.com/rumbo-ai/rumbo/internal/store/redis"
	"github.com/rumbo-ai/rumbo/internal/telemetry"
	"github.com/rumbo-ai/rumbo/internal/tools"
	"github.com/rumbo-ai/rumbo/internal/validate"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the query engine HTTP server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.PostgresDSN == "" {
		logger.Error("RUMBO_POSTGRES_DSN environment variable is not set")
		os.Exit(1)
	}
	if cfg.Providers.OpenAI.APIKey == "" && cfg.Providers.Anthropic.APIKey == "" {
		logger.Error("no provider API key configured, set RUMBO_OPENAI_API_KEY or RUMBO_ANTHROPIC_API_KEY")
		os.Exit(1)
	}

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		logger.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}

	db, err := pg.OpenDB(cfg.Database.PostgresDSN)
	if err != nil {
		logger.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	stores := pg.NewStores(db)

	// Redis is optional: without it every cached path falls back to the
	// durable store.
	var cache store.Cache
	if cfg.Redis.Addr != "" {
		rc, err := redis.New(redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer rc.Close()
		cache = rc
	} else {
		logger.Warn("redis not configured, running without cache")
	}

	providerRegistry := providers.NewRegistry(cfg.Providers)
	limiter := pipeline.NewLimiter(cfg.Limits)

	placesClient := tools.NewPlacesClient(cfg.Places.BaseURL, cfg.Places.Timeout(), cache, cfg.Cache.PlacesTTL(), logger)
	toolRegistry := tools.NewRegistry(cfg.Deadlines.ToolCall())
	toolRegistry.Register(pipeline.LimitTool(tools.NewSearchPlacesTool(placesClient), limiter))
	toolRegistry.Register(pipeline.LimitTool(tools.NewCreateItineraryTool(placesClient), limiter))

	translator := i18n.New(cfg.Languages.Supported, cfg.Languages.Default)

	orch := pipeline.New(pipeline.Deps{
		Config:     cfg,
		Validator:  validate.New(cfg.Languages, stores.Preferences),
		Buffer:     memory.NewBuffer(stores.Turns, cache, cfg.Memory, cfg.Cache.MemoryTTL(), logger),
		Builder:    contextbuild.NewBuilder(cfg.Agent),
		Classifier: classify.NewClassifier(providerRegistry, cfg.Models, cache, cfg.Cache.IntentTTL(), logger),
		Router:     router.New(cfg.Models),
		Registry:   providerRegistry,
		Executor:   agent.NewExecutor(toolRegistry, logger),
		Recorder:   metrics.NewRecorder(stores.Metrics, logger),
		Turns:      stores.Turns,
		Translator: translator,
		Limiter:    limiter,
		Logger:     logger,
	})

	mux := http.NewServeMux()
	httpapi.NewQueryHandler(orch, translator, cfg, logger).RegisterRoutes(mux)
	srv := httpapi.NewServer(cfg.Server, mux, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("trace flush incomplete", "error", err)
	}
}
