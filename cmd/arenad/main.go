// Arena daemon: autonomous model-vs-model competition with multi-judge
// evaluation, ELO divisions, and live match delivery over SSE.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/intelligence-arena/arena/pkg/api"
	"github.com/intelligence-arena/arena/pkg/challenge"
	"github.com/intelligence-arena/arena/pkg/cleanup"
	"github.com/intelligence-arena/arena/pkg/config"
	"github.com/intelligence-arena/arena/pkg/events"
	"github.com/intelligence-arena/arena/pkg/gateway"
	"github.com/intelligence-arena/arena/pkg/judge"
	"github.com/intelligence-arena/arena/pkg/match"
	"github.com/intelligence-arena/arena/pkg/pairing"
	"github.com/intelligence-arena/arena/pkg/ranking"
	"github.com/intelligence-arena/arena/pkg/repository"
	"github.com/intelligence-arena/arena/pkg/scheduler"
	"github.com/intelligence-arena/arena/pkg/version"
)

func main() {
	envFile := flag.String("env-file", ".env", "Path to an optional .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envFile, "error", err)
	} else {
		slog.Info("Loaded environment", "path", *envFile)
	}

	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.Logging)

	slog.Info("Starting arena",
		"version", version.Full(),
		"addr", cfg.HTTP.Addr)

	ctx := context.Background()

	// 2. Repository
	var repo repository.Repository
	closeRepo := func() {}
	if cfg.Repository.URL == "" {
		repo = repository.NewMemoryStore()
		slog.Warn("REPOSITORY_URL is not set; using the in-memory repository, state is lost on restart")
	} else {
		dsn, err := cfg.Repository.DSN()
		if err != nil {
			slog.Error("Failed to resolve repository DSN", "error", err)
			os.Exit(1)
		}
		store, err := repository.NewPostgresStore(ctx, dsn)
		if err != nil {
			slog.Error("Failed to connect to repository", "error", err)
			os.Exit(1)
		}
		repo = store
		closeRepo = store.Close
		slog.Info("Connected to PostgreSQL repository")
	}

	// 3. Event bus and model gateway
	bus := events.NewBus()
	publisher := events.NewPublisher(bus)

	if cfg.Gateway.APIKey == "" {
		slog.Warn("MODEL_GATEWAY_KEY is empty; the provider will reject model calls")
	}
	gw := gateway.NewClient(cfg.Gateway)

	// 4. Arena core
	pool := challenge.NewPool(repo)
	picker := pairing.NewPicker(repo, cfg.Arena.PairingCooldown, cfg.Arena.PairingEpsilon)
	panel := judge.NewPanel(repo, gw, cfg.Judging)
	engine := ranking.NewEngine(repo, cfg.Judging)
	runner := match.NewRunner(repo, gw, panel, engine, publisher, cfg.Arena)

	sched := scheduler.NewScheduler(repo, runner, picker, pool, publisher, cfg.Arena)
	if err := sched.Start(ctx); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// 5. Retention
	var retention *cleanup.Service
	if cfg.Retention.Enabled {
		retention = cleanup.NewService(cfg.Retention, cfg.Arena.QualityRetirementFloor, repo, pool)
		retention.Start(ctx)
	}

	// 6. HTTP server (non-blocking)
	server := api.NewServer(repo, sched, pool, bus, cfg)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	slog.Info("Arena started",
		"max_live_matches", cfg.Arena.MaxLiveMatches,
		"judges", cfg.Judging.MaxJudges,
		"cron", cfg.Arena.CronSchedule)

	// 7. Wait for a shutdown signal or a server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown: close the front door first, then drain the
	// matches still on the floor, then stop the background sweeps.
	httpCtx, httpCancel := context.WithTimeout(ctx, 10*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	sched.Stop()

	if retention != nil {
		retention.Stop()
	}

	bus.Close()
	closeRepo()

	slog.Info("Shutdown complete")
}

// setupLogging replaces the default slog handler per LOG_LEVEL and
// LOG_FORMAT. Until it runs, startup messages use slog's defaults.
func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
