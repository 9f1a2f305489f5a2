// Kite - OPD claim adjudication that deploys in 60 seconds.
// Copyright (c) 2025 opensource.health
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-health/kite/internal/adjudication"
	"github.com/opensource-health/kite/internal/api"
	"github.com/opensource-health/kite/internal/bus"
	"github.com/opensource-health/kite/internal/cache"
	"github.com/opensource-health/kite/internal/domain"
	"github.com/opensource-health/kite/internal/fraud"
	"github.com/opensource-health/kite/internal/history"
	"github.com/opensource-health/kite/internal/policy"
	"github.com/opensource-health/kite/internal/repository"
	"github.com/opensource-health/kite/internal/screening"
	"github.com/opensource-health/kite/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KITE_TIER") == "pro" {
		cfg = domain.ProConfig()
	}
	if path := os.Getenv("KITE_POLICY_PATH"); path != "" {
		cfg.PolicyPath = path
	}

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KITE_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	slog.SetDefault(slog.New(handler))

	// Log startup
	slog.Info("starting kite",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"policy_path", cfg.PolicyPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Policy Provider. Fatal on failure: no adjudication can
	// proceed without policy terms.
	provider, err := policy.New(cfg.PolicyPath)
	if err != nil {
		slog.Error("failed to load policy document", "path", cfg.PolicyPath, "error", err)
		os.Exit(1)
	}

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize History Service
	historySvc := history.NewService(repo, cacheImpl)
	slog.Info("history service initialized")

	// Initialize Screening Engine
	screeningEngine, err := screening.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize screening engine", "error", err)
		os.Exit(1)
	}

	// Load screening rules from database (no hardcoded defaults - configure
	// via API)
	if err := loadScreeningRules(ctx, repo, screeningEngine); err != nil {
		slog.Error("failed to load screening rules", "error", err)
		os.Exit(1)
	}
	slog.Info("screening engine initialized", "rules_count", screeningEngine.RulesCount())

	// Initialize Adjudication Engine
	engine := adjudication.NewEngine(provider, fraud.NewDetector(), screeningEngine)
	slog.Info("adjudication engine initialized", "policy", provider.Document().PolicyName)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.AsyncWorker || os.Getenv("KITE_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, engine, historySvc)

		// Get tenant IDs to process (from environment or global)
		tenantIDs := []string{}
		if envTenants := os.Getenv("KITE_TENANTS"); envTenants != "" {
			for _, t := range strings.Split(envTenants, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tenantIDs = append(tenantIDs, t)
				}
			}
		}

		workerCfg := worker.Config{
			TenantIDs:   tenantIDs,
			WorkerCount: 5,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, screeningEngine, provider, historySvc, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kite is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kite shutdown complete")
}

// loadScreeningRules loads screening rules from the database into the engine.
// All rules must be configured via POST /screening-rules - no hardcoded
// defaults.
func loadScreeningRules(ctx context.Context, repo domain.Repository, engine *screening.Engine) error {
	dbRules, err := repo.ListScreeningRules(ctx, api.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list screening rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading screening rules from database", "count", len(dbRules))
		return engine.ReloadRules(dbRules)
	}

	slog.Info("no screening rules in database - configure via POST /screening-rules")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═════════════════════════════════════════════╗")
	fmt.Println("  ║                🪁 KITE                      ║")
	fmt.Println("  ║       OPD Claim Adjudication Engine         ║")
	fmt.Println("  ║     Every claim decided in milliseconds.    ║")
	fmt.Println("  ╚═════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /claims                   - Submit a claim")
	fmt.Println("    POST /claims/{id}/process      - Adjudicate a submitted claim")
	fmt.Println("    GET  /claims/{id}              - Get claim by ID")
	fmt.Println("    POST /adjudicate               - Stateless adjudication")
	fmt.Println("    GET  /decisions/{id}           - Get decision by claim ID")
	fmt.Println("    POST /members                  - Register a member")
	fmt.Println("    GET  /members/{id}             - Get member with history")
	fmt.Println("    GET  /policy                   - Active policy terms")
	fmt.Println("    GET  /screening-rules          - List screening rules")
	fmt.Println("    POST /screening-rules          - Create a screening rule")
	fmt.Println("    POST /screening-rules/reload   - Hot-reload rules from database")
	fmt.Println("    GET  /health                   - Health check")
	fmt.Println()
}
