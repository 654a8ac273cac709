// Beam - Affiliate attribution and commission engine.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/api"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/attribution"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/bus"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/cache"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/catalog"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/domain"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/fraud"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/lifecycle"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/processor"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/repository"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/tracker"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("BEAM_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting beam",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("BEAM_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
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

	// Initialize click tracker
	trk := tracker.NewService(repo, cacheImpl)
	slog.Info("click tracker initialized")

	// Initialize rule catalog
	cat := catalog.NewService(repo, cacheImpl, cfg.Engine.RuleCacheTTL)
	slog.Info("rule catalog initialized", "cache_ttl", cfg.Engine.RuleCacheTTL)

	// Initialize attribution resolver
	resolver := attribution.NewResolver(repo, cfg.Engine.AttributionLookback)
	slog.Info("attribution resolver initialized", "lookback", cfg.Engine.AttributionLookback)

	// Initialize risk rule engine and load rules from database
	engine, err := fraud.NewEngine()
	if err != nil {
		slog.Error("failed to initialize risk rule engine", "error", err)
		os.Exit(1)
	}
	if err := loadRiskRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load risk rules", "error", err)
		os.Exit(1)
	}
	slog.Info("risk rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize fraud scorer
	scorer := fraud.NewScorer(cfg.Engine.Fraud, engine)
	slog.Info("fraud scorer initialized", "suspicion_threshold", cfg.Engine.Fraud.SuspicionThreshold)

	// Initialize lifecycle manager
	lc := lifecycle.NewManager(repo, busImpl)

	// Initialize sale processor
	proc := processor.New(repo, cat, resolver, scorer, busImpl, cfg.Engine.Fraud)
	slog.Info("sale processor initialized")

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("BEAM_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, proc)
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, trk, proc, lc, cat, engine, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("beam is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		asyncWorker.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("beam shutdown complete")
}

// loadRiskRulesFromDatabase loads custom risk rules into the engine.
// All risk rules are configured via POST /risk-rules - no hardcoded
// defaults.
func loadRiskRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *fraud.Engine) error {
	dbRules, err := repo.ListRiskRules(ctx)
	if err != nil {
		slog.Warn("failed to list risk rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading risk rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no risk rules in database - configure via POST /risk-rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               📡 BEAM                     ║")
	fmt.Println("  ║   Attribution & Commission Engine         ║")
	fmt.Println("  ║     Every click gets its credit.          ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /clicks                        - Record a tracked-link click")
	fmt.Println("    POST /sales                         - Report a sale")
	fmt.Println("    GET  /commissions                   - List commissions by reseller")
	fmt.Println("    GET  /commissions/{id}              - Get commission by ID")
	fmt.Println("    POST /commissions/{id}/approve      - Approve a pending commission")
	fmt.Println("    POST /commissions/{id}/reject       - Reject a pending commission")
	fmt.Println("    POST /commissions/{id}/mark-paid    - Mark an approved commission paid")
	fmt.Println("    GET  /rules                         - List commission rules")
	fmt.Println("    PUT  /rules/{productId}             - Upsert a commission rule")
	fmt.Println("    GET  /risk-rules                    - List custom risk rules")
	fmt.Println("    POST /risk-rules                    - Create a custom risk rule")
	fmt.Println("    POST /risk-rules/reload             - Hot-reload risk rules")
	fmt.Println("    GET  /health                        - Health check")
	fmt.Println()
}
