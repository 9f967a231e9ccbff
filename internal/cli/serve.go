package cli

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/branchd/internal/alert"
	"github.com/kilupskalvis/branchd/internal/audit"
	"github.com/kilupskalvis/branchd/internal/config"
	"github.com/kilupskalvis/branchd/internal/diff"
	"github.com/kilupskalvis/branchd/internal/index"
	"github.com/kilupskalvis/branchd/internal/lockmgr"
	"github.com/kilupskalvis/branchd/internal/orchestrator"
	"github.com/kilupskalvis/branchd/internal/risk"
	"github.com/kilupskalvis/branchd/internal/server"
	"github.com/kilupskalvis/branchd/internal/shadow"
	"github.com/kilupskalvis/branchd/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the branchd daemon",
	Long: `Starts the branchd control plane: the HTTP API, the event
orchestrator, and (when configured) the NATS event subscription.`,
	Run: runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	logger := newLogger(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Error("failed to create data directory", "error", err, "path", cfg.DataDir)
		os.Exit(1)
	}

	st, err := store.New(cfg.BranchDBPath())
	if err != nil {
		logger.Error("failed to open branch store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	auditStore, err := audit.NewStore(cfg.AuditDBPath())
	if err != nil {
		logger.Error("failed to open audit store", "error", err)
		os.Exit(1)
	}
	defer auditStore.Close()
	emitter := audit.NewEmitter(auditStore, logger)

	live, err := index.NewClient(cfg.WeaviateURL)
	if err != nil {
		logger.Error("failed to create index store client", "error", err)
		os.Exit(1)
	}

	locks := lockmgr.New(st, logger)

	shadows := shadow.New(st, live, logger)
	shadows.RecordCountTolerancePct = cfg.Shadow.RecordCountTolerancePct
	shadows.SizeDeltaTolerancePct = cfg.Shadow.SizeDeltaTolerancePct

	classifier := risk.NewClassifier(risk.Config{
		CriticalServices:   cfg.Risk.CriticalServices,
		RevenueEntities:    cfg.Risk.RevenueImpactingEntities,
		ComplianceEntities: cfg.Risk.ComplianceSensitiveEntities,
		ServiceMap:         cfg.Risk.ServiceMap,
	})
	thresholds := risk.Thresholds{
		AutoMergeConfidenceThreshold: cfg.Risk.AutoMergeConfidenceThreshold,
		MaxCriticalConflicts:         cfg.Risk.MaxCriticalConflictsForAuto,
		MaxHighConflicts:             cfg.Risk.MaxHighConflictsForAuto,
	}

	var notifier alert.Notifier = alert.NewMulti(
		alert.NewLogNotifier(logger),
		alert.NewWebhookNotifier(&alert.WebhookConfig{URLs: cfg.Alerts.WebhookURLs}, logger),
	)
	if len(cfg.Alerts.WebhookURLs) > 0 {
		logger.Info("alert webhooks configured", "count", len(cfg.Alerts.WebhookURLs))
	}

	var diffEngine diff.Engine
	if cfg.Diff.URL != "" {
		diffEngine = diff.NewHTTPEngine(cfg.Diff.URL)
	} else {
		logger.Warn("no diff engine configured, merges will not auto-merge")
		diffEngine = diff.Unavailable{}
	}

	orch := orchestrator.New(orchestrator.Options{
		Store:      st,
		Locks:      locks,
		Shadows:    shadows,
		DiffEngine: diffEngine,
		Classifier: classifier,
		Thresholds: thresholds,
		Audit:      emitter,
		Alerts:     notifier,
		AutoMerge:  cfg.AutoMerge,
		Shadow:     cfg.Shadow,
		Logger:     logger,
	})
	defer orch.Close()

	// Optional NATS subscription
	if cfg.NATS.URL != "" {
		sub, err := orchestrator.NewNATSSubscriber(cfg.NATS.URL, cfg.NATS.Subject, orch, logger)
		if err != nil {
			logger.Error("failed to start nats subscription", "error", err)
			os.Exit(1)
		}
		defer sub.Close()
	}

	// Handler
	srvCfg := server.DefaultServerConfig()
	srvCfg.AuthToken = cfg.AuthToken

	h, handlerCleanup := server.Handler(server.Deps{
		Store:      st,
		Locks:      locks,
		Shadows:    shadows,
		Orch:       orch,
		Audit:      auditStore,
		Classifier: classifier,
		Thresholds: thresholds,
	}, srvCfg, logger)
	defer handlerCleanup()

	// HTTP server
	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      h,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return context.Background() },
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting branchd", "listen", cfg.Listen, "data_dir", cfg.DataDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("daemon stopped")
}

// newLogger builds the structured logger from the config.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
