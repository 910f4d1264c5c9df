package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/robfig/cron"
	"github.com/spf13/cobra"

	"github.com/pingbase/pingbase/internal/api"
	"github.com/pingbase/pingbase/internal/config"
	"github.com/pingbase/pingbase/internal/ingestion"
	"github.com/pingbase/pingbase/internal/policy"
	"github.com/pingbase/pingbase/internal/retention"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the ingestion schedule (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pingbase system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func runServer() error {
	printVersion()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Server.CronSecret == "" {
		slog.Warn("server.cron_secret is not set; every authenticated route will answer 401")
	}

	ctx, stop := signalContext()
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	pipeline, err := newPipeline(ctx, cfg, store)
	if err != nil {
		return err
	}
	lock, closeLock := newLocker(cfg)
	defer closeLock()

	coordinator := ingestion.NewCoordinator(store, pipeline, lock)
	sweeper := retention.NewSweeper(store, cfg.Retention.SignalRetentionDays)
	show := policy.ShowPolicy(cfg.Signals)

	deps := api.Deps{
		Ingestion: coordinator,
		Retention: sweeper,
		Signals: func(userID string) api.SignalReader {
			return store.ForOwner(userID, show)
		},
		Store:      store,
		Token:      cfg.Server.CronSecret,
		PageSize:   cfg.Signals.PageSize,
		RunContext: ctx,
	}
	deps.MCP = server.NewStreamableHTTPServer(api.NewMCPServer(deps))

	scheduler, err := newScheduler(ctx, cfg.Schedule, coordinator, sweeper)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("schedule started", "ingestion", cfg.Schedule.Ingestion, "retention", cfg.Schedule.Retention)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("pingbase listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newScheduler registers the ingestion and retention jobs. Scheduled
// ingestion that finds a run already in progress is skipped.
func newScheduler(ctx context.Context, cfg config.ScheduleConfig, coordinator *ingestion.Coordinator, sweeper *retention.Sweeper) (*cron.Cron, error) {
	c := cron.New()

	if cfg.Ingestion != "" {
		err := c.AddFunc(cfg.Ingestion, func() {
			err := coordinator.Start(ctx, func(res ingestion.RunResult, err error) {
				if err != nil {
					slog.Error("scheduled ingestion failed", "error", err)
				}
			})
			if err != nil {
				slog.Warn("scheduled ingestion skipped", "error", err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("schedule.ingestion %q: %w", cfg.Ingestion, err)
		}
	}

	if cfg.Retention != "" {
		err := c.AddFunc(cfg.Retention, func() {
			if _, err := sweeper.Sweep(ctx); err != nil {
				slog.Error("scheduled retention failed", "error", err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("schedule.retention %q: %w", cfg.Retention, err)
		}
	}

	return c, nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.get(context.Background(), "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Storage", "%s", storageLabel(cfg.Storage))
	printStatus("LLM", "%s at %s", cfg.LLM.Provider, cfg.LLM.BaseURL)
	printStatus("Scorer model", "%s", cfg.LLM.ScorerModel)
	printStatus("Validator model", "%s", cfg.LLM.ValidatorModel)
	if cfg.Redis.Addr != "" {
		printStatus("Run lock", "redis at %s", cfg.Redis.Addr)
	} else {
		printStatus("Run lock", "in-process")
	}
	printStatus("Schedule", "ingestion %q, retention %q", cfg.Schedule.Ingestion, cfg.Schedule.Retention)
	if cfg.Server.CronSecret == "" {
		printWarning("PINGBASE_CRON_SECRET is not set")
	}
	return nil
}

// storageLabel never prints the DSN, which may carry credentials.
func storageLabel(cfg config.StorageConfig) string {
	if cfg.Driver == "sqlite" {
		return "sqlite in " + cfg.DataDir
	}
	return cfg.Driver
}
