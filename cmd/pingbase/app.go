package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pingbase/pingbase/internal/config"
	"github.com/pingbase/pingbase/internal/ingestion"
	"github.com/pingbase/pingbase/internal/llm"
	"github.com/pingbase/pingbase/internal/reddit"
	"github.com/pingbase/pingbase/internal/runlock"
	"github.com/pingbase/pingbase/internal/scoring"
	"github.com/pingbase/pingbase/internal/storage"
)

const (
	runLockKey = "pingbase:ingestion:run"
	// runLockTTL bounds a crashed holder; a full run should finish well
	// inside it.
	runLockTTL = 2 * time.Hour
)

// loadConfig loads configuration and installs the default logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	setupLogging(cfg.Log)
	return cfg, nil
}

func setupLogging(cfg config.LogConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func openStore(cfg config.Config) (*storage.Store, error) {
	store, err := storage.OpenConfig(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

// newPipeline wires the content source, both scoring stages and the store.
// With the ollama provider it first makes sure both models are pulled.
func newPipeline(ctx context.Context, cfg config.Config, store *storage.Store) (*ingestion.Pipeline, error) {
	if err := cfg.RequireLLM(); err != nil {
		return nil, err
	}
	completer, err := llm.New(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}
	if oc, ok := completer.(*llm.OllamaClient); ok {
		if err := oc.EnsureModels(ctx, []string{cfg.LLM.ScorerModel, cfg.LLM.ValidatorModel}, stderr); err != nil {
			return nil, err
		}
	}

	fetcher := reddit.NewClient(cfg.Reddit, reddit.NewThrottle(cfg.Reddit.ThrottleInterval()))
	scorer := scoring.NewScorer(completer, cfg.LLM.ScorerModel)
	validator := scoring.NewValidator(completer, cfg.LLM.ValidatorModel)

	return ingestion.NewPipeline(fetcher, scorer, validator, store, cfg), nil
}

func closeStore(store *storage.Store) {
	if err := store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}

// newLocker returns the Redis run lock when redis.addr is set and the
// in-process one otherwise. The returned close func is never nil.
func newLocker(cfg config.Config) (runlock.Locker, func()) {
	if cfg.Redis.Addr == "" {
		return runlock.NewLocal(), func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	slog.Info("using redis run lock", "addr", cfg.Redis.Addr)
	return runlock.NewRedis(rdb, runLockKey, runLockTTL), func() {
		if err := rdb.Close(); err != nil {
			slog.Warn("closing redis client", "error", err)
		}
	}
}
