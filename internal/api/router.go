// Package api serves the cron triggers, owner-scoped signal reads and the
// MCP endpoint over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pingbase/pingbase/internal/domain"
	"github.com/pingbase/pingbase/internal/ingestion"
	"github.com/pingbase/pingbase/internal/retention"
	"github.com/pingbase/pingbase/internal/storage"
)

// IngestionRunner starts a background ingestion run.
type IngestionRunner interface {
	Start(ctx context.Context, done func(ingestion.RunResult, error)) error
}

type RetentionSweeper interface {
	Sweep(ctx context.Context) (retention.Result, error)
}

// SignalReader is one owner's view of their signals.
type SignalReader interface {
	ListTargets(ctx context.Context) ([]domain.Target, error)
	ListSignals(ctx context.Context, targetID string, page, pageSize int) (storage.SignalPage, error)
	SignalCounts(ctx context.Context, targetIDs []string) (map[string]storage.SignalCount, error)
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Ingestion IngestionRunner
	Retention RetentionSweeper
	// Signals returns the read view for a user.
	Signals  func(userID string) SignalReader
	Store    Pinger
	Token    string
	PageSize int
	// RunContext bounds background runs started by requests. It must
	// outlive the request; usually the server's lifetime context.
	RunContext context.Context
	// MCP is mounted at /mcp when set.
	MCP http.Handler
}

func NewHandler(deps Deps) http.Handler {
	if deps.RunContext == nil {
		deps.RunContext = context.Background()
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/cron/ingest", handleCronIngest(deps))
		r.Post("/cron/retention", handleCronRetention(deps))

		r.Get("/v1/users/{userID}/targets/{targetID}/signals", handleListSignals(deps))
		r.Get("/v1/users/{userID}/signal-counts", handleSignalCounts(deps))

		if deps.MCP != nil {
			r.Handle("/mcp", deps.MCP)
		}
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Store != nil {
			if err := deps.Store.Ping(r.Context()); err != nil {
				httpError(w, http.StatusServiceUnavailable, "api_error", "store unavailable: %v", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
