package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pingbase/pingbase/internal/ingestion"
	"github.com/pingbase/pingbase/internal/runlock"
)

type startedResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type retentionResponse struct {
	Deleted int64  `json:"deleted"`
	Cutoff  string `json:"cutoff"`
}

// handleCronIngest answers 202 immediately; the run continues on
// deps.RunContext and logs its own result.
func handleCronIngest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Ingestion.Start(deps.RunContext, func(res ingestion.RunResult, err error) {
			if err != nil {
				slog.Error("cron ingestion failed", "error", err)
				return
			}
			slog.Info("cron ingestion done", "targets_processed", res.TargetsProcessed, "inserted", res.Totals.Inserted, "errors", len(res.Errors))
		})
		if errors.Is(err, runlock.ErrHeld) {
			httpError(w, http.StatusConflict, "conflict_error", "an ingestion run is already in progress")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "starting ingestion: %v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, startedResponse{
			Status:  "started",
			Message: "Ingestion running in background. Check server logs for result.",
		})
	}
}

func handleCronRetention(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Retention.Sweep(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "retention cleanup failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, retentionResponse{
			Deleted: res.Deleted,
			Cutoff:  res.Cutoff.UTC().Format(time.RFC3339Nano),
		})
	}
}
