package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pingbase/pingbase/internal/storage"
)

const maxPageSize = 100

func handleListSignals(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		targetID := chi.URLParam(r, "targetID")

		page := parseIntParam(r, "page", 1, 0)
		pageSize := parseIntParam(r, "page_size", deps.PageSize, maxPageSize)

		res, err := deps.Signals(userID).ListSignals(r.Context(), targetID, page, pageSize)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "target %s not found", targetID)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list signals: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleSignalCounts accepts repeated or comma-separated target_id values.
func handleSignalCounts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		var ids []string
		for _, v := range r.URL.Query()["target_id"] {
			for _, id := range strings.Split(v, ",") {
				if id = strings.TrimSpace(id); id != "" {
					ids = append(ids, id)
				}
			}
		}
		if len(ids) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one target_id is required")
			return
		}

		counts, err := deps.Signals(userID).SignalCounts(r.Context(), ids)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count signals: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, counts)
	}
}

// parseIntParam returns def when the parameter is missing or not a positive
// integer, and caps the result at max when max > 0.
func parseIntParam(r *http.Request, name string, def, max int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}
