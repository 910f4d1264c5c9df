package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pingbase/pingbase/internal/config"
	"github.com/pingbase/pingbase/internal/domain"
	"github.com/pingbase/pingbase/internal/policy"
	"github.com/pingbase/pingbase/internal/runlock"
	"github.com/pingbase/pingbase/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (Deps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	show := policy.ShowPolicy(config.Default().Signals)
	return Deps{
		Ingestion: newMockIngestion(),
		Signals: func(userID string) SignalReader {
			return store.ForOwner(userID, show)
		},
		Store:    store,
		PageSize: 20,
	}, store
}

func seedSignals(t *testing.T, store *storage.Store, userID string, scores ...int) domain.Target {
	t.Helper()
	ctx := context.Background()
	target, err := store.SaveTarget(ctx, domain.Target{
		UserID:     userID,
		Name:       "Ledgerly",
		Keywords:   []string{"net worth tracker"},
		Subreddits: []string{"personalfinance"},
	})
	if err != nil {
		t.Fatalf("saving target: %v", err)
	}

	title := "Which tracker?"
	decision := domain.DecisionApprove
	confidence := 95
	posted := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	rows := make([]storage.SignalRow, len(scores))
	for i, score := range scores {
		s1 := score
		rows[i] = storage.SignalRow{
			TargetID:            target.ID,
			UserID:              userID,
			Platform:            domain.PlatformReddit,
			Kind:                domain.KindPost,
			URL:                 "https://www.reddit.com/r/personalfinance/comments/x" + string(rune('a'+i)),
			ExternalID:          "t3_x" + string(rune('a'+i)),
			Community:           "personalfinance",
			Title:               &title,
			ContentExcerpt:      "Looking for a tracker.",
			DatePosted:          posted.Add(time.Duration(i) * time.Hour),
			Score:               score,
			Reason:              "Direct ask.",
			SpecificAsk:         true,
			FitGrade:            domain.FitStrong,
			PromoRisk:           domain.PromoLow,
			ScorerConfidence:    90,
			Stage1Score:         &s1,
			ValidatorDecision:   &decision,
			ValidatorConfidence: &confidence,
			ScoreVersion:        domain.ScoreVersion,
			Status:              domain.StatusNew,
		}
	}
	if _, err := store.UpsertSignals(ctx, rows); err != nil {
		t.Fatalf("upserting signals: %v", err)
	}
	return target
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// --- tests ---

func TestNewMCPServer(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	if s := NewMCPServer(deps); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPListTargets(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	target := seedSignals(t, store, "u1")
	seedSignals(t, store, "u2")

	result, err := mcpListTargets(deps)(context.Background(), makeCallToolRequest("list_targets", map[string]interface{}{
		"user_id": "u1",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var got []targetSummary
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(got) != 1 || got[0].ID != target.ID {
		t.Errorf("targets = %+v, want only %s", got, target.ID)
	}
}

func TestMCPListSignalsHidesBelowThreshold(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	target := seedSignals(t, store, "u1", 90, 60, 95)

	result, err := mcpListSignals(deps)(context.Background(), makeCallToolRequest("list_signals", map[string]interface{}{
		"user_id":   "u1",
		"target_id": target.ID,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var page storage.SignalPage
	if err := json.Unmarshal([]byte(toolText(t, result)), &page); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if page.Total != 2 {
		t.Errorf("total = %d, want 2", page.Total)
	}
	for _, s := range page.Signals {
		if s.Score < 85 {
			t.Errorf("signal %s with score %d should be hidden", s.ID, s.Score)
		}
	}
	if len(page.Signals) == 2 && page.Signals[0].Score != 95 {
		t.Errorf("expected newest first, got %+v", page.Signals)
	}
}

func TestMCPListSignalsOtherOwner(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	target := seedSignals(t, store, "u1", 90)

	result, err := mcpListSignals(deps)(context.Background(), makeCallToolRequest("list_signals", map[string]interface{}{
		"user_id":   "intruder",
		"target_id": target.ID,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for a target owned by someone else")
	}
	if !strings.Contains(toolText(t, result), "not found") {
		t.Errorf("message = %q", toolText(t, result))
	}
}

func TestMCPListSignalsMissingArgs(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpListSignals(deps)(context.Background(), makeCallToolRequest("list_signals", map[string]interface{}{
		"user_id": "u1",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error when target_id is missing")
	}
}

func TestMCPSignalCounts(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	target := seedSignals(t, store, "u1", 90, 92, 20)

	result, err := mcpSignalCounts(deps)(context.Background(), makeCallToolRequest("signal_counts", map[string]interface{}{
		"user_id":    "u1",
		"target_ids": target.ID + ", unknown",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var counts map[string]storage.SignalCount
	if err := json.Unmarshal([]byte(toolText(t, result)), &counts); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got := counts[target.ID]; got.New != 2 || got.Total != 2 {
		t.Errorf("counts[%s] = %+v, want 2/2", target.ID, got)
	}
	if got, ok := counts["unknown"]; !ok || got.Total != 0 {
		t.Errorf("unknown target should report zero, got %+v (present=%v)", got, ok)
	}
}

func TestMCPSignalCountsEmpty(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpSignalCounts(deps)(context.Background(), makeCallToolRequest("signal_counts", map[string]interface{}{
		"user_id":    "u1",
		"target_ids": " , ",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error for empty target list")
	}
}

func TestMCPRunIngestion(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	ing := deps.Ingestion.(*mockIngestion)

	result, err := mcpRunIngestion(deps)(context.Background(), makeCallToolRequest("run_ingestion", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	select {
	case <-ing.done:
	case <-time.After(2 * time.Second):
		t.Fatal("background run did not finish")
	}
}

func TestMCPRunIngestionHeld(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Ingestion.(*mockIngestion).err = runlock.ErrHeld

	result, err := mcpRunIngestion(deps)(context.Background(), makeCallToolRequest("run_ingestion", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error while a run is in progress")
	}
	if !strings.Contains(toolText(t, result), "already in progress") {
		t.Errorf("message = %q", toolText(t, result))
	}
}
