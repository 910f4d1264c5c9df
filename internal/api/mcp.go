package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pingbase/pingbase/internal/ingestion"
	"github.com/pingbase/pingbase/internal/runlock"
	"github.com/pingbase/pingbase/internal/storage"
)

// NewMCPServer exposes the read paths and the ingestion trigger as MCP tools.
func NewMCPServer(deps Deps) *server.MCPServer {
	if deps.RunContext == nil {
		deps.RunContext = context.Background()
	}

	s := server.NewMCPServer(
		"pingbase",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("pingbase: Reddit posts and comments scored for fit against your targets."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_targets",
			mcp.WithDescription("List a user's monitoring targets"),
			mcp.WithString("user_id", mcp.Description("Owner of the targets"), mcp.Required()),
		),
		mcpListTargets(deps),
	)

	s.AddTool(
		mcp.NewTool("list_signals",
			mcp.WithDescription("List visible signals for a target, newest first"),
			mcp.WithString("user_id", mcp.Description("Owner of the target"), mcp.Required()),
			mcp.WithString("target_id", mcp.Description("Target to list signals for"), mcp.Required()),
			mcp.WithNumber("page", mcp.Description("1-based page number (default 1)")),
			mcp.WithNumber("page_size", mcp.Description("Signals per page (default 20, max 100)")),
		),
		mcpListSignals(deps),
	)

	s.AddTool(
		mcp.NewTool("signal_counts",
			mcp.WithDescription("Count new and total visible signals per target"),
			mcp.WithString("user_id", mcp.Description("Owner of the targets"), mcp.Required()),
			mcp.WithString("target_ids", mcp.Description("Comma-separated target IDs"), mcp.Required()),
		),
		mcpSignalCounts(deps),
	)

	s.AddTool(
		mcp.NewTool("run_ingestion",
			mcp.WithDescription("Start an ingestion run over all targets in the background"),
		),
		mcpRunIngestion(deps),
	)

	return s
}

type targetSummary struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Keywords      []string   `json:"keywords"`
	Subreddits    []string   `json:"subreddits"`
	LastScannedAt *time.Time `json:"last_scanned_at"`
}

func mcpListTargets(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}

		ts, err := deps.Signals(userID).ListTargets(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list targets: %v", err)), nil
		}
		out := make([]targetSummary, 0, len(ts))
		for _, t := range ts {
			out = append(out, targetSummary{
				ID:            t.ID,
				Name:          t.Name,
				Description:   t.Description,
				Keywords:      t.Keywords,
				Subreddits:    t.Subreddits,
				LastScannedAt: t.LastScannedAt,
			})
		}
		return mcpJSON(out)
	}
}

func mcpListSignals(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		targetID, err := req.RequireString("target_id")
		if err != nil {
			return mcpError("target_id is required"), nil
		}

		page := req.GetInt("page", 1)
		pageSize := req.GetInt("page_size", deps.PageSize)
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}

		res, err := deps.Signals(userID).ListSignals(ctx, targetID, page, pageSize)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("target %s not found", targetID)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list signals: %v", err)), nil
		}
		return mcpJSON(res)
	}
}

func mcpSignalCounts(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		raw, err := req.RequireString("target_ids")
		if err != nil {
			return mcpError("target_ids is required"), nil
		}

		var ids []string
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return mcpError("target_ids must name at least one target"), nil
		}

		counts, err := deps.Signals(userID).SignalCounts(ctx, ids)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to count signals: %v", err)), nil
		}
		return mcpJSON(counts)
	}
}

func mcpRunIngestion(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		err := deps.Ingestion.Start(deps.RunContext, func(res ingestion.RunResult, err error) {
			if err != nil {
				slog.Error("mcp ingestion failed", "error", err)
				return
			}
			slog.Info("mcp ingestion done", "targets_processed", res.TargetsProcessed, "inserted", res.Totals.Inserted, "errors", len(res.Errors))
		})
		if errors.Is(err, runlock.ErrHeld) {
			return mcpError("an ingestion run is already in progress"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("starting ingestion: %v", err)), nil
		}
		return mcpText("Ingestion started in the background."), nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
