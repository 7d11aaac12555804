package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/focusd/internal/store"
)

// MCPDeps holds dependencies for the MCP server. All tools are read-only
// views of agent state; blocking and login stay on the HTTP surface.
type MCPDeps struct {
	Tracker   SessionTracker
	Store     *store.Store
	Realtime  RealtimeControl
	Blocklist BlockTable
}

// NewMCPServer creates an MCP server exposing the agent to assistants.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"focusd",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("focusd — local attention-monitoring agent. Read-only tools for session state, history, and the blocklist."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("attention_status",
			mcp.WithDescription("Current attention session, realtime channel state, and sync queue depth."),
		),
		mcpAttentionStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("recent_sessions",
			mcp.WithDescription("Recently finalized attention sessions, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of sessions (default 10)")),
		),
		mcpRecentSessions(deps),
	)

	s.AddTool(
		mcp.NewTool("list_blocked",
			mcp.WithDescription("Domains currently in the blocking policy table."),
		),
		mcpListBlocked(deps),
	)

	return s
}

func mcpAttentionStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		depth, err := deps.Store.QueueDepth()
		if err != nil {
			return mcpError(fmt.Sprintf("reading queue depth: %v", err)), nil
		}

		b, err := json.Marshal(map[string]any{
			"session":     deps.Tracker.Snapshot(),
			"realtime":    deps.Realtime.Status(),
			"queue_depth": depth,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("marshaling status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecentSessions(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		sessions, err := deps.Store.RecentSessions(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("listing sessions: %v", err)), nil
		}
		if len(sessions) == 0 {
			return mcpText("[]"), nil
		}

		type sessionSummary struct {
			ResourceKey     string `json:"resource_key"`
			Title           string `json:"title,omitempty"`
			Start           string `json:"start"`
			DurationSeconds int    `json:"duration_seconds"`
			Class           string `json:"class,omitempty"`
		}
		summaries := make([]sessionSummary, len(sessions))
		for i, s := range sessions {
			title := s.Title
			if utf8.RuneCountInString(title) > 200 {
				runes := []rune(title)
				title = string(runes[:200]) + "..."
			}
			summaries[i] = sessionSummary{
				ResourceKey:     s.ResourceKey,
				Title:           title,
				Start:           s.Start.Format(time.RFC3339),
				DurationSeconds: s.DurationSeconds,
				Class:           s.Class,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("marshaling sessions: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListBlocked(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		domains, err := deps.Blocklist.List()
		if err != nil {
			return mcpError(fmt.Sprintf("listing blocklist: %v", err)), nil
		}
		if domains == nil {
			domains = []string{}
		}

		b, err := json.Marshal(domains)
		if err != nil {
			return mcpError(fmt.Sprintf("marshaling blocklist: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
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
