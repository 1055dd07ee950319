package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pario-ai/relay/pkg/models"
	"github.com/pario-ai/relay/pkg/router"
	"github.com/pario-ai/relay/pkg/selector"
)

type routeArgs struct {
	Query        string             `json:"query"`
	SystemPrompt string             `json:"system_prompt"`
	Candidates   []models.BackendID `json:"candidates"`
	Strategy     string             `json:"strategy"`
	NoCache      bool               `json:"no_cache"`
}

type selectArgs struct {
	Strategy string `json:"strategy"`
}

type auditSearchArgs struct {
	Backend     string `json:"backend"`
	Outcome     string `json:"outcome"`
	Fingerprint string `json:"fingerprint"`
	Since       string `json:"since"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"relay_route":        handleRoute,
	"relay_health":       handleHealth,
	"relay_metrics":      handleMetrics,
	"relay_select":       handleSelect,
	"relay_cache_stats":  handleCacheStats,
	"relay_audit_search": handleAuditSearch,
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "relay_route",
		Description: "Route a query through the backends in order, failing over until one answers.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"query"},
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The query text",
				},
				"system_prompt": map[string]any{
					"type":        "string",
					"description": "System prompt sent to the backend (optional)",
				},
				"candidates": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Explicit backend order, e.g. [\"claude\", \"openai\"] (optional)",
				},
				"strategy": map[string]any{
					"type":        "string",
					"enum":        []string{"cheapest", "healthiest", "fastest"},
					"description": "Ordering strategy when no candidates are given (optional)",
				},
				"no_cache": map[string]any{
					"type":        "boolean",
					"description": "Skip the cache lookup (optional)",
				},
			},
		},
	},
	{
		Name:        "relay_health",
		Description: "Probe every backend and report which ones are healthy.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "relay_metrics",
		Description: "Show per-backend attempts, successes, failures, cost and availability.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "relay_select",
		Description: "Show the backend order a strategy would produce right now.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"strategy": map[string]any{
					"type":        "string",
					"enum":        []string{"cheapest", "healthiest", "fastest"},
					"description": "The ordering strategy (defaults to cheapest)",
				},
			},
		},
	},
	{
		Name:        "relay_cache_stats",
		Description: "Show result cache statistics (entries, hits, misses, hit rate).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "relay_audit_search",
		Description: "Search the route audit log with optional filters.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"backend": map[string]any{
					"type":        "string",
					"description": "Filter by answering backend (optional)",
				},
				"outcome": map[string]any{
					"type":        "string",
					"enum":        []string{"success", "cached", "exhausted"},
					"description": "Filter by outcome (optional)",
				},
				"fingerprint": map[string]any{
					"type":        "string",
					"description": "Filter by query fingerprint (optional)",
				},
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (optional)",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func handleRoute(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args routeArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}
	if args.Query == "" {
		return errorResult("query is required")
	}

	q := models.NewQuery(args.Query)
	q.SystemPrompt = args.SystemPrompt
	opts := router.Options{Candidates: args.Candidates, NoCache: args.NoCache}
	if args.Strategy != "" {
		strategy, err := selector.ParseStrategy(args.Strategy)
		if err != nil {
			return errorResult(err.Error())
		}
		opts.Strategy = strategy
	}

	res, err := s.router.Route(ctx, q, opts)
	if err != nil {
		return errorResult("Routing failed: " + err.Error())
	}
	return textResult(formatResult(res))
}

func handleHealth(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatHealth(s.router.CheckHealth(ctx)))
}

func handleMetrics(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatMetrics(s.router.AllMetrics()))
}

func handleSelect(_ context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args selectArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	strategy, err := selector.ParseStrategy(args.Strategy)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(formatOrder(strategy, s.router.Order(strategy)))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	stats, err := s.router.CacheStats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

func handleAuditSearch(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.auditor == nil {
		return textResult("Audit logging is not configured.")
	}
	var args auditSearchArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	opts := models.AuditQueryOpts{
		Backend:     models.BackendID(args.Backend),
		Outcome:     models.RouteOutcome(args.Outcome),
		Fingerprint: args.Fingerprint,
		Limit:       50,
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	entries, err := s.auditor.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching audit log: " + err.Error())
	}
	return textResult(formatAuditEntries(entries))
}
