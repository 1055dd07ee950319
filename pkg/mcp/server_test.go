package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pario-ai/relay/pkg/backend"
	"github.com/pario-ai/relay/pkg/models"
	"github.com/pario-ai/relay/pkg/router"
)

type failing struct{ *backend.Simulated }

func (f failing) Invoke(context.Context, models.Query) (*models.Result, error) {
	return nil, errors.New("provider unavailable")
}

// fakeAuditor implements AuditSearcher for testing.
type fakeAuditor struct {
	entries []models.AuditEntry
	last    models.AuditQueryOpts
}

func (f *fakeAuditor) Query(_ context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	f.last = opts
	return f.entries, nil
}

func newRouter(t *testing.T) *router.Router {
	t.Helper()
	rt, err := router.New([]router.Registration{
		{ID: models.BackendGemini, Backend: failing{backend.NewSimulated(models.BackendGemini)}},
		{ID: models.BackendClaude, Backend: backend.NewSimulated(models.BackendClaude)},
		{ID: models.BackendOpenAI, Backend: backend.NewSimulated(models.BackendOpenAI)},
	}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return rt
}

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name, args string) ToolCallResult {
	t.Helper()
	p := ToolCallParams{Name: name}
	if args != "" {
		p.Arguments = json.RawMessage(args)
	}
	params, _ := json.Marshal(p)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`3`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Content) == 0 {
		t.Fatal("expected content")
	}
	return result
}

func TestInitialize(t *testing.T) {
	srv := New(newRouter(t), nil, nil, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	json.Unmarshal(data, &result)

	if result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocol version = %s, want 2024-11-05", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "relay" || result.ServerInfo.Version != "test" {
		t.Errorf("server info = %+v", result.ServerInfo)
	}
}

func TestToolsList(t *testing.T) {
	srv := New(newRouter(t), nil, nil, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	json.Unmarshal(data, &result)

	if len(result.Tools) != len(toolHandlers) {
		t.Errorf("got %d tools, want %d", len(result.Tools), len(toolHandlers))
	}
	for _, tool := range result.Tools {
		if _, ok := toolHandlers[tool.Name]; !ok {
			t.Errorf("tool %s has no handler", tool.Name)
		}
	}
}

func TestToolCallRoute(t *testing.T) {
	srv := New(newRouter(t), nil, nil, "test")

	result := callTool(t, srv, "relay_route", `{"query":"What is AI?"}`)
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content[0].Text)
	}
	text := result.Content[0].Text
	if !strings.Contains(text, "Backend: claude") {
		t.Errorf("expected failover to claude, got: %s", text)
	}
	if !strings.Contains(text, "[Claude response to: What is AI?...]") {
		t.Errorf("expected response text, got: %s", text)
	}
}

func TestToolCallRouteErrors(t *testing.T) {
	srv := New(newRouter(t), nil, nil, "test")

	tests := []struct {
		name string
		args string
		want string
	}{
		{"missing query", `{}`, "query is required"},
		{"bad strategy", `{"query":"q","strategy":"random"}`, "unknown strategy"},
		{"unknown backend", `{"query":"q","candidates":["mistral"]}`, "unknown backend"},
		{"exhausted", `{"query":"q","candidates":["gemini"]}`, "all candidate backends failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := callTool(t, srv, "relay_route", tt.args)
			if !result.IsError {
				t.Fatalf("expected isError, got: %s", result.Content[0].Text)
			}
			if !strings.Contains(result.Content[0].Text, tt.want) {
				t.Errorf("expected %q in %q", tt.want, result.Content[0].Text)
			}
		})
	}
}

func TestToolCallHealth(t *testing.T) {
	srv := New(newRouter(t), nil, nil, "test")

	text := callTool(t, srv, "relay_health", "").Content[0].Text
	for _, want := range []string{"gemini", "claude", "openai", "healthy"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got: %s", want, text)
		}
	}
}

func TestToolCallMetrics(t *testing.T) {
	rt := newRouter(t)
	srv := New(rt, nil, nil, "test")
	if _, err := rt.Route(context.Background(), models.NewQuery("hello"), router.Options{}); err != nil {
		t.Fatal(err)
	}

	text := callTool(t, srv, "relay_metrics", "").Content[0].Text
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header, rule and 3 rows, got:\n%s", text)
	}
	if !strings.HasPrefix(lines[2], "gemini") || !strings.Contains(lines[2], "0.0%") {
		t.Errorf("expected failed gemini row, got: %s", lines[2])
	}
}

func TestToolCallSelect(t *testing.T) {
	srv := New(newRouter(t), nil, nil, "test")

	text := callTool(t, srv, "relay_select", `{"strategy":"fastest"}`).Content[0].Text
	if !strings.Contains(text, "gemini → claude → openai") {
		t.Errorf("unexpected order: %s", text)
	}

	text = callTool(t, srv, "relay_select", "").Content[0].Text
	if !strings.Contains(text, "Strategy cheapest selects gemini") {
		t.Errorf("expected cheapest by default, got: %s", text)
	}

	if res := callTool(t, srv, "relay_select", `{"strategy":"random"}`); !res.IsError {
		t.Error("expected isError for unknown strategy")
	}
}

func TestToolCallCacheStats(t *testing.T) {
	rt := newRouter(t)
	srv := New(rt, nil, nil, "test")
	ctx := context.Background()
	q := models.NewQuery("cache me")
	for i := 0; i < 3; i++ {
		if _, err := rt.Route(ctx, q, router.Options{}); err != nil {
			t.Fatal(err)
		}
	}

	text := callTool(t, srv, "relay_cache_stats", "").Content[0].Text
	if !strings.Contains(text, "Entries:  1") || !strings.Contains(text, "66.7%") {
		t.Errorf("unexpected cache stats output: %s", text)
	}
}

func TestToolCallAuditNotConfigured(t *testing.T) {
	srv := New(newRouter(t), nil, nil, "test")

	text := callTool(t, srv, "relay_audit_search", "").Content[0].Text
	if !strings.Contains(text, "not configured") {
		t.Errorf("expected 'not configured', got: %s", text)
	}
}

func TestToolCallAuditSearch(t *testing.T) {
	auditor := &fakeAuditor{entries: []models.AuditEntry{{
		RouteID:   "r1",
		Outcome:   models.OutcomeSuccess,
		Backend:   models.BackendClaude,
		Attempted: []models.BackendID{models.BackendGemini, models.BackendClaude},
		Cost:      0.0151,
		LatencyMs: 12,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}}
	srv := New(newRouter(t), auditor, nil, "test")

	text := callTool(t, srv, "relay_audit_search", `{"backend":"claude","since":"2026-03-01"}`).Content[0].Text
	if !strings.Contains(text, "gemini,claude") || !strings.Contains(text, "2026-03-01 12:00:00") {
		t.Errorf("unexpected audit output: %s", text)
	}
	if auditor.last.Backend != models.BackendClaude || auditor.last.Since.IsZero() || auditor.last.Limit != 50 {
		t.Errorf("unexpected query opts: %+v", auditor.last)
	}

	if res := callTool(t, srv, "relay_audit_search", `{"since":"yesterday"}`); !res.IsError {
		t.Error("expected isError for bad since date")
	}
}

func TestUnknownTool(t *testing.T) {
	srv := New(newRouter(t), nil, nil, "test")

	result := callTool(t, srv, "pario_stats", "")
	if !result.IsError {
		t.Error("expected isError for unknown tool")
	}
}

func TestNotificationNoResponse(t *testing.T) {
	srv := New(newRouter(t), nil, nil, "test")

	line, _ := json.Marshal(Request{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})
	line = append(line, '\n')

	var out bytes.Buffer
	_ = srv.Run(context.Background(), bytes.NewReader(line), &out)

	if out.Len() != 0 {
		t.Errorf("expected no output for notification, got: %s", out.String())
	}
}

func TestUnknownMethod(t *testing.T) {
	srv := New(newRouter(t), nil, nil, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`9`),
		Method:  "unknown/method",
	})

	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}
