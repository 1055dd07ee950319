package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pario-ai/relay/pkg/models"
)

func newAnthropicServer(t *testing.T, fail bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "sk-ant" {
			t.Errorf("missing API key header")
		}
		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "api_error", "message": "overloaded"}}`))
			return
		}
		switch r.URL.Path {
		case "/v1/messages":
			_, _ = w.Write([]byte(`{
				"id": "msg_1",
				"type": "message",
				"role": "assistant",
				"model": "claude-test",
				"content": [{"type": "text", "text": "Bonjour"}],
				"stop_reason": "end_turn",
				"usage": {"input_tokens": 12, "output_tokens": 8}
			}`))
		case "/v1/models":
			_, _ = w.Write([]byte(`{
				"data": [{"id": "claude-test", "type": "model", "display_name": "Claude Test", "created_at": "2025-01-01T00:00:00Z"}],
				"has_more": false,
				"first_id": "claude-test",
				"last_id": "claude-test"
			}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnthropicInvoke(t *testing.T) {
	srv := newAnthropicServer(t, false)
	b, err := NewAnthropic(AnthropicOptions{
		ID:          models.BackendClaude,
		APIKey:      "sk-ant",
		BaseURL:     srv.URL,
		Model:       "claude-test",
		CostPerUnit: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := b.Invoke(context.Background(), models.NewQuery("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "Bonjour" {
		t.Errorf("unexpected text %q", res.Text)
	}
	if res.Units != 20 {
		t.Errorf("expected 20 units, got %d", res.Units)
	}
	if res.Cost != 0.02 {
		t.Errorf("expected cost 0.02, got %f", res.Cost)
	}

	ok, err := b.HealthProbe(context.Background())
	if !ok || err != nil {
		t.Errorf("expected healthy probe, got %v %v", ok, err)
	}
}

func TestAnthropicFailure(t *testing.T) {
	srv := newAnthropicServer(t, true)
	b, _ := NewAnthropic(AnthropicOptions{ID: models.BackendClaude, APIKey: "sk-ant", BaseURL: srv.URL, Model: "claude-test"})

	if _, err := b.Invoke(context.Background(), models.NewQuery("hello")); err == nil {
		t.Error("expected invoke error")
	}
	ok, err := b.HealthProbe(context.Background())
	if ok || err == nil {
		t.Errorf("expected unhealthy probe with error, got %v %v", ok, err)
	}
}
