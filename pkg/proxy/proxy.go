// Package proxy serves an OpenAI-compatible chat completions endpoint on top
// of the router, so existing OpenAI clients can use relay as their base URL.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/pario-ai/relay/pkg/models"
	"github.com/pario-ai/relay/pkg/router"
	"github.com/pario-ai/relay/pkg/selector"
)

const maxBodyBytes = 1 << 20

// Request headers that steer routing for a single call.
const (
	HeaderBackends = "X-Relay-Backends"
	HeaderStrategy = "X-Relay-Strategy"
	HeaderBackend  = "X-Relay-Backend"
)

const roleDeveloper = "developer"

// Router routes a query. *router.Router satisfies it.
type Router interface {
	Route(ctx context.Context, q models.Query, opts router.Options) (*models.Result, error)
}

// Handler translates chat completion requests into routed queries.
type Handler struct {
	router Router
	logger *zap.Logger
}

// New creates a Handler over rt.
func New(rt Router, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{router: rt, logger: logger.With(zap.String("component", "proxy"))}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	r.Body.Close()

	var req openai.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Stream {
		writeJSONError(w, http.StatusBadRequest, "streaming is not supported")
		return
	}
	// The request type drops the difference between an explicit zero and an
	// omitted temperature.
	var sampling struct {
		Temperature *float64 `json:"temperature"`
	}
	_ = json.Unmarshal(body, &sampling)

	q, err := toQuery(req, sampling.Temperature)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts, err := routeOptions(r.Header)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.router.Route(r.Context(), q, opts)
	if err != nil {
		h.writeRouteError(w, err)
		return
	}

	w.Header().Set(HeaderBackend, string(res.Backend))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toResponse(req.Model, res))
}

// toQuery takes the last user message as the query text and joins system and
// developer messages into the system prompt. Earlier turns are not forwarded.
// A nil temperature keeps the query default.
func toQuery(req openai.ChatCompletionRequest, temperature *float64) (models.Query, error) {
	var (
		text   string
		system []string
	)
	for _, m := range req.Messages {
		switch m.Role {
		case openai.ChatMessageRoleSystem, roleDeveloper:
			if c := messageText(m); c != "" {
				system = append(system, c)
			}
		case openai.ChatMessageRoleUser:
			text = messageText(m)
		}
	}
	if text == "" {
		return models.Query{}, errors.New("a non-empty user message is required")
	}

	q := models.NewQuery(text)
	q.Model = req.Model
	q.SystemPrompt = strings.Join(system, "\n\n")
	if temperature != nil {
		q.Temperature = *temperature
	}
	switch {
	case req.MaxCompletionTokens > 0:
		q.MaxTokens = req.MaxCompletionTokens
	case req.MaxTokens > 0:
		q.MaxTokens = req.MaxTokens
	}
	return q, nil
}

func messageText(m openai.ChatCompletionMessage) string {
	if m.Content != "" {
		return m.Content
	}
	var parts []string
	for _, p := range m.MultiContent {
		if p.Type == openai.ChatMessagePartTypeText && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func routeOptions(h http.Header) (router.Options, error) {
	var opts router.Options
	if v := h.Get(HeaderBackends); v != "" {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				opts.Candidates = append(opts.Candidates, models.BackendID(name))
			}
		}
	}
	if v := h.Get(HeaderStrategy); v != "" {
		st, err := selector.ParseStrategy(v)
		if err != nil {
			return opts, err
		}
		opts.Strategy = st
	}
	if strings.Contains(h.Get("Cache-Control"), "no-cache") {
		opts.NoCache = true
	}
	return opts, nil
}

func toResponse(model string, res *models.Result) openai.ChatCompletionResponse {
	if model == "" {
		model = string(res.Backend)
	}
	return openai.ChatCompletionResponse{
		ID:      "chatcmpl-" + res.ID,
		Object:  "chat.completion",
		Created: res.CreatedAt.Unix(),
		Model:   model,
		Choices: []openai.ChatCompletionChoice{{
			Index: 0,
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: res.Text,
			},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{
			CompletionTokens: res.Units,
			TotalTokens:      res.Units,
		},
	}
}

func (h *Handler) writeRouteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, router.ErrNoCandidates),
		errors.Is(err, router.ErrUnknownBackend):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, router.ErrExhausted):
		h.logger.Warn("all backends failed", zap.Error(err))
		writeJSONError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("route failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(openai.ErrorResponse{Error: &openai.APIError{
		Code:           code,
		Message:        message,
		Type:           "relay_error",
		HTTPStatusCode: code,
	}})
}
