package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pario-ai/relay/pkg/models"
)

// OpenAI invokes an OpenAI-compatible chat completions API.
type OpenAI struct {
	id      models.BackendID
	client  *openai.Client
	model   string
	cost    float64
	latency time.Duration
}

// OpenAIOptions configures an OpenAI backend.
type OpenAIOptions struct {
	ID          models.BackendID
	APIKey      string
	BaseURL     string
	Model       string
	CostPerUnit float64
	LatencyHint time.Duration
	HTTPClient  *http.Client
}

// NewOpenAI creates an OpenAI backend.
func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if opts.Model == "" {
		return nil, errors.New("openai backend: model not configured")
	}
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = "not-needed" // local OpenAI-compatible servers
	}
	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	return &OpenAI{
		id:      opts.ID,
		client:  openai.NewClientWithConfig(cfg),
		model:   opts.Model,
		cost:    opts.CostPerUnit,
		latency: opts.LatencyHint,
	}, nil
}

// Invoke sends the query as a single-turn chat completion.
func (o *OpenAI) Invoke(ctx context.Context, q models.Query) (*models.Result, error) {
	model := o.model
	if q.Model != "" {
		model = q.Model
	}

	var messages []openai.ChatCompletionMessage
	if q.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: q.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: q.Text})

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(q.Temperature),
		MaxTokens:   q.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai chat completion: no choices returned")
	}

	units := resp.Usage.TotalTokens
	return &models.Result{
		Backend:   o.id,
		Text:      resp.Choices[0].Message.Content,
		Units:     units,
		Cost:      unitCost(units, o.cost),
		Latency:   time.Since(start),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// HealthProbe lists models; any API error means unhealthy.
func (o *OpenAI) HealthProbe(ctx context.Context) (bool, error) {
	if _, err := o.client.ListModels(ctx); err != nil {
		return false, fmt.Errorf("openai list models: %w", err)
	}
	return true, nil
}

// CostPerUnit returns the configured price per 1000 units.
func (o *OpenAI) CostPerUnit() float64 { return o.cost }

// LatencyHint returns the configured latency hint.
func (o *OpenAI) LatencyHint() time.Duration { return o.latency }
