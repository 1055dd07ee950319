package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pario-ai/relay/pkg/models"
)

// Anthropic invokes the Anthropic messages API.
type Anthropic struct {
	id      models.BackendID
	client  *anthropic.Client
	model   string
	cost    float64
	latency time.Duration
}

// AnthropicOptions configures an Anthropic backend.
type AnthropicOptions struct {
	ID          models.BackendID
	APIKey      string
	BaseURL     string
	Model       string
	CostPerUnit float64
	LatencyHint time.Duration
	HTTPClient  *http.Client
}

// NewAnthropic creates an Anthropic backend.
func NewAnthropic(opts AnthropicOptions) (*Anthropic, error) {
	if opts.APIKey == "" {
		return nil, errors.New("anthropic backend: API key not configured")
	}
	if opts.Model == "" {
		return nil, errors.New("anthropic backend: model not configured")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	client := anthropic.NewClient(reqOpts...)

	return &Anthropic{
		id:      opts.ID,
		client:  &client,
		model:   opts.Model,
		cost:    opts.CostPerUnit,
		latency: opts.LatencyHint,
	}, nil
}

// Invoke sends the query as a single user message.
func (a *Anthropic) Invoke(ctx context.Context, q models.Query) (*models.Result, error) {
	model := a.model
	if q.Model != "" {
		model = q.Model
	}
	maxTokens := q.MaxTokens
	if maxTokens <= 0 {
		maxTokens = models.DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(q.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(q.Text)),
		},
	}
	if q.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: q.SystemPrompt}}
	}

	start := time.Now()
	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	units := int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
	return &models.Result{
		Backend:   a.id,
		Text:      text.String(),
		Units:     units,
		Cost:      unitCost(units, a.cost),
		Latency:   time.Since(start),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// HealthProbe lists models; any API error means unhealthy.
func (a *Anthropic) HealthProbe(ctx context.Context) (bool, error) {
	if _, err := a.client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return false, fmt.Errorf("anthropic list models: %w", err)
	}
	return true, nil
}

// CostPerUnit returns the configured price per 1000 units.
func (a *Anthropic) CostPerUnit() float64 { return a.cost }

// LatencyHint returns the configured latency hint.
func (a *Anthropic) LatencyHint() time.Duration { return a.latency }
