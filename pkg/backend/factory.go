package backend

import (
	"fmt"

	"github.com/pario-ai/relay/pkg/config"
)

// New builds the backend described by cfg, applying the configured rate limit.
func New(cfg config.BackendConfig) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch cfg.Type {
	case "", "simulated":
		s := NewSimulated(cfg.ID)
		if cfg.Model != "" {
			s.Model = cfg.Model
		}
		if cfg.CostPerUnit > 0 {
			s.Cost = cfg.CostPerUnit
		}
		if cfg.LatencyHint > 0 {
			s.Latency = cfg.LatencyHint
		}
		b = s
	case "openai":
		b, err = NewOpenAI(OpenAIOptions{
			ID:          cfg.ID,
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.URL,
			Model:       cfg.Model,
			CostPerUnit: cfg.CostPerUnit,
			LatencyHint: cfg.LatencyHint,
		})
	case "anthropic":
		b, err = NewAnthropic(AnthropicOptions{
			ID:          cfg.ID,
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.URL,
			Model:       cfg.Model,
			CostPerUnit: cfg.CostPerUnit,
			LatencyHint: cfg.LatencyHint,
		})
	default:
		return nil, fmt.Errorf("backend %s: unknown type %q", cfg.ID, cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", cfg.ID, err)
	}

	if cfg.RateLimit > 0 {
		b = WithRateLimit(b, cfg.RateLimit, cfg.Burst)
	}
	return b, nil
}
