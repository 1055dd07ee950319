package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pario-ai/relay/pkg/models"
)

// Config holds all relay configuration.
type Config struct {
	Listen   string          `yaml:"listen"`
	Backends []BackendConfig `yaml:"backends"`
	Router   RouterConfig    `yaml:"router"`
	Cache    CacheConfig     `yaml:"cache"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Health   HealthConfig    `yaml:"health"`
	Audit    AuditConfig     `yaml:"audit"`
	Log      LogConfig       `yaml:"log"`
}

// BackendConfig defines one backend variant.
// Type is "simulated" (default), "openai" or "anthropic".
type BackendConfig struct {
	ID          models.BackendID `yaml:"id"`
	Type        string           `yaml:"type"`
	Model       string           `yaml:"model"`
	URL         string           `yaml:"url"`
	APIKey      string           `yaml:"api_key"`
	CostPerUnit float64          `yaml:"cost_per_unit"`
	LatencyHint time.Duration    `yaml:"latency_hint"`
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// RouterConfig controls failover behaviour.
type RouterConfig struct {
	Strategy         string        `yaml:"strategy"`
	AttemptTimeout   time.Duration `yaml:"attempt_timeout"`
	RouteTimeout     time.Duration `yaml:"route_timeout"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
	ProbeConcurrency int           `yaml:"probe_concurrency"`
	Coalesce         bool          `yaml:"coalesce"`
}

// CacheConfig selects the result cache implementation.
// Driver is "memory" (default), "sqlite" or "redis".
type CacheConfig struct {
	Driver string      `yaml:"driver"`
	DBPath string      `yaml:"db_path"`
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings for the shared cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// MetricsConfig controls metrics persistence.
// Store is "file" (default), "sqlite" or "none". Path is the JSON file used by
// the file store; the sqlite store shares cache.db_path.
type MetricsConfig struct {
	Store        string `yaml:"store"`
	Path         string `yaml:"path"`
	SaveSchedule string `yaml:"save_schedule"`
}

// HealthConfig controls scheduled health sweeps.
type HealthConfig struct {
	Schedule string `yaml:"schedule"`
}

// AuditConfig controls the route audit log.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
	// IncludeQuery stores the query text, truncated to MaxQuerySize bytes.
	IncludeQuery bool `yaml:"include_query"`
	MaxQuerySize int  `yaml:"max_query_size"`
}

// LogConfig controls the logger.
// Format is "json" (default) or "console".
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultBackends returns the three simulated backends with the reference
// cost and latency table.
func DefaultBackends() []BackendConfig {
	return []BackendConfig{
		{ID: models.BackendGemini, Type: "simulated", Model: "gemini-2.0-flash", CostPerUnit: 0.01, LatencyHint: 150 * time.Millisecond},
		{ID: models.BackendClaude, Type: "simulated", Model: "claude-opus-4-1-20250805", CostPerUnit: 0.03, LatencyHint: 200 * time.Millisecond},
		{ID: models.BackendOpenAI, Type: "simulated", Model: "gpt-4-turbo", CostPerUnit: 0.05, LatencyHint: 250 * time.Millisecond},
	}
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:   ":8080",
		Backends: DefaultBackends(),
		Router: RouterConfig{
			Strategy:         "cheapest",
			AttemptTimeout:   30 * time.Second,
			ProbeTimeout:     5 * time.Second,
			ProbeConcurrency: 4,
		},
		Cache: CacheConfig{
			Driver: "memory",
			DBPath: "relay.db",
		},
		Metrics: MetricsConfig{
			Store:        "file",
			Path:         "relay_data/metrics.json",
			SaveSchedule: "@every 5m",
		},
		Health: HealthConfig{
			Schedule: "@every 30s",
		},
		Audit: AuditConfig{
			DBPath:        "relay_audit.db",
			RetentionDays: 30,
			MaxQuerySize:  4096,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not
// exist and allowMissing is set.
func LoadOrDefault(path string, allowMissing bool) (*Config, error) {
	cfg, err := Load(path)
	if err != nil && allowMissing && errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks backend ids and enumerated settings.
func (c *Config) Validate() error {
	seen := make(map[models.BackendID]bool, len(c.Backends))
	for i, b := range c.Backends {
		if !b.ID.Valid() {
			return fmt.Errorf("backends[%d]: unknown backend id %q", i, b.ID)
		}
		if seen[b.ID] {
			return fmt.Errorf("backends[%d]: duplicate backend id %q", i, b.ID)
		}
		seen[b.ID] = true
		if b.CostPerUnit < 0 {
			return fmt.Errorf("backends[%d]: negative cost_per_unit", i)
		}
		switch b.Type {
		case "", "simulated", "openai", "anthropic":
		default:
			return fmt.Errorf("backends[%d]: unknown type %q", i, b.Type)
		}
	}

	switch c.Router.Strategy {
	case "", "cheapest", "healthiest", "fastest":
	default:
		return fmt.Errorf("router: unknown strategy %q", c.Router.Strategy)
	}
	switch c.Cache.Driver {
	case "", "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("cache: unknown driver %q", c.Cache.Driver)
	}
	switch c.Metrics.Store {
	case "", "file", "sqlite", "none":
	default:
		return fmt.Errorf("metrics: unknown store %q", c.Metrics.Store)
	}
	if c.Audit.Enabled && c.Audit.DBPath == "" {
		return errors.New("audit: db_path is required when enabled")
	}
	return nil
}

// BackendIDs returns the configured ids in declaration order.
func (c *Config) BackendIDs() []models.BackendID {
	ids := make([]models.BackendID, len(c.Backends))
	for i, b := range c.Backends {
		ids[i] = b.ID
	}
	return ids
}
