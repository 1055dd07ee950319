package models

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"time"
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
)

// Query is a single logical request to be routed to a backend.
type Query struct {
	Text         string  `json:"text"`
	Model        string  `json:"model,omitempty"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
}

// NewQuery returns a Query for text with default sampling parameters.
func NewQuery(text string) Query {
	return Query{
		Text:        text,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// Fingerprint computes a SHA-256 digest of the fields that determine output.
// The model hint and system prompt are deliberately excluded: two queries that
// differ only in those fields share a cache entry. The text is length-prefixed
// so no two field combinations share an encoding, and non-finite temperatures
// still hash distinctly.
func (q Query) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(len(q.Text))))
	h.Write([]byte{':'})
	h.Write([]byte(q.Text))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatFloat(q.Temperature, 'g', -1, 64)))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.Itoa(q.MaxTokens)))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Result is the output of a successful backend invocation.
type Result struct {
	ID          string        `json:"id"`
	Backend     BackendID     `json:"backend"`
	Fingerprint string        `json:"fingerprint"`
	Text        string        `json:"text"`
	Units       int           `json:"units"`
	Cost        float64       `json:"cost"`
	Latency     time.Duration `json:"latency"`
	CreatedAt   time.Time     `json:"created_at"`
}
