// Package llm provides a unified interface over the LLM backends used
// for intent resolution (OpenAI, Anthropic, Ollama), with JSON-mode
// completions and a fallback router.
package llm

import (
	"context"
	"errors"
	"time"
)

// Provider names for routing and configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Common errors returned by LLM backends.
var (
	ErrNoAPIKey     = errors.New("llm: API key not configured")
	ErrRateLimit    = errors.New("llm: rate limit exceeded")
	ErrProviderDown = errors.New("llm: provider unavailable")
	ErrNoProviders  = errors.New("llm: no providers configured")
)

// Request is one completion request: a system prompt framing the task
// and the user turn to resolve. ForceJSON asks the backend for its
// native JSON output mode where one exists.
type Request struct {
	System      string
	User        string
	ForceJSON   bool
	Temperature float64
	MaxTokens   int
}

// Completion is the model's answer.
type Completion struct {
	Content  string        `json:"content"`
	Model    string        `json:"model"`
	Provider string        `json:"provider"`
	Latency  time.Duration `json:"latency"`
}

// Provider is the interface every LLM backend implements.
type Provider interface {
	// Name returns the backend identifier.
	Name() string

	// Complete sends the request and returns the full response text.
	Complete(ctx context.Context, req Request) (*Completion, error)

	// Ping checks reachability and credentials.
	Ping(ctx context.Context) error
}

// Config holds common backend configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

func (c *Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 60 * time.Second
}
