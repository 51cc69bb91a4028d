package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Anthropic implements Provider over the Messages API.
type Anthropic struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewAnthropic creates an Anthropic backend.
func NewAnthropic(cfg Config) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.anthropic.com"
	}
	model := cfg.Model
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &Anthropic{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(base, "/"),
		model:   model,
		client:  &http.Client{Timeout: cfg.timeout()},
	}, nil
}

func (p *Anthropic) Name() string { return ProviderAnthropic }

// Ping sends a one-token request to verify the key.
func (p *Anthropic) Ping(ctx context.Context) error {
	_, err := p.Complete(ctx, Request{User: "ping", MaxTokens: 1})
	return err
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
	Temperature *float64         `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a messages request. The Messages API has no JSON mode;
// ForceJSON is handled by prefilling the assistant turn with "{" so the
// model continues the object.
func (p *Anthropic) Complete(ctx context.Context, r Request) (*Completion, error) {
	start := time.Now()

	maxTokens := r.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	body := anthropicRequest{
		Model:     p.model,
		System:    r.System,
		MaxTokens: maxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: r.User}},
	}
	if r.Temperature > 0 {
		body.Temperature = &r.Temperature
	}
	if r.ForceJSON {
		body.Messages = append(body.Messages, anthropicMessage{Role: "assistant", Content: "{"})
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderDown, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: invalid API key", ErrNoAPIKey)
	case http.StatusTooManyRequests, 529:
		return nil, ErrRateLimit
	default:
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: status %d", ErrProviderDown, resp.StatusCode)
		}
		return nil, fmt.Errorf("anthropic: HTTP %d: %s", resp.StatusCode, raw)
	}

	var result anthropicResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}
	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	content := text.String()
	if r.ForceJSON && !strings.HasPrefix(strings.TrimSpace(content), "{") {
		content = "{" + content
	}
	return &Completion{
		Content:  content,
		Model:    result.Model,
		Provider: ProviderAnthropic,
		Latency:  time.Since(start),
	}, nil
}
