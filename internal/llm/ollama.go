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

// Ollama implements Provider over a local Ollama server. No API key;
// useful as the keyless fallback backend.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates an Ollama backend.
func NewOllama(cfg Config) *Ollama {
	base := cfg.BaseURL
	if base == "" {
		base = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "llama3.1"
	}
	return &Ollama{
		baseURL: strings.TrimRight(base, "/"),
		model:   model,
		client:  &http.Client{Timeout: cfg.timeout()},
	}
}

func (p *Ollama) Name() string { return ProviderOllama }

// Ping checks the server is up.
func (p *Ollama) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderDown, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrProviderDown, resp.StatusCode)
	}
	return nil
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Format   string          `json:"format,omitempty"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Error   string        `json:"error"`
}

// Complete sends a non-streaming chat request.
func (p *Ollama) Complete(ctx context.Context, r Request) (*Completion, error) {
	start := time.Now()

	body := ollamaRequest{
		Model:  p.model,
		Stream: false,
		Messages: []ollamaMessage{
			{Role: "system", Content: r.System},
			{Role: "user", Content: r.User},
		},
	}
	if r.ForceJSON {
		body.Format = "json"
	}
	if r.Temperature > 0 {
		body.Options = map[string]any{"temperature": r.Temperature}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderDown, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrProviderDown, resp.StatusCode, raw)
	}

	var result ollamaResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("ollama: %s", result.Error)
	}
	return &Completion{
		Content:  result.Message.Content,
		Model:    result.Model,
		Provider: ProviderOllama,
		Latency:  time.Since(start),
	}, nil
}
