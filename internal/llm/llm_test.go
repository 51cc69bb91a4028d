package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

type scriptedBackend struct {
	name string
	err  error
}

func (s *scriptedBackend) Name() string { return s.name }

func (s *scriptedBackend) Complete(ctx context.Context, r Request) (*Completion, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &Completion{Content: `{"ok":true}`, Provider: s.name}, nil
}

func (s *scriptedBackend) Ping(ctx context.Context) error { return s.err }

func TestRouterFallsThroughOnProviderDown(t *testing.T) {
	r, err := NewRouter(zerolog.Nop(),
		&scriptedBackend{name: "openai", err: ErrProviderDown},
		&scriptedBackend{name: "anthropic"},
	)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	c, err := r.Complete(context.Background(), Request{User: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if c.Provider != "anthropic" {
		t.Errorf("answered by %q, want anthropic", c.Provider)
	}
}

func TestRouterStopsOnFinalError(t *testing.T) {
	final := errors.New("model returned garbage")
	r, _ := NewRouter(zerolog.Nop(),
		&scriptedBackend{name: "openai", err: final},
		&scriptedBackend{name: "anthropic"},
	)
	_, err := r.Complete(context.Background(), Request{User: "hi"})
	if !errors.Is(err, final) {
		t.Errorf("err = %v, want final error without fallback", err)
	}
}

func TestRouterAllFail(t *testing.T) {
	r, _ := NewRouter(zerolog.Nop(),
		&scriptedBackend{name: "openai", err: ErrRateLimit},
		&scriptedBackend{name: "ollama", err: ErrProviderDown},
	)
	_, err := r.Complete(context.Background(), Request{User: "hi"})
	if !errors.Is(err, ErrProviderDown) {
		t.Errorf("err = %v, want last backend error wrapped", err)
	}
}

func TestNewRouterEmpty(t *testing.T) {
	if _, err := NewRouter(zerolog.Nop()); !errors.Is(err, ErrNoProviders) {
		t.Errorf("err = %v, want ErrNoProviders", err)
	}
}

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("auth header = %q", auth)
		}
		w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"message":{"role":"assistant","content":"{\"indicators\":[]}"}}]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAI(Config{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	c, err := p.Complete(context.Background(), Request{System: "sys", User: "query", ForceJSON: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if c.Content != `{"indicators":[]}` {
		t.Errorf("content = %q", c.Content)
	}
	if c.Provider != ProviderOpenAI {
		t.Errorf("provider = %q", c.Provider)
	}
}

func TestOpenAIRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, _ := NewOpenAI(Config{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), Request{User: "q"})
	if !errors.Is(err, ErrRateLimit) {
		t.Errorf("err = %v, want ErrRateLimit", err)
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI(Config{}); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("err = %v, want ErrNoAPIKey", err)
	}
}

func TestAnthropicForceJSONPrefill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prefilled "{" means the model's text continues the object.
		w.Write([]byte(`{"model":"claude-3-5-haiku-latest","content":[{"type":"text","text":"\"indicators\":[]}"}]}`))
	}))
	defer srv.Close()

	p, err := NewAnthropic(Config{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewAnthropic: %v", err)
	}
	c, err := p.Complete(context.Background(), Request{User: "q", ForceJSON: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if c.Content != `{"indicators":[]}` {
		t.Errorf("content = %q, want reassembled JSON object", c.Content)
	}
}

func TestOllamaComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"model":"llama3.1","message":{"role":"assistant","content":"{}"}}`))
	}))
	defer srv.Close()

	p := NewOllama(Config{BaseURL: srv.URL})
	c, err := p.Complete(context.Background(), Request{User: "q", ForceJSON: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if c.Content != "{}" {
		t.Errorf("content = %q", c.Content)
	}
}
