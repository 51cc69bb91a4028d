package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Router tries backends in configured order and falls through on
// infrastructure failures. Malformed output is not an infrastructure
// failure; the intent resolver owns re-emit retries.
type Router struct {
	providers []Provider
	log       zerolog.Logger
}

// NewRouter creates a router over backends in priority order.
func NewRouter(log zerolog.Logger, providers ...Provider) (*Router, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	return &Router{
		providers: providers,
		log:       log.With().Str("component", "llm").Logger(),
	}, nil
}

// Complete tries each backend until one answers. Only ErrProviderDown,
// ErrRateLimit, and ErrNoAPIKey fall through; other errors are final.
func (r *Router) Complete(ctx context.Context, req Request) (*Completion, error) {
	var lastErr error
	for _, p := range r.providers {
		c, err := p.Complete(ctx, req)
		if err == nil {
			return c, nil
		}
		if !fallthroughErr(err) {
			return nil, err
		}
		r.log.Warn().Str("backend", p.Name()).Err(err).Msg("llm backend failed, trying next")
		lastErr = err
	}
	return nil, fmt.Errorf("all llm backends failed: %w", lastErr)
}

// Ping reports backend name → reachability error (nil when healthy).
func (r *Router) Ping(ctx context.Context) map[string]error {
	out := make(map[string]error, len(r.providers))
	for _, p := range r.providers {
		out[p.Name()] = p.Ping(ctx)
	}
	return out
}

// Backends returns the configured backend names in priority order.
func (r *Router) Backends() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

func fallthroughErr(err error) bool {
	return errors.Is(err, ErrProviderDown) ||
		errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrNoAPIKey)
}
