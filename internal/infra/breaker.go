package infra

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/seenimoa/macroquery/internal/provider"
)

// BreakerConfig tunes the per-provider circuit breakers.
type BreakerConfig struct {
	FailureThreshold uint32        // consecutive failures that trip the breaker
	OpenTimeout      time.Duration // how long the breaker stays open
	HalfOpenMax      uint32        // probe requests allowed while half-open
}

// DefaultBreakerConfig returns the production breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		OpenTimeout:      60 * time.Second,
		HalfOpenMax:      1,
	}
}

// Breakers holds one lazily-created circuit breaker per provider.
type Breakers struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	cfg      BreakerConfig
	log      zerolog.Logger
}

// NewBreakers creates an empty breaker registry.
func NewBreakers(cfg BreakerConfig, log zerolog.Logger) *Breakers {
	return &Breakers{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		cfg:      cfg,
		log:      log.With().Str("component", "breaker").Logger(),
	}
}

func (b *Breakers) get(providerName string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[providerName]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        providerName,
		MaxRequests: b.cfg.HalfOpenMax,
		Timeout:     b.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("breaker state change")
		},
	})
	b.breakers[providerName] = cb
	return cb
}

// Do runs fn under the provider's breaker. An open breaker returns
// CircuitOpenError without invoking fn. Errors that are not
// infrastructure failures (4xx, data-not-available) pass through
// without counting against the breaker.
func (b *Breakers) Do(providerName string, fn func() (any, error)) (any, error) {
	cb := b.get(providerName)

	var passthrough error
	v, err := cb.Execute(func() (any, error) {
		v, err := fn()
		if err != nil && !provider.BreakerFailure(err) {
			// Healthy response from the breaker's point of view.
			passthrough = err
			return v, nil
		}
		return v, err
	})
	if passthrough != nil {
		return nil, passthrough
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &provider.CircuitOpenError{Provider: providerName}
		}
		return nil, err
	}
	return v, nil
}

// Open reports whether the provider's breaker is currently open. Unknown
// providers are closed.
func (b *Breakers) Open(providerName string) bool {
	b.mu.Lock()
	cb, ok := b.breakers[providerName]
	b.mu.Unlock()
	return ok && cb.State() == gobreaker.StateOpen
}

// States returns provider → breaker state for every breaker created so
// far. Served at /health.
func (b *Breakers) States() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]string, len(b.breakers))
	for name, cb := range b.breakers {
		out[name] = cb.State().String()
	}
	return out
}
