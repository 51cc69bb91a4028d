package infra

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiters holds one token-bucket limiter per provider, so a burst of
// fan-out work cannot blow through an upstream quota.
type Limiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	defaults rate.Limit
	burst    int
	override map[string]rate.Limit
}

// NewLimiters creates a limiter registry with a default requests-per-
// second rate. Per-provider overrides adjust it.
func NewLimiters(perSecond float64, burst int, overrides map[string]float64) *Limiters {
	ov := make(map[string]rate.Limit, len(overrides))
	for name, r := range overrides {
		ov[name] = rate.Limit(r)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiters{
		limiters: make(map[string]*rate.Limiter),
		defaults: rate.Limit(perSecond),
		burst:    burst,
		override: ov,
	}
}

func (l *Limiters) get(providerName string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters[providerName]; ok {
		return lim
	}
	r := l.defaults
	if o, ok := l.override[providerName]; ok {
		r = o
	}
	lim := rate.NewLimiter(r, l.burst)
	l.limiters[providerName] = lim
	return lim
}

// Wait blocks until the provider's limiter grants a token or ctx ends.
func (l *Limiters) Wait(ctx context.Context, providerName string) error {
	return l.get(providerName).Wait(ctx)
}
