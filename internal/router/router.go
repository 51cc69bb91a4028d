// Package router turns a parsed intent into an ordered provider chain
// per indicator: a primary source plus fallbacks, filtered by breaker
// state and provider availability.
package router

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/seenimoa/macroquery/internal/index"
	"github.com/seenimoa/macroquery/internal/infra"
	"github.com/seenimoa/macroquery/internal/provider"
	"github.com/seenimoa/macroquery/pkg/models"
)

// Config tunes routing policy.
type Config struct {
	// ScarceRequiresExplicit keeps quota-limited providers out of
	// implicit fallback chains; they serve only when the user names them.
	ScarceRequiresExplicit bool
}

// DefaultConfig returns the production routing policy.
func DefaultConfig() Config {
	return Config{ScarceRequiresExplicit: true}
}

// Route is the resolved chain for one indicator. The orchestrator walks
// Chain in order until a provider answers. Codes carries the best index
// candidate's series code per provider; the fetch for that provider
// pins the request to the code instead of re-resolving the label.
type Route struct {
	Indicator models.IndicatorRequest
	Chain     []string
	Codes     map[string]string
}

// Router builds provider chains from intents and index candidates.
type Router struct {
	reg      *provider.Registry
	breakers *infra.Breakers
	cfg      Config
	log      zerolog.Logger
}

func New(reg *provider.Registry, breakers *infra.Breakers, cfg Config, log zerolog.Logger) *Router {
	return &Router{
		reg:      reg,
		breakers: breakers,
		cfg:      cfg,
		log:      log.With().Str("component", "router").Logger(),
	}
}

// staticFallback orders providers per domain for the last-resort tier.
var staticFallback = map[string][]string{
	provider.DomainMacro:  {provider.WorldBank, provider.IMF, provider.FRED, provider.Eurostat, provider.BIS},
	provider.DomainTrade:  {provider.Comtrade},
	provider.DomainFX:     {provider.ExchangeRate},
	provider.DomainCrypto: {provider.CoinGecko},
}

// Route builds one chain per indicator. candidates maps indicator label
// to its index hits, best first. An empty chain caused solely by open
// breakers surfaces as CircuitOpenError so callers can distinguish
// "nobody can serve this" from "everybody is tripped".
func (r *Router) Route(intent *models.ParsedIntent, candidates map[string][]index.ScoredRecord) ([]Route, error) {
	routes := make([]Route, 0, len(intent.Indicators))
	for _, ind := range intent.Indicators {
		full := r.chainFor(intent, ind, candidates[ind.Label])

		chain := make([]string, 0, len(full))
		for _, name := range full {
			if r.breakers != nil && r.breakers.Open(name) {
				r.log.Debug().Str("provider", name).Str("indicator", ind.Label).Msg("skipping open breaker")
				continue
			}
			chain = append(chain, name)
		}
		if len(chain) == 0 {
			if len(full) > 0 {
				return nil, &provider.CircuitOpenError{Provider: full[0]}
			}
			return nil, &provider.DataNotAvailableError{
				Indicator: ind.Label,
				Detail:    "no registered provider can serve this indicator",
			}
		}
		routes = append(routes, Route{Indicator: ind, Chain: chain, Codes: candidateCodes(candidates[ind.Label])})
	}
	return routes, nil
}

// candidateCodes keeps the best-scored code per provider. Codes are
// provider-specific, so a worldbank hit never pins a fred fetch.
func candidateCodes(hits []index.ScoredRecord) map[string]string {
	if len(hits) == 0 {
		return nil
	}
	codes := make(map[string]string, len(hits))
	for _, h := range hits {
		if _, ok := codes[h.Provider]; !ok && h.Code != "" {
			codes[h.Provider] = h.Code
		}
	}
	return codes
}

// chainFor applies the routing tiers in order: explicit naming, strong
// bindings, index candidates, static domain fallback.
func (r *Router) chainFor(intent *models.ParsedIntent, ind models.IndicatorRequest, hits []index.ScoredRecord) []string {
	var chain []string
	seen := map[string]bool{}
	add := func(name string) {
		if name == "" || seen[name] || !r.reg.Has(name) {
			return
		}
		if r.cfg.ScarceRequiresExplicit && !intent.NamesProvider(name) {
			if a, err := r.reg.Get(name); err == nil && a.Info().Scarce {
				return
			}
		}
		seen[name] = true
		chain = append(chain, name)
	}

	for _, name := range intent.Providers {
		add(name)
	}
	if bound := strongBinding(intent, ind); bound != "" {
		add(bound)
	}
	for _, hit := range hits {
		add(hit.Provider)
	}
	for _, name := range staticFallback[domainOf(intent)] {
		add(name)
	}
	return chain
}

// strongBinding detects indicators that only one provider can answer.
func strongBinding(intent *models.ParsedIntent, ind models.IndicatorRequest) string {
	switch {
	case intent.IsCrypto:
		return provider.CoinGecko
	case intent.IsExchangeRate:
		return provider.ExchangeRate
	case intent.IsTradeQuery || tradeLabel(ind.Label):
		return provider.Comtrade
	case usOnly(intent.Geography):
		return provider.FRED
	case canadaOnly(intent.Geography):
		return provider.StatCan
	}
	return ""
}

func tradeLabel(label string) bool {
	l := strings.ToLower(label)
	return strings.Contains(l, "export") || strings.Contains(l, "import") ||
		strings.Contains(l, "trade balance")
}

func usOnly(geos []models.GeoSelector) bool {
	return singleCountry(geos, "USA")
}

func canadaOnly(geos []models.GeoSelector) bool {
	return singleCountry(geos, "CAN")
}

func singleCountry(geos []models.GeoSelector, iso3 string) bool {
	if len(geos) == 0 {
		return false
	}
	for _, g := range geos {
		if g.Kind != models.GeoCountry || g.Value != iso3 {
			return false
		}
	}
	return true
}

func domainOf(intent *models.ParsedIntent) string {
	switch {
	case intent.IsCrypto:
		return provider.DomainCrypto
	case intent.IsExchangeRate:
		return provider.DomainFX
	case intent.IsTradeQuery:
		return provider.DomainTrade
	}
	return provider.DomainMacro
}
