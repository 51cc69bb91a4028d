// Package providers assembles the concrete adapters into a registry.
// Key-gated providers register only when their credential is present,
// so the router never offers a source that cannot answer.
package providers

import (
	"github.com/rs/zerolog"

	"github.com/seenimoa/macroquery/internal/infra"
	"github.com/seenimoa/macroquery/internal/provider"
	"github.com/seenimoa/macroquery/internal/providers/bis"
	"github.com/seenimoa/macroquery/internal/providers/coingecko"
	"github.com/seenimoa/macroquery/internal/providers/comtrade"
	"github.com/seenimoa/macroquery/internal/providers/eurostat"
	"github.com/seenimoa/macroquery/internal/providers/exchangerate"
	"github.com/seenimoa/macroquery/internal/providers/fred"
	"github.com/seenimoa/macroquery/internal/providers/imf"
	"github.com/seenimoa/macroquery/internal/providers/oecd"
	"github.com/seenimoa/macroquery/internal/providers/statcan"
	"github.com/seenimoa/macroquery/internal/providers/worldbank"
)

// Keys carries the per-provider credentials. Empty means unconfigured.
type Keys struct {
	FRED         string
	Comtrade     string
	ExchangeRate string
	CoinGecko    string
}

// Options carries the optional resolution hooks adapters use for the
// long tail: the HS product search for comtrade and the LLM dataflow
// selector for oecd. Either may be nil; the adapter then stops at its
// curated table.
type Options struct {
	Products comtrade.ProductSearcher
	Flows    oecd.FlowSelector
}

// Register builds every available adapter and registers it. Providers
// whose required key is missing are skipped with a log line; optional
// keys (exchangerate, coingecko) upgrade quotas when present.
func Register(reg *provider.Registry, pool *infra.Pool, keys Keys, opts Options, log zerolog.Logger) {
	if keys.FRED != "" {
		reg.Register(fred.New(pool, keys.FRED))
	} else {
		log.Info().Str("provider", provider.FRED).Msg("no API key configured, provider disabled")
	}
	if keys.Comtrade != "" {
		reg.Register(comtrade.New(pool, keys.Comtrade, opts.Products))
	} else {
		log.Info().Str("provider", provider.Comtrade).Msg("no API key configured, provider disabled")
	}

	reg.Register(worldbank.New(pool))
	reg.Register(imf.New(pool))
	reg.Register(eurostat.New(pool))
	reg.Register(oecd.New(pool, opts.Flows))
	reg.Register(bis.New(pool))
	reg.Register(statcan.New(pool))
	reg.Register(exchangerate.New(pool, keys.ExchangeRate))
	reg.Register(coingecko.New(pool, keys.CoinGecko))
}
