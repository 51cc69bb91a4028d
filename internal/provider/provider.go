// Package provider defines the adapter contract every economic-data
// source implements, the shared fetch error taxonomy, and the registry
// that the router and orchestrator resolve adapters through.
package provider

import (
	"context"

	"github.com/seenimoa/macroquery/pkg/models"
)

// Provider name constants. The router and config refer to providers by
// these tags.
const (
	FRED         = "fred"
	WorldBank    = "worldbank"
	IMF          = "imf"
	Eurostat     = "eurostat"
	OECD         = "oecd"
	BIS          = "bis"
	Comtrade     = "comtrade"
	StatCan      = "statcan"
	ExchangeRate = "exchangerate"
	CoinGecko    = "coingecko"
)

// Domain tags describe what kind of data a provider serves. The router's
// static fallback map is keyed by these.
const (
	DomainMacro  = "macro"  // GDP, inflation, unemployment, rates
	DomainTrade  = "trade"  // bilateral goods trade
	DomainFX     = "fx"     // fiat exchange rates
	DomainCrypto = "crypto" // cryptocurrency prices
)

// Info holds static metadata about an adapter.
type Info struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Website     string   `json:"website"`
	RequiresKey bool     `json:"requires_key"`
	Scarce      bool     `json:"scarce"` // strict quotas: never used as implicit fallback
	Domains     []string `json:"domains"`
	Countries   string   `json:"countries"` // coverage note, e.g. "US only", "global"
}

// Query is the resolved unit of work an adapter receives: one indicator
// for one geography over one time range. Group geographies reach the
// adapter unexpanded only when the provider natively supports multi-area
// requests; otherwise the orchestrator expands groups beforehand.
type Query struct {
	Indicator models.IndicatorRequest
	Geo       models.GeoSelector
	Time      models.TimeRange
	Frequency models.Frequency

	// Partner is set only on bilateral trade queries: Geo is the
	// reporter, Partner the counterparty. Zero value means world.
	Partner models.GeoSelector
}

// Adapter is the uniform interface over every upstream data source.
type Adapter interface {
	// Info returns static metadata about the provider.
	Info() Info

	// Fetch retrieves and normalizes data for the query. It returns one
	// series per geography produced (multi-area providers may return
	// several). Failures use the package error taxonomy.
	Fetch(ctx context.Context, q Query) ([]models.NormalizedSeries, error)

	// Ping verifies connectivity and credentials with a cheap request.
	Ping(ctx context.Context) error
}
