// Package coingecko implements the cryptocurrency adapter over the
// CoinGecko public API. Works without a key; a demo key raises the
// quota and is sent as a header when configured.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/seenimoa/macroquery/internal/infra"
	"github.com/seenimoa/macroquery/internal/provider"
	"github.com/seenimoa/macroquery/pkg/models"
)

const baseURL = "https://api.coingecko.com/api/v3"

// coinIDs maps common names and tickers to CoinGecko coin ids.
var coinIDs = map[string]string{
	"bitcoin": "bitcoin", "btc": "bitcoin",
	"ethereum": "ethereum", "eth": "ethereum", "ether": "ethereum",
	"solana": "solana", "sol": "solana",
	"cardano": "cardano", "ada": "cardano",
	"dogecoin": "dogecoin", "doge": "dogecoin",
	"ripple": "ripple", "xrp": "ripple",
	"litecoin": "litecoin", "ltc": "litecoin",
	"polkadot": "polkadot", "dot": "polkadot",
	"bnb": "binancecoin", "binance coin": "binancecoin",
	"tether": "tether", "usdt": "tether",
	"monero": "monero", "xmr": "monero",
	"avalanche": "avalanche-2", "avax": "avalanche-2",
	"chainlink": "chainlink", "link": "chainlink",
}

// Adapter fetches crypto prices from CoinGecko.
type Adapter struct {
	pool   *infra.Pool
	apiKey string
	base   string
	now    func() time.Time
}

func New(pool *infra.Pool, apiKey string) *Adapter {
	return &Adapter{pool: pool, apiKey: apiKey, base: baseURL, now: time.Now}
}

func (a *Adapter) Info() provider.Info {
	return provider.Info{
		Name:        provider.CoinGecko,
		Description: "CoinGecko - cryptocurrency prices and market history",
		Website:     "https://www.coingecko.com",
		RequiresKey: false,
		Domains:     []string{provider.DomainCrypto},
		Countries:   "n/a",
	}
}

func (a *Adapter) headers() map[string]string {
	if a.apiKey == "" {
		return nil
	}
	return map[string]string{"x-cg-demo-api-key": a.apiKey}
}

func (a *Adapter) Ping(ctx context.Context) error {
	resp, err := a.pool.Get(ctx, provider.CoinGecko, a.base+"/ping", a.headers())
	if err != nil {
		return err
	}
	return infra.ClassifyStatus(provider.CoinGecko, resp)
}

type marketChart struct {
	Prices [][2]float64 `json:"prices"`
}

// Fetch resolves the coin and pulls a daily USD price history, or the
// spot price for latest-only queries.
func (a *Adapter) Fetch(ctx context.Context, q provider.Query) ([]models.NormalizedSeries, error) {
	coinID, display, err := resolveCoin(q.Indicator)
	if err != nil {
		return nil, err
	}
	if q.Time.LatestOnly() {
		return a.fetchSpot(ctx, coinID, display)
	}

	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("interval", "daily")
	params.Set("days", fmt.Sprintf("%d", historyDays(q.Time, a.now())))

	u := fmt.Sprintf("%s/coins/%s/market_chart?%s", a.base, coinID, params.Encode())
	resp, err := a.pool.Get(ctx, provider.CoinGecko, u, a.headers())
	if err != nil {
		return nil, err
	}
	if resp.Status == 404 {
		return nil, &provider.IndicatorUnknownError{Provider: provider.CoinGecko, Indicator: coinID}
	}
	if err := infra.ClassifyStatus(provider.CoinGecko, resp); err != nil {
		return nil, err
	}

	var chart marketChart
	if err := json.Unmarshal(resp.Body, &chart); err != nil {
		return nil, &provider.UpstreamError{Provider: provider.CoinGecko, Status: resp.Status, Body: "malformed market chart"}
	}
	if len(chart.Prices) == 0 {
		return nil, &provider.DataNotAvailableError{
			Provider:  provider.CoinGecko,
			Indicator: coinID,
			Detail:    "empty price history",
		}
	}

	startYear, endYear := q.Time.StartYear(), q.Time.EndYear()
	s := a.newSeries(coinID, display, u)
	for _, p := range chart.Prices {
		ts := time.UnixMilli(int64(p[0])).UTC()
		if startYear != 0 && ts.Year() < startYear {
			continue
		}
		if endYear != 0 && ts.Year() > endYear {
			continue
		}
		s.Points = append(s.Points, models.NormalizedPoint{
			Date:  ts.Format("2006-01-02"),
			Value: models.Float64(p[1]),
		})
	}
	s.SortPoints()
	if len(s.Points) == 0 {
		return nil, &provider.DataNotAvailableError{
			Provider:  provider.CoinGecko,
			Indicator: coinID,
			Detail:    "no prices in the requested window",
		}
	}
	return []models.NormalizedSeries{s}, nil
}

func (a *Adapter) fetchSpot(ctx context.Context, coinID, display string) ([]models.NormalizedSeries, error) {
	u := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", a.base, url.QueryEscape(coinID))
	resp, err := a.pool.Get(ctx, provider.CoinGecko, u, a.headers())
	if err != nil {
		return nil, err
	}
	if err := infra.ClassifyStatus(provider.CoinGecko, resp); err != nil {
		return nil, err
	}

	var body map[string]map[string]float64
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, &provider.UpstreamError{Provider: provider.CoinGecko, Status: resp.Status, Body: "malformed spot price"}
	}
	price, ok := body[coinID]["usd"]
	if !ok {
		return nil, &provider.IndicatorUnknownError{Provider: provider.CoinGecko, Indicator: coinID}
	}

	s := a.newSeries(coinID, display, u)
	s.Points = []models.NormalizedPoint{{
		Date:  a.now().UTC().Format("2006-01-02"),
		Value: models.Float64(price),
	}}
	return []models.NormalizedSeries{s}, nil
}

func (a *Adapter) newSeries(coinID, display, u string) models.NormalizedSeries {
	return models.NormalizedSeries{
		Metadata: models.SeriesMetadata{
			SourceProvider:   provider.CoinGecko,
			IndicatorCode:    coinID,
			IndicatorDisplay: display + " price",
			CountryOrRegion:  "n/a",
			Unit:             "USD",
			Frequency:        models.FreqDaily,
			APIURLEcho:       infra.CanonicalURL(u),
			SourceURL:        "https://www.coingecko.com/en/coins/" + coinID,
		},
	}
}

func resolveCoin(ind models.IndicatorRequest) (coinID, display string, err error) {
	if ind.ExplicitCode != "" {
		id := strings.ToLower(ind.ExplicitCode)
		name := ind.Label
		if name == "" {
			name = id
		}
		return id, name, nil
	}
	label := strings.ToLower(strings.TrimSpace(ind.Label))
	for _, noise := range []string{"price of", "price", "value", "quote"} {
		label = strings.ReplaceAll(label, noise, " ")
	}
	label = strings.TrimSpace(strings.Join(strings.Fields(label), " "))
	if id, ok := coinIDs[label]; ok {
		return id, label, nil
	}
	for _, tok := range strings.Fields(label) {
		if id, ok := coinIDs[tok]; ok {
			return id, tok, nil
		}
	}
	return "", "", &provider.IndicatorUnknownError{Provider: provider.CoinGecko, Indicator: ind.Label}
}

// historyDays converts the time range into the days-back parameter.
func historyDays(tr models.TimeRange, now time.Time) int {
	if y := tr.StartYear(); y != 0 {
		start := time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
		if len(tr.Start) == 10 {
			if t, err := time.Parse("2006-01-02", tr.Start); err == nil {
				start = t
			}
		}
		days := int(now.Sub(start).Hours()/24) + 1
		if days < 1 {
			days = 1
		}
		return days
	}
	return 365
}
