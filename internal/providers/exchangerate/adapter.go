// Package exchangerate implements the fiat FX adapter over the
// ExchangeRate-API open endpoint. The open endpoint serves the latest
// daily fixing only; a configured key switches to the v6 endpoint with
// the same response shape and higher quotas.
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/seenimoa/macroquery/internal/infra"
	"github.com/seenimoa/macroquery/internal/provider"
	"github.com/seenimoa/macroquery/pkg/models"
)

const (
	openBaseURL  = "https://open.er-api.com/v6"
	keyedBaseURL = "https://v6.exchangerate-api.com/v6"
)

// currencyAliases maps spoken currency names to ISO 4217 codes.
var currencyAliases = map[string]string{
	"dollar": "USD", "dollars": "USD", "us dollar": "USD", "usd": "USD",
	"euro": "EUR", "euros": "EUR", "eur": "EUR",
	"yen": "JPY", "japanese yen": "JPY", "jpy": "JPY",
	"pound": "GBP", "pounds": "GBP", "sterling": "GBP", "british pound": "GBP", "gbp": "GBP",
	"yuan": "CNY", "renminbi": "CNY", "rmb": "CNY", "cny": "CNY",
	"franc": "CHF", "swiss franc": "CHF", "chf": "CHF",
	"rupee": "INR", "indian rupee": "INR", "inr": "INR",
	"real": "BRL", "brazilian real": "BRL", "brl": "BRL",
	"won": "KRW", "korean won": "KRW", "krw": "KRW",
	"peso": "MXN", "mexican peso": "MXN", "mxn": "MXN",
	"canadian dollar": "CAD", "loonie": "CAD", "cad": "CAD",
	"australian dollar": "AUD", "aussie dollar": "AUD", "aud": "AUD",
	"krona": "SEK", "swedish krona": "SEK", "sek": "SEK",
	"krone": "NOK", "norwegian krone": "NOK", "nok": "NOK",
	"zloty": "PLN", "pln": "PLN",
	"lira": "TRY", "turkish lira": "TRY", "try": "TRY",
	"rand": "ZAR", "zar": "ZAR",
	"ruble": "RUB", "rouble": "RUB", "rub": "RUB",
	"nzd": "NZD", "hkd": "HKD", "sgd": "SGD", "dkk": "DKK",
}

var codeRe = regexp.MustCompile(`\b[A-Za-z]{3}\b`)

// Adapter fetches latest FX fixings.
type Adapter struct {
	pool   *infra.Pool
	apiKey string
	base   string
}

// New selects the open or keyed endpoint depending on configuration.
func New(pool *infra.Pool, apiKey string) *Adapter {
	base := openBaseURL
	if apiKey != "" {
		base = keyedBaseURL
	}
	return &Adapter{pool: pool, apiKey: apiKey, base: base}
}

func (a *Adapter) Info() provider.Info {
	return provider.Info{
		Name:        provider.ExchangeRate,
		Description: "ExchangeRate-API - daily fiat currency fixings",
		Website:     "https://www.exchangerate-api.com",
		RequiresKey: false,
		Domains:     []string{provider.DomainFX},
		Countries:   "n/a",
	}
}

func (a *Adapter) Ping(ctx context.Context) error {
	resp, err := a.pool.Get(ctx, provider.ExchangeRate, a.latestURL("USD"), nil)
	if err != nil {
		return err
	}
	return infra.ClassifyStatus(provider.ExchangeRate, resp)
}

type latestResponse struct {
	Result         string             `json:"result"`
	ErrorType      string             `json:"error-type"`
	BaseCode       string             `json:"base_code"`
	LastUpdateUnix int64              `json:"time_last_update_unix"`
	Rates          map[string]float64 `json:"rates"`
	ConversionRates map[string]float64 `json:"conversion_rates"`
}

// Fetch parses the currency pair out of the label and returns a single
// latest observation. Historical FX ranges are not served here.
func (a *Adapter) Fetch(ctx context.Context, q provider.Query) ([]models.NormalizedSeries, error) {
	base, quote, err := parsePair(q.Indicator.Label)
	if err != nil {
		return nil, err
	}
	if !q.Time.LatestOnly() && (q.Time.Start != "" || q.Time.End != "") {
		return nil, &provider.DataNotAvailableError{
			Provider:  provider.ExchangeRate,
			Indicator: base + "/" + quote,
			Detail:    "only the latest fixing is available on this source",
		}
	}

	u := a.latestURL(base)
	resp, err := a.pool.Get(ctx, provider.ExchangeRate, u, nil)
	if err != nil {
		return nil, err
	}
	if err := infra.ClassifyStatus(provider.ExchangeRate, resp); err != nil {
		return nil, err
	}

	var body latestResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, &provider.UpstreamError{Provider: provider.ExchangeRate, Status: resp.Status, Body: "malformed rates JSON"}
	}
	if body.Result != "success" {
		if body.ErrorType == "unsupported-code" {
			return nil, &provider.IndicatorUnknownError{Provider: provider.ExchangeRate, Indicator: base}
		}
		return nil, &provider.UpstreamError{Provider: provider.ExchangeRate, Status: resp.Status, Body: body.ErrorType}
	}
	rates := body.Rates
	if len(rates) == 0 {
		rates = body.ConversionRates
	}
	rate, ok := rates[quote]
	if !ok {
		return nil, &provider.IndicatorUnknownError{Provider: provider.ExchangeRate, Indicator: quote}
	}

	date := time.Unix(body.LastUpdateUnix, 0).UTC().Format("2006-01-02")
	if body.LastUpdateUnix == 0 {
		date = time.Now().UTC().Format("2006-01-02")
	}
	s := models.NormalizedSeries{
		Metadata: models.SeriesMetadata{
			SourceProvider:   provider.ExchangeRate,
			IndicatorCode:    base + "/" + quote,
			IndicatorDisplay: fmt.Sprintf("%s to %s exchange rate", base, quote),
			CountryOrRegion:  "n/a",
			Unit:             quote + " per " + base,
			Frequency:        models.FreqDaily,
			APIURLEcho:       infra.CanonicalURL(u),
			SourceURL:        "https://www.exchangerate-api.com",
		},
		Points: []models.NormalizedPoint{{Date: date, Value: models.Float64(rate)}},
	}
	return []models.NormalizedSeries{s}, nil
}

func (a *Adapter) latestURL(base string) string {
	if a.apiKey != "" {
		return fmt.Sprintf("%s/%s/latest/%s", a.base, a.apiKey, base)
	}
	return fmt.Sprintf("%s/latest/%s", a.base, base)
}

// parsePair extracts base and quote currencies from labels like
// "USD to EUR", "euro dollar exchange rate" or "EUR/JPY". A single
// recognized currency quotes against USD.
func parsePair(label string) (base, quote string, err error) {
	lower := strings.ToLower(label)
	for _, noise := range []string{"exchange rate", "exchange", "rate", " vs ", " versus ", " against ", " to ", " in ", "/", "-"} {
		lower = strings.ReplaceAll(lower, noise, " ")
	}

	// Multi-word aliases resolve first, in order of appearance, so that
	// "canadian dollar to japanese yen" keeps its base/quote order.
	type match struct {
		pos  int
		code string
	}
	var matches []match
	for alias, code := range currencyAliases {
		if !strings.Contains(alias, " ") {
			continue
		}
		if i := strings.Index(lower, alias); i >= 0 {
			matches = append(matches, match{pos: i, code: code})
			lower = strings.Replace(lower, alias, strings.Repeat(" ", len(alias)), 1)
		}
	}
	for _, tok := range tokensWithOffsets(lower) {
		if code, ok := currencyAliases[tok.word]; ok {
			matches = append(matches, match{pos: tok.pos, code: code})
			continue
		}
		if codeRe.MatchString(tok.word) && isKnownCode(strings.ToUpper(tok.word)) {
			matches = append(matches, match{pos: tok.pos, code: strings.ToUpper(tok.word)})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].pos < matches[j].pos })

	var codes []string
	seen := map[string]bool{}
	for _, m := range matches {
		if !seen[m.code] {
			seen[m.code] = true
			codes = append(codes, m.code)
		}
	}

	switch len(codes) {
	case 0:
		return "", "", &provider.IndicatorUnknownError{Provider: provider.ExchangeRate, Indicator: label}
	case 1:
		if codes[0] == "USD" {
			return "USD", "EUR", nil
		}
		return codes[0], "USD", nil
	}
	return codes[0], codes[1], nil
}

type token struct {
	word string
	pos  int
}

func tokensWithOffsets(s string) []token {
	var out []token
	start := -1
	for i, r := range s {
		if r != ' ' && r != '\t' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, token{word: s[start:i], pos: start})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, token{word: s[start:], pos: start})
	}
	return out
}

// isKnownCode accepts the ISO codes the alias table knows about, either
// as alias values or as direct three-letter keys.
func isKnownCode(code string) bool {
	for _, v := range currencyAliases {
		if v == code {
			return true
		}
	}
	return false
}
