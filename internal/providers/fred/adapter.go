// Package fred implements the FRED (Federal Reserve Economic Data)
// adapter. US coverage only; series resolve from an explicit series ID,
// a curated label map, or the upstream series search as a last resort.
//
// Requires a free API key from https://fred.stlouisfed.org/docs/api/api_key.html
// Rate limit: 120 requests/minute.
package fred

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/seenimoa/macroquery/internal/infra"
	"github.com/seenimoa/macroquery/internal/provider"
	"github.com/seenimoa/macroquery/pkg/models"
)

const baseURL = "https://api.stlouisfed.org/fred"

// labelSeries maps common indicator labels to FRED series IDs. The
// indicator index covers the long tail; this map answers the frequent
// cases without an index roundtrip.
var labelSeries = map[string]seriesDef{
	"gdp":                  {"GDPC1", "Real Gross Domestic Product", models.FreqQuarterly},
	"real gdp":             {"GDPC1", "Real Gross Domestic Product", models.FreqQuarterly},
	"nominal gdp":          {"GDP", "Gross Domestic Product", models.FreqQuarterly},
	"inflation":            {"CPIAUCSL", "Consumer Price Index for All Urban Consumers", models.FreqMonthly},
	"cpi":                  {"CPIAUCSL", "Consumer Price Index for All Urban Consumers", models.FreqMonthly},
	"core inflation":       {"CPILFESL", "CPI Less Food and Energy", models.FreqMonthly},
	"core cpi":             {"CPILFESL", "CPI Less Food and Energy", models.FreqMonthly},
	"unemployment rate":    {"UNRATE", "Unemployment Rate", models.FreqMonthly},
	"unemployment":         {"UNRATE", "Unemployment Rate", models.FreqMonthly},
	"federal funds rate":   {"FEDFUNDS", "Federal Funds Effective Rate", models.FreqMonthly},
	"interest rate":        {"FEDFUNDS", "Federal Funds Effective Rate", models.FreqMonthly},
	"nonfarm payrolls":     {"PAYEMS", "All Employees, Total Nonfarm", models.FreqMonthly},
	"retail sales":         {"RSAFS", "Advance Retail Sales", models.FreqMonthly},
	"industrial production": {"INDPRO", "Industrial Production Index", models.FreqMonthly},
	"10 year treasury":      {"DGS10", "10-Year Treasury Constant Maturity Rate", models.FreqDaily},
	"consumer sentiment":    {"UMCSENT", "University of Michigan Consumer Sentiment", models.FreqMonthly},
	"housing starts":        {"HOUST", "Housing Starts", models.FreqMonthly},
	"pce":                   {"PCE", "Personal Consumption Expenditures", models.FreqMonthly},
}

type seriesDef struct {
	ID   string
	Name string
	Freq models.Frequency
}

// Adapter fetches from FRED through the shared pool.
type Adapter struct {
	pool   *infra.Pool
	apiKey string
	base   string
}

// New creates the adapter. apiKey must be non-empty; registration is
// skipped entirely when it is not configured.
func New(pool *infra.Pool, apiKey string) *Adapter {
	return &Adapter{pool: pool, apiKey: apiKey, base: baseURL}
}

func (a *Adapter) Info() provider.Info {
	return provider.Info{
		Name:        provider.FRED,
		Description: "Federal Reserve Economic Data - 800K+ US economic time series",
		Website:     "https://fred.stlouisfed.org",
		RequiresKey: true,
		Domains:     []string{provider.DomainMacro},
		Countries:   "US only",
	}
}

// Ping fetches series metadata for GDP.
func (a *Adapter) Ping(ctx context.Context) error {
	u := fmt.Sprintf("%s/series?series_id=GDP&api_key=%s&file_type=json", a.base, a.apiKey)
	resp, err := a.pool.Get(ctx, provider.FRED, u, nil)
	if err != nil {
		return err
	}
	return infra.ClassifyStatus(provider.FRED, resp)
}

type observationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// Fetch retrieves one series. Non-US geographies are not available
// here; the router falls back to a global provider.
func (a *Adapter) Fetch(ctx context.Context, q provider.Query) ([]models.NormalizedSeries, error) {
	if !coversGeo(q.Geo) {
		return nil, &provider.DataNotAvailableError{
			Provider:  provider.FRED,
			Indicator: q.Indicator.Label,
			Geo:       q.Geo.Value,
			Detail:    "US coverage only",
		}
	}

	def, err := a.resolveSeries(ctx, q.Indicator)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("series_id", def.ID)
	params.Set("api_key", a.apiKey)
	params.Set("file_type", "json")
	if q.Time.Start != "" {
		params.Set("observation_start", padDate(q.Time.Start, false))
	}
	if q.Time.End != "" {
		params.Set("observation_end", padDate(q.Time.End, true))
	}
	if q.Frequency != "" && q.Frequency != def.Freq {
		// FRED aggregates server-side to coarser cadences.
		if code := fredFreqCode(q.Frequency); code != "" {
			params.Set("frequency", code)
		}
	}
	if q.Time.LatestOnly() {
		params.Set("sort_order", "desc")
		params.Set("limit", "1")
	}

	u := a.base + "/series/observations?" + params.Encode()
	resp, err := a.pool.Get(ctx, provider.FRED, u, nil)
	if err != nil {
		return nil, err
	}
	if resp.Status == 400 {
		// FRED answers 400 for unknown series IDs.
		return nil, &provider.IndicatorUnknownError{Provider: provider.FRED, Indicator: def.ID}
	}
	if err := infra.ClassifyStatus(provider.FRED, resp); err != nil {
		return nil, err
	}

	var body observationsResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, &provider.UpstreamError{Provider: provider.FRED, Status: resp.Status, Body: "malformed observations JSON"}
	}
	if len(body.Observations) == 0 {
		return nil, &provider.DataNotAvailableError{
			Provider:  provider.FRED,
			Indicator: def.ID,
			Geo:       "USA",
			Detail:    "empty observation set",
		}
	}

	series := models.NormalizedSeries{
		Metadata: models.SeriesMetadata{
			SourceProvider:   provider.FRED,
			IndicatorCode:    def.ID,
			IndicatorDisplay: def.Name,
			CountryOrRegion:  "USA",
			Frequency:        def.Freq,
			APIURLEcho:       infra.CanonicalURL(u),
			SourceURL:        "https://fred.stlouisfed.org/series/" + def.ID,
		},
	}
	if q.Frequency != "" {
		series.Metadata.Frequency = q.Frequency
	}
	for _, obs := range body.Observations {
		p := models.NormalizedPoint{Date: obs.Date}
		// FRED encodes missing observations as ".".
		if obs.Value != "" && obs.Value != "." {
			v, err := strconv.ParseFloat(obs.Value, 64)
			if err == nil {
				p.Value = models.Float64(v)
			}
		}
		series.Points = append(series.Points, p)
	}
	series.SortPoints()

	return []models.NormalizedSeries{series}, nil
}

func (a *Adapter) resolveSeries(ctx context.Context, ind models.IndicatorRequest) (seriesDef, error) {
	if ind.ExplicitCode != "" {
		name := ind.Label
		if name == "" {
			name = ind.ExplicitCode
		}
		return seriesDef{ID: strings.ToUpper(ind.ExplicitCode), Name: name}, nil
	}
	key := strings.ToLower(strings.TrimSpace(ind.Label))
	if ind.HasQualifier(models.QualCore) && !strings.HasPrefix(key, "core ") {
		key = "core " + key
	}
	if ind.HasQualifier(models.QualNominal) && !strings.HasPrefix(key, "nominal ") {
		key = "nominal " + key
	}
	if def, ok := labelSeries[key]; ok {
		return def, nil
	}
	return a.searchSeries(ctx, key)
}

type seriesSearchResponse struct {
	Seriess []struct {
		ID             string `json:"id"`
		Title          string `json:"title"`
		FrequencyShort string `json:"frequency_short"`
	} `json:"seriess"`
}

// searchSeries asks the upstream full-text series search for a label
// neither the alias table nor the index could resolve, taking the
// best-ranked hit.
func (a *Adapter) searchSeries(ctx context.Context, label string) (seriesDef, error) {
	params := url.Values{}
	params.Set("search_text", label)
	params.Set("api_key", a.apiKey)
	params.Set("file_type", "json")
	params.Set("order_by", "search_rank")
	params.Set("limit", "1")

	u := a.base + "/series/search?" + params.Encode()
	resp, err := a.pool.Get(ctx, provider.FRED, u, nil)
	if err != nil {
		return seriesDef{}, err
	}
	if err := infra.ClassifyStatus(provider.FRED, resp); err != nil {
		return seriesDef{}, err
	}

	var body seriesSearchResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return seriesDef{}, &provider.UpstreamError{Provider: provider.FRED, Status: resp.Status, Body: "malformed series search JSON"}
	}
	if len(body.Seriess) == 0 {
		return seriesDef{}, &provider.IndicatorUnknownError{Provider: provider.FRED, Indicator: label}
	}
	hit := body.Seriess[0]
	return seriesDef{
		ID:   hit.ID,
		Name: hit.Title,
		Freq: models.FrequencyFromSDMX(hit.FrequencyShort),
	}, nil
}

func coversGeo(geo models.GeoSelector) bool {
	switch geo.Kind {
	case models.GeoCountry:
		return geo.Value == "USA"
	case "", models.GeoWorld:
		// No geography stated: FRED's home country applies.
		return geo.Kind == ""
	}
	return false
}

// padDate widens a bare year or month to a full date bound.
func padDate(s string, end bool) string {
	switch len(s) {
	case 4:
		if end {
			return s + "-12-31"
		}
		return s + "-01-01"
	case 7:
		if end {
			return s + "-28"
		}
		return s + "-01"
	}
	return s
}

func fredFreqCode(f models.Frequency) string {
	switch f {
	case models.FreqDaily:
		return "d"
	case models.FreqWeekly:
		return "w"
	case models.FreqMonthly:
		return "m"
	case models.FreqQuarterly:
		return "q"
	case models.FreqAnnual:
		return "a"
	}
	return ""
}
