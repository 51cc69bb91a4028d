// Package worldbank implements the World Bank Open Data adapter. Global
// coverage, no API key, annual development indicators. Multi-country
// requests collapse into a single upstream call with a semicolon-joined
// country list.
package worldbank

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/seenimoa/macroquery/internal/infra"
	"github.com/seenimoa/macroquery/internal/provider"
	"github.com/seenimoa/macroquery/internal/ref"
	"github.com/seenimoa/macroquery/pkg/models"
)

const (
	baseURL = "https://api.worldbank.org/v2"

	// countryChunk caps how many ISO3 codes join one request path. The
	// API accepts long lists but URL length and response size both grow
	// with it; G20 fits in a single chunk.
	countryChunk = 20
)

// labelIndicator maps common labels to World Bank indicator codes.
var labelIndicator = map[string]indicatorDef{
	"gdp":                  {"NY.GDP.MKTP.KD", "GDP (constant 2015 US$)"},
	"real gdp":             {"NY.GDP.MKTP.KD", "GDP (constant 2015 US$)"},
	"nominal gdp":          {"NY.GDP.MKTP.CD", "GDP (current US$)"},
	"gdp growth":           {"NY.GDP.MKTP.KD.ZG", "GDP growth (annual %)"},
	"gdp per capita":       {"NY.GDP.PCAP.KD", "GDP per capita (constant 2015 US$)"},
	"inflation":            {"FP.CPI.TOTL.ZG", "Inflation, consumer prices (annual %)"},
	"cpi":                  {"FP.CPI.TOTL", "Consumer price index (2010 = 100)"},
	"unemployment rate":    {"SL.UEM.TOTL.ZS", "Unemployment, total (% of labor force)"},
	"unemployment":         {"SL.UEM.TOTL.ZS", "Unemployment, total (% of labor force)"},
	"population":           {"SP.POP.TOTL", "Population, total"},
	"life expectancy":      {"SP.DYN.LE00.IN", "Life expectancy at birth, total (years)"},
	"government debt":      {"GC.DOD.TOTL.GD.ZS", "Central government debt, total (% of GDP)"},
	"current account":      {"BN.CAB.XOKA.GD.ZS", "Current account balance (% of GDP)"},
	"exports":              {"NE.EXP.GNFS.ZS", "Exports of goods and services (% of GDP)"},
	"imports":              {"NE.IMP.GNFS.ZS", "Imports of goods and services (% of GDP)"},
	"fdi":                  {"BX.KLT.DINV.WD.GD.ZS", "Foreign direct investment, net inflows (% of GDP)"},
	"co2 emissions":        {"EN.ATM.CO2E.PC", "CO2 emissions (metric tons per capita)"},
	"interest rate":        {"FR.INR.RINR", "Real interest rate (%)"},
	"gini":                 {"SI.POV.GINI", "Gini index"},
	"poverty rate":         {"SI.POV.DDAY", "Poverty headcount ratio at $2.15 a day (%)"},
	"literacy rate":        {"SE.ADT.LITR.ZS", "Literacy rate, adult total (%)"},
	"military expenditure": {"MS.MIL.XPND.GD.ZS", "Military expenditure (% of GDP)"},
}

type indicatorDef struct {
	Code string
	Name string
}

// Adapter fetches from the World Bank Open Data API.
type Adapter struct {
	pool *infra.Pool
	base string
}

func New(pool *infra.Pool) *Adapter {
	return &Adapter{pool: pool, base: baseURL}
}

func (a *Adapter) Info() provider.Info {
	return provider.Info{
		Name:        provider.WorldBank,
		Description: "World Bank Open Data - development indicators for 200+ countries",
		Website:     "https://data.worldbank.org",
		RequiresKey: false,
		Domains:     []string{provider.DomainMacro},
		Countries:   "global",
	}
}

func (a *Adapter) Ping(ctx context.Context) error {
	u := a.base + "/country/USA/indicator/SP.POP.TOTL?format=json&per_page=1"
	resp, err := a.pool.Get(ctx, provider.WorldBank, u, nil)
	if err != nil {
		return err
	}
	return infra.ClassifyStatus(provider.WorldBank, resp)
}

// row is one observation in the v2 response. The response itself is a
// two-element array: [paging metadata, rows].
type row struct {
	Indicator struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"indicator"`
	Country struct {
		Value string `json:"value"`
	} `json:"country"`
	CountryISO3 string   `json:"countryiso3code"`
	Date        string   `json:"date"`
	Value       *float64 `json:"value"`
	Unit        string   `json:"unit"`
}

type apiError struct {
	Message []struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"message"`
}

// Fetch resolves the geography to a country list, batches it into
// semicolon-joined requests, and splits the combined response back into
// one series per country.
func (a *Adapter) Fetch(ctx context.Context, q provider.Query) ([]models.NormalizedSeries, error) {
	def, err := a.resolveIndicator(ctx, q.Indicator)
	if err != nil {
		return nil, err
	}
	countries, err := expandGeo(q.Geo)
	if err != nil {
		return nil, err
	}

	byCountry := map[string]*models.NormalizedSeries{}
	order := []string{}
	for i := 0; i < len(countries); i += countryChunk {
		chunk := countries[i:min(i+countryChunk, len(countries))]
		if err := a.fetchChunk(ctx, def, chunk, q.Time, byCountry, &order); err != nil {
			return nil, err
		}
	}

	var out []models.NormalizedSeries
	for _, iso := range order {
		s := byCountry[iso]
		s.SortPoints()
		out = append(out, *s)
	}
	if len(out) == 0 {
		return nil, &provider.DataNotAvailableError{
			Provider:  provider.WorldBank,
			Indicator: def.Code,
			Geo:       q.Geo.Value,
			Detail:    "no observations returned",
		}
	}
	return out, nil
}

func (a *Adapter) fetchChunk(ctx context.Context, def indicatorDef, chunk []string, tr models.TimeRange, byCountry map[string]*models.NormalizedSeries, order *[]string) error {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("per_page", "2000")
	if dr := dateRange(tr); dr != "" {
		params.Set("date", dr)
	}
	if tr.LatestOnly() {
		params.Set("mrnev", "1") // most recent non-empty value per country
	}

	u := fmt.Sprintf("%s/country/%s/indicator/%s?%s",
		a.base, strings.Join(chunk, ";"), def.Code, params.Encode())
	resp, err := a.pool.Get(ctx, provider.WorldBank, u, nil)
	if err != nil {
		return err
	}
	if err := infra.ClassifyStatus(provider.WorldBank, resp); err != nil {
		return err
	}

	// Errors come back as 200 with a one-element array holding a message
	// block instead of the [meta, rows] pair.
	var raw []json.RawMessage
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return &provider.UpstreamError{Provider: provider.WorldBank, Status: resp.Status, Body: "malformed response"}
	}
	if len(raw) < 2 {
		var ae apiError
		if json.Unmarshal(raw[0], &ae) == nil && len(ae.Message) > 0 {
			if ae.Message[0].ID == "120" { // invalid indicator
				return &provider.IndicatorUnknownError{Provider: provider.WorldBank, Indicator: def.Code}
			}
			return &provider.UpstreamError{Provider: provider.WorldBank, Status: resp.Status, Body: ae.Message[0].Value}
		}
		return &provider.UpstreamError{Provider: provider.WorldBank, Status: resp.Status, Body: "unexpected response shape"}
	}

	var rows []row
	if err := json.Unmarshal(raw[1], &rows); err != nil {
		return &provider.UpstreamError{Provider: provider.WorldBank, Status: resp.Status, Body: "malformed rows"}
	}

	echo := infra.CanonicalURL(u)
	for _, r := range rows {
		iso := r.CountryISO3
		if iso == "" {
			continue
		}
		s, ok := byCountry[iso]
		if !ok {
			name := def.Name
			if name == "" {
				name = r.Indicator.Value
			}
			s = &models.NormalizedSeries{
				Metadata: models.SeriesMetadata{
					SourceProvider:   provider.WorldBank,
					IndicatorCode:    def.Code,
					IndicatorDisplay: name,
					CountryOrRegion:  iso,
					Unit:             r.Unit,
					Frequency:        models.FreqAnnual,
					APIURLEcho:       echo,
					SourceURL:        "https://data.worldbank.org/indicator/" + def.Code,
				},
			}
			byCountry[iso] = s
			*order = append(*order, iso)
		}
		s.Points = append(s.Points, models.NormalizedPoint{Date: r.Date, Value: r.Value})
	}
	return nil
}

func (a *Adapter) resolveIndicator(ctx context.Context, ind models.IndicatorRequest) (indicatorDef, error) {
	if ind.ExplicitCode != "" {
		name := ind.Label
		if name == "" {
			name = ind.ExplicitCode
		}
		return indicatorDef{Code: strings.ToUpper(ind.ExplicitCode), Name: name}, nil
	}
	key := strings.ToLower(strings.TrimSpace(ind.Label))
	if ind.HasQualifier(models.QualNominal) && !strings.HasPrefix(key, "nominal ") {
		key = "nominal " + key
	}
	if ind.HasQualifier(models.QualGrowth) && !strings.HasSuffix(key, " growth") {
		key += " growth"
	}
	if ind.HasQualifier(models.QualPerCapita) && !strings.HasSuffix(key, " per capita") {
		key += " per capita"
	}
	if def, ok := labelIndicator[key]; ok {
		return def, nil
	}
	return a.searchIndicator(ctx, key)
}

// metadataSearch mirrors the v2 metadata search response: variables
// nested under source and concept, with the indicator name carried as a
// metatype entry.
type metadataSearch struct {
	Source []struct {
		Concept []struct {
			ID       string `json:"id"`
			Variable []struct {
				ID       string `json:"id"`
				Metatype []struct {
					ID    string `json:"id"`
					Value string `json:"value"`
				} `json:"metatype"`
			} `json:"variable"`
		} `json:"concept"`
	} `json:"source"`
}

// searchIndicator queries the metadata search over the WDI source for a
// label nothing else resolved, taking the first Series hit.
func (a *Adapter) searchIndicator(ctx context.Context, label string) (indicatorDef, error) {
	u := a.base + "/sources/2/search/" + url.PathEscape(label) + "?format=json"
	resp, err := a.pool.Get(ctx, provider.WorldBank, u, nil)
	if err != nil {
		return indicatorDef{}, err
	}
	if err := infra.ClassifyStatus(provider.WorldBank, resp); err != nil {
		return indicatorDef{}, err
	}

	var body metadataSearch
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return indicatorDef{}, &provider.UpstreamError{Provider: provider.WorldBank, Status: resp.Status, Body: "malformed metadata search"}
	}
	for _, src := range body.Source {
		for _, concept := range src.Concept {
			if concept.ID != "Series" {
				continue
			}
			for _, v := range concept.Variable {
				if v.ID == "" {
					continue
				}
				def := indicatorDef{Code: v.ID}
				for _, mt := range v.Metatype {
					if mt.ID == "IndicatorName" {
						def.Name = mt.Value
						break
					}
				}
				return def, nil
			}
		}
	}
	return indicatorDef{}, &provider.IndicatorUnknownError{Provider: provider.WorldBank, Indicator: label}
}

// expandGeo turns the selector into the ISO3 list the request path
// carries. The world aggregate is itself a World Bank "country".
func expandGeo(geo models.GeoSelector) ([]string, error) {
	switch geo.Kind {
	case models.GeoCountry:
		return []string{geo.Value}, nil
	case models.GeoGroup:
		members, ok := ref.GroupMembers(geo.Value)
		if !ok {
			return nil, &provider.DataNotAvailableError{
				Provider: provider.WorldBank,
				Geo:      geo.Value,
				Detail:   "unknown country group",
			}
		}
		sort.Strings(members)
		return members, nil
	case models.GeoWorld, "":
		return []string{"WLD"}, nil
	}
	return nil, &provider.DataNotAvailableError{
		Provider: provider.WorldBank,
		Geo:      geo.Value,
		Detail:   "unsupported geography kind " + string(geo.Kind),
	}
}

func dateRange(tr models.TimeRange) string {
	start, end := tr.StartYear(), tr.EndYear()
	switch {
	case start != 0 && end != 0:
		return fmt.Sprintf("%d:%d", start, end)
	case start != 0:
		return fmt.Sprintf("%d:2100", start)
	case end != 0:
		return fmt.Sprintf("1960:%d", end)
	}
	return ""
}
