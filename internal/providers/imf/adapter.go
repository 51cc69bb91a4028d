// Package imf implements the IMF DataMapper adapter. Annual WEO-style
// aggregates for every member country plus projections a few years out,
// no API key.
package imf

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/seenimoa/macroquery/internal/infra"
	"github.com/seenimoa/macroquery/internal/provider"
	"github.com/seenimoa/macroquery/internal/ref"
	"github.com/seenimoa/macroquery/pkg/models"
)

const baseURL = "https://www.imf.org/external/datamapper/api/v1"

// labelIndicator maps labels to DataMapper indicator IDs.
var labelIndicator = map[string]indicatorDef{
	"gdp growth":              {"NGDP_RPCH", "Real GDP growth (annual %)"},
	"real gdp growth":         {"NGDP_RPCH", "Real GDP growth (annual %)"},
	"gdp":                     {"NGDPD", "GDP, current prices (billions USD)"},
	"nominal gdp":             {"NGDPD", "GDP, current prices (billions USD)"},
	"gdp per capita":          {"NGDPDPC", "GDP per capita, current prices (USD)"},
	"inflation":               {"PCPIPCH", "Inflation, average consumer prices (annual %)"},
	"inflation rate":          {"PCPIPCH", "Inflation, average consumer prices (annual %)"},
	"unemployment rate":       {"LUR", "Unemployment rate (%)"},
	"unemployment":            {"LUR", "Unemployment rate (%)"},
	"government debt":         {"GGXWDG_NGDP", "General government gross debt (% of GDP)"},
	"debt to gdp":             {"GGXWDG_NGDP", "General government gross debt (% of GDP)"},
	"current account":         {"BCA_NGDPD", "Current account balance (% of GDP)"},
	"fiscal balance":          {"GGXCNL_NGDP", "General government net lending/borrowing (% of GDP)"},
	"population":              {"LP", "Population (millions)"},
	"investment":              {"NID_NGDP", "Total investment (% of GDP)"},
	"savings":                 {"NGSD_NGDP", "Gross national savings (% of GDP)"},
	"gdp share of world":      {"PPPSH", "GDP based on PPP, share of world (%)"},
	"government revenue":      {"GGR_NGDP", "General government revenue (% of GDP)"},
	"government expenditure":  {"GGX_NGDP", "General government total expenditure (% of GDP)"},
}

type indicatorDef struct {
	ID   string
	Name string
}

// Adapter fetches from the IMF DataMapper API.
type Adapter struct {
	pool *infra.Pool
	base string
}

func New(pool *infra.Pool) *Adapter {
	return &Adapter{pool: pool, base: baseURL}
}

func (a *Adapter) Info() provider.Info {
	return provider.Info{
		Name:        provider.IMF,
		Description: "IMF DataMapper - WEO macro aggregates with forward projections",
		Website:     "https://www.imf.org/external/datamapper",
		RequiresKey: false,
		Domains:     []string{provider.DomainMacro},
		Countries:   "global",
	}
}

func (a *Adapter) Ping(ctx context.Context) error {
	resp, err := a.pool.Get(ctx, provider.IMF, a.base+"/indicators", nil)
	if err != nil {
		return err
	}
	return infra.ClassifyStatus(provider.IMF, resp)
}

// valuesResponse is keyed indicator -> country -> year -> value.
type valuesResponse struct {
	Values map[string]map[string]map[string]*float64 `json:"values"`
}

// Fetch retrieves one indicator for one or more countries. The API path
// is /{indicator}/{ISO3}/{ISO3}/...; data is always annual.
func (a *Adapter) Fetch(ctx context.Context, q provider.Query) ([]models.NormalizedSeries, error) {
	def, err := a.resolveIndicator(q.Indicator)
	if err != nil {
		return nil, err
	}
	countries, err := expandGeo(q.Geo)
	if err != nil {
		return nil, err
	}

	u := a.base + "/" + def.ID
	if len(countries) > 0 {
		u += "/" + strings.Join(countries, "/")
	}
	resp, err := a.pool.Get(ctx, provider.IMF, u, nil)
	if err != nil {
		return nil, err
	}
	if err := infra.ClassifyStatus(provider.IMF, resp); err != nil {
		return nil, err
	}

	var body valuesResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, &provider.UpstreamError{Provider: provider.IMF, Status: resp.Status, Body: "malformed values JSON"}
	}
	// Unknown indicators come back as 200 with an empty values block.
	byCountry, ok := body.Values[def.ID]
	if !ok || len(byCountry) == 0 {
		return nil, &provider.IndicatorUnknownError{Provider: provider.IMF, Indicator: def.ID}
	}

	startYear, endYear := q.Time.StartYear(), q.Time.EndYear()
	echo := infra.CanonicalURL(u)

	var out []models.NormalizedSeries
	for _, iso := range sortedKeys(byCountry) {
		years := byCountry[iso]
		s := models.NormalizedSeries{
			Metadata: models.SeriesMetadata{
				SourceProvider:   provider.IMF,
				IndicatorCode:    def.ID,
				IndicatorDisplay: def.Name,
				CountryOrRegion:  iso,
				Frequency:        models.FreqAnnual,
				APIURLEcho:       echo,
				SourceURL:        fmt.Sprintf("https://www.imf.org/external/datamapper/%s", def.ID),
			},
		}
		for _, year := range sortedKeys(years) {
			y, err := strconv.Atoi(year)
			if err != nil {
				continue
			}
			if startYear != 0 && y < startYear {
				continue
			}
			if endYear != 0 && y > endYear {
				continue
			}
			s.Points = append(s.Points, models.NormalizedPoint{Date: year, Value: years[year]})
		}
		if q.Time.LatestOnly() && len(s.Points) > 0 {
			s.Points = s.Points[len(s.Points)-1:]
		}
		if len(s.Points) == 0 {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, &provider.DataNotAvailableError{
			Provider:  provider.IMF,
			Indicator: def.ID,
			Geo:       q.Geo.Value,
			Detail:    "no observations in the requested window",
		}
	}
	return out, nil
}

func (a *Adapter) resolveIndicator(ind models.IndicatorRequest) (indicatorDef, error) {
	if ind.ExplicitCode != "" {
		name := ind.Label
		if name == "" {
			name = ind.ExplicitCode
		}
		return indicatorDef{ID: strings.ToUpper(ind.ExplicitCode), Name: name}, nil
	}
	key := strings.ToLower(strings.TrimSpace(ind.Label))
	if ind.HasQualifier(models.QualGrowth) && !strings.HasSuffix(key, " growth") {
		key += " growth"
	}
	if ind.HasQualifier(models.QualPerCapita) && !strings.HasSuffix(key, " per capita") {
		key += " per capita"
	}
	if def, ok := labelIndicator[key]; ok {
		return def, nil
	}
	return indicatorDef{}, &provider.IndicatorUnknownError{Provider: provider.IMF, Indicator: ind.Label}
}

func expandGeo(geo models.GeoSelector) ([]string, error) {
	switch geo.Kind {
	case models.GeoCountry:
		return []string{geo.Value}, nil
	case models.GeoGroup:
		members, ok := ref.GroupMembers(geo.Value)
		if !ok {
			return nil, &provider.DataNotAvailableError{
				Provider: provider.IMF,
				Geo:      geo.Value,
				Detail:   "unknown country group",
			}
		}
		sort.Strings(members)
		return members, nil
	case models.GeoWorld:
		// WEOWORLD is the DataMapper world aggregate.
		return []string{"WEOWORLD"}, nil
	case "":
		return nil, nil
	}
	return nil, &provider.DataNotAvailableError{
		Provider: provider.IMF,
		Geo:      geo.Value,
		Detail:   "unsupported geography kind " + string(geo.Kind),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
