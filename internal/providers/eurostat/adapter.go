// Package eurostat implements the Eurostat adapter against the
// dissemination statistics API, which serves JSON-stat 2.0 datasets.
// EU and candidate countries only; geographies use Eurostat's
// two-letter codes, so ISO3 input is translated first.
package eurostat

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/seenimoa/macroquery/internal/infra"
	"github.com/seenimoa/macroquery/internal/provider"
	"github.com/seenimoa/macroquery/internal/ref"
	"github.com/seenimoa/macroquery/internal/sdmx"
	"github.com/seenimoa/macroquery/pkg/models"
)

const baseURL = "https://ec.europa.eu/eurostat/api/dissemination/statistics/1.0/data"

// datasetDef binds a label to a Eurostat dataset plus the fixed
// dimension filters that select the series of interest.
type datasetDef struct {
	Dataset string
	Name    string
	Filters map[string]string
	Freq    models.Frequency
}

var labelDataset = map[string]datasetDef{
	"inflation": {
		Dataset: "prc_hicp_manr",
		Name:    "HICP inflation, annual rate of change",
		Filters: map[string]string{"coicop": "CP00"},
		Freq:    models.FreqMonthly,
	},
	"hicp": {
		Dataset: "prc_hicp_midx",
		Name:    "HICP index (2015 = 100)",
		Filters: map[string]string{"coicop": "CP00", "unit": "I15"},
		Freq:    models.FreqMonthly,
	},
	"core inflation": {
		Dataset: "prc_hicp_manr",
		Name:    "HICP inflation excluding energy and unprocessed food",
		Filters: map[string]string{"coicop": "TOT_X_NRG_FOOD"},
		Freq:    models.FreqMonthly,
	},
	"unemployment rate": {
		Dataset: "une_rt_m",
		Name:    "Unemployment rate, seasonally adjusted",
		Filters: map[string]string{"s_adj": "SA", "age": "TOTAL", "sex": "T", "unit": "PC_ACT"},
		Freq:    models.FreqMonthly,
	},
	"unemployment": {
		Dataset: "une_rt_m",
		Name:    "Unemployment rate, seasonally adjusted",
		Filters: map[string]string{"s_adj": "SA", "age": "TOTAL", "sex": "T", "unit": "PC_ACT"},
		Freq:    models.FreqMonthly,
	},
	"gdp growth": {
		Dataset: "namq_10_gdp",
		Name:    "GDP growth rate over previous period",
		Filters: map[string]string{"unit": "CLV_PCH_PRE", "s_adj": "SCA", "na_item": "B1GQ"},
		Freq:    models.FreqQuarterly,
	},
	"gdp": {
		Dataset: "namq_10_gdp",
		Name:    "GDP, chain linked volumes",
		Filters: map[string]string{"unit": "CLV15_MEUR", "s_adj": "SCA", "na_item": "B1GQ"},
		Freq:    models.FreqQuarterly,
	},
	"government debt": {
		Dataset: "gov_10q_ggdebt",
		Name:    "General government gross debt (% of GDP)",
		Filters: map[string]string{"unit": "PC_GDP", "sector": "S13", "na_item": "GD"},
		Freq:    models.FreqQuarterly,
	},
	"industrial production": {
		Dataset: "sts_inpr_m",
		Name:    "Industrial production index",
		Filters: map[string]string{"nace_r2": "B-D", "s_adj": "SCA", "unit": "I21"},
		Freq:    models.FreqMonthly,
	},
}

// iso3ToGeo maps ISO3 to the Eurostat geo codes, which mostly follow
// ISO2 except for Greece (EL) and the aggregates.
var iso3ToGeo = map[string]string{
	"AUT": "AT", "BEL": "BE", "BGR": "BG", "HRV": "HR", "CYP": "CY",
	"CZE": "CZ", "DNK": "DK", "EST": "EE", "FIN": "FI", "FRA": "FR",
	"DEU": "DE", "GRC": "EL", "HUN": "HU", "IRL": "IE", "ITA": "IT",
	"LVA": "LV", "LTU": "LT", "LUX": "LU", "MLT": "MT", "NLD": "NL",
	"POL": "PL", "PRT": "PT", "ROU": "RO", "SVK": "SK", "SVN": "SI",
	"ESP": "ES", "SWE": "SE", "NOR": "NO", "ISL": "IS", "CHE": "CH",
	"GBR": "UK", "TUR": "TR", "SRB": "RS", "MKD": "MK", "ALB": "AL",
	"MNE": "ME", "BIH": "BA",
}

var geoToISO3 = func() map[string]string {
	m := make(map[string]string, len(iso3ToGeo))
	for iso3, geo := range iso3ToGeo {
		m[geo] = iso3
	}
	return m
}()

// Adapter fetches JSON-stat datasets from Eurostat.
type Adapter struct {
	client *sdmx.Client
	base   string
}

func New(pool *infra.Pool) *Adapter {
	return &Adapter{client: sdmx.NewClient(pool, provider.Eurostat), base: baseURL}
}

func (a *Adapter) Info() provider.Info {
	return provider.Info{
		Name:        provider.Eurostat,
		Description: "Eurostat - official EU statistics, JSON-stat dissemination API",
		Website:     "https://ec.europa.eu/eurostat",
		RequiresKey: false,
		Domains:     []string{provider.DomainMacro},
		Countries:   "EU, EFTA and candidate countries",
	}
}

func (a *Adapter) Ping(ctx context.Context) error {
	_, err := a.client.JSONStat(ctx, a.base+"/une_rt_m?format=JSON&lang=EN&geo=EU27_2020&lastTimePeriod=1&s_adj=SA&age=TOTAL&sex=T&unit=PC_ACT")
	return err
}

// Fetch queries one dataset with server-side dimension filters and
// splits the decoded cube into one series per geography.
func (a *Adapter) Fetch(ctx context.Context, q provider.Query) ([]models.NormalizedSeries, error) {
	def, err := a.resolveDataset(q.Indicator)
	if err != nil {
		return nil, err
	}
	geos, err := expandGeo(q.Geo)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("format", "JSON")
	params.Set("lang", "EN")
	for dim, code := range def.Filters {
		params.Set(dim, code)
	}
	for _, g := range geos {
		params.Add("geo", g)
	}
	if y := q.Time.StartYear(); y != 0 {
		params.Set("sinceTimePeriod", q.Time.Start[:4])
	}
	if y := q.Time.EndYear(); y != 0 {
		params.Set("untilTimePeriod", q.Time.End[:4])
	}
	if q.Time.LatestOnly() {
		params.Set("lastTimePeriod", "1")
	}

	u := a.base + "/" + def.Dataset + "?" + params.Encode()
	series, err := a.client.JSONStat(ctx, u)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, &provider.DataNotAvailableError{
			Provider:  provider.Eurostat,
			Indicator: def.Dataset,
			Geo:       q.Geo.Value,
			Detail:    "empty dataset",
		}
	}

	echo := infra.CanonicalURL(u)
	var out []models.NormalizedSeries
	for _, s := range series {
		geo := s.Dim("geo")
		region := geo
		if iso3, ok := geoToISO3[geo]; ok {
			region = iso3
		}
		ns := models.NormalizedSeries{
			Metadata: models.SeriesMetadata{
				SourceProvider:   provider.Eurostat,
				IndicatorCode:    def.Dataset,
				IndicatorDisplay: def.Name,
				CountryOrRegion:  region,
				Frequency:        def.Freq,
				APIURLEcho:       echo,
				SourceURL:        "https://ec.europa.eu/eurostat/databrowser/product/view/" + def.Dataset,
			},
		}
		for _, obs := range s.Obs {
			ns.Points = append(ns.Points, models.NormalizedPoint{Date: normalizePeriod(obs.Period), Value: obs.Value})
		}
		ns.SortPoints()
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Metadata.CountryOrRegion < out[j].Metadata.CountryOrRegion
	})
	return out, nil
}

func (a *Adapter) resolveDataset(ind models.IndicatorRequest) (datasetDef, error) {
	if ind.ExplicitCode != "" {
		name := ind.Label
		if name == "" {
			name = ind.ExplicitCode
		}
		return datasetDef{Dataset: strings.ToLower(ind.ExplicitCode), Name: name}, nil
	}
	key := strings.ToLower(strings.TrimSpace(ind.Label))
	if ind.HasQualifier(models.QualCore) && !strings.HasPrefix(key, "core ") {
		key = "core " + key
	}
	if ind.HasQualifier(models.QualGrowth) && !strings.HasSuffix(key, " growth") {
		key += " growth"
	}
	if def, ok := labelDataset[key]; ok {
		return def, nil
	}
	return datasetDef{}, &provider.IndicatorUnknownError{Provider: provider.Eurostat, Indicator: ind.Label}
}

func expandGeo(geo models.GeoSelector) ([]string, error) {
	switch geo.Kind {
	case models.GeoCountry:
		code, ok := iso3ToGeo[geo.Value]
		if !ok {
			return nil, &provider.DataNotAvailableError{
				Provider: provider.Eurostat,
				Geo:      geo.Value,
				Detail:   "not covered by Eurostat",
			}
		}
		return []string{code}, nil
	case models.GeoGroup:
		// EU aggregates are published as their own geo codes.
		switch geo.Value {
		case models.GroupEU27:
			return []string{"EU27_2020"}, nil
		case models.GroupEuroArea:
			return []string{"EA20"}, nil
		}
		members, ok := ref.GroupMembers(geo.Value)
		if !ok {
			return nil, &provider.DataNotAvailableError{
				Provider: provider.Eurostat,
				Geo:      geo.Value,
				Detail:   "unknown country group",
			}
		}
		var geos []string
		for _, iso3 := range members {
			if code, ok := iso3ToGeo[iso3]; ok {
				geos = append(geos, code)
			}
		}
		if len(geos) == 0 {
			return nil, &provider.DataNotAvailableError{
				Provider: provider.Eurostat,
				Geo:      geo.Value,
				Detail:   "no group member covered by Eurostat",
			}
		}
		sort.Strings(geos)
		return geos, nil
	case "":
		return nil, nil
	}
	return nil, &provider.DataNotAvailableError{
		Provider: provider.Eurostat,
		Geo:      geo.Value,
		Detail:   "unsupported geography kind " + string(geo.Kind),
	}
}

// normalizePeriod rewrites Eurostat period labels ("2024M01", "2024Q1")
// into the shared dashed forms.
func normalizePeriod(p string) string {
	if i := strings.IndexByte(p, 'M'); i == 4 {
		return p[:4] + "-" + p[5:]
	}
	if i := strings.IndexByte(p, 'Q'); i == 4 {
		return p[:4] + "-Q" + p[5:]
	}
	return p
}
