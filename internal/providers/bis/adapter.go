// Package bis implements the BIS statistics adapter. Central-bank
// sourced series (policy rates, property prices, effective exchange
// rates) over the BIS SDMX v2 API, no key. Geographies use ISO2.
package bis

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/seenimoa/macroquery/internal/infra"
	"github.com/seenimoa/macroquery/internal/provider"
	"github.com/seenimoa/macroquery/internal/ref"
	"github.com/seenimoa/macroquery/internal/sdmx"
	"github.com/seenimoa/macroquery/pkg/models"
)

const baseURL = "https://stats.bis.org/api/v2/data/dataflow/BIS"

// flowDef binds a label to a BIS dataflow. KeyPattern receives the
// "+"-joined ISO2 area list; BIS keys are short and stable enough that
// a structure lookup per request buys nothing.
type flowDef struct {
	Flow       string
	Name       string
	KeyPattern string
	Freq       models.Frequency
}

var labelFlow = map[string]flowDef{
	"policy rate": {
		Flow:       "WS_CBPOL_M",
		Name:       "Central bank policy rate",
		KeyPattern: "M.%s",
		Freq:       models.FreqMonthly,
	},
	"central bank policy rate": {
		Flow:       "WS_CBPOL_M",
		Name:       "Central bank policy rate",
		KeyPattern: "M.%s",
		Freq:       models.FreqMonthly,
	},
	"interest rate": {
		Flow:       "WS_CBPOL_M",
		Name:       "Central bank policy rate",
		KeyPattern: "M.%s",
		Freq:       models.FreqMonthly,
	},
	"house prices": {
		Flow:       "WS_SPP",
		Name:       "Residential property prices, nominal index",
		KeyPattern: "Q.%s.N.628",
		Freq:       models.FreqQuarterly,
	},
	"property prices": {
		Flow:       "WS_SPP",
		Name:       "Residential property prices, nominal index",
		KeyPattern: "Q.%s.N.628",
		Freq:       models.FreqQuarterly,
	},
	"effective exchange rate": {
		Flow:       "WS_EER_M",
		Name:       "Nominal effective exchange rate, broad basket",
		KeyPattern: "M.N.B.%s",
		Freq:       models.FreqMonthly,
	},
	"inflation": {
		Flow:       "WS_LONG_CPI",
		Name:       "Consumer prices, year-on-year change",
		KeyPattern: "M.%s.771",
		Freq:       models.FreqMonthly,
	},
}

// iso3ToISO2 covers the economies BIS reports on.
var iso3ToISO2 = map[string]string{
	"ARG": "AR", "AUS": "AU", "AUT": "AT", "BEL": "BE", "BRA": "BR",
	"CAN": "CA", "CHE": "CH", "CHL": "CL", "CHN": "CN", "COL": "CO",
	"CZE": "CZ", "DEU": "DE", "DNK": "DK", "ESP": "ES", "EST": "EE",
	"FIN": "FI", "FRA": "FR", "GBR": "GB", "GRC": "GR", "HKG": "HK",
	"HUN": "HU", "IDN": "ID", "IND": "IN", "IRL": "IE", "ISR": "IL",
	"ITA": "IT", "JPN": "JP", "KOR": "KR", "LTU": "LT", "LUX": "LU",
	"LVA": "LV", "MEX": "MX", "MYS": "MY", "NLD": "NL", "NOR": "NO",
	"NZL": "NZ", "PER": "PE", "PHL": "PH", "POL": "PL", "PRT": "PT",
	"ROU": "RO", "RUS": "RU", "SAU": "SA", "SGP": "SG", "SVK": "SK",
	"SVN": "SI", "SWE": "SE", "THA": "TH", "TUR": "TR", "USA": "US",
	"ZAF": "ZA",
}

var iso2ToISO3 = func() map[string]string {
	m := make(map[string]string, len(iso3ToISO2))
	for iso3, iso2 := range iso3ToISO2 {
		m[iso2] = iso3
	}
	return m
}()

// Adapter fetches from the BIS statistics API.
type Adapter struct {
	client *sdmx.Client
	base   string
}

func New(pool *infra.Pool) *Adapter {
	return &Adapter{client: sdmx.NewClient(pool, provider.BIS), base: baseURL}
}

func (a *Adapter) Info() provider.Info {
	return provider.Info{
		Name:        provider.BIS,
		Description: "Bank for International Settlements - policy rates, property prices, FX statistics",
		Website:     "https://data.bis.org",
		RequiresKey: false,
		Domains:     []string{provider.DomainMacro},
		Countries:   "reporting economies",
	}
}

func (a *Adapter) Ping(ctx context.Context) error {
	_, err := a.client.Data(ctx, a.base+"/WS_CBPOL_M/1.0/M.US?startPeriod=2024&format=sdmx-json")
	return err
}

func (a *Adapter) Fetch(ctx context.Context, q provider.Query) ([]models.NormalizedSeries, error) {
	def, err := a.resolveFlow(q.Indicator)
	if err != nil {
		return nil, err
	}
	areas, err := expandGeo(q.Geo)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf(def.KeyPattern, strings.Join(areas, "+"))
	params := url.Values{}
	params.Set("format", "sdmx-json")
	if y := q.Time.StartYear(); y != 0 {
		params.Set("startPeriod", fmt.Sprintf("%d", y))
	}
	if y := q.Time.EndYear(); y != 0 {
		params.Set("endPeriod", fmt.Sprintf("%d", y))
	}
	if q.Time.LatestOnly() {
		params.Set("lastNObservations", "1")
	}

	u := a.base + "/" + def.Flow + "/1.0/" + key + "?" + params.Encode()
	series, err := a.client.Data(ctx, u)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, &provider.DataNotAvailableError{
			Provider:  provider.BIS,
			Indicator: def.Flow,
			Geo:       q.Geo.Value,
			Detail:    "empty data message",
		}
	}

	echo := infra.CanonicalURL(u)
	var out []models.NormalizedSeries
	for _, s := range series {
		area := s.Dim("REF_AREA")
		if iso3, ok := iso2ToISO3[area]; ok {
			area = iso3
		}
		freq := models.FrequencyFromSDMX(s.Dim("FREQ"))
		if freq == "" {
			freq = def.Freq
		}
		ns := models.NormalizedSeries{
			Metadata: models.SeriesMetadata{
				SourceProvider:   provider.BIS,
				IndicatorCode:    def.Flow,
				IndicatorDisplay: def.Name,
				CountryOrRegion:  area,
				Frequency:        freq,
				APIURLEcho:       echo,
				SourceURL:        "https://data.bis.org/topics",
			},
		}
		for _, obs := range s.Obs {
			ns.Points = append(ns.Points, models.NormalizedPoint{Date: obs.Period, Value: obs.Value})
		}
		ns.SortPoints()
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Metadata.CountryOrRegion < out[j].Metadata.CountryOrRegion
	})
	return out, nil
}

func (a *Adapter) resolveFlow(ind models.IndicatorRequest) (flowDef, error) {
	if ind.ExplicitCode != "" {
		name := ind.Label
		if name == "" {
			name = ind.ExplicitCode
		}
		return flowDef{Flow: strings.ToUpper(ind.ExplicitCode), Name: name, KeyPattern: "all"}, nil
	}
	key := strings.ToLower(strings.TrimSpace(ind.Label))
	if def, ok := labelFlow[key]; ok {
		return def, nil
	}
	return flowDef{}, &provider.IndicatorUnknownError{Provider: provider.BIS, Indicator: ind.Label}
}

func expandGeo(geo models.GeoSelector) ([]string, error) {
	switch geo.Kind {
	case models.GeoCountry:
		iso2, ok := iso3ToISO2[geo.Value]
		if !ok {
			return nil, &provider.DataNotAvailableError{
				Provider: provider.BIS,
				Geo:      geo.Value,
				Detail:   "not a BIS reporting economy",
			}
		}
		return []string{iso2}, nil
	case models.GeoGroup:
		members, ok := ref.GroupMembers(geo.Value)
		if !ok {
			return nil, &provider.DataNotAvailableError{
				Provider: provider.BIS,
				Geo:      geo.Value,
				Detail:   "unknown country group",
			}
		}
		var areas []string
		for _, iso3 := range members {
			if iso2, ok := iso3ToISO2[iso3]; ok {
				areas = append(areas, iso2)
			}
		}
		if len(areas) == 0 {
			return nil, &provider.DataNotAvailableError{
				Provider: provider.BIS,
				Geo:      geo.Value,
				Detail:   "no group member reports to BIS",
			}
		}
		sort.Strings(areas)
		return areas, nil
	}
	return nil, &provider.DataNotAvailableError{
		Provider: provider.BIS,
		Geo:      geo.Value,
		Detail:   "a single country or group is required",
	}
}
