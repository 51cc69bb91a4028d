// Package oecd implements the OECD SDMX adapter. Harmonized indicators
// for member countries, no API key, but the service is aggressively
// rate limited; the router only selects it when the user names it.
package oecd

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

const baseURL = "https://sdmx.oecd.org/public/rest"

// flowDef binds an indicator label to a dataflow plus the fixed
// dimension codes that pin the measure inside it. REF_AREA and FREQ are
// filled per query.
type flowDef struct {
	FlowRef string // agency,flow,version as the data URL expects
	DSDPath string // agency/dsd-id for the structure lookup
	Name    string
	Codes   map[string][]string
	Freq    models.Frequency
}

// labelFlow pins frequent labels to known dataflows with their measure
// codes. Labels it misses resolve through the full dataflow catalog.
var labelFlow = map[string]flowDef{
	"unemployment rate": {
		FlowRef: "OECD.SDD.TPS,DSD_LFS@DF_IALFS_UNE_M,1.0",
		DSDPath: "OECD.SDD.TPS/DSD_LFS@DF_IALFS_UNE_M",
		Name:    "Unemployment rate, harmonized",
		Codes:   map[string][]string{"MEASURE": {"UNE_LF_M"}, "ADJUSTMENT": {"Y"}},
		Freq:    models.FreqMonthly,
	},
	"inflation": {
		FlowRef: "OECD.SDD.TPS,DSD_PRICES@DF_PRICES_ALL,1.0",
		DSDPath: "OECD.SDD.TPS/DSD_PRICES@DF_PRICES_ALL",
		Name:    "Consumer price inflation, year over year",
		Codes:   map[string][]string{"MEASURE": {"CPI"}, "TRANSFORMATION": {"GY"}},
		Freq:    models.FreqMonthly,
	},
	"cpi": {
		FlowRef: "OECD.SDD.TPS,DSD_PRICES@DF_PRICES_ALL,1.0",
		DSDPath: "OECD.SDD.TPS/DSD_PRICES@DF_PRICES_ALL",
		Name:    "Consumer price index",
		Codes:   map[string][]string{"MEASURE": {"CPI"}, "TRANSFORMATION": {"IX"}},
		Freq:    models.FreqMonthly,
	},
	"gdp growth": {
		FlowRef: "OECD.SDD.NAD,DSD_NAMAIN1@DF_QNA_EXPENDITURE_GROWTH_OECD,1.1",
		DSDPath: "OECD.SDD.NAD/DSD_NAMAIN1@DF_QNA_EXPENDITURE_GROWTH_OECD",
		Name:    "Quarterly GDP growth",
		Codes:   map[string][]string{"TRANSACTION": {"B1GQ"}},
		Freq:    models.FreqQuarterly,
	},
	"interest rate": {
		FlowRef: "OECD.SDD.STES,DSD_STES@DF_FINMARK,4.0",
		DSDPath: "OECD.SDD.STES/DSD_STES@DF_FINMARK",
		Name:    "Long-term interest rate",
		Codes:   map[string][]string{"MEASURE": {"IRLT"}},
		Freq:    models.FreqMonthly,
	},
	"house prices": {
		FlowRef: "OECD.ECO.MPD,DSD_AN_HOUSE_PRICES@DF_HOUSE_PRICES,1.0",
		DSDPath: "OECD.ECO.MPD/DSD_AN_HOUSE_PRICES@DF_HOUSE_PRICES",
		Name:    "Real house price index",
		Codes:   map[string][]string{"MEASURE": {"RHP"}},
		Freq:    models.FreqQuarterly,
	},
}

// catalogTopK is how many ranked dataflow candidates go to the
// selector when the curated map misses.
const catalogTopK = 5

// FlowSelector picks the dataflow that answers a label from a ranked
// candidate list, or declines. The intent resolver implements it with
// an LLM judgment.
type FlowSelector interface {
	SelectDataflow(ctx context.Context, label string, options []string) (int, bool)
}

// Adapter fetches from the OECD SDMX service.
type Adapter struct {
	client *sdmx.Client
	base   string
	flows  FlowSelector
}

// New creates the adapter. flows may be nil; resolution then stops at
// the curated map.
func New(pool *infra.Pool, flows FlowSelector) *Adapter {
	return &Adapter{client: sdmx.NewClient(pool, provider.OECD), base: baseURL, flows: flows}
}

func (a *Adapter) Info() provider.Info {
	return provider.Info{
		Name:        provider.OECD,
		Description: "OECD Data Explorer - harmonized indicators for member countries",
		Website:     "https://data-explorer.oecd.org",
		RequiresKey: false,
		Scarce:      true,
		Domains:     []string{provider.DomainMacro},
		Countries:   "OECD members",
	}
}

func (a *Adapter) Ping(ctx context.Context) error {
	_, err := a.client.Dataflows(ctx, a.base+"/dataflow/OECD.SDD.TPS?references=none")
	return err
}

// Fetch builds a dotted SDMX key from the flow's structure definition
// and the query's geography, then decodes the data message into one
// series per country.
func (a *Adapter) Fetch(ctx context.Context, q provider.Query) ([]models.NormalizedSeries, error) {
	def, err := a.resolveFlow(ctx, q.Indicator)
	if err != nil {
		return nil, err
	}
	countries, err := expandGeo(q.Geo, q.Indicator.Label)
	if err != nil {
		return nil, err
	}

	key := "all"
	if def.DSDPath != "" && (len(def.Codes) > 0 || len(countries) > 0) {
		dsd, err := a.client.DSD(ctx, a.base+"/structure/datastructure/"+def.DSDPath+"?references=none")
		if err != nil {
			return nil, err
		}
		codes := map[string][]string{}
		for dim, vals := range def.Codes {
			if dsd.HasDimension(dim) {
				codes[dim] = vals
			}
		}
		if len(countries) > 0 && dsd.HasDimension("REF_AREA") {
			codes["REF_AREA"] = countries
		}
		if q.Frequency != "" && dsd.HasDimension("FREQ") {
			codes["FREQ"] = []string{q.Frequency.SDMXCode()}
		}
		key = dsd.KeyFor(codes)
	}

	params := url.Values{}
	params.Set("dimensionAtObservation", "TIME_PERIOD")
	if s := trimToMonth(q.Time.Start); s != "" {
		params.Set("startPeriod", s)
	}
	if e := trimToMonth(q.Time.End); e != "" {
		params.Set("endPeriod", e)
	}
	if q.Time.LatestOnly() {
		params.Set("lastNObservations", "1")
	}

	dataURL := a.base + "/data/" + def.FlowRef + "/" + key + "?" + params.Encode()
	series, err := a.client.Data(ctx, dataURL)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, &provider.DataNotAvailableError{
			Provider:  provider.OECD,
			Indicator: q.Indicator.Label,
			Geo:       q.Geo.Value,
			Detail:    "empty data message",
		}
	}

	echo := infra.CanonicalURL(dataURL)
	var out []models.NormalizedSeries
	for _, s := range series {
		area := s.Dim("REF_AREA")
		freq := models.FrequencyFromSDMX(s.Dim("FREQ"))
		if freq == "" {
			freq = def.Freq
		}
		ns := models.NormalizedSeries{
			Metadata: models.SeriesMetadata{
				SourceProvider:   provider.OECD,
				IndicatorCode:    def.FlowRef,
				IndicatorDisplay: def.Name,
				CountryOrRegion:  area,
				Frequency:        freq,
				APIURLEcho:       echo,
				SourceURL:        "https://data-explorer.oecd.org",
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

func (a *Adapter) resolveFlow(ctx context.Context, ind models.IndicatorRequest) (flowDef, error) {
	if ind.ExplicitCode != "" {
		// An explicit code names a full dataflow; the key stays "all"
		// and the caller narrows with time bounds.
		name := ind.Label
		if name == "" {
			name = ind.ExplicitCode
		}
		return flowDef{FlowRef: ind.ExplicitCode, DSDPath: dsdPathForRef(ind.ExplicitCode), Name: name}, nil
	}
	key := strings.ToLower(strings.TrimSpace(ind.Label))
	if ind.HasQualifier(models.QualGrowth) && !strings.HasSuffix(key, " growth") {
		key += " growth"
	}
	if def, ok := labelFlow[key]; ok {
		return def, nil
	}
	if base, found := strings.CutSuffix(key, " growth"); found {
		if _, ok := labelFlow[base]; ok {
			return flowDef{}, &provider.DataNotAvailableError{
				Provider:  provider.OECD,
				Indicator: key,
				Detail:    "no growth transformation published for " + base,
			}
		}
	}
	return a.catalogFlow(ctx, key, ind.Label)
}

// catalogFlow resolves a label the curated map misses against the full
// dataflow catalog: rank flows by name-token overlap, then let the
// selector judge the top candidates.
func (a *Adapter) catalogFlow(ctx context.Context, key, label string) (flowDef, error) {
	unknown := &provider.IndicatorUnknownError{Provider: provider.OECD, Indicator: label}
	if a.flows == nil {
		return flowDef{}, unknown
	}
	catalog, err := a.client.Dataflows(ctx, a.base+"/dataflow/all?references=none")
	if err != nil {
		return flowDef{}, err
	}
	top := rankFlows(catalog, key, catalogTopK)
	if len(top) == 0 {
		return flowDef{}, unknown
	}
	options := make([]string, len(top))
	for i, f := range top {
		options[i] = f.Name
	}
	pick, ok := a.flows.SelectDataflow(ctx, label, options)
	if !ok || pick < 0 || pick >= len(top) {
		return flowDef{}, unknown
	}
	chosen := top[pick]
	return flowDef{
		FlowRef: chosen.Ref(),
		DSDPath: chosen.AgencyID + "/" + chosen.ID,
		Name:    chosen.Name,
	}, nil
}

// rankFlows scores dataflows by how many query tokens their name or
// description contains, keeping the k best.
func rankFlows(catalog []sdmx.Dataflow, key string, k int) []sdmx.Dataflow {
	tokens := strings.Fields(key)
	type scored struct {
		flow  sdmx.Dataflow
		score int
	}
	var ranked []scored
	for _, f := range catalog {
		haystack := strings.ToLower(f.Name + " " + f.Description)
		score := 0
		for _, tok := range tokens {
			if strings.Contains(haystack, tok) {
				score++
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{flow: f, score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].flow.Name < ranked[j].flow.Name
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]sdmx.Dataflow, len(ranked))
	for i, r := range ranked {
		out[i] = r.flow
	}
	return out
}

// dsdPathForRef derives the structure-lookup path from an agency,id,
// version dataflow reference.
func dsdPathForRef(ref string) string {
	parts := strings.Split(ref, ",")
	if len(parts) < 2 {
		return ""
	}
	return parts[0] + "/" + parts[1]
}

func expandGeo(geo models.GeoSelector, indicator string) ([]string, error) {
	switch geo.Kind {
	case models.GeoCountry:
		return []string{geo.Value}, nil
	case models.GeoGroup:
		if geo.Value == models.GroupOECD {
			// The service publishes its own membership aggregate.
			return []string{"OECD"}, nil
		}
		members, ok := ref.GroupMembers(geo.Value)
		if !ok {
			return nil, &provider.DataNotAvailableError{
				Provider: provider.OECD,
				Geo:      geo.Value,
				Detail:   "unknown country group",
			}
		}
		sort.Strings(members)
		return members, nil
	case "":
		return nil, nil
	}
	return nil, &provider.DataNotAvailableError{
		Provider:  provider.OECD,
		Indicator: indicator,
		Geo:       geo.Value,
		Detail:    "no world aggregate published",
	}
}

// trimToMonth narrows a full date to the YYYY-MM granularity SDMX
// period bounds use. Bare years and quarters pass through.
func trimToMonth(s string) string {
	if len(s) == 10 {
		return s[:7]
	}
	return s
}
