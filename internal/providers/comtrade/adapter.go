// Package comtrade implements the UN Comtrade adapter for bilateral
// goods trade. Reporters and partners are numeric M.49 codes, products
// are HS codes, and trade balance is derived as exports minus imports.
package comtrade

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/seenimoa/macroquery/internal/index"
	"github.com/seenimoa/macroquery/internal/infra"
	"github.com/seenimoa/macroquery/internal/provider"
	"github.com/seenimoa/macroquery/internal/ref"
	"github.com/seenimoa/macroquery/pkg/models"
)

const baseURL = "https://comtradeapi.un.org/data/v1/get/C/A/HS"

// flowExports and flowImports are Comtrade flow codes.
const (
	flowExports = "X"
	flowImports = "M"
)

// ProductSearcher resolves product names the alias table misses against
// the HS hierarchy records in the indicator index.
type ProductSearcher interface {
	Search(ctx context.Context, query, providerFilter string, limit int) ([]index.ScoredRecord, error)
}

// Adapter fetches annual HS-classified trade from UN Comtrade.
type Adapter struct {
	pool     *infra.Pool
	apiKey   string
	base     string
	products ProductSearcher
}

// New creates the adapter. products may be nil; resolution then stops
// at the alias table.
func New(pool *infra.Pool, apiKey string, products ProductSearcher) *Adapter {
	return &Adapter{pool: pool, apiKey: apiKey, base: baseURL, products: products}
}

func (a *Adapter) Info() provider.Info {
	return provider.Info{
		Name:        provider.Comtrade,
		Description: "UN Comtrade - bilateral goods trade by HS commodity code",
		Website:     "https://comtradeplus.un.org",
		RequiresKey: true,
		Domains:     []string{provider.DomainTrade},
		Countries:   "global",
	}
}

func (a *Adapter) Ping(ctx context.Context) error {
	u := a.base + "?reporterCode=124&partnerCode=0&cmdCode=TOTAL&flowCode=X&period=2022&subscription-key=" + url.QueryEscape(a.apiKey)
	resp, err := a.pool.Get(ctx, provider.Comtrade, u, nil)
	if err != nil {
		return err
	}
	return infra.ClassifyStatus(provider.Comtrade, resp)
}

type tradeRow struct {
	Period       int     `json:"period"`
	ReporterCode int     `json:"reporterCode"`
	PartnerCode  int     `json:"partnerCode"`
	CmdCode      string  `json:"cmdCode"`
	CmdDesc      string  `json:"cmdDesc"`
	FlowCode     string  `json:"flowCode"`
	PrimaryValue float64 `json:"primaryValue"`
}

type tradeResponse struct {
	Data  []tradeRow `json:"data"`
	Count int        `json:"count"`
}

// Fetch parses the trade request out of the indicator label, resolves
// codes, and issues one upstream call per flow direction. A balance
// query fetches exports and imports and subtracts them per period.
func (a *Adapter) Fetch(ctx context.Context, q provider.Query) ([]models.NormalizedSeries, error) {
	flow, product, err := parseLabel(q.Indicator)
	if err != nil {
		return nil, err
	}
	hs, err := a.resolveProduct(ctx, product)
	if err != nil {
		return nil, err
	}

	reporter, err := reporterM49(q.Geo)
	if err != nil {
		return nil, err
	}
	partners, err := partnerM49s(q.Partner)
	if err != nil {
		return nil, err
	}

	if flow == "balance" {
		exports, exportURL, err := a.fetchFlow(ctx, reporter, partners, hs, flowExports, q.Time)
		if err != nil {
			return nil, err
		}
		imports, _, err := a.fetchFlow(ctx, reporter, partners, hs, flowImports, q.Time)
		if err != nil {
			return nil, err
		}
		s := balanceSeries(exports, imports)
		if len(s.Points) == 0 {
			return nil, a.noData(q, hs)
		}
		a.fillMeta(&s, q, hs, "Trade balance", exportURL)
		return []models.NormalizedSeries{s}, nil
	}

	byPeriod, dataURL, err := a.fetchFlow(ctx, reporter, partners, hs, flow, q.Time)
	if err != nil {
		return nil, err
	}
	s := seriesFromPeriods(byPeriod)
	if len(s.Points) == 0 {
		return nil, a.noData(q, hs)
	}
	display := "Exports"
	if flow == flowImports {
		display = "Imports"
	}
	a.fillMeta(&s, q, hs, display, dataURL)
	return []models.NormalizedSeries{s}, nil
}

// fetchFlow issues one request and aggregates primary values per
// period. Multiple partners (an expanded group) sum together.
func (a *Adapter) fetchFlow(ctx context.Context, reporter int, partners []int, hs, flow string, tr models.TimeRange) (map[int]float64, string, error) {
	params := url.Values{}
	params.Set("reporterCode", strconv.Itoa(reporter))
	params.Set("partnerCode", joinInts(partners))
	params.Set("cmdCode", hs)
	params.Set("flowCode", flow)
	if p := periodList(tr); p != "" {
		params.Set("period", p)
	}
	params.Set("subscription-key", a.apiKey)

	u := a.base + "?" + params.Encode()
	resp, err := a.pool.Get(ctx, provider.Comtrade, u, nil)
	if err != nil {
		return nil, "", err
	}
	if err := infra.ClassifyStatus(provider.Comtrade, resp); err != nil {
		return nil, "", err
	}

	var body tradeResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, "", &provider.UpstreamError{Provider: provider.Comtrade, Status: resp.Status, Body: "malformed trade JSON"}
	}

	byPeriod := make(map[int]float64)
	for _, row := range body.Data {
		byPeriod[row.Period] += row.PrimaryValue
	}
	return byPeriod, u, nil
}

func (a *Adapter) fillMeta(s *models.NormalizedSeries, q provider.Query, hs, display, dataURL string) {
	partner := partnerLabel(q.Partner)
	s.Metadata = models.SeriesMetadata{
		SourceProvider:   provider.Comtrade,
		IndicatorCode:    hs,
		IndicatorDisplay: fmt.Sprintf("%s (%s → %s)", display, q.Geo.Value, partner),
		CountryOrRegion:  q.Geo.Value,
		Unit:             "USD",
		Frequency:        models.FreqAnnual,
		APIURLEcho:       infra.CanonicalURL(dataURL),
		SourceURL:        "https://comtradeplus.un.org",
	}
}

func (a *Adapter) noData(q provider.Query, hs string) error {
	return &provider.DataNotAvailableError{
		Provider:  provider.Comtrade,
		Indicator: hs,
		Geo:       q.Geo.Value,
		Detail:    "no trade rows for the requested window",
	}
}

// resolveProduct turns a product term into an HS code: the curated
// alias table first, then full-text search over the HS hierarchy.
func (a *Adapter) resolveProduct(ctx context.Context, product string) (string, error) {
	if hs, ok := ref.ResolveHS(product); ok {
		return hs, nil
	}
	if a.products != nil {
		hits, err := a.products.Search(ctx, product, index.HSNamespace, 3)
		if err == nil && len(hits) > 0 {
			return hits[0].Code, nil
		}
	}
	return "", &provider.IndicatorUnknownError{Provider: provider.Comtrade, Indicator: product}
}

// parseLabel extracts the flow direction and product from labels like
// "exports of cars", "oil imports" or "trade balance".
func parseLabel(ind models.IndicatorRequest) (flow, product string, err error) {
	label := strings.ToLower(strings.TrimSpace(ind.Label))
	switch {
	case strings.Contains(label, "balance"):
		flow = "balance"
	case strings.Contains(label, "export"):
		flow = flowExports
	case strings.Contains(label, "import"):
		flow = flowImports
	default:
		return "", "", &provider.IndicatorUnknownError{Provider: provider.Comtrade, Indicator: ind.Label}
	}

	if ind.ExplicitCode != "" {
		return flow, ind.ExplicitCode, nil
	}
	product = label
	for _, word := range []string{"trade balance", "balance", "exports", "imports", "export", "import", "trade", " of "} {
		product = strings.ReplaceAll(product, word, " ")
	}
	product = strings.TrimSpace(product)
	if product == "" {
		product = "total"
	}
	return flow, product, nil
}

func reporterM49(geo models.GeoSelector) (int, error) {
	if geo.Kind != models.GeoCountry {
		return 0, &provider.DataNotAvailableError{
			Provider: provider.Comtrade,
			Geo:      geo.Value,
			Detail:   "reporter must be a single country",
		}
	}
	code, ok := ref.M49(geo.Value)
	if !ok {
		return 0, &provider.DataNotAvailableError{
			Provider: provider.Comtrade,
			Geo:      geo.Value,
			Detail:   "no M.49 code known",
		}
	}
	return code, nil
}

func partnerM49s(geo models.GeoSelector) ([]int, error) {
	switch geo.Kind {
	case "", models.GeoWorld:
		return []int{ref.M49World}, nil
	case models.GeoCountry:
		code, ok := ref.M49(geo.Value)
		if !ok {
			return nil, &provider.DataNotAvailableError{
				Provider: provider.Comtrade,
				Geo:      geo.Value,
				Detail:   "no M.49 code known for partner",
			}
		}
		return []int{code}, nil
	case models.GeoGroup:
		members, ok := ref.GroupMembers(geo.Value)
		if !ok {
			return nil, &provider.DataNotAvailableError{
				Provider: provider.Comtrade,
				Geo:      geo.Value,
				Detail:   "unknown country group",
			}
		}
		codes := make([]int, 0, len(members))
		for _, iso3 := range members {
			if code, ok := ref.M49(iso3); ok {
				codes = append(codes, code)
			}
		}
		sort.Ints(codes)
		return codes, nil
	}
	return nil, &provider.DataNotAvailableError{
		Provider: provider.Comtrade,
		Geo:      geo.Value,
		Detail:   "unsupported partner kind " + string(geo.Kind),
	}
}

func partnerLabel(geo models.GeoSelector) string {
	switch geo.Kind {
	case "", models.GeoWorld:
		return "world"
	}
	return geo.Value
}

func balanceSeries(exports, imports map[int]float64) models.NormalizedSeries {
	periods := make(map[int]bool)
	for p := range exports {
		periods[p] = true
	}
	for p := range imports {
		periods[p] = true
	}
	var s models.NormalizedSeries
	for _, p := range sortedInts(periods) {
		v := exports[p] - imports[p]
		s.Points = append(s.Points, models.NormalizedPoint{
			Date:  strconv.Itoa(p),
			Value: models.Float64(v),
		})
	}
	return s
}

func seriesFromPeriods(byPeriod map[int]float64) models.NormalizedSeries {
	periods := make(map[int]bool, len(byPeriod))
	for p := range byPeriod {
		periods[p] = true
	}
	var s models.NormalizedSeries
	for _, p := range sortedInts(periods) {
		s.Points = append(s.Points, models.NormalizedPoint{
			Date:  strconv.Itoa(p),
			Value: models.Float64(byPeriod[p]),
		})
	}
	return s
}

func sortedInts(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// periodList expands the time range into the comma list the API wants.
// An unbounded range omits the filter and takes whatever is published.
func periodList(tr models.TimeRange) string {
	start, end := tr.StartYear(), tr.EndYear()
	if start == 0 && end == 0 {
		return ""
	}
	if start == 0 {
		start = end
	}
	if end == 0 {
		end = start
	}
	if end < start {
		start, end = end, start
	}
	// The API caps the period list; clamp to twelve years.
	if end-start > 11 {
		start = end - 11
	}
	years := make([]string, 0, end-start+1)
	for y := start; y <= end; y++ {
		years = append(years, strconv.Itoa(y))
	}
	return strings.Join(years, ",")
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}
