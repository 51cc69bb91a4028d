// Package statcan implements the Statistics Canada adapter over the Web
// Data Service. Series are addressed by numeric vector id; archived
// vectors are detected through stale lastUpdated stamps and replaced by
// a successor vector discovered under the same product.
package statcan

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/seenimoa/macroquery/internal/infra"
	"github.com/seenimoa/macroquery/internal/provider"
	"github.com/seenimoa/macroquery/pkg/models"
)

const baseURL = "https://www150.statcan.gc.ca/t1/wds/rest"

// vectorDef binds a label to a WDS vector. ProductID identifies the
// table the vector belongs to, which successor discovery searches.
type vectorDef struct {
	VectorID  int
	ProductID int
	Name      string
	Freq      models.Frequency
}

var labelVector = map[string]vectorDef{
	"unemployment rate": {32164132, 14100287, "Unemployment rate, Canada, seasonally adjusted", models.FreqMonthly},
	"unemployment":      {32164132, 14100287, "Unemployment rate, Canada, seasonally adjusted", models.FreqMonthly},
	"cpi":               {41690973, 18100004, "Consumer Price Index, all-items, Canada", models.FreqMonthly},
	"inflation":         {41690973, 18100004, "Consumer Price Index, all-items, Canada", models.FreqMonthly},
	"gdp":               {65201210, 36100434, "GDP at basic prices, chained 2017 dollars", models.FreqMonthly},
	"retail sales":      {52367097, 20100008, "Retail trade sales, Canada", models.FreqMonthly},
	"housing starts":    {42075705, 34100135, "Housing starts, all areas, Canada", models.FreqMonthly},
	"employment":        {2062811, 14100287, "Employment, Canada, seasonally adjusted", models.FreqMonthly},
	"population":        {1, 17100009, "Population estimate, Canada", models.FreqQuarterly},
}

// staleFactor times the cadence decides when a vector counts as
// archived. Monthly data four cadences late is a table migration, not
// a publishing delay.
const staleFactor = 4

// Adapter fetches from the StatCan Web Data Service.
type Adapter struct {
	pool *infra.Pool
	base string
	now  func() time.Time
}

func New(pool *infra.Pool) *Adapter {
	return &Adapter{pool: pool, base: baseURL, now: time.Now}
}

func (a *Adapter) Info() provider.Info {
	return provider.Info{
		Name:        provider.StatCan,
		Description: "Statistics Canada Web Data Service - Canadian official statistics",
		Website:     "https://www150.statcan.gc.ca",
		RequiresKey: false,
		Domains:     []string{provider.DomainMacro},
		Countries:   "Canada only",
	}
}

func (a *Adapter) Ping(ctx context.Context) error {
	_, err := a.seriesInfo(ctx, labelVector["cpi"].VectorID)
	return err
}

// wdsEnvelope wraps every WDS response element.
type wdsEnvelope struct {
	Status string          `json:"status"`
	Object json.RawMessage `json:"object"`
}

type seriesInfo struct {
	VectorID       int    `json:"vectorId"`
	ProductID      int    `json:"productId"`
	SeriesTitleEn  string `json:"SeriesTitleEn"`
	FrequencyCode  int    `json:"frequencyCode"`
	ReleaseTime    string `json:"releaseTime"`
	Archived       string `json:"archiveStatusCode"`
	LastUpdated    string `json:"lastUpdated"`
	TerminatedDate string `json:"terminatedDate"`
}

type vectorData struct {
	VectorID   int `json:"vectorId"`
	DataPoints []struct {
		RefPer string   `json:"refPer"`
		Value  *float64 `json:"value"`
	} `json:"vectorDataPoint"`
}

// Fetch resolves the label to a vector, swaps in a successor when the
// vector has gone stale, and pulls the observation window.
func (a *Adapter) Fetch(ctx context.Context, q provider.Query) ([]models.NormalizedSeries, error) {
	if !coversGeo(q.Geo) {
		return nil, &provider.DataNotAvailableError{
			Provider:  provider.StatCan,
			Indicator: q.Indicator.Label,
			Geo:       q.Geo.Value,
			Detail:    "Canada coverage only",
		}
	}
	def, err := a.resolveVector(q.Indicator)
	if err != nil {
		return nil, err
	}

	info, err := a.seriesInfo(ctx, def.VectorID)
	if err == nil && a.isStale(info, def.Freq) {
		if successor, serr := a.findSuccessor(ctx, def, info); serr == nil {
			def.VectorID = successor
		}
	}

	periods := periodsFor(def.Freq, q.Time)
	body := fmt.Sprintf(`[{"vectorId":%d,"latestN":%d}]`, def.VectorID, periods)
	u := a.base + "/getDataFromVectorsAndLatestNPeriods"
	resp, err := a.pool.PostJSON(ctx, provider.StatCan, u, []byte(body), nil)
	if err != nil {
		return nil, err
	}
	if err := infra.ClassifyStatus(provider.StatCan, resp); err != nil {
		return nil, err
	}

	var envs []wdsEnvelope
	if err := json.Unmarshal(resp.Body, &envs); err != nil || len(envs) == 0 {
		return nil, &provider.UpstreamError{Provider: provider.StatCan, Status: resp.Status, Body: "malformed WDS envelope"}
	}
	if envs[0].Status != "SUCCESS" {
		return nil, &provider.IndicatorUnknownError{Provider: provider.StatCan, Indicator: "v" + strconv.Itoa(def.VectorID)}
	}
	var data vectorData
	if err := json.Unmarshal(envs[0].Object, &data); err != nil {
		return nil, &provider.UpstreamError{Provider: provider.StatCan, Status: resp.Status, Body: "malformed vector data"}
	}

	startYear, endYear := q.Time.StartYear(), q.Time.EndYear()
	s := models.NormalizedSeries{
		Metadata: models.SeriesMetadata{
			SourceProvider:   provider.StatCan,
			IndicatorCode:    "v" + strconv.Itoa(def.VectorID),
			IndicatorDisplay: def.Name,
			CountryOrRegion:  "CAN",
			Frequency:        def.Freq,
			APIURLEcho:       infra.CanonicalURL(u),
			SourceURL:        fmt.Sprintf("https://www150.statcan.gc.ca/t1/tbl1/en/tv.action?pid=%d01", def.ProductID),
		},
	}
	for _, dp := range data.DataPoints {
		if y := yearOf(dp.RefPer); y != 0 {
			if startYear != 0 && y < startYear {
				continue
			}
			if endYear != 0 && y > endYear {
				continue
			}
		}
		s.Points = append(s.Points, models.NormalizedPoint{Date: dp.RefPer, Value: dp.Value})
	}
	s.SortPoints()
	if q.Time.LatestOnly() && len(s.Points) > 1 {
		s.Points = s.Points[len(s.Points)-1:]
	}
	if len(s.Points) == 0 {
		return nil, &provider.DataNotAvailableError{
			Provider:  provider.StatCan,
			Indicator: s.Metadata.IndicatorCode,
			Geo:       "CAN",
			Detail:    "no observations in the requested window",
		}
	}
	return []models.NormalizedSeries{s}, nil
}

func (a *Adapter) seriesInfo(ctx context.Context, vectorID int) (*seriesInfo, error) {
	body := fmt.Sprintf(`[{"vectorId":%d}]`, vectorID)
	resp, err := a.pool.PostJSON(ctx, provider.StatCan, a.base+"/getSeriesInfoFromVector", []byte(body), nil)
	if err != nil {
		return nil, err
	}
	if err := infra.ClassifyStatus(provider.StatCan, resp); err != nil {
		return nil, err
	}
	var envs []wdsEnvelope
	if err := json.Unmarshal(resp.Body, &envs); err != nil || len(envs) == 0 || envs[0].Status != "SUCCESS" {
		return nil, &provider.UpstreamError{Provider: provider.StatCan, Status: resp.Status, Body: "series info unavailable"}
	}
	var info seriesInfo
	if err := json.Unmarshal(envs[0].Object, &info); err != nil {
		return nil, &provider.UpstreamError{Provider: provider.StatCan, Status: resp.Status, Body: "malformed series info"}
	}
	return &info, nil
}

// isStale reports whether the vector's last update lags its cadence by
// more than the archive threshold.
func (a *Adapter) isStale(info *seriesInfo, freq models.Frequency) bool {
	if info.Archived == "2" {
		return true
	}
	updated, err := time.Parse("2006-01-02T15:04", info.LastUpdated)
	if err != nil {
		updated, err = time.Parse("2006-01-02", info.LastUpdated)
		if err != nil {
			return false
		}
	}
	return a.now().Sub(updated) > staleFactor*cadence(freq)
}

// findSuccessor lists the vectors still published under the product and
// picks the one whose title matches the stale vector's.
func (a *Adapter) findSuccessor(ctx context.Context, def vectorDef, stale *seriesInfo) (int, error) {
	body := fmt.Sprintf(`[{"productId":%d}]`, def.ProductID)
	resp, err := a.pool.PostJSON(ctx, provider.StatCan, a.base+"/getAllCubesListLite", []byte(body), nil)
	if err != nil {
		return 0, err
	}
	if err := infra.ClassifyStatus(provider.StatCan, resp); err != nil {
		return 0, err
	}
	var envs []wdsEnvelope
	if err := json.Unmarshal(resp.Body, &envs); err != nil || len(envs) == 0 || envs[0].Status != "SUCCESS" {
		return 0, fmt.Errorf("statcan: no successor listing for product %d", def.ProductID)
	}
	var listing struct {
		Vectors []seriesInfo `json:"vectors"`
	}
	if err := json.Unmarshal(envs[0].Object, &listing); err != nil {
		return 0, fmt.Errorf("statcan: malformed successor listing: %w", err)
	}

	want := strings.ToLower(stale.SeriesTitleEn)
	candidates := make([]seriesInfo, 0, len(listing.Vectors))
	for _, v := range listing.Vectors {
		if v.VectorID == def.VectorID || v.Archived == "2" {
			continue
		}
		if want == "" || strings.ToLower(v.SeriesTitleEn) == want {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return 0, fmt.Errorf("statcan: no successor vector for v%d", def.VectorID)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastUpdated > candidates[j].LastUpdated
	})
	return candidates[0].VectorID, nil
}

func (a *Adapter) resolveVector(ind models.IndicatorRequest) (vectorDef, error) {
	if ind.ExplicitCode != "" {
		id, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(ind.ExplicitCode), "v"))
		if err != nil {
			return vectorDef{}, &provider.IndicatorUnknownError{Provider: provider.StatCan, Indicator: ind.ExplicitCode}
		}
		name := ind.Label
		if name == "" {
			name = "v" + strconv.Itoa(id)
		}
		return vectorDef{VectorID: id, Name: name, Freq: models.FreqMonthly}, nil
	}
	key := strings.ToLower(strings.TrimSpace(ind.Label))
	if def, ok := labelVector[key]; ok {
		return def, nil
	}
	return vectorDef{}, &provider.IndicatorUnknownError{Provider: provider.StatCan, Indicator: ind.Label}
}

func coversGeo(geo models.GeoSelector) bool {
	switch geo.Kind {
	case models.GeoCountry:
		return geo.Value == "CAN"
	case "":
		return true
	}
	return false
}

func cadence(f models.Frequency) time.Duration {
	switch f {
	case models.FreqDaily:
		return 24 * time.Hour
	case models.FreqWeekly:
		return 7 * 24 * time.Hour
	case models.FreqMonthly:
		return 31 * 24 * time.Hour
	case models.FreqQuarterly:
		return 92 * 24 * time.Hour
	}
	return 366 * 24 * time.Hour
}

// periodsFor sizes the latestN request window from the time range.
func periodsFor(freq models.Frequency, tr models.TimeRange) int {
	if tr.LatestOnly() {
		return 1
	}
	years := 10
	if s, e := tr.StartYear(), tr.EndYear(); s != 0 {
		if e == 0 {
			e = time.Now().Year()
		}
		years = e - s + 1
		if years < 1 {
			years = 1
		}
	}
	perYear := 1
	switch freq {
	case models.FreqDaily:
		perYear = 260
	case models.FreqWeekly:
		perYear = 52
	case models.FreqMonthly:
		perYear = 12
	case models.FreqQuarterly:
		perYear = 4
	}
	n := years * perYear
	if n > 1200 {
		n = 1200
	}
	return n
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}
