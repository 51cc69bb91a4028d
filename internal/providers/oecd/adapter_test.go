package oecd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/seenimoa/macroquery/internal/infra"
	"github.com/seenimoa/macroquery/internal/provider"
	"github.com/seenimoa/macroquery/internal/sdmx"
	"github.com/seenimoa/macroquery/pkg/models"
)

const dsdBody = `{"data":{"dataStructures":[{"id":"DSD_LFS",
	"dataStructureComponents":{"dimensionList":{"dimensions":[
		{"id":"FREQ","position":1},
		{"id":"REF_AREA","position":2},
		{"id":"MEASURE","position":3},
		{"id":"ADJUSTMENT","position":4}
	]}}}]}}`

const dataBody = `{"data":{
	"structures":[{"dimensions":{
		"series":[
			{"id":"FREQ","values":[{"id":"M","name":"Monthly"}]},
			{"id":"REF_AREA","values":[{"id":"DEU","name":"Germany"},{"id":"FRA","name":"France"}]},
			{"id":"MEASURE","values":[{"id":"UNE_LF_M","name":"Unemployment rate"}]},
			{"id":"ADJUSTMENT","values":[{"id":"Y","name":"Seasonally adjusted"}]}
		],
		"observation":[{"id":"TIME_PERIOD","values":[{"id":"2024-01"},{"id":"2024-02"}]}]
	}}],
	"dataSets":[{"series":{
		"0:0:0:0":{"observations":{"0":[3.1],"1":[3.2]}},
		"0:1:0:0":{"observations":{"0":[7.5],"1":[null]}}
	}}]
}}`

func testAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a := New(infra.NewPool(infra.DefaultPoolConfig(), zerolog.Nop()), nil)
	a.base = srv.URL
	return a
}

// pickOption selects a fixed option index for every label, recording
// the option list it saw.
type pickOption struct {
	pick    int
	decline bool
	seen    []string
}

func (p *pickOption) SelectDataflow(ctx context.Context, label string, options []string) (int, bool) {
	p.seen = options
	return p.pick, !p.decline
}

func TestFetchBuildsKeyFromDSD(t *testing.T) {
	var dataPath string
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/structure/datastructure/"):
			w.Write([]byte(dsdBody))
		case strings.Contains(r.URL.Path, "/data/"):
			dataPath = r.URL.Path
			w.Write([]byte(dataBody))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	})

	series, err := a.Fetch(context.Background(), provider.Query{
		Indicator: models.IndicatorRequest{Label: "unemployment rate"},
		Geo:       models.GeoSelector{Kind: models.GeoCountry, Value: "DEU"},
		Time:      models.TimeRange{Start: "2024-01-01", End: "2024-06-30"},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	// FREQ empty (wildcard), then REF_AREA, MEASURE, ADJUSTMENT per DSD order.
	if !strings.HasSuffix(dataPath, "/.DEU.UNE_LF_M.Y") {
		t.Errorf("data path = %q, want DSD-ordered key", dataPath)
	}
	if len(series) != 2 {
		t.Fatalf("series = %d, want 2", len(series))
	}
	// Sorted by country.
	if series[0].Metadata.CountryOrRegion != "DEU" || series[1].Metadata.CountryOrRegion != "FRA" {
		t.Errorf("order = %s, %s", series[0].Metadata.CountryOrRegion, series[1].Metadata.CountryOrRegion)
	}
	deu := series[0]
	if len(deu.Points) != 2 || deu.Points[0].Date != "2024-01" {
		t.Errorf("DEU points = %+v", deu.Points)
	}
	if deu.Metadata.Frequency != models.FreqMonthly {
		t.Errorf("frequency = %q", deu.Metadata.Frequency)
	}
	fra := series[1]
	if fra.Points[1].Value != nil {
		t.Errorf("null observation should stay nil, got %v", *fra.Points[1].Value)
	}
}

const catalogBody = `{"data":{"dataflows":[
	{"agencyID":"OECD.SDD.TPS","id":"DSD_LFS@DF_IALFS_EMP","version":"1.0","name":{"en":"Employment rate by age"}},
	{"agencyID":"OECD.CFE","id":"DF_TOURISM","version":"2.0","name":"Tourism trips"}
]}}`

func TestFetchResolvesThroughCatalog(t *testing.T) {
	sel := &pickOption{pick: 0}
	var dataPath string
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/dataflow/all"):
			w.Write([]byte(catalogBody))
		case strings.Contains(r.URL.Path, "/structure/datastructure/OECD.SDD.TPS/DSD_LFS@DF_IALFS_EMP"):
			w.Write([]byte(dsdBody))
		case strings.Contains(r.URL.Path, "/data/"):
			dataPath = r.URL.Path
			w.Write([]byte(dataBody))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	})
	a.flows = sel

	series, err := a.Fetch(context.Background(), provider.Query{
		Indicator: models.IndicatorRequest{Label: "employment rate"},
		Geo:       models.GeoSelector{Kind: models.GeoCountry, Value: "DEU"},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(sel.seen) != 1 || sel.seen[0] != "Employment rate by age" {
		t.Errorf("selector options = %v, want only the matching flow", sel.seen)
	}
	if !strings.Contains(dataPath, "OECD.SDD.TPS,DSD_LFS@DF_IALFS_EMP,1.0") {
		t.Errorf("data path = %q, want the catalog flow ref", dataPath)
	}
	if len(series) != 2 {
		t.Fatalf("series = %d, want 2", len(series))
	}
}

func TestCatalogFlowSelectorDeclines(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(catalogBody))
	})
	a.flows = &pickOption{decline: true}

	_, err := a.Fetch(context.Background(), provider.Query{
		Indicator: models.IndicatorRequest{Label: "employment rate"},
		Geo:       models.GeoSelector{Kind: models.GeoCountry, Value: "DEU"},
	})
	var unk *provider.IndicatorUnknownError
	if !errors.As(err, &unk) {
		t.Fatalf("err = %v, want IndicatorUnknownError", err)
	}
}

func TestRankFlows(t *testing.T) {
	catalog := []sdmx.Dataflow{
		{ID: "A", Name: "Tourism trips"},
		{ID: "B", Name: "Employment rate by age"},
		{ID: "C", Name: "Annual employment"},
	}
	top := rankFlows(catalog, "employment rate", 2)
	if len(top) != 2 || top[0].ID != "B" || top[1].ID != "C" {
		t.Errorf("rankFlows = %+v, want B then C", top)
	}
	if got := rankFlows(catalog, "yak population", 2); len(got) != 0 {
		t.Errorf("no token overlap should rank nothing, got %+v", got)
	}
}

func TestDSDPathForRef(t *testing.T) {
	if got := dsdPathForRef("OECD.SDD.TPS,DSD_LFS@DF_IALFS_UNE_M,1.0"); got != "OECD.SDD.TPS/DSD_LFS@DF_IALFS_UNE_M" {
		t.Errorf("dsdPathForRef = %q", got)
	}
	if got := dsdPathForRef("garbage"); got != "" {
		t.Errorf("partial ref must yield no path, got %q", got)
	}
}

func TestFetchGrowthTransformationHint(t *testing.T) {
	a := New(infra.NewPool(infra.DefaultPoolConfig(), zerolog.Nop()), nil)
	_, err := a.Fetch(context.Background(), provider.Query{
		Indicator: models.IndicatorRequest{Label: "house prices", Qualifiers: []models.Qualifier{models.QualGrowth}},
		Geo:       models.GeoSelector{Kind: models.GeoCountry, Value: "DEU"},
	})
	var dna *provider.DataNotAvailableError
	if !errors.As(err, &dna) {
		t.Fatalf("err = %v, want DataNotAvailableError", err)
	}
	if !strings.Contains(dna.Detail, "growth transformation") {
		t.Errorf("detail = %q", dna.Detail)
	}
}

func TestFetchUnknownLabel(t *testing.T) {
	// No selector wired: catalog resolution is unavailable.
	a := New(infra.NewPool(infra.DefaultPoolConfig(), zerolog.Nop()), nil)
	_, err := a.Fetch(context.Background(), provider.Query{
		Indicator: models.IndicatorRequest{Label: "yak population"},
		Geo:       models.GeoSelector{Kind: models.GeoCountry, Value: "DEU"},
	})
	var unk *provider.IndicatorUnknownError
	if !errors.As(err, &unk) {
		t.Fatalf("err = %v, want IndicatorUnknownError", err)
	}
}

func TestExpandGeoOECDAggregate(t *testing.T) {
	got, err := expandGeo(models.GeoSelector{Kind: models.GeoGroup, Value: models.GroupOECD}, "gdp")
	if err != nil || len(got) != 1 || got[0] != "OECD" {
		t.Errorf("OECD group = %v, %v", got, err)
	}
	if _, err := expandGeo(models.GeoSelector{Kind: models.GeoWorld}, "gdp"); err == nil {
		t.Error("world aggregate must report unavailable")
	}
}

func TestScarceFlag(t *testing.T) {
	a := New(nil, nil)
	if !a.Info().Scarce {
		t.Error("adapter must advertise itself as scarce")
	}
}
