package fred

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
	"github.com/seenimoa/macroquery/pkg/models"
)

func testAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a := New(infra.NewPool(infra.DefaultPoolConfig(), zerolog.Nop()), "test-key")
	a.base = srv.URL
	return a
}

func TestFetchObservations(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("series_id"); got != "UNRATE" {
			t.Errorf("series_id = %q", got)
		}
		w.Write([]byte(`{"observations":[
			{"date":"2024-02-01","value":"3.9"},
			{"date":"2024-01-01","value":"3.7"},
			{"date":"2024-03-01","value":"."}
		]}`))
	})

	series, err := a.Fetch(context.Background(), provider.Query{
		Indicator: models.IndicatorRequest{Label: "unemployment rate"},
		Geo:       models.GeoSelector{Kind: models.GeoCountry, Value: "USA"},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(series) != 1 {
		t.Fatalf("series count = %d", len(series))
	}
	pts := series[0].Points
	if len(pts) != 3 {
		t.Fatalf("points = %d, want 3", len(pts))
	}
	if pts[0].Date != "2024-01-01" || pts[0].Value == nil || *pts[0].Value != 3.7 {
		t.Errorf("points not sorted ascending: %+v", pts[0])
	}
	if pts[2].Value != nil {
		t.Errorf("missing observation should carry a nil value, got %v", *pts[2].Value)
	}
	if series[0].Metadata.SourceProvider != provider.FRED {
		t.Errorf("metadata = %+v", series[0].Metadata)
	}
}

func TestFetchUnknownSeries(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error_code":400,"error_message":"Bad Request."}`))
	})

	_, err := a.Fetch(context.Background(), provider.Query{
		Indicator: models.IndicatorRequest{ExplicitCode: "NOPE123"},
		Geo:       models.GeoSelector{Kind: models.GeoCountry, Value: "USA"},
	})
	var unk *provider.IndicatorUnknownError
	if !errors.As(err, &unk) {
		t.Fatalf("err = %v, want IndicatorUnknownError", err)
	}
}

func TestResolveSeries(t *testing.T) {
	a := New(nil, "k")
	tests := []struct {
		ind    models.IndicatorRequest
		wantID string
	}{
		{models.IndicatorRequest{Label: "unemployment rate"}, "UNRATE"},
		{models.IndicatorRequest{Label: "Inflation"}, "CPIAUCSL"},
		{models.IndicatorRequest{Label: "inflation", Qualifiers: []models.Qualifier{models.QualCore}}, "CPILFESL"},
		{models.IndicatorRequest{Label: "gdp", Qualifiers: []models.Qualifier{models.QualNominal}}, "GDP"},
		{models.IndicatorRequest{ExplicitCode: "dgs10"}, "DGS10"},
	}
	for _, tt := range tests {
		def, err := a.resolveSeries(context.Background(), tt.ind)
		if err != nil || def.ID != tt.wantID {
			t.Errorf("resolveSeries(%+v) = %q, %v, want %q", tt.ind, def.ID, err, tt.wantID)
		}
	}
}

func TestFetchFallsBackToSeriesSearch(t *testing.T) {
	var searched bool
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/series/search"):
			searched = true
			if got := r.URL.Query().Get("search_text"); got != "total nonfarm employment" {
				t.Errorf("search_text = %q", got)
			}
			if got := r.URL.Query().Get("order_by"); got != "search_rank" {
				t.Errorf("order_by = %q", got)
			}
			w.Write([]byte(`{"seriess":[{"id":"PAYEMS","title":"All Employees, Total Nonfarm","frequency_short":"M"}]}`))
		case strings.HasSuffix(r.URL.Path, "/series/observations"):
			if got := r.URL.Query().Get("series_id"); got != "PAYEMS" {
				t.Errorf("series_id = %q, want the search hit", got)
			}
			w.Write([]byte(`{"observations":[{"date":"2024-01-01","value":"157000"}]}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	})

	series, err := a.Fetch(context.Background(), provider.Query{
		Indicator: models.IndicatorRequest{Label: "total nonfarm employment"},
		Geo:       models.GeoSelector{Kind: models.GeoCountry, Value: "USA"},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !searched {
		t.Fatal("label outside the curated map must hit the series search")
	}
	if series[0].Metadata.IndicatorCode != "PAYEMS" {
		t.Errorf("code = %q", series[0].Metadata.IndicatorCode)
	}
	if series[0].Metadata.Frequency != models.FreqMonthly {
		t.Errorf("frequency = %q", series[0].Metadata.Frequency)
	}
}

func TestSearchSeriesNoHits(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"seriess":[]}`))
	})
	_, err := a.resolveSeries(context.Background(), models.IndicatorRequest{Label: "yak population"})
	var unk *provider.IndicatorUnknownError
	if !errors.As(err, &unk) {
		t.Fatalf("err = %v, want IndicatorUnknownError", err)
	}
}

func TestCoversGeo(t *testing.T) {
	if !coversGeo(models.GeoSelector{Kind: models.GeoCountry, Value: "USA"}) {
		t.Error("USA should be covered")
	}
	if coversGeo(models.GeoSelector{Kind: models.GeoCountry, Value: "DEU"}) {
		t.Error("DEU should not be covered")
	}
	if !coversGeo(models.GeoSelector{}) {
		t.Error("no stated geography defaults to US")
	}
	if coversGeo(models.GeoSelector{Kind: models.GeoGroup, Value: "G7"}) {
		t.Error("groups are not covered")
	}
}

func TestFetchRejectsForeignGeo(t *testing.T) {
	a := New(infra.NewPool(infra.DefaultPoolConfig(), zerolog.Nop()), "k")
	_, err := a.Fetch(context.Background(), provider.Query{
		Indicator: models.IndicatorRequest{Label: "gdp"},
		Geo:       models.GeoSelector{Kind: models.GeoCountry, Value: "JPN"},
	})
	var dna *provider.DataNotAvailableError
	if !errors.As(err, &dna) {
		t.Fatalf("err = %v, want DataNotAvailableError without any I/O", err)
	}
	if !strings.Contains(dna.Detail, "US coverage") {
		t.Errorf("detail = %q", dna.Detail)
	}
}

func TestPadDate(t *testing.T) {
	tests := []struct {
		in   string
		end  bool
		want string
	}{
		{"2020", false, "2020-01-01"},
		{"2020", true, "2020-12-31"},
		{"2020-05", false, "2020-05-01"},
		{"2020-05-17", true, "2020-05-17"},
	}
	for _, tt := range tests {
		if got := padDate(tt.in, tt.end); got != tt.want {
			t.Errorf("padDate(%q, %v) = %q, want %q", tt.in, tt.end, got, tt.want)
		}
	}
}
