package comtrade

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/seenimoa/macroquery/internal/index"
	"github.com/seenimoa/macroquery/internal/infra"
	"github.com/seenimoa/macroquery/internal/provider"
	"github.com/seenimoa/macroquery/pkg/models"
)

func testAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a := New(infra.NewPool(infra.DefaultPoolConfig(), zerolog.Nop()), "test-key", nil)
	a.base = srv.URL
	return a
}

// hsHits answers every product search with a fixed hit list.
type hsHits []index.ScoredRecord

func (h hsHits) Search(ctx context.Context, query, providerFilter string, limit int) ([]index.ScoredRecord, error) {
	return h, nil
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		label   string
		flow    string
		product string
		err     bool
	}{
		{"exports of cars", flowExports, "cars", false},
		{"oil imports", flowImports, "oil", false},
		{"trade balance", "balance", "total", false},
		{"exports", flowExports, "total", false},
		{"gdp", "", "", true},
	}
	for _, tt := range tests {
		flow, product, err := parseLabel(models.IndicatorRequest{Label: tt.label})
		if tt.err {
			if err == nil {
				t.Errorf("parseLabel(%q) should fail", tt.label)
			}
			continue
		}
		if err != nil || flow != tt.flow || product != tt.product {
			t.Errorf("parseLabel(%q) = %q, %q, %v, want %q, %q", tt.label, flow, product, err, tt.flow, tt.product)
		}
	}
}

func TestFetchExports(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("reporterCode"); got != "124" {
			t.Errorf("reporterCode = %q, want Canada 124", got)
		}
		if got := q.Get("partnerCode"); got != "842" {
			t.Errorf("partnerCode = %q, want USA 842", got)
		}
		if got := q.Get("cmdCode"); got != "TOTAL" {
			t.Errorf("cmdCode = %q", got)
		}
		if got := q.Get("period"); got != "2020,2021" {
			t.Errorf("period = %q", got)
		}
		w.Write([]byte(`{"data":[
			{"period":2021,"flowCode":"X","primaryValue":310e9},
			{"period":2020,"flowCode":"X","primaryValue":270e9}
		],"count":2}`))
	})

	series, err := a.Fetch(context.Background(), provider.Query{
		Indicator: models.IndicatorRequest{Label: "exports"},
		Geo:       models.GeoSelector{Kind: models.GeoCountry, Value: "CAN"},
		Partner:   models.GeoSelector{Kind: models.GeoCountry, Value: "USA"},
		Time:      models.TimeRange{Start: "2020", End: "2021"},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(series) != 1 {
		t.Fatalf("series = %d", len(series))
	}
	pts := series[0].Points
	if len(pts) != 2 || pts[0].Date != "2020" || *pts[0].Value != 270e9 {
		t.Errorf("points = %+v", pts)
	}
	if series[0].Metadata.Unit != "USD" {
		t.Errorf("unit = %q", series[0].Metadata.Unit)
	}
}

func TestFetchBalanceIsExportsMinusImports(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("flowCode") {
		case flowExports:
			w.Write([]byte(`{"data":[{"period":2020,"primaryValue":100},{"period":2021,"primaryValue":120}],"count":2}`))
		case flowImports:
			w.Write([]byte(`{"data":[{"period":2020,"primaryValue":80},{"period":2021,"primaryValue":150}],"count":2}`))
		default:
			t.Errorf("unexpected flowCode %q", r.URL.Query().Get("flowCode"))
		}
	})

	series, err := a.Fetch(context.Background(), provider.Query{
		Indicator: models.IndicatorRequest{Label: "trade balance"},
		Geo:       models.GeoSelector{Kind: models.GeoCountry, Value: "CAN"},
		Partner:   models.GeoSelector{Kind: models.GeoCountry, Value: "USA"},
		Time:      models.TimeRange{Start: "2020", End: "2021"},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	pts := series[0].Points
	if len(pts) != 2 {
		t.Fatalf("points = %+v", pts)
	}
	if *pts[0].Value != 20 || *pts[1].Value != -30 {
		t.Errorf("balance = %v, %v, want 20, -30", *pts[0].Value, *pts[1].Value)
	}
}

func TestFetchGroupPartnerSums(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		// Two partner rows per period come back; values must sum.
		w.Write([]byte(`{"data":[
			{"period":2022,"partnerCode":276,"primaryValue":40},
			{"period":2022,"partnerCode":251,"primaryValue":25}
		],"count":2}`))
	})

	series, err := a.Fetch(context.Background(), provider.Query{
		Indicator: models.IndicatorRequest{Label: "exports of cars"},
		Geo:       models.GeoSelector{Kind: models.GeoCountry, Value: "JPN"},
		Partner:   models.GeoSelector{Kind: models.GeoGroup, Value: "EU27"},
		Time:      models.TimeRange{Start: "2022", End: "2022"},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	pts := series[0].Points
	if len(pts) != 1 || *pts[0].Value != 65 {
		t.Errorf("summed points = %+v, want one 65", pts)
	}
}

func TestFetchWorldPartnerDefault(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("partnerCode"); got != "0" {
			t.Errorf("partnerCode = %q, want world 0", got)
		}
		w.Write([]byte(`{"data":[{"period":2022,"primaryValue":1}],"count":1}`))
	})

	if _, err := a.Fetch(context.Background(), provider.Query{
		Indicator: models.IndicatorRequest{Label: "exports"},
		Geo:       models.GeoSelector{Kind: models.GeoCountry, Value: "IND"},
		Time:      models.TimeRange{Start: "2022", End: "2022"},
	}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
}

func TestFetchResolvesProductThroughIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("cmdCode"); got != "8542" {
			t.Errorf("cmdCode = %q, want the index hit", got)
		}
		w.Write([]byte(`{"data":[{"period":2023,"primaryValue":50e9}],"count":1}`))
	}))
	defer srv.Close()
	a := New(infra.NewPool(infra.DefaultPoolConfig(), zerolog.Nop()), "k",
		hsHits{{Record: index.Record{Provider: index.HSNamespace, Code: "8542", DisplayName: "Electronic integrated circuits"}}})
	a.base = srv.URL

	// "microchips" is not in the alias table; resolution must consult
	// the product index.
	_, err := a.Fetch(context.Background(), provider.Query{
		Indicator: models.IndicatorRequest{Label: "exports of microchips"},
		Geo:       models.GeoSelector{Kind: models.GeoCountry, Value: "TWN"},
		Time:      models.TimeRange{Start: "2023", End: "2023"},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
}

func TestResolveProductUnknown(t *testing.T) {
	a := New(nil, "k", hsHits{})
	_, err := a.resolveProduct(context.Background(), "moonbeams")
	var unk *provider.IndicatorUnknownError
	if !errors.As(err, &unk) {
		t.Fatalf("err = %v, want IndicatorUnknownError", err)
	}
}

func TestFetchRejectsGroupReporter(t *testing.T) {
	a := New(infra.NewPool(infra.DefaultPoolConfig(), zerolog.Nop()), "k", nil)
	_, err := a.Fetch(context.Background(), provider.Query{
		Indicator: models.IndicatorRequest{Label: "exports"},
		Geo:       models.GeoSelector{Kind: models.GeoGroup, Value: "G7"},
	})
	var dna *provider.DataNotAvailableError
	if !errors.As(err, &dna) {
		t.Fatalf("err = %v, want DataNotAvailableError", err)
	}
}

func TestPeriodList(t *testing.T) {
	tests := []struct {
		tr   models.TimeRange
		want string
	}{
		{models.TimeRange{Start: "2020", End: "2022"}, "2020,2021,2022"},
		{models.TimeRange{Start: "2022"}, "2022"},
		{models.TimeRange{}, ""},
		{models.TimeRange{Start: "2000", End: "2022"}, "2011,2012,2013,2014,2015,2016,2017,2018,2019,2020,2021,2022"},
	}
	for _, tt := range tests {
		if got := periodList(tt.tr); got != tt.want {
			t.Errorf("periodList(%+v) = %q, want %q", tt.tr, got, tt.want)
		}
	}
}
