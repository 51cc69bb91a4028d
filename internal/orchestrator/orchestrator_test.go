package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/seenimoa/macroquery/internal/index"
	"github.com/seenimoa/macroquery/internal/infra"
	"github.com/seenimoa/macroquery/internal/provider"
	"github.com/seenimoa/macroquery/internal/router"
	"github.com/seenimoa/macroquery/pkg/models"
)

// fakeResolver returns a prepared intent without an LLM round trip.
type fakeResolver struct {
	intent *models.ParsedIntent
	err    error
}

func (f *fakeResolver) Resolve(ctx context.Context, query string, conversation []string) (*models.ParsedIntent, error) {
	return f.intent, f.err
}

func (f *fakeResolver) ValidateCandidate(ctx context.Context, label string, candidate index.ScoredRecord) bool {
	return true
}

// fakeSearcher answers every index lookup with a fixed hit list.
type fakeSearcher struct {
	hits []index.ScoredRecord
}

func (f *fakeSearcher) Search(ctx context.Context, query, providerFilter string, limit int) ([]index.ScoredRecord, error) {
	return f.hits, nil
}

// fakeAdapter records every query and answers through a script keyed by
// call number.
type fakeAdapter struct {
	name    string
	domains []string

	mu      sync.Mutex
	queries []provider.Query
	fetch   func(q provider.Query, call int) ([]models.NormalizedSeries, error)
}

func (f *fakeAdapter) Info() provider.Info {
	return provider.Info{Name: f.name, Domains: f.domains}
}

func (f *fakeAdapter) Ping(ctx context.Context) error { return nil }

func (f *fakeAdapter) Fetch(ctx context.Context, q provider.Query) ([]models.NormalizedSeries, error) {
	f.mu.Lock()
	call := len(f.queries)
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return f.fetch(q, call)
}

func (f *fakeAdapter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func seriesFor(providerName, geo string) []models.NormalizedSeries {
	return []models.NormalizedSeries{{
		Metadata: models.SeriesMetadata{
			SourceProvider:  providerName,
			IndicatorCode:   "GDP",
			CountryOrRegion: geo,
			Frequency:       models.FreqAnnual,
		},
		Points: []models.NormalizedPoint{
			{Date: "2021", Value: models.Float64(1.0)},
			{Date: "2022", Value: models.Float64(2.0)},
		},
	}}
}

func newOrchestrator(t *testing.T, intent *models.ParsedIntent, adapters ...*fakeAdapter) (*Orchestrator, *provider.Registry) {
	t.Helper()
	reg := provider.NewRegistry()
	for _, a := range adapters {
		reg.Register(a)
	}
	rt := router.New(reg, nil, router.DefaultConfig(), zerolog.Nop())
	cache := infra.NewCache(64, 0)
	t.Cleanup(cache.Close)
	o := New(&fakeResolver{intent: intent}, nil, rt, reg, cache, nil, nil, DefaultConfig(), zerolog.Nop())
	return o, reg
}

func macroIntent(geos ...string) *models.ParsedIntent {
	intent := &models.ParsedIntent{
		Indicators: []models.IndicatorRequest{{Label: "gdp"}},
	}
	for _, g := range geos {
		intent.Geography = append(intent.Geography, models.GeoSelector{Kind: models.GeoCountry, Value: g})
	}
	return intent
}

func TestQueryFansOutPerGeography(t *testing.T) {
	wb := &fakeAdapter{
		name:    provider.WorldBank,
		domains: []string{provider.DomainMacro},
		fetch: func(q provider.Query, call int) ([]models.NormalizedSeries, error) {
			return seriesFor(provider.WorldBank, q.Geo.Value), nil
		},
	}
	o, _ := newOrchestrator(t, macroIntent("DEU", "FRA"), wb)

	result, err := o.Query(context.Background(), "gdp of germany and france", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Data) != 2 {
		t.Fatalf("data = %d series, want 2", len(result.Data))
	}
	// Geography order is preserved in the result.
	if result.Data[0].Metadata.CountryOrRegion != "DEU" || result.Data[1].Metadata.CountryOrRegion != "FRA" {
		t.Errorf("order = %s, %s", result.Data[0].Metadata.CountryOrRegion, result.Data[1].Metadata.CountryOrRegion)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("warnings = %v", result.Warnings)
	}
}

func TestPartialFailureBecomesWarning(t *testing.T) {
	wb := &fakeAdapter{
		name:    provider.WorldBank,
		domains: []string{provider.DomainMacro},
		fetch: func(q provider.Query, call int) ([]models.NormalizedSeries, error) {
			if q.Geo.Value == "FRA" {
				return nil, &provider.DataNotAvailableError{Provider: provider.WorldBank, Indicator: "gdp", Geo: "FRA"}
			}
			return seriesFor(provider.WorldBank, q.Geo.Value), nil
		},
	}
	o, _ := newOrchestrator(t, macroIntent("DEU", "FRA"), wb)

	result, err := o.Query(context.Background(), "gdp of germany and france", nil)
	if err != nil {
		t.Fatalf("partial failure must not fail the query: %v", err)
	}
	if len(result.Data) != 1 || result.Data[0].Metadata.CountryOrRegion != "DEU" {
		t.Fatalf("data = %+v", result.Data)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "FRA") {
		t.Errorf("warnings = %v, want the failed branch named", result.Warnings)
	}
}

func TestChainFallsThroughToNextProvider(t *testing.T) {
	wb := &fakeAdapter{
		name:    provider.WorldBank,
		domains: []string{provider.DomainMacro},
		fetch: func(q provider.Query, call int) ([]models.NormalizedSeries, error) {
			return nil, &provider.IndicatorUnknownError{Provider: provider.WorldBank, Indicator: "gdp"}
		},
	}
	imf := &fakeAdapter{
		name:    provider.IMF,
		domains: []string{provider.DomainMacro},
		fetch: func(q provider.Query, call int) ([]models.NormalizedSeries, error) {
			return seriesFor(provider.IMF, q.Geo.Value), nil
		},
	}
	o, _ := newOrchestrator(t, macroIntent("DEU"), wb, imf)

	result, err := o.Query(context.Background(), "german gdp", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Data[0].Metadata.SourceProvider != provider.IMF {
		t.Errorf("source = %s, want fallback to imf", result.Data[0].Metadata.SourceProvider)
	}
	if wb.calls() != 1 {
		t.Errorf("worldbank calls = %d, want 1", wb.calls())
	}
}

func TestTotalFailureSurfacesError(t *testing.T) {
	wb := &fakeAdapter{
		name:    provider.WorldBank,
		domains: []string{provider.DomainMacro},
		fetch: func(q provider.Query, call int) ([]models.NormalizedSeries, error) {
			return nil, &provider.DataNotAvailableError{Provider: provider.WorldBank, Indicator: "gdp"}
		},
	}
	o, _ := newOrchestrator(t, macroIntent("DEU"), wb)

	_, err := o.Query(context.Background(), "german gdp", nil)
	if err == nil {
		t.Fatal("all branches failed, Query must fail")
	}
	if kind := ErrorKind(err); kind != "data_not_available" {
		t.Errorf("kind = %q", kind)
	}
}

func TestRepeatQueryServedFromCache(t *testing.T) {
	wb := &fakeAdapter{
		name:    provider.WorldBank,
		domains: []string{provider.DomainMacro},
		fetch: func(q provider.Query, call int) ([]models.NormalizedSeries, error) {
			return seriesFor(provider.WorldBank, q.Geo.Value), nil
		},
	}
	o, _ := newOrchestrator(t, macroIntent("DEU"), wb)

	for i := 0; i < 2; i++ {
		if _, err := o.Query(context.Background(), "german gdp", nil); err != nil {
			t.Fatalf("Query %d: %v", i, err)
		}
	}
	if wb.calls() != 1 {
		t.Errorf("upstream calls = %d, want 1 (second query cached)", wb.calls())
	}
}

func TestRateLimitRetryAfterHonoredOnce(t *testing.T) {
	wb := &fakeAdapter{
		name:    provider.WorldBank,
		domains: []string{provider.DomainMacro},
		fetch: func(q provider.Query, call int) ([]models.NormalizedSeries, error) {
			if call == 0 {
				return nil, &provider.RateLimitError{Provider: provider.WorldBank, RetryAfter: 5 * time.Millisecond}
			}
			return seriesFor(provider.WorldBank, q.Geo.Value), nil
		},
	}
	o, _ := newOrchestrator(t, macroIntent("DEU"), wb)

	result, err := o.Query(context.Background(), "german gdp", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if wb.calls() != 2 {
		t.Errorf("calls = %d, want retry after the rate-limit hint", wb.calls())
	}
	if len(result.Data) != 1 {
		t.Errorf("data = %+v", result.Data)
	}
}

func TestIndexCandidateCodeReachesAdapter(t *testing.T) {
	fred := &fakeAdapter{
		name:    provider.FRED,
		domains: []string{provider.DomainMacro},
		fetch: func(q provider.Query, call int) ([]models.NormalizedSeries, error) {
			return seriesFor(provider.FRED, q.Geo.Value), nil
		},
	}
	intent := &models.ParsedIntent{
		Indicators: []models.IndicatorRequest{{Label: "total nonfarm employment"}},
		Geography:  []models.GeoSelector{{Kind: models.GeoCountry, Value: "USA"}},
	}
	reg := provider.NewRegistry()
	reg.Register(fred)
	rt := router.New(reg, nil, router.DefaultConfig(), zerolog.Nop())
	idx := &fakeSearcher{hits: []index.ScoredRecord{
		{Record: index.Record{Provider: provider.FRED, Code: "PAYEMS", DisplayName: "All Employees, Total Nonfarm"}},
	}}
	o := New(&fakeResolver{intent: intent}, idx, rt, reg, nil, nil, nil, DefaultConfig(), zerolog.Nop())

	if _, err := o.Query(context.Background(), "total nonfarm employment", nil); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if fred.calls() != 1 {
		t.Fatalf("calls = %d", fred.calls())
	}
	got := fred.queries[0].Indicator
	if got.ExplicitCode != "PAYEMS" {
		t.Errorf("explicit code = %q, want the validated index candidate pinned", got.ExplicitCode)
	}
	if got.Label != "total nonfarm employment" {
		t.Errorf("label = %q", got.Label)
	}
}

func TestPinCodeKeepsUserCode(t *testing.T) {
	q := provider.Query{Indicator: models.IndicatorRequest{Label: "cpi", ExplicitCode: "CPIAUCSL"}}
	if got := pinCode(q, "CPALTT01USM657N"); got.Indicator.ExplicitCode != "CPIAUCSL" {
		t.Errorf("explicit code = %q, a user-supplied code must win", got.Indicator.ExplicitCode)
	}
	if got := pinCode(q, ""); got.Indicator.ExplicitCode != "CPIAUCSL" {
		t.Errorf("empty pin must leave the query unchanged")
	}
}

func TestTradeQueryCarriesReporterAndPartner(t *testing.T) {
	ct := &fakeAdapter{
		name:    provider.Comtrade,
		domains: []string{provider.DomainTrade},
		fetch: func(q provider.Query, call int) ([]models.NormalizedSeries, error) {
			return seriesFor(provider.Comtrade, q.Geo.Value), nil
		},
	}
	intent := &models.ParsedIntent{
		Indicators:   []models.IndicatorRequest{{Label: "exports of crude oil"}},
		IsTradeQuery: true,
		Geography: []models.GeoSelector{
			{Kind: models.GeoCountry, Value: "CAN"},
			{Kind: models.GeoCountry, Value: "USA"},
		},
	}
	o, _ := newOrchestrator(t, intent, ct)

	if _, err := o.Query(context.Background(), "canada crude exports to the US", nil); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if ct.calls() != 1 {
		t.Fatalf("calls = %d, trade intents must not fan out per geography", ct.calls())
	}
	q := ct.queries[0]
	if q.Geo.Value != "CAN" || q.Partner.Value != "USA" {
		t.Errorf("reporter = %q partner = %q", q.Geo.Value, q.Partner.Value)
	}
}

func TestStreamEmitsStepsAndTerminatesWithDone(t *testing.T) {
	wb := &fakeAdapter{
		name:    provider.WorldBank,
		domains: []string{provider.DomainMacro},
		fetch: func(q provider.Query, call int) ([]models.NormalizedSeries, error) {
			return seriesFor(provider.WorldBank, q.Geo.Value), nil
		},
	}
	o, _ := newOrchestrator(t, macroIntent("DEU"), wb)

	events := make(chan Event, 64)
	if _, err := o.Stream(context.Background(), "german gdp", nil, events); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	close(events)

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) < 4 {
		t.Fatalf("events = %d, want the full step sequence", len(got))
	}
	if got[0].Type != EventStep || got[0].Step != StepParse || got[0].Status != StatusStarted {
		t.Errorf("first event = %+v", got[0])
	}
	if got[len(got)-1].Type != EventDone {
		t.Errorf("last event = %+v, want done", got[len(got)-1])
	}
	var sawData bool
	for _, ev := range got {
		if ev.Type == EventData && ev.Result != nil {
			sawData = true
		}
	}
	if !sawData {
		t.Error("no data event on the stream")
	}
}

func TestStreamReportsErrorBeforeDone(t *testing.T) {
	o, _ := newOrchestrator(t, macroIntent("DEU")) // nothing registered

	events := make(chan Event, 64)
	_, err := o.Stream(context.Background(), "german gdp", nil, events)
	if err == nil {
		t.Fatal("Stream must fail with no providers registered")
	}
	close(events)

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) < 2 {
		t.Fatalf("events = %+v", got)
	}
	if got[len(got)-2].Type != EventError {
		t.Errorf("penultimate event = %+v, want error", got[len(got)-2])
	}
	if got[len(got)-1].Type != EventDone {
		t.Errorf("last event = %+v, want done", got[len(got)-1])
	}
}

func TestNonRecoverableErrorAbortsBranch(t *testing.T) {
	wb := &fakeAdapter{
		name:    provider.WorldBank,
		domains: []string{provider.DomainMacro},
		fetch: func(q provider.Query, call int) ([]models.NormalizedSeries, error) {
			return nil, context.Canceled
		},
	}
	imf := &fakeAdapter{
		name:    provider.IMF,
		domains: []string{provider.DomainMacro},
		fetch: func(q provider.Query, call int) ([]models.NormalizedSeries, error) {
			return seriesFor(provider.IMF, q.Geo.Value), nil
		},
	}
	o, _ := newOrchestrator(t, macroIntent("DEU"), wb, imf)

	_, err := o.Query(context.Background(), "german gdp", nil)
	if err == nil {
		t.Fatal("cancellation must not fall through to the next provider")
	}
	if imf.calls() != 0 {
		t.Errorf("imf calls = %d, want 0", imf.calls())
	}
}
