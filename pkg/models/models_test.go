package models

import (
	"testing"
	"time"
)

func TestSortPointsOrdersAscending(t *testing.T) {
	s := NormalizedSeries{Points: []NormalizedPoint{
		{Date: "2024-03", Value: Float64(3)},
		{Date: "2024-01", Value: Float64(1)},
		{Date: "2024-02", Value: Float64(2)},
	}}
	if s.SortPoints() {
		t.Error("no duplicates expected")
	}
	for i, want := range []string{"2024-01", "2024-02", "2024-03"} {
		if s.Points[i].Date != want {
			t.Errorf("point %d = %q, want %q", i, s.Points[i].Date, want)
		}
	}
}

func TestSortPointsDuplicateDatesLastWins(t *testing.T) {
	s := NormalizedSeries{Points: []NormalizedPoint{
		{Date: "2024-01", Value: Float64(1)},
		{Date: "2024-02", Value: Float64(2)},
		{Date: "2024-01", Value: Float64(9)},
	}}
	if !s.SortPoints() {
		t.Fatal("duplicate must be reported")
	}
	if len(s.Points) != 2 {
		t.Fatalf("points = %+v", s.Points)
	}
	if *s.Points[0].Value != 9 {
		t.Errorf("2024-01 = %v, later value must win", *s.Points[0].Value)
	}
}

func TestPeriodTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024-03", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024-03-15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"2024-Q1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024-Q4", time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), true},
		{"not-a-date", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := PeriodTime(tt.in)
		if ok != tt.ok {
			t.Errorf("PeriodTime(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("PeriodTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFrequencySDMXRoundTrip(t *testing.T) {
	for _, f := range []Frequency{FreqDaily, FreqWeekly, FreqMonthly, FreqQuarterly, FreqAnnual} {
		if got := FrequencyFromSDMX(f.SDMXCode()); got != f {
			t.Errorf("roundtrip %s → %s → %s", f, f.SDMXCode(), got)
		}
	}
	if FrequencyFromSDMX("X") != "" {
		t.Error("unknown SDMX code must map to empty")
	}
}

func TestTimeRangeYears(t *testing.T) {
	tr := TimeRange{Start: "2018-01-01", End: "2023"}
	if tr.StartYear() != 2018 || tr.EndYear() != 2023 {
		t.Errorf("years = %d..%d", tr.StartYear(), tr.EndYear())
	}
	if (TimeRange{}).StartYear() != 0 {
		t.Error("unbounded range must report year 0")
	}
}

func TestTimeRangeLatestOnly(t *testing.T) {
	latest := TimeRange{Relative: &RelativeRange{Kind: RelLatest}}
	if !latest.LatestOnly() {
		t.Error("relative latest with no bounds is latest-only")
	}
	bounded := TimeRange{Start: "2020", Relative: &RelativeRange{Kind: RelLatest}}
	if bounded.LatestOnly() {
		t.Error("a bounded range is not latest-only")
	}
}

func TestHasQualifier(t *testing.T) {
	r := IndicatorRequest{Label: "inflation", Qualifiers: []Qualifier{QualCore, QualGrowth}}
	if !r.HasQualifier(QualCore) || r.HasQualifier(QualNominal) {
		t.Errorf("qualifiers = %v", r.Qualifiers)
	}
}

func TestNamesProvider(t *testing.T) {
	p := ParsedIntent{Providers: []string{"imf"}}
	if !p.NamesProvider("imf") || p.NamesProvider("fred") {
		t.Errorf("providers = %v", p.Providers)
	}
}
