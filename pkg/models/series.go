// Package models defines the standard data models shared across the
// MacroQuery pipeline: the normalized time-series schema every provider
// adapter emits, and the parsed-intent structures produced by the
// natural-language resolver.
package models

import (
	"sort"
	"time"
)

// Frequency identifies the observation cadence of a series.
type Frequency string

const (
	FreqDaily     Frequency = "daily"
	FreqWeekly    Frequency = "weekly"
	FreqMonthly   Frequency = "monthly"
	FreqQuarterly Frequency = "quarterly"
	FreqAnnual    Frequency = "annual"
)

// SDMXCode returns the single-letter frequency code used by SDMX APIs.
func (f Frequency) SDMXCode() string {
	switch f {
	case FreqDaily:
		return "D"
	case FreqWeekly:
		return "W"
	case FreqMonthly:
		return "M"
	case FreqQuarterly:
		return "Q"
	case FreqAnnual:
		return "A"
	}
	return ""
}

// FrequencyFromSDMX maps an SDMX frequency code back to a Frequency.
func FrequencyFromSDMX(code string) Frequency {
	switch code {
	case "D":
		return FreqDaily
	case "W":
		return FreqWeekly
	case "M":
		return FreqMonthly
	case "Q":
		return FreqQuarterly
	case "A":
		return FreqAnnual
	}
	return ""
}

// NormalizedPoint is a single observation. A nil Value denotes a known
// missing observation (the provider reported the period with no data).
type NormalizedPoint struct {
	Date  string   `json:"date"` // ISO-8601 date, "2024", "2024-Q1" or "2024-03"
	Value *float64 `json:"value"`
}

// SeriesMetadata carries the provenance contract for a normalized series.
// APIURLEcho is the upstream URL that was actually issued, with any secret
// replaced by a placeholder; callers display it to users.
type SeriesMetadata struct {
	SourceProvider     string    `json:"source_provider"`
	IndicatorCode      string    `json:"indicator_code"`
	IndicatorDisplay   string    `json:"indicator_display"`
	CountryOrRegion    string    `json:"country_or_region"`
	Unit               string    `json:"unit,omitempty"`
	Frequency          Frequency `json:"frequency,omitempty"`
	LastUpdated        string    `json:"last_updated,omitempty"`
	APIURLEcho         string    `json:"api_url_echo"`
	SourceURL          string    `json:"source_url,omitempty"`
	SeasonalAdjustment string    `json:"seasonal_adjustment,omitempty"`
	PriceType          string    `json:"price_type,omitempty"` // "real" or "nominal"
	Aggregation        string    `json:"aggregation,omitempty"` // set when frequency conversion was applied
}

// NormalizedSeries is the uniform shape every adapter produces.
// Points are sorted ascending by date and share a single frequency.
type NormalizedSeries struct {
	Metadata SeriesMetadata    `json:"metadata"`
	Points   []NormalizedPoint `json:"points"`
}

// Float64 returns a pointer to v. Convenience for building points.
func Float64(v float64) *float64 { return &v }

// SortPoints sorts the series ascending by date and collapses duplicate
// dates last-wins. It reports whether any duplicates were dropped so the
// caller can attach a warning.
func (s *NormalizedSeries) SortPoints() (hadDuplicates bool) {
	sort.SliceStable(s.Points, func(i, j int) bool {
		return comparePeriod(s.Points[i].Date, s.Points[j].Date) < 0
	})
	out := s.Points[:0]
	for _, p := range s.Points {
		if n := len(out); n > 0 && out[n-1].Date == p.Date {
			out[n-1] = p // last wins
			hadDuplicates = true
			continue
		}
		out = append(out, p)
	}
	s.Points = out
	return hadDuplicates
}

// comparePeriod orders period labels chronologically. Labels within one
// series share a format ("2024", "2024-Q1", "2024-03", "2024-03-15"), and
// all of those compare correctly as strings, so lexical order suffices.
func comparePeriod(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// PeriodTime parses a period label into a time.Time (period start).
// Supported: "2006-01-02", "2006-01", "2006", "2006-Q1".
func PeriodTime(s string) (time.Time, bool) {
	if len(s) == 7 && s[4] == '-' && s[5] == 'Q' {
		// "2023-Q1"
		year := s[:4]
		month := "01"
		switch s[6] {
		case '2':
			month = "04"
		case '3':
			month = "07"
		case '4':
			month = "10"
		}
		t, err := time.Parse("2006-01-02", year+"-"+month+"-01")
		return t, err == nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// QueryResult is the orchestrator's final answer for a query.
type QueryResult struct {
	Intent   *ParsedIntent      `json:"intent"`
	Data     []NormalizedSeries `json:"data"`
	Warnings []string           `json:"warnings,omitempty"`
}
