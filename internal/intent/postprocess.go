package intent

import (
	"fmt"
	"strings"

	"github.com/seenimoa/macroquery/internal/ref"
	"github.com/seenimoa/macroquery/pkg/models"
)

// knownProviders filters the model's provider list; anything else it
// hallucinated is dropped rather than routed.
var knownProviders = map[string]bool{
	"fred": true, "worldbank": true, "imf": true, "eurostat": true,
	"oecd": true, "bis": true, "comtrade": true, "statcan": true,
	"exchangerate": true, "coingecko": true,
}

var knownQualifiers = map[models.Qualifier]bool{
	models.QualReal: true, models.QualNominal: true, models.QualCore: true,
	models.QualPerCapita: true, models.QualGrowth: true,
	models.QualSeasonallyAdjusted: true, models.QualNotSeasonallyAdjusted: true,
}

// postprocess converts the model's raw emission into a validated
// ParsedIntent: providers filtered, qualifiers vetted, country names
// resolved to ISO3, group tags checked, relative time resolved against
// the wall clock.
func (r *Resolver) postprocess(raw *rawIntent) (*models.ParsedIntent, error) {
	intent := &models.ParsedIntent{
		IsTradeQuery:   raw.IsTradeQuery,
		IsComparison:   raw.IsComparison,
		IsExchangeRate: raw.IsExchangeRate,
		IsCrypto:       raw.IsCrypto,
		Frequency:      models.Frequency(strings.ToLower(raw.Frequency)),
	}

	for _, p := range raw.Providers {
		name := strings.ToLower(strings.TrimSpace(p))
		if knownProviders[name] {
			intent.Providers = append(intent.Providers, name)
		}
	}

	for _, ind := range raw.Indicators {
		label := strings.TrimSpace(ind.Label)
		code := strings.TrimSpace(ind.ExplicitCode)
		if label == "" && code == "" {
			continue
		}
		req := models.IndicatorRequest{Label: label, ExplicitCode: code}
		for _, q := range ind.Qualifiers {
			qual := models.Qualifier(strings.ToLower(strings.TrimSpace(q)))
			if knownQualifiers[qual] {
				req.Qualifiers = append(req.Qualifiers, qual)
			}
		}
		intent.Indicators = append(intent.Indicators, req)
	}
	if len(intent.Indicators) == 0 {
		return nil, &UnparseableError{Detail: "no usable indicators"}
	}

	for _, g := range raw.Geography {
		sel, err := resolveGeo(g.Kind, g.Value)
		if err != nil {
			return nil, err
		}
		intent.Geography = append(intent.Geography, sel)
	}

	tr, err := r.resolveTime(raw)
	if err != nil {
		return nil, err
	}
	intent.Time = tr

	return intent, nil
}

func resolveGeo(kind, value string) (models.GeoSelector, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "world", "global":
		return models.GeoSelector{Kind: models.GeoWorld}, nil
	case "group":
		tag := strings.ToUpper(strings.TrimSpace(value))
		if !ref.IsGroupTag(tag) {
			return models.GeoSelector{}, &UnknownGeographyError{Name: value}
		}
		return models.GeoSelector{Kind: models.GeoGroup, Value: tag}, nil
	case "country", "country_iso3", "":
		iso := ref.ResolveCountry(value)
		if iso == "" {
			return models.GeoSelector{}, &UnknownGeographyError{Name: value}
		}
		return models.GeoSelector{Kind: models.GeoCountry, Value: iso}, nil
	case "region":
		return models.GeoSelector{Kind: models.GeoRegion, Value: strings.TrimSpace(value)}, nil
	}
	return models.GeoSelector{}, &UnknownGeographyError{Name: kind + ":" + value}
}

// resolveTime normalizes the raw time range. Relative forms resolve
// against the wall clock into concrete start/end dates; "latest" stays
// unbounded and keeps its marker for the orchestrator.
func (r *Resolver) resolveTime(raw *rawIntent) (models.TimeRange, error) {
	tr := models.TimeRange{
		Start: normalizeDate(raw.TimeRange.Start),
		End:   normalizeDate(raw.TimeRange.End),
	}
	rel := raw.TimeRange.Relative
	if rel == nil {
		return tr, nil
	}

	now := r.now()
	kind := models.RelativeKind(rel.Kind)
	switch kind {
	case models.RelLastNYears:
		n := rel.N
		if n <= 0 {
			n = 1
		}
		tr.Start = now.AddDate(-n, 0, 0).Format("2006-01-02")
	case models.RelLastNMonths:
		n := rel.N
		if n <= 0 {
			n = 1
		}
		tr.Start = now.AddDate(0, -n, 0).Format("2006-01-02")
	case models.RelSinceYear:
		if rel.Year < 1800 || rel.Year > now.Year()+1 {
			return tr, fmt.Errorf("intent: implausible year %d", rel.Year)
		}
		tr.Start = fmt.Sprintf("%04d-01-01", rel.Year)
	case models.RelYTD:
		tr.Start = fmt.Sprintf("%04d-01-01", now.Year())
	case models.RelBetween:
		// start/end already carry the bounds.
	case models.RelLatest, "":
		tr.Relative = &models.RelativeRange{Kind: models.RelLatest}
		return tr, nil
	default:
		return tr, fmt.Errorf("intent: unknown relative kind %q", rel.Kind)
	}
	tr.Relative = &models.RelativeRange{Kind: kind, N: rel.N, Year: rel.Year}
	return tr, nil
}

// normalizeDate accepts "2023", "2023-05", "2023-05-01" and returns the
// input unchanged; anything else becomes "".
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	switch len(s) {
	case 0:
		return ""
	case 4, 7, 10:
		for i, r := range s {
			if i == 4 || i == 7 {
				if r != '-' {
					return ""
				}
				continue
			}
			if r < '0' || r > '9' {
				return ""
			}
		}
		return s
	}
	return ""
}
