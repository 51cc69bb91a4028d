package models

// Qualifier disambiguates which provider series an indicator label means.
type Qualifier string

const (
	QualReal                  Qualifier = "real"
	QualNominal               Qualifier = "nominal"
	QualCore                  Qualifier = "core"
	QualPerCapita             Qualifier = "per_capita"
	QualGrowth                Qualifier = "growth"
	QualSeasonallyAdjusted    Qualifier = "seasonally_adjusted"
	QualNotSeasonallyAdjusted Qualifier = "not_seasonally_adjusted"
)

// IndicatorRequest is one indicator the user asked for.
type IndicatorRequest struct {
	Label        string      `json:"label"`
	ExplicitCode string      `json:"explicit_code,omitempty"`
	Qualifiers   []Qualifier `json:"qualifiers,omitempty"`
}

// HasQualifier reports whether q is among the request's qualifiers.
func (r IndicatorRequest) HasQualifier(q Qualifier) bool {
	for _, x := range r.Qualifiers {
		if x == q {
			return true
		}
	}
	return false
}

// GeoKind tags the variant of a GeoSelector.
type GeoKind string

const (
	GeoCountry GeoKind = "country_iso3"
	GeoGroup   GeoKind = "country_group"
	GeoWorld   GeoKind = "world"
	GeoRegion  GeoKind = "region"
)

// GeoSelector identifies a geography: a single ISO3 country, a symbolic
// country group (G7, BRICS, ...), the world aggregate, or a named region.
type GeoSelector struct {
	Kind  GeoKind `json:"kind"`
	Value string  `json:"value,omitempty"` // ISO3 code, group tag, or region tag
}

// Country group tags form a closed set.
const (
	GroupG7       = "G7"
	GroupG20      = "G20"
	GroupBRICS    = "BRICS"
	GroupASEAN    = "ASEAN"
	GroupEU27     = "EU27"
	GroupEuroArea = "EURO_AREA"
	GroupNordic   = "NORDIC"
	GroupOECD     = "OECD"
	GroupLatam    = "LATAM"
	GroupMENA     = "MENA"
)

// RelativeKind enumerates relative time-range forms.
type RelativeKind string

const (
	RelLastNYears  RelativeKind = "last_N_years"
	RelLastNMonths RelativeKind = "last_N_months"
	RelSinceYear   RelativeKind = "since_year"
	RelBetween     RelativeKind = "between"
	RelYTD         RelativeKind = "ytd"
	RelLatest      RelativeKind = "latest"
)

// RelativeRange is a relative time expression resolved against the
// wall-clock date by the intent post-processor.
type RelativeRange struct {
	Kind RelativeKind `json:"kind"`
	N    int          `json:"n,omitempty"`    // for last_N_*
	Year int          `json:"year,omitempty"` // for since_year
}

// TimeRange bounds the requested observations. Start/End are ISO dates
// ("2018-01-01") or bare years ("2018"); Relative, when set, is
// normalized into Start/End before routing.
type TimeRange struct {
	Start    string         `json:"start,omitempty"`
	End      string         `json:"end,omitempty"`
	Relative *RelativeRange `json:"relative,omitempty"`
}

// StartYear returns the four-digit year opening the range, or 0 when
// unbounded.
func (t TimeRange) StartYear() int { return yearOf(t.Start) }

// EndYear returns the four-digit year closing the range, or 0 when
// unbounded.
func (t TimeRange) EndYear() int { return yearOf(t.End) }

func yearOf(s string) int {
	if len(s) < 4 {
		return 0
	}
	y := 0
	for _, r := range s[:4] {
		if r < '0' || r > '9' {
			return 0
		}
		y = y*10 + int(r-'0')
	}
	return y
}

// LatestOnly reports whether the user asked for the most recent value
// rather than a range.
func (t TimeRange) LatestOnly() bool {
	return t.Relative != nil && t.Relative.Kind == RelLatest && t.Start == "" && t.End == ""
}

// ParsedIntent is the structured outcome of intent resolution.
type ParsedIntent struct {
	Providers      []string           `json:"providers,omitempty"`
	Indicators     []IndicatorRequest `json:"indicators"`
	Geography      []GeoSelector      `json:"geography,omitempty"`
	Time           TimeRange          `json:"time_range"`
	Frequency      Frequency          `json:"frequency,omitempty"`
	IsTradeQuery   bool               `json:"is_trade_query,omitempty"`
	IsComparison   bool               `json:"is_comparison,omitempty"`
	IsExchangeRate bool               `json:"is_exchange_rate,omitempty"`
	IsCrypto       bool               `json:"is_crypto,omitempty"`
}

// NamesProvider reports whether the intent explicitly lists the provider.
func (p *ParsedIntent) NamesProvider(name string) bool {
	for _, pr := range p.Providers {
		if pr == name {
			return true
		}
	}
	return false
}
