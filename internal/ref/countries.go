// Package ref holds static reference data used across adapters and the
// intent post-processor: country name resolution, ISO3 ↔ UN M.49 codes,
// country-group membership, and HS product aliases for trade queries.
package ref

import "strings"

// nameToISO maps lower-cased country names and common aliases to ISO3.
var nameToISO = map[string]string{
	"united states": "USA", "usa": "USA", "us": "USA", "america": "USA",
	"united states of america": "USA",
	"united kingdom": "GBR", "uk": "GBR", "britain": "GBR", "great britain": "GBR",
	"germany": "DEU", "france": "FRA", "japan": "JPN", "canada": "CAN",
	"italy": "ITA", "australia": "AUS", "brazil": "BRA", "china": "CHN",
	"india": "IND", "indonesia": "IDN", "mexico": "MEX",
	"south korea": "KOR", "korea": "KOR", "republic of korea": "KOR",
	"south africa": "ZAF", "turkey": "TUR", "türkiye": "TUR", "spain": "ESP",
	"russia": "RUS", "russian federation": "RUS", "netherlands": "NLD",
	"switzerland": "CHE", "sweden": "SWE", "norway": "NOR", "denmark": "DNK",
	"finland": "FIN", "iceland": "ISL", "austria": "AUT", "belgium": "BEL",
	"portugal": "PRT", "greece": "GRC", "ireland": "IRL", "poland": "POL",
	"czech republic": "CZE", "czechia": "CZE", "hungary": "HUN",
	"romania": "ROU", "bulgaria": "BGR", "croatia": "HRV", "slovakia": "SVK",
	"slovenia": "SVN", "estonia": "EST", "latvia": "LVA", "lithuania": "LTU",
	"luxembourg": "LUX", "malta": "MLT", "cyprus": "CYP",
	"argentina": "ARG", "chile": "CHL", "colombia": "COL", "peru": "PER",
	"uruguay": "URY", "venezuela": "VEN", "ecuador": "ECU", "bolivia": "BOL",
	"paraguay": "PRY",
	"saudi arabia": "SAU", "united arab emirates": "ARE", "uae": "ARE",
	"israel": "ISR", "egypt": "EGY", "morocco": "MAR", "algeria": "DZA",
	"tunisia": "TUN", "jordan": "JOR", "lebanon": "LBN", "qatar": "QAT",
	"kuwait": "KWT", "bahrain": "BHR", "oman": "OMN", "iran": "IRN",
	"iraq": "IRQ",
	"thailand": "THA", "vietnam": "VNM", "viet nam": "VNM",
	"philippines": "PHL", "malaysia": "MYS", "singapore": "SGP",
	"myanmar": "MMR", "cambodia": "KHM", "laos": "LAO", "brunei": "BRN",
	"new zealand": "NZL", "nigeria": "NGA", "kenya": "KEN",
	"ethiopia": "ETH", "ghana": "GHA", "pakistan": "PAK",
	"bangladesh": "BGD", "sri lanka": "LKA", "ukraine": "UKR",
	"taiwan": "TWN", "hong kong": "HKG",
}

// isoToName maps ISO3 codes to display names.
var isoToName = map[string]string{
	"USA": "United States", "GBR": "United Kingdom", "DEU": "Germany",
	"FRA": "France", "JPN": "Japan", "CAN": "Canada", "ITA": "Italy",
	"AUS": "Australia", "BRA": "Brazil", "CHN": "China", "IND": "India",
	"IDN": "Indonesia", "MEX": "Mexico", "KOR": "South Korea",
	"ZAF": "South Africa", "TUR": "Turkey", "ESP": "Spain", "RUS": "Russia",
	"NLD": "Netherlands", "CHE": "Switzerland", "SWE": "Sweden",
	"NOR": "Norway", "DNK": "Denmark", "FIN": "Finland", "ISL": "Iceland",
	"AUT": "Austria", "BEL": "Belgium", "PRT": "Portugal", "GRC": "Greece",
	"IRL": "Ireland", "POL": "Poland", "CZE": "Czechia", "HUN": "Hungary",
	"ROU": "Romania", "BGR": "Bulgaria", "HRV": "Croatia", "SVK": "Slovakia",
	"SVN": "Slovenia", "EST": "Estonia", "LVA": "Latvia", "LTU": "Lithuania",
	"LUX": "Luxembourg", "MLT": "Malta", "CYP": "Cyprus", "ARG": "Argentina",
	"CHL": "Chile", "COL": "Colombia", "PER": "Peru", "SAU": "Saudi Arabia",
	"ARE": "United Arab Emirates", "ISR": "Israel", "EGY": "Egypt",
	"THA": "Thailand", "VNM": "Vietnam", "PHL": "Philippines",
	"MYS": "Malaysia", "SGP": "Singapore", "NZL": "New Zealand",
	"NGA": "Nigeria", "PAK": "Pakistan", "BGD": "Bangladesh",
	"UKR": "Ukraine", "TWN": "Taiwan", "HKG": "Hong Kong",
	"MAR": "Morocco", "DZA": "Algeria", "TUN": "Tunisia", "JOR": "Jordan",
	"LBN": "Lebanon", "QAT": "Qatar", "KWT": "Kuwait", "BHR": "Bahrain",
	"OMN": "Oman", "IRN": "Iran", "IRQ": "Iraq", "URY": "Uruguay",
	"VEN": "Venezuela", "ECU": "Ecuador", "BOL": "Bolivia", "PRY": "Paraguay",
	"MMR": "Myanmar", "KHM": "Cambodia", "LAO": "Laos", "BRN": "Brunei",
	"KEN": "Kenya", "ETH": "Ethiopia", "GHA": "Ghana", "LKA": "Sri Lanka",
}

// isoToM49 maps ISO3 codes to UN M.49 numeric codes (Comtrade reporters
// and partners). 0 is the world aggregate.
var isoToM49 = map[string]int{
	"USA": 842, "GBR": 826, "DEU": 276, "FRA": 251, "JPN": 392,
	"CAN": 124, "ITA": 381, "AUS": 36, "BRA": 76, "CHN": 156,
	"IND": 699, "IDN": 360, "MEX": 484, "KOR": 410, "ZAF": 710,
	"TUR": 792, "ESP": 724, "RUS": 643, "NLD": 528, "CHE": 757,
	"SWE": 752, "NOR": 579, "DNK": 208, "FIN": 246, "ISL": 352,
	"AUT": 40, "BEL": 56, "PRT": 620, "GRC": 300, "IRL": 372,
	"POL": 616, "CZE": 203, "HUN": 348, "ROU": 642, "BGR": 100,
	"HRV": 191, "SVK": 703, "SVN": 705, "EST": 233, "LVA": 428,
	"LTU": 440, "LUX": 442, "MLT": 470, "CYP": 196, "ARG": 32,
	"CHL": 152, "COL": 170, "PER": 604, "SAU": 682, "ARE": 784,
	"ISR": 376, "EGY": 818, "THA": 764, "VNM": 704, "PHL": 608,
	"MYS": 458, "SGP": 702, "NZL": 554, "NGA": 566, "PAK": 586,
	"BGD": 50, "UKR": 804, "MAR": 504, "DZA": 12, "TUN": 788,
	"JOR": 400, "LBN": 422, "QAT": 634, "KWT": 414, "BHR": 48,
	"OMN": 512, "IRN": 364, "IRQ": 368, "URY": 858, "VEN": 862,
	"ECU": 218, "BOL": 68, "PRY": 600, "MMR": 104, "KHM": 116,
	"LAO": 418, "BRN": 96, "KEN": 404, "ETH": 231, "GHA": 288,
	"LKA": 144,
}

// M49World is the Comtrade aggregate partner code for "world".
const M49World = 0

// groups maps country-group tags to ISO3 member lists.
var groups = map[string][]string{
	"G7":    {"USA", "GBR", "DEU", "FRA", "JPN", "CAN", "ITA"},
	"BRICS": {"BRA", "RUS", "IND", "CHN", "ZAF"},
	"G20": {"ARG", "AUS", "BRA", "CAN", "CHN", "FRA", "DEU", "IND", "IDN",
		"ITA", "JPN", "KOR", "MEX", "RUS", "SAU", "ZAF", "TUR", "GBR", "USA"},
	"ASEAN": {"BRN", "KHM", "IDN", "LAO", "MYS", "MMR", "PHL", "SGP", "THA", "VNM"},
	"EU27": {"AUT", "BEL", "BGR", "HRV", "CYP", "CZE", "DNK", "EST", "FIN",
		"FRA", "DEU", "GRC", "HUN", "IRL", "ITA", "LVA", "LTU", "LUX", "MLT",
		"NLD", "POL", "PRT", "ROU", "SVK", "SVN", "ESP", "SWE"},
	"EURO_AREA": {"AUT", "BEL", "CYP", "EST", "FIN", "FRA", "DEU", "GRC",
		"IRL", "ITA", "LVA", "LTU", "LUX", "MLT", "NLD", "PRT", "SVK", "SVN",
		"ESP", "HRV"},
	"NORDIC": {"DNK", "FIN", "ISL", "NOR", "SWE"},
	"OECD": {"AUS", "AUT", "BEL", "CAN", "CHL", "COL", "CZE", "DNK", "EST",
		"FIN", "FRA", "DEU", "GRC", "HUN", "ISL", "IRL", "ISR", "ITA", "JPN",
		"KOR", "LVA", "LTU", "LUX", "MEX", "NLD", "NZL", "NOR", "POL", "PRT",
		"SVK", "SVN", "ESP", "SWE", "CHE", "TUR", "GBR", "USA"},
	"LATAM": {"ARG", "BOL", "BRA", "CHL", "COL", "ECU", "MEX", "PER", "PRY",
		"URY", "VEN"},
	"MENA": {"DZA", "BHR", "EGY", "IRN", "IRQ", "ISR", "JOR", "KWT", "LBN",
		"MAR", "OMN", "QAT", "SAU", "TUN", "ARE"},
}

// ResolveCountry maps a free-form country name or code to ISO3.
// Returns "" when the input cannot be resolved.
func ResolveCountry(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	s = strings.ReplaceAll(s, "_", " ")
	if s == "" {
		return ""
	}
	if code, ok := nameToISO[s]; ok {
		return code
	}
	up := strings.ToUpper(strings.TrimSpace(input))
	if len(up) == 3 {
		if _, ok := isoToName[up]; ok {
			return up
		}
		// Unknown three-letter inputs pass through; providers validate.
		return up
	}
	return ""
}

// CountryName returns the display name for an ISO3 code, or the code
// itself when unknown.
func CountryName(iso3 string) string {
	if name, ok := isoToName[iso3]; ok {
		return name
	}
	return iso3
}

// M49 returns the UN M.49 numeric code for an ISO3 country.
func M49(iso3 string) (int, bool) {
	code, ok := isoToM49[iso3]
	return code, ok
}

// GroupMembers returns the ISO3 members of a country-group tag.
func GroupMembers(tag string) ([]string, bool) {
	members, ok := groups[strings.ToUpper(tag)]
	if !ok {
		return nil, false
	}
	out := make([]string, len(members))
	copy(out, members)
	return out, true
}

// IsGroupTag reports whether tag is a known country-group tag.
func IsGroupTag(tag string) bool {
	_, ok := groups[strings.ToUpper(tag)]
	return ok
}
