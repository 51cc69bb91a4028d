package ref

import "strings"

// hsAliases maps lower-cased product terms to HS codes at the chapter
// (2-digit) or heading (4-digit) level. This table answers the frequent
// cases directly; terms it misses fall back to a full-text search over
// the HS hierarchy in the indicator index.
var hsAliases = map[string]string{
	"all":            "TOTAL",
	"total":          "TOTAL",
	"everything":     "TOTAL",
	"cars":           "8703",
	"automobiles":    "8703",
	"passenger cars": "8703",
	"vehicles":       "87",
	"motor vehicles": "87",
	"oil":            "2709",
	"crude oil":      "2709",
	"petroleum":      "27",
	"refined oil":    "2710",
	"gasoline":       "2710",
	"natural gas":    "2711",
	"lng":            "2711",
	"coal":           "2701",
	"gold":           "7108",
	"silver":         "7106",
	"copper":         "74",
	"aluminum":       "76",
	"aluminium":      "76",
	"steel":          "72",
	"iron":           "72",
	"iron ore":       "2601",
	"wheat":          "1001",
	"corn":           "1005",
	"maize":          "1005",
	"rice":           "1006",
	"soybeans":       "1201",
	"soya beans":     "1201",
	"coffee":         "0901",
	"tea":            "0902",
	"sugar":          "1701",
	"cotton":         "52",
	"beef":           "0201",
	"pork":           "0203",
	"poultry":        "0207",
	"fish":           "03",
	"dairy":          "04",
	"milk":           "0401",
	"cheese":         "0406",
	"wine":           "2204",
	"beer":           "2203",
	"pharmaceuticals": "30",
	"medicines":       "30",
	"drugs":           "30",
	"chemicals":       "28",
	"plastics":        "39",
	"rubber":          "40",
	"timber":          "44",
	"wood":            "44",
	"lumber":          "44",
	"paper":           "48",
	"textiles":        "63",
	"clothing":        "62",
	"apparel":         "62",
	"footwear":        "64",
	"shoes":           "64",
	"furniture":       "94",
	"toys":            "95",
	"machinery":       "84",
	"computers":       "8471",
	"laptops":         "8471",
	"electronics":     "85",
	"semiconductors":  "8542",
	"chips":           "8542",
	"integrated circuits": "8542",
	"phones":              "8517",
	"smartphones":         "8517",
	"mobile phones":       "8517",
	"batteries":           "8507",
	"lithium batteries":   "8507",
	"solar panels":        "8541",
	"aircraft":            "88",
	"airplanes":           "8802",
	"ships":               "89",
	"fertilizers":         "31",
	"fertilisers":         "31",
	"soybean oil":         "1507",
	"palm oil":            "1511",
	"cocoa":               "18",
	"chocolate":           "1806",
	"tobacco":             "24",
	"cement":              "2523",
	"glass":               "70",
	"diamonds":            "7102",
	"uranium":             "2844",
	"medical devices":     "9018",
	"optical instruments":  "90",
}

// HSTotal is the Comtrade commodity code for all products combined.
const HSTotal = "TOTAL"

// ResolveHS maps a free-form product term to an HS code via the alias
// table. Digit-only inputs of HS shape pass through unchanged; a miss
// here is not final, callers consult the HS hierarchy index next.
func ResolveHS(term string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(term))
	if s == "" {
		return "", false
	}
	if code, ok := hsAliases[s]; ok {
		return code, true
	}
	if isHSCode(s) {
		return s, true
	}
	// Drop a plural "s" and retry ("tractors" -> "tractor" misses, but
	// "automobiles" style plurals in the table already cover most).
	if strings.HasSuffix(s, "s") {
		if code, ok := hsAliases[strings.TrimSuffix(s, "s")]; ok {
			return code, true
		}
	}
	return "", false
}

func isHSCode(s string) bool {
	if n := len(s); n != 2 && n != 4 && n != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// HSRecord is one node of the HS classification hierarchy: a 2-digit
// chapter or a 4-digit heading with its official short description.
type HSRecord struct {
	Code        string
	Description string
}

// HSHierarchy returns the HS chapters plus the headings trade queries
// most often need. The index build ingests these so product names the
// alias table misses still resolve through full-text search.
func HSHierarchy() []HSRecord {
	return hsHierarchy
}

var hsHierarchy = []HSRecord{
	{"01", "Live animals"},
	{"02", "Meat and edible meat offal"},
	{"03", "Fish and crustaceans, molluscs and other aquatic invertebrates"},
	{"04", "Dairy produce; birds' eggs; natural honey"},
	{"05", "Products of animal origin, not elsewhere specified"},
	{"06", "Live trees and other plants; bulbs, roots; cut flowers"},
	{"07", "Edible vegetables and certain roots and tubers"},
	{"08", "Edible fruit and nuts; peel of citrus fruit or melons"},
	{"09", "Coffee, tea, mate and spices"},
	{"10", "Cereals"},
	{"11", "Products of the milling industry; malt; starches"},
	{"12", "Oil seeds and oleaginous fruits; miscellaneous grains"},
	{"13", "Lac; gums, resins and other vegetable saps and extracts"},
	{"14", "Vegetable plaiting materials; vegetable products n.e.s."},
	{"15", "Animal or vegetable fats and oils and their cleavage products"},
	{"16", "Preparations of meat, of fish or of crustaceans"},
	{"17", "Sugars and sugar confectionery"},
	{"18", "Cocoa and cocoa preparations"},
	{"19", "Preparations of cereals, flour, starch or milk; pastry"},
	{"20", "Preparations of vegetables, fruit, nuts"},
	{"21", "Miscellaneous edible preparations"},
	{"22", "Beverages, spirits and vinegar"},
	{"23", "Residues and waste from the food industries; animal fodder"},
	{"24", "Tobacco and manufactured tobacco substitutes"},
	{"25", "Salt; sulphur; earths and stone; plastering materials, lime and cement"},
	{"26", "Ores, slag and ash"},
	{"27", "Mineral fuels, mineral oils and products of their distillation"},
	{"28", "Inorganic chemicals; compounds of precious metals"},
	{"29", "Organic chemicals"},
	{"30", "Pharmaceutical products"},
	{"31", "Fertilisers"},
	{"32", "Tanning or dyeing extracts; pigments, paints and varnishes"},
	{"33", "Essential oils and resinoids; perfumery and cosmetics"},
	{"34", "Soap, washing preparations, lubricants, waxes, candles"},
	{"35", "Albuminoidal substances; modified starches; glues; enzymes"},
	{"36", "Explosives; pyrotechnic products; matches"},
	{"37", "Photographic or cinematographic goods"},
	{"38", "Miscellaneous chemical products"},
	{"39", "Plastics and articles thereof"},
	{"40", "Rubber and articles thereof"},
	{"41", "Raw hides and skins and leather"},
	{"42", "Articles of leather; saddlery; travel goods, handbags"},
	{"43", "Furskins and artificial fur"},
	{"44", "Wood and articles of wood; wood charcoal"},
	{"45", "Cork and articles of cork"},
	{"46", "Manufactures of straw, esparto or other plaiting materials"},
	{"47", "Pulp of wood or of other fibrous cellulosic material"},
	{"48", "Paper and paperboard; articles of paper pulp"},
	{"49", "Printed books, newspapers, pictures"},
	{"50", "Silk"},
	{"51", "Wool, fine or coarse animal hair; horsehair yarn"},
	{"52", "Cotton"},
	{"53", "Other vegetable textile fibres; paper yarn"},
	{"54", "Man-made filaments"},
	{"55", "Man-made staple fibres"},
	{"56", "Wadding, felt and nonwovens; twine, cordage, ropes"},
	{"57", "Carpets and other textile floor coverings"},
	{"58", "Special woven fabrics; tufted textile fabrics; lace; tapestries"},
	{"59", "Impregnated, coated, covered or laminated textile fabrics"},
	{"60", "Knitted or crocheted fabrics"},
	{"61", "Articles of apparel and clothing accessories, knitted or crocheted"},
	{"62", "Articles of apparel and clothing accessories, not knitted"},
	{"63", "Other made up textile articles; worn clothing"},
	{"64", "Footwear, gaiters and the like"},
	{"65", "Headgear and parts thereof"},
	{"66", "Umbrellas, walking-sticks, whips"},
	{"67", "Prepared feathers; artificial flowers; articles of human hair"},
	{"68", "Articles of stone, plaster, cement, asbestos, mica"},
	{"69", "Ceramic products"},
	{"70", "Glass and glassware"},
	{"71", "Natural or cultured pearls, precious stones, precious metals, jewellery"},
	{"72", "Iron and steel"},
	{"73", "Articles of iron or steel"},
	{"74", "Copper and articles thereof"},
	{"75", "Nickel and articles thereof"},
	{"76", "Aluminium and articles thereof"},
	{"78", "Lead and articles thereof"},
	{"79", "Zinc and articles thereof"},
	{"80", "Tin and articles thereof"},
	{"81", "Other base metals; cermets"},
	{"82", "Tools, implements, cutlery, spoons and forks, of base metal"},
	{"83", "Miscellaneous articles of base metal"},
	{"84", "Nuclear reactors, boilers, machinery and mechanical appliances"},
	{"85", "Electrical machinery and equipment; sound and television apparatus"},
	{"86", "Railway or tramway locomotives, rolling-stock"},
	{"87", "Vehicles other than railway or tramway rolling-stock"},
	{"88", "Aircraft, spacecraft, and parts thereof"},
	{"89", "Ships, boats and floating structures"},
	{"90", "Optical, photographic, measuring, medical instruments"},
	{"91", "Clocks and watches and parts thereof"},
	{"92", "Musical instruments; parts and accessories"},
	{"93", "Arms and ammunition; parts and accessories"},
	{"94", "Furniture; bedding, mattresses; lamps and lighting fittings"},
	{"95", "Toys, games and sports requisites"},
	{"96", "Miscellaneous manufactured articles"},
	{"97", "Works of art, collectors' pieces and antiques"},
	{"0201", "Meat of bovine animals, fresh or chilled"},
	{"0203", "Meat of swine, fresh, chilled or frozen"},
	{"0207", "Meat and edible offal of poultry"},
	{"0401", "Milk and cream, not concentrated"},
	{"0406", "Cheese and curd"},
	{"0901", "Coffee, whether or not roasted"},
	{"0902", "Tea, whether or not flavoured"},
	{"1001", "Wheat and meslin"},
	{"1005", "Maize (corn)"},
	{"1006", "Rice"},
	{"1201", "Soya beans, whether or not broken"},
	{"1507", "Soya-bean oil and its fractions"},
	{"1511", "Palm oil and its fractions"},
	{"1701", "Cane or beet sugar and chemically pure sucrose"},
	{"1806", "Chocolate and other food preparations containing cocoa"},
	{"2203", "Beer made from malt"},
	{"2204", "Wine of fresh grapes"},
	{"2523", "Portland cement, aluminous cement, slag cement"},
	{"2601", "Iron ores and concentrates"},
	{"2701", "Coal; briquettes and similar solid fuels from coal"},
	{"2709", "Petroleum oils, crude"},
	{"2710", "Petroleum oils, refined; preparations thereof"},
	{"2711", "Petroleum gases and other gaseous hydrocarbons"},
	{"2844", "Radioactive chemical elements and isotopes, including uranium"},
	{"7102", "Diamonds, whether or not worked"},
	{"7106", "Silver, unwrought or in semi-manufactured forms"},
	{"7108", "Gold, unwrought or in semi-manufactured forms"},
	{"8471", "Automatic data-processing machines and units thereof; computers"},
	{"8507", "Electric accumulators, including lithium-ion batteries"},
	{"8517", "Telephone sets, including smartphones; communication apparatus"},
	{"8541", "Semiconductor devices; photosensitive devices; solar cells"},
	{"8542", "Electronic integrated circuits"},
	{"8703", "Motor cars and other motor vehicles for the transport of persons"},
	{"8802", "Aircraft; powered aeroplanes, helicopters, spacecraft"},
	{"9018", "Instruments and appliances used in medical or surgical sciences"},
}

// notSynonyms lists indicator-term pairs that look related but must not
// substitute for each other during index search or semantic validation.
var notSynonyms = [][2]string{
	{"unemployment rate", "employment rate"},
	{"cpi", "ppi"},
	{"inflation", "deflator"},
	{"exports", "imports"},
	{"nominal gdp", "real gdp"},
	{"interest rate", "exchange rate"},
	{"government debt", "government deficit"},
	{"core inflation", "headline inflation"},
	{"labor force", "employment"},
	{"trade balance", "current account"},
}

// AreNotSynonyms reports whether the two terms are a known false-friend
// pair, in either order.
func AreNotSynonyms(a, b string) bool {
	la, lb := strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	for _, p := range notSynonyms {
		if (p[0] == la && p[1] == lb) || (p[0] == lb && p[1] == la) {
			return true
		}
	}
	return false
}
