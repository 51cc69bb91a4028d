package ref

import "testing"

func TestResolveCountry(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"United States", "USA"},
		{"usa", "USA"},
		{"UK", "GBR"},
		{"south korea", "KOR"},
		{"Viet Nam", "VNM"},
		{"DEU", "DEU"},
		{"deu", "DEU"},
		{"czech republic", "CZE"},
		{"", ""},
		{"atlantis", ""},
		{"XYZ", "XYZ"}, // unknown ISO3 shape passes through
	}
	for _, tt := range tests {
		if got := ResolveCountry(tt.input); got != tt.want {
			t.Errorf("ResolveCountry(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestGroupMembers(t *testing.T) {
	g7, ok := GroupMembers("G7")
	if !ok || len(g7) != 7 {
		t.Fatalf("G7: ok=%v len=%d", ok, len(g7))
	}
	if _, ok := GroupMembers("g7"); !ok {
		t.Error("group lookup should be case-insensitive")
	}
	if _, ok := GroupMembers("G8"); ok {
		t.Error("G8 should not be a known group")
	}
	eu, _ := GroupMembers("EU27")
	if len(eu) != 27 {
		t.Errorf("EU27 has %d members, want 27", len(eu))
	}
	ea, _ := GroupMembers("EURO_AREA")
	if len(ea) != 20 {
		t.Errorf("EURO_AREA has %d members, want 20", len(ea))
	}

	// Returned slice must be a copy.
	g7[0] = "ZZZ"
	again, _ := GroupMembers("G7")
	if again[0] == "ZZZ" {
		t.Error("GroupMembers must return a copy")
	}
}

func TestM49(t *testing.T) {
	if code, ok := M49("USA"); !ok || code != 842 {
		t.Errorf("M49(USA) = %d, %v", code, ok)
	}
	if code, ok := M49("CAN"); !ok || code != 124 {
		t.Errorf("M49(CAN) = %d, %v", code, ok)
	}
	if _, ok := M49("XXX"); ok {
		t.Error("M49(XXX) should miss")
	}
}

func TestGroupMembersHaveM49(t *testing.T) {
	// Every group member should map to an M.49 code so Comtrade group
	// expansion never silently drops countries.
	for tag := range groups {
		members, _ := GroupMembers(tag)
		for _, iso := range members {
			if _, ok := M49(iso); !ok {
				t.Errorf("group %s member %s has no M.49 code", tag, iso)
			}
		}
	}
}

func TestResolveHS(t *testing.T) {
	tests := []struct {
		term string
		want string
		ok   bool
	}{
		{"cars", "8703", true},
		{"Crude Oil", "2709", true},
		{"semiconductors", "8542", true},
		{"total", "TOTAL", true},
		{"8703", "8703", true},
		{"27", "27", true},
		{"271000", "271000", true},
		{"123", "", false},
		{"unobtainium", "", false},
	}
	for _, tt := range tests {
		got, ok := ResolveHS(tt.term)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ResolveHS(%q) = %q, %v, want %q, %v", tt.term, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAreNotSynonyms(t *testing.T) {
	if !AreNotSynonyms("unemployment rate", "employment rate") {
		t.Error("unemployment/employment rate should be flagged")
	}
	if !AreNotSynonyms("PPI", "CPI") {
		t.Error("order and case should not matter")
	}
	if AreNotSynonyms("gdp", "gross domestic product") {
		t.Error("true synonyms must not be flagged")
	}
}
