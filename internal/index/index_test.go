package index

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

var testCatalog = []CatalogEntry{
	{
		Provider: "fred", Code: "GDPC1", DisplayName: "Real Gross Domestic Product",
		Description: "Inflation-adjusted value of goods and services produced in the United States",
		Keywords:    "gdp real output", Unit: "Billions of Chained 2017 Dollars",
		Frequency: "quarterly", Popularity: 9.5,
		Aliases: []string{"real gdp", "real gross domestic product"},
	},
	{
		Provider: "fred", Code: "CPIAUCSL", DisplayName: "Consumer Price Index for All Urban Consumers",
		Description: "Measure of the average change in prices paid by urban consumers",
		Keywords:    "cpi inflation prices", Frequency: "monthly", Popularity: 9.8,
		Aliases: []string{"cpi", "consumer price index"},
	},
	{
		Provider: "worldbank", Code: "NY.GDP.MKTP.CD", DisplayName: "GDP (current US$)",
		Description: "Gross domestic product at purchaser's prices in current dollars",
		Keywords:    "gdp nominal", Frequency: "annual", Popularity: 8.0,
	},
	{
		Provider: "worldbank", Code: "SL.UEM.TOTL.ZS", DisplayName: "Unemployment, total (% of labor force)",
		Description: "Share of the labor force without work but available for and seeking employment",
		Keywords:    "unemployment labor", Frequency: "annual", Popularity: 7.5,
	},
	{
		Provider: "fred", Code: "OBSCURE1", DisplayName: "Obscure Series One",
		Description: "Contains the word quintessence nowhere else used",
		Popularity:  0.1,
	},
}

func buildTestIndex(t *testing.T) *Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "indicators.db")
	n, err := BuildFromEntries(context.Background(), path, testCatalog)
	if err != nil {
		t.Fatalf("BuildFromEntries: %v", err)
	}
	if n != len(testCatalog) {
		t.Fatalf("built %d records, want %d", n, len(testCatalog))
	}
	ix, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestSearchExactCode(t *testing.T) {
	ix := buildTestIndex(t)
	hits, err := ix.Search(context.Background(), "GDPC1", "", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 || hits[0].Code != "GDPC1" {
		t.Fatalf("hits = %+v", hits)
	}
	if hits[0].Score < 100 {
		t.Errorf("exact code score = %f, want >= 100", hits[0].Score)
	}
	if hits[0].LowConfidence {
		t.Error("exact code match must not be low confidence")
	}
}

func TestSearchAlias(t *testing.T) {
	ix := buildTestIndex(t)
	hits, err := ix.Search(context.Background(), "CPI", "", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 || hits[0].Code != "CPIAUCSL" {
		t.Fatalf("alias lookup failed: %+v", hits)
	}
}

func TestSearchFullText(t *testing.T) {
	ix := buildTestIndex(t)
	hits, err := ix.Search(context.Background(), "unemployment", "", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 || hits[0].Code != "SL.UEM.TOTL.ZS" {
		t.Fatalf("hits = %+v", hits)
	}
	if hits[0].LowConfidence {
		t.Error("name-word match should not be low confidence")
	}
}

func TestSearchProviderFilter(t *testing.T) {
	ix := buildTestIndex(t)
	hits, err := ix.Search(context.Background(), "gdp", "worldbank", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits")
	}
	for _, h := range hits {
		if h.Provider != "worldbank" {
			t.Errorf("provider filter leaked %s/%s", h.Provider, h.Code)
		}
	}
}

func TestSearchDescriptionOnlyIsLowConfidence(t *testing.T) {
	ix := buildTestIndex(t)
	hits, err := ix.Search(context.Background(), "quintessence", "", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Code != "OBSCURE1" {
		t.Fatalf("hits = %+v", hits)
	}
	if !hits[0].LowConfidence {
		t.Error("description-only match must be low confidence")
	}
}

func TestSearchEmptyAndMiss(t *testing.T) {
	ix := buildTestIndex(t)
	if hits, err := ix.Search(context.Background(), "  ", "", 5); err != nil || len(hits) != 0 {
		t.Errorf("blank query: %v, %v", hits, err)
	}
	hits, err := ix.Search(context.Background(), "zzzzzz", "", 5)
	if err != nil {
		t.Fatalf("miss query errored: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("miss returned %+v", hits)
	}
}

func TestReloadSwapsSnapshot(t *testing.T) {
	ix := buildTestIndex(t)
	gen := ix.Generation()

	path2 := filepath.Join(t.TempDir(), "v2.db")
	if _, err := BuildFromEntries(context.Background(), path2, testCatalog[:1]); err != nil {
		t.Fatalf("build v2: %v", err)
	}
	if err := ix.Reload(path2); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if ix.Generation() != gen+1 {
		t.Errorf("generation = %d, want %d", ix.Generation(), gen+1)
	}

	stats, err := ix.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["fred"] != 1 || stats["worldbank"] != 0 {
		t.Errorf("stats after reload = %v", stats)
	}
}

func TestBuildIngestsProductHierarchy(t *testing.T) {
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.json")
	raw, err := json.Marshal(testCatalog)
	if err != nil {
		t.Fatalf("marshal catalog: %v", err)
	}
	if err := os.WriteFile(catalogPath, raw, 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	path := filepath.Join(dir, "indicators.db")
	n, err := Build(context.Background(), path, catalogPath)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if want := len(testCatalog) + len(HSCatalog()); n != want {
		t.Errorf("built %d records, want %d with the product hierarchy", n, want)
	}

	ix, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ix.Close()

	hits, err := ix.Search(context.Background(), "integrated circuits", HSNamespace, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 || hits[0].Code != "8542" {
		t.Fatalf("hits = %+v, want HS heading 8542", hits)
	}
	for _, h := range hits {
		if h.Provider != HSNamespace {
			t.Errorf("namespace filter leaked %s/%s", h.Provider, h.Code)
		}
	}
}

func TestBuildReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indicators.db")
	ctx := context.Background()
	if _, err := BuildFromEntries(ctx, path, testCatalog); err != nil {
		t.Fatalf("first build: %v", err)
	}
	n, err := BuildFromEntries(ctx, path, testCatalog[:2])
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if n != 2 {
		t.Errorf("rebuild ingested %d, want 2", n)
	}

	ix, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ix.Close()
	stats, _ := ix.Stats(ctx)
	if stats["fred"] != 2 || stats["worldbank"] != 0 {
		t.Errorf("stats = %v", stats)
	}
}
