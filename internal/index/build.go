package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/seenimoa/macroquery/internal/ref"
)

// HSNamespace tags HS product-hierarchy records in the indicators
// table. It is a search namespace, not a registered provider.
const HSNamespace = "hs"

const schema = `
CREATE TABLE IF NOT EXISTS indicators (
    id           INTEGER PRIMARY KEY,
    provider     TEXT NOT NULL,
    code         TEXT NOT NULL,
    display_name TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    keywords     TEXT NOT NULL DEFAULT '',
    unit         TEXT NOT NULL DEFAULT '',
    frequency    TEXT NOT NULL DEFAULT '',
    popularity   REAL NOT NULL DEFAULT 0,
    UNIQUE(provider, code)
);

CREATE VIRTUAL TABLE IF NOT EXISTS indicators_fts USING fts5(
    display_name, description, keywords,
    content='indicators', content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS indicators_ai AFTER INSERT ON indicators BEGIN
    INSERT INTO indicators_fts(rowid, display_name, description, keywords)
    VALUES (new.id, new.display_name, new.description, new.keywords);
END;

CREATE TRIGGER IF NOT EXISTS indicators_ad AFTER DELETE ON indicators BEGIN
    INSERT INTO indicators_fts(indicators_fts, rowid, display_name, description, keywords)
    VALUES ('delete', old.id, old.display_name, old.description, old.keywords);
END;

CREATE TABLE IF NOT EXISTS aliases (
    alias    TEXT NOT NULL,
    provider TEXT NOT NULL,
    code     TEXT NOT NULL,
    PRIMARY KEY (alias, provider)
);

CREATE INDEX IF NOT EXISTS idx_indicators_code ON indicators(code);
`

// CatalogEntry is one row of the ingest job's output file.
type CatalogEntry struct {
	Provider    string   `json:"provider"`
	Code        string   `json:"code"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description,omitempty"`
	Keywords    string   `json:"keywords,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Frequency   string   `json:"frequency,omitempty"`
	Popularity  float64  `json:"popularity,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
}

// Build writes a fresh snapshot at dbPath from a catalog JSON file
// (an array of CatalogEntry). The HS product hierarchy is ingested
// alongside the catalog so trade-product search always works. Existing
// content is replaced.
func Build(ctx context.Context, dbPath, catalogPath string) (int, error) {
	raw, err := os.ReadFile(catalogPath)
	if err != nil {
		return 0, fmt.Errorf("index: read catalog: %w", err)
	}
	var entries []CatalogEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return 0, fmt.Errorf("index: parse catalog: %w", err)
	}
	return BuildFromEntries(ctx, dbPath, append(entries, HSCatalog()...))
}

// HSCatalog converts the HS hierarchy into catalog entries under the hs
// namespace.
func HSCatalog() []CatalogEntry {
	hier := ref.HSHierarchy()
	out := make([]CatalogEntry, 0, len(hier))
	for _, h := range hier {
		out = append(out, CatalogEntry{
			Provider:    HSNamespace,
			Code:        h.Code,
			DisplayName: h.Description,
		})
	}
	return out
}

// BuildFromEntries writes a snapshot from in-memory catalog entries.
func BuildFromEntries(ctx context.Context, dbPath string, entries []CatalogEntry) (int, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return 0, fmt.Errorf("index: open %s: %w", dbPath, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return 0, fmt.Errorf("index: create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("index: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM indicators`); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM aliases`); err != nil {
		return 0, err
	}

	insIndicator, err := tx.PrepareContext(ctx, `
		INSERT INTO indicators (provider, code, display_name, description, keywords, unit, frequency, popularity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer insIndicator.Close()

	insAlias, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO aliases (alias, provider, code) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer insAlias.Close()

	n := 0
	for _, e := range entries {
		if e.Provider == "" || e.Code == "" || e.DisplayName == "" {
			continue
		}
		if _, err := insIndicator.ExecContext(ctx,
			e.Provider, e.Code, e.DisplayName, e.Description, e.Keywords,
			e.Unit, e.Frequency, e.Popularity); err != nil {
			return 0, fmt.Errorf("index: insert %s/%s: %w", e.Provider, e.Code, err)
		}
		for _, alias := range e.Aliases {
			if _, err := insAlias.ExecContext(ctx, normalizeAlias(alias), e.Provider, e.Code); err != nil {
				return 0, fmt.Errorf("index: insert alias %q: %w", alias, err)
			}
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("index: commit: %w", err)
	}
	return n, nil
}
