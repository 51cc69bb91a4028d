package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Search finds indicator candidates for a free-form label. Exact code
// and alias matches outrank exact display-name matches, which outrank
// full-text relevance. providerFilter narrows results to one provider;
// empty means all.
func (ix *Index) Search(ctx context.Context, query, providerFilter string, limit int) ([]ScoredRecord, error) {
	ix.mu.RLock()
	db := ix.db
	ix.mu.RUnlock()
	if db == nil {
		return nil, fmt.Errorf("index: closed")
	}
	if limit <= 0 {
		limit = 10
	}

	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}

	seen := make(map[string]bool) // provider/code dedupe across tiers
	var out []ScoredRecord

	add := func(r ScoredRecord) {
		key := r.Provider + "/" + r.Code
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, r)
	}

	// Tier 1: exact code or alias match.
	exact, err := ix.exactMatches(ctx, db, q, providerFilter)
	if err != nil {
		return nil, err
	}
	for _, r := range exact {
		add(r)
	}

	// Tier 2: exact display-name match.
	named, err := ix.nameMatches(ctx, db, q, providerFilter)
	if err != nil {
		return nil, err
	}
	for _, r := range named {
		add(r)
	}

	// Tier 3: full-text relevance.
	if len(out) < limit {
		fts, err := ix.ftsMatches(ctx, db, q, providerFilter, limit)
		if err != nil {
			return nil, err
		}
		for _, r := range fts {
			add(r)
		}
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

const recordCols = `i.id, i.provider, i.code, i.display_name, i.description, i.keywords, i.unit, i.frequency, i.popularity`

func scanRecord(rows *sql.Rows) (Record, error) {
	var r Record
	err := rows.Scan(&r.ID, &r.Provider, &r.Code, &r.DisplayName, &r.Description,
		&r.Keywords, &r.Unit, &r.Frequency, &r.Popularity)
	return r, err
}

func (ix *Index) exactMatches(ctx context.Context, db *sql.DB, q, providerFilter string) ([]ScoredRecord, error) {
	norm := normalizeAlias(q)
	query := `
		SELECT ` + recordCols + ` FROM indicators i
		WHERE (UPPER(i.code) = UPPER(?)
		   OR EXISTS (SELECT 1 FROM aliases a WHERE a.alias = ? AND a.provider = i.provider AND a.code = i.code))`
	args := []any{q, norm}
	if providerFilter != "" {
		query += ` AND i.provider = ?`
		args = append(args, providerFilter)
	}
	query += ` ORDER BY i.popularity DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: exact search: %w", err)
	}
	defer rows.Close()

	var out []ScoredRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ScoredRecord{Record: r, Score: 100 + r.Popularity})
	}
	return out, rows.Err()
}

func (ix *Index) nameMatches(ctx context.Context, db *sql.DB, q, providerFilter string) ([]ScoredRecord, error) {
	query := `SELECT ` + recordCols + ` FROM indicators i WHERE LOWER(i.display_name) = LOWER(?)`
	args := []any{q}
	if providerFilter != "" {
		query += ` AND i.provider = ?`
		args = append(args, providerFilter)
	}
	query += ` ORDER BY i.popularity DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: name search: %w", err)
	}
	defer rows.Close()

	var out []ScoredRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ScoredRecord{Record: r, Score: 90 + r.Popularity})
	}
	return out, rows.Err()
}

func (ix *Index) ftsMatches(ctx context.Context, db *sql.DB, q, providerFilter string, limit int) ([]ScoredRecord, error) {
	match := ftsQuery(q)
	if match == "" {
		return nil, nil
	}

	// Weight name and keyword hits above description hits; bm25 returns
	// lower-is-better, negate into a score.
	query := `
		SELECT ` + recordCols + `, bm25(indicators_fts, 5.0, 1.0, 3.0) AS rank
		FROM indicators_fts f
		JOIN indicators i ON i.id = f.rowid
		WHERE indicators_fts MATCH ?`
	args := []any{match}
	if providerFilter != "" {
		query += ` AND i.provider = ?`
		args = append(args, providerFilter)
	}
	query += ` ORDER BY rank LIMIT ?`
	args = append(args, limit*2)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: fts search: %w", err)
	}
	defer rows.Close()

	lowered := strings.ToLower(q)
	var out []ScoredRecord
	for rows.Next() {
		var r Record
		var rank float64
		if err := rows.Scan(&r.ID, &r.Provider, &r.Code, &r.DisplayName, &r.Description,
			&r.Keywords, &r.Unit, &r.Frequency, &r.Popularity, &rank); err != nil {
			return nil, err
		}
		sr := ScoredRecord{Record: r, Score: -rank + r.Popularity}
		sr.LowConfidence = descriptionOnlyMatch(lowered, r)
		out = append(out, sr)
	}
	return out, rows.Err()
}

// descriptionOnlyMatch reports whether none of the query terms appear in
// the display name or keywords, meaning the hit came from description
// text alone.
func descriptionOnlyMatch(loweredQuery string, r Record) bool {
	haystack := strings.ToLower(r.DisplayName + " " + r.Keywords)
	for _, term := range strings.Fields(loweredQuery) {
		if strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

// ftsQuery turns free text into an FTS5 MATCH expression: quoted terms
// joined by OR, so partial phrasing still hits.
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		cleaned := strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
				return r
			}
			return -1
		}, f)
		if cleaned == "" {
			continue
		}
		terms = append(terms, `"`+cleaned+`"`)
	}
	return strings.Join(terms, " OR ")
}

// normalizeAlias lower-cases and collapses whitespace so alias lookups
// are format-insensitive.
func normalizeAlias(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
