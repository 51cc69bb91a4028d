// Package index implements the indicator-discovery index: a sqlite
// database with an FTS5 full-text table over indicator names,
// descriptions, and keywords, plus an alias table for well-known codes.
// The serving path is read-only; `index build` writes a new snapshot
// which Reload swaps in atomically.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Record is one indicator known to the index.
type Record struct {
	ID          int64   `json:"id"`
	Provider    string  `json:"provider"`
	Code        string  `json:"code"`
	DisplayName string  `json:"display_name"`
	Description string  `json:"description,omitempty"`
	Keywords    string  `json:"keywords,omitempty"`
	Unit        string  `json:"unit,omitempty"`
	Frequency   string  `json:"frequency,omitempty"`
	Popularity  float64 `json:"popularity"`
}

// ScoredRecord is a search hit. LowConfidence marks matches found only
// in the description text; the resolver treats those as candidates
// needing semantic validation rather than answers.
type ScoredRecord struct {
	Record
	Score         float64 `json:"score"`
	LowConfidence bool    `json:"low_confidence"`
}

// Index serves searches against the current snapshot.
type Index struct {
	mu         sync.RWMutex
	db         *sql.DB
	path       string
	generation int
	log        zerolog.Logger
}

// Open opens the snapshot at path for serving.
func Open(path string, log zerolog.Logger) (*Index, error) {
	db, err := openRO(path)
	if err != nil {
		return nil, err
	}
	return &Index{
		db:         db,
		path:       path,
		generation: 1,
		log:        log.With().Str("component", "index").Logger(),
	}, nil
}

func openRO(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: ping %s: %w", path, err)
	}
	return db, nil
}

// Reload swaps in a freshly built snapshot. Searches in flight finish
// against the old handle; new searches see the new one.
func (ix *Index) Reload(path string) error {
	db, err := openRO(path)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	old := ix.db
	ix.db = db
	ix.path = path
	ix.generation++
	gen := ix.generation
	ix.mu.Unlock()

	if old != nil {
		old.Close()
	}
	ix.log.Info().Int("generation", gen).Str("path", path).Msg("index snapshot reloaded")
	return nil
}

// Generation returns the snapshot generation counter.
func (ix *Index) Generation() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.generation
}

// Close releases the current snapshot.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.db == nil {
		return nil
	}
	err := ix.db.Close()
	ix.db = nil
	return err
}

// Stats reports the snapshot's record counts per provider.
func (ix *Index) Stats(ctx context.Context) (map[string]int, error) {
	ix.mu.RLock()
	db := ix.db
	ix.mu.RUnlock()
	if db == nil {
		return nil, fmt.Errorf("index: closed")
	}

	rows, err := db.QueryContext(ctx, `SELECT provider, COUNT(*) FROM indicators GROUP BY provider`)
	if err != nil {
		return nil, fmt.Errorf("index: stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var provider string
		var n int
		if err := rows.Scan(&provider, &n); err != nil {
			return nil, err
		}
		out[provider] = n
	}
	return out, rows.Err()
}
