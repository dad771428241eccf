package evidence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Cache stores evidence records in SQLite keyed by URL and content hash.
// Reads are concurrent; writes go through a single writer lock because
// SQLite serializes writers anyway.
type Cache struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// NewCache opens (or creates) the cache database at path.
func NewCache(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open evidence cache: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS evidence_cache (
			url          TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			fetched_at   INTEGER NOT NULL,
			record       TEXT NOT NULL,
			PRIMARY KEY (url, content_hash)
		);
		CREATE INDEX IF NOT EXISTS idx_evidence_url ON evidence_cache(url, fetched_at);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init evidence cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Get returns the freshest cached record for url within ttl.
func (c *Cache) Get(url string, ttl time.Duration) (*Record, bool, error) {
	cutoff := time.Now().Add(-ttl).Unix()
	row := c.db.QueryRow(`
		SELECT record FROM evidence_cache
		WHERE url = ? AND fetched_at >= ?
		ORDER BY fetched_at DESC LIMIT 1`, url, cutoff)

	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, false, fmt.Errorf("decode cached record: %w", err)
	}
	return &rec, true, nil
}

// Put stores a record; a record for the same URL and hash is replaced,
// refreshing its TTL.
func (c *Cache) Put(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.db.Exec(`
		INSERT INTO evidence_cache (url, content_hash, fetched_at, record)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url, content_hash) DO UPDATE SET
			fetched_at = excluded.fetched_at,
			record     = excluded.record`,
		rec.SourceURL, rec.ContentHash, rec.FetchedAt.Unix(), string(data))
	if err != nil {
		return fmt.Errorf("cache insert: %w", err)
	}
	return nil
}

// Prune deletes entries older than ttl.
func (c *Cache) Prune(ttl time.Duration) (int64, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	res, err := c.db.Exec(`DELETE FROM evidence_cache WHERE fetched_at < ?`,
		time.Now().Add(-ttl).Unix())
	if err != nil {
		return 0, fmt.Errorf("cache prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close releases the database handle.
func (c *Cache) Close() error { return c.db.Close() }
