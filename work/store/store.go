// Package store persists resolution results and embed failure history across
// runs. A recent resolution lets a run skip browser work for an unchanged
// item; repeated embed failures put a candidate on a cooldown list. The store
// is optional, a nil *Store is valid and every operation on it is a no-op.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"vodharvest/work/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS resolutions (
	embed_url   TEXT PRIMARY KEY,
	stream_url  TEXT NOT NULL,
	resolved_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS embed_failures (
	embed_url  TEXT PRIMARY KEY,
	failures   INTEGER NOT NULL DEFAULT 0,
	last_fail  TIMESTAMP NOT NULL
);
`

// Store wraps the database handle.
type Store struct {
	db *sql.DB
}

// Open creates or opens the store at path. An empty path disables persistence
// and returns a nil store. ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, nil
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying store schema: %w", err)
	}

	logger.Debug("store: opened %s", path)
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// RecentResolution returns a previously resolved stream URL for the embed if
// one was saved within ttl.
func (s *Store) RecentResolution(embedURL string, ttl time.Duration) (string, bool) {
	if s == nil || ttl <= 0 {
		return "", false
	}

	var streamURL string
	var resolvedAt time.Time
	err := s.db.QueryRow(
		`SELECT stream_url, resolved_at FROM resolutions WHERE embed_url = ?`,
		embedURL,
	).Scan(&streamURL, &resolvedAt)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.Warn("store: reading resolution: %v", err)
		}
		return "", false
	}

	if time.Since(resolvedAt) > ttl {
		return "", false
	}
	return streamURL, true
}

// SaveResolution records a successful resolution and clears any failure
// history for the embed.
func (s *Store) SaveResolution(embedURL, streamURL string) {
	if s == nil {
		return
	}

	_, err := s.db.Exec(
		`INSERT INTO resolutions (embed_url, stream_url, resolved_at) VALUES (?, ?, ?)
		 ON CONFLICT(embed_url) DO UPDATE SET stream_url = excluded.stream_url, resolved_at = excluded.resolved_at`,
		embedURL, streamURL, time.Now().UTC(),
	)
	if err != nil {
		logger.Warn("store: saving resolution: %v", err)
		return
	}

	if _, err := s.db.Exec(`DELETE FROM embed_failures WHERE embed_url = ?`, embedURL); err != nil {
		logger.Warn("store: clearing failure history: %v", err)
	}
}

// MarkEmbedFailure increments the failure count for the embed.
func (s *Store) MarkEmbedFailure(embedURL string) {
	if s == nil {
		return
	}

	_, err := s.db.Exec(
		`INSERT INTO embed_failures (embed_url, failures, last_fail) VALUES (?, 1, ?)
		 ON CONFLICT(embed_url) DO UPDATE SET failures = failures + 1, last_fail = excluded.last_fail`,
		embedURL, time.Now().UTC(),
	)
	if err != nil {
		logger.Warn("store: recording failure: %v", err)
	}
}

// IsDeadEmbed reports whether the embed has failed at least threshold times
// with the latest failure inside the cooldown window.
func (s *Store) IsDeadEmbed(embedURL string, threshold int, cooldown time.Duration) bool {
	if s == nil || threshold <= 0 {
		return false
	}

	var failures int
	var lastFail time.Time
	err := s.db.QueryRow(
		`SELECT failures, last_fail FROM embed_failures WHERE embed_url = ?`,
		embedURL,
	).Scan(&failures, &lastFail)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.Warn("store: reading failure history: %v", err)
		}
		return false
	}

	if failures < threshold {
		return false
	}
	if cooldown > 0 && time.Since(lastFail) > cooldown {
		return false
	}
	return true
}

// Prune deletes resolutions older than ttl and failure records whose cooldown
// has lapsed.
func (s *Store) Prune(ttl, cooldown time.Duration) {
	if s == nil {
		return
	}

	now := time.Now().UTC()
	if ttl > 0 {
		if _, err := s.db.Exec(`DELETE FROM resolutions WHERE resolved_at < ?`, now.Add(-ttl)); err != nil {
			logger.Warn("store: pruning resolutions: %v", err)
		}
	}
	if cooldown > 0 {
		if _, err := s.db.Exec(`DELETE FROM embed_failures WHERE last_fail < ?`, now.Add(-cooldown)); err != nil {
			logger.Warn("store: pruning failure history: %v", err)
		}
	}
}
