// Package cache stores accepted metadata records in SQLite with a
// time-to-live, keyed by normalized lookup key.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"bookdex/internal/book"
)

const (
	// DefaultTTL is the time-to-live for accepted records (30 days).
	DefaultTTL = 720 * time.Hour
	// DefaultNegativeTTL is the time-to-live for known-miss markers (7 days).
	DefaultNegativeTTL = 168 * time.Hour
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	cache_key   TEXT PRIMARY KEY,
	data        TEXT NOT NULL,
	fetched_at  INTEGER NOT NULL,
	ttl_seconds INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS misses (
	cache_key   TEXT PRIMARY KEY,
	recorded_at INTEGER NOT NULL,
	ttl_seconds INTEGER NOT NULL
);
`

// Store is a SQLite-backed record cache. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("connecting to cache database: %w", err), closeErr)
	}

	if _, err := db.Exec(schema); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("creating cache tables: %w", err), closeErr)
	}

	return &Store{db: db, path: path, now: time.Now}, nil
}

// SetClock replaces the store's clock. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get returns the cached record for key if one exists inside its TTL.
// Expired rows are deleted on the way out and never served.
func (s *Store) Get(key string) (*book.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		data       string
		fetchedAt  int64
		ttlSeconds int64
	)
	err := s.db.QueryRow(
		"SELECT data, fetched_at, ttl_seconds FROM records WHERE cache_key = ?", key,
	).Scan(&data, &fetchedAt, &ttlSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}

	expiry := time.Unix(fetchedAt, 0).Add(time.Duration(ttlSeconds) * time.Second)
	if s.now().After(expiry) {
		if _, err := s.db.Exec("DELETE FROM records WHERE cache_key = ?", key); err != nil {
			slog.Warn("failed to delete expired cache entry", "key", key, "error", err)
		}
		return nil, false, nil
	}

	var rec book.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, false, fmt.Errorf("decoding cache entry: %w", err)
	}
	return &rec, true, nil
}

// Put stores a record under key with the given TTL, replacing any
// existing entry. A successful write clears a previous miss marker.
func (s *Store) Put(key string, rec *book.Record, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO records (cache_key, data, fetched_at, ttl_seconds) VALUES (?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET data = excluded.data,
		 fetched_at = excluded.fetched_at, ttl_seconds = excluded.ttl_seconds`,
		key, string(data), s.now().Unix(), int64(ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}

	if _, err := s.db.Exec("DELETE FROM misses WHERE cache_key = ?", key); err != nil {
		slog.Warn("failed to clear miss marker", "key", key, "error", err)
	}
	return nil
}

// Invalidate removes the entry (and any miss marker) for key.
func (s *Store) Invalidate(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM records WHERE cache_key = ?", key); err != nil {
		return fmt.Errorf("invalidating cache entry: %w", err)
	}
	if _, err := s.db.Exec("DELETE FROM misses WHERE cache_key = ?", key); err != nil {
		return fmt.Errorf("invalidating miss marker: %w", err)
	}
	return nil
}

// Clear removes every cached record and miss marker. Returns the number
// of records removed.
func (s *Store) Clear() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM records")
	if err != nil {
		return 0, fmt.Errorf("clearing cache: %w", err)
	}
	if _, err := s.db.Exec("DELETE FROM misses"); err != nil {
		return 0, fmt.Errorf("clearing miss markers: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting cleared rows: %w", err)
	}
	slog.Debug("cache cleared", "rows_deleted", rows)
	return rows, nil
}

// PutMiss records that the full source chain found nothing for key.
// Miss markers live in their own table and are never served as records;
// they only let the service short-circuit repeat known-miss lookups.
func (s *Store) PutMiss(key string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultNegativeTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO misses (cache_key, recorded_at, ttl_seconds) VALUES (?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET recorded_at = excluded.recorded_at,
		 ttl_seconds = excluded.ttl_seconds`,
		key, s.now().Unix(), int64(ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("writing miss marker: %w", err)
	}
	return nil
}

// KnownMiss reports whether key has an unexpired miss marker.
func (s *Store) KnownMiss(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		recordedAt int64
		ttlSeconds int64
	)
	err := s.db.QueryRow(
		"SELECT recorded_at, ttl_seconds FROM misses WHERE cache_key = ?", key,
	).Scan(&recordedAt, &ttlSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading miss marker: %w", err)
	}

	expiry := time.Unix(recordedAt, 0).Add(time.Duration(ttlSeconds) * time.Second)
	if s.now().After(expiry) {
		if _, err := s.db.Exec("DELETE FROM misses WHERE cache_key = ?", key); err != nil {
			slog.Warn("failed to delete expired miss marker", "key", key, "error", err)
		}
		return false, nil
	}
	return true, nil
}
