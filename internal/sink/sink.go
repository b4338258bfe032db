// Package sink persists consolidated book records beyond the cache so
// they survive cache expiry and can be listed or re-exported.
package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"bookdex/internal/book"
)

// Sink is the persistence boundary of the pipeline.
type Sink interface {
	Upsert(ctx context.Context, rec *book.Record) error
	Get(ctx context.Context, isbn13 string) (*book.Record, bool, error)
	List(ctx context.Context, limit int) ([]*book.Record, error)
	Close() error
}

// SQLite stores one row per ISBN-13, the record serialized as JSON.
type SQLite struct {
	db *sql.DB
}

var _ Sink = (*SQLite)(nil)

// OpenSQLite opens or creates the book database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening book database: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS books (
		isbn13     TEXT PRIMARY KEY,
		data       BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating books schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Upsert writes the record keyed by its ISBN-13, replacing any earlier
// version.
func (s *SQLite) Upsert(ctx context.Context, rec *book.Record) error {
	if rec.ISBN13 == "" {
		return errors.New("record has no ISBN-13")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.ISBN13, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO books (isbn13, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(isbn13) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		rec.ISBN13, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("storing record %s: %w", rec.ISBN13, err)
	}
	return nil
}

// Get returns the stored record for an ISBN-13, with ok reporting
// whether one exists.
func (s *SQLite) Get(ctx context.Context, isbn13 string) (*book.Record, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM books WHERE isbn13 = ?`, isbn13).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading record %s: %w", isbn13, err)
	}

	var rec book.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("decoding record %s: %w", isbn13, err)
	}
	return &rec, true, nil
}

// List returns the most recently updated records, newest first.
func (s *SQLite) List(ctx context.Context, limit int) ([]*book.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM books ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var records []*book.Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		var rec book.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decoding record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
