// Package store provides SQLite-backed persistence for the local vector index.
// A built index (model, dimension, chunks and vectors) is written in a single
// transaction and can be re-opened by a later process without re-embedding.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/54b3r/cvgen-go/internal/rag"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// schemaVersion is bumped whenever the on-disk layout changes.
const schemaVersion = 1

// SQLiteStore is a rag.Persister backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB

	// path is the database location, kept for error messages.
	path string
}

var _ rag.Persister = (*SQLiteStore)(nil)

// DefaultDBPath is the default index location, relative to the working directory.
const DefaultDBPath = "cvgen_index/index.db"

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Parent directories are created. Use ":memory:" for an in-memory
// database in tests.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w: %w", filepath.Dir(path), rag.ErrIO, err)
		}
	}
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w: %w", path, rag.ErrIO, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS index_meta (
    id             INTEGER PRIMARY KEY CHECK(id = 1),
    schema_version INTEGER NOT NULL,
    model          TEXT    NOT NULL,
    dimension      INTEGER NOT NULL,
    metric         TEXT    NOT NULL,
    built_at       INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE TABLE IF NOT EXISTS index_entries (
    seq          INTEGER PRIMARY KEY,
    chunk_id     TEXT    NOT NULL,
    document_id  TEXT    NOT NULL,
    source_path  TEXT    NOT NULL,
    page         INTEGER NOT NULL,
    text         TEXT    NOT NULL,
    start_offset INTEGER NOT NULL,
    end_offset   INTEGER NOT NULL,
    vector       BLOB    NOT NULL  -- little-endian float32
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate %s: %w: %w", s.path, rag.ErrIO, err)
	}
	return nil
}

// Save replaces the persisted index with meta and entries in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, meta rag.IndexMeta, entries []rag.IndexEntry) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: save: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM index_entries`); err != nil {
		return fmt.Errorf("store: save: clear entries: %w", err)
	}
	const upsertMeta = `
INSERT INTO index_meta (id, schema_version, model, dimension, metric, built_at)
VALUES (1, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    schema_version = excluded.schema_version,
    model          = excluded.model,
    dimension      = excluded.dimension,
    metric         = excluded.metric,
    built_at       = excluded.built_at`
	if _, err = tx.ExecContext(ctx, upsertMeta, schemaVersion, meta.Model, meta.Dimension, meta.Metric, meta.BuiltAt.Unix()); err != nil {
		return fmt.Errorf("store: save: meta: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO index_entries (seq, chunk_id, document_id, source_path, page, text, start_offset, end_offset, vector)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: save: prepare: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		c := e.Chunk
		if _, err = stmt.ExecContext(ctx, i, c.ID, c.DocumentID, c.SourcePath, c.Page, c.Text,
			c.StartOffset, c.EndOffset, encodeVector(e.Embedding.Values)); err != nil {
			return fmt.Errorf("store: save: entry %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: save: commit: %w", err)
	}
	return nil
}

// Load returns the persisted index in insertion order. ok is false when no
// index has been saved yet.
func (s *SQLiteStore) Load(ctx context.Context) (rag.IndexMeta, []rag.IndexEntry, bool, error) {
	var meta rag.IndexMeta
	var version int
	var builtAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT schema_version, model, dimension, metric, built_at FROM index_meta WHERE id = 1`).
		Scan(&version, &meta.Model, &meta.Dimension, &meta.Metric, &builtAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rag.IndexMeta{}, nil, false, nil
	}
	if err != nil {
		return rag.IndexMeta{}, nil, false, fmt.Errorf("store: load meta: %w: %w", rag.ErrIO, err)
	}
	if version != schemaVersion {
		return rag.IndexMeta{}, nil, false, fmt.Errorf("store: %s has schema version %d, want %d: %w",
			s.path, version, schemaVersion, rag.ErrIO)
	}
	meta.BuiltAt = time.Unix(builtAt, 0).UTC()

	rows, err := s.db.QueryContext(ctx, `
SELECT chunk_id, document_id, source_path, page, text, start_offset, end_offset, vector
FROM   index_entries
ORDER  BY seq ASC`)
	if err != nil {
		return rag.IndexMeta{}, nil, false, fmt.Errorf("store: load entries: %w: %w", rag.ErrIO, err)
	}
	defer rows.Close()

	var entries []rag.IndexEntry
	for rows.Next() {
		var e rag.IndexEntry
		var blob []byte
		c := &e.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.SourcePath, &c.Page, &c.Text,
			&c.StartOffset, &c.EndOffset, &blob); err != nil {
			return rag.IndexMeta{}, nil, false, fmt.Errorf("store: load scan: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return rag.IndexMeta{}, nil, false, fmt.Errorf("store: load chunk %s: %w", c.ID, err)
		}
		e.Embedding = rag.Embedding{Model: meta.Model, Values: vec}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return rag.IndexMeta{}, nil, false, fmt.Errorf("store: load rows: %w", err)
	}
	return meta, entries, true, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
