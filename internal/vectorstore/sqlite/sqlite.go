package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"pdfrag/internal/domain"
	"pdfrag/internal/vecenc"
	"pdfrag/internal/vectorstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS indexes (
	name      TEXT PRIMARY KEY,
	dimension INTEGER NOT NULL,
	metric    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
	index_name TEXT NOT NULL,
	id         TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	metadata   TEXT NOT NULL,
	PRIMARY KEY (index_name, id)
);
`

// Storage is a persistent local vector store on SQLite. Similarity is
// computed in process over every record of the index.
type Storage struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps writes serialised and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close closes the database.
func (s *Storage) Close() error { return s.db.Close() }

// IndexExists reports whether an index with name exists.
func (s *Storage) IndexExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM indexes WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", name, err)
	}
	return n > 0, nil
}

// CreateIndex creates a new index. Creating an existing index is an error.
func (s *Storage) CreateIndex(ctx context.Context, name string, dimension int, metric domain.Metric) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO indexes (name, dimension, metric) VALUES (?, ?, ?)`, name, dimension, string(metric))
	if err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	return nil
}

// DeleteIndex drops an index and all of its records.
func (s *Storage) DeleteIndex(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM indexes WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete index %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrIndexNotFound, name)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE index_name = ?`, name); err != nil {
		return fmt.Errorf("delete records of %s: %w", name, err)
	}
	return tx.Commit()
}

func (s *Storage) describe(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, name string) (int, domain.Metric, error) {
	var dim int
	var metric string
	err := q.QueryRowContext(ctx, `SELECT dimension, metric FROM indexes WHERE name = ?`, name).Scan(&dim, &metric)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", fmt.Errorf("%w: %s", domain.ErrIndexNotFound, name)
	}
	if err != nil {
		return 0, "", fmt.Errorf("describe index %s: %w", name, err)
	}
	return dim, domain.Metric(metric), nil
}

// Upsert inserts or replaces records in one transaction.
func (s *Storage) Upsert(ctx context.Context, name string, records []domain.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	dim, _, err := s.describe(ctx, tx, name)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (index_name, id, embedding, metadata) VALUES (?, ?, ?, ?)
		ON CONFLICT (index_name, id) DO UPDATE SET embedding = excluded.embedding, metadata = excluded.metadata`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if r.ID == "" {
			return errors.New("record with empty id")
		}
		if len(r.Vector) != dim {
			return fmt.Errorf("vector dimension mismatch for %s: got %d, want %d", r.ID, len(r.Vector), dim)
		}
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata for %s: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, name, r.ID, vecenc.Encode(r.Vector), string(meta)); err != nil {
			return fmt.Errorf("upsert %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// Query returns the topK records closest to vector, best first. Records
// are scanned in rowid order so ties resolve by insertion order.
func (s *Storage) Query(ctx context.Context, name string, vector []float32, topK int, includeMetadata bool) ([]domain.Match, error) {
	dim, metric, err := s.describe(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("query dimension mismatch: got %d, want %d", len(vector), dim)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding, metadata FROM records WHERE index_name = ? ORDER BY rowid`, name)
	if err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		var id, meta string
		var blob []byte
		if err := rows.Scan(&id, &blob, &meta); err != nil {
			return nil, err
		}
		vec, err := vecenc.Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", id, err)
		}
		m := domain.Match{ID: id, Score: vectorstore.Score(metric, vec, vector)}
		if includeMetadata {
			if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
			}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vectorstore.TopK(matches, topK), nil
}

// Count returns the number of records in an index.
func (s *Storage) Count(ctx context.Context, name string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE index_name = ?`, name).Scan(&n)
	return n, err
}
