package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"flowdistributor/internal/docstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (collection, id)
)`

// LocalStore persists the offline copy in a SQLite file.
type LocalStore struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*LocalStore, error) {
	if path == "" {
		return nil, errors.New("sqlite cache: empty path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite cache: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	store, err := NewLocalStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewLocalStore wraps an open database.
func NewLocalStore(ctx context.Context, db *sql.DB) (*LocalStore, error) {
	if db == nil {
		return nil, errors.New("sqlite cache: nil db")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("sqlite cache: schema: %w", err)
	}
	return &LocalStore{db: db}, nil
}

// DB exposes the handle for metrics.
func (s *LocalStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// Load returns every stored collection ordered by id.
func (s *LocalStore) Load(ctx context.Context) (map[string][]docstore.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT collection, id, data FROM cache_documents ORDER BY collection, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite cache: load: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]docstore.Document)
	for rows.Next() {
		var collection, id, raw string
		if err := rows.Scan(&collection, &id, &raw); err != nil {
			return nil, err
		}
		data, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("sqlite cache: decode %s/%s: %w", collection, id, err)
		}
		out[collection] = append(out[collection], docstore.Document{ID: id, Data: data})
	}
	return out, rows.Err()
}

// ReplaceCollection overwrites a collection in one transaction.
func (s *LocalStore) ReplaceCollection(ctx context.Context, collection string, docs []docstore.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_documents WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("sqlite cache: replace %s: %w", collection, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cache_documents (collection, id, data, updated_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, doc := range docs {
		raw, err := json.Marshal(doc.Data)
		if err != nil {
			return fmt.Errorf("sqlite cache: encode %s/%s: %w", collection, doc.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, collection, doc.ID, string(raw), now); err != nil {
			return fmt.Errorf("sqlite cache: insert %s/%s: %w", collection, doc.ID, err)
		}
	}
	return tx.Commit()
}

// Put upserts a document.
func (s *LocalStore) Put(ctx context.Context, collection string, doc docstore.Document) error {
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return fmt.Errorf("sqlite cache: encode %s/%s: %w", collection, doc.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO cache_documents (collection, id, data, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, doc.ID, string(raw), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite cache: put %s/%s: %w", collection, doc.ID, err)
	}
	return nil
}

// Remove deletes a document.
func (s *LocalStore) Remove(ctx context.Context, collection, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_documents WHERE collection = ? AND id = ?`, collection, id); err != nil {
		return fmt.Errorf("sqlite cache: remove %s/%s: %w", collection, id, err)
	}
	return nil
}

// Clear drops every cached document.
func (s *LocalStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_documents`); err != nil {
		return fmt.Errorf("sqlite cache: clear: %w", err)
	}
	return nil
}

func decode(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}
