package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"flowdistributor/internal/docstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
)`

// Store keeps documents in a single JSONB table. Subscriptions poll a
// content fingerprint and reload the collection when it changes.
type Store struct {
	db       *sql.DB
	interval time.Duration
	logger   *log.Logger
}

// Option configures the store.
type Option func(*Store)

// WithPollInterval sets the subscription poll interval.
func WithPollInterval(interval time.Duration) Option {
	return func(s *Store) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore constructs a Postgres document store.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("postgres docstore: nil db")
	}
	s := &Store{db: db, interval: 2 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureSchema creates the documents table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres docstore: schema: %w", err)
	}
	return nil
}

// Set upserts a document.
func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if collection == "" {
		return docstore.ErrEmptyCollection
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("postgres docstore: encode %s/%s: %w", collection, id, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO documents (collection, id, data, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (collection, id) DO UPDATE SET
	data = EXCLUDED.data,
	updated_at = EXCLUDED.updated_at`,
		collection, id, payload,
	)
	if err != nil {
		return fmt.Errorf("postgres docstore: set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if collection == "" {
		return docstore.ErrEmptyCollection
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id); err != nil {
		return fmt.Errorf("postgres docstore: delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Count returns the number of documents in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	if collection == "" {
		return 0, docstore.ErrEmptyCollection
	}
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE collection = $1`, collection).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres docstore: count %s: %w", collection, err)
	}
	return count, nil
}

// Sample returns up to limit documents ordered by id.
func (s *Store) Sample(ctx context.Context, collection string, limit int) ([]docstore.Document, error) {
	if collection == "" {
		return nil, docstore.ErrEmptyCollection
	}
	if limit < 0 {
		limit = 0
	}
	return s.query(ctx, `SELECT id, data FROM documents WHERE collection = $1 ORDER BY id LIMIT $2`, collection, limit)
}

func (s *Store) list(ctx context.Context, collection string) ([]docstore.Document, error) {
	return s.query(ctx, `SELECT id, data FROM documents WHERE collection = $1 ORDER BY id`, collection)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]docstore.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres docstore: query: %w", err)
	}
	defer rows.Close()

	var out []docstore.Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		data, err := decodeData(raw)
		if err != nil {
			return nil, fmt.Errorf("postgres docstore: decode %s: %w", id, err)
		}
		out = append(out, docstore.Document{ID: id, Data: data})
	}
	return out, rows.Err()
}

func (s *Store) fingerprint(ctx context.Context, collection string) (string, error) {
	var (
		count int64
		hash  string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(md5(string_agg(id || ':' || md5(data::text), ',' ORDER BY id)), '')
FROM documents WHERE collection = $1`, collection).Scan(&count, &hash)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d/%s", count, hash), nil
}

// Subscribe polls the collection and delivers a snapshot on start and on every change.
// A query failure ends the subscription through onError.
func (s *Store) Subscribe(ctx context.Context, collection string, onSnapshot docstore.SnapshotHandler, onError docstore.ErrorHandler) (docstore.Subscription, error) {
	if collection == "" {
		return nil, docstore.ErrEmptyCollection
	}
	if onSnapshot == nil {
		return nil, errors.New("postgres docstore: nil snapshot handler")
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	go s.poll(ctx, sub, collection, onSnapshot, onError)
	return sub, nil
}

func (s *Store) poll(ctx context.Context, sub *subscription, collection string, onSnapshot docstore.SnapshotHandler, onError docstore.ErrorHandler) {
	defer close(sub.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	last := ""
	for {
		fp, err := s.fingerprint(ctx, collection)
		if err == nil && fp != last {
			var docs []docstore.Document
			docs, err = s.list(ctx, collection)
			if err == nil {
				last = fp
				if ctx.Err() != nil {
					return
				}
				onSnapshot(docstore.Snapshot{Collection: collection, Documents: docs, ReadAt: time.Now()})
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if s.logger != nil {
				s.logger.Printf("postgres docstore: subscription collection=%s failed: %v", collection, err)
			}
			if onError != nil {
				onError(fmt.Errorf("postgres docstore: poll %s: %w", collection, err))
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

func decodeData(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
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
