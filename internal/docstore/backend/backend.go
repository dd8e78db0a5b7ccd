// Package backend opens the configured document store adapter.
package backend

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"flowdistributor/internal/docstore"
	fsdocstore "flowdistributor/internal/docstore/firestore"
	"flowdistributor/internal/docstore/memory"
	pgdocstore "flowdistributor/internal/docstore/postgres"
)

const (
	Memory    = "memory"
	Postgres  = "postgres"
	Firestore = "firestore"
)

// Options selects and configures an adapter.
type Options struct {
	Backend              string
	DatabaseURL          string
	PollInterval         time.Duration
	FirestoreProject     string
	FirestoreCredentials string
	SnapshotFile         string
}

// Closer releases the adapter resources.
type Closer func() error

// Open connects the adapter named by opts.Backend.
func Open(ctx context.Context, opts Options, logger *log.Logger) (docstore.Store, Closer, error) {
	if logger == nil {
		logger = log.Default()
	}
	switch opts.Backend {
	case Memory, "":
		store := memory.New()
		if opts.SnapshotFile != "" {
			if err := store.LoadFile(opts.SnapshotFile); err != nil {
				return nil, nil, err
			}
			logger.Printf("docstore: loaded snapshot file=%s", opts.SnapshotFile)
		}
		return store, store.Close, nil
	case Postgres:
		db, err := sql.Open("pgx", opts.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("docstore: db open: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("docstore: db ping: %w", err)
		}
		store, err := pgdocstore.NewStore(db, pgdocstore.WithPollInterval(opts.PollInterval), pgdocstore.WithLogger(logger))
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, db.Close, nil
	case Firestore:
		store, err := fsdocstore.Open(ctx, opts.FirestoreProject, opts.FirestoreCredentials, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("docstore: unknown backend %q", opts.Backend)
	}
}
