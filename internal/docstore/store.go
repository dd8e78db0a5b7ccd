// Package docstore defines the document store port shared by the Firestore,
// Postgres and in-memory adapters.
package docstore

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrClosed is returned when using a closed store or subscription.
var ErrClosed = errors.New("docstore: closed")

// ErrEmptyCollection is returned when a collection name is missing.
var ErrEmptyCollection = errors.New("docstore: empty collection")

// Document is one raw record of a collection.
type Document struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// Clone returns a shallow copy with an independent top-level map.
func (d Document) Clone() Document {
	data := make(map[string]any, len(d.Data))
	for k, v := range d.Data {
		data[k] = v
	}
	return Document{ID: d.ID, Data: data}
}

// Snapshot is the full content of a collection at a point in time.
type Snapshot struct {
	Collection string
	Documents  []Document
	ReadAt     time.Time
}

// SnapshotHandler receives every snapshot of a subscription.
type SnapshotHandler func(Snapshot)

// ErrorHandler receives the terminal error of a subscription.
type ErrorHandler func(error)

// Subscription is a live feed on one collection.
// After Close returns no handler is invoked again.
type Subscription interface {
	Close() error
}

// Store is the external document store.
type Store interface {
	Subscribe(ctx context.Context, collection string, onSnapshot SnapshotHandler, onError ErrorHandler) (Subscription, error)
	Set(ctx context.Context, collection, id string, data map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Count(ctx context.Context, collection string) (int64, error)
	Sample(ctx context.Context, collection string, limit int) ([]Document, error)
}

// SortDocuments orders documents by id for deterministic output.
func SortDocuments(docs []Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
}
