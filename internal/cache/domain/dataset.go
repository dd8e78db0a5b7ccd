package cache

import (
	"context"
	"time"

	"flowdistributor/internal/docstore"
)

// Dataset is an immutable copy of the cached collections handed to listeners.
type Dataset struct {
	State       State
	Version     uint64
	UpdatedAt   time.Time
	collections map[string][]docstore.Document
}

// NewDataset builds a dataset from owned collections; callers must not keep
// references to the slices.
func NewDataset(state State, version uint64, updatedAt time.Time, collections map[string][]docstore.Document) Dataset {
	if collections == nil {
		collections = map[string][]docstore.Document{}
	}
	return Dataset{State: state, Version: version, UpdatedAt: updatedAt, collections: collections}
}

// Documents returns a copy of a collection ordered by id.
func (d Dataset) Documents(collection string) []docstore.Document {
	docs := d.collections[collection]
	out := make([]docstore.Document, len(docs))
	for i, doc := range docs {
		out[i] = doc.Clone()
	}
	return out
}

// Collections returns the collection names present in the dataset.
func (d Dataset) Collections() []string {
	out := make([]string, 0, len(d.collections))
	for name := range d.collections {
		out = append(out, name)
	}
	return out
}

// Size returns the total document count.
func (d Dataset) Size() int {
	n := 0
	for _, docs := range d.collections {
		n += len(docs)
	}
	return n
}

// LocalStore persists the offline copy of the collections.
type LocalStore interface {
	Load(ctx context.Context) (map[string][]docstore.Document, error)
	ReplaceCollection(ctx context.Context, collection string, docs []docstore.Document) error
	Put(ctx context.Context, collection string, doc docstore.Document) error
	Remove(ctx context.Context, collection, id string) error
	Clear(ctx context.Context) error
}
