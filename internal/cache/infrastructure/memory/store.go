package memory

import (
	"context"
	"sync"

	"flowdistributor/internal/docstore"
)

// LocalStore keeps the offline copy in memory.
type LocalStore struct {
	mu   sync.RWMutex
	data map[string]map[string]docstore.Document
}

// NewLocalStore constructs an empty store.
func NewLocalStore() *LocalStore {
	return &LocalStore{data: make(map[string]map[string]docstore.Document)}
}

// Load returns every stored collection.
func (s *LocalStore) Load(_ context.Context) (map[string][]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]docstore.Document, len(s.data))
	for name, docs := range s.data {
		list := make([]docstore.Document, 0, len(docs))
		for _, doc := range docs {
			list = append(list, doc.Clone())
		}
		docstore.SortDocuments(list)
		out[name] = list
	}
	return out, nil
}

// ReplaceCollection overwrites a collection.
func (s *LocalStore) ReplaceCollection(_ context.Context, collection string, docs []docstore.Document) error {
	coll := make(map[string]docstore.Document, len(docs))
	for _, doc := range docs {
		coll[doc.ID] = doc.Clone()
	}
	s.mu.Lock()
	s.data[collection] = coll
	s.mu.Unlock()
	return nil
}

// Put upserts a document.
func (s *LocalStore) Put(_ context.Context, collection string, doc docstore.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.data[collection]
	if coll == nil {
		coll = make(map[string]docstore.Document)
		s.data[collection] = coll
	}
	coll[doc.ID] = doc.Clone()
	return nil
}

// Remove deletes a document.
func (s *LocalStore) Remove(_ context.Context, collection, id string) error {
	s.mu.Lock()
	delete(s.data[collection], id)
	s.mu.Unlock()
	return nil
}

// Clear drops everything.
func (s *LocalStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.data = make(map[string]map[string]docstore.Document)
	s.mu.Unlock()
	return nil
}
