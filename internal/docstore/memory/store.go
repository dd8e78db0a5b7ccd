// Package memory is an in-process document store. It backs demo mode with a
// static JSON snapshot and lets tests inject write and feed failures.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"flowdistributor/internal/docstore"
)

// WriteHook runs before every write; a non-nil error aborts the write.
type WriteHook func(op, collection, id string) error

// Store keeps collections in memory and pushes full snapshots to subscribers.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	subs        map[string]map[*subscription]struct{}
	hook        WriteHook
	clock       func() time.Time
	closed      bool
}

// Option configures the store.
type Option func(*Store)

// WithWriteHook installs a write hook.
func WithWriteHook(hook WriteHook) Option {
	return func(s *Store) {
		s.hook = hook
	}
}

// WithClock overrides snapshot read times.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New constructs an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]map[string]any),
		subs:        make(map[string]map[*subscription]struct{}),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetWriteHook replaces the write hook at runtime.
func (s *Store) SetWriteHook(hook WriteHook) {
	s.mu.Lock()
	s.hook = hook
	s.mu.Unlock()
}

// Seed replaces a collection without running the write hook.
func (s *Store) Seed(collection string, docs []docstore.Document) {
	s.mu.Lock()
	coll := make(map[string]map[string]any, len(docs))
	for _, doc := range docs {
		coll[doc.ID] = doc.Clone().Data
	}
	s.collections[collection] = coll
	s.mu.Unlock()
	s.signal(collection)
}

// Subscribe delivers the current content immediately and again after every change.
func (s *Store) Subscribe(ctx context.Context, collection string, onSnapshot docstore.SnapshotHandler, onError docstore.ErrorHandler) (docstore.Subscription, error) {
	if collection == "" {
		return nil, docstore.ErrEmptyCollection
	}
	if onSnapshot == nil {
		return nil, errors.New("memory store: nil snapshot handler")
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, docstore.ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		store:      s,
		collection: collection,
		onSnapshot: onSnapshot,
		onError:    onError,
		dirty:      make(chan struct{}, 1),
		failed:     make(chan error, 1),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	if s.subs[collection] == nil {
		s.subs[collection] = make(map[*subscription]struct{})
	}
	s.subs[collection][sub] = struct{}{}
	s.mu.Unlock()

	sub.dirty <- struct{}{}
	go sub.run(ctx)
	return sub, nil
}

// Fail terminates every live subscription on collection with err.
func (s *Store) Fail(collection string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for sub := range s.subs[collection] {
		select {
		case sub.failed <- err:
		default:
		}
	}
}

// Set creates or replaces a document.
func (s *Store) Set(_ context.Context, collection, id string, data map[string]any) error {
	if collection == "" {
		return docstore.ErrEmptyCollection
	}
	if err := s.runHook("set", collection, id); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return docstore.ErrClosed
	}
	coll := s.collections[collection]
	if coll == nil {
		coll = make(map[string]map[string]any)
		s.collections[collection] = coll
	}
	coll[id] = docstore.Document{ID: id, Data: data}.Clone().Data
	s.mu.Unlock()
	s.signal(collection)
	return nil
}

// Delete removes a document; deleting a missing document succeeds.
func (s *Store) Delete(_ context.Context, collection, id string) error {
	if collection == "" {
		return docstore.ErrEmptyCollection
	}
	if err := s.runHook("delete", collection, id); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return docstore.ErrClosed
	}
	delete(s.collections[collection], id)
	s.mu.Unlock()
	s.signal(collection)
	return nil
}

// Count returns the number of documents in collection.
func (s *Store) Count(_ context.Context, collection string) (int64, error) {
	if collection == "" {
		return 0, docstore.ErrEmptyCollection
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.collections[collection])), nil
}

// Sample returns up to limit documents ordered by id.
func (s *Store) Sample(_ context.Context, collection string, limit int) ([]docstore.Document, error) {
	if collection == "" {
		return nil, docstore.ErrEmptyCollection
	}
	docs := s.documents(collection)
	if limit >= 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// Close terminates all subscriptions.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	var subs []*subscription
	for _, set := range s.subs {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}

func (s *Store) runHook(op, collection, id string) error {
	s.mu.RLock()
	hook := s.hook
	s.mu.RUnlock()
	if hook == nil {
		return nil
	}
	if err := hook(op, collection, id); err != nil {
		return fmt.Errorf("memory store: %s %s/%s: %w", op, collection, id, err)
	}
	return nil
}

func (s *Store) documents(collection string) []docstore.Document {
	s.mu.RLock()
	coll := s.collections[collection]
	docs := make([]docstore.Document, 0, len(coll))
	for id, data := range coll {
		docs = append(docs, docstore.Document{ID: id, Data: data}.Clone())
	}
	s.mu.RUnlock()
	docstore.SortDocuments(docs)
	return docs
}

func (s *Store) signal(collection string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for sub := range s.subs[collection] {
		select {
		case sub.dirty <- struct{}{}:
		default:
		}
	}
}

func (s *Store) remove(sub *subscription) {
	s.mu.Lock()
	delete(s.subs[sub.collection], sub)
	s.mu.Unlock()
}

type subscription struct {
	store      *Store
	collection string
	onSnapshot docstore.SnapshotHandler
	onError    docstore.ErrorHandler
	dirty      chan struct{}
	failed     chan error
	cancel     context.CancelFunc
	done       chan struct{}
	once       sync.Once
}

func (sub *subscription) run(ctx context.Context) {
	defer close(sub.done)
	defer sub.store.remove(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.failed:
			if sub.onError != nil && ctx.Err() == nil {
				sub.onError(err)
			}
			return
		case <-sub.dirty:
			if ctx.Err() != nil {
				return
			}
			sub.onSnapshot(docstore.Snapshot{
				Collection: sub.collection,
				Documents:  sub.store.documents(sub.collection),
				ReadAt:     sub.store.clock(),
			})
		}
	}
}

// Close stops the feed and waits for an in-flight handler to return.
func (sub *subscription) Close() error {
	sub.once.Do(sub.cancel)
	<-sub.done
	return nil
}
