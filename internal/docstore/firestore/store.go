// Package firestore adapts a Cloud Firestore project to the docstore port.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/option"

	"flowdistributor/internal/docstore"
)

// Store wraps a Firestore client.
type Store struct {
	client *firestore.Client
	logger *log.Logger
}

// Open connects to a project. credentialsFile may be empty to use
// application default credentials.
func Open(ctx context.Context, projectID, credentialsFile string, logger *log.Logger) (*Store, error) {
	if projectID == "" {
		return nil, errors.New("firestore docstore: empty project id")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore docstore: client: %w", err)
	}
	return &Store{client: client, logger: logger}, nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Subscribe listens to query snapshots of the whole collection.
func (s *Store) Subscribe(ctx context.Context, collection string, onSnapshot docstore.SnapshotHandler, onError docstore.ErrorHandler) (docstore.Subscription, error) {
	if collection == "" {
		return nil, docstore.ErrEmptyCollection
	}
	if onSnapshot == nil {
		return nil, errors.New("firestore docstore: nil snapshot handler")
	}
	ctx, cancel := context.WithCancel(ctx)
	it := s.client.Collection(collection).Snapshots(ctx)
	sub := &subscription{cancel: cancel, stop: it.Stop, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		for {
			snap, err := it.Next()
			if err == nil {
				var refs []*firestore.DocumentSnapshot
				refs, err = snap.Documents.GetAll()
				if err == nil {
					if ctx.Err() != nil {
						return
					}
					onSnapshot(docstore.Snapshot{
						Collection: collection,
						Documents:  convert(refs),
						ReadAt:     snap.ReadTime,
					})
					continue
				}
			}
			if ctx.Err() != nil {
				return
			}
			if s.logger != nil {
				s.logger.Printf("firestore docstore: subscription collection=%s failed: %v", collection, err)
			}
			if onError != nil {
				onError(fmt.Errorf("firestore docstore: listen %s: %w", collection, err))
			}
			return
		}
	}()
	return sub, nil
}

// Set replaces a document.
func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if collection == "" {
		return docstore.ErrEmptyCollection
	}
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, data); err != nil {
		return fmt.Errorf("firestore docstore: set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if collection == "" {
		return docstore.ErrEmptyCollection
	}
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("firestore docstore: delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Count runs a server-side count aggregation.
func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	if collection == "" {
		return 0, docstore.ErrEmptyCollection
	}
	res, err := s.client.Collection(collection).NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("firestore docstore: count %s: %w", collection, err)
	}
	value, ok := res["all"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("firestore docstore: count %s: unexpected result %T", collection, res["all"])
	}
	return value.GetIntegerValue(), nil
}

// Sample fetches up to limit documents.
func (s *Store) Sample(ctx context.Context, collection string, limit int) ([]docstore.Document, error) {
	if collection == "" {
		return nil, docstore.ErrEmptyCollection
	}
	refs, err := s.client.Collection(collection).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("firestore docstore: sample %s: %w", collection, err)
	}
	return convert(refs), nil
}

func convert(refs []*firestore.DocumentSnapshot) []docstore.Document {
	docs := make([]docstore.Document, 0, len(refs))
	for _, ref := range refs {
		if ref == nil || !ref.Exists() {
			continue
		}
		docs = append(docs, docstore.Document{ID: ref.Ref.ID, Data: ref.Data()})
	}
	docstore.SortDocuments(docs)
	return docs
}

type subscription struct {
	cancel context.CancelFunc
	stop   func()
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.stop()
	})
	<-s.done
	return nil
}
