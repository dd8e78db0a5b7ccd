package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	cache "flowdistributor/internal/cache/domain"
	"flowdistributor/internal/docstore"
	"flowdistributor/internal/observability/metrics"
)

// Listener receives a dataset copy after every change.
type Listener func(cache.Dataset)

// Status summarizes the reconciler for the API.
type Status struct {
	State       cache.State    `json:"state"`
	LastError   string         `json:"last_error,omitempty"`
	Version     uint64         `json:"version"`
	Documents   map[string]int `json:"documents"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Subscribers int            `json:"subscriptions"`
}

// Reconciler mirrors remote collections into a local store and applies
// optimistic writes. Writes are serialized; remote snapshots replace whole
// collections.
type Reconciler struct {
	remote      docstore.Store
	local       cache.LocalStore
	collections []string
	known       map[string]struct{}
	logger      *log.Logger
	clock       func() time.Time

	writeMu  sync.Mutex
	notifyMu sync.Mutex

	mu         sync.Mutex
	state      cache.State
	data       map[string]map[string]docstore.Document
	replaced   map[string]uint64
	subs       []docstore.Subscription
	subFailed  bool
	lastErr    error
	version    uint64
	updatedAt  time.Time
	generation uint64
	started    bool
	closed     bool
	runCtx     context.Context
	listeners  []Listener
}

// Option customizes the reconciler.
type Option func(*Reconciler)

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithClock overrides time for dataset stamps.
func WithClock(clock func() time.Time) Option {
	return func(r *Reconciler) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithListener registers a change listener.
func WithListener(listener Listener) Option {
	return func(r *Reconciler) {
		if listener != nil {
			r.listeners = append(r.listeners, listener)
		}
	}
}

// NewReconciler constructs a reconciler in the Offline state.
func NewReconciler(remote docstore.Store, local cache.LocalStore, collections []string, opts ...Option) (*Reconciler, error) {
	if remote == nil {
		return nil, errors.New("cache: nil remote store")
	}
	if local == nil {
		return nil, errors.New("cache: nil local store")
	}
	if len(collections) == 0 {
		return nil, errors.New("cache: no collections")
	}
	r := &Reconciler{
		remote:      remote,
		local:       local,
		collections: append([]string(nil), collections...),
		known:       make(map[string]struct{}, len(collections)),
		clock:       time.Now,
		state:       cache.StateOffline,
		data:        make(map[string]map[string]docstore.Document),
		replaced:    make(map[string]uint64),
	}
	for _, c := range collections {
		if c == "" {
			return nil, docstore.ErrEmptyCollection
		}
		r.known[c] = struct{}{}
	}
	for _, opt := range opts {
		opt(r)
	}
	metrics.SetCacheState(string(r.state), cache.AllStates)
	return r, nil
}

// OnChange registers a listener after construction.
func (r *Reconciler) OnChange(listener Listener) {
	if listener == nil {
		return
	}
	r.notifyMu.Lock()
	r.listeners = append(r.listeners, listener)
	r.notifyMu.Unlock()
}

// Start loads the local copy and subscribes to every collection. ctx bounds
// the subscriptions' lifetime.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return cache.ErrClosed
	}
	if r.started {
		r.mu.Unlock()
		return errors.New("cache: already started")
	}
	r.started = true
	r.runCtx = ctx
	r.mu.Unlock()

	stored, err := r.local.Load(ctx)
	if err != nil {
		return fmt.Errorf("cache: load local: %w", err)
	}
	r.mu.Lock()
	for collection, docs := range stored {
		if _, ok := r.known[collection]; ok {
			r.data[collection] = index(docs)
		}
	}
	r.touchLocked()
	r.mu.Unlock()
	r.publish()

	return r.subscribe(ctx)
}

func (r *Reconciler) subscribe(ctx context.Context) error {
	r.mu.Lock()
	generation := r.generation
	r.mu.Unlock()

	subs := make([]docstore.Subscription, 0, len(r.collections))
	for _, collection := range r.collections {
		collection := collection
		sub, err := r.remote.Subscribe(ctx, collection,
			func(snap docstore.Snapshot) { r.handleSnapshot(generation, snap) },
			func(err error) { r.handleFailure(generation, collection, err) },
		)
		if err != nil {
			for _, s := range subs {
				_ = s.Close()
			}
			r.handleFailure(generation, collection, err)
			return fmt.Errorf("%w: %s: %v", cache.ErrSubscription, collection, err)
		}
		subs = append(subs, sub)
	}

	r.mu.Lock()
	if r.closed || r.generation != generation {
		r.mu.Unlock()
		for _, s := range subs {
			_ = s.Close()
		}
		return nil
	}
	r.subs = subs
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) handleSnapshot(generation uint64, snap docstore.Snapshot) {
	r.mu.Lock()
	if r.closed || r.generation != generation {
		r.mu.Unlock()
		return
	}
	r.data[snap.Collection] = index(snap.Documents)
	r.replaced[snap.Collection]++
	switch r.state {
	case cache.StateOffline:
		r.setStateLocked(cache.StateLive)
	case cache.StateError:
		if !r.subFailed {
			r.setStateLocked(cache.StateLive)
		}
	}
	r.touchLocked()
	r.mu.Unlock()

	if err := r.local.ReplaceCollection(context.Background(), snap.Collection, snap.Documents); err != nil {
		r.logf("cache: persist collection=%s failed: %v", snap.Collection, err)
	}
	r.publish()
}

func (r *Reconciler) handleFailure(generation uint64, collection string, err error) {
	r.mu.Lock()
	if r.closed || r.generation != generation {
		r.mu.Unlock()
		return
	}
	r.subFailed = true
	r.lastErr = fmt.Errorf("%w: %s: %v", cache.ErrSubscription, collection, err)
	r.setStateLocked(cache.StateError)
	r.touchLocked()
	r.mu.Unlock()

	metrics.IncSubscriptionFailure(collection)
	r.logf("cache: subscription collection=%s failed: %v", collection, err)
	r.publish()
}

// Apply performs an optimistic mutation. On remote failure the prior value
// is restored, unless a remote snapshot replaced the collection while the
// write was in flight, and a *WriteFailure is returned.
func (r *Reconciler) Apply(ctx context.Context, m cache.Mutation) (cache.Mutation, error) {
	if err := m.Validate(); err != nil {
		return m, err
	}
	if _, ok := r.known[m.Collection]; !ok {
		return m, fmt.Errorf("%w: %s", cache.ErrUnknownCollection, m.Collection)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Op == cache.OpSet && m.DocumentID == "" {
		m.DocumentID = uuid.NewString()
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return m, cache.ErrClosed
	case r.subFailed:
		err := r.lastErr
		r.mu.Unlock()
		return m, err
	case r.state == cache.StateOffline:
		r.mu.Unlock()
		return m, cache.ErrOffline
	}
	coll := r.data[m.Collection]
	if coll == nil {
		coll = make(map[string]docstore.Document)
		r.data[m.Collection] = coll
	}
	prior, existed := coll[m.DocumentID]
	seq := r.replaced[m.Collection]
	switch m.Op {
	case cache.OpSet:
		coll[m.DocumentID] = docstore.Document{ID: m.DocumentID, Data: m.Data}.Clone()
	case cache.OpDelete:
		delete(coll, m.DocumentID)
	}
	r.setStateLocked(cache.StateSyncingUp)
	r.touchLocked()
	r.mu.Unlock()
	r.publish()

	var err error
	switch m.Op {
	case cache.OpSet:
		err = r.remote.Set(ctx, m.Collection, m.DocumentID, m.Data)
	case cache.OpDelete:
		err = r.remote.Delete(ctx, m.Collection, m.DocumentID)
	}

	r.mu.Lock()
	if err != nil {
		// A snapshot delivered during the write already holds the remote
		// value, so the prior copy is stale.
		if r.replaced[m.Collection] == seq {
			coll = r.data[m.Collection]
			if coll == nil {
				coll = make(map[string]docstore.Document)
				r.data[m.Collection] = coll
			}
			if existed {
				coll[m.DocumentID] = prior
			} else {
				delete(coll, m.DocumentID)
			}
		}
		failure := &cache.WriteFailure{Mutation: m, Err: err}
		r.lastErr = failure
		r.setStateLocked(cache.StateError)
		r.touchLocked()
		r.mu.Unlock()

		metrics.IncCacheWrite(metrics.ResultError)
		r.logf("cache: write rolled back mutation=%s op=%s collection=%s id=%s: %v", m.ID, m.Op, m.Collection, m.DocumentID, err)
		r.publish()
		return m, failure
	}
	if r.state == cache.StateSyncingUp {
		r.setStateLocked(cache.StateLive)
	}
	r.lastErr = nil
	r.touchLocked()
	r.mu.Unlock()

	var persistErr error
	switch m.Op {
	case cache.OpSet:
		persistErr = r.local.Put(ctx, m.Collection, docstore.Document{ID: m.DocumentID, Data: m.Data})
	case cache.OpDelete:
		persistErr = r.local.Remove(ctx, m.Collection, m.DocumentID)
	}
	if persistErr != nil {
		r.logf("cache: persist mutation=%s failed: %v", m.ID, persistErr)
	}
	metrics.IncCacheWrite(metrics.ResultSuccess)
	r.publish()
	return m, nil
}

// Clear drops every cached document locally and in memory, returns to
// Offline and subscribes again. Remote data is untouched.
func (r *Reconciler) Clear(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return cache.ErrClosed
	}
	subs := r.subs
	r.subs = nil
	r.generation++
	started := r.started
	runCtx := r.runCtx
	r.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	if err := r.local.Clear(ctx); err != nil {
		return fmt.Errorf("cache: clear local: %w", err)
	}

	r.mu.Lock()
	r.data = make(map[string]map[string]docstore.Document)
	r.subFailed = false
	r.lastErr = nil
	r.setStateLocked(cache.StateOffline)
	r.touchLocked()
	r.mu.Unlock()
	r.logf("cache: cleared local data")
	r.publish()

	if !started {
		return nil
	}
	if runCtx == nil || runCtx.Err() != nil {
		runCtx = context.Background()
	}
	return r.subscribe(runCtx)
}

// Close stops every subscription. No listener runs after Close returns.
func (r *Reconciler) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := r.subs
	r.subs = nil
	r.generation++
	r.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.notifyMu.Lock()
	r.listeners = nil
	r.notifyMu.Unlock()
	return errors.Join(errs...)
}

// State returns the current state.
func (r *Reconciler) State() cache.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Snapshot returns the current dataset.
func (r *Reconciler) Snapshot() cache.Dataset {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.datasetLocked()
}

// Status reports state, last error and document counts.
func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int, len(r.collections))
	for _, c := range r.collections {
		counts[c] = len(r.data[c])
	}
	status := Status{
		State:       r.state,
		Version:     r.version,
		Documents:   counts,
		UpdatedAt:   r.updatedAt,
		Subscribers: len(r.subs),
	}
	if r.lastErr != nil {
		status.LastError = r.lastErr.Error()
	}
	return status
}

func (r *Reconciler) datasetLocked() cache.Dataset {
	collections := make(map[string][]docstore.Document, len(r.data))
	for name, docs := range r.data {
		list := make([]docstore.Document, 0, len(docs))
		for _, doc := range docs {
			list = append(list, doc.Clone())
		}
		docstore.SortDocuments(list)
		collections[name] = list
	}
	return cache.NewDataset(r.state, r.version, r.updatedAt, collections)
}

// publish hands the latest dataset to listeners; notifyMu keeps deliveries ordered.
func (r *Reconciler) publish() {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	if len(r.listeners) == 0 {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	ds := r.datasetLocked()
	r.mu.Unlock()
	for _, listener := range r.listeners {
		listener(ds)
	}
}

func (r *Reconciler) setStateLocked(state cache.State) {
	if r.state == state {
		return
	}
	r.logf("cache: state %s -> %s", r.state, state)
	r.state = state
	metrics.SetCacheState(string(state), cache.AllStates)
}

func (r *Reconciler) touchLocked() {
	r.version++
	r.updatedAt = r.clock()
}

func (r *Reconciler) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}

func index(docs []docstore.Document) map[string]docstore.Document {
	out := make(map[string]docstore.Document, len(docs))
	for _, doc := range docs {
		out[doc.ID] = doc.Clone()
	}
	return out
}
