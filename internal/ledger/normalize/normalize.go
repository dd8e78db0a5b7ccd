// Package normalize turns raw document store records into canonical ledger
// entries and master data.
package normalize

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"flowdistributor/internal/docstore"
	ledger "flowdistributor/internal/ledger/domain"
	"flowdistributor/internal/observability/metrics"
)

// Rejection records a raw record excluded from aggregation.
type Rejection struct {
	DocumentID string     `json:"document_id"`
	Kind       RecordKind `json:"kind"`
	Reason     string     `json:"reason"`
}

// Batch is the result of normalizing a collection.
type Batch struct {
	Entries  []ledger.Entry
	Rejected []Rejection
}

// Normalizer coerces heterogeneous records into canonical values.
type Normalizer struct {
	loc       *time.Location
	logger    *log.Logger
	resolvers map[RecordKind]Resolvers
}

// Option customizes the normalizer.
type Option func(*Normalizer)

// WithLogger assigns the logger used for skipped-record warnings.
func WithLogger(logger *log.Logger) Option {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithResolvers replaces the candidate fields for one record kind.
func WithResolvers(kind RecordKind, resolvers Resolvers) Option {
	return func(n *Normalizer) {
		n.resolvers[kind] = resolvers.clone()
	}
}

// New constructs a normalizer. loc interprets zone-less dates and is required.
func New(loc *time.Location, opts ...Option) (*Normalizer, error) {
	if loc == nil {
		return nil, errors.New("normalize: nil location")
	}
	n := &Normalizer{
		loc:       loc,
		logger:    log.Default(),
		resolvers: make(map[RecordKind]Resolvers, len(defaultResolvers)),
	}
	for kind, r := range defaultResolvers {
		n.resolvers[kind] = r.clone()
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Location returns the configured location.
func (n *Normalizer) Location() *time.Location { return n.loc }

// Normalize converts one record. Missing amounts resolve to zero; an
// unparseable date rejects the record with ledger.ErrMalformedEntry.
func (n *Normalizer) Normalize(kind RecordKind, doc docstore.Document) (ledger.Entry, error) {
	resolvers, ok := n.resolvers[kind]
	if !ok {
		return ledger.Entry{}, fmt.Errorf("%w: %q", ledger.ErrUnknownRecordKind, kind)
	}
	data := doc.Data
	if data == nil {
		data = map[string]any{}
	}

	id := doc.ID
	if id == "" {
		id = firstString(data, []string{"id"})
	}

	date, ok := firstTime(data, resolvers.Date, n.loc)
	if !ok {
		return ledger.Entry{}, fmt.Errorf("%w: record %q has no parseable date", ledger.ErrMalformedEntry, id)
	}

	direction, ok := fixedDirection(kind)
	if !ok {
		direction, ok = parseDirection(firstString(data, resolvers.Direction))
		if !ok {
			return ledger.Entry{}, fmt.Errorf("%w: record %q has no direction", ledger.ErrMalformedEntry, id)
		}
	}

	amount, _, _ := firstDecimal(data, resolvers.Amount)
	if amount.IsNegative() {
		amount = amount.Abs()
		direction = direction.Opposite()
	}

	entry := ledger.Entry{
		ID:          id,
		Date:        date,
		Amount:      amount,
		Direction:   direction,
		Counterpart: firstString(data, resolvers.Counterpart),
		Note:        firstString(data, resolvers.Note),
	}
	if raw := firstString(data, resolvers.Status); raw != "" {
		entry.Status = parseStatus(raw)
	}
	return entry, nil
}

// NormalizeAll converts a collection, skipping and logging malformed records.
func (n *Normalizer) NormalizeAll(kind RecordKind, docs []docstore.Document) Batch {
	batch := Batch{Entries: make([]ledger.Entry, 0, len(docs))}
	for _, doc := range docs {
		entry, err := n.Normalize(kind, doc)
		if err != nil {
			n.logger.Printf("normalize: skip record kind=%s id=%s: %v", kind, doc.ID, err)
			metrics.IncEntryRejected(string(kind))
			batch.Rejected = append(batch.Rejected, Rejection{DocumentID: doc.ID, Kind: kind, Reason: err.Error()})
			continue
		}
		batch.Entries = append(batch.Entries, entry)
	}
	return batch
}

// Client converts a client record. An unparseable last payment date is
// treated as "never paid".
func (n *Normalizer) Client(doc docstore.Document) ledger.Client {
	debt, _, _ := firstDecimal(doc.Data, debtCandidates)
	lastPayment, _ := firstTime(doc.Data, lastPaymentCandidates, n.loc)
	return ledger.Client{
		ID:            doc.ID,
		Name:          nameOr(doc),
		Debt:          debt,
		LastPaymentAt: lastPayment,
	}
}

// Product converts a warehouse stock record. Missing stock reads as zero.
func (n *Normalizer) Product(doc docstore.Document) ledger.Product {
	stock, _, _ := firstDecimal(doc.Data, stockCandidates)
	return ledger.Product{ID: doc.ID, Name: nameOr(doc), Stock: stock.IntPart()}
}

// Distributor converts a distributor record.
func (n *Normalizer) Distributor(doc docstore.Document) ledger.Distributor {
	return ledger.Distributor{ID: doc.ID, Name: nameOr(doc)}
}

// AccountSnapshot reads the manually maintained balance of an account record.
func (n *Normalizer) AccountSnapshot(doc docstore.Document) (decimal.Decimal, bool) {
	value, _, ok := firstDecimal(doc.Data, snapshotCandidates)
	return value, ok
}

func nameOr(doc docstore.Document) string {
	if name := firstString(doc.Data, nameCandidates); name != "" {
		return name
	}
	return doc.ID
}
