package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	alertapp "flowdistributor/internal/alerts/application"
	statistic "flowdistributor/internal/analytics/domain/statistic"
	cache "flowdistributor/internal/cache/domain"
	"flowdistributor/internal/eventing"
	ledger "flowdistributor/internal/ledger/domain"
	"flowdistributor/internal/ledger/normalize"
	"flowdistributor/internal/observability/metrics"
)

var (
	// ErrNotReady is returned before the first aggregation pass.
	ErrNotReady = errors.New("dashboard: no data yet")
	// ErrAccountNotFound is returned for an unconfigured account id.
	ErrAccountNotFound = errors.New("dashboard: account not found")
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Service recomputes the overview from cache datasets.
type Service struct {
	normalizer *normalize.Normalizer
	alerts     *alertapp.Service
	accounts   []AccountRef
	logger     *log.Logger
	clock      Clock
	epsilon    func(accountID string) float64

	mu     sync.RWMutex
	latest Overview
	ready  bool
}

// Option customizes the service.
type Option func(*Service)

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithTrendEpsilon sets the flat band of every account trend.
func WithTrendEpsilon(epsilon float64) Option {
	return func(s *Service) {
		s.epsilon = func(string) float64 { return epsilon }
	}
}

// WithTrendEpsilonResolver resolves the flat band per account.
func WithTrendEpsilonResolver(resolve func(accountID string) float64) Option {
	return func(s *Service) {
		if resolve != nil {
			s.epsilon = resolve
		}
	}
}

// NewService constructs the dashboard service.
func NewService(normalizer *normalize.Normalizer, alerts *alertapp.Service, accounts []AccountRef, opts ...Option) (*Service, error) {
	if normalizer == nil {
		return nil, errors.New("dashboard: nil normalizer")
	}
	if alerts == nil {
		return nil, errors.New("dashboard: nil alert service")
	}
	if len(accounts) == 0 {
		return nil, errors.New("dashboard: no accounts")
	}
	s := &Service{
		normalizer: normalizer,
		alerts:     alerts,
		accounts:   append([]AccountRef(nil), accounts...),
		logger:     log.Default(),
		clock:      systemClock{},
		epsilon:    func(string) float64 { return 0 },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// HandleDatasetChanged is the event bus handler for eventing.DatasetChanged.
func (s *Service) HandleDatasetChanged(ctx context.Context, event any) error {
	var ds cache.Dataset
	switch evt := event.(type) {
	case eventing.DatasetChanged:
		ds = evt.Dataset
	case *eventing.DatasetChanged:
		ds = evt.Dataset
	default:
		return fmt.Errorf("dashboard: unexpected event %T", event)
	}
	_, err := s.Build(ctx, ds)
	return err
}

// Build runs one aggregation pass and stores the result.
func (s *Service) Build(ctx context.Context, ds cache.Dataset) (Overview, error) {
	started := time.Now()
	overview, err := s.build(ctx, ds)
	if err != nil {
		metrics.ObserveAggregation(metrics.ResultError, time.Since(started))
		s.logger.Printf("dashboard: aggregation failed version=%d: %v", ds.Version, err)
		return Overview{}, err
	}
	metrics.ObserveAggregation(metrics.ResultSuccess, time.Since(started))

	s.mu.Lock()
	s.latest = overview
	s.ready = true
	s.mu.Unlock()
	return overview, nil
}

func (s *Service) build(ctx context.Context, ds cache.Dataset) (Overview, error) {
	now := s.clock.Now()
	loc := s.normalizer.Location()
	overview := Overview{
		GeneratedAt: now,
		CacheState:  string(ds.State),
		Version:     ds.Version,
	}

	accountDocs := make(map[string]decimal.Decimal)
	hasSnapshot := make(map[string]bool)
	for _, doc := range ds.Documents(ledger.CollectionAccounts) {
		if value, ok := s.normalizer.AccountSnapshot(doc); ok {
			accountDocs[doc.ID] = value
			hasSnapshot[doc.ID] = true
		}
	}

	var (
		allEntries []ledger.Entry
		inputs     []alertapp.AccountSnapshot
	)
	for _, ref := range s.accounts {
		income := s.normalizer.NormalizeAll(normalize.KindIncome, ds.Documents(ledger.IncomeCollection(ref.ID)))
		expense := s.normalizer.NormalizeAll(normalize.KindExpense, ds.Documents(ledger.ExpenseCollection(ref.ID)))
		overview.Rejected = append(overview.Rejected, income.Rejected...)
		overview.Rejected = append(overview.Rejected, expense.Rejected...)

		entries := make([]ledger.Entry, 0, len(income.Entries)+len(expense.Entries))
		entries = append(entries, income.Entries...)
		entries = append(entries, expense.Entries...)
		allEntries = append(allEntries, entries...)

		view, err := s.accountView(ref, entries, now, loc)
		if err != nil {
			return Overview{}, err
		}
		view.Snapshot = accountDocs[ref.ID]
		view.HasSnapshot = hasSnapshot[ref.ID]
		if view.HasSnapshot {
			view.Delta = view.Snapshot.Sub(view.Completed.NetBalance)
		}
		overview.Totals = overview.Totals.Merge(view.Completed)
		overview.Accounts = append(overview.Accounts, view)

		inputs = append(inputs, alertapp.AccountSnapshot{
			AccountID:   ref.ID,
			DisplayName: ref.DisplayName,
			Balance:     view.Snapshot,
			HasBalance:  view.HasSnapshot,
			Trend:       view.Trend,
			HasTrend:    true,
			Cohorts: []alertapp.Cohort{
				{Name: string(ledger.DirectionIncome), Entries: filter(income.Entries, statistic.CompletedOnly)},
				{Name: string(ledger.DirectionExpense), Entries: filter(expense.Entries, statistic.CompletedOnly)},
			},
		})
	}

	transfers := s.normalizer.NormalizeAll(normalize.KindTransfer, ds.Documents(ledger.CollectionTransfers))
	overview.Rejected = append(overview.Rejected, transfers.Rejected...)
	overview.Transfers = statistic.Reduce(transfers.Entries, statistic.CompletedOnly)

	sales := s.normalizer.NormalizeAll(normalize.KindSale, ds.Documents(ledger.CollectionSales))
	overview.Rejected = append(overview.Rejected, sales.Rejected...)
	overview.Sales = SalesSummary{
		Completed: statistic.Reduce(sales.Entries, statistic.CompletedOnly),
		Pending:   statistic.Reduce(sales.Entries, statistic.PendingOnly),
	}
	overview.Sales.PendingCount = overview.Sales.Pending.Count

	purchases := s.normalizer.NormalizeAll(normalize.KindPurchaseOrder, ds.Documents(ledger.CollectionPurchaseOrders))
	overview.Rejected = append(overview.Rejected, purchases.Rejected...)
	overview.Purchases = statistic.Reduce(purchases.Entries, statistic.NotCancelled)

	clients := make([]ledger.Client, 0)
	overview.Master.TotalDebt = decimal.Zero
	for _, doc := range ds.Documents(ledger.CollectionClients) {
		client := s.normalizer.Client(doc)
		clients = append(clients, client)
		overview.Master.TotalDebt = overview.Master.TotalDebt.Add(client.Debt)
	}
	overview.Master.Clients = len(clients)

	products := make([]ledger.Product, 0)
	for _, doc := range ds.Documents(ledger.CollectionProducts) {
		product := s.normalizer.Product(doc)
		products = append(products, product)
		overview.Master.TotalStock += product.Stock
	}
	overview.Master.Products = len(products)
	for _, doc := range ds.Documents(ledger.CollectionDistributors) {
		overview.Distributors = append(overview.Distributors, s.normalizer.Distributor(doc))
	}
	overview.Master.Distributors = len(overview.Distributors)

	grouping, err := statistic.GroupByPeriod(allEntries, statistic.GranularityMonth, loc)
	if err != nil {
		return Overview{}, err
	}
	overview.Monthly = grouping.Buckets
	overview.Skipped = grouping.Skipped

	heatmap, err := statistic.BuildHeatmap(allEntries, loc,
		statistic.WithHeatmapLogger(s.logger),
		statistic.WithHeatmapFilter(statistic.NotCancelled),
	)
	if err != nil {
		return Overview{}, err
	}
	overview.Heatmap = heatmap

	overview.Alerts = s.alerts.Refresh(ctx, alertapp.Snapshot{
		Now:          now,
		Accounts:     inputs,
		Products:     products,
		Clients:      clients,
		PendingSales: overview.Sales.PendingCount,
	})
	return overview, nil
}

func (s *Service) accountView(ref AccountRef, entries []ledger.Entry, now time.Time, loc *time.Location) (AccountView, error) {
	monthly, err := statistic.ReduceByPeriod(entries, statistic.GranularityMonth, loc, statistic.CompletedOnly)
	if err != nil {
		return AccountView{}, err
	}
	current, err := statistic.PeriodStart(statistic.GranularityMonth, now, loc)
	if err != nil {
		return AccountView{}, err
	}
	previous := statistic.PreviousPeriod(statistic.GranularityMonth, current)
	trend := statistic.ComputeTrendDecimal(
		statistic.BalanceFor(monthly, current).NetBalance,
		statistic.BalanceFor(monthly, previous).NetBalance,
		s.epsilon(ref.ID),
	)
	name := ref.DisplayName
	if name == "" {
		name = ref.ID
	}
	return AccountView{
		ID:          ref.ID,
		DisplayName: name,
		Completed:   statistic.Reduce(entries, statistic.CompletedOnly),
		Pending:     statistic.Reduce(entries, statistic.PendingOnly),
		Monthly:     monthly,
		Trend:       trend,
		Entries:     entries,
	}, nil
}

// Latest returns the last overview.
func (s *Service) Latest() (Overview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return Overview{}, ErrNotReady
	}
	return s.latest, nil
}

// Account returns one account view of the last overview.
func (s *Service) Account(id string) (AccountView, error) {
	overview, err := s.Latest()
	if err != nil {
		return AccountView{}, err
	}
	view, ok := overview.FindAccount(id)
	if !ok {
		return AccountView{}, ErrAccountNotFound
	}
	return view, nil
}

// AccountHeatmap builds the heatmap of one account restricted by include.
func (s *Service) AccountHeatmap(id string, include statistic.Predicate) (statistic.Heatmap, error) {
	view, err := s.Account(id)
	if err != nil {
		return statistic.Heatmap{}, err
	}
	return statistic.BuildHeatmap(view.Entries, s.normalizer.Location(),
		statistic.WithHeatmapLogger(s.logger),
		statistic.WithHeatmapFilter(include),
	)
}

func filter(entries []ledger.Entry, include statistic.Predicate) []ledger.Entry {
	out := make([]ledger.Entry, 0, len(entries))
	for _, e := range entries {
		if include(e) {
			out = append(out, e)
		}
	}
	return out
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
