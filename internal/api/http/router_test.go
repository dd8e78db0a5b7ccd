package apihttp

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alertapp "flowdistributor/internal/alerts/application"
	alerthttp "flowdistributor/internal/alerts/interfaces/http"
	statistic "flowdistributor/internal/analytics/domain/statistic"
	"flowdistributor/internal/auth"
	cacheapp "flowdistributor/internal/cache/application"
	cache "flowdistributor/internal/cache/domain"
	dashboard "flowdistributor/internal/dashboard/application"
)

type stubDashboard struct {
	overview dashboard.Overview
	ready    bool
}

func (s *stubDashboard) Latest() (dashboard.Overview, error) {
	if !s.ready {
		return dashboard.Overview{}, dashboard.ErrNotReady
	}
	return s.overview, nil
}

func (s *stubDashboard) Account(id string) (dashboard.AccountView, error) {
	overview, err := s.Latest()
	if err != nil {
		return dashboard.AccountView{}, err
	}
	view, ok := overview.FindAccount(id)
	if !ok {
		return dashboard.AccountView{}, dashboard.ErrAccountNotFound
	}
	return view, nil
}

func (s *stubDashboard) AccountHeatmap(id string, _ statistic.Predicate) (statistic.Heatmap, error) {
	if _, err := s.Account(id); err != nil {
		return statistic.Heatmap{}, err
	}
	var h statistic.Heatmap
	h.Cells[2][10] = statistic.Cell{Count: 3, Sum: decimal.NewFromInt(30)}
	return h, nil
}

type stubCache struct {
	applied []cache.Mutation
	err     error
	cleared bool
}

func (s *stubCache) Apply(_ context.Context, m cache.Mutation) (cache.Mutation, error) {
	if s.err != nil {
		return m, s.err
	}
	m.ID = "m-1"
	if m.DocumentID == "" {
		m.DocumentID = "doc-1"
	}
	s.applied = append(s.applied, m)
	return m, nil
}

func (s *stubCache) Clear(context.Context) error {
	s.cleared = true
	return nil
}

func (s *stubCache) Status() cacheapp.Status {
	return cacheapp.Status{State: cache.StateLive, Version: 4}
}

func readyDashboard() *stubDashboard {
	return &stubDashboard{ready: true, overview: dashboard.Overview{
		GeneratedAt: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		CacheState:  "live",
		Accounts: []dashboard.AccountView{{
			ID:          "monte",
			DisplayName: "Monte",
			Monthly: []statistic.PeriodBalance{{
				Key:         "2024-03",
				PeriodStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
				Balance: statistic.Balance{
					TotalIncome:  decimal.NewFromInt(400),
					TotalExpense: decimal.NewFromInt(100),
					NetBalance:   decimal.NewFromInt(300),
					Count:        3,
				},
			}},
		}},
	}}
}

func newTestRouter(t *testing.T, dash DashboardReader, c CacheController, mw *auth.Middleware) http.Handler {
	t.Helper()
	alertSvc, err := alertapp.NewService(alertapp.NewEvaluator())
	require.NoError(t, err)
	alerts, err := alerthttp.NewHandler(alertSvc)
	require.NoError(t, err)
	router, err := NewRouter(Dependencies{
		Dashboard: dash,
		Cache:     c,
		Alerts:    alerts,
		Auth:      mw,
		Logger:    log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)
	return router
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, readyDashboard(), &stubCache{}, nil)
	resp := do(t, router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ok", resp.Body.String())
}

func TestDashboardNotReady(t *testing.T) {
	router := newTestRouter(t, &stubDashboard{}, &stubCache{}, nil)
	resp := do(t, router, http.MethodGet, "/api/v1/dashboard", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestDashboardAndAccounts(t *testing.T) {
	router := newTestRouter(t, readyDashboard(), &stubCache{}, nil)

	resp := do(t, router, http.MethodGet, "/api/v1/dashboard", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"cache_state":"live"`)

	resp = do(t, router, http.MethodGet, "/api/v1/accounts/monte", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"display_name":"Monte"`)

	resp = do(t, router, http.MethodGet, "/api/v1/accounts/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestAccountHeatmap(t *testing.T) {
	router := newTestRouter(t, readyDashboard(), &stubCache{}, nil)

	resp := do(t, router, http.MethodGet, "/api/v1/accounts/monte/heatmap?status=completed", "")
	require.Equal(t, http.StatusOK, resp.Code)
	body := resp.Body.String()
	assert.Contains(t, body, `"busiest_day":"Tuesday"`)
	assert.Contains(t, body, `"peak_hour":10`)
	assert.Contains(t, body, `"total":3`)

	resp = do(t, router, http.MethodGet, "/api/v1/accounts/monte/heatmap?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestEntriesApply(t *testing.T) {
	stub := &stubCache{}
	router := newTestRouter(t, readyDashboard(), stub, nil)

	resp := do(t, router, http.MethodPost, "/api/v1/entries/monte_income", `{"data":{"ingreso":100,"fecha":"2024-03-02"}}`)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, stub.applied, 1)
	assert.Equal(t, cache.OpSet, stub.applied[0].Op)
	assert.Equal(t, "monte_income", stub.applied[0].Collection)
	assert.Contains(t, resp.Body.String(), `"document_id":"doc-1"`)

	resp = do(t, router, http.MethodPut, "/api/v1/entries/monte_income/i9", `{"data":{"ingreso":5}}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "i9", stub.applied[1].DocumentID)

	resp = do(t, router, http.MethodDelete, "/api/v1/entries/monte_income/i9", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, cache.OpDelete, stub.applied[2].Op)

	resp = do(t, router, http.MethodPost, "/api/v1/entries/monte_income", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestEntriesApplyErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"write failure", &cache.WriteFailure{Mutation: cache.Mutation{ID: "m-1", Op: cache.OpSet, Collection: "sales"}, Err: errors.New("boom")}, http.StatusBadGateway},
		{"unknown collection", cache.ErrUnknownCollection, http.StatusBadRequest},
		{"offline", cache.ErrOffline, http.StatusServiceUnavailable},
		{"subscription", cache.ErrSubscription, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(t, readyDashboard(), &stubCache{err: tc.err}, nil)
			resp := do(t, router, http.MethodPost, "/api/v1/entries/sales", `{"data":{"total":1}}`)
			assert.Equal(t, tc.code, resp.Code)
		})
	}
}

func TestCacheStatusAndClear(t *testing.T) {
	stub := &stubCache{}
	router := newTestRouter(t, readyDashboard(), stub, nil)

	resp := do(t, router, http.MethodGet, "/api/v1/cache", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"state":"live"`)

	resp = do(t, router, http.MethodDelete, "/api/v1/cache", "")
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.True(t, stub.cleared)
}

func TestExportAccountsCSV(t *testing.T) {
	router := newTestRouter(t, readyDashboard(), &stubCache{}, nil)

	resp := do(t, router, http.MethodGet, "/api/v1/exports/accounts.csv", "")
	require.Equal(t, http.StatusOK, resp.Code)
	rows, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"monte", "Monte", "2024-03", "2024-03-01T00:00:00Z", "400.00", "100.00", "300.00", "3"}, rows[1])
}

func TestExportXLSXAndPDF(t *testing.T) {
	router := newTestRouter(t, readyDashboard(), &stubCache{}, nil)

	resp := do(t, router, http.MethodGet, "/api/v1/exports/dashboard.xlsx", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "dashboard.xlsx")

	resp = do(t, router, http.MethodGet, "/api/v1/exports/dashboard.pdf", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, strings.HasPrefix(resp.Body.String(), "%PDF-"))
}

func TestRouterEnforcesAuth(t *testing.T) {
	verifier, err := auth.NewVerifier([]byte("secret"))
	require.NoError(t, err)
	mw, err := auth.NewMiddleware(verifier, auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil))
	require.NoError(t, err)
	router := newTestRouter(t, readyDashboard(), &stubCache{}, mw)

	assert.Equal(t, http.StatusUnauthorized, do(t, router, http.MethodGet, "/api/v1/dashboard", "").Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/healthz", "").Code)
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	_, err := NewRouter(Dependencies{Cache: &stubCache{}})
	require.Error(t, err)
}
