// Package apihttp exposes the dashboard, cache and alert endpoints.
package apihttp

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	alerthttp "flowdistributor/internal/alerts/interfaces/http"
	statistic "flowdistributor/internal/analytics/domain/statistic"
	"flowdistributor/internal/auth"
	cacheapp "flowdistributor/internal/cache/application"
	cache "flowdistributor/internal/cache/domain"
	dashboard "flowdistributor/internal/dashboard/application"
)

// DashboardReader serves aggregated dashboard views.
type DashboardReader interface {
	Latest() (dashboard.Overview, error)
	Account(id string) (dashboard.AccountView, error)
	AccountHeatmap(id string, include statistic.Predicate) (statistic.Heatmap, error)
}

// CacheController applies optimistic writes and manages the local cache.
type CacheController interface {
	Apply(ctx context.Context, m cache.Mutation) (cache.Mutation, error)
	Clear(ctx context.Context) error
	Status() cacheapp.Status
}

// Dependencies are the collaborators served by the router.
type Dependencies struct {
	Dashboard DashboardReader
	Cache     CacheController
	Alerts    *alerthttp.Handler
	Stream    http.Handler
	Auth      *auth.Middleware
	Logger    *log.Logger
}

// NewRouter builds the HTTP handler.
func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Dashboard == nil {
		return nil, errors.New("apihttp: nil dashboard")
	}
	if deps.Cache == nil {
		return nil, errors.New("apihttp: nil cache")
	}
	if deps.Alerts == nil {
		return nil, errors.New("apihttp: nil alerts handler")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}

	dash := &dashboardHandler{reader: deps.Dashboard}
	entries := &entriesHandler{cache: deps.Cache, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(logger))
	if deps.Auth != nil {
		r.Use(deps.Auth.Wrap)
	}

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/dashboard", dash.Overview)
		r.Get("/accounts/{id}", dash.Account)
		r.Get("/accounts/{id}/heatmap", dash.Heatmap)

		r.Get("/alerts", deps.Alerts.List)
		r.Post("/alerts/{id}/dismiss", deps.Alerts.Dismiss)
		if deps.Stream != nil {
			r.Handle("/alerts/stream", deps.Stream)
		}

		r.Post("/entries/{collection}", entries.Set)
		r.Put("/entries/{collection}/{id}", entries.Set)
		r.Delete("/entries/{collection}/{id}", entries.Delete)

		r.Get("/cache", entries.Status)
		r.Delete("/cache", entries.Clear)

		r.Get("/exports/dashboard.xlsx", dash.ExportXLSX)
		r.Get("/exports/dashboard.pdf", dash.ExportPDF)
		r.Get("/exports/accounts.csv", dash.ExportCSV)
	})
	return r, nil
}

func loggingMiddleware(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(resp, r)
			logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the alert stream working behind the logging wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
