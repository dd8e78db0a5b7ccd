package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	alertapp "flowdistributor/internal/alerts/application"
	alerts "flowdistributor/internal/alerts/domain"
	alerthttp "flowdistributor/internal/alerts/interfaces/http"
	alertnotify "flowdistributor/internal/alerts/notify"
	apihttp "flowdistributor/internal/api/http"
	"flowdistributor/internal/auth"
	cacheapp "flowdistributor/internal/cache/application"
	cache "flowdistributor/internal/cache/domain"
	sqlitecache "flowdistributor/internal/cache/infrastructure/sqlite"
	"flowdistributor/internal/config"
	dashboardapp "flowdistributor/internal/dashboard/application"
	"flowdistributor/internal/docstore/backend"
	"flowdistributor/internal/eventing"
	"flowdistributor/internal/ledger/normalize"
	"flowdistributor/internal/observability/metrics"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	remote, closeRemote, err := backend.Open(ctx, backend.Options{
		Backend:              string(cfg.Backend),
		DatabaseURL:          cfg.DatabaseURL,
		PollInterval:         cfg.PollInterval,
		FirestoreProject:     cfg.FirestoreProject,
		FirestoreCredentials: cfg.FirestoreCreds,
		SnapshotFile:         cfg.SnapshotFile,
	}, logger)
	if err != nil {
		logger.Fatalf("docstore error: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.CachePath), 0o755); err != nil {
		logger.Fatalf("cache dir error: %v", err)
	}
	local, err := sqlitecache.Open(ctx, cfg.CachePath)
	if err != nil {
		logger.Fatalf("cache open error: %v", err)
	}
	metrics.Init(local.DB(), logger)

	normalizer, err := normalize.New(cfg.Location, normalize.WithLogger(logger))
	if err != nil {
		logger.Fatalf("normalizer error: %v", err)
	}

	broker := alerthttp.NewSSEBroker()
	lookup := &alertLookup{}
	notifiers := []alertapp.AlertNotifier{broker}
	var webhookNotifier *alertnotify.Notifier
	if cfg.WebhookURL != "" {
		webhookNotifier, err = buildWebhookNotifier(cfg, lookup, logger)
		if err != nil {
			logger.Fatalf("alert notifier error: %v", err)
		}
		notifiers = append(notifiers, webhookNotifier)
	}

	evaluator := alertapp.NewEvaluator(alertapp.WithThresholdResolver(cfg.File.ThresholdsFor))
	alertService, err := alertapp.NewService(evaluator,
		alertapp.WithNotifier(alertnotify.NewMultiNotifier(logger, notifiers...)),
		alertapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("alert service error: %v", err)
	}
	lookup.service = alertService

	accounts := make([]dashboardapp.AccountRef, 0, len(cfg.File.Accounts))
	for _, account := range cfg.File.Accounts {
		accounts = append(accounts, dashboardapp.AccountRef{ID: account.ID, DisplayName: account.DisplayName})
	}
	dashboardService, err := dashboardapp.NewService(normalizer, alertService, accounts,
		dashboardapp.WithLogger(logger),
		dashboardapp.WithTrendEpsilonResolver(func(accountID string) float64 {
			return cfg.File.ThresholdsFor(accountID).TrendEpsilon
		}),
	)
	if err != nil {
		logger.Fatalf("dashboard service error: %v", err)
	}

	bus := eventing.NewInMemoryBus(logger)
	bus.Subscribe(eventing.EventTypeOf[eventing.DatasetChanged](), dashboardService.HandleDatasetChanged)

	reconciler, err := cacheapp.NewReconciler(remote, local, cfg.File.Collections(),
		cacheapp.WithLogger(logger),
		cacheapp.WithListener(func(ds cache.Dataset) {
			event := eventing.DatasetChanged{Dataset: ds, OccurredAt: time.Now().UTC()}
			if err := bus.Publish(context.Background(), event); err != nil {
				logger.Printf("dataset changed publish error version=%d: %v", ds.Version, err)
			}
		}),
	)
	if err != nil {
		logger.Fatalf("reconciler error: %v", err)
	}
	if err := reconciler.Start(ctx); err != nil {
		logger.Fatalf("reconciler start error: %v", err)
	}

	alertHandler, err := alerthttp.NewHandler(alertService)
	if err != nil {
		logger.Fatalf("alert handler error: %v", err)
	}
	var authMiddleware *auth.Middleware
	if cfg.AuthEnabled {
		verifier, err := auth.NewVerifier([]byte(cfg.JWTSecret), auth.WithIssuer(cfg.JWTIssuer), auth.WithLeeway(cfg.JWTLeeway))
		if err != nil {
			logger.Fatalf("auth verifier error: %v", err)
		}
		authMiddleware, err = auth.NewMiddleware(verifier, auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil), auth.WithDenyLogger(logger))
		if err != nil {
			logger.Fatalf("auth middleware error: %v", err)
		}
	} else {
		logger.Printf("auth disabled")
	}
	router, err := apihttp.NewRouter(apihttp.Dependencies{
		Dashboard: dashboardService,
		Cache:     reconciler,
		Alerts:    alertHandler,
		Stream:    alerthttp.NewStreamHandler(broker),
		Auth:      authMiddleware,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatalf("router error: %v", err)
	}

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("http shutdown error: %v", err)
		}
	}()

	logger.Printf("http listening on %s backend=%s timezone=%s collections=%d", cfg.HTTPAddr, cfg.Backend, cfg.Location, len(cfg.File.Collections()))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http server error: %v", err)
	}

	if err := reconciler.Close(); err != nil {
		logger.Printf("reconciler close error: %v", err)
	}
	if webhookNotifier != nil {
		webhookNotifier.Close()
	}
	if err := local.Close(); err != nil {
		logger.Printf("cache close error: %v", err)
	}
	if err := closeRemote(); err != nil {
		logger.Printf("docstore close error: %v", err)
	}
	logger.Printf("shutdown complete")
}

func buildWebhookNotifier(cfg config.Config, reader alertnotify.AlertReader, logger *log.Logger) (*alertnotify.Notifier, error) {
	channel, err := alertnotify.NewWebhookChannel(cfg.WebhookURL)
	if err != nil {
		return nil, err
	}
	tpl, err := alertnotify.NewTemplate(cfg.AlertTemplate)
	if err != nil {
		return nil, err
	}
	return alertnotify.NewNotifier(channel, tpl,
		alertnotify.WithAlertReader(reader),
		alertnotify.WithMinSeverity(alerts.Severity(cfg.AlertMinSeverity)),
		alertnotify.WithCooldown(cfg.AlertCooldown),
		alertnotify.WithEscalation(cfg.AlertEscalation),
		alertnotify.WithDashboardURL(cfg.DashboardURL),
		alertnotify.WithLogger(logger),
	)
}

// alertLookup breaks the construction cycle between the alert service and
// the escalating webhook notifier.
type alertLookup struct {
	service *alertapp.Service
}

func (l *alertLookup) Lookup(id string) (alerts.Alert, bool) {
	if l.service == nil {
		return alerts.Alert{}, false
	}
	return l.service.Lookup(id)
}
