package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	alerts "flowdistributor/internal/alerts/domain"
	"flowdistributor/internal/observability/metrics"
)

const (
	EventFired           = "fired"
	EventResolved        = "resolved"
	EventSeverityChanged = "severity_changed"
)

// AlertNotifier publishes alert lifecycle events.
type AlertNotifier interface {
	Notify(ctx context.Context, event AlertEvent)
}

// AlertEvent represents a lifecycle update between two passes. Previous is
// set on severity changes only.
type AlertEvent struct {
	Type     string          `json:"type"`
	Alert    alerts.Alert    `json:"alert"`
	Previous alerts.Severity `json:"previous_severity,omitempty"`
	At       time.Time       `json:"at"`
}

// Rank is the highest severity rank the event touches, so a downgrade from
// critical still passes a critical floor.
func (e AlertEvent) Rank() int {
	rank := e.Alert.Severity.Rank()
	if prev := e.Previous.Rank(); prev > rank {
		return prev
	}
	return rank
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Service holds the latest alert pass and the per-session dismissals.
type Service struct {
	evaluator *Evaluator
	notifier  AlertNotifier
	clock     Clock
	logger    *log.Logger

	mu       sync.RWMutex
	current  []alerts.Alert
	byID     map[string]alerts.Alert
	sessions map[string]*alerts.Session
}

// ServiceOption customizes the alert service.
type ServiceOption func(*Service)

// WithNotifier assigns a notifier.
func WithNotifier(notifier AlertNotifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService constructs an alert service.
func NewService(evaluator *Evaluator, opts ...ServiceOption) (*Service, error) {
	if evaluator == nil {
		return nil, errors.New("alerts: nil evaluator")
	}
	s := &Service{
		evaluator: evaluator,
		clock:     systemClock{},
		byID:      make(map[string]alerts.Alert),
		sessions:  make(map[string]*alerts.Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Refresh evaluates a snapshot, replaces the current pass and notifies
// alerts that appeared, disappeared or changed severity since the previous
// pass.
func (s *Service) Refresh(ctx context.Context, snap Snapshot) []alerts.Alert {
	if s == nil {
		return nil
	}
	if snap.Now.IsZero() {
		snap.Now = s.clock.Now()
	}
	next := s.evaluator.Evaluate(snap)
	nextByID := make(map[string]alerts.Alert, len(next))
	for _, alert := range next {
		nextByID[alert.ID] = alert
	}

	s.mu.Lock()
	prev := s.byID
	s.current = next
	s.byID = nextByID
	s.mu.Unlock()

	counts := make(map[[2]string]int)
	for _, alert := range next {
		counts[[2]string{string(alert.Kind), string(alert.Severity)}]++
		before, ok := prev[alert.ID]
		switch {
		case !ok:
			s.notify(ctx, AlertEvent{Type: EventFired, Alert: alert})
		case before.Severity != alert.Severity:
			s.notify(ctx, AlertEvent{Type: EventSeverityChanged, Alert: alert, Previous: before.Severity})
		}
	}
	for id, alert := range prev {
		if _, ok := nextByID[id]; !ok {
			s.notify(ctx, AlertEvent{Type: EventResolved, Alert: alert})
		}
	}
	metrics.SetActiveAlerts(counts)
	return cloneAlerts(next)
}

// Current returns the latest pass without the alerts dismissed in sessionID.
func (s *Service) Current(sessionID string) []alerts.Alert {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	session := s.sessions[sessionID]
	if session == nil {
		return cloneAlerts(s.current)
	}
	return session.Filter(s.current)
}

// Lookup returns an alert of the latest pass by id.
func (s *Service) Lookup(id string) (alerts.Alert, bool) {
	if s == nil {
		return alerts.Alert{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	alert, ok := s.byID[id]
	return alert, ok
}

// Dismiss hides an alert for the rest of the session.
func (s *Service) Dismiss(sessionID, alertID string) error {
	if s == nil {
		return errors.New("alerts: nil service")
	}
	if sessionID == "" {
		return errors.New("alerts: session id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[alertID]; !ok {
		return alerts.ErrNotFound
	}
	session := s.sessions[sessionID]
	if session == nil {
		session = alerts.NewSession()
		s.sessions[sessionID] = session
	}
	session.Dismiss(alertID)
	return nil
}

// EndSession forgets every dismissal of sessionID.
func (s *Service) EndSession(sessionID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

func (s *Service) notify(ctx context.Context, event AlertEvent) {
	alert := event.Alert
	switch event.Type {
	case EventFired:
		metrics.IncAlertFired(string(alert.Kind))
		s.logf("alerts: fired id=%s kind=%s severity=%s subject=%s", alert.ID, alert.Kind, alert.Severity, alert.SubjectRef)
	case EventSeverityChanged:
		s.logf("alerts: severity id=%s kind=%s %s -> %s subject=%s", alert.ID, alert.Kind, event.Previous, alert.Severity, alert.SubjectRef)
	}
	if s.notifier == nil {
		return
	}
	event.At = s.clock.Now().UTC()
	s.notifier.Notify(ctx, event)
}

func (s *Service) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func cloneAlerts(list []alerts.Alert) []alerts.Alert {
	if list == nil {
		return []alerts.Alert{}
	}
	out := make([]alerts.Alert, len(list))
	copy(out, list)
	return out
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
