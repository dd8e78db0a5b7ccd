package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"log"
	"sync"
	"time"

	alertapp "flowdistributor/internal/alerts/application"
	alerts "flowdistributor/internal/alerts/domain"
)

// EventEscalated marks the reminder sent for a high alert that outlived the
// escalation delay.
const EventEscalated = "escalated"

// AlertReader looks up an alert in the latest pass.
type AlertReader interface {
	Lookup(id string) (alerts.Alert, bool)
}

// Clock provides time for scheduling.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders alert events and sends them through a channel. Critical
// and high alerts still present after the escalation delay are sent again.
type Notifier struct {
	channel        Channel
	template       *Template
	alerts         AlertReader
	logger         *log.Logger
	clock          Clock
	minSeverity    alerts.Severity
	escalation     time.Duration
	cooldown       time.Duration
	dedupeWindow   time.Duration
	dashboardURL   string
	requestTimeout time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	sent   map[string]sendRecord
}

// Option configures the notifier.
type Option func(*Notifier)

// WithAlertReader enables escalation lookups.
func WithAlertReader(reader AlertReader) Option {
	return func(n *Notifier) {
		n.alerts = reader
	}
}

// WithEscalation configures escalation delay.
func WithEscalation(after time.Duration) Option {
	return func(n *Notifier) {
		if after > 0 {
			n.escalation = after
		}
	}
}

// WithMinSeverity drops events below severity.
func WithMinSeverity(severity alerts.Severity) Option {
	return func(n *Notifier) {
		n.minSeverity = severity
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithLogger reports delivery failures.
func WithLogger(logger *log.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

// WithRequestTimeout bounds each delivery.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same alert and event.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithDashboardURL adds a link to every message.
func WithDashboardURL(url string) Option {
	return func(n *Notifier) {
		n.dashboardURL = url
	}
}

// NewNotifier constructs an alert notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("alert notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:        channel,
		template:       template,
		clock:          systemClock{},
		timers:         make(map[string]*time.Timer),
		sent:           make(map[string]sendRecord),
		requestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements alertapp.AlertNotifier. Severity changes are filtered on
// the higher of the two severities and re-arm or cancel the escalation.
func (n *Notifier) Notify(ctx context.Context, event alertapp.AlertEvent) {
	if n == nil || n.channel == nil {
		return
	}
	if event.Rank() < n.minSeverity.Rank() {
		return
	}
	n.dispatch(ctx, event)

	switch event.Type {
	case alertapp.EventFired:
		n.scheduleEscalation(event.Alert)
	case alertapp.EventSeverityChanged:
		if event.Alert.Severity.Rank() >= alerts.SeverityHigh.Rank() {
			n.scheduleEscalation(event.Alert)
		} else {
			n.cancelEscalation(event.Alert.ID)
		}
	case alertapp.EventResolved:
		n.cancelEscalation(event.Alert.ID)
	}
}

// Close stops all pending escalation timers.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	timers := n.timers
	n.timers = make(map[string]*time.Timer)
	n.mu.Unlock()
	for _, timer := range timers {
		if timer != nil {
			timer.Stop()
		}
	}
}

func (n *Notifier) dispatch(ctx context.Context, event alertapp.AlertEvent) {
	alert := event.Alert
	data := buildTemplateData(event, n.clock.Now(), n.dashboardURL)
	content, err := n.template.Render(data)
	if err != nil {
		n.logf("alert notifier: render id=%s: %v", alert.ID, err)
		return
	}
	if !n.shouldSend(alert.ID, event.Type, content) {
		return
	}
	if n.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.requestTimeout)
		defer cancel()
	}
	msg := Message{
		Event:            event.Type,
		AlertID:          alert.ID,
		Kind:             alert.Kind,
		Severity:         alert.Severity,
		PreviousSeverity: event.Previous,
		Subject:          alert.SubjectRef,
		Text:             content,
	}
	if err := n.channel.Send(ctx, msg); err != nil {
		n.logf("alert notifier: send id=%s event=%s: %v", alert.ID, event.Type, err)
		return
	}
	n.markSent(alert.ID, event.Type, content)
}

func (n *Notifier) scheduleEscalation(alert alerts.Alert) {
	if n.escalation <= 0 || n.alerts == nil || alert.ID == "" {
		return
	}
	if alert.Severity.Rank() < alerts.SeverityHigh.Rank() {
		return
	}
	n.mu.Lock()
	if existing, ok := n.timers[alert.ID]; ok && existing != nil {
		existing.Stop()
	}
	n.timers[alert.ID] = time.AfterFunc(n.escalation, func() {
		n.runEscalation(alert.ID)
	})
	n.mu.Unlock()
}

func (n *Notifier) cancelEscalation(alertID string) {
	if alertID == "" {
		return
	}
	n.mu.Lock()
	timer := n.timers[alertID]
	delete(n.timers, alertID)
	n.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

func (n *Notifier) runEscalation(alertID string) {
	n.mu.Lock()
	delete(n.timers, alertID)
	n.mu.Unlock()

	alert, ok := n.alerts.Lookup(alertID)
	if !ok {
		return
	}
	n.dispatch(context.Background(), alertapp.AlertEvent{Type: EventEscalated, Alert: alert})
}

func (n *Notifier) shouldSend(alertID, eventType, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	key := notificationKey(alertID, eventType)
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(alertID, eventType, content string) {
	key := notificationKey(alertID, eventType)
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func (n *Notifier) logf(format string, args ...any) {
	if n.logger != nil {
		n.logger.Printf(format, args...)
	}
}

func notificationKey(alertID, eventType string) string {
	return alertID + "|" + eventType
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
