package notify

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	alertapp "flowdistributor/internal/alerts/application"
	alerts "flowdistributor/internal/alerts/domain"
)

type stubAlertReader struct {
	mu     sync.Mutex
	active map[string]alerts.Alert
}

func (s *stubAlertReader) Lookup(id string) (alerts.Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.active[id]
	return alert, ok
}

func negativeAlert() alerts.Alert {
	return alerts.New(alerts.KindNegativeBalance, alerts.SeverityCritical, "account:monte", "monte has a negative balance of -178714.88")
}

func TestWebhookNotifierPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	headerCh := make(chan http.Header, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headerCh <- r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL, WithHeader("X-Receiver-Token", "tok"))
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	clock := &fakeClock{now: time.Date(2026, 1, 26, 8, 0, 0, 0, time.UTC)}
	notifier, err := NewNotifier(channel, nil, WithClock(clock), WithDashboardURL("http://example.com/dashboard"))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	notifier.Notify(context.Background(), alertapp.AlertEvent{Type: alertapp.EventFired, Alert: negativeAlert()})

	select {
	case payload := <-payloadCh:
		if payload.Event != alertapp.EventFired || payload.Priority != "urgent" {
			t.Fatalf("expected fired urgent payload, got event=%s priority=%s", payload.Event, payload.Priority)
		}
		if payload.Alert.Kind != "negative_balance" || payload.Alert.Severity != "critical" || payload.Alert.PreviousSeverity != "" {
			t.Fatalf("unexpected alert block %+v", payload.Alert)
		}
		header := <-headerCh
		if header.Get(SeverityHeader) != "critical" || header.Get("X-Receiver-Token") != "tok" {
			t.Fatalf("unexpected headers %v", header)
		}
		content := payload.Text
		checks := []string{
			"[Alert Fired]",
			"Kind: negative_balance",
			"Severity: critical",
			"Subject: account:monte",
			"-178714.88",
			"Time: 2026-01-26T08:00:00Z",
			"Dashboard: http://example.com/dashboard",
		}
		for _, expected := range checks {
			if !strings.Contains(content, expected) {
				t.Fatalf("expected content to include %q, got %s", expected, content)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for webhook payload")
	}
}

func TestWebhookChannelRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	err = channel.Send(context.Background(), Message{Text: "x", Severity: alerts.SeverityLow})
	if err == nil || !strings.Contains(err.Error(), "status 502") {
		t.Fatalf("expected error for 502 response, got %v", err)
	}
	if _, err := NewWebhookChannel(""); err == nil {
		t.Fatal("expected error for empty url")
	}
}

type recordingChannel struct {
	mu       sync.Mutex
	contents []string
	messages []Message
}

func (r *recordingChannel) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	r.contents = append(r.contents, msg.Text)
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	return nil
}

func (r *recordingChannel) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contents)
}

func (r *recordingChannel) Latest() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.contents) == 0 {
		return ""
	}
	return r.contents[len(r.contents)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Add(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestNotifierCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 26, 10, 0, 0, 0, time.UTC)}
	channel := &recordingChannel{}
	notifier, err := NewNotifier(channel, nil, WithClock(clock), WithCooldown(10*time.Minute))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	alert := negativeAlert()

	notifier.Notify(context.Background(), alertapp.AlertEvent{Type: alertapp.EventFired, Alert: alert})
	notifier.Notify(context.Background(), alertapp.AlertEvent{Type: alertapp.EventFired, Alert: alert})
	if got := channel.Count(); got != 1 {
		t.Fatalf("expected 1 notification during cooldown, got %d", got)
	}

	clock.Add(11 * time.Minute)
	notifier.Notify(context.Background(), alertapp.AlertEvent{Type: alertapp.EventFired, Alert: alert})
	if got := channel.Count(); got != 2 {
		t.Fatalf("expected 2 notifications after cooldown, got %d", got)
	}
}

func TestNotifierDedupeWindow(t *testing.T) {
	channel := &recordingChannel{}
	// a template without the time field renders identical content for identical alerts
	tpl, err := NewTemplate("{{.EventLabel}} {{.Message}}")
	if err != nil {
		t.Fatalf("new template: %v", err)
	}
	clock := &fakeClock{now: time.Date(2026, 1, 26, 11, 0, 0, 0, time.UTC)}
	notifier, err := NewNotifier(channel, tpl, WithClock(clock), WithDedupeWindow(30*time.Minute))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	alert := negativeAlert()

	notifier.Notify(context.Background(), alertapp.AlertEvent{Type: alertapp.EventFired, Alert: alert})
	clock.Add(5 * time.Minute)
	notifier.Notify(context.Background(), alertapp.AlertEvent{Type: alertapp.EventFired, Alert: alert})
	if got := channel.Count(); got != 1 {
		t.Fatalf("expected 1 notification during dedupe window, got %d", got)
	}

	alert.Message = "monte has a negative balance of -200000.00"
	notifier.Notify(context.Background(), alertapp.AlertEvent{Type: alertapp.EventFired, Alert: alert})
	if got := channel.Count(); got != 2 {
		t.Fatalf("expected notification when content changes, got %d", got)
	}
}

func TestNotifierMinSeverity(t *testing.T) {
	channel := &recordingChannel{}
	notifier, err := NewNotifier(channel, nil, WithMinSeverity(alerts.SeverityHigh))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	low := alerts.New(alerts.KindTrendShift, alerts.SeverityLow, "account:usa", "growing")
	notifier.Notify(context.Background(), alertapp.AlertEvent{Type: alertapp.EventFired, Alert: low})
	notifier.Notify(context.Background(), alertapp.AlertEvent{Type: alertapp.EventFired, Alert: negativeAlert()})
	if got := channel.Count(); got != 1 {
		t.Fatalf("expected only the critical alert, got %d", got)
	}
}

func TestNotifierEscalation(t *testing.T) {
	channel := &recordingChannel{}
	alert := negativeAlert()
	reader := &stubAlertReader{active: map[string]alerts.Alert{alert.ID: alert}}
	notifier, err := NewNotifier(channel, nil,
		WithAlertReader(reader),
		WithEscalation(20*time.Millisecond),
		WithRequestTimeout(200*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	defer notifier.Close()

	notifier.Notify(context.Background(), alertapp.AlertEvent{Type: alertapp.EventFired, Alert: alert})

	deadline := time.After(300 * time.Millisecond)
	for channel.Count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected escalation notification, got %d", channel.Count())
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	if !strings.Contains(channel.Latest(), "Escalated") {
		t.Fatalf("expected escalated notification content, got %s", channel.Latest())
	}
}

func TestNotifierResolvedCancelsEscalation(t *testing.T) {
	channel := &recordingChannel{}
	alert := negativeAlert()
	reader := &stubAlertReader{active: map[string]alerts.Alert{alert.ID: alert}}
	notifier, err := NewNotifier(channel, nil, WithAlertReader(reader), WithEscalation(30*time.Millisecond))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	notifier.Notify(context.Background(), alertapp.AlertEvent{Type: alertapp.EventFired, Alert: alert})
	notifier.Notify(context.Background(), alertapp.AlertEvent{Type: alertapp.EventResolved, Alert: alert})
	time.Sleep(80 * time.Millisecond)
	if got := channel.Count(); got != 2 {
		t.Fatalf("expected fired and resolved only, got %d", got)
	}
}

type panickingNotifier struct{}

func (panickingNotifier) Notify(context.Context, alertapp.AlertEvent) { panic("boom") }

func TestMultiNotifierSkipsPanickingNotifier(t *testing.T) {
	a, b := &recordingChannel{}, &recordingChannel{}
	na, _ := NewNotifier(a, nil)
	nb, _ := NewNotifier(b, nil)
	var logs strings.Builder
	multi := NewMultiNotifier(log.New(&logs, "", 0), na, nil, panickingNotifier{}, nb)
	if multi.Len() != 3 {
		t.Fatalf("expected nil notifier to be dropped, got %d", multi.Len())
	}

	multi.Notify(context.Background(), alertapp.AlertEvent{Type: alertapp.EventFired, Alert: negativeAlert()})
	if a.Count() != 1 || b.Count() != 1 {
		t.Fatalf("expected both channels to receive, got %d and %d", a.Count(), b.Count())
	}
	if !strings.Contains(logs.String(), "panicked") {
		t.Fatalf("expected panic to be logged, got %q", logs.String())
	}
}

func TestNotifierSeverityChange(t *testing.T) {
	channel := &recordingChannel{}
	trend := alerts.New(alerts.KindTrendShift, alerts.SeverityCritical, "account:monte", "declining")
	reader := &stubAlertReader{active: map[string]alerts.Alert{trend.ID: trend}}
	notifier, err := NewNotifier(channel, nil,
		WithAlertReader(reader),
		WithEscalation(30*time.Millisecond),
		WithMinSeverity(alerts.SeverityHigh),
	)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	defer notifier.Close()

	notifier.Notify(context.Background(), alertapp.AlertEvent{Type: alertapp.EventFired, Alert: trend})
	growing := trend
	growing.Severity = alerts.SeverityLow
	growing.Message = "growing"
	notifier.Notify(context.Background(), alertapp.AlertEvent{Type: alertapp.EventSeverityChanged, Alert: growing, Previous: alerts.SeverityCritical})

	time.Sleep(80 * time.Millisecond)
	if got := channel.Count(); got != 2 {
		t.Fatalf("expected fired and severity change without escalation, got %d", got)
	}
	channel.mu.Lock()
	msg := channel.messages[1]
	channel.mu.Unlock()
	if msg.Event != alertapp.EventSeverityChanged || msg.PreviousSeverity != alerts.SeverityCritical || msg.Priority() != "urgent" {
		t.Fatalf("unexpected severity change message %+v", msg)
	}
	if !strings.Contains(msg.Text, "Severity: low (was critical)") || !strings.Contains(msg.Text, "[Alert Severity Changed]") {
		t.Fatalf("unexpected content %s", msg.Text)
	}
}
