package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	alerts "flowdistributor/internal/alerts/domain"
)

// Message is one rendered alert notification.
type Message struct {
	Event            string
	AlertID          string
	Kind             alerts.Kind
	Severity         alerts.Severity
	PreviousSeverity alerts.Severity
	Subject          string
	Text             string
}

// Priority maps the message severity to a delivery priority. A change away
// from a critical alert keeps the urgent priority.
func (m Message) Priority() string {
	rank := m.Severity.Rank()
	if prev := m.PreviousSeverity.Rank(); prev > rank {
		rank = prev
	}
	switch {
	case rank >= alerts.SeverityCritical.Rank():
		return "urgent"
	case rank >= alerts.SeverityHigh.Rank():
		return "high"
	default:
		return "normal"
	}
}

// Channel delivers rendered messages.
type Channel interface {
	Send(ctx context.Context, msg Message) error
}

type webhookPayload struct {
	Event    string       `json:"event"`
	Priority string       `json:"priority"`
	Text     string       `json:"text"`
	Alert    webhookAlert `json:"alert"`
}

type webhookAlert struct {
	ID               string `json:"id"`
	Kind             string `json:"kind"`
	Severity         string `json:"severity"`
	PreviousSeverity string `json:"previous_severity,omitempty"`
	Subject          string `json:"subject"`
}

// SeverityHeader carries the alert severity so receivers can route without
// decoding the body.
const SeverityHeader = "X-Alert-Severity"

// WebhookChannel posts alert messages as JSON to an HTTP endpoint.
type WebhookChannel struct {
	url     string
	client  *http.Client
	headers http.Header
}

// WebhookOption configures the webhook channel.
type WebhookOption func(*WebhookChannel)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(ch *WebhookChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// WithHeader adds a static header to every request, e.g. a receiver token.
func WithHeader(key, value string) WebhookOption {
	return func(ch *WebhookChannel) {
		if key != "" {
			ch.headers.Set(key, value)
		}
	}
}

// NewWebhookChannel constructs a webhook channel.
func NewWebhookChannel(url string, opts ...WebhookOption) (*WebhookChannel, error) {
	if url == "" {
		return nil, errors.New("webhook channel: empty url")
	}
	channel := &WebhookChannel{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel, nil
}

// Send posts the message. Non-2xx responses fail with the start of the body.
func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	if w == nil || w.url == "" {
		return errors.New("webhook channel: empty url")
	}
	body, err := json.Marshal(webhookPayload{
		Event:    msg.Event,
		Priority: msg.Priority(),
		Text:     msg.Text,
		Alert: webhookAlert{
			ID:               msg.AlertID,
			Kind:             string(msg.Kind),
			Severity:         string(msg.Severity),
			PreviousSeverity: string(msg.PreviousSeverity),
			Subject:          msg.Subject,
		},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for key, values := range w.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SeverityHeader, string(msg.Severity))
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook channel: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
