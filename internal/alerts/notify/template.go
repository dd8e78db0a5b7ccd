package notify

import (
	"bytes"
	"errors"
	"text/template"
	"time"

	alertapp "flowdistributor/internal/alerts/application"
	alerts "flowdistributor/internal/alerts/domain"
)

const DefaultTemplate = `[Alert {{.EventLabel}}]
Kind: {{.Kind}}
Severity: {{.Severity}}{{ if .PreviousSeverity }} (was {{.PreviousSeverity}}){{ end }}
Subject: {{.Subject}}
Message: {{.Message}}
Time: {{.Time}}
Suggestion: {{.Suggestion}}
{{ if .DashboardURL }}
Dashboard: {{.DashboardURL}}
{{ end }}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	AlertID          string
	Kind             string
	Severity         string
	PreviousSeverity string
	Subject          string
	Message          string
	Time             string
	Suggestion       string
	DashboardURL     string
	Event            string
	EventLabel       string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("alert-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("alert template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildTemplateData(event alertapp.AlertEvent, at time.Time, dashboardURL string) TemplateData {
	alert := event.Alert
	return TemplateData{
		AlertID:          alert.ID,
		Kind:             string(alert.Kind),
		Severity:         string(alert.Severity),
		PreviousSeverity: string(event.Previous),
		Subject:          alert.SubjectRef,
		Message:          alert.Message,
		Time:             at.UTC().Format(time.RFC3339),
		Suggestion:       suggestionFor(alert.Kind),
		DashboardURL:     dashboardURL,
		Event:            event.Type,
		EventLabel:       eventLabel(event.Type),
	}
}

func eventLabel(event string) string {
	switch event {
	case alertapp.EventFired:
		return "Fired"
	case alertapp.EventResolved:
		return "Resolved"
	case alertapp.EventSeverityChanged:
		return "Severity Changed"
	case EventEscalated:
		return "Escalated"
	default:
		return event
	}
}

func suggestionFor(kind alerts.Kind) string {
	switch kind {
	case alerts.KindNegativeBalance:
		return "Review the account movements and fund the vault."
	case alerts.KindOverdueReceivable, alerts.KindHighDebtExposure:
		return "Contact the clients and schedule collection."
	case alerts.KindLowStockInfo:
		return "Raise a purchase order with the distributor."
	case alerts.KindStatisticalOutlier:
		return "Verify the entry amount against its receipt."
	case alerts.KindTrendShift:
		return "Compare the period against the previous one."
	default:
		return "Review the dashboard."
	}
}
