package notify

import (
	"context"
	"log"

	alertapp "flowdistributor/internal/alerts/application"
)

// MultiNotifier hands every alert event to each notifier in order. A
// panicking notifier is logged and skipped so the rest still receive the
// event.
type MultiNotifier struct {
	logger    *log.Logger
	notifiers []alertapp.AlertNotifier
}

// NewMultiNotifier constructs a MultiNotifier; nil notifiers are dropped.
func NewMultiNotifier(logger *log.Logger, notifiers ...alertapp.AlertNotifier) *MultiNotifier {
	kept := make([]alertapp.AlertNotifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			kept = append(kept, notifier)
		}
	}
	return &MultiNotifier{logger: logger, notifiers: kept}
}

// Len returns the number of notifiers.
func (m *MultiNotifier) Len() int {
	if m == nil {
		return 0
	}
	return len(m.notifiers)
}

// Notify implements alertapp.AlertNotifier.
func (m *MultiNotifier) Notify(ctx context.Context, event alertapp.AlertEvent) {
	if m == nil {
		return
	}
	for i, notifier := range m.notifiers {
		m.deliver(ctx, i, notifier, event)
	}
}

func (m *MultiNotifier) deliver(ctx context.Context, index int, notifier alertapp.AlertNotifier, event alertapp.AlertEvent) {
	defer func() {
		if rec := recover(); rec != nil && m.logger != nil {
			m.logger.Printf("alert notifier: notifier=%d %T panicked event=%s id=%s: %v", index, notifier, event.Type, event.Alert.ID, rec)
		}
	}()
	notifier.Notify(ctx, event)
}
