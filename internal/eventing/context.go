package eventing

import "context"

type contextKey string

const contextKeyEventID contextKey = "eventing.event_id"

// WithEventID sets the event id in context.
func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, contextKeyEventID, eventID)
}

// EventIDFromContext returns the id of the event being handled.
func EventIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(contextKeyEventID).(string)
	return id, ok && id != ""
}
