package eventing

import "context"

type contextKey string

const contextKeyEventID contextKey = "eventing.event_id"

// WithEventID sets event id in context.
func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, contextKeyEventID, eventID)
}

// EventIDFromContext returns the event id set by WithEventID.
func EventIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(contextKeyEventID).(string); ok {
		return id
	}
	return ""
}
