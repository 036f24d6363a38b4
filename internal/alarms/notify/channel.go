package notify

import (
	"context"
	"errors"
	"fmt"

	alarms "solar-dashboard/internal/alarms/domain"
	"solar-dashboard/internal/observability/metrics"
)

// Channel delivers rendered messages.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg alarms.Message) error
}

// MultiChannel sends each message through every channel.
type MultiChannel struct {
	channels []Channel
}

// NewMultiChannel constructs a fan-out channel. Nil channels are skipped.
func NewMultiChannel(channels ...Channel) *MultiChannel {
	out := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		if ch != nil {
			out = append(out, ch)
		}
	}
	return &MultiChannel{channels: out}
}

// Name implements Channel.
func (m *MultiChannel) Name() string { return "multi" }

// Len returns the number of configured channels.
func (m *MultiChannel) Len() int {
	if m == nil {
		return 0
	}
	return len(m.channels)
}

// Send delivers to all channels and joins their failures.
func (m *MultiChannel) Send(ctx context.Context, msg alarms.Message) error {
	if m == nil || len(m.channels) == 0 {
		return errors.New("notify: no channels configured")
	}
	var errs []error
	for _, ch := range m.channels {
		err := ch.Send(ctx, msg)
		metrics.IncNotification(ch.Name(), metrics.ResultOf(err))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}
