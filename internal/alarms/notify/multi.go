package notify

import (
	"context"

	alarmapp "solar-dashboard/internal/alarms/application"
)

// MultiNotifier fans alarm events out to the channel notifier and live
// dashboard streams.
type MultiNotifier struct {
	notifiers []alarmapp.AlarmNotifier
}

// NewMultiNotifier constructs a MultiNotifier. Nil notifiers are dropped.
func NewMultiNotifier(notifiers ...alarmapp.AlarmNotifier) *MultiNotifier {
	m := &MultiNotifier{}
	for _, notifier := range notifiers {
		m.Add(notifier)
	}
	return m
}

// Add registers another notifier.
func (m *MultiNotifier) Add(notifier alarmapp.AlarmNotifier) {
	if notifier != nil {
		m.notifiers = append(m.notifiers, notifier)
	}
}

// Notify forwards events to all notifiers in registration order.
func (m *MultiNotifier) Notify(ctx context.Context, event alarmapp.AlarmEvent) {
	if m == nil {
		return
	}
	for _, notifier := range m.notifiers {
		notifier.Notify(ctx, event)
	}
}
