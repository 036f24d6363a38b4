package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alarms "solar-dashboard/internal/alarms/domain"
	"solar-dashboard/internal/alarms/infrastructure/memory"
	telemetryevents "solar-dashboard/internal/telemetry/application/events"
	telemetry "solar-dashboard/internal/telemetry/domain"
)

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

type recordingNotifier struct {
	events []AlarmEvent
}

func (r *recordingNotifier) Notify(_ context.Context, event AlarmEvent) {
	r.events = append(r.events, event)
}

func (r *recordingNotifier) types() []string {
	out := make([]string, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.Type)
	}
	return out
}

func newTestService(t *testing.T, rules ...alarms.AlarmRule) (*Service, *recordingNotifier, *fakeClock) {
	t.Helper()
	ruleRepo, err := memory.NewRuleRepository(rules)
	require.NoError(t, err)
	notifier := &recordingNotifier{}
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := NewService(ruleRepo, memory.NewAlarmRepository(), WithNotifier(notifier), WithClock(clock))
	require.NoError(t, err)
	return svc, notifier, clock
}

func voltageEvent(at time.Time, voltage float64) telemetryevents.TelemetryReceived {
	return telemetryevents.TelemetryReceived{
		EventID:  "evt",
		DeviceID: "esp32-01",
		Reading:  telemetry.Reading{Timestamp: at, DeviceID: "esp32-01", Voltage: voltage},
	}
}

var highVoltage = alarms.AlarmRule{
	ID: "high-voltage", Name: "High voltage", Field: alarms.FieldVoltage,
	Operator: alarms.OperatorGreater, Threshold: 14, Hysteresis: 0.5, Severity: "high", Enabled: true,
}

func TestServiceRaisesAndClearsWithHysteresis(t *testing.T) {
	ctx := context.Background()
	svc, notifier, clock := newTestService(t, highVoltage)
	at := clock.Now()

	require.NoError(t, svc.HandleTelemetryReceived(ctx, voltageEvent(at, 13)))
	assert.Empty(t, notifier.events)

	require.NoError(t, svc.HandleTelemetryReceived(ctx, voltageEvent(at.Add(time.Minute), 15)))
	require.NoError(t, svc.HandleTelemetryReceived(ctx, voltageEvent(at.Add(2*time.Minute), 16)))
	require.NoError(t, svc.HandleTelemetryReceived(ctx, voltageEvent(at.Add(3*time.Minute), 13.8)))
	assert.Equal(t, []string{alarms.EventActive}, notifier.types())

	list, err := svc.ListAlarms(ctx, alarms.ListFilter{Status: alarms.StatusActive})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 13.8, list[0].LastValue)
	assert.Equal(t, "esp32-01", list[0].DeviceID)
	assert.True(t, list[0].StartAt.Equal(at.Add(time.Minute)))

	require.NoError(t, svc.HandleTelemetryReceived(ctx, voltageEvent(at.Add(4*time.Minute), 13.5)))
	assert.Equal(t, []string{alarms.EventActive, alarms.EventCleared}, notifier.types())

	cleared, err := svc.GetAlarm(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, alarms.StatusCleared, cleared.Status)
	require.NotNil(t, cleared.ClearedAt)
}

func TestServiceIgnoresDisabledRules(t *testing.T) {
	disabled := highVoltage
	disabled.Enabled = false
	svc, notifier, clock := newTestService(t, disabled)
	require.NoError(t, svc.HandleTelemetryReceived(context.Background(), voltageEvent(clock.Now(), 20)))
	assert.Empty(t, notifier.events)
}

func TestServiceAckAndClear(t *testing.T) {
	ctx := context.Background()
	svc, notifier, clock := newTestService(t, highVoltage)
	require.NoError(t, svc.HandleTelemetryReceived(ctx, voltageEvent(clock.Now(), 20)))
	list, err := svc.ListAlarms(ctx, alarms.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	id := list[0].ID

	clock.Add(time.Minute)
	acked, err := svc.AckAlarm(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, alarms.StatusAcknowledged, acked.Status)
	require.NotNil(t, acked.AckedAt)

	again, err := svc.AckAlarm(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, alarms.StatusAcknowledged, again.Status)

	cleared, err := svc.ClearAlarm(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, alarms.StatusCleared, cleared.Status)
	assert.Equal(t, []string{alarms.EventActive, alarms.EventAcknowledged, alarms.EventCleared}, notifier.types())

	_, err = svc.AckAlarm(ctx, "missing")
	assert.True(t, errors.Is(err, alarms.ErrNotFound))
}

type recordingSender struct {
	messages []alarms.Message
	err      error
}

func (r *recordingSender) Send(_ context.Context, msg alarms.Message) error {
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, msg)
	return nil
}

func floatPtr(v float64) *float64 { return &v }

func TestAlertServiceRequiresVoltage(t *testing.T) {
	svc, err := NewAlertService(&recordingSender{})
	require.NoError(t, err)
	_, err = svc.Send(context.Background(), ManualAlert{Type: "low"})
	assert.True(t, errors.Is(err, alarms.ErrInvalidAlert))
}

func TestAlertServiceCooldownPerTypeAndDevice(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{}
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := NewAlertService(sender, WithAlertClock(clock))
	require.NoError(t, err)

	alert := ManualAlert{DeviceID: "esp32-01", Voltage: floatPtr(11.2), Threshold: floatPtr(11.5), Message: "battery low"}
	result, err := svc.Send(ctx, alert)
	require.NoError(t, err)
	assert.True(t, result.Sent)
	require.Len(t, sender.messages, 1)
	assert.Equal(t, "Solar Alert: voltage_threshold - 11.2 V", sender.messages[0].Subject)
	assert.Contains(t, sender.messages[0].HTML, "<strong>Device:</strong> esp32-01")
	assert.Contains(t, sender.messages[0].HTML, "<strong>Threshold:</strong> 11.5")

	clock.Add(10 * time.Minute)
	result, err = svc.Send(ctx, alert)
	require.NoError(t, err)
	assert.False(t, result.Sent)
	assert.Equal(t, NoteCooldownActive, result.Note)

	other := alert
	other.DeviceID = "esp32-02"
	result, err = svc.Send(ctx, other)
	require.NoError(t, err)
	assert.True(t, result.Sent)

	clock.Add(21 * time.Minute)
	result, err = svc.Send(ctx, alert)
	require.NoError(t, err)
	assert.True(t, result.Sent)
	assert.Len(t, sender.messages, 3)
}

func TestAlertServiceFailureDoesNotStartCooldown(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{err: errors.New("smtp down")}
	svc, err := NewAlertService(sender)
	require.NoError(t, err)

	_, err = svc.Send(ctx, ManualAlert{Voltage: floatPtr(3)})
	require.Error(t, err)

	sender.err = nil
	result, err := svc.Send(ctx, ManualAlert{Voltage: floatPtr(3)})
	require.NoError(t, err)
	assert.True(t, result.Sent)
	assert.Contains(t, sender.messages[0].HTML, "<strong>Threshold:</strong> N/A")
	assert.Contains(t, sender.messages[0].HTML, "<strong>Device:</strong> unknown")
}

type blockingSender struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSender) Send(ctx context.Context, _ alarms.Message) error {
	b.mu.Lock()
	b.calls++
	first := b.calls == 1
	b.mu.Unlock()
	if first {
		close(b.entered)
		<-b.release
	}
	return nil
}

func TestAlertServiceConcurrentSendsShareCooldown(t *testing.T) {
	sender := &blockingSender{entered: make(chan struct{}), release: make(chan struct{})}
	svc, err := NewAlertService(sender)
	require.NoError(t, err)
	alert := ManualAlert{DeviceID: "esp32-01", Voltage: floatPtr(10.9)}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		sent  int
		noted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.Send(context.Background(), alert)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			if result.Sent {
				sent++
			} else if result.Note == NoteCooldownActive {
				noted++
			}
		}()
	}
	<-sender.entered
	close(sender.release)
	wg.Wait()

	assert.Equal(t, 1, sent)
	assert.Equal(t, 7, noted)
	assert.Equal(t, 1, sender.calls)
}

func TestAlertServiceFailedSendRestoresPreviousCooldown(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{}
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := NewAlertService(sender, WithAlertClock(clock))
	require.NoError(t, err)
	alert := ManualAlert{Voltage: floatPtr(11)}

	_, err = svc.Send(ctx, alert)
	require.NoError(t, err)

	clock.Add(31 * time.Minute)
	sender.err = errors.New("smtp down")
	_, err = svc.Send(ctx, alert)
	require.Error(t, err)

	sender.err = nil
	result, err := svc.Send(ctx, alert)
	require.NoError(t, err)
	assert.True(t, result.Sent, "a failed send leaves the earlier, expired cooldown in place")

	clock.Add(time.Minute)
	result, err = svc.Send(ctx, alert)
	require.NoError(t, err)
	assert.False(t, result.Sent)
}

func TestCooldownKey(t *testing.T) {
	assert.Equal(t, "voltage_threshold", CooldownKey("voltage_threshold", ""))
	assert.Equal(t, "voltage_threshold:esp32-01", CooldownKey("voltage_threshold", "esp32-01"))
}
