package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	alarms "solar-dashboard/internal/alarms/domain"
)

const (
	// DefaultAlertType is used when a manual alert names no type.
	DefaultAlertType = "voltage_threshold"
	// DefaultAlertCooldown suppresses repeated alerts for the same key.
	DefaultAlertCooldown = 30 * time.Minute
	// NoteCooldownActive is returned instead of sending during a cooldown.
	NoteCooldownActive = "cooldown active"
)

// MessageSender delivers a rendered message.
type MessageSender interface {
	Send(ctx context.Context, msg alarms.Message) error
}

// ManualAlert is an operator- or device-initiated alert.
type ManualAlert struct {
	Type      string
	DeviceID  string
	Voltage   *float64
	Threshold *float64
	Message   string
}

// AlertResult reports the outcome of a manual alert.
type AlertResult struct {
	Sent bool   `json:"sent,omitempty"`
	Note string `json:"note,omitempty"`
}

var alertTemplate = template.Must(template.New("alert").Parse(`<h3>Solar System Alert</h3>
<p><strong>Type:</strong> {{.Type}}</p>
<p><strong>Device:</strong> {{.Device}}</p>
<p><strong>Voltage:</strong> {{.Voltage}} V</p>
<p><strong>Threshold:</strong> {{.Threshold}}</p>
{{if .Message}}<p>{{.Message}}</p>
{{end}}<p>Time: {{.Time}}</p>
`))

// AlertService sends manual alerts with a per-key cooldown.
type AlertService struct {
	sender   MessageSender
	cooldown time.Duration
	clock    Clock
	logger   *zap.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// AlertOption configures the alert service.
type AlertOption func(*AlertService)

// WithAlertCooldown overrides the cooldown. Zero disables it.
func WithAlertCooldown(cooldown time.Duration) AlertOption {
	return func(s *AlertService) {
		if cooldown >= 0 {
			s.cooldown = cooldown
		}
	}
}

// WithAlertClock overrides the clock.
func WithAlertClock(clock Clock) AlertOption {
	return func(s *AlertService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithAlertLogger sets the logger.
func WithAlertLogger(logger *zap.Logger) AlertOption {
	return func(s *AlertService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewAlertService constructs an alert service.
func NewAlertService(sender MessageSender, opts ...AlertOption) (*AlertService, error) {
	if sender == nil {
		return nil, errors.New("alert service: nil sender")
	}
	s := &AlertService{
		sender:   sender,
		cooldown: DefaultAlertCooldown,
		clock:    systemClock{},
		logger:   zap.NewNop(),
		lastSent: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Send delivers the alert unless one with the same key was sent within the
// cooldown. The cooldown only starts after a successful delivery.
func (s *AlertService) Send(ctx context.Context, alert ManualAlert) (AlertResult, error) {
	if alert.Voltage == nil {
		return AlertResult{}, fmt.Errorf("%w: missing voltage", alarms.ErrInvalidAlert)
	}
	if strings.TrimSpace(alert.Type) == "" {
		alert.Type = DefaultAlertType
	}
	key := CooldownKey(alert.Type, alert.DeviceID)
	now := s.clock.Now().UTC()

	msg, err := renderAlert(alert, now)
	if err != nil {
		return AlertResult{}, err
	}

	previous, reserved := s.reserve(key, now)
	if !reserved {
		return AlertResult{Note: NoteCooldownActive}, nil
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.release(key, now, previous)
		s.logger.Error("alert: send failed", zap.String("key", key), zap.Error(err))
		return AlertResult{}, err
	}
	s.logger.Info("alert: sent", zap.String("key", key))
	return AlertResult{Sent: true}, nil
}

// reserve claims key at now unless it is cooling down. Concurrent callers for
// the same key see the claim, so only one of them sends.
func (s *AlertService) reserve(key string, now time.Time) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, seen := s.lastSent[key]
	if seen && s.cooldown > 0 && now.Sub(last) < s.cooldown {
		return last, false
	}
	s.lastSent[key] = now
	return last, true
}

// release undoes a claim after a failed send, unless a later claim replaced it.
func (s *AlertService) release(key string, claimed, previous time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.lastSent[key]; !ok || !current.Equal(claimed) {
		return
	}
	if previous.IsZero() {
		delete(s.lastSent, key)
		return
	}
	s.lastSent[key] = previous
}

// CooldownKey scopes the cooldown to an alert type and optional device.
func CooldownKey(alertType, deviceID string) string {
	if deviceID == "" {
		return alertType
	}
	return alertType + ":" + deviceID
}

func renderAlert(alert ManualAlert, now time.Time) (alarms.Message, error) {
	device := alert.DeviceID
	if device == "" {
		device = "unknown"
	}
	threshold := "N/A"
	if alert.Threshold != nil {
		threshold = formatValue(*alert.Threshold)
	}
	voltage := formatValue(*alert.Voltage)
	data := map[string]string{
		"Type":      alert.Type,
		"Device":    device,
		"Voltage":   voltage,
		"Threshold": threshold,
		"Message":   alert.Message,
		"Time":      now.Format(time.RFC3339),
	}
	var buf bytes.Buffer
	if err := alertTemplate.Execute(&buf, data); err != nil {
		return alarms.Message{}, err
	}
	text := fmt.Sprintf("Type: %s\nDevice: %s\nVoltage: %s V\nThreshold: %s\n%s", alert.Type, device, voltage, threshold, alert.Message)
	return alarms.Message{
		Subject: fmt.Sprintf("Solar Alert: %s - %s V", alert.Type, voltage),
		Text:    strings.TrimSpace(text),
		HTML:    buf.String(),
	}, nil
}

func formatValue(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", v), "0"), ".")
}
