package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	alarmapp "solar-dashboard/internal/alarms/application"
	alarms "solar-dashboard/internal/alarms/domain"
)

// RuleReader loads alarm rules.
type RuleReader interface {
	GetByID(ctx context.Context, ruleID string) (*alarms.AlarmRule, error)
}

// AlarmReader loads alarm records.
type AlarmReader interface {
	GetByID(ctx context.Context, id string) (*alarms.Alarm, error)
}

// Clock provides time for scheduling.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders alarm events, applies cooldown and dedupe, sends them
// through a channel and escalates unattended high-severity alarms.
type Notifier struct {
	rules          RuleReader
	alarms         AlarmReader
	channel        Channel
	template       *Template
	escalation     time.Duration
	clock          Clock
	logger         *zap.Logger
	mu             sync.Mutex
	timers         map[string]*time.Timer
	sent           map[string]sendRecord
	cooldown       time.Duration
	dedupeWindow   time.Duration
	dashboardURL   string
	requestTimeout time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithEscalation configures escalation delay.
func WithEscalation(after time.Duration) Option {
	return func(n *Notifier) {
		if after > 0 {
			n.escalation = after
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithRequestTimeout overrides the default timeout for escalation checks.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same alarm and event.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithDashboardURL adds a dashboard link to notifications.
func WithDashboardURL(url string) Option {
	return func(n *Notifier) {
		n.dashboardURL = url
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNotifier constructs an alarm notifier.
func NewNotifier(rules RuleReader, alarms AlarmReader, channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if rules == nil {
		return nil, errors.New("alarm notifier: nil rule reader")
	}
	if alarms == nil {
		return nil, errors.New("alarm notifier: nil alarm reader")
	}
	if channel == nil {
		return nil, errors.New("alarm notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		rules:          rules,
		alarms:         alarms,
		channel:        channel,
		template:       template,
		clock:          systemClock{},
		logger:         zap.NewNop(),
		timers:         make(map[string]*time.Timer),
		sent:           make(map[string]sendRecord),
		requestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements AlarmNotifier.
func (n *Notifier) Notify(ctx context.Context, event alarmapp.AlarmEvent) {
	if n == nil || n.channel == nil {
		return
	}
	rule := n.lookup(ctx, event.Alarm)
	n.dispatch(ctx, event.Type, event.Alarm, rule)

	switch event.Type {
	case alarms.EventActive:
		n.scheduleEscalation(event.Alarm, rule)
	case alarms.EventAcknowledged, alarms.EventCleared:
		n.cancelEscalation(event.Alarm.ID)
	}
}

// Close stops all pending escalation timers.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	timers := n.timers
	n.timers = make(map[string]*time.Timer)
	n.mu.Unlock()
	for _, timer := range timers {
		if timer != nil {
			timer.Stop()
		}
	}
}

func (n *Notifier) lookup(ctx context.Context, alarm alarms.Alarm) *alarms.AlarmRule {
	rule, err := n.rules.GetByID(ctx, alarm.RuleID)
	if err != nil {
		n.logger.Warn("alarm notifier: rule lookup failed", zap.String("rule_id", alarm.RuleID), zap.Error(err))
		return nil
	}
	return rule
}

func (n *Notifier) dispatch(ctx context.Context, eventType string, alarm alarms.Alarm, rule *alarms.AlarmRule) {
	data := buildTemplateData(eventType, alarm, rule, n.dashboardURL)
	subject, content, err := n.template.Render(data)
	if err != nil {
		n.logger.Error("alarm notifier: render failed", zap.String("alarm_id", alarm.ID), zap.Error(err))
		return
	}
	if !n.shouldSend(alarm.ID, eventType, content) {
		return
	}
	if err := n.channel.Send(ctx, alarms.Message{Subject: subject, Text: content}); err != nil {
		n.logger.Warn("alarm notifier: send failed",
			zap.String("alarm_id", alarm.ID),
			zap.String("event", eventType),
			zap.Error(err))
		return
	}
	n.markSent(alarm.ID, eventType, content)
}

func (n *Notifier) scheduleEscalation(alarm alarms.Alarm, rule *alarms.AlarmRule) {
	if n.escalation <= 0 || alarm.ID == "" {
		return
	}
	if !severityAtLeast(severityOf(alarm, rule), "high") {
		return
	}
	n.mu.Lock()
	if existing, ok := n.timers[alarm.ID]; ok && existing != nil {
		existing.Stop()
	}
	n.timers[alarm.ID] = time.AfterFunc(n.escalation, func() {
		n.runEscalation(alarm.ID)
	})
	n.mu.Unlock()
}

func (n *Notifier) cancelEscalation(alarmID string) {
	if alarmID == "" {
		return
	}
	n.mu.Lock()
	timer := n.timers[alarmID]
	delete(n.timers, alarmID)
	n.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

func (n *Notifier) runEscalation(alarmID string) {
	n.mu.Lock()
	delete(n.timers, alarmID)
	n.mu.Unlock()

	ctx := context.Background()
	if n.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.requestTimeout)
		defer cancel()
	}

	alarm, err := n.alarms.GetByID(ctx, alarmID)
	if err != nil || alarm == nil {
		return
	}
	if alarm.Status != alarms.StatusActive {
		return
	}
	rule := n.lookup(ctx, *alarm)
	n.dispatch(ctx, alarms.EventEscalated, *alarm, rule)
}

func buildTemplateData(eventType string, alarm alarms.Alarm, rule *alarms.AlarmRule, dashboardURL string) TemplateData {
	ruleName := alarm.RuleID
	threshold := ""
	if rule != nil {
		if rule.Name != "" {
			ruleName = rule.Name
		}
		threshold = fmt.Sprintf("%s %s", rule.Operator, formatFloat(rule.Threshold))
	}
	startAt := alarm.StartAt
	if startAt.IsZero() {
		startAt = alarm.CreatedAt
	}
	device := alarm.DeviceID
	if device == "" {
		device = "unknown"
	}
	severity := severityOf(alarm, rule)

	return TemplateData{
		Device:       device,
		Rule:         ruleName,
		RuleID:       alarm.RuleID,
		Field:        string(alarm.Field),
		TriggerValue: formatFloat(alarm.LastValue),
		Threshold:    threshold,
		StartTime:    startAt.UTC().Format(time.RFC3339),
		Status:       alarm.Status,
		StatusCode:   alarm.Status,
		Severity:     severity,
		Suggestion:   suggestionFor(severity),
		DashboardURL: dashboardURL,
		Event:        eventType,
		EventLabel:   eventLabel(eventType),
	}
}

func severityOf(alarm alarms.Alarm, rule *alarms.AlarmRule) string {
	if alarm.Severity != "" {
		return alarm.Severity
	}
	if rule != nil {
		return rule.Severity
	}
	return ""
}

func eventLabel(event string) string {
	switch event {
	case alarms.EventActive:
		return "Triggered"
	case alarms.EventAcknowledged:
		return "Acknowledged"
	case alarms.EventCleared:
		return "Cleared"
	case alarms.EventEscalated:
		return "Escalated"
	default:
		return event
	}
}

func suggestionFor(severity string) string {
	switch strings.TrimSpace(strings.ToLower(severity)) {
	case "critical", "high":
		return "Inspect the panel and wiring immediately."
	case "medium":
		return "Verify the reading and take action if needed."
	case "":
		return "Inspect the device and confirm the alarm condition."
	default:
		return "Monitor the alarm condition."
	}
}

func severityAtLeast(value, target string) bool {
	return severityRank(value) >= severityRank(target)
}

func severityRank(value string) int {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "critical":
		return 4
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	default:
		return 0
	}
}

func formatFloat(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

func (n *Notifier) shouldSend(alarmID, eventType, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	key := notificationKey(alarmID, eventType)
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(alarmID, eventType, content string) {
	key := notificationKey(alarmID, eventType)
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func notificationKey(alarmID, eventType string) string {
	return alarmID + "|" + eventType
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
