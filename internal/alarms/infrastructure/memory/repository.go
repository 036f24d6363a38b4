package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	alarms "solar-dashboard/internal/alarms/domain"
)

// AlarmRepository keeps alarms in process memory.
type AlarmRepository struct {
	mu     sync.RWMutex
	alarms map[string]alarms.Alarm
}

// NewAlarmRepository constructs an empty alarm repository.
func NewAlarmRepository() *AlarmRepository {
	return &AlarmRepository{alarms: make(map[string]alarms.Alarm)}
}

// Create stores a new alarm.
func (r *AlarmRepository) Create(_ context.Context, alarm *alarms.Alarm) error {
	if alarm == nil || alarm.ID == "" {
		return errors.New("alarm repository: empty alarm")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.alarms[alarm.ID]; exists {
		return errors.New("alarm repository: duplicate id " + alarm.ID)
	}
	r.alarms[alarm.ID] = *alarm
	return nil
}

// GetByID returns a copy of the alarm or nil.
func (r *AlarmRepository) GetByID(_ context.Context, id string) (*alarms.Alarm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	alarm, ok := r.alarms[id]
	if !ok {
		return nil, nil
	}
	return &alarm, nil
}

// FindOpen returns the open alarm for a rule and device.
func (r *AlarmRepository) FindOpen(_ context.Context, ruleID, deviceID string) (*alarms.Alarm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, alarm := range r.alarms {
		if alarm.RuleID == ruleID && alarm.DeviceID == deviceID && alarm.Open() {
			found := alarm
			return &found, nil
		}
	}
	return nil, nil
}

// Update replaces a stored alarm.
func (r *AlarmRepository) Update(_ context.Context, alarm *alarms.Alarm) error {
	if alarm == nil {
		return errors.New("alarm repository: empty alarm")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.alarms[alarm.ID]; !ok {
		return alarms.ErrNotFound
	}
	r.alarms[alarm.ID] = *alarm
	return nil
}

// List returns matching alarms newest first.
func (r *AlarmRepository) List(_ context.Context, filter alarms.ListFilter) ([]alarms.Alarm, error) {
	r.mu.RLock()
	out := make([]alarms.Alarm, 0, len(r.alarms))
	for _, alarm := range r.alarms {
		if filter.Status != "" && alarm.Status != filter.Status {
			continue
		}
		if filter.DeviceID != "" && alarm.DeviceID != filter.DeviceID {
			continue
		}
		out = append(out, alarm)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartAt.After(out[j].StartAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// RuleRepository serves a fixed rule set loaded from configuration.
type RuleRepository struct {
	rules []alarms.AlarmRule
}

// NewRuleRepository validates and stores rules. Duplicate ids are rejected.
func NewRuleRepository(rules []alarms.AlarmRule) (*RuleRepository, error) {
	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[rule.ID]; dup {
			return nil, errors.New("rule repository: duplicate rule id " + rule.ID)
		}
		seen[rule.ID] = struct{}{}
	}
	return &RuleRepository{rules: append([]alarms.AlarmRule(nil), rules...)}, nil
}

// ListEnabled returns enabled rules in configuration order.
func (r *RuleRepository) ListEnabled(_ context.Context) ([]alarms.AlarmRule, error) {
	out := make([]alarms.AlarmRule, 0, len(r.rules))
	for _, rule := range r.rules {
		if rule.Enabled {
			out = append(out, rule)
		}
	}
	return out, nil
}

// GetByID returns the rule or nil.
func (r *RuleRepository) GetByID(_ context.Context, id string) (*alarms.AlarmRule, error) {
	for _, rule := range r.rules {
		if rule.ID == id {
			found := rule
			return &found, nil
		}
	}
	return nil, nil
}
