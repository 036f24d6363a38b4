package alarms

import "errors"

var (
	// ErrNotFound indicates a missing alarm record.
	ErrNotFound = errors.New("alarm: not found")
	// ErrInvalidRule indicates a rule that fails validation.
	ErrInvalidRule = errors.New("alarm: invalid rule")
	// ErrInvalidAlert indicates a manual alert request missing required values.
	ErrInvalidAlert = errors.New("alarm: invalid alert")
)
