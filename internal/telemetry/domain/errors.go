package telemetry

import "errors"

var (
	// ErrValidation is returned for malformed or missing required input.
	ErrValidation = errors.New("telemetry: validation error")
	// ErrStorage is returned when the sequence store cannot persist or retrieve data.
	ErrStorage = errors.New("telemetry: storage error")
	// ErrNoData is returned when a result needs at least one data point and none is available.
	ErrNoData = errors.New("telemetry: no data")
)
