package statistic

import (
	"errors"
	"fmt"

	telemetry "solar-dashboard/internal/telemetry/domain"
)

var (
	// ErrNoSourceDay is returned when no calendar date can seed a forecast.
	ErrNoSourceDay = fmt.Errorf("%w: no source day for forecast", telemetry.ErrNoData)
	// ErrInvalidSourceDate is returned for an unparseable source date key.
	ErrInvalidSourceDate = errors.New("statistic: invalid source date")
)
