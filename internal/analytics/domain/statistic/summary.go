package statistic

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	telemetry "solar-dashboard/internal/telemetry/domain"
)

// Summary describes a reading window.
type Summary struct {
	Count   int                `json:"count"`
	Voltage FieldStats         `json:"voltage"`
	Current FieldStats         `json:"current"`
	Power   FieldStats         `json:"power"`
	Light   FieldStats         `json:"light"`
	Latest  *telemetry.Reading `json:"latest,omitempty"`
}

// Summarize computes min/max/mean per field over readings. The latest reading
// is the last element. An empty window yields a zero summary.
func Summarize(readings []telemetry.Reading) Summary {
	if len(readings) == 0 {
		return Summary{}
	}
	var s minuteSeries
	for _, r := range readings {
		s.voltage = append(s.voltage, r.Voltage)
		s.current = append(s.current, r.Current)
		s.power = append(s.power, r.Power)
		s.light = append(s.light, r.LightRaw)
	}
	latest := readings[len(readings)-1]
	return Summary{
		Count:   len(readings),
		Voltage: summarize(s.voltage),
		Current: summarize(s.current),
		Power:   summarize(s.power),
		Light:   summarize(s.light),
		Latest:  &latest,
	}
}

// PeakPower returns the highest power in readings, or 0.
func PeakPower(readings []telemetry.Reading) float64 {
	if len(readings) == 0 {
		return 0
	}
	powers := make([]float64, len(readings))
	for i, r := range readings {
		powers[i] = r.Power
	}
	return floats.Max(powers)
}

// MeanPower returns the mean power of readings, or 0.
func MeanPower(readings []telemetry.Reading) float64 {
	if len(readings) == 0 {
		return 0
	}
	powers := make([]float64, len(readings))
	for i, r := range readings {
		powers[i] = r.Power
	}
	return stat.Mean(powers, nil)
}
