package statistic

import (
	"math"
	"sort"

	telemetry "solar-dashboard/internal/telemetry/domain"
)

// DailyEnergy is the integrated energy of one UTC calendar date.
type DailyEnergy struct {
	Date string  `json:"date"`
	KWh  float64 `json:"kwh"`
}

const (
	minIntervalSeconds = 1.0
	secondsPerHour     = 3600.0
	whPerKWh           = 1000.0
)

// DailyEnergyFrom integrates power over the elapsed time between
// consecutive readings. Each interval uses the earlier reading's power and is
// attributed to the earlier reading's date, so intervals spanning midnight
// count toward the day they started in. Intervals shorter than one second
// count as one second. Values are rounded to 4 decimals.
func DailyEnergyFrom(readings []telemetry.Reading) []DailyEnergy {
	if len(readings) < 2 {
		return []DailyEnergy{}
	}
	ordered := readings
	if !sort.SliceIsSorted(readings, func(i, j int) bool { return readings[i].Timestamp.Before(readings[j].Timestamp) }) {
		ordered = append([]telemetry.Reading(nil), readings...)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Timestamp.Before(ordered[j].Timestamp) })
	}

	perDay := make(map[string]float64)
	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		perDay[DateKey(prev.Timestamp)] += intervalKWh(prev, cur)
	}

	days := make([]string, 0, len(perDay))
	for day := range perDay {
		days = append(days, day)
	}
	sort.Strings(days)

	out := make([]DailyEnergy, 0, len(days))
	for _, day := range days {
		out = append(out, DailyEnergy{Date: day, KWh: round(perDay[day], 4)})
	}
	return out
}

// TotalKWh integrates the whole series without date attribution or rounding.
func TotalKWh(readings []telemetry.Reading) float64 {
	total := 0.0
	for i := 1; i < len(readings); i++ {
		total += intervalKWh(readings[i-1], readings[i])
	}
	return total
}

func intervalKWh(prev, cur telemetry.Reading) float64 {
	dt := math.Max(minIntervalSeconds, cur.Timestamp.Sub(prev.Timestamp).Seconds())
	wh := prev.Power * dt / secondsPerHour
	return wh / whPerKWh
}

func round(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}
