package statistic

import (
	"math"

	telemetry "solar-dashboard/internal/telemetry/domain"
)

const (
	minBarHeightPct = 4
	minBarScale     = 0.0001
)

// HourlyAverage is the mean power of one UTC hour-of-day across all dates.
type HourlyAverage struct {
	Hour      int     `json:"hour"`
	Avg       float64 `json:"avg"`
	Samples   int     `json:"samples"`
	HeightPct int     `json:"height_pct"`
}

// HourlyAverages buckets readings by UTC hour-of-day, ignoring the calendar
// date. It always returns 24 entries, hours 0..23.
func HourlyAverages(readings []telemetry.Reading) []HourlyAverage {
	var (
		sums   [HoursPerDay]float64
		counts [HoursPerDay]int
	)
	for _, r := range readings {
		if r.Timestamp.IsZero() {
			continue
		}
		h := HourOfDay(r.Timestamp)
		sums[h] += r.Power
		counts[h]++
	}

	out := make([]HourlyAverage, HoursPerDay)
	maxAvg := 0.0
	for h := 0; h < HoursPerDay; h++ {
		out[h] = HourlyAverage{Hour: h, Samples: counts[h]}
		if counts[h] > 0 {
			out[h].Avg = sums[h] / float64(counts[h])
		}
		maxAvg = math.Max(maxAvg, out[h].Avg)
	}

	scale := math.Max(maxAvg, minBarScale)
	for h := range out {
		pct := int(math.Round(out[h].Avg / scale * 100))
		if pct < minBarHeightPct {
			pct = minBarHeightPct
		}
		out[h].HeightPct = pct
	}
	return out
}
