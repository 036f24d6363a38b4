package statistic

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	telemetry "solar-dashboard/internal/telemetry/domain"
)

// FieldStats summarizes one numeric field within a bucket.
type FieldStats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// MinuteBucket aggregates all readings that truncate to the same minute.
type MinuteBucket struct {
	Minute  time.Time  `json:"timestamp"`
	Count   int        `json:"count"`
	Voltage FieldStats `json:"voltage"`
	Current FieldStats `json:"current"`
	Power   FieldStats `json:"power"`
	Light   FieldStats `json:"light"`
}

// MinuteDelta is the change of each field's mean against the preceding
// bucket. The first bucket has nil deltas.
type MinuteDelta struct {
	Minute  time.Time `json:"timestamp"`
	Voltage *float64  `json:"voltage"`
	Current *float64  `json:"current"`
	Power   *float64  `json:"power"`
	Light   *float64  `json:"light"`
}

type minuteSeries struct {
	voltage, current, power, light []float64
}

// AggregateByMinute buckets readings by UTC minute, ascending by key.
func AggregateByMinute(readings []telemetry.Reading) []MinuteBucket {
	if len(readings) == 0 {
		return []MinuteBucket{}
	}
	groups := make(map[time.Time]*minuteSeries)
	keys := make([]time.Time, 0)
	for _, r := range readings {
		key := TruncateToMinute(r.Timestamp)
		g, ok := groups[key]
		if !ok {
			g = &minuteSeries{}
			groups[key] = g
			keys = append(keys, key)
		}
		g.voltage = append(g.voltage, r.Voltage)
		g.current = append(g.current, r.Current)
		g.power = append(g.power, r.Power)
		g.light = append(g.light, r.LightRaw)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	buckets := make([]MinuteBucket, 0, len(keys))
	for _, key := range keys {
		g := groups[key]
		buckets = append(buckets, MinuteBucket{
			Minute:  key,
			Count:   len(g.power),
			Voltage: summarize(g.voltage),
			Current: summarize(g.current),
			Power:   summarize(g.power),
			Light:   summarize(g.light),
		})
	}
	return buckets
}

// MinuteDeltas computes per-field mean deltas between consecutive buckets.
func MinuteDeltas(buckets []MinuteBucket) []MinuteDelta {
	deltas := make([]MinuteDelta, 0, len(buckets))
	for i, b := range buckets {
		d := MinuteDelta{Minute: b.Minute}
		if i > 0 {
			prev := buckets[i-1]
			d.Voltage = diff(b.Voltage.Avg, prev.Voltage.Avg)
			d.Current = diff(b.Current.Avg, prev.Current.Avg)
			d.Power = diff(b.Power.Avg, prev.Power.Avg)
			d.Light = diff(b.Light.Avg, prev.Light.Avg)
		}
		deltas = append(deltas, d)
	}
	return deltas
}

func summarize(values []float64) FieldStats {
	return FieldStats{
		Min: floats.Min(values),
		Max: floats.Max(values),
		Avg: stat.Mean(values, nil),
	}
}

func diff(cur, prev float64) *float64 {
	d := cur - prev
	return &d
}
