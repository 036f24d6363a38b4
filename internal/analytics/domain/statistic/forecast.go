package statistic

import (
	"sort"
	"time"

	telemetry "solar-dashboard/internal/telemetry/domain"
)

const (
	// ForecastSource labels profile-replay forecasts.
	ForecastSource = "yesterday_profile"
	// DefaultMinDaySamples is the sample count a date needs to count as a full day.
	DefaultMinDaySamples = 20
)

// ProfileSample is one point of a forecast source series.
type ProfileSample struct {
	Timestamp  time.Time `json:"timestamp"`
	Power      float64   `json:"power"`
	Irradiance float64   `json:"irradiance"`
}

// HourMean is the mean power and irradiance of one UTC hour of the source day.
type HourMean struct {
	Hour       int     `json:"hour"`
	Power      float64 `json:"power"`
	Irradiance float64 `json:"irradiance"`
	Samples    int     `json:"samples"`
}

// ForecastPoint is one hour of the projected day.
type ForecastPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	Hour       int       `json:"hour"`
	Power      float64   `json:"power"`
	Irradiance float64   `json:"irradiance"`
}

// Forecast replays the source day's hourly profile onto the following day.
// It assumes tomorrow repeats the source day and makes no other prediction.
type Forecast struct {
	Source        string          `json:"source"`
	SourceDate    string          `json:"source_date"`
	SourceSamples int             `json:"source_samples"`
	Points        []ForecastPoint `json:"forecast"`
}

type forecastConfig struct {
	minDaySamples int
	asOf          string
}

// ForecastOption configures forecast generation.
type ForecastOption func(*forecastConfig)

// WithMinDaySamples overrides the full-day sample threshold.
func WithMinDaySamples(n int) ForecastOption {
	return func(c *forecastConfig) {
		if n > 0 {
			c.minDaySamples = n
		}
	}
}

// WithAsOf restricts source day candidates to dates on or before asOf.
func WithAsOf(asOf time.Time) ForecastOption {
	return func(c *forecastConfig) {
		if !asOf.IsZero() {
			c.asOf = DateKey(asOf)
		}
	}
}

// ProfileFromReadings maps readings to profile samples, using the raw light
// level as irradiance.
func ProfileFromReadings(readings []telemetry.Reading) []ProfileSample {
	samples := make([]ProfileSample, 0, len(readings))
	for _, r := range readings {
		samples = append(samples, ProfileSample{Timestamp: r.Timestamp, Power: r.Power, Irradiance: r.LightRaw})
	}
	return samples
}

// SelectSourceDate picks the most recent date with at least minSamples
// samples, scanning backward from the latest date. When no date qualifies the
// most recent date is used regardless of count.
func SelectSourceDate(byDate map[string][]ProfileSample, minSamples int) (string, error) {
	if len(byDate) == 0 {
		return "", ErrNoSourceDay
	}
	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	for i := len(dates) - 1; i >= 0; i-- {
		if len(byDate[dates[i]]) >= minSamples {
			return dates[i], nil
		}
	}
	return dates[len(dates)-1], nil
}

// HourlyProfile computes per-hour means over one day's samples. Hours without
// samples have zero means.
func HourlyProfile(samples []ProfileSample) []HourMean {
	var (
		power  [HoursPerDay]float64
		irr    [HoursPerDay]float64
		counts [HoursPerDay]int
	)
	for _, s := range samples {
		h := HourOfDay(s.Timestamp)
		power[h] += s.Power
		irr[h] += s.Irradiance
		counts[h]++
	}
	profile := make([]HourMean, HoursPerDay)
	for h := 0; h < HoursPerDay; h++ {
		profile[h] = HourMean{Hour: h, Samples: counts[h]}
		if counts[h] > 0 {
			profile[h].Power = power[h] / float64(counts[h])
			profile[h].Irradiance = irr[h] / float64(counts[h])
		}
	}
	return profile
}

// ForecastFromProfile builds a 24-hour forecast for the day after the chosen
// source day.
func ForecastFromProfile(samples []ProfileSample, opts ...ForecastOption) (Forecast, error) {
	cfg := forecastConfig{minDaySamples: DefaultMinDaySamples}
	for _, opt := range opts {
		opt(&cfg)
	}

	byDate := make(map[string][]ProfileSample)
	for _, s := range samples {
		if s.Timestamp.IsZero() {
			continue
		}
		date := DateKey(s.Timestamp)
		if cfg.asOf != "" && date > cfg.asOf {
			continue
		}
		byDate[date] = append(byDate[date], s)
	}

	sourceDate, err := SelectSourceDate(byDate, cfg.minDaySamples)
	if err != nil {
		return Forecast{}, err
	}
	day, err := ParseDateKey(sourceDate)
	if err != nil {
		return Forecast{}, err
	}
	next := day.AddDate(0, 0, 1)

	profile := HourlyProfile(byDate[sourceDate])
	points := make([]ForecastPoint, 0, HoursPerDay)
	for _, h := range profile {
		points = append(points, ForecastPoint{
			Timestamp:  next.Add(time.Duration(h.Hour) * time.Hour),
			Hour:       h.Hour,
			Power:      h.Power,
			Irradiance: h.Irradiance,
		})
	}
	return Forecast{
		Source:        ForecastSource,
		SourceDate:    sourceDate,
		SourceSamples: len(byDate[sourceDate]),
		Points:        points,
	}, nil
}
