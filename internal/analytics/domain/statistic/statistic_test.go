package statistic

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	telemetry "solar-dashboard/internal/telemetry/domain"
)

func at(s string) time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return ts
}

func randomReadings(rng *rand.Rand, n int, start time.Time) []telemetry.Reading {
	readings := make([]telemetry.Reading, 0, n)
	ts := start
	for i := 0; i < n; i++ {
		ts = ts.Add(time.Duration(rng.Intn(5400)) * time.Second)
		readings = append(readings, telemetry.Reading{
			Timestamp: ts,
			Voltage:   rng.Float64() * 15,
			Current:   rng.Float64() * 2,
			Power:     rng.Float64() * 300,
			LightRaw:  float64(rng.Intn(4096)),
		})
	}
	return readings
}

func TestAggregateByMinuteOrderedNonEmpty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		readings := randomReadings(rng, 50+trial, at("2024-01-01T00:00:00Z"))
		rng.Shuffle(len(readings), func(i, j int) { readings[i], readings[j] = readings[j], readings[i] })

		buckets := AggregateByMinute(readings)
		total := 0
		for i, b := range buckets {
			assert.GreaterOrEqual(t, b.Count, 1)
			assert.Equal(t, b.Minute, b.Minute.Truncate(time.Minute))
			if i > 0 {
				assert.True(t, buckets[i-1].Minute.Before(b.Minute))
			}
			assert.LessOrEqual(t, b.Power.Min, b.Power.Avg)
			assert.GreaterOrEqual(t, b.Power.Max, b.Power.Avg)
			total += b.Count
		}
		assert.Equal(t, len(readings), total)
	}
}

func TestAggregateByMinuteStats(t *testing.T) {
	readings := []telemetry.Reading{
		{Timestamp: at("2024-01-01T10:00:59Z"), Voltage: 12, Power: 30, LightRaw: 100},
		{Timestamp: at("2024-01-01T10:00:01Z"), Voltage: 10, Power: 10, LightRaw: 300},
		{Timestamp: at("2024-01-01T09:59:30Z"), Voltage: 11, Power: 5},
	}
	buckets := AggregateByMinute(readings)
	require.Len(t, buckets, 2)
	assert.Equal(t, at("2024-01-01T09:59:00Z"), buckets[0].Minute)
	assert.Equal(t, 1, buckets[0].Count)

	b := buckets[1]
	assert.Equal(t, at("2024-01-01T10:00:00Z"), b.Minute)
	assert.Equal(t, 2, b.Count)
	assert.Equal(t, FieldStats{Min: 10, Max: 12, Avg: 11}, b.Voltage)
	assert.Equal(t, FieldStats{Min: 10, Max: 30, Avg: 20}, b.Power)
	assert.Equal(t, 200.0, b.Light.Avg)
}

func TestMinuteDeltas(t *testing.T) {
	buckets := AggregateByMinute([]telemetry.Reading{
		{Timestamp: at("2024-01-01T10:00:00Z"), Power: 10, Voltage: 12},
		{Timestamp: at("2024-01-01T10:01:00Z"), Power: 25, Voltage: 11.5},
	})
	deltas := MinuteDeltas(buckets)
	require.Len(t, deltas, 2)
	assert.Nil(t, deltas[0].Power)
	assert.Nil(t, deltas[0].Voltage)
	require.NotNil(t, deltas[1].Power)
	assert.Equal(t, 15.0, *deltas[1].Power)
	assert.Equal(t, -0.5, *deltas[1].Voltage)
	assert.Equal(t, 0.0, *deltas[1].Current)
}

func TestDailyEnergyConcreteScenario(t *testing.T) {
	out := DailyEnergyFrom([]telemetry.Reading{
		{Timestamp: at("2024-01-01T00:00:00Z"), Power: 100},
		{Timestamp: at("2024-01-01T01:00:00Z"), Power: 200},
	})
	assert.Equal(t, []DailyEnergy{{Date: "2024-01-01", KWh: 0.1}}, out)
}

func TestDailyEnergyAttributesIntervalToStartDate(t *testing.T) {
	out := DailyEnergyFrom([]telemetry.Reading{
		{Timestamp: at("2024-01-01T23:30:00Z"), Power: 1000},
		{Timestamp: at("2024-01-02T00:30:00Z"), Power: 500},
		{Timestamp: at("2024-01-02T01:30:00Z"), Power: 0},
	})
	require.Len(t, out, 2)
	assert.Equal(t, DailyEnergy{Date: "2024-01-01", KWh: 1}, out[0])
	assert.Equal(t, DailyEnergy{Date: "2024-01-02", KWh: 0.5}, out[1])
}

func TestDailyEnergyMinimumInterval(t *testing.T) {
	out := DailyEnergyFrom([]telemetry.Reading{
		{Timestamp: at("2024-01-01T12:00:00Z"), Power: 3600},
		{Timestamp: at("2024-01-01T12:00:00Z"), Power: 3600},
	})
	require.Len(t, out, 1)
	assert.Equal(t, 0.001, out[0].KWh)
}

func TestDailyEnergyContinuity(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 20; trial++ {
		readings := randomReadings(rng, 80, at("2024-03-10T18:00:00Z"))
		out := DailyEnergyFrom(readings)
		require.Greater(t, len(out), 1, "series must cross a date boundary")

		sum := 0.0
		for _, d := range out {
			sum += d.KWh
		}
		total := TotalKWh(readings)
		// each emitted value is rounded to 4 decimals
		assert.InDelta(t, total, sum, float64(len(out))*0.00005+1e-9)
	}
}

func TestDailyEnergySortsUnorderedInput(t *testing.T) {
	ordered := []telemetry.Reading{
		{Timestamp: at("2024-01-01T00:00:00Z"), Power: 100},
		{Timestamp: at("2024-01-01T01:00:00Z"), Power: 200},
		{Timestamp: at("2024-01-01T02:00:00Z"), Power: 50},
	}
	shuffled := []telemetry.Reading{ordered[2], ordered[0], ordered[1]}
	assert.Equal(t, DailyEnergyFrom(ordered), DailyEnergyFrom(shuffled))
	assert.Equal(t, at("2024-01-01T02:00:00Z"), shuffled[0].Timestamp, "input is not reordered")
}

func TestHourlyAveragesDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	readings := randomReadings(rng, 200, at("2024-01-01T00:00:00Z"))
	first := HourlyAverages(readings)
	second := HourlyAverages(readings)
	require.Len(t, first, HoursPerDay)
	for h := range first {
		assert.Equal(t, math.Float64bits(first[h].Avg), math.Float64bits(second[h].Avg))
		assert.Equal(t, first[h], second[h])
	}
}

func TestHourlyAveragesAcrossDates(t *testing.T) {
	out := HourlyAverages([]telemetry.Reading{
		{Timestamp: at("2024-01-01T05:10:00Z"), Power: 40},
		{Timestamp: at("2024-01-02T05:50:00Z"), Power: 60},
		{Timestamp: at("2024-01-02T12:00:00Z"), Power: 100},
	})
	require.Len(t, out, 24)
	assert.Equal(t, HourlyAverage{Hour: 5, Avg: 50, Samples: 2, HeightPct: 50}, out[5])
	assert.Equal(t, HourlyAverage{Hour: 12, Avg: 100, Samples: 1, HeightPct: 100}, out[12])
	assert.Equal(t, HourlyAverage{Hour: 0, Avg: 0, Samples: 0, HeightPct: 4}, out[0])
}

func TestEmptyInputs(t *testing.T) {
	assert.Empty(t, AggregateByMinute(nil))
	assert.NotNil(t, AggregateByMinute(nil))
	assert.Empty(t, MinuteDeltas(nil))
	assert.Empty(t, DailyEnergyFrom(nil))
	assert.Empty(t, DailyEnergyFrom([]telemetry.Reading{{Timestamp: at("2024-01-01T00:00:00Z"), Power: 100}}))

	hourly := HourlyAverages(nil)
	require.Len(t, hourly, 24)
	for h, entry := range hourly {
		assert.Equal(t, h, entry.Hour)
		assert.Zero(t, entry.Avg)
		assert.Zero(t, entry.Samples)
		assert.Equal(t, 4, entry.HeightPct)
	}

	_, err := ForecastFromProfile(nil)
	assert.True(t, errors.Is(err, telemetry.ErrNoData))
}

func TestForecastHourlyProfileScenario(t *testing.T) {
	samples := make([]ProfileSample, 0, 24)
	day := at("2024-01-01T00:00:00Z")
	for h := 0; h < 24; h++ {
		samples = append(samples, ProfileSample{Timestamp: day.Add(time.Duration(h) * time.Hour), Power: float64(h * 10)})
	}

	fc, err := ForecastFromProfile(samples)
	require.NoError(t, err)
	assert.Equal(t, ForecastSource, fc.Source)
	assert.Equal(t, "2024-01-01", fc.SourceDate)
	require.Len(t, fc.Points, 24)
	assert.Equal(t, 5, fc.Points[5].Hour)
	assert.Equal(t, 50.0, fc.Points[5].Power)
	assert.Equal(t, at("2024-01-02T05:00:00Z"), fc.Points[5].Timestamp)
	assert.Equal(t, at("2024-01-02T00:00:00Z"), fc.Points[0].Timestamp)
}

func samplesOn(date string, n int, power float64) []ProfileSample {
	day := at(date + "T00:00:00Z")
	out := make([]ProfileSample, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ProfileSample{Timestamp: day.Add(time.Duration(i) * 30 * time.Minute), Power: power, Irradiance: power * 2})
	}
	return out
}

func TestForecastPicksMostRecentQualifyingDate(t *testing.T) {
	var samples []ProfileSample
	samples = append(samples, samplesOn("2024-01-01", 24, 10)...)
	samples = append(samples, samplesOn("2024-01-02", 5, 20)...)
	samples = append(samples, samplesOn("2024-01-03", 3, 30)...)

	fc, err := ForecastFromProfile(samples)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", fc.SourceDate)
	assert.Equal(t, 24, fc.SourceSamples)
	assert.Equal(t, at("2024-01-02T00:00:00Z"), fc.Points[0].Timestamp)
	assert.Equal(t, 10.0, fc.Points[0].Power)
	assert.Equal(t, 20.0, fc.Points[0].Irradiance)
}

func TestForecastFallsBackToMostRecentDate(t *testing.T) {
	var samples []ProfileSample
	samples = append(samples, samplesOn("2024-01-01", 10, 10)...)
	samples = append(samples, samplesOn("2024-01-02", 5, 20)...)
	samples = append(samples, samplesOn("2024-01-03", 3, 30)...)

	fc, err := ForecastFromProfile(samples)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-03", fc.SourceDate, "fallback is the latest date, not the oldest")
	assert.Equal(t, 30.0, fc.Points[0].Power)
	assert.Zero(t, fc.Points[23].Power, "hours without samples are zero")
}

func TestForecastAsOf(t *testing.T) {
	var samples []ProfileSample
	samples = append(samples, samplesOn("2024-01-01", 24, 10)...)
	samples = append(samples, samplesOn("2024-01-02", 24, 20)...)

	fc, err := ForecastFromProfile(samples, WithAsOf(at("2024-01-01T18:00:00Z")))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", fc.SourceDate)

	_, err = ForecastFromProfile(samples, WithAsOf(at("2023-12-31T00:00:00Z")))
	assert.ErrorIs(t, err, ErrNoSourceDay)
}

func TestForecastMinDaySamplesOption(t *testing.T) {
	var samples []ProfileSample
	samples = append(samples, samplesOn("2024-01-01", 10, 10)...)
	samples = append(samples, samplesOn("2024-01-02", 5, 20)...)

	fc, err := ForecastFromProfile(samples, WithMinDaySamples(8))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", fc.SourceDate)
}

func TestSelectSourceDate(t *testing.T) {
	_, err := SelectSourceDate(nil, 20)
	assert.ErrorIs(t, err, ErrNoSourceDay)

	byDate := map[string][]ProfileSample{
		"2024-02-01": samplesOn("2024-02-01", 20, 1),
		"2024-02-03": samplesOn("2024-02-03", 20, 1),
		"2024-02-02": samplesOn("2024-02-02", 30, 1),
	}
	date, err := SelectSourceDate(byDate, 20)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-03", date)
}
