package statistic

import "time"

// DateLayout is the calendar-date key format.
const DateLayout = "2006-01-02"

// HoursPerDay is the number of hour-of-day buckets.
const HoursPerDay = 24

// TruncateToMinute drops sub-minute components in UTC.
func TruncateToMinute(ts time.Time) time.Time {
	return ts.UTC().Truncate(time.Minute)
}

// TruncateToDay returns UTC midnight of the timestamp's date.
func TruncateToDay(ts time.Time) time.Time {
	u := ts.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DateKey returns the UTC calendar date of ts.
func DateKey(ts time.Time) string {
	return ts.UTC().Format(DateLayout)
}

// HourOfDay returns the UTC hour of ts.
func HourOfDay(ts time.Time) int {
	return ts.UTC().Hour()
}

// ParseDateKey parses a calendar date key as UTC midnight.
func ParseDateKey(key string) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, key, time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidSourceDate
	}
	return day, nil
}
