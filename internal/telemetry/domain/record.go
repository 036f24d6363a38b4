package telemetry

import (
	"strconv"
	"time"
)

// CSVHeader is the column order of the append log and CSV exports.
var CSVHeader = []string{"timestamp", "device_id", "voltage", "current", "power", "light_raw"}

// FormatTimestamp renders a timestamp the way stores and exports persist it.
func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

// CSVRecord renders the reading in CSVHeader order.
func (r Reading) CSVRecord() []string {
	return []string{
		FormatTimestamp(r.Timestamp),
		r.DeviceID,
		formatFloat(r.Voltage),
		formatFloat(r.Current),
		formatFloat(r.Power),
		formatFloat(r.LightRaw),
	}
}

// RecordFromCSV maps a CSV row keyed by header to a Reading. Rows without a
// parseable timestamp are skipped.
func RecordFromCSV(header, row []string) (Reading, bool) {
	raw := make(map[string]any, len(header))
	for i, name := range header {
		if i >= len(row) {
			break
		}
		raw[name] = row[i]
	}
	return NormalizeRecord(raw)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
