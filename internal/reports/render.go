package reports

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"solar-dashboard/internal/analytics/domain/statistic"
)

var summaryTemplate = template.Must(template.New("summary").Funcs(template.FuncMap{
	"stat":  statCell,
	"light": lightCell,
	"ts":    func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
}).Parse(`<h2>Solar Dashboard Summary Report</h2>
<p><strong>Generated on:</strong> {{ts .GeneratedAt}}</p>

<h3>Current Live Data</h3>
{{with .Latest}}<ul>
  <li><strong>Voltage:</strong> {{.Voltage}} V</li>
  <li><strong>Current:</strong> {{.Current}} A</li>
  <li><strong>Power:</strong> {{.Power}} W</li>
  <li><strong>Light (Raw):</strong> {{.LightRaw}}</li>
  <li><strong>Timestamp:</strong> {{ts .Timestamp}}</li>
</ul>{{else}}<p>No live data available.</p>{{end}}

<h3>Recent Data Summary (Last {{.Summary.Count}} readings)</h3>
<table border="1" style="border-collapse: collapse;">
  <tr><th>Metric</th><th>Average</th><th>Min</th><th>Max</th></tr>
  <tr><td>Voltage (V)</td><td>{{stat .Summary.Count .Summary.Voltage.Avg}}</td><td>{{stat .Summary.Count .Summary.Voltage.Min}}</td><td>{{stat .Summary.Count .Summary.Voltage.Max}}</td></tr>
  <tr><td>Current (A)</td><td>{{stat .Summary.Count .Summary.Current.Avg}}</td><td>{{stat .Summary.Count .Summary.Current.Min}}</td><td>{{stat .Summary.Count .Summary.Current.Max}}</td></tr>
  <tr><td>Power (W)</td><td>{{stat .Summary.Count .Summary.Power.Avg}}</td><td>{{stat .Summary.Count .Summary.Power.Min}}</td><td>{{stat .Summary.Count .Summary.Power.Max}}</td></tr>
  <tr><td>Light (Raw)</td><td>{{light .Summary.Count .Summary.Light.Avg}}</td><td>N/A</td><td>N/A</td></tr>
</table>
{{if .DailyEnergy}}
<h3>Daily Energy</h3>
<table border="1" style="border-collapse: collapse;">
  <tr><th>Date</th><th>Energy (kWh)</th></tr>
{{range .DailyEnergy}}  <tr><td>{{.Date}}</td><td>{{printf "%.4f" .KWh}}</td></tr>
{{end}}</table>
{{end}}
<p>This report was generated from the Solar Dashboard.</p>
`))

// RenderHTML renders the email body.
func RenderHTML(report Report) (string, error) {
	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderText renders a plain-text alternative.
func RenderText(report Report) string {
	var b strings.Builder
	s := report.Summary
	fmt.Fprintf(&b, "Solar Dashboard Summary Report\nGenerated on: %s\n\n", report.GeneratedAt.UTC().Format(time.RFC3339))
	if report.Latest != nil {
		fmt.Fprintf(&b, "Latest: %v V, %v A, %v W, light %v at %s\n\n",
			report.Latest.Voltage, report.Latest.Current, report.Latest.Power, report.Latest.LightRaw,
			report.Latest.Timestamp.UTC().Format(time.RFC3339))
	} else {
		b.WriteString("No live data available.\n\n")
	}
	fmt.Fprintf(&b, "Last %d readings (avg/min/max)\n", s.Count)
	writeRow(&b, "Voltage (V)", s.Count, s.Voltage)
	writeRow(&b, "Current (A)", s.Count, s.Current)
	writeRow(&b, "Power (W)", s.Count, s.Power)
	fmt.Fprintf(&b, "Light (Raw): %s\n", lightCell(s.Count, s.Light.Avg))
	return b.String()
}

func writeRow(b *strings.Builder, label string, count int, stats statistic.FieldStats) {
	fmt.Fprintf(b, "%s: %s / %s / %s\n", label, statCell(count, stats.Avg), statCell(count, stats.Min), statCell(count, stats.Max))
}

func statCell(count int, v float64) string {
	if count == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", v)
}

func lightCell(count int, v float64) string {
	if count == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.0f", v)
}
