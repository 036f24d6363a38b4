package bridge

import (
	"regexp"
	"strconv"
	"strings"
)

// Sample is one device measurement read from the serial line.
type Sample struct {
	Voltage  float64 `json:"voltage"`
	Current  float64 `json:"current"`
	Power    float64 `json:"power"`
	LightRaw int     `json:"light_raw"`
}

var (
	voltagePattern = regexp.MustCompile(`Voltage:\s*([\d.]+)\s*V`)
	currentPattern = regexp.MustCompile(`Current:\s*([\d.]+)\s*A`)
	powerPattern   = regexp.MustCompile(`Power:\s*([\d.]+)\s*W`)
	lightPattern   = regexp.MustCompile(`Light \(Raw ADC\):\s*(\d+)`)
)

// Parser turns firmware output lines into samples. It understands the CSV form
// "voltage,current,power,lightRaw" and the two-line human form
//
//	Voltage: 1.81 V | Current: 0.41 A | Power: 0.74 W
//	Light (Raw ADC): 11
//
// A human-form electrical line is emitted immediately with LightRaw 0; the
// following light line emits the same sample again with the light value.
// Parser is not safe for concurrent use.
type Parser struct {
	pending *Sample
}

// Parse consumes one line and reports whether it produced a sample.
func (p *Parser) Parse(line string) (Sample, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Sample{}, false
	}
	switch {
	case strings.Contains(line, "Voltage:") && strings.Contains(line, "Current:") && strings.Contains(line, "Power:"):
		v, okV := matchFloat(voltagePattern, line)
		i, okI := matchFloat(currentPattern, line)
		w, okW := matchFloat(powerPattern, line)
		if !okV || !okI || !okW {
			return Sample{}, false
		}
		sample := Sample{Voltage: v, Current: i, Power: w}
		p.pending = &sample
		return sample, true
	case strings.Contains(line, "Light (Raw ADC):"):
		light, ok := matchFloat(lightPattern, line)
		if !ok || p.pending == nil {
			p.pending = nil
			return Sample{}, false
		}
		sample := *p.pending
		sample.LightRaw = int(light)
		p.pending = nil
		return sample, true
	case strings.Contains(line, ","):
		return parseCSVLine(line)
	default:
		return Sample{}, false
	}
}

func parseCSVLine(line string) (Sample, bool) {
	parts := strings.Split(line, ",")
	if len(parts) < 4 {
		return Sample{}, false
	}
	values := make([]float64, 4)
	for i := range values {
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return Sample{}, false
		}
		values[i] = f
	}
	return Sample{Voltage: values[0], Current: values[1], Power: values[2], LightRaw: int(values[3])}, true
}

func matchFloat(pattern *regexp.Regexp, line string) (float64, bool) {
	m := pattern.FindStringSubmatch(line)
	if len(m) < 2 {
		return 0, false
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
