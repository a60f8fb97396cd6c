package daemon

import "strings"

// markdownTable renders a pipe-delimited table with a header row and a
// separator row, one data row per entry.
func markdownTable(headers []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	sep := make([]string, len(headers))
	for i := range sep {
		sep[i] = "---"
	}
	b.WriteString("| " + strings.Join(sep, " | ") + " |\n")
	for _, row := range rows {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return b.String()
}

// capitalize upper-cases the first letter for sentence-leading key names.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// unitFor returns the display unit for a logical telemetry key.
func unitFor(logicalKey string) string {
	switch {
	case strings.Contains(logicalKey, "temperature"):
		return " °C"
	case strings.Contains(logicalKey, "humidity"):
		return " %"
	case strings.Contains(logicalKey, "battery"):
		return " V"
	case strings.Contains(logicalKey, "energy"):
		return " kWh"
	case strings.Contains(logicalKey, "co2"), strings.Contains(logicalKey, "air"):
		return " ppm"
	}
	return ""
}
