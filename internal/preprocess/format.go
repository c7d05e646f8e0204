package preprocess

import (
	"regexp"
	"strings"
)

// Format is a coarse classification of a log document's layout. It is
// passed to the model as context and participates in result
// fingerprinting.
type Format string

const (
	FormatJSON        Format = "json"
	FormatApacheNginx Format = "apache_nginx"
	FormatSyslog      Format = "syslog"
	FormatStructured  Format = "structured"
	FormatStandard    Format = "standard"
)

// Complexity grades a document by error density and drives prompt
// selection.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

const formatSampleLines = 50

var (
	accessLogRe  = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+.*\[.*\].*"`)
	syslogRe     = regexp.MustCompile(`^\w{3}\s+\d+\s+\d{2}:\d{2}:\d{2}`)
	keyValueRe   = regexp.MustCompile(`\w+=\w+`)
	errorMarkers = []string{"ERROR", "FATAL", "EXCEPTION", "FAILED"}
)

// DetectFormat classifies a log document by sampling its first lines.
// Classification is deterministic and never fails; unknown layouts are
// reported as FormatStandard.
func DetectFormat(text string) Format {
	lines := strings.Split(text, "\n")
	if len(lines) > formatSampleLines {
		lines = lines[:formatSampleLines]
	}

	jsonCount := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "{") && strings.Contains(trimmed, "}") {
			jsonCount++
		}
	}
	if jsonCount*2 > len(lines) {
		return FormatJSON
	}

	for _, line := range lines {
		if accessLogRe.MatchString(line) {
			return FormatApacheNginx
		}
	}
	for _, line := range lines {
		if syslogRe.MatchString(line) {
			return FormatSyslog
		}
	}

	head := lines
	if len(head) > 10 {
		head = head[:10]
	}
	for _, line := range head {
		if keyValueRe.MatchString(line) {
			return FormatStructured
		}
	}

	return FormatStandard
}

// EstimateComplexity grades a document by counting error-bearing lines
// and distinct error messages. Thresholds: no errors is simple, fewer
// than 10 error lines with fewer than 5 distinct ERROR messages is
// moderate, anything beyond is complex.
func EstimateComplexity(text string) Complexity {
	lines := strings.Split(text, "\n")

	errorCount := 0
	unique := make(map[string]struct{})
	for _, line := range lines {
		upper := strings.ToUpper(line)
		for _, marker := range errorMarkers {
			if strings.Contains(upper, marker) {
				errorCount++
				break
			}
		}
		if strings.Contains(upper, "ERROR") {
			unique[strings.TrimSpace(line)] = struct{}{}
		}
	}

	switch {
	case errorCount == 0:
		return ComplexitySimple
	case errorCount < 10 && len(unique) < 5:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}
