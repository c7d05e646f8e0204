// Package preprocess reduces log noise before analysis and classifies
// documents by layout and error density.
package preprocess

import (
	"regexp"
	"strings"
)

// Severity levels recognized in log lines, in ascending order.
const (
	SeverityDebug = "DEBUG"
	SeverityInfo  = "INFO"
	SeverityWarn  = "WARN"
	SeverityError = "ERROR"
	SeverityFatal = "FATAL"
)

var severityOrder = map[string]int{
	SeverityDebug: 0,
	SeverityInfo:  1,
	SeverityWarn:  2,
	SeverityError: 3,
	SeverityFatal: 4,
}

// Lines matching any of these survive filtering regardless of their
// severity markers.
var criticalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(fatal|critical|error|exception|failed|failure|crash|timeout)`),
	regexp.MustCompile(`(?i)(panic|abort|segfault|oom|out of memory)`),
	regexp.MustCompile(`(?i)(connection.*refused|connection.*timeout|connection.*failed)`),
	regexp.MustCompile(`(?i)(database.*error|sql.*error|query.*failed)`),
	regexp.MustCompile(`(?i)(authentication.*failed|authorization.*denied|permission.*denied)`),
}

var debugWordRe = regexp.MustCompile(`(?i)\bDEBUG\b`)

// Options controls severity filtering.
type Options struct {
	FilterDebug bool
	FilterInfo  bool
	MinSeverity string
}

// DefaultOptions matches the service defaults: drop DEBUG, keep INFO,
// require WARN or above for severity-marked lines.
func DefaultOptions() Options {
	return Options{FilterDebug: true, FilterInfo: false, MinSeverity: SeverityWarn}
}

// Filter removes blank lines, comments, and lines below the configured
// severity. Lines matching a critical pattern are always kept, as are
// lines with no recognizable severity marker. If filtering would leave
// less than 10% of the input lines, the original text is returned
// untouched so the analysis never loses context to an over-aggressive
// threshold.
func Filter(text string, opts Options) string {
	lines := strings.Split(text, "\n")
	minLevel, ok := severityOrder[strings.ToUpper(opts.MinSeverity)]
	if !ok {
		minLevel = severityOrder[SeverityInfo]
	}

	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if opts.FilterDebug && debugWordRe.MatchString(line) {
			continue
		}

		upper := strings.ToUpper(line)
		if opts.FilterInfo && strings.Contains(upper, "INFO") &&
			!containsAny(upper, "ERROR", "WARN", "FATAL", "EXCEPTION") {
			continue
		}

		if isCritical(line) {
			kept = append(kept, line)
			continue
		}

		switch {
		case containsAny(upper, "FATAL", "CRITICAL"):
			if severityOrder[SeverityFatal] >= minLevel {
				kept = append(kept, line)
			}
		case containsAny(upper, "ERROR", "EXCEPTION"):
			if severityOrder[SeverityError] >= minLevel {
				kept = append(kept, line)
			}
		case containsAny(upper, "WARN", "WARNING"):
			if severityOrder[SeverityWarn] >= minLevel {
				kept = append(kept, line)
			}
		case strings.Contains(upper, "INFO"):
			if !opts.FilterInfo && severityOrder[SeverityInfo] >= minLevel {
				kept = append(kept, line)
			}
		case strings.Contains(upper, "DEBUG"):
			if !opts.FilterDebug && severityOrder[SeverityDebug] >= minLevel {
				kept = append(kept, line)
			}
		default:
			// Unmarked lines may carry application-specific context.
			kept = append(kept, line)
		}
	}

	if len(kept)*10 < len(lines) {
		return text
	}
	return strings.Join(kept, "\n")
}

func isCritical(line string) bool {
	for _, re := range criticalPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
