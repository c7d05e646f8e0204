package preprocess

import (
	"strings"
	"testing"
)

func TestFilterSeverity(t *testing.T) {
	input := strings.Join([]string{
		"2024-01-01 DEBUG starting worker 3",
		"2024-01-01 INFO request served",
		"2024-01-01 WARN disk usage at 85%",
		"2024-01-01 ERROR connection refused",
		"2024-01-01 FATAL out of memory",
		"# deployment marker",
		"",
	}, "\n")

	got := Filter(input, DefaultOptions())

	if strings.Contains(got, "DEBUG starting") {
		t.Error("Filter() kept a DEBUG line with FilterDebug enabled")
	}
	if strings.Contains(got, "# deployment marker") {
		t.Error("Filter() kept a comment line")
	}
	for _, want := range []string{"WARN disk usage", "ERROR connection refused", "FATAL out of memory"} {
		if !strings.Contains(got, want) {
			t.Errorf("Filter() dropped %q", want)
		}
	}
}

func TestFilterCriticalPatternsAlwaysKept(t *testing.T) {
	// Lines matching critical patterns survive even below MinSeverity.
	input := strings.Join([]string{
		"note: connection refused by upstream",
		"note: query failed after retry",
		"plain progress line 1",
		"plain progress line 2",
	}, "\n")

	got := Filter(input, Options{FilterDebug: true, MinSeverity: SeverityFatal})

	if !strings.Contains(got, "connection refused") {
		t.Error("Filter() dropped a connection-refused line")
	}
	if !strings.Contains(got, "query failed") {
		t.Error("Filter() dropped a query-failed line")
	}
}

func TestFilterUnmarkedLinesKept(t *testing.T) {
	input := "custom app event without level\nanother plain line"

	got := Filter(input, DefaultOptions())
	if got != input {
		t.Errorf("Filter() = %q, want unmarked lines preserved", got)
	}
}

func TestFilterFallbackWhenTooAggressive(t *testing.T) {
	// 20 INFO lines and nothing above WARN: filtering would keep 0 of
	// 20 lines, so the original text must come back unchanged.
	lines := make([]string, 20)
	for i := range lines {
		lines[i] = "2024-01-01 INFO heartbeat ok"
	}
	input := strings.Join(lines, "\n")

	got := Filter(input, Options{FilterDebug: true, FilterInfo: true, MinSeverity: SeverityWarn})
	if got != input {
		t.Error("Filter() did not fall back to the original text when <10% survived")
	}
}

func TestFilterInfo(t *testing.T) {
	input := strings.Join([]string{
		"INFO routine heartbeat",
		"INFO request ended with ERROR status",
		"WARN something odd",
		"plain line one",
		"plain line two",
		"plain line three",
		"plain line four",
	}, "\n")

	got := Filter(input, Options{FilterInfo: true, MinSeverity: SeverityInfo})

	if strings.Contains(got, "routine heartbeat") {
		t.Error("Filter() kept a plain INFO line with FilterInfo enabled")
	}
	if !strings.Contains(got, "ended with ERROR status") {
		t.Error("Filter() dropped an INFO line carrying an ERROR marker")
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Format
	}{
		{
			"json",
			"{\"level\":\"error\",\"msg\":\"boom\"}\n{\"level\":\"info\",\"msg\":\"ok\"}",
			FormatJSON,
		},
		{
			"apache_nginx",
			`192.168.1.10 - - [01/Jan/2024:10:00:00 +0000] "GET /index.html HTTP/1.1" 200 1024`,
			FormatApacheNginx,
		},
		{
			"syslog",
			"Jan  1 10:00:00 host sshd[1234]: Accepted publickey for root",
			FormatSyslog,
		},
		{
			"structured",
			"time:12:00 level:info status ok region=us-east-1 result=pass",
			FormatStructured,
		},
		{
			"standard",
			"2024-01-01 10:00:00 ERROR something broke\nplain text line",
			FormatStandard,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.text); got != tt.want {
				t.Errorf("DetectFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectFormatSamplesHead(t *testing.T) {
	// JSON beyond the sampled head must not influence the result.
	var b strings.Builder
	for i := 0; i < 60; i++ {
		b.WriteString("plain line\n")
	}
	for i := 0; i < 100; i++ {
		b.WriteString("{\"msg\":\"late json\"}\n")
	}

	if got := DetectFormat(b.String()); got != FormatStandard {
		t.Errorf("DetectFormat() = %q, want %q", got, FormatStandard)
	}
}

func TestEstimateComplexity(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Complexity
	}{
		{"no errors", "INFO all good\nINFO still good", ComplexitySimple},
		{
			"few repeated errors",
			strings.Repeat("ERROR timeout talking to db\n", 5),
			ComplexityModerate,
		},
		{
			"many errors",
			strings.Repeat("ERROR timeout talking to db\n", 15),
			ComplexityComplex,
		},
		{
			"diverse errors",
			"ERROR a\nERROR b\nERROR c\nERROR d\nERROR e\nERROR f",
			ComplexityComplex,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateComplexity(tt.text); got != tt.want {
				t.Errorf("EstimateComplexity() = %q, want %q", got, tt.want)
			}
		})
	}
}
