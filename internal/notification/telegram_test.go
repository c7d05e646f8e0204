package notification

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rootcauseai/rootcause-go/internal/pipeline"
)

func TestFormatMessage(t *testing.T) {
	client := &TelegramClient{hostname: "web01"}
	report := &pipeline.Report{
		Analysis:     "=== CRITICAL ERRORS ===\ndisk full on /var",
		Format:       "syslog",
		Complexity:   "moderate",
		Segments:     3,
		Cached:       1,
		Failed:       1,
		InputTokens:  300,
		OutputTokens: 120,
		CostUSD:      0.0123,
		Duration:     2 * time.Second,
	}

	msg := client.formatMessage(report)

	for _, want := range []string{"web01", "syslog", "moderate", "Failed\\: 1", "disk full"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
	// MarkdownV2 special characters in the analysis body must be escaped.
	if strings.Contains(msg, "=== CRITICAL") {
		t.Error("unescaped '=' survived in the message body")
	}
}

func TestFormatMessageOmitsFailedLineWhenClean(t *testing.T) {
	client := &TelegramClient{hostname: "web01"}
	report := &pipeline.Report{Analysis: "all good", Format: "standard", Complexity: "simple", Segments: 1}

	msg := client.formatMessage(report)
	if strings.Contains(msg, "Failed") {
		t.Error("clean report should not mention failures")
	}
}

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"plain text", "plain text"},
		{"1.5s", "1\\.5s"},
		{"[a](b)", "\\[a\\]\\(b\\)"},
		{"a_b*c", "a\\_b\\*c"},
	}

	for _, tt := range tests {
		if got := escapeMarkdown(tt.input); got != tt.want {
			t.Errorf("escapeMarkdown(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSplitMessage(t *testing.T) {
	client := &TelegramClient{}

	short := "hello"
	if got := client.splitMessage(short); len(got) != 1 || got[0] != short {
		t.Errorf("splitMessage(short) = %v", got)
	}

	// Many lines exceeding the limit must be split on line boundaries.
	long := strings.TrimSuffix(strings.Repeat(strings.Repeat("x", 100)+"\n", 100), "\n")
	parts := client.splitMessage(long)
	if len(parts) < 2 {
		t.Fatalf("splitMessage(long) produced %d parts, want several", len(parts))
	}
	for i, p := range parts {
		if len(p) > maxMessageLength {
			t.Errorf("part %d has %d bytes, exceeds limit", i, len(p))
		}
	}

	// One giant line gets hard-split.
	giant := strings.Repeat("y", maxMessageLength*2+10)
	parts = client.splitMessage(giant)
	for i, p := range parts {
		if len(p) > maxMessageLength {
			t.Errorf("giant part %d has %d bytes, exceeds limit", i, len(p))
		}
	}
}

func TestExtractRetryAfter(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"with value", errors.New("Too Many Requests: retry after 30"), 30},
		{"without value", errors.New("Too Many Requests"), 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractRetryAfter(tt.err); got != tt.want {
				t.Errorf("extractRetryAfter() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSendBookkeepingConcurrent(t *testing.T) {
	// Reports arrive from concurrent request goroutines, so the
	// last-send bookkeeping must be safe under interleaving.
	client := &TelegramClient{hostname: "web01"}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				client.waitForRateLimit()
				client.markSent()
			}
		}()
	}
	wg.Wait()

	client.mu.Lock()
	defer client.mu.Unlock()
	if client.lastMessageTime.IsZero() {
		t.Error("lastMessageTime not recorded")
	}
}

func TestIsRateLimitError(t *testing.T) {
	if !isRateLimitError(errors.New("telegram: 429 Too Many Requests")) {
		t.Error("429 error not detected")
	}
	if isRateLimitError(errors.New("bad request")) {
		t.Error("unrelated error flagged as rate limit")
	}
}
