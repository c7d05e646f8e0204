// Package notification delivers analysis reports to Telegram channels.
package notification

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	internalerrors "github.com/rootcauseai/rootcause-go/internal/errors"
	"github.com/rootcauseai/rootcause-go/internal/pipeline"
)

const (
	maxMessageLength = 4096
	// minMessageInterval is the minimum time between messages to the
	// same channel to avoid Telegram rate limits
	minMessageInterval = 1 * time.Second
	// maxRetries is the maximum number of retry attempts for sending messages
	maxRetries = 3
	// baseRetryDelay is the initial delay between retries (doubles each attempt)
	baseRetryDelay = 2 * time.Second
)

// TelegramClient handles Telegram notifications. Reports may be sent
// from concurrent request goroutines.
type TelegramClient struct {
	bot            *tgbotapi.BotAPI
	archiveChannel int64
	alertsChannel  int64
	hostname       string
	minInterval    time.Duration

	mu              sync.Mutex
	lastMessageTime time.Time
}

// NewTelegramClient creates a new Telegram client. alertsChannel may
// be zero to disable alert delivery.
func NewTelegramClient(botToken string, archiveChannel, alertsChannel int64) (*TelegramClient, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		// Sanitize so the bot token never appears in error messages
		return nil, internalerrors.Wrapf(err, "failed to create Telegram bot")
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &TelegramClient{
		bot:            bot,
		archiveChannel: archiveChannel,
		alertsChannel:  alertsChannel,
		hostname:       hostname,
		minInterval:    minMessageInterval,
	}, nil
}

// SendReport sends an analysis report to the archive channel, and to
// the alerts channel when segments failed.
func (t *TelegramClient) SendReport(report *pipeline.Report) error {
	message := t.formatMessage(report)

	if err := t.sendToChannel(t.archiveChannel, message); err != nil {
		return fmt.Errorf("failed to send to archive channel: %w", err)
	}

	if t.alertsChannel != 0 && report.Failed > 0 {
		if err := t.sendToChannel(t.alertsChannel, message); err != nil {
			return fmt.Errorf("failed to send to alerts channel: %w", err)
		}
	}

	return nil
}

// formatMessage formats the report into a Telegram MarkdownV2 message.
func (t *TelegramClient) formatMessage(report *pipeline.Report) string {
	var msg strings.Builder

	msg.WriteString("🔍 *Log Analysis Report*\n")
	msg.WriteString(fmt.Sprintf("🖥 Host\\: %s\n", escapeMarkdown(t.hostname)))
	msg.WriteString(fmt.Sprintf("📅 Date\\: %s\n", escapeMarkdown(time.Now().Format("2006-01-02 15:04:05"))))
	msg.WriteString(fmt.Sprintf("📄 Format\\: %s\n", escapeMarkdown(string(report.Format))))
	msg.WriteString(fmt.Sprintf("🧩 Complexity\\: %s\n\n", escapeMarkdown(string(report.Complexity))))

	msg.WriteString("📋 *Execution Stats*\n")
	msg.WriteString(fmt.Sprintf("• Segments\\: %d\n", report.Segments))
	msg.WriteString(fmt.Sprintf("• Cached\\: %d\n", report.Cached))
	msg.WriteString(fmt.Sprintf("• Deduplicated\\: %d\n", report.Deduplicated))
	if report.Failed > 0 {
		msg.WriteString(fmt.Sprintf("🔴 Failed\\: %d\n", report.Failed))
	}
	msg.WriteString(fmt.Sprintf("• Tokens\\: %d in / %d out\n", report.InputTokens, report.OutputTokens))
	msg.WriteString(fmt.Sprintf("• Cost\\: %s\n", escapeMarkdown(fmt.Sprintf("$%.4f", report.CostUSD))))
	msg.WriteString(fmt.Sprintf("• Duration\\: %s\n\n", escapeMarkdown(fmt.Sprintf("%.2fs", report.Duration.Seconds()))))

	msg.WriteString("📊 *Analysis*\n")
	msg.WriteString(escapeMarkdown(report.Analysis))
	msg.WriteString("\n")

	return msg.String()
}

// sendToChannel sends a message to a Telegram channel with rate limiting.
func (t *TelegramClient) sendToChannel(channelID int64, message string) error {
	messages := t.splitMessage(message)

	for _, msg := range messages {
		t.waitForRateLimit()

		msgConfig := tgbotapi.NewMessage(channelID, msg)
		msgConfig.ParseMode = "MarkdownV2"

		if err := t.sendWithRetry(msgConfig); err != nil {
			return err
		}

		t.markSent()
	}

	return nil
}

// waitForRateLimit ensures a minimum interval between messages.
func (t *TelegramClient) waitForRateLimit() {
	t.mu.Lock()
	last := t.lastMessageTime
	t.mu.Unlock()

	if last.IsZero() {
		return
	}

	elapsed := time.Since(last)
	if elapsed < t.minInterval {
		time.Sleep(t.minInterval - elapsed)
	}
}

// markSent records the time of the last successful send.
func (t *TelegramClient) markSent() {
	t.mu.Lock()
	t.lastMessageTime = time.Now()
	t.mu.Unlock()
}

// sendWithRetry sends a message with exponential backoff retry.
func (t *TelegramClient) sendWithRetry(msgConfig tgbotapi.MessageConfig) error {
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		_, err := t.bot.Send(msgConfig)
		if err == nil {
			return nil
		}

		lastErr = err

		if isRateLimitError(err) {
			retryAfter := extractRetryAfter(err)
			if retryAfter > 0 {
				time.Sleep(time.Duration(retryAfter) * time.Second)
				continue
			}
		}

		if attempt < maxRetries {
			delay := baseRetryDelay * time.Duration(1<<(attempt-1)) // 2s, 4s, 8s...
			time.Sleep(delay)
		}
	}

	// Sanitize so credentials never appear in error messages
	return internalerrors.Wrapf(lastErr, "failed to send message after %d retries", maxRetries)
}

// isRateLimitError checks if the error is a Telegram rate limit error (429).
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") || strings.Contains(errStr, "Too Many Requests")
}

// extractRetryAfter extracts the retry_after value from a rate limit error.
func extractRetryAfter(err error) int {
	if err == nil {
		return 0
	}

	// Example: "Too Many Requests: retry after 30"
	errStr := err.Error()
	if idx := strings.Index(strings.ToLower(errStr), "retry after "); idx != -1 {
		remaining := errStr[idx+len("retry after "):]
		var seconds int
		if _, err := fmt.Sscanf(remaining, "%d", &seconds); err == nil {
			return seconds
		}
	}

	// Conservative wait when the value can't be extracted
	return 30
}

// splitMessage splits a long message into multiple messages.
func (t *TelegramClient) splitMessage(message string) []string {
	if len(message) <= maxMessageLength {
		return []string{message}
	}

	var messages []string
	lines := strings.Split(message, "\n")
	var currentMsg strings.Builder

	for _, line := range lines {
		if currentMsg.Len()+len(line)+1 > maxMessageLength {
			if currentMsg.Len() > 0 {
				messages = append(messages, currentMsg.String())
				currentMsg.Reset()
			}

			// A single over-long line gets hard-split
			if len(line) > maxMessageLength {
				for i := 0; i < len(line); i += maxMessageLength {
					end := i + maxMessageLength
					if end > len(line) {
						end = len(line)
					}
					messages = append(messages, line[i:end])
				}
				continue
			}
		}

		currentMsg.WriteString(line)
		currentMsg.WriteString("\n")
	}

	if currentMsg.Len() > 0 {
		messages = append(messages, currentMsg.String())
	}

	return messages
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
// See: https://core.telegram.org/bots/api#markdownv2-style
func escapeMarkdown(text string) string {
	specialChars := []string{
		"_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!", ":",
	}

	result := text
	for _, char := range specialChars {
		result = strings.ReplaceAll(result, char, "\\"+char)
	}

	return result
}

// Close closes the Telegram client.
func (t *TelegramClient) Close() error {
	t.bot.StopReceivingUpdates()
	return nil
}
