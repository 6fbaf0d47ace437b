// Package telegram sends forecast summaries and failure notices through the
// Telegram Bot API, with a bounded retry on delivery.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/loadforecast/internal/models"
)

// sender is the part of the bot API the client uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, chatID, maxRetries, retryDelayBase)
}

func newClient(bot sender, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SendForecast sends a forecast summary.
func (c *Client) SendForecast(s *models.ForecastSummary) error {
	return c.send(formatForecast(s))
}

// SendError reports a failed forecast run.
func (c *Client) SendError(err error) error {
	return c.send(fmt.Sprintf("⚠️ *Load forecast failed*\n\n%s", escapeMarkdownV2(err.Error())))
}

func (c *Client) send(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

func formatForecast(s *models.ForecastSummary) string {
	const layout = "2006-01-02 15:04"

	var b strings.Builder
	b.WriteString("⚡ *Load Forecast*")
	if s.Country != "" {
		fmt.Fprintf(&b, " \\(%s\\)", escapeMarkdownV2(s.Country))
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "📅 %s → %s\n", escapeMarkdownV2(s.From.Format(layout)), escapeMarkdownV2(s.To.Format(layout)))
	if s.Periods > 1 {
		step := s.To.Sub(s.From) / time.Duration(s.Periods-1)
		fmt.Fprintf(&b, "⏱ Horizon: %s in %d steps of %s\n\n",
			escapeMarkdownV2(formatDuration(s.To.Sub(s.From)+step)), s.Periods, escapeMarkdownV2(formatDuration(step)))
	} else {
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "📈 Peak: *%s* at %s\n", escapeMarkdownV2(fmt.Sprintf("%.1f", s.Peak)), escapeMarkdownV2(s.PeakAt.Format(layout)))
	fmt.Fprintf(&b, "📉 Minimum: *%s* at %s\n", escapeMarkdownV2(fmt.Sprintf("%.1f", s.Minimum)), escapeMarkdownV2(s.MinAt.Format(layout)))
	fmt.Fprintf(&b, "➗ Mean: %s\n", escapeMarkdownV2(fmt.Sprintf("%.1f", s.Mean)))
	if s.Interval > 0 {
		fmt.Fprintf(&b, "🎯 Interval: %s\n", escapeMarkdownV2(fmt.Sprintf("%.0f%%", s.Interval*100)))
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// Characters that need escaping in MarkdownV2:
	// _ * [ ] ( ) ~ ` > # + - = | { } . !
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d >= 24*time.Hour && d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", int(d.Hours())/24)
	}
	if hours := int(d.Hours()); hours >= 1 && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}
