package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
)

// TelegramNotifier sends notifications to one chat
type TelegramNotifier struct {
	inflight
	bot    *bot.Bot
	chatID int64
	log    *logrus.Logger
}

// NewTelegramNotifier creates a Telegram notifier. Extra bot options are
// passed through (server URL, HTTP client).
func NewTelegramNotifier(token string, chatID int64, log *logrus.Logger, opts ...bot.Option) (*TelegramNotifier, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram bot token and chat id are required")
	}

	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: b, chatID: chatID, log: log}, nil
}

// Notify implements Notifier
func (t *TelegramNotifier) Notify(_ context.Context, title, body, ticker string, _ map[string]interface{}) {
	text := FormatTelegram(title, body, ticker)

	t.goDeliver(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    t.chatID,
			Text:      text,
			ParseMode: models.ParseModeMarkdown,
		})
		if err != nil {
			t.log.WithError(err).WithField("ticker", ticker).Warn("⚠️  Failed to send telegram message")
		}
	})
}

// FormatTelegram renders a Markdown message
func FormatTelegram(title, body, ticker string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s*", bot.EscapeMarkdown(title))
	if ticker != "" {
		fmt.Fprintf(&sb, " `%s`", ticker)
	}
	if body != "" {
		sb.WriteString("\n")
		sb.WriteString(bot.EscapeMarkdown(body))
	}
	return sb.String()
}
