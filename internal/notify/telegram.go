package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const telegramSendTimeout = 10 * time.Second

// TelegramNotifier forwards notices to an operator chat.
type TelegramNotifier struct {
	bot    *bot.Bot
	chatID int64
	log    *slog.Logger
}

// NewTelegramNotifier creates a notifier for chatID. No request is made
// until the first notice.
func NewTelegramNotifier(token string, chatID int64, log *slog.Logger, opts ...bot.Option) (*TelegramNotifier, error) {
	if log == nil {
		log = slog.Default()
	}
	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &TelegramNotifier{bot: b, chatID: chatID, log: log}, nil
}

// Notify sends in the background; delivery failures are only logged.
func (t *TelegramNotifier) Notify(ctx context.Context, n Notice) {
	text := "<b>" + html.EscapeString(n.Title) + "</b>"
	if n.Description != "" {
		text += "\n" + html.EscapeString(n.Description)
	}

	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telegramSendTimeout)
		defer cancel()

		disablePreview := true
		_, err := t.bot.SendMessage(sendCtx, &bot.SendMessageParams{
			ChatID:    t.chatID,
			Text:      text,
			ParseMode: models.ParseModeHTML,
			LinkPreviewOptions: &models.LinkPreviewOptions{
				IsDisabled: &disablePreview,
			},
		})
		if err != nil {
			t.log.Error("send telegram notice", "error", err, "title", n.Title)
		}
	}()
}

// Multi fans a notice out to every notifier.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notice) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}
