// Package notify delivers rule events to operators.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mymmrac/telego"

	"github.com/aatumaykin/ruletoggle/internal/logger"
	"github.com/aatumaykin/ruletoggle/internal/retry"
	"github.com/aatumaykin/ruletoggle/internal/rules"
)

// Sender is the part of the Telegram bot API used here.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Telegram sends events to one chat.
type Telegram struct {
	sender Sender
	chatID int64
	retry  retry.Config
	logger *logger.Logger
}

// NewTelegram connects a bot with token.
func NewTelegram(token string, chatID int64, log *logger.Logger) (*Telegram, error) {
	if token == "" {
		return nil, errors.New("telegram token is required")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	return NewTelegramWithSender(bot, chatID, log), nil
}

// NewTelegramWithSender uses sender instead of a real bot.
func NewTelegramWithSender(sender Sender, chatID int64, log *logger.Logger) *Telegram {
	if log == nil {
		log = logger.Discard()
	}
	return &Telegram{
		sender: sender,
		chatID: chatID,
		retry:  retry.Config{MaxAttempts: 3, InitialBackoff: time.Second, MaxBackoff: 5 * time.Second},
		logger: log.Component("telegram"),
	}
}

// SetRetry replaces the send retry policy.
func (t *Telegram) SetRetry(cfg retry.Config) {
	t.retry = cfg
}

// Notify implements rules.Notifier.
func (t *Telegram) Notify(ctx context.Context, e rules.Event) error {
	params := telego.SendMessageParams{
		ChatID: telego.ChatID{ID: t.chatID},
		Text:   Format(e),
	}
	err := retry.Do(ctx, t.retry, func(ctx context.Context) error {
		_, err := t.sender.SendMessage(ctx, &params)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	t.logger.Debug("event sent",
		logger.Field{Key: "kind", Value: string(e.Kind)},
		logger.Field{Key: "rule", Value: e.Rule})
	return nil
}

// Format renders e as a one-line message.
func Format(e rules.Event) string {
	icon := map[rules.EventKind]string{
		rules.EventAdded:    "➕",
		rules.EventRemoved:  "➖",
		rules.EventEnabled:  "🟢",
		rules.EventDisabled: "⚪",
		rules.EventOrphaned: "⚠️",
		rules.EventFailed:   "❌",
	}[e.Kind]
	if icon == "" {
		return e.Message
	}
	return icon + " " + e.Message
}
