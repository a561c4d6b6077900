// Package messaging sends outbound notifications to the configured
// Telegram channel (spec.md §6.1, §6.2).
package messaging

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the narrow interface the Notifier depends on — grounded on the
// teacher's consumer-side-interface convention (e.g. `digest.Runner`'s
// `ArticleSender` in claude-code-opus-4.5).
type Sender interface {
	// Probe checks the transport is reachable — the Notifier's
	// "get_me equivalent" (spec.md §4.5 step 2).
	Probe(ctx context.Context) error
	// Send delivers one formatted message to the configured channel.
	Send(ctx context.Context, text string) error
}

// TelegramSender is a Sender backed by go-telegram-bot-api/v5.
type TelegramSender struct {
	bot       *tgbotapi.BotAPI
	channelID int64
}

// NewTelegramSender builds a TelegramSender for the given bot token and
// destination channel id.
func NewTelegramSender(token string, channelID int64) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("messaging: new bot api: %w", err)
	}
	return &TelegramSender{bot: bot, channelID: channelID}, nil
}

// Probe calls getMe to confirm the transport is reachable and the token is
// still valid (spec.md §4.5 step 2's "get_me equivalent").
func (s *TelegramSender) Probe(ctx context.Context) error {
	if _, err := s.bot.GetMe(); err != nil {
		return fmt.Errorf("messaging: probe: %w", err)
	}
	return nil
}

// Send delivers a MarkdownV2-formatted message with link preview disabled
// (spec.md §6.2). ctx is accepted for symmetry with the rest of the
// codebase's suspension points (spec.md §5) even though the underlying
// library call is synchronous and uncancellable.
func (s *TelegramSender) Send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(s.channelID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true

	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("messaging: send: %w", err)
	}
	return nil
}
