// Package notify renders alert events and fans them out to subscribers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Riyadh644/stockscout/internal/logger"
)

// ErrPermanent marks a delivery failure that retrying cannot fix, such as a
// recipient that blocked the bot. The dispatcher skips the recipient for the
// rest of the event instead of burning the retry budget.
var ErrPermanent = errors.New("permanent delivery failure")

// Channel delivers a rendered message to one recipient.
type Channel interface {
	Deliver(ctx context.Context, recipientID, text string) error
}

// LogChannel writes deliveries to the log instead of sending them, for
// running with Telegram disabled.
type LogChannel struct{}

// Deliver logs the message and always succeeds.
func (LogChannel) Deliver(ctx context.Context, recipientID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Info("Alert for %s: %s", recipientID, text)
	return nil
}

// TelegramChannel delivers messages through the Telegram Bot API.
type TelegramChannel struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramChannel creates the outbound channel.
func NewTelegramChannel(botToken string) (*TelegramChannel, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return &TelegramChannel{bot: bot}, nil
}

// Deliver sends one message to one chat. Client-side API rejections
// (blocked bot, unknown chat, malformed request) are wrapped as
// ErrPermanent; everything else is considered transient.
func (c *TelegramChannel) Deliver(ctx context.Context, recipientID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(recipientID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", recipientID, ErrPermanent)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := c.bot.Send(msg); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != 429 {
			return fmt.Errorf("chat %s rejected with %d: %w", recipientID, apiErr.Code, ErrPermanent)
		}
		return fmt.Errorf("failed to send to %s: %w", recipientID, err)
	}
	return nil
}
