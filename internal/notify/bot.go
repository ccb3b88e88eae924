package notify

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Riyadh644/stockscout/internal/logger"
	"github.com/Riyadh644/stockscout/internal/models"
)

// Subscriber registers new alert recipients.
type Subscriber interface {
	AddRecipient(chatID string) error
}

// SnapshotReader loads the current snapshot for a tier.
type SnapshotReader interface {
	LoadCurrent(tier models.Tier) (models.Snapshot, error)
}

// BotHooks are the callbacks the command surface drives.
type BotHooks struct {
	// RunCycle triggers a classification cycle immediately.
	RunCycle func(ctx context.Context) error
	// Report renders the daily performance report.
	Report func(ctx context.Context) (string, error)
}

// botAPI is the slice of the Telegram Bot API the command surface uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot handles inbound Telegram commands: subscribing, listing the current
// tiers, triggering a cycle, and the daily report.
type Bot struct {
	api        botAPI
	subscriber Subscriber
	snapshots  SnapshotReader
	hooks      BotHooks
	config     Config
}

// NewBot creates the command handler on top of the outbound channel's
// Telegram session. Replies are chunked to the same message bound the
// dispatcher uses.
func NewBot(channel *TelegramChannel, subscriber Subscriber, snapshots SnapshotReader, hooks BotHooks, config Config) *Bot {
	if config.MaxMessageLen <= 0 {
		config.MaxMessageLen = 4000
	}
	return &Bot{api: channel.bot, subscriber: subscriber, snapshots: snapshots, hooks: hooks, config: config}
}

// Listen starts a goroutine that polls for updates and handles commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (b *Bot) Listen(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				b.api.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					b.handleCommand(ctx, update.Message)
				}
			}
		}
	}()
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		if err := b.subscriber.AddRecipient(strconv.FormatInt(chatID, 10)); err != nil {
			logger.Error("Failed to register chat %d: %v", chatID, err)
			b.reply(chatID, "❌ Registration failed, try again later.")
			return
		}
		b.reply(chatID, "🤖 Welcome! You are now subscribed to stock alerts.\n\nCommands: /strong /watch /breakout /run /report")
	case "strong":
		b.replySnapshot(chatID, models.TierStrong)
	case "watch":
		b.replySnapshot(chatID, models.TierWatch)
	case "breakout":
		b.replySnapshot(chatID, models.TierBreakout)
	case "run":
		if b.hooks.RunCycle == nil {
			return
		}
		b.reply(chatID, "🔄 Running a screening cycle...")
		go func() {
			if err := b.hooks.RunCycle(ctx); err != nil {
				logger.Error("Manual cycle failed: %v", err)
				b.reply(chatID, fmt.Sprintf("❌ Cycle failed: %v", err))
				return
			}
			b.reply(chatID, "✅ Cycle complete, alerts sent.")
		}()
	case "report":
		if b.hooks.Report == nil {
			return
		}
		text, err := b.hooks.Report(ctx)
		if err != nil {
			logger.Error("Report generation failed: %v", err)
			b.reply(chatID, "❌ No performance report available.")
			return
		}
		b.reply(chatID, text)
	case "ping":
		b.reply(chatID, "Pong")
	}
}

func (b *Bot) replySnapshot(chatID int64, tier models.Tier) {
	snap, err := b.snapshots.LoadCurrent(tier)
	if err != nil {
		logger.Error("Failed to load %s snapshot: %v", tier, err)
		b.reply(chatID, "❌ Could not load the current list.")
		return
	}
	b.reply(chatID, FormatSnapshot(snap))
}

func (b *Bot) reply(chatID int64, text string) {
	for _, chunk := range Chunk(text, b.config.MaxMessageLen) {
		if _, err := b.api.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			logger.Warn("Failed to reply to chat %d: %v", chatID, err)
			return
		}
	}
}
