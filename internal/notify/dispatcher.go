package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Riyadh644/stockscout/internal/logger"
	"github.com/Riyadh644/stockscout/internal/models"
)

// Registry lists the current alert subscribers. Implementations must return
// the live set; the dispatcher re-reads it on every dispatch so a new
// subscriber receives the very next alert.
type Registry interface {
	ListRecipients() ([]string, error)
}

// Config holds dispatcher behavior. Retries are bounded with a fixed delay
// on purpose: the ordering and fire-once contracts upstream depend on
// predictable retry timing, so no exponential backoff here.
type Config struct {
	MaxMessageLen int
	MaxRetries    int
	RetryDelay    time.Duration
}

// DefaultConfig returns the standard dispatch settings.
func DefaultConfig() Config {
	return Config{
		MaxMessageLen: 4000,
		MaxRetries:    3,
		RetryDelay:    5 * time.Second,
	}
}

// Dispatcher fans alert events out to all subscribed recipients. Delivery
// is at-least-once: a crash mid-dispatch may repeat a send on the next run.
type Dispatcher struct {
	channel  Channel
	registry Registry
	config   Config
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(channel Channel, registry Registry, config Config) *Dispatcher {
	if config.MaxMessageLen <= 0 {
		config.MaxMessageLen = 4000
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	return &Dispatcher{channel: channel, registry: registry, config: config}
}

// Dispatch sends every event to every recipient. Recipients fan out
// concurrently; within one recipient events are delivered strictly in
// order, since message order carries meaning. One recipient's failure never
// affects another.
func (d *Dispatcher) Dispatch(ctx context.Context, events []models.AlertEvent) {
	if len(events) == 0 {
		return
	}
	recipients, err := d.registry.ListRecipients()
	if err != nil {
		logger.Error("Failed to list recipients, dropping %d events this dispatch: %v", len(events), err)
		return
	}
	if len(recipients) == 0 {
		logger.Debug("No recipients registered, %d events unsent", len(events))
		return
	}

	var wg sync.WaitGroup
	for _, recipient := range recipients {
		wg.Add(1)
		go func(recipient string) {
			defer wg.Done()
			d.sendAll(ctx, recipient, events)
		}(recipient)
	}
	wg.Wait()
}

// Broadcast renders and sends a single free-form message to all recipients.
func (d *Dispatcher) Broadcast(ctx context.Context, text string) {
	recipients, err := d.registry.ListRecipients()
	if err != nil {
		logger.Error("Failed to list recipients for broadcast: %v", err)
		return
	}
	var wg sync.WaitGroup
	for _, recipient := range recipients {
		wg.Add(1)
		go func(recipient string) {
			defer wg.Done()
			d.sendChunked(ctx, recipient, text)
		}(recipient)
	}
	wg.Wait()
}

func (d *Dispatcher) sendAll(ctx context.Context, recipient string, events []models.AlertEvent) {
	for _, ev := range events {
		if ctx.Err() != nil {
			logger.Warn("Dispatch to %s cancelled with events remaining", recipient)
			return
		}
		d.sendChunked(ctx, recipient, Render(ev))
	}
}

// sendChunked splits text into ordered chunks and sends them sequentially.
// A permanent failure or an exhausted retry budget abandons the remaining
// chunks of this message for this recipient; later messages are still
// attempted.
func (d *Dispatcher) sendChunked(ctx context.Context, recipient, text string) {
	for i, chunk := range Chunk(text, d.config.MaxMessageLen) {
		if err := d.sendWithRetry(ctx, recipient, chunk); err != nil {
			if errors.Is(err, ErrPermanent) {
				logger.Warn("Permanent failure for %s on chunk %d, skipping rest of message: %v", recipient, i+1, err)
			} else {
				logger.Error("Giving up on chunk %d for %s: %v", i+1, recipient, err)
			}
			return
		}
	}
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, recipient, chunk string) error {
	var lastErr error
	for attempt := 1; attempt <= d.config.MaxRetries; attempt++ {
		err := d.channel.Deliver(ctx, recipient, chunk)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanent) || ctx.Err() != nil {
			return err
		}
		lastErr = err
		logger.Warn("Delivery to %s failed (attempt %d/%d): %v", recipient, attempt, d.config.MaxRetries, err)
		if attempt < d.config.MaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.config.RetryDelay):
			}
		}
	}
	return lastErr
}

// Chunk splits text into pieces of at most max characters. Splits happen at
// rune boundaries, never inside a multi-byte character.
func Chunk(text string, max int) []string {
	runes := []rune(text)
	if len(runes) <= max {
		return []string{text}
	}
	parts := make([]string, 0, (len(runes)+max-1)/max)
	for start := 0; start < len(runes); start += max {
		end := start + max
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
