// Package tracker evaluates open positions against their price levels and
// emits one-shot threshold alerts.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Riyadh644/stockscout/internal/logger"
	"github.com/Riyadh644/stockscout/internal/models"
)

// ErrCycleInProgress is returned when a tracking cycle is already running.
var ErrCycleInProgress = errors.New("tracking cycle already in progress")

// PositionStore is the persistence capability the tracker needs. The
// tracker exclusively owns the LastAlert column.
type PositionStore interface {
	ListPositions() ([]models.Position, error)
	UpdateLastAlert(symbol string, alert models.ThresholdAlert) error
}

// PriceFetcher returns the current price for a symbol.
type PriceFetcher interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// Dispatcher fans alert events out to subscribers.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []models.AlertEvent)
}

// Evaluate runs one step of the per-position state machine and returns the
// threshold that fires at the given price, if any.
//
// Thresholds are checked target2 first, then target1, then stop, so a price
// that clears target2 directly from a fresh position never also fires
// target1. Target2 and Stop are terminal.
func Evaluate(p models.Position, price float64) (models.ThresholdAlert, bool) {
	if p.LastAlert.Terminal() {
		return models.AlertNone, false
	}
	switch {
	case price >= p.Target2:
		return models.AlertTarget2Fired, true
	case price >= p.Target1 && p.LastAlert != models.AlertTarget1Fired:
		return models.AlertTarget1Fired, true
	case price <= p.StopLoss:
		return models.AlertStopFired, true
	}
	return models.AlertNone, false
}

// Tracker runs the position-tracking cycle.
type Tracker struct {
	store      PositionStore
	prices     PriceFetcher
	dispatcher Dispatcher

	mu sync.Mutex // single-flight guard over a whole cycle
}

// New creates a Tracker.
func New(store PositionStore, prices PriceFetcher, dispatcher Dispatcher) *Tracker {
	return &Tracker{store: store, prices: prices, dispatcher: dispatcher}
}

// RunCycle evaluates every tracked position once. Price-fetch failures are
// non-fatal: the position is left unchanged and retried next cycle. Returns
// ErrCycleInProgress when invoked while a previous cycle is still running,
// which preserves the fire-once invariant under overlapping schedules.
func (t *Tracker) RunCycle(ctx context.Context) error {
	if !t.mu.TryLock() {
		return ErrCycleInProgress
	}
	defer t.mu.Unlock()

	positions, err := t.store.ListPositions()
	if err != nil {
		return fmt.Errorf("failed to list positions: %w", err)
	}

	var events []models.AlertEvent
	for _, p := range positions {
		if err := ctx.Err(); err != nil {
			return err
		}

		price, err := t.prices.CurrentPrice(ctx, p.Symbol)
		if err != nil {
			logger.Warn("Skipping position %s this cycle: %v", p.Symbol, err)
			continue
		}

		fired, ok := Evaluate(p, price)
		if !ok {
			continue
		}

		ev := models.NewAlertEvent(thresholdKind(fired))
		ev.Symbol = p.Symbol
		ev.Price = price
		ev.Position = p
		events = append(events, ev)

		// Marking after constructing the event but before dispatch keeps
		// the fire-once invariant across cycles; a crash between the two
		// loses at most this cycle's message, never duplicates a fired
		// threshold.
		if err := t.store.UpdateLastAlert(p.Symbol, fired); err != nil {
			logger.Error("Failed to persist %s alert for %s: %v", fired, p.Symbol, err)
			events = events[:len(events)-1]
			continue
		}
		logger.Info("Position %s crossed %s at %.2f", p.Symbol, fired, price)
	}

	if len(events) > 0 {
		t.dispatcher.Dispatch(ctx, events)
	}
	return nil
}

func thresholdKind(a models.ThresholdAlert) models.AlertKind {
	switch a {
	case models.AlertTarget1Fired:
		return models.AlertTarget1
	case models.AlertTarget2Fired:
		return models.AlertTarget2
	default:
		return models.AlertStop
	}
}
