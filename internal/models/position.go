package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ThresholdAlert records which price level last fired for a position.
// The progression is monotonic: once Target2 or Stop has fired the position
// is terminal; Target1 may be followed by Target2 or Stop but never re-fires.
type ThresholdAlert string

const (
	AlertNone         ThresholdAlert = ""
	AlertTarget1Fired ThresholdAlert = "target1"
	AlertTarget2Fired ThresholdAlert = "target2"
	AlertStopFired    ThresholdAlert = "stop"
)

// Terminal reports whether no further threshold alert may fire.
func (a ThresholdAlert) Terminal() bool {
	return a == AlertTarget2Fired || a == AlertStopFired
}

// Position is an open recommendation tracked against its price levels.
// Positions are created when a recommendation is surfaced and persist until
// removed; the tracker only ever advances LastAlert.
type Position struct {
	Symbol    string         `json:"symbol"`
	Entry     float64        `json:"entry"`
	Target1   float64        `json:"target1"`
	Target2   float64        `json:"target2"`
	StopLoss  float64        `json:"stop_loss"`
	LastAlert ThresholdAlert `json:"last_alert"`
	CreatedAt time.Time      `json:"created_at"`
}

// Validate rejects malformed levels at creation time rather than mid-cycle.
func (p *Position) Validate() error {
	if p.Symbol == "" {
		return errors.New("position symbol must not be empty")
	}
	if p.Entry <= 0 {
		return fmt.Errorf("entry must be positive, got %f", p.Entry)
	}
	if p.Target1 <= p.Entry {
		return fmt.Errorf("target1 (%f) must exceed entry (%f)", p.Target1, p.Entry)
	}
	if p.Target2 <= p.Target1 {
		return fmt.Errorf("target2 (%f) must exceed target1 (%f)", p.Target2, p.Target1)
	}
	if p.StopLoss <= 0 || p.StopLoss >= p.Entry {
		return fmt.Errorf("stop loss (%f) must sit below entry (%f)", p.StopLoss, p.Entry)
	}
	switch p.LastAlert {
	case AlertNone, AlertTarget1Fired, AlertTarget2Fired, AlertStopFired:
	default:
		return fmt.Errorf("unknown last alert %q", p.LastAlert)
	}
	return nil
}

// NewPosition derives a tracked position from an entry price using the
// standard level multiples: +10% first target, +25% second target, -15% stop.
func NewPosition(symbol string, entry float64) Position {
	round2 := func(v float64) float64 { return math.Round(v*100) / 100 }
	return Position{
		Symbol:    symbol,
		Entry:     round2(entry),
		Target1:   round2(entry * 1.10),
		Target2:   round2(entry * 1.25),
		StopLoss:  round2(entry * 0.85),
		LastAlert: AlertNone,
		CreatedAt: time.Now(),
	}
}
