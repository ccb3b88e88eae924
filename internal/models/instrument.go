// Package models defines the core domain entities: instruments, tiers,
// snapshots, alert events, and tracked positions.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Tier is one of the three classification buckets an instrument can fall
// into for a given screening cycle. Breakout is evaluated independently of
// the score thresholds, so a symbol may sit in Strong or Watch and Breakout
// at the same time.
type Tier string

const (
	TierStrong   Tier = "strong"
	TierWatch    Tier = "watch"
	TierBreakout Tier = "breakout"
)

// Tiers lists all tiers in persistence and diff order.
var Tiers = []Tier{TierStrong, TierWatch, TierBreakout}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierStrong, TierWatch, TierBreakout:
		return true
	}
	return false
}

// Instrument is one scored symbol for a single cycle. Instruments are
// recomputed every cycle and never mutated once classified.
type Instrument struct {
	Symbol    string  `json:"symbol"`
	Close     float64 `json:"close"`
	Open      float64 `json:"open"`
	Volume    float64 `json:"volume"`
	AvgVolume float64 `json:"avg_volume"`
	ChangePct float64 `json:"change_pct"`
	MarketCap float64 `json:"market_cap"`
	Score     float64 `json:"score"`
}

// Validate checks instrument field constraints.
func (i *Instrument) Validate() error {
	if i.Symbol == "" {
		return errors.New("symbol must not be empty")
	}
	if i.Close < 0 {
		return errors.New("close must not be negative")
	}
	if i.Volume < 0 {
		return errors.New("volume must not be negative")
	}
	if i.Score < 0 || i.Score > 100 {
		return fmt.Errorf("score must be in [0,100], got %f", i.Score)
	}
	return nil
}

// Snapshot is the ordered instrument list one cycle produced for one tier.
type Snapshot struct {
	Tier        Tier         `json:"tier"`
	Instruments []Instrument `json:"instruments"`
	TakenAt     time.Time    `json:"taken_at"`
}

// Symbols returns the snapshot's symbols in snapshot order.
func (s Snapshot) Symbols() []string {
	out := make([]string, 0, len(s.Instruments))
	for _, ins := range s.Instruments {
		out = append(out, ins.Symbol)
	}
	return out
}

// Lookup returns the instrument for symbol, if present.
func (s Snapshot) Lookup(symbol string) (Instrument, bool) {
	for _, ins := range s.Instruments {
		if ins.Symbol == symbol {
			return ins, true
		}
	}
	return Instrument{}, false
}
