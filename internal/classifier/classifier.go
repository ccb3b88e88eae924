// Package classifier partitions scored instruments into signal tiers.
package classifier

import (
	"sort"
	"time"

	"github.com/Riyadh644/stockscout/internal/models"
)

// Config holds the tiering thresholds. Both threshold pairs from the
// legacy screeners (90/80 and 25/20) are reachable here; nothing is
// hard-coded.
type Config struct {
	StrongThreshold   float64
	WatchThreshold    float64
	BreakoutChangePct float64
	VolumeMultiple    float64
	VolumeBaseline    Baseline
	MaxPerTier        int
}

// Baseline selects the reference value a breakout's volume is compared
// against.
type Baseline string

const (
	BaselineAvgVolume Baseline = "avg_volume"
	BaselineMarketCap Baseline = "market_cap"
)

// DefaultConfig returns the standard screening thresholds.
func DefaultConfig() Config {
	return Config{
		StrongThreshold:   90,
		WatchThreshold:    80,
		BreakoutChangePct: 25,
		VolumeMultiple:    2,
		VolumeBaseline:    BaselineAvgVolume,
		MaxPerTier:        3,
	}
}

// Result holds the per-tier snapshots for one cycle, all stamped with the
// same timestamp.
type Result struct {
	Strong   models.Snapshot
	Watch    models.Snapshot
	Breakout models.Snapshot
}

// ByTier returns the snapshot for the given tier.
func (r Result) ByTier(tier models.Tier) models.Snapshot {
	switch tier {
	case models.TierStrong:
		return r.Strong
	case models.TierWatch:
		return r.Watch
	default:
		return r.Breakout
	}
}

// Classify partitions instruments into Strong, Watch, and Breakout tiers.
// It is a pure function: identical input (in any order) yields identical
// output. Breakout is an independent predicate, so a symbol may appear in
// Strong or Watch and Breakout simultaneously.
func Classify(instruments []models.Instrument, cfg Config, at time.Time) Result {
	var strong, watch []models.Instrument
	for _, ins := range instruments {
		switch {
		case ins.Score >= cfg.StrongThreshold:
			strong = append(strong, ins)
		case ins.Score >= cfg.WatchThreshold:
			watch = append(watch, ins)
		}
	}
	return Result{
		Strong:   TierSnapshot(models.TierStrong, strong, cfg.MaxPerTier, at),
		Watch:    TierSnapshot(models.TierWatch, watch, cfg.MaxPerTier, at),
		Breakout: TierSnapshot(models.TierBreakout, Breakouts(instruments, cfg), cfg.MaxPerTier, at),
	}
}

// Breakouts returns the instruments matching the breakout predicate:
// percent change above the threshold and volume above the configured
// multiple of the baseline. Evaluated over the full universe, regardless of
// score tiering.
func Breakouts(instruments []models.Instrument, cfg Config) []models.Instrument {
	var out []models.Instrument
	for _, ins := range instruments {
		baseline := ins.AvgVolume
		if cfg.VolumeBaseline == BaselineMarketCap {
			baseline = ins.MarketCap
		}
		if baseline <= 0 {
			continue
		}
		if ins.ChangePct > cfg.BreakoutChangePct && ins.Volume > cfg.VolumeMultiple*baseline {
			out = append(out, ins)
		}
	}
	return out
}

// TierSnapshot sorts and bounds one tier's instruments into a snapshot.
func TierSnapshot(tier models.Tier, instruments []models.Instrument, maxPerTier int, at time.Time) models.Snapshot {
	sorted := make([]models.Instrument, len(instruments))
	copy(sorted, instruments)
	// Descending score, symbol ascending on ties, so ordering is stable
	// under input permutation.
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Symbol < sorted[j].Symbol
	})
	if len(sorted) > maxPerTier {
		sorted = sorted[:maxPerTier]
	}
	return models.Snapshot{Tier: tier, Instruments: sorted, TakenAt: at}
}
