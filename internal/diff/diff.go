// Package diff compares consecutive tier snapshots and produces alert events.
package diff

import (
	"math"

	"github.com/Riyadh644/stockscout/internal/models"
)

// round2 mirrors the precision used in rendered messages; score or price
// movement below a cent / hundredth of a point is not worth an alert.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Diff compares two snapshots of the same tier and returns alert events in
// the contract order: all Added (new-snapshot order), then all Changed
// (new-snapshot order), then all Removed (old-snapshot order). Consumers
// rely on this ordering; do not reorder.
func Diff(old, new models.Snapshot, tier models.Tier) []models.AlertEvent {
	oldBySymbol := make(map[string]models.Instrument, len(old.Instruments))
	for _, ins := range old.Instruments {
		oldBySymbol[ins.Symbol] = ins
	}
	newBySymbol := make(map[string]models.Instrument, len(new.Instruments))
	for _, ins := range new.Instruments {
		newBySymbol[ins.Symbol] = ins
	}

	var events []models.AlertEvent

	for _, ins := range new.Instruments {
		if _, ok := oldBySymbol[ins.Symbol]; ok {
			continue
		}
		ev := models.NewAlertEvent(models.AlertAdded)
		ev.Tier = tier
		ev.Symbol = ins.Symbol
		ev.Instrument = ins
		events = append(events, ev)
	}

	for _, ins := range new.Instruments {
		prev, ok := oldBySymbol[ins.Symbol]
		if !ok {
			continue
		}
		if round2(prev.Score) == round2(ins.Score) && round2(prev.Close) == round2(ins.Close) {
			continue
		}
		ev := models.NewAlertEvent(models.AlertChanged)
		ev.Tier = tier
		ev.Symbol = ins.Symbol
		ev.OldScore = prev.Score
		ev.NewScore = ins.Score
		ev.OldClose = prev.Close
		ev.NewClose = ins.Close
		events = append(events, ev)
	}

	for _, ins := range old.Instruments {
		if _, ok := newBySymbol[ins.Symbol]; ok {
			continue
		}
		ev := models.NewAlertEvent(models.AlertRemoved)
		ev.Tier = tier
		ev.Symbol = ins.Symbol
		ev.Instrument = ins
		events = append(events, ev)
	}

	return events
}

// Transitions reports every symbol present in the new Strong snapshot that
// was present in the previous Watch snapshot, as a Watch→Strong transition.
// Emitted once per symbol, after the per-tier diff events.
func Transitions(prevWatch, newStrong models.Snapshot) []models.AlertEvent {
	watched := make(map[string]bool, len(prevWatch.Instruments))
	for _, ins := range prevWatch.Instruments {
		watched[ins.Symbol] = true
	}

	var events []models.AlertEvent
	for _, ins := range newStrong.Instruments {
		if !watched[ins.Symbol] {
			continue
		}
		ev := models.NewAlertEvent(models.AlertTransition)
		ev.Symbol = ins.Symbol
		ev.FromTier = models.TierWatch
		ev.ToTier = models.TierStrong
		events = append(events, ev)
	}
	return events
}
