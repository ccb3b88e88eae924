package notify

import (
	"fmt"
	"strings"

	"github.com/Riyadh644/stockscout/internal/models"
)

func tierTitle(t models.Tier) string {
	switch t {
	case models.TierStrong:
		return "Top Stocks"
	case models.TierWatch:
		return "Watchlist"
	case models.TierBreakout:
		return "Breakout Candidates"
	}
	return string(t)
}

func tierEmoji(t models.Tier) string {
	switch t {
	case models.TierStrong:
		return "📈"
	case models.TierWatch:
		return "🕵️"
	case models.TierBreakout:
		return "💣"
	}
	return "📊"
}

// Render turns one alert event into its outgoing message text.
func Render(ev models.AlertEvent) string {
	switch ev.Kind {
	case models.AlertAdded:
		return fmt.Sprintf("%s New entrant in %s:\n📌 %s\n💰 Price: %.2f\n📊 Score: %.2f%%",
			tierEmoji(ev.Tier), tierTitle(ev.Tier), ev.Symbol, ev.Instrument.Close, ev.Instrument.Score)
	case models.AlertRemoved:
		return fmt.Sprintf("%s %s left %s:\n📌 %s",
			tierEmoji(ev.Tier), ev.Symbol, tierTitle(ev.Tier), ev.Symbol)
	case models.AlertChanged:
		return fmt.Sprintf("📌 %s\n💵 Price: %.2f → %.2f\n📊 Score: %.2f%% → %.2f%%",
			ev.Symbol, ev.OldClose, ev.NewClose, ev.OldScore, ev.NewScore)
	case models.AlertTransition:
		return fmt.Sprintf("🔁 %s moved from %s to %s ✅",
			ev.Symbol, tierTitle(ev.FromTier), tierTitle(ev.ToTier))
	case models.AlertTarget1:
		return fmt.Sprintf("🎯 %s reached target 1 (%.2f) at %.2f",
			ev.Symbol, ev.Position.Target1, ev.Price)
	case models.AlertTarget2:
		return fmt.Sprintf("🏁 %s reached target 2 (%.2f) at %.2f",
			ev.Symbol, ev.Position.Target2, ev.Price)
	case models.AlertStop:
		return fmt.Sprintf("⛔ %s broke its stop loss (%.2f) at %.2f, consider exiting",
			ev.Symbol, ev.Position.StopLoss, ev.Price)
	}
	return fmt.Sprintf("📊 %s: %s", ev.Kind, ev.Symbol)
}

// FormatSnapshot renders a tier's current list with derived trade levels,
// for the interactive commands.
func FormatSnapshot(snap models.Snapshot) string {
	if len(snap.Instruments) == 0 {
		return fmt.Sprintf("❌ Nothing in %s right now.", tierTitle(snap.Tier))
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s\n\n", tierEmoji(snap.Tier), tierTitle(snap.Tier)))
	for _, ins := range snap.Instruments {
		levels := models.NewPosition(ins.Symbol, ins.Close)
		b.WriteString(fmt.Sprintf("📌 %s\n", ins.Symbol))
		b.WriteString(fmt.Sprintf("💰 Entry: %.2f\n", levels.Entry))
		b.WriteString(fmt.Sprintf("🎯 Target 1: %.2f\n", levels.Target1))
		b.WriteString(fmt.Sprintf("🏁 Target 2: %.2f\n", levels.Target2))
		b.WriteString(fmt.Sprintf("🛑 Stop loss: %.2f\n", levels.StopLoss))
		b.WriteString(fmt.Sprintf("📊 Score: %.2f%%\n\n", ins.Score))
	}
	return strings.TrimRight(b.String(), "\n")
}
