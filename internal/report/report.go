// Package report summarizes how the day's recommendations performed.
package report

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Riyadh644/stockscout/internal/logger"
	"github.com/Riyadh644/stockscout/internal/models"
	"github.com/Riyadh644/stockscout/internal/provider"
	"github.com/Riyadh644/stockscout/internal/storage"
)

// TradeLog reads the day's surfaced recommendations.
type TradeLog interface {
	TradesForDay(day string) ([]storage.TradeRecord, error)
}

// QuoteFetcher returns a symbol's current quote, including the day high.
type QuoteFetcher interface {
	FetchQuote(ctx context.Context, symbol string) (provider.Quote, error)
}

// hitMultiple: a recommendation counts as a win once the day's high clears
// the first target.
const hitMultiple = 1.10

// Generator builds the daily performance report.
type Generator struct {
	trades TradeLog
	quotes QuoteFetcher
}

// New creates a Generator.
func New(trades TradeLog, quotes QuoteFetcher) *Generator {
	return &Generator{trades: trades, quotes: quotes}
}

type tally struct {
	wins   []string
	losses []string
}

// Daily renders today's performance summary. Symbols whose quotes cannot be
// fetched are left out of the tally rather than failing the report.
func (g *Generator) Daily(ctx context.Context, now time.Time) (string, error) {
	day := now.Format("2006-01-02")
	trades, err := g.trades.TradesForDay(day)
	if err != nil {
		return "", fmt.Errorf("failed to load trades for %s: %w", day, err)
	}
	if len(trades) == 0 {
		return "", fmt.Errorf("no recommendations recorded for %s", day)
	}

	tallies := map[models.Tier]*tally{
		models.TierStrong:   {},
		models.TierWatch:    {},
		models.TierBreakout: {},
	}
	for _, trade := range trades {
		q, err := g.quotes.FetchQuote(ctx, trade.Symbol)
		if err != nil {
			logger.Warn("Skipping %s in daily report: %v", trade.Symbol, err)
			continue
		}
		t, ok := tallies[trade.Tier]
		if !ok {
			continue
		}
		target := math.Round(trade.Entry*hitMultiple*100) / 100
		if q.High >= target {
			t.wins = append(t.wins, trade.Symbol)
		} else {
			t.losses = append(t.losses, trade.Symbol)
		}
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 Performance report for %s\n\n", day))
	writeBlock := func(label string, t *tally) {
		b.WriteString(fmt.Sprintf("%s\n✅ Wins: %d\n❌ Losses: %d\n\n", label, len(t.wins), len(t.losses)))
	}
	writeBlock("📈 Top Stocks", tallies[models.TierStrong])
	writeBlock("🕵️ Watchlist", tallies[models.TierWatch])
	writeBlock("💣 Breakout Candidates", tallies[models.TierBreakout])

	totalWins, totalLosses := 0, 0
	for _, t := range tallies {
		totalWins += len(t.wins)
		totalLosses += len(t.losses)
	}
	b.WriteString(fmt.Sprintf("📈 Total wins: %d\n📉 Total losses: %d", totalWins, totalLosses))
	return b.String(), nil
}
