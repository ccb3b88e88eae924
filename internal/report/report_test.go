package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Riyadh644/stockscout/internal/models"
	"github.com/Riyadh644/stockscout/internal/provider"
	"github.com/Riyadh644/stockscout/internal/storage"
)

type fakeTradeLog struct {
	trades map[string][]storage.TradeRecord
	err    error
}

func (f *fakeTradeLog) TradesForDay(day string) ([]storage.TradeRecord, error) {
	return f.trades[day], f.err
}

type fakeQuotes struct {
	highs map[string]float64
	errs  map[string]error
}

func (f *fakeQuotes) FetchQuote(_ context.Context, symbol string) (provider.Quote, error) {
	if err, ok := f.errs[symbol]; ok {
		return provider.Quote{}, err
	}
	return provider.Quote{Symbol: symbol, High: f.highs[symbol]}, nil
}

func TestDaily(t *testing.T) {
	now := time.Date(2026, 8, 3, 23, 30, 0, 0, time.UTC)
	trades := &fakeTradeLog{trades: map[string][]storage.TradeRecord{
		"2026-08-03": {
			{Symbol: "AAAA", Day: "2026-08-03", Tier: models.TierStrong, Entry: 2.00},
			{Symbol: "BBBB", Day: "2026-08-03", Tier: models.TierStrong, Entry: 3.00},
			{Symbol: "CCCC", Day: "2026-08-03", Tier: models.TierBreakout, Entry: 1.00},
		},
	}}
	quotes := &fakeQuotes{highs: map[string]float64{
		"AAAA": 2.25, // cleared the 2.20 target
		"BBBB": 3.10, // short of the 3.30 target
		"CCCC": 1.10, // exactly on target
	}}

	text, err := New(trades, quotes).Daily(context.Background(), now)
	if err != nil {
		t.Fatalf("Daily failed: %v", err)
	}

	if !strings.Contains(text, "2026-08-03") {
		t.Errorf("Expected report dated 2026-08-03, got:\n%s", text)
	}
	if !strings.Contains(text, "Total wins: 2") {
		t.Errorf("Expected 2 total wins, got:\n%s", text)
	}
	if !strings.Contains(text, "Total losses: 1") {
		t.Errorf("Expected 1 total loss, got:\n%s", text)
	}
}

func TestDailyNoTrades(t *testing.T) {
	gen := New(&fakeTradeLog{trades: map[string][]storage.TradeRecord{}}, &fakeQuotes{})
	if _, err := gen.Daily(context.Background(), time.Now()); err == nil {
		t.Error("Expected error when no recommendations were recorded")
	}
}

func TestDailySkipsUnfetchableSymbols(t *testing.T) {
	now := time.Date(2026, 8, 3, 23, 30, 0, 0, time.UTC)
	trades := &fakeTradeLog{trades: map[string][]storage.TradeRecord{
		"2026-08-03": {
			{Symbol: "AAAA", Day: "2026-08-03", Tier: models.TierStrong, Entry: 2.00},
			{Symbol: "GONE", Day: "2026-08-03", Tier: models.TierStrong, Entry: 5.00},
		},
	}}
	quotes := &fakeQuotes{
		highs: map[string]float64{"AAAA": 2.25},
		errs:  map[string]error{"GONE": errors.New("delisted")},
	}

	text, err := New(trades, quotes).Daily(context.Background(), now)
	if err != nil {
		t.Fatalf("Daily failed: %v", err)
	}
	if !strings.Contains(text, "Total wins: 1") || !strings.Contains(text, "Total losses: 0") {
		t.Errorf("Expected the unfetchable symbol excluded from the tally, got:\n%s", text)
	}
}

func TestDailyTradeLogFailure(t *testing.T) {
	gen := New(&fakeTradeLog{err: errors.New("database locked")}, &fakeQuotes{})
	if _, err := gen.Daily(context.Background(), time.Now()); err == nil {
		t.Error("Expected error when the trade log is unavailable")
	}
}
