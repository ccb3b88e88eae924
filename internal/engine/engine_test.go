package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Riyadh644/stockscout/internal/classifier"
	"github.com/Riyadh644/stockscout/internal/models"
	"github.com/Riyadh644/stockscout/internal/predictor"
	"github.com/Riyadh644/stockscout/internal/provider"
	"github.com/Riyadh644/stockscout/internal/storage"
)

func ptr(v float64) *float64 { return &v }

// passingQuote builds a quote that clears the technical gate.
func passingQuote(symbol string, close float64) provider.Quote {
	return provider.Quote{
		Symbol: symbol, Close: close, Open: close * 0.95,
		Volume: 2_000_000, AvgVolume: 1_500_000, ChangePct: 5,
		RSI: ptr(60), MACD: ptr(0.5), MACDSignal: ptr(0.2),
	}
}

type fakeProvider struct {
	universe  []provider.Quote
	quotes    map[string]provider.Quote
	benchmark provider.Quote
	fetchErrs map[string]error
}

func (f *fakeProvider) Scan(context.Context) ([]provider.Quote, error) {
	return f.universe, nil
}

func (f *fakeProvider) FetchQuote(_ context.Context, symbol string) (provider.Quote, error) {
	if err, ok := f.fetchErrs[symbol]; ok {
		return provider.Quote{}, err
	}
	if symbol == f.benchmark.Symbol {
		return f.benchmark, nil
	}
	q, ok := f.quotes[symbol]
	if !ok {
		return provider.Quote{}, provider.ErrNoData
	}
	return q, nil
}

type fakeScorer struct {
	scores map[string]float64
}

// Score keys off the close price: features do not carry the symbol, and
// every test symbol gets a distinct close.
func (f *fakeScorer) Score(_ context.Context, feat predictor.Features) (float64, error) {
	if s, ok := f.scores[closeKey(feat.Close)]; ok {
		return s, nil
	}
	return 50, nil
}

func closeKey(close float64) string {
	switch close {
	case 1.00:
		return "AAAA"
	case 2.00:
		return "BBBB"
	case 3.00:
		return "CCCC"
	case 4.00:
		return "DDDD"
	}
	return ""
}

type fakeStore struct {
	mu        sync.Mutex
	current   map[models.Tier]models.Snapshot
	history   map[string]models.Snapshot // keyed tier/day
	positions map[string]models.Position
	trades    []storage.TradeRecord
	saveErr   map[models.Tier]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		current:   make(map[models.Tier]models.Snapshot),
		history:   make(map[string]models.Snapshot),
		positions: make(map[string]models.Position),
		saveErr:   make(map[models.Tier]error),
	}
}

func (f *fakeStore) LoadCurrent(tier models.Tier) (models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if snap, ok := f.current[tier]; ok {
		return snap, nil
	}
	return models.Snapshot{Tier: tier}, nil
}

func (f *fakeStore) SaveCurrent(snap models.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.saveErr[snap.Tier]; err != nil {
		return err
	}
	f.current[snap.Tier] = snap
	return nil
}

func (f *fakeStore) AppendHistory(snap models.Snapshot, day string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[string(snap.Tier)+"/"+day] = snap
	return nil
}

func (f *fakeStore) CreatePosition(p models.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.positions[p.Symbol]; !ok {
		f.positions[p.Symbol] = p
	}
	return nil
}

func (f *fakeStore) RecordTrade(rec storage.TradeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, rec)
	return nil
}

type captureDispatcher struct {
	mu      sync.Mutex
	batches [][]models.AlertEvent
}

func (c *captureDispatcher) Dispatch(_ context.Context, events []models.AlertEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, events)
}

func (c *captureDispatcher) all() []models.AlertEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.AlertEvent
	for _, batch := range c.batches {
		out = append(out, batch...)
	}
	return out
}

func testEngine(p *fakeProvider, scorer *fakeScorer, store *fakeStore, dispatched *captureDispatcher) *Engine {
	return New(p, scorer, nil, store, dispatched, Config{
		Classifier:  classifier.DefaultConfig(),
		MaxInFlight: 4,
		BatchSize:   50,
	})
}

func TestRunCycleEndToEnd(t *testing.T) {
	p := &fakeProvider{
		universe: []provider.Quote{
			passingQuote("AAAA", 1.00),
			passingQuote("BBBB", 2.00),
			passingQuote("CCCC", 3.00),
		},
		quotes: map[string]provider.Quote{
			"AAAA": passingQuote("AAAA", 1.00),
			"BBBB": passingQuote("BBBB", 2.00),
			"CCCC": passingQuote("CCCC", 3.00),
		},
	}
	scorer := &fakeScorer{scores: map[string]float64{"AAAA": 95, "BBBB": 85, "CCCC": 60}}
	store := newFakeStore()
	dispatched := &captureDispatcher{}

	eng := testEngine(p, scorer, store, dispatched)
	if err := eng.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	strong := store.current[models.TierStrong]
	if got := strong.Symbols(); len(got) != 1 || got[0] != "AAAA" {
		t.Errorf("Expected Strong [AAAA], got %v", got)
	}
	watch := store.current[models.TierWatch]
	if got := watch.Symbols(); len(got) != 1 || got[0] != "BBBB" {
		t.Errorf("Expected Watch [BBBB], got %v", got)
	}

	events := dispatched.all()
	if len(events) != 2 {
		t.Fatalf("Expected 2 added events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Kind != models.AlertAdded {
			t.Errorf("Expected added event, got %q for %s", ev.Kind, ev.Symbol)
		}
	}

	// A new Strong entrant opens a tracked position and a trade-log entry.
	pos, ok := store.positions["AAAA"]
	if !ok {
		t.Fatal("Expected tracked position for AAAA")
	}
	if pos.Entry != 1.00 || pos.Target1 != 1.10 || pos.Target2 != 1.25 || pos.StopLoss != 0.85 {
		t.Errorf("Unexpected derived levels: %+v", pos)
	}
	if len(store.trades) != 1 || store.trades[0].Symbol != "AAAA" {
		t.Errorf("Expected one trade for AAAA, got %v", store.trades)
	}
	if _, ok := store.positions["BBBB"]; ok {
		t.Error("Watch entrants must not open positions")
	}
}

func TestRunCycleIdempotent(t *testing.T) {
	p := &fakeProvider{
		universe: []provider.Quote{passingQuote("AAAA", 1.00), passingQuote("BBBB", 2.00)},
		quotes: map[string]provider.Quote{
			"AAAA": passingQuote("AAAA", 1.00),
			"BBBB": passingQuote("BBBB", 2.00),
		},
	}
	scorer := &fakeScorer{scores: map[string]float64{"AAAA": 95, "BBBB": 85}}
	store := newFakeStore()
	dispatched := &captureDispatcher{}

	eng := testEngine(p, scorer, store, dispatched)
	if err := eng.RunCycle(context.Background()); err != nil {
		t.Fatalf("First cycle failed: %v", err)
	}
	first := len(dispatched.all())
	if first == 0 {
		t.Fatal("Expected events from the first cycle")
	}

	// Identical input on the next cycle produces no further alerts.
	if err := eng.RunCycle(context.Background()); err != nil {
		t.Fatalf("Second cycle failed: %v", err)
	}
	if got := len(dispatched.all()); got != first {
		t.Errorf("Expected no new events on identical cycle, got %d extra", got-first)
	}
}

func TestRunCycleSkipsWeakMarket(t *testing.T) {
	p := &fakeProvider{
		universe:  []provider.Quote{passingQuote("AAAA", 1.00)},
		quotes:    map[string]provider.Quote{"AAAA": passingQuote("AAAA", 1.00)},
		benchmark: provider.Quote{Symbol: "SPY", ChangePct: -2.5},
	}
	scorer := &fakeScorer{scores: map[string]float64{"AAAA": 95}}
	store := newFakeStore()
	dispatched := &captureDispatcher{}

	eng := New(p, scorer, nil, store, dispatched, Config{
		Classifier:      classifier.DefaultConfig(),
		MarketWeakPct:   1.0,
		BenchmarkSymbol: "SPY",
		MaxInFlight:     4,
		BatchSize:       50,
	})
	if err := eng.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if len(dispatched.all()) != 0 {
		t.Error("Expected no events while the market is weak")
	}
	if len(store.current) != 0 {
		t.Error("Expected no snapshots persisted while the market is weak")
	}
}

func TestRunCycleTechnicalGate(t *testing.T) {
	red := passingQuote("BBBB", 2.00)
	red.Open = red.Close * 1.05 // red candle fails the gate

	p := &fakeProvider{
		universe: []provider.Quote{passingQuote("AAAA", 1.00), red},
		quotes:   map[string]provider.Quote{"AAAA": passingQuote("AAAA", 1.00), "BBBB": red},
	}
	scorer := &fakeScorer{scores: map[string]float64{"AAAA": 95, "BBBB": 95}}
	store := newFakeStore()
	dispatched := &captureDispatcher{}

	eng := testEngine(p, scorer, store, dispatched)
	if err := eng.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	strong := store.current[models.TierStrong]
	if got := strong.Symbols(); len(got) != 1 || got[0] != "AAAA" {
		t.Errorf("Expected only AAAA to survive the gate, got %v", got)
	}
}

func TestRunCycleTierSaveFailureIsolated(t *testing.T) {
	p := &fakeProvider{
		universe: []provider.Quote{passingQuote("AAAA", 1.00), passingQuote("BBBB", 2.00)},
		quotes: map[string]provider.Quote{
			"AAAA": passingQuote("AAAA", 1.00),
			"BBBB": passingQuote("BBBB", 2.00),
		},
	}
	scorer := &fakeScorer{scores: map[string]float64{"AAAA": 95, "BBBB": 85}}
	store := newFakeStore()
	store.saveErr[models.TierStrong] = errors.New("disk full")
	dispatched := &captureDispatcher{}

	eng := testEngine(p, scorer, store, dispatched)
	if err := eng.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	// The failed tier emits nothing; the healthy Watch tier still alerts.
	events := dispatched.all()
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].Tier != models.TierWatch || events[0].Symbol != "BBBB" {
		t.Errorf("Expected Watch BBBB, got %s %s", events[0].Tier, events[0].Symbol)
	}
	if _, ok := store.current[models.TierStrong]; ok {
		t.Error("Expected no Strong snapshot persisted")
	}
}

func TestRunCycleWatchToStrongTransition(t *testing.T) {
	p := &fakeProvider{
		universe: []provider.Quote{passingQuote("AAAA", 1.00)},
		quotes:   map[string]provider.Quote{"AAAA": passingQuote("AAAA", 1.00)},
	}
	scorer := &fakeScorer{scores: map[string]float64{"AAAA": 85}}
	store := newFakeStore()
	dispatched := &captureDispatcher{}

	eng := testEngine(p, scorer, store, dispatched)
	if err := eng.RunCycle(context.Background()); err != nil {
		t.Fatalf("First cycle failed: %v", err)
	}

	// The symbol's score improves past the Strong threshold.
	scorer.scores["AAAA"] = 95
	if err := eng.RunCycle(context.Background()); err != nil {
		t.Fatalf("Second cycle failed: %v", err)
	}

	var transition *models.AlertEvent
	for _, ev := range dispatched.all() {
		if ev.Kind == models.AlertTransition {
			ev := ev
			transition = &ev
		}
	}
	if transition == nil {
		t.Fatal("Expected a watch→strong transition event")
	}
	if transition.Symbol != "AAAA" || transition.FromTier != models.TierWatch || transition.ToTier != models.TierStrong {
		t.Errorf("Unexpected transition: %+v", transition)
	}
}

func TestRunCycleSingleFlight(t *testing.T) {
	eng := testEngine(&fakeProvider{}, &fakeScorer{}, newFakeStore(), &captureDispatcher{})

	eng.mu.Lock()
	err := eng.RunCycle(context.Background())
	eng.mu.Unlock()

	if !errors.Is(err, ErrCycleInProgress) {
		t.Errorf("Expected ErrCycleInProgress, got %v", err)
	}
}
