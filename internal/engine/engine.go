// Package engine runs the classification cycle: fetch, score, classify,
// persist, diff, dispatch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Riyadh644/stockscout/internal/classifier"
	"github.com/Riyadh644/stockscout/internal/diff"
	"github.com/Riyadh644/stockscout/internal/logger"
	"github.com/Riyadh644/stockscout/internal/models"
	"github.com/Riyadh644/stockscout/internal/predictor"
	"github.com/Riyadh644/stockscout/internal/provider"
	"github.com/Riyadh644/stockscout/internal/sentiment"
	"github.com/Riyadh644/stockscout/internal/storage"
)

// ErrCycleInProgress is returned when a classification cycle is already
// running. Cycles never overlap: two concurrent writers would race on the
// snapshot store.
var ErrCycleInProgress = errors.New("classification cycle already in progress")

// QuoteProvider is the market-data capability the engine needs.
type QuoteProvider interface {
	Scan(ctx context.Context) ([]provider.Quote, error)
	FetchQuote(ctx context.Context, symbol string) (provider.Quote, error)
}

// Store is the persistence capability the engine needs.
type Store interface {
	LoadCurrent(tier models.Tier) (models.Snapshot, error)
	SaveCurrent(snap models.Snapshot) error
	AppendHistory(snap models.Snapshot, day string) error
	CreatePosition(p models.Position) error
	RecordTrade(rec storage.TradeRecord) error
}

// Dispatcher fans alert events out to subscribers.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []models.AlertEvent)
}

// Config holds cycle behavior.
type Config struct {
	Classifier      classifier.Config
	MarketWeakPct   float64
	BenchmarkSymbol string
	MaxInFlight     int
	BatchSize       int
	BatchCooldown   time.Duration
}

// Engine orchestrates one classification cycle end to end.
type Engine struct {
	provider   QuoteProvider
	scorer     predictor.Scorer
	sentiment  sentiment.Classifier // nil when disabled
	store      Store
	dispatcher Dispatcher
	config     Config

	mu sync.Mutex // single-flight guard over a whole cycle
}

// New creates an Engine. sentimentClassifier may be nil.
func New(p QuoteProvider, scorer predictor.Scorer, sentimentClassifier sentiment.Classifier, store Store, dispatcher Dispatcher, config Config) *Engine {
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = 8
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	return &Engine{
		provider:   p,
		scorer:     scorer,
		sentiment:  sentimentClassifier,
		store:      store,
		dispatcher: dispatcher,
		config:     config,
	}
}

// RunCycle executes one fetch → classify → persist → diff → dispatch pass.
// A second invocation while one is running returns ErrCycleInProgress.
func (e *Engine) RunCycle(ctx context.Context) error {
	if !e.mu.TryLock() {
		return ErrCycleInProgress
	}
	defer e.mu.Unlock()

	started := time.Now()
	logger.Info("Starting classification cycle")

	if weak, err := e.marketWeak(ctx); err != nil {
		logger.Warn("Benchmark check failed, proceeding anyway: %v", err)
	} else if weak {
		logger.Info("Market is weak (%s below -%.1f%%), skipping recommendations this cycle",
			e.config.BenchmarkSymbol, e.config.MarketWeakPct)
		return nil
	}

	universe, err := e.provider.Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan universe: %w", err)
	}
	logger.Info("Scanned %d candidate symbols", len(universe))

	scored, err := e.fetchAndScore(ctx, universe)
	if err != nil {
		return err
	}
	logger.Info("Scored %d symbols after pre-screen", len(scored))

	eligible := e.filterSentiment(ctx, scored)

	at := time.Now()
	result := classifier.Classify(eligible, e.config.Classifier, at)
	// Negative sentiment only vetoes Strong/Watch consideration; the
	// breakout predicate still sees the whole universe.
	result.Breakout = classifier.TierSnapshot(
		models.TierBreakout,
		classifier.Breakouts(scored, e.config.Classifier),
		e.config.Classifier.MaxPerTier,
		at,
	)

	events := e.persistAndDiff(result, at)
	logger.Info("Cycle produced %d alert events", len(events))

	if len(events) > 0 {
		e.dispatcher.Dispatch(ctx, events)
		e.trackNewEntrants(events, at)
	}

	logger.Info("Classification cycle completed in %v", time.Since(started))
	return nil
}

// marketWeak reports whether the benchmark index fell more than the
// configured threshold, in which case the whole cycle's recommendations are
// suppressed.
func (e *Engine) marketWeak(ctx context.Context) (bool, error) {
	if e.config.BenchmarkSymbol == "" || e.config.MarketWeakPct <= 0 {
		return false, nil
	}
	q, err := e.provider.FetchQuote(ctx, e.config.BenchmarkSymbol)
	if err != nil {
		return false, err
	}
	return q.ChangePct < -e.config.MarketWeakPct, nil
}

// fetchAndScore fans per-symbol quote fetches out over a bounded worker
// pool, applies the technical pre-screen, and scores survivors. Symbols are
// processed in batches with a cooldown pause between batches to respect the
// provider's rate limit. A failed fetch or score skips that symbol only.
func (e *Engine) fetchAndScore(ctx context.Context, universe []provider.Quote) ([]models.Instrument, error) {
	results := make([]*models.Instrument, len(universe))

	for batchStart := 0; batchStart < len(universe); batchStart += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batchEnd := batchStart + e.config.BatchSize
		if batchEnd > len(universe) {
			batchEnd = len(universe)
		}

		var wg sync.WaitGroup
		sem := make(chan struct{}, e.config.MaxInFlight)
		for i := batchStart; i < batchEnd; i++ {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int) {
				defer wg.Done()
				defer func() { <-sem }()
				if ins, ok := e.scoreSymbol(ctx, universe[i]); ok {
					results[i] = &ins
				}
			}(i)
		}
		wg.Wait()

		if batchEnd < len(universe) && e.config.BatchCooldown > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.config.BatchCooldown):
			}
		}
	}

	scored := make([]models.Instrument, 0, len(universe))
	for _, r := range results {
		if r != nil {
			scored = append(scored, *r)
		}
	}
	return scored, nil
}

// scoreSymbol fetches one symbol's indicators, applies the technical gate
// (green candle, RSI above 50, MACD above its signal), and scores it.
func (e *Engine) scoreSymbol(ctx context.Context, row provider.Quote) (models.Instrument, bool) {
	q, err := e.provider.FetchQuote(ctx, row.Symbol)
	if err != nil {
		if !errors.Is(err, provider.ErrNoData) && ctx.Err() == nil {
			logger.Debug("Quote fetch failed for %s: %v", row.Symbol, err)
		}
		return models.Instrument{}, false
	}

	isGreen := q.Close > q.Open
	rsiOK := q.RSI != nil && *q.RSI > 50
	macdOK := q.MACD != nil && q.MACDSignal != nil && *q.MACD > *q.MACDSignal
	if !isGreen || !rsiOK || !macdOK {
		return models.Instrument{}, false
	}

	score, err := e.scorer.Score(ctx, predictor.Features{
		Close:     q.Close,
		Volume:    q.Volume,
		AvgVolume: q.AvgVolume,
		ChangePct: q.ChangePct,
		MA10:      q.Close,
		MA30:      q.Close,
	})
	if err != nil {
		logger.Debug("Scoring failed for %s: %v", row.Symbol, err)
		return models.Instrument{}, false
	}

	return models.Instrument{
		Symbol:    q.Symbol,
		Close:     q.Close,
		Open:      q.Open,
		Volume:    q.Volume,
		AvgVolume: q.AvgVolume,
		ChangePct: q.ChangePct,
		MarketCap: q.MarketCap,
		Score:     score,
	}, true
}

// filterSentiment drops negatively classified symbols from Strong/Watch
// consideration. With no classifier configured it is a no-op.
func (e *Engine) filterSentiment(ctx context.Context, scored []models.Instrument) []models.Instrument {
	if e.sentiment == nil {
		return scored
	}
	eligible := make([]models.Instrument, 0, len(scored))
	for _, ins := range scored {
		if e.sentiment.Classify(ctx, ins.Symbol) == sentiment.Negative {
			logger.Info("Excluding %s from Strong/Watch: negative news", ins.Symbol)
			continue
		}
		eligible = append(eligible, ins)
	}
	return eligible
}

// persistAndDiff saves each tier's snapshot and diffs it against the
// previous one. A tier whose persist fails keeps its previous snapshot
// authoritative and is skipped for diff and dispatch this cycle; other
// tiers proceed.
func (e *Engine) persistAndDiff(result classifier.Result, at time.Time) []models.AlertEvent {
	day := at.Format("2006-01-02")

	previous := make(map[models.Tier]models.Snapshot, len(models.Tiers))
	loadFailed := make(map[models.Tier]bool)
	for _, tier := range models.Tiers {
		prev, err := e.store.LoadCurrent(tier)
		if err != nil {
			logger.Error("Failed to load previous %s snapshot, skipping tier this cycle: %v", tier, err)
			loadFailed[tier] = true
			continue
		}
		previous[tier] = prev
	}

	var events []models.AlertEvent
	persisted := make(map[models.Tier]bool)
	for _, tier := range models.Tiers {
		if loadFailed[tier] {
			continue
		}
		snap := result.ByTier(tier)
		if err := e.store.SaveCurrent(snap); err != nil {
			logger.Error("Failed to persist %s snapshot, skipping diff and dispatch for tier: %v", tier, err)
			continue
		}
		persisted[tier] = true
		if err := e.store.AppendHistory(snap, day); err != nil {
			logger.Warn("Failed to append %s history for %s: %v", tier, day, err)
		}
		events = append(events, diff.Diff(previous[tier], snap, tier)...)
	}

	// Watch→Strong transitions read the previous Watch snapshot against
	// the freshly persisted Strong one.
	if persisted[models.TierStrong] && !loadFailed[models.TierWatch] {
		events = append(events, diff.Transitions(previous[models.TierWatch], result.Strong)...)
	}
	return events
}

// trackNewEntrants opens a tracked position with derived price levels, and
// a trade-log entry, for each symbol newly entering the Strong tier.
func (e *Engine) trackNewEntrants(events []models.AlertEvent, at time.Time) {
	day := at.Format("2006-01-02")
	for _, ev := range events {
		if ev.Kind != models.AlertAdded || ev.Tier != models.TierStrong {
			continue
		}
		pos := models.NewPosition(ev.Symbol, ev.Instrument.Close)
		if err := e.store.CreatePosition(pos); err != nil {
			logger.Error("Failed to open position for %s: %v", ev.Symbol, err)
			continue
		}
		if err := e.store.RecordTrade(storage.TradeRecord{
			Symbol:    ev.Symbol,
			Day:       day,
			Tier:      ev.Tier,
			Entry:     pos.Entry,
			Score:     ev.Instrument.Score,
			CreatedAt: at,
		}); err != nil {
			logger.Warn("Failed to record trade for %s: %v", ev.Symbol, err)
		}
	}
}
