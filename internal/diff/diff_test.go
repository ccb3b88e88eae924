package diff

import (
	"testing"
	"time"

	"github.com/Riyadh644/stockscout/internal/models"
)

func snap(tier models.Tier, instruments ...models.Instrument) models.Snapshot {
	return models.Snapshot{Tier: tier, Instruments: instruments, TakenAt: time.Now()}
}

func ins(symbol string, score, close float64) models.Instrument {
	return models.Instrument{Symbol: symbol, Score: score, Close: close}
}

func kinds(events []models.AlertEvent) []models.AlertKind {
	out := make([]models.AlertKind, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestDiffIdenticalSnapshots(t *testing.T) {
	s := snap(models.TierStrong, ins("AAAA", 95, 2.50), ins("BBBB", 91, 1.10))
	if events := Diff(s, s, models.TierStrong); len(events) != 0 {
		t.Errorf("Expected no events for identical snapshots, got %d", len(events))
	}
}

func TestDiffFromEmpty(t *testing.T) {
	old := snap(models.TierStrong)
	new := snap(models.TierStrong, ins("AAAA", 95, 2.50), ins("BBBB", 91, 1.10))

	events := Diff(old, new, models.TierStrong)
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Kind != models.AlertAdded {
			t.Errorf("Event %d: expected added, got %q", i, ev.Kind)
		}
		if ev.Tier != models.TierStrong {
			t.Errorf("Event %d: expected strong tier, got %q", i, ev.Tier)
		}
	}
	// Added events follow the new snapshot's order.
	if events[0].Symbol != "AAAA" || events[1].Symbol != "BBBB" {
		t.Errorf("Expected [AAAA BBBB], got [%s %s]", events[0].Symbol, events[1].Symbol)
	}
}

func TestDiffToEmpty(t *testing.T) {
	old := snap(models.TierWatch, ins("AAAA", 85, 2.50), ins("BBBB", 82, 1.10))
	new := snap(models.TierWatch)

	events := Diff(old, new, models.TierWatch)
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Kind != models.AlertRemoved || events[0].Symbol != "AAAA" {
		t.Errorf("Expected first removal AAAA, got %s %s", events[0].Kind, events[0].Symbol)
	}
	if events[1].Kind != models.AlertRemoved || events[1].Symbol != "BBBB" {
		t.Errorf("Expected second removal BBBB, got %s %s", events[1].Kind, events[1].Symbol)
	}
}

func TestDiffEventOrdering(t *testing.T) {
	old := snap(models.TierStrong,
		ins("KEEP", 95, 2.50),
		ins("MOVE", 92, 3.00),
		ins("GONE", 91, 1.10),
	)
	new := snap(models.TierStrong,
		ins("FRESH", 97, 4.00),
		ins("KEEP", 95, 2.50),
		ins("MOVE", 93, 3.00),
	)

	events := Diff(old, new, models.TierStrong)

	want := []models.AlertKind{models.AlertAdded, models.AlertChanged, models.AlertRemoved}
	got := kinds(events)
	if len(got) != len(want) {
		t.Fatalf("Expected %d events, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Event %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if events[0].Symbol != "FRESH" || events[1].Symbol != "MOVE" || events[2].Symbol != "GONE" {
		t.Errorf("Unexpected symbols: %s %s %s", events[0].Symbol, events[1].Symbol, events[2].Symbol)
	}
	if events[1].OldScore != 92 || events[1].NewScore != 93 {
		t.Errorf("Expected change 92→93, got %f→%f", events[1].OldScore, events[1].NewScore)
	}
}

func TestDiffIgnoresSubCentMovement(t *testing.T) {
	// Movement that rounds to the same two decimals is not alert-worthy.
	old := snap(models.TierStrong, ins("AAAA", 95.001, 2.501))
	new := snap(models.TierStrong, ins("AAAA", 95.004, 2.503))
	if events := Diff(old, new, models.TierStrong); len(events) != 0 {
		t.Errorf("Expected no events for sub-cent movement, got %d", len(events))
	}

	// A close move that crosses a rounding boundary does fire.
	new = snap(models.TierStrong, ins("AAAA", 95.001, 2.506))
	events := Diff(old, new, models.TierStrong)
	if len(events) != 1 || events[0].Kind != models.AlertChanged {
		t.Errorf("Expected one changed event, got %v", kinds(events))
	}
}

func TestDiffChangedOnCloseOnly(t *testing.T) {
	old := snap(models.TierStrong, ins("AAAA", 95, 2.50))
	new := snap(models.TierStrong, ins("AAAA", 95, 2.75))

	events := Diff(old, new, models.TierStrong)
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].Kind != models.AlertChanged {
		t.Errorf("Expected changed, got %q", events[0].Kind)
	}
	if events[0].OldClose != 2.50 || events[0].NewClose != 2.75 {
		t.Errorf("Expected close 2.50→2.75, got %f→%f", events[0].OldClose, events[0].NewClose)
	}
}

func TestDiffRoundTrip(t *testing.T) {
	// Replaying the events onto the old snapshot reconstructs the new one:
	// the event stream carries everything a consumer needs to stay in sync.
	old := snap(models.TierStrong,
		ins("KEEP", 95, 2.50),
		ins("MOVE", 92, 3.00),
		ins("GONE", 91, 1.10),
	)
	new := snap(models.TierStrong,
		ins("FRESH", 97, 4.00),
		ins("KEEP", 95, 2.50),
		ins("MOVE", 93, 3.25),
	)

	replayed := make(map[string]models.Instrument, len(old.Instruments))
	for _, i := range old.Instruments {
		replayed[i.Symbol] = i
	}
	for _, ev := range Diff(old, new, models.TierStrong) {
		switch ev.Kind {
		case models.AlertAdded:
			replayed[ev.Symbol] = ev.Instrument
		case models.AlertChanged:
			i := replayed[ev.Symbol]
			i.Score = ev.NewScore
			i.Close = ev.NewClose
			replayed[ev.Symbol] = i
		case models.AlertRemoved:
			delete(replayed, ev.Symbol)
		}
	}

	if len(replayed) != len(new.Instruments) {
		t.Fatalf("Expected %d symbols after replay, got %d", len(new.Instruments), len(replayed))
	}
	for _, want := range new.Instruments {
		got, ok := replayed[want.Symbol]
		if !ok {
			t.Errorf("Symbol %s missing after replay", want.Symbol)
			continue
		}
		if got.Score != want.Score || got.Close != want.Close {
			t.Errorf("%s: replayed score/close %.2f/%.2f, want %.2f/%.2f",
				want.Symbol, got.Score, got.Close, want.Score, want.Close)
		}
	}
}

func TestTransitions(t *testing.T) {
	prevWatch := snap(models.TierWatch, ins("AAAA", 85, 2.50), ins("BBBB", 82, 1.10))
	newStrong := snap(models.TierStrong, ins("AAAA", 93, 2.80), ins("CCCC", 91, 4.00))

	events := Transitions(prevWatch, newStrong)
	if len(events) != 1 {
		t.Fatalf("Expected 1 transition, got %d", len(events))
	}
	ev := events[0]
	if ev.Kind != models.AlertTransition {
		t.Errorf("Expected transition, got %q", ev.Kind)
	}
	if ev.Symbol != "AAAA" {
		t.Errorf("Expected AAAA, got %s", ev.Symbol)
	}
	if ev.FromTier != models.TierWatch || ev.ToTier != models.TierStrong {
		t.Errorf("Expected watch→strong, got %s→%s", ev.FromTier, ev.ToTier)
	}
}

func TestTransitionsNoneWhenDisjoint(t *testing.T) {
	prevWatch := snap(models.TierWatch, ins("AAAA", 85, 2.50))
	newStrong := snap(models.TierStrong, ins("BBBB", 95, 3.00))
	if events := Transitions(prevWatch, newStrong); len(events) != 0 {
		t.Errorf("Expected no transitions, got %d", len(events))
	}
}
