package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertKind tags the variant of an AlertEvent.
type AlertKind string

const (
	// Screening diff events.
	AlertAdded      AlertKind = "added"
	AlertRemoved    AlertKind = "removed"
	AlertChanged    AlertKind = "changed"
	AlertTransition AlertKind = "transition"

	// Position threshold events.
	AlertTarget1 AlertKind = "target1"
	AlertTarget2 AlertKind = "target2"
	AlertStop    AlertKind = "stop"
)

// AlertEvent is a single notification-worthy change. An event is immutable
// once constructed and consumed exactly once by the dispatcher.
//
// Field usage per kind:
//   - Added, Removed:  Tier, Symbol, Instrument
//   - Changed:         Tier, Symbol, OldScore/NewScore, OldClose/NewClose
//   - Transition:      Symbol, FromTier, ToTier
//   - Target1/2, Stop: Symbol, Price, Position
type AlertEvent struct {
	ID   string
	Kind AlertKind

	Tier   Tier
	Symbol string

	Instrument Instrument

	OldScore float64
	NewScore float64
	OldClose float64
	NewClose float64

	FromTier Tier
	ToTier   Tier

	Price    float64
	Position Position

	At time.Time
}

// NewAlertEvent stamps a fresh event of the given kind.
func NewAlertEvent(kind AlertKind) AlertEvent {
	return AlertEvent{
		ID:   uuid.NewString(),
		Kind: kind,
		At:   time.Now(),
	}
}
