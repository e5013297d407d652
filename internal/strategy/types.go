package strategy

import "time"

type State string

type Event string

const (
	StateFlat State = "FLAT"
	StateOpen State = "OPEN"
)

const (
	EventEnter Event = "ENTER"
	EventExit  Event = "EXIT"
)

// Action is both the outcome of Decide and the kind of a journaled TradeEvent.
type Action string

const (
	ActionNone  Action = ""
	ActionEntry Action = "ENTRY"
	ActionExit  Action = "EXIT"
)

type ExitReason string

const (
	ExitNone       ExitReason = ""
	ExitEmergency  ExitReason = "EMERGENCY"
	ExitMaxHold    ExitReason = "MAX_HOLD"
	ExitReversion  ExitReason = "REVERSION"
	ExitSessionEnd ExitReason = "SESSION_END"
)

// MarketSnapshot holds the latest value of each signal. Each field is replaced
// on its own update and survives updates of the other signal.
type MarketSnapshot struct {
	LastBasis  *float64
	LastNetBuy *float64
	ObservedAt time.Time
	When       string
}

func (s MarketSnapshot) Basis() (float64, bool) {
	if s.LastBasis == nil {
		return 0, false
	}
	return *s.LastBasis, true
}

func (s MarketSnapshot) NetBuy() (float64, bool) {
	if s.LastNetBuy == nil {
		return 0, false
	}
	return *s.LastNetBuy, true
}

func (s MarketSnapshot) clone() MarketSnapshot {
	out := s
	out.LastBasis = copyFloat(s.LastBasis)
	out.LastNetBuy = copyFloat(s.LastNetBuy)
	return out
}

// Position is the single tracked position. Entry fields are either all set
// (StateOpen) or all nil (StateFlat).
type Position struct {
	State       State
	TradeID     string
	EntryBasis  *float64
	EntryNetBuy *float64
	EntryTime   *time.Time
}

func FlatPosition() Position {
	return Position{State: StateFlat}
}

// Consistent reports whether the entry fields agree with State.
func (p Position) Consistent() bool {
	set := p.EntryBasis != nil && p.EntryNetBuy != nil && p.EntryTime != nil
	cleared := p.EntryBasis == nil && p.EntryNetBuy == nil && p.EntryTime == nil
	switch p.State {
	case StateOpen:
		return set && p.TradeID != ""
	case StateFlat:
		return cleared && p.TradeID == ""
	default:
		return false
	}
}

func (p Position) clone() Position {
	out := p
	out.EntryBasis = copyFloat(p.EntryBasis)
	out.EntryNetBuy = copyFloat(p.EntryNetBuy)
	if p.EntryTime != nil {
		ts := *p.EntryTime
		out.EntryTime = &ts
	}
	return out
}

// TradeEvent is an immutable journal record. Profitable is set only for exits.
type TradeEvent struct {
	TradeID    string
	Action     Action
	Timestamp  time.Time
	When       string
	Basis      float64
	NetBuy     float64
	Profitable *bool
	Reason     ExitReason
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func floatPtr(v float64) *float64 {
	return &v
}

func boolPtr(v bool) *bool {
	return &v
}
