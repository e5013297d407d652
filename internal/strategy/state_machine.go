package strategy

import (
	"errors"
	"time"
)

var (
	ErrPositionOpen = errors.New("position already open")
	ErrNoPosition   = errors.New("no open position")
)

// PositionTracker owns the position lifecycle. It is not safe for concurrent
// use; the Evaluator serializes access.
type PositionTracker struct {
	position Position
}

func NewPositionTracker() *PositionTracker {
	return &PositionTracker{position: FlatPosition()}
}

func (t *PositionTracker) State() State {
	return t.position.State
}

func (t *PositionTracker) Position() Position {
	return t.position.clone()
}

// Open moves Flat to Open and records the entry snapshot in one step.
func (t *PositionTracker) Open(tradeID string, basis, netBuy float64, at time.Time) error {
	next := nextState(t.position.State, EventEnter)
	if next == t.position.State {
		return ErrPositionOpen
	}
	entryTime := at
	t.position = Position{
		State:       next,
		TradeID:     tradeID,
		EntryBasis:  floatPtr(basis),
		EntryNetBuy: floatPtr(netBuy),
		EntryTime:   &entryTime,
	}
	return nil
}

// Close moves Open to Flat and returns the position as it was before clearing.
func (t *PositionTracker) Close() (Position, error) {
	next := nextState(t.position.State, EventExit)
	if next == t.position.State {
		return Position{}, ErrNoPosition
	}
	closed := t.position
	t.position = Position{State: next}
	return closed, nil
}

// Restore replaces the tracked position with a persisted Open one.
func (t *PositionTracker) Restore(pos Position) error {
	if t.position.State != StateFlat {
		return ErrPositionOpen
	}
	if pos.State != StateOpen || !pos.Consistent() {
		return errors.New("restored position must be a consistent open position")
	}
	t.position = pos.clone()
	return nil
}

func nextState(current State, event Event) State {
	switch current {
	case StateFlat:
		if event == EventEnter {
			return StateOpen
		}
	case StateOpen:
		if event == EventExit {
			return StateFlat
		}
	}
	return current
}
