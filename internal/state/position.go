package state

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"basis-arb-bot/internal/strategy"
)

const PositionKey = "strategy:position"

type PositionSnapshot struct {
	State       string  `json:"state"`
	TradeID     string  `json:"trade_id,omitempty"`
	EntryBasis  float64 `json:"entry_basis,omitempty"`
	EntryNetBuy float64 `json:"entry_net_buy,omitempty"`
	EntryTimeMS int64   `json:"entry_time_ms,omitempty"`
	UpdatedAtMS int64   `json:"updated_at_ms"`
}

// Position converts an open snapshot back into a strategy position.
func (s PositionSnapshot) Position() (strategy.Position, bool) {
	if strategy.State(s.State) != strategy.StateOpen || s.TradeID == "" || s.EntryTimeMS <= 0 {
		return strategy.FlatPosition(), false
	}
	basis := s.EntryBasis
	netBuy := s.EntryNetBuy
	entry := time.UnixMilli(s.EntryTimeMS)
	return strategy.Position{
		State:       strategy.StateOpen,
		TradeID:     s.TradeID,
		EntryBasis:  &basis,
		EntryNetBuy: &netBuy,
		EntryTime:   &entry,
	}, true
}

func LoadPosition(ctx context.Context, store Store) (PositionSnapshot, bool, error) {
	if store == nil {
		return PositionSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, PositionKey)
	if err != nil {
		return PositionSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return PositionSnapshot{}, false, nil
	}
	var snapshot PositionSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return PositionSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SavePosition(ctx context.Context, store Store, snapshot PositionSnapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, PositionKey, string(payload))
}

// PositionRecorder keeps the persisted position in step with journaled trades.
type PositionRecorder struct {
	store Store
}

func NewPositionRecorder(store Store) *PositionRecorder {
	return &PositionRecorder{store: store}
}

func (r *PositionRecorder) Record(ctx context.Context, ev strategy.TradeEvent) error {
	if r == nil || r.store == nil {
		return errors.New("position store not configured")
	}
	snapshot := PositionSnapshot{UpdatedAtMS: ev.Timestamp.UnixMilli()}
	switch ev.Action {
	case strategy.ActionEntry:
		snapshot.State = string(strategy.StateOpen)
		snapshot.TradeID = ev.TradeID
		snapshot.EntryBasis = ev.Basis
		snapshot.EntryNetBuy = ev.NetBuy
		snapshot.EntryTimeMS = ev.Timestamp.UnixMilli()
	case strategy.ActionExit:
		snapshot.State = string(strategy.StateFlat)
	default:
		return nil
	}
	return SavePosition(ctx, r.store, snapshot)
}
