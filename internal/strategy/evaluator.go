package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"basis-arb-bot/internal/market"
	"basis-arb-bot/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrStalePosition = errors.New("persisted position is from a previous session")

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// Journal records trade events. Implementations should not block the caller.
type Journal interface {
	Record(ctx context.Context, ev TradeEvent) error
}

// Notifier delivers human-readable alerts. Implementations should not block the caller.
type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

type Options struct {
	Clock      Clock
	Journal    Journal
	Notifier   Notifier
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	NewTradeID func() string
}

// Status is a consistent copy of evaluator state for observers.
type Status struct {
	Snapshot          MarketSnapshot
	Position          Position
	ConsecutiveLosses int
	LossLimit         int
	Halted            bool
	Paused            bool
	HistoryLen        int
	ObservedAt        time.Time
}

// Evaluator owns the market snapshot, basis history, position and risk
// counters. OnTick calls must be serialized by the caller; Status, SetPaused
// and Halted may be called concurrently with it.
type Evaluator struct {
	params     Params
	clock      Clock
	journal    Journal
	notifier   Notifier
	log        *zap.Logger
	metrics    *metrics.Metrics
	newTradeID func() string

	mu       sync.RWMutex
	snapshot MarketSnapshot
	history  *market.BasisHistory
	tracker  *PositionTracker
	risk     RiskCounters
	warned   bool
	paused   bool
}

func NewEvaluator(params Params, opts Options) *Evaluator {
	e := &Evaluator{
		params:     params,
		clock:      opts.Clock,
		journal:    opts.Journal,
		notifier:   opts.Notifier,
		log:        opts.Logger,
		metrics:    metrics.OrNoop(opts.Metrics),
		newTradeID: opts.NewTradeID,
		history:    market.NewBasisHistory(params.HistoryCapacity),
		tracker:    NewPositionTracker(),
		risk:       NewRiskCounters(params.LossLimit),
	}
	if e.clock == nil {
		e.clock = ClockFunc(time.Now)
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.newTradeID == nil {
		e.newTradeID = func() string { return uuid.NewString() }
	}
	return e
}

// OnTick ingests one raw feed message and applies at most one transition.
// It never returns an error; malformed input and sink failures are logged.
func (e *Evaluator) OnTick(ctx context.Context, msg market.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("tick processing panic", zap.Any("panic", r), zap.String("tr_id", msg.TrID))
		}
	}()
	e.metrics.Ticks.Inc()
	now := e.clock.Now()
	upd, ok := market.Normalize(msg, e.params.Fields, now)
	if !ok {
		e.metrics.TicksIgnored.Inc()
		return
	}
	events, alerts := e.apply(upd)
	e.emit(ctx, events, alerts)
}

func (e *Evaluator) apply(upd market.Update) ([]TradeEvent, []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch upd.Kind {
	case market.UpdateBasis:
		e.snapshot.LastBasis = floatPtr(upd.Value)
		e.history.Record(upd.Timestamp, upd.Value)
	case market.UpdateNetBuy:
		e.snapshot.LastNetBuy = floatPtr(upd.Value)
	}
	e.snapshot.ObservedAt = upd.Timestamp
	e.snapshot.When = upd.When

	now := upd.Timestamp
	if e.params.InWindow(now) {
		defer e.logTick(upd.When)
	}
	d := Decide(e.params, Inputs{
		Now:      now,
		Snapshot: e.snapshot,
		Rising:   e.history.IsRising(now, e.params.TrendWindow),
		Position: e.tracker.Position(),
		Halted:   e.risk.Halted(),
		Paused:   e.paused,
		Warned:   e.warned,
	})

	var (
		events []TradeEvent
		alerts []string
	)
	basis, _ := e.snapshot.Basis()
	netBuy, _ := e.snapshot.NetBuy()
	if d.WarnBackwardation {
		e.warned = true
		e.log.Warn("backwardation", zap.Float64("basis", basis))
		alerts = append(alerts, RenderBackwardation(basis))
	}

	switch d.Action {
	case ActionEntry:
		tradeID := e.newTradeID()
		if err := e.tracker.Open(tradeID, basis, netBuy, now); err != nil {
			e.log.Error("entry rejected", zap.Error(err))
			return events, alerts
		}
		ev := TradeEvent{
			TradeID:   tradeID,
			Action:    ActionEntry,
			Timestamp: now,
			When:      upd.When,
			Basis:     basis,
			NetBuy:    netBuy,
		}
		e.metrics.Entries.Inc()
		e.log.Info("entry",
			zap.String("trade_id", tradeID),
			zap.Float64("basis", basis),
			zap.Float64("net_buy", netBuy),
			zap.Float64("threshold", d.Threshold),
		)
		events = append(events, ev)
		alerts = append(alerts, RenderEntry(ev, d.Threshold))
	case ActionExit:
		closed, err := e.tracker.Close()
		if err != nil {
			e.log.Error("exit rejected", zap.Error(err))
			return events, alerts
		}
		ev := TradeEvent{
			TradeID:    closed.TradeID,
			Action:     ActionExit,
			Timestamp:  now,
			When:       upd.When,
			Basis:      basis,
			NetBuy:     netBuy,
			Profitable: boolPtr(d.Profitable),
			Reason:     d.ExitReason,
		}
		e.metrics.Exits.Inc()
		fields := []zap.Field{
			zap.String("trade_id", closed.TradeID),
			zap.String("reason", string(d.ExitReason)),
			zap.Float64("basis", basis),
			zap.Float64("net_buy", netBuy),
			zap.Bool("profitable", d.Profitable),
		}
		switch d.ExitReason {
		case ExitEmergency:
			e.metrics.EmergencyExits.Inc()
			e.log.Warn("emergency exit", fields...)
			alerts = append(alerts, RenderEmergency(basis, e.params.EmergencyBasis))
		case ExitSessionEnd:
			e.metrics.ForcedExits.Inc()
			e.log.Warn("forced session-end exit", fields...)
		default:
			e.log.Info("exit", fields...)
		}
		events = append(events, ev)
		alerts = append(alerts, RenderExit(ev))
		if e.risk.RecordExit(d.Profitable) {
			e.metrics.TradingHalted.Inc()
			e.log.Error("trading halted",
				zap.Int("consecutive_losses", e.risk.ConsecutiveLosses),
				zap.Int("loss_limit", e.risk.LossLimit),
			)
			alerts = append(alerts, RenderHalted(e.risk.ConsecutiveLosses))
		}
	}
	return events, alerts
}

// logTick writes the per-tick state line after any transition. Callers hold mu.
func (e *Evaluator) logTick(when string) {
	ce := e.log.Check(zap.DebugLevel, "tick")
	if ce == nil {
		return
	}
	fields := []zap.Field{
		zap.String("when", when),
		zap.String("state", string(e.tracker.State())),
	}
	if v, ok := e.snapshot.Basis(); ok {
		fields = append(fields, zap.Float64("basis", v))
	}
	if v, ok := e.snapshot.NetBuy(); ok {
		fields = append(fields, zap.Float64("net_buy", v))
	}
	ce.Write(fields...)
}

func (e *Evaluator) emit(ctx context.Context, events []TradeEvent, alerts []string) {
	if e.journal != nil {
		for _, ev := range events {
			if err := e.journal.Record(ctx, ev); err != nil {
				e.log.Warn("journal record failed", zap.String("action", string(ev.Action)), zap.Error(err))
			}
		}
	}
	if e.notifier != nil {
		for _, msg := range alerts {
			if err := e.notifier.Notify(ctx, msg); err != nil {
				e.log.Warn("alert failed", zap.Error(err))
			}
		}
	}
}

func (e *Evaluator) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{
		Snapshot:          e.snapshot.clone(),
		Position:          e.tracker.Position(),
		ConsecutiveLosses: e.risk.ConsecutiveLosses,
		LossLimit:         e.risk.LossLimit,
		Halted:            e.risk.Halted(),
		Paused:            e.paused,
		HistoryLen:        e.history.Len(),
		ObservedAt:        e.snapshot.ObservedAt,
	}
}

// SetPaused gates new entries. Exits keep running while paused.
func (e *Evaluator) SetPaused(paused bool) {
	e.mu.Lock()
	e.paused = paused
	e.mu.Unlock()
}

func (e *Evaluator) Halted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.risk.Halted()
}

// Restore reopens a persisted position when it belongs to the current session.
func (e *Evaluator) Restore(ctx context.Context, pos Position) error {
	if pos.EntryTime == nil {
		return errors.New("persisted position has no entry time")
	}
	if !e.params.SameSession(*pos.EntryTime, e.clock.Now()) {
		return ErrStalePosition
	}
	e.mu.Lock()
	err := e.tracker.Restore(pos)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("restore position: %w", err)
	}
	e.log.Info("position restored",
		zap.String("trade_id", pos.TradeID),
		zap.Float64("entry_basis", *pos.EntryBasis),
		zap.Time("entry_time", *pos.EntryTime),
	)
	e.emit(ctx, nil, []string{RenderRestored(pos)})
	return nil
}
