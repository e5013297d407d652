package journal

import (
	"context"
	"errors"
	"sync/atomic"

	"basis-arb-bot/internal/metrics"
	"basis-arb-bot/internal/strategy"

	"go.uber.org/zap"
)

var ErrQueueFull = errors.New("journal queue full")

type queued struct {
	ctx context.Context
	ev  strategy.TradeEvent
}

// Async hands events to a single worker so Record never blocks on I/O.
// Events are written in the order they were accepted.
type Async struct {
	next    strategy.Journal
	log     *zap.Logger
	dropped metrics.Counter
	queue   chan queued
	started atomic.Bool
	done    chan struct{}
}

func NewAsync(next strategy.Journal, size int, log *zap.Logger, dropped metrics.Counter) *Async {
	if size <= 0 {
		size = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Async{
		next:    next,
		log:     log,
		dropped: dropped,
		queue:   make(chan queued, size),
		done:    make(chan struct{}),
	}
}

func (a *Async) Start(ctx context.Context) {
	if !a.started.CompareAndSwap(false, true) {
		return
	}
	go a.run(ctx)
}

// Done is closed once the worker has drained the queue after ctx is cancelled.
func (a *Async) Done() <-chan struct{} {
	return a.done
}

func (a *Async) Record(ctx context.Context, ev strategy.TradeEvent) error {
	select {
	case a.queue <- queued{ctx: context.WithoutCancel(ctx), ev: ev}:
		return nil
	default:
		if a.dropped != nil {
			a.dropped.Inc()
		}
		a.log.Warn("journal queue full", zap.String("action", string(ev.Action)), zap.String("trade_id", ev.TradeID))
		return ErrQueueFull
	}
}

func (a *Async) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			a.drain()
			return
		case item := <-a.queue:
			a.write(item)
		}
	}
}

func (a *Async) drain() {
	for {
		select {
		case item := <-a.queue:
			a.write(item)
		default:
			return
		}
	}
}

func (a *Async) write(item queued) {
	if err := a.next.Record(item.ctx, item.ev); err != nil {
		a.log.Warn("journal write failed",
			zap.String("action", string(item.ev.Action)),
			zap.String("trade_id", item.ev.TradeID),
			zap.Error(err),
		)
	}
}
