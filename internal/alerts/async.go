package alerts

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"basis-arb-bot/internal/metrics"

	"go.uber.org/zap"
)

const sendTimeout = 15 * time.Second

var ErrQueueFull = errors.New("alert queue full")

type Sender interface {
	Send(ctx context.Context, message string) error
}

// Async delivers alerts on a single worker so callers never wait on the network.
type Async struct {
	sender  Sender
	log     *zap.Logger
	dropped metrics.Counter
	queue   chan string
	started atomic.Bool
	done    chan struct{}
}

func NewAsync(sender Sender, size int, log *zap.Logger, dropped metrics.Counter) *Async {
	if size <= 0 {
		size = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Async{
		sender:  sender,
		log:     log,
		dropped: dropped,
		queue:   make(chan string, size),
		done:    make(chan struct{}),
	}
}

func (a *Async) Start(ctx context.Context) {
	if !a.started.CompareAndSwap(false, true) {
		return
	}
	go a.run(ctx)
}

func (a *Async) Done() <-chan struct{} {
	return a.done
}

// Notify queues msg and returns immediately.
func (a *Async) Notify(_ context.Context, msg string) error {
	select {
	case a.queue <- msg:
		return nil
	default:
		if a.dropped != nil {
			a.dropped.Inc()
		}
		a.log.Warn("alert queue full", zap.String("message", msg))
		return ErrQueueFull
	}
}

func (a *Async) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			a.drain(context.WithoutCancel(ctx))
			return
		case msg := <-a.queue:
			a.send(ctx, msg)
		}
	}
}

func (a *Async) drain(ctx context.Context) {
	for {
		select {
		case msg := <-a.queue:
			a.send(ctx, msg)
		default:
			return
		}
	}
}

func (a *Async) send(ctx context.Context, msg string) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := a.sender.Send(ctx, msg); err != nil {
		a.log.Warn("alert send failed", zap.Error(err))
	}
}
