package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"basis-arb-bot/internal/strategy"
)

type recordingJournal struct {
	mu     sync.Mutex
	events []strategy.TradeEvent
	block  chan struct{}
	err    error
}

func (r *recordingJournal) Record(_ context.Context, ev strategy.TradeEvent) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingJournal) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type countingCounter struct {
	mu sync.Mutex
	n  int
}

func (c *countingCounter) Inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func TestAsyncPreservesOrderAndDrainsOnShutdown(t *testing.T) {
	next := &recordingJournal{}
	a := NewAsync(next, 8, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	if err := a.Record(ctx, entryEvent()); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := a.Record(ctx, exitEvent(true)); err != nil {
		t.Fatalf("record: %v", err)
	}
	a.Start(ctx)
	cancel()
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
	if next.count() != 2 {
		t.Fatalf("expected 2 events, got %d", next.count())
	}
	if next.events[0].Action != strategy.ActionEntry || next.events[1].Action != strategy.ActionExit {
		t.Fatalf("events out of order: %+v", next.events)
	}
}

func TestAsyncDropsWhenFull(t *testing.T) {
	next := &recordingJournal{block: make(chan struct{})}
	dropped := &countingCounter{}
	a := NewAsync(next, 1, nil, dropped)

	if err := a.Record(context.Background(), entryEvent()); err != nil {
		t.Fatalf("first record should queue: %v", err)
	}
	if err := a.Record(context.Background(), exitEvent(false)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if dropped.n != 1 {
		t.Fatalf("expected one drop, got %d", dropped.n)
	}
	close(next.block)
}

func TestFanoutJoinsErrors(t *testing.T) {
	ok := &recordingJournal{}
	bad := &recordingJournal{err: errors.New("disk full")}
	err := Fanout{bad, nil, ok}.Record(context.Background(), entryEvent())
	if err == nil {
		t.Fatalf("expected error")
	}
	if ok.count() != 1 || bad.count() != 1 {
		t.Fatalf("every journal should be called")
	}
}
