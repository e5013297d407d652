package strategy

import (
	"context"
	"fmt"
	"testing"
	"time"

	"basis-arb-bot/internal/market"
)

var testLoc = time.FixedZone("KST", 9*60*60)

func at(hour, minute, second int) time.Time {
	return time.Date(2025, 3, 4, hour, minute, second, 0, testLoc)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type recordingJournal struct {
	events []TradeEvent
}

func (j *recordingJournal) Record(_ context.Context, ev TradeEvent) error {
	j.events = append(j.events, ev)
	return nil
}

type recordingNotifier struct {
	msgs []string
}

func (n *recordingNotifier) Notify(_ context.Context, msg string) error {
	n.msgs = append(n.msgs, msg)
	return nil
}

type harness struct {
	eval     *Evaluator
	clock    *fakeClock
	journal  *recordingJournal
	notifier *recordingNotifier
}

func testParams() Params {
	p := DefaultParams()
	p.Location = testLoc
	return p
}

func newHarness(t *testing.T, params Params) *harness {
	t.Helper()
	h := &harness{
		clock:    &fakeClock{now: at(9, 0, 0)},
		journal:  &recordingJournal{},
		notifier: &recordingNotifier{},
	}
	seq := 0
	h.eval = NewEvaluator(params, Options{
		Clock:    h.clock,
		Journal:  h.journal,
		Notifier: h.notifier,
		NewTradeID: func() string {
			seq++
			return fmt.Sprintf("trade-%d", seq)
		},
	})
	return h
}

func (h *harness) basis(ts time.Time, v float64) {
	h.clock.now = ts
	h.eval.OnTick(context.Background(), market.RawMessage{
		TrID: "H0IFCNT0",
		Rows: []map[string]any{{"mrkt_basis": v}},
	})
}

func (h *harness) netBuy(ts time.Time, v float64) {
	h.clock.now = ts
	h.eval.OnTick(context.Background(), market.RawMessage{
		TrID: "H0UPPGM0",
		Rows: []map[string]any{{"nabt_smtn_ntby_qty": v}},
	})
}

// openAt drives the evaluator into an Open position with entry basis 0.30.
func (h *harness) openAt(t *testing.T, start time.Time) {
	t.Helper()
	h.netBuy(start, 2000)
	h.basis(start.Add(10*time.Second), 0.25)
	h.basis(start.Add(20*time.Second), 0.30)
	if st := h.eval.Status(); st.Position.State != StateOpen {
		t.Fatalf("expected open position, got %s", st.Position.State)
	}
}

func closeEnough(a, b float64) bool {
	const eps = 1e-9
	if a > b {
		return a-b < eps
	}
	return b-a < eps
}

func indexOf(msgs []string, prefix string) int {
	for i, msg := range msgs {
		if len(msg) >= len(prefix) && msg[:len(prefix)] == prefix {
			return i
		}
	}
	return -1
}
