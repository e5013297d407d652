package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"basis-arb-bot/internal/alerts"
	"basis-arb-bot/internal/config"
	"basis-arb-bot/internal/market"

	"go.uber.org/zap"
)

var kst = time.FixedZone("KST", 9*60*60)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	return val, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string]string)
	}
	m.data[key] = value
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}

func (m *memoryStore) get(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

// steppingClock returns start, start+step, start+2*step, ... on successive calls.
type steppingClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(c.step)
	return now
}

type scriptedFeed struct {
	msgs []market.RawMessage
}

func (f *scriptedFeed) Run(ctx context.Context, handler func(market.RawMessage)) error {
	for _, msg := range f.msgs {
		handler(msg)
	}
	<-ctx.Done()
	return ctx.Err()
}

type recordingSender struct {
	mu      sync.Mutex
	msgs    []string
	updates [][]alerts.Update
}

func (r *recordingSender) Send(_ context.Context, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingSender) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]alerts.Update, error) {
	r.mu.Lock()
	if len(r.updates) > 0 {
		batch := r.updates[0]
		r.updates = r.updates[1:]
		r.mu.Unlock()
		return batch, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (r *recordingSender) contains(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.msgs {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

func basisMsg(v float64) market.RawMessage {
	return market.RawMessage{TrID: "H0IFCNT0", Rows: []map[string]any{{"mrkt_basis": v}}}
}

func netBuyMsg(v float64) market.RawMessage {
	return market.RawMessage{TrID: "H0UPPGM0", Rows: []map[string]any{{"nabt_smtn_ntby_qty": v}}}
}

func testConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	for _, key := range []string{"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "BASIS_TH", "NABT_NTBY_TH", "FUT_CODE", "INDEX_KEYS", "KIS_APPROVAL_KEY", "KIS_APP_KEY", "KIS_APP_SECRET"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	body := fmt.Sprintf(`state:
  sqlite_path: %s
journal:
  csv_path: %s
metrics:
  enabled: false
heartbeat:
  interval: 1h
strategy:
  timezone: Asia/Seoul
%s`, filepath.Join(dir, "bot.db"), filepath.Join(dir, "trades.csv"), extra)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

type testApp struct {
	app    *App
	store  *memoryStore
	sender *recordingSender
}

func newTestApp(t *testing.T, cfg *config.Config, start time.Time, msgs ...market.RawMessage) *testApp {
	t.Helper()
	store := &memoryStore{data: make(map[string]string)}
	sender := &recordingSender{}
	a, err := assemble(cfg, zap.NewNop(), deps{
		store:    store,
		feed:     &scriptedFeed{msgs: msgs},
		sender:   sender,
		operator: sender,
		clock:    &steppingClock{next: start, step: 10 * time.Second},
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	return &testApp{app: a, store: store, sender: sender}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
