package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"basis-arb-bot/internal/config"
	"basis-arb-bot/internal/strategy"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

var ErrQueueFull = errors.New("timescale queue full")

// Heartbeat is a periodic evaluator status row.
type Heartbeat struct {
	Time              time.Time
	State             string
	Basis             sql.NullFloat64
	NetBuy            sql.NullFloat64
	ConsecutiveLosses int
	Halted            bool
	Paused            bool
}

type Writer struct {
	db         *sql.DB
	log        *zap.Logger
	schema     string
	trades     chan strategy.TradeEvent
	heartbeats chan Heartbeat
	started    atomic.Bool
	done       chan struct{}
	dropTrade  atomic.Uint64
	dropBeat   atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := newWriter(db, schema, cfg.QueueSize, log)
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func newWriter(db *sql.DB, schema string, queueSize int, log *zap.Logger) *Writer {
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		db:         db,
		log:        log,
		schema:     schema,
		trades:     make(chan strategy.TradeEvent, queueSize),
		heartbeats: make(chan Heartbeat, queueSize),
		done:       make(chan struct{}),
	}
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// Record queues a trade event row and satisfies strategy.Journal.
func (w *Writer) Record(_ context.Context, ev strategy.TradeEvent) error {
	if w == nil {
		return nil
	}
	select {
	case w.trades <- ev:
		return nil
	default:
		if w.dropTrade.Add(1) == 1 {
			w.log.Warn("timescale trade queue full")
		}
		return ErrQueueFull
	}
}

func (w *Writer) EnqueueHeartbeat(beat Heartbeat) {
	if w == nil {
		return
	}
	select {
	case w.heartbeats <- beat:
	default:
		if w.dropBeat.Add(1) == 1 {
			w.log.Warn("timescale heartbeat queue full")
		}
	}
}

func (w *Writer) Dropped() (trades, heartbeats uint64) {
	if w == nil {
		return 0, 0
	}
	return w.dropTrade.Load(), w.dropBeat.Load()
}

// Done is closed once the worker has flushed its queues after ctx is cancelled.
// A nil writer is always done.
func (w *Writer) Done() <-chan struct{} {
	if w == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return w.done
}

func (w *Writer) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.drain(context.WithoutCancel(ctx))
			return
		case ev := <-w.trades:
			w.writeTrade(ctx, ev)
		case beat := <-w.heartbeats:
			w.writeHeartbeat(ctx, beat)
		}
	}
}

func (w *Writer) drain(ctx context.Context) {
	for {
		select {
		case ev := <-w.trades:
			w.writeTrade(ctx, ev)
		case beat := <-w.heartbeats:
			w.writeHeartbeat(ctx, beat)
		default:
			return
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		trade_id TEXT NOT NULL,
		action TEXT NOT NULL,
		exchange_time TEXT NOT NULL,
		basis DOUBLE PRECISION NOT NULL,
		net_buy DOUBLE PRECISION NOT NULL,
		profitable BOOLEAN,
		reason TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (ts, trade_id, action)
	)`, w.table("trade_events"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		state TEXT NOT NULL,
		basis DOUBLE PRECISION,
		net_buy DOUBLE PRECISION,
		consecutive_losses INTEGER NOT NULL,
		halted BOOLEAN NOT NULL,
		paused BOOLEAN NOT NULL
	)`, w.table("heartbeats"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	for _, name := range []string{"trade_events", "heartbeats"} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(name))); err != nil {
			w.log.Warn("timescale hypertable create failed", zap.String("table", name), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) writeTrade(ctx context.Context, ev strategy.TradeEvent) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	var profitable sql.NullBool
	if ev.Profitable != nil {
		profitable = sql.NullBool{Bool: *ev.Profitable, Valid: true}
	}
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, trade_id, action, exchange_time, basis, net_buy, profitable, reason
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8
	)
	ON CONFLICT (ts, trade_id, action) DO NOTHING`, w.table("trade_events"))
	if _, err := w.db.ExecContext(ctx, query,
		ev.Timestamp,
		ev.TradeID,
		string(ev.Action),
		ev.When,
		ev.Basis,
		ev.NetBuy,
		profitable,
		string(ev.Reason),
	); err != nil {
		w.log.Warn("timescale trade insert failed", zap.String("trade_id", ev.TradeID), zap.Error(err))
	}
}

func (w *Writer) writeHeartbeat(ctx context.Context, beat Heartbeat) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, state, basis, net_buy, consecutive_losses, halted, paused
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7
	)`, w.table("heartbeats"))
	if _, err := w.db.ExecContext(ctx, query,
		beat.Time,
		beat.State,
		beat.Basis,
		beat.NetBuy,
		beat.ConsecutiveLosses,
		beat.Halted,
		beat.Paused,
	); err != nil {
		w.log.Warn("timescale heartbeat insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}

// HeartbeatFromStatus converts an evaluator status into a heartbeat row.
func HeartbeatFromStatus(ts time.Time, st strategy.Status) Heartbeat {
	beat := Heartbeat{
		Time:              ts,
		State:             string(st.Position.State),
		ConsecutiveLosses: st.ConsecutiveLosses,
		Halted:            st.Halted,
		Paused:            st.Paused,
	}
	if v, ok := st.Snapshot.Basis(); ok {
		beat.Basis = sql.NullFloat64{Float64: v, Valid: true}
	}
	if v, ok := st.Snapshot.NetBuy(); ok {
		beat.NetBuy = sql.NullFloat64{Float64: v, Valid: true}
	}
	return beat
}
