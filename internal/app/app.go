package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"basis-arb-bot/internal/alerts"
	"basis-arb-bot/internal/config"
	"basis-arb-bot/internal/feed"
	"basis-arb-bot/internal/journal"
	"basis-arb-bot/internal/kis/rest"
	"basis-arb-bot/internal/market"
	"basis-arb-bot/internal/metrics"
	"basis-arb-bot/internal/state"
	"basis-arb-bot/internal/state/sqlite"
	"basis-arb-bot/internal/strategy"
	"basis-arb-bot/internal/timescale"

	"go.uber.org/zap"
)

const drainTimeout = 5 * time.Second

// Feed produces raw market messages until ctx is cancelled.
type Feed interface {
	Run(ctx context.Context, handler func(market.RawMessage)) error
}

type operatorClient interface {
	Send(ctx context.Context, message string) error
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]alerts.Update, error)
}

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     state.Store
	feed      Feed
	evaluator *strategy.Evaluator
	notifier  *alerts.Async
	operator  operatorClient
	journal   *journal.Async
	csv       *journal.CSV
	timescale *timescale.Writer
	metrics   *metrics.Metrics
	prom      *metrics.Prometheus
	clock     strategy.Clock
	ticks     chan market.RawMessage

	operatorWarned bool
}

type deps struct {
	store     state.Store
	feed      Feed
	sender    alerts.Sender
	operator  operatorClient
	timescale *timescale.Writer
	prom      *metrics.Prometheus
	clock     strategy.Clock
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	ts, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	fail := func(err error) (*App, error) {
		closeResources(log, ts, store)
		return nil, err
	}
	if err := ResolveApprovalKey(context.Background(), cfg, log); err != nil {
		return fail(err)
	}
	client := feed.New(cfg.Feed, log)
	for _, sub := range feed.Subscriptions(cfg.Feed, cfg.Strategy) {
		if err := client.Subscribe(context.Background(), sub); err != nil {
			return fail(err)
		}
	}
	telegram := alerts.NewTelegram(cfg.Telegram, log)
	d := deps{
		store:     store,
		feed:      client,
		sender:    telegram,
		operator:  telegram,
		timescale: ts,
	}
	if cfg.Metrics.EnabledValue() {
		d.prom = metrics.NewPrometheus()
	}
	app, err := assemble(cfg, log, d)
	if err != nil {
		return fail(err)
	}
	return app, nil
}

type closer interface {
	Close() error
}

// closeResources closes each resource in order, logging failures.
func closeResources(log *zap.Logger, resources ...closer) {
	for _, r := range resources {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil {
			log.Warn("resource close failed", zap.Error(err))
		}
	}
}

// ResolveApprovalKey fills feed.approval_key from the REST approval endpoint
// when only app credentials are configured.
func ResolveApprovalKey(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if cfg.Feed.ApprovalKey != "" || cfg.Feed.AppKey == "" {
		return nil
	}
	key, err := rest.New(cfg.Feed.RESTURL, cfg.Feed.RESTTimeout, log).ApprovalKey(ctx, cfg.Feed.AppKey, cfg.Feed.AppSecret)
	if err != nil {
		return err
	}
	cfg.Feed.ApprovalKey = key
	return nil
}

func assemble(cfg *config.Config, log *zap.Logger, d deps) (*App, error) {
	params, err := strategy.NewParams(cfg.Strategy, cfg.Risk)
	if err != nil {
		return nil, err
	}
	m := metrics.NewNoop()
	if d.prom != nil {
		m = d.prom.Metrics
	}
	clock := d.clock
	if clock == nil {
		clock = strategy.ClockFunc(time.Now)
	}
	csvJournal, err := journal.OpenCSV(cfg.Journal.CSVPath)
	if err != nil {
		return nil, err
	}
	sinks := journal.Fanout{csvJournal, state.NewPositionRecorder(d.store)}
	if d.timescale != nil {
		sinks = append(sinks, d.timescale)
	}
	journalQueue := journal.NewAsync(sinks, cfg.Journal.QueueSize, log, m.JournalDropped)
	notifier := alerts.NewAsync(d.sender, cfg.Telegram.QueueSize, log, m.AlertsDropped)
	evaluator := strategy.NewEvaluator(params, strategy.Options{
		Clock:    clock,
		Journal:  journalQueue,
		Notifier: notifier,
		Logger:   log,
		Metrics:  m,
	})
	return &App{
		cfg:       cfg,
		log:       log,
		store:     d.store,
		feed:      d.feed,
		evaluator: evaluator,
		notifier:  notifier,
		operator:  d.operator,
		journal:   journalQueue,
		csv:       csvJournal,
		timescale: d.timescale,
		metrics:   m,
		prom:      d.prom,
		clock:     clock,
		ticks:     make(chan market.RawMessage, cfg.Feed.QueueSize),
	}, nil
}

// Run consumes feed messages one at a time until ctx is cancelled or, with
// risk.stop_on_halt, until the loss limit halts trading.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	workerCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	timescaleCtx, stopTimescale := context.WithCancel(context.WithoutCancel(ctx))
	a.journal.Start(workerCtx)
	a.notifier.Start(workerCtx)
	a.timescale.Start(timescaleCtx)
	defer a.drain(stopWorkers, stopTimescale)

	a.restorePosition(ctx)
	a.startMetricsServer(ctx)
	a.startOperator(ctx)
	go a.heartbeatLoop(ctx)

	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()
	go func() {
		if err := a.feed.Run(feedCtx, a.enqueue(feedCtx)); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("feed stopped", zap.Error(err))
		}
	}()
	a.log.Info("monitoring started",
		zap.Float64("basis_threshold", a.cfg.Strategy.BaseBasisThreshold),
		zap.Float64("net_buy_threshold", a.cfg.Strategy.NetBuyThreshold),
		zap.String("window_start", a.cfg.Strategy.ActiveWindow.Start),
		zap.String("window_end", a.cfg.Strategy.ActiveWindow.End),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-a.ticks:
			a.evaluator.OnTick(ctx, msg)
			if a.cfg.Risk.StopOnHalt && a.evaluator.Halted() {
				a.log.Warn("stopping on trading halt")
				return strategy.ErrTradingHalted
			}
		}
	}
}

func (a *App) enqueue(ctx context.Context) func(market.RawMessage) {
	return func(msg market.RawMessage) {
		select {
		case a.ticks <- msg:
		case <-ctx.Done():
		}
	}
}

func (a *App) restorePosition(ctx context.Context) {
	snap, ok, err := state.LoadPosition(ctx, a.store)
	if err != nil {
		a.log.Warn("position snapshot load failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	pos, open := snap.Position()
	if !open {
		return
	}
	err = a.evaluator.Restore(ctx, pos)
	switch {
	case err == nil:
	case errors.Is(err, strategy.ErrStalePosition):
		a.log.Info("discarding position from previous session", zap.String("trade_id", pos.TradeID))
		flat := state.PositionSnapshot{State: string(strategy.StateFlat), UpdatedAtMS: a.clock.Now().UnixMilli()}
		if err := state.SavePosition(ctx, a.store, flat); err != nil {
			a.log.Warn("position snapshot reset failed", zap.Error(err))
		}
	default:
		a.log.Warn("position restore failed", zap.Error(err))
	}
}

func (a *App) heartbeatLoop(ctx context.Context) {
	interval := a.cfg.Heartbeat.Interval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.heartbeat()
		}
	}
}

func (a *App) heartbeat() {
	st := a.evaluator.Status()
	fields := []zap.Field{
		zap.String("state", string(st.Position.State)),
		zap.Int("consecutive_losses", st.ConsecutiveLosses),
		zap.Bool("halted", st.Halted),
		zap.Bool("paused", st.Paused),
		zap.Int("history", st.HistoryLen),
	}
	if v, ok := st.Snapshot.Basis(); ok {
		fields = append(fields, zap.Float64("basis", v))
	}
	if v, ok := st.Snapshot.NetBuy(); ok {
		fields = append(fields, zap.Float64("net_buy", v))
	}
	if !st.ObservedAt.IsZero() {
		fields = append(fields, zap.Time("observed_at", st.ObservedAt))
	}
	a.log.Info("heartbeat", fields...)
	a.timescale.EnqueueHeartbeat(timescale.HeartbeatFromStatus(a.clock.Now(), st))
}

func (a *App) startMetricsServer(ctx context.Context) {
	if a.prom == nil || a.cfg.Metrics.Address == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	a.log.Info("metrics server listening", zap.String("address", a.cfg.Metrics.Address), zap.String("path", a.cfg.Metrics.Path))
}

// drain stops the sink workers and waits for their queues to empty. The
// timescale writer is stopped last because the journal worker feeds it.
func (a *App) drain(stopSinks, stopTimescale context.CancelFunc) {
	defer stopTimescale()
	stopSinks()
	timeout := time.After(drainTimeout)
	for _, done := range []<-chan struct{}{a.journal.Done(), a.notifier.Done()} {
		select {
		case <-done:
		case <-timeout:
			a.log.Warn("sink drain timed out")
			return
		}
	}
	stopTimescale()
	select {
	case <-a.timescale.Done():
	case <-timeout:
		a.log.Warn("timescale drain timed out")
	}
}

func (a *App) close() {
	if a.csv != nil {
		if err := a.csv.Close(); err != nil {
			a.log.Warn("journal close failed", zap.Error(err))
		}
	}
	if err := a.timescale.Close(); err != nil {
		a.log.Warn("timescale close failed", zap.Error(err))
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("state store close failed", zap.Error(err))
		}
	}
}
