package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "basis_arb_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry       *prometheus.Registry
	ticks          prometheus.Counter
	ticksIgnored   prometheus.Counter
	entries        prometheus.Counter
	exits          prometheus.Counter
	emergencyExits prometheus.Counter
	forcedExits    prometheus.Counter
	tradingHalted  prometheus.Counter
	alertsDropped  prometheus.Counter
	journalDropped prometheus.Counter
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry:       prometheus.NewRegistry(),
		ticks:          newCounter("ticks_total", "Total number of feed messages handed to the evaluator."),
		ticksIgnored:   newCounter("ticks_ignored_total", "Total number of feed messages that carried no usable signal."),
		entries:        newCounter("entries_total", "Total number of entry signals."),
		exits:          newCounter("exits_total", "Total number of exit signals."),
		emergencyExits: newCounter("emergency_exits_total", "Total number of emergency stop-loss exits."),
		forcedExits:    newCounter("forced_exits_total", "Total number of session-end liquidations."),
		tradingHalted:  newCounter("trading_halted_total", "Total number of loss-limit halts."),
		alertsDropped:  newCounter("alerts_dropped_total", "Total number of alerts dropped because the queue was full."),
		journalDropped: newCounter("journal_dropped_total", "Total number of trade events dropped because the queue was full."),
	}
	p.registry.MustRegister(
		p.ticks,
		p.ticksIgnored,
		p.entries,
		p.exits,
		p.emergencyExits,
		p.forcedExits,
		p.tradingHalted,
		p.alertsDropped,
		p.journalDropped,
	)
	p.Metrics = &Metrics{
		Ticks:          promCounter{p.ticks},
		TicksIgnored:   promCounter{p.ticksIgnored},
		Entries:        promCounter{p.entries},
		Exits:          promCounter{p.exits},
		EmergencyExits: promCounter{p.emergencyExits},
		ForcedExits:    promCounter{p.forcedExits},
		TradingHalted:  promCounter{p.tradingHalted},
		AlertsDropped:  promCounter{p.alertsDropped},
		JournalDropped: promCounter{p.journalDropped},
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
