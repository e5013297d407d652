package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	Ticks          Counter
	TicksIgnored   Counter
	Entries        Counter
	Exits          Counter
	EmergencyExits Counter
	ForcedExits    Counter
	TradingHalted  Counter
	AlertsDropped  Counter
	JournalDropped Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		Ticks:          n,
		TicksIgnored:   n,
		Entries:        n,
		Exits:          n,
		EmergencyExits: n,
		ForcedExits:    n,
		TradingHalted:  n,
		AlertsDropped:  n,
		JournalDropped: n,
	}
}

// OrNoop returns m, or a noop set when m is nil.
func OrNoop(m *Metrics) *Metrics {
	if m == nil {
		return NewNoop()
	}
	return m
}
