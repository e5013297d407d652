package strategy

import "errors"

// ErrTradingHalted is returned by the host loop once the loss limit has been reached.
var ErrTradingHalted = errors.New("trading halted: consecutive loss limit reached")

type RiskCounters struct {
	ConsecutiveLosses int
	LossLimit         int
}

func NewRiskCounters(lossLimit int) RiskCounters {
	if lossLimit < 1 {
		lossLimit = 1
	}
	return RiskCounters{LossLimit: lossLimit}
}

// RecordExit updates the loss streak and reports whether this exit reached the limit.
func (r *RiskCounters) RecordExit(profitable bool) bool {
	if profitable {
		r.ConsecutiveLosses = 0
		return false
	}
	r.ConsecutiveLosses++
	return r.ConsecutiveLosses == r.LossLimit
}

func (r RiskCounters) Halted() bool {
	return r.ConsecutiveLosses >= r.LossLimit
}
