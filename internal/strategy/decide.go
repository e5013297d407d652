package strategy

import "time"

type Inputs struct {
	Now      time.Time
	Snapshot MarketSnapshot
	Rising   bool
	Position Position
	Halted   bool
	Paused   bool
	// Warned is set once the backwardation warning has fired this run.
	Warned bool
}

// Decision is the transition chosen for one tick. Profitable is meaningful only
// for ActionExit.
type Decision struct {
	Action            Action
	ExitReason        ExitReason
	Profitable        bool
	WarnBackwardation bool
	Threshold         float64
}

// Decide evaluates entry, exit and warning rules without side effects.
func Decide(p Params, in Inputs) Decision {
	var d Decision
	if in.Halted {
		return d
	}
	inWindow := p.InWindow(in.Now)
	basis, hasBasis := in.Snapshot.Basis()
	netBuy, hasNetBuy := in.Snapshot.NetBuy()
	if inWindow && hasBasis && basis < 0 && !in.Warned {
		d.WarnBackwardation = true
	}

	switch in.Position.State {
	case StateOpen:
		if p.SessionEnded(in.Now) {
			d.Action, d.ExitReason = ActionExit, ExitSessionEnd
			if hasBasis && basis < p.EmergencyBasis {
				d.ExitReason = ExitEmergency
			}
			return d
		}
		if !inWindow {
			return d
		}
		reason, profitable := exitRule(p, in, basis, hasBasis, netBuy, hasNetBuy)
		if reason != ExitNone {
			d.Action, d.ExitReason, d.Profitable = ActionExit, reason, profitable
		}
	default:
		if !inWindow || in.Paused || !hasBasis || !hasNetBuy {
			return d
		}
		d.Threshold = p.EntryThreshold(in.Now)
		if basis >= d.Threshold && netBuy >= p.NetBuyThreshold && in.Rising {
			d.Action = ActionEntry
		}
	}
	return d
}

// exitRule applies the in-window exit rules in priority order.
func exitRule(p Params, in Inputs, basis float64, hasBasis bool, netBuy float64, hasNetBuy bool) (ExitReason, bool) {
	if hasBasis && basis < p.EmergencyBasis {
		return ExitEmergency, false
	}
	if p.MaxHold > 0 && in.Position.EntryTime != nil && in.Now.Sub(*in.Position.EntryTime) > p.MaxHold {
		return ExitMaxHold, false
	}
	if (hasBasis && basis < p.ExitBasisLevel()) || (hasNetBuy && netBuy < p.ExitNetBuyLevel()) {
		profitable := in.Position.EntryBasis != nil && hasBasis && basis >= *in.Position.EntryBasis
		return ExitReversion, profitable
	}
	return ExitNone, false
}
