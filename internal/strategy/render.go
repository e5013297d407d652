package strategy

import (
	"fmt"
	"math"
	"strings"
)

func RenderEntry(ev TradeEvent, threshold float64) string {
	return fmt.Sprintf("Entry signal: basis %.2f (threshold %.2f), program net buy %d at %s",
		ev.Basis, threshold, netBuyUnits(ev.NetBuy), ev.When)
}

func RenderExit(ev TradeEvent) string {
	result := "loss"
	if ev.Profitable != nil && *ev.Profitable {
		result = "profit"
	}
	return fmt.Sprintf("Exit signal (%s): basis %.2f, program net buy %d at %s, %s",
		exitLabel(ev.Reason), ev.Basis, netBuyUnits(ev.NetBuy), ev.When, result)
}

func RenderEmergency(basis, limit float64) string {
	return fmt.Sprintf("EMERGENCY stop-loss: basis %.2f below %.2f", basis, limit)
}

func RenderBackwardation(basis float64) string {
	return fmt.Sprintf("Warning: backwardation, basis %.2f", basis)
}

func RenderHalted(losses int) string {
	return fmt.Sprintf("Trading halted: %d consecutive losing exits", losses)
}

func RenderRestored(pos Position) string {
	if pos.EntryBasis == nil || pos.EntryTime == nil {
		return "Restored open position"
	}
	return fmt.Sprintf("Restored open position from %s, entry basis %.2f",
		pos.EntryTime.Format("15:04:05"), *pos.EntryBasis)
}

// RenderStatus is the one-line summary used by heartbeat logs and /status.
func RenderStatus(st Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "state=%s", st.Position.State)
	if basis, ok := st.Snapshot.Basis(); ok {
		fmt.Fprintf(&b, " basis=%.2f", basis)
	} else {
		b.WriteString(" basis=n/a")
	}
	if netBuy, ok := st.Snapshot.NetBuy(); ok {
		fmt.Fprintf(&b, " net_buy=%d", netBuyUnits(netBuy))
	} else {
		b.WriteString(" net_buy=n/a")
	}
	if st.Position.EntryBasis != nil {
		fmt.Fprintf(&b, " entry_basis=%.2f", *st.Position.EntryBasis)
	}
	fmt.Fprintf(&b, " losses=%d/%d", st.ConsecutiveLosses, st.LossLimit)
	if st.Halted {
		b.WriteString(" halted")
	}
	if st.Paused {
		b.WriteString(" paused")
	}
	return b.String()
}

func exitLabel(reason ExitReason) string {
	switch reason {
	case ExitEmergency:
		return "emergency stop-loss"
	case ExitMaxHold:
		return "max hold"
	case ExitReversion:
		return "threshold reversion"
	case ExitSessionEnd:
		return "forced session-end"
	default:
		return "exit"
	}
}

func netBuyUnits(v float64) int64 {
	return int64(math.Trunc(v))
}
