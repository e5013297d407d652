package strategy

import (
	"fmt"
	"time"

	"basis-arb-bot/internal/config"
	"basis-arb-bot/internal/market"
)

// Phase scales the base threshold for times of day in [Start, End).
type Phase struct {
	Start      time.Duration
	End        time.Duration
	Multiplier float64
}

func DefaultPhases() []Phase {
	return []Phase{
		{Start: 9 * time.Hour, End: 9*time.Hour + 30*time.Minute, Multiplier: 1.3},
		{Start: 9*time.Hour + 30*time.Minute, End: 10 * time.Hour, Multiplier: 1.1},
	}
}

type Params struct {
	BaseBasisThreshold float64
	NetBuyThreshold    float64
	WindowStart        time.Duration
	WindowEnd          time.Duration
	TrendWindow        time.Duration
	HistoryCapacity    int
	Phases             []Phase
	ExitBasisFloor     float64
	ExitBasisRatio     float64
	ExitNetBuyRatio    float64
	MaxHold            time.Duration
	LossLimit          int
	EmergencyBasis     float64
	Location           *time.Location
	Fields             market.Fields
}

func DefaultParams() Params {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		loc = time.FixedZone("KST", 9*60*60)
	}
	return Params{
		BaseBasisThreshold: 0.20,
		NetBuyThreshold:    1500,
		WindowStart:        9 * time.Hour,
		WindowEnd:          10*time.Hour + 30*time.Minute,
		TrendWindow:        3 * time.Minute,
		HistoryCapacity:    market.DefaultHistoryCapacity,
		Phases:             DefaultPhases(),
		ExitBasisFloor:     0.05,
		ExitBasisRatio:     0.7,
		ExitNetBuyRatio:    0.6,
		MaxHold:            90 * time.Minute,
		LossLimit:          2,
		EmergencyBasis:     -0.05,
		Location:           loc,
		Fields:             market.DefaultFields(),
	}
}

// NewParams converts validated config into evaluator parameters.
func NewParams(s config.StrategyConfig, r config.RiskConfig) (Params, error) {
	start, err := config.ParseClock(s.ActiveWindow.Start)
	if err != nil {
		return Params{}, fmt.Errorf("active window start: %w", err)
	}
	end, err := config.ParseClock(s.ActiveWindow.End)
	if err != nil {
		return Params{}, fmt.Errorf("active window end: %w", err)
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return Params{}, fmt.Errorf("timezone: %w", err)
	}
	phases := make([]Phase, 0, len(s.ThresholdPhases))
	for i, phase := range s.ThresholdPhases {
		ps, err := config.ParseClock(phase.Start)
		if err != nil {
			return Params{}, fmt.Errorf("threshold phase %d: %w", i, err)
		}
		pe, err := config.ParseClock(phase.End)
		if err != nil {
			return Params{}, fmt.Errorf("threshold phase %d: %w", i, err)
		}
		phases = append(phases, Phase{Start: ps, End: pe, Multiplier: phase.Multiplier})
	}
	return Params{
		BaseBasisThreshold: s.BaseBasisThreshold,
		NetBuyThreshold:    s.NetBuyThreshold,
		WindowStart:        start,
		WindowEnd:          end,
		TrendWindow:        s.TrendWindow,
		HistoryCapacity:    s.HistoryCapacity,
		Phases:             phases,
		ExitBasisFloor:     s.ExitBasisFloor,
		ExitBasisRatio:     s.ExitBasisRatio,
		ExitNetBuyRatio:    s.ExitNetBuyRatio,
		MaxHold:            r.MaxHold,
		LossLimit:          r.LossLimit,
		EmergencyBasis:     r.EmergencyBasisValue(),
		Location:           loc,
		Fields: market.Fields{
			BasisTrID:   s.BasisTrID,
			BasisField:  s.BasisField,
			NetBuyTrID:  s.NetBuyTrID,
			NetBuyField: s.NetBuyField,
			TimeField:   s.TimeField,
		},
	}, nil
}

// EffectiveThreshold applies the first phase containing timeOfDay to base.
func EffectiveThreshold(base float64, timeOfDay time.Duration, phases []Phase) float64 {
	for _, phase := range phases {
		if timeOfDay >= phase.Start && timeOfDay < phase.End {
			return base * phase.Multiplier
		}
	}
	return base
}

func (p Params) EntryThreshold(now time.Time) float64 {
	return EffectiveThreshold(p.BaseBasisThreshold, p.TimeOfDay(now), p.Phases)
}

// ExitBasisLevel is the basis below which an open position reverts.
func (p Params) ExitBasisLevel() float64 {
	return max(p.ExitBasisFloor, p.BaseBasisThreshold*p.ExitBasisRatio)
}

func (p Params) ExitNetBuyLevel() float64 {
	return p.NetBuyThreshold * p.ExitNetBuyRatio
}

// TimeOfDay is the wall-clock offset from local midnight, truncated to seconds.
func (p Params) TimeOfDay(now time.Time) time.Duration {
	local := now.In(p.location())
	return time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second
}

// InWindow reports whether now falls between WindowStart and the end of the
// WindowEnd minute, so a 10:30 end keeps 10:30:59 inside the window.
func (p Params) InWindow(now time.Time) bool {
	tod := p.TimeOfDay(now)
	return tod >= p.WindowStart && tod < p.windowClose()
}

func (p Params) SessionEnded(now time.Time) bool {
	return p.TimeOfDay(now) >= p.windowClose()
}

func (p Params) windowClose() time.Duration {
	return p.WindowEnd + time.Minute
}

// SameSession reports whether a and b fall on the same local calendar date.
func (p Params) SameSession(a, b time.Time) bool {
	ay, am, ad := a.In(p.location()).Date()
	by, bm, bd := b.In(p.location()).Date()
	return ay == by && am == bm && ad == bd
}

func (p Params) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}
