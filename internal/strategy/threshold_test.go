package strategy

import (
	"testing"
	"time"

	"basis-arb-bot/internal/config"
)

func TestEffectiveThresholdPhases(t *testing.T) {
	cases := []struct {
		tod  time.Duration
		want float64
	}{
		{tod: 9*time.Hour + 15*time.Minute, want: 0.26},
		{tod: 9*time.Hour + 45*time.Minute, want: 0.22},
		{tod: 10*time.Hour + 15*time.Minute, want: 0.20},
		{tod: 9 * time.Hour, want: 0.26},
		{tod: 9*time.Hour + 30*time.Minute, want: 0.22},
		{tod: 10 * time.Hour, want: 0.20},
		{tod: 8*time.Hour + 59*time.Minute, want: 0.20},
		{tod: 14 * time.Hour, want: 0.20},
	}
	for _, tc := range cases {
		if got := EffectiveThreshold(0.20, tc.tod, DefaultPhases()); !closeEnough(got, tc.want) {
			t.Fatalf("%s: expected %f, got %f", tc.tod, tc.want, got)
		}
	}
}

func TestEntryThresholdUsesLocation(t *testing.T) {
	p := testParams()
	utc := time.Date(2025, 3, 4, 0, 15, 0, 0, time.UTC)
	if got := p.EntryThreshold(utc); !closeEnough(got, 0.26) {
		t.Fatalf("expected 0.26 at 09:15 local, got %f", got)
	}
}

func TestWindowBoundaries(t *testing.T) {
	p := testParams()
	if p.InWindow(at(8, 59, 59)) {
		t.Fatalf("08:59:59 should be outside the window")
	}
	if !p.InWindow(at(9, 0, 0)) {
		t.Fatalf("09:00:00 should be inside the window")
	}
	if !p.InWindow(at(10, 29, 59)) {
		t.Fatalf("10:29:59 should be inside the window")
	}
	if !p.InWindow(at(10, 30, 0)) || !p.InWindow(at(10, 30, 30)) || !p.InWindow(at(10, 30, 59)) {
		t.Fatalf("the whole 10:30 minute should be inside the window")
	}
	if p.SessionEnded(at(10, 30, 59)) {
		t.Fatalf("10:30:59 should not end the session")
	}
	if p.InWindow(at(10, 31, 0)) || !p.SessionEnded(at(10, 31, 0)) {
		t.Fatalf("10:31:00 should end the session")
	}
}

func TestExitLevels(t *testing.T) {
	p := testParams()
	if !closeEnough(p.ExitBasisLevel(), 0.14) {
		t.Fatalf("expected exit basis level 0.14, got %f", p.ExitBasisLevel())
	}
	p.BaseBasisThreshold = 0.05
	if !closeEnough(p.ExitBasisLevel(), 0.05) {
		t.Fatalf("expected exit basis floor 0.05, got %f", p.ExitBasisLevel())
	}
	if !closeEnough(p.ExitNetBuyLevel(), 900) {
		t.Fatalf("expected exit net buy level 900, got %f", p.ExitNetBuyLevel())
	}
}

func TestNewParamsFromConfig(t *testing.T) {
	emergency := -0.1
	s := config.StrategyConfig{
		BaseBasisThreshold: 0.3,
		NetBuyThreshold:    1000,
		ActiveWindow:       config.ActiveWindow{Start: "0910", End: "11:00"},
		TrendWindow:        2 * time.Minute,
		HistoryCapacity:    100,
		Timezone:           "Asia/Seoul",
		ThresholdPhases:    []config.ThresholdPhase{{Start: "09:10", End: "09:20", Multiplier: 2}},
		BasisTrID:          "B",
		BasisField:         "b",
		NetBuyTrID:         "N",
		NetBuyField:        "n",
		TimeField:          "t",
	}
	r := config.RiskConfig{MaxHold: time.Hour, LossLimit: 3, EmergencyBasis: &emergency}
	p, err := NewParams(s, r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.WindowStart != 9*time.Hour+10*time.Minute || p.WindowEnd != 11*time.Hour {
		t.Fatalf("unexpected window %s-%s", p.WindowStart, p.WindowEnd)
	}
	if len(p.Phases) != 1 || p.Phases[0].Multiplier != 2 {
		t.Fatalf("unexpected phases %+v", p.Phases)
	}
	if p.EmergencyBasis != -0.1 || p.LossLimit != 3 || p.MaxHold != time.Hour {
		t.Fatalf("unexpected risk params %+v", p)
	}
	if p.Fields.BasisTrID != "B" || p.Fields.NetBuyField != "n" {
		t.Fatalf("unexpected fields %+v", p.Fields)
	}

	s.Timezone = "Mars/Olympus"
	if _, err := NewParams(s, r); err == nil {
		t.Fatalf("expected timezone error")
	}
}

func TestSameSession(t *testing.T) {
	p := testParams()
	if !p.SameSession(at(9, 5, 0), at(10, 0, 0)) {
		t.Fatalf("expected same session")
	}
	if p.SameSession(at(9, 5, 0).Add(-24*time.Hour), at(9, 5, 0)) {
		t.Fatalf("expected different sessions")
	}
}
