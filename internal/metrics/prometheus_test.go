package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.Ticks.Inc()
	prom.Metrics.Ticks.Inc()
	prom.Metrics.TicksIgnored.Inc()
	prom.Metrics.Entries.Inc()
	prom.Metrics.Exits.Inc()
	prom.Metrics.EmergencyExits.Inc()
	prom.Metrics.ForcedExits.Inc()
	prom.Metrics.TradingHalted.Inc()
	prom.Metrics.AlertsDropped.Inc()
	prom.Metrics.JournalDropped.Inc()

	assertCounter(t, prom.ticks, 2)
	assertCounter(t, prom.ticksIgnored, 1)
	assertCounter(t, prom.entries, 1)
	assertCounter(t, prom.exits, 1)
	assertCounter(t, prom.emergencyExits, 1)
	assertCounter(t, prom.forcedExits, 1)
	assertCounter(t, prom.tradingHalted, 1)
	assertCounter(t, prom.alertsDropped, 1)
	assertCounter(t, prom.journalDropped, 1)
}

func TestPrometheusHandlerExposesCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.Entries.Inc()

	rec := httptest.NewRecorder()
	prom.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "basis_arb_bot_entries_total 1") {
		t.Fatalf("expected entries counter in output, got %s", body)
	}
}

func TestOrNoop(t *testing.T) {
	m := OrNoop(nil)
	if m == nil || m.Ticks == nil {
		t.Fatalf("expected noop metrics")
	}
	m.Ticks.Inc()
}

func assertCounter(t *testing.T, counter prometheus.Counter, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(counter); got != expected {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
