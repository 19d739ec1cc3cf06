package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"mux/internal/metrics"
)

func TestCollectorsExposed(t *testing.T) {
	m := metrics.New()
	m.ObservePass(metrics.ResultOK, 400*time.Millisecond, 8)
	m.ObservePass(metrics.ResultPartial, time.Second, 7)
	m.SyncTick()
	m.SyncDrift("Game")
	m.Command("set_volume")
	m.ExternalFailure("load-module")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`mux_reconcile_passes_total{result="ok"} 1`,
		`mux_reconcile_passes_total{result="partial"} 1`,
		`mux_reconcile_duration_seconds_count 2`,
		`mux_managed_links 7`,
		`mux_sync_ticks_total 1`,
		`mux_sync_drift_total{channel="Game"} 1`,
		`mux_commands_total{op="set_volume"} 1`,
		`mux_external_failures_total{op="load-module"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestGatherCount(t *testing.T) {
	m := metrics.New()
	m.Command("toggle_mute")
	m.Command("toggle_mute")
	n, err := testutil.GatherAndCount(m.Registry(), "mux_commands_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one series, got %d", n)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.ObservePass(metrics.ResultFailed, time.Second, 0)
	m.SyncTick()
	m.SyncDrift("Chat")
	m.Command("move")
	m.ExternalFailure("list")
	if m.Registry() != nil {
		t.Fatal("nil metrics should have no registry")
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
