package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusHandler_ExposesCounters(t *testing.T) {
	m := New()
	m.Inc("foo")
	m.Add("bar", 2)
	m.Inc(`quote"back\slash`)
	m.ObserveInbound("join")
	m.ObserveRelay("offer", 3)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	PrometheusHandler(m).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusOK)
	}

	body := rr.Body.String()
	for _, want := range []string{
		"# TYPE room_signal_events_total counter",
		`room_signal_events_total{event="bar"} 2`,
		`room_signal_events_total{event="foo"} 1`,
		// Label escaping follows the Prometheus text format rules.
		`room_signal_events_total{event="quote\"back\\slash"} 1`,
		`room_signal_inbound_events_total{type="join"} 1`,
		`room_signal_relayed_frames_total{type="offer"} 3`,
		"room_signal_relay_fanout_recipients_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestGaugeFunc(t *testing.T) {
	m := New()
	n := 0.0
	if err := m.GaugeFunc("rooms_active", "Active rooms.", func() float64 { return n }); err != nil {
		t.Fatalf("GaugeFunc: %v", err)
	}
	n = 4

	rr := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "room_signal_rooms_active 4") {
		t.Fatalf("missing gauge in:\n%s", rr.Body.String())
	}

	if err := m.GaugeFunc("rooms_active", "dup", func() float64 { return 0 }); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestCounterValues(t *testing.T) {
	m := New()
	m.Inc(DropReasonQueueFull)
	m.Inc(DropReasonQueueFull)
	m.Add(DropReasonQueueFull, 0)

	if got := testutil.ToFloat64(m.events.WithLabelValues(DropReasonQueueFull)); got != 2 {
		t.Fatalf("queue_full=%v, want 2", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc("x")
	m.ObserveInbound("join")
	m.ObserveRelay("offer", 1)
	m.ObserveDispatch(0.1)
	if err := m.GaugeFunc("x", "x", func() float64 { return 0 }); err != nil {
		t.Fatalf("GaugeFunc on nil: %v", err)
	}

	rr := httptest.NewRecorder()
	PrometheusHandler(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusInternalServerError)
	}
}
