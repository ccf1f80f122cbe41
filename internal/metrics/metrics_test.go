package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewIsSingleton(t *testing.T) {
	if New() != New() {
		t.Fatal("expected same instance")
	}
}

func TestObserveRequest(t *testing.T) {
	m := New()
	before := testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "200"))

	m.ObserveRequest("GET", "200", 15*time.Millisecond)

	after := testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "200"))
	if after != before+1 {
		t.Fatalf("expected counter +1, got %v -> %v", before, after)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", "200", time.Second)
	m.SessionExpired()
	m.Reconnect()
	m.ChannelMessage("pong")
	m.PollTick("ok")
	m.RequestStarted()
	m.RequestFinished()
}
