package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestMetrics(t *testing.T) {
	m := New()
	m.Transfer("ok")
	m.Transfer("ok")
	m.Transfer("AlignmentFailure")
	m.Duration(3 * time.Second)
	done := m.Running()

	body := scrape(t, m)
	for _, want := range []string{
		`hairswap_transfers_total{outcome="ok"} 2`,
		`hairswap_transfers_total{outcome="AlignmentFailure"} 1`,
		`hairswap_transfers_in_flight 1`,
		`hairswap_transfer_duration_seconds_count 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}

	done()
	if body := scrape(t, m); !strings.Contains(body, "hairswap_transfers_in_flight 0") {
		t.Error("in-flight gauge not decremented")
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.Transfer("ok")
	m.Duration(time.Second)
	m.QueueWait(time.Second)
	m.Setup(true)
	m.Rejected("ImageTooSmall")
	m.Running()()
	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
}
