package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWith(reg)

	m.CRCFail.Inc()
	m.FECUncorrectable.Inc()
	m.SyncLost.Inc()
	m.GrantUnresolved.Inc()
	m.TotalCalls.Inc()
	m.ActiveCalls.Set(3)

	mf, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := map[string]bool{}
	for _, f := range mf {
		found[f.GetName()] = true
	}
	for _, name := range []string{
		"trunkrx_crc_fail_total",
		"trunkrx_fec_uncorrectable_total",
		"trunkrx_sync_lost_total",
		"trunkrx_grant_unresolved_total",
		"trunkrx_total_calls_total",
		"trunkrx_active_calls",
	} {
		if !found[name] {
			t.Errorf("missing metric %s", name)
		}
	}
}

func TestHandlerServesText(t *testing.T) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("unexpected content type: %s", rr.Header().Get("Content-Type"))
	}
}
