package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/tickets", "GET", 200, 15*time.Millisecond)
	m.RecordRequest("/tickets", "GET", 200, 5*time.Millisecond)
	m.RecordError("/tickets/:id", "GET", "NOT_FOUND")
	m.RecordEvaluation("AT_RISK")
	m.RecordImport(3, 1)

	if got := testutil.ToFloat64(m.requests.WithLabelValues("/tickets", "GET", "200")); got != 2 {
		t.Errorf("requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("/tickets/:id", "GET", "NOT_FOUND")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.evaluations.WithLabelValues("AT_RISK")); got != 1 {
		t.Errorf("evaluations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.importedRows.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed rows = %v, want 1", got)
	}
}

func TestSetActiveRiskResetsStaleStates(t *testing.T) {
	m := NewMetrics()
	m.SetActiveRisk(map[string]int{"BREACHED": 2, "AT_RISK": 1})
	m.SetActiveRisk(map[string]int{"ON_TIME": 4})

	if got := testutil.CollectAndCount(m.ticketsAtRisk); got != 1 {
		t.Errorf("series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(m.ticketsAtRisk.WithLabelValues("ON_TIME")); got != 4 {
		t.Errorf("ON_TIME = %v, want 4", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordError("/", "GET", "X")
	m.RecordEvaluation("ON_TIME")
	m.SetActiveRisk(nil)
	m.RecordNotification("sla_breached", "sent")
	m.RecordMonitorRun("ok")
	m.RecordImport(1, 0)
}
