package observ

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTimerReport(t *testing.T) {
	tm := NewTimer()
	i := tm.Begin("bind")
	tm.End(i, "2 sets")
	j := tm.Begin("init")
	tm.End(j, "")
	tm.End(99, "ignored")
	k := tm.Begin("init")
	tm.End(k, "3 temporaries")

	r := tm.Report()
	if len(r.Phases) != 2 || r.Phases[0].Note != "2 sets" || r.Phases[1].Count != 2 || r.Phases[1].Note != "3 temporaries" {
		t.Fatalf("report = %+v", r)
	}
	if len(tm.Phases()) != 3 {
		t.Fatalf("raw phases = %d, want 3", len(tm.Phases()))
	}
	if sum := tm.Summary(); !strings.Contains(sum, "total") || !strings.Contains(sum, "init x2") {
		t.Fatalf("summary lacks total: %q", tm.Summary())
	}
	if (&Timer{}).Report().Phases != nil {
		t.Fatalf("empty timer has phases")
	}
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.IndexBuilt("segmented", 7)
	m.IndexBuilt("segmented", 3)
	m.MemoHit()
	m.CacheLookup("miss")
	m.TemporaryAllocated(64)
	m.RunFinished(nil)
	m.RunFinished(errors.New("fault"))

	if got := testutil.ToFloat64(m.IndexBuilds.WithLabelValues("segmented")); got != 2 {
		t.Fatalf("IndexBuilds = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Neighbors); got != 10 {
		t.Fatalf("Neighbors = %v, want 10", got)
	}
	if got := testutil.ToFloat64(m.Runs.WithLabelValues("error")); got != 1 {
		t.Fatalf("Runs[error] = %v, want 1", got)
	}

	var buf bytes.Buffer
	if err := WriteText(&buf, reg); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if !strings.Contains(buf.String(), "meshc_backend_temporary_bytes_total 64") {
		t.Fatalf("exposition = %s", buf.String())
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.IndexBuilt("segmented", 1)
	m.MemoHit()
	m.CacheLookup("hit")
	m.TemporaryAllocated(1)
	m.InitTook(0)
	m.RunFinished(nil)
}
