package observ

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

const metricsNamespace = "meshc"

// Metrics counts path index and binding activity. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// IndexBuilds counts path indices materialized, by kind
	// (segmented, set_endpoint).
	IndexBuilds *prometheus.CounterVec
	// MemoHits counts builder requests answered from the memo table.
	MemoHits prometheus.Counter
	// CacheLookups counts disk cache lookups by result (hit, miss, error).
	CacheLookups *prometheus.CounterVec
	// Neighbors counts neighbor entries materialized in segmented indices.
	Neighbors prometheus.Counter
	// TemporaryBytes counts bytes allocated for temporaries.
	TemporaryBytes prometheus.Counter
	// InitDuration observes Function.Init latency.
	InitDuration prometheus.Histogram
	// Runs counts invocations by status (ok, error).
	Runs *prometheus.CounterVec
}

// NewMetrics registers the metrics with reg. Use a fresh registry per test.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IndexBuilds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pidx",
			Name:      "builds_total",
			Help:      "Path indices materialized by kind",
		}, []string{"kind"}),
		MemoHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pidx",
			Name:      "memo_hits_total",
			Help:      "Path index requests answered from the memo table",
		}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pidx",
			Name:      "cache_lookups_total",
			Help:      "Disk cache lookups by result",
		}, []string{"result"}),
		Neighbors: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pidx",
			Name:      "neighbors_total",
			Help:      "Neighbor entries materialized in segmented indices",
		}),
		TemporaryBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "backend",
			Name:      "temporary_bytes_total",
			Help:      "Bytes allocated for temporaries",
		}),
		InitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "backend",
			Name:      "init_duration_seconds",
			Help:      "Function initialization latency",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
		}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "backend",
			Name:      "runs_total",
			Help:      "Function invocations by status",
		}, []string{"status"}),
	}
}

func (m *Metrics) IndexBuilt(kind string, neighbors int) {
	if m == nil {
		return
	}
	m.IndexBuilds.WithLabelValues(kind).Inc()
	m.Neighbors.Add(float64(neighbors))
}

func (m *Metrics) MemoHit() {
	if m != nil {
		m.MemoHits.Inc()
	}
}

func (m *Metrics) CacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) TemporaryAllocated(bytes int) {
	if m != nil {
		m.TemporaryBytes.Add(float64(bytes))
	}
}

func (m *Metrics) InitTook(d time.Duration) {
	if m != nil {
		m.InitDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) RunFinished(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Runs.WithLabelValues(status).Inc()
}

// WriteText writes every metric gathered from g in the text exposition
// format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
