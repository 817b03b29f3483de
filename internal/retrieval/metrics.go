package retrieval

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes retrieval pipeline counters and histograms. A nil
// *Metrics is valid and records nothing, which keeps tests quiet.
type Metrics struct {
	queryDuration *prometheus.HistogramVec
	resultCount   prometheus.Histogram
	stageFailures *prometheus.CounterVec
}

// NewMetrics registers retrieval metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "repaird",
			Subsystem: "retrieval",
			Name:      "query_duration_seconds",
			Help:      "Retrieval pipeline duration per query.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"degraded"}),
		resultCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "repaird",
			Subsystem: "retrieval",
			Name:      "result_count",
			Help:      "Number of tutorials returned per query.",
			Buckets:   []float64{0, 1, 2, 5, 8, 10, 20, 50},
		}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repaird",
			Subsystem: "retrieval",
			Name:      "stage_failures_total",
			Help:      "Failed retrieval stages by stage name.",
		}, []string{"stage"}),
	}
	reg.MustRegister(m.queryDuration, m.resultCount, m.stageFailures)
	return m
}

func (m *Metrics) observeQuery(d time.Duration, results int, degraded bool) {
	if m == nil {
		return
	}
	label := "false"
	if degraded {
		label = "true"
	}
	m.queryDuration.WithLabelValues(label).Observe(d.Seconds())
	m.resultCount.Observe(float64(results))
}

func (m *Metrics) observeStageFailure(stage string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage).Inc()
}
