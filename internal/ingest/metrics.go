package ingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"setopprice/internal/normalize"
)

// Metrics are the ingestion counters exported on /metrics. A nil
// *Metrics records nothing.
type Metrics struct {
	documents     *prometheus.CounterVec
	records       *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	fetchAttempts prometheus.Counter
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	dropped       prometheus.Counter
	consolidated  prometheus.Gauge
	active        prometheus.Gauge
}

// NewMetrics registers the ingestion metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		documents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "setop_documents_total",
			Help: "Spreadsheets handled, by outcome",
		}, []string{"outcome"}), // ok, fetch_error, layout_error
		records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "setop_records_total",
			Help: "Data rows normalized, by outcome",
		}, []string{"outcome"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "setop_records_rejected_total",
			Help: "Rejected data rows, by reason",
		}, []string{"reason"}),
		fetchAttempts: f.NewCounter(prometheus.CounterOpts{
			Name: "setop_fetch_attempts_total",
			Help: "HTTP attempts made by the fetcher, retries included",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "setop_runs_total",
			Help: "Finished runs, by final state",
		}, []string{"state"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "setop_run_duration_seconds",
			Help:    "Wall time of a run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "setop_progress_dropped_total",
			Help: "Progress lines dropped because the buffer was full",
		}),
		consolidated: f.NewGauge(prometheus.GaugeOpts{
			Name: "setop_consolidated_records",
			Help: "Records in the consolidated set after the last merge",
		}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Name: "setop_run_active",
			Help: "1 while a run is in progress",
		}),
	}
}

func (m *Metrics) document(outcome string) {
	if m != nil {
		m.documents.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) recordsSeen(accepted int, rejected map[normalize.Reason]int) {
	if m == nil {
		return
	}
	m.records.WithLabelValues("accepted").Add(float64(accepted))
	for reason, n := range rejected {
		m.records.WithLabelValues("rejected").Add(float64(n))
		m.rejections.WithLabelValues(string(reason)).Add(float64(n))
	}
}

// FetchAttempt counts one HTTP attempt. It matches the fetcher's
// OnAttempt hook.
func (m *Metrics) FetchAttempt(string, int) {
	if m != nil {
		m.fetchAttempts.Inc()
	}
}

// ProgressDropped counts one dropped progress line. It matches the
// channel's OnDrop hook.
func (m *Metrics) ProgressDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

func (m *Metrics) runStarted() {
	if m != nil {
		m.active.Set(1)
	}
}

func (m *Metrics) runFinished(s State, d time.Duration) {
	if m == nil {
		return
	}
	m.active.Set(0)
	m.runs.WithLabelValues(string(s)).Inc()
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) consolidatedSize(n int) {
	if m != nil {
		m.consolidated.Set(float64(n))
	}
}
