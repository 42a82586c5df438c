// Package metrics provides Prometheus metrics for the migration jobs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeConverted = "converted"
	OutcomeDuplicate = "duplicate"
	OutcomeNoMapping = "no_mapping"
	OutcomeMalformed = "malformed"
	OutcomeFailed    = "failed"
)

// MigrationMetrics contains Prometheus metrics for the event migration pipeline.
// A nil *MigrationMetrics is valid and records nothing.
type MigrationMetrics struct {
	recordsTotal     *prometheus.CounterVec
	pagesTotal       prometheus.Counter
	checkpointGauge  prometheus.Gauge
	queueDepthGauge  prometheus.Gauge
	callerRunsTotal  prometheus.Counter
	abandonedTotal   prometheus.Counter
	subBatchDuration *prometheus.HistogramVec
	sagasTypedTotal  prometheus.Counter
	collectors       []prometheus.Collector
}

// NewMigrationMetrics creates the metrics and registers them with registry.
func NewMigrationMetrics(registry prometheus.Registerer) (*MigrationMetrics, error) {
	m := &MigrationMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MigrationMetrics) initMetrics() {
	m.recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migration_records_total",
			Help: "Legacy records processed, by outcome",
		},
		[]string{"outcome"},
	)
	m.pagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "migration_pages_total",
		Help: "Cursor pages read from the legacy store",
	})
	m.checkpointGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "migration_checkpoint_id",
		Help: "Last persisted checkpoint (legacy record id)",
	})
	m.queueDepthGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "migration_queue_depth",
		Help: "Sub-batches waiting for a worker",
	})
	m.callerRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "migration_caller_runs_total",
		Help: "Sub-batches run by the reader because the queue was full",
	})
	m.abandonedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "migration_abandoned_sub_batches_total",
		Help: "Sub-batches still queued when the drain timeout expired",
	})
	m.subBatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "migration_sub_batch_duration_seconds",
			Help:    "Time taken to process one sub-batch",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"status"},
	)
	m.sagasTypedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "migration_sagas_typed_total",
		Help: "Saga entries that received a saga type",
	})

	m.collectors = []prometheus.Collector{
		m.recordsTotal,
		m.pagesTotal,
		m.checkpointGauge,
		m.queueDepthGauge,
		m.callerRunsTotal,
		m.abandonedTotal,
		m.subBatchDuration,
		m.sagasTypedTotal,
	}
}

// Describe implements the Collector interface
func (m *MigrationMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *MigrationMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// RecordOutcome counts one processed record.
func (m *MigrationMetrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.recordsTotal.WithLabelValues(outcome).Inc()
}

// RecordPage counts one page read by the cursor.
func (m *MigrationMetrics) RecordPage() {
	if m == nil {
		return
	}
	m.pagesTotal.Inc()
}

// SetCheckpoint publishes the persisted checkpoint.
func (m *MigrationMetrics) SetCheckpoint(id int64) {
	if m == nil {
		return
	}
	m.checkpointGauge.Set(float64(id))
}

// SetQueueDepth publishes the number of queued sub-batches.
func (m *MigrationMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepthGauge.Set(float64(depth))
}

// RecordCallerRuns counts a sub-batch executed by the producer.
func (m *MigrationMetrics) RecordCallerRuns() {
	if m == nil {
		return
	}
	m.callerRunsTotal.Inc()
}

// RecordAbandoned counts sub-batches left behind by a drain timeout.
func (m *MigrationMetrics) RecordAbandoned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.abandonedTotal.Add(float64(n))
}

// ObserveSubBatch records how long a sub-batch took. status is "ok" or "failed".
func (m *MigrationMetrics) ObserveSubBatch(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.subBatchDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordSagasTyped counts sagas updated by the backfill.
func (m *MigrationMetrics) RecordSagasTyped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sagasTypedTotal.Add(float64(n))
}
