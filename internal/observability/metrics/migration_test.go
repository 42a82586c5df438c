package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationMetrics_Record(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewMigrationMetrics(registry)
	require.NoError(t, err)

	m.RecordOutcome(OutcomeConverted)
	m.RecordOutcome(OutcomeConverted)
	m.RecordOutcome(OutcomeNoMapping)
	m.RecordPage()
	m.SetCheckpoint(42)
	m.SetQueueDepth(3)
	m.RecordCallerRuns()
	m.RecordAbandoned(2)
	m.RecordAbandoned(0)
	m.RecordSagasTyped(5)
	m.ObserveSubBatch("ok", 10*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.recordsTotal.WithLabelValues(OutcomeConverted)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.recordsTotal.WithLabelValues(OutcomeNoMapping)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.pagesTotal), 0)
	assert.InDelta(t, 42, testutil.ToFloat64(m.checkpointGauge), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.queueDepthGauge), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.callerRunsTotal), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.abandonedTotal), 0)
	assert.InDelta(t, 5, testutil.ToFloat64(m.sagasTypedTotal), 0)

	families, err := registry.Gather()
	require.NoError(t, err)

	var hist *dto.Histogram
	for _, mf := range families {
		if mf.GetName() == "migration_sub_batch_duration_seconds" {
			require.Len(t, mf.GetMetric(), 1)
			hist = mf.GetMetric()[0].GetHistogram()
		}
	}
	require.NotNil(t, hist)
	assert.Equal(t, uint64(1), hist.GetSampleCount())
}

func TestMigrationMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var m *MigrationMetrics
	assert.NotPanics(t, func() {
		m.RecordOutcome(OutcomeFailed)
		m.RecordPage()
		m.SetCheckpoint(1)
		m.SetQueueDepth(1)
		m.RecordCallerRuns()
		m.RecordAbandoned(1)
		m.ObserveSubBatch("failed", time.Second)
		m.RecordSagasTyped(1)
	})
}

func TestNewMigrationMetrics_DuplicateRegistration(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewMigrationMetrics(registry)
	require.NoError(t, err)

	_, err = NewMigrationMetrics(registry)
	assert.Error(t, err)
}
