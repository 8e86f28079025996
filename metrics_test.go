package pagedir

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicMetricsCollector(t *testing.T) {
	m := &BasicMetricsCollector{}

	m.RecordSaveMetas(SaveStats{Created: 2, Deleted: 1}, time.Millisecond, nil)
	m.RecordSaveMetas(SaveStats{Created: 5}, time.Millisecond, errors.New("boom"))
	m.RecordLoadMetas("snapshot", 3, 2*time.Millisecond, nil)
	m.RecordLoadMetas("vacuum", 0, 4*time.Millisecond, errors.New("boom"))
	m.RecordGarbageCollect(GCStats{Entries: 4}, time.Millisecond, nil)
	m.RecordCheckpoint(1024, time.Millisecond, nil)
	m.RecordCheckpoint(2048, time.Millisecond, errors.New("boom"))

	stats := m.GetStats()
	assert.Equal(t, int64(2), stats.SaveCount)
	assert.Equal(t, int64(1), stats.SaveErrors)
	assert.Equal(t, int64(2), stats.SegmentsCreated)
	assert.Equal(t, int64(1), stats.SegmentsDeleted)
	assert.Equal(t, int64(2), stats.LoadCount)
	assert.Equal(t, int64(1), stats.LoadErrors)
	assert.Equal(t, (3 * time.Millisecond).Nanoseconds(), stats.LoadAvgNanos)
	assert.Equal(t, int64(1), stats.GCCount)
	assert.Equal(t, int64(4), stats.GCEntries)
	assert.Equal(t, int64(2), stats.CheckpointCount)
	assert.Equal(t, int64(1), stats.CheckpointErrors)
	assert.Equal(t, int64(1024), stats.CheckpointBytes)
}

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	p.RecordSaveMetas(SaveStats{Created: 2, Modified: 1}, time.Millisecond, nil)
	p.RecordSaveMetas(SaveStats{Created: 7}, time.Millisecond, errors.New("boom"))
	p.RecordLoadMetas("mergeable", 5, time.Millisecond, nil)
	p.RecordGarbageCollect(GCStats{Entries: 3}, time.Millisecond, nil)
	p.RecordCheckpoint(4096, time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.segments.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.segments.WithLabelValues("modified")))
	assert.Equal(t, 5.0, testutil.ToFloat64(p.loaded.WithLabelValues("mergeable")))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.gcEntries))
	assert.Equal(t, 4096.0, testutil.ToFloat64(p.checkpointBytes))
	assert.Equal(t, 5, testutil.CollectAndCount(p.latency))

	_, err = NewPrometheusCollector(reg)
	require.Error(t, err)
}
