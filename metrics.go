package pagedir

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Use PrometheusCollector to export them, or implement it for another system.
type MetricsCollector interface {
	// RecordSaveMetas is called after each reconciliation.
	RecordSaveMetas(stats SaveStats, duration time.Duration, err error)

	// RecordLoadMetas is called after each visibility resolution. policy is the
	// policy kind, segments the number of accepted segments.
	RecordLoadMetas(policy string, segments int, duration time.Duration, err error)

	// RecordGarbageCollect is called after each garbage collection pass.
	RecordGarbageCollect(stats GCStats, duration time.Duration, err error)

	// RecordCheckpoint is called after each checkpoint.
	RecordCheckpoint(bytes int64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSaveMetas(SaveStats, time.Duration, error)    {}
func (NoopMetricsCollector) RecordLoadMetas(string, int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordGarbageCollect(GCStats, time.Duration, error) {}
func (NoopMetricsCollector) RecordCheckpoint(int64, time.Duration, error)       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	SaveCount        atomic.Int64
	SaveErrors       atomic.Int64
	SegmentsCreated  atomic.Int64
	SegmentsDeleted  atomic.Int64
	LoadCount        atomic.Int64
	LoadErrors       atomic.Int64
	LoadTotalNanos   atomic.Int64
	GCCount          atomic.Int64
	GCErrors         atomic.Int64
	GCEntries        atomic.Int64
	CheckpointCount  atomic.Int64
	CheckpointErrors atomic.Int64
	CheckpointBytes  atomic.Int64
}

// RecordSaveMetas implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSaveMetas(stats SaveStats, _ time.Duration, err error) {
	b.SaveCount.Add(1)
	if err != nil {
		b.SaveErrors.Add(1)
		return
	}
	b.SegmentsCreated.Add(int64(stats.Created))
	b.SegmentsDeleted.Add(int64(stats.Deleted))
}

// RecordLoadMetas implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoadMetas(_ string, _ int, duration time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordGarbageCollect implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGarbageCollect(stats GCStats, _ time.Duration, err error) {
	b.GCCount.Add(1)
	b.GCEntries.Add(int64(stats.Entries))
	if err != nil {
		b.GCErrors.Add(1)
	}
}

// RecordCheckpoint implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCheckpoint(bytes int64, _ time.Duration, err error) {
	b.CheckpointCount.Add(1)
	if err != nil {
		b.CheckpointErrors.Add(1)
		return
	}
	b.CheckpointBytes.Add(bytes)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		SaveCount:        b.SaveCount.Load(),
		SaveErrors:       b.SaveErrors.Load(),
		SegmentsCreated:  b.SegmentsCreated.Load(),
		SegmentsDeleted:  b.SegmentsDeleted.Load(),
		LoadCount:        b.LoadCount.Load(),
		LoadErrors:       b.LoadErrors.Load(),
		LoadAvgNanos:     b.getAvgLoadNanos(),
		GCCount:          b.GCCount.Load(),
		GCErrors:         b.GCErrors.Load(),
		GCEntries:        b.GCEntries.Load(),
		CheckpointCount:  b.CheckpointCount.Load(),
		CheckpointErrors: b.CheckpointErrors.Load(),
		CheckpointBytes:  b.CheckpointBytes.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgLoadNanos() int64 {
	count := b.LoadCount.Load()
	if count == 0 {
		return 0
	}
	return b.LoadTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	SaveCount        int64
	SaveErrors       int64
	SegmentsCreated  int64
	SegmentsDeleted  int64
	LoadCount        int64
	LoadErrors       int64
	LoadAvgNanos     int64
	GCCount          int64
	GCErrors         int64
	GCEntries        int64
	CheckpointCount  int64
	CheckpointErrors int64
	CheckpointBytes  int64
}

// PrometheusCollector exports directory metrics to Prometheus.
type PrometheusCollector struct {
	latency         *prometheus.HistogramVec
	segments        *prometheus.CounterVec
	loaded          *prometheus.GaugeVec
	gcEntries       prometheus.Counter
	checkpointBytes prometheus.Counter
}

// NewPrometheusCollector creates a collector and registers its metrics with reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &PrometheusCollector{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pagedir_operation_latency_seconds",
			Help:    "Latency of directory operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "status"}),
		segments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pagedir_segments_total",
			Help: "Segments reconciled, by change",
		}, []string{"change"}),
		loaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pagedir_loaded_segments",
			Help: "Segments accepted by the last resolution, by policy",
		}, []string{"policy"}),
		gcEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagedir_gc_entries_total",
			Help: "Catalog entries reclaimed by garbage collection",
		}),
		checkpointBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagedir_checkpoint_bytes_total",
			Help: "Bytes written by checkpoints",
		}),
	}
	for _, c := range []prometheus.Collector{p.latency, p.segments, p.loaded, p.gcEntries, p.checkpointBytes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordSaveMetas implements MetricsCollector.
func (p *PrometheusCollector) RecordSaveMetas(stats SaveStats, duration time.Duration, err error) {
	p.latency.WithLabelValues("save_metas", status(err)).Observe(duration.Seconds())
	if err != nil {
		return
	}
	p.segments.WithLabelValues("created").Add(float64(stats.Created))
	p.segments.WithLabelValues("modified").Add(float64(stats.Modified))
	p.segments.WithLabelValues("deleted").Add(float64(stats.Deleted))
	p.segments.WithLabelValues("orphaned").Add(float64(stats.Orphaned))
}

// RecordLoadMetas implements MetricsCollector.
func (p *PrometheusCollector) RecordLoadMetas(policy string, segments int, duration time.Duration, err error) {
	p.latency.WithLabelValues("load_metas", status(err)).Observe(duration.Seconds())
	if err == nil {
		p.loaded.WithLabelValues(policy).Set(float64(segments))
	}
}

// RecordGarbageCollect implements MetricsCollector.
func (p *PrometheusCollector) RecordGarbageCollect(stats GCStats, duration time.Duration, err error) {
	p.latency.WithLabelValues("garbage_collect", status(err)).Observe(duration.Seconds())
	p.gcEntries.Add(float64(stats.Entries))
}

// RecordCheckpoint implements MetricsCollector.
func (p *PrometheusCollector) RecordCheckpoint(bytes int64, duration time.Duration, err error) {
	p.latency.WithLabelValues("checkpoint", status(err)).Observe(duration.Seconds())
	if err == nil {
		p.checkpointBytes.Add(float64(bytes))
	}
}
