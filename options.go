package pagedir

import (
	"log/slog"

	"github.com/hupe1980/pagedir/blobstore"
	"github.com/hupe1980/pagedir/codec"
	"github.com/hupe1980/pagedir/internal/checkpoint"
)

const (
	defaultComponentCacheBytes = 64 << 20
	defaultCheckpointRetention = 2
)

type options struct {
	codec               codec.Codec
	metricsCollector    MetricsCollector
	logger              *Logger
	pageStore           PageStore
	blobStore           blobstore.BlobStore
	compression         checkpoint.Compression
	checkpointRetention int
	ioBytesPerSec       int64
	memoryLimit         int64
	componentCacheBytes int64
	maintenanceSchedule string
	oracle              Oracle
}

// Option configures Open.
type Option func(*options)

// WithCodec configures the codec used to encode index metadata for the search
// library.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithPageStore sets where pages are persisted. The default keeps them in memory.
//
// A store that holds no pages yet is restored from the latest checkpoint when a
// blob store is configured.
func WithPageStore(s PageStore) Option {
	return func(o *options) {
		o.pageStore = s
	}
}

// WithBlobStore enables checkpoints to the given blob store.
//
// Example with a local directory:
//
//	dir, _ := pagedir.Open(ctx,
//	    pagedir.WithBlobStore(blobstore.NewLocalStore("./checkpoints")),
//	    pagedir.WithCompression(pagedir.CompressionZstd),
//	)
func WithBlobStore(s blobstore.BlobStore) Option {
	return func(o *options) {
		o.blobStore = s
	}
}

// WithCompression sets the page codec of new checkpoints. Default is snappy.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithCheckpointRetention sets how many checkpoints are kept. Older ones are
// pruned after each checkpoint. Values below 1 keep one.
func WithCheckpointRetention(n int) Option {
	return func(o *options) {
		o.checkpointRetention = n
	}
}

// WithCheckpointRateLimit throttles checkpoint uploads to bytesPerSec. Zero means
// unlimited.
func WithCheckpointRateLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioBytesPerSec = bytesPerSec
	}
}

// WithMemoryLimit bounds the memory of resident pages and cached components.
// Zero means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithComponentCache sets the capacity of the component read cache in bytes.
// Zero disables the cache.
func WithComponentCache(bytes int64) Option {
	return func(o *options) {
		o.componentCacheBytes = bytes
	}
}

// WithMaintenanceSchedule runs garbage collection, followed by a checkpoint when a
// blob store is configured, on a cron schedule such as "@every 5m" or "0 3 * * *".
func WithMaintenanceSchedule(spec string) Option {
	return func(o *options) {
		o.maintenanceSchedule = spec
	}
}

// WithOracle makes the directory answer transaction status questions with o
// instead of its own transaction manager. Begin and Snapshot then fail with
// ErrExternalOracle; callers pass their own Txn and Snapshot values.
func WithOracle(o Oracle) Option {
	return func(opts *options) {
		opts.oracle = o
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &pagedir.BasicMetricsCollector{}
//	dir, _ := pagedir.Open(ctx, pagedir.WithMetricsCollector(metrics))
//	// ... use dir ...
//	stats := metrics.GetStats()
//	fmt.Printf("Loads: %d, Avg latency: %dns\n", stats.LoadCount, stats.LoadAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := pagedir.NewJSONLogger(slog.LevelInfo)
//	dir, _ := pagedir.Open(ctx, pagedir.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:               codec.Default,
		metricsCollector:    NoopMetricsCollector{},
		logger:              NoopLogger(),
		compression:         checkpoint.CompressionSnappy,
		checkpointRetention: defaultCheckpointRetention,
		componentCacheBytes: defaultComponentCacheBytes,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
