package pagedir

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"github.com/hupe1980/pagedir/codec"
	"github.com/hupe1980/pagedir/internal/cache"
	"github.com/hupe1980/pagedir/internal/catalog"
	"github.com/hupe1980/pagedir/internal/chain"
	"github.com/hupe1980/pagedir/internal/checkpoint"
	"github.com/hupe1980/pagedir/internal/gc"
	"github.com/hupe1980/pagedir/internal/page"
	"github.com/hupe1980/pagedir/internal/reconcile"
	"github.com/hupe1980/pagedir/internal/resource"
	"github.com/hupe1980/pagedir/internal/visibility"
	"github.com/hupe1980/pagedir/internal/xact"
)

// Directory is a segment metadata directory. It is safe for concurrent use.
type Directory struct {
	// mu is held shared by every mutation and exclusively while a checkpoint
	// copies the pages.
	mu     sync.RWMutex
	closed atomic.Bool

	store       PageStore
	pages       *page.Manager
	cat         *catalog.Catalog
	oracle      xact.Oracle
	txns        *xact.Manager // nil with an external oracle
	reconciler  *reconcile.Reconciler
	resolver    *visibility.Resolver
	collector   *gc.Collector
	checkpoints *checkpoint.Store // nil without a blob store
	components  *cache.LRU[componentKey]
	rc          *resource.Controller
	cron        *cron.Cron

	codec     codec.Codec
	metrics   MetricsCollector
	logger    *Logger
	retention int
}

// Open opens the directory kept in the configured page store, creating it if the
// store is empty. An empty store is first restored from the latest checkpoint when
// a blob store is configured.
//
// Open takes ownership of the page store and closes it on failure.
func Open(ctx context.Context, optFns ...Option) (*Directory, error) {
	opts := applyOptions(optFns)

	store := opts.pageStore
	if store == nil {
		store = page.NewMemStore()
	}

	d, err := open(ctx, store, opts)
	if err != nil {
		_ = store.Close()
		return nil, translateError(err)
	}
	return d, nil
}

func open(ctx context.Context, store PageStore, opts options) (*Directory, error) {
	slogger := opts.logger.Logger
	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:     opts.memoryLimit,
		MaxBackgroundWorkers: 1,
		IOLimitBytesPerSec:   opts.ioBytesPerSec,
	})

	d := &Directory{
		store:      store,
		rc:         rc,
		components: cache.NewLRU[componentKey](opts.componentCacheBytes, rc),
		codec:      opts.codec,
		metrics:    opts.metricsCollector,
		logger:     opts.logger,
		retention:  opts.checkpointRetention,
	}

	if opts.blobStore != nil {
		d.checkpoints = checkpoint.NewStore(opts.blobStore,
			checkpoint.WithCompression(opts.compression),
			checkpoint.WithResourceController(rc),
			checkpoint.WithLogger(slogger),
		)
		if err := d.restore(ctx); err != nil {
			return nil, err
		}
	}

	pages, err := page.NewManager(store, page.WithResourceController(rc), page.WithLogger(slogger))
	if err != nil {
		return nil, err
	}
	d.pages = pages

	cat, err := catalog.Open(pages, catalog.WithLogger(slogger))
	if err != nil {
		return nil, err
	}
	d.cat = cat

	d.oracle = opts.oracle
	if d.oracle == nil {
		last, err := cat.LastXID()
		if err != nil {
			return nil, err
		}
		d.txns = xact.NewManager(xact.WithNextXID(last+1), xact.WithLogger(slogger))
		d.oracle = d.txns
	}

	reconcileOpts := []reconcile.Option{reconcile.WithLogger(slogger)}
	if d.txns != nil {
		reconcileOpts = append(reconcileOpts, reconcile.WithBegin(d.txns.Begin))
	}
	d.reconciler = reconcile.New(cat, reconcileOpts...)
	d.resolver = visibility.New(cat, d.oracle, visibility.WithLogger(slogger))
	d.collector = gc.New(cat, d.oracle, gc.WithLogger(slogger))

	if opts.maintenanceSchedule != "" {
		if err := d.startMaintenance(opts.maintenanceSchedule); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// restore fills an empty page store from the current checkpoint.
func (d *Directory) restore(ctx context.Context) error {
	n, err := d.store.NumBlocks()
	if err != nil || n > 0 {
		return err
	}
	img, err := d.checkpoints.Load(ctx)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := page.Restore(d.store, img.Pages); err != nil {
		return err
	}
	d.logger.InfoContext(ctx, "restored from checkpoint",
		"name", img.Name,
		"pages", img.Info.Pages,
		"compression", img.Compression.String(),
	)
	return nil
}

// lock enters a mutation. The caller must call d.mu.RUnlock when it returns nil.
func (d *Directory) lock() error {
	d.mu.RLock()
	if d.closed.Load() {
		d.mu.RUnlock()
		return ErrClosed
	}
	return nil
}

// Begin starts a transaction.
func (d *Directory) Begin() (*Transaction, error) {
	if d.txns == nil {
		return nil, ErrExternalOracle
	}
	return d.txns.Begin(), nil
}

// Snapshot takes a snapshot of the running transactions. txn may be nil; a
// snapshot taken for txn sees txn's own stamps. Release the snapshot when done.
func (d *Directory) Snapshot(txn Txn) (*Snapshot, error) {
	if d.txns == nil {
		return nil, ErrExternalOracle
	}
	if txn == nil {
		txn = xact.NoTxn
	}
	return d.txns.TakeSnapshot(txn), nil
}

// Oracle returns the oracle deciding transaction status.
func (d *Directory) Oracle() Oracle {
	return d.oracle
}

// SaveMetas persists an index commit. Schema and settings of next are stored the
// first time they are seen. If next lists segments, the catalog is reconciled from
// previous to next; otherwise the call only stores schema and settings.
//
// files holds the newly written component files keyed by path. Files the call
// does not take ownership of are returned.
func (d *Directory) SaveMetas(ctx context.Context, txn Txn, previous, next *IndexMeta, files map[string]FileEntry) (map[string]FileEntry, error) {
	if err := d.lock(); err != nil {
		return nil, err
	}
	defer d.mu.RUnlock()

	if txn == nil {
		txn = xact.NoTxn
	}
	start := time.Now()
	stats, leftover, err := d.reconciler.SaveMetas(ctx, txn, previous, next, files)
	err = translateError(err)
	d.metrics.RecordSaveMetas(stats, time.Since(start), err)
	d.logger.LogSaveMetas(ctx, txn.XID(), stats, err)
	return leftover, err
}

// SaveNewMetas reconciles the catalog from the segment set previous to next.
// Unlike SaveMetas, an empty next retires every segment of previous.
func (d *Directory) SaveNewMetas(ctx context.Context, txn Txn, previous, next []SegmentMeta, opstamp uint64, files map[string]FileEntry) (map[string]FileEntry, error) {
	if err := d.lock(); err != nil {
		return nil, err
	}
	defer d.mu.RUnlock()

	if txn == nil {
		txn = xact.NoTxn
	}
	start := time.Now()
	stats, leftover, err := d.reconciler.Reconcile(ctx, txn, previous, next, opstamp, files)
	err = translateError(err)
	d.metrics.RecordSaveMetas(stats, time.Since(start), err)
	d.logger.LogSaveMetas(ctx, txn.XID(), stats, err)
	return leftover, err
}

// LoadMetas resolves the segments p accepts. The result pins the pages of the
// accepted segments and their files; call Release on it when done.
func (d *Directory) LoadMetas(ctx context.Context, p Policy) (*Result, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}

	start := time.Now()
	res, err := d.resolver.LoadMetas(ctx, p)
	err = translateError(err)
	segments := 0
	if res != nil {
		segments = len(res.Entries)
	}
	d.metrics.RecordLoadMetas(p.Kind().String(), segments, time.Since(start), err)
	d.logger.LogLoadMetas(ctx, p.Kind().String(), segments, err)
	return res, err
}

// LoadIndexMeta resolves p and encodes the index metadata with the configured
// codec, ready to hand to the search library.
func (d *Directory) LoadIndexMeta(ctx context.Context, p Policy) ([]byte, error) {
	res, err := d.LoadMetas(ctx, p)
	if err != nil {
		return nil, err
	}
	defer res.Release()
	return d.codec.Marshal(&res.Index)
}

// ListManagedFiles returns the component paths of every segment in the catalog,
// retired ones included.
func (d *Directory) ListManagedFiles(ctx context.Context) ([]string, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	paths, err := d.cat.ListManagedFiles(ctx)
	return paths, translateError(err)
}

// BeginMerge records that txn merges ids so MergeablePolicy stops offering them.
// The record expires when txn finishes; EndMerge removes it earlier.
func (d *Directory) BeginMerge(ctx context.Context, txn Txn, ids []SegmentID) (MergeEntry, error) {
	if err := d.lock(); err != nil {
		return MergeEntry{}, err
	}
	defer d.mu.RUnlock()

	e, err := d.cat.MergeList().AddSegmentIDs(ctx, txn, ids)
	if err != nil {
		return MergeEntry{}, translateError(err)
	}
	if err := d.cat.RecordXID(txn.XID()); err != nil {
		return MergeEntry{}, translateError(err)
	}
	d.logger.DebugContext(ctx, "merge started", "xid", txn.XID().String(), "segments", len(ids))
	return e, nil
}

// EndMerge removes the record of a finished merge.
func (d *Directory) EndMerge(ctx context.Context, e MergeEntry) error {
	if err := d.lock(); err != nil {
		return err
	}
	defer d.mu.RUnlock()
	return translateError(d.cat.MergeList().RemoveEntry(ctx, e))
}

// GarbageCollect reclaims segments no reader can see any more, together with
// their files, and drops records of finished merges.
func (d *Directory) GarbageCollect(ctx context.Context) (GCStats, error) {
	if err := d.rc.AcquireBackground(ctx); err != nil {
		return GCStats{}, err
	}
	defer d.rc.ReleaseBackground()
	return d.garbageCollect(ctx)
}

func (d *Directory) garbageCollect(ctx context.Context) (GCStats, error) {
	if err := d.lock(); err != nil {
		return GCStats{}, err
	}
	defer d.mu.RUnlock()

	start := time.Now()
	stats, err := d.collector.Collect(ctx)
	err = translateError(err)
	d.metrics.RecordGarbageCollect(stats, time.Since(start), err)
	d.logger.LogGarbageCollect(ctx, stats, err)
	return stats, err
}

// Checkpoint flushes the pages and writes them as a new checkpoint to the blob
// store. Checkpoints beyond the configured retention are pruned.
func (d *Directory) Checkpoint(ctx context.Context) (CheckpointInfo, error) {
	if d.checkpoints == nil {
		return CheckpointInfo{}, ErrNoBlobStore
	}
	if err := d.rc.AcquireBackground(ctx); err != nil {
		return CheckpointInfo{}, err
	}
	defer d.rc.ReleaseBackground()
	return d.checkpoint(ctx)
}

func (d *Directory) checkpoint(ctx context.Context) (CheckpointInfo, error) {
	start := time.Now()
	pages, err := d.copyPages(ctx)
	if err != nil {
		err = translateError(err)
		d.metrics.RecordCheckpoint(0, time.Since(start), err)
		d.logger.LogCheckpoint(ctx, CheckpointInfo{}, 0, err)
		return CheckpointInfo{}, err
	}

	info, err := d.checkpoints.Save(ctx, pages)
	pruned := 0
	if err == nil {
		pruned, err = d.checkpoints.Prune(ctx, d.retention)
	}
	err = translateError(err)
	d.metrics.RecordCheckpoint(info.Bytes, time.Since(start), err)
	d.logger.LogCheckpoint(ctx, info, pruned, err)
	return info, err
}

// copyPages flushes and copies the pages with mutations held off, so the copy is
// a consistent image.
func (d *Directory) copyPages(ctx context.Context) ([]page.Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if err := d.pages.Flush(ctx); err != nil {
		return nil, err
	}
	return d.pages.CopyPages(ctx)
}

// Flush writes dirty pages to the page store and syncs it.
func (d *Directory) Flush(ctx context.Context) error {
	if err := d.lock(); err != nil {
		return err
	}
	defer d.mu.RUnlock()
	return translateError(d.pages.Flush(ctx))
}

// Close stops scheduled maintenance, flushes dirty pages and closes the page
// store. Closing twice is a no-op.
func (d *Directory) Close() error {
	if d == nil || !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	if d.cron != nil {
		<-d.cron.Stop().Done()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.components.Purge()
	return translateError(d.pages.Close(context.Background()))
}

// writeComponentChain stores data in a new byte chain.
func writeComponentChain(ctx context.Context, m *page.Manager, data []byte) (FileEntry, error) {
	bl, err := chain.CreateBytesList(m)
	if err != nil {
		return FileEntry{}, err
	}
	fe, err := bl.Write(ctx, data)
	if err != nil {
		return FileEntry{}, errors.CombineErrors(err, bl.ReturnToFSM(ctx))
	}
	return fe, nil
}
