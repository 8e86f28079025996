package visibility

import (
	"context"
	"log/slog"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/hupe1980/pagedir/internal/catalog"
	"github.com/hupe1980/pagedir/internal/page"
	"github.com/hupe1980/pagedir/internal/xact"
)

// Result is the segment set a policy resolved to.
type Result struct {
	// Entries are the accepted catalog records. Under a snapshot, a delete record
	// the snapshot cannot see is cleared.
	Entries []catalog.SegmentMetaEntry
	// Index is what the search library needs to open the index.
	Index catalog.IndexMeta
	// Pins keep the pages of the accepted records and their files from being
	// reused. Release them once the files are no longer read.
	Pins *page.PinSet
}

// Release drops the result's pins.
func (r *Result) Release() {
	if r == nil {
		return
	}
	r.Pins.Release()
}

// Resolver answers which segments a reader sees.
type Resolver struct {
	cat    *catalog.Catalog
	oracle xact.Oracle
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger for the resolver.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// New creates a resolver over cat.
func New(cat *catalog.Catalog, oracle xact.Oracle, opts ...Option) *Resolver {
	r := &Resolver{cat: cat, oracle: oracle}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type acceptFunc func(e *catalog.SegmentMetaEntry) bool

func (r *Resolver) acceptor(ctx context.Context, p Policy) (acceptFunc, error) {
	switch p.kind {
	case KindSnapshot:
		if p.snap == nil {
			return nil, errors.AssertionFailedf("visibility: snapshot policy without a snapshot")
		}
		return func(e *catalog.SegmentMetaEntry) bool {
			return e.VisibleTo(p.snap, r.oracle)
		}, nil
	case KindVacuum:
		return func(e *catalog.SegmentMetaEntry) bool {
			return e.IsAlive()
		}, nil
	case KindMergeable:
		merging, err := r.cat.MergeList().ListSegmentIDs(ctx, r.oracle)
		if err != nil {
			return nil, err
		}
		return func(e *catalog.SegmentMetaEntry) bool {
			if !e.IsAlive() || e.IsOrphanedDelete() {
				return false
			}
			_, busy := merging[e.SegmentID]
			return !busy
		}, nil
	case KindParallelWorker:
		allowed := make(map[catalog.SegmentID]struct{}, len(p.ids))
		for _, id := range p.ids {
			allowed[id] = struct{}{}
		}
		return func(e *catalog.SegmentMetaEntry) bool {
			if e.IsOrphanedDelete() {
				return false
			}
			_, ok := allowed[e.SegmentID]
			return ok
		}, nil
	}
	return nil, errors.AssertionFailedf("visibility: unknown policy %d", p.kind)
}

// LoadMetas enumerates the catalog under p and pins what it accepts. Recyclable
// entries are never accepted.
func (r *Resolver) LoadMetas(ctx context.Context, p Policy) (*Result, error) {
	accept, err := r.acceptor(ctx, p)
	if err != nil {
		return nil, err
	}

	m := r.cat.Manager()
	res := &Result{}
	pins, err := r.cat.Entries().ForEachAndPin(ctx,
		func(e catalog.SegmentMetaEntry) bool {
			if e.Recyclable(r.oracle, m.CanCleanup) {
				return false
			}
			return accept(&e)
		},
		func(e catalog.SegmentMetaEntry) {
			if p.kind == KindSnapshot && e.Delete != nil && !e.DeletesVisibleTo(p.snap, r.oracle) {
				e.Delete = nil
			}
			res.Entries = append(res.Entries, e)
		},
	)
	if err != nil {
		return nil, err
	}
	res.Pins = pins

	if p.kind == KindParallelWorker {
		if err := res.orderBy(p.ids); err != nil {
			res.Release()
			return nil, err
		}
	}

	if err := r.fillIndex(ctx, res); err != nil {
		res.Release()
		return nil, err
	}

	if r.logger != nil {
		r.logger.Debug("loaded segment metas",
			"policy", p.kind.String(),
			"segments", len(res.Entries),
			"pinned_blocks", res.Pins.Len(),
			"opstamp", res.Index.Opstamp,
		)
	}
	return res, nil
}

// orderBy puts the entries in the order of ids and fails unless both name the same
// segments.
func (res *Result) orderBy(ids []catalog.SegmentID) error {
	byID := make(map[catalog.SegmentID]catalog.SegmentMetaEntry, len(res.Entries))
	for _, e := range res.Entries {
		byID[e.SegmentID] = e
	}
	var missing []catalog.SegmentID
	ordered := make([]catalog.SegmentMetaEntry, 0, len(ids))
	for _, id := range ids {
		e, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		ordered = append(ordered, e)
		delete(byID, id)
	}
	if len(missing) > 0 || len(byID) > 0 || len(res.Entries) != len(ids) {
		found := make([]catalog.SegmentID, len(res.Entries))
		for i, e := range res.Entries {
			found[i] = e.SegmentID
		}
		slices.SortFunc(found, catalog.SegmentID.Compare)
		return errors.AssertionFailedf("visibility: parallel worker segment mismatch: found=%v, missing=%v", found, missing)
	}
	res.Entries = ordered
	return nil
}

func (r *Resolver) fillIndex(ctx context.Context, res *Result) error {
	schema, err := r.cat.Schema().ReadAll(ctx)
	if err != nil {
		return errors.Wrap(err, "visibility: read schema")
	}
	settings, err := r.cat.Settings().ReadAll(ctx)
	if err != nil {
		return errors.Wrap(err, "visibility: read settings")
	}

	idx := catalog.IndexMeta{
		Segments: make([]catalog.SegmentMeta, 0, len(res.Entries)),
		Schema:   schema,
		Settings: settings,
	}
	for i := range res.Entries {
		e := &res.Entries[i]
		idx.Segments = append(idx.Segments, e.AsSegmentMeta(true))
		idx.Opstamp = max(idx.Opstamp, e.Opstamp)
		if e.Delete != nil {
			idx.Opstamp = max(idx.Opstamp, e.Delete.Opstamp)
		}
	}
	res.Index = idx
	return nil
}
