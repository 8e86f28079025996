package reconcile

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/hupe1980/pagedir/internal/catalog"
	"github.com/hupe1980/pagedir/internal/chain"
	"github.com/hupe1980/pagedir/internal/xact"
)

// Reconciler brings the catalog in line with the segment set of a search library
// commit or merge.
type Reconciler struct {
	cat    *catalog.Catalog
	begin  func() *xact.Transaction
	logger *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger for the reconciler.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// WithBegin lets the reconciler start a transaction of its own to stamp delete
// files attached outside one. Without it such deletes are visible to every snapshot.
func WithBegin(begin func() *xact.Transaction) Option {
	return func(r *Reconciler) {
		r.begin = begin
	}
}

// New creates a reconciler writing to cat.
func New(cat *catalog.Catalog, opts ...Option) *Reconciler {
	r := &Reconciler{cat: cat}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats counts what a reconciliation changed.
type Stats struct {
	Created  int
	Modified int
	Deleted  int
	Orphaned int
}

type segmentFile struct {
	path      string
	component catalog.Component
	file      chain.FileEntry
}

type plan struct {
	created  []catalog.SegmentMeta
	modified []catalog.SegmentMeta
	deleted  []catalog.SegmentID
	files    map[catalog.SegmentID][]segmentFile
}

// SaveNewMetas records the transition from previous to next. files holds the newly
// written component files keyed by path. Files of segments the call does not
// reconcile are returned unchanged.
//
// The batch is applied to a private copy of the catalog and published at once; on
// any error nothing becomes visible.
func (r *Reconciler) SaveNewMetas(
	ctx context.Context,
	txn xact.Txn,
	previous, next []catalog.SegmentMeta,
	opstamp uint64,
	files map[string]chain.FileEntry,
) (map[string]chain.FileEntry, error) {
	_, leftover, err := r.saveNewMetas(ctx, txn, previous, next, opstamp, files)
	return leftover, err
}

// Reconcile is SaveNewMetas that also reports what changed.
func (r *Reconciler) Reconcile(
	ctx context.Context,
	txn xact.Txn,
	previous, next []catalog.SegmentMeta,
	opstamp uint64,
	files map[string]chain.FileEntry,
) (Stats, map[string]chain.FileEntry, error) {
	return r.saveNewMetas(ctx, txn, previous, next, opstamp, files)
}

func (r *Reconciler) saveNewMetas(
	ctx context.Context,
	txn xact.Txn,
	previous, next []catalog.SegmentMeta,
	opstamp uint64,
	files map[string]chain.FileEntry,
) (Stats, map[string]chain.FileEntry, error) {
	p, err := classify(previous, next, files)
	if err != nil {
		return Stats{}, nil, err
	}
	if len(p.deleted) > 0 && !txn.Active() {
		return Stats{}, nil, errors.AssertionFailedf("reconcile: deleting %d segments outside a transaction", len(p.deleted))
	}

	leftover := make(map[string]chain.FileEntry, len(files))
	for path, fe := range files {
		leftover[path] = fe
	}

	xid := txn.XID()
	xmin := xid
	if len(p.deleted) > 0 || !txn.Active() {
		xmin = xact.FrozenXID
	}

	created := make([]catalog.SegmentMetaEntry, 0, len(p.created))
	for _, sm := range p.created {
		e, err := buildEntry(sm, p.files[sm.ID], xmin, xid, opstamp)
		if err != nil {
			return Stats{}, nil, err
		}
		for _, f := range p.files[sm.ID] {
			delete(leftover, f.path)
		}
		created = append(created, e)
	}

	// Deletes attached outside a transaction get a fresh id so that snapshots taken
	// before this call do not see them.
	delXID := xid
	var implicit *xact.Transaction
	if !txn.Active() && len(p.modified) > 0 && r.begin != nil {
		implicit = r.begin()
		delXID = implicit.XID()
		defer func() {
			if implicit.Active() {
				_ = implicit.Abort()
			}
		}()
	}

	guard, err := r.cat.Entries().Atomically(ctx)
	if err != nil {
		return Stats{}, nil, err
	}
	defer guard.Abort()

	for _, e := range created {
		_, _, err := guard.LookupEx(ctx, func(o catalog.SegmentMetaEntry) bool { return o.SegmentID == e.SegmentID })
		if err == nil {
			return Stats{}, nil, errors.AssertionFailedf("reconcile: new segment %s is already in the catalog", e.SegmentID)
		}
		if !errors.Is(err, chain.ErrNotFound) {
			return Stats{}, nil, err
		}
	}

	stats := Stats{Created: len(created)}
	var appends []catalog.SegmentMetaEntry

	for _, id := range p.deleted {
		e, loc, err := lookup(ctx, guard, id)
		if err != nil {
			return Stats{}, nil, err
		}
		if !e.IsAlive() {
			return Stats{}, nil, errors.AssertionFailedf("reconcile: segment %s is already deleted", id)
		}
		e.Xmax = xact.FrozenXID
		e.DeletedBy = xid
		reappend, err := replace(guard, loc, e)
		if err != nil {
			return Stats{}, nil, err
		}
		if reappend {
			appends = append(appends, e)
		}
		stats.Deleted++
	}

	var orphans []catalog.SegmentMetaEntry
	for _, sm := range p.modified {
		sf := p.files[sm.ID]
		if len(sf) != 1 || sf[0].component != catalog.Delete {
			return Stats{}, nil, errors.AssertionFailedf("reconcile: segment %s was modified by %d files, want one delete file", sm.ID, len(sf))
		}
		if sm.Deletes == nil {
			return Stats{}, nil, errors.AssertionFailedf("reconcile: segment %s has a delete file but no delete meta", sm.ID)
		}
		e, loc, err := lookup(ctx, guard, sm.ID)
		if err != nil {
			return Stats{}, nil, err
		}
		if !e.IsAlive() {
			return Stats{}, nil, errors.AssertionFailedf("reconcile: segment %s is retired", sm.ID)
		}
		if n := e.NumDeletedDocs(); sm.Deletes.NumDeletedDocs < n {
			return Stats{}, nil, errors.AssertionFailedf("reconcile: segment %s deleted docs went from %d to %d", sm.ID, n, sm.Deletes.NumDeletedDocs)
		}
		orphan := e.ReplaceDeletes(catalog.DeleteEntry{
			File:           sf[0].file,
			NumDeletedDocs: sm.Deletes.NumDeletedDocs,
			Opstamp:        sm.Deletes.Opstamp,
			XID:            delXID,
		}, delXID)
		if orphan != nil {
			orphans = append(orphans, *orphan)
		}
		reappend, err := replace(guard, loc, e)
		if err != nil {
			return Stats{}, nil, err
		}
		if reappend {
			appends = append(appends, e)
		}
		delete(leftover, sf[0].path)
		stats.Modified++
	}
	stats.Orphaned = len(orphans)

	appends = append(appends, created...)
	appends = append(appends, orphans...)
	if err := guard.AddItems(ctx, appends); err != nil {
		return Stats{}, nil, err
	}
	if err := guard.Commit(ctx); err != nil {
		return Stats{}, nil, err
	}
	if implicit != nil {
		if err := implicit.Commit(); err != nil {
			return stats, leftover, err
		}
	}
	for _, x := range []xact.XID{xid, delXID} {
		if !x.IsNormal() {
			continue
		}
		if err := r.cat.RecordXID(x); err != nil {
			return stats, leftover, err
		}
	}

	if r.logger != nil {
		r.logger.Debug("reconciled segments",
			"xid", uint32(xid),
			"delete_xid", uint32(delXID),
			"opstamp", opstamp,
			"created", stats.Created,
			"modified", stats.Modified,
			"deleted", stats.Deleted,
			"orphaned", stats.Orphaned,
			"leftover_files", len(leftover),
		)
	}
	return stats, leftover, nil
}

// classify splits segment ids into created, modified and deleted, and groups the
// new files by segment.
func classify(previous, next []catalog.SegmentMeta, files map[string]chain.FileEntry) (plan, error) {
	p := plan{files: make(map[catalog.SegmentID][]segmentFile)}
	for path, fe := range files {
		id, c, err := catalog.ParsePath(path)
		if err != nil {
			return plan{}, err
		}
		p.files[id] = append(p.files[id], segmentFile{path: path, component: c, file: fe})
	}

	prev := make(map[catalog.SegmentID]struct{}, len(previous))
	for _, sm := range previous {
		prev[sm.ID] = struct{}{}
	}
	seen := make(map[catalog.SegmentID]struct{}, len(next))
	for _, sm := range next {
		if sm.ID.IsZero() {
			return plan{}, errors.AssertionFailedf("reconcile: segment with zero id")
		}
		if _, dup := seen[sm.ID]; dup {
			return plan{}, errors.AssertionFailedf("reconcile: segment %s listed twice", sm.ID)
		}
		seen[sm.ID] = struct{}{}

		if _, ok := prev[sm.ID]; !ok {
			p.created = append(p.created, sm)
		} else if len(p.files[sm.ID]) > 0 {
			p.modified = append(p.modified, sm)
		}
	}
	for _, sm := range previous {
		if _, ok := seen[sm.ID]; !ok {
			p.deleted = append(p.deleted, sm.ID)
		}
	}
	return p, nil
}

func buildEntry(sm catalog.SegmentMeta, files []segmentFile, xmin, by xact.XID, opstamp uint64) (catalog.SegmentMetaEntry, error) {
	e := catalog.SegmentMetaEntry{
		SegmentID: sm.ID,
		MaxDoc:    sm.MaxDoc,
		Xmin:      xmin,
		Xmax:      xact.InvalidXID,
		CreatedBy: by,
		Opstamp:   opstamp,
	}
	for _, f := range files {
		if f.component != catalog.Delete {
			e.SetFile(f.component, f.file)
			continue
		}
		if sm.Deletes == nil {
			return catalog.SegmentMetaEntry{}, errors.AssertionFailedf("reconcile: segment %s has a delete file but no delete meta", sm.ID)
		}
		e.Delete = &catalog.DeleteEntry{
			File:           f.file,
			NumDeletedDocs: sm.Deletes.NumDeletedDocs,
			Opstamp:        sm.Deletes.Opstamp,
			XID:            by,
		}
	}
	if sm.Deletes != nil && e.Delete == nil {
		return catalog.SegmentMetaEntry{}, errors.AssertionFailedf("reconcile: segment %s has delete meta but no delete file", sm.ID)
	}
	return e, nil
}

func lookup(ctx context.Context, g *chain.AtomicGuard[catalog.SegmentMetaEntry], id catalog.SegmentID) (catalog.SegmentMetaEntry, chain.Location, error) {
	e, loc, err := g.LookupEx(ctx, func(e catalog.SegmentMetaEntry) bool { return e.SegmentID == id })
	if errors.Is(err, chain.ErrNotFound) {
		return e, loc, errors.AssertionFailedf("reconcile: segment %s is not in the catalog", id)
	}
	return e, loc, err
}

// replace overwrites the record at loc in place. When the record no longer fits
// it is removed, and replace reports that the caller must append it again.
func replace(g *chain.AtomicGuard[catalog.SegmentMetaEntry], loc chain.Location, e catalog.SegmentMetaEntry) (bool, error) {
	ok, err := g.Replace(loc, e)
	if err != nil || ok {
		return false, err
	}
	if err := g.Delete(loc); err != nil {
		return false, err
	}
	return true, nil
}
