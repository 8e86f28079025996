package catalog

import (
	"github.com/hupe1980/pagedir/internal/page"
	"github.com/hupe1980/pagedir/internal/xact"
)

// IsAlive reports whether the segment has not been retired.
func (e *SegmentMetaEntry) IsAlive() bool {
	return e.Xmax == xact.InvalidXID
}

// IsOrphanedDelete reports whether the entry is a placeholder for a replaced delete
// file.
func (e *SegmentMetaEntry) IsOrphanedDelete() bool {
	return e.SegmentID.IsZero()
}

// effective resolves a frozen stamp to the transaction that wrote it. A frozen stamp
// takes effect for a snapshot once its writer is visible to that snapshot.
func effective(stamp, by xact.XID) xact.XID {
	if stamp == xact.FrozenXID && by.IsNormal() {
		return by
	}
	return stamp
}

// VisibleTo reports whether a reader holding snap sees the segment.
func (e *SegmentMetaEntry) VisibleTo(snap *xact.Snapshot, o xact.Oracle) bool {
	xmin := effective(e.Xmin, e.CreatedBy)
	xmax := xact.InvalidXID
	if !e.IsAlive() {
		xmax = effective(e.Xmax, e.DeletedBy)
	}
	return snap.Visible(o, xmin, xmax)
}

// DeletesVisibleTo reports whether a reader holding snap sees the delete record.
func (e *SegmentMetaEntry) DeletesVisibleTo(snap *xact.Snapshot, o xact.Oracle) bool {
	if e.Delete == nil {
		return false
	}
	if !e.Delete.XID.IsNormal() {
		return true
	}
	return snap.XIDVisible(o, e.Delete.XID)
}

// Recyclable reports whether the entry's storage may be reclaimed: it is retired,
// neither stamp is in progress, the retiring transaction is behind the global
// horizon, and nobody holds a pin on any of its files. canCleanup reports whether a
// block is unpinned; nil skips the check.
func (e *SegmentMetaEntry) Recyclable(o xact.Oracle, canCleanup func(page.BlockNumber) bool) bool {
	if e.IsAlive() {
		return false
	}
	if o.IsInProgress(e.Xmin) || o.IsInProgress(e.Xmax) {
		return false
	}

	retiredBy := effective(e.Xmax, e.DeletedBy)
	if retiredBy.IsNormal() {
		if o.IsInProgress(retiredBy) || !retiredBy.Precedes(o.OldestXmin()) {
			return false
		}
		// A retirement that aborted leaves the segment visible to snapshots.
		// Placeholders are exempt: their file is unreachable either way.
		if !e.IsOrphanedDelete() && !o.DidCommit(retiredBy) {
			return false
		}
	}

	if canCleanup != nil {
		for _, blkno := range e.PinBlocks() {
			if !canCleanup(blkno) {
				return false
			}
		}
	}
	return true
}
