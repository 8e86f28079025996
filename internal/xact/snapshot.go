package xact

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// Snapshot is a consistent view of which transactions had committed when it was
// taken.
type Snapshot struct {
	// Xmin is the oldest xid running when the snapshot was taken. Every older xid
	// had finished.
	Xmin XID
	// Xmax is the first xid not yet assigned. It and every newer xid are invisible.
	Xmax XID
	// InProgress holds the xids in [Xmin, Xmax) that were running.
	InProgress *roaring.Bitmap
	// CurXID is the xid of the transaction that owns the snapshot, if any. Its own
	// effects are visible.
	CurXID XID

	release func()
}

// Running reports whether xid counts as in progress for this snapshot.
func (s *Snapshot) Running(xid XID) bool {
	if !xid.IsNormal() {
		return false
	}
	if !xid.Precedes(s.Xmax) {
		return true
	}
	if xid.Precedes(s.Xmin) {
		return false
	}
	return s.InProgress != nil && s.InProgress.Contains(uint32(xid))
}

// XIDVisible reports whether the effects of xid are visible to the snapshot.
func (s *Snapshot) XIDVisible(o Oracle, xid XID) bool {
	switch {
	case xid == InvalidXID:
		return false
	case !xid.IsNormal():
		return true
	case xid == s.CurXID:
		return true
	case s.Running(xid):
		return false
	}
	return o.DidCommit(xid)
}

// Visible applies read visibility to an (xmin, xmax) pair: created by a visible
// transaction and not deleted by one.
func (s *Snapshot) Visible(o Oracle, xmin, xmax XID) bool {
	if !s.XIDVisible(o, xmin) {
		return false
	}
	return xmax == InvalidXID || !s.XIDVisible(o, xmax)
}

// Release unregisters the snapshot from the manager that took it, letting the
// global horizon advance past it.
func (s *Snapshot) Release() {
	if s == nil || s.release == nil {
		return
	}
	s.release()
	s.release = nil
}
