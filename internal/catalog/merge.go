package catalog

import (
	"context"
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/hupe1980/pagedir/internal/chain"
	"github.com/hupe1980/pagedir/internal/page"
	"github.com/hupe1980/pagedir/internal/xact"
)

// MergeEntry records a merge in flight: the transaction running it and the byte
// chain listing the segments it consumes.
type MergeEntry struct {
	XID        xact.XID
	SegmentIDs chain.FileEntry
}

// Recyclable reports whether the merge has finished.
func (e MergeEntry) Recyclable(o xact.Oracle) bool {
	return !o.IsInProgress(e.XID)
}

type mergeEntryCodec struct{}

func (mergeEntryCodec) Encode(e MergeEntry) ([]byte, error) {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:], uint32(e.XID))
	binary.LittleEndian.PutUint32(b[4:], uint32(e.SegmentIDs.StartingBlock))
	binary.LittleEndian.PutUint64(b[8:], e.SegmentIDs.TotalBytes)
	return b, nil
}

func (mergeEntryCodec) Decode(b []byte) (MergeEntry, error) {
	if len(b) != 16 {
		return MergeEntry{}, errors.AssertionFailedf("catalog: merge entry of %d bytes", len(b))
	}
	return MergeEntry{
		XID: xact.XID(binary.LittleEndian.Uint32(b[0:])),
		SegmentIDs: chain.FileEntry{
			StartingBlock: page.BlockNumber(binary.LittleEndian.Uint32(b[4:])),
			TotalBytes:    binary.LittleEndian.Uint64(b[8:]),
		},
	}, nil
}

// MergeList tracks segments that merges are consuming so they are not picked as
// merge inputs twice.
type MergeList struct {
	m    *page.Manager
	list *chain.ItemList[MergeEntry]
}

// AddSegmentIDs records that txn is merging ids.
func (l *MergeList) AddSegmentIDs(ctx context.Context, txn xact.Txn, ids []SegmentID) (MergeEntry, error) {
	if !txn.Active() {
		return MergeEntry{}, errors.AssertionFailedf("catalog: merge started outside a transaction")
	}
	bl, err := chain.CreateBytesList(l.m)
	if err != nil {
		return MergeEntry{}, err
	}
	fe, err := bl.Write(ctx, EncodeSegmentIDs(ids))
	if err != nil {
		_ = bl.ReturnToFSM(ctx)
		return MergeEntry{}, err
	}
	entry := MergeEntry{XID: txn.XID(), SegmentIDs: fe}
	if err := l.list.AddItems(ctx, []MergeEntry{entry}, page.InvalidBlockNumber); err != nil {
		_ = bl.ReturnToFSM(ctx)
		return MergeEntry{}, err
	}
	return entry, nil
}

func (l *MergeList) readIDs(ctx context.Context, e MergeEntry) ([]SegmentID, error) {
	raw, err := chain.OpenBytesList(l.m, e.SegmentIDs.StartingBlock).ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return DecodeSegmentIDs(raw)
}

// ListSegmentIDs returns the ids consumed by merges that are still running.
func (l *MergeList) ListSegmentIDs(ctx context.Context, o xact.Oracle) (map[SegmentID]struct{}, error) {
	entries, err := l.list.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[SegmentID]struct{})
	for _, e := range entries {
		if e.Recyclable(o) {
			continue
		}
		ids, err := l.readIDs(ctx, e)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// Entries returns every recorded merge.
func (l *MergeList) Entries(ctx context.Context) ([]MergeEntry, error) {
	return l.list.List(ctx)
}

// RemoveEntry ends the merge recorded by e and frees its id list.
func (l *MergeList) RemoveEntry(ctx context.Context, e MergeEntry) error {
	removed, err := l.list.Retain(ctx, func(x MergeEntry) bool { return x != e })
	if err != nil {
		return err
	}
	if len(removed) == 0 {
		return errors.Wrapf(chain.ErrNotFound, "merge entry of xid %d", uint32(e.XID))
	}
	return chain.OpenBytesList(l.m, e.SegmentIDs.StartingBlock).ReturnToFSM(ctx)
}

// GarbageCollect drops entries of finished merges and frees their id lists. It
// returns the number of entries removed.
func (l *MergeList) GarbageCollect(ctx context.Context, o xact.Oracle) (int, error) {
	removed, err := l.list.Retain(ctx, func(e MergeEntry) bool { return !e.Recyclable(o) })
	for _, e := range removed {
		if ferr := chain.OpenBytesList(l.m, e.SegmentIDs.StartingBlock).ReturnToFSM(ctx); ferr != nil && err == nil {
			err = ferr
		}
	}
	return len(removed), err
}
