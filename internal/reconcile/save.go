package reconcile

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/hupe1980/pagedir/internal/catalog"
	"github.com/hupe1980/pagedir/internal/chain"
	"github.com/hupe1980/pagedir/internal/xact"
)

// SaveMetas persists an index commit. Schema and settings are written the first
// time they are seen and kept afterwards. Segments are reconciled with
// SaveNewMetas unless next lists none.
func (r *Reconciler) SaveMetas(
	ctx context.Context,
	txn xact.Txn,
	previous, next *catalog.IndexMeta,
	files map[string]chain.FileEntry,
) (Stats, map[string]chain.FileEntry, error) {
	if next == nil {
		return Stats{}, nil, errors.AssertionFailedf("reconcile: nil index meta")
	}
	if err := writeOnce(ctx, r.cat.Schema(), next.Schema); err != nil {
		return Stats{}, nil, errors.Wrap(err, "reconcile: write schema")
	}
	if err := writeOnce(ctx, r.cat.Settings(), next.Settings); err != nil {
		return Stats{}, nil, errors.Wrap(err, "reconcile: write settings")
	}
	if len(next.Segments) == 0 {
		return Stats{}, files, nil
	}

	var prev []catalog.SegmentMeta
	if previous != nil {
		prev = previous.Segments
	}
	return r.saveNewMetas(ctx, txn, prev, next.Segments, next.Opstamp, files)
}

func writeOnce(ctx context.Context, bl *chain.BytesList, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	empty, err := bl.IsEmpty()
	if err != nil || !empty {
		return err
	}
	if _, err := bl.Write(ctx, data); err != nil && !errors.Is(err, chain.ErrNotEmpty) {
		return err
	}
	return nil
}
