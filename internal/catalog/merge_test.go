package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagedir/internal/chain"
	"github.com/hupe1980/pagedir/internal/xact"
)

func TestMergeList(t *testing.T) {
	ctx := t.Context()
	c := newCatalog(t)
	tm := xact.NewManager()
	ml := c.MergeList()

	a, b, d := NewSegmentID(), NewSegmentID(), NewSegmentID()

	t1 := tm.Begin()
	e1, err := ml.AddSegmentIDs(ctx, t1, []SegmentID{a, b})
	require.NoError(t, err)
	t2 := tm.Begin()
	_, err = ml.AddSegmentIDs(ctx, t2, []SegmentID{d})
	require.NoError(t, err)

	busy, err := ml.ListSegmentIDs(ctx, tm)
	require.NoError(t, err)
	assert.Len(t, busy, 3)
	assert.Contains(t, busy, a)

	require.NoError(t, t2.Commit())
	busy, err = ml.ListSegmentIDs(ctx, tm)
	require.NoError(t, err)
	assert.Len(t, busy, 2)
	assert.NotContains(t, busy, d)

	freeBefore := c.Manager().FreeBlocks()
	n, err := ml.GarbageCollect(ctx, tm)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Greater(t, c.Manager().FreeBlocks(), freeBefore)

	require.NoError(t, ml.RemoveEntry(ctx, e1))
	entries, err := ml.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	err = ml.RemoveEntry(ctx, e1)
	require.ErrorIs(t, err, chain.ErrNotFound)
	require.NoError(t, t1.Abort())
}

func TestMergeList_NeedsTransaction(t *testing.T) {
	c := newCatalog(t)
	_, err := c.MergeList().AddSegmentIDs(t.Context(), xact.NoTxn, []SegmentID{NewSegmentID()})
	require.Error(t, err)
}
