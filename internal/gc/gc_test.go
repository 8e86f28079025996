package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagedir/internal/catalog"
	"github.com/hupe1980/pagedir/internal/chain"
	"github.com/hupe1980/pagedir/internal/page"
	"github.com/hupe1980/pagedir/internal/reconcile"
	"github.com/hupe1980/pagedir/internal/xact"
)

type env struct {
	m   *page.Manager
	cat *catalog.Catalog
	tm  *xact.Manager
	rec *reconcile.Reconciler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	m, err := page.NewManager(page.NewMemStore())
	require.NoError(t, err)
	cat, err := catalog.Open(m)
	require.NoError(t, err)
	return &env{m: m, cat: cat, tm: xact.NewManager(), rec: reconcile.New(cat)}
}

func (e *env) file(t *testing.T, path string) map[string]chain.FileEntry {
	t.Helper()
	bl, err := chain.CreateBytesList(e.m)
	require.NoError(t, err)
	fe, err := bl.Write(t.Context(), []byte(path))
	require.NoError(t, err)
	return map[string]chain.FileEntry{path: fe}
}

func (e *env) commit(t *testing.T, txn xact.Txn, previous, next []catalog.SegmentMeta, files map[string]chain.FileEntry) {
	t.Helper()
	_, err := e.rec.SaveNewMetas(t.Context(), txn, previous, next, 1, files)
	require.NoError(t, err)
	if tx, ok := txn.(*xact.Transaction); ok {
		require.NoError(t, tx.Commit())
	}
}

func TestCollect_Merged(t *testing.T) {
	ctx := t.Context()
	e := newEnv(t)
	c := New(e.cat, e.tm)

	a := catalog.SegmentMeta{ID: catalog.NewSegmentID(), MaxDoc: 1}
	b := catalog.SegmentMeta{ID: catalog.NewSegmentID(), MaxDoc: 1}
	files := e.file(t, catalog.Path(a.ID, catalog.Postings))
	for k, v := range e.file(t, catalog.Path(b.ID, catalog.Postings)) {
		files[k] = v
	}
	e.commit(t, e.tm.Begin(), nil, []catalog.SegmentMeta{a, b}, files)

	holder := e.tm.TakeSnapshot(nil)
	merged := catalog.SegmentMeta{ID: catalog.NewSegmentID(), MaxDoc: 2}
	e.commit(t, e.tm.Begin(), []catalog.SegmentMeta{a, b}, []catalog.SegmentMeta{merged},
		e.file(t, catalog.Path(merged.ID, catalog.Postings)))

	stats, err := c.Collect(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Entries, "an older snapshot still sees the inputs")

	holder.Release()
	free := e.m.FreeBlocks()
	stats, err = c.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Entries: 2, Chains: 2}, stats)
	assert.Greater(t, e.m.FreeBlocks(), free)

	left, err := e.cat.Entries().List(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, merged.ID, left[0].SegmentID)

	stats, err = c.Collect(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats)
}

func TestCollect_Orphans(t *testing.T) {
	ctx := t.Context()
	e := newEnv(t)
	c := New(e.cat, e.tm)

	d := catalog.SegmentMeta{ID: catalog.NewSegmentID(), MaxDoc: 10}
	e.commit(t, e.tm.Begin(), nil, []catalog.SegmentMeta{d}, e.file(t, catalog.Path(d.ID, catalog.Postings)))

	prev := d
	for n := uint32(1); n <= 3; n++ {
		next := d
		next.Deletes = &catalog.DeleteMeta{NumDeletedDocs: n}
		e.commit(t, xact.NoTxn, []catalog.SegmentMeta{prev}, []catalog.SegmentMeta{next}, e.file(t, catalog.Path(d.ID, catalog.Delete)))
		prev = next
	}

	stats, err := c.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Entries: 2, Orphans: 2, Chains: 2}, stats)

	got, err := e.cat.Lookup(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), got.NumDeletedDocs())
}

func TestCollect_SameDeleteFileTwice(t *testing.T) {
	ctx := t.Context()
	e := newEnv(t)
	c := New(e.cat, e.tm)

	d := catalog.SegmentMeta{ID: catalog.NewSegmentID(), MaxDoc: 10}
	e.commit(t, e.tm.Begin(), nil, []catalog.SegmentMeta{d}, e.file(t, catalog.Path(d.ID, catalog.Postings)))

	path := catalog.Path(d.ID, catalog.Delete)
	delFile := e.file(t, path)
	withDeletes := d
	withDeletes.Deletes = &catalog.DeleteMeta{NumDeletedDocs: 2}
	for _, previous := range []catalog.SegmentMeta{d, withDeletes} {
		rs, _, err := e.rec.Reconcile(ctx, xact.NoTxn, []catalog.SegmentMeta{previous}, []catalog.SegmentMeta{withDeletes}, 1, delFile)
		require.NoError(t, err)
		assert.Zero(t, rs.Orphaned)
	}

	stats, err := c.Collect(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats)

	// Fresh allocations must not reuse the live delete file.
	for range 4 {
		e.file(t, "filler")
	}
	data, err := chain.OpenBytesList(e.m, delFile[path].StartingBlock).ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, path, string(data))
}

func TestCollect_Pinned(t *testing.T) {
	ctx := t.Context()
	e := newEnv(t)
	c := New(e.cat, e.tm)

	a := catalog.SegmentMeta{ID: catalog.NewSegmentID(), MaxDoc: 1}
	files := e.file(t, catalog.Path(a.ID, catalog.Postings))
	e.commit(t, e.tm.Begin(), nil, []catalog.SegmentMeta{a}, files)
	e.commit(t, e.tm.Begin(), []catalog.SegmentMeta{a}, nil, nil)

	pin, err := e.m.Pin(files[catalog.Path(a.ID, catalog.Postings)].StartingBlock)
	require.NoError(t, err)

	stats, err := c.Collect(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Entries)

	pin.Release()
	stats, err = c.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
}

func TestCollect_Merges(t *testing.T) {
	ctx := t.Context()
	e := newEnv(t)
	c := New(e.cat, e.tm)

	txn := e.tm.Begin()
	_, err := e.cat.MergeList().AddSegmentIDs(ctx, txn, []catalog.SegmentID{catalog.NewSegmentID()})
	require.NoError(t, err)

	stats, err := c.Collect(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Merges)

	require.NoError(t, txn.Commit())
	stats, err = c.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Merges)
}
