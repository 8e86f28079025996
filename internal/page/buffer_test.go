package page

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagedir/internal/fs"
	"github.com/hupe1980/pagedir/internal/resource"
)

func newBlock(t *testing.T, m *Manager, item string) BlockNumber {
	t.Helper()
	buf, err := m.New()
	require.NoError(t, err)
	defer buf.Release()
	if item != "" {
		require.NotEqual(t, InvalidOffsetNumber, buf.PageMut().AddItem([]byte(item)))
	}
	return buf.Number()
}

func TestManager_FlushAndReopen(t *testing.T) {
	ctx := t.Context()
	store := NewMemStore()

	m, err := NewManager(store)
	require.NoError(t, err)
	b0 := newBlock(t, m, "first")
	b1 := newBlock(t, m, "second")
	assert.Equal(t, BlockNumber(0), b0)
	assert.Equal(t, BlockNumber(1), b1)
	require.NoError(t, m.Flush(ctx))

	m2, err := NewManager(store)
	require.NoError(t, err)
	assert.Equal(t, BlockNumber(2), m2.NumBlocks())

	buf, err := m2.Get(b1, LockShare)
	require.NoError(t, err)
	defer buf.Release()
	item, ok := buf.Page().Item(FirstOffsetNumber)
	require.True(t, ok)
	assert.Equal(t, "second", string(item))
}

func TestManager_InvalidBlock(t *testing.T) {
	m, err := NewManager(NewMemStore())
	require.NoError(t, err)

	_, err = m.Get(3, LockShare)
	assert.ErrorIs(t, err, ErrInvalidBlock)
	_, err = m.Get(InvalidBlockNumber, LockShare)
	assert.ErrorIs(t, err, ErrInvalidBlock)
}

func TestManager_ChecksumMismatch(t *testing.T) {
	store := NewMemStore()
	m, err := NewManager(store)
	require.NoError(t, err)
	newBlock(t, m, "data")
	require.NoError(t, m.Flush(t.Context()))

	store.pages[0][Size-20] ^= 0x1

	m2, err := NewManager(store)
	require.NoError(t, err)
	_, err = m2.Get(0, LockShare)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestBuffer_PageMutRequiresExclusive(t *testing.T) {
	m, err := NewManager(NewMemStore())
	require.NoError(t, err)
	blk := newBlock(t, m, "")

	buf, err := m.Get(blk, LockShare)
	require.NoError(t, err)
	defer buf.Release()
	assert.Panics(t, func() { buf.PageMut() })
}

func TestBuffer_ReleaseIdempotent(t *testing.T) {
	m, err := NewManager(NewMemStore())
	require.NoError(t, err)
	blk := newBlock(t, m, "")

	buf, err := m.Get(blk, LockExclusive)
	require.NoError(t, err)
	buf.Release()
	buf.Release()

	var nilBuf *Buffer
	nilBuf.Release()

	assert.True(t, m.CanCleanup(blk))
}

func TestManager_Exchange(t *testing.T) {
	m, err := NewManager(NewMemStore())
	require.NoError(t, err)
	b0 := newBlock(t, m, "a")
	b1 := newBlock(t, m, "b")

	first, err := m.Get(b0, LockShare)
	require.NoError(t, err)
	second, err := m.Exchange(b1, first, LockShare)
	require.NoError(t, err)
	defer second.Release()

	assert.True(t, m.CanCleanup(b0))
	assert.False(t, m.CanCleanup(b1))
}

func TestManager_Cleanup(t *testing.T) {
	m, err := NewManager(NewMemStore())
	require.NoError(t, err)
	blk := newBlock(t, m, "")

	pin, err := m.Pin(blk)
	require.NoError(t, err)
	assert.False(t, m.CanCleanup(blk))

	pin.Release()
	assert.True(t, m.CanCleanup(blk))
	assert.True(t, m.CanCleanup(InvalidBlockNumber))
}

func TestManager_FreeWaitsForScans(t *testing.T) {
	m, err := NewManager(NewMemStore())
	require.NoError(t, err)
	b0 := newBlock(t, m, "")
	newBlock(t, m, "")

	scan := m.BeginScan()
	m.Free(b0)
	assert.Equal(t, 1, m.FreeBlocks())

	// The scan may still follow a link into b0.
	assert.Equal(t, BlockNumber(2), newBlock(t, m, ""))

	scan.End()
	scan.End()
	assert.Equal(t, b0, newBlock(t, m, ""))
	assert.Equal(t, 0, m.FreeBlocks())
}

func TestManager_FreeWaitsForPins(t *testing.T) {
	m, err := NewManager(NewMemStore())
	require.NoError(t, err)
	b0 := newBlock(t, m, "")

	pin, err := m.Pin(b0)
	require.NoError(t, err)
	m.Free(b0)
	assert.Equal(t, BlockNumber(1), newBlock(t, m, ""))

	pin.Release()
	assert.Equal(t, b0, newBlock(t, m, ""))
}

func TestManager_ScanAfterFreeDoesNotBlockReuse(t *testing.T) {
	m, err := NewManager(NewMemStore())
	require.NoError(t, err)
	b0 := newBlock(t, m, "")

	m.Free(b0)
	scan := m.BeginScan()
	defer scan.End()
	assert.Equal(t, b0, newBlock(t, m, ""))
}

func TestManager_MemoryAccounting(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 2 * Size})
	m, err := NewManager(NewMemStore(), WithResourceController(rc))
	require.NoError(t, err)

	newBlock(t, m, "")
	newBlock(t, m, "")
	assert.Equal(t, int64(2*Size), rc.MemoryUsage())

	_, err = m.New()
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)

	require.NoError(t, m.Close(t.Context()))
	assert.Equal(t, int64(0), rc.MemoryUsage())
}

func TestManager_CopyPages(t *testing.T) {
	m, err := NewManager(NewMemStore())
	require.NoError(t, err)
	newBlock(t, m, "x")
	newBlock(t, m, "y")

	pages, err := m.CopyPages(t.Context())
	require.NoError(t, err)
	require.Len(t, pages, 2)

	m2, err := NewManager(NewMemStoreFrom(pages))
	require.NoError(t, err)
	buf, err := m2.Get(1, LockShare)
	require.NoError(t, err)
	defer buf.Release()
	item, _ := buf.Page().Item(FirstOffsetNumber)
	assert.Equal(t, "y", string(item))
}

func testStoreRoundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := t.Context()

	m, err := NewManager(store)
	require.NoError(t, err)
	for _, s := range []string{"a", "b", "c"} {
		newBlock(t, m, s)
	}
	require.NoError(t, m.Flush(ctx))

	n, err := store.NumBlocks()
	require.NoError(t, err)
	assert.Equal(t, BlockNumber(3), n)

	p := make(Page, Size)
	require.NoError(t, store.ReadPage(2, p))
	assert.True(t, p.VerifyChecksum())
	item, _ := p.Item(FirstOffsetNumber)
	assert.Equal(t, "c", string(item))

	require.NoError(t, store.ReadPage(10, p))
	assert.True(t, p.IsNew())

	require.NoError(t, m.Close(ctx))
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.db")
	store, err := OpenFileStore(nil, path)
	require.NoError(t, err)
	testStoreRoundTrip(t, store)

	reopened, err := OpenFileStore(fs.Default, path)
	require.NoError(t, err)
	defer reopened.Close()
	n, err := reopened.NumBlocks()
	require.NoError(t, err)
	assert.Equal(t, BlockNumber(3), n)
}

func TestFileStore_SyncFault(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("pages", fs.Fault{FailOnSync: true})

	store, err := OpenFileStore(ffs, filepath.Join(t.TempDir(), "pages.db"))
	require.NoError(t, err)
	defer store.Close()

	m, err := NewManager(store)
	require.NoError(t, err)
	newBlock(t, m, "x")
	assert.Error(t, m.Flush(t.Context()))
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "pages.sqlite"))
	require.NoError(t, err)
	testStoreRoundTrip(t, store)
}

func TestRestore(t *testing.T) {
	ctx := t.Context()
	m, err := NewManager(NewMemStore())
	require.NoError(t, err)
	newBlock(t, m, "first")
	b1 := newBlock(t, m, "second")

	pages, err := m.CopyPages(ctx)
	require.NoError(t, err)

	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "restored.sqlite"))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, Restore(store, pages))

	restored, err := NewManager(store)
	require.NoError(t, err)
	buf, err := restored.Get(b1, LockShare)
	require.NoError(t, err)
	defer buf.Release()
	item, ok := buf.Page().Item(FirstOffsetNumber)
	require.True(t, ok)
	assert.Equal(t, "second", string(item))

	err = Restore(store, pages)
	assert.Error(t, err)
}
