package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pages")
	require.NoError(t, Default.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, "pages.db")
	f, err := Default.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	_, err = f.WriteAt([]byte("page"), 8192)
	require.NoError(t, err)
	require.NoError(t, f.Sync())

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(8196), info.Size())
	require.NoError(t, f.Close())

	entries, err := Default.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	renamed := filepath.Join(dir, "pages.old")
	require.NoError(t, Default.Rename(path, renamed))
	require.NoError(t, Default.Remove(renamed))
	_, err = Default.OpenFile(renamed, os.O_RDONLY, 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFaultyFS_WriteLimit(t *testing.T) {
	ffs := NewFaultyFS(nil)
	ffs.AddRule("pages", Fault{FailAfterBytes: 8})

	f, err := ffs.OpenFile(filepath.Join(t.TempDir(), "pages.db"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	n, err := f.WriteAt([]byte("abcd"), 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	buf := make([]byte, 4)
	_, err = f.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(buf))

	_, err = f.WriteAt([]byte("efghi"), 4)
	require.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 1, ffs.Faults())
}

func TestFaultyFS_Rules(t *testing.T) {
	dir := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule(".bin", Fault{FailOnSync: true})
	ffs.AddRule("CURRENT", Fault{FailOnRename: true})
	ffs.AddRule("keep.bin", Fault{})

	open := func(name string) File {
		f, err := ffs.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_RDWR, 0o644)
		require.NoError(t, err)
		t.Cleanup(func() { _ = f.Close() })
		return f
	}

	assert.ErrorIs(t, open("PAGES-000001.bin").Sync(), ErrInjected)
	// The longest matching pattern wins.
	assert.NoError(t, open("keep.bin").Sync())
	assert.NoError(t, open("other").Sync())
	assert.Equal(t, 2, ffs.Syncs())

	open("CURRENT.tmp")
	err := ffs.Rename(filepath.Join(dir, "CURRENT.tmp"), filepath.Join(dir, "CURRENT"))
	require.ErrorIs(t, err, ErrInjected)

	ffs.ClearRules()
	require.NoError(t, ffs.Rename(filepath.Join(dir, "CURRENT.tmp"), filepath.Join(dir, "CURRENT")))
	entries, err := ffs.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestFaultyFS_CustomError(t *testing.T) {
	boom := os.ErrPermission
	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule("pages", Fault{FailOnClose: true, Err: boom})

	f, err := ffs.OpenFile(filepath.Join(t.TempDir(), "pages.db"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("x"))
	require.NoError(t, err)
	assert.ErrorIs(t, f.Close(), boom)
}
