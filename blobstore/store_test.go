package blobstore

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagedir/internal/fs"
)

func stores(t *testing.T) map[string]BlobStore {
	return map[string]BlobStore{
		"memory": NewMemoryStore(),
		"local":  NewLocalStore(t.TempDir()),
	}
}

func TestBlobStore_Lifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			data := []byte("hello world, this is a checkpoint")

			w, err := store.Create(ctx, "PAGES-000001.bin")
			require.NoError(t, err)
			n, err := w.Write(data)
			require.NoError(t, err)
			require.Equal(t, len(data), n)
			require.NoError(t, w.Sync())
			require.NoError(t, w.Close())

			blob, err := store.Open(ctx, "PAGES-000001.bin")
			require.NoError(t, err)
			defer blob.Close()
			require.Equal(t, int64(len(data)), blob.Size())

			buf := make([]byte, 5)
			n, err = blob.ReadAt(ctx, buf, 6)
			require.NoError(t, err)
			require.Equal(t, 5, n)
			require.Equal(t, "world", string(buf))

			r, err := blob.ReadRange(ctx, 13, 4)
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			require.Equal(t, "this", string(got))

			require.NoError(t, store.Put(ctx, "CURRENT", []byte("PAGES-000001.bin")))
			require.NoError(t, store.Put(ctx, "PAGES-000002.bin", nil))

			names, err := store.List(ctx, "")
			require.NoError(t, err)
			require.Equal(t, []string{"CURRENT", "PAGES-000001.bin", "PAGES-000002.bin"}, names)

			names, err = store.List(ctx, "PAGES-")
			require.NoError(t, err)
			require.Equal(t, []string{"PAGES-000001.bin", "PAGES-000002.bin"}, names)

			current, err := ReadAll(ctx, store, "CURRENT")
			require.NoError(t, err)
			require.Equal(t, "PAGES-000001.bin", string(current))

			empty, err := ReadAll(ctx, store, "PAGES-000002.bin")
			require.NoError(t, err)
			require.Empty(t, empty)

			require.NoError(t, store.Delete(ctx, "PAGES-000001.bin"))
			require.NoError(t, store.Delete(ctx, "PAGES-000001.bin"))

			_, err = store.Open(ctx, "PAGES-000001.bin")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBlobStore_ReadBoundaries(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, "b", []byte("0123456789")))

			blob, err := store.Open(ctx, "b")
			require.NoError(t, err)
			defer blob.Close()

			r, err := blob.ReadRange(ctx, 8, 5)
			require.NoError(t, err)
			got, _ := io.ReadAll(r)
			assert.Equal(t, "89", string(got))

			r, err = blob.ReadRange(ctx, 20, 5)
			require.NoError(t, err)
			got, _ = io.ReadAll(r)
			assert.Empty(t, got)

			buf := make([]byte, 4)
			n, err := blob.ReadAt(ctx, buf, 8)
			assert.Equal(t, 2, n)
			assert.ErrorIs(t, err, io.EOF)

			_, err = blob.ReadAt(ctx, buf, 10)
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestBlobStore_Canceled(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := store.Put(ctx, "x", []byte("x"))
			require.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data := []byte("abc")
	require.NoError(t, store.Put(ctx, "a", data))
	data[0] = 'x'

	got, err := ReadAll(ctx, store, "a")
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))
}

func TestLocalStore_FailedSyncLeavesNoBlob(t *testing.T) {
	ctx := context.Background()
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("PAGES", fs.Fault{FailOnSync: true})

	store := NewLocalStore(t.TempDir(), WithFileSystem(ffs))
	err := store.Put(ctx, "PAGES-000001.bin", []byte("pages"))
	require.Error(t, err)

	_, err = store.Open(ctx, "PAGES-000001.bin")
	require.ErrorIs(t, err, ErrNotFound)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	store := NewLocalStore(t.TempDir() + "/missing")
	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, names)
}
