package checkpoint

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagedir/blobstore"
	"github.com/hupe1980/pagedir/internal/fs"
	"github.com/hupe1980/pagedir/internal/page"
	"github.com/hupe1980/pagedir/internal/resource"
)

// testPages returns n pages with a few items each, plus one never-initialized page.
func testPages(t *testing.T, n int) []page.Page {
	t.Helper()
	pages := make([]page.Page, 0, n+1)
	for i := range n {
		p := make(page.Page, page.Size)
		p.Init()
		for j := range 3 {
			item := fmt.Appendf(nil, "page %d item %d", i, j)
			require.NotEqual(t, page.InvalidOffsetNumber, p.AddItem(item))
		}
		p.SetChecksum()
		pages = append(pages, p)
	}
	return append(pages, make(page.Page, page.Size))
}

func TestStore_RoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionSnappy, CompressionLZ4, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			ctx := context.Background()
			s := NewStore(blobstore.NewMemoryStore(), WithCompression(c), WithConcurrency(2))
			pages := testPages(t, 16)

			info, err := s.Save(ctx, pages)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), info.ID)
			assert.Equal(t, "PAGES-000001.bin", info.Name)
			assert.Equal(t, len(pages), info.Pages)
			if c != CompressionNone {
				assert.Less(t, info.Bytes, int64(len(pages)*page.Size))
			}

			img, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, c, img.Compression)
			require.Len(t, img.Pages, len(pages))
			for i := range pages {
				assert.Equal(t, pages[i], img.Pages[i], "page %d", i)
			}
			assert.True(t, img.Pages[0].VerifyChecksum())
		})
	}
}

func TestStore_NotFound(t *testing.T) {
	s := NewStore(blobstore.NewMemoryStore())
	_, err := s.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.LoadID(context.Background(), 3)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CurrentAdvances(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	s := NewStore(blobs)

	for i := 1; i <= 3; i++ {
		info, err := s.Save(ctx, testPages(t, i))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), info.ID)
	}

	current, err := blobstore.ReadAll(ctx, blobs, CurrentFileName)
	require.NoError(t, err)
	assert.Equal(t, "PAGES-000003.bin", string(current))

	img, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, img.Pages, 4)

	old, err := s.LoadID(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, old.Pages, 2)

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, ids)
}

func TestStore_Prune(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	s := NewStore(blobs)
	for range 5 {
		_, err := s.Save(ctx, testPages(t, 1))
		require.NoError(t, err)
	}

	n, err := s.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{4, 5}, ids)

	// CURRENT survives even when it is not among the newest images.
	require.NoError(t, blobs.Put(ctx, CurrentFileName, []byte(ImageName(4))))
	_, err = s.Save(ctx, testPages(t, 1))
	require.NoError(t, err)
	require.NoError(t, blobs.Put(ctx, CurrentFileName, []byte(ImageName(4))))

	n, err = s.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	ids, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{4, 6}, ids)
}

func TestStore_Corruption(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	s := NewStore(blobs)
	_, err := s.Save(ctx, testPages(t, 2))
	require.NoError(t, err)

	data, err := blobstore.ReadAll(ctx, blobs, ImageName(1))
	require.NoError(t, err)

	t.Run("checksum", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[len(bad)-1] ^= 0xff
		require.NoError(t, blobs.Put(ctx, ImageName(1), bad))
		_, err := s.Load(ctx)
		require.ErrorIs(t, err, ErrChecksumMismatch)
	})

	t.Run("magic", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[0] = 'X'
		require.NoError(t, blobs.Put(ctx, ImageName(1), bad))
		_, err := s.Load(ctx)
		require.ErrorIs(t, err, ErrCorrupted)
	})

	t.Run("version", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[4] = 9
		require.NoError(t, blobs.Put(ctx, ImageName(1), bad))
		_, err := s.Load(ctx)
		require.ErrorIs(t, err, ErrIncompatibleVersion)
	})

	t.Run("truncated", func(t *testing.T) {
		require.NoError(t, blobs.Put(ctx, ImageName(1), data[:10]))
		_, err := s.Load(ctx)
		require.ErrorIs(t, err, ErrCorrupted)
	})

	t.Run("current", func(t *testing.T) {
		require.NoError(t, blobs.Put(ctx, CurrentFileName, []byte("garbage")))
		_, err := s.Load(ctx)
		require.ErrorIs(t, err, ErrCorrupted)
	})

	t.Run("missing image", func(t *testing.T) {
		require.NoError(t, blobs.Put(ctx, CurrentFileName, []byte(ImageName(9))))
		_, err := s.Load(ctx)
		require.ErrorIs(t, err, ErrCorrupted)
		require.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_FailedWriteKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	ffs := fs.NewFaultyFS(nil)
	blobs := blobstore.NewLocalStore(t.TempDir(), blobstore.WithFileSystem(ffs))
	s := NewStore(blobs, WithCompression(CompressionLZ4))

	_, err := s.Save(ctx, testPages(t, 2))
	require.NoError(t, err)

	ffs.AddRule(ImageName(2), fs.Fault{FailOnSync: true})
	_, err = s.Save(ctx, testPages(t, 5))
	require.Error(t, err)

	img, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), img.ID)
	assert.Len(t, img.Pages, 3)
}

func TestStore_RateLimited(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 1})
	s := NewStore(blobstore.NewMemoryStore(), WithResourceController(rc), WithCompression(CompressionNone))

	_, err := s.Save(ctx, testPages(t, 1))
	require.Error(t, err)

	_, err = s.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionSnappy, CompressionLZ4, CompressionZstd} {
		got, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	got, err := ParseCompression("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, got)

	_, err = ParseCompression("brotli")
	require.Error(t, err)
	assert.Equal(t, "unknown", Compression(42).String())
}

func TestImageName(t *testing.T) {
	assert.Equal(t, "PAGES-000042.bin", ImageName(42))

	id, ok := parseImageName(ImageName(1234567))
	require.True(t, ok)
	assert.Equal(t, uint64(1234567), id)

	for _, bad := range []string{"CURRENT", "PAGES-.bin", "PAGES-000000.bin", "PAGES-1.bin.tmp", "MANIFEST-000001.bin"} {
		_, ok := parseImageName(bad)
		assert.False(t, ok, bad)
	}
}

func TestCompressBlock_RoundTrip(t *testing.T) {
	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i*7919 + i>>3)
	}
	for _, c := range []Compression{CompressionSnappy, CompressionLZ4, CompressionZstd} {
		block, err := compressBlock(data, c)
		require.NoError(t, err)
		got, err := decompressBlock(block, c)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}
