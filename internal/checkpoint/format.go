package checkpoint

import (
	"context"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pagedir/internal/hash"
	"github.com/hupe1980/pagedir/internal/page"
)

// Image header layout (little endian):
//
//	magic    (4 bytes) - "PDCP"
//	version  (2 bytes)
//	codec    (1 byte)
//	reserved (1 byte)
//	pageSize (4 bytes)
//	npages   (4 bytes)
//	checksum (4 bytes) - CRC32C of everything after the header
//	reserved (4 bytes)
//
// The header is followed by one block per page, in block number order.
const (
	magic      uint32 = 0x50434450 // "PDCP"
	version    uint16 = 1
	headerSize        = 24
)

var (
	// ErrCorrupted is returned when an image fails to decode.
	ErrCorrupted = errors.New("checkpoint corrupted")

	// ErrChecksumMismatch is returned when an image body does not match its checksum.
	ErrChecksumMismatch = errors.New("checkpoint checksum mismatch")

	// ErrIncompatibleVersion is returned for images written by a newer format.
	ErrIncompatibleVersion = errors.New("incompatible checkpoint version")
)

// encode compresses pages concurrently and assembles the image.
func encode(ctx context.Context, pages []page.Page, c Compression, workers int) ([]byte, error) {
	blocks := make([][]byte, len(pages))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, p := range pages {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(p) != page.Size {
				return errors.AssertionFailedf("checkpoint: page %d has %d bytes", i, len(p))
			}
			b, err := compressBlock(p, c)
			if err != nil {
				return err
			}
			blocks[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	size := headerSize
	for _, b := range blocks {
		size += len(b)
	}
	out := make([]byte, headerSize, size)
	for _, b := range blocks {
		out = append(out, b...)
	}

	binary.LittleEndian.PutUint32(out[0:], magic)
	binary.LittleEndian.PutUint16(out[4:], version)
	out[6] = byte(c)
	binary.LittleEndian.PutUint32(out[8:], page.Size)
	binary.LittleEndian.PutUint32(out[12:], uint32(len(pages)))
	binary.LittleEndian.PutUint32(out[16:], hash.CRC32C(out[headerSize:]))
	return out, nil
}

// decode verifies an image and returns its pages.
func decode(ctx context.Context, data []byte, workers int) ([]page.Page, Compression, error) {
	if len(data) < headerSize {
		return nil, 0, errors.Wrapf(ErrCorrupted, "image of %d bytes", len(data))
	}
	if got := binary.LittleEndian.Uint32(data[0:]); got != magic {
		return nil, 0, errors.Wrapf(ErrCorrupted, "bad magic %#x", got)
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v > version {
		return nil, 0, errors.Wrapf(ErrIncompatibleVersion, "version %d", v)
	}
	c := Compression(data[6])
	if ps := binary.LittleEndian.Uint32(data[8:]); ps != page.Size {
		return nil, 0, errors.Wrapf(ErrCorrupted, "page size %d", ps)
	}
	n := int(binary.LittleEndian.Uint32(data[12:]))
	body := data[headerSize:]
	if want, got := binary.LittleEndian.Uint32(data[16:]), hash.CRC32C(body); want != got {
		return nil, 0, errors.Wrapf(ErrChecksumMismatch, "want %#x, got %#x", want, got)
	}

	blocks := make([][]byte, 0, n)
	for range n {
		block, rest, err := nextBlock(body)
		if err != nil {
			return nil, 0, err
		}
		blocks = append(blocks, block)
		body = rest
	}
	if len(body) != 0 {
		return nil, 0, errors.Wrapf(ErrCorrupted, "%d trailing bytes", len(body))
	}

	pages := make([]page.Page, n)
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, b := range blocks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := decompressBlock(b, c)
			if err != nil {
				return errors.Wrapf(err, "page %d", i)
			}
			if len(p) != page.Size {
				return errors.Wrapf(ErrCorrupted, "page %d has %d bytes", i, len(p))
			}
			pages[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return pages, c, nil
}
