package chain

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/hupe1980/pagedir/internal/page"
)

// FileEntry points at a byte chain and records how many bytes it holds.
type FileEntry struct {
	StartingBlock page.BlockNumber
	TotalBytes    uint64
}

// BytesList stores one byte payload across a chain of pages. The payload is written
// once; the chain is never modified afterwards.
type BytesList struct {
	m      *page.Manager
	header page.BlockNumber
}

// CreateBytesList allocates an empty byte chain.
func CreateBytesList(m *page.Manager) (*BytesList, error) {
	buf, err := m.New()
	if err != nil {
		return nil, err
	}
	defer buf.Release()
	listHeader{
		magic: bytesListMagic,
		start: page.InvalidBlockNumber,
		last:  page.InvalidBlockNumber,
	}.write(buf.PageMut())
	return &BytesList{m: m, header: buf.Number()}, nil
}

// OpenBytesList opens the byte chain rooted at header.
func OpenBytesList(m *page.Manager, header page.BlockNumber) *BytesList {
	return &BytesList{m: m, header: header}
}

// Header returns the block number of the chain's header page.
func (b *BytesList) Header() page.BlockNumber {
	return b.header
}

// Len returns the number of bytes stored.
func (b *BytesList) Len() (uint64, error) {
	h, err := loadHeader(b.m, b.header, bytesListMagic)
	if err != nil {
		return 0, err
	}
	return h.total, nil
}

// IsEmpty reports whether nothing has been written.
func (b *BytesList) IsEmpty() (bool, error) {
	n, err := b.Len()
	return n == 0, err
}

// Write stores data and returns the entry describing it. It fails with ErrNotEmpty
// if the chain already holds data.
func (b *BytesList) Write(ctx context.Context, data []byte) (FileEntry, error) {
	hbuf, err := b.m.Get(b.header, page.LockExclusive)
	if err != nil {
		return FileEntry{}, err
	}
	defer hbuf.Release()

	h, err := readListHeader(hbuf.Page(), bytesListMagic, b.header)
	if err != nil {
		return FileEntry{}, err
	}
	if h.total > 0 || h.start.Valid() {
		return FileEntry{}, errors.Wrapf(ErrNotEmpty, "chain at block %d", b.header)
	}

	var (
		prev    *page.Buffer
		written []page.BlockNumber
	)
	defer func() { prev.Release() }()
	fail := func(err error) (FileEntry, error) {
		prev.Release()
		b.m.Free(written...)
		return FileEntry{}, err
	}

	for rest := data; len(rest) > 0; {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		nb, err := b.m.New()
		if err != nil {
			return fail(err)
		}
		p := nb.PageMut()
		n := copy(p.Contents(), rest)
		p.SetContentsLen(n)
		rest = rest[n:]

		written = append(written, nb.Number())
		if prev != nil {
			prev.PageMut().SetNext(nb.Number())
			prev.Release()
		}
		prev = nb
	}

	if len(written) > 0 {
		h.start = written[0]
		h.last = written[len(written)-1]
	}
	h.total = uint64(len(data))
	h.write(hbuf.PageMut())
	return FileEntry{StartingBlock: b.header, TotalBytes: h.total}, nil
}

// ReadAll returns the stored payload.
func (b *BytesList) ReadAll(ctx context.Context) ([]byte, error) {
	h, err := loadHeader(b.m, b.header, bytesListMagic)
	if err != nil {
		return nil, err
	}
	return b.read(ctx, h, 0, h.total)
}

// ReadRange returns n bytes starting at off. Reads past the end are truncated.
func (b *BytesList) ReadRange(ctx context.Context, off, n uint64) ([]byte, error) {
	h, err := loadHeader(b.m, b.header, bytesListMagic)
	if err != nil {
		return nil, err
	}
	if off >= h.total {
		return []byte{}, nil
	}
	return b.read(ctx, h, off, min(n, h.total-off))
}

func (b *BytesList) read(ctx context.Context, h listHeader, off, n uint64) ([]byte, error) {
	out := make([]byte, 0, n)
	if n == 0 {
		return out, nil
	}
	scan := b.m.BeginScan()
	defer scan.End()

	var pos uint64
	err := b.walk(ctx, h.start, func(p page.Page) bool {
		chunk := p.Contents()[:p.ContentsLen()]
		end := pos + uint64(len(chunk))
		if end > off {
			lo := uint64(0)
			if off > pos {
				lo = off - pos
			}
			hi := min(uint64(len(chunk)), off+n-pos)
			out = append(out, chunk[lo:hi]...)
		}
		pos = end
		return uint64(len(out)) >= n
	})
	if err != nil {
		return nil, err
	}
	if uint64(len(out)) != n {
		return nil, errors.AssertionFailedf("chain: byte chain %d holds %d of %d bytes", b.header, len(out), n)
	}
	return out, nil
}

func (b *BytesList) walk(ctx context.Context, start page.BlockNumber, fn func(page.Page) bool) error {
	if !start.Valid() {
		return nil
	}
	buf, err := b.m.Get(start, page.LockShare)
	if err != nil {
		return err
	}
	defer func() { buf.Release() }()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if fn(buf.Page()) {
			return nil
		}
		next := buf.Page().Next()
		if !next.Valid() {
			return nil
		}
		if buf, err = b.m.Exchange(next, buf, page.LockShare); err != nil {
			return err
		}
	}
}

// FreeableBlocks returns the header and every data page of the chain.
func (b *BytesList) FreeableBlocks(ctx context.Context) ([]page.BlockNumber, error) {
	h, err := loadHeader(b.m, b.header, bytesListMagic)
	if err != nil {
		return nil, err
	}
	blocks := []page.BlockNumber{b.header}
	blkno := h.start
	for blkno.Valid() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf, err := b.m.Get(blkno, page.LockShare)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, blkno)
		blkno = buf.Page().Next()
		buf.Release()
	}
	return blocks, nil
}

// ReturnToFSM frees every page of the chain. The chain must no longer be referenced.
func (b *BytesList) ReturnToFSM(ctx context.Context) error {
	blocks, err := b.FreeableBlocks(ctx)
	if err != nil {
		return err
	}
	b.m.Free(blocks...)
	return nil
}
