package chain

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/hupe1980/pagedir/internal/page"
)

const (
	itemListMagic  uint32 = 0x4c494450 // "PDIL"
	bytesListMagic uint32 = 0x4c424450 // "PDBL"

	headerLen = 20
)

// listHeader is stored in the contents area of a chain's header page.
type listHeader struct {
	magic uint32
	start page.BlockNumber
	last  page.BlockNumber
	total uint64
}

func (h listHeader) write(p page.Page) {
	c := p.Contents()
	binary.LittleEndian.PutUint32(c[0:], h.magic)
	binary.LittleEndian.PutUint32(c[4:], uint32(h.start))
	binary.LittleEndian.PutUint32(c[8:], uint32(h.last))
	binary.LittleEndian.PutUint64(c[12:], h.total)
	p.SetContentsLen(headerLen)
}

func readListHeader(p page.Page, magic uint32, blkno page.BlockNumber) (listHeader, error) {
	if p.ContentsLen() != headerLen {
		return listHeader{}, errors.AssertionFailedf("chain: block %d is not a chain header", blkno)
	}
	c := p.Contents()
	h := listHeader{
		magic: binary.LittleEndian.Uint32(c[0:]),
		start: page.BlockNumber(binary.LittleEndian.Uint32(c[4:])),
		last:  page.BlockNumber(binary.LittleEndian.Uint32(c[8:])),
		total: binary.LittleEndian.Uint64(c[12:]),
	}
	if h.magic != magic {
		return listHeader{}, errors.AssertionFailedf("chain: block %d has magic %#x, want %#x", blkno, h.magic, magic)
	}
	return h, nil
}

func loadHeader(m *page.Manager, blkno page.BlockNumber, magic uint32) (listHeader, error) {
	buf, err := m.Get(blkno, page.LockShare)
	if err != nil {
		return listHeader{}, err
	}
	defer buf.Release()
	return readListHeader(buf.Page(), magic, blkno)
}

func storeHeader(m *page.Manager, blkno page.BlockNumber, h listHeader) error {
	buf, err := m.Get(blkno, page.LockExclusive)
	if err != nil {
		return err
	}
	defer buf.Release()
	h.write(buf.PageMut())
	return nil
}
