package page

import (
	"encoding/binary"
	"math"

	"github.com/hupe1980/pagedir/internal/hash"
)

// BlockNumber addresses a page within a store.
type BlockNumber uint32

// OffsetNumber addresses an item within a page. Valid offsets start at FirstOffsetNumber.
type OffsetNumber uint16

const (
	// Size is the fixed size of every page in bytes.
	Size = 8192

	// InvalidBlockNumber terminates page chains.
	InvalidBlockNumber BlockNumber = math.MaxUint32

	// InvalidOffsetNumber is returned when an item could not be placed.
	InvalidOffsetNumber OffsetNumber = 0

	// FirstOffsetNumber is the offset of the first item on a page.
	FirstOffsetNumber OffsetNumber = 1

	headerSize  = 16
	lineSize    = 4
	specialSize = 8
)

// Header layout:
//
//	lower    (2 bytes) - end of the line pointer array, or of the contents area
//	upper    (2 bytes) - start of item data
//	special  (2 bytes) - start of the special area
//	reserved (2 bytes)
//	checksum (4 bytes) - CRC32C of the page with this field zeroed
//	reserved (4 bytes)
//
// Special area (last 8 bytes):
//
//	next     (4 bytes) - next block in the chain
//	reserved (4 bytes)
const (
	offLower    = 0
	offUpper    = 2
	offSpecial  = 4
	offChecksum = 8
)

// MaxItemSize is the largest item that fits on an empty page.
const MaxItemSize = Size - headerSize - specialSize - lineSize

// MaxContentsSize is the largest contents area of a page used without line pointers.
const MaxContentsSize = Size - headerSize - specialSize

// Page is a view over a fixed-size page buffer.
type Page []byte

// Valid reports whether b addresses a page.
func (b BlockNumber) Valid() bool {
	return b != InvalidBlockNumber
}

// Init formats p as an empty page with an unlinked special area.
func (p Page) Init() {
	clear(p)
	p.putUint16(offLower, headerSize)
	p.putUint16(offUpper, Size-specialSize)
	p.putUint16(offSpecial, Size-specialSize)
	p.SetNext(InvalidBlockNumber)
}

// IsNew reports whether p has never been initialized.
func (p Page) IsNew() bool {
	return p.uint16(offUpper) == 0
}

func (p Page) uint16(off int) uint16 {
	return binary.LittleEndian.Uint16(p[off:])
}

func (p Page) putUint16(off int, v uint16) {
	binary.LittleEndian.PutUint16(p[off:], v)
}

func (p Page) lower() int   { return int(p.uint16(offLower)) }
func (p Page) upper() int   { return int(p.uint16(offUpper)) }
func (p Page) special() int { return int(p.uint16(offSpecial)) }

// Next returns the next block of the chain this page belongs to.
func (p Page) Next() BlockNumber {
	return BlockNumber(binary.LittleEndian.Uint32(p[p.special():]))
}

// SetNext links p to the given block.
func (p Page) SetNext(b BlockNumber) {
	binary.LittleEndian.PutUint32(p[p.special():], uint32(b))
}

// MaxOffset returns the offset of the last item, or InvalidOffsetNumber if the page is empty.
func (p Page) MaxOffset() OffsetNumber {
	return OffsetNumber((p.lower() - headerSize) / lineSize)
}

// FreeSpace returns the number of item bytes that can still be added, accounting for
// the line pointer of the new item.
func (p Page) FreeSpace() int {
	free := p.upper() - p.lower() - lineSize
	if free < 0 {
		return 0
	}
	return free
}

func (p Page) line(off OffsetNumber) (start, length int) {
	pos := headerSize + int(off-1)*lineSize
	return int(p.uint16(pos)), int(p.uint16(pos + 2))
}

func (p Page) putLine(off OffsetNumber, start, length int) {
	pos := headerSize + int(off-1)*lineSize
	p.putUint16(pos, uint16(start))
	p.putUint16(pos+2, uint16(length))
}

// Item returns the bytes of the item at off. The slice aliases the page.
func (p Page) Item(off OffsetNumber) ([]byte, bool) {
	if off < FirstOffsetNumber || off > p.MaxOffset() {
		return nil, false
	}
	start, length := p.line(off)
	if length == 0 {
		return nil, false
	}
	return p[start : start+length], true
}

// AddItem appends data as a new item and returns its offset, or InvalidOffsetNumber
// if the page has no room for it.
func (p Page) AddItem(data []byte) OffsetNumber {
	if len(data) == 0 || len(data) > p.FreeSpace() {
		return InvalidOffsetNumber
	}
	upper := p.upper() - len(data)
	copy(p[upper:], data)
	off := p.MaxOffset() + 1
	p.putLine(off, upper, len(data))
	p.putUint16(offLower, uint16(p.lower()+lineSize))
	p.putUint16(offUpper, uint16(upper))
	return off
}

// ReplaceItem overwrites the item at off with data. It returns false, leaving the page
// untouched, when the replacement does not fit.
func (p Page) ReplaceItem(off OffsetNumber, data []byte) bool {
	if len(data) == 0 || off < FirstOffsetNumber || off > p.MaxOffset() {
		return false
	}
	start, length := p.line(off)
	if length == len(data) {
		copy(p[start:], data)
		return true
	}
	items := p.items()
	items[off-1] = data
	return p.relayout(items)
}

// DeleteItem removes the item at off. Items after it move down by one offset.
func (p Page) DeleteItem(off OffsetNumber) bool {
	if off < FirstOffsetNumber || off > p.MaxOffset() {
		return false
	}
	items := p.items()
	items = append(items[:off-1], items[off:]...)
	return p.relayout(items)
}

// DeleteItems removes every listed offset in a single pass.
func (p Page) DeleteItems(offs []OffsetNumber) {
	if len(offs) == 0 {
		return
	}
	drop := make(map[OffsetNumber]struct{}, len(offs))
	for _, off := range offs {
		drop[off] = struct{}{}
	}
	var kept [][]byte
	for off := FirstOffsetNumber; off <= p.MaxOffset(); off++ {
		if _, ok := drop[off]; ok {
			continue
		}
		item, _ := p.Item(off)
		kept = append(kept, item)
	}
	p.relayout(kept)
}

func (p Page) items() [][]byte {
	n := p.MaxOffset()
	items := make([][]byte, 0, n)
	for off := FirstOffsetNumber; off <= n; off++ {
		item, _ := p.Item(off)
		items = append(items, item)
	}
	return items
}

// relayout rewrites all items contiguously. Items may alias p.
func (p Page) relayout(items [][]byte) bool {
	need := len(items) * lineSize
	for _, it := range items {
		need += len(it)
	}
	if headerSize+need > p.special() {
		return false
	}

	owned := make([][]byte, len(items))
	for i, it := range items {
		owned[i] = append([]byte(nil), it...)
	}

	upper := p.special()
	clear(p[headerSize:upper])
	for i, it := range owned {
		upper -= len(it)
		copy(p[upper:], it)
		p.putLine(OffsetNumber(i+1), upper, len(it))
	}
	p.putUint16(offLower, uint16(headerSize+len(owned)*lineSize))
	p.putUint16(offUpper, uint16(upper))
	return true
}

// Contents returns the contents area of a page that is used without line pointers,
// such as chain headers and byte pages.
func (p Page) Contents() []byte {
	return p[headerSize:p.special()]
}

// ContentsLen returns the number of bytes in use in the contents area.
func (p Page) ContentsLen() int {
	return p.lower() - headerSize
}

// SetContentsLen marks the first n bytes of the contents area as used.
func (p Page) SetContentsLen(n int) {
	p.putUint16(offLower, uint16(headerSize+n))
}

// SetChecksum stamps the page checksum. It must be called on a private copy.
func (p Page) SetChecksum() {
	binary.LittleEndian.PutUint32(p[offChecksum:], 0)
	binary.LittleEndian.PutUint32(p[offChecksum:], hash.CRC32C(p))
}

// VerifyChecksum reports whether the stored checksum matches the page.
func (p Page) VerifyChecksum() bool {
	if p.IsNew() {
		return true
	}
	want := binary.LittleEndian.Uint32(p[offChecksum:])
	binary.LittleEndian.PutUint32(p[offChecksum:], 0)
	got := hash.CRC32C(p)
	binary.LittleEndian.PutUint32(p[offChecksum:], want)
	return got == want
}
