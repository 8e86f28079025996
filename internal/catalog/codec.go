package catalog

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/hupe1980/pagedir/internal/chain"
	"github.com/hupe1980/pagedir/internal/page"
	"github.com/hupe1980/pagedir/internal/xact"
)

const entryVersion = 1

// Entry layout (little endian):
//
//	Version   (1 byte)
//	SegmentID (16 bytes)
//	MaxDoc    (4 bytes)
//	Xmin      (4 bytes)
//	Xmax      (4 bytes)
//	CreatedBy (4 bytes)
//	DeletedBy (4 bytes)
//	Opstamp   (8 bytes)
//	Present   (1 byte) - bit i set when fileComponents[i] is present, bit 7 for Delete
//	Files...
//	  StartingBlock (4 bytes)
//	  TotalBytes    (8 bytes)
//	Delete (if present)
//	  File          (12 bytes)
//	  NumDeleted    (4 bytes)
//	  Opstamp       (8 bytes)
//	  XID           (4 bytes)
//
// Changing only stamps never changes the encoded size, so retiring an entry can
// always be done in place.

// EntryCodec encodes SegmentMetaEntry records as page items.
type EntryCodec struct{}

const deleteBit = 1 << 7

func (EntryCodec) Encode(e SegmentMetaEntry) ([]byte, error) {
	pb := newPayloadBuffer(make([]byte, 0, 64))
	pb.writeUint8(entryVersion)
	pb.writeBytes(e.SegmentID[:])
	pb.writeUint32(e.MaxDoc)
	pb.writeUint32(uint32(e.Xmin))
	pb.writeUint32(uint32(e.Xmax))
	pb.writeUint32(uint32(e.CreatedBy))
	pb.writeUint32(uint32(e.DeletedBy))
	pb.writeUint64(e.Opstamp)

	var present uint8
	for i, c := range fileComponents {
		if _, ok := e.File(c); ok {
			present |= 1 << i
		}
	}
	if e.Delete != nil {
		present |= deleteBit
	}
	pb.writeUint8(present)

	for _, c := range fileComponents {
		if fe, ok := e.File(c); ok {
			pb.writeFileEntry(fe)
		}
	}
	if d := e.Delete; d != nil {
		pb.writeFileEntry(d.File)
		pb.writeUint32(d.NumDeletedDocs)
		pb.writeUint64(d.Opstamp)
		pb.writeUint32(uint32(d.XID))
	}
	return pb.buf, pb.err
}

func (EntryCodec) Decode(b []byte) (SegmentMetaEntry, error) {
	pb := newPayloadBuffer(b)
	var e SegmentMetaEntry

	if v := pb.readUint8(); pb.err == nil && v != entryVersion {
		return e, errors.AssertionFailedf("catalog: unsupported entry version %d", v)
	}
	copy(e.SegmentID[:], pb.readBytes(len(e.SegmentID)))
	e.MaxDoc = pb.readUint32()
	e.Xmin = xact.XID(pb.readUint32())
	e.Xmax = xact.XID(pb.readUint32())
	e.CreatedBy = xact.XID(pb.readUint32())
	e.DeletedBy = xact.XID(pb.readUint32())
	e.Opstamp = pb.readUint64()

	present := pb.readUint8()
	for i, c := range fileComponents {
		if present&(1<<i) != 0 {
			e.SetFile(c, pb.readFileEntry())
		}
	}
	if present&deleteBit != 0 {
		e.Delete = &DeleteEntry{
			File:           pb.readFileEntry(),
			NumDeletedDocs: pb.readUint32(),
			Opstamp:        pb.readUint64(),
			XID:            xact.XID(pb.readUint32()),
		}
	}
	if pb.err != nil {
		return SegmentMetaEntry{}, errors.Wrap(pb.err, "catalog: decode entry")
	}
	return e, nil
}

type payloadBuffer struct {
	buf []byte
	pos int
	err error
}

func newPayloadBuffer(b []byte) *payloadBuffer {
	return &payloadBuffer{buf: b}
}

func (p *payloadBuffer) writeUint8(v uint8) {
	if p.err != nil {
		return
	}
	p.buf = append(p.buf, v)
}

func (p *payloadBuffer) writeUint32(v uint32) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *payloadBuffer) writeUint64(v uint64) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
}

func (p *payloadBuffer) writeBytes(b []byte) {
	if p.err != nil {
		return
	}
	p.buf = append(p.buf, b...)
}

func (p *payloadBuffer) writeFileEntry(fe chain.FileEntry) {
	p.writeUint32(uint32(fe.StartingBlock))
	p.writeUint64(fe.TotalBytes)
}

func (p *payloadBuffer) need(n int) bool {
	if p.err != nil {
		return false
	}
	if p.pos+n > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return false
	}
	return true
}

func (p *payloadBuffer) readUint8() uint8 {
	if !p.need(1) {
		return 0
	}
	v := p.buf[p.pos]
	p.pos++
	return v
}

func (p *payloadBuffer) readUint32() uint32 {
	if !p.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(p.buf[p.pos:])
	p.pos += 4
	return v
}

func (p *payloadBuffer) readUint64() uint64 {
	if !p.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(p.buf[p.pos:])
	p.pos += 8
	return v
}

func (p *payloadBuffer) readBytes(n int) []byte {
	if !p.need(n) {
		return nil
	}
	v := p.buf[p.pos : p.pos+n]
	p.pos += n
	return v
}

func (p *payloadBuffer) readFileEntry() chain.FileEntry {
	return chain.FileEntry{
		StartingBlock: page.BlockNumber(p.readUint32()),
		TotalBytes:    p.readUint64(),
	}
}
