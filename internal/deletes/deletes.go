package deletes

import (
	"bytes"
	"encoding/binary"
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cockroachdb/errors"

	"github.com/hupe1980/pagedir/internal/catalog"
	"github.com/hupe1980/pagedir/internal/hash"
)

// File layout (little endian):
//
//	magic    (4 bytes)
//	maxDoc   (4 bytes) - documents in the segment when the file was written
//	checksum (4 bytes) - CRC32C of the bitmap
//	bitmap   (portable roaring serialization)
const (
	fileMagic  uint32 = 0x4c444450 // "PDDL"
	headerSize        = 12
)

// ErrCorrupted is returned when a delete file fails validation.
var ErrCorrupted = errors.New("corrupted delete file")

// Tombstones is the set of deleted documents of one segment.
type Tombstones struct {
	maxDoc uint32
	rb     *roaring.Bitmap
}

// New returns an empty set for a segment of maxDoc documents.
func New(maxDoc uint32) *Tombstones {
	return &Tombstones{maxDoc: maxDoc, rb: roaring.New()}
}

// MaxDoc returns the document count of the segment.
func (t *Tombstones) MaxDoc() uint32 {
	return t.maxDoc
}

// Delete marks doc as deleted.
func (t *Tombstones) Delete(doc uint32) error {
	if doc >= t.maxDoc {
		return errors.AssertionFailedf("deletes: doc %d out of range [0, %d)", doc, t.maxDoc)
	}
	t.rb.Add(doc)
	return nil
}

// IsDeleted reports whether doc is deleted.
func (t *Tombstones) IsDeleted(doc uint32) bool {
	return t.rb.Contains(doc)
}

// Len returns the number of deleted documents.
func (t *Tombstones) Len() uint32 {
	return uint32(t.rb.GetCardinality())
}

// All iterates the deleted documents in ascending order.
func (t *Tombstones) All() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		it := t.rb.Iterator()
		for it.HasNext() {
			if !yield(it.Next()) {
				return
			}
		}
	}
}

// Merge adds every document deleted in other. Deletes only ever accumulate, so the
// result of merging an older file into a newer one never loses a document.
func (t *Tombstones) Merge(other *Tombstones) error {
	if other == nil {
		return nil
	}
	if other.maxDoc != t.maxDoc {
		return errors.AssertionFailedf("deletes: merging sets of %d and %d docs", t.maxDoc, other.maxDoc)
	}
	t.rb.Or(other.rb)
	return nil
}

// Meta returns the summary the catalog records for the file.
func (t *Tombstones) Meta(opstamp uint64) catalog.DeleteMeta {
	return catalog.DeleteMeta{NumDeletedDocs: t.Len(), Opstamp: opstamp}
}

// MarshalBinary encodes the set as a delete file.
func (t *Tombstones) MarshalBinary() ([]byte, error) {
	t.rb.RunOptimize()
	var buf bytes.Buffer
	buf.Grow(headerSize + int(t.rb.GetSerializedSizeInBytes()))
	buf.Write(make([]byte, headerSize))
	if _, err := t.rb.WriteTo(&buf); err != nil {
		return nil, errors.Wrap(err, "deletes: encode bitmap")
	}
	b := buf.Bytes()
	binary.LittleEndian.PutUint32(b[0:], fileMagic)
	binary.LittleEndian.PutUint32(b[4:], t.maxDoc)
	binary.LittleEndian.PutUint32(b[8:], hash.CRC32C(b[headerSize:]))
	return b, nil
}

// Decode parses a delete file.
func Decode(b []byte) (*Tombstones, error) {
	if len(b) < headerSize || binary.LittleEndian.Uint32(b[0:]) != fileMagic {
		return nil, errors.Wrap(ErrCorrupted, "bad header")
	}
	if got, want := hash.CRC32C(b[headerSize:]), binary.LittleEndian.Uint32(b[8:]); got != want {
		return nil, errors.Wrapf(ErrCorrupted, "checksum %08x, want %08x", got, want)
	}
	t := New(binary.LittleEndian.Uint32(b[4:]))
	if _, err := t.rb.ReadFrom(bytes.NewReader(b[headerSize:])); err != nil {
		return nil, errors.Wrapf(ErrCorrupted, "bitmap: %v", err)
	}
	if !t.rb.IsEmpty() && t.rb.Maximum() >= t.maxDoc {
		return nil, errors.Wrapf(ErrCorrupted, "doc %d out of range [0, %d)", t.rb.Maximum(), t.maxDoc)
	}
	return t, nil
}
