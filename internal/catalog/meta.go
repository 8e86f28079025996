package catalog

import (
	"encoding/binary"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// DeleteMeta summarizes a segment's deletes for the search library.
type DeleteMeta struct {
	NumDeletedDocs uint32 `json:"num_deleted_docs"`
	Opstamp        uint64 `json:"opstamp"`
}

// SegmentMeta is the search library's view of a segment.
type SegmentMeta struct {
	ID      SegmentID   `json:"segment_id"`
	MaxDoc  uint32      `json:"max_doc"`
	Deletes *DeleteMeta `json:"deletes"`
}

// IndexMeta is what the search library needs to open an index. Schema and
// Settings are raw JSON owned by the search library.
type IndexMeta struct {
	Segments []SegmentMeta   `json:"segments"`
	Schema   json.RawMessage `json:"schema"`
	Settings json.RawMessage `json:"index_settings"`
	Opstamp  uint64          `json:"opstamp"`
}

// SegmentIDs returns the ids of the segments in order.
func (m *IndexMeta) SegmentIDs() []SegmentID {
	ids := make([]SegmentID, len(m.Segments))
	for i, s := range m.Segments {
		ids[i] = s.ID
	}
	return ids
}

// EncodeSegmentIDs serializes ids for handing to parallel workers.
func EncodeSegmentIDs(ids []SegmentID) []byte {
	b := make([]byte, 4, 4+16*len(ids))
	binary.LittleEndian.PutUint32(b, uint32(len(ids)))
	for _, id := range ids {
		b = append(b, id[:]...)
	}
	return b
}

// DecodeSegmentIDs reverses EncodeSegmentIDs.
func DecodeSegmentIDs(b []byte) ([]SegmentID, error) {
	if len(b) < 4 {
		return nil, errors.AssertionFailedf("catalog: segment id list of %d bytes", len(b))
	}
	n := int(binary.LittleEndian.Uint32(b))
	if len(b) != 4+16*n {
		return nil, errors.AssertionFailedf("catalog: segment id list of %d bytes holds %d ids", len(b), n)
	}
	ids := make([]SegmentID, n)
	for i := range ids {
		copy(ids[i][:], b[4+16*i:])
	}
	return ids, nil
}
