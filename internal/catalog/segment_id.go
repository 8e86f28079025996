package catalog

import (
	"encoding/hex"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/google/uuid"
)

// SegmentID identifies a segment. It is unique for every segment ever created.
type SegmentID uuid.UUID

// OrphanSegmentID is the id of placeholder entries that only carry a replaced
// delete file.
var OrphanSegmentID SegmentID

// NewSegmentID returns a random segment id.
func NewSegmentID() SegmentID {
	return SegmentID(uuid.New())
}

// ParseSegmentID parses the hyphenless form produced by String as well as the
// canonical UUID form.
func ParseSegmentID(s string) (SegmentID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return SegmentID{}, errors.Wrapf(err, "catalog: segment id %q", s)
	}
	return SegmentID(u), nil
}

// String returns the id as 32 lowercase hex digits.
func (id SegmentID) String() string {
	return hex.EncodeToString(id[:])
}

// SafeFormat implements redact.SafeFormatter.
func (id SegmentID) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString(redact.SafeString(id.String()))
}

// IsZero reports whether id is the orphan placeholder id.
func (id SegmentID) IsZero() bool {
	return id == OrphanSegmentID
}

// Compare orders ids bytewise.
func (id SegmentID) Compare(other SegmentID) int {
	return slices.Compare(id[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id SegmentID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *SegmentID) UnmarshalText(b []byte) error {
	parsed, err := ParseSegmentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
