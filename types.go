package pagedir

import (
	"github.com/hupe1980/pagedir/internal/catalog"
	"github.com/hupe1980/pagedir/internal/chain"
	"github.com/hupe1980/pagedir/internal/checkpoint"
	"github.com/hupe1980/pagedir/internal/deletes"
	"github.com/hupe1980/pagedir/internal/fs"
	"github.com/hupe1980/pagedir/internal/gc"
	"github.com/hupe1980/pagedir/internal/page"
	"github.com/hupe1980/pagedir/internal/reconcile"
	"github.com/hupe1980/pagedir/internal/visibility"
	"github.com/hupe1980/pagedir/internal/xact"
)

// Transaction and visibility types.
type (
	XID         = xact.XID
	Txn         = xact.Txn
	Transaction = xact.Transaction
	Snapshot    = xact.Snapshot
	Oracle      = xact.Oracle
)

// NoTxn is the context of maintenance work outside a transaction.
var NoTxn = xact.NoTxn

// Catalog types shared with the search library.
type (
	SegmentID        = catalog.SegmentID
	SegmentMeta      = catalog.SegmentMeta
	DeleteMeta       = catalog.DeleteMeta
	IndexMeta        = catalog.IndexMeta
	SegmentMetaEntry = catalog.SegmentMetaEntry
	MergeEntry       = catalog.MergeEntry
	Component        = catalog.Component
	FileEntry        = chain.FileEntry
	Tombstones       = deletes.Tombstones
)

// Segment components.
const (
	Postings   = catalog.Postings
	Positions  = catalog.Positions
	FastFields = catalog.FastFields
	FieldNorms = catalog.FieldNorms
	Terms      = catalog.Terms
	Store      = catalog.Store
	TempStore  = catalog.TempStore
	Delete     = catalog.Delete
)

// Results of directory operations.
type (
	Policy         = visibility.Policy
	Result         = visibility.Result
	SaveStats      = reconcile.Stats
	GCStats        = gc.Stats
	CheckpointInfo = checkpoint.Info
	Compression    = checkpoint.Compression
)

// Page image codecs for checkpoints.
const (
	CompressionNone   = checkpoint.CompressionNone
	CompressionSnappy = checkpoint.CompressionSnappy
	CompressionLZ4    = checkpoint.CompressionLZ4
	CompressionZstd   = checkpoint.CompressionZstd
)

// SnapshotPolicy selects the segments visible to snap.
func SnapshotPolicy(snap *Snapshot) Policy { return visibility.Snapshot(snap) }

// VacuumPolicy selects every alive segment.
func VacuumPolicy() Policy { return visibility.Vacuum() }

// MergeablePolicy selects alive segments no running merge consumes.
func MergeablePolicy() Policy { return visibility.Mergeable() }

// ParallelWorkerPolicy selects exactly ids and fails if any is missing.
func ParallelWorkerPolicy(ids []SegmentID) Policy { return visibility.ParallelWorker(ids) }

// NewSegmentID returns a fresh random segment id.
func NewSegmentID() SegmentID { return catalog.NewSegmentID() }

// ParseSegmentID parses the string form of a segment id.
func ParseSegmentID(s string) (SegmentID, error) { return catalog.ParseSegmentID(s) }

// ComponentPath returns the file name of component c of segment id.
func ComponentPath(id SegmentID, c Component) string { return catalog.Path(id, c) }

// EncodeSegmentIDs serializes ids for parallel workers.
func EncodeSegmentIDs(ids []SegmentID) []byte { return catalog.EncodeSegmentIDs(ids) }

// DecodeSegmentIDs reverses EncodeSegmentIDs.
func DecodeSegmentIDs(b []byte) ([]SegmentID, error) {
	ids, err := catalog.DecodeSegmentIDs(b)
	return ids, translateError(err)
}

// NewTombstones returns an empty deletion bitmap for a segment of maxDoc documents.
func NewTombstones(maxDoc uint32) *Tombstones { return deletes.New(maxDoc) }

// DecodeTombstones parses a delete component.
func DecodeTombstones(b []byte) (*Tombstones, error) {
	t, err := deletes.Decode(b)
	return t, translateError(err)
}

// ParseCompression parses a codec name such as "zstd".
func ParseCompression(s string) (Compression, error) { return checkpoint.ParseCompression(s) }

// PageStore persists the directory's pages.
type PageStore = page.Store

// NewMemPageStore returns a page store that lives in memory.
func NewMemPageStore() PageStore { return page.NewMemStore() }

// OpenFilePageStore opens or creates a page file at path.
func OpenFilePageStore(path string) (PageStore, error) {
	s, err := page.OpenFileStore(fs.Default, path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLitePageStore keeps pages in a table of the SQLite database at dsn.
func OpenSQLitePageStore(dsn string) (PageStore, error) {
	s, err := page.OpenSQLiteStore(dsn)
	if err != nil {
		return nil, err
	}
	return s, nil
}
