package catalog

import (
	"github.com/hupe1980/pagedir/internal/chain"
	"github.com/hupe1980/pagedir/internal/page"
	"github.com/hupe1980/pagedir/internal/xact"
)

// DeleteEntry references a segment's deletion bitmap file.
type DeleteEntry struct {
	File           chain.FileEntry
	NumDeletedDocs uint32
	Opstamp        uint64
	// XID is the transaction that attached the file.
	XID xact.XID
}

// SegmentMetaEntry records one segment in the catalog.
type SegmentMetaEntry struct {
	SegmentID SegmentID
	MaxDoc    uint32

	// Xmin and Xmax are the visibility stamps. Xmax is InvalidXID while the segment
	// is alive. Segments created or retired by a merge carry FrozenXID.
	Xmin xact.XID
	Xmax xact.XID

	// CreatedBy and DeletedBy are the transactions that set Xmin and Xmax.
	CreatedBy xact.XID
	DeletedBy xact.XID

	Opstamp uint64

	Postings   *chain.FileEntry
	Positions  *chain.FileEntry
	FastFields *chain.FileEntry
	FieldNorms *chain.FileEntry
	Terms      *chain.FileEntry
	Store      *chain.FileEntry
	TempStore  *chain.FileEntry

	Delete *DeleteEntry
}

// ComponentFile pairs a component with its file.
type ComponentFile struct {
	Component Component
	File      chain.FileEntry
}

func (e *SegmentMetaEntry) slot(c Component) **chain.FileEntry {
	switch c {
	case Postings:
		return &e.Postings
	case Positions:
		return &e.Positions
	case FastFields:
		return &e.FastFields
	case FieldNorms:
		return &e.FieldNorms
	case Terms:
		return &e.Terms
	case Store:
		return &e.Store
	case TempStore:
		return &e.TempStore
	}
	return nil
}

// File returns the file of component c, if the entry has one.
func (e *SegmentMetaEntry) File(c Component) (chain.FileEntry, bool) {
	if c == Delete {
		if e.Delete == nil {
			return chain.FileEntry{}, false
		}
		return e.Delete.File, true
	}
	s := e.slot(c)
	if s == nil || *s == nil {
		return chain.FileEntry{}, false
	}
	return **s, true
}

// SetFile sets the file of a non-delete component.
func (e *SegmentMetaEntry) SetFile(c Component, fe chain.FileEntry) {
	if s := e.slot(c); s != nil {
		*s = &fe
	}
}

// Files returns every file of the entry in component order, delete last.
func (e *SegmentMetaEntry) Files() []ComponentFile {
	var out []ComponentFile
	for _, c := range fileComponents {
		if fe, ok := e.File(c); ok {
			out = append(out, ComponentFile{Component: c, File: fe})
		}
	}
	if e.Delete != nil {
		out = append(out, ComponentFile{Component: Delete, File: e.Delete.File})
	}
	return out
}

// ComponentPaths returns the file name of every file of the entry.
func (e *SegmentMetaEntry) ComponentPaths() []string {
	files := e.Files()
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = Path(e.SegmentID, f.Component)
	}
	return out
}

// FileByPath returns the file stored under path.
func (e *SegmentMetaEntry) FileByPath(path string) (chain.FileEntry, bool) {
	for _, f := range e.Files() {
		if Path(e.SegmentID, f.Component) == path {
			return f.File, true
		}
	}
	return chain.FileEntry{}, false
}

// ByteSize returns the number of bytes referenced by the entry.
func (e *SegmentMetaEntry) ByteSize() uint64 {
	var size uint64
	for _, f := range e.Files() {
		size += f.File.TotalBytes
	}
	return size
}

// NumDeletedDocs returns the number of deleted documents, 0 without a delete file.
func (e *SegmentMetaEntry) NumDeletedDocs() uint32 {
	if e.Delete == nil {
		return 0
	}
	return e.Delete.NumDeletedDocs
}

// NumDocs returns the number of documents that are not deleted.
func (e *SegmentMetaEntry) NumDocs() uint32 {
	return e.MaxDoc - e.NumDeletedDocs()
}

// PinBlocks returns the header block of every file chain the entry references.
func (e SegmentMetaEntry) PinBlocks() []page.BlockNumber {
	files := e.Files()
	out := make([]page.BlockNumber, len(files))
	for i, f := range files {
		out[i] = f.File.StartingBlock
	}
	return out
}

// FreeableChains returns the chains garbage collection frees with the entry. An
// orphan placeholder only owns its delete file.
func (e *SegmentMetaEntry) FreeableChains() []chain.FileEntry {
	if e.IsOrphanedDelete() {
		if e.Delete == nil {
			return nil
		}
		return []chain.FileEntry{e.Delete.File}
	}
	files := e.Files()
	out := make([]chain.FileEntry, len(files))
	for i, f := range files {
		out[i] = f.File
	}
	return out
}

// ReplaceDeletes installs d as the entry's delete record. If the entry already had
// one, it returns an orphan placeholder holding the old file so that it can be
// reclaimed later. Attaching the file that is already attached changes nothing.
func (e *SegmentMetaEntry) ReplaceDeletes(d DeleteEntry, by xact.XID) *SegmentMetaEntry {
	if e.Delete != nil && e.Delete.File == d.File {
		return nil
	}
	var orphan *SegmentMetaEntry
	if e.Delete != nil {
		old := *e.Delete
		orphan = &SegmentMetaEntry{
			SegmentID: OrphanSegmentID,
			MaxDoc:    e.MaxDoc,
			Xmin:      xact.FrozenXID,
			Xmax:      xact.FrozenXID,
			CreatedBy: by,
			DeletedBy: by,
			Opstamp:   old.Opstamp,
			Delete:    &old,
		}
	}
	e.Delete = &d
	return orphan
}

// AsSegmentMeta returns the summary handed to the search library. The delete record
// is included only when withDeletes is set.
func (e *SegmentMetaEntry) AsSegmentMeta(withDeletes bool) SegmentMeta {
	sm := SegmentMeta{ID: e.SegmentID, MaxDoc: e.MaxDoc}
	if withDeletes && e.Delete != nil {
		sm.Deletes = &DeleteMeta{NumDeletedDocs: e.Delete.NumDeletedDocs, Opstamp: e.Delete.Opstamp}
	}
	return sm
}

var _ chain.Pinner = SegmentMetaEntry{}
