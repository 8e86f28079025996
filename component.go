package pagedir

import (
	"context"

	"github.com/hupe1980/pagedir/internal/chain"
	"github.com/hupe1980/pagedir/internal/page"
)

// componentKey identifies cached component contents. Segment ids are never
// reused and component files are written once, so a key never goes stale.
type componentKey struct {
	path  string
	block page.BlockNumber
}

// WriteComponent stores data as a new component file and returns its entry.
// Pass the entry to SaveMetas keyed by the file's ComponentPath.
func (d *Directory) WriteComponent(ctx context.Context, data []byte) (FileEntry, error) {
	if err := d.lock(); err != nil {
		return FileEntry{}, err
	}
	defer d.mu.RUnlock()

	fe, err := writeComponentChain(ctx, d.pages, data)
	return fe, translateError(err)
}

// File is a component file of a catalogued segment.
//
// A File does not keep its pages from being reclaimed. Readers should hold the
// Result of the LoadMetas call that made the segment visible while reading.
type File struct {
	d     *Directory
	path  string
	entry FileEntry
	bl    *chain.BytesList
}

// OpenComponent opens the component file at path, such as
// "<segment id>.idx" or "<segment id>.0.del".
func (d *Directory) OpenComponent(ctx context.Context, path string) (*File, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	_, fe, err := d.cat.LookupPath(ctx, path)
	if err != nil {
		return nil, translateError(err)
	}
	return &File{
		d:     d,
		path:  path,
		entry: fe,
		bl:    chain.OpenBytesList(d.pages, fe.StartingBlock),
	}, nil
}

// Path returns the file's component path.
func (f *File) Path() string { return f.path }

// Entry returns where the file is stored.
func (f *File) Entry() FileEntry { return f.entry }

// Len returns the file size in bytes.
func (f *File) Len() uint64 { return f.entry.TotalBytes }

// ReadAll returns the whole file. The returned slice may be shared with other
// readers and must not be modified.
func (f *File) ReadAll(ctx context.Context) ([]byte, error) {
	key := componentKey{path: f.path, block: f.entry.StartingBlock}
	if data, ok := f.d.components.Get(key); ok {
		return data, nil
	}
	data, err := f.bl.ReadAll(ctx)
	if err != nil {
		return nil, translateError(err)
	}
	f.d.components.Set(key, data)
	return data, nil
}

// ReadRange returns up to n bytes starting at off. Reads past the end are
// truncated.
func (f *File) ReadRange(ctx context.Context, off, n uint64) ([]byte, error) {
	key := componentKey{path: f.path, block: f.entry.StartingBlock}
	if data, ok := f.d.components.Get(key); ok {
		if off >= uint64(len(data)) {
			return []byte{}, nil
		}
		end := min(off+n, uint64(len(data)))
		return data[off:end], nil
	}
	data, err := f.bl.ReadRange(ctx, off, n)
	return data, translateError(err)
}

// ComponentCacheStats reports hits and misses of the component read cache.
func (d *Directory) ComponentCacheStats() (hits, misses, evictions int64) {
	s := d.components.Stats()
	return s.Hits, s.Misses, s.Evictions
}
