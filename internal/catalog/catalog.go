package catalog

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/hupe1980/pagedir/internal/chain"
	"github.com/hupe1980/pagedir/internal/page"
	"github.com/hupe1980/pagedir/internal/xact"
)

// Catalog is the set of segment records of a directory, together with the schema,
// settings, and merge list stored next to it.
type Catalog struct {
	m        *page.Manager
	meta     MetaPage
	entries  *chain.ItemList[SegmentMetaEntry]
	merges   *MergeList
	schema   *chain.BytesList
	settings *chain.BytesList
	logger   *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger for the catalog.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		c.logger = l
	}
}

// Open opens the catalog stored in m, laying out a new one if m is empty.
func Open(m *page.Manager, opts ...Option) (*Catalog, error) {
	c := &Catalog{m: m}
	for _, opt := range opts {
		opt(c)
	}

	var (
		mp  MetaPage
		err error
	)
	if m.NumBlocks() == 0 {
		mp, err = bootstrap(m)
		if c.logger != nil && err == nil {
			c.logger.Info("created catalog", "segment_metas", uint32(mp.SegmentMetas))
		}
	} else {
		mp, err = loadMetaPage(m)
	}
	if err != nil {
		return nil, errors.Wrap(err, "catalog: open")
	}

	var listOpts []chain.ListOption
	if c.logger != nil {
		listOpts = append(listOpts, chain.WithLogger(c.logger))
	}
	c.meta = mp
	c.entries = chain.OpenItemList[SegmentMetaEntry](m, mp.SegmentMetas, EntryCodec{}, listOpts...)
	c.merges = &MergeList{m: m, list: chain.OpenItemList[MergeEntry](m, mp.MergeList, mergeEntryCodec{}, listOpts...)}
	c.schema = chain.OpenBytesList(m, mp.Schema)
	c.settings = chain.OpenBytesList(m, mp.Settings)
	return c, nil
}

// Manager returns the page manager the catalog lives in.
func (c *Catalog) Manager() *page.Manager { return c.m }

// Entries returns the list of segment records.
func (c *Catalog) Entries() *chain.ItemList[SegmentMetaEntry] { return c.entries }

// MergeList returns the list of in-flight merges.
func (c *Catalog) MergeList() *MergeList { return c.merges }

// Schema returns the byte chain holding the index schema.
func (c *Catalog) Schema() *chain.BytesList { return c.schema }

// Settings returns the byte chain holding the index settings.
func (c *Catalog) Settings() *chain.BytesList { return c.settings }

// LastXID returns the newest transaction that stamped the catalog.
func (c *Catalog) LastXID() (xact.XID, error) {
	mp, err := loadMetaPage(c.m)
	if err != nil {
		return xact.InvalidXID, err
	}
	return mp.LastXID, nil
}

// RecordXID notes that xid stamped the catalog.
func (c *Catalog) RecordXID(xid xact.XID) error {
	return advanceLastXID(c.m, xid)
}

// Lookup returns the record of segment id.
func (c *Catalog) Lookup(ctx context.Context, id SegmentID) (SegmentMetaEntry, error) {
	return c.entries.Lookup(ctx, func(e SegmentMetaEntry) bool { return e.SegmentID == id })
}

// LookupPath returns the record owning the component file at path and the file.
// Placeholders are skipped; a replaced delete file is no longer addressable.
func (c *Catalog) LookupPath(ctx context.Context, path string) (SegmentMetaEntry, chain.FileEntry, error) {
	id, _, err := ParsePath(path)
	if err != nil {
		return SegmentMetaEntry{}, chain.FileEntry{}, err
	}
	var fe chain.FileEntry
	e, err := c.entries.Lookup(ctx, func(e SegmentMetaEntry) bool {
		if e.SegmentID != id || e.IsOrphanedDelete() {
			return false
		}
		var ok bool
		fe, ok = e.FileByPath(path)
		return ok
	})
	if err != nil {
		return SegmentMetaEntry{}, chain.FileEntry{}, err
	}
	return e, fe, nil
}

// ListManagedFiles returns the component paths of every non-placeholder record.
func (c *Catalog) ListManagedFiles(ctx context.Context) ([]string, error) {
	var paths []string
	err := c.entries.ForEach(ctx, func(e SegmentMetaEntry) error {
		if !e.IsOrphanedDelete() {
			paths = append(paths, e.ComponentPaths()...)
		}
		return nil
	})
	return paths, err
}
