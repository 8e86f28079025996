package catalog

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/hupe1980/pagedir/internal/chain"
	"github.com/hupe1980/pagedir/internal/page"
	"github.com/hupe1980/pagedir/internal/xact"
)

// MetaPageBlock is the fixed location of the directory's metapage.
const MetaPageBlock page.BlockNumber = 0

const (
	metaMagic   uint32 = 0x52444450 // "PDDR"
	metaVersion uint32 = 1
	metaLen            = 28
)

// MetaPage holds the roots of every structure in a directory.
type MetaPage struct {
	Schema       page.BlockNumber
	Settings     page.BlockNumber
	SegmentMetas page.BlockNumber
	MergeList    page.BlockNumber
	// LastXID is the newest transaction that stamped the catalog.
	LastXID xact.XID
}

func (mp MetaPage) write(p page.Page) {
	c := p.Contents()
	binary.LittleEndian.PutUint32(c[0:], metaMagic)
	binary.LittleEndian.PutUint32(c[4:], metaVersion)
	binary.LittleEndian.PutUint32(c[8:], uint32(mp.Schema))
	binary.LittleEndian.PutUint32(c[12:], uint32(mp.Settings))
	binary.LittleEndian.PutUint32(c[16:], uint32(mp.SegmentMetas))
	binary.LittleEndian.PutUint32(c[20:], uint32(mp.MergeList))
	binary.LittleEndian.PutUint32(c[24:], uint32(mp.LastXID))
	p.SetContentsLen(metaLen)
}

func readMetaPage(p page.Page) (MetaPage, error) {
	c := p.Contents()
	if p.ContentsLen() != metaLen || binary.LittleEndian.Uint32(c[0:]) != metaMagic {
		return MetaPage{}, errors.AssertionFailedf("catalog: block %d is not a metapage", MetaPageBlock)
	}
	if v := binary.LittleEndian.Uint32(c[4:]); v != metaVersion {
		return MetaPage{}, errors.AssertionFailedf("catalog: unsupported metapage version %d", v)
	}
	return MetaPage{
		Schema:       page.BlockNumber(binary.LittleEndian.Uint32(c[8:])),
		Settings:     page.BlockNumber(binary.LittleEndian.Uint32(c[12:])),
		SegmentMetas: page.BlockNumber(binary.LittleEndian.Uint32(c[16:])),
		MergeList:    page.BlockNumber(binary.LittleEndian.Uint32(c[20:])),
		LastXID:      xact.XID(binary.LittleEndian.Uint32(c[24:])),
	}, nil
}

// bootstrap lays out a new directory on an empty manager.
func bootstrap(m *page.Manager) (MetaPage, error) {
	buf, err := m.New()
	if err != nil {
		return MetaPage{}, err
	}
	defer buf.Release()
	if buf.Number() != MetaPageBlock {
		return MetaPage{}, errors.AssertionFailedf("catalog: metapage allocated at block %d", buf.Number())
	}

	schema, err := chain.CreateBytesList(m)
	if err != nil {
		return MetaPage{}, err
	}
	settings, err := chain.CreateBytesList(m)
	if err != nil {
		return MetaPage{}, err
	}
	entries, err := chain.CreateItemList[SegmentMetaEntry](m, EntryCodec{})
	if err != nil {
		return MetaPage{}, err
	}
	merges, err := chain.CreateItemList[MergeEntry](m, mergeEntryCodec{})
	if err != nil {
		return MetaPage{}, err
	}

	mp := MetaPage{
		Schema:       schema.Header(),
		Settings:     settings.Header(),
		SegmentMetas: entries.Header(),
		MergeList:    merges.Header(),
		LastXID:      xact.BootstrapXID,
	}
	mp.write(buf.PageMut())
	return mp, nil
}

func loadMetaPage(m *page.Manager) (MetaPage, error) {
	buf, err := m.Get(MetaPageBlock, page.LockShare)
	if err != nil {
		return MetaPage{}, err
	}
	defer buf.Release()
	return readMetaPage(buf.Page())
}

// advanceLastXID records xid on the metapage if it is newer than the stored one.
func advanceLastXID(m *page.Manager, xid xact.XID) error {
	if !xid.IsNormal() {
		return nil
	}
	buf, err := m.Get(MetaPageBlock, page.LockExclusive)
	if err != nil {
		return err
	}
	defer buf.Release()
	mp, err := readMetaPage(buf.Page())
	if err != nil {
		return err
	}
	if mp.LastXID.IsNormal() && !mp.LastXID.Precedes(xid) {
		return nil
	}
	mp.LastXID = xid
	mp.write(buf.PageMut())
	return nil
}
