package pagedir

import (
	"context"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// WriteSegmentTable writes the catalog as a text table, one row per entry in
// catalog order, retired segments and orphaned delete placeholders included.
func (d *Directory) WriteSegmentTable(ctx context.Context, w io.Writer) error {
	if d.closed.Load() {
		return ErrClosed
	}
	entries, err := d.cat.Entries().List(ctx)
	if err != nil {
		return translateError(err)
	}

	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"Segment", "Docs", "Deleted", "Xmin", "Xmax", "Opstamp", "Files", "Bytes"})
	for _, e := range entries {
		id := e.SegmentID.String()
		if e.IsOrphanedDelete() {
			id = "(orphaned delete)"
		}
		tbl.Append([]string{
			id,
			strconv.FormatUint(uint64(e.MaxDoc), 10),
			strconv.FormatUint(uint64(e.NumDeletedDocs()), 10),
			e.Xmin.String(),
			e.Xmax.String(),
			strconv.FormatUint(e.Opstamp, 10),
			strconv.Itoa(len(e.ComponentPaths())),
			strconv.FormatUint(e.ByteSize(), 10),
		})
	}
	tbl.Render()
	return nil
}
