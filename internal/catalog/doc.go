// Package catalog stores the segment catalog of a directory: one record per index
// segment with its visibility stamps and the byte chains of its component files.
//
// Block 0 of a directory is the metapage. It holds the roots of the catalog, the
// schema and settings chains, and the merge list.
//
// Visibility follows MVCC rules. A segment is created with Xmin set to the
// committing transaction, or to FrozenXID when it is the product of a merge, and
// retired by setting Xmax. CreatedBy and DeletedBy remember which transaction wrote
// a frozen stamp so that snapshots taken before that transaction committed keep
// their view.
package catalog
