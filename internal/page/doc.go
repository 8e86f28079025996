// Package page implements fixed-size pages and a buffer manager over a page store.
//
// # Layout
//
// Every page is [Size] bytes. A 16 byte header is followed by an array of line
// pointers growing up and item data growing down from the special area, which holds
// the link to the next page of a chain and the xid that retired the page. Pages that
// hold raw bytes (chain headers, blob pages) skip the line pointers and use
// [Page.Contents] directly.
//
// # Buffers
//
// [Manager.Get] pins a page and locks it shared or exclusive. The returned [Buffer]
// must be released on every path:
//
//	buf, err := m.Get(blkno, page.LockShare)
//	if err != nil {
//		return err
//	}
//	defer buf.Release()
//
// Chains are walked hand over hand with [Manager.Exchange]. A [Pin] keeps a page
// from being reclaimed without locking it; [Manager.CanCleanup] reports whether
// nobody else holds one.
//
// # Reclamation
//
// [Manager.Free] returns blocks to an in-memory free space map. A freed block is
// handed out again by [Manager.New] only after every scan registered with
// [Manager.BeginScan] before the free has ended and the block is unpinned.
//
// # Stores
//
//   - [MemStore]: in memory, used by tests and checkpoint restores
//   - [FileStore]: a single page file on an [fs.FileSystem]
//   - [SQLiteStore]: one row per page in a SQLite database
package page
