// Package chain stores records and byte payloads on linked chains of pages.
//
// # Item lists
//
// [ItemList] keeps insertion-ordered records, one page item each. Readers walk the
// chain hand over hand under share locks. Writers are serialized per list:
//
//   - [ItemList.AddItems] appends in place
//   - [ItemList.Atomically] clones the chain; the [AtomicGuard] mutates the clone and
//     [AtomicGuard.Commit] swaps the header to it in one page write
//   - [ItemList.Retain] drops records in place and unlinks emptied pages
//
// A reader that started before a commit finishes on the old pages. Those pages go
// back to the free space map tagged with the scan epoch, so they are not reused
// until the reader ends.
//
// [ItemList.ForEachAndPin] pins the page of every accepted record, plus the pages a
// record names through [Pinner], so that a concurrent garbage collector cannot
// reclaim data the caller is about to read.
//
// # Byte chains
//
// [BytesList] holds one payload written once with [BytesList.Write], described by a
// [FileEntry]. Schema, settings, and segment components are stored this way.
package chain
