// Package checkpoint writes compressed, checksummed images of every page to a
// blob store and restores them.
//
// Images are named PAGES-000001.bin, PAGES-000002.bin, ... and a CURRENT blob
// names the latest complete one. Save writes the image before it repoints
// CURRENT, so readers either see the previous image or the new one.
//
// Pages are compressed one block each with snappy, lz4 or zstd, in parallel, and
// the whole body is covered by a CRC32C in the header. Uploads are throttled by
// the resource controller's IO limiter.
package checkpoint
