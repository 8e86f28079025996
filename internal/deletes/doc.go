// Package deletes encodes the per-segment deletion bitmaps stored in ".del"
// component files.
package deletes
