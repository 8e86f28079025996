// Package reconcile applies search library commits and merges to the segment
// catalog.
//
// A call compares the segment set before and after the library operation:
//
//   - created segments are appended. A plain commit stamps them with the calling
//     transaction; a merge stamps them frozen.
//   - modified segments get their new delete file. A replaced delete file is kept
//     reachable through an orphan placeholder until garbage collection frees it.
//   - deleted segments are retired with a frozen xmax. This needs a transaction.
//
// All changes go to a private copy of the catalog which is published in one step.
package reconcile
