// Package xact defines transaction ids, snapshots, and the oracle that decides
// whether a transaction is still in progress.
//
// # Ids
//
// [InvalidXID], [BootstrapXID], and [FrozenXID] are special. Frozen stamps are never
// in progress and are visible to every snapshot; they mark data whose visibility
// does not depend on the transaction that wrote it.
//
// # Visibility
//
// A [Snapshot] sees the effects of a transaction that committed before the snapshot
// was taken, plus those of its own transaction:
//
//	snap := txn.Snapshot()
//	defer snap.Release()
//	if snap.Visible(oracle, xmin, xmax) {
//		// row is alive for this reader
//	}
//
// # Oracle
//
// [Oracle] is the narrow interface a host engine implements. [Manager] is an
// in-memory implementation used by the directory when no host oracle is supplied.
package xact
