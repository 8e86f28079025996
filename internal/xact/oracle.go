package xact

// Oracle answers transaction status questions. Every "is this transaction still in
// progress" decision in the directory goes through it.
type Oracle interface {
	// IsInProgress reports whether xid is running. Special ids are never in progress.
	IsInProgress(xid XID) bool
	// DidCommit reports whether xid committed. Bootstrap and frozen ids always did.
	DidCommit(xid XID) bool
	// OldestXmin returns the global horizon: every xid preceding it has finished
	// and is seen as finished by every current and future snapshot.
	OldestXmin() XID
}

// Txn is the transaction a directory operation runs in.
type Txn interface {
	// XID returns the transaction id, or InvalidXID outside a transaction.
	XID() XID
	// Active reports whether the caller runs inside a live transaction.
	Active() bool
}

type noTxn struct{}

func (noTxn) XID() XID     { return InvalidXID }
func (noTxn) Active() bool { return false }

// NoTxn is the context of maintenance work that runs without a transaction, such as
// a cleanup pass that only attaches deletes.
var NoTxn Txn = noTxn{}
