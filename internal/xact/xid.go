package xact

import "fmt"

// XID is a transaction identifier.
type XID uint32

const (
	// InvalidXID marks an absent stamp. An entry whose xmax is InvalidXID is alive.
	InvalidXID XID = 0
	// BootstrapXID stamps data created while initializing a directory.
	BootstrapXID XID = 1
	// FrozenXID is known to be committed and not in progress for every reader.
	FrozenXID XID = 2
	// FirstNormalXID is the first id handed out to transactions.
	FirstNormalXID XID = 3
)

// IsNormal reports whether x was assigned to a transaction.
func (x XID) IsNormal() bool {
	return x >= FirstNormalXID
}

// Precedes reports whether x is logically older than y. Normal ids compare modulo
// 2^32 so the counter may wrap; special ids precede every normal id.
func (x XID) Precedes(y XID) bool {
	if !x.IsNormal() || !y.IsNormal() {
		return x < y
	}
	return int32(x-y) < 0
}

func (x XID) String() string {
	switch x {
	case InvalidXID:
		return "invalid"
	case BootstrapXID:
		return "bootstrap"
	case FrozenXID:
		return "frozen"
	}
	return fmt.Sprintf("%d", uint32(x))
}
