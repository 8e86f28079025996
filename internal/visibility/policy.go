package visibility

import (
	"github.com/hupe1980/pagedir/internal/catalog"
	"github.com/hupe1980/pagedir/internal/xact"
)

// Kind identifies a visibility policy.
type Kind uint8

const (
	// KindSnapshot accepts segments visible to an MVCC snapshot.
	KindSnapshot Kind = iota
	// KindVacuum accepts every alive segment.
	KindVacuum
	// KindMergeable accepts alive segments no running merge is consuming.
	KindMergeable
	// KindParallelWorker accepts exactly the segments a leader handed out.
	KindParallelWorker
)

func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindVacuum:
		return "vacuum"
	case KindMergeable:
		return "mergeable"
	case KindParallelWorker:
		return "parallel_worker"
	}
	return "unknown"
}

// Policy selects which catalog entries a reader sees. Build one with Snapshot,
// Vacuum, Mergeable or ParallelWorker.
type Policy struct {
	kind Kind
	snap *xact.Snapshot
	ids  []catalog.SegmentID
}

// Snapshot returns the policy of a regular reader.
func Snapshot(snap *xact.Snapshot) Policy {
	return Policy{kind: KindSnapshot, snap: snap}
}

// Vacuum returns the policy of a vacuum pass.
func Vacuum() Policy {
	return Policy{kind: KindVacuum}
}

// Mergeable returns the policy used to pick merge inputs.
func Mergeable() Policy {
	return Policy{kind: KindMergeable}
}

// ParallelWorker returns the policy of a worker that must see exactly ids.
func ParallelWorker(ids []catalog.SegmentID) Policy {
	return Policy{kind: KindParallelWorker, ids: ids}
}

// Kind returns the policy kind.
func (p Policy) Kind() Kind {
	return p.kind
}
