package page

import (
	"sync"
)

// epochs tracks scans that may still follow links into freed pages.
//
// Free stamps blocks with the epoch that was current when they were freed and
// advances the epoch. A scan entered at epoch s can only have observed links to a
// block freed at epoch e if s <= e, so a block is safe to reuse once no scan with
// an epoch at or below e is still running.
type epochs struct {
	mu      sync.Mutex
	current uint64
	active  map[uint64]int
}

func newEpochs() *epochs {
	return &epochs{active: make(map[uint64]int)}
}

func (e *epochs) enter() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active[e.current]++
	return e.current
}

func (e *epochs) exit(epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[epoch] <= 1 {
		delete(e.active, epoch)
		return
	}
	e.active[epoch]--
}

func (e *epochs) advance() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	freed := e.current
	e.current++
	return freed
}

// quiescent reports whether no running scan started at or before epoch.
func (e *epochs) quiescent(epoch uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for s := range e.active {
		if s <= epoch {
			return false
		}
	}
	return true
}

// Scan marks a running reader. End must be called when the reader no longer follows
// page links.
type Scan struct {
	e     *epochs
	epoch uint64
	ended bool
}

// End unregisters the scan.
func (s *Scan) End() {
	if s == nil || s.ended {
		return
	}
	s.ended = true
	s.e.exit(s.epoch)
}

type freeBlock struct {
	blkno BlockNumber
	epoch uint64
}

// freeSpaceMap holds blocks returned by chain commits and garbage collection.
//
// TODO: persist the free space map in a page chain so freed blocks survive a restart.
type freeSpaceMap struct {
	mu     sync.Mutex
	blocks []freeBlock
}

func (f *freeSpaceMap) add(epoch uint64, blocks []BlockNumber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range blocks {
		if b.Valid() {
			f.blocks = append(f.blocks, freeBlock{blkno: b, epoch: epoch})
		}
	}
}

// take removes and returns the oldest block that no scan or pin can still reach.
func (f *freeSpaceMap) take(m *Manager) (BlockNumber, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, fb := range f.blocks {
		if !m.epochs.quiescent(fb.epoch) || !m.CanCleanup(fb.blkno) {
			continue
		}
		f.blocks = append(f.blocks[:i], f.blocks[i+1:]...)
		return fb.blkno, true
	}
	return InvalidBlockNumber, false
}

func (f *freeSpaceMap) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blocks)
}
