package page

// PinSet collects pins taken while enumerating a chain. Callers release it once they
// no longer dereference data reached through the pinned pages.
type PinSet struct {
	pins []*Pin
	seen map[BlockNumber]struct{}
}

// NewPinSet returns an empty pin set.
func NewPinSet() *PinSet {
	return &PinSet{seen: make(map[BlockNumber]struct{})}
}

// Add takes ownership of p. A block already in the set keeps a single pin.
func (s *PinSet) Add(p *Pin) {
	if _, ok := s.seen[p.Number()]; ok {
		p.Release()
		return
	}
	s.seen[p.Number()] = struct{}{}
	s.pins = append(s.pins, p)
}

// Contains reports whether blkno is pinned by the set.
func (s *PinSet) Contains(blkno BlockNumber) bool {
	if s == nil {
		return false
	}
	_, ok := s.seen[blkno]
	return ok
}

// Len returns the number of pinned blocks.
func (s *PinSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.pins)
}

// Release drops every pin in the set.
func (s *PinSet) Release() {
	if s == nil {
		return
	}
	for _, p := range s.pins {
		p.Release()
	}
	s.pins = nil
	clear(s.seen)
}
