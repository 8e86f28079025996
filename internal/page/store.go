package page

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// Store persists page images. Pages beyond NumBlocks read as zero pages, and
// writing past the end extends the store.
type Store interface {
	NumBlocks() (BlockNumber, error)
	ReadPage(blkno BlockNumber, dst Page) error
	WritePage(blkno BlockNumber, src Page) error
	Sync() error
	Close() error
}

// MemStore is an in-memory Store.
type MemStore struct {
	mu    sync.RWMutex
	pages [][]byte
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// NewMemStoreFrom returns an in-memory store holding copies of pages.
func NewMemStoreFrom(pages []Page) *MemStore {
	s := &MemStore{pages: make([][]byte, len(pages))}
	for i, p := range pages {
		s.pages[i] = append([]byte(nil), p...)
	}
	return s
}

func (s *MemStore) NumBlocks() (BlockNumber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return BlockNumber(len(s.pages)), nil
}

func (s *MemStore) ReadPage(blkno BlockNumber, dst Page) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(blkno) >= len(s.pages) || s.pages[blkno] == nil {
		clear(dst)
		return nil
	}
	copy(dst, s.pages[blkno])
	return nil
}

func (s *MemStore) WritePage(blkno BlockNumber, src Page) error {
	if len(src) != Size {
		return errors.AssertionFailedf("page: write of %d bytes to block %d", len(src), blkno)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for int(blkno) >= len(s.pages) {
		s.pages = append(s.pages, nil)
	}
	s.pages[blkno] = append(s.pages[blkno][:0], src...)
	return nil
}

func (s *MemStore) Sync() error  { return nil }
func (s *MemStore) Close() error { return nil }

// Restore writes pages to an empty store and syncs it.
func Restore(s Store, pages []Page) error {
	n, err := s.NumBlocks()
	if err != nil {
		return err
	}
	if n != 0 {
		return errors.AssertionFailedf("page: restore into a store with %d blocks", n)
	}
	for i, p := range pages {
		if err := s.WritePage(BlockNumber(i), p); err != nil {
			return errors.Wrapf(err, "page: restore block %d", i)
		}
	}
	return s.Sync()
}
