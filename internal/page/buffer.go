package page

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/hupe1980/pagedir/internal/resource"
)

var (
	// ErrInvalidBlock is returned when a block number is outside the store.
	ErrInvalidBlock = errors.New("invalid block number")

	// ErrChecksumMismatch is returned when a page read from the store is corrupt.
	ErrChecksumMismatch = errors.New("page checksum mismatch")

	// ErrPageFull is returned when an item does not fit even on an empty page.
	ErrPageFull = errors.New("item does not fit on a page")
)

// LockMode selects how a buffer is locked.
type LockMode uint8

const (
	// LockShare allows concurrent readers.
	LockShare LockMode = iota
	// LockExclusive allows a single writer.
	LockExclusive
)

type frame struct {
	blkno BlockNumber
	lock  sync.RWMutex
	data  Page
	dirty atomic.Bool

	// pins is guarded by Manager.mu.
	pins int
}

// Manager is a buffer manager over a Store. Every page that has been touched stays
// resident; dirty pages are written back by Flush.
type Manager struct {
	mu      sync.Mutex
	store   Store
	frames  map[BlockNumber]*frame
	nblocks BlockNumber

	fsm    *freeSpaceMap
	epochs *epochs

	writers map[BlockNumber]*sync.Mutex

	rc     *resource.Controller
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithResourceController accounts resident page memory against rc.
func WithResourceController(rc *resource.Controller) Option {
	return func(m *Manager) {
		m.rc = rc
	}
}

// WithLogger sets the logger for the manager.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a buffer manager over store.
func NewManager(store Store, opts ...Option) (*Manager, error) {
	n, err := store.NumBlocks()
	if err != nil {
		return nil, errors.Wrap(err, "page: count blocks")
	}
	m := &Manager{
		store:   store,
		frames:  make(map[BlockNumber]*frame),
		nblocks: n,
		fsm:     &freeSpaceMap{},
		epochs:  newEpochs(),
		writers: make(map[BlockNumber]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// NumBlocks returns the number of allocated blocks.
func (m *Manager) NumBlocks() BlockNumber {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nblocks
}

// pin makes the frame for blkno resident and takes a pin on it.
func (m *Manager) pin(blkno BlockNumber) (*frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !blkno.Valid() || blkno >= m.nblocks {
		return nil, errors.Wrapf(ErrInvalidBlock, "block %d of %d", blkno, m.nblocks)
	}
	f, ok := m.frames[blkno]
	if !ok {
		if err := m.rc.AcquireMemory(Size); err != nil {
			return nil, err
		}
		data := make(Page, Size)
		if err := m.store.ReadPage(blkno, data); err != nil {
			m.rc.ReleaseMemory(Size)
			return nil, errors.Wrapf(err, "page: read block %d", blkno)
		}
		if !data.VerifyChecksum() {
			m.rc.ReleaseMemory(Size)
			return nil, errors.Wrapf(ErrChecksumMismatch, "block %d", blkno)
		}
		f = &frame{blkno: blkno, data: data}
		m.frames[blkno] = f
	}
	f.pins++
	return f, nil
}

func (m *Manager) unpin(f *frame) {
	m.mu.Lock()
	f.pins--
	m.mu.Unlock()
}

// Get pins and locks the page at blkno.
func (m *Manager) Get(blkno BlockNumber, mode LockMode) (*Buffer, error) {
	f, err := m.pin(blkno)
	if err != nil {
		return nil, err
	}
	if mode == LockExclusive {
		f.lock.Lock()
	} else {
		f.lock.RLock()
	}
	return &Buffer{m: m, f: f, mode: mode}, nil
}

// Exchange locks blkno and then releases prev, so that a chain is walked hand over hand.
func (m *Manager) Exchange(blkno BlockNumber, prev *Buffer, mode LockMode) (*Buffer, error) {
	next, err := m.Get(blkno, mode)
	prev.Release()
	return next, err
}

// Pin takes a pin on blkno without locking it.
func (m *Manager) Pin(blkno BlockNumber) (*Pin, error) {
	f, err := m.pin(blkno)
	if err != nil {
		return nil, err
	}
	return &Pin{m: m, f: f}, nil
}

// CanCleanup reports whether a cleanup lock on blkno could be taken right now.
// Blocks that are not resident are never pinned.
func (m *Manager) CanCleanup(blkno BlockNumber) bool {
	if !blkno.Valid() {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.frames[blkno]
	if !ok {
		return true
	}
	if f.pins > 0 {
		return false
	}
	if !f.lock.TryLock() {
		return false
	}
	f.lock.Unlock()
	return true
}

// LockWriter serializes writers of the structure rooted at blkno and returns the
// unlock function. Readers do not take it.
func (m *Manager) LockWriter(blkno BlockNumber) (unlock func()) {
	m.mu.Lock()
	mu, ok := m.writers[blkno]
	if !ok {
		mu = &sync.Mutex{}
		m.writers[blkno] = mu
	}
	m.mu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// New allocates a page, preferring a reusable block from the free space map, and
// returns it initialized and exclusively locked.
func (m *Manager) New() (*Buffer, error) {
	if blkno, ok := m.fsm.take(m); ok {
		buf, err := m.Get(blkno, LockExclusive)
		if err != nil {
			return nil, err
		}
		buf.PageMut().Init()
		return buf, nil
	}

	if err := m.rc.AcquireMemory(Size); err != nil {
		return nil, err
	}
	m.mu.Lock()
	blkno := m.nblocks
	m.nblocks++
	f := &frame{blkno: blkno, data: make(Page, Size), pins: 1}
	f.data.Init()
	f.dirty.Store(true)
	f.lock.Lock()
	m.frames[blkno] = f
	m.mu.Unlock()

	return &Buffer{m: m, f: f, mode: LockExclusive}, nil
}

// Free hands blocks back to the free space map. They become reusable once every scan
// that started before this call has ended and nobody holds a pin on them.
func (m *Manager) Free(blocks ...BlockNumber) {
	if len(blocks) == 0 {
		return
	}
	epoch := m.epochs.advance()
	m.fsm.add(epoch, blocks)
	if m.logger != nil {
		m.logger.Debug("blocks returned to fsm", "count", len(blocks), "epoch", epoch)
	}
}

// FreeBlocks returns the number of blocks waiting in the free space map.
func (m *Manager) FreeBlocks() int {
	return m.fsm.len()
}

// BeginScan registers a reader that may follow links into pages freed after this call.
func (m *Manager) BeginScan() *Scan {
	return &Scan{e: m.epochs, epoch: m.epochs.enter()}
}

// Flush writes every dirty page back to the store and syncs it.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	dirty := make([]*frame, 0, len(m.frames))
	for _, f := range m.frames {
		if f.dirty.Load() {
			dirty = append(dirty, f)
		}
	}
	m.mu.Unlock()

	img := make(Page, Size)
	for _, f := range dirty {
		if err := ctx.Err(); err != nil {
			return err
		}
		f.lock.RLock()
		copy(img, f.data)
		f.dirty.Store(false)
		f.lock.RUnlock()

		img.SetChecksum()
		if err := m.store.WritePage(f.blkno, img); err != nil {
			f.dirty.Store(true)
			return errors.Wrapf(err, "page: write block %d", f.blkno)
		}
	}
	if err := m.store.Sync(); err != nil {
		return errors.Wrap(err, "page: sync")
	}
	if m.logger != nil && len(dirty) > 0 {
		m.logger.Debug("flushed pages", "count", len(dirty))
	}
	return nil
}

// CopyPages returns a checksummed copy of every allocated block. Each page is copied
// under its share lock; the set as a whole is not a point-in-time image.
func (m *Manager) CopyPages(ctx context.Context) ([]Page, error) {
	n := m.NumBlocks()
	pages := make([]Page, 0, n)
	for blkno := BlockNumber(0); blkno < n; blkno++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf, err := m.Get(blkno, LockShare)
		if err != nil {
			return nil, err
		}
		cp := append(Page(nil), buf.Page()...)
		buf.Release()
		if !cp.IsNew() {
			cp.SetChecksum()
		}
		pages = append(pages, cp)
	}
	return pages, nil
}

// Close flushes dirty pages and closes the store.
func (m *Manager) Close(ctx context.Context) error {
	if err := m.Flush(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.rc.ReleaseMemory(int64(len(m.frames)) * Size)
	m.frames = make(map[BlockNumber]*frame)
	m.mu.Unlock()

	return m.store.Close()
}

// Buffer is a pinned and locked page. Release must be called on every path; it is
// idempotent so it can be deferred alongside an explicit early release.
type Buffer struct {
	m        *Manager
	f        *frame
	mode     LockMode
	released bool
}

// Number returns the block number of the buffer.
func (b *Buffer) Number() BlockNumber {
	return b.f.blkno
}

// Page returns the page for reading.
func (b *Buffer) Page() Page {
	return b.f.data
}

// PageMut returns the page for writing and marks it dirty.
func (b *Buffer) PageMut() Page {
	if b.mode != LockExclusive {
		panic(errors.AssertionFailedf("page: PageMut on share-locked block %d", b.f.blkno))
	}
	b.f.dirty.Store(true)
	return b.f.data
}

// Release unlocks and unpins the buffer.
func (b *Buffer) Release() {
	if b == nil || b.released {
		return
	}
	b.released = true
	if b.mode == LockExclusive {
		b.f.lock.Unlock()
	} else {
		b.f.lock.RUnlock()
	}
	b.m.unpin(b.f)
}

// Pin keeps a page from being reclaimed without locking it.
type Pin struct {
	m        *Manager
	f        *frame
	released bool
}

// Number returns the pinned block number.
func (p *Pin) Number() BlockNumber {
	return p.f.blkno
}

// Release drops the pin.
func (p *Pin) Release() {
	if p == nil || p.released {
		return
	}
	p.released = true
	p.m.unpin(p.f)
}
