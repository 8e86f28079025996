package xact

import (
	"log/slog"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cockroachdb/errors"
)

// ErrNotActive is returned when finishing a transaction twice.
var ErrNotActive = errors.New("transaction is not active")

// Manager is an in-memory Oracle that hands out transactions and snapshots.
//
// Transaction status is not persisted. An assigned id that is neither running nor
// aborted has committed, so ids handed out before the manager was created, see
// WithNextXID, are taken to have committed.
type Manager struct {
	mu        sync.Mutex
	next      XID
	running   *roaring.Bitmap
	aborted   *roaring.Bitmap
	snapshots map[uint64]XID
	snapSeq   uint64

	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithNextXID starts assigning ids at next. Older ids count as committed.
func WithNextXID(next XID) Option {
	return func(m *Manager) {
		if next.IsNormal() {
			m.next = next
		}
	}
}

// WithLogger sets the logger for the manager.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a transaction manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		next:      FirstNormalXID,
		running:   roaring.New(),
		aborted:   roaring.New(),
		snapshots: make(map[uint64]XID),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin starts a transaction.
func (m *Manager) Begin() *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	xid := m.next
	m.next++
	if !m.next.IsNormal() {
		m.next = FirstNormalXID
	}
	m.running.Add(uint32(xid))

	if m.logger != nil {
		m.logger.Debug("transaction started", "xid", uint32(xid))
	}
	return &Transaction{m: m, xid: xid}
}

// NextXID returns the id the next transaction will get.
func (m *Manager) NextXID() XID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next
}

// TakeSnapshot captures the set of running transactions. txn may be nil or NoTxn.
// The snapshot holds back the global horizon until it is released.
func (m *Manager) TakeSnapshot(txn Txn) *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	xmin := m.oldestRunning()
	s := &Snapshot{
		Xmin:       xmin,
		Xmax:       m.next,
		InProgress: m.running.Clone(),
	}
	if txn != nil && txn.Active() {
		s.CurXID = txn.XID()
	}

	m.snapSeq++
	id := m.snapSeq
	m.snapshots[id] = xmin
	s.release = func() {
		m.mu.Lock()
		delete(m.snapshots, id)
		m.mu.Unlock()
	}
	return s
}

func (m *Manager) IsInProgress(xid XID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running.Contains(uint32(xid))
}

func (m *Manager) DidCommit(xid XID) bool {
	if !xid.IsNormal() {
		return xid != InvalidXID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running.Contains(uint32(xid)) || m.aborted.Contains(uint32(xid)) {
		return false
	}
	return xid.Precedes(m.next)
}

func (m *Manager) OldestXmin() XID {
	m.mu.Lock()
	defer m.mu.Unlock()

	horizon := m.oldestRunning()
	for _, xmin := range m.snapshots {
		if xmin.Precedes(horizon) {
			horizon = xmin
		}
	}
	return horizon
}

// oldestRunning returns the oldest running id in wraparound order, or the next id
// when nothing runs. Callers hold m.mu.
func (m *Manager) oldestRunning() XID {
	oldest := m.next
	it := m.running.Iterator()
	for it.HasNext() {
		if xid := XID(it.Next()); xid.Precedes(oldest) {
			oldest = xid
		}
	}
	return oldest
}

func (m *Manager) finish(xid XID, committed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running.Contains(uint32(xid)) {
		return errors.Wrapf(ErrNotActive, "xid %d", uint32(xid))
	}
	m.running.Remove(uint32(xid))
	if !committed {
		m.aborted.Add(uint32(xid))
	}
	return nil
}

// Transaction is a transaction started by a Manager.
type Transaction struct {
	m   *Manager
	xid XID

	mu   sync.Mutex
	done bool
}

func (t *Transaction) XID() XID {
	return t.xid
}

func (t *Transaction) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.done
}

// Snapshot takes a snapshot that sees the transaction's own effects.
func (t *Transaction) Snapshot() *Snapshot {
	return t.m.TakeSnapshot(t)
}

// Commit makes the transaction's stamps visible to snapshots taken afterwards.
func (t *Transaction) Commit() error {
	return t.end(true)
}

// Abort discards the transaction.
func (t *Transaction) Abort() error {
	return t.end(false)
}

func (t *Transaction) end(committed bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return errors.Wrapf(ErrNotActive, "xid %d", uint32(t.xid))
	}
	if err := t.m.finish(t.xid, committed); err != nil {
		return err
	}
	t.done = true
	if t.m.logger != nil {
		t.m.logger.Debug("transaction finished", "xid", uint32(t.xid), "committed", committed)
	}
	return nil
}

var (
	_ Oracle = (*Manager)(nil)
	_ Txn    = (*Transaction)(nil)
)
