package xact

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXID_Precedes(t *testing.T) {
	assert.True(t, XID(5).Precedes(6))
	assert.False(t, XID(6).Precedes(6))
	assert.True(t, FrozenXID.Precedes(FirstNormalXID))
	assert.True(t, InvalidXID.Precedes(FrozenXID))

	// Wraparound: an id just before the wrap precedes a small id after it.
	assert.True(t, XID(math.MaxUint32-1).Precedes(FirstNormalXID+1))
	assert.Equal(t, "frozen", FrozenXID.String())
	assert.Equal(t, "42", XID(42).String())
}

func TestManager_Lifecycle(t *testing.T) {
	m := NewManager()

	t1 := m.Begin()
	assert.Equal(t, FirstNormalXID, t1.XID())
	assert.True(t, t1.Active())
	assert.True(t, m.IsInProgress(t1.XID()))
	assert.False(t, m.DidCommit(t1.XID()))

	require.NoError(t, t1.Commit())
	assert.False(t, t1.Active())
	assert.False(t, m.IsInProgress(t1.XID()))
	assert.True(t, m.DidCommit(t1.XID()))
	assert.ErrorIs(t, t1.Commit(), ErrNotActive)

	t2 := m.Begin()
	require.NoError(t, t2.Abort())
	assert.False(t, m.DidCommit(t2.XID()))
	assert.ErrorIs(t, t2.Abort(), ErrNotActive)

	assert.True(t, m.DidCommit(FrozenXID))
	assert.False(t, m.DidCommit(InvalidXID))
	assert.False(t, m.IsInProgress(FrozenXID))
}

func TestSnapshot_Visibility(t *testing.T) {
	m := NewManager()

	t1 := m.Begin()
	require.NoError(t, t1.Commit())
	running := m.Begin()

	reader := m.Begin()
	snap := reader.Snapshot()
	defer snap.Release()

	later := m.Begin()
	require.NoError(t, later.Commit())
	require.NoError(t, running.Commit())

	tests := []struct {
		name       string
		xmin, xmax XID
		want       bool
	}{
		{"committed before", t1.XID(), InvalidXID, true},
		{"running at snapshot", running.XID(), InvalidXID, false},
		{"started after", later.XID(), InvalidXID, false},
		{"own transaction", reader.XID(), InvalidXID, true},
		{"frozen", FrozenXID, InvalidXID, true},
		{"deleted before", t1.XID(), t1.XID(), false},
		{"deleted concurrently", t1.XID(), running.XID(), true},
		{"deleted after", t1.XID(), later.XID(), true},
		{"deleted frozen", t1.XID(), FrozenXID, false},
		{"invalid xmin", InvalidXID, InvalidXID, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, snap.Visible(m, tt.xmin, tt.xmax))
		})
	}
}

func TestManager_OldestXmin(t *testing.T) {
	m := NewManager()

	t1 := m.Begin()
	assert.Equal(t, t1.XID(), m.OldestXmin())

	snap := m.TakeSnapshot(NoTxn)
	require.NoError(t, t1.Commit())
	t2 := m.Begin()
	require.NoError(t, t2.Commit())

	// The snapshot still considers t1 running.
	assert.Equal(t, t1.XID(), m.OldestXmin())
	assert.False(t, t1.XID().Precedes(m.OldestXmin()))

	snap.Release()
	snap.Release()
	assert.Equal(t, m.NextXID(), m.OldestXmin())
	assert.True(t, t2.XID().Precedes(m.OldestXmin()))
}

func TestManager_WithNextXID(t *testing.T) {
	m := NewManager(WithNextXID(100))

	assert.True(t, m.DidCommit(50))
	assert.False(t, m.IsInProgress(50))
	assert.Equal(t, XID(100), m.Begin().XID())
}

func TestManager_Wraparound(t *testing.T) {
	m := NewManager(WithNextXID(math.MaxUint32 - 1))

	t1 := m.Begin()
	t2 := m.Begin()
	t3 := m.Begin()
	assert.Equal(t, XID(math.MaxUint32), t2.XID())
	assert.Equal(t, FirstNormalXID, t3.XID())

	require.NoError(t, t2.Commit())
	assert.Equal(t, t1.XID(), m.OldestXmin())
	snap := m.TakeSnapshot(nil)
	assert.Equal(t, t1.XID(), snap.Xmin)
	snap.Release()

	require.NoError(t, t1.Abort())
	assert.Equal(t, t3.XID(), m.OldestXmin())
	assert.True(t, m.DidCommit(t2.XID()))
	assert.False(t, m.DidCommit(t1.XID()))
	assert.False(t, m.DidCommit(t3.XID()))

	require.NoError(t, t3.Commit())
	assert.True(t, m.DidCommit(t3.XID()))
	assert.Equal(t, m.NextXID(), m.OldestXmin())
	assert.True(t, t2.XID().Precedes(m.OldestXmin()))
}

func TestNoTxn(t *testing.T) {
	assert.False(t, NoTxn.Active())
	assert.Equal(t, InvalidXID, NoTxn.XID())

	m := NewManager()
	snap := m.TakeSnapshot(NoTxn)
	defer snap.Release()
	assert.Equal(t, InvalidXID, snap.CurXID)
}
