package page

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPage() Page {
	p := make(Page, Size)
	p.Init()
	return p
}

func TestPage_Init(t *testing.T) {
	p := make(Page, Size)
	assert.True(t, p.IsNew())

	p.Init()
	assert.False(t, p.IsNew())
	assert.Equal(t, InvalidBlockNumber, p.Next())
	assert.Equal(t, OffsetNumber(0), p.MaxOffset())
	assert.Equal(t, MaxItemSize, p.FreeSpace())
}

func TestPage_Items(t *testing.T) {
	p := newPage()

	off := p.AddItem([]byte("alpha"))
	require.Equal(t, FirstOffsetNumber, off)
	off = p.AddItem([]byte("beta"))
	require.Equal(t, OffsetNumber(2), off)

	item, ok := p.Item(1)
	require.True(t, ok)
	assert.Equal(t, "alpha", string(item))

	_, ok = p.Item(3)
	assert.False(t, ok)
	_, ok = p.Item(InvalidOffsetNumber)
	assert.False(t, ok)

	assert.Equal(t, InvalidOffsetNumber, p.AddItem(nil))
}

func TestPage_ReplaceItem(t *testing.T) {
	p := newPage()
	p.AddItem([]byte("aaaa"))
	p.AddItem([]byte("bbbb"))

	t.Run("same size", func(t *testing.T) {
		require.True(t, p.ReplaceItem(1, []byte("cccc")))
		item, _ := p.Item(1)
		assert.Equal(t, "cccc", string(item))
	})

	t.Run("grow", func(t *testing.T) {
		require.True(t, p.ReplaceItem(1, []byte("dddddddd")))
		item, _ := p.Item(1)
		assert.Equal(t, "dddddddd", string(item))
		item, _ = p.Item(2)
		assert.Equal(t, "bbbb", string(item))
	})

	t.Run("does not fit", func(t *testing.T) {
		big := bytes.Repeat([]byte{'x'}, MaxItemSize)
		assert.False(t, p.ReplaceItem(2, big))
		item, _ := p.Item(2)
		assert.Equal(t, "bbbb", string(item))
	})
}

func TestPage_DeleteItem(t *testing.T) {
	p := newPage()
	p.AddItem([]byte("one"))
	p.AddItem([]byte("two"))
	p.AddItem([]byte("three"))
	free := p.FreeSpace()

	require.True(t, p.DeleteItem(2))
	assert.Equal(t, OffsetNumber(2), p.MaxOffset())
	item, _ := p.Item(2)
	assert.Equal(t, "three", string(item))
	assert.Equal(t, free+len("two")+lineSize, p.FreeSpace())

	p.DeleteItems([]OffsetNumber{1, 2})
	assert.Equal(t, OffsetNumber(0), p.MaxOffset())
	assert.Equal(t, MaxItemSize, p.FreeSpace())
}

func TestPage_FillUp(t *testing.T) {
	p := newPage()
	item := bytes.Repeat([]byte{'z'}, 100)
	n := 0
	for p.AddItem(item) != InvalidOffsetNumber {
		n++
	}
	assert.Equal(t, (Size-headerSize-specialSize)/(100+lineSize), n)
	assert.Less(t, p.FreeSpace(), 100)
}

func TestPage_Contents(t *testing.T) {
	p := newPage()
	p.SetNext(42)

	copy(p.Contents(), "payload")
	p.SetContentsLen(7)
	assert.Equal(t, 7, p.ContentsLen())
	assert.Equal(t, "payload", string(p.Contents()[:p.ContentsLen()]))
	assert.Equal(t, MaxContentsSize, len(p.Contents()))
	assert.Equal(t, BlockNumber(42), p.Next())
}

func TestPage_Checksum(t *testing.T) {
	p := newPage()
	p.AddItem([]byte("checked"))
	p.SetChecksum()
	assert.True(t, p.VerifyChecksum())

	p[Size-100] ^= 0xff
	assert.False(t, p.VerifyChecksum())

	assert.True(t, make(Page, Size).VerifyChecksum())
}
