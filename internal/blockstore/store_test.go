package blockstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, count int) *Store {
	t.Helper()
	s, err := New(count)
	require.NoError(t, err)
	return s
}

func TestNewRejectsBadGeometry(t *testing.T) {
	for _, count := range []int{0, -1, MaxBlockCount + 1} {
		_, err := New(count)
		assert.Error(t, err, "count %d", count)
	}
}

func TestAllocateFirstFit(t *testing.T) {
	s := newTestStore(t, 8)

	for want := 0; want < 8; want++ {
		got, err := s.Allocate()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	t.Run("exhausted", func(t *testing.T) {
		_, err := s.Allocate()
		assert.ErrorIs(t, err, ErrOutOfSpace)
		assert.Equal(t, 0, s.FreeCount())
	})

	t.Run("freed block is reused", func(t *testing.T) {
		s.FreeChain(5)
		got, err := s.Allocate()
		require.NoError(t, err)
		assert.Equal(t, 5, got)
	})
}

func TestAllocateAfterResetStartsAtZero(t *testing.T) {
	s := newTestStore(t, 16)
	for i := 0; i < 10; i++ {
		_, err := s.Allocate()
		require.NoError(t, err)
	}

	s.Reset()
	got, err := s.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 0, got)
	assert.Equal(t, 15, s.FreeCount())
}

func TestChainLinkAndFree(t *testing.T) {
	s := newTestStore(t, 16)

	var blocks []int
	for i := 0; i < 4; i++ {
		b, err := s.Allocate()
		require.NoError(t, err)
		if len(blocks) > 0 {
			require.NoError(t, s.Link(blocks[len(blocks)-1], b))
		}
		blocks = append(blocks, b)
	}

	chain, err := s.Chain(blocks[0])
	require.NoError(t, err)
	assert.Equal(t, blocks, chain)

	next, ok := s.Next(blocks[1])
	assert.True(t, ok)
	assert.Equal(t, blocks[2], next)
	_, ok = s.Next(blocks[3])
	assert.False(t, ok)

	s.FreeChain(blocks[0])
	assert.Equal(t, 16, s.FreeCount())
	for _, b := range blocks {
		assert.False(t, s.IsAllocated(b))
	}
	require.NoError(t, s.Check())

	// NoBlock is a no-op
	s.FreeChain(NoBlock)
	assert.Equal(t, 16, s.FreeCount())
}

func TestChainDetectsCycle(t *testing.T) {
	s := newTestStore(t, 4)
	a, _ := s.Allocate()
	b, _ := s.Allocate()
	require.NoError(t, s.Link(a, b))
	require.NoError(t, s.Link(b, a))

	_, err := s.Chain(a)
	assert.ErrorIs(t, err, ErrCorruptChain)

	// Freeing a looping chain terminates
	s.FreeChain(a)
	assert.Equal(t, 4, s.FreeCount())
}

func TestBlockReadWrite(t *testing.T) {
	s := newTestStore(t, 2)
	n, err := s.WriteBlock(1, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	data, err := s.ReadBlock(1)
	require.NoError(t, err)
	assert.Len(t, data, BlockSize)
	assert.Equal(t, "hello", string(data[:5]))

	_, err = s.ReadBlock(2)
	assert.ErrorIs(t, err, ErrInvalidBlock)
}

func TestBitmapAndFATRoundTrip(t *testing.T) {
	s := newTestStore(t, 20)
	a, _ := s.Allocate()
	b, _ := s.Allocate()
	c, _ := s.Allocate()
	require.NoError(t, s.Link(a, c))
	s.FreeChain(b)

	bitmap := s.Bitmap()
	require.Len(t, bitmap, 3)
	assert.Equal(t, byte(0b101), bitmap[0])

	fat := s.FAT()
	assert.Equal(t, uint16(c), fat[a])
	assert.Equal(t, uint16(0), fat[b], "free slots persist as zero")
	assert.Equal(t, EndOfChain, fat[c])

	restored := newTestStore(t, 20)
	require.NoError(t, restored.Restore(bitmap, fat))
	require.NoError(t, restored.Check())

	chain, err := restored.Chain(a)
	require.NoError(t, err)
	assert.Equal(t, []int{a, c}, chain)

	got, err := restored.Allocate()
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestRestoreRejectsInconsistentInput(t *testing.T) {
	s := newTestStore(t, 8)
	_, _ = s.Allocate()

	err := s.Restore([]byte{0x01, 0x00}, make([]uint16, 8))
	assert.Error(t, err, "bitmap length mismatch")

	fat := make([]uint16, 8)
	fat[0] = 42
	err = s.Restore([]byte{0x01}, fat)
	assert.ErrorIs(t, err, ErrInvalidBlock)

	// Failed restores leave the original state alone
	assert.True(t, s.IsAllocated(0))
	assert.Equal(t, 7, s.FreeCount())
}
