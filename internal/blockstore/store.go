// Package blockstore implements the fixed block arena that backs a memfat
// file system: the raw bytes, the allocation bitmap and the FAT that links the
// blocks of a file into a chain.
package blockstore

import (
	"errors"
	"fmt"

	"memfat/internal/logging"

	"github.com/bits-and-blooms/bitset"
)

const (
	// BlockSize is the size in bytes of every block in the arena.
	BlockSize = 512

	// DefaultBlockCount is the number of blocks in the reference configuration.
	DefaultBlockCount = 1024

	// EndOfChain marks the last block of a chain in the FAT.
	EndOfChain uint16 = 0xFFFF

	// Unused marks the FAT slot of a free block. It is never a valid index.
	Unused uint16 = 0xFFFE

	// MaxBlockCount is the largest arena whose indices stay clear of the sentinels.
	MaxBlockCount = int(Unused)

	// NoBlock is the chain head of entries that own no blocks.
	NoBlock = -1
)

var (
	logger = logging.GetLogger().WithPrefix("blockstore")

	// ErrOutOfSpace is returned when every block is allocated.
	ErrOutOfSpace = errors.New("no free blocks")

	// ErrInvalidBlock is returned for indices outside the arena.
	ErrInvalidBlock = errors.New("invalid block index")

	// ErrCorruptChain is returned when a FAT chain loops or leaves the arena.
	ErrCorruptChain = errors.New("corrupt block chain")
)

// Store is a fixed arena of blocks with a bitmap allocator and a FAT.
// It is not safe for concurrent use.
type Store struct {
	count int
	arena []byte
	used  *bitset.BitSet
	fat   []uint16
}

// New creates a store of count blocks, all free.
func New(count int) (*Store, error) {
	if count <= 0 || count > MaxBlockCount {
		return nil, fmt.Errorf("block count %d out of range 1..%d", count, MaxBlockCount)
	}

	s := &Store{
		count: count,
		arena: make([]byte, count*BlockSize),
		used:  bitset.New(uint(count)),
		fat:   make([]uint16, count),
	}
	s.Reset()
	logger.Debug("Created block store: %d blocks of %d bytes", count, BlockSize)
	return s, nil
}

// Count returns the number of blocks in the arena.
func (s *Store) Count() int {
	return s.count
}

// BitmapSize returns the number of bytes the bitmap occupies when persisted.
func (s *Store) BitmapSize() int {
	return (s.count + 7) / 8
}

// Reset marks every block free. The arena bytes are left as they are.
func (s *Store) Reset() {
	s.used.ClearAll()
	for i := range s.fat {
		s.fat[i] = Unused
	}
}

// Allocate claims the lowest-numbered free block and makes it a one-block chain.
func (s *Store) Allocate() (int, error) {
	idx, ok := s.used.NextClear(0)
	if !ok || idx >= uint(s.count) {
		logger.Debug("Allocation failed: all %d blocks in use", s.count)
		return NoBlock, ErrOutOfSpace
	}

	s.used.Set(idx)
	s.fat[idx] = EndOfChain
	logger.Trace("Allocated block %d", idx)
	return int(idx), nil
}

// FreeChain releases every block of the chain starting at head.
// NoBlock is accepted and ignored.
func (s *Store) FreeChain(head int) {
	block := head
	for steps := 0; block != NoBlock && steps < s.count; steps++ {
		if !s.valid(block) || !s.used.Test(uint(block)) {
			logger.Warn("Stopped freeing chain %d at unallocated block %d", head, block)
			return
		}

		next := s.fat[block]
		s.used.Clear(uint(block))
		s.fat[block] = Unused
		logger.Trace("Freed block %d", block)

		if next == EndOfChain {
			return
		}
		block = int(next)
	}
}

// Link makes next follow prev in the chain.
func (s *Store) Link(prev, next int) error {
	if !s.valid(prev) || !s.valid(next) {
		return fmt.Errorf("link %d -> %d: %w", prev, next, ErrInvalidBlock)
	}
	s.fat[prev] = uint16(next)
	return nil
}

// Next returns the block following b, or false at the end of the chain.
func (s *Store) Next(b int) (int, bool) {
	if !s.valid(b) {
		return NoBlock, false
	}
	next := s.fat[b]
	if next == EndOfChain || next == Unused {
		return NoBlock, false
	}
	return int(next), true
}

// Chain returns the block indices of the chain starting at head, in order.
func (s *Store) Chain(head int) ([]int, error) {
	if head == NoBlock {
		return nil, nil
	}

	var blocks []int
	block := head
	for {
		if !s.valid(block) || !s.used.Test(uint(block)) {
			return blocks, fmt.Errorf("chain %d reaches free block %d: %w", head, block, ErrCorruptChain)
		}
		if len(blocks) == s.count {
			return blocks, fmt.Errorf("chain %d does not terminate: %w", head, ErrCorruptChain)
		}
		blocks = append(blocks, block)

		next := s.fat[block]
		if next == EndOfChain {
			return blocks, nil
		}
		block = int(next)
	}
}

// WriteBlock copies up to BlockSize bytes of data into block b.
func (s *Store) WriteBlock(b int, data []byte) (int, error) {
	if !s.valid(b) {
		return 0, fmt.Errorf("write block %d: %w", b, ErrInvalidBlock)
	}
	return copy(s.arena[b*BlockSize:(b+1)*BlockSize], data), nil
}

// ReadBlock returns the bytes of block b. The slice aliases the arena.
func (s *Store) ReadBlock(b int) ([]byte, error) {
	if !s.valid(b) {
		return nil, fmt.Errorf("read block %d: %w", b, ErrInvalidBlock)
	}
	return s.arena[b*BlockSize : (b+1)*BlockSize], nil
}

// IsAllocated reports whether block b is in use.
func (s *Store) IsAllocated(b int) bool {
	return s.valid(b) && s.used.Test(uint(b))
}

// FreeCount returns the number of free blocks.
func (s *Store) FreeCount() int {
	return s.count - int(s.used.Count())
}

func (s *Store) valid(b int) bool {
	return b >= 0 && b < s.count
}
