package blockstore

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Bitmap returns the allocation bitmap in its persisted form: one bit per
// block, least significant bit first within each byte.
func (s *Store) Bitmap() []byte {
	out := make([]byte, s.BitmapSize())
	for i, ok := s.used.NextSet(0); ok && i < uint(s.count); i, ok = s.used.NextSet(i + 1) {
		out[i/8] |= 1 << (i % 8)
	}
	return out
}

// FAT returns the FAT in its persisted form. Free slots are written as 0,
// which is what images produced by earlier tools contain; the bitmap tells
// them apart from a link to block 0.
func (s *Store) FAT() []uint16 {
	out := make([]uint16, s.count)
	for i, v := range s.fat {
		if v != Unused {
			out[i] = v
		}
	}
	return out
}

// Restore replaces the bitmap and FAT with the persisted forms produced by
// Bitmap and FAT. The store is left untouched when the input is inconsistent.
func (s *Store) Restore(bitmap []byte, fat []uint16) error {
	if len(bitmap) != s.BitmapSize() {
		return fmt.Errorf("bitmap is %d bytes, want %d", len(bitmap), s.BitmapSize())
	}
	if len(fat) != s.count {
		return fmt.Errorf("fat has %d entries, want %d", len(fat), s.count)
	}

	used := bitset.New(uint(s.count))
	table := make([]uint16, s.count)
	for i := 0; i < s.count; i++ {
		if bitmap[i/8]&(1<<(i%8)) == 0 {
			table[i] = Unused
			continue
		}
		v := fat[i]
		if v != EndOfChain && int(v) >= s.count {
			return fmt.Errorf("block %d links to %d: %w", i, v, ErrInvalidBlock)
		}
		used.Set(uint(i))
		table[i] = v
	}

	s.used = used
	s.fat = table
	logger.Debug("Restored allocation tables: %d of %d blocks in use", used.Count(), s.count)
	return nil
}

// Check verifies that the bitmap and FAT agree on every block.
func (s *Store) Check() error {
	for i := 0; i < s.count; i++ {
		allocated := s.used.Test(uint(i))
		free := s.fat[i] == Unused
		if allocated == free {
			return fmt.Errorf("block %d: bitmap says allocated=%v but fat slot is %#04x: %w",
				i, allocated, s.fat[i], ErrCorruptChain)
		}
		if allocated && s.fat[i] != EndOfChain && int(s.fat[i]) >= s.count {
			return fmt.Errorf("block %d links outside the arena: %w", i, ErrInvalidBlock)
		}
	}
	return nil
}
