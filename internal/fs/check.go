package fs

import (
	"fmt"

	"memfat/internal/blockstore"
)

// ErrCorrupt reports a structural inconsistency found by Check.
var ErrCorrupt = blockstore.ErrCorruptChain

// Check verifies the structural invariants of the file system:
//   - the bitmap and FAT agree on every block
//   - every file chain terminates inside the arena and fits the file size
//   - no block belongs to two chains, and no allocated block is orphaned
//   - directories own no blocks
func (fs *FileSystem) Check() error {
	if err := fs.store.Check(); err != nil {
		return NewFSError(OpCheck, "", err)
	}

	owner := make(map[int]string)
	err := fs.Walk(separator, func(path string, info EntryInfo) error {
		if info.IsDir() {
			if info.StartBlock != blockstore.NoBlock {
				return fmt.Errorf("directory %s owns block %d: %w", path, info.StartBlock, ErrCorrupt)
			}
			return nil
		}

		chain, err := fs.store.Chain(info.StartBlock)
		if err != nil {
			return fmt.Errorf("file %s: %w", path, err)
		}
		if capacity := len(chain) * blockstore.BlockSize; info.Size > capacity {
			return fmt.Errorf("file %s has %d bytes but only %d blocks: %w", path, info.Size, len(chain), ErrCorrupt)
		}
		for _, block := range chain {
			if prev, taken := owner[block]; taken {
				return fmt.Errorf("block %d is shared by %s and %s: %w", block, prev, path, ErrCorrupt)
			}
			owner[block] = path
		}
		return nil
	})
	if err != nil {
		return NewFSError(OpCheck, "", err)
	}

	for b := 0; b < fs.store.Count(); b++ {
		if _, owned := owner[b]; fs.store.IsAllocated(b) && !owned {
			return NewFSError(OpCheck, "", fmt.Errorf("block %d is allocated but unreachable: %w", b, ErrCorrupt))
		}
	}

	if _, ok := fs.tree.get(fs.cwd); !ok {
		return NewFSError(OpCheck, "", fmt.Errorf("working directory %d is not in the tree: %w", fs.cwd, ErrCorrupt))
	}
	return nil
}
