package fs

import (
	"fmt"

	"memfat/internal/blockstore"
	"memfat/internal/logging"
)

var (
	fileLogger = logging.GetLogger().WithPrefix("file")
)

// CreateFile creates an empty file. The file is given a one-block chain
// straight away, so creation fails with ErrOutOfSpace on a full store.
func (fs *FileSystem) CreateFile(path string) error {
	parent, name, err := fs.resolveParent(path)
	if err != nil {
		return NewFSError(OpCreate, path, err)
	}
	if _, exists := fs.tree.lookup(parent, name); exists {
		return NewFSError(OpCreate, path, ErrAlreadyExists)
	}

	head, err := fs.store.Allocate()
	if err != nil {
		return NewFSError(OpCreate, path, err)
	}

	id := fs.tree.insert(parent, name, KindFile, head)
	fileLogger.Debug("Created file %q (entry %d, head block %d)", path, id, head)
	return nil
}

// OpenFile marks a file open. Opening an open file is a no-op.
func (fs *FileSystem) OpenFile(path string) error {
	res, err := fs.resolveFile(path)
	if err != nil {
		return NewFSError(OpOpen, path, err)
	}
	fs.open.add(res.id)
	fileLogger.Debug("Opened %q", path)
	return nil
}

// CloseFile marks a file closed. Closing a closed file is a no-op.
func (fs *FileSystem) CloseFile(path string) error {
	res, err := fs.resolveFile(path)
	if err != nil {
		return NewFSError(OpClose, path, err)
	}
	fs.open.remove(res.id)
	fileLogger.Debug("Closed %q", path)
	return nil
}

// IsOpen reports whether path names an open file.
func (fs *FileSystem) IsOpen(path string) bool {
	res, err := fs.resolveFile(path)
	return err == nil && fs.open.contains(res.id)
}

// OpenFiles returns the number of open files.
func (fs *FileSystem) OpenFiles() int {
	return fs.open.len()
}

// WriteFile replaces the whole content of an open file with data.
//
// The new chain is allocated and filled before the old one is released. If
// the store runs out of space the blocks claimed by this call are freed and
// the file keeps its previous content. A rewrite therefore needs room for the
// old and the new chain at the same time.
func (fs *FileSystem) WriteFile(path string, data []byte) error {
	res, err := fs.resolveFile(path)
	if err != nil {
		return NewFSError(OpWrite, path, err)
	}
	if !fs.open.contains(res.id) {
		return NewFSError(OpWrite, path, ErrNotOpen)
	}
	e := fs.tree.mustGet(res.id)

	needed := (len(data) + blockstore.BlockSize - 1) / blockstore.BlockSize
	if needed == 0 {
		// every file keeps a head block, even when empty
		needed = 1
	}

	chain := make([]int, 0, needed)
	for i := 0; i < needed; i++ {
		block, err := fs.store.Allocate()
		if err != nil {
			if len(chain) > 0 {
				fs.store.FreeChain(chain[0])
			}
			fileLogger.Warn("Write of %d bytes to %q needs %d blocks, only %d were free",
				len(data), path, needed, len(chain))
			return NewFSError(OpWrite, path, err)
		}
		if i > 0 {
			if err := fs.store.Link(chain[i-1], block); err != nil {
				invariant("linking freshly allocated blocks: %v", err)
			}
		}
		chain = append(chain, block)

		start := i * blockstore.BlockSize
		end := min(start+blockstore.BlockSize, len(data))
		if _, err := fs.store.WriteBlock(block, data[start:end]); err != nil {
			invariant("writing freshly allocated block: %v", err)
		}
	}

	old := e.startBlock
	fs.store.FreeChain(old)
	e.startBlock = chain[0]
	e.size = len(data)

	fileLogger.Debug("Wrote %d bytes to %q in %d blocks (head %d -> %d)",
		len(data), path, len(chain), old, e.startBlock)
	return nil
}

// ReadFile returns up to size bytes from the start of an open file. A negative
// size reads the whole file; larger sizes are clamped to the file size.
func (fs *FileSystem) ReadFile(path string, size int) ([]byte, error) {
	res, err := fs.resolveFile(path)
	if err != nil {
		return nil, NewFSError(OpRead, path, err)
	}
	if !fs.open.contains(res.id) {
		return nil, NewFSError(OpRead, path, ErrNotOpen)
	}
	e := fs.tree.mustGet(res.id)

	if size < 0 || size > e.size {
		size = e.size
	}

	blocks, err := fs.store.Chain(e.startBlock)
	if err != nil {
		return nil, NewFSError(OpRead, path, fmt.Errorf("%w: %v", ErrIOFailure, err))
	}

	out := make([]byte, 0, size)
	for _, block := range blocks {
		if len(out) >= size {
			break
		}
		buf, err := fs.store.ReadBlock(block)
		if err != nil {
			return nil, NewFSError(OpRead, path, fmt.Errorf("%w: %v", ErrIOFailure, err))
		}
		n := min(blockstore.BlockSize, size-len(out))
		out = append(out, buf[:n]...)
	}

	fileLogger.Trace("Read %d bytes from %q", len(out), path)
	return out, nil
}

// DeleteFile removes a closed file and releases its blocks.
func (fs *FileSystem) DeleteFile(path string) error {
	res, err := fs.resolveFile(path)
	if err != nil {
		return NewFSError(OpDelete, path, err)
	}
	if fs.open.contains(res.id) {
		return NewFSError(OpDelete, path, ErrInUse)
	}

	e := fs.tree.mustGet(res.id)
	fs.store.FreeChain(e.startBlock)
	fs.tree.remove(res.id)
	fileLogger.Debug("Deleted %q", path)
	return nil
}
