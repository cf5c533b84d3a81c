package fs

import (
	"fmt"

	"memfat/internal/blockstore"
	"memfat/internal/logging"
)

var (
	fsLogger = logging.GetLogger().WithPrefix("fs")
)

// Options configures a new FileSystem.
type Options struct {
	// BlockCount is the number of blocks in the arena. Zero selects
	// blockstore.DefaultBlockCount.
	BlockCount int
}

// FileSystem is an in-memory FAT-style file system. Each value is an
// independent instance. It is not safe for concurrent use; callers that share
// one across goroutines must serialize every call behind a single lock.
type FileSystem struct {
	store *blockstore.Store
	tree  *tree
	open  *openSet
	cwd   EntryID
}

// New creates a formatted, empty file system.
func New(opts Options) (*FileSystem, error) {
	count := opts.BlockCount
	if count == 0 {
		count = blockstore.DefaultBlockCount
	}

	store, err := blockstore.New(count)
	if err != nil {
		return nil, fmt.Errorf("creating block store: %w", err)
	}

	fs := &FileSystem{
		store: store,
		tree:  newTree(),
		open:  newOpenSet(),
		cwd:   rootID,
	}
	fsLogger.Info("Created file system: %d blocks of %d bytes", count, blockstore.BlockSize)
	return fs, nil
}

// Format discards every entry and frees every block. The working directory
// returns to the root and all files are closed. Block contents in the arena
// are not zeroed.
func (fs *FileSystem) Format() {
	fs.store.Reset()
	fs.tree = newTree()
	fs.open.clear()
	fs.cwd = rootID
	fsLogger.Info("Formatted file system")
}

// Getwd returns the absolute path of the working directory.
func (fs *FileSystem) Getwd() string {
	return fs.tree.path(fs.cwd)
}

// BlockCount returns the number of blocks in the arena.
func (fs *FileSystem) BlockCount() int {
	return fs.store.Count()
}

// FreeBlocks returns the number of unallocated blocks.
func (fs *FileSystem) FreeBlocks() int {
	return fs.store.FreeCount()
}

// Stat returns the metadata of the entry named by path.
func (fs *FileSystem) Stat(path string) (EntryInfo, error) {
	res, err := fs.resolve(path)
	if err != nil {
		return EntryInfo{}, NewFSError(OpStat, path, err)
	}
	return fs.tree.info(res.id), nil
}

// WalkFunc is called by Walk for every entry below the starting directory.
// Returning an error stops the walk and Walk returns it.
type WalkFunc func(path string, info EntryInfo) error

// Walk visits the entries below the directory named by path in depth-first
// pre-order, children sorted by name.
func (fs *FileSystem) Walk(path string, fn WalkFunc) error {
	res, err := fs.resolveDir(path)
	if err != nil {
		return NewFSError(OpStat, path, err)
	}
	return fs.walk(res.id, fs.tree.path(res.id), fn)
}

func (fs *FileSystem) walk(dir EntryID, dirPath string, fn WalkFunc) error {
	for _, id := range fs.tree.childIDs(dir) {
		info := fs.tree.info(id)
		childPath := dirPath + info.Name
		if dirPath != separator {
			childPath = dirPath + separator + info.Name
		}
		if err := fn(childPath, info); err != nil {
			return err
		}
		if info.IsDir() {
			if err := fs.walk(id, childPath, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
