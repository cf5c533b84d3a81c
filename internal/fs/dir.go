package fs

import (
	"memfat/internal/blockstore"
	"memfat/internal/logging"
)

var (
	dirLogger = logging.GetLogger().WithPrefix("dir")
)

// Mkdir creates an empty directory. Directories never occupy blocks.
func (fs *FileSystem) Mkdir(path string) error {
	parent, name, err := fs.resolveParent(path)
	if err != nil {
		return NewFSError(OpMkdir, path, err)
	}
	if _, exists := fs.tree.lookup(parent, name); exists {
		return NewFSError(OpMkdir, path, ErrAlreadyExists)
	}

	id := fs.tree.insert(parent, name, KindDirectory, blockstore.NoBlock)
	dirLogger.Debug("Created directory %q (entry %d)", path, id)
	return nil
}

// Rmdir removes an empty directory. The root and the working directory
// cannot be removed.
func (fs *FileSystem) Rmdir(path string) error {
	res, err := fs.resolveDir(path)
	if err != nil {
		return NewFSError(OpRmdir, path, err)
	}
	if len(fs.tree.mustGet(res.id).children) > 0 {
		return NewFSError(OpRmdir, path, ErrNotEmpty)
	}
	if res.id == rootID || res.id == fs.cwd {
		return NewFSError(OpRmdir, path, ErrInUse)
	}

	fs.tree.remove(res.id)
	dirLogger.Debug("Removed directory %q", path)
	return nil
}

// ListDir lists the direct children of the directory named by path, or of the
// working directory when path is empty. Entries are sorted by name and
// formatted as "[DIR] name" or "[FILE] name".
func (fs *FileSystem) ListDir(path string) ([]string, error) {
	res, err := fs.resolveDir(path)
	if err != nil {
		return nil, NewFSError(OpListDir, path, err)
	}

	ids := fs.tree.childIDs(res.id)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		e := fs.tree.mustGet(id)
		out = append(out, "["+e.kind.String()+"] "+e.name)
	}
	dirLogger.Trace("Listed %d entries in %q", len(out), path)
	return out, nil
}

// ReadDir returns the metadata of the direct children of a directory,
// sorted by name.
func (fs *FileSystem) ReadDir(path string) ([]EntryInfo, error) {
	res, err := fs.resolveDir(path)
	if err != nil {
		return nil, NewFSError(OpListDir, path, err)
	}

	ids := fs.tree.childIDs(res.id)
	out := make([]EntryInfo, len(ids))
	for i, id := range ids {
		out[i] = fs.tree.info(id)
	}
	return out, nil
}

// ChangeDir makes the directory named by path the working directory.
func (fs *FileSystem) ChangeDir(path string) error {
	res, err := fs.resolveDir(path)
	if err != nil {
		return NewFSError(OpChdir, path, err)
	}
	fs.cwd = res.id
	dirLogger.Debug("Working directory is now %q", fs.tree.path(res.id))
	return nil
}
