package mount

import (
	"context"
	"os"

	"memfat/internal/logging"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	dirLogger = logging.GetLogger().WithPrefix("dir")
)

// Dir is a directory node, addressed by its absolute path in the engine.
type Dir struct {
	fs   *FS
	path string
}

// Attr implements the Node interface, returning directory attributes.
func (d *Dir) Attr(_ context.Context, a *fuse.Attr) error {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	dirLogger.Trace("Getting attributes for directory: %q", d.path)
	info, err := d.fs.fsys.Stat(d.path)
	if err != nil {
		return ToFuseError(err)
	}

	a.Inode = inode(info.ID)
	a.Mode = os.ModeDir | 0755
	a.Nlink = 2
	a.Uid = d.fs.uid
	a.Gid = d.fs.gid
	return nil
}

// Lookup implements the NodeStringLookuper interface, finding a child node.
func (d *Dir) Lookup(_ context.Context, name string) (fusefs.Node, error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	childPath := join(d.path, name)
	dirLogger.Debug("Looking up %q", childPath)

	info, err := d.fs.fsys.Stat(childPath)
	if err != nil {
		return nil, ToFuseError(err)
	}
	if info.IsDir() {
		return &Dir{fs: d.fs, path: childPath}, nil
	}
	return &File{fs: d.fs, path: childPath}, nil
}

// ReadDirAll implements the HandleReadDirAller interface, listing directory contents.
func (d *Dir) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	children, err := d.fs.fsys.ReadDir(d.path)
	if err != nil {
		return nil, ToFuseError(err)
	}

	entries := make([]fuse.Dirent, 0, len(children))
	for _, child := range children {
		typ := fuse.DT_File
		if child.IsDir() {
			typ = fuse.DT_Dir
		}
		entries = append(entries, fuse.Dirent{
			Inode: inode(child.ID),
			Name:  child.Name,
			Type:  typ,
		})
	}

	dirLogger.Debug("Directory %q contains %d entries", d.path, len(entries))
	return entries, nil
}

// Mkdir implements the NodeMkdirer interface, creating a new directory.
func (d *Dir) Mkdir(_ context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	newPath := join(d.path, req.Name)
	dirLogger.Info("Creating directory %q", newPath)

	if err := d.fs.fsys.Mkdir(newPath); err != nil {
		return nil, ToFuseError(err)
	}
	if err := d.fs.persist(); err != nil {
		return nil, err
	}
	return &Dir{fs: d.fs, path: newPath}, nil
}

// Create implements the NodeCreater interface, creating and opening a file.
func (d *Dir) Create(_ context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fusefs.Node, fusefs.Handle, error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	newPath := join(d.path, req.Name)
	dirLogger.Info("Creating file %q", newPath)

	if err := d.fs.fsys.CreateFile(newPath); err != nil {
		return nil, nil, ToFuseError(err)
	}
	id, err := d.fs.acquire(newPath)
	if err != nil {
		return nil, nil, ToFuseError(err)
	}
	if err := d.fs.persist(); err != nil {
		_ = d.fs.release(id, newPath)
		return nil, nil, err
	}

	resp.Flags |= fuse.OpenDirectIO
	file := &File{fs: d.fs, path: newPath}
	return file, &FileHandle{file: file, id: id}, nil
}

// Remove implements the NodeRemover interface, removing a file or directory.
func (d *Dir) Remove(_ context.Context, req *fuse.RemoveRequest) error {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	childPath := join(d.path, req.Name)
	dirLogger.Info("Removing %q (isDir=%v)", childPath, req.Dir)

	var err error
	if req.Dir {
		err = d.fs.fsys.Rmdir(childPath)
	} else {
		err = d.fs.fsys.DeleteFile(childPath)
	}
	if err != nil {
		dirLogger.Warn("Remove of %q failed: %v", childPath, err)
		return ToFuseError(err)
	}
	return d.fs.persist()
}

// Setattr implements the NodeSetattrer interface. Directories have no
// settable attributes, so the request is accepted and ignored.
func (d *Dir) Setattr(_ context.Context, _ *fuse.SetattrRequest, _ *fuse.SetattrResponse) error {
	return nil
}
