package mount

import (
	"context"
	"fmt"

	"memfat/internal/blockstore"
	"memfat/internal/fs"
	"memfat/internal/logging"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	fileLogger = logging.GetLogger().WithPrefix("file")
)

// maxFileSize caps writes and truncates through the mount at what the whole
// store could hold.
func (m *FS) maxFileSize() int {
	return m.fsys.BlockCount() * blockstore.BlockSize
}

// File is a regular file node.
type File struct {
	fs   *FS
	path string
}

// Attr implements the Node interface, returning the file's attributes.
func (f *File) Attr(_ context.Context, a *fuse.Attr) error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	info, err := f.fs.fsys.Stat(f.path)
	if err != nil {
		return ToFuseError(err)
	}

	a.Inode = inode(info.ID)
	a.Mode = 0644
	a.Nlink = 1
	a.Size = safeIntToUint64(info.Size)
	a.Uid = f.fs.uid
	a.Gid = f.fs.gid
	a.BlockSize = blockstore.BlockSize
	a.Blocks = safeIntToUint64((info.Size + 511) / 512)

	fileLogger.Trace("File attributes: path=%q, size=%d", f.path, a.Size)
	return nil
}

// Open implements the NodeOpener interface, opening the file in the engine.
func (f *File) Open(_ context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	fileLogger.Debug("Opening file %q with flags %v", f.path, req.Flags)

	id, err := f.fs.acquire(f.path)
	if err != nil {
		fileLogger.Warn("Failed to open %q: %v", f.path, err)
		return nil, ToFuseError(err)
	}

	fh := &FileHandle{file: f, id: id}
	if req.Flags&fuse.OpenTruncate != 0 {
		if err := f.fs.fsys.WriteFile(f.path, nil); err != nil {
			_ = f.fs.release(id, f.path)
			return nil, ToFuseError(err)
		}
		fh.dirty = true
	}

	resp.Flags |= fuse.OpenDirectIO
	return fh, nil
}

// Setattr implements the NodeSetattrer interface. Only size changes are
// supported; they truncate or zero-extend the file.
func (f *File) Setattr(_ context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	if req.Valid.Size() {
		if req.Size > uint64(f.fs.maxFileSize()) {
			return ToFuseError(fs.ErrOutOfSpace)
		}
		size := int(req.Size)
		fileLogger.Debug("Resizing %q to %d bytes", f.path, size)

		err := f.fs.withOpen(f.path, func() error {
			data, err := f.fs.fsys.ReadFile(f.path, -1)
			if err != nil {
				return err
			}
			return f.fs.fsys.WriteFile(f.path, resize(data, size))
		})
		if err != nil {
			return ToFuseError(err)
		}
		if err := f.fs.persist(); err != nil {
			return err
		}
	}

	info, err := f.fs.fsys.Stat(f.path)
	if err != nil {
		return ToFuseError(err)
	}
	resp.Attr.Inode = inode(info.ID)
	resp.Attr.Mode = 0644
	resp.Attr.Size = safeIntToUint64(info.Size)
	resp.Attr.Uid = f.fs.uid
	resp.Attr.Gid = f.fs.gid
	return nil
}

// Fsync implements the NodeFsyncer interface by saving the image.
func (f *File) Fsync(_ context.Context, _ *fuse.FsyncRequest) error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	return f.fs.persist()
}

// FileHandle is an open handle on a file. Writes go through the engine's
// whole-file WriteFile; the image is saved when the handle is released.
type FileHandle struct {
	file  *File
	id    fs.EntryID
	dirty bool
}

// Read implements the HandleReader interface, reading data from the file.
func (fh *FileHandle) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	m := fh.file.fs
	m.mu.Lock()
	defer m.mu.Unlock()

	fileLogger.Trace("Reading %d bytes from file %q at offset %d",
		req.Size, fh.file.path, req.Offset)

	data, err := m.fsys.ReadFile(fh.file.path, -1)
	if err != nil {
		return ToFuseError(err)
	}

	if req.Offset >= int64(len(data)) {
		resp.Data = nil
		return nil
	}
	end := min(int(req.Offset)+req.Size, len(data))
	resp.Data = data[req.Offset:end]
	return nil
}

// Write implements the HandleWriter interface, splicing req.Data into the
// file at req.Offset.
func (fh *FileHandle) Write(_ context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	m := fh.file.fs
	m.mu.Lock()
	defer m.mu.Unlock()

	end := req.Offset + int64(len(req.Data))
	if end > int64(m.maxFileSize()) {
		return ToFuseError(fs.ErrOutOfSpace)
	}

	data, err := m.fsys.ReadFile(fh.file.path, -1)
	if err != nil {
		return ToFuseError(err)
	}
	if int(end) > len(data) {
		data = resize(data, int(end))
	}
	copy(data[req.Offset:], req.Data)

	if err := m.fsys.WriteFile(fh.file.path, data); err != nil {
		fileLogger.Warn("Write to %q failed: %v", fh.file.path, err)
		return ToFuseError(err)
	}
	fh.dirty = true
	resp.Size = len(req.Data)

	fileLogger.Trace("Wrote %d bytes to %q at offset %d", len(req.Data), fh.file.path, req.Offset)
	return nil
}

// Release implements the HandleReleaser interface, closing the file in the
// engine once its last handle goes away.
func (fh *FileHandle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	m := fh.file.fs
	m.mu.Lock()
	defer m.mu.Unlock()

	fileLogger.Debug("Releasing handle on %q", fh.file.path)
	if err := m.release(fh.id, fh.file.path); err != nil {
		return ToFuseError(err)
	}
	if !fh.dirty {
		return nil
	}
	fh.dirty = false
	if err := m.persist(); err != nil {
		return fmt.Errorf("releasing %s: %w", fh.file.path, err)
	}
	return nil
}

// resize returns data truncated or zero-extended to size bytes.
func resize(data []byte, size int) []byte {
	if size <= len(data) {
		return data[:size]
	}
	out := make([]byte, size)
	copy(out, data)
	return out
}
