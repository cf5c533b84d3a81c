package mount

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"

	"memfat/internal/fs"

	"bazil.org/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPersister struct {
	saves int
	err   error
}

func (p *countingPersister) Save(_ *fs.FileSystem) error {
	p.saves++
	return p.err
}

func setupTestFS(t *testing.T) (*FS, *fs.FileSystem, *countingPersister) {
	t.Helper()

	fsys, err := fs.New(fs.Options{BlockCount: 32})
	require.NoError(t, err)

	p := &countingPersister{}
	return New(fsys, p, 1000, 1000), fsys, p
}

func rootDir(t *testing.T, m *FS) *Dir {
	t.Helper()
	root, err := m.Root()
	require.NoError(t, err)
	return root.(*Dir)
}

func TestDirOperations(t *testing.T) {
	m, fsys, p := setupTestFS(t)
	ctx := context.Background()
	root := rootDir(t, m)

	t.Run("RootDirectory", func(t *testing.T) {
		attr := &fuse.Attr{}
		require.NoError(t, root.Attr(ctx, attr))
		assert.True(t, attr.Mode.IsDir())
		assert.Equal(t, uint64(1), attr.Inode)
		assert.Equal(t, uint32(1000), attr.Uid)
	})

	t.Run("Mkdir", func(t *testing.T) {
		node, err := root.Mkdir(ctx, &fuse.MkdirRequest{Name: "docs", Mode: os.ModeDir | 0755})
		require.NoError(t, err)
		assert.Equal(t, "/docs", node.(*Dir).path)
		assert.Equal(t, 1, p.saves)

		info, err := fsys.Stat("/docs")
		require.NoError(t, err)
		assert.True(t, info.IsDir())

		_, err = root.Mkdir(ctx, &fuse.MkdirRequest{Name: "docs"})
		assert.Equal(t, syscall.EEXIST, err)
	})

	t.Run("Lookup", func(t *testing.T) {
		node, err := root.Lookup(ctx, "docs")
		require.NoError(t, err)
		docs, ok := node.(*Dir)
		require.True(t, ok)

		_, err = docs.Lookup(ctx, "missing")
		assert.Equal(t, syscall.ENOENT, err)
	})

	t.Run("CreateAndReadDirAll", func(t *testing.T) {
		node, handle, err := root.Create(ctx, &fuse.CreateRequest{Name: "notes.txt"}, &fuse.CreateResponse{})
		require.NoError(t, err)
		assert.True(t, fsys.IsOpen("/notes.txt"))
		require.NoError(t, handle.(*FileHandle).Release(ctx, &fuse.ReleaseRequest{}))
		assert.False(t, fsys.IsOpen("/notes.txt"))
		assert.Equal(t, "/notes.txt", node.(*File).path)

		entries, err := root.ReadDirAll(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "docs", entries[0].Name)
		assert.Equal(t, fuse.DT_Dir, entries[0].Type)
		assert.Equal(t, "notes.txt", entries[1].Name)
		assert.Equal(t, fuse.DT_File, entries[1].Type)
	})

	t.Run("Remove", func(t *testing.T) {
		docs, err := root.Lookup(ctx, "docs")
		require.NoError(t, err)
		_, handle, err := docs.(*Dir).Create(ctx, &fuse.CreateRequest{Name: "a"}, &fuse.CreateResponse{})
		require.NoError(t, err)

		assert.Equal(t, syscall.ENOTEMPTY, root.Remove(ctx, &fuse.RemoveRequest{Name: "docs", Dir: true}))
		assert.Equal(t, syscall.EBUSY, docs.(*Dir).Remove(ctx, &fuse.RemoveRequest{Name: "a"}),
			"the handle from Create is still open")

		require.NoError(t, handle.(*FileHandle).Release(ctx, &fuse.ReleaseRequest{}))
		require.NoError(t, docs.(*Dir).Remove(ctx, &fuse.RemoveRequest{Name: "a"}))
		require.NoError(t, root.Remove(ctx, &fuse.RemoveRequest{Name: "docs", Dir: true}))

		_, err = fsys.Stat("/docs")
		assert.ErrorIs(t, err, fs.ErrNotFound)
	})
}

func TestPersistFailureSurfaces(t *testing.T) {
	m, fsys, p := setupTestFS(t)
	p.err = errors.New("disk full")

	ctx := context.Background()
	root := rootDir(t, m)

	t.Run("Mkdir", func(t *testing.T) {
		_, err := root.Mkdir(ctx, &fuse.MkdirRequest{Name: "d"})
		assert.ErrorContains(t, err, "disk full")
	})

	t.Run("CreateLeavesFileClosed", func(t *testing.T) {
		_, _, err := root.Create(ctx, &fuse.CreateRequest{Name: "x"}, &fuse.CreateResponse{})
		assert.ErrorContains(t, err, "disk full")
		assert.False(t, fsys.IsOpen("/x"))
		assert.Empty(t, m.handles)

		assert.NotEqual(t, syscall.EBUSY, root.Remove(ctx, &fuse.RemoveRequest{Name: "x"}),
			"a failed create must not pin the file open")
		_, err = fsys.Stat("/x")
		assert.ErrorIs(t, err, fs.ErrNotFound)
	})
}

func TestToFuseError(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{fs.ErrNotFound, syscall.ENOENT},
		{fs.NewFSError(fs.OpMkdir, "/a", fs.ErrNotADirectory), syscall.ENOTDIR},
		{fs.ErrAlreadyExists, syscall.EEXIST},
		{fs.ErrNotEmpty, syscall.ENOTEMPTY},
		{fs.ErrNotOpen, syscall.EBADF},
		{fs.ErrInUse, syscall.EBUSY},
		{fs.ErrOutOfSpace, syscall.ENOSPC},
		{fs.ErrIOFailure, syscall.EIO},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToFuseError(tt.err), "%v", tt.err)
	}
	assert.NoError(t, ToFuseError(nil))
}

func mustStat(t *testing.T, fsys *fs.FileSystem, path string) fs.EntryInfo {
	t.Helper()
	info, err := fsys.Stat(path)
	require.NoError(t, err)
	return info
}
