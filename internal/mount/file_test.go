package mount

import (
	"context"
	"syscall"
	"testing"

	"bazil.org/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileOperations(t *testing.T) {
	m, fsys, p := setupTestFS(t)
	ctx := context.Background()
	root := rootDir(t, m)

	node, handle, err := root.Create(ctx, &fuse.CreateRequest{Name: "data.bin"}, &fuse.CreateResponse{})
	require.NoError(t, err)
	file := node.(*File)
	fh := handle.(*FileHandle)

	t.Run("WriteAtOffsets", func(t *testing.T) {
		resp := &fuse.WriteResponse{}
		require.NoError(t, fh.Write(ctx, &fuse.WriteRequest{Data: []byte("hello world")}, resp))
		assert.Equal(t, 11, resp.Size)

		require.NoError(t, fh.Write(ctx, &fuse.WriteRequest{Offset: 6, Data: []byte("there!")}, resp))
		require.NoError(t, fh.Write(ctx, &fuse.WriteRequest{Offset: 14, Data: []byte("x")}, resp))

		data, err := fsys.ReadFile("/data.bin", -1)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello there!\x00\x00x"), data)
	})

	t.Run("ReadRanges", func(t *testing.T) {
		resp := &fuse.ReadResponse{}
		require.NoError(t, fh.Read(ctx, &fuse.ReadRequest{Offset: 6, Size: 5}, resp))
		assert.Equal(t, "there", string(resp.Data))

		require.NoError(t, fh.Read(ctx, &fuse.ReadRequest{Offset: 12, Size: 100}, resp))
		assert.Equal(t, []byte("\x00\x00x"), resp.Data)

		require.NoError(t, fh.Read(ctx, &fuse.ReadRequest{Offset: 100, Size: 10}, resp))
		assert.Empty(t, resp.Data)
	})

	t.Run("Attributes", func(t *testing.T) {
		attr := &fuse.Attr{}
		require.NoError(t, file.Attr(ctx, attr))
		assert.False(t, attr.Mode.IsDir())
		assert.Equal(t, uint64(15), attr.Size)
		assert.Equal(t, uint64(1), attr.Blocks)
	})

	t.Run("ReleaseSaves", func(t *testing.T) {
		before := p.saves
		require.NoError(t, fh.Release(ctx, &fuse.ReleaseRequest{}))
		assert.Equal(t, before+1, p.saves)
		assert.False(t, fsys.IsOpen("/data.bin"))
	})

	t.Run("SharedHandles", func(t *testing.T) {
		h1, err := file.Open(ctx, &fuse.OpenRequest{}, &fuse.OpenResponse{})
		require.NoError(t, err)
		h2, err := file.Open(ctx, &fuse.OpenRequest{}, &fuse.OpenResponse{})
		require.NoError(t, err)

		require.NoError(t, h1.(*FileHandle).Release(ctx, &fuse.ReleaseRequest{}))
		assert.True(t, fsys.IsOpen("/data.bin"), "second handle keeps the file open")
		require.NoError(t, h2.(*FileHandle).Release(ctx, &fuse.ReleaseRequest{}))
		assert.False(t, fsys.IsOpen("/data.bin"))
	})

	t.Run("SetattrSize", func(t *testing.T) {
		req := &fuse.SetattrRequest{Valid: fuse.SetattrSize, Size: 5}
		resp := &fuse.SetattrResponse{}
		require.NoError(t, file.Setattr(ctx, req, resp))
		assert.Equal(t, uint64(5), resp.Attr.Size)
		assert.False(t, fsys.IsOpen("/data.bin"), "temporary open is undone")

		require.NoError(t, fsys.OpenFile("/data.bin"))
		data, err := fsys.ReadFile("/data.bin", -1)
		require.NoError(t, err)
		require.NoError(t, fsys.CloseFile("/data.bin"))
		assert.Equal(t, "hello", string(data))

		req = &fuse.SetattrRequest{Valid: fuse.SetattrSize, Size: 1 << 30}
		assert.Equal(t, syscall.ENOSPC, file.Setattr(ctx, req, resp))
	})

	t.Run("OpenTruncate", func(t *testing.T) {
		h, err := file.Open(ctx, &fuse.OpenRequest{Flags: fuse.OpenWriteOnly | fuse.OpenTruncate}, &fuse.OpenResponse{})
		require.NoError(t, err)
		info := mustStat(t, fsys, "/data.bin")
		assert.Equal(t, 0, info.Size)
		require.NoError(t, h.(*FileHandle).Release(ctx, &fuse.ReleaseRequest{}))
	})

	t.Run("WriteBeyondCapacity", func(t *testing.T) {
		h, err := file.Open(ctx, &fuse.OpenRequest{}, &fuse.OpenResponse{})
		require.NoError(t, err)
		defer h.(*FileHandle).Release(ctx, &fuse.ReleaseRequest{})

		big := make([]byte, 32*512)
		err = h.(*FileHandle).Write(ctx, &fuse.WriteRequest{Data: big}, &fuse.WriteResponse{})
		assert.Equal(t, syscall.ENOSPC, err, "the old chain still holds its block")
	})
}
