package fs

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"memfat/internal/blockstore"

	"github.com/klauspost/compress/zstd"
)

// A snapshot is a versioned image that also carries block contents, so a
// save/format/load cycle reproduces file data and not only the tree:
//
//	magic "MEMFATSN" | version:u16 | blockCount:u32 | blockSize:u32 |
//	zstd( metadata image | contents of each allocated block, ascending index )

const (
	snapshotMagic   = "MEMFATSN"
	snapshotVersion = 1
	// SnapshotHeaderSize is the number of bytes needed to recognise a snapshot.
	SnapshotHeaderSize = len(snapshotMagic) + 2 + 4 + 4
)

// SnapshotOptions tunes snapshot encoding.
type SnapshotOptions struct {
	// Level is a zstd compression level (1-22). Zero selects the default.
	Level int
}

// IsSnapshot reports whether header starts with the snapshot magic.
func IsSnapshot(header []byte) bool {
	return bytes.HasPrefix(header, []byte(snapshotMagic))
}

// WriteSnapshot writes a snapshot of the file system, block contents included.
func (fs *FileSystem) WriteSnapshot(w io.Writer, opts SnapshotOptions) error {
	hdr := &encoder{w: w}
	hdr.bytes([]byte(snapshotMagic))
	hdr.u16(snapshotVersion)
	hdr.bytes(byteOrder.AppendUint32(nil, uint32(fs.store.Count())))
	hdr.bytes(byteOrder.AppendUint32(nil, blockstore.BlockSize))
	if hdr.err != nil {
		return NewFSError(OpSave, "", fmt.Errorf("%w: %v", ErrIOFailure, hdr.err))
	}

	encOpts := []zstd.EOption{}
	if opts.Level > 0 {
		encOpts = append(encOpts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.Level)))
	}
	zw, err := zstd.NewWriter(w, encOpts...)
	if err != nil {
		return NewFSError(OpSave, "", fmt.Errorf("creating compressor: %w", err))
	}

	if err := fs.SaveTo(zw); err != nil {
		zw.Close()
		return NewFSError(OpSave, "", err)
	}

	body := &encoder{w: zw}
	blocks := 0
	for b := 0; b < fs.store.Count(); b++ {
		if !fs.store.IsAllocated(b) {
			continue
		}
		data, err := fs.store.ReadBlock(b)
		if err != nil {
			invariant("reading allocated block %d: %v", b, err)
		}
		body.bytes(data)
		blocks++
	}
	if body.err != nil {
		zw.Close()
		return NewFSError(OpSave, "", fmt.Errorf("%w: %v", ErrIOFailure, body.err))
	}
	if err := zw.Close(); err != nil {
		return NewFSError(OpSave, "", fmt.Errorf("%w: %v", ErrIOFailure, err))
	}

	persistLogger.Debug("Wrote snapshot with %d data blocks", blocks)
	return nil
}

// ReadSnapshot replaces the file system, block contents included, with a
// snapshot read from r. On any error the current state is kept.
func (fs *FileSystem) ReadSnapshot(r io.Reader) error {
	hdr := &decoder{r: r}
	magic := make([]byte, len(snapshotMagic))
	hdr.read(magic)
	version := hdr.u16()
	var geometry [8]byte
	hdr.read(geometry[:])
	if hdr.err != nil {
		return NewFSError(OpLoad, "", fmt.Errorf("%w: reading snapshot header: %v", ErrIOFailure, hdr.err))
	}
	if !IsSnapshot(magic) {
		return NewFSError(OpLoad, "", fmt.Errorf("%w: not a snapshot", ErrIOFailure))
	}
	if version != snapshotVersion {
		return NewFSError(OpLoad, "", fmt.Errorf("%w: unsupported snapshot version %d", ErrIOFailure, version))
	}
	count := int(byteOrder.Uint32(geometry[:4]))
	size := int(byteOrder.Uint32(geometry[4:]))
	if count != fs.store.Count() || size != blockstore.BlockSize {
		return NewFSError(OpLoad, "", fmt.Errorf("%w: snapshot geometry %dx%d does not match %dx%d",
			ErrIOFailure, count, size, fs.store.Count(), blockstore.BlockSize))
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return NewFSError(OpLoad, "", fmt.Errorf("%w: %v", ErrIOFailure, err))
	}
	defer zr.Close()
	br := bufio.NewReader(zr)

	img, err := decodeImage(br, count)
	if err != nil {
		return NewFSError(OpLoad, "", err)
	}

	contents := make(map[int][]byte)
	body := &decoder{r: br}
	for b := 0; b < count; b++ {
		if !bitSet(img.bitmap, b) {
			continue
		}
		data := make([]byte, blockstore.BlockSize)
		body.read(data)
		contents[b] = data
	}
	if body.err != nil {
		return NewFSError(OpLoad, "", fmt.Errorf("%w: reading block contents: %v", ErrIOFailure, body.err))
	}

	if err := fs.install(img); err != nil {
		return NewFSError(OpLoad, "", err)
	}
	for b, data := range contents {
		if _, err := fs.store.WriteBlock(b, data); err != nil {
			invariant("restoring block %d: %v", b, err)
		}
	}

	persistLogger.Debug("Read snapshot with %d data blocks", len(contents))
	return nil
}
