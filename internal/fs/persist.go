package fs

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"memfat/internal/blockstore"
	"memfat/internal/logging"
)

// Image layout, little-endian, no header:
//
//	[bitmap: (BlockCount+7)/8 bytes]
//	[fat: BlockCount x uint16]
//	[tree]
//
// tree := childCount:u64 { nameLen:u64 name isDir:u8 startBlock:i32 size:i32 [tree if isDir] }
//
// Only metadata is stored. Block contents stay in the arena and are not part
// of the image; use WriteSnapshot for an image that carries them.

const (
	maxNameLen   = 1 << 16
	maxTreeDepth = 1 << 12
)

var (
	persistLogger = logging.GetLogger().WithPrefix("persist")
	byteOrder     = binary.LittleEndian
)

// SaveToDisk writes the metadata image to filename, replacing it.
func (fs *FileSystem) SaveToDisk(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return NewFSError(OpSave, filename, fmt.Errorf("%w: %v", ErrIOFailure, err))
	}

	if err := fs.SaveTo(f); err != nil {
		f.Close()
		return NewFSError(OpSave, filename, err)
	}
	if err := f.Close(); err != nil {
		return NewFSError(OpSave, filename, fmt.Errorf("%w: %v", ErrIOFailure, err))
	}
	persistLogger.Info("Saved image to %s", filename)
	return nil
}

// LoadFromDisk replaces the file system with the image in filename. On any
// error the current state is kept.
func (fs *FileSystem) LoadFromDisk(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return NewFSError(OpLoad, filename, fmt.Errorf("%w: %v", ErrIOFailure, err))
	}
	defer f.Close()

	if err := fs.LoadFrom(f); err != nil {
		return NewFSError(OpLoad, filename, err)
	}
	persistLogger.Info("Loaded image from %s", filename)
	return nil
}

// SaveTo writes the metadata image to w.
func (fs *FileSystem) SaveTo(w io.Writer) error {
	bw := bufio.NewWriter(w)
	enc := &encoder{w: bw}

	enc.bytes(fs.store.Bitmap())
	for _, v := range fs.store.FAT() {
		enc.u16(v)
	}
	fs.encodeDir(enc, rootID)

	if enc.err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, enc.err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	return nil
}

func (fs *FileSystem) encodeDir(enc *encoder, dir EntryID) {
	ids := fs.tree.childIDs(dir)
	enc.u64(uint64(len(ids)))
	for _, id := range ids {
		e := fs.tree.mustGet(id)
		enc.u64(uint64(len(e.name)))
		enc.bytes([]byte(e.name))
		enc.bool(e.isDir())
		enc.i32(int32(e.startBlock))
		enc.i32(int32(e.size))
		if e.isDir() {
			fs.encodeDir(enc, id)
		}
	}
}

// LoadFrom replaces the file system with the metadata image read from r. The
// working directory returns to the root and every file is closed. On any
// error the current state is kept.
//
// Names and chain heads are validated while decoding: a name must be
// resolvable, and a file must start at an allocated block that no other
// file starts at and no chain links to. Whole-chain properties such as
// termination and block sharing further down a chain are left to Check.
func (fs *FileSystem) LoadFrom(r io.Reader) error {
	br := bufio.NewReader(r)
	img, err := decodeImage(br, fs.store.Count())
	if err != nil {
		return err
	}
	// An image written for a different block count leaves bytes behind.
	if _, err := br.ReadByte(); err != io.EOF {
		return fmt.Errorf("%w: trailing data after directory tree", ErrIOFailure)
	}
	return fs.install(img)
}

// image is a fully decoded metadata image, not yet installed.
type image struct {
	bitmap []byte
	fat    []uint16
	tree   *tree

	linked map[int]bool // blocks some allocated block links to
	heads  map[int]bool // chain heads claimed by files decoded so far
}

func (fs *FileSystem) install(img *image) error {
	if err := fs.store.Restore(img.bitmap, img.fat); err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	fs.tree = img.tree
	fs.open.clear()
	fs.cwd = rootID
	return nil
}

func decodeImage(r io.Reader, blockCount int) (*image, error) {
	dec := &decoder{r: r}
	img := &image{
		bitmap: make([]byte, (blockCount+7)/8),
		fat:    make([]uint16, blockCount),
		tree:   newTree(),
		linked: make(map[int]bool),
		heads:  make(map[int]bool),
	}

	dec.read(img.bitmap)
	for i := range img.fat {
		img.fat[i] = dec.u16()
	}
	if dec.err != nil {
		return nil, fmt.Errorf("%w: reading allocation tables: %v", ErrIOFailure, dec.err)
	}
	for i, next := range img.fat {
		if bitSet(img.bitmap, i) && int(next) < blockCount {
			img.linked[int(next)] = true
		}
	}

	if err := decodeDir(dec, img, rootID, 0); err != nil {
		return nil, fmt.Errorf("%w: reading directory tree: %v", ErrIOFailure, err)
	}
	return img, nil
}

func decodeDir(dec *decoder, img *image, dir EntryID, depth int) error {
	if depth > maxTreeDepth {
		return errors.New("directory tree too deep")
	}

	count := dec.u64()
	for i := uint64(0); i < count && dec.err == nil; i++ {
		nameLen := dec.u64()
		if dec.err == nil && (nameLen == 0 || nameLen > maxNameLen) {
			return fmt.Errorf("invalid name length %d", nameLen)
		}
		name := make([]byte, nameLen)
		dec.read(name)
		isDir := dec.bool()
		startBlock := int(dec.i32())
		size := int(dec.i32())
		if dec.err != nil {
			break
		}

		if !validName(string(name)) {
			return fmt.Errorf("invalid entry name %q", name)
		}
		if _, exists := img.tree.lookup(dir, string(name)); exists {
			return fmt.Errorf("duplicate name %q", name)
		}
		if size < 0 {
			return fmt.Errorf("entry %q has negative size %d", name, size)
		}

		kind := KindFile
		if isDir {
			kind = KindDirectory
			startBlock = blockstore.NoBlock
		} else if startBlock != blockstore.NoBlock {
			switch {
			case !bitSet(img.bitmap, startBlock):
				return fmt.Errorf("file %q starts at unallocated block %d", name, startBlock)
			case img.linked[startBlock]:
				return fmt.Errorf("file %q starts inside another chain at block %d", name, startBlock)
			case img.heads[startBlock]:
				return fmt.Errorf("file %q shares head block %d with another file", name, startBlock)
			}
			img.heads[startBlock] = true
		}

		id := img.tree.insert(dir, string(name), kind, startBlock)
		img.tree.mustGet(id).size = size
		if isDir {
			if err := decodeDir(dec, img, id, depth+1); err != nil {
				return err
			}
		}
	}
	return dec.err
}

// validName reports whether name can be reached again by path resolution.
func validName(name string) bool {
	return name != "." && name != ".." && !strings.Contains(name, separator)
}

func bitSet(bitmap []byte, i int) bool {
	return i >= 0 && i/8 < len(bitmap) && bitmap[i/8]&(1<<(i%8)) != 0
}

// encoder and decoder carry the first error so call sites stay linear.

type encoder struct {
	w   io.Writer
	err error
	buf [8]byte
}

func (e *encoder) bytes(p []byte) {
	if e.err == nil {
		_, e.err = e.w.Write(p)
	}
}

func (e *encoder) u16(v uint16) {
	byteOrder.PutUint16(e.buf[:2], v)
	e.bytes(e.buf[:2])
}

func (e *encoder) i32(v int32) {
	byteOrder.PutUint32(e.buf[:4], uint32(v))
	e.bytes(e.buf[:4])
}

func (e *encoder) u64(v uint64) {
	byteOrder.PutUint64(e.buf[:8], v)
	e.bytes(e.buf[:8])
}

func (e *encoder) bool(v bool) {
	if v {
		e.bytes([]byte{1})
	} else {
		e.bytes([]byte{0})
	}
}

type decoder struct {
	r   io.Reader
	err error
	buf [8]byte
}

func (d *decoder) read(p []byte) {
	if d.err == nil {
		_, d.err = io.ReadFull(d.r, p)
	}
}

func (d *decoder) u16() uint16 {
	d.read(d.buf[:2])
	return byteOrder.Uint16(d.buf[:2])
}

func (d *decoder) i32() int32 {
	d.read(d.buf[:4])
	return int32(byteOrder.Uint32(d.buf[:4]))
}

func (d *decoder) u64() uint64 {
	d.read(d.buf[:8])
	return byteOrder.Uint64(d.buf[:8])
}

func (d *decoder) bool() bool {
	d.read(d.buf[:1])
	return d.buf[0] != 0
}
