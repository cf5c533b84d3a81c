package mount

import (
	fusefs "bazil.org/fuse/fs"
)

// Node represents a filesystem node (file or directory)
type Node interface {
	fusefs.Node
	fusefs.NodeSetattrer
}

// Directory represents a directory in the mounted file system
type Directory interface {
	Node
	fusefs.NodeStringLookuper
	fusefs.HandleReadDirAller
	fusefs.NodeMkdirer
	fusefs.NodeCreater
	fusefs.NodeRemover
}

// FileInterface represents a file in the mounted file system
type FileInterface interface {
	Node
	fusefs.NodeOpener
	fusefs.NodeFsyncer
}

// FileHandleInterface represents an open file handle
type FileHandleInterface interface {
	fusefs.Handle
	fusefs.HandleReader
	fusefs.HandleWriter
	fusefs.HandleReleaser
}

var (
	_ fusefs.FS           = (*FS)(nil)
	_ Directory           = (*Dir)(nil)
	_ FileInterface       = (*File)(nil)
	_ FileHandleInterface = (*FileHandle)(nil)
)
