package mount

import "memfat/internal/fs"

func safeIntToUint64(n int) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	return uint32(n)
}

// inode maps an entry id to an inode number; the root is inode 1.
func inode(id fs.EntryID) uint64 {
	return uint64(id) + 1
}

func join(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
