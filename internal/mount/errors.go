package mount

import (
	"syscall"

	"memfat/internal/fs"
	"memfat/internal/logging"
)

var (
	errLogger = logging.GetLogger().WithPrefix("error")
)

// ToFuseError converts a file system error to the errno FUSE reports to the
// kernel.
func ToFuseError(err error) error {
	if err == nil {
		return nil
	}

	switch fs.Cause(err) {
	case fs.ErrNotFound:
		return syscall.ENOENT
	case fs.ErrNotADirectory:
		return syscall.ENOTDIR
	case fs.ErrAlreadyExists:
		return syscall.EEXIST
	case fs.ErrNotEmpty:
		return syscall.ENOTEMPTY
	case fs.ErrNotOpen:
		return syscall.EBADF
	case fs.ErrInUse:
		return syscall.EBUSY
	case fs.ErrOutOfSpace:
		return syscall.ENOSPC
	default:
		errLogger.Debug("Unmapped error, returning EIO: %v", err)
		return syscall.EIO
	}
}
