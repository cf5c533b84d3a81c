// Package fs provides the memfat file system engine.
//
// This file contains error types and error handling utilities.
package fs

import (
	"errors"
	"fmt"

	"memfat/internal/blockstore"
	"memfat/internal/logging"
)

var (
	errLogger = logging.GetLogger().WithPrefix("error")

	// ErrNotFound indicates a path component or target does not exist
	ErrNotFound = errors.New("no such file or directory")

	// ErrNotADirectory indicates a directory was required but a file was found
	ErrNotADirectory = errors.New("not a directory")

	// ErrAlreadyExists indicates the target name is taken in its parent
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotEmpty indicates attempt to remove non-empty directory
	ErrNotEmpty = errors.New("directory not empty")

	// ErrNotOpen indicates a read or write on a file that is not open
	ErrNotOpen = errors.New("file not open")

	// ErrInUse indicates the target is open or is the working directory
	ErrInUse = errors.New("in use")

	// ErrOutOfSpace indicates the block store has no free blocks
	ErrOutOfSpace = blockstore.ErrOutOfSpace

	// ErrIOFailure indicates an image could not be read or written
	ErrIOFailure = errors.New("i/o failure")
)

// Error wraps file system errors with the operation and path that failed.
type Error struct {
	Op   string // Operation that failed (e.g., "mkdir", "write")
	Path string // Affected path
	Err  error  // Underlying error
}

// Error implements the error interface, providing a formatted error message
func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap implements error unwrapping for the errors.Is/As functions
func (e *Error) Unwrap() error {
	return e.Err
}

// NewFSError creates a new Error with the given operation, path, and underlying error
func NewFSError(op string, path string, err error) *Error {
	fsErr := &Error{
		Op:   op,
		Path: path,
		Err:  err,
	}
	errLogger.Debug("%v", fsErr)
	return fsErr
}

// Operation names for consistent logging and error reporting
const (
	OpFormat  = "format"
	OpMkdir   = "mkdir"
	OpRmdir   = "rmdir"
	OpListDir = "listdir"
	OpChdir   = "chdir"
	OpCreate  = "create"
	OpOpen    = "open"
	OpClose   = "close"
	OpWrite   = "write"
	OpRead    = "read"
	OpDelete  = "delete"
	OpStat    = "stat"
	OpSave    = "save"
	OpLoad    = "load"
	OpCheck   = "check"
)

// Cause returns the taxonomy sentinel wrapped by err, or nil if err does not
// carry one.
func Cause(err error) error {
	for _, sentinel := range []error{
		ErrNotFound,
		ErrNotADirectory,
		ErrAlreadyExists,
		ErrNotEmpty,
		ErrNotOpen,
		ErrInUse,
		ErrOutOfSpace,
		ErrIOFailure,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

// invariant reports a broken internal invariant. These are programming errors
// that should never happen, so they are not returned as ordinary errors.
func invariant(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	errLogger.Error("internal invariant violated: %s", msg)
	panic("memfat: internal invariant violated: " + msg)
}
