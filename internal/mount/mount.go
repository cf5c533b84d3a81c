// Package mount exposes a memfat file system through FUSE.
package mount

import (
	"fmt"
	"os"
	"sync"
	"time"

	"memfat/internal/fs"
	"memfat/internal/logging"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	mountLogger = logging.GetLogger().WithPrefix("mount")
)

// Persister stores the file system after every change made through the mount.
type Persister interface {
	Save(fsys *fs.FileSystem) error
}

// FS serves a memfat file system to the kernel. The engine is single-threaded,
// so every call into it happens under mu.
type FS struct {
	fsys      *fs.FileSystem
	persister Persister          // optional
	handles   map[fs.EntryID]int // open handles per file
	uid       uint32             // User ID for filesystem operations
	gid       uint32             // Group ID for filesystem operations
	conn      *fuse.Conn         // FUSE connection
	mu        sync.Mutex
}

// New wraps fsys. A negative uid or gid selects the current process's id.
// persister may be nil.
func New(fsys *fs.FileSystem, persister Persister, uid, gid int) *FS {
	if uid < 0 {
		uid = os.Getuid()
	}
	if gid < 0 {
		gid = os.Getgid()
	}
	mountLogger.Debug("Serving file system as uid=%d gid=%d", uid, gid)

	return &FS{
		fsys:      fsys,
		persister: persister,
		handles:   make(map[fs.EntryID]int),
		uid:       safeIntToUint32(uid),
		gid:       safeIntToUint32(gid),
	}
}

// Root implements the fusefs.FS interface, returning the root directory node.
func (m *FS) Root() (fusefs.Node, error) {
	return &Dir{fs: m, path: "/"}, nil
}

// persist saves the file system if a persister is configured. Callers hold mu.
func (m *FS) persist() error {
	if m.persister == nil {
		return nil
	}
	if err := m.persister.Save(m.fsys); err != nil {
		mountLogger.Error("Failed to save image: %v", err)
		return fmt.Errorf("saving image: %w", err)
	}
	return nil
}

// acquire opens the file at path in the engine and counts a handle on it.
// Callers hold mu.
func (m *FS) acquire(path string) (fs.EntryID, error) {
	if err := m.fsys.OpenFile(path); err != nil {
		return 0, err
	}
	info, err := m.fsys.Stat(path)
	if err != nil {
		return 0, err
	}
	m.handles[info.ID]++
	return info.ID, nil
}

// release drops a handle and closes the file in the engine when it was the
// last one. Callers hold mu.
func (m *FS) release(id fs.EntryID, path string) error {
	m.handles[id]--
	if m.handles[id] > 0 {
		return nil
	}
	delete(m.handles, id)
	return m.fsys.CloseFile(path)
}

// withOpen runs fn with path open in the engine, opening it temporarily when
// no handle holds it. Callers hold mu.
func (m *FS) withOpen(path string, fn func() error) error {
	info, err := m.fsys.Stat(path)
	if err != nil {
		return err
	}
	if m.handles[info.ID] > 0 {
		return fn()
	}

	if err := m.fsys.OpenFile(path); err != nil {
		return err
	}
	fnErr := fn()
	if err := m.fsys.CloseFile(path); err != nil && fnErr == nil {
		return err
	}
	return fnErr
}

func waitForMount(mountpoint string) error {
	for i := 0; i < 30; i++ {
		info, err := os.Stat(mountpoint)
		if err == nil && info.IsDir() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("mount point not available after 3 seconds")
}

// Mount mounts the file system at mountPoint and serves it in the background.
// The returned channel yields the result of the serve loop once it ends.
func (m *FS) Mount(mountPoint string) (<-chan error, error) {
	mountLogger.Info("Mounting memfat at %s", mountPoint)

	mountOpts := []fuse.MountOption{
		fuse.FSName("memfat"),
		fuse.Subtype("memfat"),
		fuse.DefaultPermissions(),
	}

	c, err := fuse.Mount(mountPoint, mountOpts...)
	if err != nil {
		return nil, fmt.Errorf("mount failed: %w", err)
	}
	m.conn = c

	done := make(chan error, 1)
	go func() {
		err := fusefs.Serve(c, m)
		if err != nil {
			mountLogger.Error("FUSE server error: %v", err)
		}
		done <- err
	}()

	if err := waitForMount(mountPoint); err != nil {
		c.Close()
		return nil, fmt.Errorf("mount point failed to initialize: %w", err)
	}

	mountLogger.Info("Filesystem mounted successfully")
	return done, nil
}

// Unmount cleanly unmounts the filesystem.
func (m *FS) Unmount(mountPoint string) error {
	mountLogger.Info("Unmounting filesystem from: %s", mountPoint)
	if m.conn == nil {
		return nil
	}
	if err := fuse.Unmount(mountPoint); err != nil {
		mountLogger.Error("Unmount failed: %v", err)
		return err
	}
	return m.conn.Close()
}
