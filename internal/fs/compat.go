package fs

// Compat exposes a FileSystem through the boolean contract used by simple
// front ends: operations report success as a bool, failed reads return empty
// content and a failed listing returns a single diagnostic line. The cause of
// the most recent failure is kept for callers that want it.
type Compat struct {
	fs      *FileSystem
	lastErr error
}

// NewCompat wraps fs.
func NewCompat(fs *FileSystem) *Compat {
	return &Compat{fs: fs}
}

// LastError returns the error of the most recent failed call, or nil if the
// most recent call succeeded.
func (c *Compat) LastError() error {
	return c.lastErr
}

func (c *Compat) ok(err error) bool {
	c.lastErr = err
	return err == nil
}

func (c *Compat) Format() {
	c.fs.Format()
	c.lastErr = nil
}

func (c *Compat) Mkdir(path string) bool      { return c.ok(c.fs.Mkdir(path)) }
func (c *Compat) Rmdir(path string) bool      { return c.ok(c.fs.Rmdir(path)) }
func (c *Compat) ChangeDir(path string) bool  { return c.ok(c.fs.ChangeDir(path)) }
func (c *Compat) CreateFile(path string) bool { return c.ok(c.fs.CreateFile(path)) }
func (c *Compat) OpenFile(path string) bool   { return c.ok(c.fs.OpenFile(path)) }
func (c *Compat) CloseFile(path string) bool  { return c.ok(c.fs.CloseFile(path)) }
func (c *Compat) DeleteFile(path string) bool { return c.ok(c.fs.DeleteFile(path)) }

func (c *Compat) WriteFile(path string, data []byte) bool {
	return c.ok(c.fs.WriteFile(path, data))
}

// ListDir lists path, or the working directory when path is empty. If path
// cannot be listed the result is the single line "Invalid directory: <path>".
func (c *Compat) ListDir(path string) []string {
	entries, err := c.fs.ListDir(path)
	if !c.ok(err) {
		return []string{"Invalid directory: " + path}
	}
	return entries
}

// ReadFile reads up to size bytes (all when size is negative). It returns
// empty content on failure.
func (c *Compat) ReadFile(path string, size int) []byte {
	data, err := c.fs.ReadFile(path, size)
	if !c.ok(err) {
		return []byte{}
	}
	return data
}

// SaveToDisk saves silently; the cause of a failure is kept in LastError.
func (c *Compat) SaveToDisk(filename string) {
	c.ok(c.fs.SaveToDisk(filename))
}

// LoadFromDisk loads silently; on failure the state is unchanged.
func (c *Compat) LoadFromDisk(filename string) {
	c.ok(c.fs.LoadFromDisk(filename))
}
