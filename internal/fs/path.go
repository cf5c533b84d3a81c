package fs

import (
	"strings"

	"memfat/internal/logging"
)

var (
	pathLogger = logging.GetLogger().WithPrefix("path")
)

const separator = "/"

// resolution is the result of resolving a path: the entry it names and that
// entry's structural parent. The root is its own parent.
type resolution struct {
	id     EntryID
	parent EntryID
}

// segments splits a path into its non-empty components.
func segments(path string) []string {
	raw := strings.Split(path, separator)
	parts := raw[:0]
	for _, part := range raw {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// isAbs reports whether path resolves from the root.
func isAbs(path string) bool {
	return strings.HasPrefix(path, separator)
}

// resolve walks path from the root or the working directory. An empty path
// names the working directory.
func (fs *FileSystem) resolve(path string) (resolution, error) {
	cur := fs.cwd
	if isAbs(path) {
		cur = rootID
	}
	fs.tree.mustGet(cur)

	parts := segments(path)
	for i, name := range parts {
		switch name {
		case ".":
			continue
		case "..":
			cur = fs.tree.mustGet(cur).parent
			continue
		}

		if !fs.tree.mustGet(cur).isDir() {
			return resolution{}, ErrNotADirectory
		}
		next, ok := fs.tree.lookup(cur, name)
		if !ok {
			pathLogger.Trace("Segment %q of %q not found", name, path)
			return resolution{}, ErrNotFound
		}
		if i < len(parts)-1 && !fs.tree.mustGet(next).isDir() {
			pathLogger.Trace("Segment %q of %q is not a directory", name, path)
			return resolution{}, ErrNotADirectory
		}
		cur = next
	}

	res := resolution{id: cur, parent: fs.tree.mustGet(cur).parent}
	pathLogger.Trace("Resolved %q -> entry %d (parent %d)", path, res.id, res.parent)
	return res, nil
}

// resolveDir resolves path and requires it to name a directory.
func (fs *FileSystem) resolveDir(path string) (resolution, error) {
	res, err := fs.resolve(path)
	if err != nil {
		return res, err
	}
	if !fs.tree.mustGet(res.id).isDir() {
		return res, ErrNotADirectory
	}
	return res, nil
}

// resolveFile resolves path and requires it to name a file.
func (fs *FileSystem) resolveFile(path string) (resolution, error) {
	res, err := fs.resolve(path)
	if err != nil {
		return res, err
	}
	if fs.tree.mustGet(res.id).isDir() {
		return res, ErrNotFound
	}
	return res, nil
}

// splitPath separates the final component of path from its parent path.
// Trailing slashes are ignored. A path without a slash has the working
// directory as parent, which is spelled as the empty path.
func splitPath(path string) (parent, name string, err error) {
	if path == "" {
		return "", "", ErrNotFound
	}

	trimmed := strings.TrimRight(path, separator)
	if trimmed == "" {
		// "/" and friends name the root, which always exists
		return "", "", ErrAlreadyExists
	}

	idx := strings.LastIndex(trimmed, separator)
	switch {
	case idx < 0:
		parent, name = "", trimmed
	case idx == 0:
		parent, name = separator, trimmed[1:]
	default:
		parent, name = trimmed[:idx], trimmed[idx+1:]
	}

	if name == "." || name == ".." {
		return "", "", ErrAlreadyExists
	}
	return parent, name, nil
}

// resolveParent resolves the directory that would contain path and returns
// it with the new entry's name.
func (fs *FileSystem) resolveParent(path string) (EntryID, string, error) {
	parentPath, name, err := splitPath(path)
	if err != nil {
		return 0, "", err
	}
	res, err := fs.resolveDir(parentPath)
	if err != nil {
		return 0, "", err
	}
	return res.id, name, nil
}
