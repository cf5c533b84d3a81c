package fs

import (
	"sort"
	"strings"

	"memfat/internal/blockstore"
)

// EntryID identifies an entry for the lifetime of the tree that created it.
// IDs are never reused within one tree, so a stale ID simply fails to resolve.
type EntryID uint32

const rootID EntryID = 0

// Kind distinguishes files from directories.
type Kind uint8

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	if k == KindDirectory {
		return "DIR"
	}
	return "FILE"
}

type entry struct {
	name       string
	kind       Kind
	size       int
	startBlock int
	parent     EntryID
	children   map[string]EntryID // nil for files
}

func (e *entry) isDir() bool {
	return e.kind == KindDirectory
}

// tree is the namespace: an arena of entries addressed by id. Each directory
// maps child names to ids and each entry records its parent id.
type tree struct {
	entries map[EntryID]*entry
	nextID  EntryID
}

func newTree() *tree {
	t := &tree{entries: make(map[EntryID]*entry)}
	t.entries[rootID] = &entry{
		name:       "/",
		kind:       KindDirectory,
		startBlock: blockstore.NoBlock,
		parent:     rootID,
		children:   make(map[string]EntryID),
	}
	t.nextID = rootID + 1
	return t
}

func (t *tree) get(id EntryID) (*entry, bool) {
	e, ok := t.entries[id]
	return e, ok
}

// mustGet is for ids the engine itself holds, such as the working directory.
func (t *tree) mustGet(id EntryID) *entry {
	e, ok := t.entries[id]
	if !ok {
		invariant("entry %d is referenced but not in the tree", id)
	}
	return e
}

func (t *tree) lookup(dir EntryID, name string) (EntryID, bool) {
	d, ok := t.entries[dir]
	if !ok || !d.isDir() {
		return 0, false
	}
	id, ok := d.children[name]
	return id, ok
}

// insert adds a child to dir. The caller has already checked the name is free.
func (t *tree) insert(dir EntryID, name string, kind Kind, startBlock int) EntryID {
	parent := t.mustGet(dir)
	id := t.nextID
	t.nextID++

	e := &entry{
		name:       name,
		kind:       kind,
		startBlock: startBlock,
		parent:     dir,
	}
	if kind == KindDirectory {
		e.children = make(map[string]EntryID)
	}
	t.entries[id] = e
	parent.children[name] = id
	return id
}

// remove unlinks a leaf entry from its parent.
func (t *tree) remove(id EntryID) {
	if id == rootID {
		invariant("attempt to remove the root directory")
	}
	e := t.mustGet(id)
	if len(e.children) > 0 {
		invariant("attempt to remove non-empty directory %q", e.name)
	}
	delete(t.mustGet(e.parent).children, e.name)
	delete(t.entries, id)
}

// childIDs returns the children of dir ordered by name.
func (t *tree) childIDs(dir EntryID) []EntryID {
	d := t.mustGet(dir)
	names := make([]string, 0, len(d.children))
	for name := range d.children {
		names = append(names, name)
	}
	sort.Strings(names)

	ids := make([]EntryID, len(names))
	for i, name := range names {
		ids[i] = d.children[name]
	}
	return ids
}

// path returns the absolute path of id by following parent links.
func (t *tree) path(id EntryID) string {
	if id == rootID {
		return "/"
	}
	var parts []string
	for cur := id; cur != rootID; {
		e := t.mustGet(cur)
		parts = append(parts, e.name)
		cur = e.parent
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

// EntryInfo is a snapshot of an entry's metadata.
type EntryInfo struct {
	ID         EntryID
	Name       string
	Kind       Kind
	Size       int
	StartBlock int
}

// IsDir reports whether the entry is a directory.
func (i EntryInfo) IsDir() bool {
	return i.Kind == KindDirectory
}

func (t *tree) info(id EntryID) EntryInfo {
	e := t.mustGet(id)
	return EntryInfo{
		ID:         id,
		Name:       e.name,
		Kind:       e.kind,
		Size:       e.size,
		StartBlock: e.startBlock,
	}
}
