package fs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T, blocks int) *FileSystem {
	t.Helper()
	fs, err := New(Options{BlockCount: blocks})
	require.NoError(t, err)
	return fs
}

// buildTree creates /a/b/c, /a/file.txt and /top.txt.
func buildTree(t *testing.T, fs *FileSystem) {
	t.Helper()
	require.NoError(t, fs.Mkdir("/a"))
	require.NoError(t, fs.Mkdir("/a/b"))
	require.NoError(t, fs.Mkdir("/a/b/c"))
	require.NoError(t, fs.CreateFile("/a/file.txt"))
	require.NoError(t, fs.CreateFile("/top.txt"))
}

func TestSegments(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: []string{}},
		{name: "root", input: "/", expected: []string{}},
		{name: "simple", input: "a/b", expected: []string{"a", "b"}},
		{name: "repeated slashes", input: "//a///b//", expected: []string{"a", "b"}},
		{name: "dots kept", input: "./a/../b", expected: []string{".", "a", "..", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, segments(tt.input))
		})
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		parent string
		child  string
		err    error
	}{
		{name: "relative name", input: "x", parent: "", child: "x"},
		{name: "absolute top level", input: "/x", parent: "/", child: "x"},
		{name: "nested", input: "/a/b/x", parent: "/a/b", child: "x"},
		{name: "relative nested", input: "a/x", parent: "a", child: "x"},
		{name: "trailing slash", input: "/a/x/", parent: "/a", child: "x"},
		{name: "empty", input: "", err: ErrNotFound},
		{name: "root", input: "/", err: ErrAlreadyExists},
		{name: "dot", input: "/a/.", err: ErrAlreadyExists},
		{name: "dotdot", input: "..", err: ErrAlreadyExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent, child, err := splitPath(tt.input)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.parent, parent)
			assert.Equal(t, tt.child, child)
		})
	}
}

func TestResolve(t *testing.T) {
	fs := newTestFS(t, 64)
	buildTree(t, fs)

	tests := []struct {
		name     string
		cwd      string
		input    string
		expected string
		err      error
	}{
		{name: "root", cwd: "/", input: "/", expected: "/"},
		{name: "empty is cwd", cwd: "/a/b", input: "", expected: "/a/b"},
		{name: "absolute", cwd: "/a/b", input: "/a", expected: "/a"},
		{name: "relative", cwd: "/a", input: "b/c", expected: "/a/b/c"},
		{name: "dot", cwd: "/a", input: ".", expected: "/a"},
		{name: "dotdot", cwd: "/a/b/c", input: "..", expected: "/a/b"},
		{name: "dotdot twice", cwd: "/a/b/c", input: "../..", expected: "/a"},
		{name: "dotdot at root", cwd: "/", input: "../../a", expected: "/a"},
		{name: "mixed", cwd: "/a/b", input: "./c/../../file.txt", expected: "/a/file.txt"},
		{name: "repeated slashes", cwd: "/", input: "//a//b/", expected: "/a/b"},
		{name: "missing final", cwd: "/", input: "/a/nope", err: ErrNotFound},
		{name: "missing middle", cwd: "/", input: "/nope/b", err: ErrNotFound},
		{name: "file in middle", cwd: "/", input: "/a/file.txt/x", err: ErrNotADirectory},
		{name: "file then dotdot", cwd: "/", input: "/top.txt/..", err: ErrNotADirectory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, fs.ChangeDir(tt.cwd))

			res, err := fs.resolve(tt.input)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, fs.tree.path(res.id))
			assert.Equal(t, fs.tree.mustGet(res.id).parent, res.parent)
		})
	}
}

func TestParentLinksAreStable(t *testing.T) {
	fs := newTestFS(t, 64)
	buildTree(t, fs)
	require.NoError(t, fs.ChangeDir("/a/b/c"))

	// Churn siblings at every level; the working directory must survive.
	for _, dir := range []string{"/", "/a", "/a/b"} {
		for _, name := range []string{"s1", "s2", "s3"} {
			p := dir + "/" + name
			require.NoError(t, fs.Mkdir(p))
		}
		require.NoError(t, fs.Rmdir(dir+"/s2"))
	}

	assert.Equal(t, "/a/b/c", fs.Getwd())
	require.NoError(t, fs.ChangeDir("../.."))
	assert.Equal(t, "/a", fs.Getwd())
}
