package state

import (
	"os"
	"path/filepath"
	"testing"

	"memfat/internal/fs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupManager(t *testing.T, opts Options) (*Manager, string) {
	t.Helper()
	imagePath := filepath.Join(t.TempDir(), "nested", "disk.img")
	manager, err := NewManager(imagePath, opts)
	require.NoError(t, err)
	return manager, imagePath
}

func populated(t *testing.T) *fs.FileSystem {
	t.Helper()
	fsys, err := fs.New(fs.Options{BlockCount: 32})
	require.NoError(t, err)
	require.NoError(t, fsys.Mkdir("/dir"))
	require.NoError(t, fsys.CreateFile("/dir/file"))
	require.NoError(t, fsys.OpenFile("/dir/file"))
	require.NoError(t, fsys.WriteFile("/dir/file", []byte("persisted bytes")))
	require.NoError(t, fsys.CloseFile("/dir/file"))
	return fsys
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("Snapshot")
	require.NoError(t, err)
	assert.Equal(t, FormatSnapshot, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatImage, f)

	_, err = ParseFormat("tar")
	assert.Error(t, err)
}

func TestLoadEmptyImage(t *testing.T) {
	manager, imagePath := setupManager(t, Options{})

	info, err := os.Stat(imagePath)
	require.NoError(t, err, "manager creates the image file")
	assert.Zero(t, info.Size())

	fsys, err := fs.New(fs.Options{BlockCount: 32})
	require.NoError(t, err)
	loaded, err := manager.Load(fsys)
	require.NoError(t, err)
	assert.False(t, loaded)
}

func TestSaveLoadFormats(t *testing.T) {
	for _, format := range []Format{FormatImage, FormatSnapshot} {
		t.Run(format.String(), func(t *testing.T) {
			manager, _ := setupManager(t, Options{Format: format})
			require.NoError(t, manager.Save(populated(t)))

			fsys, err := fs.New(fs.Options{BlockCount: 32})
			require.NoError(t, err)
			loaded, err := manager.Load(fsys)
			require.NoError(t, err)
			require.True(t, loaded)

			entries, err := fsys.ListDir("/dir")
			require.NoError(t, err)
			assert.Equal(t, []string{"[FILE] file"}, entries)
			require.NoError(t, fsys.Check())

			require.NoError(t, fsys.OpenFile("/dir/file"))
			data, err := fsys.ReadFile("/dir/file", -1)
			require.NoError(t, err)
			if format == FormatSnapshot {
				assert.Equal(t, "persisted bytes", string(data))
			} else {
				// metadata only: the fresh arena has zeros
				assert.Equal(t, make([]byte, len("persisted bytes")), data)
			}
		})
	}
}

func TestBackupsAreRotated(t *testing.T) {
	manager, _ := setupManager(t, Options{BackupCount: 2})
	fsys := populated(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, manager.Save(fsys))
	}

	backups, err := manager.Backups()
	require.NoError(t, err)
	assert.Len(t, backups, 2)
}

func TestLoadCorruptImageKeepsState(t *testing.T) {
	manager, imagePath := setupManager(t, Options{})
	require.NoError(t, os.WriteFile(imagePath, []byte("garbage"), 0600))

	fsys := populated(t)
	_, err := manager.Load(fsys)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrIOFailure)

	_, err = fsys.Stat("/dir/file")
	assert.NoError(t, err)
}
