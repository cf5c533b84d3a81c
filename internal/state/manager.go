package state

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"memfat/internal/fs"
	"memfat/internal/logging"
)

var (
	logger = logging.GetLogger().WithPrefix("state")
)

const backupDirName = ".memfat-backups"

// Manager handles loading and saving a file system image
type Manager struct {
	imagePath   string
	backupDir   string
	backupCount int
	format      Format
	level       int
	mu          sync.Mutex
}

// NewManager creates a new manager for the image at imagePath.
// It ensures the image directory exists and is writable.
func NewManager(imagePath string, opts Options) (*Manager, error) {
	logger.Debug("Creating new state manager with path: %s", imagePath)

	absPath, err := filepath.Abs(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve image path %s: %w", imagePath, err)
	}
	logger.Debug("Resolved image path: %s", absPath)

	imageDir := filepath.Dir(absPath)
	if mkdirErr := os.MkdirAll(imageDir, 0755); mkdirErr != nil {
		return nil, fmt.Errorf("failed to create image directory %s: %w", imageDir, mkdirErr)
	}

	// Create the file if needed to verify we have write permissions
	f, writeErr := os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE, 0644)
	if writeErr != nil {
		return nil, fmt.Errorf("failed to open image file %s: %w", absPath, writeErr)
	}
	f.Close()

	backupDir := filepath.Join(imageDir, backupDirName)
	if opts.BackupCount > 0 {
		logger.Debug("Creating backup directory: %s", backupDir)
		if backupDirErr := os.MkdirAll(backupDir, 0755); backupDirErr != nil {
			return nil, fmt.Errorf("failed to create backup directory %s: %w", backupDir, backupDirErr)
		}
	}

	logger.Info("State manager ready for %s (%s format)", absPath, opts.Format)
	return &Manager{
		imagePath:   absPath,
		backupDir:   backupDir,
		backupCount: opts.BackupCount,
		format:      opts.Format,
		level:       opts.CompressionLevel,
	}, nil
}

// Path returns the absolute image path.
func (sm *Manager) Path() string {
	return sm.imagePath
}

// Load replaces the state of fsys with the stored image. An empty image file
// leaves fsys untouched and reports false.
func (sm *Manager) Load(fsys *fs.FileSystem) (bool, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	logger.Debug("Loading image from: %s", sm.imagePath)
	f, err := os.Open(sm.imagePath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("No image at %s, starting empty", sm.imagePath)
			return false, nil
		}
		return false, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	header, err := br.Peek(fs.SnapshotHeaderSize)
	if len(header) == 0 {
		if err == io.EOF {
			logger.Info("Image %s is empty, starting empty", sm.imagePath)
			return false, nil
		}
		return false, fmt.Errorf("failed to read image: %w", err)
	}

	if fs.IsSnapshot(header) {
		logger.Debug("Detected snapshot format")
		err = fsys.ReadSnapshot(br)
	} else {
		logger.Debug("Detected metadata image format")
		err = fsys.LoadFrom(br)
	}
	if err != nil {
		return false, fmt.Errorf("failed to load image %s: %w", sm.imagePath, err)
	}

	logger.Info("Image loaded successfully")
	return true, nil
}

// Save writes fsys to the image file, keeping a backup of the previous image.
// The new image is written to a temporary file and renamed into place.
func (sm *Manager) Save(fsys *fs.FileSystem) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	logger.Debug("Saving image to: %s", sm.imagePath)

	if sm.backupCount > 0 {
		if backupErr := sm.createBackup(); backupErr != nil {
			logger.Warn("Failed to create backup: %v", backupErr)
			// Continue with save even if backup fails
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(sm.imagePath), ".memfat-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary image: %w", err)
	}
	defer os.Remove(tmp.Name())

	switch sm.format {
	case FormatSnapshot:
		err = fsys.WriteSnapshot(tmp, fs.SnapshotOptions{Level: sm.level})
	default:
		err = fsys.SaveTo(tmp)
	}
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode image: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close image: %w", err)
	}

	if err := os.Rename(tmp.Name(), sm.imagePath); err != nil {
		return fmt.Errorf("failed to replace image: %w", err)
	}

	logger.Debug("Image saved successfully")
	return nil
}

// createBackup creates a timestamped copy of the current image file
func (sm *Manager) createBackup() error {
	info, err := os.Stat(sm.imagePath)
	if os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		return nil
	}
	if err != nil {
		return err
	}

	data, err := os.ReadFile(sm.imagePath)
	if err != nil {
		return err
	}

	timestamp := time.Now().UTC().Format("20060102-150405.000000000")
	backupPath := filepath.Join(sm.backupDir, fmt.Sprintf("%s-%s.bak", filepath.Base(sm.imagePath), timestamp))

	logger.Debug("Creating backup: %s", backupPath)
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}

	return sm.cleanupOldBackups()
}

// Backups returns the backup files of this image, newest first
func (sm *Manager) Backups() ([]string, error) {
	entries, err := os.ReadDir(sm.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	prefix := filepath.Base(sm.imagePath) + "-"
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && filepath.Ext(name) == ".bak" && len(name) > len(prefix) && name[:len(prefix)] == prefix {
			names = append(names, name)
		}
	}

	// Timestamps sort lexically, newest first
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(sm.backupDir, name)
	}
	return paths, nil
}

// cleanupOldBackups removes old backup files, keeping only the most recent ones
func (sm *Manager) cleanupOldBackups() error {
	backups, err := sm.Backups()
	if err != nil {
		return err
	}

	for i := sm.backupCount; i < len(backups); i++ {
		logger.Debug("Removing old backup: %s", backups[i])
		if err := os.Remove(backups[i]); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", backups[i], err)
		}
	}
	return nil
}
