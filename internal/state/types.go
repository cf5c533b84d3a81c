// Package state persists memfat file systems to image files on the host.
package state

import (
	"fmt"
	"strings"
)

// Format selects how an image is written.
type Format int

const (
	// FormatImage is the headerless metadata-only image: bitmap, FAT and tree.
	FormatImage Format = iota
	// FormatSnapshot is the versioned, compressed image that includes block contents.
	FormatSnapshot
)

func (f Format) String() string {
	switch f {
	case FormatImage:
		return "image"
	case FormatSnapshot:
		return "snapshot"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat converts "image" or "snapshot" into a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "image":
		return FormatImage, nil
	case "snapshot":
		return FormatSnapshot, nil
	default:
		return FormatImage, fmt.Errorf("unknown image format %q", name)
	}
}

// Options configures a Manager.
type Options struct {
	// Format is used when saving. Loading detects the format.
	Format Format

	// BackupCount is how many previous images are kept. Zero disables backups.
	BackupCount int

	// CompressionLevel is the zstd level for snapshots; zero picks the default.
	CompressionLevel int
}
