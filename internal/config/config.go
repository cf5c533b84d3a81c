// Package config loads memfat settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"

	"memfat/internal/blockstore"
	"memfat/internal/logging"
	"memfat/internal/state"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const (
	envVarPrefix = "MEMFAT"
	appName      = "memfat"
)

// Config holds every tunable of the memfat tool.
type Config struct {
	BlockCount       int    `envconfig:"BLOCK_COUNT"       yaml:"blockCount"`
	LogLevel         string `envconfig:"LOG_LEVEL"         yaml:"logLevel"`
	ImageFormat      string `envconfig:"IMAGE_FORMAT"      yaml:"imageFormat"`
	BackupCount      int    `envconfig:"BACKUP_COUNT"      yaml:"backupCount"`
	CompressionLevel int    `envconfig:"COMPRESSION_LEVEL" yaml:"compressionLevel"`
	// UID and GID own every node of a mounted file system; -1 means the
	// current process. PUID and PGID are honoured without the prefix.
	UID int `envconfig:"PUID" yaml:"uid"`
	GID int `envconfig:"PGID" yaml:"gid"`
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		BlockCount:       blockstore.DefaultBlockCount,
		LogLevel:         logging.LevelInfo.String(),
		ImageFormat:      state.FormatImage.String(),
		BackupCount:      5,
		CompressionLevel: 3,
		UID:              -1,
		GID:              -1,
	}
}

// Load reads configFile (if it exists) over the defaults and then applies the
// environment. An empty configFile falls back to MEMFAT_CONFIG_FILE.
func Load(configFile string) (*Config, error) {
	if configFile == "" {
		configFile = os.Getenv(envVarPrefix + "_CONFIG_FILE")
	}

	c := Default()
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// optional
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.UnmarshalStrict(data, &c); err != nil {
				return nil, fmt.Errorf("unmarshaling config file: %w", err)
			}
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.BlockCount <= 0 || c.BlockCount > blockstore.MaxBlockCount {
		return fmt.Errorf("%s: blockCount must be 1..%d, got %d", appName, blockstore.MaxBlockCount, c.BlockCount)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%s: logLevel: %w", appName, err)
	}
	if _, err := state.ParseFormat(c.ImageFormat); err != nil {
		return fmt.Errorf("%s: imageFormat: %w", appName, err)
	}
	if c.BackupCount < 0 {
		return fmt.Errorf("%s: backupCount must not be negative", appName)
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 22 {
		return fmt.Errorf("%s: compressionLevel must be 0..22, got %d", appName, c.CompressionLevel)
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() logging.LogLevel {
	level, _ := logging.ParseLevel(c.LogLevel)
	return level
}

// StateOptions returns the image manager options described by c.
func (c *Config) StateOptions() state.Options {
	format, _ := state.ParseFormat(c.ImageFormat)
	return state.Options{
		Format:           format,
		BackupCount:      c.BackupCount,
		CompressionLevel: c.CompressionLevel,
	}
}
