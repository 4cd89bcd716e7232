// Package coreconfig provides chunkcore's configuration, loaded the way the
// teacher's internal/config package layers defaults under an optional YAML
// file, trimmed to the handful of knobs the Chunk & Versioning Core needs.
package coreconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is chunkcore's complete runtime configuration.
type Config struct {
	// DataDir is the root of the registry filesystem layout (chunks/, loras/, models/, history/).
	DataDir string `yaml:"data_dir"`

	// LockTimeout is read from the config file but not used by any
	// component: RegisterModel/HandleModelSwitch wait on the registry-wide
	// mutex without a timeout.
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// ChunkIDWidth is the zero-padded width for chunk_NNNN / lora_NNNN ids.
	ChunkIDWidth int `yaml:"chunk_id_width"`

	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level         string `yaml:"level"`
	FilePath      string `yaml:"file_path"`
	MaxSizeMB     int    `yaml:"max_size_mb"`
	MaxFiles      int    `yaml:"max_files"`
	WriteToStderr bool   `yaml:"write_to_stderr"`
}

// ServerConfig configures the MCP and HTTP transports.
type ServerConfig struct {
	// HTTPAddr is the listen address for the HTTP status-mapping shim, e.g. ":8765".
	// Empty disables the HTTP transport.
	HTTPAddr string `yaml:"http_addr"`
}

// Default returns sensible defaults rooted at ~/.chunkcore.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	dataDir := filepath.Join(home, ".chunkcore", "data")

	return &Config{
		DataDir:      dataDir,
		LockTimeout:  30 * time.Second,
		ChunkIDWidth: 4,
		Log: LogConfig{
			Level:         "info",
			FilePath:      filepath.Join(home, ".chunkcore", "logs", "core.log"),
			MaxSizeMB:     10,
			MaxFiles:      5,
			WriteToStderr: true,
		},
		Server: ServerConfig{
			HTTPAddr: ":8765",
		},
	}
}

// Load reads a YAML config file and overlays it on the defaults.
// A missing file is not an error: Load returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks that the config is usable.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.ChunkIDWidth < 4 {
		return fmt.Errorf("chunk_id_width must be at least 4, got %d", c.ChunkIDWidth)
	}
	return nil
}
