package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultDir is the per-user configuration directory.
	DefaultDir = ".imagescan"

	// ConfigFile is the configuration file name inside DefaultDir.
	ConfigFile = "config.yaml"

	// BaseDirEnv overrides the directory that contains DefaultDir.
	BaseDirEnv = "IMAGESCAN_CONFIG"
)

// Loader handles loading configuration files.
type Loader struct {
	homeDir string
}

// NewLoader creates a new config loader.
// The base directory is resolved in this order:
//  1. IMAGESCAN_CONFIG environment variable.
//  2. User home directory (~/).
//  3. The OS temp directory.
func NewLoader() *Loader {
	if baseDir := os.Getenv(BaseDirEnv); baseDir != "" {
		return &Loader{homeDir: baseDir}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		return &Loader{homeDir: homeDir}
	}

	return &Loader{homeDir: os.TempDir()}
}

// Path returns the path of the default config file.
func (l *Loader) Path() string {
	return filepath.Join(l.homeDir, DefaultDir, ConfigFile)
}

// Load reads the config file at path, or the default path when path is
// empty. A missing file yields defaults. Environment overrides are applied
// last and the result is validated.
func (l *Loader) Load(path string) (*Config, error) {
	if path == "" {
		path = l.Path()
	}

	cfg := DefaultConfig()

	//nolint:gosec // G304: Path is the operator's own config file.
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := MergeFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
