// Package config provides configuration loading for imagescan.
package config

import (
	"fmt"
	"slices"

	"github.com/coral-mesh/imagescan/internal/logging"
	"github.com/coral-mesh/imagescan/internal/registry"
)

// Output formats accepted by Config.Output.
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputCSV  = "csv"
)

// Config is the imagescan configuration file.
type Config struct {
	Log LogConfig `yaml:"log"`

	// Output selects the report format (text, json or csv).
	Output string `yaml:"output" env:"IMAGESCAN_OUTPUT"`

	// Fingerprint hashes the bytes of each discovered block.
	Fingerprint bool `yaml:"fingerprint" env:"IMAGESCAN_FINGERPRINT"`

	// Kinds limits which metadata kinds are scanned.
	Kinds []string `yaml:"kinds" env:"IMAGESCAN_KINDS"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"IMAGESCAN_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"IMAGESCAN_LOG_PRETTY"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
		Output:      OutputText,
		Fingerprint: true,
		Kinds:       []string{string(registry.KindConformances), string(registry.KindTypeMetadata)},
	}
}

// Validate checks that every field holds an accepted value.
func (c *Config) Validate() error {
	if !slices.Contains(logging.Levels, c.Log.Level) {
		return fmt.Errorf("log.level: unknown level %q (want one of %v)", c.Log.Level, logging.Levels)
	}

	switch c.Output {
	case OutputText, OutputJSON, OutputCSV:
	default:
		return fmt.Errorf("output: unknown format %q (want %s, %s or %s)", c.Output, OutputText, OutputJSON, OutputCSV)
	}

	if len(c.Kinds) == 0 {
		return fmt.Errorf("kinds: at least one kind is required")
	}
	for _, k := range c.Kinds {
		if _, err := registry.ParseKind(k); err != nil {
			return fmt.Errorf("kinds: %w", err)
		}
	}

	return nil
}

// ScanKinds returns Kinds as registry kinds. Call Validate first.
func (c *Config) ScanKinds() []registry.Kind {
	kinds := make([]registry.Kind, 0, len(c.Kinds))
	for _, k := range c.Kinds {
		kind, err := registry.ParseKind(k)
		if err != nil {
			continue
		}
		if !slices.Contains(kinds, kind) {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// LoggingConfig converts the log section to a logging.Config.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Pretty = c.Log.Pretty
	return cfg
}
