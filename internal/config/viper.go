// Package config provides Viper-based hierarchical configuration management
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"log" yaml:"log"`

	Database struct {
		Path string `mapstructure:"path" yaml:"path"`
	} `mapstructure:"database" yaml:"database"`

	Rules struct {
		File string `mapstructure:"file" yaml:"file"`
	} `mapstructure:"rules" yaml:"rules"`

	CSV struct {
		Delimiter string `mapstructure:"delimiter" yaml:"delimiter"`
	} `mapstructure:"csv" yaml:"csv"`

	Import struct {
		// DedupeThreshold is the levenshtein similarity (0..1) above
		// which an incoming row is treated as a duplicate of an
		// existing same-date transaction.
		DedupeThreshold float64 `mapstructure:"dedupe_threshold" yaml:"dedupe_threshold"`
	} `mapstructure:"import" yaml:"import"`
}

// InitializeConfig loads configuration hierarchically: defaults, then
// an optional config.yaml in $HOME/.finagg, ./.finagg or ., then
// FINAGG_* environment variables.
func InitializeConfig() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.finagg")
	v.AddConfigPath(".finagg")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FINAGG")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Continue with defaults and env vars; a broken config
			// file should not make the CLI unusable.
			Logger.Warnf("error reading config file %s: %v", v.ConfigFileUsed(), err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.path", defaultDataPath("finagg.db"))
	v.SetDefault("rules.file", defaultConfigPath("rules.yaml"))
	v.SetDefault("csv.delimiter", ",")
	v.SetDefault("import.dedupe_threshold", 0.9)
}

// validateConfig checks configuration invariants that would otherwise
// surface as confusing runtime failures.
func validateConfig(c *Config) error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	if c.Import.DedupeThreshold < 0 || c.Import.DedupeThreshold > 1 {
		return fmt.Errorf("import.dedupe_threshold must be in [0,1], got %v", c.Import.DedupeThreshold)
	}
	return nil
}

// defaultConfigPath returns ~/.config/finagg/<name>, falling back to
// the working directory when the home directory is unavailable.
func defaultConfigPath(name string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(homeDir, ".config", "finagg", name)
}

// defaultDataPath returns ~/.local/share/finagg/<name>, falling back
// to the working directory when the home directory is unavailable.
func defaultDataPath(name string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(homeDir, ".local", "share", "finagg", name)
}
