package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and the working directory at empty temp
// directories so the test never picks up a developer's config file.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}

func TestInitializeConfig_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := InitializeConfig()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, ",", cfg.CSV.Delimiter)
	assert.Equal(t, 0.9, cfg.Import.DedupeThreshold)
	assert.Contains(t, cfg.Database.Path, filepath.Join("finagg", "finagg.db"))
	assert.Contains(t, cfg.Rules.File, filepath.Join("finagg", "rules.yaml"))
}

func TestInitializeConfig_EnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("FINAGG_LOG_LEVEL", "debug")
	t.Setenv("FINAGG_DATABASE_PATH", "/tmp/override.db")

	cfg, err := InitializeConfig()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
}

func TestInitializeConfig_ConfigFile(t *testing.T) {
	isolate(t)

	home := os.Getenv("HOME")
	dir := filepath.Join(home, ".finagg")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := "log:\n  level: warn\nimport:\n  dedupe_threshold: 0.75\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	cfg, err := InitializeConfig()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 0.75, cfg.Import.DedupeThreshold)
	// Untouched keys keep their defaults.
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestInitializeConfig_InvalidLogLevel(t *testing.T) {
	isolate(t)
	t.Setenv("FINAGG_LOG_LEVEL", "verbose")

	_, err := InitializeConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log level")
}

func TestInitializeConfig_ThresholdOutOfRange(t *testing.T) {
	isolate(t)
	t.Setenv("FINAGG_IMPORT_DEDUPE_THRESHOLD", "1.5")

	_, err := InitializeConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dedupe_threshold")
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		c := &Config{}
		c.Log.Level = "info"
		c.Import.DedupeThreshold = 0.9
		return c
	}

	assert.NoError(t, validateConfig(valid()))

	c := valid()
	c.Log.Level = "WARNING"
	assert.NoError(t, validateConfig(c), "level check is case-insensitive")

	c = valid()
	c.Import.DedupeThreshold = -0.1
	assert.Error(t, validateConfig(c))
}
