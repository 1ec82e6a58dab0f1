package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrap_RequiresEnvVarsOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	os.Unsetenv("SERVER_ADDR")
	os.Unsetenv("PROJECT_KEY")

	err := Bootstrap(path)
	assert.Error(t, err)
}

func TestBootstrap_MaterializesConfigFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	t.Setenv("SERVER_ADDR", "collector.internal:9443")
	t.Setenv("PROJECT_KEY", "proj-xyz")

	require.NoError(t, Bootstrap(path))

	_, err := os.Stat(path)
	require.NoError(t, err)

	// Sources is required but not part of the env bootstrap, so Load should
	// fail until the operator adds at least one source.
	_, err = Load(path)
	assert.Error(t, err)
}

func TestBootstrap_NoopWhenConfigAlreadyExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_addr: existing:1\nproject_key: p\nsources:\n  - label: a\n    path: /tmp/a.log\n"), 0o644))

	t.Setenv("SERVER_ADDR", "should-be-ignored:1")
	t.Setenv("PROJECT_KEY", "should-be-ignored")

	require.NoError(t, Bootstrap(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "existing:1", cfg.ServerAddr)
}
