package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8547", cfg.ListenAddress)
	require.Equal(t, filepath.Join(dir, "data"), cfg.DataDir)
	require.Equal(t, filepath.Join(dir, "params.yaml"), cfg.ParamsFile)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 25, cfg.RateLimitRPS)
	require.Equal(t, 50, cfg.RateLimitBurst)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config file should be written")

	// A second load reads the file it just wrote.
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.ListenAddress, again.ListenAddress)
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "ListenAddress = \":9000\"\nLogLevel = \"debug\"\nRateLimitRPS = -5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, filepath.Join(dir, "data"), cfg.DataDir)
	require.Equal(t, 25, cfg.RateLimitRPS, "non-positive rate limit falls back")
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("ListenAddress = [broken"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
