package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultSocketPath, cfg.SocketPath)
	require.Equal(t, uint32(DefaultSocketMode), cfg.SocketMode)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, DefaultDatastore, cfg.Datastore)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trident.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"socketPath: /tmp/test.sock\nlogLevel: debug\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/test.sock", cfg.SocketPath)
	require.Equal(t, "debug", cfg.LogLevel)
	// Unset keys keep their defaults.
	require.Equal(t, uint32(DefaultSocketMode), cfg.SocketMode)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trident.yaml")
	require.NoError(t, os.WriteFile(path, []byte("socektPath: /oops\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
