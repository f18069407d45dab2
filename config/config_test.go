package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bancored/crypto"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:5000", cfg.ListenAddr())
	require.Equal(t, "./database/usuarios.db", cfg.DBPath)
	require.Equal(t, "INFO", cfg.LogLevel)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, 5000, cfg.ServerPort)
}

func TestLoadTOMLAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(
		"ServerHost = \"0.0.0.0\"\nServerPort = 6100\nDBPath = \"/tmp/banco.db\"\n",
	), 0o600))

	t.Setenv(EnvServerPort, "6200")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.ServerHost)
	require.Equal(t, 6200, cfg.ServerPort, "environment overrides the file")
	require.Equal(t, "/tmp/banco.db", cfg.DBPath)
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv(EnvServerPort, "70000")
	_, err := Load("")
	require.Error(t, err)

	t.Setenv(EnvServerPort, "abc")
	_, err = Load("")
	require.Error(t, err)
}

func TestSharedKeyFromEnv(t *testing.T) {
	want := make([]byte, crypto.KeySize)
	for i := range want {
		want[i] = byte(i)
	}
	t.Setenv(EnvSharedKey, base64.StdEncoding.EncodeToString(want))

	cfg, err := Load("")
	require.NoError(t, err)
	key, err := cfg.SharedKey()
	require.NoError(t, err)
	require.Equal(t, want, key)
}

func TestSharedKeyRejectsWrongSize(t *testing.T) {
	t.Setenv(EnvSharedKey, base64.StdEncoding.EncodeToString([]byte("short")))
	cfg, err := Load("")
	require.NoError(t, err)
	_, err = cfg.SharedKey()
	require.Error(t, err)
}

func TestSharedKeyFromFile(t *testing.T) {
	t.Setenv(EnvSharedKey, "")
	want := make([]byte, crypto.KeySize)
	for i := range want {
		want[i] = byte(0xA0 + i%16)
	}
	path := filepath.Join(t.TempDir(), "shared_key.key")
	require.NoError(t, os.WriteFile(path, want, 0o600))
	t.Setenv(EnvSharedKeyFile, path)

	cfg, err := Load("")
	require.NoError(t, err)
	key, err := cfg.SharedKey()
	require.NoError(t, err)
	require.Equal(t, want, key)
}

func TestSharedKeyMissingFailsFast(t *testing.T) {
	t.Setenv(EnvSharedKey, "")
	t.Setenv(EnvSharedKeyFile, filepath.Join(t.TempDir(), "nope.key"))
	cfg, err := Load("")
	require.NoError(t, err)
	_, err = cfg.SharedKey()
	require.Error(t, err)
}
