package viper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Version     int    `mapstructure:"version"`
	Compression string `mapstructure:"compression"`
}

func TestConfig_LoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.yaml")
	require.NoError(t, os.WriteFile(path, []byte("marshalling:\n  version: 2\n  compression: zstd\n"), 0o600))

	c := New()
	require.NoError(t, c.LoadFile(path))
	assert.True(t, c.IsSet("marshalling.version"))
	assert.Equal(t, "zstd", c.GetString("marshalling.compression"))

	var s sample
	require.NoError(t, c.UnmarshalKey("marshalling", &s))
	assert.Equal(t, sample{Version: 2, Compression: "zstd"}, s)
}

func TestConfig_LoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"marshalling":{"version":3}}`), 0o600))

	c := New()
	c.SetDefault("marshalling.compression", "none")
	require.NoError(t, c.LoadFile(path))

	var s sample
	require.NoError(t, c.UnmarshalKey("marshalling", &s))
	assert.Equal(t, 3, s.Version)
	assert.Equal(t, "none", c.GetString("marshalling.compression"))
}

func TestConfig_MissingFile(t *testing.T) {
	c := New()
	assert.Error(t, c.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestConfig_EnvOverride(t *testing.T) {
	t.Setenv("ROUNDTRIP_MARSHALLING_COMPRESSION", "snappy")
	c := New()
	assert.Equal(t, "snappy", c.GetString("marshalling.compression"))
}
