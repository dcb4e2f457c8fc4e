package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBadListen = errors.New("listen_addr is required")

type testConfig struct {
	ListenAddr string `json:"listen_addr"`
	Debug      bool   `json:"debug"`
}

func (c *testConfig) Validate() error {
	if c.ListenAddr == "" {
		return errBadListen
	}

	return nil
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadAndValidateFromFile(t *testing.T) {
	loader := NewConfig(nil)
	path := writeConfigFile(t, `{"listen_addr":"localhost:4222","debug":true}`)

	var cfg testConfig

	require.NoError(t, loader.LoadAndValidate(context.Background(), path, &cfg))
	assert.Equal(t, "localhost:4222", cfg.ListenAddr)
	assert.True(t, cfg.Debug)
}

func TestLoadAndValidateRunsValidator(t *testing.T) {
	loader := NewConfig(nil)
	path := writeConfigFile(t, `{"debug":true}`)

	var cfg testConfig

	err := loader.LoadAndValidate(context.Background(), path, &cfg)
	assert.ErrorIs(t, err, errBadListen)
}

func TestLoadAndValidateMissingFile(t *testing.T) {
	loader := NewConfig(nil)

	var cfg testConfig

	err := loader.LoadAndValidate(context.Background(), "/nonexistent/config.json", &cfg)
	assert.Error(t, err)
}

func TestLoadAndValidateBadJSON(t *testing.T) {
	loader := NewConfig(nil)
	path := writeConfigFile(t, `{not json`)

	var cfg testConfig

	assert.Error(t, loader.LoadAndValidate(context.Background(), path, &cfg))
}

func TestLoadAndValidateEnvSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("SERIALGATE_CONFIG_JSON", `{"listen_addr":"nats://localhost:4222"}`)

	loader := NewConfig(nil)

	var cfg testConfig

	require.NoError(t, loader.LoadAndValidate(context.Background(), "ignored", &cfg))
	assert.Equal(t, "nats://localhost:4222", cfg.ListenAddr)
}

func TestLoadAndValidateUnknownSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "consul")

	loader := NewConfig(nil)

	var cfg testConfig

	err := loader.LoadAndValidate(context.Background(), "ignored", &cfg)
	assert.ErrorIs(t, err, errInvalidConfigSource)
}
