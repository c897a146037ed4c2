package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airhacks/ping/pkg/config"
)

func envOf(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func runApp(t *testing.T, vars map[string]string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := newApp(&stdout, &stderr, envOf(vars)).RunContext(context.Background(), append([]string{"ping"}, args...))
	return stdout.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runApp(t, nil, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}

func TestConfigCommandDefaults(t *testing.T) {
	out, err := runApp(t, nil, "config")
	require.NoError(t, err)

	cfg, err := config.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestConfigCommandLayersFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ping.conf")
	require.NoError(t, os.WriteFile(path, []byte(`
server { listen_addr = ":9000" }
log { level = "debug" }
`), 0o600))

	out, err := runApp(t, map[string]string{"PING_LOG_FORMAT": "json"}, "config", "--config", path)
	require.NoError(t, err)

	cfg, err := config.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.ListenAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, config.FormatJSON, cfg.Log.Format)
}

func TestConfigCommandRejectsBadEnvironment(t *testing.T) {
	_, err := runApp(t, map[string]string{"PING_LOG_LEVEL": "shouty"}, "config")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid environment")
}

func TestServeFailsOnBadFlag(t *testing.T) {
	_, err := runApp(t, nil, "serve", "--log-format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid flags")
}
