package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/bw-secrets.sock", cfg.SocketPath)
	assert.Equal(t, "/tmp/bw-secrets.fail-count", cfg.FailCountFile)
	assert.Equal(t, 10, cfg.MaxFailures)
	assert.Equal(t, 10, cfg.MaxPromptAttempts)
	assert.Equal(t, time.Hour, cfg.RefreshInterval.Std())
	assert.Equal(t, 60*time.Second, cfg.ProviderTimeout.Std())
	assert.Equal(t, "bw", cfg.ProviderPath)
	assert.Contains(t, cfg.LaunchdLabel, "bw-secrets")
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
socket_path: /tmp/other.sock
max_failures: 5
refresh_interval: 30m
provider_timeout: 90s
provider_path: /opt/bin/bw
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/other.sock", cfg.SocketPath)
	assert.Equal(t, 5, cfg.MaxFailures)
	assert.Equal(t, 30*time.Minute, cfg.RefreshInterval.Std())
	assert.Equal(t, 90*time.Second, cfg.ProviderTimeout.Std())
	assert.Equal(t, "/opt/bin/bw", cfg.ProviderPath)
	// Untouched keys keep their defaults.
	assert.Equal(t, "/tmp/bw-secrets.pid", cfg.PIDFile)
	assert.Equal(t, 10, cfg.MaxPromptAttempts)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("refresh_interval: soon\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero max_failures", "max_failures: 0\n"},
		{"negative prompt attempts", "max_prompt_attempts: -1\n"},
		{"zero refresh interval", "refresh_interval: 0s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("socket_path: [\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
