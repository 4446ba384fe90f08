package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.RelayDriver)
	assert.Equal(t, time.Second, cfg.ChatInterval)
	assert.Equal(t, 3*time.Second, cfg.ListInterval)
	assert.Equal(t, 30*time.Second, cfg.BackgroundInterval)
	assert.Equal(t, 3*time.Second, cfg.TypingWindow)
	assert.Equal(t, 30*time.Minute, cfg.FreshnessWindow)
	assert.Equal(t, 100, cfg.HintCapacity)
	assert.Equal(t, 5*1024*1024, cfg.MaxImageBytes)
}

func TestFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tradechat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("local_driver: bolt\nchat_interval: 2s\nhint_capacity: 10\n"), 0o600))
	t.Setenv("HINT_CAPACITY", "20")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bolt", cfg.LocalDriver)
	assert.Equal(t, 2*time.Second, cfg.ChatInterval)
	assert.Equal(t, 20, cfg.HintCapacity, "environment wins over the file")
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"relay driver", func(c *Config) { c.RelayDriver = "mysql" }},
		{"local driver", func(c *Config) { c.LocalDriver = "redis" }},
		{"interval", func(c *Config) { c.ListInterval = 0 }},
		{"hint capacity", func(c *Config) { c.HintCapacity = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

// chdir is equivalent to testing.T.Chdir (Go 1.24+): it changes the working
// directory for the duration of the test and restores it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
