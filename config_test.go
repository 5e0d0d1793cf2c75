package xevent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, Defaults().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no executor", func(c *Config) { c.Executor = "" }},
		{"no workers", func(c *Config) { c.Workers = 0 }},
		{"no queue", func(c *Config) { c.QueueSize = 0 }},
		{"no depth", func(c *Config) { c.MaxChainDepth = 0 }},
		{"negative async timeout", func(c *Config) { c.AsyncTimeout = -time.Second }},
		{"no shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Defaults()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}

func TestConfigFromMap(t *testing.T) {
	c := ConfigFromMap(map[string]any{
		"executor":         "goroutine",
		"workers":          3,
		"queue_size":       "ignored",
		"max_chain_depth":  4,
		"async_timeout":    "250ms",
		"shutdown_timeout": 2 * time.Second,
	})
	assert.Equal(t, "goroutine", c.Executor)
	assert.Equal(t, 3, c.Workers)
	assert.Equal(t, 1024, c.QueueSize)
	assert.Equal(t, 4, c.MaxChainDepth)
	assert.Equal(t, 250*time.Millisecond, c.AsyncTimeout)
	assert.Equal(t, 2*time.Second, c.ShutdownTimeout)

	assert.Equal(t, Defaults(), ConfigFromMap(nil))
}

func TestLoadConfig_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xevent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
executor: goroutine
workers: 2
max_chain_depth: 6
async_timeout: 1s
`), 0o600))

	t.Setenv("XEVENT_WORKERS", "12")
	t.Setenv("XEVENT_SHUTDOWN_TIMEOUT", "9s")

	c, err := LoadConfig(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "goroutine", c.Executor)
	assert.Equal(t, 12, c.Workers, "env overrides the file")
	assert.Equal(t, 1024, c.QueueSize, "defaults survive")
	assert.Equal(t, 6, c.MaxChainDepth)
	assert.Equal(t, time.Second, c.AsyncTimeout)
	assert.Equal(t, 9*time.Second, c.ShutdownTimeout)
}

func TestLoadConfig_EmptyFileAndNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	c, err := LoadConfig(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), c)

	c, err = LoadConfig(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), c)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("workers: [1, 2"), 0o600))
	_, err = LoadConfig(context.Background(), bad)
	assert.Error(t, err)

	t.Setenv("XEVENT_MAX_CHAIN_DEPTH", "0")
	_, err = LoadConfig(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBuilder_WithConfigKeepsDefaults(t *testing.T) {
	bus := newTestBus(t, func(b *BusBuilder) {
		b.WithConfig(Config{Executor: ExecutorGoroutine, MaxChainDepth: 2})
	})
	assert.Equal(t, 2, bus.maxDepth)
	assert.Equal(t, 5*time.Second, bus.shutdownTimeout)
	assert.IsType(t, &GoroutineExecutor{}, bus.executor)
}
