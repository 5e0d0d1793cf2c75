package xevent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds the tunables of a Bus.
type Config struct {
	// Executor names the async strategy: "pool" or "goroutine".
	Executor string `yaml:"executor" env:"XEVENT_EXECUTOR,overwrite"`
	// Workers and QueueSize size the "pool" executor.
	Workers   int `yaml:"workers" env:"XEVENT_WORKERS,overwrite"`
	QueueSize int `yaml:"queue_size" env:"XEVENT_QUEUE_SIZE,overwrite"`
	// MaxChainDepth bounds follow-up chains; the published event is depth 1.
	MaxChainDepth int `yaml:"max_chain_depth" env:"XEVENT_MAX_CHAIN_DEPTH,overwrite"`
	// AsyncTimeout is a best-effort deadline for each async listener. Zero disables it.
	AsyncTimeout time.Duration `yaml:"async_timeout" env:"XEVENT_ASYNC_TIMEOUT,overwrite"`
	// ShutdownTimeout bounds Close while in-flight async listeners finish.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"XEVENT_SHUTDOWN_TIMEOUT,overwrite"`
}

// Defaults returns a Config with production-safe defaults.
func Defaults() Config {
	return Config{
		Executor:        ExecutorPool,
		Workers:         8,
		QueueSize:       1024,
		MaxChainDepth:   DefaultMaxChainDepth,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate checks Config for production readiness.
func (c Config) Validate() error {
	if c.Executor == "" {
		return fmt.Errorf("%w: executor required", ErrInvalidConfig)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("%w: queue_size must be >= 1, got %d", ErrInvalidConfig, c.QueueSize)
	}
	if c.MaxChainDepth < 1 {
		return fmt.Errorf("%w: max_chain_depth must be >= 1, got %d", ErrInvalidConfig, c.MaxChainDepth)
	}
	if c.AsyncTimeout < 0 {
		return fmt.Errorf("%w: async_timeout must be >= 0, got %v", ErrInvalidConfig, c.AsyncTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown_timeout must be > 0, got %v", ErrInvalidConfig, c.ShutdownTimeout)
	}
	return nil
}

// ConfigFromMap safely converts a generic map to Config with defaults.
// Durations may be given as time.Duration or as strings like "5s".
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()

	if v, ok := m["executor"].(string); ok && v != "" {
		c.Executor = v
	}
	if v, ok := m["workers"].(int); ok && v > 0 {
		c.Workers = v
	}
	if v, ok := m["queue_size"].(int); ok && v > 0 {
		c.QueueSize = v
	}
	if v, ok := m["max_chain_depth"].(int); ok && v > 0 {
		c.MaxChainDepth = v
	}
	if v, ok := durationValue(m["async_timeout"]); ok && v >= 0 {
		c.AsyncTimeout = v
	}
	if v, ok := durationValue(m["shutdown_timeout"]); ok && v > 0 {
		c.ShutdownTimeout = v
	}
	return c
}

func durationValue(v any) (time.Duration, bool) {
	switch d := v.(type) {
	case time.Duration:
		return d, true
	case string:
		pd, err := time.ParseDuration(d)
		return pd, err == nil
	default:
		return 0, false
	}
}

// LoadConfig reads path (optional) as YAML over Defaults, then applies
// XEVENT_* environment overrides, then validates.
//
//	executor: pool
//	workers: 16
//	queue_size: 4096
//	max_chain_depth: 10
//	async_timeout: 30s
//	shutdown_timeout: 5s
func LoadConfig(ctx context.Context, path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, err
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("xevent: decode %s: %w", path, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}
