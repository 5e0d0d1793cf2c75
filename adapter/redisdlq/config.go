package redisdlq

import (
	"fmt"
	"time"

	"github.com/trickstertwo/xevent"
)

// Config for the Redis dead-letter store.
type Config struct {
	// Connection
	Addr          string
	Username      string
	Password      string
	DB            int
	TLS           bool
	TLSServerName string

	// Stream management
	Stream       string
	MaxLenApprox int64

	// WriteTimeout bounds a single XADD issued by the sink.
	WriteTimeout time.Duration

	// Codec names a codec registered with xevent.RegisterCodec. Empty is json.
	Codec string
}

// Defaults returns a Config with production-safe defaults.
func Defaults() Config {
	return Config{
		Addr:         "127.0.0.1:6379",
		Stream:       "xevent:dead-letter",
		WriteTimeout: 2 * time.Second,
		Codec:        "json",
	}
}

// Validate checks Config for production readiness.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr required")
	}
	if c.Stream == "" {
		return fmt.Errorf("config: stream required")
	}
	if c.MaxLenApprox < 0 {
		return fmt.Errorf("config: max_len_approx must be >= 0, got %d", c.MaxLenApprox)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("config: write_timeout must be > 0, got %v", c.WriteTimeout)
	}
	if _, err := xevent.NewCodec(c.Codec); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ConfigFromMap safely converts generic map to Config with defaults.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()

	if v, ok := m["addr"].(string); ok && v != "" {
		c.Addr = v
	}
	if v, ok := m["username"].(string); ok {
		c.Username = v
	}
	if v, ok := m["password"].(string); ok {
		c.Password = v
	}
	if v, ok := m["db"].(int); ok {
		c.DB = v
	}
	if v, ok := m["tls"].(bool); ok {
		c.TLS = v
	}
	if v, ok := m["tls_server_name"].(string); ok {
		c.TLSServerName = v
	}
	if v, ok := m["stream"].(string); ok && v != "" {
		c.Stream = v
	}
	if v, ok := m["max_len_approx"].(int64); ok && v > 0 {
		c.MaxLenApprox = v
	}
	if v, ok := m["max_len_approx"].(int); ok && v > 0 {
		c.MaxLenApprox = int64(v)
	}
	if v, ok := m["codec"].(string); ok && v != "" {
		c.Codec = v
	}
	switch v := m["write_timeout"].(type) {
	case time.Duration:
		if v > 0 {
			c.WriteTimeout = v
		}
	case string:
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.WriteTimeout = d
		}
	}

	return c
}
