// Package config handles loading and parsing the ledger's config.toml.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/knechtdev/knecht/internal/fsys"
)

// DefaultLockTimeout is how long a store operation waits for the ledger
// lock when config.toml does not say otherwise.
const DefaultLockTimeout = 2 * time.Second

// Config is the top-level configuration of a knecht ledger.
type Config struct {
	Store     StoreConfig     `toml:"store,omitempty" jsonschema:"description=Task store settings"`
	Telemetry TelemetryConfig `toml:"telemetry,omitempty" jsonschema:"description=OpenTelemetry export"`
}

// StoreConfig holds task store settings.
type StoreConfig struct {
	// LockTimeout bounds the wait for the advisory lock, as a Go duration.
	// "0" disables locking. Empty means DefaultLockTimeout.
	LockTimeout string `toml:"lock_timeout,omitempty" jsonschema:"description=Maximum wait for the ledger lock (Go duration; 0 disables locking),default=2s"`
}

// TelemetryConfig holds OTLP/HTTP endpoints. Empty endpoints disable the
// matching signal.
type TelemetryConfig struct {
	MetricsURL string `toml:"metrics_url,omitempty" jsonschema:"description=OTLP/HTTP metrics endpoint URL"`
	LogsURL    string `toml:"logs_url,omitempty" jsonschema:"description=OTLP/HTTP logs endpoint URL"`
}

// Default returns the configuration used when config.toml is absent.
func Default() Config {
	return Config{Store: StoreConfig{LockTimeout: DefaultLockTimeout.String()}}
}

// LockTimeout returns the parsed lock timeout. Call Validate first; an
// unparsable value falls back to DefaultLockTimeout.
func (c *Config) LockTimeout() time.Duration {
	if c.Store.LockTimeout == "" {
		return DefaultLockTimeout
	}
	d, err := time.ParseDuration(c.Store.LockTimeout)
	if err != nil {
		return DefaultLockTimeout
	}
	return d
}

// Validate checks field values that TOML decoding cannot.
func (c *Config) Validate() error {
	if c.Store.LockTimeout != "" {
		d, err := time.ParseDuration(c.Store.LockTimeout)
		if err != nil {
			return fmt.Errorf("store.lock_timeout %q: %w", c.Store.LockTimeout, err)
		}
		if d < 0 {
			return fmt.Errorf("store.lock_timeout %q: must not be negative", c.Store.LockTimeout)
		}
	}
	return nil
}

// Marshal encodes a Config to TOML bytes.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return buf.Bytes(), nil
}

// Load reads and parses config.toml at path using the provided filesystem.
// A missing file yields Default().
func Load(fs fsys.FS, path string) (*Config, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			return &cfg, nil
		}
		return nil, fmt.Errorf("loading config %q: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("loading config %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML data into a Config, starting from Default() so absent
// keys keep their defaults. Unknown keys are an error.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parsing config: unknown key %q", undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}
