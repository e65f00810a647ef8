// Package config holds devlens runtime configuration: capture,
// error-tracking, metrics, and transport tunables loaded from YAML.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that accepts YAML scalars like "30s" or
// "5m" as well as raw nanosecond integers.
type Duration time.Duration

// Std converts back to the standard type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	return fmt.Errorf("invalid duration value at line %d", value.Line)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// CaptureConfig tunes the capture and replay engine.
type CaptureConfig struct {
	MaxRequests   int      `yaml:"max_requests"`
	TTL           Duration `yaml:"ttl"`
	StorePath     string   `yaml:"store_path"` // empty means in-memory
	ReplayTarget  string   `yaml:"replay_target"`
	ReplayTimeout Duration `yaml:"replay_timeout"`
	FlushPerSec   float64  `yaml:"flush_per_sec"`
	ExtraSecrets  []string `yaml:"extra_secret_keys"`
}

// ErrorsConfig tunes the error aggregator.
type ErrorsConfig struct {
	MaxGroups       int      `yaml:"max_groups"`
	OccurrenceCap   int      `yaml:"occurrence_cap"`
	SpikeWindow     Duration `yaml:"spike_window"`
	SpikeMultiplier float64  `yaml:"spike_multiplier"`
	CriticalTypes   []string `yaml:"critical_types"`
}

// MetricsConfig tunes the metrics collector.
type MetricsConfig struct {
	LatencyCap           int      `yaml:"latency_cap"`
	SnapshotEvery        Duration `yaml:"snapshot_every"`
	MemoryEvery          Duration `yaml:"memory_every"`
	SlowRequestThreshold Duration `yaml:"slow_request_threshold"`
	RouteErrorRate       float64  `yaml:"route_error_rate"`
	HeapUsageRatio       float64  `yaml:"heap_usage_ratio"`
}

// TransportConfig tunes the session hub.
type TransportConfig struct {
	Listen         string   `yaml:"listen"`
	RateLimit      int      `yaml:"rate_limit"`
	QueueCap       int      `yaml:"queue_cap"`
	HeartbeatEvery Duration `yaml:"heartbeat_every"`
}

// Config is the full devlens configuration.
type Config struct {
	Capture   CaptureConfig   `yaml:"capture"`
	Errors    ErrorsConfig    `yaml:"errors"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Transport TransportConfig `yaml:"transport"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			MaxRequests:   1000,
			TTL:           Duration(time.Hour),
			ReplayTimeout: Duration(30 * time.Second),
			FlushPerSec:   200,
		},
		Errors: ErrorsConfig{
			MaxGroups:       500,
			OccurrenceCap:   50,
			SpikeWindow:     Duration(5 * time.Minute),
			SpikeMultiplier: 10,
		},
		Metrics: MetricsConfig{
			LatencyCap:           1000,
			SnapshotEvery:        Duration(5 * time.Minute),
			MemoryEvery:          Duration(10 * time.Second),
			SlowRequestThreshold: Duration(2 * time.Second),
			RouteErrorRate:       0.25,
			HeapUsageRatio:       0.9,
		},
		Transport: TransportConfig{
			Listen:         "127.0.0.1:9230",
			RateLimit:      100,
			QueueCap:       256,
			HeartbeatEvery: Duration(30 * time.Second),
		},
	}
}

// defaultPath is used when no explicit path is given.
func defaultPath() (string, bool) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(home, ".devlens", "config.yaml"), true
}

// Load reads configuration from a YAML file. Empty path falls back to
// ~/.devlens/config.yaml. Missing file returns defaults. Invalid YAML
// returns an error.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads configuration and returns the SHA-256 hash of the
// raw YAML bytes, reported to inspector clients in the handshake. When
// no file exists the hash is the SHA-256 of empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		p, ok := defaultPath()
		if !ok {
			return DefaultConfig(), emptyHash(), nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), emptyHash(), nil
		}
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	h := sha256.Sum256(data)

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, "sha256:" + hex.EncodeToString(h[:]), nil
}

func emptyHash() string {
	h := sha256.Sum256(nil)
	return "sha256:" + hex.EncodeToString(h[:])
}
