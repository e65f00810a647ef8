package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, hash, err := LoadWithHash(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	def := DefaultConfig()
	if cfg.Capture.MaxRequests != def.Capture.MaxRequests {
		t.Fatalf("expected defaults, got %+v", cfg.Capture)
	}
	if hash == "" {
		t.Fatal("hash must be reported even for defaults")
	}
}

func TestLoadOverridesOnlySpecifiedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
capture:
  max_requests: 50
  ttl: "30m"
errors:
  spike_multiplier: 25
transport:
  listen: "127.0.0.1:7777"
  heartbeat_every: 10s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, hash, err := LoadWithHash(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Capture.MaxRequests != 50 {
		t.Fatalf("override lost: %d", cfg.Capture.MaxRequests)
	}
	if cfg.Errors.SpikeMultiplier != 25 {
		t.Fatalf("override lost: %v", cfg.Errors.SpikeMultiplier)
	}
	if cfg.Transport.Listen != "127.0.0.1:7777" {
		t.Fatalf("override lost: %s", cfg.Transport.Listen)
	}
	if cfg.Capture.TTL.Std() != 30*time.Minute {
		t.Fatalf("duration string not parsed: %v", cfg.Capture.TTL)
	}
	if cfg.Transport.HeartbeatEvery.Std() != 10*time.Second {
		t.Fatalf("duration string not parsed: %v", cfg.Transport.HeartbeatEvery)
	}
	// Unspecified fields keep their defaults.
	if cfg.Errors.MaxGroups != 500 {
		t.Fatalf("default lost: %d", cfg.Errors.MaxGroups)
	}
	if cfg.Metrics.SlowRequestThreshold.Std() != 2*time.Second {
		t.Fatalf("default lost: %v", cfg.Metrics.SlowRequestThreshold)
	}
	if hash == emptyHash() {
		t.Fatal("hash must cover the file bytes")
	}
}

func TestLoadInvalidYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("capture: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("invalid YAML must error")
	}
}

func TestHashChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("capture:\n  max_requests: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, h1, err := LoadWithHash(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("capture:\n  max_requests: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, h2, err := LoadWithHash(path)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Fatal("different file contents must hash differently")
	}
}

func TestReloaderRequiresExistingFile(t *testing.T) {
	if _, err := NewReloader(filepath.Join(t.TempDir(), "ghost.yaml"), func(*Config) {}); err == nil {
		t.Fatal("watching a missing file must fail")
	}
}
