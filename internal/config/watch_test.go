package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hikvisiond.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied := make(chan *Config, 1)
	Watch(ctx, path, zerolog.Nop(), func(cfg *Config) {
		select {
		case applied <- cfg:
		default:
		}
	})

	// Ensure the rewrite lands on a later mtime even on coarse clocks.
	time.Sleep(20 * time.Millisecond)
	updated := minimalYAML + `  - host: "http://192.168.1.65"
    username: admin
    password: secret
`
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-applied:
		if len(cfg.Devices) != 2 {
			t.Errorf("Expected the reloaded config with 2 devices, got %d", len(cfg.Devices))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the config reload")
	}
}

func TestWatchKeepsPreviousOnBrokenConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hikvisiond.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied := make(chan *Config, 4)
	Watch(ctx, path, zerolog.Nop(), func(cfg *Config) { applied <- cfg })

	time.Sleep(20 * time.Millisecond)
	if err := os.WriteFile(path, []byte("devices: []"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-applied:
		t.Error("A config that fails validation must not be applied")
	case <-time.After(500 * time.Millisecond):
	}
}
