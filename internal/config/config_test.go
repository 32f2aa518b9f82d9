package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("explicit missing config file should error")
	}

	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RemoteURL != "http://localhost:3001" {
		t.Errorf("remote url = %q", cfg.RemoteURL)
	}
	if cfg.SyncInterval != 5*time.Minute {
		t.Errorf("sync interval = %v", cfg.SyncInterval)
	}
	if cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("http timeout = %v", cfg.HTTPTimeout)
	}
	if cfg.Server.Addr != ":3001" {
		t.Errorf("server addr = %q", cfg.Server.Addr)
	}
	if cfg.CachePath() != filepath.Join(cfg.DataDir, "retention.db") {
		t.Errorf("cache path = %q", cfg.CachePath())
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "remote_url: https://sync.example.com\nsync_interval: 90s\nlog:\n  file: /tmp/ret.log\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RemoteURL != "https://sync.example.com" {
		t.Errorf("remote url = %q", cfg.RemoteURL)
	}
	if cfg.SyncInterval != 90*time.Second {
		t.Errorf("sync interval = %v", cfg.SyncInterval)
	}
	if cfg.Log.File != "/tmp/ret.log" {
		t.Errorf("log file = %q", cfg.Log.File)
	}
	// Untouched keys keep their defaults.
	if cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("http timeout = %v", cfg.HTTPTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RETENTION_REMOTE_URL", "https://env.example.com")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RemoteURL != "https://env.example.com" {
		t.Errorf("remote url = %q, want the env override", cfg.RemoteURL)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("written config does not load back: %v", err)
	}
	if cfg.RemoteURL != Default().RemoteURL {
		t.Errorf("remote url = %q", cfg.RemoteURL)
	}

	if err := WriteDefault(path); err == nil {
		t.Error("WriteDefault overwrote an existing file")
	}
}
