package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Barcode.Prefix != "LAB" || cfg.Persistence.Driver != "sqlite" {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadOverlaysYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lims.yaml")
	body := "barcode:\n  prefix: TEST\nbus:\n  default_timeout_ms: \"2s\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Barcode.Prefix != "TEST" {
		t.Fatalf("expected overridden prefix TEST, got %s", cfg.Barcode.Prefix)
	}
	if cfg.Barcode.Separator != "-" {
		t.Fatalf("expected untouched default separator, got %s", cfg.Barcode.Separator)
	}
	if cfg.Bus.DefaultTimeout.Duration != 2*time.Second {
		t.Fatalf("expected 2s timeout, got %s", cfg.Bus.DefaultTimeout.Duration)
	}
}

func TestDurationUnmarshalsBareMilliseconds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lims.yaml")
	body := "bus:\n  default_timeout_ms: \"1500\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.DefaultTimeout.Duration != 1500*time.Millisecond {
		t.Fatalf("expected 1500ms, got %s", cfg.Bus.DefaultTimeout.Duration)
	}
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("LIMS_STORAGE_DRIVER", "postgres")
	t.Setenv("LIMS_POSTGRES_DSN", "postgres://example/db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Persistence.Driver != "postgres" {
		t.Fatalf("expected env override to set driver postgres, got %s", cfg.Persistence.Driver)
	}
	if cfg.Persistence.ConnectURL != "postgres://example/db" {
		t.Fatalf("expected env override to set connect url, got %s", cfg.Persistence.ConnectURL)
	}
}
