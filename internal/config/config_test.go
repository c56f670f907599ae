package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOverridesBase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mudd.yaml")
	content := "addr: \":9000\"\nmax_callouts: 128\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, Default())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Errorf("Addr = %q, want :9000", cfg.Addr)
	}
	if cfg.MaxCallouts != 128 {
		t.Errorf("MaxCallouts = %d, want 128", cfg.MaxCallouts)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	// untouched fields keep their defaults
	if cfg.MaxClockLag != 60 {
		t.Errorf("MaxClockLag = %d, want 60", cfg.MaxClockLag)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), Default()); err == nil {
		t.Fatal("Load of a missing file did not fail")
	}
}
