package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.PrimaryBackend != BackendDocument {
		t.Errorf("PrimaryBackend = %q, want %q", cfg.PrimaryBackend, BackendDocument)
	}
	if cfg.MongoDB != "vulnarena" {
		t.Errorf("MongoDB = %q, want %q", cfg.MongoDB, "vulnarena")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("PRIMARY_BACKEND", BackendRelational)
	t.Setenv("SQLITE_PATH", "/tmp/other.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
	if cfg.PrimaryBackend != BackendRelational {
		t.Errorf("PrimaryBackend = %q, want %q", cfg.PrimaryBackend, BackendRelational)
	}
	if cfg.SQLitePath != "/tmp/other.db" {
		t.Errorf("SQLitePath = %q, want %q", cfg.SQLitePath, "/tmp/other.db")
	}
}

func TestLoadRejectsUnknownPrimary(t *testing.T) {
	t.Setenv("PRIMARY_BACKEND", "graph")

	if _, err := Load(); err == nil {
		t.Error("Load() accepted an unknown primary backend")
	}
}

func TestLoadBadPortFallsBack(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want default 8080 on unparseable value", cfg.Port)
	}
}
