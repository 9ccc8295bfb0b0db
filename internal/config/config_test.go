package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8787" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL = %v", cfg.AccessTTL())
	}
	if cfg.RedisURL != "" || cfg.MeiliURL != "" {
		t.Errorf("optional backends should default to disabled")
	}
}

func TestLoadReadsEnvFileButEnvironmentWins(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	if err := os.WriteFile(file, []byte("FOLIO_TEST_ONLY_KEY=from-file\nAPI_ADDR=:9999\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("API_ADDR", ":7000")
	t.Cleanup(func() { _ = os.Unsetenv("FOLIO_TEST_ONLY_KEY") })

	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Errorf("Addr = %q, want environment value", cfg.Addr)
	}
	if os.Getenv("FOLIO_TEST_ONLY_KEY") != "from-file" {
		t.Errorf(".env file was not loaded")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("FOLIO_ACCESS_TTL_SECONDS", "soon")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Fatalf("expected parse env error, got %v", err)
	}

	t.Setenv("FOLIO_ACCESS_TTL_SECONDS", "0")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
