package blob

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestExportKey(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.FixedZone("X", 3600))
	got := ExportKey("org-1", "receipts.csv", at)
	want := "exports/org-1/2024/03/09/130507-receipts.csv"
	if got != want {
		t.Fatalf("ExportKey() = %q, want %q", got, want)
	}
}

func TestExportKeyStripsTraversal(t *testing.T) {
	got := ExportKey("../org", "a/b.pdf", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if strings.Contains(got, "..") {
		t.Fatalf("key contains traversal: %q", got)
	}
	if !strings.HasPrefix(got, "exports/") {
		t.Fatalf("unexpected prefix: %q", got)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "folio-exports"}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "scheme in endpoint", mutate: func(c *Config) { c.Endpoint = "http://localhost:9000" }, wantErr: true},
		{name: "missing secret", mutate: func(c *Config) { c.SecretKey = "" }, wantErr: true},
		{name: "short bucket", mutate: func(c *Config) { c.Bucket = "ab" }, wantErr: true},
		{name: "uppercase bucket", mutate: func(c *Config) { c.Bucket = "Folio" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Fatal("empty config should be disabled")
	}
	if !(Config{Endpoint: "s3:9000"}).Enabled() {
		t.Fatal("endpoint should enable uploads")
	}
}

func TestNewBuildsClient(t *testing.T) {
	store, err := New(Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "folio-exports"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if store.bucket != "folio-exports" || store.linkTTL != DefaultLinkTTL {
		t.Fatalf("unexpected store %+v", store)
	}
}
