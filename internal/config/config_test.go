package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/janekbaraniewski/costwatch/internal/usage"
)

func TestLoadFromMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RefreshIntervalSeconds != 120 || cfg.RetentionDays != 90 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadFromClampsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	body := `{"refresh_interval_seconds": -5, "debounce_seconds": 0, "retention_days": 0}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RefreshIntervalSeconds != 120 || cfg.DebounceSeconds != 3 || cfg.RetentionDays != 90 {
		t.Fatalf("invalid values not clamped: %+v", cfg)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	want := DefaultConfig()
	want.LogRoot = "/tmp/projects"
	want.RefreshIntervalSeconds = 60

	if err := SaveTo(path, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.LogRoot != want.LogRoot || got.RefreshIntervalSeconds != 60 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestLoadCredentialsMissingFile(t *testing.T) {
	creds, err := LoadCredentialsFrom(filepath.Join(t.TempDir(), "credentials.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.QuotaToken != "" {
		t.Fatalf("expected absent token, got %q", creds.QuotaToken)
	}
}

func TestSaveQuotaTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := SaveQuotaTokenTo(path, "tok-123"); err != nil {
		t.Fatalf("save: %v", err)
	}
	creds, err := LoadCredentialsFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if creds.QuotaToken != "tok-123" {
		t.Fatalf("token = %q", creds.QuotaToken)
	}
}

func TestLoadPriceTableFallsBackToDefaults(t *testing.T) {
	table, err := LoadPriceTableFrom(filepath.Join(t.TempDir(), "pricing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := table[usage.ModelOpus]; !ok {
		t.Fatalf("default table missing opus: %v", table)
	}
}

func TestLoadPriceTableOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.json")
	body := `{"sonnet": {"input": 0.001, "output": 0.002, "cache_read": 0.0001, "cache_write": 0.0005}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadPriceTableFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table[usage.ModelSonnet].Input != 0.001 {
		t.Fatalf("override not applied: %+v", table)
	}
}
