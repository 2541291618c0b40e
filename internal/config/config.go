package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

type Config struct {
	LogRoot                string `json:"log_root"`
	StorePath              string `json:"store_path"`
	RefreshIntervalSeconds int    `json:"refresh_interval_seconds"`
	DebounceSeconds        int    `json:"debounce_seconds"`
	RetentionDays          int    `json:"retention_days"`
	QuotaBaseURL           string `json:"quota_base_url"`
	QuotaIntervalSeconds   int    `json:"quota_interval_seconds"`
}

func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		LogRoot:                filepath.Join(home, ".claude", "projects"),
		StorePath:              filepath.Join(ConfigDir(), "cache.db"),
		RefreshIntervalSeconds: 120,
		DebounceSeconds:        3,
		RetentionDays:          90,
		QuotaBaseURL:           "https://api.anthropic.com",
		QuotaIntervalSeconds:   300,
	}
}

func ConfigDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "costwatch")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "costwatch")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "settings.json")
}

func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parsing config %s: %w", path, err)
	}

	defaults := DefaultConfig()
	if cfg.LogRoot == "" {
		cfg.LogRoot = defaults.LogRoot
	}
	if cfg.StorePath == "" {
		cfg.StorePath = defaults.StorePath
	}
	if cfg.RefreshIntervalSeconds <= 0 {
		cfg.RefreshIntervalSeconds = defaults.RefreshIntervalSeconds
	}
	if cfg.DebounceSeconds <= 0 {
		cfg.DebounceSeconds = defaults.DebounceSeconds
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaults.RetentionDays
	}
	if cfg.QuotaBaseURL == "" {
		cfg.QuotaBaseURL = defaults.QuotaBaseURL
	}
	if cfg.QuotaIntervalSeconds <= 0 {
		cfg.QuotaIntervalSeconds = defaults.QuotaIntervalSeconds
	}

	return cfg, nil
}

func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

func SaveTo(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
