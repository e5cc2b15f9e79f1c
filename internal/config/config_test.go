package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8080" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Timezone != "Europe/Lisbon" {
		t.Errorf("Timezone = %q", cfg.Timezone)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	want := DefaultConfig()
	want.Listen = "0.0.0.0:9090"
	want.Portal.CodeUser = "u123"
	want.Portal.BaseURL = "https://portal.example.edu/"
	want.WeeksAfter = 8
	want.RefreshMinutes = 30
	want.RefreshCron = "*/10 * * * *"

	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Listen != "0.0.0.0:9090" {
		t.Errorf("Listen = %q", got.Listen)
	}
	if got.Portal.CodeUser != "u123" {
		t.Errorf("CodeUser = %q", got.Portal.CodeUser)
	}
	// Trailing slash is stripped on Normalize.
	if got.Portal.BaseURL != "https://portal.example.edu" {
		t.Errorf("BaseURL = %q", got.Portal.BaseURL)
	}
	if got.WeeksAfter != 8 || got.RefreshMinutes != 30 {
		t.Errorf("horizon/ttl = %d/%d", got.WeeksAfter, got.RefreshMinutes)
	}
	if got.RefreshCron != "*/10 * * * *" {
		t.Errorf("RefreshCron = %q", got.RefreshCron)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := &Config{WeeksBefore: -3, RefreshMinutes: 0}
	cfg.Normalize()

	if cfg.WeeksBefore != 0 {
		t.Errorf("WeeksBefore = %d, want 0", cfg.WeeksBefore)
	}
	if cfg.RefreshMinutes != 15 {
		t.Errorf("RefreshMinutes = %d, want 15", cfg.RefreshMinutes)
	}
	if cfg.Portal.Entidade != "aluno" {
		t.Errorf("Entidade = %q", cfg.Portal.Entidade)
	}
	if cfg.TTL() != 15*time.Minute {
		t.Errorf("TTL = %v", cfg.TTL())
	}
}

func TestLocationFallback(t *testing.T) {
	cfg := &Config{Timezone: "Not/AZone"}
	if loc := cfg.Location(); loc != time.Local {
		t.Errorf("Location = %v, want time.Local fallback", loc)
	}

	cfg.Timezone = "UTC"
	if loc := cfg.Location(); loc.String() != "UTC" {
		t.Errorf("Location = %v, want UTC", loc)
	}
}
