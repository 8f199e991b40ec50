package config_test

import (
	"testing"
	"time"

	"github.com/openmorph/metamorph/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.DatabasePath != "metamorph.db" {
		t.Errorf("DatabasePath = %q, want %q", cfg.DatabasePath, "metamorph.db")
	}
	if cfg.UpkeepInterval != 10*time.Minute {
		t.Errorf("UpkeepInterval = %v, want 10m", cfg.UpkeepInterval)
	}
	if cfg.CheckInterval != time.Minute {
		t.Errorf("CheckInterval = %v, want 1m", cfg.CheckInterval)
	}
	if cfg.MaxUpdates != 0 {
		t.Errorf("MaxUpdates = %d, want 0", cfg.MaxUpdates)
	}
	if cfg.WeatherMode {
		t.Error("WeatherMode should default to false")
	}
	if cfg.BaseImageURI != "ipfs://metamorph/" {
		t.Errorf("BaseImageURI = %q, want %q", cfg.BaseImageURI, "ipfs://metamorph/")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("UPKEEP_INTERVAL", "30s")
	t.Setenv("MAX_UPDATES", "3")
	t.Setenv("WEATHER_MODE", "true")
	t.Setenv("ORACLE_URL", "http://oracle.internal:8000")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want %q", cfg.Port, "9090")
	}
	if cfg.UpkeepInterval != 30*time.Second {
		t.Errorf("UpkeepInterval = %v, want 30s", cfg.UpkeepInterval)
	}
	if cfg.MaxUpdates != 3 {
		t.Errorf("MaxUpdates = %d, want 3", cfg.MaxUpdates)
	}
	if !cfg.WeatherMode {
		t.Error("WeatherMode should be true")
	}
	if cfg.OracleURL != "http://oracle.internal:8000" {
		t.Errorf("OracleURL = %q", cfg.OracleURL)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("UPKEEP_INTERVAL", "not-a-duration")

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}
