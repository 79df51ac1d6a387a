package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.HTTPAddr != ":4000" || cfg.WSAddr != ":4002" || cfg.DirectAddr != ":4100" {
		t.Fatalf("default addrs = %s %s %s", cfg.HTTPAddr, cfg.WSAddr, cfg.DirectAddr)
	}
	if cfg.Workers != 2 || cfg.PollBatch != 10 || cfg.PollBlockMs != 5000 {
		t.Fatalf("worker defaults = %+v", cfg)
	}
	if cfg.BufferCapacity != 500 || cfg.WindowBaseMs != 1000 {
		t.Fatalf("aggregation defaults = %+v", cfg)
	}
	if len(cfg.WindowMultipliers) != 3 {
		t.Fatalf("window multipliers = %v", cfg.WindowMultipliers)
	}
}

func TestLoadJSONOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulsegrid.json")
	body := `{"httpAddr":":9000","workers":8,"log":{"level":"debug"}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9000" || cfg.Workers != 8 || cfg.Log.Level != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
	// untouched fields keep their defaults
	if cfg.WSAddr != ":4002" || cfg.PollBatch != 10 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestFromEnvOverlay(t *testing.T) {
	t.Setenv("PULSEGRID_WS_ADDR", ":7777")
	t.Setenv("PULSEGRID_WORKERS", "4")
	t.Setenv("PULSEGRID_RETAIN_MAX_BYTES", "1048576")
	t.Setenv("PULSEGRID_WINDOW_MULTIPLIERS", "1, 2, 4")
	t.Setenv("PULSEGRID_LOG_FORMAT", "json")

	cfg := Default()
	FromEnv(&cfg)
	if cfg.WSAddr != ":7777" || cfg.Workers != 4 || cfg.RetainMaxBytes != 1048576 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.WindowMultipliers) != 3 || cfg.WindowMultipliers[2] != 4 {
		t.Fatalf("multipliers = %v", cfg.WindowMultipliers)
	}
	if cfg.Log.Format != "json" {
		t.Fatalf("log format = %s", cfg.Log.Format)
	}
}

func TestFromEnvIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("PULSEGRID_WORKERS", "many")
	cfg := Default()
	FromEnv(&cfg)
	if cfg.Workers != 2 {
		t.Fatalf("workers = %d, want default kept", cfg.Workers)
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("PULSEGRID_STREAM=fromfile\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("PULSEGRID_STREAM", "fromenv")
	LoadDotEnv(envPath)
	cfg := Default()
	FromEnv(&cfg)
	if cfg.Stream != "fromenv" {
		t.Fatalf("stream = %s, process env must win over .env", cfg.Stream)
	}
}

func TestDefaultDataDirNonEmpty(t *testing.T) {
	if DefaultDataDir() == "" {
		t.Fatal("empty data dir")
	}
}
