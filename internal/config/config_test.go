package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.MaxAttempts != 3 || cfg.InitialBackoff != 2*time.Second || cfg.MaxBackoff != 10*time.Second {
		t.Errorf("unexpected retry defaults: %+v", cfg)
	}
	if cfg.MaxBatch != 50 || cfg.MaxBatchCSV != 200 {
		t.Errorf("unexpected batch ceilings: %d/%d", cfg.MaxBatch, cfg.MaxBatchCSV)
	}
}

func TestLoadFromEnv(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.loadFromEnv(envMap(map[string]string{
		"PORT":                     "9000",
		"YOUTUBE_COOKIES_FILE":     "/secrets/cookies.txt",
		"YOUTUBE_API_KEY":          "AIza-test",
		"YTEXTRACT_PROXY_URL":      "http://proxy:3128",
		"YTEXTRACT_LANGUAGES":      "ko, en,,ja",
		"YTEXTRACT_MAX_ATTEMPTS":   "5",
		"YTEXTRACT_BATCH_DELAY":    "1s",
		"YTEXTRACT_BATCH_WORKERS":  "2",
		"YTEXTRACT_YTDLP_TIMEOUT":  "90s",
		"YTEXTRACT_PLAYER_CLIENTS": "tv",
	}))
	if err != nil {
		t.Fatalf("loadFromEnv() error = %v", err)
	}

	if cfg.Addr != ":9000" {
		t.Errorf("Addr = %q, want :9000", cfg.Addr)
	}
	if cfg.CookieFile != "/secrets/cookies.txt" || cfg.APIKey != "AIza-test" || cfg.ProxyURL != "http://proxy:3128" {
		t.Errorf("credentials not applied: %+v", cfg)
	}
	if got := cfg.Languages; len(got) != 3 || got[0] != "ko" || got[1] != "en" || got[2] != "ja" {
		t.Errorf("Languages = %v", got)
	}
	if cfg.MaxAttempts != 5 || cfg.BatchDelay != time.Second || cfg.BatchWorkers != 2 || cfg.YtdlpTimeout != 90*time.Second {
		t.Errorf("numeric overrides not applied: %+v", cfg)
	}
	if len(cfg.PlayerClients) != 1 || cfg.PlayerClients[0] != "tv" {
		t.Errorf("PlayerClients = %v", cfg.PlayerClients)
	}
}

func TestLoadFromEnvAddrWinsOverPort(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.loadFromEnv(envMap(map[string]string{"PORT": "9000", "YTEXTRACT_ADDR": "127.0.0.1:7000"})); err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != "127.0.0.1:7000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
}

func TestLoadFromEnvInvalid(t *testing.T) {
	tests := map[string]string{
		"YTEXTRACT_MAX_ATTEMPTS":        "three",
		"YTEXTRACT_BATCH_DELAY":         "soon",
		"YTEXTRACT_REQUESTS_PER_SECOND": "fast",
	}
	for key, value := range tests {
		cfg := DefaultConfig()
		if err := cfg.loadFromEnv(envMap(map[string]string{key: value})); err == nil {
			t.Errorf("%s=%s: expected error", key, value)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ytextract.json")
	data := `{"max_batch": 20, "languages": ["en"], "batch_slow_delay": 5000000000}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	if err := cfg.loadFromFile(filepath.Join(dir, "missing.json"), path); err != nil {
		t.Fatalf("loadFromFile() error = %v", err)
	}
	if cfg.MaxBatch != 20 || cfg.BatchSlowDelay != 5*time.Second {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if len(cfg.Languages) != 1 || cfg.Languages[0] != "en" {
		t.Errorf("Languages = %v", cfg.Languages)
	}
	if cfg.MaxBatchCSV != 200 {
		t.Errorf("unset fields must keep defaults, MaxBatchCSV = %d", cfg.MaxBatchCSV)
	}

	if err := cfg.loadFromFile(filepath.Join(dir, "missing.json")); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	if err := os.WriteFile("ytextract.json", []byte(`{"max_batch": 10, "max_batch_csv": 100, "log_level": "warn"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(".env", []byte("YTEXTRACT_MAX_BATCH=20\nYTEXTRACT_MAX_BATCH_CSV=150\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("YTEXTRACT_MAX_BATCH_CSV", "180")
	// Variables loaded from .env outlive the test unless registered here.
	t.Setenv("YTEXTRACT_MAX_BATCH", "")
	os.Unsetenv("YTEXTRACT_MAX_BATCH")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want file value", cfg.LogLevel)
	}
	if cfg.MaxBatch != 20 {
		t.Errorf("MaxBatch = %d, want .env value", cfg.MaxBatch)
	}
	if cfg.MaxBatchCSV != 180 {
		t.Errorf("MaxBatchCSV = %d, want environment value", cfg.MaxBatchCSV)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"zero backoff", func(c *Config) { c.InitialBackoff = 0 }},
		{"ceiling below initial", func(c *Config) { c.MaxBackoff = time.Second }},
		{"shrinking multiplier", func(c *Config) { c.BackoffMultiplier = 0.5 }},
		{"negative delay", func(c *Config) { c.BatchDelay = -time.Second }},
		{"zero batch ceiling", func(c *Config) { c.MaxBatch = 0 }},
		{"zero workers", func(c *Config) { c.BatchWorkers = 0 }},
		{"no languages", func(c *Config) { c.Languages = nil }},
		{"no addr", func(c *Config) { c.Addr = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" ko ,en,, ")
	if len(got) != 2 || got[0] != "ko" || got[1] != "en" {
		t.Errorf("SplitList() = %v", got)
	}
	if SplitList("") != nil {
		t.Error("empty input must yield nil")
	}
}
