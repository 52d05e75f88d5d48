// Package config manages application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Service identity
	ServiceName    string `json:"service_name"`
	ServiceVersion string `json:"service_version"`
	LogLevel       string `json:"log_level"`

	// HTTP server settings
	Addr           string        `json:"addr"`
	RequestTimeout time.Duration `json:"request_timeout"`

	// yt-dlp settings
	YtdlpPath     string        `json:"ytdlp_path"`
	YtdlpTimeout  time.Duration `json:"ytdlp_timeout"`
	PlayerClients []string      `json:"player_clients"`

	// Opaque credentials and egress, passed through to providers
	CookieFile string `json:"cookie_file"`
	ProxyURL   string `json:"proxy_url"`
	APIKey     string `json:"api_key"`

	// Egress settings
	HTTPTimeout       time.Duration `json:"http_timeout"`
	RequestsPerSecond float64       `json:"requests_per_second"`

	// Extraction defaults
	Languages    []string `json:"languages"`
	CSVLanguages []string `json:"csv_languages"`

	// Retry settings
	MaxAttempts       int           `json:"max_attempts"`
	InitialBackoff    time.Duration `json:"initial_backoff"`
	MaxBackoff        time.Duration `json:"max_backoff"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`

	// Batch settings
	BatchDelay     time.Duration `json:"batch_delay"`
	BatchSlowDelay time.Duration `json:"batch_slow_delay"`
	BatchSlowAfter int           `json:"batch_slow_after"`
	MaxBatch       int           `json:"max_batch"`
	MaxBatchCSV    int           `json:"max_batch_csv"`
	BatchWorkers   int           `json:"batch_workers"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:       "ytextract",
		ServiceVersion:    "2.1.0",
		LogLevel:          "info",
		Addr:              ":8000",
		RequestTimeout:    30 * time.Minute,
		YtdlpPath:         "yt-dlp",
		YtdlpTimeout:      3 * time.Minute,
		PlayerClients:     []string{"web", "android"},
		HTTPTimeout:       30 * time.Second,
		RequestsPerSecond: 2.5,
		Languages:         []string{"ko"},
		CSVLanguages:      []string{"ko", "en"},
		MaxAttempts:       3,
		InitialBackoff:    2 * time.Second,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		BatchDelay:        500 * time.Millisecond,
		BatchSlowDelay:    3 * time.Second,
		BatchSlowAfter:    100,
		MaxBatch:          50,
		MaxBatchCSV:       200,
		BatchWorkers:      1,
	}
}

// envFiles are loaded in order; earlier files and the real environment win.
var envFiles = []string{".env.local", ".env"}

// Load builds the configuration.
// Priority: env vars > .env files > config file > defaults
func Load() (*Config, error) {
	loadEnvFiles(".")

	cfg := DefaultConfig()

	// Config file is optional
	if err := cfg.loadFromFile(defaultPaths()...); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load config file: %w", err)
	}

	if err := cfg.loadFromEnv(os.Getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFiles loads .env files from dir into the process environment,
// best effort. Variables already set are not overridden.
func loadEnvFiles(dir string) {
	var files []string
	for _, name := range envFiles {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			files = append(files, p)
		}
	}
	if len(files) == 0 {
		return
	}
	_ = godotenv.Load(files...)
}

func defaultPaths() []string {
	paths := []string{"ytextract.json"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ytextract", "ytextract.json"))
	}
	return paths
}

// loadFromFile loads the first existing file among paths.
func (c *Config) loadFromFile(paths ...string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}

		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}

	return os.ErrNotExist
}

// loadFromEnv overrides config with environment variables.
func (c *Config) loadFromEnv(getenv func(string) string) error {
	e := envReader{getenv: getenv}

	e.str("YTEXTRACT_SERVICE_NAME", &c.ServiceName)
	e.str("YTEXTRACT_LOG_LEVEL", &c.LogLevel)
	e.str("YTEXTRACT_ADDR", &c.Addr)
	if v := getenv("PORT"); v != "" && getenv("YTEXTRACT_ADDR") == "" {
		c.Addr = ":" + v
	}
	e.duration("YTEXTRACT_REQUEST_TIMEOUT", &c.RequestTimeout)

	e.str("YTEXTRACT_YTDLP_PATH", &c.YtdlpPath)
	e.duration("YTEXTRACT_YTDLP_TIMEOUT", &c.YtdlpTimeout)
	e.list("YTEXTRACT_PLAYER_CLIENTS", &c.PlayerClients)

	e.str("YOUTUBE_COOKIES_FILE", &c.CookieFile)
	e.str("YTEXTRACT_COOKIE_FILE", &c.CookieFile)
	e.str("YOUTUBE_PROXY", &c.ProxyURL)
	e.str("YTEXTRACT_PROXY_URL", &c.ProxyURL)
	e.str("YOUTUBE_API_KEY", &c.APIKey)

	e.duration("YTEXTRACT_HTTP_TIMEOUT", &c.HTTPTimeout)
	e.float("YTEXTRACT_REQUESTS_PER_SECOND", &c.RequestsPerSecond)

	e.list("YTEXTRACT_LANGUAGES", &c.Languages)
	e.list("YTEXTRACT_CSV_LANGUAGES", &c.CSVLanguages)

	e.integer("YTEXTRACT_MAX_ATTEMPTS", &c.MaxAttempts)
	e.duration("YTEXTRACT_INITIAL_BACKOFF", &c.InitialBackoff)
	e.duration("YTEXTRACT_MAX_BACKOFF", &c.MaxBackoff)
	e.float("YTEXTRACT_BACKOFF_MULTIPLIER", &c.BackoffMultiplier)

	e.duration("YTEXTRACT_BATCH_DELAY", &c.BatchDelay)
	e.duration("YTEXTRACT_BATCH_SLOW_DELAY", &c.BatchSlowDelay)
	e.integer("YTEXTRACT_BATCH_SLOW_AFTER", &c.BatchSlowAfter)
	e.integer("YTEXTRACT_MAX_BATCH", &c.MaxBatch)
	e.integer("YTEXTRACT_MAX_BATCH_CSV", &c.MaxBatchCSV)
	e.integer("YTEXTRACT_BATCH_WORKERS", &c.BatchWorkers)

	return e.err
}

// envReader applies variables that are set, keeping the first parse error.
type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) str(key string, dst *string) {
	if v := e.getenv(key); v != "" {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	*dst = SplitList(v)
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v := e.getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = d
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v := e.getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v := e.getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("parse %s: %w", key, err)
	}
}

// SplitList splits a comma separated list, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must be set")
	}
	if c.YtdlpTimeout <= 0 {
		return fmt.Errorf("ytdlp_timeout must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be non-negative")
	}
	if len(c.Languages) == 0 {
		return fmt.Errorf("languages must not be empty")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive")
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff must be >= initial_backoff")
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be >= 1")
	}
	if c.BatchDelay < 0 || c.BatchSlowDelay < 0 {
		return fmt.Errorf("batch delays must be non-negative")
	}
	if c.MaxBatch <= 0 || c.MaxBatchCSV <= 0 {
		return fmt.Errorf("batch ceilings must be positive")
	}
	if c.BatchWorkers <= 0 {
		return fmt.Errorf("batch_workers must be positive")
	}
	return nil
}
