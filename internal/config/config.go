// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, the uniqueness store, generation limits,
// rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-fortune-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StoreConfig selects the uniqueness store backend.
type StoreConfig struct {
	Driver      string        // STORE_DRIVER: memory|sqlite|postgres|badger
	DBPath      string        // DB_PATH (sqlite)
	DatabaseURL string        // DATABASE_URL (postgres)
	BadgerDir   string        // BADGER_DIR
	Timeout     time.Duration // STORE_TIMEOUT, per store call
}

// EngineConfig tunes generation and retention.
type EngineConfig struct {
	HashAlgorithm    string        // HASH_ALGORITHM: sha256|sha512|blake2b
	MaxAttempts      int           // MAX_ATTEMPTS, candidates before fallback
	FallbackStrategy string        // FALLBACK_STRATEGY: timestamp|digest
	CacheCapacity    int           // CACHE_CAPACITY, local FIFO cache size
	Retention        time.Duration // RETENTION, purge horizon
	GenerateTimeout  time.Duration // GENERATE_TIMEOUT, per HTTP generation
	InstanceID       string        // INSTANCE_ID, fallback suffix tag
	CleanupInterval  time.Duration // CLEANUP_INTERVAL, 0 disables the janitor
	VocabPath        string        // VOCAB_PATH, optional bank override
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// Store
	Store StoreConfig

	// Engine
	Engine EngineConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Store
		Store: StoreConfig{
			Driver:      strings.ToLower(strings.TrimSpace(getenv("STORE_DRIVER", "sqlite"))),
			DBPath:      getenv("DB_PATH", "fortune.db"),
			DatabaseURL: getenv("DATABASE_URL", ""),
			BadgerDir:   getenv("BADGER_DIR", "data/badger"),
			Timeout:     getdur("STORE_TIMEOUT", 2*time.Second),
		},

		// Engine
		Engine: EngineConfig{
			HashAlgorithm:    strings.ToLower(strings.TrimSpace(getenv("HASH_ALGORITHM", "sha256"))),
			MaxAttempts:      getint("MAX_ATTEMPTS", 10),
			FallbackStrategy: strings.ToLower(strings.TrimSpace(getenv("FALLBACK_STRATEGY", "timestamp"))),
			CacheCapacity:    getint("CACHE_CAPACITY", 1000),
			Retention:        getdur("RETENTION", 730*24*time.Hour),
			GenerateTimeout:  getdur("GENERATE_TIMEOUT", 5*time.Second),
			InstanceID:       getenv("INSTANCE_ID", uuid.NewString()[:8]),
			CleanupInterval:  getdur("CLEANUP_INTERVAL", 0),
			VocabPath:        getenv("VOCAB_PATH", ""),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-fortune-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.Store.Driver {
	case "memory", "badger":
	case "sqlite":
		if strings.TrimSpace(cfg.Store.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Store.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("STORE_DRIVER must be one of: memory, sqlite, postgres, badger")
	}
	if cfg.Store.Driver == "badger" && strings.TrimSpace(cfg.Store.BadgerDir) == "" {
		return cfg, errors.New("BADGER_DIR must not be empty")
	}
	if cfg.Store.Timeout <= 0 {
		return cfg, errors.New("STORE_TIMEOUT must be > 0")
	}
	switch cfg.Engine.HashAlgorithm {
	case "sha256", "sha512", "blake2b", "blake2b-256":
	default:
		return cfg, errors.New("HASH_ALGORITHM must be one of: sha256, sha512, blake2b")
	}
	if cfg.Engine.MaxAttempts < 1 {
		return cfg, errors.New("MAX_ATTEMPTS must be >= 1")
	}
	switch cfg.Engine.FallbackStrategy {
	case "timestamp", "digest":
	default:
		return cfg, errors.New("FALLBACK_STRATEGY must be one of: timestamp, digest")
	}
	if cfg.Engine.CacheCapacity < 1 {
		return cfg, errors.New("CACHE_CAPACITY must be >= 1")
	}
	if cfg.Engine.Retention <= 0 {
		return cfg, errors.New("RETENTION must be > 0")
	}
	if cfg.Engine.GenerateTimeout <= 0 {
		return cfg, errors.New("GENERATE_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.Engine.InstanceID) == "" {
		return cfg, errors.New("INSTANCE_ID must not be empty")
	}
	if cfg.Engine.CleanupInterval < 0 {
		return cfg, errors.New("CLEANUP_INTERVAL must be >= 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
