// Package config loads Sentinel's runtime configuration: defaults, then an
// optional TOML file, then SENTINEL_-prefixed environment overrides (env
// wins), matching spec §6's recognized knobs.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full set of knobs a running Sentinel server needs.
type Config struct {
	Storage       StorageConfig       `toml:"storage"`
	Cache         CacheConfig         `toml:"cache"`
	Sync          SyncConfig          `toml:"sync"`
	CircuitBreaker CircuitBreakerConfig `toml:"circuit_breaker"`
	Broadcast     BroadcastConfig     `toml:"broadcast"`
	HTTP          HTTPConfig          `toml:"http"`
}

// StorageConfig controls the Durable Store's file and retention policy.
type StorageConfig struct {
	Dir           string `toml:"dir"`
	RetentionDays int    `toml:"retention_days"`
	MaxSizeMB     int    `toml:"max_size_mb"`
}

// CacheConfig controls the best-effort Cache connection (§4.B).
type CacheConfig struct {
	URL            string        `toml:"url"`
	DialTimeout    time.Duration `toml:"dial_timeout"`
	CommandTimeout time.Duration `toml:"command_timeout"`
}

// SyncConfig controls the Deferred Sync Queue drain loop (§4.D).
type SyncConfig struct {
	Interval   time.Duration `toml:"interval"`
	BatchSize  int           `toml:"batch_size"`
	MaxRetries int           `toml:"max_retries"`
}

// CircuitBreakerConfig controls the breaker fronting the Cache (§4.B).
type CircuitBreakerConfig struct {
	FailureThreshold int32         `toml:"failure_threshold"`
	RecoveryTimeout  time.Duration `toml:"recovery_timeout"`
	MonitoringWindow time.Duration `toml:"monitoring_window"`
}

// BroadcastConfig controls the live subscriber Bus (§4.H).
type BroadcastConfig struct {
	HighWaterMark int `toml:"high_water_mark"`
	InitialWindow int `toml:"initial_window"`
}

// HTTPConfig controls the ingestion/dashboard HTTP+WS listener.
type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// Default returns a Config with every knob set to its spec-documented
// default.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Dir:           "sentinel-data",
			RetentionDays: 30,
			MaxSizeMB:     1024,
		},
		Cache: CacheConfig{
			URL:            "redis://127.0.0.1:6379/0",
			DialTimeout:    5 * time.Second,
			CommandTimeout: 3 * time.Second,
		},
		Sync: SyncConfig{
			Interval:   30 * time.Second,
			BatchSize:  100,
			MaxRetries: 3,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			MonitoringWindow: 60 * time.Second,
		},
		Broadcast: BroadcastConfig{
			HighWaterMark: 1024,
			InitialWindow: 500,
		},
		HTTP: HTTPConfig{
			Addr: ":4000",
		},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins). path
// defaults to "sentinel.toml"; a missing file is not an error, since
// Default() already supplies every field.
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "sentinel.toml"
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("SENTINEL_STORAGE_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v, ok := envInt("SENTINEL_RETENTION_DAYS"); ok {
		cfg.Storage.RetentionDays = v
	}
	if v, ok := envInt("SENTINEL_MAX_SIZE_MB"); ok {
		cfg.Storage.MaxSizeMB = v
	}
	if v := os.Getenv("SENTINEL_CACHE_URL"); v != "" {
		cfg.Cache.URL = v
	}
	if v, ok := envDuration("SENTINEL_CACHE_DIAL_TIMEOUT"); ok {
		cfg.Cache.DialTimeout = v
	}
	if v, ok := envDuration("SENTINEL_CACHE_COMMAND_TIMEOUT"); ok {
		cfg.Cache.CommandTimeout = v
	}
	if v, ok := envDuration("SENTINEL_SYNC_INTERVAL"); ok {
		cfg.Sync.Interval = v
	}
	if v, ok := envInt("SENTINEL_SYNC_BATCH_SIZE"); ok {
		cfg.Sync.BatchSize = v
	}
	if v, ok := envInt("SENTINEL_SYNC_MAX_RETRIES"); ok {
		cfg.Sync.MaxRetries = v
	}
	if v, ok := envInt32("SENTINEL_BREAKER_FAILURE_THRESHOLD"); ok {
		cfg.CircuitBreaker.FailureThreshold = v
	}
	if v, ok := envDuration("SENTINEL_BREAKER_RECOVERY_TIMEOUT"); ok {
		cfg.CircuitBreaker.RecoveryTimeout = v
	}
	if v, ok := envDuration("SENTINEL_BREAKER_MONITORING_WINDOW"); ok {
		cfg.CircuitBreaker.MonitoringWindow = v
	}
	if v, ok := envInt("SENTINEL_BROADCAST_HIGH_WATER"); ok {
		cfg.Broadcast.HighWaterMark = v
	}
	if v, ok := envInt("SENTINEL_BROADCAST_INITIAL_WINDOW"); ok {
		cfg.Broadcast.InitialWindow = v
	}
	if v := os.Getenv("SENTINEL_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	return cfg
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envInt32(key string) (int32, bool) {
	n, ok := envInt(key)
	return int32(n), ok
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}
