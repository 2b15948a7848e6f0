// Package config loads the crawler configuration from ELEXON_* environment
// variables through viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sternrassler/elexon-crawler/pkg/logging"
)

// EnvPrefix is prepended to every key, e.g. ELEXON_RATE_PER_SEC.
const EnvPrefix = "ELEXON"

// Cache backends.
const (
	BackendDisk  = "disk"
	BackendRedis = "redis"
)

// Config is the complete runtime configuration.
type Config struct {
	BaseURL   string
	HealthURL string
	UserAgent string

	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration

	MaxConcurrency int
	RatePerSec     float64

	CacheEnabled       bool
	CacheTTL           time.Duration // 0 means entries never expire
	CacheDir           string
	CacheBackend       string
	CacheMemoryEntries int // LRU entries in front of the backend, 0 disables the tier
	RedisAddr          string

	LogLevel  string
	LogPretty bool
}

// keys lists every configuration key; each maps to ELEXON_<KEY>.
var keys = []string{
	"base_url", "health_url", "user_agent",
	"timeout", "max_retries", "backoff_base", "backoff_cap",
	"max_concurrency", "rate_per_sec",
	"cache_enabled", "cache_ttl", "cache_dir", "cache_backend", "cache_memory_entries", "redis_addr",
	"log_level", "log_pretty",
}

// aliases lists older variable names still honoured for a key. The
// canonical ELEXON_<KEY> name takes precedence when both are set.
var aliases = map[string][]string{
	"timeout":   {"ELEXON_TIMEOUT_S"},
	"cache_ttl": {"ELEXON_CACHE_TTL_S"},
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "https://data.elexon.co.uk/bmrs/api/v1")
	v.SetDefault("health_url", "https://data.elexon.co.uk/bmrs/api/v1/health")
	v.SetDefault("user_agent", "elexon-dl/0.2")
	v.SetDefault("timeout", "30s")
	v.SetDefault("max_retries", 3)
	v.SetDefault("backoff_base", "500ms")
	v.SetDefault("backoff_cap", "5s")
	v.SetDefault("max_concurrency", 128)
	v.SetDefault("rate_per_sec", 80.0)
	v.SetDefault("cache_enabled", true)
	v.SetDefault("cache_ttl", "0")
	v.SetDefault("cache_dir", defaultCacheDir())
	v.SetDefault("cache_backend", BackendDisk)
	v.SetDefault("cache_memory_entries", 0)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("log_level", string(logging.LevelInfo))
	v.SetDefault("log_pretty", false)
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".cache", "elexon-dl", "http")
	}
	return filepath.Join(home, ".cache", "elexon-dl", "http")
}

// NewViper returns a viper instance bound to the ELEXON_* environment.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	for _, k := range keys {
		env := EnvPrefix + "_" + strings.ToUpper(k)
		_ = v.BindEnv(append([]string{k, env}, aliases[k]...)...)
	}
	v.AutomaticEnv()
	return v
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	return FromViper(NewViper())
}

// FromViper builds a Config from v and validates it.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		BaseURL:            v.GetString("base_url"),
		HealthURL:          v.GetString("health_url"),
		UserAgent:          v.GetString("user_agent"),
		MaxRetries:         v.GetInt("max_retries"),
		MaxConcurrency:     v.GetInt("max_concurrency"),
		RatePerSec:         v.GetFloat64("rate_per_sec"),
		CacheEnabled:       v.GetBool("cache_enabled"),
		CacheDir:           expandHome(v.GetString("cache_dir")),
		CacheBackend:       strings.ToLower(v.GetString("cache_backend")),
		CacheMemoryEntries: v.GetInt("cache_memory_entries"),
		RedisAddr:          v.GetString("redis_addr"),
		LogLevel:           v.GetString("log_level"),
		LogPretty:          v.GetBool("log_pretty"),
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"timeout", &cfg.Timeout},
		{"backoff_base", &cfg.BackoffBase},
		{"backoff_cap", &cfg.BackoffCap},
		{"cache_ttl", &cfg.CacheTTL},
	}
	for _, d := range durations {
		parsed, err := ParseDuration(v.GetString(d.key))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	return cfg, cfg.Validate()
}

// Validate checks for configuration values the crawler cannot run with.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must be set")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent must be set")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0 (got %s)", c.Timeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0 (got %d)", c.MaxRetries)
	}
	if c.BackoffBase < 0 || c.BackoffCap < 0 {
		return fmt.Errorf("backoff durations must be >= 0")
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be > 0 (got %d)", c.MaxConcurrency)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must be >= 0 (got %s)", c.CacheTTL)
	}
	if c.CacheMemoryEntries < 0 {
		return fmt.Errorf("cache_memory_entries must be >= 0 (got %d)", c.CacheMemoryEntries)
	}
	if c.CacheEnabled {
		switch c.CacheBackend {
		case BackendDisk:
			if c.CacheDir == "" {
				return fmt.Errorf("cache_dir must be set for the disk backend")
			}
		case BackendRedis:
			if c.RedisAddr == "" {
				return fmt.Errorf("redis_addr must be set for the redis backend")
			}
		default:
			return fmt.Errorf("cache_backend must be %s or %s (got %q)", BackendDisk, BackendRedis, c.CacheBackend)
		}
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Logging returns the logger configuration.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

// ParseDuration accepts Go duration syntax ("500ms", "1m30s") or a plain
// number of seconds ("0.5", "30").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
