// Package config loads server configuration: hardcoded defaults, then
// an optional YAML file, then environment variables (optionally loaded
// from a .env file for local development), each later source
// overriding the earlier ones.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mallardmetrics/mallard/internal/logger"
)

func randomSecret() string {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		// crypto/rand failing is effectively unrecoverable; a fixed
		// fallback at least keeps the process from crashing on an
		// ambient-config path that should degrade, not abort.
		return "mallard-fallback-secret-do-not-use-in-production"
	}
	return hex.EncodeToString(raw)
}

// Config holds every server-tunable setting.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	DataDir string `yaml:"data_dir"`

	FlushEventCount    int `yaml:"flush_event_count"`
	FlushIntervalSecs  int `yaml:"flush_interval_secs"`
	RetentionDays      int `yaml:"retention_days"`
	ShutdownTimeoutSecs int `yaml:"shutdown_timeout_secs"`

	SiteIDs []string `yaml:"site_ids"`

	GeoIPDBPath     string `yaml:"geoip_db_path"`
	DashboardOrigin string `yaml:"dashboard_origin"`

	FilterBots bool `yaml:"filter_bots"`

	SessionTTLSecs int `yaml:"session_ttl_secs"`

	RateLimitPerSite uint32 `yaml:"rate_limit_per_site"`
	RateLimitPerIP   uint32 `yaml:"rate_limit_per_ip"`

	CacheTTLSecs int `yaml:"cache_ttl_secs"`
	CacheSize    int `yaml:"cache_size"`
	RedisAddr    string `yaml:"redis_addr"`

	LoginMaxAttempts int `yaml:"login_max_attempts"`
	LoginLockoutSecs int `yaml:"login_lockout_secs"`

	QueryWorkers int `yaml:"query_workers"`

	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	Secret        string `yaml:"-"` // never serialized, never logged
	AdminPassword string `yaml:"-"`
}

// Default returns the baseline configuration before any environment
// or file overlay is applied.
func Default() Config {
	return Config{
		Host:                "0.0.0.0",
		Port:                8080,
		DataDir:             "./data",
		FlushEventCount:     500,
		FlushIntervalSecs:   10,
		RetentionDays:       0,
		ShutdownTimeoutSecs: 10,
		FilterBots:          false,
		SessionTTLSecs:      86400,
		RateLimitPerSite:    0,
		RateLimitPerIP:      0,
		CacheTTLSecs:        60,
		CacheSize:           1000,
		LoginMaxAttempts:    5,
		LoginLockoutSecs:    300,
		QueryWorkers:        4,
		LogLevel:            "info",
		LogPretty:           false,
	}
}

// Load builds the effective configuration: defaults, overlaid by
// yamlPath (if non-empty and present), overlaid by environment
// variables (including a .env file, if present, loaded first).
// Malformed values fall back to their default and are warned about;
// they never abort startup.
func Load(yamlPath string) Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Orchestrator().Warn().Err(err).Msg("failed to load .env file")
	}

	cfg := Default()

	if yamlPath != "" {
		if data, err := os.ReadFile(yamlPath); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				logger.Orchestrator().Warn().Err(err).Str("path", yamlPath).Msg("invalid config file, ignoring")
			}
		} else if !os.IsNotExist(err) {
			logger.Orchestrator().Warn().Err(err).Str("path", yamlPath).Msg("could not read config file")
		}
	}

	cfg.Host = getEnv("MALLARD_HOST", cfg.Host)
	cfg.Port = getEnvInt("MALLARD_PORT", cfg.Port)
	cfg.DataDir = getEnv("MALLARD_DATA_DIR", cfg.DataDir)
	cfg.FlushEventCount = getEnvInt("MALLARD_FLUSH_EVENT_COUNT", cfg.FlushEventCount)
	cfg.FlushIntervalSecs = getEnvInt("MALLARD_FLUSH_INTERVAL_SECS", cfg.FlushIntervalSecs)
	cfg.RetentionDays = getEnvInt("MALLARD_RETENTION_DAYS", cfg.RetentionDays)
	cfg.ShutdownTimeoutSecs = getEnvInt("MALLARD_SHUTDOWN_TIMEOUT_SECS", cfg.ShutdownTimeoutSecs)
	cfg.GeoIPDBPath = getEnv("MALLARD_GEOIP_DB_PATH", cfg.GeoIPDBPath)
	cfg.DashboardOrigin = getEnv("MALLARD_DASHBOARD_ORIGIN", cfg.DashboardOrigin)
	cfg.FilterBots = getEnvBool("MALLARD_FILTER_BOTS", cfg.FilterBots)
	cfg.SessionTTLSecs = getEnvInt("MALLARD_SESSION_TTL_SECS", cfg.SessionTTLSecs)
	cfg.RateLimitPerSite = uint32(getEnvInt("MALLARD_RATE_LIMIT_PER_SITE", int(cfg.RateLimitPerSite)))
	cfg.RateLimitPerIP = uint32(getEnvInt("MALLARD_RATE_LIMIT_PER_IP", int(cfg.RateLimitPerIP)))
	cfg.CacheTTLSecs = getEnvInt("MALLARD_CACHE_TTL_SECS", cfg.CacheTTLSecs)
	cfg.CacheSize = getEnvInt("MALLARD_CACHE_SIZE", cfg.CacheSize)
	cfg.RedisAddr = getEnv("MALLARD_REDIS_ADDR", cfg.RedisAddr)
	cfg.LoginMaxAttempts = getEnvInt("MALLARD_LOGIN_MAX_ATTEMPTS", cfg.LoginMaxAttempts)
	cfg.LoginLockoutSecs = getEnvInt("MALLARD_LOGIN_LOCKOUT_SECS", cfg.LoginLockoutSecs)
	cfg.QueryWorkers = getEnvInt("MALLARD_QUERY_WORKERS", cfg.QueryWorkers)
	cfg.LogLevel = getEnv("MALLARD_LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = getEnvBool("MALLARD_LOG_PRETTY", cfg.LogPretty)

	if ids := getEnv("MALLARD_SITE_IDS", ""); ids != "" {
		cfg.SiteIDs = strings.Split(ids, ",")
	}

	cfg.Secret = os.Getenv("MALLARD_SECRET")
	if cfg.Secret == "" {
		cfg.Secret = randomSecret()
		logger.Orchestrator().Warn().Msg("MALLARD_SECRET not set; generated a random visitor-ID salt seed for this process only")
	}
	cfg.AdminPassword = os.Getenv("MALLARD_ADMIN_PASSWORD")

	return cfg
}

func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSecs) * time.Second
}

func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSecs) * time.Second
}

func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSecs) * time.Second
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSecs) * time.Second
}

// SiteAllowed reports whether siteID is permitted to ingest events. An
// empty allow-list means every site_id is accepted.
func (c Config) SiteAllowed(siteID string) bool {
	if len(c.SiteIDs) == 0 {
		return true
	}
	for _, id := range c.SiteIDs {
		if id == siteID {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Orchestrator().Warn().Str("key", key).Str("value", v).Msg("invalid integer env var, using default")
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Orchestrator().Warn().Str("key", key).Str("value", v).Msg("invalid boolean env var, using default")
		return fallback
	}
	return b
}
