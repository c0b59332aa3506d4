package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported record store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	LogLevel    string
	LogPretty   bool
	CORSOrigins []string

	StoreDriver     string
	DatabaseURL     string
	RedisURL        string
	RedisPoolSize   int
	RedisTimeout    time.Duration
	NATSURL         string
	RealtimeChannel string
	JWTSecret       string

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string

	BackupRecordLimit   int
	BackupExportEnabled bool
	BackupRateLimit     int
	BackupRateWindow    time.Duration
	RestorePageSize     int
	ActivityCacheTTL    time.Duration

	ConnectivityInitiallyOnline      bool
	ConnectivityProbeTimeout         time.Duration
	ConnectivityReconnectDelay       time.Duration
	ConnectivityMaxReconnectAttempts int
	ConnectivityProbeInterval        time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// CloudinaryConfigured reports whether snapshot exports can be uploaded.
func (c Config) CloudinaryConfigured() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PORTAL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Portal Resilience API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("store.driver", StoreDriverPostgres)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.timeout", "3s")
	v.SetDefault("realtime.channel", "portal:events")
	v.SetDefault("cloudinary.folder", "portal/backups")
	v.SetDefault("backup.record_limit", 100)
	v.SetDefault("backup.export_enabled", false)
	v.SetDefault("backup.rate_limit", 5)
	v.SetDefault("backup.rate_window", "1m")
	v.SetDefault("restore.page_size", 200)
	v.SetDefault("activity.cache_ttl", "30s")
	v.SetDefault("connectivity.initially_online", true)
	v.SetDefault("connectivity.probe_timeout", "10s")
	v.SetDefault("connectivity.reconnect_delay", "5s")
	v.SetDefault("connectivity.max_reconnect_attempts", 3)
	v.SetDefault("connectivity.probe_interval", "0s")

	durations := map[string]*time.Duration{}
	cfg := Config{
		AppName:     v.GetString("app.name"),
		AppEnv:      v.GetString("app.env"),
		AppPort:     v.GetString("app.port"),
		LogLevel:    strings.ToLower(v.GetString("log.level")),
		LogPretty:   v.GetBool("log.pretty"),
		CORSOrigins: splitList(v.GetString("cors.origins")),

		StoreDriver:     strings.ToLower(strings.TrimSpace(v.GetString("store.driver"))),
		DatabaseURL:     v.GetString("database.url"),
		RedisURL:        v.GetString("redis.url"),
		RedisPoolSize:   v.GetInt("redis.pool_size"),
		NATSURL:         v.GetString("nats.url"),
		RealtimeChannel: v.GetString("realtime.channel"),
		JWTSecret:       v.GetString("jwt.secret"),

		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),

		BackupRecordLimit:   v.GetInt("backup.record_limit"),
		BackupExportEnabled: v.GetBool("backup.export_enabled"),
		BackupRateLimit:     v.GetInt("backup.rate_limit"),
		RestorePageSize:     v.GetInt("restore.page_size"),

		ConnectivityInitiallyOnline:      v.GetBool("connectivity.initially_online"),
		ConnectivityMaxReconnectAttempts: v.GetInt("connectivity.max_reconnect_attempts"),
	}
	durations["backup.rate_window"] = &cfg.BackupRateWindow
	durations["activity.cache_ttl"] = &cfg.ActivityCacheTTL
	durations["redis.timeout"] = &cfg.RedisTimeout
	durations["connectivity.probe_timeout"] = &cfg.ConnectivityProbeTimeout
	durations["connectivity.reconnect_delay"] = &cfg.ConnectivityReconnectDelay
	durations["connectivity.probe_interval"] = &cfg.ConnectivityProbeInterval

	for key, target := range durations {
		parsed, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed < 0 {
			return Config{}, fmt.Errorf("invalid %s: must not be negative", key)
		}
		*target = parsed
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres, StoreDriverSQLite:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("database url must be provided for the %s store", cfg.StoreDriver)
		}
	case StoreDriverMemory:
	default:
		return Config{}, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}

	if cfg.BackupRecordLimit <= 0 || cfg.BackupRecordLimit > 100 {
		return Config{}, fmt.Errorf("backup record limit must be between 1 and 100")
	}
	if cfg.RestorePageSize <= 0 {
		return Config{}, fmt.Errorf("restore page size must be positive")
	}
	if cfg.ConnectivityMaxReconnectAttempts <= 0 {
		return Config{}, fmt.Errorf("connectivity max reconnect attempts must be positive")
	}

	return cfg, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
