package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env string

	Database DatabaseConfig
	Redis    RedisConfig
	Store    StoreConfig
	Sync     SyncConfig
	Log      LogConfig
	Metrics  MetricsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StoreConfig tunes the remote document store adapter.
type StoreConfig struct {
	NotifyChannelPrefix string
	CacheTTL            time.Duration
	ListenMinInterval   time.Duration
	ListenMaxInterval   time.Duration
}

// SyncConfig governs the cache-first synchronization layer.
type SyncConfig struct {
	ActivityPageSize     int
	DeepDivePageSize     int
	DeepDiveDetailSize   int
	BroadcastClassLimit  int
	PrivateNotifyLimit   int
	PrivateNotifyWindow  time.Duration
	QueryTimeout         time.Duration
	ResyncWorkers        int
	ResyncRetries        int
	ResyncRetryDelay     time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig toggles Prometheus instrumentation.
type MetricsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Store = StoreConfig{
		NotifyChannelPrefix: v.GetString("STORE_NOTIFY_CHANNEL_PREFIX"),
		CacheTTL:            parseDuration(v.GetString("STORE_CACHE_TTL"), 10*time.Minute),
		ListenMinInterval:   parseDuration(v.GetString("STORE_LISTEN_MIN_INTERVAL"), 10*time.Second),
		ListenMaxInterval:   parseDuration(v.GetString("STORE_LISTEN_MAX_INTERVAL"), time.Minute),
	}

	cfg.Sync = SyncConfig{
		ActivityPageSize:    v.GetInt("SYNC_ACTIVITY_PAGE_SIZE"),
		DeepDivePageSize:    v.GetInt("SYNC_DEEP_DIVE_PAGE_SIZE"),
		DeepDiveDetailSize:  v.GetInt("SYNC_DEEP_DIVE_DETAIL_SIZE"),
		BroadcastClassLimit: v.GetInt("SYNC_BROADCAST_CLASS_LIMIT"),
		PrivateNotifyLimit:  v.GetInt("SYNC_PRIVATE_NOTIFY_LIMIT"),
		PrivateNotifyWindow: parseDuration(v.GetString("SYNC_PRIVATE_NOTIFY_WINDOW"), 7*24*time.Hour),
		QueryTimeout:        parseDuration(v.GetString("SYNC_QUERY_TIMEOUT"), 15*time.Second),
		ResyncWorkers:       v.GetInt("SYNC_RESYNC_WORKERS"),
		ResyncRetries:       v.GetInt("SYNC_RESYNC_RETRIES"),
		ResyncRetryDelay:    parseDuration(v.GetString("SYNC_RESYNC_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Metrics = MetricsConfig{
		Enabled: v.GetBool("ENABLE_METRICS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "historia_acessivel")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("STORE_NOTIFY_CHANNEL_PREFIX", "doc_")
	v.SetDefault("STORE_CACHE_TTL", "10m")
	v.SetDefault("STORE_LISTEN_MIN_INTERVAL", "10s")
	v.SetDefault("STORE_LISTEN_MAX_INTERVAL", "1m")

	v.SetDefault("SYNC_ACTIVITY_PAGE_SIZE", 10)
	v.SetDefault("SYNC_DEEP_DIVE_PAGE_SIZE", 50)
	v.SetDefault("SYNC_DEEP_DIVE_DETAIL_SIZE", 20)
	v.SetDefault("SYNC_BROADCAST_CLASS_LIMIT", 10)
	v.SetDefault("SYNC_PRIVATE_NOTIFY_LIMIT", 20)
	v.SetDefault("SYNC_PRIVATE_NOTIFY_WINDOW", "168h")
	v.SetDefault("SYNC_QUERY_TIMEOUT", "15s")
	v.SetDefault("SYNC_RESYNC_WORKERS", 1)
	v.SetDefault("SYNC_RESYNC_RETRIES", 3)
	v.SetDefault("SYNC_RESYNC_RETRY_DELAY", "2s")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_METRICS", false)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}
