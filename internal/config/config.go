// Package config loads the sync engine's configuration from a YAML file
// and environment variables, via viper, following the teacher's
// defaults-then-file-then-env layering and flat mapstructure-tagged
// sections.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Sync        SyncConfig        `mapstructure:"sync"`
	Spreadsheet SpreadsheetConfig `mapstructure:"spreadsheet"`
}

// AppConfig holds application identity settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// DatabaseConfig holds the target-table Postgres pool's connection
// settings, shaped to convert directly to postgres.PostgresConfig.
type DatabaseConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	Database          string        `mapstructure:"database"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`

	// MigrationsDir is where goose migration files live.
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// RedisConfig holds the idempotency store's Redis connection settings.
// Addr left empty falls back to the in-memory idempotency store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig mirrors pkg/logger's slog+lumberjack settings.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig holds the Prometheus exposition server's settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// SyncConfig holds the engine-wide tuning knobs that apply across every
// SyncConfig record, per spec.md §4.6/§4.7/§4.10.
type SyncConfig struct {
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	ChangeLogBatch   int           `mapstructure:"change_log_batch"`
	IdempotencyTTL   time.Duration `mapstructure:"idempotency_ttl"`
	DLQCapacity      int           `mapstructure:"dlq_capacity"`

	RetryMaxAttempts int           `mapstructure:"retry_max_attempts"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay    time.Duration `mapstructure:"retry_max_delay"`
	RetryJitter      bool          `mapstructure:"retry_jitter"`

	BreakerFailureThreshold int           `mapstructure:"breaker_failure_threshold"`
	BreakerCooldown         time.Duration `mapstructure:"breaker_cooldown"`

	RateLimitTokensPerSecond float64 `mapstructure:"rate_limit_tokens_per_second"`
	RateLimitBurst           int     `mapstructure:"rate_limit_burst"`
}

// SpreadsheetConfig holds the remote spreadsheet API's connection
// settings.
type SpreadsheetConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads configuration from defaults, then configPath (if non-empty),
// then environment variables (SHEETSYNC_-prefixed, "." replaced by "_"),
// each layer overriding the last.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("sheetsync")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sheetsync")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "sheetsync")
	v.SetDefault("database.user", "sheetsync")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "5m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migrations_dir", "migrations")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.filename", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("sync.tick_interval", "10s")
	v.SetDefault("sync.change_log_batch", 1000)
	v.SetDefault("sync.idempotency_ttl", "24h")
	v.SetDefault("sync.dlq_capacity", 1000)
	v.SetDefault("sync.retry_max_attempts", 3)
	v.SetDefault("sync.retry_base_delay", "100ms")
	v.SetDefault("sync.retry_max_delay", "5s")
	v.SetDefault("sync.retry_jitter", true)
	v.SetDefault("sync.breaker_failure_threshold", 5)
	v.SetDefault("sync.breaker_cooldown", "30s")
	v.SetDefault("sync.rate_limit_tokens_per_second", 5.0)
	v.SetDefault("sync.rate_limit_burst", 10)

	v.SetDefault("spreadsheet.base_url", "")
	v.SetDefault("spreadsheet.api_key", "")
	v.SetDefault("spreadsheet.timeout", "30s")
}

// Validate enforces the invariants a malformed config would otherwise
// only surface as a confusing runtime error.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name cannot be empty")
	}
	if c.Log.Level == "" {
		return fmt.Errorf("log level cannot be empty")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("database max_conns must be greater than 0")
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database min_conns must be between 0 and max_conns")
	}
	if c.Sync.TickInterval <= 0 {
		return fmt.Errorf("sync tick_interval must be greater than 0")
	}
	if c.Sync.ChangeLogBatch <= 0 {
		return fmt.Errorf("sync change_log_batch must be greater than 0")
	}
	if c.Sync.RetryMaxAttempts < 0 {
		return fmt.Errorf("sync retry_max_attempts cannot be negative")
	}
	return nil
}

// UsesRedisIdempotency reports whether a Redis address was configured; if
// not, the in-memory idempotency store is used instead.
func (c *Config) UsesRedisIdempotency() bool {
	return c.Redis.Addr != ""
}

// IsDevelopment reports whether the app is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
