package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"partner-sync-go/pkg/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	MergeStrategyNone    = "none"
	MergeStrategyShallow = "shallow"
)

type Config struct {
	Env      string         `toml:"env"`
	HTTP     HTTPConfig     `toml:"http"`
	DB       DBConfig       `toml:"db"`
	Identity IdentityConfig `toml:"identity"`
	Sync     SyncConfig     `toml:"sync"`
}

type HTTPConfig struct {
	Port            string        `toml:"port"`
	CORSOrigins     []string      `toml:"cors_origins"`
	RequestTimeout  time.Duration `toml:"request_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

type DBConfig struct {
	Driver          string        `toml:"driver"`
	DSN             string        `toml:"dsn"`
	Host            string        `toml:"host"`
	Port            string        `toml:"port"`
	User            string        `toml:"user"`
	Password        string        `toml:"password"`
	Name            string        `toml:"name"`
	SSLMode         string        `toml:"sslmode"`
	TimeZone        string        `toml:"timezone"`
	SQLitePath      string        `toml:"sqlite_path"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
	AutoMigrate     bool          `toml:"auto_migrate"`
}

// IdentityConfig points at the external service that turns bearer tokens
// into partner principals.
type IdentityConfig struct {
	URL           string        `toml:"url"`
	APIKey        string        `toml:"api_key"`
	Timeout       time.Duration `toml:"timeout"`
	CacheTTL      time.Duration `toml:"cache_ttl"`
	SkipAuth      bool          `toml:"skip_auth"`
	MockPartnerID string        `toml:"mock_partner_id"`
	MockDeviceID  string        `toml:"mock_device_id"`
	MockSubject   string        `toml:"mock_subject"`
}

type SyncConfig struct {
	MaxBatchOperations int           `toml:"max_batch_operations"`
	MaxAttempts        int           `toml:"max_attempts"`
	HeadSwapAttempts   int           `toml:"head_swap_attempts"`
	DefaultPullLimit   int           `toml:"default_pull_limit"`
	MaxPullLimit       int           `toml:"max_pull_limit"`
	OverdueAfter       time.Duration `toml:"overdue_after"`
	SweepInterval      time.Duration `toml:"sweep_interval"`
	MergeStrategy      string        `toml:"merge_strategy"`
	StreamBuffer       int           `toml:"stream_buffer"`
}

func Default() Config {
	return Config{
		Env: "development",
		HTTP: HTTPConfig{
			Port:            "8080",
			CORSOrigins:     []string{"http://localhost:5173"},
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		DB: DBConfig{
			Driver:          DriverPostgres,
			Host:            "localhost",
			Port:            "5432",
			User:            "postgres",
			Password:        "postgres",
			Name:            "partner_sync",
			SSLMode:         "disable",
			TimeZone:        "UTC",
			SQLitePath:      "partner-sync.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			AutoMigrate:     true,
		},
		Identity: IdentityConfig{
			Timeout:       5 * time.Second,
			CacheTTL:      time.Minute,
			MockPartnerID: "partner-dev",
			MockDeviceID:  "device-dev",
			MockSubject:   "dev-operator",
		},
		Sync: SyncConfig{
			MaxBatchOperations: 100,
			MaxAttempts:        3,
			HeadSwapAttempts:   5,
			DefaultPullLimit:   100,
			MaxPullLimit:       1000,
			OverdueAfter:       5 * time.Minute,
			SweepInterval:      time.Minute,
			MergeStrategy:      MergeStrategyShallow,
			StreamBuffer:       16,
		},
	}
}

// Load resolves configuration from defaults, then the optional TOML file at
// path, then .env and the process environment.
func Load(log logger.Logger, path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
		log.Info("config: loaded file", "path", path)
	}

	if err := loadDotEnv(log); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Env = getEnv("ENV", cfg.Env)

	cfg.HTTP.Port = getEnv("HTTP_PORT", cfg.HTTP.Port)
	cfg.HTTP.CORSOrigins = getEnvList("CORS_ORIGINS", cfg.HTTP.CORSOrigins)
	cfg.HTTP.RequestTimeout = getEnvDuration("HTTP_REQUEST_TIMEOUT", cfg.HTTP.RequestTimeout)
	cfg.HTTP.ShutdownTimeout = getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", cfg.HTTP.ShutdownTimeout)

	cfg.DB.Driver = getEnv("DB_DRIVER", cfg.DB.Driver)
	cfg.DB.DSN = getEnv("DB_DSN", cfg.DB.DSN)
	cfg.DB.Host = getEnv("DB_HOST", cfg.DB.Host)
	cfg.DB.Port = getEnv("DB_PORT", cfg.DB.Port)
	cfg.DB.User = getEnv("DB_USER", cfg.DB.User)
	cfg.DB.Password = getEnv("DB_PASSWORD", cfg.DB.Password)
	cfg.DB.Name = getEnv("DB_NAME", cfg.DB.Name)
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", cfg.DB.SSLMode)
	cfg.DB.TimeZone = getEnv("DB_TIMEZONE", cfg.DB.TimeZone)
	cfg.DB.SQLitePath = getEnv("DB_SQLITE_PATH", cfg.DB.SQLitePath)
	cfg.DB.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", cfg.DB.MaxOpenConns)
	cfg.DB.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", cfg.DB.MaxIdleConns)
	cfg.DB.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", cfg.DB.ConnMaxLifetime)
	cfg.DB.AutoMigrate = getEnvBool("DB_AUTO_MIGRATE", cfg.DB.AutoMigrate)

	cfg.Identity.URL = getEnv("IDENTITY_URL", cfg.Identity.URL)
	cfg.Identity.APIKey = getEnv("IDENTITY_API_KEY", cfg.Identity.APIKey)
	cfg.Identity.Timeout = getEnvDuration("IDENTITY_TIMEOUT", cfg.Identity.Timeout)
	cfg.Identity.CacheTTL = getEnvDuration("IDENTITY_CACHE_TTL", cfg.Identity.CacheTTL)
	cfg.Identity.SkipAuth = getEnvBool("AUTH_SKIP", cfg.Identity.SkipAuth)
	cfg.Identity.MockPartnerID = getEnv("AUTH_MOCK_PARTNER_ID", cfg.Identity.MockPartnerID)
	cfg.Identity.MockDeviceID = getEnv("AUTH_MOCK_DEVICE_ID", cfg.Identity.MockDeviceID)
	cfg.Identity.MockSubject = getEnv("AUTH_MOCK_SUBJECT", cfg.Identity.MockSubject)

	cfg.Sync.MaxBatchOperations = getEnvInt("SYNC_MAX_BATCH_OPERATIONS", cfg.Sync.MaxBatchOperations)
	cfg.Sync.MaxAttempts = getEnvInt("SYNC_MAX_ATTEMPTS", cfg.Sync.MaxAttempts)
	cfg.Sync.HeadSwapAttempts = getEnvInt("SYNC_HEAD_SWAP_ATTEMPTS", cfg.Sync.HeadSwapAttempts)
	cfg.Sync.DefaultPullLimit = getEnvInt("SYNC_DEFAULT_PULL_LIMIT", cfg.Sync.DefaultPullLimit)
	cfg.Sync.MaxPullLimit = getEnvInt("SYNC_MAX_PULL_LIMIT", cfg.Sync.MaxPullLimit)
	cfg.Sync.OverdueAfter = getEnvDuration("SYNC_OVERDUE_AFTER", cfg.Sync.OverdueAfter)
	cfg.Sync.SweepInterval = getEnvDuration("SYNC_SWEEP_INTERVAL", cfg.Sync.SweepInterval)
	cfg.Sync.MergeStrategy = getEnv("SYNC_MERGE_STRATEGY", cfg.Sync.MergeStrategy)
	cfg.Sync.StreamBuffer = getEnvInt("SYNC_STREAM_BUFFER", cfg.Sync.StreamBuffer)
}

func (c Config) Validate() error {
	var errs []error

	switch c.DB.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("db.driver: unknown driver %q", c.DB.Driver))
	}
	if c.DB.Driver == DriverSQLite && strings.TrimSpace(c.DB.SQLitePath) == "" {
		errs = append(errs, errors.New("db.sqlite_path: required for sqlite driver"))
	}

	for _, field := range []struct {
		key   string
		value int
	}{
		{"sync.max_batch_operations", c.Sync.MaxBatchOperations},
		{"sync.max_attempts", c.Sync.MaxAttempts},
		{"sync.head_swap_attempts", c.Sync.HeadSwapAttempts},
		{"sync.default_pull_limit", c.Sync.DefaultPullLimit},
		{"sync.max_pull_limit", c.Sync.MaxPullLimit},
		{"sync.stream_buffer", c.Sync.StreamBuffer},
	} {
		if field.value <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %d", field.key, field.value))
		}
	}
	if c.Sync.DefaultPullLimit > c.Sync.MaxPullLimit {
		errs = append(errs, fmt.Errorf("sync.default_pull_limit: %d exceeds sync.max_pull_limit %d", c.Sync.DefaultPullLimit, c.Sync.MaxPullLimit))
	}
	if c.Sync.OverdueAfter <= 0 {
		errs = append(errs, errors.New("sync.overdue_after: must be positive"))
	}
	if c.Sync.SweepInterval < 0 {
		errs = append(errs, errors.New("sync.sweep_interval: must not be negative"))
	}

	switch c.Sync.MergeStrategy {
	case MergeStrategyNone, MergeStrategyShallow:
	default:
		errs = append(errs, fmt.Errorf("sync.merge_strategy: unknown strategy %q", c.Sync.MergeStrategy))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c DBConfig) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.Driver == DriverSQLite {
		return c.SQLitePath
	}
	return "host=" + c.Host +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Name +
		" port=" + c.Port +
		" sslmode=" + c.SSLMode +
		" TimeZone=" + c.TimeZone
}
