// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/emadnahed/shtlink/internal/idgen"
)

// Store backends.
const (
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	App        AppConfig
	Store      StoreConfig
	SQLite     SQLiteConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Codegen    CodegenConfig
	Allocation AllocationConfig
	Metrics    MetricsConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Env       string
	LogLevel  string
	LogFormat string
}

// IsDevelopment returns true if the app is running in development mode.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development" || a.Env == "dev"
}

// IsProduction returns true if the app is running in production mode.
func (a AppConfig) IsProduction() bool {
	return a.Env == "production" || a.Env == "prod"
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string
}

// SQLiteConfig holds the location of the SQLite database file.
type SQLiteConfig struct {
	Path        string
	BusyTimeout time.Duration
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	PoolSize       int
	KeyPrefix      string
	ConnectTimeout time.Duration
}

// Address returns the Redis address in host:port format.
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CodegenConfig holds short code generator configuration.
type CodegenConfig struct {
	Alphabet       string
	CodeLength     int
	InitialShift   int
	ShiftStep      int
	BaseMultiplier uint64
	Increments     []uint64
	SeedMin        uint64
	SeedMax        uint64
}

// GeneratorConfig converts the settings into an idgen.Config.
func (c CodegenConfig) GeneratorConfig() idgen.Config {
	return idgen.Config{
		Alphabet:       c.Alphabet,
		Length:         c.CodeLength,
		InitialShift:   c.InitialShift,
		ShiftStep:      c.ShiftStep,
		BaseMultiplier: c.BaseMultiplier,
		Increments:     append([]uint64(nil), c.Increments...),
		SeedMin:        c.SeedMin,
		SeedMax:        c.SeedMax,
	}
}

// AllocationConfig holds allocation engine configuration.
type AllocationConfig struct {
	MaxAttempts int
}

// MetricsConfig holds metrics exposition configuration.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables the listener.
	Addr string
}

// Load reads configuration from environment variables. Values from an
// optional dotenv file (ENV_FILE, default .env) fill in variables that are
// not already set.
func Load() (*Config, error) {
	if err := loadDotEnv(getEnvOrDefault("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}
	defaults := idgen.DefaultConfig()

	// App config
	cfg.App.Env = getEnvOrDefault("APP_ENV", "development")
	cfg.App.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.App.LogFormat = getEnvOrDefault("LOG_FORMAT", "json")

	// Store config
	cfg.Store.Backend = strings.ToLower(getEnvOrDefault("STORE_BACKEND", BackendSQLite))
	switch cfg.Store.Backend {
	case BackendSQLite, BackendMemory, BackendPostgres, BackendRedis:
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND: %q", cfg.Store.Backend)
	}

	// SQLite config
	cfg.SQLite.Path = getEnvOrDefault("SQLITE_PATH", "shtlink.db")
	busyTimeout, err := getEnvAsDuration("SQLITE_BUSY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SQLITE_BUSY_TIMEOUT: %w", err)
	}
	cfg.SQLite.BusyTimeout = busyTimeout

	// Database config
	cfg.Database.Host = getEnvOrDefault("DB_HOST", "localhost")
	dbPort, err := getEnvAsInt("DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	cfg.Database.Port = dbPort
	cfg.Database.User = getEnvOrDefault("DB_USER", "shtlink")
	cfg.Database.Password = getEnvOrDefault("DB_PASSWORD", "")
	cfg.Database.DBName = getEnvOrDefault("DB_NAME", "shtlink")
	cfg.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	maxOpenConns, err := getEnvAsInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}
	cfg.Database.MaxOpenConns = maxOpenConns

	maxIdleConns, err := getEnvAsInt("DB_MAX_IDLE_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}
	cfg.Database.MaxIdleConns = maxIdleConns

	connMaxLifetime, err := getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}
	cfg.Database.ConnMaxLifetime = connMaxLifetime

	dbConnectTimeout, err := getEnvAsDuration("DB_CONNECT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_CONNECT_TIMEOUT: %w", err)
	}
	cfg.Database.ConnectTimeout = dbConnectTimeout

	// Redis config
	cfg.Redis.Host = getEnvOrDefault("REDIS_HOST", "localhost")
	redisPort, err := getEnvAsInt("REDIS_PORT", 6379)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	cfg.Redis.Port = redisPort
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", "")
	redisDB, err := getEnvAsInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.Redis.DB = redisDB
	redisPoolSize, err := getEnvAsInt("REDIS_POOL_SIZE", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_POOL_SIZE: %w", err)
	}
	cfg.Redis.PoolSize = redisPoolSize
	cfg.Redis.KeyPrefix = getEnvOrDefault("REDIS_KEY_PREFIX", "shtl:")

	redisConnectTimeout, err := getEnvAsDuration("REDIS_CONNECT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_CONNECT_TIMEOUT: %w", err)
	}
	cfg.Redis.ConnectTimeout = redisConnectTimeout

	// Codegen config
	cfg.Codegen.Alphabet = getEnvOrDefault("CODE_ALPHABET", defaults.Alphabet)

	codeLength, err := getEnvAsInt("CODE_LENGTH", defaults.Length)
	if err != nil {
		return nil, fmt.Errorf("invalid CODE_LENGTH: %w", err)
	}
	cfg.Codegen.CodeLength = codeLength

	initialShift, err := getEnvAsInt("CODE_INITIAL_SHIFT", defaults.InitialShift)
	if err != nil {
		return nil, fmt.Errorf("invalid CODE_INITIAL_SHIFT: %w", err)
	}
	cfg.Codegen.InitialShift = initialShift

	shiftStep, err := getEnvAsInt("CODE_SHIFT_STEP", defaults.ShiftStep)
	if err != nil {
		return nil, fmt.Errorf("invalid CODE_SHIFT_STEP: %w", err)
	}
	cfg.Codegen.ShiftStep = shiftStep

	multiplier, err := getEnvAsUint64("CODE_BASE_MULTIPLIER", defaults.BaseMultiplier)
	if err != nil {
		return nil, fmt.Errorf("invalid CODE_BASE_MULTIPLIER: %w", err)
	}
	cfg.Codegen.BaseMultiplier = multiplier

	increments, err := getEnvAsUint64List("CODE_INCREMENTS", defaults.Increments)
	if err != nil {
		return nil, fmt.Errorf("invalid CODE_INCREMENTS: %w", err)
	}
	cfg.Codegen.Increments = increments

	seedMin, err := getEnvAsUint64("CODE_SEED_MIN", defaults.SeedMin)
	if err != nil {
		return nil, fmt.Errorf("invalid CODE_SEED_MIN: %w", err)
	}
	cfg.Codegen.SeedMin = seedMin

	seedMax, err := getEnvAsUint64("CODE_SEED_MAX", defaults.SeedMax)
	if err != nil {
		return nil, fmt.Errorf("invalid CODE_SEED_MAX: %w", err)
	}
	cfg.Codegen.SeedMax = seedMax

	if err := cfg.Codegen.GeneratorConfig().Validate(); err != nil {
		return nil, err
	}

	// Allocation config
	maxAttempts, err := getEnvAsInt("ALLOC_MAX_ATTEMPTS", idgen.DefaultMaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("invalid ALLOC_MAX_ATTEMPTS: %w", err)
	}
	if maxAttempts < 1 {
		return nil, fmt.Errorf("invalid ALLOC_MAX_ATTEMPTS: must be positive, got %d", maxAttempts)
	}
	cfg.Allocation.MaxAttempts = maxAttempts

	// Metrics config
	cfg.Metrics.Addr = getEnvOrDefault("METRICS_ADDR", "")

	return cfg, nil
}

// SQLiteEnabled returns true if the SQLite backend is selected.
func (c *Config) SQLiteEnabled() bool {
	return c.Store.Backend == BackendSQLite
}

// DatabaseEnabled returns true if the PostgreSQL backend is selected.
func (c *Config) DatabaseEnabled() bool {
	return c.Store.Backend == BackendPostgres
}

// RedisEnabled returns true if the Redis backend is selected.
func (c *Config) RedisEnabled() bool {
	return c.Store.Backend == BackendRedis
}

// loadDotEnv loads the dotenv file at path if it exists.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt returns the environment variable as an integer.
func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, err
	}
	return value, nil
}

// getEnvAsUint64 returns the environment variable as an unsigned integer.
func getEnvAsUint64(key string, defaultValue uint64) (uint64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	return strconv.ParseUint(valueStr, 10, 64)
}

// getEnvAsUint64List returns a comma separated environment variable as unsigned integers.
func getEnvAsUint64List(key string, defaultValue []uint64) ([]uint64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return append([]uint64(nil), defaultValue...), nil
	}

	parts := strings.Split(valueStr, ",")
	values := make([]uint64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// getEnvAsDuration returns the environment variable as a duration.
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, err
	}
	return value, nil
}
