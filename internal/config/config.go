package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/fastygo/portal/domain"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverBolt     = "bolt"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverNoop     = "noop"
)

// Config aggregates all runtime settings required by the application.
type Config struct {
	AppName     string `env:"APP_NAME" envDefault:"portal"`
	Environment string `env:"APP_ENV" envDefault:"development"`

	HTTP       HTTPConfig       `envPrefix:"SERVER_"`
	API        APIConfig        `envPrefix:"API_"`
	Identity   IdentityConfig   `envPrefix:"IDENTITY_"`
	Session    SessionConfig    `envPrefix:"SESSION_"`
	Cache      CacheConfig      `envPrefix:"CACHE_"`
	Storage    StorageConfig    `envPrefix:"STORAGE_"`
	Database   DatabaseConfig   `envPrefix:"DB_"`
	Redis      RedisConfig      `envPrefix:"REDIS_"`
	Bolt       BoltConfig       `envPrefix:"BOLTDB_"`
	Context    ContextConfig    `envPrefix:"CONTEXT_"`
	Logger     LoggerConfig     `envPrefix:"LOG_"`
	Migrations MigrationsConfig `envPrefix:"MIGRATIONS_"`
}

type HTTPConfig struct {
	Host          string        `env:"HOST" envDefault:"0.0.0.0"`
	Port          string        `env:"PORT" envDefault:"3000"`
	ReadTimeout   time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout  time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	IdleTimeout   time.Duration `env:"IDLE_TIMEOUT" envDefault:"120s"`
	MaxConn       int           `env:"MAX_CONN" envDefault:"0"`
	EnablePprof   bool          `env:"ENABLE_PPROF" envDefault:"false"`
	EnableMetrics bool          `env:"ENABLE_METRICS" envDefault:"false"`
}

// APIConfig points at the backend the remote data cache talks to.
type APIConfig struct {
	URL             string        `env:"URL" envDefault:"http://localhost:8080"`
	Timeout         time.Duration `env:"TIMEOUT" envDefault:"10s"`
	MaxConnsPerHost int           `env:"MAX_CONNS_PER_HOST" envDefault:"64"`
}

type IdentityConfig struct {
	ProjectID string        `env:"PROJECT_ID"`
	Leeway    time.Duration `env:"LEEWAY" envDefault:"30s"`
}

type SessionConfig struct {
	CookieName       string        `env:"COOKIE_NAME" envDefault:"sid"`
	CookieSecure     bool          `env:"COOKIE_SECURE" envDefault:"false"`
	CookieTTL        time.Duration `env:"COOKIE_TTL" envDefault:"720h"`
	PersistKey       string        `env:"PERSIST_KEY" envDefault:"root"`
	PersistFields    []string      `env:"PERSIST_FIELDS" envDefault:"user" envSeparator:","`
	RehydrateTimeout time.Duration `env:"REHYDRATE_TIMEOUT" envDefault:"2s"`
	IdleTimeout      time.Duration `env:"IDLE_TIMEOUT" envDefault:"30m"`
	Retention        time.Duration `env:"RETENTION" envDefault:"720h"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
}

type CacheConfig struct {
	Size   int           `env:"SIZE" envDefault:"1024"`
	MaxAge time.Duration `env:"MAX_AGE" envDefault:"0s"`
}

type StorageConfig struct {
	Driver string `env:"DRIVER" envDefault:"bolt"`
}

type DatabaseConfig struct {
	URL             string        `env:"URL"`
	Host            string        `env:"HOST" envDefault:"localhost"`
	Port            string        `env:"PORT" envDefault:"5432"`
	Name            string        `env:"NAME" envDefault:"portal_db"`
	User            string        `env:"USER" envDefault:"portal_user"`
	Password        string        `env:"PASSWORD"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"2"`
	MaxConnLifetime time.Duration `env:"CONN_LIFETIME" envDefault:"1h"`
	SSLMode         string        `env:"SSLMODE" envDefault:"disable"`
}

type RedisConfig struct {
	URL          string        `env:"URL" envDefault:"redis://localhost:6379"`
	Password     string        `env:"PASSWORD"`
	DB           int           `env:"DB" envDefault:"0"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"0"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

type BoltConfig struct {
	Path   string `env:"PATH" envDefault:"./data/session.db"`
	Bucket string `env:"BUCKET" envDefault:"session_state"`
}

type ContextConfig struct {
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

type LoggerConfig struct {
	Level    string `env:"LEVEL" envDefault:"info"`
	Encoding string `env:"ENCODING" envDefault:"json"`
}

type MigrationsConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Path    string `env:"PATH"`
}

// Load reads configuration from environment variables (optionally .env)
// and applies defaults so the front end can boot without any setup.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = buildPostgresURL(cfg)
	}
	cfg.API.URL = strings.TrimRight(cfg.API.URL, "/")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverBolt, DriverRedis, DriverPostgres, DriverMemory, DriverNoop:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	for _, field := range c.Session.PersistFields {
		if !domain.IsPersistableField(field) {
			return fmt.Errorf("unknown persisted session field %q", field)
		}
	}
	if c.Session.PersistKey == "" {
		return fmt.Errorf("session persist key must not be empty")
	}
	return nil
}

func buildPostgresURL(cfg *Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}
