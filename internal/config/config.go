package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Log       LogConfig
	Card      CardConfig
	Redis     RedisConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string `envconfig:"SERVER_PORT" default:"3000"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"30"` // seconds
	// AdminToken guards /api/admin when set. Real deployments put the
	// external auth service in front and leave this empty.
	AdminToken string `envconfig:"ADMIN_TOKEN"`
}

// DBConfig holds database-related configuration.
// WARNING: Default password is for local development only.
type DBConfig struct {
	Host       string `envconfig:"DB_HOST" default:"localhost"`
	Port       int    `envconfig:"DB_PORT" default:"5432"`
	User       string `envconfig:"DB_USER" default:"postgres"`
	Password   string `envconfig:"DB_PASSWORD" default:"postgres"`
	Name       string `envconfig:"DB_NAME" default:"giftcard_db"`
	SSLMode    string `envconfig:"DB_SSLMODE" default:"disable"`
	MaxConns   int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns   int32  `envconfig:"DB_MIN_CONNS" default:"5"`
	MaxRetries int    `envconfig:"DB_MAX_RETRIES" default:"5"`
	Migrate    bool   `envconfig:"DB_MIGRATE" default:"true"`
}

// DSN returns the PostgreSQL connection string used by the pool.
func (c DBConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// MigrationURL returns the connection string for golang-migrate.
func (c DBConfig) MigrationURL() string {
	return c.DSN() + "&x-migrations-table=schema_migrations"
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// CardConfig holds card security settings.
type CardConfig struct {
	PINHashCost    int           `envconfig:"PIN_HASH_COST" default:"10"`
	PINMaxAttempts int           `envconfig:"PIN_MAX_ATTEMPTS" default:"5"`
	PINLockWindow  time.Duration `envconfig:"PIN_LOCK_WINDOW" default:"15m"`
}

// RedisConfig holds the PIN throttling store. An empty Addr disables throttling.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// TelemetryConfig holds tracing configuration. An empty endpoint disables tracing.
type TelemetryConfig struct {
	OTLPEndpoint string `envconfig:"OTEL_ENDPOINT"`
	ServiceName  string `envconfig:"OTEL_SERVICE_NAME" default:"giftcard-ledger"`
}

// Load parses environment variables into the Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
