package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is built once at startup and treated as immutable afterwards.
// Every component receives the section it needs explicitly; nothing reads
// the environment after Load returns.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Gateway  GatewayConfig
	Admin    AdminConfig
	CORS     CORSConfig
	Kafka    KafkaConfig
}

type AppConfig struct {
	Port string
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MigrationsPath  string
}

type GatewayConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

type AdminConfig struct {
	Token string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load reads configuration from the environment, optionally seeded from a
// .env file at path. Missing required values are reported together so an
// operator fixes the deployment in one pass.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: failed to load %s: %w", path, err)
		}
	}

	cfg := &Config{}
	var missing []string

	require := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	optional := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	cfg.App.Port = optional("APP_PORT", "8080")

	cfg.Postgres.Host = require("DB_HOST")
	cfg.Postgres.Port = optional("DB_PORT", "5432")
	cfg.Postgres.User = require("DB_USER")
	cfg.Postgres.Password = require("DB_PASSWORD")
	cfg.Postgres.DBName = require("DB_NAME")
	cfg.Postgres.SSLMode = optional("DB_SSLMODE", "disable")
	cfg.Postgres.MigrationsPath = optional("DB_MIGRATIONS_PATH", "migrations")

	maxConns, err := strconv.ParseInt(optional("DB_MAX_CONNS", "10"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("config: DB_MAX_CONNS must be an integer: %w", err)
	}
	cfg.Postgres.MaxConns = int32(maxConns)

	minConns, err := strconv.ParseInt(optional("DB_MIN_CONNS", "2"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("config: DB_MIN_CONNS must be an integer: %w", err)
	}
	cfg.Postgres.MinConns = int32(minConns)

	cfg.Postgres.MaxConnLifetime, err = time.ParseDuration(optional("DB_MAX_CONN_LIFETIME", "30m"))
	if err != nil {
		return nil, fmt.Errorf("config: DB_MAX_CONN_LIFETIME must be a duration: %w", err)
	}

	cfg.Gateway.BaseURL = optional("GATEWAY_BASE_URL", "https://api.stripe.com")
	cfg.Gateway.SecretKey = require("GATEWAY_SECRET_KEY")
	cfg.Gateway.Timeout, err = time.ParseDuration(optional("GATEWAY_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("config: GATEWAY_TIMEOUT must be a duration: %w", err)
	}

	cfg.Admin.Token = require("ADMIN_TOKEN")

	cfg.CORS.AllowedOrigins = splitList(optional("CORS_ALLOWED_ORIGINS", "*"))

	// Kafka is optional: without brokers the service runs with a noop publisher.
	cfg.Kafka.Brokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.Kafka.Topic = optional("KAFKA_ORDER_TOPIC", "order-events")

	if len(missing) > 0 {
		return nil, fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
