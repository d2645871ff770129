package config

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

// Storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config holds all configuration for the glucose diary service
type Config struct {
	// JWT configuration - RS256 public key used to verify bearer tokens
	JWTPublicKey  *rsa.PublicKey
	PublicKeyPath string
	AuthDisabled  bool

	// Storage configuration
	StorageDriver string
	DatabaseURL   string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StorageKey    string

	// RabbitMQ configuration, messaging is disabled when the URL is empty
	RabbitMQURL     string
	AlertsQueueName string
	ImportQueueName string

	// Server configuration
	Port           string
	LogLevel       string
	Timezone       string
	Location       *time.Location
	SeedSampleData bool

	// Circuit breaker configuration
	CircuitBreakerMaxRequests uint32
	CircuitBreakerInterval    time.Duration
	CircuitBreakerTimeout     time.Duration
}

// Load reads configuration from environment variables.
// Values from a .env file in the working directory are loaded first; a
// missing file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed loading .env file: %w", err)
	}

	cfg := &Config{
		PublicKeyPath:   getenvWithDefault("PUBLIC_KEY_PATH", "/etc/identity/public.pem"),
		StorageDriver:   strings.ToLower(getenvWithDefault("STORAGE_DRIVER", DriverSQLite)),
		DatabaseURL:     os.Getenv("DB_CONNECTION_STRING"),
		SQLitePath:      getenvWithDefault("SQLITE_PATH", "glucose-diary.db"),
		RedisAddr:       getenvWithDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		StorageKey:      getenvWithDefault("STORAGE_KEY", "glucose-diary/records"),
		RabbitMQURL:     os.Getenv("RABBITMQ_URL"),
		AlertsQueueName: getenvWithDefault("ALERTS_QUEUE_NAME", "glucose_alerts"),
		ImportQueueName: getenvWithDefault("IMPORT_QUEUE_NAME", "glucose_record_imports"),
		Port:            getenvWithDefault("PORT", "8080"),
		LogLevel:        getenvWithDefault("LOG_LEVEL", "info"),
		Timezone:        getenvWithDefault("TIMEZONE", "Local"),
	}

	var err error
	if cfg.AuthDisabled, err = getenvBool("AUTH_DISABLED", false); err != nil {
		return nil, err
	}
	if cfg.SeedSampleData, err = getenvBool("SEED_SAMPLE_DATA", false); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getenvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	maxRequests, err := getenvInt("CIRCUIT_BREAKER_MAX_REQUESTS", 5)
	if err != nil {
		return nil, err
	}
	if maxRequests < 1 {
		return nil, fmt.Errorf("CIRCUIT_BREAKER_MAX_REQUESTS must be positive, got %d", maxRequests)
	}
	cfg.CircuitBreakerMaxRequests = uint32(maxRequests)
	if cfg.CircuitBreakerInterval, err = getenvDuration("CIRCUIT_BREAKER_INTERVAL", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.CircuitBreakerTimeout, err = getenvDuration("CIRCUIT_BREAKER_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	if cfg.Location, err = time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if !cfg.AuthDisabled {
		publicKey, err := loadPublicKey(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load public key: %w", err)
		}
		cfg.JWTPublicKey = publicKey
	}

	return cfg, nil
}

// Validate checks combinations of settings that cannot work together
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DB_CONNECTION_STRING environment variable is required for the postgres driver")
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.Port == "" {
		return errors.New("PORT must not be empty")
	}
	return nil
}

// MessagingEnabled reports whether a RabbitMQ URL is configured
func (c *Config) MessagingEnabled() bool {
	return c.RabbitMQURL != ""
}

func getenvWithDefault(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getenvBool(key string, fallback bool) (bool, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return b, nil
}

func getenvInt(key string, fallback int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return n, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return d, nil
}

// loadPublicKey loads an RSA public key from a PEM file
func loadPublicKey(path string) (*rsa.PublicKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(keyData)
	if err != nil {
		return nil, err
	}
	return publicKey, nil
}
