package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Logging   LoggingConfig
	Client    ClientConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

const (
	DriverCouch  = "couch"
	DriverSQLite = "sqlite"
)

type DatabaseConfig struct {
	Driver     string
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SQLitePath string
}

// CouchURL is the kivik DSN for the configured CouchDB instance.
func (d DatabaseConfig) CouchURL() string {
	return fmt.Sprintf("http://%s:%s@%s:%s", d.User, d.Password, d.Host, d.Port)
}

type JWTConfig struct {
	Secret                 string
	Expiration             time.Duration
	RefreshTokenExpiration time.Duration
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
	Enabled           bool
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Verbosity int
}

const (
	DeleteRollbackSnapshot = "snapshot"
	DeleteRollbackRecord   = "record"
)

type ClientConfig struct {
	APIURL                string
	PollInterval          time.Duration
	RequestTimeout        time.Duration
	NotifyBuffer          int
	UIAddr                string
	DeleteRollback        string
	RollbackFailedUpdates bool
}

func Load() (*Config, error) {
	godotenv.Load()

	jwtExp, err := getEnvAsDuration("JWT_EXPIRATION", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	refreshExp, err := getEnvAsDuration("REFRESH_TOKEN_EXPIRATION", 168*time.Hour)
	if err != nil {
		return nil, err
	}

	pollInterval, err := getEnvAsDuration("POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}
	if pollInterval <= 0 {
		return nil, fmt.Errorf("invalid POLL_INTERVAL: must be positive, got %s", pollInterval)
	}

	requestTimeout, err := getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", DriverCouch),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5984"),
			User:       getEnv("DB_USER", "admin"),
			Password:   getEnv("DB_PASSWORD", "password"),
			Name:       getEnv("DB_NAME", "quicknotes"),
			SQLitePath: getEnv("SQLITE_PATH", "quicknotes.db"),
		},
		JWT: JWTConfig{
			Secret:                 getEnv("JWT_SECRET", "dev-secret-change-in-production"),
			Expiration:             jwtExp,
			RefreshTokenExpiration: refreshExp,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 600),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 60),
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,PATCH,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Verbosity: getEnvAsInt("LOG_VERBOSITY", 0),
		},
		Client: ClientConfig{
			APIURL:                getEnv("API_URL", "http://localhost:8080/api/v1"),
			PollInterval:          pollInterval,
			RequestTimeout:        requestTimeout,
			NotifyBuffer:          getEnvAsInt("NOTIFY_BUFFER", 64),
			UIAddr:                getEnv("UI_ADDR", "127.0.0.1:7070"),
			DeleteRollback:        getEnv("DELETE_ROLLBACK", DeleteRollbackSnapshot),
			RollbackFailedUpdates: getEnvAsBool("ROLLBACK_FAILED_UPDATES", false),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverCouch, DriverSQLite:
	default:
		return fmt.Errorf("invalid DB_DRIVER %q: must be %q or %q", c.Database.Driver, DriverCouch, DriverSQLite)
	}

	switch c.Client.DeleteRollback {
	case DeleteRollbackSnapshot, DeleteRollbackRecord:
	default:
		return fmt.Errorf("invalid DELETE_ROLLBACK %q: must be %q or %q", c.Client.DeleteRollback, DeleteRollbackSnapshot, DeleteRollbackRecord)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
