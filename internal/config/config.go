package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	// loads a local .env file when present
	_ "github.com/joho/godotenv/autoload"
)

// Config holds all configuration for the application
type Config struct {
	Storage   StorageConfig
	Ingestion IngestionConfig
	Server    ServerConfig
	Auth      AuthConfig
	Queue     QueueConfig
	Logging   LoggingConfig
}

// StorageConfig holds storage-related configuration
type StorageConfig struct {
	Type          string // "dynamodb", "mongodb", "postgresql", "memory"
	Region        string // For AWS DynamoDB
	JobsTable     string
	RecordsTable  string
	Endpoint      string // Custom endpoint for local testing
	EnsureSchema  bool
	MongoDBURI    string
	MongoDatabase string
	PostgresURI   string
	JobTTL        time.Duration
}

// IngestionConfig holds batch processing configuration
type IngestionConfig struct {
	Concurrency     int
	WritesPerSecond float64 // 0 disables throttling
	RetryCount      int
	RetryBackoff    time.Duration
	MaxDuration     time.Duration
	Launcher        string // "goroutine" or "sqs"
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// AuthConfig holds bearer token verification settings for the standalone server
type AuthConfig struct {
	Issuer      string
	Audience    string
	JWKSURL     string
	TenantClaim string
	Disabled    bool
	LocalTenant string
}

// QueueConfig holds the SQS hand-off settings used by the Lambda deployment
type QueueConfig struct {
	URL string
}

// LoggingConfig controls the zerolog output
type LoggingConfig struct {
	Level  string
	Format string // "json" or "console"
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	cfg := &Config{
		Storage: StorageConfig{
			Type:          getEnv("STORAGE_TYPE", "dynamodb"),
			Region:        getEnv("AWS_REGION", "us-west-2"),
			JobsTable:     getEnv("JOBS_TABLE", "ingestion_jobs"),
			RecordsTable:  getEnv("RECORDS_TABLE", "employees"),
			Endpoint:      getEnv("DYNAMODB_ENDPOINT", ""), // For local DynamoDB
			EnsureSchema:  getEnvBool("STORAGE_ENSURE_SCHEMA", false),
			MongoDBURI:    getEnv("MONGODB_URI", ""),
			MongoDatabase: getEnv("MONGODB_DATABASE", "employees"),
			PostgresURI:   getEnv("POSTGRES_URI", ""),
			JobTTL:        getEnvDuration("JOB_TTL", 30*24*time.Hour),
		},
		Ingestion: IngestionConfig{
			Concurrency:     getEnvInt("INGEST_CONCURRENCY", 10),
			WritesPerSecond: getEnvFloat("INGEST_WRITES_PER_SECOND", 0),
			RetryCount:      getEnvInt("INGEST_RETRY_COUNT", 3),
			RetryBackoff:    getEnvDuration("INGEST_RETRY_BACKOFF", 200*time.Millisecond),
			MaxDuration:     getEnvDuration("INGEST_MAX_DURATION", 15*time.Minute),
			Launcher:        getEnv("INGEST_LAUNCHER", "goroutine"),
		},
		Server: ServerConfig{
			Port:            getEnvInt("SERVER_PORT", 8080),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			Issuer:      getEnv("AUTH_ISSUER", ""),
			Audience:    getEnv("AUTH_AUDIENCE", ""),
			JWKSURL:     getEnv("AUTH_JWKS_URL", ""),
			TenantClaim: getEnv("AUTH_TENANT_CLAIM", "client_id"),
			Disabled:    getEnvBool("AUTH_DISABLED", false),
			LocalTenant: getEnv("AUTH_LOCAL_TENANT", "local-dev"),
		},
		Queue: QueueConfig{
			URL: getEnv("QUEUE_URL", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Type {
	case "dynamodb", "mongodb", "postgresql", "memory":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	if c.Storage.Type == "mongodb" && c.Storage.MongoDBURI == "" {
		return fmt.Errorf("MONGODB_URI is required for mongodb storage")
	}
	if c.Storage.Type == "postgresql" && c.Storage.PostgresURI == "" {
		return fmt.Errorf("POSTGRES_URI is required for postgresql storage")
	}
	if c.Ingestion.Concurrency <= 0 {
		return fmt.Errorf("INGEST_CONCURRENCY must be positive, got %d", c.Ingestion.Concurrency)
	}
	if c.Ingestion.RetryCount <= 0 {
		return fmt.Errorf("INGEST_RETRY_COUNT must be positive, got %d", c.Ingestion.RetryCount)
	}
	if c.Ingestion.WritesPerSecond < 0 {
		return fmt.Errorf("INGEST_WRITES_PER_SECOND must not be negative")
	}
	switch c.Ingestion.Launcher {
	case "goroutine":
	case "sqs":
		if c.Queue.URL == "" {
			return fmt.Errorf("QUEUE_URL is required for the sqs launcher")
		}
	default:
		return fmt.Errorf("unsupported launcher: %s", c.Ingestion.Launcher)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
