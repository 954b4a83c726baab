package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Storage backend names.
const (
	StorageS3        = "s3"
	StorageLocal     = "local"
	StorageImageHost = "imagehost"
)

// Metadata backend names.
const (
	MetadataMongo    = "mongo"
	MetadataPostgres = "postgres"
)

// Config holds the environment driven configuration for the bot.
type Config struct {
	// Service Configuration
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"photo-bot"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"PORT" envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"console"`
	EnableTracing   bool          `env:"ENABLE_TRACING" envDefault:"false"`
	OTLPEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Telegram transport
	TelegramToken         string        `env:"TELEGRAM_TOKEN,notEmpty"`
	TelegramPollTimeout   int           `env:"TELEGRAM_POLL_TIMEOUT" envDefault:"30"`
	TelegramDebug         bool          `env:"TELEGRAM_DEBUG" envDefault:"false"`
	TelegramAPIEndpoint   string        `env:"TELEGRAM_API_ENDPOINT" envDefault:"https://api.telegram.org/bot%s/%s"`
	TelegramFileEndpoint  string        `env:"TELEGRAM_FILE_ENDPOINT" envDefault:"https://api.telegram.org/file/bot%s/%s"`
	BotWorkers            int           `env:"BOT_WORKERS" envDefault:"8"`
	TransportFetchTimeout time.Duration `env:"TRANSPORT_FETCH_TIMEOUT" envDefault:"30s"`
	MaxImageBytes         int64         `env:"MAX_IMAGE_BYTES" envDefault:"20971520"`

	// Metadata store
	MetadataBackend string        `env:"METADATA_BACKEND" envDefault:"mongo"` // Options: "mongo" or "postgres"
	MetadataTimeout time.Duration `env:"METADATA_TIMEOUT" envDefault:"10s"`
	UploadLifecycle string        `env:"UPLOAD_LIFECYCLE" envDefault:"history"` // Options: "history" or "latest"

	MongoURI        string `env:"MONGODB_URI"`
	MongoDatabase   string `env:"MONGODB_DATABASE" envDefault:"image_bot_db"`
	MongoCollection string `env:"MONGODB_COLLECTION" envDefault:"uploads"`

	DBPostgresqlWriteDSN string        `env:"DB_POSTGRESQL_WRITE_DSN"`
	DBMaxIdleConns       int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns       int           `env:"DB_MAX_OPEN_CONNS" envDefault:"15"`
	DBConnLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// Owner lock; REDIS_URL switches from the in-process locker to redsync
	RedisURL     string        `env:"REDIS_URL"`
	OwnerLockTTL time.Duration `env:"OWNER_LOCK_TTL" envDefault:"2m"`

	// Storage Backend Selection
	StorageBackend    string        `env:"STORAGE_BACKEND" envDefault:"s3"` // Options: "s3", "local" or "imagehost"
	StorageTimeout    time.Duration `env:"STORAGE_TIMEOUT" envDefault:"30s"`
	StorageMaxRetries int           `env:"STORAGE_MAX_RETRIES" envDefault:"1"`
	StorageRetryDelay time.Duration `env:"STORAGE_RETRY_DELAY" envDefault:"500ms"`

	// Local Storage Configuration
	LocalStoragePath    string `env:"LOCAL_STORAGE_PATH"`     // Directory holding uploaded files
	LocalStorageBaseURL string `env:"LOCAL_STORAGE_BASE_URL"` // Public base URL of this service, e.g. "https://bot.example.com"

	// S3 Storage Configuration
	S3Endpoint      string `env:"S3_ENDPOINT"`
	S3PublicBaseURL string `env:"S3_PUBLIC_BASE_URL"`
	S3Region        string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Bucket        string `env:"S3_BUCKET"`
	S3AccessKeyID   string `env:"S3_ACCESS_KEY_ID"`
	S3SecretKey     string `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle  bool   `env:"S3_USE_PATH_STYLE" envDefault:"false"`
	S3KeyPrefix     string `env:"S3_KEY_PREFIX" envDefault:"images/"`

	// Image hosting API (imgbb compatible)
	ImageHostAPIURL     string `env:"IMAGEHOST_API_URL" envDefault:"https://api.imgbb.com/1/upload"`
	ImageHostAPIKey     string `env:"IMAGEHOST_API_KEY"`
	ImageHostExpiration int    `env:"IMAGEHOST_EXPIRATION" envDefault:"0"` // seconds, 0 keeps images forever
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.TelegramToken = strings.TrimSpace(c.TelegramToken)
	c.MetadataBackend = strings.ToLower(strings.TrimSpace(c.MetadataBackend))
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	c.UploadLifecycle = strings.ToLower(strings.TrimSpace(c.UploadLifecycle))
	c.MongoURI = strings.TrimSpace(c.MongoURI)
	c.S3Bucket = strings.TrimSpace(c.S3Bucket)
	c.S3AccessKeyID = strings.TrimSpace(c.S3AccessKeyID)
	c.S3SecretKey = strings.TrimSpace(c.S3SecretKey)
	c.S3Endpoint = strings.TrimSpace(c.S3Endpoint)
	c.S3PublicBaseURL = strings.TrimSpace(c.S3PublicBaseURL)
	c.LocalStoragePath = strings.TrimSpace(c.LocalStoragePath)
	c.LocalStorageBaseURL = strings.TrimSuffix(strings.TrimSpace(c.LocalStorageBaseURL), "/")
	c.ImageHostAPIKey = strings.TrimSpace(c.ImageHostAPIKey)

	if c.MaxImageBytes <= 0 {
		c.MaxImageBytes = 20 * 1024 * 1024
	}
	if c.BotWorkers <= 0 {
		c.BotWorkers = 1
	}
	// A single retry is the ceiling for storage calls.
	if c.StorageMaxRetries < 0 {
		c.StorageMaxRetries = 0
	}
	if c.StorageMaxRetries > 1 {
		c.StorageMaxRetries = 1
	}
}

// Validate checks backend-specific requirements.
func (c *Config) Validate() error {
	switch c.MetadataBackend {
	case MetadataMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required when METADATA_BACKEND is mongo")
		}
	case MetadataPostgres:
		if strings.TrimSpace(c.DBPostgresqlWriteDSN) == "" {
			return fmt.Errorf("DB_POSTGRESQL_WRITE_DSN is required when METADATA_BACKEND is postgres")
		}
	default:
		return fmt.Errorf("unsupported METADATA_BACKEND %q", c.MetadataBackend)
	}

	switch c.StorageBackend {
	case StorageS3:
		if c.S3Bucket == "" || c.S3AccessKeyID == "" || c.S3SecretKey == "" {
			return fmt.Errorf("S3_BUCKET, S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required when STORAGE_BACKEND is s3")
		}
	case StorageLocal:
		if c.LocalStoragePath == "" {
			return fmt.Errorf("LOCAL_STORAGE_PATH is required when STORAGE_BACKEND is local")
		}
	case StorageImageHost:
		if c.ImageHostAPIKey == "" {
			return fmt.Errorf("IMAGEHOST_API_KEY is required when STORAGE_BACKEND is imagehost")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.StorageBackend)
	}

	if c.UploadLifecycle != "history" && c.UploadLifecycle != "latest" {
		return fmt.Errorf("UPLOAD_LIFECYCLE must be history or latest, got %q", c.UploadLifecycle)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// IsLocalStorage returns true if local storage backend is configured.
func (c *Config) IsLocalStorage() bool {
	return c.StorageBackend == StorageLocal
}

// IsLatestOnly reports whether each owner keeps a single, overwritten record.
func (c *Config) IsLatestOnly() bool {
	return c.UploadLifecycle == "latest"
}
