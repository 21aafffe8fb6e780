package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	// Document store (remote record persistence)
	DocstoreEndpoint  string // Base URL of the document API
	DocstoreProjectID string // Fixed project identifier sent with every call
	DocstoreAPIKey    string // Server API key
	DatabaseID        string
	ServeCollectionID string
	ClientCollection  string

	// Object store (S3-compatible evidence storage)
	StorageAccountID string
	StorageAccessKey string
	StorageSecretKey string
	StorageRegion    string
	StoragePublicURL string // Public base URL for uploaded objects
	EvidenceBucket   string // Full-resolution evidence images
	ThumbnailBucket  string // Generated thumbnails

	// Thumbnail generation
	ThumbnailMaxWidth  int
	ThumbnailMaxHeight int
	ThumbnailQuality   int // JPEG quality, 1-100

	// Notification
	MailFunctionID      string // Remote send-email function identifier
	MessagingProviderID string // SMTP provider for the direct API fallback
	MessagingTopicID    string
	BusinessEmail       string // Oversight address, always included
	MailFrom            string

	// Local cache
	CachePath     string // SQLite file backing the durable cache
	CacheMaxBytes int64  // Serialized read-cache cap before legacy stripping
	SyncLimit     int    // Most-recent records pulled by the reconciler

	// Background tasks
	TaskBuffer      int
	ShutdownTimeout time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		DocstoreEndpoint:  getEnv("DOCSTORE_ENDPOINT", ""),
		DocstoreProjectID: getEnv("DOCSTORE_PROJECT_ID", ""),
		DocstoreAPIKey:    getEnv("DOCSTORE_API_KEY", ""),
		DatabaseID:        getEnv("DOCSTORE_DATABASE_ID", "serve-tracker"),
		ServeCollectionID: getEnv("SERVE_COLLECTION_ID", "serve_attempts"),
		ClientCollection:  getEnv("CLIENT_COLLECTION_ID", "clients"),

		StorageAccountID: getEnv("STORAGE_ACCOUNT_ID", ""),
		StorageAccessKey: getEnv("STORAGE_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("STORAGE_SECRET_ACCESS_KEY", ""),
		StorageRegion:    getEnv("STORAGE_REGION", "auto"),
		StoragePublicURL: getEnv("STORAGE_PUBLIC_URL", ""),
		EvidenceBucket:   getEnv("EVIDENCE_BUCKET", "serve-evidence"),
		ThumbnailBucket:  getEnv("THUMBNAIL_BUCKET", "serve-thumbnails"),

		ThumbnailMaxWidth:  getEnvInt("THUMBNAIL_MAX_WIDTH", 400),
		ThumbnailMaxHeight: getEnvInt("THUMBNAIL_MAX_HEIGHT", 300),
		ThumbnailQuality:   getEnvInt("THUMBNAIL_QUALITY", 80),

		MailFunctionID:      getEnv("MAIL_FUNCTION_ID", "sendEmail"),
		MessagingProviderID: getEnv("MESSAGING_PROVIDER_ID", ""),
		MessagingTopicID:    getEnv("MESSAGING_TOPIC_ID", ""),
		BusinessEmail:       getEnv("BUSINESS_EMAIL", "info@justlegalsolutions.org"),
		MailFrom:            getEnv("MAIL_FROM", "no-reply@justlegalsolutions.org"),

		CachePath:     getEnv("CACHE_PATH", "./servetrack.db"),
		CacheMaxBytes: int64(getEnvInt("CACHE_MAX_BYTES", 5*1024*1024)),
		SyncLimit:     getEnvInt("SYNC_LIMIT", 100),

		TaskBuffer:      getEnvInt("TASK_BUFFER", 32),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	if cfg.DocstoreEndpoint == "" {
		return nil, fmt.Errorf("DOCSTORE_ENDPOINT is required")
	}
	if cfg.DocstoreProjectID == "" {
		return nil, fmt.Errorf("DOCSTORE_PROJECT_ID is required")
	}
	if cfg.StorageAccountID == "" {
		return nil, fmt.Errorf("STORAGE_ACCOUNT_ID is required")
	}
	if cfg.StorageAccessKey == "" {
		return nil, fmt.Errorf("STORAGE_ACCESS_KEY_ID is required")
	}
	if cfg.StorageSecretKey == "" {
		return nil, fmt.Errorf("STORAGE_SECRET_ACCESS_KEY is required")
	}

	if cfg.ThumbnailQuality < 1 || cfg.ThumbnailQuality > 100 {
		return nil, fmt.Errorf("THUMBNAIL_QUALITY must be between 1 and 100, got %d", cfg.ThumbnailQuality)
	}
	if cfg.SyncLimit < 1 {
		return nil, fmt.Errorf("SYNC_LIMIT must be at least 1, got %d", cfg.SyncLimit)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
