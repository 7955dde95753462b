// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Blob stores.
const (
	BlobFS     = "fs"
	BlobS3     = "s3"
	BlobMemory = "memory"
)

// Config holds the web client configuration.
type Config struct {
	Port            string
	FrontendURL     string
	BackendURL      string
	BackendTimeout  time.Duration // 0 disables the client-side timeout
	AskRequirePage  bool          // send a zero-based page_number with every question
	MaxUploadBytes  int64
	StoreDriver     string
	DBPath          string
	SessionTTL      time.Duration
	RateLimit       RateLimitConfig
	ConversationLog ConversationLogConfig
}

// RateLimitConfig controls per-session throttling of upload and ask requests.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// ConversationLogConfig controls NDJSON transcript logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// BackendConfig holds the document Q&A backend configuration.
type BackendConfig struct {
	Port           string
	DBPath         string
	MaxUploadBytes int64
	UploadDir      string
	BlobStore      string
	S3             S3Config
	LLM            LLMConfig
	PageCacheSize  int
}

// S3Config describes an S3-compatible bucket for uploaded PDFs.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// LLMConfig describes the OpenAI-compatible completion endpoint.
type LLMConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	maxMB := getEnvInt("MAX_UPLOAD_MB", 10)
	if maxMB <= 0 {
		maxMB = 10
	}
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:           getEnv("PORT", "3000"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		BackendURL:     strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8000"), "/"),
		BackendTimeout: getEnvDuration("BACKEND_TIMEOUT", 0),
		AskRequirePage: getEnvBool("ASK_REQUIRE_PAGE", true),
		MaxUploadBytes: int64(maxMB) * 1024 * 1024,
		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", StoreSQLite)),
		DBPath:         getEnv("DB_PATH", "./data/docqa.db"),
		SessionTTL:     getEnvDuration("SESSION_TTL", 60*time.Minute),
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL cannot be empty")
	}
	if c.BackendTimeout < 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be >= 0")
	}
	switch c.StoreDriver {
	case StoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreSQLite, StoreMemory, c.StoreDriver)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// LoadBackend reads the backend configuration from environment variables.
func LoadBackend() (*BackendConfig, error) {
	maxMB := getEnvInt("MAX_UPLOAD_MB", 10)
	if maxMB <= 0 {
		maxMB = 10
	}

	cfg := &BackendConfig{
		Port:           getEnv("BACKEND_PORT", "8000"),
		DBPath:         getEnv("BACKEND_DB_PATH", "./data/documents.db"),
		MaxUploadBytes: int64(maxMB) * 1024 * 1024,
		UploadDir:      getEnv("UPLOAD_DIR", "uploaded_pdfs"),
		BlobStore:      strings.ToLower(getEnv("BLOB_STORE", BlobFS)),
		S3: S3Config{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			Region:    getEnv("S3_REGION", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Bucket:    getEnv("S3_BUCKET", "uploaded-pdfs"),
			UseSSL:    getEnvBool("S3_USE_SSL", false),
		},
		LLM: LLMConfig{
			BaseURL:   getEnv("LLM_BASE_URL", "http://localhost:8080/v1"),
			APIKey:    getEnv("LLM_API_KEY", ""),
			Model:     getEnv("LLM_MODEL", "phi-1_5"),
			MaxTokens: getEnvInt("LLM_MAX_TOKENS", 200),
			Timeout:   getEnvDuration("LLM_TIMEOUT", 120*time.Second),
		},
		PageCacheSize: getEnvInt("PAGE_CACHE_SIZE", 128),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backend configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required backend configuration fields are set.
func (c *BackendConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("BACKEND_PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("BACKEND_DB_PATH cannot be empty")
	}
	switch c.BlobStore {
	case BlobFS:
		if c.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR cannot be empty")
		}
	case BlobS3:
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			return fmt.Errorf("S3_ENDPOINT and S3_BUCKET are required when BLOB_STORE=s3")
		}
	case BlobMemory:
	default:
		return fmt.Errorf("BLOB_STORE must be one of fs, s3, memory, got %q", c.BlobStore)
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("LLM_BASE_URL cannot be empty")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be > 0")
	}
	if c.PageCacheSize <= 0 {
		return fmt.Errorf("PAGE_CACHE_SIZE must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
