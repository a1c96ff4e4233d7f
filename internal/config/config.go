package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Retention policies applied when a sync omits previously seen articles.
const (
	RetentionKeep  = "keep"
	RetentionPrune = "prune"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port            string        `json:"port"`
	Env             string        `json:"env"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	HTTPTimeout     time.Duration `json:"http_timeout"`

	// Feed source
	SubstackURL     string        `json:"substack_url"`
	SyncOnStart     bool          `json:"sync_on_start"`
	SyncInterval    time.Duration `json:"sync_interval"`
	SyncConcurrency int           `json:"sync_concurrency"`
	RetentionPolicy string        `json:"retention_policy"`

	// Cache configuration
	RedisURL        string        `json:"redis_url"`
	RedisPrefix     string        `json:"redis_prefix"`
	ListingCacheTTL time.Duration `json:"listing_cache_ttl"`
	AnalyticsTTL    time.Duration `json:"analytics_cache_ttl"`

	// Storage
	DatabaseURL   string `json:"database_url"`
	StoragePath   string `json:"storage_path"`
	ContentPath   string `json:"content_path"`
	ImageBasePath string `json:"image_base_path"`

	// CloudFlare R2 Configuration
	R2Endpoint  string `json:"r2_endpoint"`
	R2AccessKey string `json:"r2_access_key"`
	R2SecretKey string `json:"r2_secret_key"`
	R2Bucket    string `json:"r2_bucket"`
	R2AccountID string `json:"r2_account_id"`
	R2PublicURL string `json:"r2_public_url"`

	// Webhooks and embeds
	WebhookSecret  string  `json:"-"`
	OEmbedEndpoint string  `json:"oembed_endpoint"`
	OEmbedRate     float64 `json:"oembed_rate"`

	// Background jobs
	JobWorkers    int `json:"job_workers"`
	JobMaxRetries int `json:"job_max_retries"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`
}

// Load loads configuration from environment variables and validates it
func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return cfg
}

// FromEnv builds a Config from the current environment without validating it.
func FromEnv() *Config {
	return &Config{
		Port:            getEnv("PORT", "3000"),
		Env:             getEnv("APP_ENV", "development"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		HTTPTimeout:     getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),

		SubstackURL:     strings.TrimRight(getEnv("SUBSTACK_URL", "https://yoursubstack.substack.com"), "/"),
		SyncOnStart:     getEnvAsBool("SYNC_ON_START", true),
		SyncInterval:    getEnvAsDuration("SYNC_INTERVAL", 0),
		SyncConcurrency: getEnvAsInt("SYNC_CONCURRENCY", 4),
		RetentionPolicy: strings.ToLower(getEnv("RETENTION_POLICY", RetentionKeep)),

		RedisURL:        getEnv("REDIS_URL", ""),
		RedisPrefix:     getEnv("REDIS_PREFIX", "synchronicity:"),
		ListingCacheTTL: getEnvAsDuration("CACHE_TTL_LISTING", 300*time.Second),
		AnalyticsTTL:    getEnvAsDuration("CACHE_TTL_ANALYTICS", time.Hour),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		StoragePath:   getEnv("STORAGE_PATH", "./data"),
		ContentPath:   getEnv("CONTENT_PATH", "./content"),
		ImageBasePath: getEnv("IMAGE_BASE_PATH", "/images"),

		R2Endpoint:  getEnv("R2_ENDPOINT", ""),
		R2AccessKey: getEnv("R2_ACCESS_KEY", ""),
		R2SecretKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2Bucket:    getEnv("R2_BUCKET", "newsapi"),
		R2AccountID: getEnv("CLOUDFLARE_ACCOUNT_ID", ""),
		R2PublicURL: strings.TrimRight(getEnv("R2_PUBLIC_URL", ""), "/"),

		WebhookSecret:  getEnv("WEBHOOK_SECRET", ""),
		OEmbedEndpoint: getEnv("OEMBED_ENDPOINT", "https://noembed.com/embed"),
		OEmbedRate:     getEnvAsFloat("OEMBED_RATE", 5),

		JobWorkers:    getEnvAsInt("JOB_WORKERS", 2),
		JobMaxRetries: getEnvAsInt("JOB_MAX_RETRIES", 3),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.SubstackURL)
	switch {
	case c.SubstackURL == "":
		errs = append(errs, errors.New("SUBSTACK_URL is required"))
	case err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "":
		errs = append(errs, fmt.Errorf("SUBSTACK_URL must be an absolute http(s) URL, got %q", c.SubstackURL))
	}

	if c.ListingCacheTTL <= 0 || c.AnalyticsTTL <= 0 {
		errs = append(errs, errors.New("cache TTLs must be positive"))
	}
	if c.SyncConcurrency < 1 {
		errs = append(errs, errors.New("SYNC_CONCURRENCY must be at least 1"))
	}
	if c.SyncInterval < 0 {
		errs = append(errs, errors.New("SYNC_INTERVAL must not be negative"))
	}
	if c.RetentionPolicy != RetentionKeep && c.RetentionPolicy != RetentionPrune {
		errs = append(errs, fmt.Errorf("RETENTION_POLICY must be %q or %q", RetentionKeep, RetentionPrune))
	}
	if c.JobWorkers < 1 {
		errs = append(errs, errors.New("JOB_WORKERS must be at least 1"))
	}

	r2 := []string{c.R2Endpoint, c.R2AccessKey, c.R2SecretKey}
	set := 0
	for _, v := range r2 {
		if v != "" {
			set++
		}
	}
	if set > 0 && set < len(r2) {
		errs = append(errs, errors.New("R2_ENDPOINT, R2_ACCESS_KEY and R2_SECRET_ACCESS_KEY must be set together"))
	}

	return errors.Join(errs...)
}

// FeedURL is the syndication feed of the configured publication.
func (c *Config) FeedURL() string {
	return c.SubstackURL + "/feed"
}

// R2Enabled reports whether object storage credentials are configured.
func (c *Config) R2Enabled() bool {
	return c.R2Endpoint != "" && c.R2AccessKey != "" && c.R2SecretKey != ""
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions for environment variable handling
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultVal int) int {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %d", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsFloat(name string, defaultVal float64) float64 {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %v", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsBool(name string, defaultVal bool) bool {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %t", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		// plain integers are seconds
		if secs, convErr := strconv.Atoi(valueStr); convErr == nil {
			return time.Duration(secs) * time.Second
		}
		log.Printf("Invalid %s value: %v, using default: %v", name, err, defaultVal)
		return defaultVal
	}
	return value
}
