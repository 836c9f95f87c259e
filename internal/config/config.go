// Package config provides configuration management for the scraper service.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the scraper service.
type Config struct {
	// Server settings
	Port               int
	LogLevel           string
	RateLimitPerMinute int
	IdleTimeout        time.Duration

	// Browser settings
	ChromePath string
	Headless   bool
	ProxyURL   string

	// Session state
	StateDir      string
	StateFileName string

	// Capture timing
	PageReadyTimeout time.Duration
	ResponseTimeout  time.Duration
	ScrollSettle     time.Duration
	ScrollInterval   time.Duration
	PostLoadDelay    time.Duration
	ScrapingTimeout  time.Duration

	// Request bounds
	MinTweetCount     int
	MaxTweetCount     int
	DefaultTweetCount int
	DefaultUserLimit  int
	MaxUserLimit      int

	// Result cache
	CacheDir             string
	CacheTTLUserData     time.Duration
	CacheTTLTimelineData time.Duration
	CacheTTLTaskResult   time.Duration

	// Persistence
	DatabasePath  string
	EncryptionKey string

	// Authentication
	JWTSecret            string
	AllowUnauthenticated bool

	// Worker
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
}

// Load creates a Config from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:                 getEnvInt("PORT", 8000),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		RateLimitPerMinute:   getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		IdleTimeout:          getEnvDuration("IDLE_TIMEOUT", 0),
		ChromePath:           getEnv("CHROME_PATH", ""),
		Headless:             getEnvBool("BROWSER_HEADLESS", true),
		ProxyURL:             getEnv("PROXY_URL", ""),
		StateDir:             getEnv("STATE_DIR", ""),
		StateFileName:        getEnv("STATE_FILE_NAME", "state.json"),
		PageReadyTimeout:     getEnvDuration("PAGE_READY_TIMEOUT", 30*time.Second),
		ResponseTimeout:      getEnvDuration("RESPONSE_TIMEOUT", 30*time.Second),
		ScrollSettle:         getEnvDuration("SCROLL_SETTLE", 1*time.Second),
		ScrollInterval:       getEnvDuration("SCROLL_INTERVAL", 5*time.Second),
		PostLoadDelay:        getEnvDuration("POST_LOAD_DELAY", 5*time.Second),
		ScrapingTimeout:      getEnvDuration("SCRAPING_TIMEOUT", 300*time.Second),
		MinTweetCount:        getEnvInt("MIN_TWEET_COUNT", 20),
		MaxTweetCount:        getEnvInt("MAX_TWEET_COUNT", 100),
		DefaultTweetCount:    getEnvInt("DEFAULT_TWEET_COUNT", 80),
		DefaultUserLimit:     getEnvInt("DEFAULT_USER_LIMIT", 20),
		MaxUserLimit:         getEnvInt("MAX_USER_LIMIT", 100),
		CacheDir:             getEnv("CACHE_DIR", ""),
		CacheTTLUserData:     getEnvDuration("CACHE_TTL_USER_DATA", time.Hour),
		CacheTTLTimelineData: getEnvDuration("CACHE_TTL_TIMELINE_DATA", 6*time.Hour),
		CacheTTLTaskResult:   getEnvDuration("CACHE_TTL_TASK_RESULT", 24*time.Hour),
		DatabasePath:         getEnv("DATABASE_PATH", filepath.Join("data", "social-scraper.db")),
		EncryptionKey:        getEnv("ENCRYPTION_KEY", ""),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		AllowUnauthenticated: getEnvBool("ALLOW_UNAUTHENTICATED", false),
		WorkerConcurrency:    getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerPollInterval:   getEnvDuration("WORKER_POLL_INTERVAL", 2*time.Second),
	}
}

// LoadDotEnv loads .env files from the working directory and the home directory.
// Missing files are ignored and existing environment variables win.
func LoadDotEnv() {
	_ = godotenv.Load(".env")
	if home, err := os.UserHomeDir(); err == nil {
		_ = godotenv.Load(filepath.Join(home, ".social-scraper.env"))
	}
}

// Validate checks the relationships between settings.
func (c *Config) Validate() error {
	var errs []error

	if c.MinTweetCount <= 0 {
		errs = append(errs, fmt.Errorf("MIN_TWEET_COUNT must be positive, got %d", c.MinTweetCount))
	}
	if c.MinTweetCount > c.MaxTweetCount {
		errs = append(errs, fmt.Errorf("MIN_TWEET_COUNT (%d) exceeds MAX_TWEET_COUNT (%d)", c.MinTweetCount, c.MaxTweetCount))
	}
	if c.DefaultTweetCount < c.MinTweetCount || c.DefaultTweetCount > c.MaxTweetCount {
		errs = append(errs, fmt.Errorf("DEFAULT_TWEET_COUNT (%d) outside [%d, %d]", c.DefaultTweetCount, c.MinTweetCount, c.MaxTweetCount))
	}
	if c.DefaultUserLimit <= 0 || c.DefaultUserLimit > c.MaxUserLimit {
		errs = append(errs, fmt.Errorf("DEFAULT_USER_LIMIT (%d) outside [1, %d]", c.DefaultUserLimit, c.MaxUserLimit))
	}

	durations := map[string]time.Duration{
		"PAGE_READY_TIMEOUT": c.PageReadyTimeout,
		"RESPONSE_TIMEOUT":   c.ResponseTimeout,
		"SCRAPING_TIMEOUT":   c.ScrapingTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		switch strings.ToLower(val) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Bare integers are seconds, matching the deployment env files.
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}
