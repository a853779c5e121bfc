package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cryptoTradeSync/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Sync Parameters
	AccountID      string    // Label the checkpoint, quota and audit rows are keyed by
	Symbols        []string  // Always synced, in addition to symbols found in the ledger
	SyncRangeDays  int       // 0 means all time
	AllTimeStart   time.Time // Window start of an all-time sync
	ForceRefetch   bool      // Replace persisted trades of the window
	DailySyncQuota int       // Successful syncs per rolling 24h, 0 = unlimited

	// Fetching
	FetchConcurrency    int // Symbols fetched in parallel
	RateLimitMaxRetries int
	RateLimitBaseDelay  time.Duration
	RateLimitMaxDelay   time.Duration

	// Database
	DBPath          string
	InsertBatchSize int

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string          // console or json
	LogFile   string          // Optional rotating log file

	// Watch mode
	MetricsAddr   string
	WatchInterval time.Duration
}

// DefaultDBPath is used when DB_PATH is not set.
const DefaultDBPath = "./data/trade_sync.db"

// LoadDBPath returns the configured database path without requiring API credentials.
// Offline tools that only read stored trades use it.
func LoadDBPath() string {
	_ = godotenv.Load()
	return getEnv("DB_PATH", DefaultDBPath)
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	// Sync Parameters
	cfg.AccountID = getEnv("ACCOUNT_ID", "default")
	cfg.Symbols = getEnvAsList("SYNC_SYMBOLS")

	cfg.SyncRangeDays, err = getEnvAsIntRequired("SYNC_RANGE_DAYS", 30)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SYNC_RANGE_DAYS: %v", err))
	} else if cfg.SyncRangeDays < 0 {
		errs = append(errs, "SYNC_RANGE_DAYS cannot be negative")
	}

	// USDT-M futures launched in September 2019; nothing older exists.
	allTime := getEnv("SYNC_ALL_TIME_START", "2019-09-01")
	cfg.AllTimeStart, err = time.Parse("2006-01-02", allTime)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SYNC_ALL_TIME_START '%s': expected YYYY-MM-DD", allTime))
	}

	cfg.ForceRefetch = getEnvAsBool("FORCE_REFETCH", false)

	cfg.DailySyncQuota, err = getEnvAsIntRequired("DAILY_SYNC_QUOTA", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DAILY_SYNC_QUOTA: %v", err))
	} else if cfg.DailySyncQuota < 0 {
		errs = append(errs, "DAILY_SYNC_QUOTA cannot be negative")
	}

	// Fetching
	cfg.FetchConcurrency, err = getEnvAsIntRequired("FETCH_CONCURRENCY", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FETCH_CONCURRENCY: %v", err))
	} else if cfg.FetchConcurrency <= 0 {
		errs = append(errs, "FETCH_CONCURRENCY must be positive")
	}

	cfg.RateLimitMaxRetries = getEnvAsInt("RATE_LIMIT_MAX_RETRIES", 5)
	if cfg.RateLimitMaxRetries < 0 {
		errs = append(errs, "RATE_LIMIT_MAX_RETRIES cannot be negative")
	}

	baseDelayMs := getEnvAsInt("RATE_LIMIT_BASE_DELAY_MS", 1000)
	maxDelayMs := getEnvAsInt("RATE_LIMIT_MAX_DELAY_MS", 30000)
	if baseDelayMs <= 0 || maxDelayMs <= 0 {
		errs = append(errs, "RATE_LIMIT_BASE_DELAY_MS and RATE_LIMIT_MAX_DELAY_MS must be positive")
	} else if baseDelayMs > maxDelayMs {
		errs = append(errs, "RATE_LIMIT_BASE_DELAY_MS must not exceed RATE_LIMIT_MAX_DELAY_MS")
	}
	cfg.RateLimitBaseDelay = time.Duration(baseDelayMs) * time.Millisecond
	cfg.RateLimitMaxDelay = time.Duration(maxDelayMs) * time.Millisecond

	// Database
	cfg.DBPath = getEnv("DB_PATH", DefaultDBPath)
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.InsertBatchSize, err = getEnvAsIntRequired("INSERT_BATCH_SIZE", 100)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INSERT_BATCH_SIZE: %v", err))
	} else if cfg.InsertBatchSize <= 0 {
		errs = append(errs, "INSERT_BATCH_SIZE must be positive")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", logger.FormatConsole))
	if cfg.LogFormat != logger.FormatConsole && cfg.LogFormat != logger.FormatJSON {
		errs = append(errs, "LOG_FORMAT must be 'console' or 'json'")
	}
	cfg.LogFile = getEnv("LOG_FILE", "")

	// Watch mode
	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9102")

	watchMinutes := getEnvAsInt("WATCH_INTERVAL_MINUTES", 240)
	if watchMinutes <= 0 {
		errs = append(errs, "WATCH_INTERVAL_MINUTES must be positive")
	}
	cfg.WatchInterval = time.Duration(watchMinutes) * time.Minute

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value into upper-cased, non-empty items.
func getEnvAsList(key string) []string {
	out := make([]string, 0)
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.ToUpper(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
