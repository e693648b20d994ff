package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string
	DatabaseMaxOpen  int
	DatabaseMaxIdle  int

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// LLM configuration (news sentiment)
	LLM LLMConfig

	// Notification channels
	Notify NotifyConfig

	// Market session
	Session SessionConfig

	// Scanner, tracker and stats refresh
	Scanner ScannerConfig
	Tracker TrackerConfig

	API APIConfig

	// RulesFile is an optional YAML file overlaying DefaultRuleConfig
	RulesFile string
	// ClassifierModelFile is an optional YAML logistic model; missing means no classifier
	ClassifierModelFile string

	LogLevel       string
	LogFormat      string
	TracingEnabled bool
}

// LLMConfig holds LLM service configuration
type LLMConfig struct {
	Enabled  bool
	Endpoint string
	APIKey   string
	Model    string
}

// NotifyConfig holds outbound notification settings
type NotifyConfig struct {
	TelegramBotToken string
	TelegramChatID   int64
	WebhookURLs      []string
	WebhookRetries   int
}

// SessionConfig describes the exchange trading session
type SessionConfig struct {
	TimeZone string
	Open     string // HH:MM
	Close    string // HH:MM
	// AllowOutsideHours disables session gating (backtests, demos)
	AllowOutsideHours bool
}

// ScannerConfig holds market scanner parameters
type ScannerConfig struct {
	MaxWorkers    int
	TickerTimeout time.Duration
}

// TrackerConfig holds outcome tracker parameters
type TrackerConfig struct {
	Interval             time.Duration
	MaxAttempts          int
	CloseAtSessionEnd    bool
	StatsRefreshInterval time.Duration
}

// APIConfig holds HTTP server parameters
type APIConfig struct {
	Port           int
	AdminJWTSecret string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "intraday_advisor"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "advisor"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "advisor"),
		DatabaseMaxOpen:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DatabaseMaxIdle:  getEnvInt("DB_MAX_IDLE_CONNS", 10),

		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		LLM: LLMConfig{
			Enabled:  getEnvBool("LLM_ENABLED", false),
			Endpoint: getEnvOrDefault("LLM_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:   getEnvOrDefault("LLM_API_KEY", ""),
			Model:    getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
		},

		Notify: NotifyConfig{
			TelegramBotToken: getEnvOrDefault("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID:   int64(getEnvInt("TELEGRAM_CHAT_ID", 0)),
			WebhookURLs:      getEnvList("WEBHOOK_URLS"),
			WebhookRetries:   getEnvInt("WEBHOOK_RETRIES", 3),
		},

		Session: SessionConfig{
			TimeZone:          getEnvOrDefault("MARKET_TIMEZONE", "Asia/Jakarta"),
			Open:              getEnvOrDefault("MARKET_OPEN", "09:00"),
			Close:             getEnvOrDefault("MARKET_CLOSE", "16:00"),
			AllowOutsideHours: getEnvBool("MARKET_ALLOW_OUTSIDE_HOURS", false),
		},

		Scanner: ScannerConfig{
			MaxWorkers:    getEnvInt("SCAN_MAX_WORKERS", 5),
			TickerTimeout: getEnvDuration("SCAN_TICKER_TIMEOUT", 10*time.Second),
		},

		Tracker: TrackerConfig{
			Interval:             getEnvDuration("TRACKER_INTERVAL", 5*time.Minute),
			MaxAttempts:          getEnvInt("TRACKER_MAX_ATTEMPTS", 3),
			CloseAtSessionEnd:    getEnvBool("TRACKER_CLOSE_AT_SESSION_END", false),
			StatsRefreshInterval: getEnvDuration("STATS_REFRESH_INTERVAL", 15*time.Minute),
		},

		API: APIConfig{
			Port:           getEnvInt("API_PORT", 8080),
			AdminJWTSecret: getEnvOrDefault("ADMIN_JWT_SECRET", ""),
		},

		RulesFile:           getEnvOrDefault("RULES_FILE", "rules.yaml"),
		ClassifierModelFile: getEnvOrDefault("CLASSIFIER_MODEL_FILE", ""),

		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:      getEnvOrDefault("LOG_FORMAT", "text"),
		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
	}
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvDuration parses values like "90s" or "5m"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	switch value {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
