package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the agent
type Config struct {
	// Common
	Environment string
	LogLevel    string

	Server   ServerConfig
	Auth     AuthConfig
	Store    StoreConfig
	Quotes   QuotesConfig
	Engine   EngineConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Email    EmailConfig
	Slack    SlackConfig
	Telegram TelegramConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	HealthCheckPort int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RateLimitRPS    int
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret  string
	JWTExpiry  time.Duration
	BcryptCost int
}

// StoreConfig holds flat-file store configuration
type StoreConfig struct {
	RulesPath string
	UsersPath string
}

// QuotesConfig holds price source configuration
type QuotesConfig struct {
	Provider       string // "yahoo" or "mock"
	BaseURL        string
	RequestTimeout time.Duration
	FetchAttempts  int
	RetryDelay     time.Duration
	CacheTTL       time.Duration
}

// EngineConfig holds evaluation engine configuration
type EngineConfig struct {
	CooldownWindow time.Duration
	CooldownStore  string // "memory" or "redis"
	ScanInterval   time.Duration
}

// RedisConfig holds Redis configuration for the durable cooldown store
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// DatabaseConfig holds Postgres configuration for event history
type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	WriteBatchSize  int
	WriteInterval   time.Duration
	WriteQueueSize  int
	MaxRetries      int
	RetryDelay      time.Duration
}

// EmailConfig holds SMTP delivery configuration
type EmailConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SlackConfig holds Slack webhook configuration
type SlackConfig struct {
	Enabled    bool
	WebhookURL string
	Timeout    time.Duration
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	Enabled  bool
	BotToken string
	ChatID   string
	Timeout  time.Duration
}

// Load loads configuration from environment variables.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			HealthCheckPort: getEnvAsInt("SERVER_HEALTH_PORT", 8081),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			RateLimitRPS:    getEnvAsInt("SERVER_RATE_LIMIT_RPS", 50),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("AUTH_JWT_SECRET", ""),
			JWTExpiry:  getEnvAsDuration("AUTH_JWT_EXPIRY", 24*time.Hour),
			BcryptCost: getEnvAsInt("AUTH_BCRYPT_COST", 10),
		},
		Store: StoreConfig{
			RulesPath: getEnv("STORE_RULES_PATH", "data/rules_db.json"),
			UsersPath: getEnv("STORE_USERS_PATH", "data/users_db.json"),
		},
		Quotes: QuotesConfig{
			Provider:       getEnv("QUOTES_PROVIDER", "yahoo"),
			BaseURL:        getEnv("QUOTES_BASE_URL", ""),
			RequestTimeout: getEnvAsDuration("QUOTES_REQUEST_TIMEOUT", 10*time.Second),
			FetchAttempts:  getEnvAsInt("QUOTES_FETCH_ATTEMPTS", 2),
			RetryDelay:     getEnvAsDuration("QUOTES_RETRY_DELAY", 500*time.Millisecond),
			CacheTTL:       getEnvAsDuration("QUOTES_CACHE_TTL", 60*time.Second),
		},
		Engine: EngineConfig{
			CooldownWindow: getEnvAsDuration("ENGINE_COOLDOWN_WINDOW", 60*time.Minute),
			CooldownStore:  getEnv("ENGINE_COOLDOWN_STORE", "memory"),
			ScanInterval:   getEnvAsDuration("ENGINE_SCAN_INTERVAL", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
		},
		Database: DatabaseConfig{
			Enabled:         getEnvAsBool("DB_ENABLED", false),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "stock_alerts"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			WriteBatchSize:  getEnvAsInt("DB_WRITE_BATCH_SIZE", 100),
			WriteInterval:   getEnvAsDuration("DB_WRITE_INTERVAL", 5*time.Second),
			WriteQueueSize:  getEnvAsInt("DB_WRITE_QUEUE_SIZE", 1000),
			MaxRetries:      getEnvAsInt("DB_MAX_RETRIES", 3),
			RetryDelay:      getEnvAsDuration("DB_RETRY_DELAY", 1*time.Second),
		},
		Email: EmailConfig{
			Enabled:  getEnvAsBool("EMAIL_ENABLED", false),
			Host:     getEnv("EMAIL_SMTP_HOST", ""),
			Port:     getEnvAsInt("EMAIL_SMTP_PORT", 587),
			Username: getEnv("EMAIL_SMTP_USERNAME", ""),
			Password: getEnv("EMAIL_SMTP_PASSWORD", ""),
			From:     getEnv("EMAIL_FROM", ""),
		},
		Slack: SlackConfig{
			Enabled:    getEnvAsBool("SLACK_ENABLED", false),
			WebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
			Timeout:    getEnvAsDuration("SLACK_TIMEOUT", 10*time.Second),
		},
		Telegram: TelegramConfig{
			Enabled:  getEnvAsBool("TELEGRAM_ENABLED", false),
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
			Timeout:  getEnvAsDuration("TELEGRAM_TIMEOUT", 10*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if c.Quotes.Provider != "yahoo" && c.Quotes.Provider != "mock" {
		return fmt.Errorf("QUOTES_PROVIDER must be \"yahoo\" or \"mock\", got %q", c.Quotes.Provider)
	}
	if c.Engine.CooldownStore != "memory" && c.Engine.CooldownStore != "redis" {
		return fmt.Errorf("ENGINE_COOLDOWN_STORE must be \"memory\" or \"redis\", got %q", c.Engine.CooldownStore)
	}
	if c.Email.Enabled && (c.Email.Host == "" || c.Email.From == "") {
		return fmt.Errorf("EMAIL_SMTP_HOST and EMAIL_FROM are required when email is enabled")
	}
	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		return fmt.Errorf("SLACK_WEBHOOK_URL is required when slack is enabled")
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required when telegram is enabled")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}
