package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Environment string
	LogLevel    string
	LogFormat   string

	// Ticket database
	DBDriver       string
	DBDSN          string
	DBMaxOpenConns int

	// Redis configuration
	RedisURL         string
	PositionCacheTTL time.Duration

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// RabbitMQ configuration
	AMQPURL       string
	PurchaseQueue string

	// Queue admission
	MaxAdmittedPerEvent int
	LeaseTimeout        time.Duration
	LeaseSweepInterval  time.Duration
	QueuePositionUpdate time.Duration
	RequireAdmission    bool

	// Purchases
	BcryptCost         int
	RateLimitPerMinute int
	BankDeclineLast4   []string

	// Catalog ingestion
	TicketmasterBaseURL    string
	TicketmasterAPIKey     string
	IngestSeatsPerCategory int

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

// LoadConfig reads the process environment, after merging a .env file when one exists.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env file", "error", err)
	}

	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),

		// Database
		DBDriver:       getEnv("DB_DRIVER", "sqlite"),
		DBDSN:          getEnv("DB_DSN", "pb_data/tickets.db"),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),

		// Redis
		RedisURL:         getEnv("REDIS_URL", ""),
		PositionCacheTTL: getEnvAsDuration("POSITION_CACHE_TTL", "15s"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// RabbitMQ
		AMQPURL:       getEnv("AMQP_URL", ""),
		PurchaseQueue: getEnv("PURCHASE_QUEUE", "purchase_events"),

		// Queue
		MaxAdmittedPerEvent: getEnvAsInt("MAX_ADMITTED_PER_EVENT", 1),
		LeaseTimeout:        getEnvAsDuration("LEASE_TIMEOUT", "5m"),
		LeaseSweepInterval:  getEnvAsDuration("LEASE_SWEEP_INTERVAL", "15s"),
		QueuePositionUpdate: getEnvAsDuration("QUEUE_POSITION_UPDATE", "2s"),
		RequireAdmission:    getEnvAsBool("REQUIRE_ADMISSION", true),

		// Purchases
		BcryptCost:         getEnvAsInt("BCRYPT_COST", 10),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),
		BankDeclineLast4:   getEnvAsSlice("BANK_DECLINE_LAST4"),

		// Ingestion
		TicketmasterBaseURL:    getEnv("TICKETMASTER_BASE_URL", "https://app.ticketmaster.com/discovery/v2"),
		TicketmasterAPIKey:     getEnv("TICKETMASTER_API_KEY", ""),
		IngestSeatsPerCategory: getEnvAsInt("INGEST_SEATS_PER_CATEGORY", 100),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
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

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

// getEnvAsSlice splits a comma separated value, dropping empty items.
func getEnvAsSlice(key string) []string {
	var values []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			values = append(values, item)
		}
	}
	return values
}
