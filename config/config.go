package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string
	BaseURL     string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Ticket configuration
	JWTSecret            string
	TokenTTL             time.Duration
	EntryGracePeriod     time.Duration
	MaxTicketsPerRequest int
	ScannerKeyHash       string

	// Rate limiting
	PublicRequestsPerMinute int
	ScanRequestsPerMinute   int

	// Monitoring
	EnableMetrics   bool
	MetricsPort     string
	MetricsInterval time.Duration
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8090"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Tickets
		JWTSecret:            getEnv("JWT_SECRET", "change-me-32-bytes-minimum-secret!!"),
		TokenTTL:             getEnvAsDuration("TOKEN_TTL", "8760h"), // ~1 year
		EntryGracePeriod:     getEnvAsDuration("ENTRY_GRACE_PERIOD", "1h"),
		MaxTicketsPerRequest: getEnvAsInt("MAX_TICKETS_PER_REQUEST", 10),
		ScannerKeyHash:       getEnv("SCANNER_KEY_HASH", ""),

		// Rate limiting
		PublicRequestsPerMinute: getEnvAsInt("PUBLIC_REQUESTS_PER_MINUTE", 10),
		ScanRequestsPerMinute:   getEnvAsInt("SCAN_REQUESTS_PER_MINUTE", 60),

		// Monitoring
		EnableMetrics:   getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),
		MetricsInterval: getEnvAsDuration("METRICS_INTERVAL", "30s"),
	}
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
