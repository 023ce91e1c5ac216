package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type EsewaConfig struct {
	// SecretKey is the shared HMAC key issued by eSewa. Must come from
	// the environment; there is no usable default.
	SecretKey string

	// ProductCode identifies the merchant (EPAYTEST in the sandbox).
	ProductCode string

	// GatewayURL is the form endpoint the browser is redirected to.
	GatewayURL string

	// StatusURL is the transaction status-check API.
	StatusURL string

	// SuccessURL / FailureURL are the callback endpoints eSewa redirects to.
	SuccessURL string
	FailureURL string
}

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Frontend base URL for post-payment redirects
	FrontendBaseURL string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// eSewa gateway configuration
	Esewa EsewaConfig

	// Admin API key (bcrypt hash of the raw key)
	AdminAPIKeyHash string

	// Timeout configuration
	PaymentTimeout time.Duration
	GatewayTimeout time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	// Optional .env for local development; real deployments set the
	// environment directly.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	cfg := &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		FrontendBaseURL: getEnv("FRONTEND_BASE_URL", "http://localhost:3000"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// eSewa
		Esewa: EsewaConfig{
			SecretKey:   getEnv("ESEWA_SECRET_KEY", ""),
			ProductCode: getEnv("ESEWA_PRODUCT_CODE", "EPAYTEST"),
			GatewayURL:  getEnv("ESEWA_GATEWAY_URL", "https://rc-epay.esewa.com.np/api/epay/main/v2/form"),
			StatusURL:   getEnv("ESEWA_STATUS_URL", "https://rc.esewa.com.np/api/epay/transaction/status/"),
			SuccessURL:  getEnv("ESEWA_SUCCESS_URL", "http://localhost:8090/api/v1/payment/esewa/success"),
			FailureURL:  getEnv("ESEWA_FAILURE_URL", "http://localhost:8090/api/v1/payment/esewa/failure"),
		},

		AdminAPIKeyHash: getEnv("ADMIN_API_KEY_HASH", ""),

		// Timeouts
		PaymentTimeout: getEnvAsDuration("PAYMENT_TIMEOUT", "10m"),
		GatewayTimeout: getEnvAsDuration("GATEWAY_TIMEOUT", "10s"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}

	if cfg.Esewa.SecretKey == "" {
		log.Println("WARNING: ESEWA_SECRET_KEY is not set; signature operations will fail")
	}

	return cfg
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
