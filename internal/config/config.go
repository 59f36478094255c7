package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	JWT          JWTConfig
	Payment      PaymentConfig
	Mpesa        MpesaConfig
	Midtrans     MidtransConfig
	Subscription SubscriptionConfig
	Otel         OtelConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	PaymentLogPath     string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	StoreDriver        string // "postgres" or "memory"
	LockDriver         string // "memory" or "redis"
	EventTopic         string // in-process topic when NATS is unavailable
}

type DatabaseConfig struct {
	Connection string
}

type JWTConfig struct {
	Secret string
}

type PaymentConfig struct {
	Provider     string // "mpesa" or "midtrans"
	PollInterval time.Duration
	MaxAttempts  int
	SyncTimeout  time.Duration
	CallbackTTL  time.Duration
}

type MpesaConfig struct {
	BaseURL         string
	ConsumerKey     string
	ConsumerSecret  string
	ShortCode       string
	PassKey         string
	CallbackURL     string
	CallbackToken   string
	TransactionType string
	Timeout         time.Duration
}

type MidtransConfig struct {
	ServerKey    string
	IsProduction bool
}

type SubscriptionConfig struct {
	WarningWindow     time.Duration
	ReconcileSchedule string
	ReconcileTimeout  time.Duration
}

type OtelConfig struct {
	Enabled  bool
	Endpoint string
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Environment, "production")
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			PaymentLogPath:     getEnv("PAYMENT_LOG_PATH", "logs/payment.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			StoreDriver:        getEnv("STORE_DRIVER", "postgres"),
			LockDriver:         getEnv("LOCK_DRIVER", "memory"),
			EventTopic:         getEnv("EVENT_TOPIC", "subscription.events"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Payment: PaymentConfig{
			Provider:     getEnv("PAYMENT_PROVIDER", "mpesa"),
			PollInterval: getEnvAsDuration("PAYMENT_POLL_INTERVAL", 5*time.Second),
			MaxAttempts:  getEnvAsInt("PAYMENT_POLL_MAX_ATTEMPTS", 6),
			SyncTimeout:  getEnvAsDuration("PAYMENT_SYNC_TIMEOUT", 45*time.Second),
			CallbackTTL:  getEnvAsDuration("PAYMENT_CALLBACK_TTL", time.Hour),
		},
		Mpesa: MpesaConfig{
			BaseURL:         getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:     getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret:  getEnv("MPESA_CONSUMER_SECRET", ""),
			ShortCode:       getEnv("MPESA_SHORTCODE", ""),
			PassKey:         getEnv("MPESA_PASSKEY", ""),
			CallbackURL:     getEnv("MPESA_CALLBACK_URL", ""),
			CallbackToken:   getEnv("MPESA_CALLBACK_TOKEN", ""),
			TransactionType: getEnv("MPESA_TRANSACTION_TYPE", "CustomerPayBillOnline"),
			Timeout:         getEnvAsDuration("MPESA_HTTP_TIMEOUT", 15*time.Second),
		},
		Midtrans: MidtransConfig{
			ServerKey:    getEnv("MIDTRANS_SERVER_KEY", ""),
			IsProduction: getEnvAsBool("MIDTRANS_IS_PRODUCTION", false),
		},
		Subscription: SubscriptionConfig{
			WarningWindow:     getEnvAsDuration("SUBSCRIPTION_WARNING_WINDOW", 72*time.Hour),
			ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "0 * * * *"),
			ReconcileTimeout:  getEnvAsDuration("RECONCILE_TIMEOUT", 10*time.Minute),
		},
		Otel: OtelConfig{
			Enabled:  getEnvAsBool("OTEL_ENABLED", false),
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := strings.TrimSpace(getEnv(key, ""))
	if strValue == "" {
		return fallback
	}
	if value, err := time.ParseDuration(strValue); err == nil && value > 0 {
		return value
	}
	if seconds, err := strconv.Atoi(strValue); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}
