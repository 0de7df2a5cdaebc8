package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var loadEnv sync.Once

// Config returns the value of key, reading .env into the environment on first use.
func Config(key string) string {
	loadEnv.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			logrus.Debug(".env file not found, reading from system environment variables")
		}
	})
	return strings.TrimSpace(os.Getenv(key))
}

type Settings struct {
	Port        string
	AppName     string
	StoreDriver string
	DatabaseURL string
	RedisURL    string
	LogLevel    string

	JWTSecret       string
	SchedulerSecret string

	StripeSecretKey     string
	StripeWebhookSecret string
	WebhookTimeout      time.Duration

	RequestPrice    decimal.Decimal
	RequestCurrency string
	FulfillerShare  decimal.Decimal

	BrevoAPIKey     string
	EmailSender     string
	EmailSenderName string
	SMSProvider     string
	SMSAPIKey       string
	SMSSender       string
	WhatsAppToken   string
	WhatsAppPhoneID string

	RateLimitPerMinute int
	EnableCron         bool
}

// Load reads every setting, falling back to defaults for missing or malformed values.
func Load() Settings {
	return Settings{
		Port:        withDefault("PORT", "8080"),
		AppName:     withDefault("APP_NAME", "Letter Broker"),
		StoreDriver: strings.ToLower(withDefault("STORE_DRIVER", "postgres")),
		DatabaseURL: Config("DATABASE_URL"),
		RedisURL:    Config("REDIS_URL"),
		LogLevel:    withDefault("LOG_LEVEL", "info"),

		JWTSecret:       Config("JWT_SECRET"),
		SchedulerSecret: Config("SCHEDULER_SECRET"),

		StripeSecretKey:     Config("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: Config("STRIPE_WEBHOOK_SECRET"),
		WebhookTimeout:      durationOr("WEBHOOK_TIMEOUT", 10*time.Second),

		RequestPrice:    decimalOr("REQUEST_PRICE", decimal.RequireFromString("30.00")),
		RequestCurrency: strings.ToLower(withDefault("REQUEST_CURRENCY", "usd")),
		FulfillerShare:  shareOr("FULFILLER_SHARE", decimal.RequireFromString("0.70")),

		BrevoAPIKey:     Config("BREVO_API_KEY"),
		EmailSender:     Config("EMAIL_SENDER"),
		EmailSenderName: Config("EMAIL_SENDER_NAME"),
		SMSProvider:     Config("SMS_PROVIDER"),
		SMSAPIKey:       Config("SMS_API_KEY"),
		SMSSender:       Config("SMS_SENDER"),
		WhatsAppToken:   Config("WHATSAPP_TOKEN"),
		WhatsAppPhoneID: Config("WHATSAPP_PHONE_ID"),

		RateLimitPerMinute: intOr("RATE_LIMIT_PER_MINUTE", 60),
		EnableCron:         boolOr("ENABLE_CRON", true),
	}
}

func withDefault(key, def string) string {
	if v := Config(key); v != "" {
		return v
	}
	return def
}

func invalid(key, value string, err error) {
	logrus.WithError(err).WithFields(logrus.Fields{"key": key, "value": value}).Warn("invalid setting, using default")
}

func intOr(key string, def int) int {
	raw := Config(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		invalid(key, raw, err)
		return def
	}
	return n
}

func boolOr(key string, def bool) bool {
	raw := Config(key)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		invalid(key, raw, err)
		return def
	}
	return b
}

func durationOr(key string, def time.Duration) time.Duration {
	raw := Config(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		invalid(key, raw, err)
		return def
	}
	return d
}

func decimalOr(key string, def decimal.Decimal) decimal.Decimal {
	raw := Config(key)
	if raw == "" {
		return def
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		invalid(key, raw, err)
		return def
	}
	return d
}

// shareOr reads a fraction in (0, 1].
func shareOr(key string, def decimal.Decimal) decimal.Decimal {
	d := decimalOr(key, def)
	if !d.IsPositive() || d.GreaterThan(decimal.NewFromInt(1)) {
		invalid(key, d.String(), fmt.Errorf("share must be greater than 0 and at most 1"))
		return def
	}
	return d
}
