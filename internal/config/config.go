package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	Env  string
	Port string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWTSecret verifies access tokens minted by the identity provider.
	JWTSecret string
	// OperatorAPIKey guards the internal re-sync endpoints.
	OperatorAPIKey string
	// AppURL is the public base URL used for provider return links.
	AppURL string

	Stripe      StripeConfig
	MercadoPago MercadoPagoConfig

	// Billing policy
	ProviderTimeout          time.Duration
	TrialDays                int
	ProPlanPrice             decimal.Decimal
	FreePlanTransactionLimit int
}

// StripeConfig holds Stripe credentials.
type StripeConfig struct {
	SecretKey     string
	PriceID       string
	WebhookSecret string
}

// MercadoPagoConfig holds MercadoPago credentials.
type MercadoPagoConfig struct {
	AccessToken string
	BaseURL     string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	cfg := &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "8080"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "meikon"),
		DBPassword: getEnv("DB_PASSWORD", "meikon"),
		DBName:     getEnv("DB_NAME", "meikon"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:      getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),
		OperatorAPIKey: getEnv("OPERATOR_API_KEY", ""),
		AppURL:         getEnv("APP_URL", "http://localhost:3000"),

		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			PriceID:       getEnv("STRIPE_PRICE_ID", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		MercadoPago: MercadoPagoConfig{
			AccessToken: getEnv("MERCADOPAGO_ACCESS_TOKEN", ""),
			BaseURL:     getEnv("MERCADOPAGO_BASE_URL", "https://api.mercadopago.com"),
		},

		ProviderTimeout:          getDuration("PROVIDER_TIMEOUT", 10*time.Second),
		TrialDays:                getInt("TRIAL_DAYS", 14),
		FreePlanTransactionLimit: getInt("FREE_PLAN_TRANSACTION_LIMIT", 20),
	}

	price, err := decimal.NewFromString(getEnv("PRO_PLAN_PRICE", "39.00"))
	if err != nil {
		log.Printf("Warning: invalid PRO_PLAN_PRICE, falling back to 39.00: %v\n", err)
		price = decimal.NewFromInt(39)
	}
	cfg.ProPlanPrice = price

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		log.Printf("Warning: invalid %s value '%s', falling back to %d\n", key, raw, defaultValue)
		return defaultValue
	}
	return n
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, raw, defaultValue)
		return defaultValue
	}
	return d
}
