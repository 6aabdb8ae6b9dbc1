package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser  string
	DBPass  string
	DBHost  string
	DBPort  string
	DBName  string
	SSLMode string

	RedisHost string
	RedisPort string

	NatsHost string
	NatsPort string

	ApiPort string
	BaseURL string

	AdminToken string

	CheckoutAPIBase       string
	CheckoutSecretKey     string
	CheckoutWebhookSecret string

	CoinPayAPIBase    string
	CoinPayPublicKey  string
	CoinPayPrivateKey string
}

// New loads and validates configuration from environment variables. NATS is
// optional: when SUBPAY_NATS_HOST is unset the event bus and audit worker
// are simply not started.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:  os.Getenv("SUBPAY_POSTGRES_USER"),
		DBPass:  os.Getenv("SUBPAY_POSTGRES_PASSWORD"),
		DBHost:  os.Getenv("SUBPAY_POSTGRES_HOST"),
		DBPort:  getEnv("SUBPAY_POSTGRES_PORT", "5432"),
		DBName:  os.Getenv("SUBPAY_POSTGRES_DB"),
		SSLMode: getEnv("SUBPAY_POSTGRES_SSLMODE", "disable"),

		RedisHost: os.Getenv("SUBPAY_REDIS_HOST"),
		RedisPort: getEnv("SUBPAY_REDIS_PORT", "6379"),

		NatsHost: os.Getenv("SUBPAY_NATS_HOST"),
		NatsPort: getEnv("SUBPAY_NATS_PORT", "4222"),

		ApiPort: getEnv("SUBPAY_API_PORT", "8080"),
		BaseURL: getEnv("SUBPAY_BASE_URL", "http://localhost:8080"),

		AdminToken: os.Getenv("SUBPAY_ADMIN_TOKEN"),

		CheckoutAPIBase:       getEnv("SUBPAY_CHECKOUT_API_BASE", "https://api.stripe.com"),
		CheckoutSecretKey:     os.Getenv("SUBPAY_CHECKOUT_SECRET_KEY"),
		CheckoutWebhookSecret: os.Getenv("SUBPAY_CHECKOUT_WEBHOOK_SECRET"),

		CoinPayAPIBase:    getEnv("SUBPAY_COINPAY_API_BASE", "https://www.coinpayments.net"),
		CoinPayPublicKey:  os.Getenv("SUBPAY_COINPAY_PUBLIC_KEY"),
		CoinPayPrivateKey: os.Getenv("SUBPAY_COINPAY_PRIVATE_KEY"),
	}

	// Required: database
	if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" {
		return nil, fmt.Errorf("missing required env for database: SUBPAY_POSTGRES_USER/HOST/DB")
	}

	// Required: redis (callback replay cache)
	if cfg.RedisHost == "" {
		return nil, fmt.Errorf("missing required env: SUBPAY_REDIS_HOST")
	}

	// Required: admin capability secret
	if cfg.AdminToken == "" {
		return nil, fmt.Errorf("missing required env: SUBPAY_ADMIN_TOKEN")
	}

	// Required: provider credentials
	if cfg.CheckoutSecretKey == "" || cfg.CheckoutWebhookSecret == "" {
		return nil, fmt.Errorf("missing required env: SUBPAY_CHECKOUT_SECRET_KEY/WEBHOOK_SECRET")
	}
	if cfg.CoinPayPublicKey == "" || cfg.CoinPayPrivateKey == "" {
		return nil, fmt.Errorf("missing required env: SUBPAY_COINPAY_PUBLIC_KEY/PRIVATE_KEY")
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// NatsAddr returns the NATS URL, or "" when the bus is not configured.
func (c *Config) NatsAddr() string {
	if c.NatsHost == "" {
		return ""
	}
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

func (c *Config) ApiAddr() string {
	return ":" + c.ApiPort
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
