// Package config holds the application's configuration settings.
package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// AppConfig defines environment-based configuration for the application.
type AppConfig struct {
	Http     HttpConfig
	Stripe   StripeConfig
	Checkout CheckoutConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Receipt  ReceiptConfig
}

type HttpConfig struct {
	Addr      string `env:"CHECKOUT_HTTP_ADDR" env-default:":8080"`
	PublicURL string `env:"CHECKOUT_PUBLIC_URL" env-default:"http://localhost:8080"`
}

type StripeConfig struct {
	SecretKey      string `env:"STRIPE_SECRET_KEY" env-required:"true"`
	PublishableKey string `env:"STRIPE_PUBLISHABLE_KEY" env-required:"true"`
	Currency       string `env:"STRIPE_CURRENCY" env-default:"usd"`
}

// CheckoutConfig describes the single product on sale.
type CheckoutConfig struct {
	ProductName   string `env:"CHECKOUT_PRODUCT_NAME" env-default:"Limited Edition T-Shirt"`
	DefaultAmount int64  `env:"CHECKOUT_DEFAULT_AMOUNT" env-default:"2000"`
	MinAmount     int64  `env:"CHECKOUT_MIN_AMOUNT" env-default:"50"`
}

// RedisConfig is optional; flash messages stay in memory when Addr is empty.
type RedisConfig struct {
	Addr string `env:"REDIS_ADDR"`
}

// KafkaConfig is optional; confirmation events are not published when Brokers is empty.
type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `env:"KAFKA_CHECKOUT_TOPIC" env-default:"checkout.confirmed"`
}

// ReceiptConfig is optional; success links are unsigned when SigningKey is empty.
type ReceiptConfig struct {
	SigningKey string `env:"RECEIPT_SIGNING_KEY"`
	Issuer     string `env:"RECEIPT_ISSUER" env-default:"stripe-checkout"`
}

// Load reads .env files (when present) into the process environment and
// then populates AppConfig from it.
func Load(envFiles ...string) (AppConfig, error) {
	var cfg AppConfig

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// missing files are fine, the environment may already be set
		_ = godotenv.Load(f)
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("reading config from env: %w", err)
	}

	if cfg.Checkout.MinAmount <= 0 {
		return cfg, fmt.Errorf("CHECKOUT_MIN_AMOUNT must be positive, got %d", cfg.Checkout.MinAmount)
	}
	if cfg.Checkout.DefaultAmount < cfg.Checkout.MinAmount {
		return cfg, fmt.Errorf("CHECKOUT_DEFAULT_AMOUNT %d is below CHECKOUT_MIN_AMOUNT %d",
			cfg.Checkout.DefaultAmount, cfg.Checkout.MinAmount)
	}

	return cfg, nil
}
