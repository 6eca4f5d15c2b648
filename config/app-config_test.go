package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_PUBLISHABLE_KEY", "pk_test_123")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Http.Addr)
	assert.Equal(t, "usd", cfg.Stripe.Currency)
	assert.Equal(t, int64(2000), cfg.Checkout.DefaultAmount)
	assert.Equal(t, int64(50), cfg.Checkout.MinAmount)
	assert.Equal(t, "Limited Edition T-Shirt", cfg.Checkout.ProductName)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("STRIPE_CURRENCY", "eur")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CHECKOUT_DEFAULT_AMOUNT", "4500")

	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, "eur", cfg.Stripe.Currency)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, int64(4500), cfg.Checkout.DefaultAmount)
}

func TestLoad_DefaultBelowMinimum(t *testing.T) {
	setRequired(t)
	t.Setenv("CHECKOUT_DEFAULT_AMOUNT", "10")

	_, err := Load("does-not-exist.env")
	assert.Error(t, err)
}

func TestLoad_MissingStripeKeys(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("STRIPE_PUBLISHABLE_KEY", "")
	require.NoError(t, os.Unsetenv("STRIPE_SECRET_KEY"))
	require.NoError(t, os.Unsetenv("STRIPE_PUBLISHABLE_KEY"))

	_, err := Load("does-not-exist.env")
	assert.Error(t, err)
}

func TestLoad_DotEnvFile(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("STRIPE_PUBLISHABLE_KEY", "")
	t.Setenv("CHECKOUT_PRODUCT_NAME", "")
	require.NoError(t, os.Unsetenv("STRIPE_SECRET_KEY"))
	require.NoError(t, os.Unsetenv("STRIPE_PUBLISHABLE_KEY"))
	require.NoError(t, os.Unsetenv("CHECKOUT_PRODUCT_NAME"))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"STRIPE_SECRET_KEY=sk_from_file\nSTRIPE_PUBLISHABLE_KEY=pk_from_file\nCHECKOUT_PRODUCT_NAME=\"Hoodie\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk_from_file", cfg.Stripe.SecretKey)
	assert.Equal(t, "Hoodie", cfg.Checkout.ProductName)
}
