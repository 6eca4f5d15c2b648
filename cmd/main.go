package main

import (
	"fmt"
	"log/slog"
	"os"

	"stripe-checkout/config"
	"stripe-checkout/internal/receipt"
	"stripe-checkout/internal/services/payments"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:          "checkout",
		Short:        "Single-product Stripe checkout",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
			slog.SetDefault(logger)
		},
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")

	root.AddCommand(newServeCmd(&envFiles))
	root.AddCommand(newIntentCmd(&envFiles))

	return root
}

func loadConfig(envFiles []string) (config.AppConfig, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func serviceOptions(cfg config.AppConfig) payments.Options {
	return payments.Options{
		Currency:      cfg.Stripe.Currency,
		ProductName:   cfg.Checkout.ProductName,
		DefaultAmount: cfg.Checkout.DefaultAmount,
		MinAmount:     cfg.Checkout.MinAmount,
		PublicURL:     cfg.Http.PublicURL,
	}
}

// newReceiptSigner returns nil when no signing key is configured.
func newReceiptSigner(cfg config.AppConfig) *receipt.Signer {
	if cfg.Receipt.SigningKey == "" {
		return nil
	}
	return receipt.NewSigner(cfg.Receipt.SigningKey, cfg.Receipt.Issuer)
}
