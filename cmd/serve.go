package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"stripe-checkout/config"
	"stripe-checkout/internal/events"
	"stripe-checkout/internal/flash"
	"stripe-checkout/internal/httpx"
	"stripe-checkout/internal/services/payments"
	"stripe-checkout/internal/services/payments/handler"
	"stripe-checkout/internal/views"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newServeCmd(envFiles *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the checkout HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*envFiles)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg config.AppConfig) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flashes, closeFlashes, err := newFlashStore(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeFlashes()

	var svcOpts []payments.Option
	var handlerOpts []handler.Option

	if signer := newReceiptSigner(cfg); signer != nil {
		svcOpts = append(svcOpts, payments.WithReceiptSigner(signer))
		handlerOpts = append(handlerOpts, handler.WithReceiptVerifier(signer))
	}

	var producer *events.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, 1024)
		producer.Start(context.Background())
		svcOpts = append(svcOpts, payments.WithEventPublisher(events.NewPublisher(producer, cfg.Receipt.Issuer)))
		slog.Info("publishing checkout events", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}

	stripeProvider := payments.NewStripeProvider(cfg.Stripe.SecretKey)
	service := payments.NewService(stripeProvider, serviceOptions(cfg), svcOpts...)

	pages, err := views.NewRenderer()
	if err != nil {
		return err
	}

	h := handler.NewHandler(service, pages, flashes, handler.PageConfig{
		PublishableKey: cfg.Stripe.PublishableKey,
		ProductName:    cfg.Checkout.ProductName,
		DefaultAmount:  cfg.Checkout.DefaultAmount,
		Currency:       cfg.Stripe.Currency,
	}, handlerOpts...)

	srv := &http.Server{
		Addr:              cfg.Http.Addr,
		Handler:           httpx.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info(fmt.Sprintf("Server running on %s", cfg.Http.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("failed to serve server", "error", err)
			return err
		}
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutting down server", "error", err)
	}

	if producer != nil {
		producer.Close()
		producer.WaitClosed()
	}
	return nil
}

func newFlashStore(ctx context.Context, cfg config.RedisConfig) (flash.Store, func(), error) {
	if cfg.Addr == "" {
		return flash.NewMemoryStore(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}

	return flash.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil
}
