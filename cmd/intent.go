package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"stripe-checkout/internal/services/payments"

	"github.com/spf13/cobra"
)

func newIntentCmd(envFiles *[]string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intent",
		Short: "Create or check payment intents without the web page",
		// stdout carries the command's JSON result, so logs go to stderr
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), nil)))
		},
	}
	cmd.AddCommand(newIntentCreateCmd(envFiles), newIntentConfirmCmd(envFiles))
	return cmd
}

func newIntentService(envFiles []string) (*payments.Service, error) {
	cfg, err := loadConfig(envFiles)
	if err != nil {
		return nil, err
	}

	var opts []payments.Option
	if signer := newReceiptSigner(cfg); signer != nil {
		opts = append(opts, payments.WithReceiptSigner(signer))
	}
	return payments.NewService(payments.NewStripeProvider(cfg.Stripe.SecretKey), serviceOptions(cfg), opts...), nil
}

func newIntentCreateCmd(envFiles *[]string) *cobra.Command {
	var amount int64
	var idempotencyKey string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a payment intent for the product",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newIntentService(*envFiles)
			if err != nil {
				return err
			}

			req := payments.CreateIntentRequest{IdempotencyKey: idempotencyKey}
			if cmd.Flags().Changed("amount") {
				req.Amount = &amount
			}

			res, err := svc.CreateIntent(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount in minor units (default: configured amount)")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Stripe idempotency key")

	return cmd
}

func newIntentConfirmCmd(envFiles *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <payment-intent-id>",
		Short: "Check a payment intent and print the success or cancel target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newIntentService(*envFiles)
			if err != nil {
				return err
			}

			res, err := svc.ConfirmIntent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := printJSON(cmd, res); err != nil {
				return err
			}
			if !res.Succeeded {
				return fmt.Errorf("payment intent %s is %s", res.PaymentIntentID, res.Status)
			}
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
