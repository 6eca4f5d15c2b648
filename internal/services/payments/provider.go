package payments

import (
	"context"
	"fmt"

	"stripe-checkout/internal/services/payments/types"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/paymentintent"
)

// PaymentProvider is the gateway surface the checkout flow depends on.
type PaymentProvider interface {
	CreatePaymentIntent(ctx context.Context, req types.PaymentRequest) (*types.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*types.PaymentIntent, error)
	CreateCheckoutSession(ctx context.Context, req types.CheckoutSessionRequest) (*types.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*types.CheckoutSession, error)
}

// StripeProvider talks to Stripe with its own API key instead of the
// package-level stripe.Key, so several providers can coexist in one process.
type StripeProvider struct {
	intents  paymentintent.Client
	sessions session.Client
}

func NewStripeProvider(secretKey string) *StripeProvider {
	if secretKey == "" {
		panic("secretKey required for StripeProvider")
	}

	backend := stripe.GetBackend(stripe.APIBackend)

	return &StripeProvider{
		intents:  paymentintent.Client{B: backend, Key: secretKey},
		sessions: session.Client{B: backend, Key: secretKey},
	}
}

func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, req types.PaymentRequest) (*types.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			"product_name": req.ProductName,
		},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := p.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("creating payment intent: %w", err)
	}

	return toPaymentIntent(pi), nil
}

func (p *StripeProvider) GetPaymentIntent(ctx context.Context, id string) (*types.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := p.intents.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("retrieving payment intent %s: %w", id, err)
	}

	return toPaymentIntent(pi), nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req types.CheckoutSessionRequest) (*types.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessUrl),
		CancelURL:  stripe.String(req.CancelUrl),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{
				"product_name": req.ProductName,
			},
		},
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ProductName),
					},
					UnitAmount: stripe.Int64(req.Amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx

	s, err := p.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("creating checkout session: %w", err)
	}

	return toCheckoutSession(s), nil
}

func (p *StripeProvider) GetCheckoutSession(ctx context.Context, id string) (*types.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	s, err := p.sessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("retrieving checkout session %s: %w", id, err)
	}

	return toCheckoutSession(s), nil
}

func toPaymentIntent(pi *stripe.PaymentIntent) *types.PaymentIntent {
	return &types.PaymentIntent{
		ID:           pi.ID,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       types.IntentStatus(pi.Status),
		ClientSecret: pi.ClientSecret,
	}
}

func toCheckoutSession(s *stripe.CheckoutSession) *types.CheckoutSession {
	cs := &types.CheckoutSession{
		ID:  s.ID,
		URL: s.URL,
	}
	if s.PaymentIntent != nil {
		cs.PaymentIntentID = s.PaymentIntent.ID
	}
	return cs
}
