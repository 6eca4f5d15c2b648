package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stripe-checkout/internal/events"
	"stripe-checkout/internal/receipt"
	"stripe-checkout/internal/services/payments/types"
)

const (
	SuccessPath         = "/checkout/success"
	CancelPath          = "/checkout/cancel"
	SessionCompletePath = "/checkout/session/complete"
)

type ReceiptSigner interface {
	Sign(r receipt.Receipt) (string, error)
}

type EventPublisher interface {
	PublishCheckoutConfirmed(ctx context.Context, payload events.CheckoutConfirmedPayload) error
}

// Options describes the single product being sold.
type Options struct {
	Currency      string
	ProductName   string
	DefaultAmount int64
	MinAmount     int64
	// PublicURL is the externally reachable base URL, used for the hosted
	// checkout return links.
	PublicURL string
}

type Option func(*Service)

func WithReceiptSigner(s ReceiptSigner) Option {
	return func(svc *Service) { svc.receipts = s }
}

func WithEventPublisher(p EventPublisher) Option {
	return func(svc *Service) { svc.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(svc *Service) { svc.logger = l }
}

// Service creates and confirms payment intents for the checkout page.
// It holds no per-checkout state; every call stands alone.
type Service struct {
	provider PaymentProvider
	opts     Options
	receipts ReceiptSigner
	events   EventPublisher
	now      func() time.Time
	logger   *slog.Logger
}

func NewService(provider PaymentProvider, opts Options, options ...Option) *Service {
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.MinAmount <= 0 {
		opts.MinAmount = 50
	}
	if opts.DefaultAmount <= 0 {
		opts.DefaultAmount = 2000
	}
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")

	svc := &Service{
		provider: provider,
		opts:     opts,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, o := range options {
		o(svc)
	}
	return svc
}

type CreateIntentRequest struct {
	// Amount in minor units; nil means the configured default.
	Amount *int64
	// RawAmount is the amount exactly as a client sent it in JSON. When set
	// it takes the place of Amount and must be a plain integer.
	RawAmount      json.RawMessage
	IdempotencyKey string
}

type CreateIntentResult struct {
	ClientSecret    string
	PaymentIntentID string
	Amount          int64
	Currency        string
}

func (s *Service) CreateIntent(ctx context.Context, req CreateIntentRequest) (*CreateIntentResult, error) {
	requested := req.Amount
	if len(req.RawAmount) > 0 {
		parsed, err := parseAmount(req.RawAmount)
		if err != nil {
			return nil, err
		}
		requested = parsed
	}

	amount := s.opts.DefaultAmount
	if requested != nil {
		amount = *requested
		if amount < s.opts.MinAmount {
			return nil, &ValidationError{
				Field:   "amount",
				Message: fmt.Sprintf("must be at least %d", s.opts.MinAmount),
			}
		}
	}

	pi, err := s.provider.CreatePaymentIntent(ctx, types.PaymentRequest{
		Amount:         amount,
		Currency:       s.opts.Currency,
		ProductName:    s.opts.ProductName,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, &GatewayError{Op: "create intent", Err: err}
	}

	return &CreateIntentResult{
		ClientSecret:    pi.ClientSecret,
		PaymentIntentID: pi.ID,
		Amount:          pi.Amount,
		Currency:        pi.Currency,
	}, nil
}

// parseAmount accepts a JSON integer or null. Strings, fractions and
// exponent forms are rejected.
func parseAmount(raw json.RawMessage) (*int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return nil, &ValidationError{Field: "amount", Message: "must be an integer"}
	}
	return &n, nil
}

// ConfirmResult is the redirect target for the browser. Succeeded results
// point at the success page; everything else points at the cancel page and
// carries no order number.
type ConfirmResult struct {
	Succeeded       bool
	Status          types.IntentStatus
	RedirectURL     string
	PaymentIntentID string
	OrderNumber     string
	Amount          int64
	Currency        string
	Receipt         string
}

func (s *Service) ConfirmIntent(ctx context.Context, intentID string) (*ConfirmResult, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, &ValidationError{Field: "payment_intent_id", Message: "is required"}
	}

	pi, err := s.provider.GetPaymentIntent(ctx, intentID)
	if err != nil {
		return nil, &GatewayError{Op: "retrieve intent", Err: err}
	}

	if pi.Status != types.IntentStatusSucceeded {
		return &ConfirmResult{
			Succeeded:       false,
			Status:          pi.Status,
			RedirectURL:     CancelPath,
			PaymentIntentID: pi.ID,
		}, nil
	}

	res := &ConfirmResult{
		Succeeded:       true,
		Status:          pi.Status,
		PaymentIntentID: pi.ID,
		OrderNumber:     NewOrderNumber(s.now()),
		Amount:          pi.Amount,
		Currency:        pi.Currency,
	}

	if s.receipts != nil {
		token, err := s.receipts.Sign(receipt.Receipt{
			PaymentIntentID: res.PaymentIntentID,
			OrderNumber:     res.OrderNumber,
			Amount:          res.Amount,
			Currency:        res.Currency,
		})
		if err != nil {
			return nil, &UnexpectedError{Err: err}
		}
		res.Receipt = token
	}
	res.RedirectURL = successURL(res)

	if s.events != nil {
		err := s.events.PublishCheckoutConfirmed(ctx, events.CheckoutConfirmedPayload{
			PaymentIntentID: res.PaymentIntentID,
			OrderNumber:     res.OrderNumber,
			Amount:          res.Amount,
			Currency:        res.Currency,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "publishing checkout confirmed event",
				"payment_intent_id", res.PaymentIntentID, "error", err)
		}
	}

	return res, nil
}

func successURL(res *ConfirmResult) string {
	q := url.Values{}
	q.Set("payment_intent_id", res.PaymentIntentID)
	q.Set("amount", strconv.FormatInt(res.Amount, 10))
	q.Set("currency", res.Currency)
	q.Set("order_number", res.OrderNumber)
	if res.Receipt != "" {
		q.Set("receipt", res.Receipt)
	}
	return SuccessPath + "?" + q.Encode()
}

// StartHostedCheckout creates a Stripe-hosted checkout page for the product
// and returns its URL.
func (s *Service) StartHostedCheckout(ctx context.Context) (string, error) {
	sess, err := s.provider.CreateCheckoutSession(ctx, types.CheckoutSessionRequest{
		Amount:      s.opts.DefaultAmount,
		Currency:    s.opts.Currency,
		ProductName: s.opts.ProductName,
		// Stripe substitutes the template variable itself, so it must stay unescaped.
		SuccessUrl: s.opts.PublicURL + SessionCompletePath + "?session_id={CHECKOUT_SESSION_ID}",
		CancelUrl:  s.opts.PublicURL + CancelPath,
	})
	if err != nil {
		return "", &GatewayError{Op: "create checkout session", Err: err}
	}
	if sess.URL == "" {
		return "", &UnexpectedError{Err: errors.New("checkout session " + sess.ID + " has no url")}
	}
	return sess.URL, nil
}

// CompleteHostedCheckout resolves the payment intent behind a finished
// hosted checkout and confirms it like any other intent.
func (s *Service) CompleteHostedCheckout(ctx context.Context, sessionID string) (*ConfirmResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, &ValidationError{Field: "session_id", Message: "is required"}
	}

	sess, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, &GatewayError{Op: "retrieve checkout session", Err: err}
	}
	if sess.PaymentIntentID == "" {
		return &ConfirmResult{Succeeded: false, RedirectURL: CancelPath}, nil
	}

	return s.ConfirmIntent(ctx, sess.PaymentIntentID)
}
