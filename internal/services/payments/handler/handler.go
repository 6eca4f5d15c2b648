package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stripe-checkout/internal/flash"
	"stripe-checkout/internal/receipt"
	"stripe-checkout/internal/services/payments"
	"stripe-checkout/internal/services/payments/types"
	"stripe-checkout/internal/views"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	CheckoutPath        = "/checkout"
	IntentPath          = "/checkout/payment-intent"
	ConfirmPath         = "/checkout/confirm"
	ConfirmRedirectPath = "/checkout/confirm/redirect"
	ReturnPath          = "/checkout/return"

	maxBodyBytes = int64(65536)
)

const (
	msgInvalidJSON      = "Invalid JSON"
	msgInvalidAmount    = "Invalid payment amount."
	msgCreateFailed     = "Payment processing failed. Please try again."
	msgCreateUnexpected = "An unexpected error occurred. Please try again."
	msgNotCompleted     = "Payment was not completed."
	msgVerifyFailed     = "Payment verification failed."
	msgConfirmFailed    = "An error occurred while processing your payment."
)

// Orchestrator is the part of payments.Service the handlers drive.
type Orchestrator interface {
	CreateIntent(ctx context.Context, req payments.CreateIntentRequest) (*payments.CreateIntentResult, error)
	ConfirmIntent(ctx context.Context, intentID string) (*payments.ConfirmResult, error)
	StartHostedCheckout(ctx context.Context) (string, error)
	CompleteHostedCheckout(ctx context.Context, sessionID string) (*payments.ConfirmResult, error)
}

type ReceiptVerifier interface {
	Verify(token string) (receipt.Receipt, error)
}

// PageConfig is what the checkout page shows before any intent exists.
type PageConfig struct {
	PublishableKey string
	ProductName    string
	DefaultAmount  int64
	Currency       string
}

type Option func(*handler)

func WithReceiptVerifier(v ReceiptVerifier) Option {
	return func(h *handler) { h.receipts = v }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *handler) { h.logger = l }
}

type handler struct {
	checkout Orchestrator
	pages    *views.Renderer
	flashes  flash.Store
	receipts ReceiptVerifier
	page     PageConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewHandler(checkout Orchestrator, pages *views.Renderer, flashes flash.Store, page PageConfig, opts ...Option) *handler {
	h := &handler{
		checkout: checkout,
		pages:    pages,
		flashes:  flashes,
		page:     page,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register mounts the checkout routes.
func (h *handler) Register(r chi.Router) {
	r.Get(CheckoutPath, h.Checkout)
	r.Post(CheckoutPath, h.StartHostedCheckout)
	r.Get(payments.SessionCompletePath, h.CompleteHostedCheckout)
	r.Post(IntentPath, h.CreatePaymentIntent)
	r.Post(ConfirmPath, h.ConfirmPayment)
	r.Post(ConfirmRedirectPath, h.ConfirmPaymentRedirect)
	r.Get(ReturnPath, h.ReturnFromStripe)
	r.Get(payments.SuccessPath, h.Success)
	r.Get(payments.CancelPath, h.Cancel)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handler) render(w http.ResponseWriter, r *http.Request, page string, data any) {
	var buf bytes.Buffer
	if err := h.pages.Render(&buf, page, data); err != nil {
		h.logger.ErrorContext(r.Context(), "rendering page", "page", page, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (h *handler) Checkout(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, views.PageCheckout, views.CheckoutPage{
		ProductName:        h.page.ProductName,
		PublishableKey:     h.page.PublishableKey,
		Amount:             h.page.DefaultAmount,
		Currency:           h.page.Currency,
		DisplayAmount:      views.FormatAmount(h.page.DefaultAmount, h.page.Currency),
		IdempotencyKey:     uuid.NewString(),
		IntentURL:          IntentPath,
		ConfirmURL:         ConfirmPath,
		ConfirmRedirectURL: ConfirmRedirectPath,
		ReturnURL:          ReturnPath,
		CancelURL:          payments.CancelPath,
		HostedURL:          CheckoutPath,
	})
}

func (h *handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	h.logger.DebugContext(r.Context(), "running CreatePaymentIntent")

	var body types.CreateIntentRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: msgInvalidJSON})
		return
	}

	res, err := h.checkout.CreateIntent(r.Context(), payments.CreateIntentRequest{
		RawAmount:      body.Amount,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		var vErr *payments.ValidationError
		var gErr *payments.GatewayError
		switch {
		case errors.As(err, &vErr):
			writeJSON(w, http.StatusUnprocessableEntity, types.ErrorResponse{Error: msgInvalidAmount, Message: vErr.Error()})
		case errors.As(err, &gErr):
			h.logger.ErrorContext(r.Context(), "stripe api error creating payment intent", "error", err)
			writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{Error: msgCreateFailed, Message: gErr.ProcessorMessage()})
		default:
			h.logger.ErrorContext(r.Context(), "creating payment intent", "error", err)
			writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{Error: msgCreateUnexpected})
		}
		return
	}

	writeJSON(w, http.StatusOK, types.PaymentIntentResponse{
		ClientSecret:    res.ClientSecret,
		PaymentIntentID: res.PaymentIntentID,
	})
}

// ConfirmPayment is the API variant: it always answers with JSON and leaves
// navigation to the caller.
func (h *handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var body types.ConfirmRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, types.ConfirmResponse{Error: msgInvalidJSON, RedirectURL: payments.CancelPath})
		return
	}

	res, err := h.checkout.ConfirmIntent(r.Context(), body.PaymentIntentID)
	if err != nil {
		code, msg := h.confirmFailure(r, err)
		writeJSON(w, code, types.ConfirmResponse{Error: msg, RedirectURL: payments.CancelPath})
		return
	}

	if !res.Succeeded {
		h.logger.InfoContext(r.Context(), "payment not completed",
			"payment_intent_id", res.PaymentIntentID, "status", res.Status)
		writeJSON(w, http.StatusBadRequest, types.ConfirmResponse{Error: msgNotCompleted, RedirectURL: res.RedirectURL})
		return
	}

	writeJSON(w, http.StatusOK, types.ConfirmResponse{
		Success:     true,
		RedirectURL: res.RedirectURL,
		OrderNumber: res.OrderNumber,
		Amount:      res.Amount,
		Currency:    res.Currency,
	})
}

func (h *handler) confirmFailure(r *http.Request, err error) (int, string) {
	var vErr *payments.ValidationError
	var gErr *payments.GatewayError
	switch {
	case errors.As(err, &vErr):
		return http.StatusUnprocessableEntity, vErr.Error()
	case errors.As(err, &gErr):
		h.logger.ErrorContext(r.Context(), "stripe payment confirmation error", "error", err)
		return http.StatusInternalServerError, msgVerifyFailed
	default:
		h.logger.ErrorContext(r.Context(), "payment confirmation error", "error", err)
		return http.StatusInternalServerError, msgConfirmFailed
	}
}

// ConfirmPaymentRedirect is the browser variant of ConfirmPayment: a form
// post answered with a redirect.
func (h *handler) ConfirmPaymentRedirect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	intentID := r.PostFormValue("payment_intent_id")

	res, err := h.checkout.ConfirmIntent(r.Context(), intentID)
	h.finishBrowserConfirm(w, r, res, err)
}

// ReturnFromStripe handles the return_url Stripe redirects to after
// redirect-based payment methods.
func (h *handler) ReturnFromStripe(w http.ResponseWriter, r *http.Request) {
	res, err := h.checkout.ConfirmIntent(r.Context(), r.URL.Query().Get("payment_intent"))
	h.finishBrowserConfirm(w, r, res, err)
}

func (h *handler) StartHostedCheckout(w http.ResponseWriter, r *http.Request) {
	hostedURL, err := h.checkout.StartHostedCheckout(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "starting hosted checkout", "error", err)
		h.redirectToCancel(w, r, msgCreateFailed)
		return
	}
	http.Redirect(w, r, hostedURL, http.StatusSeeOther)
}

func (h *handler) CompleteHostedCheckout(w http.ResponseWriter, r *http.Request) {
	res, err := h.checkout.CompleteHostedCheckout(r.Context(), r.URL.Query().Get("session_id"))
	h.finishBrowserConfirm(w, r, res, err)
}

func (h *handler) finishBrowserConfirm(w http.ResponseWriter, r *http.Request, res *payments.ConfirmResult, err error) {
	if err != nil {
		var vErr *payments.ValidationError
		msg := msgNotCompleted
		if !errors.As(err, &vErr) {
			_, msg = h.confirmFailure(r, err)
		}
		h.redirectToCancel(w, r, msg)
		return
	}
	if !res.Succeeded {
		h.logger.InfoContext(r.Context(), "payment not completed",
			"payment_intent_id", res.PaymentIntentID, "status", res.Status)
		h.redirectToCancel(w, r, msgNotCompleted)
		return
	}
	http.Redirect(w, r, res.RedirectURL, http.StatusSeeOther)
}

func (h *handler) redirectToCancel(w http.ResponseWriter, r *http.Request, msg string) {
	id, err := h.flashes.Put(r.Context(), msg)
	if err != nil {
		h.logger.WarnContext(r.Context(), "storing flash message", "error", err)
	} else {
		http.SetCookie(w, &http.Cookie{
			Name:     flash.CookieName,
			Value:    id,
			Path:     CheckoutPath,
			MaxAge:   int(flash.DefaultTTL.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	http.Redirect(w, r, payments.CancelPath, http.StatusSeeOther)
}

// Success renders the confirmation page. Values come from a signed receipt
// when one verifies; otherwise the query parameters are shown as-is and are
// good for display only.
func (h *handler) Success(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := views.SuccessPage{CheckoutURL: CheckoutPath}

	var amount int64
	var currency string

	if token := q.Get("receipt"); token != "" && h.receipts != nil {
		rc, err := h.receipts.Verify(token)
		if err != nil {
			h.logger.WarnContext(r.Context(), "rejecting success receipt", "error", err)
		} else {
			page.Verified = true
			page.OrderNumber = rc.OrderNumber
			page.PaymentIntentID = rc.PaymentIntentID
			amount = rc.Amount
			currency = rc.Currency
		}
	}

	if !page.Verified {
		page.OrderNumber = q.Get("order_number")
		if page.OrderNumber == "" {
			page.OrderNumber = payments.NewOrderNumber(h.now())
		}
		page.PaymentIntentID = q.Get("payment_intent_id")

		amount = h.page.DefaultAmount
		if v := q.Get("amount"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
				amount = n
			}
		}
		currency = q.Get("currency")
		if currency == "" {
			currency = h.page.Currency
		}
	}

	page.Currency = strings.ToUpper(currency)
	page.DisplayAmount = views.FormatAmount(amount, currency)

	h.render(w, r, views.PageSuccess, page)
}

func (h *handler) Cancel(w http.ResponseWriter, r *http.Request) {
	page := views.CancelPage{CheckoutURL: CheckoutPath}

	if c, err := r.Cookie(flash.CookieName); err == nil && c.Value != "" {
		msg, err := h.flashes.Pop(r.Context(), c.Value)
		switch {
		case err == nil:
			page.Error = msg
		case !errors.Is(err, flash.ErrNotFound):
			h.logger.WarnContext(r.Context(), "reading flash message", "error", err)
		}
		http.SetCookie(w, &http.Cookie{
			Name:     flash.CookieName,
			Value:    "",
			Path:     CheckoutPath,
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	h.render(w, r, views.PageCancel, page)
}
