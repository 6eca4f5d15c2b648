package types

import "encoding/json"

// IntentStatus mirrors the lifecycle states of a Stripe PaymentIntent.
type IntentStatus string

const (
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentStatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentStatusRequiresAction        IntentStatus = "requires_action"
	IntentStatusRequiresCapture       IntentStatus = "requires_capture"
	IntentStatusProcessing            IntentStatus = "processing"
	IntentStatusSucceeded             IntentStatus = "succeeded"
	IntentStatusCanceled              IntentStatus = "canceled"
	IntentStatusFailed                IntentStatus = "failed"
)

// PaymentIntent is the part of the gateway's intent this service reads.
// It lives only for a single checkout attempt and is never stored.
type PaymentIntent struct {
	ID           string
	Amount       int64
	Currency     string
	Status       IntentStatus
	ClientSecret string
}

type PaymentRequest struct {
	Amount         int64
	Currency       string
	ProductName    string
	IdempotencyKey string
}

type CheckoutSessionRequest struct {
	Amount      int64
	Currency    string
	ProductName string
	SuccessUrl  string
	CancelUrl   string
}

type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
}

type CreateIntentRequest struct {
	Amount json.RawMessage `json:"amount"`
}

type PaymentIntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

type ConfirmRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

type ConfirmResponse struct {
	Success     bool   `json:"success"`
	RedirectURL string `json:"redirect_url"`
	OrderNumber string `json:"order_number,omitempty"`
	Amount      int64  `json:"amount,omitempty"`
	Currency    string `json:"currency,omitempty"`
	Error       string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
