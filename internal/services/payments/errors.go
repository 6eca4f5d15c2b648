package payments

import (
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v84"
)

// ValidationError reports a request the orchestrator refused before
// reaching the gateway.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// GatewayError wraps any failure returned by the payment processor.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// ProcessorMessage returns Stripe's own user-facing message, or "" when the
// failure did not come from the Stripe API (network errors and the like).
func (e *GatewayError) ProcessorMessage() string {
	var stripeErr *stripe.Error
	if errors.As(e.Err, &stripeErr) {
		return stripeErr.Msg
	}
	return ""
}

// UnexpectedError is everything else.
type UnexpectedError struct {
	Err error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected: %v", e.Err)
}

func (e *UnexpectedError) Unwrap() error { return e.Err }
