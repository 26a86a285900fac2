package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAPIKey is returned when Stripe API key is invalid or missing.
	ErrInvalidAPIKey = errors.New("billing: invalid or missing API key")

	// ErrInvalidWebhookSignature is returned when webhook signature verification fails.
	ErrInvalidWebhookSignature = errors.New("billing: invalid webhook signature")

	// ErrAPIVersionMismatch is returned in strict mode when an event was
	// rendered for a different API version than the SDK's.
	ErrAPIVersionMismatch = errors.New("billing: webhook api version mismatch")

	// ErrMissingTenant is returned when a checkout is requested without a tenant id.
	ErrMissingTenant = errors.New("billing: tenant id is required")

	// ErrMissingPrice is returned when no subscription price is configured.
	ErrMissingPrice = errors.New("billing: price id is required")

	// ErrMissingCustomer is returned when a portal session is requested for a
	// tenant that never completed checkout.
	ErrMissingCustomer = errors.New("billing: customer id is required")
)

// StripeError wraps a Stripe API error with additional context.
type StripeError struct {
	Message       string // Human-readable error message
	Code          string // Stripe error code (e.g., "resource_missing")
	HTTPStatus    int    // HTTP status code returned by Stripe
	RequestID     string // Stripe request ID for debugging
	OriginalError error  // Original error from Stripe SDK
}

func (e *StripeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("stripe: %s (code: %s)", e.Message, e.Code)
	}
	return fmt.Sprintf("stripe: %s", e.Message)
}

func (e *StripeError) Unwrap() error {
	return e.OriginalError
}

// IsTemporary returns true if error is likely transient and retryable.
func (e *StripeError) IsTemporary() bool {
	return e.Code == "rate_limit" || e.Code == "api_connection_error" || e.HTTPStatus >= 500
}
