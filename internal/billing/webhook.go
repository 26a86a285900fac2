package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// WebhookVerifier authenticates Stripe-Signature headers and decodes events.
type WebhookVerifier struct {
	secret           string
	tolerance        time.Duration
	strictAPIVersion bool
}

// NewWebhookVerifier creates a verifier for secret. A zero tolerance uses
// Stripe's default of five minutes. With strictAPIVersion the verifier rejects
// events rendered for an API version other than the SDK's; otherwise they are
// decoded leniently.
func NewWebhookVerifier(secret string, tolerance time.Duration, strictAPIVersion bool) *WebhookVerifier {
	if tolerance == 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &WebhookVerifier{
		secret:           secret,
		tolerance:        tolerance,
		strictAPIVersion: strictAPIVersion,
	}
}

// ConstructEvent checks the signature over the raw payload and only then
// decodes it. Signature failures wrap ErrInvalidWebhookSignature.
func (v *WebhookVerifier) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	var event stripe.Event

	if err := webhook.ValidatePayloadWithTolerance(payload, signature, v.secret, v.tolerance); err != nil {
		return event, fmt.Errorf("%w: %v", ErrInvalidWebhookSignature, err)
	}

	if err := json.Unmarshal(payload, &event); err != nil {
		return event, fmt.Errorf("billing: failed to parse webhook JSON: %w", err)
	}

	if v.strictAPIVersion && event.APIVersion != stripe.APIVersion {
		return event, fmt.Errorf("%w: event %s, sdk %s", ErrAPIVersionMismatch, event.APIVersion, stripe.APIVersion)
	}

	return event, nil
}
