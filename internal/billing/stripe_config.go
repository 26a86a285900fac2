package billing

import (
	"errors"
	"strings"
)

// StripeConfig contains configuration for Stripe provider.
type StripeConfig struct {
	// APIKey is the Stripe secret key (sk_test_... or sk_live_...)
	APIKey string

	// WebhookSecret is the webhook signing secret (whsec_...)
	WebhookSecret string

	// PriceID is the recurring price of the premium plan.
	PriceID string

	// MaxRetries is the maximum number of retries for transient failures
	// Default: 2
	MaxRetries int

	// TimeoutSeconds is the HTTP timeout for Stripe API calls in seconds
	// Default: 30
	TimeoutSeconds int
}

// Validate checks that required configuration is present.
func (c *StripeConfig) Validate() error {
	if c.APIKey == "" {
		return ErrInvalidAPIKey
	}
	if c.WebhookSecret == "" {
		return errors.New("stripe: webhook secret is required")
	}
	return nil
}

// IsTestMode returns true if using test mode API keys.
func (c *StripeConfig) IsTestMode() bool {
	return strings.HasPrefix(c.APIKey, "sk_test_") || strings.HasPrefix(c.APIKey, "rk_test_")
}
