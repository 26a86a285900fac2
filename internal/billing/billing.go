package billing

import (
	"context"
	"time"
)

// Provider defines the payment provider operations the platform initiates.
// Event handling in the other direction goes through WebhookVerifier.
type Provider interface {
	// CreateSubscriptionCheckout opens a hosted checkout for the premium plan.
	// The tenant id is embedded both as the client reference and as metadata so
	// the checkout.session.completed event can always be routed back.
	CreateSubscriptionCheckout(ctx context.Context, params CreateCheckoutParams) (*CheckoutSession, error)

	// CreateCustomerPortalSession creates a billing portal session where the
	// tenant can manage payment methods or cancel.
	CreateCustomerPortalSession(ctx context.Context, params CreatePortalSessionParams) (*PortalSession, error)
}

// CreateCheckoutParams contains parameters for a subscription checkout.
type CreateCheckoutParams struct {
	// TenantID is the internal tenant the subscription is for (required).
	TenantID string

	// PriceID is the recurring price to subscribe to (required).
	PriceID string

	// CustomerID reuses an existing customer on re-subscription.
	CustomerID string

	// CustomerEmail prefills the checkout form when CustomerID is empty.
	CustomerEmail string

	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the subset of a checkout session returned to callers.
type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// CreatePortalSessionParams contains parameters for a billing portal session.
type CreatePortalSessionParams struct {
	CustomerID string
	ReturnURL  string
}

// PortalSession is a billing portal session.
type PortalSession struct {
	ID  string
	URL string
}
