package billing

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// TenantMetadataKey is the metadata key the tenant id travels under.
const TenantMetadataKey = "tenant_id"

// StripeProvider implements Provider on a dedicated Stripe API client.
// The package-level stripe.Key is never touched.
type StripeProvider struct {
	api    *client.API
	config StripeConfig
}

// NewStripeProvider creates a Stripe provider with its own backends.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = 30
	}

	httpClient := &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	backendConfig := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(int64(cfg.MaxRetries)),
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	}

	return &StripeProvider{
		api:    client.New(cfg.APIKey, backends),
		config: cfg,
	}, nil
}

// CreateSubscriptionCheckout creates a subscription-mode Checkout Session.
func (s *StripeProvider) CreateSubscriptionCheckout(ctx context.Context, params CreateCheckoutParams) (*CheckoutSession, error) {
	if params.PriceID == "" {
		params.PriceID = s.config.PriceID
	}
	sp, err := checkoutSessionParams(params)
	if err != nil {
		return nil, err
	}
	sp.Context = ctx

	sess, err := s.api.CheckoutSessions.New(sp)
	if err != nil {
		return nil, wrapStripeError(err, "failed to create checkout session")
	}

	return &CheckoutSession{
		ID:        sess.ID,
		URL:       sess.URL,
		ExpiresAt: time.Unix(sess.ExpiresAt, 0).UTC(),
	}, nil
}

// CreateCustomerPortalSession creates a Stripe billing portal session.
func (s *StripeProvider) CreateCustomerPortalSession(ctx context.Context, params CreatePortalSessionParams) (*PortalSession, error) {
	if params.CustomerID == "" {
		return nil, ErrMissingCustomer
	}

	sp := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(params.CustomerID),
		ReturnURL: stripe.String(params.ReturnURL),
	}
	sp.Context = ctx

	sess, err := s.api.BillingPortalSessions.New(sp)
	if err != nil {
		return nil, wrapStripeError(err, "failed to create portal session")
	}
	return &PortalSession{ID: sess.ID, URL: sess.URL}, nil
}

// checkoutSessionParams builds the session request. The tenant id is written
// to client_reference_id, session metadata and subscription metadata.
func checkoutSessionParams(params CreateCheckoutParams) (*stripe.CheckoutSessionParams, error) {
	if params.TenantID == "" {
		return nil, ErrMissingTenant
	}
	if params.PriceID == "" {
		return nil, ErrMissingPrice
	}

	sp := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(params.TenantID),
		SuccessURL:        stripe.String(params.SuccessURL),
		CancelURL:         stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{TenantMetadataKey: params.TenantID},
		},
	}
	sp.AddMetadata(TenantMetadataKey, params.TenantID)

	if params.CustomerID != "" {
		sp.Customer = stripe.String(params.CustomerID)
	} else if params.CustomerEmail != "" {
		sp.CustomerEmail = stripe.String(params.CustomerEmail)
	}

	return sp, nil
}

func wrapStripeError(err error, message string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &StripeError{
			Message:       message,
			Code:          string(stripeErr.Code),
			HTTPStatus:    stripeErr.HTTPStatusCode,
			RequestID:     stripeErr.RequestID,
			OriginalError: err,
		}
	}
	return &StripeError{Message: message, OriginalError: err}
}
