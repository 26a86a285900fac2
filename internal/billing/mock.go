package billing

import (
	"context"
	"fmt"
	"time"
)

// MockProvider is a mock billing provider for testing.
// Simulates checkout and portal flows without calling the Stripe API.
type MockProvider struct {
	// CreateSubscriptionCheckoutFunc allows customizing checkout creation behavior
	CreateSubscriptionCheckoutFunc func(ctx context.Context, params CreateCheckoutParams) (*CheckoutSession, error)

	// CreateCustomerPortalSessionFunc allows customizing portal creation behavior
	CreateCustomerPortalSessionFunc func(ctx context.Context, params CreatePortalSessionParams) (*PortalSession, error)

	// CallLog tracks method calls for test assertions
	CallLog []string
}

// NewMockProvider creates a new mock billing provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{CallLog: []string{}}
}

// CreateSubscriptionCheckout returns a mock checkout session.
func (m *MockProvider) CreateSubscriptionCheckout(ctx context.Context, params CreateCheckoutParams) (*CheckoutSession, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreateSubscriptionCheckout(%s)", params.TenantID))
	if m.CreateSubscriptionCheckoutFunc != nil {
		return m.CreateSubscriptionCheckoutFunc(ctx, params)
	}
	if _, err := checkoutSessionParams(params); err != nil {
		return nil, err
	}
	return &CheckoutSession{
		ID:        "cs_test_" + params.TenantID,
		URL:       "https://checkout.stripe.test/c/pay/cs_test_" + params.TenantID,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

// CreateCustomerPortalSession returns a mock portal session.
func (m *MockProvider) CreateCustomerPortalSession(ctx context.Context, params CreatePortalSessionParams) (*PortalSession, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreateCustomerPortalSession(%s)", params.CustomerID))
	if m.CreateCustomerPortalSessionFunc != nil {
		return m.CreateCustomerPortalSessionFunc(ctx, params)
	}
	if params.CustomerID == "" {
		return nil, ErrMissingCustomer
	}
	return &PortalSession{
		ID:  "bps_test_" + params.CustomerID,
		URL: "https://billing.stripe.test/p/session/" + params.CustomerID,
	}, nil
}
