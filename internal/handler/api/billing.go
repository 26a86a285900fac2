// Package api serves the tenant-facing billing endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dukerupert/mesa/internal/billing"
	"github.com/dukerupert/mesa/internal/domain"
	"github.com/dukerupert/mesa/internal/handler"
	"github.com/dukerupert/mesa/internal/telemetry"
)

// SubscriptionReader loads the stored subscription state of a tenant.
type SubscriptionReader interface {
	GetByTenant(ctx context.Context, tenantID uuid.UUID) (*domain.SubscriptionRecord, error)
}

// BillingHandler opens Stripe Checkout and Customer Portal sessions.
type BillingHandler struct {
	provider billing.Provider
	store    SubscriptionReader
	priceID  string
	baseURL  string
	metrics  *telemetry.WebhookMetrics
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(provider billing.Provider, store SubscriptionReader, priceID, baseURL string, metrics *telemetry.WebhookMetrics) *BillingHandler {
	return &BillingHandler{
		provider: provider,
		store:    store,
		priceID:  priceID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		metrics:  metrics,
	}
}

type checkoutRequest struct {
	Email string `json:"email"`
}

type checkoutResponse struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type portalResponse struct {
	URL string `json:"url"`
}

// CreateCheckout handles POST /api/tenants/:tenant_id/checkout.
// A tenant that already holds premium gets 409; a returning customer is
// checked out against its existing Stripe customer.
func (h *BillingHandler) CreateCheckout(c echo.Context) error {
	ctx := c.Request().Context()

	rec, err := h.loadTenant(c)
	if err != nil {
		return handler.ErrorResponse(c, err)
	}
	if rec.Tier == domain.TierPremium && rec.Status == domain.StatusActive {
		return handler.ErrorResponse(c, domain.Errorf(domain.ECONFLICT, "checkout.create", "tenant already has an active subscription"))
	}

	var req checkoutRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return handler.ErrorResponse(c, domain.Invalid("checkout.create", "invalid request body"))
		}
	}

	tenant := rec.TenantID.String()
	session, err := h.provider.CreateSubscriptionCheckout(ctx, billing.CreateCheckoutParams{
		TenantID:      tenant,
		PriceID:       h.priceID,
		CustomerID:    rec.ExternalCustomerID,
		CustomerEmail: req.Email,
		SuccessURL:    h.baseURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     h.baseURL + "/billing/canceled",
	})
	if err != nil {
		h.metrics.StripeError("checkout")
		return handler.ErrorResponse(c, providerError(err, "checkout.create"))
	}
	h.metrics.CheckoutStarted()

	zerolog.Ctx(ctx).Info().
		Str("tenant_id", tenant).
		Str("session_id", session.ID).
		Msg("checkout session created")

	return c.JSON(http.StatusCreated, checkoutResponse{
		ID:        session.ID,
		URL:       session.URL,
		ExpiresAt: session.ExpiresAt,
	})
}

// CreatePortal handles POST /api/tenants/:tenant_id/portal.
func (h *BillingHandler) CreatePortal(c echo.Context) error {
	ctx := c.Request().Context()

	rec, err := h.loadTenant(c)
	if err != nil {
		return handler.ErrorResponse(c, err)
	}
	if rec.ExternalCustomerID == "" {
		return handler.ErrorResponse(c, domain.Errorf(domain.ECONFLICT, "portal.create", "tenant has no billing customer yet"))
	}

	session, err := h.provider.CreateCustomerPortalSession(ctx, billing.CreatePortalSessionParams{
		CustomerID: rec.ExternalCustomerID,
		ReturnURL:  h.baseURL + "/billing",
	})
	if err != nil {
		h.metrics.StripeError("portal")
		return handler.ErrorResponse(c, providerError(err, "portal.create"))
	}

	return c.JSON(http.StatusOK, portalResponse{URL: session.URL})
}

func (h *BillingHandler) loadTenant(c echo.Context) (*domain.SubscriptionRecord, error) {
	tenantID, err := uuid.Parse(c.Param("tenant_id"))
	if err != nil {
		return nil, domain.Invalid("tenant.parse", "tenant_id must be a UUID")
	}
	return h.store.GetByTenant(c.Request().Context(), tenantID)
}

func providerError(err error, op string) error {
	switch {
	case errors.Is(err, billing.ErrMissingPrice), errors.Is(err, billing.ErrInvalidAPIKey):
		return domain.Internal(err, op, "billing is not configured")
	case errors.Is(err, billing.ErrMissingCustomer), errors.Is(err, billing.ErrMissingTenant):
		return domain.WrapError(err, domain.EINVALID, op, "missing billing reference")
	}

	var se *billing.StripeError
	if errors.As(err, &se) && se.IsTemporary() {
		return domain.WrapError(err, domain.EUNAVAILABLE, op, "payment provider unavailable")
	}
	return domain.Internal(err, op, "payment provider request failed")
}
