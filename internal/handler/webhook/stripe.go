package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dukerupert/mesa/internal/domain"
	"github.com/dukerupert/mesa/internal/handler"
	"github.com/dukerupert/mesa/internal/reconciler"
)

// MaxPayloadBytes caps the webhook body. Stripe events are far smaller.
const MaxPayloadBytes = 64 << 10

// SignatureHeader carries Stripe's timestamped HMAC.
const SignatureHeader = "Stripe-Signature"

// Ingester verifies and applies a raw webhook delivery.
type Ingester interface {
	Ingest(ctx context.Context, payload []byte, signature string) (reconciler.Result, error)
}

// StripeHandler receives Stripe webhook deliveries.
type StripeHandler struct {
	ingester Ingester
}

// NewStripeHandler creates a new Stripe webhook handler
func NewStripeHandler(ingester Ingester) *StripeHandler {
	return &StripeHandler{ingester: ingester}
}

type ackResponse struct {
	Received bool   `json:"received"`
	EventID  string `json:"event_id,omitempty"`
	Outcome  string `json:"outcome"`
}

// HandleWebhook processes incoming Stripe webhook events. It is registered for
// every method so non-POST requests get a 405 with an Allow header.
//
// A 2xx tells Stripe to stop redelivering. Bad signatures and events missing
// their tenant reference answer 400; storage and integrity failures answer 500
// so Stripe retries.
//
// Stripe CLI testing:
//
//	stripe listen --forward-to localhost:3000/webhooks/stripe
//	stripe trigger checkout.session.completed
func (h *StripeHandler) HandleWebhook(c echo.Context) error {
	r := c.Request()
	if r.Method != http.MethodPost {
		c.Response().Header().Set(echo.HeaderAllow, http.MethodPost)
		return handler.ErrorResponse(c, domain.Errorf(domain.EMETHOD, "webhook.receive", "Method not allowed"))
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Response(), r.Body, MaxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return handler.ErrorResponse(c, domain.Errorf(domain.ETOOLARGE, "webhook.receive", "Payload exceeds %d bytes", MaxPayloadBytes))
		}
		return handler.ErrorResponse(c, domain.WrapError(err, domain.EINVALID, "webhook.receive", "Error reading request body"))
	}

	res, err := h.ingester.Ingest(r.Context(), payload, r.Header.Get(SignatureHeader))
	if err != nil {
		return handler.ErrorResponse(c, reconciler.AsDomainError(err))
	}

	zerolog.Ctx(r.Context()).Debug().
		Str("event_id", res.EventID).
		Str("outcome", string(res.Outcome)).
		Int("payload_bytes", len(payload)).
		Msg("webhook acknowledged")

	return c.JSON(http.StatusOK, ackResponse{
		Received: true,
		EventID:  res.EventID,
		Outcome:  string(res.Outcome),
	})
}
