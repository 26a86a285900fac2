package reconciler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/mesa/internal/billing"
)

// Stripe event types the reconciler acts on.
const (
	EventCheckoutCompleted    stripe.EventType = "checkout.session.completed"
	EventInvoicePaid          stripe.EventType = "invoice.payment_succeeded"
	EventInvoicePaymentFailed stripe.EventType = "invoice.payment_failed"
	EventSubscriptionUpdated  stripe.EventType = "customer.subscription.updated"
	EventSubscriptionDeleted  stripe.EventType = "customer.subscription.deleted"
)

// Family names the billing lifecycle step an event type belongs to. It is the
// label used in metrics and in published subject names.
type Family string

const (
	FamilyFirstPayment         Family = "first_payment_completed"
	FamilyRecurringPayment     Family = "recurring_payment_succeeded"
	FamilySubscriptionUpdated  Family = "subscription_updated"
	FamilySubscriptionDeleted  Family = "subscription_deleted"
	FamilyRecurringPaymentFail Family = "recurring_payment_failed"
)

// TenantMetadataKey is the metadata key checkout sessions carry the tenant id under.
const TenantMetadataKey = billing.TenantMetadataKey

// tenantRef is one place a checkout session may carry the tenant id.
type tenantRef struct {
	value  string
	source string
}

// tenantReferences lists the non-empty tenant references of a session in
// preference order: client_reference_id first, then metadata.
func tenantReferences(session *stripe.CheckoutSession) []tenantRef {
	var refs []tenantRef
	if session.ClientReferenceID != "" {
		refs = append(refs, tenantRef{session.ClientReferenceID, "client_reference_id"})
	}
	if v := session.Metadata[TenantMetadataKey]; v != "" {
		refs = append(refs, tenantRef{v, "metadata." + TenantMetadataKey})
	}
	return refs
}

// resolveTenant returns the first reference that parses as a tenant id.
func resolveTenant(refs []tenantRef) (uuid.UUID, tenantRef, bool) {
	for _, ref := range refs {
		if id, err := uuid.Parse(ref.value); err == nil {
			return id, ref, true
		}
	}
	return uuid.Nil, tenantRef{}, false
}

// invoiceObject decodes only what the reconciler needs from an invoice. The
// subscription reference moved under parent.subscription_details in the
// 2025-03-31 API; both layouts are accepted.
type invoiceObject struct {
	ID           string               `json:"id"`
	Subscription *stripe.Subscription `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription *stripe.Subscription `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (inv invoiceObject) subscriptionID() string {
	if inv.Subscription != nil && inv.Subscription.ID != "" {
		return inv.Subscription.ID
	}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != nil {
		return inv.Parent.SubscriptionDetails.Subscription.ID
	}
	return ""
}

// subscriptionObject is a stripe.Subscription plus the legacy top-level
// current_period_end, which newer API versions only report per item.
type subscriptionObject struct {
	stripe.Subscription
	LegacyPeriodEnd int64
}

func decodeSubscription(raw json.RawMessage) (*subscriptionObject, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}
	var legacy struct {
		CurrentPeriodEnd int64 `json:"current_period_end"`
	}
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, fmt.Errorf("decode subscription period: %w", err)
	}
	return &subscriptionObject{Subscription: sub, LegacyPeriodEnd: legacy.CurrentPeriodEnd}, nil
}

// periodEnd is the provider-reported end of the current period. Canceled
// records must carry one, so the fallbacks end at the event's own timestamp.
func (s *subscriptionObject) periodEnd(eventCreated int64) *time.Time {
	candidates := []int64{s.LegacyPeriodEnd}
	if s.Items != nil {
		for _, item := range s.Items.Data {
			if item != nil {
				candidates = append(candidates, item.CurrentPeriodEnd)
			}
		}
	}
	candidates = append(candidates, s.EndedAt, s.CancelAt, s.CanceledAt, eventCreated)

	for _, ts := range candidates {
		if ts > 0 {
			t := time.Unix(ts, 0).UTC()
			return &t
		}
	}
	return nil
}
