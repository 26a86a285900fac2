package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Tier is the plan level a tenant is entitled to.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Status is the billing standing of a tenant's subscription.
//
// Provider statuses on customer.subscription.updated are stored verbatim, so a
// record may carry values outside the constants below (e.g. "incomplete").
type Status string

const (
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusTrial    Status = "trial"
	StatusExpired  Status = "expired"
)

// ManualOverride is an administrator-granted premium status that is
// independent of billing events.
type ManualOverride struct {
	Active    bool       `json:"active"`
	Reason    string     `json:"reason,omitempty"`
	GrantedAt *time.Time `json:"granted_at,omitempty"`
}

// SubscriptionRecord is the persisted subscription state of one tenant.
type SubscriptionRecord struct {
	TenantID               uuid.UUID      `json:"tenant_id"`
	Tier                   Tier           `json:"tier"`
	Status                 Status         `json:"status"`
	ExternalCustomerID     string         `json:"external_customer_id,omitempty"`
	ExternalSubscriptionID string         `json:"external_subscription_id,omitempty"`
	PeriodEndsAt           *time.Time     `json:"period_ends_at"`
	ManualOverride         ManualOverride `json:"manual_override"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

// IsPremium reports whether the tenant currently has premium features, either
// through billing or through an administrative grant.
func (r SubscriptionRecord) IsPremium() bool {
	if r.ManualOverride.Active {
		return true
	}
	return r.Tier == TierPremium && (r.Status == StatusActive || r.Status == StatusTrial || r.Status == StatusPastDue)
}

// ActivateParams holds the fields written when a tenant completes its first
// checkout.
type ActivateParams struct {
	TenantID               uuid.UUID
	ExternalCustomerID     string
	ExternalSubscriptionID string
}

// SubscriptionStore persists subscription records.
//
// Every write method is a single statement scoped by its lookup key and returns
// the number of rows it affected. Callers decide what zero or several rows mean.
type SubscriptionStore interface {
	// Activate sets tier=premium, status=active, the external ids, clears
	// period_ends_at and the manual override. The customer id is only set if
	// the record has none yet.
	Activate(ctx context.Context, params ActivateParams) (int64, error)

	// MarkPaid sets status=active and clears period_ends_at.
	MarkPaid(ctx context.Context, subscriptionID string) (int64, error)

	// SetProviderStatus stores status verbatim and sets period_ends_at to
	// periodEndsAt (nil clears it).
	SetProviderStatus(ctx context.Context, subscriptionID string, status Status, periodEndsAt *time.Time) (int64, error)

	// MarkCanceled sets tier=free, status=canceled and period_ends_at.
	MarkCanceled(ctx context.Context, subscriptionID string, periodEndsAt *time.Time) (int64, error)

	// MarkPastDue sets status=past_due.
	MarkPastDue(ctx context.Context, subscriptionID string) (int64, error)

	// GetByTenant loads one record.
	GetByTenant(ctx context.Context, tenantID uuid.UUID) (*SubscriptionRecord, error)
}

// OverrideStore is the administrative surface for manual overrides.
type OverrideStore interface {
	SetManualOverride(ctx context.Context, tenantID uuid.UUID, reason string, at time.Time) (int64, error)
	ClearManualOverride(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// SubscriptionChanged is announced after the reconciler has applied a
// provider event to exactly one record.
type SubscriptionChanged struct {
	EventID                string     `json:"event_id"`
	EventType              string     `json:"event_type"`
	Family                 string     `json:"family"`
	TenantID               string     `json:"tenant_id,omitempty"`
	ExternalSubscriptionID string     `json:"external_subscription_id,omitempty"`
	ExternalCustomerID     string     `json:"external_customer_id,omitempty"`
	Tier                   Tier       `json:"tier,omitempty"`
	Status                 Status     `json:"status"`
	PeriodEndsAt           *time.Time `json:"period_ends_at"`
	OccurredAt             time.Time  `json:"occurred_at"`
}
