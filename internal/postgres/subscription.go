package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dukerupert/mesa/internal/domain"
)

// DBTX is the subset of pgx shared by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SubscriptionStore implements domain.SubscriptionStore and
// domain.OverrideStore using PostgreSQL.
type SubscriptionStore struct {
	db  DBTX
	now func() time.Time
}

// Compile-time checks.
var (
	_ domain.SubscriptionStore = (*SubscriptionStore)(nil)
	_ domain.OverrideStore     = (*SubscriptionStore)(nil)
)

// NewSubscriptionStore creates a store on db.
func NewSubscriptionStore(db DBTX) *SubscriptionStore {
	return &SubscriptionStore{db: db, now: time.Now}
}

// =============================================================================
// Queries
// =============================================================================

const createTenantSubscription = `
INSERT INTO tenant_subscriptions (tenant_id, tier, status, created_at, updated_at)
VALUES ($1, 'free', 'trial', $2, $2)
ON CONFLICT (tenant_id) DO NOTHING`

const activateSubscription = `
UPDATE tenant_subscriptions
SET tier = 'premium',
    status = 'active',
    external_customer_id = COALESCE(external_customer_id, NULLIF($2::text, '')),
    external_subscription_id = COALESCE(NULLIF($3::text, ''), external_subscription_id),
    period_ends_at = NULL,
    manual_override = FALSE,
    manual_override_reason = NULL,
    manual_override_at = NULL,
    updated_at = $4
WHERE tenant_id = $1`

const markSubscriptionPaid = `
UPDATE tenant_subscriptions
SET status = 'active',
    period_ends_at = NULL,
    updated_at = $2
WHERE external_subscription_id = $1`

const setSubscriptionProviderStatus = `
UPDATE tenant_subscriptions
SET status = $2,
    period_ends_at = $3,
    updated_at = $4
WHERE external_subscription_id = $1`

const markSubscriptionCanceled = `
UPDATE tenant_subscriptions
SET tier = 'free',
    status = 'canceled',
    period_ends_at = $2,
    updated_at = $3
WHERE external_subscription_id = $1`

const markSubscriptionPastDue = `
UPDATE tenant_subscriptions
SET status = 'past_due',
    updated_at = $2
WHERE external_subscription_id = $1`

const setManualOverride = `
UPDATE tenant_subscriptions
SET manual_override = TRUE,
    manual_override_reason = $2,
    manual_override_at = $3,
    updated_at = $3
WHERE tenant_id = $1`

const clearManualOverride = `
UPDATE tenant_subscriptions
SET manual_override = FALSE,
    manual_override_reason = NULL,
    manual_override_at = NULL,
    updated_at = $2
WHERE tenant_id = $1`

const getSubscriptionByTenant = `
SELECT tenant_id, tier, status, external_customer_id, external_subscription_id,
       period_ends_at, manual_override, manual_override_reason, manual_override_at,
       created_at, updated_at
FROM tenant_subscriptions
WHERE tenant_id = $1`

// =============================================================================
// Reconciler writes
// =============================================================================

// CreateForTenant inserts the default free/trial row for a new tenant.
// Existing rows are left untouched.
func (s *SubscriptionStore) CreateForTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	return s.exec(ctx, "subscription.create", createTenantSubscription, pgUUID(tenantID), s.now().UTC())
}

func (s *SubscriptionStore) Activate(ctx context.Context, params domain.ActivateParams) (int64, error) {
	return s.exec(ctx, "subscription.activate", activateSubscription,
		pgUUID(params.TenantID),
		params.ExternalCustomerID,
		params.ExternalSubscriptionID,
		s.now().UTC(),
	)
}

func (s *SubscriptionStore) MarkPaid(ctx context.Context, subscriptionID string) (int64, error) {
	return s.exec(ctx, "subscription.mark_paid", markSubscriptionPaid, subscriptionID, s.now().UTC())
}

func (s *SubscriptionStore) SetProviderStatus(ctx context.Context, subscriptionID string, status domain.Status, periodEndsAt *time.Time) (int64, error) {
	return s.exec(ctx, "subscription.set_status", setSubscriptionProviderStatus,
		subscriptionID,
		string(status),
		pgTimestamptz(periodEndsAt),
		s.now().UTC(),
	)
}

func (s *SubscriptionStore) MarkCanceled(ctx context.Context, subscriptionID string, periodEndsAt *time.Time) (int64, error) {
	return s.exec(ctx, "subscription.mark_canceled", markSubscriptionCanceled,
		subscriptionID,
		pgTimestamptz(periodEndsAt),
		s.now().UTC(),
	)
}

func (s *SubscriptionStore) MarkPastDue(ctx context.Context, subscriptionID string) (int64, error) {
	return s.exec(ctx, "subscription.mark_past_due", markSubscriptionPastDue, subscriptionID, s.now().UTC())
}

// =============================================================================
// Administrative override
// =============================================================================

func (s *SubscriptionStore) SetManualOverride(ctx context.Context, tenantID uuid.UUID, reason string, at time.Time) (int64, error) {
	return s.exec(ctx, "subscription.override_set", setManualOverride, pgUUID(tenantID), reason, at.UTC())
}

func (s *SubscriptionStore) ClearManualOverride(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	return s.exec(ctx, "subscription.override_clear", clearManualOverride, pgUUID(tenantID), s.now().UTC())
}

// =============================================================================
// Reads
// =============================================================================

func (s *SubscriptionStore) GetByTenant(ctx context.Context, tenantID uuid.UUID) (*domain.SubscriptionRecord, error) {
	var (
		id                   pgtype.UUID
		tier, status         string
		customerID, subID    pgtype.Text
		periodEndsAt         pgtype.Timestamptz
		overrideActive       bool
		overrideReason       pgtype.Text
		overrideAt           pgtype.Timestamptz
		createdAt, updatedAt time.Time
	)

	err := s.db.QueryRow(ctx, getSubscriptionByTenant, pgUUID(tenantID)).Scan(
		&id, &tier, &status, &customerID, &subID,
		&periodEndsAt, &overrideActive, &overrideReason, &overrideAt,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("subscription.get", "tenant", tenantID.String())
	}
	if err != nil {
		return nil, domain.Internal(err, "subscription.get", "failed to load subscription")
	}

	return &domain.SubscriptionRecord{
		TenantID:               uuid.UUID(id.Bytes),
		Tier:                   domain.Tier(tier),
		Status:                 domain.Status(status),
		ExternalCustomerID:     customerID.String,
		ExternalSubscriptionID: subID.String,
		PeriodEndsAt:           timePtr(periodEndsAt),
		ManualOverride: domain.ManualOverride{
			Active:    overrideActive,
			Reason:    overrideReason.String,
			GrantedAt: timePtr(overrideAt),
		},
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// =============================================================================
// Helper Functions
// =============================================================================

func (s *SubscriptionStore) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time.UTC()
	return &t
}
