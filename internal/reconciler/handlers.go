package reconciler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/mesa/internal/domain"
)

// handleCheckoutCompleted activates the tenant named by the checkout session.
// It is the only path that clears a manual override.
func (r *Reconciler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) (Outcome, error) {
	var session stripe.CheckoutSession
	if err := decode(event, &session); err != nil {
		return OutcomeFailed, err
	}

	if session.Mode != "" && session.Mode != stripe.CheckoutSessionModeSubscription {
		return OutcomeSkipped, nil
	}

	refs := tenantReferences(&session)
	if len(refs) == 0 {
		return OutcomeFailed, &ValidationError{
			EventID:   event.ID,
			EventType: string(event.Type),
			Field:     "client_reference_id",
			Reason:    "checkout session carries no tenant reference",
		}
	}
	tenantID, ref, ok := resolveTenant(refs)
	if !ok {
		return OutcomeFailed, &ValidationError{
			EventID:   event.ID,
			EventType: string(event.Type),
			Field:     refs[0].source,
			Reason:    "tenant reference is not a valid id",
		}
	}

	params := domain.ActivateParams{TenantID: tenantID}
	if session.Customer != nil {
		params.ExternalCustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		params.ExternalSubscriptionID = session.Subscription.ID
	}
	// A premium record must be addressable by later subscription events.
	if params.ExternalSubscriptionID == "" {
		return OutcomeFailed, &ValidationError{
			EventID:   event.ID,
			EventType: string(event.Type),
			Field:     "subscription",
			Reason:    "subscription checkout carries no subscription id",
		}
	}
	if params.ExternalCustomerID == "" {
		return OutcomeFailed, &ValidationError{
			EventID:   event.ID,
			EventType: string(event.Type),
			Field:     "customer",
			Reason:    "subscription checkout carries no customer id",
		}
	}

	zerolog.Ctx(ctx).Debug().
		Str("tenant_id", tenantID.String()).
		Str("tenant_ref_source", ref.source).
		Str("customer_id", params.ExternalCustomerID).
		Str("subscription_id", params.ExternalSubscriptionID).
		Msg("activating tenant subscription")

	rows, err := r.store.Activate(ctx, params)
	outcome, err := r.applied(event, "tenant_id", tenantID.String(), rows, err)
	if outcome == OutcomeApplied {
		r.publish(ctx, domain.SubscriptionChanged{
			EventID:                event.ID,
			EventType:              string(event.Type),
			Family:                 string(FamilyFirstPayment),
			TenantID:               tenantID.String(),
			ExternalCustomerID:     params.ExternalCustomerID,
			ExternalSubscriptionID: params.ExternalSubscriptionID,
			Tier:                   domain.TierPremium,
			Status:                 domain.StatusActive,
		})
	}
	return outcome, err
}

func (r *Reconciler) handleInvoicePaid(ctx context.Context, event stripe.Event) (Outcome, error) {
	var inv invoiceObject
	if err := decode(event, &inv); err != nil {
		return OutcomeFailed, err
	}
	subID := inv.subscriptionID()
	if subID == "" {
		return OutcomeSkipped, nil
	}

	rows, err := r.store.MarkPaid(ctx, subID)
	outcome, err := r.applied(event, "external_subscription_id", subID, rows, err)
	if outcome == OutcomeApplied {
		r.publish(ctx, domain.SubscriptionChanged{
			EventID:                event.ID,
			EventType:              string(event.Type),
			Family:                 string(FamilyRecurringPayment),
			ExternalSubscriptionID: subID,
			Status:                 domain.StatusActive,
		})
	}
	return outcome, err
}

func (r *Reconciler) handleInvoicePaymentFailed(ctx context.Context, event stripe.Event) (Outcome, error) {
	var inv invoiceObject
	if err := decode(event, &inv); err != nil {
		return OutcomeFailed, err
	}
	subID := inv.subscriptionID()
	if subID == "" {
		return OutcomeSkipped, nil
	}

	rows, err := r.store.MarkPastDue(ctx, subID)
	outcome, err := r.applied(event, "external_subscription_id", subID, rows, err)
	if outcome == OutcomeApplied {
		r.publish(ctx, domain.SubscriptionChanged{
			EventID:                event.ID,
			EventType:              string(event.Type),
			Family:                 string(FamilyRecurringPaymentFail),
			ExternalSubscriptionID: subID,
			Status:                 domain.StatusPastDue,
		})
	}
	return outcome, err
}

// handleSubscriptionUpdated stores the provider status untranslated. Only a
// canceled status carries a period end; every other status clears it.
func (r *Reconciler) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) (Outcome, error) {
	sub, err := decodeSubscription(event.Data.Raw)
	if err != nil {
		return OutcomeFailed, domain.WrapError(err, domain.EINVALID, "webhook.decode", "failed to parse event object")
	}
	if sub.ID == "" {
		return OutcomeSkipped, nil
	}

	if sub.Status == "" {
		return OutcomeFailed, &ValidationError{
			EventID:   event.ID,
			EventType: string(event.Type),
			Field:     "status",
			Reason:    "subscription update carries no status",
		}
	}

	status := domain.Status(sub.Status)
	var periodEndsAt *time.Time
	if status == domain.StatusCanceled {
		periodEndsAt = sub.periodEnd(event.Created)
	}

	rows, err := r.store.SetProviderStatus(ctx, sub.ID, status, periodEndsAt)
	outcome, err := r.applied(event, "external_subscription_id", sub.ID, rows, err)
	if outcome == OutcomeApplied {
		r.publish(ctx, domain.SubscriptionChanged{
			EventID:                event.ID,
			EventType:              string(event.Type),
			Family:                 string(FamilySubscriptionUpdated),
			ExternalSubscriptionID: sub.ID,
			Status:                 status,
			PeriodEndsAt:           periodEndsAt,
		})
	}
	return outcome, err
}

// handleSubscriptionDeleted is terminal for the subscription id: the tenant
// drops to the free tier regardless of its prior state.
func (r *Reconciler) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) (Outcome, error) {
	sub, err := decodeSubscription(event.Data.Raw)
	if err != nil {
		return OutcomeFailed, domain.WrapError(err, domain.EINVALID, "webhook.decode", "failed to parse event object")
	}
	if sub.ID == "" {
		return OutcomeSkipped, nil
	}

	periodEndsAt := sub.periodEnd(event.Created)
	rows, err := r.store.MarkCanceled(ctx, sub.ID, periodEndsAt)
	outcome, err := r.applied(event, "external_subscription_id", sub.ID, rows, err)
	if outcome == OutcomeApplied {
		r.publish(ctx, domain.SubscriptionChanged{
			EventID:                event.ID,
			EventType:              string(event.Type),
			Family:                 string(FamilySubscriptionDeleted),
			ExternalSubscriptionID: sub.ID,
			Tier:                   domain.TierFree,
			Status:                 domain.StatusCanceled,
			PeriodEndsAt:           periodEndsAt,
		})
	}
	return outcome, err
}
