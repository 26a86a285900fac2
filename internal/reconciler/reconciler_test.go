package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dukerupert/mesa/internal/billing"
	"github.com/dukerupert/mesa/internal/domain"
	"github.com/dukerupert/mesa/internal/telemetry"
)

var (
	testNow    = time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)
	tenantT    = uuid.MustParse("3b0f3c8e-8a8b-4f3e-9d51-1c7e5f0a2b44")
	periodEndE = time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
)

const webhookSecret = "whsec_reconciler_test"

type harness struct {
	store     *memoryStore
	publisher *recordingPublisher
	reporter  *recordingReporter
	metrics   *telemetry.WebhookMetrics
	r         *Reconciler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := func() time.Time { return testNow }
	h := &harness{
		store:     newMemoryStore(clock),
		publisher: &recordingPublisher{},
		reporter:  &recordingReporter{},
		metrics:   telemetry.NewWebhookMetrics(prometheus.NewRegistry(), "test"),
	}
	h.r = New(h.store,
		WithVerifier(billing.NewWebhookVerifier(webhookSecret, 0, false)),
		WithPublisher(h.publisher),
		WithFaultReporter(h.reporter),
		WithMetrics(h.metrics),
		WithClock(clock),
	)
	return h
}

func (h *harness) seedTrial(id uuid.UUID) {
	h.store.seed(domain.SubscriptionRecord{
		TenantID:  id,
		Tier:      domain.TierFree,
		Status:    domain.StatusTrial,
		CreatedAt: testNow.Add(-30 * 24 * time.Hour),
		UpdatedAt: testNow.Add(-30 * 24 * time.Hour),
	})
}

func event(id string, typ stripe.EventType, object string) stripe.Event {
	return stripe.Event{
		ID:      id,
		Type:    typ,
		Created: testNow.Unix(),
		Data:    &stripe.EventData{Raw: json.RawMessage(object)},
	}
}

func checkoutEvent(tenantRef, customer, subscription string) stripe.Event {
	return event("evt_checkout_1", EventCheckoutCompleted, fmt.Sprintf(`{
		"id": "cs_test_1",
		"object": "checkout.session",
		"mode": "subscription",
		"client_reference_id": %q,
		"customer": %q,
		"subscription": %q,
		"metadata": {"tenant_id": %q}
	}`, tenantRef, customer, subscription, tenantRef))
}

func subscriptionEvent(typ stripe.EventType, subID, status string, periodEnd int64) stripe.Event {
	return event("evt_sub_"+status, typ, fmt.Sprintf(`{
		"id": %q,
		"object": "subscription",
		"status": %q,
		"items": {"object": "list", "data": [{"id": "si_1", "current_period_end": %d}]}
	}`, subID, status, periodEnd))
}

func invoiceEvent(typ stripe.EventType, subID string) stripe.Event {
	sub := "null"
	if subID != "" {
		sub = fmt.Sprintf("%q", subID)
	}
	return event("evt_inv_1", typ, fmt.Sprintf(`{"id": "in_1", "object": "invoice", "subscription": %s}`, sub))
}

func TestScenario_TrialToPremium(t *testing.T) {
	h := newHarness(t)
	h.seedTrial(tenantT)

	res, err := h.r.Dispatch(context.Background(), checkoutEvent(tenantT.String(), "cus_C1", "sub_S1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	rec := h.store.get(tenantT)
	assert.Equal(t, domain.TierPremium, rec.Tier)
	assert.Equal(t, domain.StatusActive, rec.Status)
	assert.Equal(t, "cus_C1", rec.ExternalCustomerID)
	assert.Equal(t, "sub_S1", rec.ExternalSubscriptionID)
	assert.Nil(t, rec.PeriodEndsAt)

	require.Len(t, h.publisher.changes, 1)
	assert.Equal(t, string(FamilyFirstPayment), h.publisher.changes[0].Family)
	assert.Equal(t, tenantT.String(), h.publisher.changes[0].TenantID)

	// subscription-updated to canceled keeps the tier
	res, err = h.r.Dispatch(context.Background(), subscriptionEvent(EventSubscriptionUpdated, "sub_S1", "canceled", periodEndE.Unix()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	rec = h.store.get(tenantT)
	assert.Equal(t, domain.StatusCanceled, rec.Status)
	require.NotNil(t, rec.PeriodEndsAt)
	assert.True(t, periodEndE.Equal(*rec.PeriodEndsAt))
	assert.Equal(t, domain.TierPremium, rec.Tier)
}

func TestFirstPayment_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.seedTrial(tenantT)
	ev := checkoutEvent(tenantT.String(), "cus_C1", "sub_S1")

	_, err := h.r.Dispatch(context.Background(), ev)
	require.NoError(t, err)
	once := h.store.get(tenantT)

	_, err = h.r.Dispatch(context.Background(), ev)
	require.NoError(t, err)
	twice := h.store.get(tenantT)

	assert.Equal(t, once, twice)
}

func TestFirstPayment_ClearsManualOverride(t *testing.T) {
	h := newHarness(t)
	grantedAt := testNow.Add(-time.Hour)
	h.store.seed(domain.SubscriptionRecord{
		TenantID:               tenantT,
		Tier:                   domain.TierFree,
		Status:                 domain.StatusCanceled,
		ExternalCustomerID:     "cus_C1",
		ExternalSubscriptionID: "sub_old",
		PeriodEndsAt:           &grantedAt,
		ManualOverride: domain.ManualOverride{
			Active:    true,
			Reason:    "comped while card was replaced",
			GrantedAt: &grantedAt,
		},
	})

	_, err := h.r.Dispatch(context.Background(), checkoutEvent(tenantT.String(), "cus_C1", "sub_new"))
	require.NoError(t, err)

	rec := h.store.get(tenantT)
	assert.Equal(t, domain.ManualOverride{}, rec.ManualOverride)
	assert.Equal(t, "sub_new", rec.ExternalSubscriptionID, "new subscription replaces the old one")
	assert.Nil(t, rec.PeriodEndsAt)
}

func TestFirstPayment_CustomerIDSetOnce(t *testing.T) {
	h := newHarness(t)
	h.store.seed(domain.SubscriptionRecord{TenantID: tenantT, Tier: domain.TierFree, Status: domain.StatusExpired, ExternalCustomerID: "cus_original"})

	_, err := h.r.Dispatch(context.Background(), checkoutEvent(tenantT.String(), "cus_other", "sub_2"))
	require.NoError(t, err)
	assert.Equal(t, "cus_original", h.store.get(tenantT).ExternalCustomerID)
}

func TestFirstPayment_TenantReference(t *testing.T) {
	other := uuid.MustParse("9a1c7d2e-0000-4000-8000-000000000001")

	tests := []struct {
		name       string
		object     string
		wantTenant uuid.UUID
		wantField  string
	}{
		{
			name:       "client reference preferred over metadata",
			object:     fmt.Sprintf(`{"id":"cs_1","mode":"subscription","client_reference_id":%q,"customer":"cus_1","subscription":"sub_1","metadata":{"tenant_id":%q}}`, tenantT, other),
			wantTenant: tenantT,
		},
		{
			name:       "metadata fallback",
			object:     fmt.Sprintf(`{"id":"cs_1","mode":"subscription","customer":"cus_1","subscription":"sub_1","metadata":{"tenant_id":%q}}`, other),
			wantTenant: other,
		},
		{
			name:       "malformed client reference falls back to metadata",
			object:     fmt.Sprintf(`{"id":"cs_1","mode":"subscription","client_reference_id":"table-12","customer":"cus_1","subscription":"sub_1","metadata":{"tenant_id":%q}}`, other),
			wantTenant: other,
		},
		{
			name:      "neither reference is a tenant id",
			object:    `{"id":"cs_1","mode":"subscription","client_reference_id":"table-12","customer":"cus_1","subscription":"sub_1","metadata":{"tenant_id":"acme"}}`,
			wantField: "client_reference_id",
		},
		{
			name:      "only metadata and it is not a tenant id",
			object:    `{"id":"cs_1","mode":"subscription","customer":"cus_1","subscription":"sub_1","metadata":{"tenant_id":"acme"}}`,
			wantField: "metadata.tenant_id",
		},
		{
			name:      "both absent",
			object:    `{"id":"cs_1","mode":"subscription","customer":"cus_1","subscription":"sub_1","metadata":{}}`,
			wantField: "client_reference_id",
		},
		{
			name:      "not a tenant id",
			object:    `{"id":"cs_1","mode":"subscription","client_reference_id":"table-12","customer":"cus_1","subscription":"sub_1"}`,
			wantField: "client_reference_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.seedTrial(tenantT)
			h.seedTrial(other)

			res, err := h.r.Dispatch(context.Background(), event("evt_cs", EventCheckoutCompleted, tt.object))
			if tt.wantField != "" {
				var valErr *ValidationError
				require.ErrorAs(t, err, &valErr)
				assert.Equal(t, tt.wantField, valErr.Field)
				assert.Equal(t, OutcomeFailed, res.Outcome)
				assert.True(t, domain.IsCode(AsDomainError(err), domain.EINVALID))
				assert.Equal(t, 0, h.store.writes)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.TierPremium, h.store.get(tt.wantTenant).Tier)
		})
	}
}

func TestFirstPayment_NonSubscriptionCheckoutSkipped(t *testing.T) {
	h := newHarness(t)
	h.seedTrial(tenantT)

	res, err := h.r.Dispatch(context.Background(), event("evt_cs", EventCheckoutCompleted,
		fmt.Sprintf(`{"id":"cs_1","mode":"payment","client_reference_id":%q}`, tenantT)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, 0, h.store.writes)
}

func TestSubscriptionDeleted_AlwaysFreeAndCanceled(t *testing.T) {
	priors := []domain.SubscriptionRecord{
		{Tier: domain.TierPremium, Status: domain.StatusActive},
		{Tier: domain.TierPremium, Status: domain.StatusPastDue},
		{Tier: domain.TierPremium, Status: domain.StatusCanceled},
		{Tier: domain.TierFree, Status: domain.StatusTrial},
		{Tier: domain.TierFree, Status: domain.Status("incomplete_expired")},
	}

	for _, prior := range priors {
		t.Run(fmt.Sprintf("%s/%s", prior.Tier, prior.Status), func(t *testing.T) {
			h := newHarness(t)
			prior.TenantID = tenantT
			prior.ExternalSubscriptionID = "sub_S1"
			h.store.seed(prior)

			_, err := h.r.Dispatch(context.Background(), subscriptionEvent(EventSubscriptionDeleted, "sub_S1", "canceled", periodEndE.Unix()))
			require.NoError(t, err)

			rec := h.store.get(tenantT)
			assert.Equal(t, domain.TierFree, rec.Tier)
			assert.Equal(t, domain.StatusCanceled, rec.Status)
			require.NotNil(t, rec.PeriodEndsAt)
			assert.True(t, periodEndE.Equal(*rec.PeriodEndsAt))
		})
	}
}

func TestFirstPayment_RequiresProviderIDs(t *testing.T) {
	tests := []struct {
		name      string
		object    string
		wantField string
	}{
		{
			name:      "no subscription",
			object:    fmt.Sprintf(`{"id":"cs_1","mode":"subscription","client_reference_id":%q,"customer":"cus_1"}`, tenantT),
			wantField: "subscription",
		},
		{
			name:      "no customer",
			object:    fmt.Sprintf(`{"id":"cs_1","mode":"subscription","client_reference_id":%q,"subscription":"sub_1"}`, tenantT),
			wantField: "customer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.seedTrial(tenantT)

			res, err := h.r.Dispatch(context.Background(), event("evt_cs", EventCheckoutCompleted, tt.object))
			var valErr *ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Equal(t, tt.wantField, valErr.Field)
			assert.Equal(t, OutcomeFailed, res.Outcome)
			assert.Equal(t, 0, h.store.writes)

			rec := h.store.get(tenantT)
			assert.Equal(t, domain.TierFree, rec.Tier)
			assert.Equal(t, domain.StatusTrial, rec.Status)
		})
	}
}

func TestSubscriptionUpdated_StatusVerbatim(t *testing.T) {
	tests := []struct {
		name       string
		object     string
		wantStatus domain.Status
		wantField  string
	}{
		{
			name:       "provider status stored as is",
			object:     fmt.Sprintf(`{"id":"sub_S1","object":"subscription","status":"trialing","items":{"object":"list","data":[{"id":"si_1","current_period_end":%d}]}}`, periodEndE.Unix()),
			wantStatus: domain.Status("trialing"),
		},
		{
			name:       "missing status rejected",
			object:     `{"id":"sub_S1","object":"subscription"}`,
			wantStatus: domain.StatusCanceled,
			wantField:  "status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			end := periodEndE
			h.store.seed(domain.SubscriptionRecord{
				TenantID:               tenantT,
				Tier:                   domain.TierPremium,
				Status:                 domain.StatusCanceled,
				ExternalSubscriptionID: "sub_S1",
				PeriodEndsAt:           &end,
			})

			res, err := h.r.Dispatch(context.Background(), event("evt_upd", EventSubscriptionUpdated, tt.object))
			rec := h.store.get(tenantT)
			assert.Equal(t, tt.wantStatus, rec.Status)
			assert.Equal(t, domain.TierPremium, rec.Tier)

			if tt.wantField != "" {
				var valErr *ValidationError
				require.ErrorAs(t, err, &valErr)
				assert.Equal(t, tt.wantField, valErr.Field)
				assert.Equal(t, OutcomeFailed, res.Outcome)
				assert.True(t, domain.IsCode(AsDomainError(err), domain.EINVALID))
				assert.Equal(t, 0, h.store.writes)
				require.NotNil(t, rec.PeriodEndsAt)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, OutcomeApplied, res.Outcome)
			assert.Nil(t, rec.PeriodEndsAt, "non-canceled status clears the period end")
		})
	}
}

func TestSubscription_PeriodEndFallbacks(t *testing.T) {
	legacy := int64(1800000000)
	ended := int64(1790000000)

	tests := []struct {
		name   string
		object string
		want   int64
	}{
		{"legacy top-level period end", fmt.Sprintf(`{"id":"sub_S1","status":"canceled","current_period_end":%d}`, legacy), legacy},
		{"ended_at when no period", fmt.Sprintf(`{"id":"sub_S1","status":"canceled","ended_at":%d}`, ended), ended},
		{"event created as last resort", `{"id":"sub_S1","status":"canceled"}`, testNow.Unix()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.store.seed(domain.SubscriptionRecord{TenantID: tenantT, Tier: domain.TierPremium, Status: domain.StatusActive, ExternalSubscriptionID: "sub_S1"})

			_, err := h.r.Dispatch(context.Background(), event("evt_del", EventSubscriptionDeleted, tt.object))
			require.NoError(t, err)

			rec := h.store.get(tenantT)
			require.NotNil(t, rec.PeriodEndsAt)
			assert.Equal(t, tt.want, rec.PeriodEndsAt.Unix())
		})
	}
}

func TestRecurringPayments(t *testing.T) {
	end := periodEndE

	tests := []struct {
		name        string
		event       stripe.Event
		wantStatus  domain.Status
		wantOutcome Outcome
		wantPeriod  bool
	}{
		{
			name:        "paid restores active and clears period end",
			event:       invoiceEvent(EventInvoicePaid, "sub_S1"),
			wantStatus:  domain.StatusActive,
			wantOutcome: OutcomeApplied,
		},
		{
			name:        "failed marks past due and keeps period end",
			event:       invoiceEvent(EventInvoicePaymentFailed, "sub_S1"),
			wantStatus:  domain.StatusPastDue,
			wantOutcome: OutcomeApplied,
			wantPeriod:  true,
		},
		{
			name:        "paid via parent subscription details",
			event:       event("evt_inv_2", EventInvoicePaid, `{"id":"in_2","parent":{"type":"subscription_details","subscription_details":{"subscription":"sub_S1"}}}`),
			wantStatus:  domain.StatusActive,
			wantOutcome: OutcomeApplied,
		},
		{
			name:        "invoice without subscription is unrelated",
			event:       invoiceEvent(EventInvoicePaid, ""),
			wantStatus:  domain.StatusCanceled,
			wantOutcome: OutcomeSkipped,
			wantPeriod:  true,
		},
		{
			name:        "failed invoice without subscription is unrelated",
			event:       invoiceEvent(EventInvoicePaymentFailed, ""),
			wantStatus:  domain.StatusCanceled,
			wantOutcome: OutcomeSkipped,
			wantPeriod:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.store.seed(domain.SubscriptionRecord{
				TenantID:               tenantT,
				Tier:                   domain.TierPremium,
				Status:                 domain.StatusCanceled,
				ExternalSubscriptionID: "sub_S1",
				PeriodEndsAt:           &end,
			})

			res, err := h.r.Dispatch(context.Background(), tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOutcome, res.Outcome)

			rec := h.store.get(tenantT)
			assert.Equal(t, tt.wantStatus, rec.Status)
			assert.Equal(t, domain.TierPremium, rec.Tier, "invoices never change the tier")
			assert.Equal(t, tt.wantPeriod, rec.PeriodEndsAt != nil)
		})
	}
}

func TestLookupMiss_Acknowledged(t *testing.T) {
	h := newHarness(t)
	h.seedTrial(tenantT)

	res, err := h.r.Dispatch(context.Background(), invoiceEvent(EventInvoicePaymentFailed, "sub_unknown"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeLookupMiss, res.Outcome)
	assert.Equal(t, domain.StatusTrial, h.store.get(tenantT).Status)
	assert.Empty(t, h.publisher.changes)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.LookupMisses.WithLabelValues(string(FamilyRecurringPaymentFail))))
}

func TestUnhandledEventType_NoWrites(t *testing.T) {
	h := newHarness(t)
	h.seedTrial(tenantT)

	res, err := h.r.Dispatch(context.Background(), event("evt_x", "customer.created", `{"id":"cus_1"}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnhandled, res.Outcome)
	assert.Equal(t, 0, h.store.writes)
	assert.False(t, h.r.Handles("customer.created"))
	assert.True(t, h.r.Handles(EventSubscriptionDeleted))
}

func TestIntegrityFault(t *testing.T) {
	h := newHarness(t)
	h.store.forceRows["sub_dup"] = 2

	res, err := h.r.Dispatch(context.Background(), subscriptionEvent(EventSubscriptionDeleted, "sub_dup", "canceled", periodEndE.Unix()))
	var fault *IntegrityFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, int64(2), fault.Rows)
	assert.Equal(t, "external_subscription_id", fault.Key)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.True(t, domain.IsCode(AsDomainError(err), domain.EINTEGRITY))

	require.Len(t, h.reporter.errs, 1)
	assert.Equal(t, "external_subscription_id", h.reporter.tags[0]["lookup_key"])
	assert.Empty(t, h.publisher.changes)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.IntegrityFaults.WithLabelValues(string(FamilySubscriptionDeleted))))
}

func TestStoreError_IsInternal(t *testing.T) {
	h := newHarness(t)
	h.store.forceErr = errors.New("context deadline exceeded")

	_, err := h.r.Dispatch(context.Background(), invoiceEvent(EventInvoicePaid, "sub_S1"))
	require.Error(t, err)
	assert.True(t, domain.IsCode(AsDomainError(err), domain.EINTERNAL))
	assert.Equal(t, 1, h.store.writes, "a failed write is not retried")
}

func TestPublishFailureDoesNotFailEvent(t *testing.T) {
	h := newHarness(t)
	h.seedTrial(tenantT)
	h.publisher.err = errors.New("nats: connection closed")

	res, err := h.r.Dispatch(context.Background(), checkoutEvent(tenantT.String(), "cus_C1", "sub_S1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
}

func TestMalformedObject(t *testing.T) {
	h := newHarness(t)

	_, err := h.r.Dispatch(context.Background(), event("evt_bad", EventSubscriptionUpdated, `{"id": 42}`))
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.EINVALID))

	_, err = h.r.Dispatch(context.Background(), stripe.Event{ID: "evt_empty", Type: EventInvoicePaid})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.EINVALID))
}

func sign(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	}).Header
}

func envelope(t *testing.T, ev stripe.Event) []byte {
	t.Helper()
	payload := fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"created":%d,"api_version":%q,"data":{"object":%s}}`,
		ev.ID, ev.Type, ev.Created, stripe.APIVersion, ev.Data.Raw)
	return []byte(payload)
}

func TestIngest_Signature(t *testing.T) {
	payload := func(t *testing.T) []byte {
		return envelope(t, subscriptionEvent(EventSubscriptionDeleted, "sub_S1", "canceled", periodEndE.Unix()))
	}

	tests := []struct {
		name      string
		signature func(t *testing.T, body []byte) string
		wantSig   bool
	}{
		{"valid", func(t *testing.T, body []byte) string { return sign(t, body, webhookSecret) }, false},
		{"missing", func(t *testing.T, body []byte) string { return "" }, true},
		{"wrong secret", func(t *testing.T, body []byte) string { return sign(t, body, "whsec_attacker") }, true},
		{"garbage", func(t *testing.T, body []byte) string { return "t=1,v1=deadbeef" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.store.seed(domain.SubscriptionRecord{TenantID: tenantT, Tier: domain.TierPremium, Status: domain.StatusActive, ExternalSubscriptionID: "sub_S1"})
			body := payload(t)

			res, err := h.r.Ingest(context.Background(), body, tt.signature(t, body))
			if tt.wantSig {
				var sigErr *SignatureError
				require.ErrorAs(t, err, &sigErr)
				assert.Equal(t, OutcomeFailed, res.Outcome)
				assert.Equal(t, 0, h.store.writes, "no writes on a bad signature")
				assert.Equal(t, domain.StatusActive, h.store.get(tenantT).Status)
				assert.True(t, domain.IsCode(AsDomainError(err), domain.EINVALID))
				assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SignatureRejects))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, OutcomeApplied, res.Outcome)
			assert.Equal(t, domain.StatusCanceled, h.store.get(tenantT).Status)
		})
	}
}

func TestIngest_SignedButMalformed(t *testing.T) {
	h := newHarness(t)
	body := []byte(`{"id":`)

	_, err := h.r.Ingest(context.Background(), body, sign(t, body, webhookSecret))
	require.Error(t, err)
	var sigErr *SignatureError
	assert.False(t, errors.As(err, &sigErr))
	assert.True(t, domain.IsCode(AsDomainError(err), domain.EINVALID))
}
