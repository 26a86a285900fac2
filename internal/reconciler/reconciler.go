// Package reconciler applies Stripe billing lifecycle events to the persisted
// subscription state of each tenant.
//
// A Reconciler holds no per-event state. Every write is an unconditional
// field-set scoped by a stable key, so redelivered events converge to the same
// record. Concurrent events for one tenant are last-writer-wins.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/mesa/internal/billing"
	"github.com/dukerupert/mesa/internal/domain"
	"github.com/dukerupert/mesa/internal/telemetry"
)

// Verifier authenticates a raw payload and decodes it into an event.
// It must reject the signature before looking at the payload.
type Verifier interface {
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
}

// Publisher announces applied changes to downstream consumers.
type Publisher interface {
	PublishSubscriptionChanged(ctx context.Context, change domain.SubscriptionChanged) error
}

// FaultReporter surfaces integrity faults outside the log stream.
type FaultReporter interface {
	ReportFault(ctx context.Context, err error, tags map[string]string)
}

// Outcome describes what Dispatch did with an event that did not fail.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeLookupMiss Outcome = "lookup_miss"
	OutcomeUnhandled  Outcome = "unhandled"
	OutcomeFailed     Outcome = "failed"
)

// Result summarises one processed event.
type Result struct {
	EventID   string
	EventType stripe.EventType
	Outcome   Outcome
}

// HandlerFunc applies one event family.
type HandlerFunc func(ctx context.Context, event stripe.Event) (Outcome, error)

type route struct {
	family  Family
	handler HandlerFunc
}

// Reconciler routes verified events to per-family handlers.
type Reconciler struct {
	store     domain.SubscriptionStore
	verifier  Verifier
	publisher Publisher
	faults    FaultReporter
	metrics   *telemetry.WebhookMetrics
	logger    zerolog.Logger
	now       func() time.Time

	routes map[stripe.EventType]route
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithVerifier sets the signature verifier used by Ingest.
func WithVerifier(v Verifier) Option {
	return func(r *Reconciler) { r.verifier = v }
}

// WithPublisher announces applied changes.
func WithPublisher(p Publisher) Option {
	return func(r *Reconciler) { r.publisher = p }
}

// WithFaultReporter reports integrity faults.
func WithFaultReporter(f FaultReporter) Option {
	return func(r *Reconciler) { r.faults = f }
}

// WithMetrics records counters for every dispatched event.
func WithMetrics(m *telemetry.WebhookMetrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithLogger sets the base logger. A request-scoped logger found in the
// context takes precedence.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New builds a Reconciler around store.
func New(store domain.SubscriptionStore, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:  store,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.routes = map[stripe.EventType]route{
		EventCheckoutCompleted:    {FamilyFirstPayment, r.handleCheckoutCompleted},
		EventInvoicePaid:          {FamilyRecurringPayment, r.handleInvoicePaid},
		EventSubscriptionUpdated:  {FamilySubscriptionUpdated, r.handleSubscriptionUpdated},
		EventSubscriptionDeleted:  {FamilySubscriptionDeleted, r.handleSubscriptionDeleted},
		EventInvoicePaymentFailed: {FamilyRecurringPaymentFail, r.handleInvoicePaymentFailed},
	}
	return r
}

// Handles reports whether eventType is in the dispatch table.
func (r *Reconciler) Handles(eventType stripe.EventType) bool {
	_, ok := r.routes[eventType]
	return ok
}

// Ingest verifies payload against signature and dispatches the event.
// Nothing is parsed or written unless the signature checks out.
func (r *Reconciler) Ingest(ctx context.Context, payload []byte, signature string) (Result, error) {
	if signature == "" {
		r.metrics.SignatureRejected()
		return Result{Outcome: OutcomeFailed}, &SignatureError{Err: ErrMissingSignature}
	}
	if r.verifier == nil {
		return Result{Outcome: OutcomeFailed}, errors.New("reconciler: no verifier configured")
	}

	event, err := r.verifier.ConstructEvent(payload, signature)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidWebhookSignature) {
			r.metrics.SignatureRejected()
			return Result{Outcome: OutcomeFailed}, &SignatureError{Err: err}
		}
		return Result{Outcome: OutcomeFailed}, domain.WrapError(err, domain.EINVALID, "webhook.decode", "malformed event payload")
	}

	return r.Dispatch(ctx, event)
}

// Dispatch applies an already verified event. Unknown types, lookup misses and
// events without the reference they need are acknowledged without error.
func (r *Reconciler) Dispatch(ctx context.Context, event stripe.Event) (Result, error) {
	start := r.now()
	eventType := string(event.Type)
	res := Result{EventID: event.ID, EventType: event.Type}
	logger := r.loggerFor(ctx).With().
		Str("event_id", event.ID).
		Str("event_type", eventType).
		Logger()

	r.metrics.Received(eventType)
	defer func() {
		r.metrics.Observe(eventType, string(res.Outcome), r.now().Sub(start))
	}()

	rt, ok := r.routes[event.Type]
	if !ok {
		logger.Debug().Msg("unhandled event type")
		res.Outcome = OutcomeUnhandled
		return res, nil
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		res.Outcome = OutcomeFailed
		return res, domain.Invalid("webhook.decode", "event has no data object")
	}

	outcome, err := rt.handler(logger.WithContext(ctx), event)
	res.Outcome = outcome
	if err == nil {
		switch outcome {
		case OutcomeLookupMiss:
			r.metrics.LookupMiss(string(rt.family))
			logger.Warn().Str("family", string(rt.family)).Msg("no subscription record matched event; acknowledging")
		case OutcomeSkipped:
			logger.Info().Str("family", string(rt.family)).Msg("event carries no subscription reference; skipped")
		default:
			logger.Info().Str("family", string(rt.family)).Msg("event applied")
		}
		return res, nil
	}

	res.Outcome = OutcomeFailed
	var (
		valErr   *ValidationError
		faultErr *IntegrityFault
	)
	switch {
	case errors.As(err, &faultErr):
		r.metrics.IntegrityFault(string(rt.family))
		logger.Error().Err(err).
			Str("key", faultErr.Key).
			Str("value", faultErr.Value).
			Int64("rows", faultErr.Rows).
			Msg("INTEGRITY FAULT: scoped write matched more than one record")
		if r.faults != nil {
			r.faults.ReportFault(ctx, err, map[string]string{
				"event_id":   event.ID,
				"event_type": eventType,
				"lookup_key": faultErr.Key,
			})
		}
	case errors.As(err, &valErr):
		logger.Error().Err(err).
			Str("field", valErr.Field).
			RawJSON("object", event.Data.Raw).
			Msg("event rejected; needs manual reconciliation")
	default:
		logger.Error().Err(err).Msg("failed to apply event")
	}
	r.metrics.Failed(eventType, failureReason(err))
	return res, err
}

func failureReason(err error) string {
	var (
		valErr   *ValidationError
		faultErr *IntegrityFault
	)
	switch {
	case errors.As(err, &faultErr):
		return "integrity_fault"
	case errors.As(err, &valErr):
		return "validation"
	case domain.IsCode(err, domain.EINVALID):
		return "decode"
	default:
		return "store"
	}
}

func (r *Reconciler) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &r.logger
}

// applied converts the affected row count of a scoped write into an outcome.
func (r *Reconciler) applied(event stripe.Event, key, value string, rows int64, err error) (Outcome, error) {
	if err != nil {
		return OutcomeFailed, domain.Internal(err, "webhook.apply", "failed to write subscription")
	}
	switch {
	case rows == 0:
		return OutcomeLookupMiss, nil
	case rows > 1:
		return OutcomeFailed, &IntegrityFault{
			EventID:   event.ID,
			EventType: string(event.Type),
			Key:       key,
			Value:     value,
			Rows:      rows,
		}
	}
	return OutcomeApplied, nil
}

func (r *Reconciler) publish(ctx context.Context, change domain.SubscriptionChanged) {
	if r.publisher == nil {
		return
	}
	change.OccurredAt = r.now().UTC()
	if err := r.publisher.PublishSubscriptionChanged(ctx, change); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to publish subscription change")
	}
}

func decode(event stripe.Event, v interface{}) error {
	if err := json.Unmarshal(event.Data.Raw, v); err != nil {
		return domain.WrapError(err, domain.EINVALID, "webhook.decode", "failed to parse event object")
	}
	return nil
}
