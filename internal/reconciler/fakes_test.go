package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/mesa/internal/domain"
)

// memoryStore mirrors the SQL semantics of postgres.SubscriptionStore.
type memoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*domain.SubscriptionRecord
	now     func() time.Time

	writes   int
	forceErr error
	// forceRows overrides the affected row count for subscription-id writes.
	forceRows map[string]int64
}

func newMemoryStore(now func() time.Time) *memoryStore {
	return &memoryStore{
		records:   make(map[uuid.UUID]*domain.SubscriptionRecord),
		now:       now,
		forceRows: make(map[string]int64),
	}
}

func (m *memoryStore) seed(rec domain.SubscriptionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := rec
	m.records[rec.TenantID] = &r
}

func (m *memoryStore) get(id uuid.UUID) domain.SubscriptionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.records[id]
}

func (m *memoryStore) bySubscription(subID string, fn func(r *domain.SubscriptionRecord)) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.forceErr != nil {
		return 0, m.forceErr
	}
	if n, ok := m.forceRows[subID]; ok {
		return n, nil
	}
	var n int64
	for _, r := range m.records {
		if r.ExternalSubscriptionID == subID {
			fn(r)
			r.UpdatedAt = m.now()
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) Activate(ctx context.Context, p domain.ActivateParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.forceErr != nil {
		return 0, m.forceErr
	}
	r, ok := m.records[p.TenantID]
	if !ok {
		return 0, nil
	}
	r.Tier = domain.TierPremium
	r.Status = domain.StatusActive
	if r.ExternalCustomerID == "" {
		r.ExternalCustomerID = p.ExternalCustomerID
	}
	if p.ExternalSubscriptionID != "" {
		r.ExternalSubscriptionID = p.ExternalSubscriptionID
	}
	r.PeriodEndsAt = nil
	r.ManualOverride = domain.ManualOverride{}
	r.UpdatedAt = m.now()
	return 1, nil
}

func (m *memoryStore) MarkPaid(ctx context.Context, subID string) (int64, error) {
	return m.bySubscription(subID, func(r *domain.SubscriptionRecord) {
		r.Status = domain.StatusActive
		r.PeriodEndsAt = nil
	})
}

func (m *memoryStore) SetProviderStatus(ctx context.Context, subID string, status domain.Status, end *time.Time) (int64, error) {
	return m.bySubscription(subID, func(r *domain.SubscriptionRecord) {
		r.Status = status
		r.PeriodEndsAt = end
	})
}

func (m *memoryStore) MarkCanceled(ctx context.Context, subID string, end *time.Time) (int64, error) {
	return m.bySubscription(subID, func(r *domain.SubscriptionRecord) {
		r.Tier = domain.TierFree
		r.Status = domain.StatusCanceled
		r.PeriodEndsAt = end
	})
}

func (m *memoryStore) MarkPastDue(ctx context.Context, subID string) (int64, error) {
	return m.bySubscription(subID, func(r *domain.SubscriptionRecord) {
		r.Status = domain.StatusPastDue
	})
}

func (m *memoryStore) GetByTenant(ctx context.Context, id uuid.UUID) (*domain.SubscriptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, domain.NotFound("subscription.get", "tenant", id.String())
	}
	cp := *r
	return &cp, nil
}

type recordingPublisher struct {
	changes []domain.SubscriptionChanged
	err     error
}

func (p *recordingPublisher) PublishSubscriptionChanged(ctx context.Context, c domain.SubscriptionChanged) error {
	p.changes = append(p.changes, c)
	return p.err
}

type recordingReporter struct {
	errs []error
	tags []map[string]string
}

func (r *recordingReporter) ReportFault(ctx context.Context, err error, tags map[string]string) {
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}
