package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/mesa/internal/domain"
)

type fakeStore struct {
	records map[uuid.UUID]*domain.SubscriptionRecord
}

func newFakeStore(recs ...domain.SubscriptionRecord) *fakeStore {
	s := &fakeStore{records: map[uuid.UUID]*domain.SubscriptionRecord{}}
	for i := range recs {
		r := recs[i]
		s.records[r.TenantID] = &r
	}
	return s
}

func (s *fakeStore) CreateForTenant(ctx context.Context, id uuid.UUID) (int64, error) {
	if _, ok := s.records[id]; ok {
		return 0, nil
	}
	s.records[id] = &domain.SubscriptionRecord{TenantID: id, Tier: domain.TierFree, Status: domain.StatusTrial}
	return 1, nil
}

func (s *fakeStore) SetManualOverride(ctx context.Context, id uuid.UUID, reason string, at time.Time) (int64, error) {
	r, ok := s.records[id]
	if !ok {
		return 0, nil
	}
	r.ManualOverride = domain.ManualOverride{Active: true, Reason: reason, GrantedAt: &at}
	return 1, nil
}

func (s *fakeStore) ClearManualOverride(ctx context.Context, id uuid.UUID) (int64, error) {
	r, ok := s.records[id]
	if !ok {
		return 0, nil
	}
	r.ManualOverride = domain.ManualOverride{}
	return 1, nil
}

func (s *fakeStore) GetByTenant(ctx context.Context, id uuid.UUID) (*domain.SubscriptionRecord, error) {
	r, ok := s.records[id]
	if !ok {
		return nil, domain.NotFound("subscription.get", "tenant", id.String())
	}
	cp := *r
	return &cp, nil
}

var fixedNow = time.Date(2026, 10, 2, 12, 0, 0, 0, time.UTC)

func execute(t *testing.T, store *fakeStore, args ...string) (string, error) {
	t.Helper()
	a := &app{store: store, now: func() time.Time { return fixedNow }}
	cmd := rootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestOverrideGrantAndRevoke(t *testing.T) {
	tenantID := uuid.New()
	store := newFakeStore(domain.SubscriptionRecord{TenantID: tenantID, Tier: domain.TierFree, Status: domain.StatusCanceled})

	out, err := execute(t, store, "override", "grant", tenantID.String(), "--reason", "card replacement")
	require.NoError(t, err)
	assert.Contains(t, out, "override granted")

	rec := store.records[tenantID]
	assert.True(t, rec.ManualOverride.Active)
	assert.Equal(t, "card replacement", rec.ManualOverride.Reason)
	require.NotNil(t, rec.ManualOverride.GrantedAt)
	assert.Equal(t, fixedNow, *rec.ManualOverride.GrantedAt)
	assert.True(t, rec.IsPremium())

	_, err = execute(t, store, "override", "revoke", tenantID.String())
	require.NoError(t, err)
	assert.False(t, store.records[tenantID].ManualOverride.Active)
}

func TestOverrideErrors(t *testing.T) {
	known := uuid.New()
	store := newFakeStore(domain.SubscriptionRecord{TenantID: known})

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing reason", []string{"override", "grant", known.String()}, "--reason is required"},
		{"bad tenant id", []string{"override", "grant", "acme", "-r", "x"}, "invalid tenant id"},
		{"unknown tenant", []string{"override", "revoke", uuid.NewString()}, "no subscription record"},
		{"missing argument", []string{"override", "grant"}, "accepts 1 arg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, store, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTenantCreate(t *testing.T) {
	tenantID := uuid.New()
	store := newFakeStore()

	out, err := execute(t, store, "tenant", "create", tenantID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "created subscription record")
	assert.Equal(t, domain.StatusTrial, store.records[tenantID].Status)

	out, err = execute(t, store, "tenant", "create", tenantID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "already has a subscription record")
}

func TestShow(t *testing.T) {
	tenantID := uuid.New()
	end := fixedNow.Add(72 * time.Hour)
	store := newFakeStore(domain.SubscriptionRecord{
		TenantID:               tenantID,
		Tier:                   domain.TierPremium,
		Status:                 domain.StatusCanceled,
		ExternalCustomerID:     "cus_1",
		ExternalSubscriptionID: "sub_1",
		PeriodEndsAt:           &end,
		UpdatedAt:              fixedNow,
	})

	out, err := execute(t, store, "show", tenantID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "cus_1")
	assert.Contains(t, out, end.Format(time.RFC3339))
	assert.Contains(t, out, "premium")

	out, err = execute(t, store, "show", "--json", tenantID.String())
	require.NoError(t, err)
	var got domain.SubscriptionRecord
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "sub_1", got.ExternalSubscriptionID)
	assert.Equal(t, domain.StatusCanceled, got.Status)
}

func TestMigrateWithoutDatabase(t *testing.T) {
	_, err := execute(t, newFakeStore(), "migrate")
	require.Error(t, err)
}
