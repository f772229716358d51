package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/ordermesh/api/internal/domain"
)

type stubCounterService struct {
	nextFn          func(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error)
	orderNumberFn   func(ctx context.Context, storeID string) (string, error)
	monthlyOrders   map[string]int64
	monthlyValue    map[string]int64
	incrementedFor  []string
	addedValueFor   []string
	monthlyOrderErr error
}

func (s *stubCounterService) Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, scope, name, opts)
	}
	return CounterValue{Value: 1}, nil
}

func (s *stubCounterService) NextOrderNumber(ctx context.Context, storeID string) (string, error) {
	if s.orderNumberFn != nil {
		return s.orderNumberFn(ctx, storeID)
	}
	return "SO-000001", nil
}

func (s *stubCounterService) MonthlyOrderCount(ctx context.Context, resellerID string, month time.Time) (int64, error) {
	if s.monthlyOrderErr != nil {
		return 0, s.monthlyOrderErr
	}
	return s.monthlyOrders[resellerID], nil
}

func (s *stubCounterService) IncrementMonthlyOrders(ctx context.Context, resellerID string, month time.Time) (int64, error) {
	s.incrementedFor = append(s.incrementedFor, resellerID)
	return s.monthlyOrders[resellerID] + 1, nil
}

func (s *stubCounterService) MonthlySupplierValue(ctx context.Context, supplierID string, month time.Time) (int64, error) {
	return s.monthlyValue[supplierID], nil
}

func (s *stubCounterService) AddMonthlySupplierValue(ctx context.Context, supplierID string, month time.Time, amount int64) (int64, error) {
	s.addedValueFor = append(s.addedValueFor, supplierID)
	return s.monthlyValue[supplierID] + amount, nil
}

func newTestTierGuard(t *testing.T, counters *stubCounterService) TierGuard {
	t.Helper()
	guard, err := NewTierGuard(TierGuardDeps{
		Counters: counters,
		Clock:    func() time.Time { return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new tier guard: %v", err)
	}
	return guard
}

func activeReseller(limit int) domain.Reseller {
	return domain.Reseller{
		ID: "reseller-1",
		Subscription: domain.Subscription{
			Plan:              "growth",
			Status:            domain.SubscriptionStatusActive,
			MonthlyOrderLimit: limit,
		},
	}
}

func TestCanPlaceOrder(t *testing.T) {
	cases := []struct {
		name       string
		reseller   domain.Reseller
		used       int64
		wantReason string
	}{
		{name: "active under quota", reseller: activeReseller(100), used: 99},
		{name: "unlimited plan", reseller: activeReseller(0), used: 100000},
		{
			name:       "quota reached",
			reseller:   activeReseller(100),
			used:       100,
			wantReason: ReasonOrderQuotaExceeded,
		},
		{
			name: "past due subscription",
			reseller: domain.Reseller{
				ID:           "reseller-1",
				Subscription: domain.Subscription{Status: domain.SubscriptionStatusPastDue, MonthlyOrderLimit: 100},
			},
			wantReason: ReasonSubscriptionInactive,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			counters := &stubCounterService{monthlyOrders: map[string]int64{"reseller-1": tc.used}}
			guard := newTestTierGuard(t, counters)

			err := guard.CanPlaceOrder(context.Background(), tc.reseller)
			if tc.wantReason == "" {
				if err != nil {
					t.Fatalf("expected order allowed, got %v", err)
				}
				return
			}
			var validation *ValidationError
			if !errors.As(err, &validation) || validation.Reason != tc.wantReason {
				t.Fatalf("expected reason %s, got %v", tc.wantReason, err)
			}
		})
	}
}

func TestCheckSupplierOrderValue(t *testing.T) {
	supplier := domain.Supplier{
		ID:     "sup-1",
		Status: domain.SupplierStatusActive,
		Tier:   domain.SupplierTier{Name: "silver", MinOrderValue: 5000, MonthlyValueCap: 100000},
	}

	cases := []struct {
		name       string
		supplier   domain.Supplier
		used       int64
		orderValue int64
		wantReason string
	}{
		{name: "within tier terms", supplier: supplier, used: 50000, orderValue: 20000},
		{name: "exactly at cap", supplier: supplier, used: 90000, orderValue: 10000},
		{
			name:       "below minimum order value",
			supplier:   supplier,
			orderValue: 4999,
			wantReason: ReasonSupplierMinOrderValue,
		},
		{
			name:       "exceeds monthly cap",
			supplier:   supplier,
			used:       95000,
			orderValue: 10000,
			wantReason: ReasonSupplierMonthlyCap,
		},
		{
			name: "suspended supplier",
			supplier: domain.Supplier{
				ID:     "sup-1",
				Status: domain.SupplierStatusSuspended,
				Tier:   domain.SupplierTier{},
			},
			orderValue: 10000,
			wantReason: ReasonSupplierInactive,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			counters := &stubCounterService{monthlyValue: map[string]int64{"sup-1": tc.used}}
			guard := newTestTierGuard(t, counters)

			err := guard.CheckSupplierOrderValue(context.Background(), tc.supplier, tc.orderValue)
			if tc.wantReason == "" {
				if err != nil {
					t.Fatalf("expected order value accepted, got %v", err)
				}
				return
			}
			var validation *ValidationError
			if !errors.As(err, &validation) || validation.Reason != tc.wantReason {
				t.Fatalf("expected reason %s, got %v", tc.wantReason, err)
			}
		})
	}
}

func TestCanPlaceOrderPropagatesCounterFailure(t *testing.T) {
	counters := &stubCounterService{monthlyOrderErr: NewTransientError("counter read", errors.New("unavailable"))}
	guard := newTestTierGuard(t, counters)

	err := guard.CanPlaceOrder(context.Background(), activeReseller(100))
	var transient *TransientDependencyError
	if !errors.As(err, &transient) {
		t.Fatalf("expected transient dependency error, got %v", err)
	}
}
