package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/ordermesh/api/internal/domain"
)

// TierGuardDeps bundles collaborators required to construct a tier guard.
type TierGuardDeps struct {
	Counters CounterService
	Clock    func() time.Time
}

type tierGuard struct {
	counters CounterService
	clock    func() time.Time
}

// NewTierGuard constructs the subscription and supplier tier enforcement.
func NewTierGuard(deps TierGuardDeps) (TierGuard, error) {
	if deps.Counters == nil {
		return nil, errors.New("tier guard: counter service is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &tierGuard{
		counters: deps.Counters,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// CanPlaceOrder enforces the reseller's subscription state and monthly order
// quota. A zero quota means unlimited.
func (g *tierGuard) CanPlaceOrder(ctx context.Context, reseller domain.Reseller) error {
	if reseller.Subscription.Status != domain.SubscriptionStatusActive {
		return NewValidationError(ReasonSubscriptionInactive, "",
			fmt.Sprintf("subscription is %s", reseller.Subscription.Status))
	}
	limit := reseller.Subscription.MonthlyOrderLimit
	if limit <= 0 {
		return nil
	}
	count, err := g.counters.MonthlyOrderCount(ctx, reseller.ID, g.clock())
	if err != nil {
		return err
	}
	if count >= int64(limit) {
		return NewValidationError(ReasonOrderQuotaExceeded, "",
			fmt.Sprintf("monthly order limit of %d reached", limit))
	}
	return nil
}

// CheckSupplierOrderValue enforces supplier tier terms once the per-supplier
// order value is known from pricing. Zero limits mean no constraint.
func (g *tierGuard) CheckSupplierOrderValue(ctx context.Context, supplier domain.Supplier, orderValue int64) error {
	if supplier.Status != domain.SupplierStatusActive {
		return NewValidationError(ReasonSupplierInactive, "",
			fmt.Sprintf("supplier %s is %s", supplier.ID, supplier.Status))
	}
	if supplier.Tier.MinOrderValue > 0 && orderValue < supplier.Tier.MinOrderValue {
		return NewValidationError(ReasonSupplierMinOrderValue, "",
			fmt.Sprintf("supplier %s requires a minimum order value of %d", supplier.ID, supplier.Tier.MinOrderValue))
	}
	if supplier.Tier.MonthlyValueCap > 0 {
		used, err := g.counters.MonthlySupplierValue(ctx, supplier.ID, g.clock())
		if err != nil {
			return err
		}
		if used+orderValue > supplier.Tier.MonthlyValueCap {
			return NewValidationError(ReasonSupplierMonthlyCap, "",
				fmt.Sprintf("supplier %s monthly value cap of %d would be exceeded", supplier.ID, supplier.Tier.MonthlyValueCap))
		}
	}
	return nil
}
