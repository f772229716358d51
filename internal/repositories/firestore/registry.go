package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/ordermesh/api/internal/platform/firestore"
	"github.com/ordermesh/api/internal/repositories"
)

// Registry bundles every Firestore-backed repository behind the
// repositories.Registry contract.
type Registry struct {
	provider *pfirestore.Provider

	stores           *StoreRepository
	resellers        *ResellerRepository
	suppliers        *SupplierRepository
	catalog          *CatalogRepository
	resellerProducts *ResellerProductRepository
	markupRules      *MarkupRuleRepository
	pricingRules     *PricingRuleRepository
	promotions       *PromotionRepository
	coupons          *CouponRepository
	orders           *OrderRepository
	inventory        *InventoryRepository
	counters         *CounterRepository
	auditLogs        *AuditLogRepository
	health           repositories.HealthRepository
	unitOfWork       *UnitOfWork
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises registry construction.
type RegistryOption func(*Registry)

// WithHealthRepository supplies the dependency-probe health repository built
// by the caller (the probe set depends on what main wires up).
func WithHealthRepository(health repositories.HealthRepository) RegistryOption {
	return func(r *Registry) {
		r.health = health
	}
}

// NewRegistry constructs every Firestore repository against the shared provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	reg := &Registry{provider: provider}
	for _, opt := range opts {
		if opt != nil {
			opt(reg)
		}
	}

	var err error
	if reg.stores, err = NewStoreRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.resellers, err = NewResellerRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.suppliers, err = NewSupplierRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.catalog, err = NewCatalogRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.resellerProducts, err = NewResellerProductRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.markupRules, err = NewMarkupRuleRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.pricingRules, err = NewPricingRuleRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.promotions, err = NewPromotionRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.coupons, err = NewCouponRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.inventory, err = NewInventoryRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.auditLogs, err = NewAuditLogRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.unitOfWork, err = NewUnitOfWork(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return reg, nil
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Stores() repositories.StoreRepository                     { return r.stores }
func (r *Registry) Resellers() repositories.ResellerRepository               { return r.resellers }
func (r *Registry) Suppliers() repositories.SupplierRepository               { return r.suppliers }
func (r *Registry) Catalog() repositories.CatalogRepository                  { return r.catalog }
func (r *Registry) ResellerProducts() repositories.ResellerProductRepository { return r.resellerProducts }
func (r *Registry) MarkupRules() repositories.MarkupRuleRepository           { return r.markupRules }
func (r *Registry) PricingRules() repositories.PricingRuleRepository         { return r.pricingRules }
func (r *Registry) Promotions() repositories.PromotionRepository             { return r.promotions }
func (r *Registry) Coupons() repositories.CouponRepository                   { return r.coupons }
func (r *Registry) Orders() repositories.OrderRepository                     { return r.orders }
func (r *Registry) Inventory() repositories.InventoryRepository              { return r.inventory }
func (r *Registry) Counters() repositories.CounterRepository                 { return r.counters }
func (r *Registry) AuditLogs() repositories.AuditLogRepository               { return r.auditLogs }

// Health returns the dependency-probe repository when one was supplied.
func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx delegates to the registry's unit of work.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.unitOfWork == nil {
		return errors.New("registry not initialised")
	}
	return r.unitOfWork.RunInTx(ctx, fn)
}
