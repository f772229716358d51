package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/ordermesh/api/internal/domain"
	"github.com/ordermesh/api/internal/payments"
	"github.com/ordermesh/api/internal/platform/config"
	"github.com/ordermesh/api/internal/platform/idempotency"
	"github.com/ordermesh/api/internal/rates"
	"github.com/ordermesh/api/internal/repositories"
	"github.com/ordermesh/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled via dependency injection in NewContainer.
type Services struct {
	Orders    services.OrderService
	Pricing   services.PricingService
	Inventory services.InventoryService
	Counters  services.CounterService
	Audit     services.AuditLogService
	System    services.SystemService
	Events    services.EventDispatcher
}

// Deps carries the externally constructed collaborators the container cannot
// build itself: storage, the idempotency store, payment providers, and the
// outbound event transport.
type Deps struct {
	Registry    repositories.Registry
	Idempotency idempotency.Store
	// Payments is optional; without it orders commit but no handoff is produced
	// and saved instruments are accepted unverified.
	Payments *payments.Manager
	// Publisher is optional; nil disables order lifecycle events.
	Publisher services.OrderEventPublisher
	Build     services.BuildInfo
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides
// Firestore-backed repositories, while tests can supply in-memory registries.
func NewContainer(_ context.Context, cfg config.Config, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Idempotency == nil {
		return nil, errors.New("idempotency store is required")
	}

	svc, err := buildServices(cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients and background workers.
// The event dispatcher drains before the storage clients close so queued
// envelopes still publish.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var firstErr error
	if c.Services.Events != nil {
		if err := c.Services.Events.Close(ctx); err != nil {
			firstErr = err
		}
	}
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func buildServices(cfg config.Config, deps Deps) (Services, error) {
	reg := deps.Registry
	var svc Services

	auditSvc, err := services.NewAuditLogService(services.AuditLogServiceDeps{
		Repository: reg.AuditLogs(),
		Clock:      time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build audit log service: %w", err)
	}
	svc.Audit = auditSvc

	if deps.Publisher != nil {
		dispatcher, err := services.NewEventDispatcher(services.EventDispatcherDeps{
			Publisher: deps.Publisher,
			Logger:    deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build event dispatcher: %w", err)
		}
		svc.Events = dispatcher
	}

	counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
		Repository: reg.Counters(),
		Clock:      time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build counter service: %w", err)
	}
	svc.Counters = counterSvc

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory: reg.Inventory(),
		Events:    svc.Events,
		CardTTL:   cfg.Reservation.CardTTL,
		CODTTL:    cfg.Reservation.CODTTL,
		Logger:    deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	tierGuard, err := services.NewTierGuard(services.TierGuardDeps{
		Counters: counterSvc,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build tier guard: %w", err)
	}

	resolver, err := services.NewRuleResolver(services.RuleResolverDeps{
		MarkupRules:  reg.MarkupRules(),
		PricingRules: reg.PricingRules(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build rule resolver: %w", err)
	}

	var promotions repositories.PromotionRepository
	if cfg.Features.EnablePromotions {
		promotions = reg.Promotions()
	}
	discounts, err := services.NewDiscountResolver(services.DiscountResolverDeps{
		Promotions: promotions,
		Coupons:    reg.Coupons(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build discount resolver: %w", err)
	}

	pricingSvc, err := services.NewPricingService(services.PricingServiceDeps{
		Resolver:        resolver,
		Discounts:       discounts,
		DefaultCurrency: cfg.Pricing.DefaultCurrency,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing service: %w", err)
	}
	svc.Pricing = pricingSvc

	var verifier services.InstrumentVerifier
	var gateway services.PaymentGateway
	if deps.Payments != nil {
		verifier = deps.Payments
		gateway = deps.Payments
	}
	validator, err := services.NewOrderValidator(services.OrderValidatorDeps{
		Stores:           reg.Stores(),
		Resellers:        reg.Resellers(),
		Suppliers:        reg.Suppliers(),
		Catalog:          reg.Catalog(),
		ResellerProducts: reg.ResellerProducts(),
		TierGuard:        tierGuard,
		Instruments:      verifier,
		SupportedMethods: supportedPaymentMethods(cfg),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order validator: %w", err)
	}

	router, err := services.NewFulfillmentRouter(services.FulfillmentRouterDeps{
		Suppliers: reg.Suppliers(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build fulfillment router: %w", err)
	}

	tax, err := rates.NewTaxCalculator(rates.TaxCalculatorConfig{
		Overrides: cfg.Rates.TaxByRegion,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build tax calculator: %w", err)
	}
	shipping, err := rates.NewShippingCalculator(rates.ShippingCalculatorConfig{
		ZoneByCountry: cfg.Rates.ShippingZoneByCountry,
		BaseByZone:    cfg.Rates.ShippingBaseByZone,
		PerKgByZone:   cfg.Rates.ShippingPerKgByZone,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shipping calculator: %w", err)
	}
	courier, err := rates.NewCourierAssigner(rates.CourierAssignerConfig{
		ZoneByCountry: cfg.Rates.ShippingZoneByCountry,
		CourierByZone: cfg.Rates.CourierByZone,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build courier assigner: %w", err)
	}

	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Build:            deps.Build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Validator:        validator,
		Pricing:          pricingSvc,
		TierGuard:        tierGuard,
		Router:           router,
		Inventory:        inventorySvc,
		Tax:              tax,
		Shipping:         shipping,
		Courier:          courier,
		Counters:         counterSvc,
		Orders:           reg.Orders(),
		Coupons:          reg.Coupons(),
		ResellerProducts: reg.ResellerProducts(),
		Idempotency:      deps.Idempotency,
		UnitOfWork:       reg,
		Events:           svc.Events,
		Audit:            auditSvc,
		Payments:         gateway,

		IdempotencyTTL:    cfg.Idempotency.TTL,
		DefaultItemWeight: cfg.Pricing.DefaultItemWeightGrams,
		Logger:            deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	return svc, nil
}

// supportedPaymentMethods resolves the configured method list, honoring the
// cash-on-delivery feature flag. Card is always available.
func supportedPaymentMethods(cfg config.Config) []domain.PaymentMethod {
	methods := []domain.PaymentMethod{domain.PaymentMethodCard}
	if cfg.Features.EnableCashOnDelivery {
		methods = append(methods, domain.PaymentMethodCOD)
	}
	if len(cfg.Payments.SupportedMethods) == 0 {
		return methods
	}

	allowed := make(map[domain.PaymentMethod]struct{}, len(methods))
	for _, method := range methods {
		allowed[method] = struct{}{}
	}
	configured := make([]domain.PaymentMethod, 0, len(cfg.Payments.SupportedMethods))
	for _, raw := range cfg.Payments.SupportedMethods {
		method := domain.PaymentMethod(raw)
		if _, ok := allowed[method]; ok {
			configured = append(configured, method)
		}
	}
	if len(configured) == 0 {
		return methods
	}
	return configured
}
