package repositories

import (
	"context"
	"time"

	domain "github.com/ordermesh/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Stores() StoreRepository
	Resellers() ResellerRepository
	Suppliers() SupplierRepository
	Catalog() CatalogRepository
	ResellerProducts() ResellerProductRepository
	MarkupRules() MarkupRuleRepository
	PricingRules() PricingRuleRepository
	Promotions() PromotionRepository
	Coupons() CouponRepository
	Orders() OrderRepository
	Inventory() InventoryRepository
	Counters() CounterRepository
	AuditLogs() AuditLogRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
// Write methods invoked inside fn join the ambient transaction. Writes are buffered until
// commit, so reads issued inside fn never observe writes from the same fn.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// StoreRepository reads reseller storefront records.
type StoreRepository interface {
	FindByID(ctx context.Context, storeID string) (domain.Store, error)
	ListByReseller(ctx context.Context, resellerID string, pager domain.Pagination) (domain.CursorPage[domain.Store], error)
}

// ResellerRepository reads reseller accounts and their subscription state.
type ResellerRepository interface {
	FindByID(ctx context.Context, resellerID string) (domain.Reseller, error)
}

// SupplierRepository reads supplier accounts and tier terms.
type SupplierRepository interface {
	FindByID(ctx context.Context, supplierID string) (domain.Supplier, error)
}

// CatalogRepository reads supplier products and their variants.
type CatalogRepository interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	// GetVariant retrieves a variant scoped to its parent product. Should return a
	// RepositoryError with IsNotFound when the variant is absent or belongs elsewhere.
	GetVariant(ctx context.Context, productID string, variantID string) (domain.Variant, error)
	ListVariants(ctx context.Context, productID string) ([]domain.Variant, error)
}

// ResellerProductRepository reads and maintains store listings of supplier variants.
type ResellerProductRepository interface {
	FindByID(ctx context.Context, resellerProductID string) (domain.ResellerProduct, error)
	FindByStoreAndVariant(ctx context.Context, storeID string, variantID string) (domain.ResellerProduct, error)
	// Deactivate clears the active flag, used when supplier stock for the listing is depleted.
	Deactivate(ctx context.Context, resellerProductID string, reason string, now time.Time) error
}

// RuleScopeRefs names the scope identifiers a cart line resolves rules against.
// Empty fields skip that scope level.
type RuleScopeRefs struct {
	VariantID  string
	ProductID  string
	BrandID    string
	CategoryID string
	Region     string
}

// MarkupRuleRepository fetches candidate markup rules for precedence resolution.
type MarkupRuleRepository interface {
	// FindCandidates returns every active rule whose scope matches one of the refs,
	// including global rules. Precedence is decided by the caller.
	FindCandidates(ctx context.Context, refs RuleScopeRefs, now time.Time) ([]domain.MarkupRule, error)
}

// PricingRuleRepository fetches candidate pricing rules for precedence resolution.
type PricingRuleRepository interface {
	FindCandidates(ctx context.Context, refs RuleScopeRefs, now time.Time) ([]domain.PricingRule, error)
}

// PromotionRepository fetches active promotions by scope.
type PromotionRepository interface {
	FindCandidates(ctx context.Context, refs RuleScopeRefs, now time.Time) ([]domain.Promotion, error)
}

// CouponRepository reads coupon definitions and records redemptions.
type CouponRepository interface {
	// FindByCode looks up a store's coupon by its normalized code.
	FindByCode(ctx context.Context, storeID string, code string) (domain.Coupon, error)
	// GetUsage returns the per-customer usage record. Should return a RepositoryError
	// with IsNotFound when the customer has never redeemed the coupon.
	GetUsage(ctx context.Context, couponID string, customerID string) (domain.CouponUsage, error)
	// VerifyRedeemable re-checks the usage limits against the current counters,
	// returning a CouponError with a limit code when either is exhausted. Joins
	// the ambient transaction and must run in its read phase, so a concurrent
	// redemption forces a retry instead of overshooting the limit.
	VerifyRedeemable(ctx context.Context, couponID string, customerID string) error
	// RecordRedemption increments the coupon and per-customer usage counters.
	// Joins the ambient transaction when one is present.
	RecordRedemption(ctx context.Context, redemption CouponRedemption) error
}

// CouponRedemption captures one coupon application at order commit.
type CouponRedemption struct {
	CouponID   string
	CustomerID string
	OrderID    string
	Now        time.Time
}

// OrderRepository persists order aggregates and provides store-scoped queries.
type OrderRepository interface {
	// Insert writes a new order document. Joins the ambient transaction when one is present.
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	StoreID    string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// InventoryRepository manages stock rows and reservation lifecycle with transactional guarantees.
type InventoryRepository interface {
	// Reserve atomically places holds for every line or none. Stock invariants
	// (available + reserved == total, all >= 0) hold after the call regardless of outcome.
	Reserve(ctx context.Context, req InventoryReserveRequest) (InventoryReserveResult, error)
	// GetReservations loads reservation documents by id, honoring the ambient transaction
	// so callers can re-check state inside a commit.
	GetReservations(ctx context.Context, reservationIDs []string) ([]domain.Reservation, error)
	// ConfirmReservations flips reserved holds to confirmed and binds the order id.
	// Joins the ambient transaction; callers must have read the reservations in the same
	// transaction and verified every status is reserved.
	ConfirmReservations(ctx context.Context, req InventoryConfirmRequest) error
	// Release returns held quantities to availability and marks the holds released.
	Release(ctx context.Context, req InventoryReleaseRequest) (InventoryReleaseResult, error)
	// ExpireDue transitions lapsed holds to expired, one transaction per hold with a
	// status re-check so a racing confirm wins at most once.
	ExpireDue(ctx context.Context, now time.Time, limit int) (InventorySweepResult, error)
	GetStock(ctx context.Context, key domain.InventoryKey) (domain.InventoryStock, error)
}

// InventoryReserveRequest encapsulates an all-or-nothing multi-line hold.
type InventoryReserveRequest struct {
	StoreID   string
	CartID    string
	Payment   domain.PaymentMethod
	Lines     []InventoryReserveLine
	ExpiresAt time.Time
	Now       time.Time
}

// InventoryReserveLine is one cart line to hold.
type InventoryReserveLine struct {
	ResellerProductID string
	ProductID         string
	VariantID         string
	SupplierID        string
	Quantity          int
}

// InventoryReserveResult returns created holds and updated stock projections.
type InventoryReserveResult struct {
	Reservations []domain.Reservation
	Stocks       map[domain.InventoryKey]domain.InventoryStock
	// Depleted lists stock rows whose availability reached zero in this call.
	Depleted []domain.InventoryKey
}

// InventoryConfirmRequest finalises holds for a committed order.
type InventoryConfirmRequest struct {
	ReservationIDs []string
	OrderID        string
	Now            time.Time
}

// InventoryReleaseRequest restores reserved stock back to availability.
type InventoryReleaseRequest struct {
	ReservationIDs []string
	Reason         string
	Now            time.Time
}

// InventoryReleaseResult reports the holds and stock metrics after release.
type InventoryReleaseResult struct {
	Released []domain.Reservation
	Stocks   map[domain.InventoryKey]domain.InventoryStock
}

// InventorySweepResult summarises one expiry sweep pass.
type InventorySweepResult struct {
	Scanned int
	Expired int
	// Skipped counts holds that changed state between the scan and the per-hold transaction.
	Skipped int
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Current(ctx context.Context, counterID string) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

// AuditLogFilter narrows audit trail listings.
type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	ActorType  string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
