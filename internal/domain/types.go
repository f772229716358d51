package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// StoreStatus enumerates lifecycle states for reseller storefronts.
type StoreStatus string

const (
	// StoreStatusActive indicates the store accepts orders.
	StoreStatusActive StoreStatus = "active"
	// StoreStatusSuspended indicates the store is temporarily blocked from ordering.
	StoreStatusSuspended StoreStatus = "suspended"
	// StoreStatusClosed indicates the store has been shut down permanently.
	StoreStatusClosed StoreStatus = "closed"
)

// Store represents a reseller-owned storefront within the marketplace.
type Store struct {
	ID         string
	ResellerID string
	Name       string
	Slug       string
	Status     StoreStatus
	Region     string
	Currency   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SubscriptionStatus enumerates billing states for a reseller subscription.
type SubscriptionStatus string

const (
	// SubscriptionStatusActive indicates the subscription is paid up and usable.
	SubscriptionStatusActive SubscriptionStatus = "active"
	// SubscriptionStatusPastDue indicates payment is overdue; ordering is blocked.
	SubscriptionStatusPastDue SubscriptionStatus = "past_due"
	// SubscriptionStatusCanceled indicates the subscription has ended.
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Subscription captures the plan limits attached to a reseller account.
type Subscription struct {
	Plan              string
	Status            SubscriptionStatus
	MonthlyOrderLimit int
	RenewsAt          *time.Time
}

// Reseller represents the merchant account that owns one or more stores.
type Reseller struct {
	ID           string
	Name         string
	Status       string
	Subscription Subscription
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SupplierStatus enumerates onboarding/KYC states for suppliers.
type SupplierStatus string

const (
	// SupplierStatusActive indicates the supplier passed vetting and can fulfil orders.
	SupplierStatusActive SupplierStatus = "active"
	// SupplierStatusPending indicates the supplier is awaiting vetting.
	SupplierStatusPending SupplierStatus = "pending"
	// SupplierStatusSuspended indicates the supplier is blocked from new orders.
	SupplierStatusSuspended SupplierStatus = "suspended"
)

// SupplierTier describes contractual order-value constraints for a supplier.
type SupplierTier struct {
	Name            string
	MinOrderValue   int64
	MonthlyValueCap int64
}

// Supplier represents a product source fulfilling reseller orders.
type Supplier struct {
	ID        string
	Name      string
	Status    SupplierStatus
	Region    string
	Tier      SupplierTier
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Product represents a supplier catalog entry resellers can list.
type Product struct {
	ID         string
	SupplierID string
	BrandID    string
	CategoryID string
	Name       string
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Variant represents a sellable variation of a product.
type Variant struct {
	ID           string
	ProductID    string
	SKU          string
	Name         string
	SupplierCost int64
	WeightGrams  *int
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ResellerProduct binds a store's selling price to a specific supplier variant.
type ResellerProduct struct {
	ID          string
	StoreID     string
	ProductID   string
	VariantID   string
	SupplierID  string
	Price       int64
	Margin      int64
	SyncedStock int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// InventoryKey identifies the stock row shared by concurrent checkouts.
type InventoryKey struct {
	StoreID    string
	SupplierID string
	VariantID  string
}

// InventoryStock tracks stock counters per (store, supplier, variant).
// Invariant after every mutation: Available + Reserved == Total, all fields >= 0.
type InventoryStock struct {
	StoreID    string
	SupplierID string
	VariantID  string
	Total      int
	Available  int
	Reserved   int
	UpdatedAt  time.Time
}

// ReservationStatus enumerates the reservation state machine.
type ReservationStatus string

const (
	// ReservationStatusReserved indicates stock is held pending order commit.
	ReservationStatusReserved ReservationStatus = "reserved"
	// ReservationStatusConfirmed indicates the hold was bound to a committed order. Terminal.
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	// ReservationStatusReleased indicates the hold was explicitly returned to stock. Terminal.
	ReservationStatusReleased ReservationStatus = "released"
	// ReservationStatusExpired indicates the TTL sweep returned the hold to stock. Terminal.
	ReservationStatusExpired ReservationStatus = "expired"
)

// Reservation is a time-bounded hold on supplier stock for a single cart line.
// At most one reservation in the reserved state exists per (store, cart, reseller product).
type Reservation struct {
	ID                string
	StoreID           string
	CartID            string
	OrderID           *string
	ResellerProductID string
	ProductID         string
	VariantID         string
	SupplierID        string
	Quantity          int
	Status            ReservationStatus
	PaymentKind       PaymentMethod
	ExpiresAt         time.Time
	ReleaseReason     *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RuleScope enumerates rule specificity levels, least specific first.
type RuleScope string

const (
	// RuleScopeGlobal applies to every line in the store.
	RuleScopeGlobal RuleScope = "global"
	// RuleScopeCategory applies to lines whose product belongs to the category.
	RuleScopeCategory RuleScope = "category"
	// RuleScopeBrand applies to lines whose product belongs to the brand.
	RuleScopeBrand RuleScope = "brand"
	// RuleScopeProduct applies to lines for the product.
	RuleScopeProduct RuleScope = "product"
	// RuleScopeVariant applies to lines for the exact variant.
	RuleScopeVariant RuleScope = "variant"
)

// RateKind distinguishes flat amounts from percentages.
type RateKind string

const (
	// RateKindAmount expresses the value in minor currency units.
	RateKindAmount RateKind = "amount"
	// RateKindPercentage expresses the value in basis points.
	RateKindPercentage RateKind = "percentage"
)

// RateValue is a flat amount in minor units or a percentage in basis points,
// depending on Kind.
type RateValue struct {
	Kind  RateKind
	Value int64
}

// MarkupRule bounds the selling price relative to supplier cost. Rules are
// admin-authored and platform-wide; region-scoped rules outrank region-less
// rules of the same scope.
type MarkupRule struct {
	ID        string
	Scope     RuleScope
	ScopeRef  string
	Region    string
	MinMarkup RateValue
	MaxMarkup *RateValue
	Priority  int
	Active    bool
	StartsAt  *time.Time
	EndsAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PricingRule bounds the selling price via minimum margin and optional absolute
// selling-price limits. Pricing rules carry no region dimension.
type PricingRule struct {
	ID              string
	Scope           RuleScope
	ScopeRef        string
	MinMargin       RateValue
	MinSellingPrice *int64
	MaxSellingPrice *int64
	Priority        int
	Active          bool
	StartsAt        *time.Time
	EndsAt          *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Promotion is an admin-authored automatic discount scoped to part of the catalog.
// Percentage values apply to the line base price.
type Promotion struct {
	ID        string
	Name      string
	Scope     RuleScope
	ScopeRef  string
	Discount  RateValue
	Priority  int
	Active    bool
	StartsAt  time.Time
	EndsAt    time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Coupon is a customer-entered discount code. Percentage values apply to the
// eligible cart subtotal after promotions.
type Coupon struct {
	ID               string
	StoreID          string
	Code             string
	Discount         RateValue
	Scope            RuleScope
	ScopeRef         string
	MinOrderValue    *int64
	UsageLimit       *int
	PerCustomerLimit *int
	UsedCount        int
	Active           bool
	StartsAt         time.Time
	EndsAt           time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CouponUsage aggregates redemptions of a coupon by a single customer.
type CouponUsage struct {
	CouponID   string
	CustomerID string
	Count      int
	LastUsedAt time.Time
}

// PaymentMethod enumerates supported tender types for order creation.
type PaymentMethod string

const (
	// PaymentMethodCard indicates online card payment via the payment provider.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodCOD indicates cash on delivery.
	PaymentMethodCOD PaymentMethod = "cod"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits online payment.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusCODPending indicates a cash-on-delivery order awaits human confirmation.
	OrderStatusCODPending OrderStatus = "cod_pending"
	// OrderStatusPaid indicates payment succeeded.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusConfirmed indicates the order was accepted for fulfilment.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates suppliers are preparing shipments.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates all shipments have left their origins.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the customer received the order.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is the durable aggregate produced by order creation. The creation
// pipeline writes it exactly once; later stages own all further mutation.
type Order struct {
	ID                  string
	Number              string
	StoreID             string
	ResellerID          string
	CustomerID          *string
	CartID              string
	Status              OrderStatus
	PaymentMethod       PaymentMethod
	Currency            string
	Items               []OrderItem
	Totals              OrderTotals
	ShippingAddress     Address
	CustomerNote        *string
	CouponCode          *string
	TaxSnapshot         TaxSnapshot
	ShippingSnapshot    ShippingSnapshot
	CourierSnapshot     CourierSnapshot
	FulfillmentSnapshot FulfillmentSnapshot
	ReservationIDs      []string
	Metadata            map[string]any
	PlacedAt            time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// OrderItem mirrors a cart line at the moment of order creation.
// Invariants: TotalPrice == UnitPrice * Quantity, with Discount recorded
// separately; UnitPrice >= PriceFloor as resolved at creation time.
type OrderItem struct {
	ProductID         string
	VariantID         string
	ResellerProductID string
	SupplierID        string
	SKU               string
	Name              string
	Quantity          int
	UnitPrice         int64
	SupplierCost      int64
	TotalPrice        int64
	PriceFloor        int64
	Discount          int64
	PromotionID       *string
}

// OrderTotals holds rolled-up monetary fields in the smallest currency unit.
type OrderTotals struct {
	Subtotal   int64
	Discount   int64
	Tax        int64
	Shipping   int64
	GrandTotal int64
}

// TaxLine captures a single tax component within a snapshot.
type TaxLine struct {
	Name      string
	RateBasis int64
	Amount    int64
}

// TaxSnapshot is the immutable tax computation stored on the order.
type TaxSnapshot struct {
	Profile      string
	Region       string
	Lines        []TaxLine
	Total        int64
	Currency     string
	CalculatedAt time.Time
}

// ShippingSnapshot is the immutable shipping quote stored on the order.
type ShippingSnapshot struct {
	Zone         string
	Method       string
	WeightGrams  int
	Amount       int64
	Currency     string
	EstimateDays *int
	CalculatedAt time.Time
}

// CourierAssignment binds one fulfilment leg to a courier service.
type CourierAssignment struct {
	SupplierID string
	Courier    string
	Service    string
}

// CourierSnapshot is the immutable courier assignment stored on the order.
type CourierSnapshot struct {
	Assignments []CourierAssignment
	AssignedAt  time.Time
}

// FulfillmentLine identifies a routed cart line within a leg.
type FulfillmentLine struct {
	ResellerProductID string
	VariantID         string
	Quantity          int
}

// FulfillmentLeg groups cart lines shipped together from one supplier origin.
type FulfillmentLeg struct {
	SupplierID string
	Origin     string
	Lines      []FulfillmentLine
}

// FulfillmentSnapshot is the immutable routing decision stored on the order.
type FulfillmentSnapshot struct {
	Legs     []FulfillmentLeg
	RoutedAt time.Time
}

// Address represents postal address structures shared by order and checkout layers.
type Address struct {
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	State      *string
	PostalCode string
	Country    string
	Phone      *string
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// AuditLogEntry stores normalized audit information for admin use.
type AuditLogEntry struct {
	ID        string
	Actor     string
	ActorType string
	Action    string
	TargetRef string
	Metadata  map[string]any
	Diff      map[string]any
	IPHash    string
	UserAgent string
	Severity  string
	RequestID string
	CreatedAt time.Time
}
