package services

import (
	"context"
	"time"

	domain "github.com/ordermesh/api/internal/domain"
	"github.com/ordermesh/api/internal/payments"
	"github.com/ordermesh/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination          = domain.Pagination
	SortOrder           = domain.SortOrder
	Store               = domain.Store
	Reseller            = domain.Reseller
	Supplier            = domain.Supplier
	Product             = domain.Product
	Variant             = domain.Variant
	ResellerProduct     = domain.ResellerProduct
	InventoryKey        = domain.InventoryKey
	InventoryStock      = domain.InventoryStock
	Reservation         = domain.Reservation
	ReservationStatus   = domain.ReservationStatus
	RuleScope           = domain.RuleScope
	RateValue           = domain.RateValue
	MarkupRule          = domain.MarkupRule
	PricingRule         = domain.PricingRule
	Promotion           = domain.Promotion
	Coupon              = domain.Coupon
	PaymentMethod       = domain.PaymentMethod
	Order               = domain.Order
	OrderItem           = domain.OrderItem
	OrderStatus         = domain.OrderStatus
	OrderTotals         = domain.OrderTotals
	Address             = domain.Address
	TaxSnapshot         = domain.TaxSnapshot
	ShippingSnapshot    = domain.ShippingSnapshot
	CourierSnapshot     = domain.CourierSnapshot
	FulfillmentSnapshot = domain.FulfillmentSnapshot
	FulfillmentLeg      = domain.FulfillmentLeg
	FulfillmentLine     = domain.FulfillmentLine
	PriceBounds         = domain.PriceBounds
	LinePricing         = domain.LinePricing
	CartPricing         = domain.CartPricing
	AdvisoryPrice       = domain.AdvisoryPrice
	SystemHealthReport  = domain.SystemHealthReport
	AuditLogEntry       = domain.AuditLogEntry
)

// OrderListFilter narrows store-scoped order listings.
type OrderListFilter = repositories.OrderListFilter

// AuditLogFilter narrows audit trail listings.
type AuditLogFilter = repositories.AuditLogFilter

// InventorySweepSummary reports the outcome of one reservation expiry pass.
type InventorySweepSummary = repositories.InventorySweepResult

// OrderService is the single entry point for order creation and store-scoped reads.
// CreateOrder runs the full pipeline: idempotency guard, validation, pricing,
// routing, reservation, snapshots, numbering, and the commit transaction.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderResult, error)
	GetOrder(ctx context.Context, storeID string, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
}

// PricingService prices cart lines against resolved bounds and discounts, and
// answers advisory price checks for listing management surfaces.
type PricingService interface {
	PriceCart(ctx context.Context, cmd PriceCartCommand) (CartPricing, error)
	// AdviseListingPrice clamps into bounds instead of rejecting. Never used on
	// the order path, where an out-of-bounds price aborts the pipeline.
	AdviseListingPrice(ctx context.Context, cmd AdvisePriceCommand) (AdvisoryPrice, error)
}

// RuleResolver resolves the markup and pricing rule sets into concrete
// per-line price bounds. Most specific active rule wins.
type RuleResolver interface {
	ResolveMarkupBounds(ctx context.Context, q RuleScopeQuery) (MarkupBounds, error)
	ResolvePricingBounds(ctx context.Context, q RuleScopeQuery) (PricingBounds, error)
	// ResolveBounds combines both rule sets: the floor is the greater of the two
	// floors, the ceiling the lesser of the configured ceilings.
	ResolveBounds(ctx context.Context, q RuleScopeQuery) (PriceBounds, error)
}

// DiscountResolver applies at most one promotion and at most one coupon to the
// cart and re-validates every discounted line against its bounds.
type DiscountResolver interface {
	Resolve(ctx context.Context, req DiscountRequest) (CartPricing, error)
}

// InventoryService fronts the reservation engine: time-bounded holds with
// all-or-nothing placement and single-winner confirm/expire transitions.
type InventoryService interface {
	Reserve(ctx context.Context, cmd InventoryReserveCommand) (InventoryHold, error)
	// Confirm joins the ambient storage transaction so order insert and hold
	// confirmation commit atomically.
	Confirm(ctx context.Context, cmd InventoryConfirmCommand) error
	Release(ctx context.Context, cmd InventoryReleaseCommand) error
	ExpireDue(ctx context.Context, limit int) (InventorySweepSummary, error)
}

// TierGuard enforces reseller subscription state and quota plus supplier tier
// order-value constraints.
type TierGuard interface {
	CanPlaceOrder(ctx context.Context, reseller Reseller) error
	// CheckSupplierOrderValue re-checks tier limits once the per-supplier order
	// value is known from pricing.
	CheckSupplierOrderValue(ctx context.Context, supplier Supplier, orderValue int64) error
}

// FulfillmentRouter assigns each cart line an origin and groups lines into
// shipments per supplier.
type FulfillmentRouter interface {
	RouteCart(ctx context.Context, req RouteRequest) (FulfillmentPlan, error)
}

// TaxCalculator produces the immutable tax snapshot stored on the order.
type TaxCalculator interface {
	Calculate(ctx context.Context, req TaxRequest) (TaxSnapshot, error)
}

// ShippingCalculator produces the immutable shipping quote stored on the order.
type ShippingCalculator interface {
	Quote(ctx context.Context, req ShippingRequest) (ShippingSnapshot, error)
}

// CourierAssigner binds fulfilment legs to courier services.
type CourierAssigner interface {
	Assign(ctx context.Context, req CourierRequest) (CourierSnapshot, error)
}

// CounterService provides collision-free sequence numbers: the per-store order
// number and the monthly usage counters the tier guard reads.
type CounterService interface {
	Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error)
	NextOrderNumber(ctx context.Context, storeID string) (string, error)
	MonthlyOrderCount(ctx context.Context, resellerID string, month time.Time) (int64, error)
	IncrementMonthlyOrders(ctx context.Context, resellerID string, month time.Time) (int64, error)
	MonthlySupplierValue(ctx context.Context, supplierID string, month time.Time) (int64, error)
	AddMonthlySupplierValue(ctx context.Context, supplierID string, month time.Time, amount int64) (int64, error)
}

// AuditLogService centralizes immutable audit log persistence and retrieval.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// SystemService aggregates dependency health for the readiness endpoint.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventPublisher delivers one event envelope to the outbound transport.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}

// EventDispatcher queues event envelopes for asynchronous publication with
// bounded retries and a graceful drain on shutdown.
type EventDispatcher interface {
	Enqueue(ctx context.Context, message OrderEventMessage) error
	Close(ctx context.Context) error
}

// PaymentGateway hands a committed order to the payment layer.
type PaymentGateway interface {
	CreateHandoff(ctx context.Context, method PaymentMethod, req payments.HandoffRequest) (payments.Handoff, error)
}

// InstrumentVerifier checks a saved payment instrument during validation.
type InstrumentVerifier interface {
	VerifyInstrument(ctx context.Context, method PaymentMethod, instrumentID string) error
}

// Event types carried on the order events topic.
const (
	EventTypeOrderCreated      = "ORDER_CREATED"
	EventTypeCartConverted     = "CART_CONVERTED"
	EventTypeInventoryDepleted = "INVENTORY_DEPLETED"
)

// OrderEventMessage is the envelope published for order lifecycle events.
type OrderEventMessage struct {
	EventID    string         `json:"eventId"`
	Type       string         `json:"type"`
	StoreID    string         `json:"storeId"`
	OrderID    string         `json:"orderId,omitempty"`
	CartID     string         `json:"cartId,omitempty"`
	ResellerID string         `json:"resellerId,omitempty"`
	SupplierID string         `json:"supplierId,omitempty"`
	VariantID  string         `json:"variantId,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Command and DTO definitions ------------------------------------------------

// CreateOrderCommand carries one order attempt. Identical commands (same store,
// customer, lines, address, and payment method) share a fingerprint and
// resolve to the same order.
type CreateOrderCommand struct {
	StoreID             string
	CustomerID          string
	CartID              string
	PaymentMethod       PaymentMethod
	PaymentInstrumentID string
	CouponCode          string
	CustomerNote        string
	Lines               []OrderLineInput
	ShippingAddress     Address
	Metadata            map[string]any
}

// OrderLineInput identifies one cart line of the order command.
type OrderLineInput struct {
	ResellerProductID string
	VariantID         string
	Quantity          int
}

// OrderResult is the outcome of CreateOrder. Payment errors after the commit
// never roll the order back; they surface on PaymentErr instead.
type OrderResult struct {
	Order      Order
	Idempotent bool
	Payment    *payments.Handoff
	PaymentErr string
}

// RuleScopeQuery names the scope identifiers one line resolves rules against.
type RuleScopeQuery struct {
	VariantID    string
	ProductID    string
	BrandID      string
	CategoryID   string
	Region       string
	SupplierCost int64
}

// MarkupBounds is the resolved markup floor and optional ceiling for a line.
// A nil Ceiling means no ceiling is configured, not zero.
type MarkupBounds struct {
	Floor   int64
	Ceiling *int64
	RuleID  string
}

// PricingBounds is the resolved margin floor and optional absolute ceiling.
type PricingBounds struct {
	Floor   int64
	Ceiling *int64
	RuleID  string
}

// PriceCartCommand prices the validated cart lines of one order attempt.
type PriceCartCommand struct {
	StoreID    string
	CustomerID string
	Region     string
	Currency   string
	CouponCode string
	Lines      []PriceCartLine
}

// PriceCartLine is one validated, enriched cart line entering the pipeline.
type PriceCartLine struct {
	ResellerProductID string
	ProductID         string
	VariantID         string
	BrandID           string
	CategoryID        string
	SupplierID        string
	SupplierCost      int64
	ListedPrice       int64
	Quantity          int
}

// AdvisePriceCommand asks for the in-bounds price nearest to the requested one.
type AdvisePriceCommand struct {
	StoreID   string
	Requested int64
	Scope     RuleScopeQuery
}

// DiscountRequest carries bounded lines into discount resolution.
type DiscountRequest struct {
	StoreID    string
	CustomerID string
	CouponCode string
	Currency   string
	Lines      []DiscountLine
}

// DiscountLine is one line with its resolved bounds and base price.
type DiscountLine struct {
	ResellerProductID string
	Scope             RuleScopeQuery
	BasePrice         int64
	Quantity          int
	Bounds            PriceBounds
}

// InventoryReserveCommand places all-or-nothing holds for every line.
type InventoryReserveCommand struct {
	StoreID string
	CartID  string
	Payment PaymentMethod
	Lines   []InventoryLine
}

// InventoryLine is one cart line to hold.
type InventoryLine struct {
	ResellerProductID string
	ProductID         string
	VariantID         string
	SupplierID        string
	Quantity          int
}

// InventoryHold summarises placed reservations.
type InventoryHold struct {
	ReservationIDs []string
	Reservations   []Reservation
	ExpiresAt      time.Time
	// Depleted lists stock rows whose availability reached zero in this call.
	Depleted []InventoryKey
}

// InventoryConfirmCommand finalises holds for a committed order.
type InventoryConfirmCommand struct {
	ReservationIDs []string
	OrderID        string
}

// InventoryReleaseCommand returns held quantities to availability.
type InventoryReleaseCommand struct {
	ReservationIDs []string
	Reason         string
}

// RouteRequest asks the router to assign origins for every line.
type RouteRequest struct {
	StoreID     string
	Destination Address
	Lines       []RouteLine
}

// RouteLine is one line to route.
type RouteLine struct {
	ResellerProductID string
	VariantID         string
	SupplierID        string
	Quantity          int
}

// FulfillmentPlan groups routed lines into per-supplier shipments.
type FulfillmentPlan struct {
	Legs []FulfillmentLeg
}

// TaxRequest asks for the tax computation on a fixed subtotal.
type TaxRequest struct {
	Region   string
	Currency string
	Subtotal int64
	Now      time.Time
}

// ShippingRequest asks for a shipping quote to the destination.
type ShippingRequest struct {
	Destination Address
	Currency    string
	WeightGrams int
	Now         time.Time
}

// CourierRequest asks for courier assignments per fulfilment leg.
type CourierRequest struct {
	Destination Address
	Legs        []FulfillmentLeg
	Now         time.Time
}

// CounterGenerationOptions controls how counter values are incremented and formatted.
type CounterGenerationOptions struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
	Prefix       string
	Suffix       string
	PadLength    int
	Formatter    func(now time.Time, value int64) string
}

// CounterValue is one issued sequence value with its formatted rendering.
type CounterValue struct {
	Value     int64
	Formatted string
}

// AuditLogRecord defines the payload accepted by the audit writer service.
type AuditLogRecord struct {
	Actor      string
	ActorType  string
	Action     string
	TargetRef  string
	Severity   string
	RequestID  string
	OccurredAt time.Time
	Metadata   map[string]any
	IPAddress  string
	UserAgent  string
}
