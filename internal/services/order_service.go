package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/ordermesh/api/internal/domain"
	"github.com/ordermesh/api/internal/payments"
	"github.com/ordermesh/api/internal/platform/idempotency"
	"github.com/ordermesh/api/internal/repositories"
)

const (
	orderIDPrefix = "ord_"

	// defaultItemWeightGrams stands in for variants without a recorded weight
	// when quoting shipping.
	defaultItemWeightGrams = 500

	releaseReasonCommitFailed        = "commit_failed"
	releaseReasonIdempotencyReplay   = "idempotency_replay"
	releaseReasonSnapshotUnavailable = "snapshot_unavailable"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates a concurrent attempt won the same fingerprint
	// and the winner could not be loaded.
	ErrOrderConflict = errors.New("order: conflict")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Validator        OrderValidator
	Pricing          PricingService
	TierGuard        TierGuard
	Router           FulfillmentRouter
	Inventory        InventoryService
	Tax              TaxCalculator
	Shipping         ShippingCalculator
	Courier          CourierAssigner
	Counters         CounterService
	Orders           repositories.OrderRepository
	Coupons          repositories.CouponRepository
	ResellerProducts repositories.ResellerProductRepository
	Idempotency      idempotency.Store
	UnitOfWork       repositories.UnitOfWork
	Events           EventDispatcher
	Audit            AuditLogService
	Payments         PaymentGateway

	IdempotencyTTL    time.Duration
	DefaultItemWeight int

	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	validator        OrderValidator
	pricing          PricingService
	tierGuard        TierGuard
	router           FulfillmentRouter
	inventory        InventoryService
	tax              TaxCalculator
	shipping         ShippingCalculator
	courier          CourierAssigner
	counters         CounterService
	orders           repositories.OrderRepository
	coupons          repositories.CouponRepository
	resellerProducts repositories.ResellerProductRepository
	idempotency      idempotency.Store
	unitOfWork       repositories.UnitOfWork
	events           EventDispatcher
	audit            AuditLogService
	payments         PaymentGateway

	idempotencyTTL time.Duration
	defaultWeight  int

	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	switch {
	case deps.Validator == nil:
		return nil, errors.New("order service: validator is required")
	case deps.Pricing == nil:
		return nil, errors.New("order service: pricing service is required")
	case deps.TierGuard == nil:
		return nil, errors.New("order service: tier guard is required")
	case deps.Router == nil:
		return nil, errors.New("order service: fulfillment router is required")
	case deps.Inventory == nil:
		return nil, errors.New("order service: inventory service is required")
	case deps.Tax == nil:
		return nil, errors.New("order service: tax calculator is required")
	case deps.Shipping == nil:
		return nil, errors.New("order service: shipping calculator is required")
	case deps.Courier == nil:
		return nil, errors.New("order service: courier assigner is required")
	case deps.Counters == nil:
		return nil, errors.New("order service: counter service is required")
	case deps.Orders == nil:
		return nil, errors.New("order service: order repository is required")
	case deps.Coupons == nil:
		return nil, errors.New("order service: coupon repository is required")
	case deps.Idempotency == nil:
		return nil, errors.New("order service: idempotency store is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	ttl := deps.IdempotencyTTL
	if ttl <= 0 {
		ttl = idempotency.DefaultTTL
	}

	weight := deps.DefaultItemWeight
	if weight <= 0 {
		weight = defaultItemWeightGrams
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		validator:        deps.Validator,
		pricing:          deps.Pricing,
		tierGuard:        deps.TierGuard,
		router:           deps.Router,
		inventory:        deps.Inventory,
		tax:              deps.Tax,
		shipping:         deps.Shipping,
		courier:          deps.Courier,
		counters:         deps.Counters,
		orders:           deps.Orders,
		coupons:          deps.Coupons,
		resellerProducts: deps.ResellerProducts,
		idempotency:      deps.Idempotency,
		unitOfWork:       unit,
		events:           deps.Events,
		audit:            deps.Audit,
		payments:         deps.Payments,
		idempotencyTTL:   ttl,
		defaultWeight:    weight,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// CreateOrder runs the full pipeline for one order attempt. Retries with the
// same fingerprint replay the winner; holds placed by a losing attempt are
// released before returning.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderResult, error) {
	fingerprint := s.fingerprint(cmd)

	record, err := s.idempotency.Find(ctx, fingerprint)
	switch {
	case err == nil:
		return s.replay(ctx, record)
	case errors.Is(err, idempotency.ErrNotFound):
		// First attempt for this fingerprint.
	default:
		// Fail closed: creating a possibly duplicate order is worse than
		// rejecting a retriable request.
		return OrderResult{}, NewTransientError("idempotency.find", err)
	}

	validated, err := s.validator.Validate(ctx, cmd)
	if err != nil {
		return OrderResult{}, err
	}

	currency := strings.ToUpper(strings.TrimSpace(validated.Store.Currency))
	pricing, err := s.pricing.PriceCart(ctx, s.buildPriceCommand(cmd, validated, currency))
	if err != nil {
		return OrderResult{}, err
	}

	if err := s.checkSupplierValues(ctx, validated, pricing); err != nil {
		return OrderResult{}, err
	}

	plan, err := s.router.RouteCart(ctx, buildRouteRequest(cmd, validated))
	if err != nil {
		return OrderResult{}, err
	}

	hold, err := s.inventory.Reserve(ctx, buildReserveCommand(cmd, validated))
	if err != nil {
		return OrderResult{}, err
	}
	// Every abort below this point must return the held stock.

	now := s.clock()
	order, err := s.buildOrder(ctx, cmd, validated, pricing, plan, hold, currency, now)
	if err != nil {
		s.releaseHolds(ctx, hold.ReservationIDs, releaseReasonSnapshotUnavailable)
		return OrderResult{}, err
	}

	txErr := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		// Transaction read phase: re-verify the coupon counters so two orders
		// racing for the last redemption cannot both commit.
		if pricing.CouponID != nil {
			if err := s.coupons.VerifyRedeemable(txCtx, *pricing.CouponID, strings.TrimSpace(cmd.CustomerID)); err != nil {
				return err
			}
		}
		if err := s.inventory.Confirm(txCtx, InventoryConfirmCommand{
			ReservationIDs: hold.ReservationIDs,
			OrderID:        order.ID,
		}); err != nil {
			return err
		}
		if err := s.orders.Insert(txCtx, order); err != nil {
			return err
		}
		if err := s.idempotency.Create(txCtx, idempotency.Record{
			Fingerprint: fingerprint,
			StoreID:     order.StoreID,
			OrderID:     order.ID,
			CreatedAt:   now,
			ExpiresAt:   now.Add(s.idempotencyTTL),
		}); err != nil {
			return err
		}
		if pricing.CouponID != nil {
			if err := s.coupons.RecordRedemption(txCtx, repositories.CouponRedemption{
				CouponID:   *pricing.CouponID,
				CustomerID: strings.TrimSpace(cmd.CustomerID),
				OrderID:    order.ID,
				Now:        now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		var couponErr *repositories.CouponError
		if errors.As(txErr, &couponErr) && couponErr.LimitReached() {
			// The coupon ran out between pricing and commit.
			s.releaseHolds(ctx, hold.ReservationIDs, releaseReasonCommitFailed)
			return OrderResult{}, NewValidationError(ReasonCouponInvalid, "coupon_code", couponErr.Message)
		}
		if isIdempotencyConflict(txErr) {
			// A concurrent attempt committed first. Drop our holds and hand
			// back the winner's order.
			s.releaseHolds(ctx, hold.ReservationIDs, releaseReasonIdempotencyReplay)
			winner, err := s.idempotency.Find(ctx, fingerprint)
			if err != nil {
				return OrderResult{}, fmt.Errorf("%w: %v", ErrOrderConflict, txErr)
			}
			return s.replay(ctx, winner)
		}
		s.releaseHolds(ctx, hold.ReservationIDs, releaseReasonCommitFailed)
		return OrderResult{}, s.mapRepositoryError(txErr)
	}

	s.logger(ctx, "order.created", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.Number,
		"storeId":     order.StoreID,
		"total":       order.Totals.GrandTotal,
	})

	s.afterCommit(ctx, cmd, validated, order, hold, now)

	result := OrderResult{Order: order}
	s.handoffPayment(ctx, order, hold, &result)
	return result, nil
}

// GetOrder loads one order scoped to its store. Orders of other stores are
// indistinguishable from missing ones.
func (s *orderService) GetOrder(ctx context.Context, storeID string, orderID string) (Order, error) {
	storeID = strings.TrimSpace(storeID)
	orderID = strings.TrimSpace(orderID)
	if storeID == "" {
		return Order{}, fmt.Errorf("%w: store id is required", ErrOrderInvalidInput)
	}
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.StoreID != storeID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	if strings.TrimSpace(filter.StoreID) == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: store id is required", ErrOrderInvalidInput)
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) fingerprint(cmd CreateOrderCommand) string {
	lines := make([]idempotency.Line, 0, len(cmd.Lines))
	for _, line := range cmd.Lines {
		lines = append(lines, idempotency.Line{
			ResellerProductID: line.ResellerProductID,
			VariantID:         line.VariantID,
			Quantity:          line.Quantity,
		})
	}
	return idempotency.Fingerprint(idempotency.Payload{
		StoreID:       cmd.StoreID,
		CustomerID:    cmd.CustomerID,
		PaymentMethod: string(cmd.PaymentMethod),
		Lines:         lines,
		Address: idempotency.Address{
			Recipient:  cmd.ShippingAddress.Recipient,
			Line1:      cmd.ShippingAddress.Line1,
			Line2:      derefString(cmd.ShippingAddress.Line2),
			City:       cmd.ShippingAddress.City,
			State:      derefString(cmd.ShippingAddress.State),
			PostalCode: cmd.ShippingAddress.PostalCode,
			Country:    cmd.ShippingAddress.Country,
		},
	})
}

// replay returns the order a prior attempt committed under this fingerprint.
// A fingerprint that points at an unloadable order is a partial failure, not
// proof the request is new, so it surfaces as transient instead of not-found.
func (s *orderService) replay(ctx context.Context, record idempotency.Record) (OrderResult, error) {
	order, err := s.orders.FindByID(ctx, record.OrderID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return OrderResult{}, NewTransientError("idempotency.replay", err)
		}
		return OrderResult{}, s.mapRepositoryError(err)
	}
	return OrderResult{Order: order, Idempotent: true}, nil
}

func (s *orderService) buildPriceCommand(cmd CreateOrderCommand, validated ValidatedOrder, currency string) PriceCartCommand {
	lines := make([]PriceCartLine, 0, len(validated.Lines))
	for _, line := range validated.Lines {
		lines = append(lines, PriceCartLine{
			ResellerProductID: line.Listing.ID,
			ProductID:         line.Product.ID,
			VariantID:         line.Variant.ID,
			BrandID:           line.Product.BrandID,
			CategoryID:        line.Product.CategoryID,
			SupplierID:        line.Supplier.ID,
			SupplierCost:      line.Variant.SupplierCost,
			ListedPrice:       line.Listing.Price,
			Quantity:          line.Quantity,
		})
	}
	return PriceCartCommand{
		StoreID:    cmd.StoreID,
		CustomerID: cmd.CustomerID,
		Region:     validated.Store.Region,
		Currency:   currency,
		CouponCode: cmd.CouponCode,
		Lines:      lines,
	}
}

// checkSupplierValues re-runs tier checks once pricing reveals per-supplier
// order values. Suppliers are checked in first-seen line order.
func (s *orderService) checkSupplierValues(ctx context.Context, validated ValidatedOrder, pricing CartPricing) error {
	totals := make(map[string]int64, len(pricing.Lines))
	for _, priced := range pricing.Lines {
		totals[priced.ResellerProductID] = priced.TotalPrice
	}

	values := map[string]int64{}
	var suppliers []Supplier
	for _, line := range validated.Lines {
		if _, seen := values[line.Supplier.ID]; !seen {
			suppliers = append(suppliers, line.Supplier)
		}
		values[line.Supplier.ID] += totals[line.Listing.ID]
	}

	for _, supplier := range suppliers {
		if err := s.tierGuard.CheckSupplierOrderValue(ctx, supplier, values[supplier.ID]); err != nil {
			return err
		}
	}
	return nil
}

func buildRouteRequest(cmd CreateOrderCommand, validated ValidatedOrder) RouteRequest {
	lines := make([]RouteLine, 0, len(validated.Lines))
	for _, line := range validated.Lines {
		lines = append(lines, RouteLine{
			ResellerProductID: line.Listing.ID,
			VariantID:         line.Variant.ID,
			SupplierID:        line.Supplier.ID,
			Quantity:          line.Quantity,
		})
	}
	return RouteRequest{
		StoreID:     cmd.StoreID,
		Destination: cmd.ShippingAddress,
		Lines:       lines,
	}
}

func buildReserveCommand(cmd CreateOrderCommand, validated ValidatedOrder) InventoryReserveCommand {
	lines := make([]InventoryLine, 0, len(validated.Lines))
	for _, line := range validated.Lines {
		lines = append(lines, InventoryLine{
			ResellerProductID: line.Listing.ID,
			ProductID:         line.Product.ID,
			VariantID:         line.Variant.ID,
			SupplierID:        line.Supplier.ID,
			Quantity:          line.Quantity,
		})
	}
	return InventoryReserveCommand{
		StoreID: cmd.StoreID,
		CartID:  cmd.CartID,
		Payment: cmd.PaymentMethod,
		Lines:   lines,
	}
}

func (s *orderService) buildOrder(
	ctx context.Context,
	cmd CreateOrderCommand,
	validated ValidatedOrder,
	pricing CartPricing,
	plan FulfillmentPlan,
	hold InventoryHold,
	currency string,
	now time.Time,
) (Order, error) {
	taxable := pricing.Subtotal - pricing.DiscountTotal

	taxSnap, err := s.tax.Calculate(ctx, TaxRequest{
		Region:   validated.Store.Region,
		Currency: currency,
		Subtotal: taxable,
		Now:      now,
	})
	if err != nil {
		return Order{}, err
	}

	shippingSnap, err := s.shipping.Quote(ctx, ShippingRequest{
		Destination: cmd.ShippingAddress,
		Currency:    currency,
		WeightGrams: s.cartWeight(validated),
		Now:         now,
	})
	if err != nil {
		return Order{}, err
	}

	courierSnap, err := s.courier.Assign(ctx, CourierRequest{
		Destination: cmd.ShippingAddress,
		Legs:        plan.Legs,
		Now:         now,
	})
	if err != nil {
		return Order{}, err
	}

	number, err := s.counters.NextOrderNumber(ctx, cmd.StoreID)
	if err != nil {
		return Order{}, err
	}

	status := domain.OrderStatusPending
	if cmd.PaymentMethod == domain.PaymentMethodCOD {
		status = domain.OrderStatusCODPending
	}

	order := Order{
		ID:               orderIDPrefix + s.newID(),
		Number:           number,
		StoreID:          cmd.StoreID,
		ResellerID:       validated.Reseller.ID,
		CustomerID:       optionalString(strings.TrimSpace(cmd.CustomerID)),
		CartID:           strings.TrimSpace(cmd.CartID),
		Status:           status,
		PaymentMethod:    cmd.PaymentMethod,
		Currency:         currency,
		Items:            buildOrderItems(validated, pricing),
		ShippingAddress:  cmd.ShippingAddress,
		CustomerNote:     optionalString(strings.TrimSpace(cmd.CustomerNote)),
		CouponCode:       pricing.CouponCode,
		TaxSnapshot:      taxSnap,
		ShippingSnapshot: shippingSnap,
		CourierSnapshot:  courierSnap,
		FulfillmentSnapshot: FulfillmentSnapshot{
			Legs:     plan.Legs,
			RoutedAt: now,
		},
		ReservationIDs: hold.ReservationIDs,
		Metadata:       cmd.Metadata,
		PlacedAt:       now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	order.Totals = OrderTotals{
		Subtotal:   pricing.Subtotal,
		Discount:   pricing.DiscountTotal,
		Tax:        taxSnap.Total,
		Shipping:   shippingSnap.Amount,
		GrandTotal: taxable + taxSnap.Total + shippingSnap.Amount,
	}
	return order, nil
}

// buildOrderItems snapshots the priced lines. TotalPrice is always
// UnitPrice * Quantity; discounts stay on the Discount field so the item
// arithmetic is auditable without the pricing run.
func buildOrderItems(validated ValidatedOrder, pricing CartPricing) []OrderItem {
	priced := make(map[string]LinePricing, len(pricing.Lines))
	for _, line := range pricing.Lines {
		priced[line.ResellerProductID] = line
	}

	items := make([]OrderItem, 0, len(validated.Lines))
	for _, line := range validated.Lines {
		p := priced[line.Listing.ID]
		items = append(items, OrderItem{
			ProductID:         line.Product.ID,
			VariantID:         line.Variant.ID,
			ResellerProductID: line.Listing.ID,
			SupplierID:        line.Supplier.ID,
			SKU:               line.Variant.SKU,
			Name:              line.Product.Name,
			Quantity:          line.Quantity,
			UnitPrice:         p.UnitPrice,
			SupplierCost:      line.Variant.SupplierCost,
			TotalPrice:        p.UnitPrice * int64(line.Quantity),
			PriceFloor:        p.Bounds.Floor,
			Discount:          p.PromotionDiscount + p.CouponDiscount,
			PromotionID:       p.PromotionID,
		})
	}
	return items
}

func (s *orderService) cartWeight(validated ValidatedOrder) int {
	total := 0
	for _, line := range validated.Lines {
		weight := s.defaultWeight
		if line.Variant.WeightGrams != nil && *line.Variant.WeightGrams > 0 {
			weight = *line.Variant.WeightGrams
		}
		total += weight * line.Quantity
	}
	return total
}

func (s *orderService) releaseHolds(ctx context.Context, reservationIDs []string, reason string) {
	if len(reservationIDs) == 0 {
		return
	}
	err := s.inventory.Release(ctx, InventoryReleaseCommand{
		ReservationIDs: reservationIDs,
		Reason:         reason,
	})
	if err != nil {
		// The sweeper expires abandoned holds, so a failed release self-heals.
		s.logger(ctx, "order.release_failed", map[string]any{
			"reservations": reservationIDs,
			"reason":       reason,
			"error":        err.Error(),
		})
	}
}

// afterCommit runs the best-effort side effects of a committed order. None of
// them can fail the order.
func (s *orderService) afterCommit(ctx context.Context, cmd CreateOrderCommand, validated ValidatedOrder, order Order, hold InventoryHold, now time.Time) {
	if s.events != nil {
		s.enqueueEvent(ctx, OrderEventMessage{
			Type:       EventTypeOrderCreated,
			StoreID:    order.StoreID,
			OrderID:    order.ID,
			ResellerID: order.ResellerID,
			Payload: map[string]any{
				"orderNumber": order.Number,
				"total":       order.Totals.GrandTotal,
				"currency":    order.Currency,
			},
		})
		if order.CartID != "" {
			s.enqueueEvent(ctx, OrderEventMessage{
				Type:    EventTypeCartConverted,
				StoreID: order.StoreID,
				OrderID: order.ID,
				CartID:  order.CartID,
			})
		}
	}

	if s.audit != nil {
		s.audit.Record(ctx, AuditLogRecord{
			Actor:      "reseller:" + order.ResellerID,
			ActorType:  "user",
			Action:     "order.create",
			TargetRef:  "/orders/" + order.ID,
			OccurredAt: now,
			Metadata: map[string]any{
				"orderNumber": order.Number,
				"storeId":     order.StoreID,
				"total":       order.Totals.GrandTotal,
			},
		})
	}

	if _, err := s.counters.IncrementMonthlyOrders(ctx, order.ResellerID, now); err != nil {
		s.logger(ctx, "order.monthly_counter_failed", map[string]any{
			"resellerId": order.ResellerID,
			"error":      err.Error(),
		})
	}
	for supplierID, value := range supplierTotals(order.Items) {
		if value <= 0 {
			continue
		}
		if _, err := s.counters.AddMonthlySupplierValue(ctx, supplierID, now, value); err != nil {
			s.logger(ctx, "order.supplier_value_failed", map[string]any{
				"supplierId": supplierID,
				"error":      err.Error(),
			})
		}
	}

	s.deactivateDepleted(ctx, validated, hold.Depleted, now)
}

// supplierTotals rolls up the net charged value per supplier.
func supplierTotals(items []OrderItem) map[string]int64 {
	totals := make(map[string]int64, len(items))
	for _, item := range items {
		totals[item.SupplierID] += item.TotalPrice - item.Discount
	}
	return totals
}

// deactivateDepleted takes listings whose stock just hit zero off the shelf so
// new carts stop accepting them.
func (s *orderService) deactivateDepleted(ctx context.Context, validated ValidatedOrder, depleted []InventoryKey, now time.Time) {
	if s.resellerProducts == nil || len(depleted) == 0 {
		return
	}
	for _, key := range depleted {
		for _, line := range validated.Lines {
			if line.Supplier.ID != key.SupplierID || line.Variant.ID != key.VariantID {
				continue
			}
			if err := s.resellerProducts.Deactivate(ctx, line.Listing.ID, "stock_depleted", now); err != nil {
				s.logger(ctx, "order.listing_deactivate_failed", map[string]any{
					"resellerProductId": line.Listing.ID,
					"error":             err.Error(),
				})
			}
		}
	}
}

func (s *orderService) enqueueEvent(ctx context.Context, message OrderEventMessage) {
	if err := s.events.Enqueue(ctx, message); err != nil {
		s.logger(ctx, "order.event_dropped", map[string]any{
			"type":    message.Type,
			"orderId": message.OrderID,
			"error":   err.Error(),
		})
	}
}

// handoffPayment hands the committed order to the payment layer. Failures
// never roll the order back; the client retries collection separately.
func (s *orderService) handoffPayment(ctx context.Context, order Order, hold InventoryHold, result *OrderResult) {
	if s.payments == nil {
		return
	}
	expiresAt := hold.ExpiresAt
	handoff, err := s.payments.CreateHandoff(ctx, order.PaymentMethod, payments.HandoffRequest{
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		StoreID:       order.StoreID,
		Amount:        order.Totals.GrandTotal,
		Currency:      order.Currency,
		CustomerID:    derefString(order.CustomerID),
		HoldExpiresAt: &expiresAt,
	})
	if err != nil {
		s.logger(ctx, "order.payment_handoff_failed", map[string]any{
			"orderId": order.ID,
			"method":  string(order.PaymentMethod),
			"error":   err.Error(),
		})
		result.PaymentErr = err.Error()
		return
	}
	result.Payment = &handoff
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, idempotency.ErrAlreadyExists) {
		return fmt.Errorf("%w: %v", ErrOrderConflict, err)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return NewTransientError("orders", err)
		}
	}
	return err
}

// isIdempotencyConflict recognises a lost commit race on the fingerprint,
// whether surfaced by the store sentinel or the underlying datastore.
func isIdempotencyConflict(err error) bool {
	if errors.Is(err, idempotency.ErrAlreadyExists) {
		return true
	}
	return status.Code(err) == codes.AlreadyExists
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
