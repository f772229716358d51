package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/ordermesh/api/internal/domain"
	"github.com/ordermesh/api/internal/payments"
	"github.com/ordermesh/api/internal/platform/auth"
	"github.com/ordermesh/api/internal/platform/httpx"
	"github.com/ordermesh/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 64 * 1024
)

// OrderHandlers exposes order creation and store-scoped reads.
type OrderHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	limiter rateLimiter
}

// OrderHandlersOption customises the order handlers before construction.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderCreateRateLimit caps order creation attempts per identity per
// minute. A non-positive limit disables the cap.
func WithOrderCreateRateLimit(perMinute int, clock func() time.Time) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.limiter = newSimpleRateLimiter(perMinute, time.Minute, clock)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
}

type orderLineRequest struct {
	ResellerProductID string `json:"reseller_product_id"`
	VariantID         string `json:"variant_id"`
	Quantity          int    `json:"quantity"`
}

type createOrderRequest struct {
	StoreID             string             `json:"store_id"`
	CustomerID          string             `json:"customer_id"`
	CartID              string             `json:"cart_id"`
	PaymentMethod       string             `json:"payment_method"`
	PaymentInstrumentID string             `json:"payment_instrument_id"`
	CouponCode          string             `json:"coupon_code"`
	CustomerNote        string             `json:"customer_note"`
	Lines               []orderLineRequest `json:"lines"`
	ShippingAddress     addressRequest     `json:"shipping_address"`
	Metadata            map[string]any     `json:"metadata"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many order attempts, retry later", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyReadError(ctx, w, err)
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		StoreID:             strings.TrimSpace(req.StoreID),
		CustomerID:          strings.TrimSpace(req.CustomerID),
		CartID:              strings.TrimSpace(req.CartID),
		PaymentMethod:       domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		PaymentInstrumentID: strings.TrimSpace(req.PaymentInstrumentID),
		CouponCode:          strings.TrimSpace(req.CouponCode),
		CustomerNote:        sanitizeFreeText(req.CustomerNote),
		ShippingAddress:     req.ShippingAddress.toDomain(),
		Metadata:            cloneMap(req.Metadata),
	}
	for _, line := range req.Lines {
		cmd.Lines = append(cmd.Lines, services.OrderLineInput{
			ResellerProductID: strings.TrimSpace(line.ResellerProductID),
			VariantID:         strings.TrimSpace(line.VariantID),
			Quantity:          line.Quantity,
		})
	}

	result, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	status := http.StatusCreated
	if result.Idempotent {
		status = http.StatusOK
	}
	writeJSONResponse(w, status, buildCreateOrderResponse(result))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	query := r.URL.Query()
	storeID := strings.TrimSpace(query.Get("store_id"))
	if storeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "store_id is required", http.StatusBadRequest))
		return
	}

	var dateRange domain.RangeQuery[time.Time]
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.To = &ts
	}

	pageSize := defaultOrderPageSize
	if sizeRaw := strings.TrimSpace(query.Get("page_size")); sizeRaw != "" {
		size, err := strconv.Atoi(sizeRaw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
			return
		}
		switch {
		case size <= 0:
			pageSize = defaultOrderPageSize
		case size > maxOrderPageSize:
			pageSize = maxOrderPageSize
		default:
			pageSize = size
		}
	}

	filter := services.OrderListFilter{
		StoreID:   storeID,
		Status:    parseFilterValues(query["status"]),
		DateRange: dateRange,
		Pagination: domain.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Orders:        items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	storeID := strings.TrimSpace(r.URL.Query().Get("store_id"))
	if storeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "store_id is required", http.StatusBadRequest))
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, storeID, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

// Response payloads -----------------------------------------------------------

type orderListResponse struct {
	Orders        []orderSummaryPayload `json:"orders"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	Number        string `json:"number"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	Currency      string `json:"currency"`
	GrandTotal    int64  `json:"grand_total"`
	ItemCount     int    `json:"item_count"`
	PlacedAt      string `json:"placed_at,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type createOrderResponse struct {
	Order        orderPayload           `json:"order"`
	Idempotent   bool                   `json:"idempotent"`
	Payment      *paymentHandoffPayload `json:"payment,omitempty"`
	PaymentError string                 `json:"payment_error,omitempty"`
}

type paymentHandoffPayload struct {
	Method       string `json:"method"`
	Provider     string `json:"provider"`
	Reference    string `json:"reference,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
}

type orderPayload struct {
	ID              string                     `json:"id"`
	Number          string                     `json:"number"`
	StoreID         string                     `json:"store_id"`
	ResellerID      string                     `json:"reseller_id"`
	CustomerID      *string                    `json:"customer_id,omitempty"`
	CartID          string                     `json:"cart_id,omitempty"`
	Status          string                     `json:"status"`
	PaymentMethod   string                     `json:"payment_method"`
	Currency        string                     `json:"currency"`
	Items           []orderItemPayload         `json:"items"`
	Totals          orderTotalsPayload         `json:"totals"`
	ShippingAddress addressPayload             `json:"shipping_address"`
	CustomerNote    *string                    `json:"customer_note,omitempty"`
	CouponCode      *string                    `json:"coupon_code,omitempty"`
	Tax             taxSnapshotPayload         `json:"tax"`
	Shipping        shippingSnapshotPayload    `json:"shipping"`
	Couriers        courierSnapshotPayload     `json:"couriers"`
	Fulfillment     fulfillmentSnapshotPayload `json:"fulfillment"`
	ReservationIDs  []string                   `json:"reservation_ids,omitempty"`
	Metadata        map[string]any             `json:"metadata,omitempty"`
	PlacedAt        string                     `json:"placed_at,omitempty"`
	CreatedAt       string                     `json:"created_at,omitempty"`
	UpdatedAt       string                     `json:"updated_at,omitempty"`
}

type orderItemPayload struct {
	ProductID         string  `json:"product_id"`
	VariantID         string  `json:"variant_id"`
	ResellerProductID string  `json:"reseller_product_id"`
	SupplierID        string  `json:"supplier_id"`
	SKU               string  `json:"sku,omitempty"`
	Name              string  `json:"name"`
	Quantity          int     `json:"quantity"`
	UnitPrice         int64   `json:"unit_price"`
	TotalPrice        int64   `json:"total_price"`
	Discount          int64   `json:"discount"`
	PromotionID       *string `json:"promotion_id,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal   int64 `json:"subtotal"`
	Discount   int64 `json:"discount"`
	Tax        int64 `json:"tax"`
	Shipping   int64 `json:"shipping"`
	GrandTotal int64 `json:"grand_total"`
}

type taxLinePayload struct {
	Name      string `json:"name"`
	RateBasis int64  `json:"rate_basis"`
	Amount    int64  `json:"amount"`
}

type taxSnapshotPayload struct {
	Profile      string           `json:"profile,omitempty"`
	Region       string           `json:"region,omitempty"`
	Lines        []taxLinePayload `json:"lines,omitempty"`
	Total        int64            `json:"total"`
	Currency     string           `json:"currency,omitempty"`
	CalculatedAt string           `json:"calculated_at,omitempty"`
}

type shippingSnapshotPayload struct {
	Zone         string `json:"zone,omitempty"`
	Method       string `json:"method,omitempty"`
	WeightGrams  int    `json:"weight_grams"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency,omitempty"`
	EstimateDays *int   `json:"estimate_days,omitempty"`
	CalculatedAt string `json:"calculated_at,omitempty"`
}

type courierAssignmentPayload struct {
	SupplierID string `json:"supplier_id"`
	Courier    string `json:"courier"`
	Service    string `json:"service"`
}

type courierSnapshotPayload struct {
	Assignments []courierAssignmentPayload `json:"assignments,omitempty"`
	AssignedAt  string                     `json:"assigned_at,omitempty"`
}

type fulfillmentLinePayload struct {
	ResellerProductID string `json:"reseller_product_id"`
	VariantID         string `json:"variant_id"`
	Quantity          int    `json:"quantity"`
}

type fulfillmentLegPayload struct {
	SupplierID string                   `json:"supplier_id"`
	Origin     string                   `json:"origin"`
	Lines      []fulfillmentLinePayload `json:"lines"`
}

type fulfillmentSnapshotPayload struct {
	Legs     []fulfillmentLegPayload `json:"legs,omitempty"`
	RoutedAt string                  `json:"routed_at,omitempty"`
}

func buildCreateOrderResponse(result services.OrderResult) createOrderResponse {
	resp := createOrderResponse{
		Order:        buildOrderPayload(result.Order),
		Idempotent:   result.Idempotent,
		PaymentError: result.PaymentErr,
	}
	if result.Payment != nil {
		resp.Payment = buildPaymentHandoffPayload(*result.Payment)
	}
	return resp
}

func buildPaymentHandoffPayload(handoff payments.Handoff) *paymentHandoffPayload {
	payload := &paymentHandoffPayload{
		Method:       string(handoff.Method),
		Provider:     handoff.Provider,
		Reference:    handoff.Reference,
		ClientSecret: handoff.ClientSecret,
		Instructions: handoff.Instructions,
	}
	if handoff.ExpiresAt != nil {
		payload.ExpiresAt = formatTime(*handoff.ExpiresAt)
	}
	return payload
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	count := 0
	for _, item := range order.Items {
		count += item.Quantity
	}
	return orderSummaryPayload{
		ID:            order.ID,
		Number:        order.Number,
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		Currency:      order.Currency,
		GrandTotal:    order.Totals.GrandTotal,
		ItemCount:     count,
		PlacedAt:      formatTime(order.PlacedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID:         item.ProductID,
			VariantID:         item.VariantID,
			ResellerProductID: item.ResellerProductID,
			SupplierID:        item.SupplierID,
			SKU:               item.SKU,
			Name:              item.Name,
			Quantity:          item.Quantity,
			UnitPrice:         item.UnitPrice,
			TotalPrice:        item.TotalPrice,
			Discount:          item.Discount,
			PromotionID:       cloneStringPointer(item.PromotionID),
		})
	}

	taxLines := make([]taxLinePayload, 0, len(order.TaxSnapshot.Lines))
	for _, line := range order.TaxSnapshot.Lines {
		taxLines = append(taxLines, taxLinePayload{
			Name:      line.Name,
			RateBasis: line.RateBasis,
			Amount:    line.Amount,
		})
	}

	assignments := make([]courierAssignmentPayload, 0, len(order.CourierSnapshot.Assignments))
	for _, assignment := range order.CourierSnapshot.Assignments {
		assignments = append(assignments, courierAssignmentPayload{
			SupplierID: assignment.SupplierID,
			Courier:    assignment.Courier,
			Service:    assignment.Service,
		})
	}

	legs := make([]fulfillmentLegPayload, 0, len(order.FulfillmentSnapshot.Legs))
	for _, leg := range order.FulfillmentSnapshot.Legs {
		lines := make([]fulfillmentLinePayload, 0, len(leg.Lines))
		for _, line := range leg.Lines {
			lines = append(lines, fulfillmentLinePayload{
				ResellerProductID: line.ResellerProductID,
				VariantID:         line.VariantID,
				Quantity:          line.Quantity,
			})
		}
		legs = append(legs, fulfillmentLegPayload{
			SupplierID: leg.SupplierID,
			Origin:     leg.Origin,
			Lines:      lines,
		})
	}

	return orderPayload{
		ID:            order.ID,
		Number:        order.Number,
		StoreID:       order.StoreID,
		ResellerID:    order.ResellerID,
		CustomerID:    cloneStringPointer(order.CustomerID),
		CartID:        order.CartID,
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		Currency:      order.Currency,
		Items:         items,
		Totals: orderTotalsPayload{
			Subtotal:   order.Totals.Subtotal,
			Discount:   order.Totals.Discount,
			Tax:        order.Totals.Tax,
			Shipping:   order.Totals.Shipping,
			GrandTotal: order.Totals.GrandTotal,
		},
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		CustomerNote:    cloneStringPointer(order.CustomerNote),
		CouponCode:      cloneStringPointer(order.CouponCode),
		Tax: taxSnapshotPayload{
			Profile:      order.TaxSnapshot.Profile,
			Region:       order.TaxSnapshot.Region,
			Lines:        taxLines,
			Total:        order.TaxSnapshot.Total,
			Currency:     order.TaxSnapshot.Currency,
			CalculatedAt: formatTime(order.TaxSnapshot.CalculatedAt),
		},
		Shipping: shippingSnapshotPayload{
			Zone:         order.ShippingSnapshot.Zone,
			Method:       order.ShippingSnapshot.Method,
			WeightGrams:  order.ShippingSnapshot.WeightGrams,
			Amount:       order.ShippingSnapshot.Amount,
			Currency:     order.ShippingSnapshot.Currency,
			EstimateDays: order.ShippingSnapshot.EstimateDays,
			CalculatedAt: formatTime(order.ShippingSnapshot.CalculatedAt),
		},
		Couriers: courierSnapshotPayload{
			Assignments: assignments,
			AssignedAt:  formatTime(order.CourierSnapshot.AssignedAt),
		},
		Fulfillment: fulfillmentSnapshotPayload{
			Legs:     legs,
			RoutedAt: formatTime(order.FulfillmentSnapshot.RoutedAt),
		},
		ReservationIDs: order.ReservationIDs,
		Metadata:       cloneMap(order.Metadata),
		PlacedAt:       formatTime(order.PlacedAt),
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
	}
}

// writeOrderError maps pipeline failures onto the API error envelope. Business
// rule rejections surface as 422 with machine-readable details; contention and
// duplicate submissions surface as 409.
func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		details := map[string]any{"reason": validationErr.Reason}
		if validationErr.Field != "" {
			details["field"] = validationErr.Field
		}
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", validationErr.Message, http.StatusUnprocessableEntity).WithDetails(details))
		return
	}

	var pricingErr *services.PricingViolation
	if errors.As(err, &pricingErr) {
		details := map[string]any{
			"reseller_product_id": pricingErr.ResellerProductID,
			"price":               pricingErr.Price,
			"floor":               pricingErr.Floor,
		}
		if pricingErr.Ceiling != nil {
			details["ceiling"] = *pricingErr.Ceiling
		}
		httpx.WriteError(ctx, w, httpx.NewError("pricing_violation", pricingErr.Error(), http.StatusUnprocessableEntity).WithDetails(details))
		return
	}

	var inventoryErr *services.InsufficientInventory
	if errors.As(err, &inventoryErr) {
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_inventory", inventoryErr.Error(), http.StatusConflict))
		return
	}

	var fulfillmentErr *services.FulfillmentUnavailable
	if errors.As(err, &fulfillmentErr) {
		httpx.WriteError(ctx, w, httpx.NewError("fulfillment_unavailable", fulfillmentErr.Error(), http.StatusUnprocessableEntity).WithDetails(map[string]any{
			"supplier_id": fulfillmentErr.SupplierID,
		}))
		return
	}

	var shippingErr *services.ShippingConfigMissing
	if errors.As(err, &shippingErr) {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", shippingErr.Error(), http.StatusUnprocessableEntity).WithDetails(map[string]any{
			"country": shippingErr.Country,
		}))
		return
	}

	var taxErr *services.TaxProfileMissing
	if errors.As(err, &taxErr) {
		httpx.WriteError(ctx, w, httpx.NewError("tax_unavailable", taxErr.Error(), http.StatusUnprocessableEntity).WithDetails(map[string]any{
			"region": taxErr.Region,
		}))
		return
	}

	var transientErr *services.TransientDependencyError
	if errors.As(err, &transientErr) {
		httpx.WriteError(ctx, w, httpx.NewError("dependency_unavailable", "a backing dependency is unavailable, retry later", http.StatusServiceUnavailable))
		return
	}

	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order request is invalid", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "a conflicting order operation is in flight", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process order", http.StatusInternalServerError))
	}
}
