package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ordermesh/api/internal/platform/auth"
	"github.com/ordermesh/api/internal/platform/httpx"
	"github.com/ordermesh/api/internal/services"
)

const maxPricingBodySize = 64 * 1024

// PricingHandlers exposes cart quoting and advisory price checks so storefront
// surfaces can preview totals without creating an order.
type PricingHandlers struct {
	authn   *auth.Authenticator
	pricing services.PricingService
}

// NewPricingHandlers constructs a new PricingHandlers instance.
func NewPricingHandlers(authn *auth.Authenticator, pricing services.PricingService) *PricingHandlers {
	return &PricingHandlers{
		authn:   authn,
		pricing: pricing,
	}
}

// Routes registers the /pricing endpoints.
func (h *PricingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/quote", h.quoteCart)
	r.Post("/advise", h.advisePrice)
}

type priceCartLineRequest struct {
	ResellerProductID string `json:"reseller_product_id"`
	ProductID         string `json:"product_id"`
	VariantID         string `json:"variant_id"`
	BrandID           string `json:"brand_id"`
	CategoryID        string `json:"category_id"`
	SupplierID        string `json:"supplier_id"`
	SupplierCost      int64  `json:"supplier_cost"`
	ListedPrice       int64  `json:"listed_price"`
	Quantity          int    `json:"quantity"`
}

type priceCartRequest struct {
	StoreID    string                 `json:"store_id"`
	CustomerID string                 `json:"customer_id"`
	Region     string                 `json:"region"`
	Currency   string                 `json:"currency"`
	CouponCode string                 `json:"coupon_code"`
	Lines      []priceCartLineRequest `json:"lines"`
}

type cartLinePayload struct {
	ResellerProductID string  `json:"reseller_product_id"`
	BasePrice         int64   `json:"base_price"`
	PromotionDiscount int64   `json:"promotion_discount"`
	CouponDiscount    int64   `json:"coupon_discount"`
	UnitPrice         int64   `json:"unit_price"`
	TotalPrice        int64   `json:"total_price"`
	Floor             int64   `json:"floor"`
	Ceiling           *int64  `json:"ceiling,omitempty"`
	PromotionID       *string `json:"promotion_id,omitempty"`
}

type cartPricingResponse struct {
	Currency      string            `json:"currency"`
	Lines         []cartLinePayload `json:"lines"`
	Subtotal      int64             `json:"subtotal"`
	DiscountTotal int64             `json:"discount_total"`
	CouponCode    *string           `json:"coupon_code,omitempty"`
}

func (h *PricingHandlers) quoteCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_service_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxPricingBodySize)
	if err != nil {
		writeBodyReadError(ctx, w, err)
		return
	}

	var req priceCartRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	cmd := services.PriceCartCommand{
		StoreID:    strings.TrimSpace(req.StoreID),
		CustomerID: strings.TrimSpace(req.CustomerID),
		Region:     strings.TrimSpace(req.Region),
		Currency:   strings.TrimSpace(req.Currency),
		CouponCode: strings.TrimSpace(req.CouponCode),
	}
	for _, line := range req.Lines {
		cmd.Lines = append(cmd.Lines, services.PriceCartLine{
			ResellerProductID: strings.TrimSpace(line.ResellerProductID),
			ProductID:         strings.TrimSpace(line.ProductID),
			VariantID:         strings.TrimSpace(line.VariantID),
			BrandID:           strings.TrimSpace(line.BrandID),
			CategoryID:        strings.TrimSpace(line.CategoryID),
			SupplierID:        strings.TrimSpace(line.SupplierID),
			SupplierCost:      line.SupplierCost,
			ListedPrice:       line.ListedPrice,
			Quantity:          line.Quantity,
		})
	}

	pricing, err := h.pricing.PriceCart(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	lines := make([]cartLinePayload, 0, len(pricing.Lines))
	for _, line := range pricing.Lines {
		lines = append(lines, cartLinePayload{
			ResellerProductID: line.ResellerProductID,
			BasePrice:         line.BasePrice,
			PromotionDiscount: line.PromotionDiscount,
			CouponDiscount:    line.CouponDiscount,
			UnitPrice:         line.UnitPrice,
			TotalPrice:        line.TotalPrice,
			Floor:             line.Bounds.Floor,
			Ceiling:           line.Bounds.Ceiling,
			PromotionID:       cloneStringPointer(line.PromotionID),
		})
	}

	writeJSONResponse(w, http.StatusOK, cartPricingResponse{
		Currency:      pricing.Currency,
		Lines:         lines,
		Subtotal:      pricing.Subtotal,
		DiscountTotal: pricing.DiscountTotal,
		CouponCode:    cloneStringPointer(pricing.CouponCode),
	})
}

type advisePriceRequest struct {
	StoreID   string `json:"store_id"`
	Requested int64  `json:"requested"`
	Scope     struct {
		VariantID    string `json:"variant_id"`
		ProductID    string `json:"product_id"`
		BrandID      string `json:"brand_id"`
		CategoryID   string `json:"category_id"`
		Region       string `json:"region"`
		SupplierCost int64  `json:"supplier_cost"`
	} `json:"scope"`
}

type advisePriceResponse struct {
	Requested int64  `json:"requested"`
	Advised   int64  `json:"advised"`
	Clamped   bool   `json:"clamped"`
	Floor     int64  `json:"floor"`
	Ceiling   *int64 `json:"ceiling,omitempty"`
}

func (h *PricingHandlers) advisePrice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_service_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxPricingBodySize)
	if err != nil {
		writeBodyReadError(ctx, w, err)
		return
	}

	var req advisePriceRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	advice, err := h.pricing.AdviseListingPrice(ctx, services.AdvisePriceCommand{
		StoreID:   strings.TrimSpace(req.StoreID),
		Requested: req.Requested,
		Scope: services.RuleScopeQuery{
			VariantID:    strings.TrimSpace(req.Scope.VariantID),
			ProductID:    strings.TrimSpace(req.Scope.ProductID),
			BrandID:      strings.TrimSpace(req.Scope.BrandID),
			CategoryID:   strings.TrimSpace(req.Scope.CategoryID),
			Region:       strings.TrimSpace(req.Scope.Region),
			SupplierCost: req.Scope.SupplierCost,
		},
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, advisePriceResponse{
		Requested: advice.Requested,
		Advised:   advice.Advised,
		Clamped:   advice.Clamped,
		Floor:     advice.Bounds.Floor,
		Ceiling:   advice.Bounds.Ceiling,
	})
}

func writeBodyReadError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("request_too_large", "request body exceeds size limit", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
	}
}
