package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/ordermesh/api/internal/domain"
	"github.com/ordermesh/api/internal/platform/textutil"
	"github.com/ordermesh/api/internal/repositories"
)

// DiscountResolverDeps bundles collaborators required to construct a discount resolver.
type DiscountResolverDeps struct {
	// Promotions may be nil when automatic promotions are disabled.
	Promotions repositories.PromotionRepository
	Coupons    repositories.CouponRepository
	Clock      func() time.Time
}

type discountResolver struct {
	promotions repositories.PromotionRepository
	coupons    repositories.CouponRepository
	clock      func() time.Time
}

// NewDiscountResolver constructs the promotion and coupon resolution stage.
func NewDiscountResolver(deps DiscountResolverDeps) (DiscountResolver, error) {
	if deps.Coupons == nil {
		return nil, errors.New("discount resolver: coupon repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &discountResolver{
		promotions: deps.Promotions,
		coupons:    deps.Coupons,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

type discountedLine struct {
	input       DiscountLine
	promotionID *string
	// Per-line discounts land in whole minor units, so the line discounts
	// always sum to the cart-level discount.
	promoDiscount  int64
	couponDiscount int64
}

// lineNet is the post-promotion line total in minor units, the weight basis
// for coupon allocation.
func (l discountedLine) lineNet() int64 {
	return l.input.BasePrice*int64(l.input.Quantity) - l.promoDiscount
}

func (r *discountResolver) Resolve(ctx context.Context, req DiscountRequest) (CartPricing, error) {
	now := r.clock()

	lines := make([]discountedLine, len(req.Lines))
	for i, line := range req.Lines {
		lines[i] = discountedLine{input: line}
		if err := r.applyPromotion(ctx, &lines[i], now); err != nil {
			return CartPricing{}, err
		}
	}

	coupon, err := r.applyCoupon(ctx, req, lines, now)
	if err != nil {
		return CartPricing{}, err
	}

	pricing := CartPricing{Currency: strings.ToUpper(strings.TrimSpace(req.Currency))}
	if coupon != nil {
		id := coupon.ID
		code := coupon.Code
		pricing.CouponID = &id
		pricing.CouponCode = &code
	}

	for _, line := range lines {
		qty := int64(line.input.Quantity)
		baseTotal := line.input.BasePrice * qty
		discount := line.promoDiscount + line.couponDiscount
		total := baseTotal - discount

		// Re-validate the discounted line against both bound sets. The order
		// path rejects instead of clamping.
		floor := line.input.Bounds.Floor
		if total < floor*qty {
			return CartPricing{}, &PricingViolation{
				ResellerProductID: line.input.ResellerProductID,
				Price:             total,
				Floor:             floor * qty,
				Ceiling:           scaleCeiling(line.input.Bounds.Ceiling, qty),
			}
		}
		if line.input.Bounds.Ceiling != nil && total > *line.input.Bounds.Ceiling*qty {
			return CartPricing{}, &PricingViolation{
				ResellerProductID: line.input.ResellerProductID,
				Price:             total,
				Floor:             floor * qty,
				Ceiling:           scaleCeiling(line.input.Bounds.Ceiling, qty),
			}
		}

		pricing.Lines = append(pricing.Lines, LinePricing{
			ResellerProductID: line.input.ResellerProductID,
			BasePrice:         line.input.BasePrice,
			PromotionDiscount: line.promoDiscount,
			CouponDiscount:    line.couponDiscount,
			UnitPrice:         line.input.BasePrice,
			TotalPrice:        total,
			Bounds:            line.input.Bounds,
			PromotionID:       line.promotionID,
		})
		pricing.Subtotal += baseTotal
		pricing.DiscountTotal += discount
	}

	return pricing, nil
}

// applyPromotion selects at most one promotion per line, most specific scope
// first. The discount is computed in quanta and rounded once into minor units.
func (r *discountResolver) applyPromotion(ctx context.Context, line *discountedLine, now time.Time) error {
	if r.promotions == nil {
		return nil
	}
	candidates, err := r.promotions.FindCandidates(ctx, scopeRefs(line.input.Scope), now)
	if err != nil {
		return translateRepositoryError("promotion lookup", err, nil)
	}
	promo, ok := pickPromotion(candidates)
	if !ok {
		return nil
	}

	qty := int64(line.input.Quantity)
	baseQ := line.input.BasePrice * qty * priceQuantum
	var discountQ int64
	switch promo.Discount.Kind {
	case domain.RateKindPercentage:
		// Basis points of the line base price.
		discountQ = line.input.BasePrice * promo.Discount.Value * qty
	default:
		discountQ = promo.Discount.Value * priceQuantum * qty
	}
	if discountQ > baseQ {
		discountQ = baseQ
	}
	if discountQ <= 0 {
		return nil
	}
	id := promo.ID
	line.promotionID = &id
	line.promoDiscount = roundHalfUp(discountQ)
	return nil
}

// applyCoupon validates the customer-entered code and distributes its
// cart-level amount across eligible lines by weight with largest-remainder
// allocation. Returns the applied coupon or nil.
func (r *discountResolver) applyCoupon(ctx context.Context, req DiscountRequest, lines []discountedLine, now time.Time) (*domain.Coupon, error) {
	// Repositories store codes in canonical uppercase; fold the entered code
	// first so full-width and mixed-case variants land on the same key.
	code := strings.ToUpper(textutil.NormalizeCode(req.CouponCode))
	if code == "" {
		return nil, nil
	}

	coupon, err := r.coupons.FindByCode(ctx, req.StoreID, code)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil, NewValidationError(ReasonCouponInvalid, "coupon_code", "coupon code not found")
		}
		return nil, translateRepositoryError("coupon lookup", err, nil)
	}

	if !coupon.Active || now.Before(coupon.StartsAt) || now.After(coupon.EndsAt) {
		return nil, NewValidationError(ReasonCouponInvalid, "coupon_code", "coupon is not active")
	}
	if coupon.UsageLimit != nil && coupon.UsedCount >= *coupon.UsageLimit {
		return nil, NewValidationError(ReasonCouponInvalid, "coupon_code", "coupon usage limit reached")
	}
	if coupon.PerCustomerLimit != nil {
		customerID := strings.TrimSpace(req.CustomerID)
		if customerID == "" {
			return nil, NewValidationError(ReasonCouponInvalid, "coupon_code", "coupon requires an identified customer")
		}
		usage, err := r.coupons.GetUsage(ctx, coupon.ID, customerID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
				return nil, translateRepositoryError("coupon usage lookup", err, nil)
			}
		} else if usage.Count >= *coupon.PerCustomerLimit {
			return nil, NewValidationError(ReasonCouponInvalid, "coupon_code", "per-customer coupon limit reached")
		}
	}

	eligible := make([]int, 0, len(lines))
	var eligibleTotal int64
	for i := range lines {
		if !couponCovers(coupon, lines[i].input.Scope) {
			continue
		}
		eligible = append(eligible, i)
		eligibleTotal += lines[i].lineNet()
	}
	if len(eligible) == 0 {
		return nil, NewValidationError(ReasonCouponInvalid, "coupon_code", "coupon does not apply to any cart line")
	}

	// Minimum order value is checked against the post-promotion eligible subtotal.
	if coupon.MinOrderValue != nil && eligibleTotal < *coupon.MinOrderValue {
		return nil, NewValidationError(ReasonCouponInvalid, "coupon_code",
			fmt.Sprintf("order value below coupon minimum of %d", *coupon.MinOrderValue))
	}

	var total int64
	switch coupon.Discount.Kind {
	case domain.RateKindPercentage:
		// Basis-point share of the eligible subtotal, rounded once.
		total = roundHalfUp(eligibleTotal * coupon.Discount.Value)
	default:
		total = coupon.Discount.Value
	}
	if total > eligibleTotal {
		total = eligibleTotal
	}
	if total <= 0 {
		return &coupon, nil
	}

	// Largest-remainder allocation in minor units: the shares sum to the coupon
	// amount exactly, and no line's share exceeds what is left of it.
	weights := make([]int64, len(eligible))
	for i, idx := range eligible {
		weights[i] = lines[idx].lineNet()
	}
	shares := allocateByWeight(total, weights)
	for i, idx := range eligible {
		lines[idx].couponDiscount = shares[i]
	}

	return &coupon, nil
}

// couponCovers reports whether the coupon scope matches the line.
func couponCovers(coupon domain.Coupon, scope RuleScopeQuery) bool {
	switch coupon.Scope {
	case domain.RuleScopeVariant:
		return coupon.ScopeRef == scope.VariantID
	case domain.RuleScopeProduct:
		return coupon.ScopeRef == scope.ProductID
	case domain.RuleScopeBrand:
		return coupon.ScopeRef == scope.BrandID
	case domain.RuleScopeCategory:
		return coupon.ScopeRef == scope.CategoryID
	default:
		return true
	}
}

// pickPromotion chooses the single winning promotion by scope specificity,
// priority, then recency.
func pickPromotion(promos []domain.Promotion) (domain.Promotion, bool) {
	if len(promos) == 0 {
		return domain.Promotion{}, false
	}
	sorted := make([]domain.Promotion, len(promos))
	copy(sorted, promos)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if ra, rb := scopeRank(a.Scope), scopeRank(b.Scope); ra != rb {
			return ra > rb
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return ruleRecency(a.CreatedAt, a.UpdatedAt).After(ruleRecency(b.CreatedAt, b.UpdatedAt))
	})
	return sorted[0], true
}

// allocateByWeight splits total across weights proportionally, assigning
// leftover units to the largest fractional remainders so the shares always
// sum to the total. Shares never exceed their weight.
func allocateByWeight(total int64, weights []int64) []int64 {
	shares := make([]int64, len(weights))
	if total <= 0 || len(weights) == 0 {
		return shares
	}
	var sum int64
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	if sum <= 0 {
		return shares
	}

	type remainder struct {
		index int
		frac  int64
	}
	remainders := make([]remainder, 0, len(weights))
	var allocated int64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		share := total * w / sum
		if share > w {
			share = w
		}
		shares[i] = share
		allocated += share
		remainders = append(remainders, remainder{index: i, frac: total * w % sum})
	}

	sort.SliceStable(remainders, func(i, j int) bool {
		return remainders[i].frac > remainders[j].frac
	})

	leftover := total - allocated
	for _, rem := range remainders {
		if leftover <= 0 {
			break
		}
		if shares[rem.index] < weights[rem.index] {
			shares[rem.index]++
			leftover--
		}
	}
	return shares
}

func scaleCeiling(ceiling *int64, qty int64) *int64 {
	if ceiling == nil {
		return nil
	}
	scaled := *ceiling * qty
	return &scaled
}
