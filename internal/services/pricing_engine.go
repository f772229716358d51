package services

import (
	"context"
	"errors"
	"strings"
)

// PricingServiceDeps bundles collaborators required to construct the pricing service.
type PricingServiceDeps struct {
	Resolver  RuleResolver
	Discounts DiscountResolver
	// DefaultCurrency is applied when the command omits one.
	DefaultCurrency string
}

type pricingService struct {
	resolver        RuleResolver
	discounts       DiscountResolver
	defaultCurrency string
}

// NewPricingService constructs the bound-validated cart pricing pipeline.
func NewPricingService(deps PricingServiceDeps) (PricingService, error) {
	if deps.Resolver == nil {
		return nil, errors.New("pricing service: rule resolver is required")
	}
	if deps.Discounts == nil {
		return nil, errors.New("pricing service: discount resolver is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "MYR"
	}
	return &pricingService{
		resolver:        deps.Resolver,
		discounts:       deps.Discounts,
		defaultCurrency: currency,
	}, nil
}

func (s *pricingService) PriceCart(ctx context.Context, cmd PriceCartCommand) (CartPricing, error) {
	if len(cmd.Lines) == 0 {
		return CartPricing{}, NewValidationError(ReasonMissingField, "lines", "cart has no lines")
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}

	discountLines := make([]DiscountLine, 0, len(cmd.Lines))
	for _, line := range cmd.Lines {
		if line.Quantity <= 0 {
			return CartPricing{}, NewValidationError(ReasonInvalidQuantity, "quantity", "quantity must be positive")
		}
		scope := RuleScopeQuery{
			VariantID:    line.VariantID,
			ProductID:    line.ProductID,
			BrandID:      line.BrandID,
			CategoryID:   line.CategoryID,
			Region:       cmd.Region,
			SupplierCost: line.SupplierCost,
		}
		bounds, err := s.resolver.ResolveBounds(ctx, scope)
		if err != nil {
			return CartPricing{}, err
		}

		// The listed unit price itself must sit inside the resolved bounds
		// before any discount applies. Orders reject, they never clamp.
		if line.ListedPrice < bounds.Floor {
			return CartPricing{}, &PricingViolation{
				ResellerProductID: line.ResellerProductID,
				Price:             line.ListedPrice,
				Floor:             bounds.Floor,
				Ceiling:           copyInt64(bounds.Ceiling),
			}
		}
		if bounds.Ceiling != nil && line.ListedPrice > *bounds.Ceiling {
			return CartPricing{}, &PricingViolation{
				ResellerProductID: line.ResellerProductID,
				Price:             line.ListedPrice,
				Floor:             bounds.Floor,
				Ceiling:           copyInt64(bounds.Ceiling),
			}
		}

		discountLines = append(discountLines, DiscountLine{
			ResellerProductID: line.ResellerProductID,
			Scope:             scope,
			BasePrice:         line.ListedPrice,
			Quantity:          line.Quantity,
			Bounds:            bounds,
		})
	}

	return s.discounts.Resolve(ctx, DiscountRequest{
		StoreID:    cmd.StoreID,
		CustomerID: cmd.CustomerID,
		CouponCode: cmd.CouponCode,
		Currency:   currency,
		Lines:      discountLines,
	})
}

// AdviseListingPrice returns the nearest in-bounds price for listing surfaces.
func (s *pricingService) AdviseListingPrice(ctx context.Context, cmd AdvisePriceCommand) (AdvisoryPrice, error) {
	bounds, err := s.resolver.ResolveBounds(ctx, cmd.Scope)
	if err != nil {
		return AdvisoryPrice{}, err
	}

	advice := AdvisoryPrice{
		Requested: cmd.Requested,
		Advised:   cmd.Requested,
		Bounds:    bounds,
	}
	if cmd.Requested < bounds.Floor {
		advice.Advised = bounds.Floor
		advice.Clamped = true
	} else if bounds.Ceiling != nil && cmd.Requested > *bounds.Ceiling {
		advice.Advised = *bounds.Ceiling
		advice.Clamped = true
	}
	return advice, nil
}
