package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	domain "github.com/ordermesh/api/internal/domain"
	"github.com/ordermesh/api/internal/repositories"
)

// priceQuantum is the sub-minor-unit resolution pricing intermediates use.
// One minor currency unit equals 10000 quanta; rounding to whole minor units
// happens exactly once, at the end of the pipeline.
const priceQuantum = 10000

// RuleResolverDeps bundles collaborators required to construct a rule resolver.
type RuleResolverDeps struct {
	MarkupRules  repositories.MarkupRuleRepository
	PricingRules repositories.PricingRuleRepository
	Clock        func() time.Time
}

type ruleResolver struct {
	markupRules  repositories.MarkupRuleRepository
	pricingRules repositories.PricingRuleRepository
	clock        func() time.Time
}

// NewRuleResolver constructs the precedence-based bound resolver.
func NewRuleResolver(deps RuleResolverDeps) (RuleResolver, error) {
	if deps.MarkupRules == nil {
		return nil, errors.New("rule resolver: markup rule repository is required")
	}
	if deps.PricingRules == nil {
		return nil, errors.New("rule resolver: pricing rule repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &ruleResolver{
		markupRules:  deps.MarkupRules,
		pricingRules: deps.PricingRules,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (r *ruleResolver) ResolveMarkupBounds(ctx context.Context, q RuleScopeQuery) (MarkupBounds, error) {
	refs := scopeRefs(q)
	candidates, err := r.markupRules.FindCandidates(ctx, refs, r.clock())
	if err != nil {
		return MarkupBounds{}, translateRepositoryError("markup rule lookup", err, nil)
	}
	rule, ok := pickMarkupRule(candidates, q.Region)
	if !ok {
		return MarkupBounds{Floor: q.SupplierCost}, nil
	}

	bounds := MarkupBounds{
		Floor:  q.SupplierCost + rateOnCost(rule.MinMarkup, q.SupplierCost),
		RuleID: rule.ID,
	}
	if rule.MaxMarkup != nil {
		ceiling := q.SupplierCost + rateOnCost(*rule.MaxMarkup, q.SupplierCost)
		bounds.Ceiling = &ceiling
	}
	return bounds, nil
}

func (r *ruleResolver) ResolvePricingBounds(ctx context.Context, q RuleScopeQuery) (PricingBounds, error) {
	// Pricing rules carry no region dimension.
	refs := scopeRefs(q)
	refs.Region = ""
	refs.BrandID = ""
	candidates, err := r.pricingRules.FindCandidates(ctx, refs, r.clock())
	if err != nil {
		return PricingBounds{}, translateRepositoryError("pricing rule lookup", err, nil)
	}
	rule, ok := pickPricingRule(candidates)
	if !ok {
		return PricingBounds{Floor: q.SupplierCost}, nil
	}

	floor := q.SupplierCost + rateOnCost(rule.MinMargin, q.SupplierCost)
	if rule.MinSellingPrice != nil && *rule.MinSellingPrice > floor {
		floor = *rule.MinSellingPrice
	}
	bounds := PricingBounds{Floor: floor, RuleID: rule.ID}
	if rule.MaxSellingPrice != nil {
		ceiling := *rule.MaxSellingPrice
		bounds.Ceiling = &ceiling
	}
	return bounds, nil
}

func (r *ruleResolver) ResolveBounds(ctx context.Context, q RuleScopeQuery) (PriceBounds, error) {
	markup, err := r.ResolveMarkupBounds(ctx, q)
	if err != nil {
		return PriceBounds{}, err
	}
	pricing, err := r.ResolvePricingBounds(ctx, q)
	if err != nil {
		return PriceBounds{}, err
	}

	bounds := PriceBounds{
		MarkupFloor:   markup.Floor,
		MarginFloor:   pricing.Floor,
		MarkupRuleID:  markup.RuleID,
		PricingRuleID: pricing.RuleID,
	}
	bounds.Floor = markup.Floor
	if pricing.Floor > bounds.Floor {
		bounds.Floor = pricing.Floor
	}
	bounds.Ceiling = minCeiling(markup.Ceiling, pricing.Ceiling)
	return bounds, nil
}

// rateOnCost evaluates a rate against the supplier cost in whole minor units.
// Percentage values are basis points of the cost; a zero cost contributes
// nothing from the percentage component rather than dividing anywhere.
func rateOnCost(rate domain.RateValue, cost int64) int64 {
	switch rate.Kind {
	case domain.RateKindPercentage:
		if cost <= 0 {
			return 0
		}
		return roundHalfUp(cost * rate.Value)
	default:
		return rate.Value
	}
}

// roundHalfUp converts quanta to whole minor units, rounding half up.
func roundHalfUp(quanta int64) int64 {
	if quanta >= 0 {
		return (quanta + priceQuantum/2) / priceQuantum
	}
	return -((-quanta + priceQuantum/2 - 1) / priceQuantum)
}

func minCeiling(a, b *int64) *int64 {
	switch {
	case a == nil:
		return copyInt64(b)
	case b == nil:
		return copyInt64(a)
	case *a <= *b:
		return copyInt64(a)
	default:
		return copyInt64(b)
	}
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func scopeRefs(q RuleScopeQuery) repositories.RuleScopeRefs {
	return repositories.RuleScopeRefs{
		VariantID:  strings.TrimSpace(q.VariantID),
		ProductID:  strings.TrimSpace(q.ProductID),
		BrandID:    strings.TrimSpace(q.BrandID),
		CategoryID: strings.TrimSpace(q.CategoryID),
		Region:     strings.TrimSpace(q.Region),
	}
}

// scopeRank orders rule scopes from least to most specific.
func scopeRank(scope domain.RuleScope) int {
	switch scope {
	case domain.RuleScopeVariant:
		return 5
	case domain.RuleScopeProduct:
		return 4
	case domain.RuleScopeBrand:
		return 3
	case domain.RuleScopeCategory:
		return 2
	default:
		return 1
	}
}

func ruleRecency(createdAt, updatedAt time.Time) time.Time {
	if updatedAt.After(createdAt) {
		return updatedAt
	}
	return createdAt
}

// pickMarkupRule chooses the winning markup rule: most specific scope first,
// region-scoped over region-less at the same scope, then priority, then recency.
func pickMarkupRule(rules []domain.MarkupRule, region string) (domain.MarkupRule, bool) {
	if len(rules) == 0 {
		return domain.MarkupRule{}, false
	}
	sorted := make([]domain.MarkupRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if ra, rb := scopeRank(a.Scope), scopeRank(b.Scope); ra != rb {
			return ra > rb
		}
		aRegion := region != "" && strings.EqualFold(a.Region, region)
		bRegion := region != "" && strings.EqualFold(b.Region, region)
		if aRegion != bRegion {
			return aRegion
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return ruleRecency(a.CreatedAt, a.UpdatedAt).After(ruleRecency(b.CreatedAt, b.UpdatedAt))
	})
	return sorted[0], true
}

// pickPricingRule chooses the winning pricing rule by scope, priority, recency.
func pickPricingRule(rules []domain.PricingRule) (domain.PricingRule, bool) {
	if len(rules) == 0 {
		return domain.PricingRule{}, false
	}
	sorted := make([]domain.PricingRule, len(rules))
	copy(sorted, rules)
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
