package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/ordermesh/api/internal/domain"
	pfirestore "github.com/ordermesh/api/internal/platform/firestore"
	"github.com/ordermesh/api/internal/repositories"
)

const pricingRuleCollection = "pricingRules"

// PricingRuleRepository reads admin-authored pricing rules from Firestore.
// Same matchKey layout as markup rules, minus the region dimension.
type PricingRuleRepository struct {
	base *pfirestore.BaseRepository[pricingRuleDocument]
}

// NewPricingRuleRepository constructs a Firestore-backed pricing rule repository.
func NewPricingRuleRepository(provider *pfirestore.Provider) (*PricingRuleRepository, error) {
	if provider == nil {
		return nil, errors.New("pricing rule repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[pricingRuleDocument](provider, pricingRuleCollection, nil, nil)
	return &PricingRuleRepository{base: base}, nil
}

// FindCandidates returns active rules whose scope matches any of the refs and
// whose schedule covers now. Pricing rules never match on brand, so the brand
// key is dropped before querying.
func (r *PricingRuleRepository) FindCandidates(ctx context.Context, refs repositories.RuleScopeRefs, now time.Time) ([]domain.PricingRule, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("pricing rule repository not initialised")
	}

	refs.BrandID = ""
	keys := scopeMatchKeys(refs)
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("active", "==", true).Where("matchKey", "in", keys)
	})
	if err != nil {
		return nil, err
	}

	rules := make([]domain.PricingRule, 0, len(docs))
	for _, doc := range docs {
		rule := doc.Data.toDomain(doc.ID)
		if !ruleWindowContains(rule.StartsAt, rule.EndsAt, now) {
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

type pricingRuleDocument struct {
	Scope           string     `firestore:"scope"`
	ScopeRef        string     `firestore:"scopeRef"`
	MatchKey        string     `firestore:"matchKey"`
	MinMarginKind   string     `firestore:"minMarginKind"`
	MinMarginValue  int64      `firestore:"minMarginValue"`
	MinSellingPrice *int64     `firestore:"minSellingPrice,omitempty"`
	MaxSellingPrice *int64     `firestore:"maxSellingPrice,omitempty"`
	Priority        int        `firestore:"priority"`
	Active          bool       `firestore:"active"`
	StartsAt        *time.Time `firestore:"startsAt,omitempty"`
	EndsAt          *time.Time `firestore:"endsAt,omitempty"`
	CreatedAt       time.Time  `firestore:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt"`
}

func (d pricingRuleDocument) toDomain(id string) domain.PricingRule {
	return domain.PricingRule{
		ID:       id,
		Scope:    domain.RuleScope(strings.ToLower(strings.TrimSpace(d.Scope))),
		ScopeRef: strings.TrimSpace(d.ScopeRef),
		MinMargin: domain.RateValue{
			Kind:  domain.RateKind(strings.ToLower(strings.TrimSpace(d.MinMarginKind))),
			Value: d.MinMarginValue,
		},
		MinSellingPrice: d.MinSellingPrice,
		MaxSellingPrice: d.MaxSellingPrice,
		Priority:        d.Priority,
		Active:          d.Active,
		StartsAt:        d.StartsAt,
		EndsAt:          d.EndsAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}
