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

const markupRuleCollection = "markupRules"

// MarkupRuleRepository reads admin-authored markup rules from Firestore.
//
// Rule documents carry a denormalised matchKey ("variant:<id>", "product:<id>",
// "brand:<id>", "category:<id>", or "global") so one in-clause query covers
// every scope level a cart line can match. Specificity is the resolver's job;
// the repository only narrows to plausible candidates.
type MarkupRuleRepository struct {
	base *pfirestore.BaseRepository[markupRuleDocument]
}

// NewMarkupRuleRepository constructs a Firestore-backed markup rule repository.
func NewMarkupRuleRepository(provider *pfirestore.Provider) (*MarkupRuleRepository, error) {
	if provider == nil {
		return nil, errors.New("markup rule repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[markupRuleDocument](provider, markupRuleCollection, nil, nil)
	return &MarkupRuleRepository{base: base}, nil
}

// FindCandidates returns active rules whose scope matches any of the refs and
// whose schedule covers now. Region-scoped rules are kept only when they match
// the requested region; region-less rules always qualify.
func (r *MarkupRuleRepository) FindCandidates(ctx context.Context, refs repositories.RuleScopeRefs, now time.Time) ([]domain.MarkupRule, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("markup rule repository not initialised")
	}

	keys := scopeMatchKeys(refs)
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("active", "==", true).Where("matchKey", "in", keys)
	})
	if err != nil {
		return nil, err
	}

	region := strings.ToUpper(strings.TrimSpace(refs.Region))
	rules := make([]domain.MarkupRule, 0, len(docs))
	for _, doc := range docs {
		rule := doc.Data.toDomain(doc.ID)
		if !ruleWindowContains(rule.StartsAt, rule.EndsAt, now) {
			continue
		}
		if rule.Region != "" && rule.Region != region {
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// scopeMatchKeys builds the match keys a cart line can satisfy, most specific
// first. Empty refs are skipped; "global" always applies.
func scopeMatchKeys(refs repositories.RuleScopeRefs) []string {
	keys := make([]string, 0, 5)
	if v := strings.TrimSpace(refs.VariantID); v != "" {
		keys = append(keys, string(domain.RuleScopeVariant)+":"+v)
	}
	if v := strings.TrimSpace(refs.ProductID); v != "" {
		keys = append(keys, string(domain.RuleScopeProduct)+":"+v)
	}
	if v := strings.TrimSpace(refs.BrandID); v != "" {
		keys = append(keys, string(domain.RuleScopeBrand)+":"+v)
	}
	if v := strings.TrimSpace(refs.CategoryID); v != "" {
		keys = append(keys, string(domain.RuleScopeCategory)+":"+v)
	}
	keys = append(keys, string(domain.RuleScopeGlobal))
	return keys
}

// ruleWindowContains reports whether now falls inside the optional activity window.
func ruleWindowContains(startsAt, endsAt *time.Time, now time.Time) bool {
	if startsAt != nil && now.Before(*startsAt) {
		return false
	}
	if endsAt != nil && now.After(*endsAt) {
		return false
	}
	return true
}

type markupRuleDocument struct {
	Scope          string     `firestore:"scope"`
	ScopeRef       string     `firestore:"scopeRef"`
	MatchKey       string     `firestore:"matchKey"`
	Region         string     `firestore:"region"`
	MinMarkupKind  string     `firestore:"minMarkupKind"`
	MinMarkupValue int64      `firestore:"minMarkupValue"`
	MaxMarkupKind  string     `firestore:"maxMarkupKind,omitempty"`
	MaxMarkupValue *int64     `firestore:"maxMarkupValue,omitempty"`
	Priority       int        `firestore:"priority"`
	Active         bool       `firestore:"active"`
	StartsAt       *time.Time `firestore:"startsAt,omitempty"`
	EndsAt         *time.Time `firestore:"endsAt,omitempty"`
	CreatedAt      time.Time  `firestore:"createdAt"`
	UpdatedAt      time.Time  `firestore:"updatedAt"`
}

func (d markupRuleDocument) toDomain(id string) domain.MarkupRule {
	rule := domain.MarkupRule{
		ID:       id,
		Scope:    domain.RuleScope(strings.ToLower(strings.TrimSpace(d.Scope))),
		ScopeRef: strings.TrimSpace(d.ScopeRef),
		Region:   strings.ToUpper(strings.TrimSpace(d.Region)),
		MinMarkup: domain.RateValue{
			Kind:  domain.RateKind(strings.ToLower(strings.TrimSpace(d.MinMarkupKind))),
			Value: d.MinMarkupValue,
		},
		Priority:  d.Priority,
		Active:    d.Active,
		StartsAt:  d.StartsAt,
		EndsAt:    d.EndsAt,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.MaxMarkupValue != nil {
		rule.MaxMarkup = &domain.RateValue{
			Kind:  domain.RateKind(strings.ToLower(strings.TrimSpace(d.MaxMarkupKind))),
			Value: *d.MaxMarkupValue,
		}
	}
	return rule
}
