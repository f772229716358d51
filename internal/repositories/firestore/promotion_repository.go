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

const promotionCollection = "promotions"

// PromotionRepository reads scheduled promotions from Firestore.
type PromotionRepository struct {
	base *pfirestore.BaseRepository[promotionDocument]
}

// NewPromotionRepository constructs a Firestore-backed promotion repository.
func NewPromotionRepository(provider *pfirestore.Provider) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[promotionDocument](provider, promotionCollection, nil, nil)
	return &PromotionRepository{base: base}, nil
}

// FindCandidates returns running promotions whose scope matches any of the
// refs. Promotions never match on brand.
func (r *PromotionRepository) FindCandidates(ctx context.Context, refs repositories.RuleScopeRefs, now time.Time) ([]domain.Promotion, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("promotion repository not initialised")
	}

	refs.BrandID = ""
	keys := scopeMatchKeys(refs)
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("active", "==", true).Where("matchKey", "in", keys)
	})
	if err != nil {
		return nil, err
	}

	promos := make([]domain.Promotion, 0, len(docs))
	for _, doc := range docs {
		promo := doc.Data.toDomain(doc.ID)
		if now.Before(promo.StartsAt) || now.After(promo.EndsAt) {
			continue
		}
		promos = append(promos, promo)
	}
	return promos, nil
}

type promotionDocument struct {
	Name          string    `firestore:"name"`
	Scope         string    `firestore:"scope"`
	ScopeRef      string    `firestore:"scopeRef"`
	MatchKey      string    `firestore:"matchKey"`
	DiscountKind  string    `firestore:"discountKind"`
	DiscountValue int64     `firestore:"discountValue"`
	Priority      int       `firestore:"priority"`
	Active        bool      `firestore:"active"`
	StartsAt      time.Time `firestore:"startsAt"`
	EndsAt        time.Time `firestore:"endsAt"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func (d promotionDocument) toDomain(id string) domain.Promotion {
	return domain.Promotion{
		ID:       id,
		Name:     strings.TrimSpace(d.Name),
		Scope:    domain.RuleScope(strings.ToLower(strings.TrimSpace(d.Scope))),
		ScopeRef: strings.TrimSpace(d.ScopeRef),
		Discount: domain.RateValue{
			Kind:  domain.RateKind(strings.ToLower(strings.TrimSpace(d.DiscountKind))),
			Value: d.DiscountValue,
		},
		Priority:  d.Priority,
		Active:    d.Active,
		StartsAt:  d.StartsAt,
		EndsAt:    d.EndsAt,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
