package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/ordermesh/api/internal/domain"
	pfirestore "github.com/ordermesh/api/internal/platform/firestore"
)

const resellerCollection = "resellers"

// ResellerRepository reads merchant accounts from Firestore.
type ResellerRepository struct {
	base *pfirestore.BaseRepository[resellerDocument]
}

// NewResellerRepository constructs a Firestore-backed reseller repository.
func NewResellerRepository(provider *pfirestore.Provider) (*ResellerRepository, error) {
	if provider == nil {
		return nil, errors.New("reseller repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[resellerDocument](provider, resellerCollection, nil, nil)
	return &ResellerRepository{base: base}, nil
}

// FindByID fetches a single reseller account.
func (r *ResellerRepository) FindByID(ctx context.Context, resellerID string) (domain.Reseller, error) {
	if r == nil || r.base == nil {
		return domain.Reseller{}, errors.New("reseller repository not initialised")
	}
	resellerID = strings.TrimSpace(resellerID)
	if resellerID == "" {
		return domain.Reseller{}, errors.New("reseller repository: reseller id is required")
	}
	doc, err := r.base.Get(ctx, resellerID)
	if err != nil {
		return domain.Reseller{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

type resellerDocument struct {
	Name         string               `firestore:"name"`
	Status       string               `firestore:"status"`
	Subscription subscriptionDocument `firestore:"subscription"`
	CreatedAt    time.Time            `firestore:"createdAt"`
	UpdatedAt    time.Time            `firestore:"updatedAt"`
}

type subscriptionDocument struct {
	Plan              string     `firestore:"plan"`
	Status            string     `firestore:"status"`
	MonthlyOrderLimit int        `firestore:"monthlyOrderLimit"`
	RenewsAt          *time.Time `firestore:"renewsAt,omitempty"`
}

func (d resellerDocument) toDomain(id string) domain.Reseller {
	return domain.Reseller{
		ID:     id,
		Name:   strings.TrimSpace(d.Name),
		Status: strings.ToLower(strings.TrimSpace(d.Status)),
		Subscription: domain.Subscription{
			Plan:              strings.TrimSpace(d.Subscription.Plan),
			Status:            domain.SubscriptionStatus(strings.ToLower(strings.TrimSpace(d.Subscription.Status))),
			MonthlyOrderLimit: d.Subscription.MonthlyOrderLimit,
			RenewsAt:          d.Subscription.RenewsAt,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
