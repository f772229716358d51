package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/ordermesh/api/internal/domain"
	pfirestore "github.com/ordermesh/api/internal/platform/firestore"
)

const resellerProductCollection = "resellerProducts"

// ResellerProductRepository reads and deactivates store listings in Firestore.
type ResellerProductRepository struct {
	base *pfirestore.BaseRepository[resellerProductDocument]
}

// NewResellerProductRepository constructs a Firestore-backed listing repository.
func NewResellerProductRepository(provider *pfirestore.Provider) (*ResellerProductRepository, error) {
	if provider == nil {
		return nil, errors.New("reseller product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[resellerProductDocument](provider, resellerProductCollection, nil, nil)
	return &ResellerProductRepository{base: base}, nil
}

// FindByID fetches a single listing.
func (r *ResellerProductRepository) FindByID(ctx context.Context, resellerProductID string) (domain.ResellerProduct, error) {
	if r == nil || r.base == nil {
		return domain.ResellerProduct{}, errors.New("reseller product repository not initialised")
	}
	resellerProductID = strings.TrimSpace(resellerProductID)
	if resellerProductID == "" {
		return domain.ResellerProduct{}, errors.New("reseller product repository: id is required")
	}
	doc, err := r.base.Get(ctx, resellerProductID)
	if err != nil {
		return domain.ResellerProduct{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByStoreAndVariant resolves the listing a store sells for a supplier variant.
func (r *ResellerProductRepository) FindByStoreAndVariant(ctx context.Context, storeID string, variantID string) (domain.ResellerProduct, error) {
	if r == nil || r.base == nil {
		return domain.ResellerProduct{}, errors.New("reseller product repository not initialised")
	}
	storeID = strings.TrimSpace(storeID)
	variantID = strings.TrimSpace(variantID)
	if storeID == "" || variantID == "" {
		return domain.ResellerProduct{}, errors.New("reseller product repository: store id and variant id are required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("storeId", "==", storeID).Where("variantId", "==", variantID).Limit(1)
	})
	if err != nil {
		return domain.ResellerProduct{}, err
	}
	if len(docs) == 0 {
		return domain.ResellerProduct{}, pfirestore.WrapError("resellerProducts.findByStoreAndVariant", status.Errorf(codes.NotFound, "no listing for store %s variant %s", storeID, variantID))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// Deactivate clears the active flag and records why. Used when supplier stock
// for the listing reaches zero.
func (r *ResellerProductRepository) Deactivate(ctx context.Context, resellerProductID string, reason string, now time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("reseller product repository not initialised")
	}
	resellerProductID = strings.TrimSpace(resellerProductID)
	if resellerProductID == "" {
		return errors.New("reseller product repository: id is required")
	}

	updates := []firestore.Update{
		{Path: "active", Value: false},
		{Path: "deactivatedReason", Value: strings.TrimSpace(reason)},
		{Path: "deactivatedAt", Value: now.UTC()},
		{Path: "updatedAt", Value: now.UTC()},
	}
	if _, err := r.base.Update(ctx, resellerProductID, updates); err != nil {
		return err
	}
	return nil
}

type resellerProductDocument struct {
	StoreID     string    `firestore:"storeId"`
	ProductID   string    `firestore:"productId"`
	VariantID   string    `firestore:"variantId"`
	SupplierID  string    `firestore:"supplierId"`
	Price       int64     `firestore:"price"`
	Margin      int64     `firestore:"margin"`
	SyncedStock int       `firestore:"syncedStock"`
	Active      bool      `firestore:"active"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func (d resellerProductDocument) toDomain(id string) domain.ResellerProduct {
	return domain.ResellerProduct{
		ID:          id,
		StoreID:     strings.TrimSpace(d.StoreID),
		ProductID:   strings.TrimSpace(d.ProductID),
		VariantID:   strings.TrimSpace(d.VariantID),
		SupplierID:  strings.TrimSpace(d.SupplierID),
		Price:       d.Price,
		Margin:      d.Margin,
		SyncedStock: d.SyncedStock,
		Active:      d.Active,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
