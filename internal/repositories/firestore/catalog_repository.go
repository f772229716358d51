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

const (
	productCollection = "products"
	variantCollection = "productVariants"
)

// CatalogRepository reads the supplier catalog (products and variants) from Firestore.
type CatalogRepository struct {
	products *pfirestore.BaseRepository[productDocument]
	variants *pfirestore.BaseRepository[variantDocument]
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	products := pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil)
	variants := pfirestore.NewBaseRepository[variantDocument](provider, variantCollection, nil, nil)
	return &CatalogRepository{products: products, variants: variants}, nil
}

// GetProduct fetches a single catalog product.
func (r *CatalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("catalog repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("catalog repository: product id is required")
	}
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// GetVariant fetches a variant and verifies it belongs to the given product.
func (r *CatalogRepository) GetVariant(ctx context.Context, productID string, variantID string) (domain.Variant, error) {
	if r == nil || r.variants == nil {
		return domain.Variant{}, errors.New("catalog repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	variantID = strings.TrimSpace(variantID)
	if productID == "" || variantID == "" {
		return domain.Variant{}, errors.New("catalog repository: product id and variant id are required")
	}
	doc, err := r.variants.Get(ctx, variantID)
	if err != nil {
		return domain.Variant{}, err
	}
	variant := doc.Data.toDomain(doc.ID)
	if variant.ProductID != productID {
		return domain.Variant{}, pfirestore.WrapError("catalog.getVariant", status.Errorf(codes.NotFound, "variant %s does not belong to product %s", variantID, productID))
	}
	return variant, nil
}

// ListVariants returns every variant of the product ordered by SKU.
func (r *CatalogRepository) ListVariants(ctx context.Context, productID string) ([]domain.Variant, error) {
	if r == nil || r.variants == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, errors.New("catalog repository: product id is required")
	}
	docs, err := r.variants.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("productId", "==", productID).OrderBy("sku", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	variants := make([]domain.Variant, 0, len(docs))
	for _, doc := range docs {
		variants = append(variants, doc.Data.toDomain(doc.ID))
	}
	return variants, nil
}

type productDocument struct {
	SupplierID string    `firestore:"supplierId"`
	BrandID    string    `firestore:"brandId"`
	CategoryID string    `firestore:"categoryId"`
	Name       string    `firestore:"name"`
	Status     string    `firestore:"status"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:         id,
		SupplierID: strings.TrimSpace(d.SupplierID),
		BrandID:    strings.TrimSpace(d.BrandID),
		CategoryID: strings.TrimSpace(d.CategoryID),
		Name:       strings.TrimSpace(d.Name),
		Status:     strings.ToLower(strings.TrimSpace(d.Status)),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

type variantDocument struct {
	ProductID    string    `firestore:"productId"`
	SKU          string    `firestore:"sku"`
	Name         string    `firestore:"name"`
	SupplierCost int64     `firestore:"supplierCost"`
	WeightGrams  *int      `firestore:"weightGrams,omitempty"`
	Status       string    `firestore:"status"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func (d variantDocument) toDomain(id string) domain.Variant {
	return domain.Variant{
		ID:           id,
		ProductID:    strings.TrimSpace(d.ProductID),
		SKU:          strings.TrimSpace(d.SKU),
		Name:         strings.TrimSpace(d.Name),
		SupplierCost: d.SupplierCost,
		WeightGrams:  d.WeightGrams,
		Status:       strings.ToLower(strings.TrimSpace(d.Status)),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}
