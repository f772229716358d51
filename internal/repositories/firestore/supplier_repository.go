package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/ordermesh/api/internal/domain"
	pfirestore "github.com/ordermesh/api/internal/platform/firestore"
)

const supplierCollection = "suppliers"

// SupplierRepository reads supplier accounts from Firestore.
type SupplierRepository struct {
	base *pfirestore.BaseRepository[supplierDocument]
}

// NewSupplierRepository constructs a Firestore-backed supplier repository.
func NewSupplierRepository(provider *pfirestore.Provider) (*SupplierRepository, error) {
	if provider == nil {
		return nil, errors.New("supplier repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[supplierDocument](provider, supplierCollection, nil, nil)
	return &SupplierRepository{base: base}, nil
}

// FindByID fetches a single supplier.
func (r *SupplierRepository) FindByID(ctx context.Context, supplierID string) (domain.Supplier, error) {
	if r == nil || r.base == nil {
		return domain.Supplier{}, errors.New("supplier repository not initialised")
	}
	supplierID = strings.TrimSpace(supplierID)
	if supplierID == "" {
		return domain.Supplier{}, errors.New("supplier repository: supplier id is required")
	}
	doc, err := r.base.Get(ctx, supplierID)
	if err != nil {
		return domain.Supplier{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

type supplierDocument struct {
	Name      string               `firestore:"name"`
	Status    string               `firestore:"status"`
	Region    string               `firestore:"region"`
	Tier      supplierTierDocument `firestore:"tier"`
	CreatedAt time.Time            `firestore:"createdAt"`
	UpdatedAt time.Time            `firestore:"updatedAt"`
}

type supplierTierDocument struct {
	Name            string `firestore:"name"`
	MinOrderValue   int64  `firestore:"minOrderValue"`
	MonthlyValueCap int64  `firestore:"monthlyValueCap"`
}

func (d supplierDocument) toDomain(id string) domain.Supplier {
	return domain.Supplier{
		ID:     id,
		Name:   strings.TrimSpace(d.Name),
		Status: domain.SupplierStatus(strings.ToLower(strings.TrimSpace(d.Status))),
		Region: strings.ToUpper(strings.TrimSpace(d.Region)),
		Tier: domain.SupplierTier{
			Name:            strings.TrimSpace(d.Tier.Name),
			MinOrderValue:   d.Tier.MinOrderValue,
			MonthlyValueCap: d.Tier.MonthlyValueCap,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
