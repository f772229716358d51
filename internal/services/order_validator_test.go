package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/ordermesh/api/internal/domain"
	"github.com/ordermesh/api/internal/repositories"
)

type validatorRepoErr struct {
	notFound bool
}

func (e *validatorRepoErr) Error() string       { return "repository error" }
func (e *validatorRepoErr) IsNotFound() bool    { return e.notFound }
func (e *validatorRepoErr) IsConflict() bool    { return false }
func (e *validatorRepoErr) IsUnavailable() bool { return !e.notFound }

type stubStoreRepo struct {
	stores map[string]domain.Store
}

func (s *stubStoreRepo) FindByID(ctx context.Context, storeID string) (domain.Store, error) {
	if store, ok := s.stores[storeID]; ok {
		return store, nil
	}
	return domain.Store{}, &validatorRepoErr{notFound: true}
}

func (s *stubStoreRepo) ListByReseller(ctx context.Context, resellerID string, pager domain.Pagination) (domain.CursorPage[domain.Store], error) {
	return domain.CursorPage[domain.Store]{}, nil
}

type stubResellerRepo struct {
	resellers map[string]domain.Reseller
}

func (s *stubResellerRepo) FindByID(ctx context.Context, resellerID string) (domain.Reseller, error) {
	if reseller, ok := s.resellers[resellerID]; ok {
		return reseller, nil
	}
	return domain.Reseller{}, &validatorRepoErr{notFound: true}
}

type stubSupplierRepo struct {
	suppliers map[string]domain.Supplier
}

func (s *stubSupplierRepo) FindByID(ctx context.Context, supplierID string) (domain.Supplier, error) {
	if supplier, ok := s.suppliers[supplierID]; ok {
		return supplier, nil
	}
	return domain.Supplier{}, &validatorRepoErr{notFound: true}
}

type stubCatalogRepo struct {
	products map[string]domain.Product
	variants map[string]domain.Variant
}

func (s *stubCatalogRepo) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if product, ok := s.products[productID]; ok {
		return product, nil
	}
	return domain.Product{}, &validatorRepoErr{notFound: true}
}

func (s *stubCatalogRepo) GetVariant(ctx context.Context, productID, variantID string) (domain.Variant, error) {
	variant, ok := s.variants[variantID]
	if !ok || variant.ProductID != productID {
		return domain.Variant{}, &validatorRepoErr{notFound: true}
	}
	return variant, nil
}

func (s *stubCatalogRepo) ListVariants(ctx context.Context, productID string) ([]domain.Variant, error) {
	return nil, nil
}

type stubResellerProductRepo struct {
	listings    map[string]domain.ResellerProduct
	deactivated []string
}

func (s *stubResellerProductRepo) FindByID(ctx context.Context, id string) (domain.ResellerProduct, error) {
	if listing, ok := s.listings[id]; ok {
		return listing, nil
	}
	return domain.ResellerProduct{}, &validatorRepoErr{notFound: true}
}

func (s *stubResellerProductRepo) FindByStoreAndVariant(ctx context.Context, storeID, variantID string) (domain.ResellerProduct, error) {
	for _, listing := range s.listings {
		if listing.StoreID == storeID && listing.VariantID == variantID {
			return listing, nil
		}
	}
	return domain.ResellerProduct{}, &validatorRepoErr{notFound: true}
}

func (s *stubResellerProductRepo) Deactivate(ctx context.Context, id, reason string, now time.Time) error {
	s.deactivated = append(s.deactivated, id)
	return nil
}

type stubTierGuard struct {
	canPlaceErr      error
	supplierValueErr error
	checkedSuppliers []string
	checkedValues    []int64
}

func (s *stubTierGuard) CanPlaceOrder(ctx context.Context, reseller domain.Reseller) error {
	return s.canPlaceErr
}

func (s *stubTierGuard) CheckSupplierOrderValue(ctx context.Context, supplier domain.Supplier, orderValue int64) error {
	s.checkedSuppliers = append(s.checkedSuppliers, supplier.ID)
	s.checkedValues = append(s.checkedValues, orderValue)
	return s.supplierValueErr
}

type stubInstrumentVerifier struct {
	err      error
	verified []string
}

func (s *stubInstrumentVerifier) VerifyInstrument(ctx context.Context, method domain.PaymentMethod, instrumentID string) error {
	s.verified = append(s.verified, instrumentID)
	return s.err
}

type validatorFixture struct {
	stores           *stubStoreRepo
	resellers        *stubResellerRepo
	suppliers        *stubSupplierRepo
	catalog          *stubCatalogRepo
	resellerProducts *stubResellerProductRepo
	tierGuard        *stubTierGuard
	instruments      *stubInstrumentVerifier
}

func newValidatorFixture() *validatorFixture {
	weight := 500
	return &validatorFixture{
		stores: &stubStoreRepo{stores: map[string]domain.Store{
			"store-1": {ID: "store-1", ResellerID: "reseller-1", Status: domain.StoreStatusActive, Region: "MY", Currency: "MYR"},
		}},
		resellers: &stubResellerRepo{resellers: map[string]domain.Reseller{
			"reseller-1": activeReseller(100),
		}},
		suppliers: &stubSupplierRepo{suppliers: map[string]domain.Supplier{
			"sup-1": {ID: "sup-1", Status: domain.SupplierStatusActive, Region: "MY"},
		}},
		catalog: &stubCatalogRepo{
			products: map[string]domain.Product{
				"prod-1": {ID: "prod-1", SupplierID: "sup-1", Status: "active"},
			},
			variants: map[string]domain.Variant{
				"var-1": {ID: "var-1", ProductID: "prod-1", SKU: "SKU-1", SupplierCost: 4000, WeightGrams: &weight, Status: "active"},
			},
		},
		resellerProducts: &stubResellerProductRepo{listings: map[string]domain.ResellerProduct{
			"rp-1": {ID: "rp-1", StoreID: "store-1", ProductID: "prod-1", VariantID: "var-1", SupplierID: "sup-1", Price: 8000, Active: true},
		}},
		tierGuard:   &stubTierGuard{},
		instruments: &stubInstrumentVerifier{},
	}
}

func (f *validatorFixture) build(t *testing.T) OrderValidator {
	t.Helper()
	validator, err := NewOrderValidator(OrderValidatorDeps{
		Stores:           f.stores,
		Resellers:        f.resellers,
		Suppliers:        f.suppliers,
		Catalog:          f.catalog,
		ResellerProducts: f.resellerProducts,
		TierGuard:        f.tierGuard,
		Instruments:      f.instruments,
		SupportedMethods: []domain.PaymentMethod{domain.PaymentMethodCard, domain.PaymentMethodCOD},
	})
	if err != nil {
		t.Fatalf("new order validator: %v", err)
	}
	return validator
}

func validCommand() CreateOrderCommand {
	return CreateOrderCommand{
		StoreID:       "store-1",
		CustomerID:    "cust-1",
		CartID:        "cart-1",
		PaymentMethod: domain.PaymentMethodCard,
		Lines: []OrderLineInput{
			{ResellerProductID: "rp-1", VariantID: "var-1", Quantity: 2},
		},
		ShippingAddress: domain.Address{
			Recipient:  "Aisha Rahman",
			Line1:      "12 Jalan Ampang",
			City:       "Kuala Lumpur",
			PostalCode: "50450",
			Country:    "MY",
		},
	}
}

func TestValidateHappyPath(t *testing.T) {
	fixture := newValidatorFixture()
	validator := fixture.build(t)

	validated, err := validator.Validate(context.Background(), validCommand())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if validated.Store.ID != "store-1" || validated.Reseller.ID != "reseller-1" {
		t.Fatalf("unexpected records: store %s reseller %s", validated.Store.ID, validated.Reseller.ID)
	}
	if len(validated.Lines) != 1 {
		t.Fatalf("expected 1 validated line, got %d", len(validated.Lines))
	}
	line := validated.Lines[0]
	if line.Listing.ID != "rp-1" || line.Variant.ID != "var-1" || line.Supplier.ID != "sup-1" {
		t.Fatalf("line lost its resolved records: %+v", line)
	}
	if line.Variant.WeightGrams == nil || *line.Variant.WeightGrams != 500 {
		t.Fatal("expected variant weight carried through validation")
	}
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name       string
		mutate     func(f *validatorFixture, cmd *CreateOrderCommand)
		wantReason string
	}{
		{
			name:       "unknown store",
			mutate:     func(f *validatorFixture, cmd *CreateOrderCommand) { cmd.StoreID = "store-x" },
			wantReason: ReasonStoreNotFound,
		},
		{
			name: "suspended store",
			mutate: func(f *validatorFixture, cmd *CreateOrderCommand) {
				store := f.stores.stores["store-1"]
				store.Status = domain.StoreStatusSuspended
				f.stores.stores["store-1"] = store
			},
			wantReason: ReasonStoreInactive,
		},
		{
			name: "reseller quota exhausted",
			mutate: func(f *validatorFixture, cmd *CreateOrderCommand) {
				f.tierGuard.canPlaceErr = NewValidationError(ReasonOrderQuotaExceeded, "", "limit reached")
			},
			wantReason: ReasonOrderQuotaExceeded,
		},
		{
			name: "unknown listing",
			mutate: func(f *validatorFixture, cmd *CreateOrderCommand) {
				cmd.Lines[0].ResellerProductID = "rp-x"
			},
			wantReason: ReasonListingNotFound,
		},
		{
			name: "listing from another store",
			mutate: func(f *validatorFixture, cmd *CreateOrderCommand) {
				listing := f.resellerProducts.listings["rp-1"]
				listing.StoreID = "store-2"
				f.resellerProducts.listings["rp-1"] = listing
			},
			wantReason: ReasonListingNotFound,
		},
		{
			name: "inactive listing",
			mutate: func(f *validatorFixture, cmd *CreateOrderCommand) {
				listing := f.resellerProducts.listings["rp-1"]
				listing.Active = false
				f.resellerProducts.listings["rp-1"] = listing
			},
			wantReason: ReasonListingInactive,
		},
		{
			name: "variant mismatch",
			mutate: func(f *validatorFixture, cmd *CreateOrderCommand) {
				cmd.Lines[0].VariantID = "var-other"
			},
			wantReason: ReasonVariantNotFound,
		},
		{
			name: "archived product",
			mutate: func(f *validatorFixture, cmd *CreateOrderCommand) {
				product := f.catalog.products["prod-1"]
				product.Status = "archived"
				f.catalog.products["prod-1"] = product
			},
			wantReason: ReasonProductInactive,
		},
		{
			name: "discontinued variant",
			mutate: func(f *validatorFixture, cmd *CreateOrderCommand) {
				variant := f.catalog.variants["var-1"]
				variant.Status = "discontinued"
				f.catalog.variants["var-1"] = variant
			},
			wantReason: ReasonVariantNotFound,
		},
		{
			name: "suspended supplier",
			mutate: func(f *validatorFixture, cmd *CreateOrderCommand) {
				supplier := f.suppliers.suppliers["sup-1"]
				supplier.Status = domain.SupplierStatusSuspended
				f.suppliers.suppliers["sup-1"] = supplier
			},
			wantReason: ReasonSupplierInactive,
		},
		{
			name: "unsupported payment method",
			mutate: func(f *validatorFixture, cmd *CreateOrderCommand) {
				cmd.PaymentMethod = domain.PaymentMethod("crypto")
			},
			wantReason: ReasonPaymentUnsupported,
		},
		{
			name: "rejected payment instrument",
			mutate: func(f *validatorFixture, cmd *CreateOrderCommand) {
				cmd.PaymentInstrumentID = "pm_bad"
				f.instruments.err = errors.New("instrument revoked")
			},
			wantReason: ReasonPaymentInstrument,
		},
		{
			name: "zero quantity",
			mutate: func(f *validatorFixture, cmd *CreateOrderCommand) {
				cmd.Lines[0].Quantity = 0
			},
			wantReason: ReasonInvalidQuantity,
		},
		{
			name: "incomplete address",
			mutate: func(f *validatorFixture, cmd *CreateOrderCommand) {
				cmd.ShippingAddress.PostalCode = ""
			},
			wantReason: ReasonAddressIncomplete,
		},
		{
			name:       "no lines",
			mutate:     func(f *validatorFixture, cmd *CreateOrderCommand) { cmd.Lines = nil },
			wantReason: ReasonMissingField,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fixture := newValidatorFixture()
			cmd := validCommand()
			tc.mutate(fixture, &cmd)
			validator := fixture.build(t)

			_, err := validator.Validate(context.Background(), cmd)
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if validation.Reason != tc.wantReason {
				t.Fatalf("expected reason %s, got %s", tc.wantReason, validation.Reason)
			}
		})
	}
}

// An unavailable store lookup surfaces as transient, not as validation.
func TestValidateStoreLookupUnavailable(t *testing.T) {
	fixture := newValidatorFixture()
	validator, err := NewOrderValidator(OrderValidatorDeps{
		Stores:           &failingStoreRepo{},
		Resellers:        fixture.resellers,
		Suppliers:        fixture.suppliers,
		Catalog:          fixture.catalog,
		ResellerProducts: fixture.resellerProducts,
		TierGuard:        fixture.tierGuard,
		SupportedMethods: []domain.PaymentMethod{domain.PaymentMethodCard},
	})
	if err != nil {
		t.Fatalf("new order validator: %v", err)
	}

	_, err = validator.Validate(context.Background(), validCommand())
	var transient *TransientDependencyError
	if !errors.As(err, &transient) {
		t.Fatalf("expected transient dependency error, got %v", err)
	}
}

type failingStoreRepo struct{}

func (f *failingStoreRepo) FindByID(ctx context.Context, storeID string) (domain.Store, error) {
	return domain.Store{}, &validatorRepoErr{}
}

func (f *failingStoreRepo) ListByReseller(ctx context.Context, resellerID string, pager domain.Pagination) (domain.CursorPage[domain.Store], error) {
	return domain.CursorPage[domain.Store]{}, nil
}

var _ repositories.StoreRepository = (*failingStoreRepo)(nil)
