package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/ordermesh/api/internal/domain"
	"github.com/ordermesh/api/internal/repositories"
)

// OrderValidator runs the synchronous pre-flight checks for order creation.
// Checks run in a fixed order and the first failure aborts; nothing is
// reserved or written while validation runs.
type OrderValidator interface {
	Validate(ctx context.Context, cmd CreateOrderCommand) (ValidatedOrder, error)
}

// ValidatedOrder carries the records loaded during validation so later
// pipeline stages never re-fetch them.
type ValidatedOrder struct {
	Store    domain.Store
	Reseller domain.Reseller
	Lines    []ValidatedLine
}

// ValidatedLine is one cart line with every referenced record resolved.
type ValidatedLine struct {
	Listing  domain.ResellerProduct
	Product  domain.Product
	Variant  domain.Variant
	Supplier domain.Supplier
	Quantity int
}

// OrderValidatorDeps bundles collaborators required to construct an order validator.
type OrderValidatorDeps struct {
	Stores           repositories.StoreRepository
	Resellers        repositories.ResellerRepository
	Suppliers        repositories.SupplierRepository
	Catalog          repositories.CatalogRepository
	ResellerProducts repositories.ResellerProductRepository
	TierGuard        TierGuard
	// Instruments is optional; when nil, saved instrument references are
	// accepted without verification.
	Instruments      InstrumentVerifier
	SupportedMethods []domain.PaymentMethod
}

type orderValidator struct {
	stores           repositories.StoreRepository
	resellers        repositories.ResellerRepository
	suppliers        repositories.SupplierRepository
	catalog          repositories.CatalogRepository
	resellerProducts repositories.ResellerProductRepository
	tierGuard        TierGuard
	instruments      InstrumentVerifier
	supportedMethods map[domain.PaymentMethod]struct{}
}

// NewOrderValidator constructs the order pre-flight validator.
func NewOrderValidator(deps OrderValidatorDeps) (OrderValidator, error) {
	if deps.Stores == nil {
		return nil, errors.New("order validator: store repository is required")
	}
	if deps.Resellers == nil {
		return nil, errors.New("order validator: reseller repository is required")
	}
	if deps.Suppliers == nil {
		return nil, errors.New("order validator: supplier repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order validator: catalog repository is required")
	}
	if deps.ResellerProducts == nil {
		return nil, errors.New("order validator: reseller product repository is required")
	}
	if deps.TierGuard == nil {
		return nil, errors.New("order validator: tier guard is required")
	}
	if len(deps.SupportedMethods) == 0 {
		return nil, errors.New("order validator: at least one payment method is required")
	}
	supported := make(map[domain.PaymentMethod]struct{}, len(deps.SupportedMethods))
	for _, method := range deps.SupportedMethods {
		supported[method] = struct{}{}
	}
	return &orderValidator{
		stores:           deps.Stores,
		resellers:        deps.Resellers,
		suppliers:        deps.Suppliers,
		catalog:          deps.Catalog,
		resellerProducts: deps.ResellerProducts,
		tierGuard:        deps.TierGuard,
		instruments:      deps.Instruments,
		supportedMethods: supported,
	}, nil
}

func (v *orderValidator) Validate(ctx context.Context, cmd CreateOrderCommand) (ValidatedOrder, error) {
	if strings.TrimSpace(cmd.StoreID) == "" {
		return ValidatedOrder{}, NewValidationError(ReasonMissingField, "store_id", "store id is required")
	}
	if len(cmd.Lines) == 0 {
		return ValidatedOrder{}, NewValidationError(ReasonMissingField, "lines", "order has no lines")
	}

	store, err := v.stores.FindByID(ctx, cmd.StoreID)
	if err != nil {
		if isRepoNotFound(err) {
			return ValidatedOrder{}, NewValidationError(ReasonStoreNotFound, "store_id", "store not found")
		}
		return ValidatedOrder{}, translateRepositoryError("store lookup", err, nil)
	}
	if store.Status != domain.StoreStatusActive {
		return ValidatedOrder{}, NewValidationError(ReasonStoreInactive, "store_id",
			fmt.Sprintf("store is %s", store.Status))
	}

	reseller, err := v.resellers.FindByID(ctx, store.ResellerID)
	if err != nil {
		if isRepoNotFound(err) {
			return ValidatedOrder{}, NewValidationError(ReasonResellerNotFound, "store_id", "reseller account not found")
		}
		return ValidatedOrder{}, translateRepositoryError("reseller lookup", err, nil)
	}
	if err := v.tierGuard.CanPlaceOrder(ctx, reseller); err != nil {
		return ValidatedOrder{}, err
	}

	lines := make([]ValidatedLine, 0, len(cmd.Lines))
	for i, input := range cmd.Lines {
		line, err := v.validateLine(ctx, store, i, input)
		if err != nil {
			return ValidatedOrder{}, err
		}
		lines = append(lines, line)
	}

	if err := v.validatePayment(ctx, cmd); err != nil {
		return ValidatedOrder{}, err
	}
	for i, input := range cmd.Lines {
		if input.Quantity <= 0 {
			return ValidatedOrder{}, NewValidationError(ReasonInvalidQuantity,
				fmt.Sprintf("lines[%d].quantity", i), "quantity must be positive")
		}
	}
	if err := validateAddress(cmd.ShippingAddress); err != nil {
		return ValidatedOrder{}, err
	}

	return ValidatedOrder{Store: store, Reseller: reseller, Lines: lines}, nil
}

func (v *orderValidator) validateLine(ctx context.Context, store domain.Store, index int, input OrderLineInput) (ValidatedLine, error) {
	field := func(name string) string {
		return fmt.Sprintf("lines[%d].%s", index, name)
	}

	listing, err := v.resellerProducts.FindByID(ctx, input.ResellerProductID)
	if err != nil {
		if isRepoNotFound(err) {
			return ValidatedLine{}, NewValidationError(ReasonListingNotFound, field("reseller_product_id"), "listing not found")
		}
		return ValidatedLine{}, translateRepositoryError("listing lookup", err, nil)
	}
	if listing.StoreID != store.ID {
		return ValidatedLine{}, NewValidationError(ReasonListingNotFound, field("reseller_product_id"), "listing belongs to another store")
	}
	if !listing.Active {
		return ValidatedLine{}, NewValidationError(ReasonListingInactive, field("reseller_product_id"), "listing is inactive")
	}
	if input.VariantID != "" && input.VariantID != listing.VariantID {
		return ValidatedLine{}, NewValidationError(ReasonVariantNotFound, field("variant_id"), "variant does not match the listing")
	}

	product, err := v.catalog.GetProduct(ctx, listing.ProductID)
	if err != nil {
		if isRepoNotFound(err) {
			return ValidatedLine{}, NewValidationError(ReasonProductNotFound, field("reseller_product_id"), "product not found")
		}
		return ValidatedLine{}, translateRepositoryError("product lookup", err, nil)
	}
	if product.Status != "active" {
		return ValidatedLine{}, NewValidationError(ReasonProductInactive, field("reseller_product_id"),
			fmt.Sprintf("product is %s", product.Status))
	}

	variant, err := v.catalog.GetVariant(ctx, listing.ProductID, listing.VariantID)
	if err != nil {
		if isRepoNotFound(err) {
			return ValidatedLine{}, NewValidationError(ReasonVariantNotFound, field("variant_id"), "variant not found")
		}
		return ValidatedLine{}, translateRepositoryError("variant lookup", err, nil)
	}
	if variant.Status != "active" {
		return ValidatedLine{}, NewValidationError(ReasonVariantNotFound, field("variant_id"), "variant is not sellable")
	}

	supplier, err := v.suppliers.FindByID(ctx, listing.SupplierID)
	if err != nil {
		if isRepoNotFound(err) {
			return ValidatedLine{}, NewValidationError(ReasonSupplierNotFound, field("reseller_product_id"), "supplier not found")
		}
		return ValidatedLine{}, translateRepositoryError("supplier lookup", err, nil)
	}
	if supplier.Status != domain.SupplierStatusActive {
		return ValidatedLine{}, NewValidationError(ReasonSupplierInactive, field("reseller_product_id"),
			fmt.Sprintf("supplier is %s", supplier.Status))
	}

	return ValidatedLine{
		Listing:  listing,
		Product:  product,
		Variant:  variant,
		Supplier: supplier,
		Quantity: input.Quantity,
	}, nil
}

func (v *orderValidator) validatePayment(ctx context.Context, cmd CreateOrderCommand) error {
	if _, ok := v.supportedMethods[cmd.PaymentMethod]; !ok {
		return NewValidationError(ReasonPaymentUnsupported, "payment_method",
			fmt.Sprintf("payment method %q is not supported", cmd.PaymentMethod))
	}
	if cmd.PaymentInstrumentID != "" && v.instruments != nil {
		if err := v.instruments.VerifyInstrument(ctx, cmd.PaymentMethod, cmd.PaymentInstrumentID); err != nil {
			var transient *TransientDependencyError
			if errors.As(err, &transient) {
				return err
			}
			return NewValidationError(ReasonPaymentInstrument, "payment_instrument_id", err.Error())
		}
	}
	return nil
}

func validateAddress(addr domain.Address) error {
	required := []struct {
		field string
		value string
	}{
		{"recipient", addr.Recipient},
		{"line1", addr.Line1},
		{"city", addr.City},
		{"postal_code", addr.PostalCode},
		{"country", addr.Country},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return NewValidationError(ReasonAddressIncomplete, "shipping_address."+r.field,
				r.field+" is required")
		}
	}
	return nil
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
