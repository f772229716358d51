package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ordermesh/api/internal/repositories"
)

// Validation reason codes returned to clients.
const (
	ReasonStoreNotFound         = "store_not_found"
	ReasonStoreInactive         = "store_inactive"
	ReasonResellerNotFound      = "reseller_not_found"
	ReasonSubscriptionInactive  = "subscription_inactive"
	ReasonOrderQuotaExceeded    = "order_quota_exceeded"
	ReasonProductNotFound       = "product_not_found"
	ReasonProductInactive       = "product_inactive"
	ReasonVariantNotFound       = "variant_not_found"
	ReasonListingNotFound       = "listing_not_found"
	ReasonListingInactive       = "listing_inactive"
	ReasonSupplierNotFound      = "supplier_not_found"
	ReasonSupplierInactive      = "supplier_inactive"
	ReasonSupplierMinOrderValue = "supplier_min_order_value"
	ReasonSupplierMonthlyCap    = "supplier_monthly_cap"
	ReasonPaymentUnsupported    = "payment_method_unsupported"
	ReasonPaymentInstrument     = "payment_instrument_invalid"
	ReasonInvalidQuantity       = "invalid_quantity"
	ReasonAddressIncomplete     = "address_incomplete"
	ReasonMissingField          = "missing_field"
	ReasonCouponInvalid         = "coupon_invalid"
)

// ValidationError reports the first failed synchronous check with a stable
// machine-readable reason. Validation is all-or-nothing.
type ValidationError struct {
	Reason  string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s (%s): %s", e.Reason, e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Reason, e.Message)
}

// NewValidationError constructs a ValidationError for the given reason.
func NewValidationError(reason, field, message string) *ValidationError {
	return &ValidationError{Reason: reason, Field: field, Message: message}
}

// PricingViolation is returned when a price lands outside its resolved bounds.
// The order path never clamps; the violation carries the computed floor and
// ceiling so the caller can correct the listing.
type PricingViolation struct {
	ResellerProductID string
	Price             int64
	Floor             int64
	Ceiling           *int64
}

func (e *PricingViolation) Error() string {
	if e.Ceiling != nil {
		return fmt.Sprintf("pricing violation on %s: price %d outside [%d, %d]", e.ResellerProductID, e.Price, e.Floor, *e.Ceiling)
	}
	return fmt.Sprintf("pricing violation on %s: price %d below floor %d", e.ResellerProductID, e.Price, e.Floor)
}

// InsufficientInventory is returned when any reserved line cannot be covered.
// The reserve call is all-or-nothing, so nothing was held.
type InsufficientInventory struct {
	Detail string
}

func (e *InsufficientInventory) Error() string {
	if strings.TrimSpace(e.Detail) == "" {
		return "insufficient inventory"
	}
	return "insufficient inventory: " + e.Detail
}

// FulfillmentUnavailable is returned when no route exists for a cart line.
type FulfillmentUnavailable struct {
	SupplierID string
	Reason     string
}

func (e *FulfillmentUnavailable) Error() string {
	return fmt.Sprintf("fulfillment unavailable for supplier %s: %s", e.SupplierID, e.Reason)
}

// ShippingConfigMissing is returned when no shipping table covers the
// destination. Fatal; requires operator action, never silently retried.
type ShippingConfigMissing struct {
	Country string
}

func (e *ShippingConfigMissing) Error() string {
	return fmt.Sprintf("shipping configuration missing for country %s", e.Country)
}

// TaxProfileMissing is returned when no tax profile covers the store region.
type TaxProfileMissing struct {
	Region string
}

func (e *TaxProfileMissing) Error() string {
	return fmt.Sprintf("tax profile missing for region %s", e.Region)
}

// TransientDependencyError marks a retriable infrastructure failure.
type TransientDependencyError struct {
	Op  string
	Err error
}

func (e *TransientDependencyError) Error() string {
	return fmt.Sprintf("transient dependency failure in %s: %v", e.Op, e.Err)
}

func (e *TransientDependencyError) Unwrap() error { return e.Err }

// NewTransientError wraps an infrastructure failure with its operation name.
func NewTransientError(op string, err error) *TransientDependencyError {
	return &TransientDependencyError{Op: op, Err: err}
}

// translateRepositoryError maps typed repository failures onto the service
// error taxonomy. notFound supplies the sentinel for missing records.
func translateRepositoryError(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			if notFound != nil {
				return fmt.Errorf("%w: %v", notFound, err)
			}
		case repoErr.IsUnavailable():
			return NewTransientError(op, err)
		}
	}
	return err
}
