package repositories

import "fmt"

// CouponErrorCode enumerates repository error causes for coupon operations.
type CouponErrorCode string

const (
	// CouponErrorUnknown represents an unspecified failure.
	CouponErrorUnknown CouponErrorCode = "coupon_unknown"
	// CouponErrorNotFound indicates the coupon document is missing.
	CouponErrorNotFound CouponErrorCode = "coupon_not_found"
	// CouponErrorUsageLimit indicates the coupon-wide redemption limit is exhausted.
	CouponErrorUsageLimit CouponErrorCode = "coupon_usage_limit"
	// CouponErrorPerCustomerLimit indicates the customer exhausted their redemptions.
	CouponErrorPerCustomerLimit CouponErrorCode = "coupon_per_customer_limit"
)

// CouponError wraps coupon-specific failures with machine readable codes.
type CouponError struct {
	Op      string
	Code    CouponErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *CouponError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *CouponError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// LimitReached reports whether the error is one of the redemption limit codes.
func (e *CouponError) LimitReached() bool {
	if e == nil {
		return false
	}
	return e.Code == CouponErrorUsageLimit || e.Code == CouponErrorPerCustomerLimit
}

// NewCouponError constructs a typed coupon error.
func NewCouponError(code CouponErrorCode, message string, err error) *CouponError {
	if message == "" {
		message = string(code)
	}
	return &CouponError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
