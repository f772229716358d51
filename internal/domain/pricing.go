package domain

// PriceBounds captures the resolved floor and ceiling for a single line.
// Floor is the binding minimum (the greater of the markup and margin floors);
// a nil Ceiling means no ceiling is configured.
type PriceBounds struct {
	Floor         int64
	Ceiling       *int64
	MarkupFloor   int64
	MarginFloor   int64
	MarkupRuleID  string
	PricingRuleID string
}

// LinePricing stores the per-line outputs of the pricing pipeline.
type LinePricing struct {
	ResellerProductID string
	BasePrice         int64
	PromotionDiscount int64
	CouponDiscount    int64
	UnitPrice         int64
	TotalPrice        int64
	Bounds            PriceBounds
	PromotionID       *string
}

// CartPricing aggregates the priced lines of a cart.
type CartPricing struct {
	Currency      string
	Lines         []LinePricing
	Subtotal      int64
	DiscountTotal int64
	CouponID      *string
	CouponCode    *string
}

// AdvisoryPrice is the clamped result returned by advisory price checks.
// Advisory clamping never applies on the order path, where an out-of-bounds
// price is rejected instead.
type AdvisoryPrice struct {
	Requested int64
	Advised   int64
	Clamped   bool
	Bounds    PriceBounds
}
