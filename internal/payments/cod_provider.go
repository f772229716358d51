package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/ordermesh/api/internal/domain"
)

const defaultCODInstructions = "Pay the courier in cash on delivery. Keep the order number ready."

// CODProvider hands off cash-on-delivery orders. There is no PSP involved;
// the handoff carries human-readable instructions and the confirmation window.
type CODProvider struct {
	instructions string
}

// CODProviderConfig configures the cash-on-delivery provider.
type CODProviderConfig struct {
	Instructions string
}

// NewCODProvider constructs the cash-on-delivery provider.
func NewCODProvider(cfg CODProviderConfig) *CODProvider {
	instructions := strings.TrimSpace(cfg.Instructions)
	if instructions == "" {
		instructions = defaultCODInstructions
	}
	return &CODProvider{instructions: instructions}
}

// Method reports the payment method this provider serves.
func (p *CODProvider) Method() domain.PaymentMethod {
	return domain.PaymentMethodCOD
}

// CreateHandoff returns the collection instructions for a COD order.
func (p *CODProvider) CreateHandoff(ctx context.Context, req HandoffRequest) (Handoff, error) {
	if p == nil {
		return Handoff{}, errors.New("cod: provider is nil")
	}
	reference := strings.TrimSpace(req.OrderNumber)
	if reference == "" {
		reference = strings.TrimSpace(req.OrderID)
	}
	var expiresAt *time.Time
	if req.HoldExpiresAt != nil {
		t := req.HoldExpiresAt.UTC()
		expiresAt = &t
	}
	return Handoff{
		Provider:     "cod",
		Reference:    reference,
		Instructions: p.instructions,
		ExpiresAt:    expiresAt,
	}, nil
}

// VerifyInstrument always succeeds; cash on delivery has no saved instruments.
func (p *CODProvider) VerifyInstrument(context.Context, string) error {
	return nil
}
