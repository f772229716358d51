package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/ordermesh/api/internal/domain"
)

// ErrUnsupportedMethod is returned when no provider is registered for a payment method.
var ErrUnsupportedMethod = errors.New("payments: unsupported payment method")

// HandoffRequest carries a committed order into the payment layer. The order
// already exists; the handoff only prepares collection.
type HandoffRequest struct {
	OrderID        string
	OrderNumber    string
	StoreID        string
	Amount         int64
	Currency       string
	CustomerID     string
	Metadata       map[string]string
	IdempotencyKey string
	// HoldExpiresAt mirrors the inventory hold deadline so the provider can
	// bound the payment window to it.
	HoldExpiresAt *time.Time
}

// Handoff is the provider-neutral result handed back to the client.
type Handoff struct {
	Method       domain.PaymentMethod
	Provider     string
	Reference    string
	ClientSecret string
	Instructions string
	ExpiresAt    *time.Time
}

// Provider adapts one payment method to its collection backend.
type Provider interface {
	Method() domain.PaymentMethod
	CreateHandoff(ctx context.Context, req HandoffRequest) (Handoff, error)
	// VerifyInstrument checks a saved payment instrument before the order
	// pipeline commits to it. Providers without instruments accept any input.
	VerifyInstrument(ctx context.Context, instrumentID string) error
}

// Manager routes handoff and verification calls to the provider registered
// for each payment method.
type Manager struct {
	providers map[domain.PaymentMethod]Provider
}

// NewManager registers the supplied providers, one per payment method.
func NewManager(providers ...Provider) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	registry := make(map[domain.PaymentMethod]Provider, len(providers))
	for _, provider := range providers {
		if provider == nil {
			return nil, errors.New("payments: nil provider registration")
		}
		method := provider.Method()
		if strings.TrimSpace(string(method)) == "" {
			return nil, errors.New("payments: provider declares an empty method")
		}
		if _, ok := registry[method]; ok {
			return nil, fmt.Errorf("payments: duplicate provider for method %q", method)
		}
		registry[method] = provider
	}
	return &Manager{providers: registry}, nil
}

// Supported lists the payment methods with a registered provider.
func (m *Manager) Supported() []domain.PaymentMethod {
	methods := make([]domain.PaymentMethod, 0, len(m.providers))
	for method := range m.providers {
		methods = append(methods, method)
	}
	return methods
}

// CreateHandoff delegates to the provider registered for the method.
func (m *Manager) CreateHandoff(ctx context.Context, method domain.PaymentMethod, req HandoffRequest) (Handoff, error) {
	provider, err := m.resolve(method)
	if err != nil {
		return Handoff{}, err
	}
	handoff, err := provider.CreateHandoff(ctx, req)
	if err != nil {
		return Handoff{}, err
	}
	handoff.Method = method
	return handoff, nil
}

// VerifyInstrument delegates instrument verification to the method's provider.
func (m *Manager) VerifyInstrument(ctx context.Context, method domain.PaymentMethod, instrumentID string) error {
	provider, err := m.resolve(method)
	if err != nil {
		return err
	}
	return provider.VerifyInstrument(ctx, instrumentID)
}

func (m *Manager) resolve(method domain.PaymentMethod) (Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return nil, errors.New("payments: no providers registered")
	}
	provider, ok := m.providers[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	return provider, nil
}
