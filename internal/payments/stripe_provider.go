package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	domain "github.com/ordermesh/api/internal/domain"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripePaymentMethodAPI interface {
	Get(id string, params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error)
}

type stripeClients struct {
	intents        stripePaymentIntentAPI
	paymentMethods stripePaymentMethodAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clients   *stripeClients
}

// StripeProvider collects card payments by creating a PaymentIntent per order.
// The intent is created after the order commits; payment confirmation arrives
// asynchronously via the PSP and never blocks order creation.
type StripeProvider struct {
	api     stripeClients
	account string
	logger  StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents:        sc.PaymentIntents,
			paymentMethods: sc.PaymentMethods,
		}
	}

	if clients.intents == nil || clients.paymentMethods == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:     clients,
		account: strings.TrimSpace(cfg.AccountID),
		logger:  logger,
	}, nil
}

// Method reports the payment method this provider serves.
func (p *StripeProvider) Method() domain.PaymentMethod {
	return domain.PaymentMethodCard
}

// CreateHandoff creates a PaymentIntent for the committed order and returns
// its client secret for client-side confirmation.
func (p *StripeProvider) CreateHandoff(ctx context.Context, req HandoffRequest) (Handoff, error) {
	if p == nil {
		return Handoff{}, errors.New("stripe: provider is nil")
	}
	if req.Amount <= 0 {
		return Handoff{}, errors.New("stripe: amount must be positive")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
	}
	params.Context = ctx

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = "order:" + strings.TrimSpace(req.OrderID)
	}
	params.SetIdempotencyKey(key)
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}

	params.Metadata = map[string]string{
		"orderId":     req.OrderID,
		"orderNumber": req.OrderNumber,
		"storeId":     req.StoreID,
	}
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}

	intent, err := p.api.intents.New(params)
	if err != nil {
		return Handoff{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"orderId":       req.OrderID,
		"amount":        req.Amount,
		"currency":      req.Currency,
	})

	var expiresAt *time.Time
	if req.HoldExpiresAt != nil {
		t := req.HoldExpiresAt.UTC()
		expiresAt = &t
	}

	return Handoff{
		Provider:     "stripe",
		Reference:    intent.ID,
		ClientSecret: intent.ClientSecret,
		ExpiresAt:    expiresAt,
	}, nil
}

// VerifyInstrument checks a saved payment method exists and is retrievable.
func (p *StripeProvider) VerifyInstrument(ctx context.Context, instrumentID string) error {
	if p == nil {
		return errors.New("stripe: provider is nil")
	}
	instrumentID = strings.TrimSpace(instrumentID)
	if instrumentID == "" {
		return nil
	}
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if _, err := p.api.paymentMethods.Get(instrumentID, params); err != nil {
		return fmt.Errorf("stripe: verify payment method %s: %w", instrumentID, err)
	}
	return nil
}
