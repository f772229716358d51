package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/ordermesh/api/internal/domain"
)

type fakeProvider struct {
	method     domain.PaymentMethod
	handoff    Handoff
	handoffErr error
	verifyErr  error

	handoffs []HandoffRequest
	verified []string
}

func (f *fakeProvider) Method() domain.PaymentMethod {
	return f.method
}

func (f *fakeProvider) CreateHandoff(_ context.Context, req HandoffRequest) (Handoff, error) {
	f.handoffs = append(f.handoffs, req)
	return f.handoff, f.handoffErr
}

func (f *fakeProvider) VerifyInstrument(_ context.Context, instrumentID string) error {
	f.verified = append(f.verified, instrumentID)
	return f.verifyErr
}

func TestManagerRoutesHandoffByMethod(t *testing.T) {
	card := &fakeProvider{
		method:  domain.PaymentMethodCard,
		handoff: Handoff{Provider: "stripe", Reference: "pi_123", ClientSecret: "secret"},
	}
	cod := &fakeProvider{
		method:  domain.PaymentMethodCOD,
		handoff: Handoff{Provider: "cod", Reference: "SO-000042"},
	}

	mgr, err := NewManager(card, cod)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	handoff, err := mgr.CreateHandoff(context.Background(), domain.PaymentMethodCard, HandoffRequest{
		OrderID:  "order-1",
		Amount:   12500,
		Currency: "MYR",
	})
	if err != nil {
		t.Fatalf("create handoff: %v", err)
	}

	if handoff.Method != domain.PaymentMethodCard {
		t.Fatalf("expected method stamped on handoff, got %q", handoff.Method)
	}
	if handoff.Reference != "pi_123" {
		t.Fatalf("unexpected reference: %q", handoff.Reference)
	}
	if len(card.handoffs) != 1 || card.handoffs[0].OrderID != "order-1" {
		t.Fatalf("expected card provider invoked with order, got %#v", card.handoffs)
	}
	if len(cod.handoffs) != 0 {
		t.Fatal("expected cod provider to remain unused")
	}
}

func TestManagerRejectsUnknownMethod(t *testing.T) {
	mgr, err := NewManager(&fakeProvider{method: domain.PaymentMethodCard})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	_, err = mgr.CreateHandoff(context.Background(), domain.PaymentMethodCOD, HandoffRequest{OrderID: "order-1"})
	if !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
	if err := mgr.VerifyInstrument(context.Background(), domain.PaymentMethodCOD, "pm_1"); !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
}

func TestManagerVerifyInstrumentDelegates(t *testing.T) {
	card := &fakeProvider{method: domain.PaymentMethodCard, verifyErr: errors.New("declined")}
	mgr, err := NewManager(card)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if err := mgr.VerifyInstrument(context.Background(), domain.PaymentMethodCard, "pm_1"); err == nil {
		t.Fatal("expected verification failure to propagate")
	}
	if len(card.verified) != 1 || card.verified[0] != "pm_1" {
		t.Fatalf("expected instrument forwarded, got %#v", card.verified)
	}
}

func TestNewManagerValidatesProviders(t *testing.T) {
	if _, err := NewManager(); err == nil {
		t.Fatal("expected error when providers empty")
	}
	if _, err := NewManager(nil); err == nil {
		t.Fatal("expected error for nil provider")
	}
	if _, err := NewManager(&fakeProvider{method: ""}); err == nil {
		t.Fatal("expected error for empty method")
	}
	card := &fakeProvider{method: domain.PaymentMethodCard}
	if _, err := NewManager(card, &fakeProvider{method: domain.PaymentMethodCard}); err == nil {
		t.Fatal("expected error for duplicate method")
	}
}

func TestCODProviderHandoff(t *testing.T) {
	provider := NewCODProvider(CODProviderConfig{})
	deadline := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)

	handoff, err := provider.CreateHandoff(context.Background(), HandoffRequest{
		OrderID:       "order-1",
		OrderNumber:   "SO-000042",
		HoldExpiresAt: &deadline,
	})
	if err != nil {
		t.Fatalf("create handoff: %v", err)
	}
	if handoff.Reference != "SO-000042" {
		t.Fatalf("expected order number reference, got %q", handoff.Reference)
	}
	if handoff.Instructions == "" {
		t.Fatal("expected collection instructions")
	}
	if handoff.ExpiresAt == nil || !handoff.ExpiresAt.Equal(deadline) {
		t.Fatalf("expected hold deadline carried, got %v", handoff.ExpiresAt)
	}
	if err := provider.VerifyInstrument(context.Background(), "anything"); err != nil {
		t.Fatalf("cod verify should accept any input: %v", err)
	}
}
