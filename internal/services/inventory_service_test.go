package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/ordermesh/api/internal/domain"
	"github.com/ordermesh/api/internal/repositories"
)

type stubInventoryRepo struct {
	reserveFn func(ctx context.Context, req repositories.InventoryReserveRequest) (repositories.InventoryReserveResult, error)
	getFn     func(ctx context.Context, ids []string) ([]domain.Reservation, error)
	confirmFn func(ctx context.Context, req repositories.InventoryConfirmRequest) error
	releaseFn func(ctx context.Context, req repositories.InventoryReleaseRequest) (repositories.InventoryReleaseResult, error)
	expireFn  func(ctx context.Context, now time.Time, limit int) (repositories.InventorySweepResult, error)
}

func (s *stubInventoryRepo) Reserve(ctx context.Context, req repositories.InventoryReserveRequest) (repositories.InventoryReserveResult, error) {
	if s.reserveFn != nil {
		return s.reserveFn(ctx, req)
	}
	return repositories.InventoryReserveResult{}, nil
}

func (s *stubInventoryRepo) GetReservations(ctx context.Context, ids []string) ([]domain.Reservation, error) {
	if s.getFn != nil {
		return s.getFn(ctx, ids)
	}
	reservations := make([]domain.Reservation, len(ids))
	for i, id := range ids {
		reservations[i] = domain.Reservation{ID: id, Status: domain.ReservationStatusReserved}
	}
	return reservations, nil
}

func (s *stubInventoryRepo) ConfirmReservations(ctx context.Context, req repositories.InventoryConfirmRequest) error {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, req)
	}
	return nil
}

func (s *stubInventoryRepo) Release(ctx context.Context, req repositories.InventoryReleaseRequest) (repositories.InventoryReleaseResult, error) {
	if s.releaseFn != nil {
		return s.releaseFn(ctx, req)
	}
	return repositories.InventoryReleaseResult{}, nil
}

func (s *stubInventoryRepo) ExpireDue(ctx context.Context, now time.Time, limit int) (repositories.InventorySweepResult, error) {
	if s.expireFn != nil {
		return s.expireFn(ctx, now, limit)
	}
	return repositories.InventorySweepResult{}, nil
}

func (s *stubInventoryRepo) GetStock(ctx context.Context, key domain.InventoryKey) (domain.InventoryStock, error) {
	return domain.InventoryStock{}, nil
}

type captureDispatcher struct {
	messages   []OrderEventMessage
	enqueueErr error
	closed     bool
}

func (d *captureDispatcher) Enqueue(ctx context.Context, message OrderEventMessage) error {
	if d.enqueueErr != nil {
		return d.enqueueErr
	}
	d.messages = append(d.messages, message)
	return nil
}

func (d *captureDispatcher) Close(ctx context.Context) error {
	d.closed = true
	return nil
}

var inventoryTestNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestInventoryService(t *testing.T, repo *stubInventoryRepo, events EventDispatcher) InventoryService {
	t.Helper()
	svc, err := NewInventoryService(InventoryServiceDeps{
		Inventory: repo,
		Events:    events,
		CardTTL:   15 * time.Minute,
		CODTTL:    48 * time.Hour,
		Clock:     func() time.Time { return inventoryTestNow },
	})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}
	return svc
}

func reserveCommand(payment domain.PaymentMethod) InventoryReserveCommand {
	return InventoryReserveCommand{
		StoreID: "store-1",
		CartID:  "cart-1",
		Payment: payment,
		Lines: []InventoryLine{
			{ResellerProductID: "rp-1", ProductID: "prod-1", VariantID: "var-1", SupplierID: "sup-1", Quantity: 2},
		},
	}
}

func TestReserveSetsTTLByPaymentMethod(t *testing.T) {
	cases := []struct {
		name    string
		payment domain.PaymentMethod
		wantTTL time.Duration
	}{
		{name: "card hold", payment: domain.PaymentMethodCard, wantTTL: 15 * time.Minute},
		{name: "cod hold", payment: domain.PaymentMethodCOD, wantTTL: 48 * time.Hour},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var captured repositories.InventoryReserveRequest
			repo := &stubInventoryRepo{
				reserveFn: func(_ context.Context, req repositories.InventoryReserveRequest) (repositories.InventoryReserveResult, error) {
					captured = req
					return repositories.InventoryReserveResult{
						Reservations: []domain.Reservation{{ID: "res-1", Status: domain.ReservationStatusReserved}},
					}, nil
				},
			}
			svc := newTestInventoryService(t, repo, nil)

			hold, err := svc.Reserve(context.Background(), reserveCommand(tc.payment))
			if err != nil {
				t.Fatalf("reserve: %v", err)
			}
			wantExpiry := inventoryTestNow.Add(tc.wantTTL)
			if !captured.ExpiresAt.Equal(wantExpiry) {
				t.Fatalf("expected expiry %v, got %v", wantExpiry, captured.ExpiresAt)
			}
			if !hold.ExpiresAt.Equal(wantExpiry) {
				t.Fatalf("hold expiry mismatch: %v", hold.ExpiresAt)
			}
			if len(hold.ReservationIDs) != 1 || hold.ReservationIDs[0] != "res-1" {
				t.Fatalf("unexpected reservation ids: %v", hold.ReservationIDs)
			}
		})
	}
}

func TestReserveInsufficientStock(t *testing.T) {
	repo := &stubInventoryRepo{
		reserveFn: func(context.Context, repositories.InventoryReserveRequest) (repositories.InventoryReserveResult, error) {
			return repositories.InventoryReserveResult{}, repositories.NewInventoryError(
				repositories.InventoryErrorInsufficientStock, "rp-1 wants 5, 2 available", nil)
		},
	}
	svc := newTestInventoryService(t, repo, nil)

	_, err := svc.Reserve(context.Background(), reserveCommand(domain.PaymentMethodCard))
	var insufficient *InsufficientInventory
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected insufficient inventory, got %v", err)
	}
}

func TestReserveActiveHoldConflict(t *testing.T) {
	repo := &stubInventoryRepo{
		reserveFn: func(context.Context, repositories.InventoryReserveRequest) (repositories.InventoryReserveResult, error) {
			return repositories.InventoryReserveResult{}, repositories.NewInventoryError(
				repositories.InventoryErrorReservationActive, "cart line already held", nil)
		},
	}
	svc := newTestInventoryService(t, repo, nil)

	_, err := svc.Reserve(context.Background(), reserveCommand(domain.PaymentMethodCard))
	if !errors.Is(err, ErrReservationConflict) {
		t.Fatalf("expected reservation conflict, got %v", err)
	}
}

func TestReservePublishesDepletionEvents(t *testing.T) {
	repo := &stubInventoryRepo{
		reserveFn: func(context.Context, repositories.InventoryReserveRequest) (repositories.InventoryReserveResult, error) {
			return repositories.InventoryReserveResult{
				Reservations: []domain.Reservation{{ID: "res-1"}},
				Depleted: []domain.InventoryKey{
					{StoreID: "store-1", SupplierID: "sup-1", VariantID: "var-1"},
				},
			}, nil
		},
	}
	events := &captureDispatcher{}
	svc := newTestInventoryService(t, repo, events)

	if _, err := svc.Reserve(context.Background(), reserveCommand(domain.PaymentMethodCard)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if len(events.messages) != 1 {
		t.Fatalf("expected 1 depletion event, got %d", len(events.messages))
	}
	msg := events.messages[0]
	if msg.Type != EventTypeInventoryDepleted || msg.VariantID != "var-1" || msg.SupplierID != "sup-1" {
		t.Fatalf("unexpected event: %+v", msg)
	}
}

func TestReserveSurvivesDroppedDepletionEvent(t *testing.T) {
	repo := &stubInventoryRepo{
		reserveFn: func(context.Context, repositories.InventoryReserveRequest) (repositories.InventoryReserveResult, error) {
			return repositories.InventoryReserveResult{
				Reservations: []domain.Reservation{{ID: "res-1"}},
				Depleted:     []domain.InventoryKey{{StoreID: "store-1", VariantID: "var-1"}},
			}, nil
		},
	}
	events := &captureDispatcher{enqueueErr: errors.New("queue full")}
	svc := newTestInventoryService(t, repo, events)

	if _, err := svc.Reserve(context.Background(), reserveCommand(domain.PaymentMethodCard)); err != nil {
		t.Fatalf("reserve should not fail on event drop: %v", err)
	}
}

func TestConfirmChecksStateBeforeWriting(t *testing.T) {
	confirmed := false
	repo := &stubInventoryRepo{
		getFn: func(_ context.Context, ids []string) ([]domain.Reservation, error) {
			return []domain.Reservation{
				{ID: "res-1", Status: domain.ReservationStatusReserved},
				{ID: "res-2", Status: domain.ReservationStatusExpired},
			}, nil
		},
		confirmFn: func(context.Context, repositories.InventoryConfirmRequest) error {
			confirmed = true
			return nil
		},
	}
	svc := newTestInventoryService(t, repo, nil)

	err := svc.Confirm(context.Background(), InventoryConfirmCommand{
		ReservationIDs: []string{"res-1", "res-2"},
		OrderID:        "order-1",
	})
	if !errors.Is(err, ErrReservationStateInvalid) {
		t.Fatalf("expected invalid state error, got %v", err)
	}
	if confirmed {
		t.Fatal("confirm must not write after a failed state check")
	}
}

func TestConfirmMissingReservation(t *testing.T) {
	repo := &stubInventoryRepo{
		getFn: func(_ context.Context, ids []string) ([]domain.Reservation, error) {
			return []domain.Reservation{{ID: "res-1", Status: domain.ReservationStatusReserved}}, nil
		},
	}
	svc := newTestInventoryService(t, repo, nil)

	err := svc.Confirm(context.Background(), InventoryConfirmCommand{
		ReservationIDs: []string{"res-1", "res-gone"},
		OrderID:        "order-1",
	})
	if !errors.Is(err, ErrReservationNotFound) {
		t.Fatalf("expected reservation not found, got %v", err)
	}
}

func TestConfirmHappyPath(t *testing.T) {
	var captured repositories.InventoryConfirmRequest
	repo := &stubInventoryRepo{
		confirmFn: func(_ context.Context, req repositories.InventoryConfirmRequest) error {
			captured = req
			return nil
		},
	}
	svc := newTestInventoryService(t, repo, nil)

	err := svc.Confirm(context.Background(), InventoryConfirmCommand{
		ReservationIDs: []string{"res-1"},
		OrderID:        "order-1",
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if captured.OrderID != "order-1" || len(captured.ReservationIDs) != 1 {
		t.Fatalf("unexpected confirm request: %+v", captured)
	}
}

func TestReleaseDelegates(t *testing.T) {
	var captured repositories.InventoryReleaseRequest
	repo := &stubInventoryRepo{
		releaseFn: func(_ context.Context, req repositories.InventoryReleaseRequest) (repositories.InventoryReleaseResult, error) {
			captured = req
			return repositories.InventoryReleaseResult{
				Released: []domain.Reservation{{ID: "res-1", Status: domain.ReservationStatusReleased}},
			}, nil
		},
	}
	svc := newTestInventoryService(t, repo, nil)

	err := svc.Release(context.Background(), InventoryReleaseCommand{
		ReservationIDs: []string{"res-1"},
		Reason:         "payment_failed",
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if captured.Reason != "payment_failed" {
		t.Fatalf("release reason lost: %+v", captured)
	}
}

func TestExpireDueAppliesDefaultLimit(t *testing.T) {
	var capturedLimit int
	repo := &stubInventoryRepo{
		expireFn: func(_ context.Context, now time.Time, limit int) (repositories.InventorySweepResult, error) {
			capturedLimit = limit
			return repositories.InventorySweepResult{Scanned: 3, Expired: 2, Skipped: 1}, nil
		},
	}
	svc := newTestInventoryService(t, repo, nil)

	summary, err := svc.ExpireDue(context.Background(), 0)
	if err != nil {
		t.Fatalf("expire due: %v", err)
	}
	if capturedLimit != 100 {
		t.Fatalf("expected default limit 100, got %d", capturedLimit)
	}
	if summary.Expired != 2 || summary.Skipped != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestReserveValidatesInput(t *testing.T) {
	svc := newTestInventoryService(t, &stubInventoryRepo{}, nil)

	cases := []struct {
		name   string
		mutate func(cmd *InventoryReserveCommand)
	}{
		{name: "missing store", mutate: func(cmd *InventoryReserveCommand) { cmd.StoreID = "" }},
		{name: "missing cart", mutate: func(cmd *InventoryReserveCommand) { cmd.CartID = "" }},
		{name: "no lines", mutate: func(cmd *InventoryReserveCommand) { cmd.Lines = nil }},
		{name: "zero quantity", mutate: func(cmd *InventoryReserveCommand) { cmd.Lines[0].Quantity = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := reserveCommand(domain.PaymentMethodCard)
			tc.mutate(&cmd)
			if _, err := svc.Reserve(context.Background(), cmd); !errors.Is(err, ErrInventoryInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}
