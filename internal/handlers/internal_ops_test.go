package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ordermesh/api/internal/platform/idempotency"
	"github.com/ordermesh/api/internal/services"
)

type stubInventoryService struct {
	expireFn func(context.Context, int) (services.InventorySweepSummary, error)
}

func (s *stubInventoryService) Reserve(context.Context, services.InventoryReserveCommand) (services.InventoryHold, error) {
	return services.InventoryHold{}, errors.New("not implemented")
}

func (s *stubInventoryService) Confirm(context.Context, services.InventoryConfirmCommand) error {
	return errors.New("not implemented")
}

func (s *stubInventoryService) Release(context.Context, services.InventoryReleaseCommand) error {
	return errors.New("not implemented")
}

func (s *stubInventoryService) ExpireDue(ctx context.Context, limit int) (services.InventorySweepSummary, error) {
	if s.expireFn != nil {
		return s.expireFn(ctx, limit)
	}
	return services.InventorySweepSummary{}, nil
}

var _ services.InventoryService = (*stubInventoryService)(nil)

func TestInternalHandlersSweepReservations(t *testing.T) {
	var gotLimit int
	svc := &stubInventoryService{
		expireFn: func(_ context.Context, limit int) (services.InventorySweepSummary, error) {
			gotLimit = limit
			return services.InventorySweepSummary{Scanned: 12, Expired: 7, Skipped: 1}, nil
		},
	}

	handlers := NewInternalHandlers(svc, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/reservations:sweep", strings.NewReader(`{"limit": 25}`))
	rr := httptest.NewRecorder()
	handlers.sweepReservations(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotLimit != 25 {
		t.Fatalf("expected limit 25, got %d", gotLimit)
	}

	var body struct {
		Scanned int `json:"scanned"`
		Expired int `json:"expired"`
		Skipped int `json:"skipped"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Scanned != 12 || body.Expired != 7 || body.Skipped != 1 {
		t.Fatalf("unexpected summary: %+v", body)
	}
}

func TestInternalHandlersSweepDefaultsAndCapsLimit(t *testing.T) {
	var gotLimit int
	svc := &stubInventoryService{
		expireFn: func(_ context.Context, limit int) (services.InventorySweepSummary, error) {
			gotLimit = limit
			return services.InventorySweepSummary{}, nil
		},
	}
	handlers := NewInternalHandlers(svc, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/reservations:sweep", nil)
	rr := httptest.NewRecorder()
	handlers.sweepReservations(rr, req)
	if gotLimit != defaultSweepLimit {
		t.Fatalf("expected default limit, got %d", gotLimit)
	}

	req = httptest.NewRequest(http.MethodPost, "/reservations:sweep", strings.NewReader(`{"limit": 100000}`))
	rr = httptest.NewRecorder()
	handlers.sweepReservations(rr, req)
	if gotLimit != maxSweepLimit {
		t.Fatalf("expected limit capped at %d, got %d", maxSweepLimit, gotLimit)
	}
}

func TestInternalHandlersSweepDependencyFailure(t *testing.T) {
	svc := &stubInventoryService{
		expireFn: func(context.Context, int) (services.InventorySweepSummary, error) {
			return services.InventorySweepSummary{}, services.NewTransientError("inventory.sweep", errors.New("deadline exceeded"))
		},
	}

	handlers := NewInternalHandlers(svc, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/reservations:sweep", nil)
	rr := httptest.NewRecorder()
	handlers.sweepReservations(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestInternalHandlersCleanupIdempotency(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	store := idempotency.NewMemoryStore()
	expirations := map[string]time.Time{
		"fp-1": now.Add(-time.Hour),
		"fp-2": now.Add(time.Hour),
	}
	for key, expiresAt := range expirations {
		record := idempotency.Record{
			Fingerprint: key,
			StoreID:     "store-1",
			OrderID:     "ord_" + key,
			CreatedAt:   now.Add(-48 * time.Hour),
			ExpiresAt:   expiresAt,
		}
		if err := store.Create(context.Background(), record); err != nil {
			t.Fatalf("seed record: %v", err)
		}
	}

	handlers := NewInternalHandlers(&stubInventoryService{}, store, func() time.Time { return now })
	req := httptest.NewRequest(http.MethodPost, "/idempotency:cleanup", nil)
	rr := httptest.NewRecorder()
	handlers.cleanupIdempotency(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Deleted int `json:"deleted"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Deleted != 1 {
		t.Fatalf("expected one expired record deleted, got %d", body.Deleted)
	}
}

func TestInternalHandlersCleanupRequiresStore(t *testing.T) {
	handlers := NewInternalHandlers(&stubInventoryService{}, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/idempotency:cleanup", nil)
	rr := httptest.NewRecorder()
	handlers.cleanupIdempotency(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
