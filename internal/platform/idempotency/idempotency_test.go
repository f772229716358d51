package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFingerprintDeterministic(t *testing.T) {
	payload := Payload{
		StoreID:       "store-1",
		CustomerID:    "cust-9",
		PaymentMethod: "card",
		Lines: []Line{
			{ResellerProductID: "rp-2", VariantID: "var-2", Quantity: 1},
			{ResellerProductID: "rp-1", VariantID: "var-1", Quantity: 3},
		},
		Address: Address{
			Recipient:  "Jordan Smith",
			Line1:      "12 Harbour Road",
			City:       "Wellington",
			PostalCode: "6011",
			Country:    "NZ",
		},
	}

	reordered := payload
	reordered.Lines = []Line{payload.Lines[1], payload.Lines[0]}
	if Fingerprint(payload) != Fingerprint(reordered) {
		t.Fatalf("line ordering changed the fingerprint")
	}

	cosmetic := payload
	cosmetic.Address.Line1 = "  12  harbour ROAD "
	cosmetic.PaymentMethod = "CARD"
	if Fingerprint(payload) != Fingerprint(cosmetic) {
		t.Fatalf("cosmetic differences changed the fingerprint")
	}

	changed := payload
	changed.Lines = []Line{payload.Lines[0], {ResellerProductID: "rp-1", VariantID: "var-1", Quantity: 4}}
	if Fingerprint(payload) == Fingerprint(changed) {
		t.Fatalf("quantity change should produce a different fingerprint")
	}

	otherCustomer := payload
	otherCustomer.CustomerID = "cust-10"
	if Fingerprint(payload) == Fingerprint(otherCustomer) {
		t.Fatalf("customer change should produce a different fingerprint")
	}
}

func TestMemoryStoreCreateOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	record := Record{
		Fingerprint: "fp-1",
		StoreID:     "store-1",
		OrderID:     "order-1",
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}
	if err := store.Create(ctx, record); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, record); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	found, err := store.Find(ctx, "fp-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.OrderID != "order-1" {
		t.Fatalf("expected order-1, got %s", found.OrderID)
	}

	if _, err := store.Find(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreDeleteExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for _, rec := range []Record{
		{Fingerprint: "old", OrderID: "o1", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
		{Fingerprint: "fresh", OrderID: "o2", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	} {
		if err := store.Create(ctx, rec); err != nil {
			t.Fatalf("create %s: %v", rec.Fingerprint, err)
		}
	}

	removed, err := store.DeleteExpired(ctx, now, 10)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := store.Find(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old record gone, got %v", err)
	}
	if _, err := store.Find(ctx, "fresh"); err != nil {
		t.Fatalf("fresh record should remain: %v", err)
	}
}
