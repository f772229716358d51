package idempotency

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is the default duration that idempotency records are retained.
const DefaultTTL = 24 * time.Hour

// Record maps a request fingerprint to the order it produced. Records are
// written exactly once, in the same transaction as the order row, and are
// read-only afterward.
type Record struct {
	Fingerprint string
	StoreID     string
	OrderID     string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Store persists order idempotency records.
type Store interface {
	// Find returns the record for the fingerprint or ErrNotFound.
	Find(ctx context.Context, fingerprint string) (Record, error)
	// Create persists the record, failing with ErrAlreadyExists when the
	// fingerprint is taken. Implementations join an ambient storage
	// transaction when one is present on the context.
	Create(ctx context.Context, record Record) error
	// DeleteExpired removes up to limit records whose ExpiresAt has passed
	// and reports how many were deleted.
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

var (
	// ErrNotFound is returned when no record exists for a fingerprint.
	ErrNotFound = errors.New("idempotency: record not found")
	// ErrAlreadyExists is returned when a fingerprint was already recorded.
	ErrAlreadyExists = errors.New("idempotency: record already exists")
)
