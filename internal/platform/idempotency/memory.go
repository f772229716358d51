package idempotency

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore provides an in-memory implementation useful for testing and local development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty memory-backed idempotency store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Find implements the Store interface.
func (s *MemoryStore) Find(_ context.Context, fingerprint string) (Record, error) {
	fingerprint = strings.TrimSpace(fingerprint)

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[fingerprint]
	if !ok {
		return Record{}, ErrNotFound
	}
	return record, nil
}

// Create implements the Store interface.
func (s *MemoryStore) Create(_ context.Context, record Record) error {
	record.Fingerprint = strings.TrimSpace(record.Fingerprint)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.Fingerprint]; ok {
		return ErrAlreadyExists
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.CreatedAt.Add(DefaultTTL)
	}
	s.records[record.Fingerprint] = record
	return nil
}

// DeleteExpired implements the Store interface.
func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}

	removed := 0
	for fingerprint, record := range s.records {
		if record.ExpiresAt.IsZero() || now.Before(record.ExpiresAt) {
			continue
		}
		delete(s.records, fingerprint)
		removed++
		if removed >= limit {
			break
		}
	}

	return removed, nil
}
