package idempotency

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/ordermesh/api/internal/platform/firestore"
)

const (
	defaultCollection  = "idempotency_records"
	defaultMaxAttempts = 5
)

// FirestoreOption customises the FirestoreStore behaviour.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection name used to store idempotency records.
func WithCollection(name string) FirestoreOption {
	return func(store *FirestoreStore) {
		if name != "" {
			store.collection = name
		}
	}
}

// WithMaxAttempts configures the transaction retry attempts.
func WithMaxAttempts(attempts int) FirestoreOption {
	return func(store *FirestoreStore) {
		if attempts > 0 {
			store.maxAttempts = attempts
		}
	}
}

// FirestoreStore implements Store backed by Google Cloud Firestore.
type FirestoreStore struct {
	client      *firestore.Client
	collection  string
	maxAttempts int
}

// NewFirestoreStore constructs a Firestore-backed idempotency store.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{
		client:      client,
		collection:  defaultCollection,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Find returns the record stored for the fingerprint. Inside an ambient
// transaction the read joins it, keeping the duplicate check serialised with
// the order insert.
func (s *FirestoreStore) Find(ctx context.Context, fingerprint string) (Record, error) {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return Record{}, ErrNotFound
	}

	ref := s.client.Collection(s.collection).Doc(fingerprint)
	var (
		snap *firestore.DocumentSnapshot
		err  error
	)
	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}

	var record firestoreRecord
	if err := snap.DataTo(&record); err != nil {
		return Record{}, err
	}
	return record.toRecord(snap.Ref.ID), nil
}

// Create persists the record once. When the context carries an ambient
// transaction the create joins it, so the record commits or aborts together
// with the order row.
func (s *FirestoreStore) Create(ctx context.Context, record Record) error {
	fingerprint := strings.TrimSpace(record.Fingerprint)
	if fingerprint == "" {
		return ErrNotFound
	}

	now := record.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	expires := record.ExpiresAt
	if expires.IsZero() {
		expires = now.Add(DefaultTTL)
	}

	doc := firestoreRecord{
		StoreID:   record.StoreID,
		OrderID:   record.OrderID,
		CreatedAt: now,
		ExpiresAt: expires.UTC(),
	}
	ref := s.client.Collection(s.collection).Doc(fingerprint)

	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		if err := tx.Create(ref, doc); err != nil {
			return translateCreateError(err)
		}
		return nil
	}

	if _, err := ref.Create(ctx, doc); err != nil {
		return translateCreateError(err)
	}
	return nil
}

// DeleteExpired removes expired idempotency records up to the provided limit.
func (s *FirestoreStore) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	if limit <= 0 {
		limit = 100
	}

	query := s.client.Collection(s.collection).Where("expires_at", "<=", now).Limit(limit)
	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	batch := s.client.Batch()
	for _, doc := range docs {
		batch.Delete(doc.Ref)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return 0, err
	}

	return len(docs), nil
}

func translateCreateError(err error) error {
	if status.Code(err) == codes.AlreadyExists {
		return ErrAlreadyExists
	}
	return err
}

type firestoreRecord struct {
	StoreID   string    `firestore:"store_id"`
	OrderID   string    `firestore:"order_id"`
	CreatedAt time.Time `firestore:"created_at"`
	ExpiresAt time.Time `firestore:"expires_at"`
}

func (r firestoreRecord) toRecord(fingerprint string) Record {
	return Record{
		Fingerprint: fingerprint,
		StoreID:     r.StoreID,
		OrderID:     r.OrderID,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}
