package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/ordermesh/api/internal/platform/firestore"
)

// UnitOfWork executes a function inside one Firestore transaction. The
// transaction rides on the context, so repository methods called from fn join
// it instead of opening their own.
type UnitOfWork struct {
	provider *pfirestore.Provider
}

// NewUnitOfWork constructs a transaction runner bound to the provider.
func NewUnitOfWork(provider *pfirestore.Provider) (*UnitOfWork, error) {
	if provider == nil {
		return nil, errors.New("unit of work requires firestore provider")
	}
	return &UnitOfWork{provider: provider}, nil
}

// RunInTx runs fn inside a transaction. Nested calls reuse the ambient
// transaction rather than starting a second one.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if u == nil || u.provider == nil {
		return errors.New("unit of work not initialised")
	}
	if fn == nil {
		return errors.New("unit of work: fn is required")
	}
	if _, ok := pfirestore.TransactionFromContext(ctx); ok {
		return fn(ctx)
	}
	return u.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(pfirestore.ContextWithTransaction(ctx, tx))
	})
}
