package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/ordermesh/api/internal/domain"
	pfirestore "github.com/ordermesh/api/internal/platform/firestore"
	"github.com/ordermesh/api/internal/platform/pagination"
)

const storeCollection = "stores"

// StoreRepository reads reseller storefronts from Firestore.
type StoreRepository struct {
	base *pfirestore.BaseRepository[storeDocument]
}

// NewStoreRepository constructs a Firestore-backed store repository.
func NewStoreRepository(provider *pfirestore.Provider) (*StoreRepository, error) {
	if provider == nil {
		return nil, errors.New("store repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[storeDocument](provider, storeCollection, nil, nil)
	return &StoreRepository{base: base}, nil
}

// FindByID fetches a single store.
func (r *StoreRepository) FindByID(ctx context.Context, storeID string) (domain.Store, error) {
	if r == nil || r.base == nil {
		return domain.Store{}, errors.New("store repository not initialised")
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return domain.Store{}, errors.New("store repository: store id is required")
	}
	doc, err := r.base.Get(ctx, storeID)
	if err != nil {
		return domain.Store{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByReseller returns the reseller's stores ordered by most recent creation.
func (r *StoreRepository) ListByReseller(ctx context.Context, resellerID string, pager domain.Pagination) (domain.CursorPage[domain.Store], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Store]{}, errors.New("store repository not initialised")
	}
	resellerID = strings.TrimSpace(resellerID)
	if resellerID == "" {
		return domain.CursorPage[domain.Store]{}, errors.New("store repository: reseller id is required")
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodeTimeCursorToken(token)
		if err != nil {
			return domain.CursorPage[domain.Store]{}, fmt.Errorf("store repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("resellerId", "==", resellerID)
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Store]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeTimeCursorToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Store, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.Store]{Items: items, NextPageToken: nextToken}, nil
}

type storeDocument struct {
	ResellerID string    `firestore:"resellerId"`
	Name       string    `firestore:"name"`
	Slug       string    `firestore:"slug"`
	Status     string    `firestore:"status"`
	Region     string    `firestore:"region"`
	Currency   string    `firestore:"currency"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func (d storeDocument) toDomain(id string) domain.Store {
	return domain.Store{
		ID:         id,
		ResellerID: strings.TrimSpace(d.ResellerID),
		Name:       strings.TrimSpace(d.Name),
		Slug:       strings.TrimSpace(d.Slug),
		Status:     domain.StoreStatus(strings.ToLower(strings.TrimSpace(d.Status))),
		Region:     strings.ToUpper(strings.TrimSpace(d.Region)),
		Currency:   strings.ToUpper(strings.TrimSpace(d.Currency)),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// encodeTimeCursorToken packs a (timestamp, docID) list cursor into an opaque token.
func encodeTimeCursorToken(ts time.Time, docID string) string {
	token, err := pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{ts.UTC().Format(time.RFC3339Nano), docID},
	})
	if err != nil {
		return ""
	}
	return token
}

func decodeTimeCursorToken(token string) (time.Time, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	if len(cursor.StartAfter) != 2 {
		return time.Time{}, "", errors.New("invalid token structure")
	}
	rawTime, ok := cursor.StartAfter[0].(string)
	if !ok {
		return time.Time{}, "", errors.New("invalid token timestamp")
	}
	docID, ok := cursor.StartAfter[1].(string)
	if !ok {
		return time.Time{}, "", errors.New("invalid token document id")
	}
	ts, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, docID, nil
}
