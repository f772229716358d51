package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/ordermesh/api/internal/domain"
	pfirestore "github.com/ordermesh/api/internal/platform/firestore"
	"github.com/ordermesh/api/internal/repositories"
)

const (
	supplierStockCollection     = "supplierStocks"
	stockReservationsCollection = "stockReservations"
)

// InventoryRepository owns stock rows and their reservation lifecycle. Every
// mutation preserves available + reserved == total on each row it touches.
type InventoryRepository struct {
	provider     *pfirestore.Provider
	stocks       *pfirestore.BaseRepository[stockDocument]
	reservations *pfirestore.BaseRepository[reservationDocument]
}

func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	stocks := pfirestore.NewBaseRepository[stockDocument](provider, supplierStockCollection, nil, nil)
	reservations := pfirestore.NewBaseRepository[reservationDocument](provider, stockReservationsCollection, nil, nil)
	return &InventoryRepository{provider: provider, stocks: stocks, reservations: reservations}, nil
}

// stockDocID keys stock rows by the (store, supplier, variant) triple.
func stockDocID(key domain.InventoryKey) string {
	return key.StoreID + ":" + key.SupplierID + ":" + key.VariantID
}

// reservationDocID derives the deterministic hold id for a cart line. One
// active hold per (store, cart, reseller product) follows from document
// identity rather than a lookup.
func reservationDocID(storeID, cartID, resellerProductID string) string {
	return storeID + ":" + cartID + ":" + resellerProductID
}

func (r *InventoryRepository) Reserve(ctx context.Context, req repositories.InventoryReserveRequest) (repositories.InventoryReserveResult, error) {
	if r == nil || r.provider == nil {
		return repositories.InventoryReserveResult{}, errors.New("inventory repository not initialised")
	}
	storeID := strings.TrimSpace(req.StoreID)
	cartID := strings.TrimSpace(req.CartID)
	if storeID == "" || cartID == "" {
		return repositories.InventoryReserveResult{}, errors.New("inventory reserve: store id and cart id are required")
	}
	if len(req.Lines) == 0 {
		return repositories.InventoryReserveResult{}, errors.New("inventory reserve: at least one line is required")
	}
	if req.ExpiresAt.IsZero() {
		return repositories.InventoryReserveResult{}, errors.New("inventory reserve: expiry is required")
	}

	now := req.Now.UTC()
	expiresAt := req.ExpiresAt.UTC()

	type pendingLine struct {
		line    repositories.InventoryReserveLine
		resID   string
		stockID string
	}
	pending := make([]pendingLine, 0, len(req.Lines))
	required := make(map[string]int)

	for _, line := range req.Lines {
		rpID := strings.TrimSpace(line.ResellerProductID)
		variantID := strings.TrimSpace(line.VariantID)
		supplierID := strings.TrimSpace(line.SupplierID)
		if rpID == "" || variantID == "" || supplierID == "" {
			return repositories.InventoryReserveResult{}, errors.New("inventory reserve: line identifiers are required")
		}
		if line.Quantity <= 0 {
			return repositories.InventoryReserveResult{}, repositories.NewInventoryError(repositories.InventoryErrorUnknown, fmt.Sprintf("inventory reserve: quantity for %s must be > 0", rpID), nil)
		}
		key := domain.InventoryKey{StoreID: storeID, SupplierID: supplierID, VariantID: variantID}
		pl := pendingLine{
			line:    line,
			resID:   reservationDocID(storeID, cartID, rpID),
			stockID: stockDocID(key),
		}
		pending = append(pending, pl)
		required[pl.stockID] += line.Quantity
	}

	var result repositories.InventoryReserveResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// Read phase: existing holds for every line, then every stock row.
		for _, pl := range pending {
			resRef, err := r.reservations.DocumentRef(ctx, pl.resID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(resRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					continue
				}
				return err
			}
			existing, err := decodeReservation(snap)
			if err != nil {
				return err
			}
			switch domain.ReservationStatus(existing.Status) {
			case domain.ReservationStatusReleased, domain.ReservationStatusExpired:
				// Terminal holds are replaced by the new one.
			default:
				return repositories.NewInventoryError(repositories.InventoryErrorReservationActive, fmt.Sprintf("hold %s already active", pl.resID), nil)
			}
		}

		stockDocs := make(map[string]stockDocument, len(required))
		for stockID := range required {
			stockRef, err := r.stocks.DocumentRef(ctx, stockID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(stockRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, fmt.Sprintf("stock %s not found", stockID), err)
				}
				return err
			}
			var doc stockDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode supplier stock %s: %w", stockID, err)
			}
			if doc.Available < required[stockID] {
				return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, fmt.Sprintf("insufficient stock for %s", stockID), nil)
			}
			stockDocs[stockID] = doc
		}

		// Write phase: decrement availability, persist the holds.
		stocks := make(map[domain.InventoryKey]domain.InventoryStock, len(stockDocs))
		var depleted []domain.InventoryKey
		for stockID, doc := range stockDocs {
			doc.Reserved += required[stockID]
			doc.UpdatedAt = now
			doc.derive()
			stockRef, err := r.stocks.DocumentRef(ctx, stockID)
			if err != nil {
				return err
			}
			if err := tx.Set(stockRef, doc); err != nil {
				return err
			}
			key := doc.key()
			stocks[key] = doc.toDomain()
			if doc.Available == 0 {
				depleted = append(depleted, key)
			}
		}

		reservationsOut := make([]domain.Reservation, 0, len(pending))
		for _, pl := range pending {
			resDoc := reservationDocument{
				StoreID:           storeID,
				CartID:            cartID,
				ResellerProductID: strings.TrimSpace(pl.line.ResellerProductID),
				ProductID:         strings.TrimSpace(pl.line.ProductID),
				VariantID:         strings.TrimSpace(pl.line.VariantID),
				SupplierID:        strings.TrimSpace(pl.line.SupplierID),
				Quantity:          pl.line.Quantity,
				Status:            string(domain.ReservationStatusReserved),
				PaymentKind:       string(req.Payment),
				ExpiresAt:         expiresAt,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			resRef, err := r.reservations.DocumentRef(ctx, pl.resID)
			if err != nil {
				return err
			}
			if err := tx.Set(resRef, resDoc); err != nil {
				return err
			}
			reservationsOut = append(reservationsOut, resDoc.toDomain(pl.resID))
		}

		result = repositories.InventoryReserveResult{
			Reservations: reservationsOut,
			Stocks:       stocks,
			Depleted:     depleted,
		}
		return nil
	})
	if err != nil {
		return repositories.InventoryReserveResult{}, wrapInventoryError("inventory.reserve", err)
	}
	return result, nil
}

func (r *InventoryRepository) GetReservations(ctx context.Context, reservationIDs []string) ([]domain.Reservation, error) {
	if r == nil || r.reservations == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	if len(reservationIDs) == 0 {
		return nil, nil
	}

	refs := make([]*firestore.DocumentRef, 0, len(reservationIDs))
	for _, id := range reservationIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, errors.New("inventory get reservations: id is required")
		}
		ref, err := r.reservations.DocumentRef(ctx, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	var (
		snaps []*firestore.DocumentSnapshot
		err   error
	)
	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		snaps, err = tx.GetAll(refs)
	} else {
		var client *firestore.Client
		client, err = r.provider.Client(ctx)
		if err == nil {
			snaps, err = client.GetAll(ctx, refs)
		}
	}
	if err != nil {
		return nil, wrapInventoryError("inventory.getReservations", err)
	}

	out := make([]domain.Reservation, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			return nil, repositories.NewInventoryError(repositories.InventoryErrorReservationNotFound, fmt.Sprintf("reservation %s not found", snap.Ref.ID), nil)
		}
		doc, err := decodeReservation(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, doc.toDomain(snap.Ref.ID))
	}
	return out, nil
}

func (r *InventoryRepository) ConfirmReservations(ctx context.Context, req repositories.InventoryConfirmRequest) error {
	if r == nil || r.provider == nil {
		return errors.New("inventory repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return errors.New("inventory confirm: order id is required")
	}
	if len(req.ReservationIDs) == 0 {
		return errors.New("inventory confirm: at least one reservation id is required")
	}
	now := req.Now.UTC()

	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		// Inside an ambient transaction the caller has already read and verified
		// every hold, so the flips are plain buffered updates.
		return r.confirmWrites(ctx, tx, req.ReservationIDs, orderID, now)
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, id := range req.ReservationIDs {
			resRef, err := r.reservations.DocumentRef(ctx, id)
			if err != nil {
				return err
			}
			snap, err := tx.Get(resRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewInventoryError(repositories.InventoryErrorReservationNotFound, fmt.Sprintf("reservation %s not found", id), err)
				}
				return err
			}
			doc, err := decodeReservation(snap)
			if err != nil {
				return err
			}
			if domain.ReservationStatus(doc.Status) != domain.ReservationStatusReserved {
				return repositories.NewInventoryError(repositories.InventoryErrorInvalidReservationState, fmt.Sprintf("reservation %s is %s, not reserved", id, doc.Status), nil)
			}
		}
		return r.confirmWrites(ctx, tx, req.ReservationIDs, orderID, now)
	})
	return wrapInventoryError("inventory.confirm", err)
}

func (r *InventoryRepository) confirmWrites(ctx context.Context, tx *firestore.Transaction, reservationIDs []string, orderID string, now time.Time) error {
	for _, id := range reservationIDs {
		resRef, err := r.reservations.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		err = tx.Update(resRef, []firestore.Update{
			{Path: "status", Value: string(domain.ReservationStatusConfirmed)},
			{Path: "orderId", Value: orderID},
			{Path: "confirmedAt", Value: now},
			{Path: "updatedAt", Value: now},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *InventoryRepository) Release(ctx context.Context, req repositories.InventoryReleaseRequest) (repositories.InventoryReleaseResult, error) {
	if r == nil || r.provider == nil {
		return repositories.InventoryReleaseResult{}, errors.New("inventory repository not initialised")
	}
	if len(req.ReservationIDs) == 0 {
		return repositories.InventoryReleaseResult{}, errors.New("inventory release: at least one reservation id is required")
	}

	now := req.Now.UTC()
	reason := strings.TrimSpace(req.Reason)
	var result repositories.InventoryReleaseResult

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		type releasable struct {
			id  string
			doc reservationDocument
		}
		var toRelease []releasable
		for _, id := range req.ReservationIDs {
			id = strings.TrimSpace(id)
			if id == "" {
				return errors.New("inventory release: id is required")
			}
			resRef, err := r.reservations.DocumentRef(ctx, id)
			if err != nil {
				return err
			}
			snap, err := tx.Get(resRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewInventoryError(repositories.InventoryErrorReservationNotFound, fmt.Sprintf("reservation %s not found", id), err)
				}
				return err
			}
			doc, err := decodeReservation(snap)
			if err != nil {
				return err
			}
			// Holds that already reached a terminal state had their stock
			// restored by whoever terminated them; skip instead of failing so
			// abort paths stay safe to retry.
			if domain.ReservationStatus(doc.Status) != domain.ReservationStatusReserved {
				continue
			}
			toRelease = append(toRelease, releasable{id: id, doc: doc})
		}

		restore := make(map[string]int)
		for _, item := range toRelease {
			key := domain.InventoryKey{StoreID: item.doc.StoreID, SupplierID: item.doc.SupplierID, VariantID: item.doc.VariantID}
			restore[stockDocID(key)] += item.doc.Quantity
		}

		stockDocs := make(map[string]stockDocument, len(restore))
		for stockID := range restore {
			stockRef, err := r.stocks.DocumentRef(ctx, stockID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(stockRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, fmt.Sprintf("stock %s not found", stockID), err)
				}
				return err
			}
			var doc stockDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode supplier stock %s: %w", stockID, err)
			}
			if doc.Reserved < restore[stockID] {
				return repositories.NewInventoryError(repositories.InventoryErrorInvalidReservationState, fmt.Sprintf("reserved quantity for %s is insufficient", stockID), nil)
			}
			stockDocs[stockID] = doc
		}

		stocks := make(map[domain.InventoryKey]domain.InventoryStock, len(stockDocs))
		for stockID, doc := range stockDocs {
			doc.Reserved -= restore[stockID]
			doc.UpdatedAt = now
			doc.derive()
			stockRef, err := r.stocks.DocumentRef(ctx, stockID)
			if err != nil {
				return err
			}
			if err := tx.Set(stockRef, doc); err != nil {
				return err
			}
			stocks[doc.key()] = doc.toDomain()
		}

		released := make([]domain.Reservation, 0, len(toRelease))
		for _, item := range toRelease {
			doc := item.doc
			doc.Status = string(domain.ReservationStatusReleased)
			doc.ReleaseReason = reason
			doc.ReleasedAt = &now
			doc.UpdatedAt = now
			resRef, err := r.reservations.DocumentRef(ctx, item.id)
			if err != nil {
				return err
			}
			if err := tx.Set(resRef, doc); err != nil {
				return err
			}
			released = append(released, doc.toDomain(item.id))
		}

		result = repositories.InventoryReleaseResult{
			Released: released,
			Stocks:   stocks,
		}
		return nil
	})
	if err != nil {
		return repositories.InventoryReleaseResult{}, wrapInventoryError("inventory.release", err)
	}
	return result, nil
}

func (r *InventoryRepository) ExpireDue(ctx context.Context, now time.Time, limit int) (repositories.InventorySweepResult, error) {
	if r == nil || r.provider == nil {
		return repositories.InventorySweepResult{}, errors.New("inventory repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}
	now = now.UTC()

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.InventorySweepResult{}, wrapInventoryError("inventory.expireDue", err)
	}

	query := client.Collection(stockReservationsCollection).
		Where("status", "==", string(domain.ReservationStatusReserved)).
		Where("expiresAt", "<=", now).
		Limit(limit)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var dueIDs []string
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return repositories.InventorySweepResult{}, wrapInventoryError("inventory.expireDue", err)
		}
		dueIDs = append(dueIDs, snap.Ref.ID)
	}

	result := repositories.InventorySweepResult{Scanned: len(dueIDs)}
	for _, id := range dueIDs {
		expired, err := r.expireOne(ctx, id, now)
		if err != nil {
			return result, wrapInventoryError("inventory.expireDue", err)
		}
		if expired {
			result.Expired++
		} else {
			result.Skipped++
		}
	}
	return result, nil
}

// expireOne flips a single lapsed hold in its own transaction. The status
// re-check inside the transaction is the single-winner guard against a
// concurrent confirm.
func (r *InventoryRepository) expireOne(ctx context.Context, reservationID string, now time.Time) (bool, error) {
	expired := false
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		expired = false
		resRef, err := r.reservations.DocumentRef(ctx, reservationID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(resRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil
			}
			return err
		}
		doc, err := decodeReservation(snap)
		if err != nil {
			return err
		}
		if domain.ReservationStatus(doc.Status) != domain.ReservationStatusReserved || doc.ExpiresAt.After(now) {
			return nil
		}

		key := domain.InventoryKey{StoreID: doc.StoreID, SupplierID: doc.SupplierID, VariantID: doc.VariantID}
		stockRef, err := r.stocks.DocumentRef(ctx, stockDocID(key))
		if err != nil {
			return err
		}
		stockSnap, err := tx.Get(stockRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, fmt.Sprintf("stock %s not found", stockDocID(key)), err)
			}
			return err
		}
		var stockDoc stockDocument
		if err := stockSnap.DataTo(&stockDoc); err != nil {
			return fmt.Errorf("decode supplier stock %s: %w", stockDocID(key), err)
		}
		if stockDoc.Reserved < doc.Quantity {
			return repositories.NewInventoryError(repositories.InventoryErrorInvalidReservationState, fmt.Sprintf("reserved quantity for %s is insufficient", stockDocID(key)), nil)
		}
		stockDoc.Reserved -= doc.Quantity
		stockDoc.UpdatedAt = now
		stockDoc.derive()
		if err := tx.Set(stockRef, stockDoc); err != nil {
			return err
		}

		doc.Status = string(domain.ReservationStatusExpired)
		doc.ReleaseReason = "expired"
		doc.ReleasedAt = &now
		doc.UpdatedAt = now
		if err := tx.Set(resRef, doc); err != nil {
			return err
		}
		expired = true
		return nil
	})
	return expired, err
}

func (r *InventoryRepository) GetStock(ctx context.Context, key domain.InventoryKey) (domain.InventoryStock, error) {
	if r == nil || r.stocks == nil {
		return domain.InventoryStock{}, errors.New("inventory repository not initialised")
	}
	doc, err := r.stocks.Get(ctx, stockDocID(key))
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.InventoryStock{}, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, fmt.Sprintf("stock %s not found", stockDocID(key)), err)
		}
		return domain.InventoryStock{}, wrapInventoryError("inventory.getStock", err)
	}
	return doc.Data.toDomain(), nil
}

// Helper structures ---------------------------------------------------------

type stockDocument struct {
	StoreID    string    `firestore:"storeId"`
	SupplierID string    `firestore:"supplierId"`
	VariantID  string    `firestore:"variantId"`
	Total      int       `firestore:"total"`
	Reserved   int       `firestore:"reserved"`
	Available  int       `firestore:"available"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

// derive recomputes availability so the stored row always satisfies
// available + reserved == total.
func (s *stockDocument) derive() {
	s.Available = s.Total - s.Reserved
}

func (s stockDocument) key() domain.InventoryKey {
	return domain.InventoryKey{
		StoreID:    strings.TrimSpace(s.StoreID),
		SupplierID: strings.TrimSpace(s.SupplierID),
		VariantID:  strings.TrimSpace(s.VariantID),
	}
}

func (s stockDocument) toDomain() domain.InventoryStock {
	return domain.InventoryStock{
		StoreID:    strings.TrimSpace(s.StoreID),
		SupplierID: strings.TrimSpace(s.SupplierID),
		VariantID:  strings.TrimSpace(s.VariantID),
		Total:      s.Total,
		Available:  s.Available,
		Reserved:   s.Reserved,
		UpdatedAt:  s.UpdatedAt,
	}
}

type reservationDocument struct {
	StoreID           string     `firestore:"storeId"`
	CartID            string     `firestore:"cartId"`
	OrderID           string     `firestore:"orderId,omitempty"`
	ResellerProductID string     `firestore:"resellerProductId"`
	ProductID         string     `firestore:"productId"`
	VariantID         string     `firestore:"variantId"`
	SupplierID        string     `firestore:"supplierId"`
	Quantity          int        `firestore:"qty"`
	Status            string     `firestore:"status"`
	PaymentKind       string     `firestore:"paymentKind"`
	ReleaseReason     string     `firestore:"releaseReason,omitempty"`
	ExpiresAt         time.Time  `firestore:"expiresAt"`
	ConfirmedAt       *time.Time `firestore:"confirmedAt,omitempty"`
	ReleasedAt        *time.Time `firestore:"releasedAt,omitempty"`
	CreatedAt         time.Time  `firestore:"createdAt"`
	UpdatedAt         time.Time  `firestore:"updatedAt"`
}

func (d reservationDocument) toDomain(id string) domain.Reservation {
	res := domain.Reservation{
		ID:                id,
		StoreID:           strings.TrimSpace(d.StoreID),
		CartID:            strings.TrimSpace(d.CartID),
		ResellerProductID: strings.TrimSpace(d.ResellerProductID),
		ProductID:         strings.TrimSpace(d.ProductID),
		VariantID:         strings.TrimSpace(d.VariantID),
		SupplierID:        strings.TrimSpace(d.SupplierID),
		Quantity:          d.Quantity,
		Status:            domain.ReservationStatus(strings.TrimSpace(d.Status)),
		PaymentKind:       domain.PaymentMethod(strings.TrimSpace(d.PaymentKind)),
		ExpiresAt:         d.ExpiresAt,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	if orderID := strings.TrimSpace(d.OrderID); orderID != "" {
		res.OrderID = &orderID
	}
	if reason := strings.TrimSpace(d.ReleaseReason); reason != "" {
		res.ReleaseReason = &reason
	}
	return res
}

func decodeReservation(snap *firestore.DocumentSnapshot) (reservationDocument, error) {
	var doc reservationDocument
	if err := snap.DataTo(&doc); err != nil {
		return reservationDocument{}, fmt.Errorf("decode reservation %s: %w", snap.Ref.ID, err)
	}
	return doc, nil
}

func wrapInventoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}
