package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/ordermesh/api/internal/domain"
	"github.com/ordermesh/api/internal/repositories"
)

const (
	eventInventoryReserve = "inventory.reserve"
	eventInventoryConfirm = "inventory.confirm"
	eventInventoryRelease = "inventory.release"
	eventInventorySweep   = "inventory.sweep"

	defaultCardHoldTTL = 15 * time.Minute
	defaultCODHoldTTL  = 48 * time.Hour
)

var (
	// ErrInventoryInvalidInput signals the caller provided invalid arguments.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrReservationNotFound indicates a referenced hold could not be located.
	ErrReservationNotFound = errors.New("inventory: reservation not found")
	// ErrReservationConflict indicates a non-terminal hold already exists for a cart line.
	ErrReservationConflict = errors.New("inventory: reservation already active")
	// ErrReservationStateInvalid indicates a hold left the reserved state before confirm.
	ErrReservationStateInvalid = errors.New("inventory: reservation state invalid")
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Inventory repositories.InventoryRepository
	// Events receives INVENTORY_DEPLETED envelopes; nil disables them.
	Events  EventDispatcher
	CardTTL time.Duration
	CODTTL  time.Duration
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	repo    repositories.InventoryRepository
	events  EventDispatcher
	cardTTL time.Duration
	codTTL  time.Duration
	clock   func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}

	cardTTL := deps.CardTTL
	if cardTTL <= 0 {
		cardTTL = defaultCardHoldTTL
	}
	codTTL := deps.CODTTL
	if codTTL <= 0 {
		codTTL = defaultCODHoldTTL
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		repo:    deps.Inventory,
		events:  deps.Events,
		cardTTL: cardTTL,
		codTTL:  codTTL,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Reserve places all-or-nothing holds for every cart line. The hold TTL
// depends on the payment method: card holds are short, cash-on-delivery holds
// survive until human confirmation.
func (s *inventoryService) Reserve(ctx context.Context, cmd InventoryReserveCommand) (InventoryHold, error) {
	if strings.TrimSpace(cmd.StoreID) == "" {
		return InventoryHold{}, fmt.Errorf("%w: store id is required", ErrInventoryInvalidInput)
	}
	if strings.TrimSpace(cmd.CartID) == "" {
		return InventoryHold{}, fmt.Errorf("%w: cart id is required", ErrInventoryInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return InventoryHold{}, fmt.Errorf("%w: no lines to hold", ErrInventoryInvalidInput)
	}
	for _, line := range cmd.Lines {
		if line.Quantity <= 0 {
			return InventoryHold{}, fmt.Errorf("%w: quantity must be positive", ErrInventoryInvalidInput)
		}
	}

	now := s.clock()
	expiresAt := now.Add(s.holdTTL(cmd.Payment))

	lines := make([]repositories.InventoryReserveLine, len(cmd.Lines))
	for i, line := range cmd.Lines {
		lines[i] = repositories.InventoryReserveLine{
			ResellerProductID: line.ResellerProductID,
			ProductID:         line.ProductID,
			VariantID:         line.VariantID,
			SupplierID:        line.SupplierID,
			Quantity:          line.Quantity,
		}
	}

	result, err := s.repo.Reserve(ctx, repositories.InventoryReserveRequest{
		StoreID:   cmd.StoreID,
		CartID:    cmd.CartID,
		Payment:   cmd.Payment,
		Lines:     lines,
		ExpiresAt: expiresAt,
		Now:       now,
	})
	if err != nil {
		return InventoryHold{}, s.translateInventoryError("reserve", err)
	}

	hold := InventoryHold{
		Reservations: result.Reservations,
		ExpiresAt:    expiresAt,
		Depleted:     result.Depleted,
	}
	for _, reservation := range result.Reservations {
		hold.ReservationIDs = append(hold.ReservationIDs, reservation.ID)
	}

	s.logger(ctx, eventInventoryReserve, map[string]any{
		"storeId":  cmd.StoreID,
		"cartId":   cmd.CartID,
		"lines":    len(cmd.Lines),
		"depleted": len(result.Depleted),
	})
	s.publishDepletions(ctx, cmd.StoreID, result.Depleted)

	return hold, nil
}

// Confirm flips reserved holds to confirmed and binds the order id. It reads
// the reservation documents before writing so it can join a storage
// transaction that requires reads first, and so a racing expiry loses cleanly.
func (s *inventoryService) Confirm(ctx context.Context, cmd InventoryConfirmCommand) error {
	if len(cmd.ReservationIDs) == 0 {
		return fmt.Errorf("%w: no reservations to confirm", ErrInventoryInvalidInput)
	}
	if strings.TrimSpace(cmd.OrderID) == "" {
		return fmt.Errorf("%w: order id is required", ErrInventoryInvalidInput)
	}

	reservations, err := s.repo.GetReservations(ctx, cmd.ReservationIDs)
	if err != nil {
		return s.translateInventoryError("confirm", err)
	}
	if len(reservations) != len(cmd.ReservationIDs) {
		return fmt.Errorf("%w: %d of %d holds missing", ErrReservationNotFound,
			len(cmd.ReservationIDs)-len(reservations), len(cmd.ReservationIDs))
	}
	for _, reservation := range reservations {
		if reservation.Status != domain.ReservationStatusReserved {
			return fmt.Errorf("%w: hold %s is %s", ErrReservationStateInvalid, reservation.ID, reservation.Status)
		}
	}

	if err := s.repo.ConfirmReservations(ctx, repositories.InventoryConfirmRequest{
		ReservationIDs: cmd.ReservationIDs,
		OrderID:        cmd.OrderID,
		Now:            s.clock(),
	}); err != nil {
		return s.translateInventoryError("confirm", err)
	}

	s.logger(ctx, eventInventoryConfirm, map[string]any{
		"orderId": cmd.OrderID,
		"holds":   len(cmd.ReservationIDs),
	})
	return nil
}

// Release returns held quantities to availability. Releasing an already
// terminal hold is not an error; the repository skips it.
func (s *inventoryService) Release(ctx context.Context, cmd InventoryReleaseCommand) error {
	if len(cmd.ReservationIDs) == 0 {
		return fmt.Errorf("%w: no reservations to release", ErrInventoryInvalidInput)
	}

	result, err := s.repo.Release(ctx, repositories.InventoryReleaseRequest{
		ReservationIDs: cmd.ReservationIDs,
		Reason:         cmd.Reason,
		Now:            s.clock(),
	})
	if err != nil {
		return s.translateInventoryError("release", err)
	}

	s.logger(ctx, eventInventoryRelease, map[string]any{
		"requested": len(cmd.ReservationIDs),
		"released":  len(result.Released),
		"reason":    cmd.Reason,
	})
	return nil
}

// ExpireDue sweeps lapsed holds back to availability, at most limit per pass.
func (s *inventoryService) ExpireDue(ctx context.Context, limit int) (InventorySweepSummary, error) {
	if limit <= 0 {
		limit = 100
	}

	result, err := s.repo.ExpireDue(ctx, s.clock(), limit)
	if err != nil {
		return InventorySweepSummary{}, s.translateInventoryError("sweep", err)
	}

	s.logger(ctx, eventInventorySweep, map[string]any{
		"scanned": result.Scanned,
		"expired": result.Expired,
		"skipped": result.Skipped,
	})
	return result, nil
}

func (s *inventoryService) holdTTL(method domain.PaymentMethod) time.Duration {
	if method == domain.PaymentMethodCOD {
		return s.codTTL
	}
	return s.cardTTL
}

// publishDepletions enqueues INVENTORY_DEPLETED envelopes best-effort; a full
// queue never fails the reservation that detected the depletion.
func (s *inventoryService) publishDepletions(ctx context.Context, storeID string, depleted []domain.InventoryKey) {
	if s.events == nil {
		return
	}
	for _, key := range depleted {
		err := s.events.Enqueue(ctx, OrderEventMessage{
			Type:       EventTypeInventoryDepleted,
			StoreID:    storeID,
			SupplierID: key.SupplierID,
			VariantID:  key.VariantID,
		})
		if err != nil {
			s.logger(ctx, "inventory.depleted_event_dropped", map[string]any{
				"storeId":   storeID,
				"variantId": key.VariantID,
				"error":     err.Error(),
			})
		}
	}
}

func (s *inventoryService) translateInventoryError(op string, err error) error {
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return &InsufficientInventory{Detail: invErr.Message}
		case repositories.InventoryErrorStockNotFound:
			return &InsufficientInventory{Detail: invErr.Message}
		case repositories.InventoryErrorReservationActive:
			return fmt.Errorf("%w: %s", ErrReservationConflict, invErr.Message)
		case repositories.InventoryErrorReservationNotFound:
			return fmt.Errorf("%w: %s", ErrReservationNotFound, invErr.Message)
		case repositories.InventoryErrorInvalidReservationState:
			return fmt.Errorf("%w: %s", ErrReservationStateInvalid, invErr.Message)
		}
	}
	return translateRepositoryError("inventory "+op, err, nil)
}
