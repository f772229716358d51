package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ordermesh/api/internal/platform/httpx"
	"github.com/ordermesh/api/internal/platform/idempotency"
	"github.com/ordermesh/api/internal/services"
)

const (
	defaultSweepLimit = 100
	maxSweepLimit     = 1000
)

// InternalHandlers exposes maintenance endpoints for operators and schedulers.
// The surrounding route group applies service-to-service authentication.
type InternalHandlers struct {
	inventory   services.InventoryService
	idempotency idempotency.Store
	clock       func() time.Time
}

// NewInternalHandlers constructs a new InternalHandlers instance.
func NewInternalHandlers(inventory services.InventoryService, store idempotency.Store, clock func() time.Time) *InternalHandlers {
	if clock == nil {
		clock = time.Now
	}
	return &InternalHandlers{
		inventory:   inventory,
		idempotency: store,
		clock:       clock,
	}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/reservations:sweep", h.sweepReservations)
	r.Post("/idempotency:cleanup", h.cleanupIdempotency)
}

type sweepRequest struct {
	Limit int `json:"limit"`
}

func parseSweepLimit(r *http.Request) int {
	limit := defaultSweepLimit
	if r.Body != nil {
		var req sweepRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Limit > 0 {
			limit = req.Limit
		}
	}
	if limit > maxSweepLimit {
		limit = maxSweepLimit
	}
	return limit
}

func (h *InternalHandlers) sweepReservations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	summary, err := h.inventory.ExpireDue(ctx, parseSweepLimit(r))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"scanned": summary.Scanned,
		"expired": summary.Expired,
		"skipped": summary.Skipped,
	})
}

func (h *InternalHandlers) cleanupIdempotency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.idempotency == nil {
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_unavailable", "idempotency store unavailable", http.StatusServiceUnavailable))
		return
	}

	deleted, err := h.idempotency.DeleteExpired(ctx, h.clock().UTC(), parseSweepLimit(r))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("dependency_unavailable", "failed to delete expired idempotency records", http.StatusServiceUnavailable))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"deleted": deleted,
	})
}
