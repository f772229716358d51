package services

import (
	"context"
	"errors"

	domain "github.com/ordermesh/api/internal/domain"
	"github.com/ordermesh/api/internal/repositories"
)

// FulfillmentRouterDeps bundles collaborators required to construct a router.
type FulfillmentRouterDeps struct {
	Suppliers repositories.SupplierRepository
}

type fulfillmentRouter struct {
	suppliers repositories.SupplierRepository
}

// NewFulfillmentRouter constructs the supplier-direct routing strategy: every
// line ships from its supplier's region and lines sharing a supplier ride the
// same leg.
func NewFulfillmentRouter(deps FulfillmentRouterDeps) (FulfillmentRouter, error) {
	if deps.Suppliers == nil {
		return nil, errors.New("fulfillment router: supplier repository is required")
	}
	return &fulfillmentRouter{suppliers: deps.Suppliers}, nil
}

func (r *fulfillmentRouter) RouteCart(ctx context.Context, req RouteRequest) (FulfillmentPlan, error) {
	if len(req.Lines) == 0 {
		return FulfillmentPlan{}, NewValidationError(ReasonMissingField, "lines", "nothing to route")
	}

	// Legs keep the first-seen supplier order so the plan is deterministic.
	legIndex := make(map[string]int, len(req.Lines))
	var legs []domain.FulfillmentLeg

	for _, line := range req.Lines {
		idx, seen := legIndex[line.SupplierID]
		if !seen {
			supplier, err := r.suppliers.FindByID(ctx, line.SupplierID)
			if err != nil {
				if isRepoNotFound(err) {
					return FulfillmentPlan{}, &FulfillmentUnavailable{
						SupplierID: line.SupplierID,
						Reason:     "supplier not found",
					}
				}
				return FulfillmentPlan{}, translateRepositoryError("supplier lookup", err, nil)
			}
			if supplier.Status != domain.SupplierStatusActive {
				return FulfillmentPlan{}, &FulfillmentUnavailable{
					SupplierID: line.SupplierID,
					Reason:     "supplier cannot accept new orders",
				}
			}
			idx = len(legs)
			legIndex[line.SupplierID] = idx
			legs = append(legs, domain.FulfillmentLeg{
				SupplierID: supplier.ID,
				Origin:     supplier.Region,
			})
		}
		legs[idx].Lines = append(legs[idx].Lines, domain.FulfillmentLine{
			ResellerProductID: line.ResellerProductID,
			VariantID:         line.VariantID,
			Quantity:          line.Quantity,
		})
	}

	return FulfillmentPlan{Legs: legs}, nil
}
