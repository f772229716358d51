package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/ordermesh/api/internal/domain"
)

func newTestRouter(t *testing.T, suppliers *stubSupplierRepo) FulfillmentRouter {
	t.Helper()
	router, err := NewFulfillmentRouter(FulfillmentRouterDeps{Suppliers: suppliers})
	if err != nil {
		t.Fatalf("new fulfillment router: %v", err)
	}
	return router
}

func TestRouteCartGroupsLinesBySupplier(t *testing.T) {
	suppliers := &stubSupplierRepo{suppliers: map[string]domain.Supplier{
		"sup-1": {ID: "sup-1", Status: domain.SupplierStatusActive, Region: "MY"},
		"sup-2": {ID: "sup-2", Status: domain.SupplierStatusActive, Region: "SG"},
	}}
	router := newTestRouter(t, suppliers)

	plan, err := router.RouteCart(context.Background(), RouteRequest{
		StoreID: "store-1",
		Lines: []RouteLine{
			{ResellerProductID: "rp-1", VariantID: "var-1", SupplierID: "sup-1", Quantity: 2},
			{ResellerProductID: "rp-2", VariantID: "var-2", SupplierID: "sup-2", Quantity: 1},
			{ResellerProductID: "rp-3", VariantID: "var-3", SupplierID: "sup-1", Quantity: 4},
		},
	})
	if err != nil {
		t.Fatalf("route cart: %v", err)
	}
	if len(plan.Legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(plan.Legs))
	}
	first := plan.Legs[0]
	if first.SupplierID != "sup-1" || first.Origin != "MY" {
		t.Fatalf("unexpected first leg: %+v", first)
	}
	if len(first.Lines) != 2 || first.Lines[1].ResellerProductID != "rp-3" {
		t.Fatalf("lines for sup-1 not grouped: %+v", first.Lines)
	}
	if plan.Legs[1].SupplierID != "sup-2" || len(plan.Legs[1].Lines) != 1 {
		t.Fatalf("unexpected second leg: %+v", plan.Legs[1])
	}
}

func TestRouteCartUnknownSupplier(t *testing.T) {
	router := newTestRouter(t, &stubSupplierRepo{suppliers: map[string]domain.Supplier{}})

	_, err := router.RouteCart(context.Background(), RouteRequest{
		StoreID: "store-1",
		Lines:   []RouteLine{{ResellerProductID: "rp-1", SupplierID: "sup-x", Quantity: 1}},
	})
	var unavailable *FulfillmentUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected fulfillment unavailable, got %v", err)
	}
	if unavailable.SupplierID != "sup-x" {
		t.Fatalf("unexpected supplier in error: %s", unavailable.SupplierID)
	}
}

func TestRouteCartSuspendedSupplier(t *testing.T) {
	suppliers := &stubSupplierRepo{suppliers: map[string]domain.Supplier{
		"sup-1": {ID: "sup-1", Status: domain.SupplierStatusSuspended, Region: "MY"},
	}}
	router := newTestRouter(t, suppliers)

	_, err := router.RouteCart(context.Background(), RouteRequest{
		StoreID: "store-1",
		Lines:   []RouteLine{{ResellerProductID: "rp-1", SupplierID: "sup-1", Quantity: 1}},
	})
	var unavailable *FulfillmentUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected fulfillment unavailable, got %v", err)
	}
}

func TestRouteCartEmpty(t *testing.T) {
	router := newTestRouter(t, &stubSupplierRepo{})

	_, err := router.RouteCart(context.Background(), RouteRequest{StoreID: "store-1"})
	var validation *ValidationError
	if !errors.As(err, &validation) || validation.Reason != ReasonMissingField {
		t.Fatalf("expected missing field error, got %v", err)
	}
}
