package rates

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/ordermesh/api/internal/domain"
	"github.com/ordermesh/api/internal/services"
)

var ratesTestNow = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func TestTaxCalculatorDefaults(t *testing.T) {
	calc, err := NewTaxCalculator(TaxCalculatorConfig{})
	if err != nil {
		t.Fatalf("new tax calculator: %v", err)
	}

	snap, err := calc.Calculate(context.Background(), services.TaxRequest{
		Region:   "my",
		Currency: "myr",
		Subtotal: 20000,
		Now:      ratesTestNow,
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	if snap.Region != "MY" || snap.Currency != "MYR" {
		t.Fatalf("expected normalized region/currency, got %q %q", snap.Region, snap.Currency)
	}
	// SST 6% of 20000.
	if snap.Total != 1200 {
		t.Fatalf("expected total 1200, got %d", snap.Total)
	}
	if len(snap.Lines) != 1 || snap.Lines[0].Name != "SST" || snap.Lines[0].RateBasis != 600 {
		t.Fatalf("unexpected lines: %+v", snap.Lines)
	}
	if !snap.CalculatedAt.Equal(ratesTestNow) {
		t.Fatalf("expected snapshot timestamp, got %v", snap.CalculatedAt)
	}
}

func TestTaxCalculatorRoundsHalfUp(t *testing.T) {
	calc, err := NewTaxCalculator(TaxCalculatorConfig{})
	if err != nil {
		t.Fatalf("new tax calculator: %v", err)
	}

	// 6% of 125 = 7.5, rounds to 8.
	snap, err := calc.Calculate(context.Background(), services.TaxRequest{
		Region:   "MY",
		Subtotal: 125,
		Now:      ratesTestNow,
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if snap.Total != 8 {
		t.Fatalf("expected 8, got %d", snap.Total)
	}
}

func TestTaxCalculatorOverrides(t *testing.T) {
	calc, err := NewTaxCalculator(TaxCalculatorConfig{
		Overrides: map[string]string{"th": "VAT=700"},
	})
	if err != nil {
		t.Fatalf("new tax calculator: %v", err)
	}

	snap, err := calc.Calculate(context.Background(), services.TaxRequest{
		Region:   "TH",
		Subtotal: 10000,
		Now:      ratesTestNow,
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if snap.Total != 700 || snap.Profile != "VAT" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestTaxCalculatorMissingProfile(t *testing.T) {
	calc, err := NewTaxCalculator(TaxCalculatorConfig{})
	if err != nil {
		t.Fatalf("new tax calculator: %v", err)
	}

	_, err = calc.Calculate(context.Background(), services.TaxRequest{Region: "FR", Subtotal: 100})
	var missing *services.TaxProfileMissing
	if !errors.As(err, &missing) || missing.Region != "FR" {
		t.Fatalf("expected tax profile missing, got %v", err)
	}
}

func TestTaxCalculatorRejectsMalformedOverride(t *testing.T) {
	if _, err := NewTaxCalculator(TaxCalculatorConfig{
		Overrides: map[string]string{"MY": "SST-600"},
	}); err == nil {
		t.Fatal("expected error for malformed override")
	}
}

func TestShippingQuoteByZoneAndWeight(t *testing.T) {
	calc, err := NewShippingCalculator(ShippingCalculatorConfig{})
	if err != nil {
		t.Fatalf("new shipping calculator: %v", err)
	}

	tests := []struct {
		name    string
		country string
		weight  int
		zone    string
		amount  int64
	}{
		// domestic: 800 base + 200/kg.
		{name: "domestic one kg", country: "MY", weight: 1000, zone: "domestic", amount: 1000},
		{name: "domestic rounds half up", country: "my", weight: 1250, zone: "domestic", amount: 1050},
		// regional: 2500 base + 900/kg.
		{name: "regional", country: "SG", weight: 2000, zone: "regional", amount: 4300},
		{name: "zero weight pays base", country: "MY", weight: 0, zone: "domestic", amount: 800},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snap, err := calc.Quote(context.Background(), services.ShippingRequest{
				Destination: domain.Address{Country: tc.country},
				Currency:    "MYR",
				WeightGrams: tc.weight,
				Now:         ratesTestNow,
			})
			if err != nil {
				t.Fatalf("quote: %v", err)
			}
			if snap.Zone != tc.zone {
				t.Fatalf("expected zone %q, got %q", tc.zone, snap.Zone)
			}
			if snap.Amount != tc.amount {
				t.Fatalf("expected amount %d, got %d", tc.amount, snap.Amount)
			}
			if snap.EstimateDays == nil || *snap.EstimateDays <= 0 {
				t.Fatalf("expected delivery estimate, got %v", snap.EstimateDays)
			}
		})
	}
}

func TestShippingQuoteMissingCountry(t *testing.T) {
	calc, err := NewShippingCalculator(ShippingCalculatorConfig{})
	if err != nil {
		t.Fatalf("new shipping calculator: %v", err)
	}

	_, err = calc.Quote(context.Background(), services.ShippingRequest{
		Destination: domain.Address{Country: "FR"},
	})
	var missing *services.ShippingConfigMissing
	if !errors.As(err, &missing) || missing.Country != "FR" {
		t.Fatalf("expected shipping config missing, got %v", err)
	}
}

func TestShippingQuoteOverrides(t *testing.T) {
	calc, err := NewShippingCalculator(ShippingCalculatorConfig{
		ZoneByCountry: map[string]string{"AU": "international"},
		BaseByZone:    map[string]string{"international": "5000"},
		PerKgByZone:   map[string]string{"international": "1500"},
	})
	if err != nil {
		t.Fatalf("new shipping calculator: %v", err)
	}

	snap, err := calc.Quote(context.Background(), services.ShippingRequest{
		Destination: domain.Address{Country: "AU"},
		WeightGrams: 2000,
		Now:         ratesTestNow,
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if snap.Zone != "international" || snap.Amount != 8000 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestCourierAssignsPerLeg(t *testing.T) {
	assigner, err := NewCourierAssigner(CourierAssignerConfig{})
	if err != nil {
		t.Fatalf("new courier assigner: %v", err)
	}

	snap, err := assigner.Assign(context.Background(), services.CourierRequest{
		Destination: domain.Address{Country: "MY"},
		Legs: []domain.FulfillmentLeg{
			{SupplierID: "sup-1", Origin: "MY"},
			{SupplierID: "sup-2", Origin: "SG"},
		},
		Now: ratesTestNow,
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	if len(snap.Assignments) != 2 {
		t.Fatalf("expected one assignment per leg, got %d", len(snap.Assignments))
	}
	for _, assignment := range snap.Assignments {
		if assignment.Courier != "gdex" || assignment.Service != "standard" {
			t.Fatalf("unexpected assignment: %+v", assignment)
		}
	}
	if !snap.AssignedAt.Equal(ratesTestNow) {
		t.Fatalf("expected assignment timestamp, got %v", snap.AssignedAt)
	}
}

func TestCourierOverridesAndMissingZone(t *testing.T) {
	assigner, err := NewCourierAssigner(CourierAssignerConfig{
		CourierByZone: map[string]string{"domestic": "jnt/standard"},
	})
	if err != nil {
		t.Fatalf("new courier assigner: %v", err)
	}

	snap, err := assigner.Assign(context.Background(), services.CourierRequest{
		Destination: domain.Address{Country: "MY"},
		Legs:        []domain.FulfillmentLeg{{SupplierID: "sup-1"}},
		Now:         ratesTestNow,
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if snap.Assignments[0].Courier != "jnt" {
		t.Fatalf("expected override courier, got %+v", snap.Assignments[0])
	}

	_, err = assigner.Assign(context.Background(), services.CourierRequest{
		Destination: domain.Address{Country: "FR"},
	})
	var missing *services.ShippingConfigMissing
	if !errors.As(err, &missing) {
		t.Fatalf("expected shipping config missing, got %v", err)
	}

	if _, err := NewCourierAssigner(CourierAssignerConfig{
		CourierByZone: map[string]string{"domestic": "jnt"},
	}); err == nil {
		t.Fatal("expected error for malformed courier override")
	}
}
