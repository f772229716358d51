package rates

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ordermesh/api/internal/services"
)

// Shipping zones, least specific last. Every supported destination country
// maps to exactly one zone; unmapped countries are a configuration gap.
const (
	zoneDomestic      = "domestic"
	zoneRegional      = "regional"
	zoneInternational = "international"
)

var defaultShippingZones = map[string]string{
	"MY": zoneDomestic,
	"SG": zoneRegional,
	"BN": zoneRegional,
	"TH": zoneRegional,
	"ID": zoneRegional,
	"PH": zoneRegional,
	"VN": zoneRegional,
}

// zoneRate prices one zone: a flat base plus a per-kilogram charge.
type zoneRate struct {
	Base         int64
	PerKg        int64
	EstimateDays int
}

var defaultZoneRates = map[string]zoneRate{
	zoneDomestic:      {Base: 800, PerKg: 200, EstimateDays: 3},
	zoneRegional:      {Base: 2500, PerKg: 900, EstimateDays: 7},
	zoneInternational: {Base: 6000, PerKg: 2000, EstimateDays: 14},
}

// ShippingCalculatorConfig overrides the zone mapping and zone rates.
// ZoneByCountry maps ISO country codes to zone names; BaseByZone and
// PerKgByZone carry minor-unit amounts as decimal strings.
type ShippingCalculatorConfig struct {
	ZoneByCountry map[string]string
	BaseByZone    map[string]string
	PerKgByZone   map[string]string
}

type shippingCalculator struct {
	zones *zoneResolver
	rates map[string]zoneRate
}

// NewShippingCalculator builds the calculator, merging overrides over defaults.
func NewShippingCalculator(cfg ShippingCalculatorConfig) (services.ShippingCalculator, error) {
	rates := make(map[string]zoneRate, len(defaultZoneRates))
	for zone, rate := range defaultZoneRates {
		rates[zone] = rate
	}
	if err := applyZoneAmounts(rates, cfg.BaseByZone, func(rate *zoneRate, amount int64) {
		rate.Base = amount
	}); err != nil {
		return nil, fmt.Errorf("rates: shipping base override: %w", err)
	}
	if err := applyZoneAmounts(rates, cfg.PerKgByZone, func(rate *zoneRate, amount int64) {
		rate.PerKg = amount
	}); err != nil {
		return nil, fmt.Errorf("rates: shipping per-kg override: %w", err)
	}

	return &shippingCalculator{
		zones: newZoneResolver(cfg.ZoneByCountry),
		rates: rates,
	}, nil
}

func (c *shippingCalculator) Quote(_ context.Context, req services.ShippingRequest) (services.ShippingSnapshot, error) {
	country := strings.ToUpper(strings.TrimSpace(req.Destination.Country))
	zone, ok := c.zones.resolve(country)
	if !ok {
		return services.ShippingSnapshot{}, &services.ShippingConfigMissing{Country: country}
	}
	rate, ok := c.rates[zone]
	if !ok {
		return services.ShippingSnapshot{}, &services.ShippingConfigMissing{Country: country}
	}

	weight := req.WeightGrams
	if weight < 0 {
		weight = 0
	}
	amount := rate.Base + perKgCharge(rate.PerKg, weight)
	days := rate.EstimateDays

	return services.ShippingSnapshot{
		Zone:         zone,
		Method:       "standard",
		WeightGrams:  weight,
		Amount:       amount,
		Currency:     strings.ToUpper(strings.TrimSpace(req.Currency)),
		EstimateDays: &days,
		CalculatedAt: req.Now.UTC(),
	}, nil
}

// zoneResolver maps destination countries to shipping zones. International is
// the fallback only when the country is explicitly mapped to it; unknown
// countries stay unresolved so misconfiguration surfaces as an error.
type zoneResolver struct {
	byCountry map[string]string
}

func newZoneResolver(overrides map[string]string) *zoneResolver {
	byCountry := make(map[string]string, len(defaultShippingZones)+len(overrides))
	for country, zone := range defaultShippingZones {
		byCountry[country] = zone
	}
	for country, zone := range overrides {
		country = strings.ToUpper(strings.TrimSpace(country))
		zone = strings.ToLower(strings.TrimSpace(zone))
		if country == "" || zone == "" {
			continue
		}
		byCountry[country] = zone
	}
	return &zoneResolver{byCountry: byCountry}
}

func (r *zoneResolver) resolve(country string) (string, bool) {
	zone, ok := r.byCountry[country]
	return zone, ok
}

func applyZoneAmounts(rates map[string]zoneRate, overrides map[string]string, apply func(*zoneRate, int64)) error {
	for zone, value := range overrides {
		zone = strings.ToLower(strings.TrimSpace(zone))
		amount, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || amount < 0 {
			return fmt.Errorf("invalid amount %q for zone %q", value, zone)
		}
		rate := rates[zone]
		apply(&rate, amount)
		rates[zone] = rate
	}
	return nil
}

// perKgCharge prorates the per-kilogram rate by gram weight, half-up.
func perKgCharge(perKg int64, weightGrams int) int64 {
	if perKg <= 0 || weightGrams <= 0 {
		return 0
	}
	return (perKg*int64(weightGrams) + 500) / 1000
}
