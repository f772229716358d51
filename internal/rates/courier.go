package rates

import (
	"context"
	"fmt"
	"strings"

	domain "github.com/ordermesh/api/internal/domain"
	"github.com/ordermesh/api/internal/services"
)

// courierService names the courier and service level serving one zone.
type courierService struct {
	Courier string
	Service string
}

var defaultCouriers = map[string]courierService{
	zoneDomestic:      {Courier: "gdex", Service: "standard"},
	zoneRegional:      {Courier: "dhl", Service: "express"},
	zoneInternational: {Courier: "dhl", Service: "express"},
}

// CourierAssignerConfig overrides the per-zone courier table. Values are
// "courier/service" pairs, e.g. "jnt/standard".
type CourierAssignerConfig struct {
	ZoneByCountry map[string]string
	CourierByZone map[string]string
}

type courierAssigner struct {
	zones    *zoneResolver
	couriers map[string]courierService
}

// NewCourierAssigner builds the assigner, merging overrides over defaults.
func NewCourierAssigner(cfg CourierAssignerConfig) (services.CourierAssigner, error) {
	couriers := make(map[string]courierService, len(defaultCouriers)+len(cfg.CourierByZone))
	for zone, svc := range defaultCouriers {
		couriers[zone] = svc
	}
	for zone, spec := range cfg.CourierByZone {
		zone = strings.ToLower(strings.TrimSpace(zone))
		courier, service, found := strings.Cut(strings.TrimSpace(spec), "/")
		if !found || strings.TrimSpace(courier) == "" || strings.TrimSpace(service) == "" {
			return nil, fmt.Errorf("rates: courier override for zone %q: malformed %q", zone, spec)
		}
		couriers[zone] = courierService{
			Courier: strings.ToLower(strings.TrimSpace(courier)),
			Service: strings.ToLower(strings.TrimSpace(service)),
		}
	}
	return &courierAssigner{
		zones:    newZoneResolver(cfg.ZoneByCountry),
		couriers: couriers,
	}, nil
}

// Assign binds every fulfilment leg to the courier serving the destination
// zone. All legs of one order ship to the same destination, so they share the
// courier.
func (a *courierAssigner) Assign(_ context.Context, req services.CourierRequest) (services.CourierSnapshot, error) {
	country := strings.ToUpper(strings.TrimSpace(req.Destination.Country))
	zone, ok := a.zones.resolve(country)
	if !ok {
		return services.CourierSnapshot{}, &services.ShippingConfigMissing{Country: country}
	}
	svc, ok := a.couriers[zone]
	if !ok {
		return services.CourierSnapshot{}, &services.ShippingConfigMissing{Country: country}
	}

	assignments := make([]domain.CourierAssignment, 0, len(req.Legs))
	for _, leg := range req.Legs {
		assignments = append(assignments, domain.CourierAssignment{
			SupplierID: leg.SupplierID,
			Courier:    svc.Courier,
			Service:    svc.Service,
		})
	}

	return services.CourierSnapshot{
		Assignments: assignments,
		AssignedAt:  req.Now.UTC(),
	}, nil
}
