// Package rates provides the table-driven tax, shipping, and courier
// calculators whose outputs are frozen into order snapshots. Built-in tables
// cover the launch regions; deployments override them through configuration.
package rates

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	domain "github.com/ordermesh/api/internal/domain"
	"github.com/ordermesh/api/internal/services"
)

// taxComponent is one named percentage line of a regional tax profile.
// RateBasis is in basis points of the taxable amount.
type taxComponent struct {
	Name      string
	RateBasis int64
}

var defaultTaxProfiles = map[string][]taxComponent{
	"MY": {{Name: "SST", RateBasis: 600}},
	"SG": {{Name: "GST", RateBasis: 900}},
	"ID": {{Name: "PPN", RateBasis: 1100}},
}

// TaxCalculatorConfig carries per-region overrides of the built-in profiles.
// Values are comma-separated "name=basisPoints" pairs, e.g. "SST=600,EXCISE=50".
type TaxCalculatorConfig struct {
	Overrides map[string]string
}

type taxCalculator struct {
	profiles map[string][]taxComponent
}

// NewTaxCalculator builds the calculator, merging overrides over the defaults.
func NewTaxCalculator(cfg TaxCalculatorConfig) (services.TaxCalculator, error) {
	profiles := make(map[string][]taxComponent, len(defaultTaxProfiles)+len(cfg.Overrides))
	for region, components := range defaultTaxProfiles {
		profiles[region] = components
	}
	for region, spec := range cfg.Overrides {
		components, err := parseTaxComponents(spec)
		if err != nil {
			return nil, fmt.Errorf("rates: tax override for %q: %w", region, err)
		}
		profiles[strings.ToUpper(strings.TrimSpace(region))] = components
	}
	return &taxCalculator{profiles: profiles}, nil
}

func (c *taxCalculator) Calculate(_ context.Context, req services.TaxRequest) (services.TaxSnapshot, error) {
	region := strings.ToUpper(strings.TrimSpace(req.Region))
	components, ok := c.profiles[region]
	if !ok || len(components) == 0 {
		return services.TaxSnapshot{}, &services.TaxProfileMissing{Region: region}
	}

	names := make([]string, 0, len(components))
	lines := make([]domain.TaxLine, 0, len(components))
	var total int64
	for _, component := range components {
		amount := basisPointsOf(req.Subtotal, component.RateBasis)
		lines = append(lines, domain.TaxLine{
			Name:      component.Name,
			RateBasis: component.RateBasis,
			Amount:    amount,
		})
		names = append(names, component.Name)
		total += amount
	}

	return services.TaxSnapshot{
		Profile:      strings.Join(names, "+"),
		Region:       region,
		Lines:        lines,
		Total:        total,
		Currency:     strings.ToUpper(strings.TrimSpace(req.Currency)),
		CalculatedAt: req.Now.UTC(),
	}, nil
}

func parseTaxComponents(spec string) ([]taxComponent, error) {
	var components []taxComponent
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("malformed component %q", pair)
		}
		basis, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || basis < 0 {
			return nil, fmt.Errorf("invalid basis points in %q", pair)
		}
		components = append(components, taxComponent{
			Name:      strings.ToUpper(strings.TrimSpace(name)),
			RateBasis: basis,
		})
	}
	if len(components) == 0 {
		return nil, fmt.Errorf("empty component list")
	}
	sort.SliceStable(components, func(i, j int) bool {
		return components[i].Name < components[j].Name
	})
	return components, nil
}

// basisPointsOf applies a basis-point rate with half-up rounding.
func basisPointsOf(amount, basis int64) int64 {
	if amount <= 0 || basis <= 0 {
		return 0
	}
	return (amount*basis + 5000) / 10000
}
