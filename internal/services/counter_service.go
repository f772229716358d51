package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ordermesh/api/internal/repositories"
)

var (
	// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
	ErrCounterInvalidInput = errors.New("counter: invalid input")
	// ErrCounterExhausted indicates the requested counter cannot increment further due to max bounds.
	ErrCounterExhausted = errors.New("counter: exhausted")
)

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
	Clock      func() time.Time
}

type counterService struct {
	repo       repositories.CounterRepository
	clock      func() time.Time
	configMu   sync.Mutex
	configured map[string]counterConfigSignature
}

type counterConfigSignature struct {
	stepSet      bool
	step         int64
	maxSet       bool
	maxValue     int64
	initialSet   bool
	initialValue int64
}

// NewCounterService constructs a service that manages counter sequences on top of the repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &counterService{
		repo: deps.Repository,
		clock: func() time.Time {
			return clock().UTC()
		},
		configured: make(map[string]counterConfigSignature),
	}, nil
}

func (s *counterService) Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error) {
	scope = strings.TrimSpace(scope)
	name = strings.TrimSpace(name)
	if scope == "" {
		return CounterValue{}, fmt.Errorf("%w: scope is required", ErrCounterInvalidInput)
	}
	if name == "" {
		return CounterValue{}, fmt.Errorf("%w: name is required", ErrCounterInvalidInput)
	}

	counterID := scope + ":" + name

	if err := s.ensureConfiguration(ctx, counterID, opts); err != nil {
		return CounterValue{}, err
	}

	value, err := s.repo.Next(ctx, counterID, opts.Step)
	if err != nil {
		return CounterValue{}, mapCounterError(err)
	}

	now := s.clock()
	formatted := s.formatValue(now, value, opts)
	return CounterValue{Value: value, Formatted: formatted}, nil
}

// NextOrderNumber issues the next human-readable order number for the store.
// Each store owns its own sequence, so numbers stay dense per storefront.
func (s *counterService) NextOrderNumber(ctx context.Context, storeID string) (string, error) {
	opts := CounterGenerationOptions{
		Formatter: func(_ time.Time, seq int64) string { return fmt.Sprintf("SO-%06d", seq) },
	}
	result, err := s.Next(ctx, "orders", storeID, opts)
	if err != nil {
		return "", err
	}
	return result.Formatted, nil
}

// MonthlyOrderCount reads the reseller's order count for the month containing
// the given instant. Missing counters read as zero.
func (s *counterService) MonthlyOrderCount(ctx context.Context, resellerID string, month time.Time) (int64, error) {
	resellerID = strings.TrimSpace(resellerID)
	if resellerID == "" {
		return 0, fmt.Errorf("%w: reseller id is required", ErrCounterInvalidInput)
	}
	return s.current(ctx, "reseller_orders:"+resellerID+":"+monthKey(month))
}

// IncrementMonthlyOrders bumps the reseller's order count for the month.
func (s *counterService) IncrementMonthlyOrders(ctx context.Context, resellerID string, month time.Time) (int64, error) {
	resellerID = strings.TrimSpace(resellerID)
	if resellerID == "" {
		return 0, fmt.Errorf("%w: reseller id is required", ErrCounterInvalidInput)
	}
	result, err := s.Next(ctx, "reseller_orders", resellerID+":"+monthKey(month), CounterGenerationOptions{})
	if err != nil {
		return 0, err
	}
	return result.Value, nil
}

// MonthlySupplierValue reads the supplier's accumulated order value for the month.
func (s *counterService) MonthlySupplierValue(ctx context.Context, supplierID string, month time.Time) (int64, error) {
	supplierID = strings.TrimSpace(supplierID)
	if supplierID == "" {
		return 0, fmt.Errorf("%w: supplier id is required", ErrCounterInvalidInput)
	}
	return s.current(ctx, "supplier_value:"+supplierID+":"+monthKey(month))
}

// AddMonthlySupplierValue accumulates order value against the supplier's
// monthly tier cap. The amount rides the counter step, so it bypasses the
// shared configuration cache and hits the repository directly.
func (s *counterService) AddMonthlySupplierValue(ctx context.Context, supplierID string, month time.Time, amount int64) (int64, error) {
	supplierID = strings.TrimSpace(supplierID)
	if supplierID == "" {
		return 0, fmt.Errorf("%w: supplier id is required", ErrCounterInvalidInput)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", ErrCounterInvalidInput)
	}
	value, err := s.repo.Next(ctx, "supplier_value:"+supplierID+":"+monthKey(month), amount)
	if err != nil {
		return 0, mapCounterError(err)
	}
	return value, nil
}

func (s *counterService) current(ctx context.Context, counterID string) (int64, error) {
	value, err := s.repo.Current(ctx, counterID)
	if err != nil {
		return 0, translateRepositoryError("counter read", err, nil)
	}
	return value, nil
}

func mapCounterError(err error) error {
	var counterErr *repositories.CounterError
	if errors.As(err, &counterErr) {
		switch counterErr.Code {
		case repositories.CounterErrorInvalidInput:
			return fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
		case repositories.CounterErrorExhausted:
			return fmt.Errorf("%w: %s", ErrCounterExhausted, counterErr.Message)
		}
	}
	return translateRepositoryError("counter next", err, nil)
}

func monthKey(month time.Time) string {
	month = month.UTC()
	return fmt.Sprintf("%04d%02d", month.Year(), int(month.Month()))
}

func (s *counterService) ensureConfiguration(ctx context.Context, counterID string, opts CounterGenerationOptions) error {
	signature := counterConfigSignature{}
	if opts.Step > 0 {
		signature.stepSet = true
		signature.step = opts.Step
	}
	if opts.MaxValue != nil {
		signature.maxSet = true
		signature.maxValue = *opts.MaxValue
	}
	if opts.InitialValue != nil {
		signature.initialSet = true
		signature.initialValue = *opts.InitialValue
	}

	s.configMu.Lock()
	defer s.configMu.Unlock()

	if existing, ok := s.configured[counterID]; ok && existing == signature {
		return nil
	}

	cfg := repositories.CounterConfig{}
	if signature.stepSet {
		cfg.Step = signature.step
	}
	if signature.maxSet {
		cfg.MaxValue = &signature.maxValue
	}
	if signature.initialSet {
		cfg.InitialValue = &signature.initialValue
	}

	if signature.stepSet || signature.maxSet || signature.initialSet {
		if err := s.repo.Configure(ctx, counterID, cfg); err != nil {
			return err
		}
	}
	s.configured[counterID] = signature
	return nil
}

func (s *counterService) formatValue(now time.Time, value int64, opts CounterGenerationOptions) string {
	if opts.Formatter != nil {
		return opts.Formatter(now, value)
	}

	formatted := strconv.FormatInt(value, 10)
	if opts.PadLength > 0 {
		formatted = fmt.Sprintf("%0*d", opts.PadLength, value)
	}
	if opts.Prefix != "" {
		formatted = opts.Prefix + formatted
	}
	if opts.Suffix != "" {
		formatted += opts.Suffix
	}
	return formatted
}
