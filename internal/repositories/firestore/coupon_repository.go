package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/ordermesh/api/internal/domain"
	pfirestore "github.com/ordermesh/api/internal/platform/firestore"
	"github.com/ordermesh/api/internal/repositories"
)

const (
	couponCollection      = "coupons"
	couponUsageCollection = "couponUsages"
)

// CouponRepository reads coupon definitions and tracks redemptions in Firestore.
type CouponRepository struct {
	provider *pfirestore.Provider
	coupons  *pfirestore.BaseRepository[couponDocument]
	usages   *pfirestore.BaseRepository[couponUsageDocument]
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	coupons := pfirestore.NewBaseRepository[couponDocument](provider, couponCollection, nil, nil)
	usages := pfirestore.NewBaseRepository[couponUsageDocument](provider, couponUsageCollection, nil, nil)
	return &CouponRepository{provider: provider, coupons: coupons, usages: usages}, nil
}

// couponDocID keys coupons by store and normalized code so lookup at checkout
// is a single document read.
func couponDocID(storeID, code string) string {
	return strings.TrimSpace(storeID) + ":" + normaliseCouponCode(code)
}

func normaliseCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func couponUsageDocID(couponID, customerID string) string {
	return strings.TrimSpace(couponID) + ":" + strings.TrimSpace(customerID)
}

// FindByCode fetches the store's coupon for the given code.
func (r *CouponRepository) FindByCode(ctx context.Context, storeID string, code string) (domain.Coupon, error) {
	if r == nil || r.coupons == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return domain.Coupon{}, errors.New("coupon repository: store id is required")
	}
	if normaliseCouponCode(code) == "" {
		return domain.Coupon{}, errors.New("coupon repository: code is required")
	}
	doc, err := r.coupons.Get(ctx, couponDocID(storeID, code))
	if err != nil {
		return domain.Coupon{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// GetUsage returns the customer's redemption record for a coupon. Missing
// records surface as a not-found repository error.
func (r *CouponRepository) GetUsage(ctx context.Context, couponID string, customerID string) (domain.CouponUsage, error) {
	if r == nil || r.usages == nil {
		return domain.CouponUsage{}, errors.New("coupon repository not initialised")
	}
	couponID = strings.TrimSpace(couponID)
	customerID = strings.TrimSpace(customerID)
	if couponID == "" || customerID == "" {
		return domain.CouponUsage{}, errors.New("coupon repository: coupon id and customer id are required")
	}
	doc, err := r.usages.Get(ctx, couponUsageDocID(couponID, customerID))
	if err != nil {
		return domain.CouponUsage{}, err
	}
	return doc.Data.toDomain(), nil
}

// VerifyRedeemable re-reads the usage counters and rejects when either limit
// is exhausted. Inside the order commit it must run before any buffered write;
// the transactional read makes concurrent redemptions of the last slot retry
// instead of both committing.
func (r *CouponRepository) VerifyRedeemable(ctx context.Context, couponID string, customerID string) error {
	if r == nil || r.provider == nil {
		return errors.New("coupon repository not initialised")
	}
	couponID = strings.TrimSpace(couponID)
	customerID = strings.TrimSpace(customerID)
	if couponID == "" {
		return errors.New("coupon repository: coupon id is required")
	}

	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		return r.redeemableReads(ctx, tx, couponID, customerID)
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return r.redeemableReads(ctx, tx, couponID, customerID)
	})
	if err != nil {
		return wrapCouponError("coupons.verifyRedeemable", err)
	}
	return nil
}

func (r *CouponRepository) redeemableReads(ctx context.Context, tx *firestore.Transaction, couponID, customerID string) error {
	couponRef, err := r.coupons.DocumentRef(ctx, couponID)
	if err != nil {
		return err
	}
	snap, err := tx.Get(couponRef)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return repositories.NewCouponError(repositories.CouponErrorNotFound, fmt.Sprintf("coupon %s not found", couponID), err)
		}
		return err
	}
	var doc couponDocument
	if err := snap.DataTo(&doc); err != nil {
		return fmt.Errorf("decode coupon %s: %w", couponID, err)
	}
	if doc.UsageLimit != nil && doc.UsedCount >= *doc.UsageLimit {
		return repositories.NewCouponError(repositories.CouponErrorUsageLimit, fmt.Sprintf("coupon %s usage limit reached", couponID), nil)
	}
	if doc.PerCustomerLimit != nil && customerID != "" {
		usageRef, err := r.usages.DocumentRef(ctx, couponUsageDocID(couponID, customerID))
		if err != nil {
			return err
		}
		usageSnap, err := tx.Get(usageRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil
			}
			return err
		}
		var usage couponUsageDocument
		if err := usageSnap.DataTo(&usage); err != nil {
			return fmt.Errorf("decode coupon usage %s: %w", couponUsageDocID(couponID, customerID), err)
		}
		if usage.Count >= *doc.PerCustomerLimit {
			return repositories.NewCouponError(repositories.CouponErrorPerCustomerLimit, fmt.Sprintf("per-customer limit for coupon %s reached", couponID), nil)
		}
	}
	return nil
}

// RecordRedemption bumps the coupon and per-customer counters. Both writes are
// server-side increments, so they can join the order commit transaction without
// an extra read; VerifyRedeemable guards the limits in the same transaction.
func (r *CouponRepository) RecordRedemption(ctx context.Context, redemption repositories.CouponRedemption) error {
	if r == nil || r.provider == nil {
		return errors.New("coupon repository not initialised")
	}
	couponID := strings.TrimSpace(redemption.CouponID)
	customerID := strings.TrimSpace(redemption.CustomerID)
	if couponID == "" || customerID == "" {
		return errors.New("coupon repository: coupon id and customer id are required")
	}
	now := redemption.Now.UTC()

	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		return r.redemptionWrites(ctx, tx, couponID, customerID, strings.TrimSpace(redemption.OrderID), now)
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return r.redemptionWrites(ctx, tx, couponID, customerID, strings.TrimSpace(redemption.OrderID), now)
	})
	if err != nil {
		return pfirestore.WrapError("coupons.recordRedemption", err)
	}
	return nil
}

func (r *CouponRepository) redemptionWrites(ctx context.Context, tx *firestore.Transaction, couponID, customerID, orderID string, now time.Time) error {
	couponRef, err := r.coupons.DocumentRef(ctx, couponID)
	if err != nil {
		return err
	}
	if err := tx.Update(couponRef, []firestore.Update{
		{Path: "usedCount", Value: firestore.Increment(1)},
		{Path: "updatedAt", Value: now},
	}); err != nil {
		return err
	}

	usageRef, err := r.usages.DocumentRef(ctx, couponUsageDocID(couponID, customerID))
	if err != nil {
		return err
	}
	return tx.Set(usageRef, map[string]any{
		"couponId":    couponID,
		"customerId":  customerID,
		"count":       firestore.Increment(1),
		"lastOrderId": orderID,
		"lastUsedAt":  now,
	}, firestore.MergeAll)
}

func wrapCouponError(op string, err error) error {
	if err == nil {
		return nil
	}
	var couponErr *repositories.CouponError
	if errors.As(err, &couponErr) {
		if couponErr.Op == "" {
			couponErr.Op = op
		}
		return couponErr
	}
	return pfirestore.WrapError(op, err)
}

type couponDocument struct {
	StoreID          string    `firestore:"storeId"`
	Code             string    `firestore:"code"`
	DiscountKind     string    `firestore:"discountKind"`
	DiscountValue    int64     `firestore:"discountValue"`
	Scope            string    `firestore:"scope"`
	ScopeRef         string    `firestore:"scopeRef"`
	MinOrderValue    *int64    `firestore:"minOrderValue,omitempty"`
	UsageLimit       *int      `firestore:"usageLimit,omitempty"`
	PerCustomerLimit *int      `firestore:"perCustomerLimit,omitempty"`
	UsedCount        int       `firestore:"usedCount"`
	Active           bool      `firestore:"active"`
	StartsAt         time.Time `firestore:"startsAt"`
	EndsAt           time.Time `firestore:"endsAt"`
	CreatedAt        time.Time `firestore:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

func (d couponDocument) toDomain(id string) domain.Coupon {
	return domain.Coupon{
		ID:      id,
		StoreID: strings.TrimSpace(d.StoreID),
		Code:    normaliseCouponCode(d.Code),
		Discount: domain.RateValue{
			Kind:  domain.RateKind(strings.ToLower(strings.TrimSpace(d.DiscountKind))),
			Value: d.DiscountValue,
		},
		Scope:            domain.RuleScope(strings.ToLower(strings.TrimSpace(d.Scope))),
		ScopeRef:         strings.TrimSpace(d.ScopeRef),
		MinOrderValue:    d.MinOrderValue,
		UsageLimit:       d.UsageLimit,
		PerCustomerLimit: d.PerCustomerLimit,
		UsedCount:        d.UsedCount,
		Active:           d.Active,
		StartsAt:         d.StartsAt,
		EndsAt:           d.EndsAt,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

type couponUsageDocument struct {
	CouponID   string    `firestore:"couponId"`
	CustomerID string    `firestore:"customerId"`
	Count      int       `firestore:"count"`
	LastUsedAt time.Time `firestore:"lastUsedAt"`
}

func (d couponUsageDocument) toDomain() domain.CouponUsage {
	return domain.CouponUsage{
		CouponID:   strings.TrimSpace(d.CouponID),
		CustomerID: strings.TrimSpace(d.CustomerID),
		Count:      d.Count,
		LastUsedAt: d.LastUsedAt,
	}
}
