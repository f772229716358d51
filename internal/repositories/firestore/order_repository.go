package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/ordermesh/api/internal/domain"
	pfirestore "github.com/ordermesh/api/internal/platform/firestore"
	"github.com/ordermesh/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists order aggregates in Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{provider: provider, base: base}, nil
}

// Insert writes a new order document exactly once. Inside an ambient
// transaction the write is buffered and a duplicate id surfaces as a conflict
// at commit time.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	doc := encodeOrderDocument(order)

	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		if err := tx.Create(ref, doc); err != nil {
			return pfirestore.WrapError("orders.insert", err)
		}
		return nil
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update replaces the stored order aggregate.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	if _, err := r.base.Set(ctx, orderID, encodeOrderDocument(order)); err != nil {
		return err
	}
	return nil
}

// FindByID fetches a single order aggregate.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(doc.ID, doc.Data), nil
}

// List returns a store's orders newest first, optionally narrowed by status
// and placement window.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	storeID := strings.TrimSpace(filter.StoreID)
	if storeID == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository: store id is required")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeTimeCursorToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statusFilters := normaliseOrderStatuses(filter.Status)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("storeId", "==", storeID)

		if len(statusFilters) == 1 {
			q = q.Where("status", "==", statusFilters[0])
		} else if len(statusFilters) > 1 {
			// Firestore in clause supports up to 10 values.
			if len(statusFilters) > 10 {
				statusFilters = statusFilters[:10]
			}
			q = q.Where("status", "in", statusFilters)
		}

		if filter.DateRange.From != nil {
			q = q.Where("placedAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("placedAt", "<=", filter.DateRange.To.UTC())
		}

		q = q.OrderBy("placedAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.PlacedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeTimeCursorToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Order, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeOrderDocument(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Order]{Items: items, NextPageToken: nextToken}, nil
}

func normaliseOrderStatuses(statuses []string) []string {
	if len(statuses) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(statuses))
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		trimmed := strings.ToLower(strings.TrimSpace(s))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

type orderDocument struct {
	Number              string                      `firestore:"number"`
	StoreID             string                      `firestore:"storeId"`
	ResellerID          string                      `firestore:"resellerId"`
	CustomerID          *string                     `firestore:"customerId,omitempty"`
	CartID              string                      `firestore:"cartId"`
	Status              string                      `firestore:"status"`
	PaymentMethod       string                      `firestore:"paymentMethod"`
	Currency            string                      `firestore:"currency"`
	Items               []orderItemDocument         `firestore:"items"`
	Totals              orderTotalsDocument         `firestore:"totals"`
	ShippingAddress     orderAddressDocument        `firestore:"shippingAddress"`
	CustomerNote        *string                     `firestore:"customerNote,omitempty"`
	CouponCode          *string                     `firestore:"couponCode,omitempty"`
	TaxSnapshot         taxSnapshotDocument         `firestore:"taxSnapshot"`
	ShippingSnapshot    shippingSnapshotDocument    `firestore:"shippingSnapshot"`
	CourierSnapshot     courierSnapshotDocument     `firestore:"courierSnapshot"`
	FulfillmentSnapshot fulfillmentSnapshotDocument `firestore:"fulfillmentSnapshot"`
	ReservationIDs      []string                    `firestore:"reservationIds"`
	Metadata            map[string]any              `firestore:"metadata,omitempty"`
	PlacedAt            time.Time                   `firestore:"placedAt"`
	CreatedAt           time.Time                   `firestore:"createdAt"`
	UpdatedAt           time.Time                   `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID         string  `firestore:"productId"`
	VariantID         string  `firestore:"variantId"`
	ResellerProductID string  `firestore:"resellerProductId"`
	SupplierID        string  `firestore:"supplierId"`
	SKU               string  `firestore:"sku"`
	Name              string  `firestore:"name"`
	Quantity          int     `firestore:"qty"`
	UnitPrice         int64   `firestore:"unitPrice"`
	SupplierCost      int64   `firestore:"supplierCost"`
	TotalPrice        int64   `firestore:"totalPrice"`
	PriceFloor        int64   `firestore:"priceFloor"`
	Discount          int64   `firestore:"discount"`
	PromotionID       *string `firestore:"promotionId,omitempty"`
}

type orderTotalsDocument struct {
	Subtotal   int64 `firestore:"subtotal"`
	Discount   int64 `firestore:"discount"`
	Tax        int64 `firestore:"tax"`
	Shipping   int64 `firestore:"shipping"`
	GrandTotal int64 `firestore:"grandTotal"`
}

type orderAddressDocument struct {
	Recipient  string  `firestore:"recipient"`
	Line1      string  `firestore:"line1"`
	Line2      *string `firestore:"line2,omitempty"`
	City       string  `firestore:"city"`
	State      *string `firestore:"state,omitempty"`
	PostalCode string  `firestore:"postalCode"`
	Country    string  `firestore:"country"`
	Phone      *string `firestore:"phone,omitempty"`
}

type taxSnapshotDocument struct {
	Profile      string            `firestore:"profile"`
	Region       string            `firestore:"region"`
	Lines        []taxLineDocument `firestore:"lines"`
	Total        int64             `firestore:"total"`
	Currency     string            `firestore:"currency"`
	CalculatedAt time.Time         `firestore:"calculatedAt"`
}

type taxLineDocument struct {
	Name      string `firestore:"name"`
	RateBasis int64  `firestore:"rateBasis"`
	Amount    int64  `firestore:"amount"`
}

type shippingSnapshotDocument struct {
	Zone         string    `firestore:"zone"`
	Method       string    `firestore:"method"`
	WeightGrams  int       `firestore:"weightGrams"`
	Amount       int64     `firestore:"amount"`
	Currency     string    `firestore:"currency"`
	EstimateDays *int      `firestore:"estimateDays,omitempty"`
	CalculatedAt time.Time `firestore:"calculatedAt"`
}

type courierSnapshotDocument struct {
	Assignments []courierAssignmentDocument `firestore:"assignments"`
	AssignedAt  time.Time                   `firestore:"assignedAt"`
}

type courierAssignmentDocument struct {
	SupplierID string `firestore:"supplierId"`
	Courier    string `firestore:"courier"`
	Service    string `firestore:"service"`
}

type fulfillmentSnapshotDocument struct {
	Legs     []fulfillmentLegDocument `firestore:"legs"`
	RoutedAt time.Time                `firestore:"routedAt"`
}

type fulfillmentLegDocument struct {
	SupplierID string                    `firestore:"supplierId"`
	Origin     string                    `firestore:"origin"`
	Lines      []fulfillmentLineDocument `firestore:"lines"`
}

type fulfillmentLineDocument struct {
	ResellerProductID string `firestore:"resellerProductId"`
	VariantID         string `firestore:"variantId"`
	Quantity          int    `firestore:"qty"`
}

func encodeOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		Number:        strings.TrimSpace(order.Number),
		StoreID:       strings.TrimSpace(order.StoreID),
		ResellerID:    strings.TrimSpace(order.ResellerID),
		CustomerID:    order.CustomerID,
		CartID:        strings.TrimSpace(order.CartID),
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		Currency:      strings.ToUpper(strings.TrimSpace(order.Currency)),
		Totals: orderTotalsDocument{
			Subtotal:   order.Totals.Subtotal,
			Discount:   order.Totals.Discount,
			Tax:        order.Totals.Tax,
			Shipping:   order.Totals.Shipping,
			GrandTotal: order.Totals.GrandTotal,
		},
		ShippingAddress: orderAddressDocument{
			Recipient:  strings.TrimSpace(order.ShippingAddress.Recipient),
			Line1:      strings.TrimSpace(order.ShippingAddress.Line1),
			Line2:      order.ShippingAddress.Line2,
			City:       strings.TrimSpace(order.ShippingAddress.City),
			State:      order.ShippingAddress.State,
			PostalCode: strings.TrimSpace(order.ShippingAddress.PostalCode),
			Country:    strings.ToUpper(strings.TrimSpace(order.ShippingAddress.Country)),
			Phone:      order.ShippingAddress.Phone,
		},
		CustomerNote: order.CustomerNote,
		CouponCode:   order.CouponCode,
		TaxSnapshot: taxSnapshotDocument{
			Profile:      order.TaxSnapshot.Profile,
			Region:       order.TaxSnapshot.Region,
			Total:        order.TaxSnapshot.Total,
			Currency:     order.TaxSnapshot.Currency,
			CalculatedAt: order.TaxSnapshot.CalculatedAt,
		},
		ShippingSnapshot: shippingSnapshotDocument{
			Zone:         order.ShippingSnapshot.Zone,
			Method:       order.ShippingSnapshot.Method,
			WeightGrams:  order.ShippingSnapshot.WeightGrams,
			Amount:       order.ShippingSnapshot.Amount,
			Currency:     order.ShippingSnapshot.Currency,
			EstimateDays: order.ShippingSnapshot.EstimateDays,
			CalculatedAt: order.ShippingSnapshot.CalculatedAt,
		},
		CourierSnapshot: courierSnapshotDocument{
			AssignedAt: order.CourierSnapshot.AssignedAt,
		},
		FulfillmentSnapshot: fulfillmentSnapshotDocument{
			RoutedAt: order.FulfillmentSnapshot.RoutedAt,
		},
		ReservationIDs: append([]string(nil), order.ReservationIDs...),
		Metadata:       order.Metadata,
		PlacedAt:       order.PlacedAt,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}

	doc.Items = make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID:         item.ProductID,
			VariantID:         item.VariantID,
			ResellerProductID: item.ResellerProductID,
			SupplierID:        item.SupplierID,
			SKU:               item.SKU,
			Name:              item.Name,
			Quantity:          item.Quantity,
			UnitPrice:         item.UnitPrice,
			SupplierCost:      item.SupplierCost,
			TotalPrice:        item.TotalPrice,
			PriceFloor:        item.PriceFloor,
			Discount:          item.Discount,
			PromotionID:       item.PromotionID,
		})
	}
	for _, line := range order.TaxSnapshot.Lines {
		doc.TaxSnapshot.Lines = append(doc.TaxSnapshot.Lines, taxLineDocument{
			Name:      line.Name,
			RateBasis: line.RateBasis,
			Amount:    line.Amount,
		})
	}
	for _, asg := range order.CourierSnapshot.Assignments {
		doc.CourierSnapshot.Assignments = append(doc.CourierSnapshot.Assignments, courierAssignmentDocument{
			SupplierID: asg.SupplierID,
			Courier:    asg.Courier,
			Service:    asg.Service,
		})
	}
	for _, leg := range order.FulfillmentSnapshot.Legs {
		legDoc := fulfillmentLegDocument{
			SupplierID: leg.SupplierID,
			Origin:     leg.Origin,
		}
		for _, line := range leg.Lines {
			legDoc.Lines = append(legDoc.Lines, fulfillmentLineDocument{
				ResellerProductID: line.ResellerProductID,
				VariantID:         line.VariantID,
				Quantity:          line.Quantity,
			})
		}
		doc.FulfillmentSnapshot.Legs = append(doc.FulfillmentSnapshot.Legs, legDoc)
	}
	return doc
}

func decodeOrderDocument(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:            id,
		Number:        strings.TrimSpace(doc.Number),
		StoreID:       strings.TrimSpace(doc.StoreID),
		ResellerID:    strings.TrimSpace(doc.ResellerID),
		CustomerID:    doc.CustomerID,
		CartID:        strings.TrimSpace(doc.CartID),
		Status:        domain.OrderStatus(strings.ToLower(strings.TrimSpace(doc.Status))),
		PaymentMethod: domain.PaymentMethod(strings.ToLower(strings.TrimSpace(doc.PaymentMethod))),
		Currency:      strings.ToUpper(strings.TrimSpace(doc.Currency)),
		Totals: domain.OrderTotals{
			Subtotal:   doc.Totals.Subtotal,
			Discount:   doc.Totals.Discount,
			Tax:        doc.Totals.Tax,
			Shipping:   doc.Totals.Shipping,
			GrandTotal: doc.Totals.GrandTotal,
		},
		ShippingAddress: domain.Address{
			Recipient:  doc.ShippingAddress.Recipient,
			Line1:      doc.ShippingAddress.Line1,
			Line2:      doc.ShippingAddress.Line2,
			City:       doc.ShippingAddress.City,
			State:      doc.ShippingAddress.State,
			PostalCode: doc.ShippingAddress.PostalCode,
			Country:    doc.ShippingAddress.Country,
			Phone:      doc.ShippingAddress.Phone,
		},
		CustomerNote: doc.CustomerNote,
		CouponCode:   doc.CouponCode,
		TaxSnapshot: domain.TaxSnapshot{
			Profile:      doc.TaxSnapshot.Profile,
			Region:       doc.TaxSnapshot.Region,
			Total:        doc.TaxSnapshot.Total,
			Currency:     doc.TaxSnapshot.Currency,
			CalculatedAt: doc.TaxSnapshot.CalculatedAt,
		},
		ShippingSnapshot: domain.ShippingSnapshot{
			Zone:         doc.ShippingSnapshot.Zone,
			Method:       doc.ShippingSnapshot.Method,
			WeightGrams:  doc.ShippingSnapshot.WeightGrams,
			Amount:       doc.ShippingSnapshot.Amount,
			Currency:     doc.ShippingSnapshot.Currency,
			EstimateDays: doc.ShippingSnapshot.EstimateDays,
			CalculatedAt: doc.ShippingSnapshot.CalculatedAt,
		},
		CourierSnapshot: domain.CourierSnapshot{
			AssignedAt: doc.CourierSnapshot.AssignedAt,
		},
		FulfillmentSnapshot: domain.FulfillmentSnapshot{
			RoutedAt: doc.FulfillmentSnapshot.RoutedAt,
		},
		ReservationIDs: append([]string(nil), doc.ReservationIDs...),
		Metadata:       doc.Metadata,
		PlacedAt:       doc.PlacedAt,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}

	order.Items = make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:         item.ProductID,
			VariantID:         item.VariantID,
			ResellerProductID: item.ResellerProductID,
			SupplierID:        item.SupplierID,
			SKU:               item.SKU,
			Name:              item.Name,
			Quantity:          item.Quantity,
			UnitPrice:         item.UnitPrice,
			SupplierCost:      item.SupplierCost,
			TotalPrice:        item.TotalPrice,
			PriceFloor:        item.PriceFloor,
			Discount:          item.Discount,
			PromotionID:       item.PromotionID,
		})
	}
	for _, line := range doc.TaxSnapshot.Lines {
		order.TaxSnapshot.Lines = append(order.TaxSnapshot.Lines, domain.TaxLine{
			Name:      line.Name,
			RateBasis: line.RateBasis,
			Amount:    line.Amount,
		})
	}
	for _, asg := range doc.CourierSnapshot.Assignments {
		order.CourierSnapshot.Assignments = append(order.CourierSnapshot.Assignments, domain.CourierAssignment{
			SupplierID: asg.SupplierID,
			Courier:    asg.Courier,
			Service:    asg.Service,
		})
	}
	for _, leg := range doc.FulfillmentSnapshot.Legs {
		domainLeg := domain.FulfillmentLeg{
			SupplierID: leg.SupplierID,
			Origin:     leg.Origin,
		}
		for _, line := range leg.Lines {
			domainLeg.Lines = append(domainLeg.Lines, domain.FulfillmentLine{
				ResellerProductID: line.ResellerProductID,
				VariantID:         line.VariantID,
				Quantity:          line.Quantity,
			})
		}
		order.FulfillmentSnapshot.Legs = append(order.FulfillmentSnapshot.Legs, domainLeg)
	}
	return order
}
