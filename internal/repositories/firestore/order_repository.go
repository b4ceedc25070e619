package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/vastra-shop/api/internal/domain"
	pfirestore "github.com/vastra-shop/api/internal/platform/firestore"
	"github.com/vastra-shop/api/internal/platform/pagination"
	"github.com/vastra-shop/api/internal/repositories"
)

const (
	ordersCollection       = "orders"
	orderItemsSubcol       = "items"
	orderHistorySubcol     = "history"
	orderListDefaultLimit  = 20
	orderListMaxLimit      = 100
	orderStatusInMaxValues = 10
)

// OrderRepository persists order headers with items and status history as
// subcollections. Writes that touch status always append the matching history
// entry in the same transaction.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection)
	return &OrderRepository{provider: provider, base: base}, nil
}

// Create writes the order header, every line item, and the initial history
// entry in a single transaction.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order, history domain.StatusHistoryEntry) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order create: id is required")
	}
	if len(order.Items) == 0 {
		return errors.New("order create: at least one item is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		if err := tx.Create(orderRef, newOrderDocument(order)); err != nil {
			return err
		}
		for _, item := range order.Items {
			itemID := strings.TrimSpace(item.ID)
			if itemID == "" {
				return fmt.Errorf("order create: item id is required for order %s", orderID)
			}
			itemRef := orderRef.Collection(orderItemsSubcol).Doc(itemID)
			if err := tx.Create(itemRef, newOrderItemDocument(item)); err != nil {
				return err
			}
		}
		historyRef := orderRef.Collection(orderHistorySubcol).Doc(strings.TrimSpace(history.ID))
		return tx.Create(historyRef, newHistoryDocument(history))
	})
	if err != nil {
		return pfirestore.WrapError("order.create", err)
	}
	return nil
}

// UpdateStatus persists a status transition and appends its audit entry. When
// ExpectedFulfillment is set the write aborts with ErrOrderStatusConflict if
// another transaction moved the order first.
func (r *OrderRepository) UpdateStatus(ctx context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(update.Order.ID)
	if orderID == "" {
		return domain.Order{}, errors.New("order update: id is required")
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.ErrOrderNotFound
			}
			return err
		}
		if update.ExpectedFulfillment != nil {
			var current orderDocument
			if err := snap.DataTo(&current); err != nil {
				return fmt.Errorf("decode order %s: %w", orderID, err)
			}
			if current.FulfillmentStatus != string(*update.ExpectedFulfillment) {
				return repositories.ErrOrderStatusConflict
			}
		}

		doc := newOrderDocument(update.Order)
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		historyRef := orderRef.Collection(orderHistorySubcol).Doc(strings.TrimSpace(update.History.ID))
		if err := tx.Create(historyRef, newHistoryDocument(update.History)); err != nil {
			return err
		}
		updated = doc.toDomain(orderID)
		updated.Items = update.Order.Items
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrOrderNotFound) || errors.Is(err, repositories.ErrOrderStatusConflict) {
			return domain.Order{}, err
		}
		return domain.Order{}, pfirestore.WrapError("order.updateStatus", err)
	}
	return updated, nil
}

// FindByID returns the order header together with its line items.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order find: id is required")
	}

	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.Order{}, repositories.ErrOrderNotFound
		}
		return domain.Order{}, err
	}
	order := doc.Data.toDomain(doc.ID)

	items, err := r.listItems(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

// FindItem returns a single line item of an order.
func (r *OrderRepository) FindItem(ctx context.Context, orderID string, itemID string) (domain.OrderItem, error) {
	if r == nil || r.provider == nil {
		return domain.OrderItem{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	itemID = strings.TrimSpace(itemID)
	if orderID == "" || itemID == "" {
		return domain.OrderItem{}, errors.New("order find item: order id and item id are required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.OrderItem{}, pfirestore.WrapError("order.findItem", err)
	}
	snap, err := client.Collection(ordersCollection).Doc(orderID).Collection(orderItemsSubcol).Doc(itemID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.OrderItem{}, repositories.ErrOrderItemNotFound
		}
		return domain.OrderItem{}, pfirestore.WrapError("order.findItem", err)
	}
	var doc orderItemDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.OrderItem{}, fmt.Errorf("decode order item %s: %w", itemID, err)
	}
	return doc.toDomain(snap.Ref.ID, orderID), nil
}

// List pages order headers newest first. Items are not loaded.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit <= 0 {
		limit = orderListDefaultLimit
	}
	if limit > orderListMaxLimit {
		limit = orderListMaxLimit
	}
	fetchLimit := limit + 1

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeOrderListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order list: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	fulfillment := normaliseStatusFilter(filter.FulfillmentStatus)
	payment := normaliseStatusFilter(filter.PaymentStatus)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if customer := strings.TrimSpace(filter.CustomerID); customer != "" {
			q = q.Where("customerRef", "==", customer)
		}
		if len(fulfillment) == 1 {
			q = q.Where("fulfillmentStatus", "==", fulfillment[0])
		} else if len(fulfillment) > 1 {
			q = q.Where("fulfillmentStatus", "in", fulfillment)
		}
		if len(payment) == 1 {
			q = q.Where("paymentStatus", "==", payment[0])
		} else if len(payment) > 1 {
			q = q.Where("paymentStatus", "in", payment)
		}
		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		return q.Limit(fetchLimit)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	nextToken := ""
	if len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeOrderListToken(last.Data.CreatedAt, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// ListHistory returns the audit trail for an order, oldest first.
func (r *OrderRepository) ListHistory(ctx context.Context, orderID string) ([]domain.StatusHistoryEntry, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("order history: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("order.listHistory", err)
	}
	iter := client.Collection(ordersCollection).Doc(orderID).Collection(orderHistorySubcol).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var entries []domain.StatusHistoryEntry
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("order.listHistory", err)
		}
		var doc historyDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode history %s: %w", snap.Ref.ID, err)
		}
		entries = append(entries, doc.toDomain(snap.Ref.ID, orderID))
	}
	return entries, nil
}

func (r *OrderRepository) listItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("order.listItems", err)
	}
	iter := client.Collection(ordersCollection).Doc(orderID).Collection(orderItemsSubcol).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var items []domain.OrderItem
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("order.listItems", err)
		}
		var doc orderItemDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode order item %s: %w", snap.Ref.ID, err)
		}
		items = append(items, doc.toDomain(snap.Ref.ID, orderID))
	}
	return items, nil
}

// Helper structures ---------------------------------------------------------

type orderDocument struct {
	OrderNumber       string          `firestore:"orderNumber"`
	CustomerRef       string          `firestore:"customerRef"`
	ShippingAddress   addressDocument `firestore:"shippingAddress"`
	Subtotal          int64           `firestore:"subtotal"`
	DiscountTotal     int64           `firestore:"discountTotal"`
	CouponCode        string          `firestore:"couponCode,omitempty"`
	CouponDiscount    int64           `firestore:"couponDiscount"`
	ShippingFee       int64           `firestore:"shippingFee"`
	Total             int64           `firestore:"total"`
	Currency          string          `firestore:"currency"`
	PaymentMethod     string          `firestore:"paymentMethod"`
	PaymentStatus     string          `firestore:"paymentStatus"`
	FulfillmentStatus string          `firestore:"fulfillmentStatus"`
	DeliveryMode      string          `firestore:"deliveryMode"`
	ShippingPartner   string          `firestore:"shippingPartner,omitempty"`
	TrackingID        string          `firestore:"trackingId,omitempty"`
	CancelReason      *string         `firestore:"cancelReason,omitempty"`
	CreatedAt         time.Time       `firestore:"createdAt"`
	UpdatedAt         time.Time       `firestore:"updatedAt"`
	PackedAt          *time.Time      `firestore:"packedAt,omitempty"`
	ShippedAt         *time.Time      `firestore:"shippedAt,omitempty"`
	DeliveredAt       *time.Time      `firestore:"deliveredAt,omitempty"`
	CancelledAt       *time.Time      `firestore:"cancelledAt,omitempty"`
	ReturnedAt        *time.Time      `firestore:"returnedAt,omitempty"`
	PaidAt            *time.Time      `firestore:"paidAt,omitempty"`
	RefundedAt        *time.Time      `firestore:"refundedAt,omitempty"`
}

type addressDocument struct {
	Name       string `firestore:"name"`
	Phone      string `firestore:"phone"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

type orderItemDocument struct {
	ProductRef        string  `firestore:"productRef"`
	VariantRef        *string `firestore:"variantRef,omitempty"`
	ProductName       string  `firestore:"productName"`
	Size              string  `firestore:"size,omitempty"`
	Color             string  `firestore:"color,omitempty"`
	Quantity          int     `firestore:"qty"`
	OriginalUnitPrice int64   `firestore:"originalUnitPrice"`
	UnitPrice         int64   `firestore:"unitPrice"`
	DiscountAmount    int64   `firestore:"discountAmount"`
	OfferTitle        string  `firestore:"offerTitle,omitempty"`
	Subtotal          int64   `firestore:"subtotal"`
}

type historyDocument struct {
	OldPayment     string    `firestore:"oldPaymentStatus"`
	NewPayment     string    `firestore:"newPaymentStatus"`
	OldFulfillment string    `firestore:"oldFulfillmentStatus"`
	NewFulfillment string    `firestore:"newFulfillmentStatus"`
	Notes          string    `firestore:"notes,omitempty"`
	ActorRef       string    `firestore:"actorRef,omitempty"`
	CreatedAt      time.Time `firestore:"createdAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	return orderDocument{
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		CustomerRef: strings.TrimSpace(order.CustomerID),
		ShippingAddress: addressDocument{
			Name:       strings.TrimSpace(order.ShippingAddress.Name),
			Phone:      strings.TrimSpace(order.ShippingAddress.Phone),
			Line1:      strings.TrimSpace(order.ShippingAddress.Line1),
			Line2:      strings.TrimSpace(order.ShippingAddress.Line2),
			City:       strings.TrimSpace(order.ShippingAddress.City),
			State:      strings.TrimSpace(order.ShippingAddress.State),
			PostalCode: strings.TrimSpace(order.ShippingAddress.PostalCode),
			Country:    strings.TrimSpace(order.ShippingAddress.Country),
		},
		Subtotal:          order.Subtotal,
		DiscountTotal:     order.DiscountTotal,
		CouponCode:        strings.TrimSpace(order.CouponCode),
		CouponDiscount:    order.CouponDiscount,
		ShippingFee:       order.ShippingFee,
		Total:             order.Total,
		Currency:          strings.TrimSpace(order.Currency),
		PaymentMethod:     strings.TrimSpace(order.PaymentMethod),
		PaymentStatus:     string(order.PaymentStatus),
		FulfillmentStatus: string(order.FulfillmentStatus),
		DeliveryMode:      string(order.DeliveryMode),
		ShippingPartner:   strings.TrimSpace(order.ShippingPartner),
		TrackingID:        strings.TrimSpace(order.TrackingID),
		CancelReason:      order.CancelReason,
		CreatedAt:         order.CreatedAt.UTC(),
		UpdatedAt:         order.UpdatedAt.UTC(),
		PackedAt:          order.PackedAt,
		ShippedAt:         order.ShippedAt,
		DeliveredAt:       order.DeliveredAt,
		CancelledAt:       order.CancelledAt,
		ReturnedAt:        order.ReturnedAt,
		PaidAt:            order.PaidAt,
		RefundedAt:        order.RefundedAt,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	return domain.Order{
		ID:          id,
		OrderNumber: d.OrderNumber,
		CustomerID:  d.CustomerRef,
		ShippingAddress: domain.Address{
			Name:       d.ShippingAddress.Name,
			Phone:      d.ShippingAddress.Phone,
			Line1:      d.ShippingAddress.Line1,
			Line2:      d.ShippingAddress.Line2,
			City:       d.ShippingAddress.City,
			State:      d.ShippingAddress.State,
			PostalCode: d.ShippingAddress.PostalCode,
			Country:    d.ShippingAddress.Country,
		},
		Subtotal:          d.Subtotal,
		DiscountTotal:     d.DiscountTotal,
		CouponCode:        d.CouponCode,
		CouponDiscount:    d.CouponDiscount,
		ShippingFee:       d.ShippingFee,
		Total:             d.Total,
		Currency:          d.Currency,
		PaymentMethod:     d.PaymentMethod,
		PaymentStatus:     domain.PaymentStatus(d.PaymentStatus),
		FulfillmentStatus: domain.FulfillmentStatus(d.FulfillmentStatus),
		DeliveryMode:      domain.DeliveryMode(d.DeliveryMode),
		ShippingPartner:   d.ShippingPartner,
		TrackingID:        d.TrackingID,
		CancelReason:      d.CancelReason,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
		PackedAt:          d.PackedAt,
		ShippedAt:         d.ShippedAt,
		DeliveredAt:       d.DeliveredAt,
		CancelledAt:       d.CancelledAt,
		ReturnedAt:        d.ReturnedAt,
		PaidAt:            d.PaidAt,
		RefundedAt:        d.RefundedAt,
	}
}

func newOrderItemDocument(item domain.OrderItem) orderItemDocument {
	return orderItemDocument{
		ProductRef:        strings.TrimSpace(item.ProductRef),
		VariantRef:        item.VariantRef,
		ProductName:       strings.TrimSpace(item.ProductName),
		Size:              strings.TrimSpace(item.Size),
		Color:             strings.TrimSpace(item.Color),
		Quantity:          item.Quantity,
		OriginalUnitPrice: item.OriginalUnitPrice,
		UnitPrice:         item.UnitPrice,
		DiscountAmount:    item.DiscountAmount,
		OfferTitle:        strings.TrimSpace(item.OfferTitle),
		Subtotal:          item.Subtotal,
	}
}

func (d orderItemDocument) toDomain(id, orderID string) domain.OrderItem {
	return domain.OrderItem{
		ID:                id,
		OrderID:           orderID,
		ProductRef:        d.ProductRef,
		VariantRef:        d.VariantRef,
		ProductName:       d.ProductName,
		Size:              d.Size,
		Color:             d.Color,
		Quantity:          d.Quantity,
		OriginalUnitPrice: d.OriginalUnitPrice,
		UnitPrice:         d.UnitPrice,
		DiscountAmount:    d.DiscountAmount,
		OfferTitle:        d.OfferTitle,
		Subtotal:          d.Subtotal,
	}
}

func newHistoryDocument(entry domain.StatusHistoryEntry) historyDocument {
	return historyDocument{
		OldPayment:     string(entry.OldPayment),
		NewPayment:     string(entry.NewPayment),
		OldFulfillment: string(entry.OldFulfillment),
		NewFulfillment: string(entry.NewFulfillment),
		Notes:          strings.TrimSpace(entry.Notes),
		ActorRef:       strings.TrimSpace(entry.ActorID),
		CreatedAt:      entry.CreatedAt.UTC(),
	}
}

func (d historyDocument) toDomain(id, orderID string) domain.StatusHistoryEntry {
	return domain.StatusHistoryEntry{
		ID:             id,
		OrderID:        orderID,
		OldPayment:     domain.PaymentStatus(d.OldPayment),
		NewPayment:     domain.PaymentStatus(d.NewPayment),
		OldFulfillment: domain.FulfillmentStatus(d.OldFulfillment),
		NewFulfillment: domain.FulfillmentStatus(d.NewFulfillment),
		Notes:          d.Notes,
		ActorID:        d.ActorRef,
		CreatedAt:      d.CreatedAt,
	}
}

func normaliseStatusFilter(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) > orderStatusInMaxValues {
		out = out[:orderStatusInMaxValues]
	}
	return out
}

func encodeOrderListToken(createdAt time.Time, id string) string {
	token, err := pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{createdAt.UTC().Format(time.RFC3339Nano), id},
	})
	if err != nil {
		return ""
	}
	return token
}

func decodeOrderListToken(encoded string) (time.Time, string, error) {
	cursor, err := pagination.DecodeToken(encoded)
	if err != nil {
		return time.Time{}, "", err
	}
	if len(cursor.StartAfter) != 2 {
		return time.Time{}, "", fmt.Errorf("%w: unexpected cursor shape", pagination.ErrInvalidPageToken)
	}
	rawTime, timeOK := cursor.StartAfter[0].(string)
	id, idOK := cursor.StartAfter[1].(string)
	if !timeOK || !idOK {
		return time.Time{}, "", fmt.Errorf("%w: unexpected cursor values", pagination.ErrInvalidPageToken)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	return createdAt.UTC(), id, nil
}
