package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage wraps a page of results together with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Variant identifies a purchasable SKU: one size/color combination of a product.
// Monetary fields are expressed in the smallest currency unit.
type Variant struct {
	ID              string
	ProductRef      string
	ProductName     string
	Size            string
	Color           string
	PriceAdjustment int64
	BasePrice       int64
	TotalStock      int
	ReservedStock   int
	Available       int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StockEvent records a delta applied to a variant's ledger counters.
type StockEvent struct {
	Type          string
	VariantID     string
	ProductRef    string
	OrderRef      string
	DeltaReserved int
	DeltaTotal    int
	TotalStock    int
	ReservedStock int
	Available     int
	OccurredAt    time.Time
	Metadata      map[string]any
}

// FulfillmentStatus enumerates the shipping/delivery lifecycle stage of an order.
type FulfillmentStatus string

const (
	// FulfillmentPending indicates the order is placed but not yet packed.
	FulfillmentPending FulfillmentStatus = "pending"
	// FulfillmentPacked indicates the order has been packed for dispatch.
	FulfillmentPacked FulfillmentStatus = "packed"
	// FulfillmentShipped indicates a courier has picked up the order.
	FulfillmentShipped FulfillmentStatus = "shipped"
	// FulfillmentDelivered indicates the order reached the customer.
	FulfillmentDelivered FulfillmentStatus = "delivered"
	// FulfillmentCancelled indicates the order was cancelled before dispatch.
	FulfillmentCancelled FulfillmentStatus = "cancelled"
	// FulfillmentReturnRequested indicates a delivered order has an open return claim.
	FulfillmentReturnRequested FulfillmentStatus = "return_requested"
	// FulfillmentReturned indicates a return was completed and stock restored.
	FulfillmentReturned FulfillmentStatus = "returned"
)

// PaymentStatus enumerates the payment axis, independent of fulfillment.
type PaymentStatus string

const (
	// PaymentPending indicates payment has not been recorded yet.
	PaymentPending PaymentStatus = "pending"
	// PaymentPaid indicates payment was received.
	PaymentPaid PaymentStatus = "paid"
	// PaymentFailed indicates a payment attempt failed.
	PaymentFailed PaymentStatus = "failed"
	// PaymentRefunded indicates a previously received payment was refunded.
	PaymentRefunded PaymentStatus = "refunded"
)

// DeliveryMode distinguishes self-delivered orders from courier shipments.
type DeliveryMode string

const (
	// DeliverySelf marks orders delivered by store staff; the shipped stage is skipped.
	DeliverySelf DeliveryMode = "self"
	// DeliveryCourier marks orders handed to a shipping partner.
	DeliveryCourier DeliveryMode = "courier"
)

// Address is the shipping snapshot embedded in an order at placement time.
// It is copied by value and never follows later edits to the customer's
// address book.
type Address struct {
	Name       string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Order captures one checkout transaction. Monetary fields are in the
// smallest currency unit.
type Order struct {
	ID                string
	OrderNumber       string
	CustomerID        string
	ShippingAddress   Address
	Items             []OrderItem
	Subtotal          int64
	DiscountTotal     int64
	CouponCode        string
	CouponDiscount    int64
	ShippingFee       int64
	Total             int64
	Currency          string
	PaymentMethod     string
	PaymentStatus     PaymentStatus
	FulfillmentStatus FulfillmentStatus
	DeliveryMode      DeliveryMode
	ShippingPartner   string
	TrackingID        string
	CancelReason      *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PackedAt          *time.Time
	ShippedAt         *time.Time
	DeliveredAt       *time.Time
	CancelledAt       *time.Time
	ReturnedAt        *time.Time
	PaidAt            *time.Time
	RefundedAt        *time.Time
}

// OrderItem is one immutable line within an order. Name, size, color, and
// prices are snapshots taken at placement.
type OrderItem struct {
	ID                string
	OrderID           string
	ProductRef        string
	VariantRef        *string
	ProductName       string
	Size              string
	Color             string
	Quantity          int
	OriginalUnitPrice int64
	UnitPrice         int64
	DiscountAmount    int64
	OfferTitle        string
	Subtotal          int64
}

// StatusHistoryEntry is an append-only audit record written together with
// every payment or fulfillment transition.
type StatusHistoryEntry struct {
	ID             string
	OrderID        string
	OldPayment     PaymentStatus
	NewPayment     PaymentStatus
	OldFulfillment FulfillmentStatus
	NewFulfillment FulfillmentStatus
	Notes          string
	ActorID        string
	CreatedAt      time.Time
}

// ReturnStatus enumerates lifecycle states for a return request.
type ReturnStatus string

const (
	// ReturnPending indicates the claim awaits an admin decision.
	ReturnPending ReturnStatus = "pending"
	// ReturnApproved indicates the claim was accepted; stock is not yet released.
	ReturnApproved ReturnStatus = "approved"
	// ReturnRejected is terminal; the order reverts to delivered.
	ReturnRejected ReturnStatus = "rejected"
	// ReturnCompleted is terminal; reserved stock is released exactly once.
	ReturnCompleted ReturnStatus = "completed"
)

// ReturnRequest is a customer-initiated claim against a delivered item.
type ReturnRequest struct {
	ID          string
	OrderID     string
	OrderItemID string
	ProductRef  string
	CustomerID  string
	Reason      string
	Notes       string
	Status      ReturnStatus
	AdminNote   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DecidedAt   *time.Time
	CompletedAt *time.Time
}

// DiscountType distinguishes percentage discounts from flat amounts.
type DiscountType string

const (
	// DiscountPercentage deducts value percent of the eligible amount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFlat deducts a fixed amount, clamped to the eligible amount.
	DiscountFlat DiscountType = "flat"
)

// Coupon is a code-based discount gated by usage limits and a minimum order value.
type Coupon struct {
	Code          string
	Type          DiscountType
	Value         int64
	MinOrderValue int64
	MaxDiscount   int64
	UsageLimit    *int
	UsedCount     int
	StartsAt      time.Time
	EndsAt        time.Time
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OfferScope declares which catalog entries an offer applies to.
type OfferScope string

const (
	// OfferScopeAll applies the offer to every product.
	OfferScopeAll OfferScope = "all"
	// OfferScopeProducts limits the offer to listed product ids.
	OfferScopeProducts OfferScope = "products"
	// OfferScopeVariants limits the offer to listed variant ids.
	OfferScopeVariants OfferScope = "variants"
)

// Offer is a catalog-level promotional discount, purely time-windowed with no
// usage counter.
type Offer struct {
	ID         string
	Title      string
	Type       DiscountType
	Value      int64
	Scope      OfferScope
	ProductIDs []string
	VariantIDs []string
	StartsAt   time.Time
	EndsAt     time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ActiveWithin reports whether the offer window covers the given instant.
func (o Offer) ActiveWithin(now time.Time) bool {
	if !o.StartsAt.IsZero() && now.Before(o.StartsAt) {
		return false
	}
	if !o.EndsAt.IsZero() && now.After(o.EndsAt) {
		return false
	}
	return true
}

// AppliesTo reports whether the offer covers the given product/variant pair.
func (o Offer) AppliesTo(productID, variantID string) bool {
	switch o.Scope {
	case OfferScopeAll:
		return true
	case OfferScopeProducts:
		for _, id := range o.ProductIDs {
			if id == productID {
				return true
			}
		}
	case OfferScopeVariants:
		for _, id := range o.VariantIDs {
			if id == variantID {
				return true
			}
		}
	}
	return false
}

const (
	// HealthStatusOK marks a healthy dependency.
	HealthStatusOK = "ok"
	// HealthStatusDegraded marks a dependency that answers slowly or partially.
	HealthStatusDegraded = "degraded"
	// HealthStatusError marks a dependency that failed its probe.
	HealthStatusError = "error"
)

// SystemHealthCheck captures the outcome of probing one dependency.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
