package services

import (
	"context"
	"time"

	domain "github.com/vastra-shop/api/internal/domain"
	"github.com/vastra-shop/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Variant            = domain.Variant
	StockEvent         = domain.StockEvent
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	Address            = domain.Address
	StatusHistoryEntry = domain.StatusHistoryEntry
	FulfillmentStatus  = domain.FulfillmentStatus
	PaymentStatus      = domain.PaymentStatus
	DeliveryMode       = domain.DeliveryMode
	ReturnRequest      = domain.ReturnRequest
	ReturnStatus       = domain.ReturnStatus
	Coupon             = domain.Coupon
	Offer              = domain.Offer
	DiscountType       = domain.DiscountType
	SystemHealthReport = domain.SystemHealthReport
)

// StockService centralizes the reservation ledger: availability reads, admin
// restock adjustments, and low stock reporting.
type StockService interface {
	GetAvailability(ctx context.Context, variantIDs []string) (map[string]Variant, error)
	AdjustTotalStock(ctx context.Context, cmd AdjustStockCommand) (Variant, error)
	UpsertVariant(ctx context.Context, cmd UpsertVariantCommand) (Variant, error)
	ListLowStock(ctx context.Context, filter LowStockFilter) (domain.CursorPage[Variant], error)
}

// StockEventPublisher accepts stock change notifications for downstream processing.
type StockEventPublisher interface {
	PublishStockEvent(ctx context.Context, event StockEvent) error
}

// CheckoutService turns a validated cart payload into a placed order, holding
// stock, applying discounts, and redeeming coupons atomically.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	PreviewOrder(ctx context.Context, cmd PlaceOrderCommand) (OrderQuote, error)
}

// OrderService encapsulates order reads and lifecycle transitions on both the
// payment and fulfillment axes.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	ListHistory(ctx context.Context, orderID string) ([]StatusHistoryEntry, error)
	TransitionFulfillment(ctx context.Context, cmd FulfillmentTransitionCommand) (Order, error)
	TransitionPayment(ctx context.Context, cmd PaymentTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// ReturnService owns the return claim lifecycle from customer request to the
// admin decision that releases stock.
type ReturnService interface {
	RequestReturn(ctx context.Context, cmd RequestReturnCommand) (ReturnRequest, error)
	DecideReturn(ctx context.Context, cmd DecideReturnCommand) (ReturnRequest, error)
	GetReturn(ctx context.Context, returnID string) (ReturnRequest, error)
	ListReturns(ctx context.Context, filter ReturnListFilter) (domain.CursorPage[ReturnRequest], error)
}

// PromotionService manages coupon and offer definitions and side-effect-free
// coupon validation.
type PromotionService interface {
	ValidateCoupon(ctx context.Context, cmd ValidateCouponCommand) (CouponValidationResult, error)
	UpsertCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
	ListCoupons(ctx context.Context, filter CouponListFilter) (domain.CursorPage[Coupon], error)
	UpsertOffer(ctx context.Context, cmd UpsertOfferCommand) (Offer, error)
	DeleteOffer(ctx context.Context, offerID string) error
	ListActiveOffers(ctx context.Context) ([]Offer, error)
}

// SystemService aggregates utility endpoints (health checks, counters).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	NextCounterValue(ctx context.Context, cmd CounterCommand) (int64, error)
}

// Command and DTO definitions ------------------------------------------------

type AdjustStockCommand struct {
	VariantID string
	NewTotal  int
	ActorID   string
	Reason    string
}

type UpsertVariantCommand struct {
	Variant Variant
	ActorID string
}

type LowStockFilter struct {
	Threshold  int
	Pagination Pagination
}

// PlaceOrderLine is one requested variant quantity at checkout.
type PlaceOrderLine struct {
	VariantID string
	Quantity  int
}

type PlaceOrderCommand struct {
	CustomerID      string
	Lines           []PlaceOrderLine
	ShippingAddress Address
	DeliveryMode    DeliveryMode
	PaymentMethod   string
	CouponCode      string
	IdempotencyKey  string
}

// OrderQuote is the priced preview of a checkout before stock is held.
type OrderQuote struct {
	Lines          []OrderItem
	Subtotal       int64
	DiscountTotal  int64
	CouponDiscount int64
	ShippingFee    int64
	Total          int64
	Currency       string
}

type OrderReadOptions struct {
	CustomerID string
}

type OrderListFilter = repositories.OrderListFilter

type FulfillmentTransitionCommand struct {
	OrderID         string
	Target          FulfillmentStatus
	ActorID         string
	Notes           string
	ShippingPartner string
	TrackingID      string
	Expected        *FulfillmentStatus
}

type PaymentTransitionCommand struct {
	OrderID string
	Target  PaymentStatus
	ActorID string
	Notes   string
}

type CancelOrderCommand struct {
	OrderID    string
	ActorID    string
	CustomerID string
	Reason     string
}

type RequestReturnCommand struct {
	OrderID     string
	OrderItemID string
	CustomerID  string
	Reason      string
	Notes       string
}

type DecideReturnCommand struct {
	ReturnID  string
	ActorID   string
	Approve   bool
	Complete  bool
	AdminNote string
}

type ReturnListFilter = repositories.ReturnListFilter

type ValidateCouponCommand struct {
	Code       string
	OrderValue int64
	Now        *time.Time
}

// CouponValidationResult reports eligibility without mutating the coupon.
type CouponValidationResult struct {
	Valid    bool
	Reason   string
	Coupon   *Coupon
	Discount int64
}

type UpsertCouponCommand struct {
	Coupon  Coupon
	ActorID string
}

type CouponListFilter = repositories.CouponListFilter

type UpsertOfferCommand struct {
	Offer   Offer
	ActorID string
}

type CounterCommand struct {
	CounterID string
	Step      int64
}
