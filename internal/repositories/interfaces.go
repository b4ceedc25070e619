package repositories

import (
	"context"
	"time"

	domain "github.com/vastra-shop/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Variants() VariantRepository
	Orders() OrderRepository
	Returns() ReturnRepository
	Coupons() CouponRepository
	Offers() OfferRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// StockLine addresses one variant quantity inside a reserve or release request.
type StockLine struct {
	VariantID   string
	OrderItemID string
	Quantity    int
}

// StockReserveRequest commits reserved units for every line, all-or-nothing.
type StockReserveRequest struct {
	Lines    []StockLine
	OrderRef string
	Now      time.Time
}

// StockReleaseRequest returns reserved units to availability. Event keys the
// release ledger so each (order item, event) pair releases at most once.
type StockReleaseRequest struct {
	Lines    []StockLine
	OrderRef string
	Event    string
	Reason   string
	Now      time.Time
}

// StockReleaseResult reports which lines actually released and the updated variants.
type StockReleaseResult struct {
	Released map[string]bool
	Clamped  map[string]int
	Variants map[string]domain.Variant
}

// StockAdjustRequest sets a variant's physical count to a new absolute value.
type StockAdjustRequest struct {
	VariantID string
	NewTotal  int
	Now       time.Time
}

// LowStockQuery controls pagination and threshold filtering for low stock listings.
type LowStockQuery struct {
	Threshold int
	PageSize  int
	PageToken string
}

// VariantRepository owns the per-variant stock ledger. Reserved stock is
// mutated exclusively through Reserve/Release/AdjustTotal, each executed as a
// single transaction.
type VariantRepository interface {
	Reserve(ctx context.Context, req StockReserveRequest) (map[string]domain.Variant, error)
	Release(ctx context.Context, req StockReleaseRequest) (StockReleaseResult, error)
	AdjustTotal(ctx context.Context, req StockAdjustRequest) (domain.Variant, error)
	FindByID(ctx context.Context, variantID string) (domain.Variant, error)
	FindMany(ctx context.Context, variantIDs []string) (map[string]domain.Variant, error)
	Upsert(ctx context.Context, variant domain.Variant) (domain.Variant, error)
	ListLowStock(ctx context.Context, query LowStockQuery) (domain.CursorPage[domain.Variant], error)
}

// OrderListFilter narrows order listings for customers and admins.
type OrderListFilter struct {
	CustomerID        string
	FulfillmentStatus []string
	PaymentStatus     []string
	DateRange         domain.RangeQuery[time.Time]
	Pagination        domain.Pagination
}

// OrderStatusUpdate mutates the order header together with its audit entry.
// ExpectedFulfillment, when set, turns the write into a compare-and-set so two
// concurrent admins cannot both transition the same order.
type OrderStatusUpdate struct {
	Order               domain.Order
	ExpectedFulfillment *domain.FulfillmentStatus
	History             domain.StatusHistoryEntry
}

// OrderRepository persists order headers, line items, and the status history
// subcollection. Create and UpdateStatus are transactional: the audit trail
// never diverges from current state.
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order, history domain.StatusHistoryEntry) error
	UpdateStatus(ctx context.Context, update OrderStatusUpdate) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindItem(ctx context.Context, orderID string, itemID string) (domain.OrderItem, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	ListHistory(ctx context.Context, orderID string) ([]domain.StatusHistoryEntry, error)
}

// ReturnListFilter narrows return request listings.
type ReturnListFilter struct {
	OrderID    string
	CustomerID string
	Status     []string
	Pagination domain.Pagination
}

// ReturnRepository persists return requests and their admin decisions.
type ReturnRepository interface {
	Insert(ctx context.Context, request domain.ReturnRequest) error
	Update(ctx context.Context, request domain.ReturnRequest) error
	FindByID(ctx context.Context, returnID string) (domain.ReturnRequest, error)
	FindOpenByItem(ctx context.Context, orderItemID string) (domain.ReturnRequest, error)
	List(ctx context.Context, filter ReturnListFilter) (domain.CursorPage[domain.ReturnRequest], error)
}

// CouponListFilter narrows coupon listings for the admin console.
type CouponListFilter struct {
	ActiveOnly bool
	Pagination domain.Pagination
}

// CouponRepository maintains coupon definitions and their usage counters.
// Redeem increments usedCount transactionally, re-checking the usage limit so
// concurrent checkouts cannot overshoot it.
// Unredeem hands a redemption back when the checkout that took it fails
// before the order persists; usedCount never drops below zero.
type CouponRepository interface {
	Upsert(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error)
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	Redeem(ctx context.Context, code string, now time.Time) (domain.Coupon, error)
	Unredeem(ctx context.Context, code string, now time.Time) (domain.Coupon, error)
	List(ctx context.Context, filter CouponListFilter) (domain.CursorPage[domain.Coupon], error)
}

// OfferRepository maintains catalog-level promotional discounts.
type OfferRepository interface {
	Upsert(ctx context.Context, offer domain.Offer) (domain.Offer, error)
	FindByID(ctx context.Context, offerID string) (domain.Offer, error)
	ListActive(ctx context.Context, now time.Time) ([]domain.Offer, error)
	Delete(ctx context.Context, offerID string) error
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
