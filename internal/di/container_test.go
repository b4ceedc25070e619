package di

import (
	"context"
	"testing"
	"time"

	"github.com/vastra-shop/api/internal/domain"
	"github.com/vastra-shop/api/internal/platform/config"
	"github.com/vastra-shop/api/internal/repositories"
)

type stubRegistry struct{}

func (stubRegistry) Close(context.Context) error { return nil }
func (stubRegistry) Variants() repositories.VariantRepository {
	return stubVariantRepo{}
}
func (stubRegistry) Orders() repositories.OrderRepository   { return stubOrderRepo{} }
func (stubRegistry) Returns() repositories.ReturnRepository { return stubReturnRepo{} }
func (stubRegistry) Coupons() repositories.CouponRepository { return stubCouponRepo{} }
func (stubRegistry) Offers() repositories.OfferRepository   { return stubOfferRepo{} }
func (stubRegistry) Counters() repositories.CounterRepository {
	return stubCounterRepo{}
}
func (stubRegistry) Health() repositories.HealthRepository { return stubHealthRepo{} }
func (stubRegistry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type stubVariantRepo struct{}

func (stubVariantRepo) Reserve(context.Context, repositories.StockReserveRequest) (map[string]domain.Variant, error) {
	return nil, nil
}
func (stubVariantRepo) Release(context.Context, repositories.StockReleaseRequest) (repositories.StockReleaseResult, error) {
	return repositories.StockReleaseResult{}, nil
}
func (stubVariantRepo) AdjustTotal(context.Context, repositories.StockAdjustRequest) (domain.Variant, error) {
	return domain.Variant{}, nil
}
func (stubVariantRepo) FindByID(context.Context, string) (domain.Variant, error) {
	return domain.Variant{}, nil
}
func (stubVariantRepo) FindMany(context.Context, []string) (map[string]domain.Variant, error) {
	return nil, nil
}
func (stubVariantRepo) Upsert(context.Context, domain.Variant) (domain.Variant, error) {
	return domain.Variant{}, nil
}
func (stubVariantRepo) ListLowStock(context.Context, repositories.LowStockQuery) (domain.CursorPage[domain.Variant], error) {
	return domain.CursorPage[domain.Variant]{}, nil
}

type stubOrderRepo struct{}

func (stubOrderRepo) Create(context.Context, domain.Order, domain.StatusHistoryEntry) error {
	return nil
}
func (stubOrderRepo) UpdateStatus(context.Context, repositories.OrderStatusUpdate) (domain.Order, error) {
	return domain.Order{}, nil
}
func (stubOrderRepo) FindByID(context.Context, string) (domain.Order, error) {
	return domain.Order{}, nil
}
func (stubOrderRepo) FindItem(context.Context, string, string) (domain.OrderItem, error) {
	return domain.OrderItem{}, nil
}
func (stubOrderRepo) List(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	return domain.CursorPage[domain.Order]{}, nil
}
func (stubOrderRepo) ListHistory(context.Context, string) ([]domain.StatusHistoryEntry, error) {
	return nil, nil
}

type stubReturnRepo struct{}

func (stubReturnRepo) Insert(context.Context, domain.ReturnRequest) error { return nil }
func (stubReturnRepo) Update(context.Context, domain.ReturnRequest) error { return nil }
func (stubReturnRepo) FindByID(context.Context, string) (domain.ReturnRequest, error) {
	return domain.ReturnRequest{}, nil
}
func (stubReturnRepo) FindOpenByItem(context.Context, string) (domain.ReturnRequest, error) {
	return domain.ReturnRequest{}, nil
}
func (stubReturnRepo) List(context.Context, repositories.ReturnListFilter) (domain.CursorPage[domain.ReturnRequest], error) {
	return domain.CursorPage[domain.ReturnRequest]{}, nil
}

type stubCouponRepo struct{}

func (stubCouponRepo) Upsert(context.Context, domain.Coupon) (domain.Coupon, error) {
	return domain.Coupon{}, nil
}
func (stubCouponRepo) FindByCode(context.Context, string) (domain.Coupon, error) {
	return domain.Coupon{}, nil
}
func (stubCouponRepo) Redeem(context.Context, string, time.Time) (domain.Coupon, error) {
	return domain.Coupon{}, nil
}
func (stubCouponRepo) Unredeem(context.Context, string, time.Time) (domain.Coupon, error) {
	return domain.Coupon{}, nil
}
func (stubCouponRepo) List(context.Context, repositories.CouponListFilter) (domain.CursorPage[domain.Coupon], error) {
	return domain.CursorPage[domain.Coupon]{}, nil
}

type stubOfferRepo struct{}

func (stubOfferRepo) Upsert(context.Context, domain.Offer) (domain.Offer, error) {
	return domain.Offer{}, nil
}
func (stubOfferRepo) FindByID(context.Context, string) (domain.Offer, error) {
	return domain.Offer{}, nil
}
func (stubOfferRepo) ListActive(context.Context, time.Time) ([]domain.Offer, error) {
	return nil, nil
}
func (stubOfferRepo) Delete(context.Context, string) error { return nil }

type stubCounterRepo struct{}

func (stubCounterRepo) Next(context.Context, string, int64) (int64, error) { return 1, nil }
func (stubCounterRepo) Configure(context.Context, string, repositories.CounterConfig) error {
	return nil
}

type stubHealthRepo struct{}

func (stubHealthRepo) Collect(context.Context) (domain.SystemHealthReport, error) {
	return domain.SystemHealthReport{}, nil
}

func TestNewContainerBuildsAllServices(t *testing.T) {
	cfg := config.Config{}
	cfg.Checkout.Currency = "INR"
	cfg.Security.Environment = "test"

	container, err := NewContainer(context.Background(), ContainerDeps{
		Config:   cfg,
		Registry: stubRegistry{},
	})
	if err != nil {
		t.Fatalf("NewContainer returned error: %v", err)
	}

	if container.Services.Stock == nil {
		t.Error("expected stock service to be built")
	}
	if container.Services.Checkout == nil {
		t.Error("expected checkout service to be built")
	}
	if container.Services.Orders == nil {
		t.Error("expected order service to be built")
	}
	if container.Services.Returns == nil {
		t.Error("expected return service to be built")
	}
	if container.Services.Promotions == nil {
		t.Error("expected promotion service to be built")
	}
	if container.Services.System == nil {
		t.Error("expected system service to be built")
	}

	if err := container.Close(context.Background()); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func TestNewContainerRequiresRegistry(t *testing.T) {
	if _, err := NewContainer(context.Background(), ContainerDeps{}); err == nil {
		t.Fatal("expected error when registry is missing")
	}
}
