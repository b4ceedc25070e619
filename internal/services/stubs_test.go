package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/vastra-shop/api/internal/domain"
	"github.com/vastra-shop/api/internal/repositories"
)

type stubVariantRepo struct {
	reserveFn  func(ctx context.Context, req repositories.StockReserveRequest) (map[string]domain.Variant, error)
	releaseFn  func(ctx context.Context, req repositories.StockReleaseRequest) (repositories.StockReleaseResult, error)
	adjustFn   func(ctx context.Context, req repositories.StockAdjustRequest) (domain.Variant, error)
	findFn     func(ctx context.Context, variantID string) (domain.Variant, error)
	findManyFn func(ctx context.Context, variantIDs []string) (map[string]domain.Variant, error)
	upsertFn   func(ctx context.Context, variant domain.Variant) (domain.Variant, error)
	listLowFn  func(ctx context.Context, query repositories.LowStockQuery) (domain.CursorPage[domain.Variant], error)
}

func (s *stubVariantRepo) Reserve(ctx context.Context, req repositories.StockReserveRequest) (map[string]domain.Variant, error) {
	if s.reserveFn != nil {
		return s.reserveFn(ctx, req)
	}
	return map[string]domain.Variant{}, nil
}

func (s *stubVariantRepo) Release(ctx context.Context, req repositories.StockReleaseRequest) (repositories.StockReleaseResult, error) {
	if s.releaseFn != nil {
		return s.releaseFn(ctx, req)
	}
	return repositories.StockReleaseResult{}, nil
}

func (s *stubVariantRepo) AdjustTotal(ctx context.Context, req repositories.StockAdjustRequest) (domain.Variant, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, req)
	}
	return domain.Variant{}, errors.New("not implemented")
}

func (s *stubVariantRepo) FindByID(ctx context.Context, variantID string) (domain.Variant, error) {
	if s.findFn != nil {
		return s.findFn(ctx, variantID)
	}
	return domain.Variant{}, errors.New("not implemented")
}

func (s *stubVariantRepo) FindMany(ctx context.Context, variantIDs []string) (map[string]domain.Variant, error) {
	if s.findManyFn != nil {
		return s.findManyFn(ctx, variantIDs)
	}
	return map[string]domain.Variant{}, nil
}

func (s *stubVariantRepo) Upsert(ctx context.Context, variant domain.Variant) (domain.Variant, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, variant)
	}
	return variant, nil
}

func (s *stubVariantRepo) ListLowStock(ctx context.Context, query repositories.LowStockQuery) (domain.CursorPage[domain.Variant], error) {
	if s.listLowFn != nil {
		return s.listLowFn(ctx, query)
	}
	return domain.CursorPage[domain.Variant]{}, nil
}

type stubOrderRepo struct {
	createFn       func(ctx context.Context, order domain.Order, history domain.StatusHistoryEntry) error
	updateStatusFn func(ctx context.Context, update repositories.OrderStatusUpdate) (domain.Order, error)
	findFn         func(ctx context.Context, orderID string) (domain.Order, error)
	findItemFn     func(ctx context.Context, orderID, itemID string) (domain.OrderItem, error)
	listFn         func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	listHistoryFn  func(ctx context.Context, orderID string) ([]domain.StatusHistoryEntry, error)
}

func (s *stubOrderRepo) Create(ctx context.Context, order domain.Order, history domain.StatusHistoryEntry) error {
	if s.createFn != nil {
		return s.createFn(ctx, order, history)
	}
	return nil
}

func (s *stubOrderRepo) UpdateStatus(ctx context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, update)
	}
	return update.Order, nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, repositories.ErrOrderNotFound
}

func (s *stubOrderRepo) FindItem(ctx context.Context, orderID, itemID string) (domain.OrderItem, error) {
	if s.findItemFn != nil {
		return s.findItemFn(ctx, orderID, itemID)
	}
	return domain.OrderItem{}, repositories.ErrOrderItemNotFound
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepo) ListHistory(ctx context.Context, orderID string) ([]domain.StatusHistoryEntry, error) {
	if s.listHistoryFn != nil {
		return s.listHistoryFn(ctx, orderID)
	}
	return nil, nil
}

type stubReturnRepo struct {
	insertFn   func(ctx context.Context, request domain.ReturnRequest) error
	updateFn   func(ctx context.Context, request domain.ReturnRequest) error
	findFn     func(ctx context.Context, returnID string) (domain.ReturnRequest, error)
	findOpenFn func(ctx context.Context, orderItemID string) (domain.ReturnRequest, error)
	listFn     func(ctx context.Context, filter repositories.ReturnListFilter) (domain.CursorPage[domain.ReturnRequest], error)
}

func (s *stubReturnRepo) Insert(ctx context.Context, request domain.ReturnRequest) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, request)
	}
	return nil
}

func (s *stubReturnRepo) Update(ctx context.Context, request domain.ReturnRequest) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, request)
	}
	return nil
}

func (s *stubReturnRepo) FindByID(ctx context.Context, returnID string) (domain.ReturnRequest, error) {
	if s.findFn != nil {
		return s.findFn(ctx, returnID)
	}
	return domain.ReturnRequest{}, repositories.ErrReturnNotFound
}

func (s *stubReturnRepo) FindOpenByItem(ctx context.Context, orderItemID string) (domain.ReturnRequest, error) {
	if s.findOpenFn != nil {
		return s.findOpenFn(ctx, orderItemID)
	}
	return domain.ReturnRequest{}, repositories.ErrReturnNotFound
}

func (s *stubReturnRepo) List(ctx context.Context, filter repositories.ReturnListFilter) (domain.CursorPage[domain.ReturnRequest], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.ReturnRequest]{}, nil
}

type stubCouponRepo struct {
	upsertFn   func(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error)
	findFn     func(ctx context.Context, code string) (domain.Coupon, error)
	redeemFn   func(ctx context.Context, code string, now time.Time) (domain.Coupon, error)
	unredeemFn func(ctx context.Context, code string, now time.Time) (domain.Coupon, error)
	listFn     func(ctx context.Context, filter repositories.CouponListFilter) (domain.CursorPage[domain.Coupon], error)
}

func (s *stubCouponRepo) Upsert(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, coupon)
	}
	return coupon, nil
}

func (s *stubCouponRepo) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if s.findFn != nil {
		return s.findFn(ctx, code)
	}
	return domain.Coupon{}, repositories.ErrCouponNotFound
}

func (s *stubCouponRepo) Redeem(ctx context.Context, code string, now time.Time) (domain.Coupon, error) {
	if s.redeemFn != nil {
		return s.redeemFn(ctx, code, now)
	}
	return domain.Coupon{}, repositories.ErrCouponNotFound
}

func (s *stubCouponRepo) Unredeem(ctx context.Context, code string, now time.Time) (domain.Coupon, error) {
	if s.unredeemFn != nil {
		return s.unredeemFn(ctx, code, now)
	}
	return domain.Coupon{}, repositories.ErrCouponNotFound
}

func (s *stubCouponRepo) List(ctx context.Context, filter repositories.CouponListFilter) (domain.CursorPage[domain.Coupon], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Coupon]{}, nil
}

type stubOfferRepo struct {
	upsertFn     func(ctx context.Context, offer domain.Offer) (domain.Offer, error)
	findFn       func(ctx context.Context, offerID string) (domain.Offer, error)
	listActiveFn func(ctx context.Context, now time.Time) ([]domain.Offer, error)
	deleteFn     func(ctx context.Context, offerID string) error
}

func (s *stubOfferRepo) Upsert(ctx context.Context, offer domain.Offer) (domain.Offer, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, offer)
	}
	return offer, nil
}

func (s *stubOfferRepo) FindByID(ctx context.Context, offerID string) (domain.Offer, error) {
	if s.findFn != nil {
		return s.findFn(ctx, offerID)
	}
	return domain.Offer{}, repositories.ErrOfferNotFound
}

func (s *stubOfferRepo) ListActive(ctx context.Context, now time.Time) ([]domain.Offer, error) {
	if s.listActiveFn != nil {
		return s.listActiveFn(ctx, now)
	}
	return nil, nil
}

func (s *stubOfferRepo) Delete(ctx context.Context, offerID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, offerID)
	}
	return nil
}

type stubCounterRepo struct {
	nextFn func(ctx context.Context, counterID string, step int64) (int64, error)
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 1, nil
}

func (s *stubCounterRepo) Configure(context.Context, string, repositories.CounterConfig) error {
	return nil
}

type captureOrderEvents struct {
	events []OrderEvent
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, event)
	return nil
}

type captureStockEvents struct {
	events []StockEvent
	err    error
}

func (c *captureStockEvents) PublishStockEvent(_ context.Context, event StockEvent) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, event)
	return nil
}
