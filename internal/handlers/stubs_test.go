package handlers

import (
	"context"

	domain "github.com/vastra-shop/api/internal/domain"
	"github.com/vastra-shop/api/internal/services"
)

type stubOrderService struct {
	getFn                   func(ctx context.Context, orderID string, opts services.OrderReadOptions) (services.Order, error)
	listFn                  func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
	historyFn               func(ctx context.Context, orderID string) ([]services.StatusHistoryEntry, error)
	transitionFulfillmentFn func(ctx context.Context, cmd services.FulfillmentTransitionCommand) (services.Order, error)
	transitionPaymentFn     func(ctx context.Context, cmd services.PaymentTransitionCommand) (services.Order, error)
	cancelFn                func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string, opts services.OrderReadOptions) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID, opts)
	}
	return services.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) ListHistory(ctx context.Context, orderID string) ([]services.StatusHistoryEntry, error) {
	if s.historyFn != nil {
		return s.historyFn(ctx, orderID)
	}
	return nil, nil
}

func (s *stubOrderService) TransitionFulfillment(ctx context.Context, cmd services.FulfillmentTransitionCommand) (services.Order, error) {
	if s.transitionFulfillmentFn != nil {
		return s.transitionFulfillmentFn(ctx, cmd)
	}
	return services.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) TransitionPayment(ctx context.Context, cmd services.PaymentTransitionCommand) (services.Order, error) {
	if s.transitionPaymentFn != nil {
		return s.transitionPaymentFn(ctx, cmd)
	}
	return services.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, services.ErrOrderNotFound
}

type stubCheckoutService struct {
	placeFn   func(ctx context.Context, cmd services.PlaceOrderCommand) (services.Order, error)
	previewFn func(ctx context.Context, cmd services.PlaceOrderCommand) (services.OrderQuote, error)
}

func (s *stubCheckoutService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
	if s.placeFn != nil {
		return s.placeFn(ctx, cmd)
	}
	return services.Order{}, services.ErrCheckoutInvalidInput
}

func (s *stubCheckoutService) PreviewOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.OrderQuote, error) {
	if s.previewFn != nil {
		return s.previewFn(ctx, cmd)
	}
	return services.OrderQuote{}, services.ErrCheckoutInvalidInput
}

type stubReturnService struct {
	requestFn func(ctx context.Context, cmd services.RequestReturnCommand) (services.ReturnRequest, error)
	decideFn  func(ctx context.Context, cmd services.DecideReturnCommand) (services.ReturnRequest, error)
	getFn     func(ctx context.Context, returnID string) (services.ReturnRequest, error)
	listFn    func(ctx context.Context, filter services.ReturnListFilter) (domain.CursorPage[services.ReturnRequest], error)
}

func (s *stubReturnService) RequestReturn(ctx context.Context, cmd services.RequestReturnCommand) (services.ReturnRequest, error) {
	if s.requestFn != nil {
		return s.requestFn(ctx, cmd)
	}
	return services.ReturnRequest{}, services.ErrReturnInvalidInput
}

func (s *stubReturnService) DecideReturn(ctx context.Context, cmd services.DecideReturnCommand) (services.ReturnRequest, error) {
	if s.decideFn != nil {
		return s.decideFn(ctx, cmd)
	}
	return services.ReturnRequest{}, services.ErrReturnNotFound
}

func (s *stubReturnService) GetReturn(ctx context.Context, returnID string) (services.ReturnRequest, error) {
	if s.getFn != nil {
		return s.getFn(ctx, returnID)
	}
	return services.ReturnRequest{}, services.ErrReturnNotFound
}

func (s *stubReturnService) ListReturns(ctx context.Context, filter services.ReturnListFilter) (domain.CursorPage[services.ReturnRequest], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.ReturnRequest]{}, nil
}

type stubStockService struct {
	availabilityFn func(ctx context.Context, variantIDs []string) (map[string]services.Variant, error)
	adjustFn       func(ctx context.Context, cmd services.AdjustStockCommand) (services.Variant, error)
	upsertFn       func(ctx context.Context, cmd services.UpsertVariantCommand) (services.Variant, error)
	lowStockFn     func(ctx context.Context, filter services.LowStockFilter) (domain.CursorPage[services.Variant], error)
}

func (s *stubStockService) GetAvailability(ctx context.Context, variantIDs []string) (map[string]services.Variant, error) {
	if s.availabilityFn != nil {
		return s.availabilityFn(ctx, variantIDs)
	}
	return map[string]services.Variant{}, nil
}

func (s *stubStockService) AdjustTotalStock(ctx context.Context, cmd services.AdjustStockCommand) (services.Variant, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, cmd)
	}
	return services.Variant{}, services.ErrStockVariantNotFound
}

func (s *stubStockService) UpsertVariant(ctx context.Context, cmd services.UpsertVariantCommand) (services.Variant, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, cmd)
	}
	return services.Variant{}, services.ErrStockInvalidInput
}

func (s *stubStockService) ListLowStock(ctx context.Context, filter services.LowStockFilter) (domain.CursorPage[services.Variant], error) {
	if s.lowStockFn != nil {
		return s.lowStockFn(ctx, filter)
	}
	return domain.CursorPage[services.Variant]{}, nil
}

type stubPromotionService struct {
	validateFn     func(ctx context.Context, cmd services.ValidateCouponCommand) (services.CouponValidationResult, error)
	upsertCouponFn func(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error)
	listCouponsFn  func(ctx context.Context, filter services.CouponListFilter) (domain.CursorPage[services.Coupon], error)
	upsertOfferFn  func(ctx context.Context, cmd services.UpsertOfferCommand) (services.Offer, error)
	deleteOfferFn  func(ctx context.Context, offerID string) error
	listOffersFn   func(ctx context.Context) ([]services.Offer, error)
}

func (s *stubPromotionService) ValidateCoupon(ctx context.Context, cmd services.ValidateCouponCommand) (services.CouponValidationResult, error) {
	if s.validateFn != nil {
		return s.validateFn(ctx, cmd)
	}
	return services.CouponValidationResult{}, nil
}

func (s *stubPromotionService) UpsertCoupon(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
	if s.upsertCouponFn != nil {
		return s.upsertCouponFn(ctx, cmd)
	}
	return cmd.Coupon, nil
}

func (s *stubPromotionService) ListCoupons(ctx context.Context, filter services.CouponListFilter) (domain.CursorPage[services.Coupon], error) {
	if s.listCouponsFn != nil {
		return s.listCouponsFn(ctx, filter)
	}
	return domain.CursorPage[services.Coupon]{}, nil
}

func (s *stubPromotionService) UpsertOffer(ctx context.Context, cmd services.UpsertOfferCommand) (services.Offer, error) {
	if s.upsertOfferFn != nil {
		return s.upsertOfferFn(ctx, cmd)
	}
	return cmd.Offer, nil
}

func (s *stubPromotionService) DeleteOffer(ctx context.Context, offerID string) error {
	if s.deleteOfferFn != nil {
		return s.deleteOfferFn(ctx, offerID)
	}
	return nil
}

func (s *stubPromotionService) ListActiveOffers(ctx context.Context) ([]services.Offer, error) {
	if s.listOffersFn != nil {
		return s.listOffersFn(ctx)
	}
	return nil, nil
}

var (
	_ services.OrderService     = (*stubOrderService)(nil)
	_ services.CheckoutService  = (*stubCheckoutService)(nil)
	_ services.ReturnService    = (*stubReturnService)(nil)
	_ services.StockService     = (*stubStockService)(nil)
	_ services.PromotionService = (*stubPromotionService)(nil)
)
