package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/vastra-shop/api/internal/domain"
	"github.com/vastra-shop/api/internal/repositories"
)

const (
	orderItemIDPrefix      = "itm_"
	maxCheckoutLines       = 50
	defaultMaxLineQuantity = 20
)

var (
	// ErrCheckoutInvalidInput signals the caller provided invalid data.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutInsufficientStock indicates at least one line exceeds availability.
	ErrCheckoutInsufficientStock = errors.New("checkout: insufficient stock")
	// ErrCheckoutVariantNotFound indicates a requested variant does not exist.
	ErrCheckoutVariantNotFound = errors.New("checkout: variant not found")
	// ErrCouponNotEligible indicates the coupon cannot apply to this order.
	ErrCouponNotEligible = errors.New("checkout: coupon not eligible")
)

// CheckoutPricing carries the storefront's money configuration.
type CheckoutPricing struct {
	Currency              string
	ShippingFee           int64
	FreeShippingThreshold int64
	MaxQuantityPerLine    int
}

// CheckoutServiceDeps bundles collaborators required to construct the checkout service.
type CheckoutServiceDeps struct {
	Orders      repositories.OrderRepository
	Variants    repositories.VariantRepository
	Coupons     repositories.CouponRepository
	Offers      repositories.OfferRepository
	Counters    repositories.CounterRepository
	Pricing     CheckoutPricing
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	orders   repositories.OrderRepository
	variants repositories.VariantRepository
	coupons  repositories.CouponRepository
	offers   repositories.OfferRepository
	counters repositories.CounterRepository
	pricing  CheckoutPricing
	clock    func() time.Time
	newID    func() string
	events   OrderEventPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewCheckoutService wires dependencies into a concrete CheckoutService implementation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Variants == nil {
		return nil, errors.New("checkout service: variant repository is required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("checkout service: coupon repository is required")
	}
	if deps.Offers == nil {
		return nil, errors.New("checkout service: offer repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("checkout service: counter repository is required")
	}

	pricing := deps.Pricing
	if strings.TrimSpace(pricing.Currency) == "" {
		pricing.Currency = "INR"
	}
	if pricing.MaxQuantityPerLine <= 0 {
		pricing.MaxQuantityPerLine = defaultMaxLineQuantity
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		orders:   deps.Orders,
		variants: deps.Variants,
		coupons:  deps.Coupons,
		offers:   deps.Offers,
		counters: deps.Counters,
		pricing:  pricing,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// PreviewOrder prices the cart without holding stock or redeeming anything.
func (s *checkoutService) PreviewOrder(ctx context.Context, cmd PlaceOrderCommand) (OrderQuote, error) {
	if err := validatePlaceOrderInput(cmd, s.pricing.MaxQuantityPerLine); err != nil {
		return OrderQuote{}, err
	}
	quote, _, err := s.buildQuote(ctx, cmd, s.now())
	if err != nil {
		return OrderQuote{}, err
	}
	return quote, nil
}

// PlaceOrder runs the full placement pipeline: price the lines, hold stock
// for every line atomically, redeem the coupon, then persist the order with
// its initial history entry. A failure after the stock hold releases it, and
// a failure after redemption hands the coupon use back.
func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	if err := validatePlaceOrderInput(cmd, s.pricing.MaxQuantityPerLine); err != nil {
		return Order{}, err
	}

	now := s.now()
	quote, coupon, err := s.buildQuote(ctx, cmd, now)
	if err != nil {
		return Order{}, err
	}

	orderID := orderIDPrefix + s.newID()
	items := make([]domain.OrderItem, len(quote.Lines))
	reserveLines := make([]repositories.StockLine, len(quote.Lines))
	for i, line := range quote.Lines {
		item := line
		item.ID = orderItemIDPrefix + s.newID()
		item.OrderID = orderID
		items[i] = item
		reserveLines[i] = repositories.StockLine{
			VariantID:   *item.VariantRef,
			OrderItemID: item.ID,
			Quantity:    item.Quantity,
		}
	}

	// All-or-nothing: one short line fails the whole reservation.
	if _, err := s.variants.Reserve(ctx, repositories.StockReserveRequest{
		Lines:    reserveLines,
		OrderRef: orderID,
		Now:      now,
	}); err != nil {
		return Order{}, s.mapStockError(err)
	}

	if coupon != nil {
		if _, err := s.coupons.Redeem(ctx, coupon.Code, now); err != nil {
			s.compensateReservation(ctx, orderID, reserveLines, now, "coupon redemption failed")
			return Order{}, s.mapCouponError(err)
		}
	}

	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		s.compensateReservation(ctx, orderID, reserveLines, now, "order number allocation failed")
		s.compensateRedemption(ctx, coupon, now, "order number allocation failed")
		return Order{}, err
	}

	order := domain.Order{
		ID:                orderID,
		OrderNumber:       number,
		CustomerID:        strings.TrimSpace(cmd.CustomerID),
		ShippingAddress:   cmd.ShippingAddress,
		Items:             items,
		Subtotal:          quote.Subtotal,
		DiscountTotal:     quote.DiscountTotal,
		CouponCode:        couponCode(coupon),
		CouponDiscount:    quote.CouponDiscount,
		ShippingFee:       quote.ShippingFee,
		Total:             quote.Total,
		Currency:          quote.Currency,
		PaymentMethod:     strings.TrimSpace(cmd.PaymentMethod),
		PaymentStatus:     domain.PaymentPending,
		FulfillmentStatus: domain.FulfillmentPending,
		DeliveryMode:      cmd.DeliveryMode,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	history := domain.StatusHistoryEntry{
		ID:             historyIDPrefix + s.newID(),
		OrderID:        orderID,
		OldPayment:     domain.PaymentPending,
		NewPayment:     domain.PaymentPending,
		OldFulfillment: domain.FulfillmentPending,
		NewFulfillment: domain.FulfillmentPending,
		Notes:          "order placed",
		ActorID:        order.CustomerID,
		CreatedAt:      now,
	}

	if err := s.orders.Create(ctx, order, history); err != nil {
		s.compensateReservation(ctx, orderID, reserveLines, now, "order persistence failed")
		s.compensateRedemption(ctx, coupon, now, "order persistence failed")
		return Order{}, err
	}

	s.publishCreated(ctx, order, now)
	return order, nil
}

// buildQuote prices every line with the best active offer and validates the
// coupon against the discounted order value. No state is mutated.
func (s *checkoutService) buildQuote(ctx context.Context, cmd PlaceOrderCommand, now time.Time) (OrderQuote, *domain.Coupon, error) {
	variantIDs := make([]string, len(cmd.Lines))
	for i, line := range cmd.Lines {
		variantIDs[i] = line.VariantID
	}
	variants, err := s.variants.FindMany(ctx, variantIDs)
	if err != nil {
		return OrderQuote{}, nil, s.mapStockError(err)
	}

	offers, err := s.offers.ListActive(ctx, now)
	if err != nil {
		return OrderQuote{}, nil, err
	}

	var (
		lines         []OrderItem
		subtotal      int64
		discountTotal int64
	)
	for _, line := range cmd.Lines {
		variant, ok := variants[line.VariantID]
		if !ok {
			return OrderQuote{}, nil, fmt.Errorf("%w: %s", ErrCheckoutVariantNotFound, line.VariantID)
		}
		if variant.Available < line.Quantity {
			return OrderQuote{}, nil, fmt.Errorf("%w: %s", ErrCheckoutInsufficientStock, line.VariantID)
		}

		unitPrice := variant.BasePrice + variant.PriceAdjustment
		offer, perUnit, found := bestOfferFor(offers, variant.ProductRef, variant.ID, unitPrice, now)

		item := OrderItem{
			VariantRef:        valuePtr(variant.ID),
			ProductRef:        variant.ProductRef,
			ProductName:       variant.ProductName,
			Size:              variant.Size,
			Color:             variant.Color,
			Quantity:          line.Quantity,
			OriginalUnitPrice: unitPrice,
			UnitPrice:         unitPrice,
		}
		if found {
			item.UnitPrice = unitPrice - perUnit
			item.DiscountAmount = perUnit * int64(line.Quantity)
			item.OfferTitle = offer.Title
		}
		item.Subtotal = item.UnitPrice * int64(line.Quantity)

		lines = append(lines, item)
		subtotal += unitPrice * int64(line.Quantity)
		discountTotal += item.DiscountAmount
	}

	orderValue := subtotal - discountTotal

	var (
		coupon         *domain.Coupon
		couponDiscount int64
	)
	if code := strings.TrimSpace(cmd.CouponCode); code != "" {
		found, err := s.coupons.FindByCode(ctx, code)
		if err != nil {
			if errors.Is(err, repositories.ErrCouponNotFound) {
				return OrderQuote{}, nil, fmt.Errorf("%w: unknown code", ErrCouponNotEligible)
			}
			return OrderQuote{}, nil, err
		}
		if reason := couponDiscountReason(found, orderValue, now); reason != "" {
			return OrderQuote{}, nil, fmt.Errorf("%w: %s", ErrCouponNotEligible, reason)
		}
		couponDiscount = couponDiscountFor(found, orderValue)
		coupon = &found
	}

	shippingFee := s.shippingFeeFor(subtotal)

	return OrderQuote{
		Lines:          lines,
		Subtotal:       subtotal,
		DiscountTotal:  discountTotal,
		CouponDiscount: couponDiscount,
		ShippingFee:    shippingFee,
		Total:          orderValue - couponDiscount + shippingFee,
		Currency:       s.pricing.Currency,
	}, coupon, nil
}

// shippingFeeFor waives the fee once the undiscounted subtotal clears the
// threshold. Offers and coupons do not pull an order back under it.
func (s *checkoutService) shippingFeeFor(subtotal int64) int64 {
	if s.pricing.FreeShippingThreshold > 0 && subtotal >= s.pricing.FreeShippingThreshold {
		return 0
	}
	return s.pricing.ShippingFee
}

// compensateReservation releases a hold taken earlier in the pipeline.
func (s *checkoutService) compensateReservation(ctx context.Context, orderID string, lines []repositories.StockLine, now time.Time, reason string) {
	if _, err := s.variants.Release(ctx, repositories.StockReleaseRequest{
		Lines:    lines,
		OrderRef: orderID,
		Event:    "checkout_failed",
		Reason:   reason,
		Now:      now,
	}); err != nil {
		s.logger(ctx, "checkout_compensation_failed", map[string]any{
			"orderId": orderID,
			"reason":  reason,
			"error":   err.Error(),
		})
	}
}

// compensateRedemption hands a coupon use back when a step after Redeem
// fails, keeping usedCount at one increment per persisted order.
func (s *checkoutService) compensateRedemption(ctx context.Context, coupon *domain.Coupon, now time.Time, reason string) {
	if coupon == nil {
		return
	}
	if _, err := s.coupons.Unredeem(ctx, coupon.Code, now); err != nil {
		s.logger(ctx, "checkout_compensation_failed", map[string]any{
			"couponCode": coupon.Code,
			"reason":     reason,
			"error":      err.Error(),
		})
	}
}

func (s *checkoutService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, "orders", 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("VS-%04d-%06d", now.Year(), seq), nil
}

func (s *checkoutService) mapStockError(err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficientStock:
			return fmt.Errorf("%w: %s", ErrCheckoutInsufficientStock, stockErr.Message)
		case repositories.StockErrorVariantNotFound:
			return fmt.Errorf("%w: %s", ErrCheckoutVariantNotFound, stockErr.Message)
		}
	}
	return err
}

func (s *checkoutService) mapCouponError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrCouponNotFound):
		return fmt.Errorf("%w: unknown code", ErrCouponNotEligible)
	case errors.Is(err, repositories.ErrCouponInactive):
		return fmt.Errorf("%w: coupon is not active", ErrCouponNotEligible)
	case errors.Is(err, repositories.ErrCouponExhausted):
		return fmt.Errorf("%w: coupon usage limit reached", ErrCouponNotEligible)
	}
	return err
}

func (s *checkoutService) publishCreated(ctx context.Context, order domain.Order, now time.Time) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Type:               orderEventCreated,
		OrderID:            order.ID,
		OrderNumber:        order.OrderNumber,
		CustomerID:         order.CustomerID,
		CurrentFulfillment: string(order.FulfillmentStatus),
		CurrentPayment:     string(order.PaymentStatus),
		ActorID:            order.CustomerID,
		OccurredAt:         now,
		Metadata: map[string]any{
			"total":    order.Total,
			"currency": order.Currency,
		},
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order_event_publish_failed", map[string]any{
			"type":  event.Type,
			"order": order.ID,
			"error": err.Error(),
		})
	}
}

func (s *checkoutService) now() time.Time {
	return s.clock()
}

func couponCode(coupon *domain.Coupon) string {
	if coupon == nil {
		return ""
	}
	return coupon.Code
}

func validatePlaceOrderInput(cmd PlaceOrderCommand, maxQuantity int) error {
	if strings.TrimSpace(cmd.CustomerID) == "" {
		return fmt.Errorf("%w: customer id is required", ErrCheckoutInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", ErrCheckoutInvalidInput)
	}
	if len(cmd.Lines) > maxCheckoutLines {
		return fmt.Errorf("%w: too many lines", ErrCheckoutInvalidInput)
	}
	seen := make(map[string]struct{}, len(cmd.Lines))
	for _, line := range cmd.Lines {
		variantID := strings.TrimSpace(line.VariantID)
		if variantID == "" {
			return fmt.Errorf("%w: line variant id is required", ErrCheckoutInvalidInput)
		}
		if _, ok := seen[variantID]; ok {
			return fmt.Errorf("%w: duplicate variant %s", ErrCheckoutInvalidInput, variantID)
		}
		seen[variantID] = struct{}{}
		if line.Quantity <= 0 || line.Quantity > maxQuantity {
			return fmt.Errorf("%w: quantity for %s out of range", ErrCheckoutInvalidInput, variantID)
		}
	}
	switch cmd.DeliveryMode {
	case domain.DeliverySelf, domain.DeliveryCourier:
	default:
		return fmt.Errorf("%w: delivery mode must be self or courier", ErrCheckoutInvalidInput)
	}
	if strings.TrimSpace(cmd.ShippingAddress.Line1) == "" || strings.TrimSpace(cmd.ShippingAddress.City) == "" {
		return fmt.Errorf("%w: shipping address is incomplete", ErrCheckoutInvalidInput)
	}
	return nil
}
