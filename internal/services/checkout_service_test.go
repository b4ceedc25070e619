package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/vastra-shop/api/internal/domain"
	"github.com/vastra-shop/api/internal/repositories"
)

type checkoutFixture struct {
	orders   *stubOrderRepo
	variants *stubVariantRepo
	coupons  *stubCouponRepo
	offers   *stubOfferRepo
	counters *stubCounterRepo
	events   *captureOrderEvents
}

func newCheckoutFixture() *checkoutFixture {
	return &checkoutFixture{
		orders:   &stubOrderRepo{},
		variants: &stubVariantRepo{},
		coupons:  &stubCouponRepo{},
		offers:   &stubOfferRepo{},
		counters: &stubCounterRepo{},
		events:   &captureOrderEvents{},
	}
}

func (f *checkoutFixture) service(t *testing.T, now time.Time, pricing CheckoutPricing) CheckoutService {
	t.Helper()
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Orders:      f.orders,
		Variants:    f.variants,
		Coupons:     f.coupons,
		Offers:      f.offers,
		Counters:    f.counters,
		Pricing:     pricing,
		Clock:       fixedClock(now),
		IDGenerator: sequentialIDs("id-"),
		Events:      f.events,
	})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}
	return svc
}

func checkoutVariant(id string, price int64, available int) domain.Variant {
	return domain.Variant{
		ID:          id,
		ProductRef:  "prod-1",
		ProductName: "Linen Shirt",
		Size:        "M",
		Color:       "white",
		BasePrice:   price,
		TotalStock:  available,
		Available:   available,
	}
}

func placeCommand(lines ...PlaceOrderLine) PlaceOrderCommand {
	return PlaceOrderCommand{
		CustomerID:   "cust-1",
		Lines:        lines,
		DeliveryMode: domain.DeliveryCourier,
		ShippingAddress: domain.Address{
			Line1:      "12 MG Road",
			City:       "Bengaluru",
			State:      "KA",
			PostalCode: "560001",
		},
		PaymentMethod: "upi",
	}
}

func TestCheckoutPlaceOrderFlatCouponAndFreeShipping(t *testing.T) {
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	f := newCheckoutFixture()

	f.variants.findManyFn = func(_ context.Context, ids []string) (map[string]domain.Variant, error) {
		return map[string]domain.Variant{"var-1": checkoutVariant("var-1", 1000, 5)}, nil
	}
	var reserved *repositories.StockReserveRequest
	f.variants.reserveFn = func(_ context.Context, req repositories.StockReserveRequest) (map[string]domain.Variant, error) {
		reserved = &req
		return map[string]domain.Variant{}, nil
	}
	limit := 10
	f.coupons.findFn = func(_ context.Context, code string) (domain.Coupon, error) {
		if code != "FLAT100" {
			t.Fatalf("unexpected coupon lookup %s", code)
		}
		return domain.Coupon{
			Code:       "FLAT100",
			Type:       domain.DiscountFlat,
			Value:      100,
			Active:     true,
			UsageLimit: &limit,
		}, nil
	}
	redeemed := false
	f.coupons.redeemFn = func(_ context.Context, code string, _ time.Time) (domain.Coupon, error) {
		redeemed = true
		return domain.Coupon{Code: code, UsedCount: 1}, nil
	}
	f.counters.nextFn = func(_ context.Context, counterID string, step int64) (int64, error) {
		if counterID != "orders" || step != 1 {
			t.Fatalf("unexpected counter call %s/%d", counterID, step)
		}
		return 42, nil
	}
	var created *domain.Order
	f.orders.createFn = func(_ context.Context, order domain.Order, history domain.StatusHistoryEntry) error {
		created = &order
		if history.NewFulfillment != domain.FulfillmentPending || history.NewPayment != domain.PaymentPending {
			t.Fatalf("initial history must be pending on both axes: %+v", history)
		}
		return nil
	}

	cmd := placeCommand(PlaceOrderLine{VariantID: "var-1", Quantity: 1})
	cmd.CouponCode = "FLAT100"
	svc := f.service(t, now, CheckoutPricing{ShippingFee: 50, FreeShippingThreshold: 500})

	order, err := svc.PlaceOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if order.Subtotal != 1000 || order.CouponDiscount != 100 {
		t.Fatalf("pricing wrong: subtotal=%d coupon=%d", order.Subtotal, order.CouponDiscount)
	}
	if order.ShippingFee != 0 {
		t.Fatalf("order over threshold should ship free, got %d", order.ShippingFee)
	}
	if order.Total != 900 {
		t.Fatalf("expected total 900, got %d", order.Total)
	}
	if order.OrderNumber != "VS-2025-000042" {
		t.Fatalf("order number wrong: %s", order.OrderNumber)
	}
	if !redeemed {
		t.Fatalf("coupon was not redeemed")
	}
	if reserved == nil || len(reserved.Lines) != 1 || reserved.Lines[0].Quantity != 1 {
		t.Fatalf("reservation wrong: %+v", reserved)
	}
	if created == nil {
		t.Fatalf("order was not persisted")
	}
	if len(f.events.events) != 1 || f.events.events[0].Type != orderEventCreated {
		t.Fatalf("expected created event, got %+v", f.events.events)
	}
}

func TestCheckoutCouponBelowMinimumIsRejected(t *testing.T) {
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	f := newCheckoutFixture()
	f.variants.findManyFn = func(context.Context, []string) (map[string]domain.Variant, error) {
		return map[string]domain.Variant{"var-1": checkoutVariant("var-1", 1000, 5)}, nil
	}
	f.coupons.findFn = func(context.Context, string) (domain.Coupon, error) {
		return domain.Coupon{
			Code:          "BIGSPEND",
			Type:          domain.DiscountFlat,
			Value:         200,
			MinOrderValue: 2000,
			Active:        true,
		}, nil
	}

	cmd := placeCommand(PlaceOrderLine{VariantID: "var-1", Quantity: 1})
	cmd.CouponCode = "BIGSPEND"
	svc := f.service(t, now, CheckoutPricing{})

	_, err := svc.PlaceOrder(context.Background(), cmd)
	if !errors.Is(err, ErrCouponNotEligible) {
		t.Fatalf("expected not eligible, got %v", err)
	}
	if !strings.Contains(err.Error(), "below coupon minimum") {
		t.Fatalf("reason missing from error: %v", err)
	}
}

func TestCheckoutBestOfferWinsByAbsoluteDiscount(t *testing.T) {
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	f := newCheckoutFixture()
	f.variants.findManyFn = func(context.Context, []string) (map[string]domain.Variant, error) {
		return map[string]domain.Variant{"var-1": checkoutVariant("var-1", 400, 5)}, nil
	}
	f.offers.listActiveFn = func(context.Context, time.Time) ([]domain.Offer, error) {
		return []domain.Offer{
			{ID: "off-pct", Title: "10% off", Type: domain.DiscountPercentage, Value: 10, Scope: domain.OfferScopeAll},
			{ID: "off-flat", Title: "Flat 50", Type: domain.DiscountFlat, Value: 50, Scope: domain.OfferScopeAll},
		}, nil
	}

	svc := f.service(t, now, CheckoutPricing{})
	quote, err := svc.PreviewOrder(context.Background(), placeCommand(PlaceOrderLine{VariantID: "var-1", Quantity: 1}))
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(quote.Lines) != 1 {
		t.Fatalf("expected one line, got %d", len(quote.Lines))
	}
	line := quote.Lines[0]
	if line.OfferTitle != "Flat 50" {
		t.Fatalf("flat 50 should beat 10%% of 400, applied %q", line.OfferTitle)
	}
	if line.UnitPrice != 350 || line.DiscountAmount != 50 {
		t.Fatalf("line pricing wrong: unit=%d discount=%d", line.UnitPrice, line.DiscountAmount)
	}
	if quote.Total != 350 {
		t.Fatalf("expected total 350, got %d", quote.Total)
	}
}

func TestCheckoutInsufficientStockFailsWholeOrder(t *testing.T) {
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	f := newCheckoutFixture()
	f.variants.findManyFn = func(context.Context, []string) (map[string]domain.Variant, error) {
		return map[string]domain.Variant{
			"var-1": checkoutVariant("var-1", 1000, 5),
			"var-2": checkoutVariant("var-2", 500, 1),
		}, nil
	}
	f.orders.createFn = func(context.Context, domain.Order, domain.StatusHistoryEntry) error {
		t.Fatalf("order must not be created when a line is short")
		return nil
	}

	svc := f.service(t, now, CheckoutPricing{})
	_, err := svc.PlaceOrder(context.Background(), placeCommand(
		PlaceOrderLine{VariantID: "var-1", Quantity: 1},
		PlaceOrderLine{VariantID: "var-2", Quantity: 3},
	))
	if !errors.Is(err, ErrCheckoutInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestCheckoutReserveConflictMapped(t *testing.T) {
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	f := newCheckoutFixture()
	f.variants.findManyFn = func(context.Context, []string) (map[string]domain.Variant, error) {
		return map[string]domain.Variant{"var-1": checkoutVariant("var-1", 1000, 5)}, nil
	}
	f.variants.reserveFn = func(context.Context, repositories.StockReserveRequest) (map[string]domain.Variant, error) {
		return nil, repositories.NewStockError(repositories.StockErrorInsufficientStock, "var-1 has 0 available", nil)
	}

	svc := f.service(t, now, CheckoutPricing{})
	_, err := svc.PlaceOrder(context.Background(), placeCommand(PlaceOrderLine{VariantID: "var-1", Quantity: 1}))
	if !errors.Is(err, ErrCheckoutInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestCheckoutRedeemFailureReleasesReservation(t *testing.T) {
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	f := newCheckoutFixture()
	f.variants.findManyFn = func(context.Context, []string) (map[string]domain.Variant, error) {
		return map[string]domain.Variant{"var-1": checkoutVariant("var-1", 1000, 5)}, nil
	}
	var released *repositories.StockReleaseRequest
	f.variants.releaseFn = func(_ context.Context, req repositories.StockReleaseRequest) (repositories.StockReleaseResult, error) {
		released = &req
		return repositories.StockReleaseResult{}, nil
	}
	f.coupons.findFn = func(context.Context, string) (domain.Coupon, error) {
		return domain.Coupon{Code: "FLAT100", Type: domain.DiscountFlat, Value: 100, Active: true}, nil
	}
	f.coupons.redeemFn = func(context.Context, string, time.Time) (domain.Coupon, error) {
		return domain.Coupon{}, repositories.ErrCouponExhausted
	}

	cmd := placeCommand(PlaceOrderLine{VariantID: "var-1", Quantity: 2})
	cmd.CouponCode = "FLAT100"
	svc := f.service(t, now, CheckoutPricing{})

	_, err := svc.PlaceOrder(context.Background(), cmd)
	if !errors.Is(err, ErrCouponNotEligible) {
		t.Fatalf("expected not eligible after exhausted redeem, got %v", err)
	}
	if released == nil {
		t.Fatalf("reservation was not compensated")
	}
	if released.Event != "checkout_failed" {
		t.Fatalf("compensation must use checkout_failed event, got %s", released.Event)
	}
	if len(released.Lines) != 1 || released.Lines[0].Quantity != 2 {
		t.Fatalf("compensation lines wrong: %+v", released.Lines)
	}
}

func TestCheckoutUnknownVariantRejected(t *testing.T) {
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	f := newCheckoutFixture()
	f.variants.findManyFn = func(context.Context, []string) (map[string]domain.Variant, error) {
		return map[string]domain.Variant{}, nil
	}

	svc := f.service(t, now, CheckoutPricing{})
	_, err := svc.PlaceOrder(context.Background(), placeCommand(PlaceOrderLine{VariantID: "ghost", Quantity: 1}))
	if !errors.Is(err, ErrCheckoutVariantNotFound) {
		t.Fatalf("expected variant not found, got %v", err)
	}
}

func TestCheckoutInputValidation(t *testing.T) {
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	svc := newCheckoutFixture().service(t, now, CheckoutPricing{})

	cases := []struct {
		name string
		cmd  PlaceOrderCommand
	}{
		{name: "missing customer", cmd: func() PlaceOrderCommand {
			c := placeCommand(PlaceOrderLine{VariantID: "var-1", Quantity: 1})
			c.CustomerID = ""
			return c
		}()},
		{name: "no lines", cmd: placeCommand()},
		{name: "duplicate variant", cmd: placeCommand(
			PlaceOrderLine{VariantID: "var-1", Quantity: 1},
			PlaceOrderLine{VariantID: "var-1", Quantity: 2},
		)},
		{name: "zero quantity", cmd: placeCommand(PlaceOrderLine{VariantID: "var-1"})},
		{name: "excess quantity", cmd: placeCommand(PlaceOrderLine{VariantID: "var-1", Quantity: 21})},
		{name: "bad delivery mode", cmd: func() PlaceOrderCommand {
			c := placeCommand(PlaceOrderLine{VariantID: "var-1", Quantity: 1})
			c.DeliveryMode = "drone"
			return c
		}()},
		{name: "incomplete address", cmd: func() PlaceOrderCommand {
			c := placeCommand(PlaceOrderLine{VariantID: "var-1", Quantity: 1})
			c.ShippingAddress.City = ""
			return c
		}()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.PlaceOrder(context.Background(), tc.cmd); !errors.Is(err, ErrCheckoutInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestCheckoutShippingFeeAppliedBelowThreshold(t *testing.T) {
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	f := newCheckoutFixture()
	f.variants.findManyFn = func(context.Context, []string) (map[string]domain.Variant, error) {
		return map[string]domain.Variant{"var-1": checkoutVariant("var-1", 300, 5)}, nil
	}

	svc := f.service(t, now, CheckoutPricing{ShippingFee: 50, FreeShippingThreshold: 500})
	quote, err := svc.PreviewOrder(context.Background(), placeCommand(PlaceOrderLine{VariantID: "var-1", Quantity: 1}))
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if quote.ShippingFee != 50 {
		t.Fatalf("expected shipping fee 50, got %d", quote.ShippingFee)
	}
	if quote.Total != 350 {
		t.Fatalf("expected total 350, got %d", quote.Total)
	}
}

func TestCheckoutFreeShippingSurvivesCouponDiscount(t *testing.T) {
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	f := newCheckoutFixture()
	f.variants.findManyFn = func(context.Context, []string) (map[string]domain.Variant, error) {
		return map[string]domain.Variant{"var-1": checkoutVariant("var-1", 600, 5)}, nil
	}
	f.coupons.findFn = func(context.Context, string) (domain.Coupon, error) {
		return domain.Coupon{Code: "FLAT200", Type: domain.DiscountFlat, Value: 200, Active: true}, nil
	}

	// Subtotal 600 clears the 500 threshold; the coupon pulling the order
	// value down to 400 must not bring the fee back.
	cmd := placeCommand(PlaceOrderLine{VariantID: "var-1", Quantity: 1})
	cmd.CouponCode = "FLAT200"
	svc := f.service(t, now, CheckoutPricing{ShippingFee: 50, FreeShippingThreshold: 500})

	quote, err := svc.PreviewOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if quote.ShippingFee != 0 {
		t.Fatalf("expected free shipping, got fee %d", quote.ShippingFee)
	}
	if quote.Total != 400 {
		t.Fatalf("expected total 400, got %d", quote.Total)
	}
}

func TestCheckoutPersistFailureReturnsCouponUse(t *testing.T) {
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	f := newCheckoutFixture()
	f.variants.findManyFn = func(context.Context, []string) (map[string]domain.Variant, error) {
		return map[string]domain.Variant{"var-1": checkoutVariant("var-1", 1000, 5)}, nil
	}
	var released *repositories.StockReleaseRequest
	f.variants.releaseFn = func(_ context.Context, req repositories.StockReleaseRequest) (repositories.StockReleaseResult, error) {
		released = &req
		return repositories.StockReleaseResult{}, nil
	}
	f.coupons.findFn = func(context.Context, string) (domain.Coupon, error) {
		return domain.Coupon{Code: "FLAT100", Type: domain.DiscountFlat, Value: 100, Active: true}, nil
	}
	f.coupons.redeemFn = func(_ context.Context, code string, _ time.Time) (domain.Coupon, error) {
		return domain.Coupon{Code: code, UsedCount: 1}, nil
	}
	var unredeemedCode string
	f.coupons.unredeemFn = func(_ context.Context, code string, _ time.Time) (domain.Coupon, error) {
		unredeemedCode = code
		return domain.Coupon{Code: code}, nil
	}
	f.orders.createFn = func(context.Context, domain.Order, domain.StatusHistoryEntry) error {
		return errors.New("firestore unavailable")
	}

	cmd := placeCommand(PlaceOrderLine{VariantID: "var-1", Quantity: 1})
	cmd.CouponCode = "FLAT100"
	svc := f.service(t, now, CheckoutPricing{})

	if _, err := svc.PlaceOrder(context.Background(), cmd); err == nil {
		t.Fatal("expected persistence failure to surface")
	}
	if unredeemedCode != "FLAT100" {
		t.Fatalf("redemption was not handed back, unredeemed %q", unredeemedCode)
	}
	if released == nil || released.Reason != "order persistence failed" {
		t.Fatalf("reservation compensation wrong: %+v", released)
	}
	if len(f.events.events) != 0 {
		t.Fatalf("no event should publish for a failed order, got %+v", f.events.events)
	}
}
